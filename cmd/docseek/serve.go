package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docseek/internal/app"
	"docseek/internal/server"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := g.open(ctx, app.Options{})
			if err != nil {
				return err
			}
			defer closeApp(a)
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			srv := server.New(a.Service, a.Metrics, a.Config.VectorStore.TopK, a.Logger)
			return srv.Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
