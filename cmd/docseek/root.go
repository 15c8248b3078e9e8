package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"docseek/internal/app"
	"docseek/internal/config"
	"docseek/internal/logging"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logStyle   string
}

var (
	bold   = color.New(color.Bold).SprintFunc()
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "docseek",
		Short: "Search and ask questions about local documents",
		Long: `docseek indexes PDF, Word, text and image files into a local vector
store and answers questions about them with a language model.

Examples:
  docseek ingest ~/Documents/reports "notes/*.md"
  docseek query "Which report covers the March budget?"
  docseek query --multi "회의록은 어디에 있어?"
  docseek serve`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file path (default ./config.yaml, then ~/.config/docseek/config.yaml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "logging level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&g.logStyle, "log-style", "", "logging style: terminal, json, noop")

	root.AddCommand(
		newIngestCmd(g),
		newQueryCmd(g),
		newCaptionCmd(g),
		newSearchCmd(g),
		newHistoryCmd(g),
		newTUICmd(g),
		newServeCmd(g),
	)
	return root
}

// load reads the configuration and builds the logger, applying flag overrides.
func (g *globalFlags) load() (*config.AppConfig, *zap.Logger, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if g.configPath != "" {
		cfg, err = config.Load(g.configPath)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logStyle != "" {
		cfg.Log.Style = g.logStyle
	}
	logger := logging.NewLogger(logging.Config{Level: cfg.Log.Level, Style: logging.Style(cfg.Log.Style)})
	return cfg, logger, nil
}

// open builds the application. The caller closes it and syncs the logger.
func (g *globalFlags) open(ctx context.Context, opts app.Options) (*app.App, error) {
	cfg, logger, err := g.load()
	if err != nil {
		return nil, err
	}
	a, err := app.Build(ctx, cfg, logger, opts)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		a.Logger.Warn("closing resources", zap.Error(err))
	}
	_ = a.Logger.Sync()
}
