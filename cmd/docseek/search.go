package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docseek/internal/app"
)

func newSearchCmd(g *globalFlags) *cobra.Command {
	var (
		fullText bool
		k        int
	)
	cmd := &cobra.Command{
		Use:   "search <terms>",
		Short: "Show the nearest chunks, or keyword matches with --fulltext",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context(), app.Options{SkipImages: true})
			if err != nil {
				return err
			}
			defer closeApp(a)

			q := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			if fullText {
				hits, err := a.Service.FullText(cmd.Context(), q)
				if err != nil {
					return err
				}
				for _, h := range hits {
					fmt.Fprintf(out, "%s %s\n    %s\n", faint(fmt.Sprintf("%6.2f", h.Score)), cyan(h.FilePath), h.Snippet)
				}
				return nil
			}
			if k <= 0 {
				k = a.Config.VectorStore.TopK
			}
			res, err := a.Service.Retrieve(cmd.Context(), q, k)
			if err != nil {
				return err
			}
			for i, r := range res {
				fmt.Fprintf(out, "%s %s %s\n    %s\n", bold(fmt.Sprintf("%2d.", i+1)), cyan(describe(r.Document)),
					faint(fmt.Sprintf("score=%.3f", r.Score)), preview(r.Document.Content, 160))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fullText, "fulltext", false, "search the BM25 full-text index instead of vectors")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of results (default from config)")
	return cmd
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "…"
	}
	return s
}

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var showIDs bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List indexed files from the provenance log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context(), app.Options{SkipImages: true})
			if err != nil {
				return err
			}
			defer closeApp(a)

			records, err := a.Service.History()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, rec := range records {
				fmt.Fprintf(out, "%s %s\n", cyan(rec.FilePath), faint(fmt.Sprintf("(%d chunks)", len(rec.IDs))))
				if showIDs {
					for _, id := range rec.IDs {
						fmt.Fprintf(out, "    %s\n", id)
					}
				}
			}
			fmt.Fprintf(out, "%s %d ingestion records\n", bold("total:"), len(records))
			return nil
		},
	}
	cmd.Flags().BoolVar(&showIDs, "ids", false, "print the record ids of each file")
	return cmd
}
