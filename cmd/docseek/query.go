package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docseek/internal/app"
	"docseek/internal/domain"
	"docseek/internal/query"
	"docseek/internal/tui"
)

func newQueryCmd(g *globalFlags) *cobra.Command {
	var multi, noSources bool
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question about the indexed files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context(), app.Options{SkipImages: true})
			if err != nil {
				return err
			}
			defer closeApp(a)

			useMulti := multi || a.Config.Query.MultiQuery
			out := cmd.OutOrStdout()
			ans, err := a.Service.Ask(cmd.Context(), strings.Join(args, " "), useMulti, func(delta string) error {
				_, err := fmt.Fprint(out, delta)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			if !noSources {
				printSources(cmd, ans)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&multi, "multi", false, "retrieve with model-written paraphrases of the question")
	cmd.Flags().BoolVar(&noSources, "no-sources", false, "do not list the retrieved documents")
	return cmd
}

func printSources(cmd *cobra.Command, ans *query.Answer) {
	out := cmd.OutOrStdout()
	if len(ans.Queries) > 1 {
		fmt.Fprintln(out, bold("\nqueries:"))
		for _, q := range ans.Queries {
			fmt.Fprintf(out, "  %s\n", q)
		}
	}
	fmt.Fprintln(out, bold("\nsources:"))
	seen := map[string]bool{}
	for _, r := range ans.Sources {
		loc := describe(r.Document)
		if seen[loc] {
			continue
		}
		seen[loc] = true
		fmt.Fprintf(out, "  %s %s\n", cyan(loc), faint(fmt.Sprintf("score=%.3f", r.Score)))
	}
}

func describe(d domain.Document) string {
	loc := d.Source()
	if page, ok := d.Metadata[domain.MetaPage]; ok {
		loc = fmt.Sprintf("%s p.%v", loc, page)
	}
	if typ, ok := d.Metadata[domain.MetaType].(string); ok && typ != "" {
		loc = fmt.Sprintf("%s [%s]", loc, typ)
	}
	return loc
}

func newTUICmd(g *globalFlags) *cobra.Command {
	var multi bool
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Ask questions interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.logStyle == "" {
				// log lines would tear the screen
				g.logStyle = "noop"
			}
			a, err := g.open(cmd.Context(), app.Options{SkipImages: true})
			if err != nil {
				return err
			}
			defer closeApp(a)

			n, err := a.Service.Len(cmd.Context())
			if err != nil {
				return err
			}
			info := fmt.Sprintf("%d chunks indexed in %s", n, a.Config.VectorStore.Dir)
			m := tui.New(cmd.Context(), a.Service, info, multi || a.Config.Query.MultiQuery)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	cmd.Flags().BoolVar(&multi, "multi", false, "start in multi-query mode")
	return cmd
}
