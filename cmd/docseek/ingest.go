package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"docseek/internal/app"
	"docseek/internal/service"
)

func newIngestCmd(g *globalFlags) *cobra.Command {
	var noImages, ocr bool
	cmd := &cobra.Command{
		Use:   "ingest <path|glob|dir>...",
		Short: "Index files into the vector store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context(), app.Options{SkipImages: noImages, ForceOCR: ocr})
			if err != nil {
				return err
			}
			defer closeApp(a)

			report, err := a.Service.Ingest(cmd.Context(), args)
			if report != nil {
				printReport(cmd, report)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&noImages, "no-images", false, "skip image files instead of captioning them")
	cmd.Flags().BoolVar(&ocr, "ocr", false, "run OCR on images even if disabled in the config")
	return cmd
}

func printReport(cmd *cobra.Command, r *service.IngestReport) {
	out := cmd.OutOrStdout()
	for _, f := range r.Files {
		switch f.Status {
		case service.StatusIndexed:
			fmt.Fprintf(out, "%s %s %s\n", green("indexed"), f.Path, faint(fmt.Sprintf("(%d chunks)", f.Chunks)))
		case service.StatusFailed:
			fmt.Fprintf(out, "%s  %s %s\n", red("failed"), f.Path, faint(f.Error))
		default:
			fmt.Fprintf(out, "%s %s\n", yellow(string(f.Status)), f.Path)
		}
	}
	fmt.Fprintf(out, "%s %d indexed, %d chunks, %d skipped, %d failed in %s\n",
		bold("done:"), r.Indexed, r.Chunks, r.Skipped, r.Failed, r.Elapsed.Round(time.Millisecond))
}
