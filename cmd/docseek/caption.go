package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docseek/internal/app"
)

func newCaptionCmd(g *globalFlags) *cobra.Command {
	var withOCR bool
	cmd := &cobra.Command{
		Use:   "caption <image>...",
		Short: "Describe images with the captioning model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			p, err := app.OpenCaptioner(cfg.Caption, logger)
			if err != nil {
				return fmt.Errorf("opening caption model: %w", err)
			}
			defer p.Close()
			tess := app.NewOCR(cfg.OCR, logger)

			out := cmd.OutOrStdout()
			for _, path := range args {
				text, err := p.CaptionFile(cmd.Context(), path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(out, "%s %s\n", cyan(path+":"), text)
				if !withOCR {
					continue
				}
				ocrText, err := tess.Recognize(cmd.Context(), path)
				if err != nil {
					return fmt.Errorf("%s: ocr: %w", path, err)
				}
				if ocrText != "" {
					fmt.Fprintf(out, "%s\n%s\n", faint("ocr:"), ocrText)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withOCR, "ocr", false, "also print text recognized with tesseract")
	return cmd
}
