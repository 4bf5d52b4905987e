package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openaura/sentinel/internal/engine"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Build the company identity sheet from the configured website",
	Long: `Fetch the website_url from config.json, reduce the page to text and
have the configured model distill it into a short company identity
sheet. The sheet is stored back into config.json as scraping_summary
and gives reports their company-specific vocabulary.

Enrichment runs at most once: if a sheet is already present it is
printed and left untouched. Delete scraping_summary from config.json to
force a rebuild.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.BaseDir())
		eng, err := engine.New(cfg, logger)
		if err != nil {
			return err
		}
		defer eng.Stop()

		sheet, err := eng.Enrich(context.Background())
		if err != nil {
			return fmt.Errorf("enrich: %w", err)
		}
		fmt.Println(sheet)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd)
}
