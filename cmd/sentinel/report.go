package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/openaura/sentinel/internal/engine"
)

var (
	reportTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("12"))

	reportBodyStyle = lipgloss.NewStyle().
			Padding(0, 1).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8"))

	reportMetaStyle = lipgloss.NewStyle().
			Faint(true)
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Synthesize an activity report from the journal",
	Long: `Distill the recorded activity into a short natural-language report.
The configured ollama model writes the narrative; the company identity
sheet (see "sentinel enrich") and the configured tone shape its voice.

By default the report covers the most recent activity. Use --since with
a natural-language expression to restrict the window:

  sentinel report --since "yesterday"
  sentinel report --since "last friday at 9am"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sinceExpr, _ := cmd.Flags().GetString("since")

		var since time.Time
		if sinceExpr != "" {
			parsed, err := parseSince(sinceExpr)
			if err != nil {
				return err
			}
			since = parsed
		}

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

		text := eng.Report(context.Background(), since)

		fmt.Println(reportTitleStyle.Render("Activity Report"))
		if !since.IsZero() {
			fmt.Println(reportMetaStyle.Render("since " + since.Format("2006-01-02 15:04")))
		}
		fmt.Println(reportBodyStyle.Render(text))
		return nil
	},
}

// parseSince turns a natural-language expression into an instant.
func parseSince(expr string) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(expr, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --since %q: %w", expr, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("parse --since %q: no time expression recognized", expr)
	}
	return r.Time, nil
}

func init() {
	reportCmd.Flags().String("since", "", `only cover events after this moment (natural language, e.g. "yesterday")`)
	rootCmd.AddCommand(reportCmd)
}
