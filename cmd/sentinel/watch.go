package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openaura/sentinel/internal/config"
	"github.com/openaura/sentinel/internal/engine"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the watch pipeline until interrupted",
	Long: `Start the full pipeline: reconcile the watch targets against the
journal, then watch them live. Every created, modified, moved or deleted
file is journaled; non-deleted files are queued for content analysis.

Press Ctrl+C to stop. The journal survives restarts; the next run's
reconciliation pass picks up anything that happened in between.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.TargetPaths()) == 0 {
			fmt.Fprintf(os.Stderr, "Warning: no watch targets configured; add a targets entry to %s\n",
				filepath.Join(cfg.BaseDir(), config.ConfigFileName))
		}

		logger := newLogger(cfg.BaseDir())
		eng, err := engine.New(cfg, logger)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := eng.Start(ctx); err != nil {
			eng.Stop()
			return err
		}

		fmt.Printf("Watching %d targets. Press Ctrl+C to stop...\n", len(cfg.TargetPaths()))
		<-ctx.Done()

		fmt.Println("\nShutting down...")
		if err := eng.Stop(); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		fmt.Println("Stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
