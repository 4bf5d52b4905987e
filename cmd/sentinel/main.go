// Command sentinel watches configured folders, journals filesystem
// activity into SQLite, analyzes file contents through a local ollama
// instance and synthesizes activity reports on demand.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/openaura/sentinel/internal/config"
)

var baseDir string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Filesystem sentinel with AI-powered activity reports",
	Long: `Sentinel keeps a durable journal of everything that happens in the
folders you point it at. Each recorded file is analyzed by a local
ollama model (vision models describe images, text and PDF content is
read directly), and the accumulated journal can be distilled into a
natural-language activity report at any time.

All state lives in one base directory (default ~/.sentinel):
  config.json   watch targets, model tags, company identity
  events.db     the SQLite event journal
  sentinel.log  rotating engine log`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseDir, "dir", "", "base directory for config and journal (default ~/.sentinel)")
}

// resolveBaseDir picks the state directory and makes sure it exists.
func resolveBaseDir() (string, error) {
	dir := baseDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".sentinel")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create state directory: %w", err)
	}
	return dir, nil
}

// loadConfig resolves the base directory and reads config.json from it.
// A malformed config is reported once and the defaults are used; only a
// missing base directory is fatal.
func loadConfig() (*config.Config, error) {
	dir, err := resolveBaseDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v; continuing with defaults\n", err)
	}
	return cfg, nil
}

// newLogger tees engine output to stderr and to a rotating log file in
// the state directory.
func newLogger(dir string) *log.Logger {
	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "sentinel.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
	}
	return log.New(io.MultiWriter(os.Stderr, rotating), "[sentinel] ", log.LstdFlags)
}
