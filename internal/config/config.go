// Package config loads the operator's JSON configuration.
//
// The configuration is produced by the setup wizard and is read-only to
// the engine, with one exception: the company identity summary generated
// by the enrichment feature is persisted back. Unknown keys written by
// the wizard are preserved across that single write.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/openaura/sentinel/internal/ollama"
)

// ConfigFileName is the JSON file expected under the base directory.
const ConfigFileName = "config.json"

// JournalFileName is the event store file under the base directory.
const JournalFileName = "events.db"

// Prompt styles selectable in the wizard.
const (
	StyleFormalConcise        = "formal_concise"
	StyleBalancedProfessional = "balanced_professional"
	StyleCasualEngaging       = "casual_engaging"
)

// Target is one watched filesystem location.
type Target struct {
	// Path is the absolute directory to watch.
	Path string `mapstructure:"path" json:"path"`
	// Kind is "local" or "network".
	Kind string `mapstructure:"kind" json:"kind"`
}

// Config is the read-only snapshot the engine runs against.
type Config struct {
	Targets           []Target `mapstructure:"targets"`
	SelectedModelTag  string   `mapstructure:"selected_model_tag"`
	VisionModelTag    string   `mapstructure:"vision_model_tag"`
	ScrapingSummary   string   `mapstructure:"scraping_summary"`
	WebsiteURL        string   `mapstructure:"website_url"`
	SystemPromptStyle string   `mapstructure:"system_prompt_style"`
	EngineURL         string   `mapstructure:"engine_url"`

	baseDir string
}

// Load reads the configuration from baseDir. A missing file yields a
// usable default configuration with zero targets; a malformed file is
// an error the caller should report once and then proceed degraded.
func Load(baseDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(baseDir, ConfigFileName))
	v.SetConfigType("json")

	v.SetDefault("engine_url", ollama.DefaultBaseURL)
	v.SetDefault("system_prompt_style", StyleBalancedProfessional)

	cfg := &Config{baseDir: baseDir}

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			// First run before the wizard: defaults only.
			cfg.EngineURL = ollama.DefaultBaseURL
			cfg.SystemPromptStyle = StyleBalancedProfessional
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// BaseDir returns the caller-supplied state directory.
func (c *Config) BaseDir() string { return c.baseDir }

// JournalPath returns the event store location under the base directory.
func (c *Config) JournalPath() string {
	return filepath.Join(c.baseDir, JournalFileName)
}

// Model returns the configured model tag, falling back to the default.
func (c *Config) Model() string {
	if c.SelectedModelTag != "" {
		return c.SelectedModelTag
	}
	return ollama.DefaultModel
}

// TargetPaths returns the configured watch directories in order.
func (c *Config) TargetPaths() []string {
	paths := make([]string, 0, len(c.Targets))
	for _, t := range c.Targets {
		paths = append(paths, t.Path)
	}
	return paths
}

// SaveScrapingSummary persists the enrichment summary back to the config
// file, preserving every other key as written by the wizard. This is the
// engine's only write path into the configuration.
func (c *Config) SaveScrapingSummary(summary string) error {
	path := filepath.Join(c.baseDir, ConfigFileName)

	raw := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to parse existing config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config: %w", err)
	}

	raw["scraping_summary"] = summary

	data, err := json.MarshalIndent(raw, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(c.baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	c.ScrapingSummary = summary
	return nil
}
