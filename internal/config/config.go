// Package config loads the relcut CLI configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relcut/relcut/pkg/api"
)

// DefaultPath is where the CLI looks for configuration when --config is
// not given.
const DefaultPath = ".relcut.yaml"

// Cell is one matrix cell in the configuration file.
type Cell struct {
	OS      string `yaml:"os"`
	Runtime string `yaml:"runtime"`
}

// Duration wraps time.Duration so it can be written as "100ms" or "2s" in
// YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Retry configures push retries.
type Retry struct {
	MaxAttempts       int      `yaml:"max_attempts"`
	InitialBackoff    Duration `yaml:"initial_backoff"`
	MaxBackoff        Duration `yaml:"max_backoff"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
}

// Config is the root of the CLI configuration file.
type Config struct {
	// Repo is the working tree the release operates on.
	Repo string `yaml:"repo"`

	// Remote is the git remote scratch branches are pushed to.
	Remote string `yaml:"remote"`

	// TargetBranch is the default release target.
	TargetBranch string `yaml:"target_branch"`

	// SourceBranch is the default source of the release commits.
	SourceBranch string `yaml:"source_branch"`

	// MetadataFile holds the current version; MetadataKey is the mapping
	// key inside it.
	MetadataFile string `yaml:"metadata_file"`
	MetadataKey  string `yaml:"metadata_key"`

	// ChangesDir is the root of the changelog tree.
	ChangesDir string `yaml:"changes_dir"`

	EnvSetupPath string `yaml:"env_setup_path"`

	UnitCommand        []string `yaml:"unit_command"`
	IntegrationCommand []string `yaml:"integration_command"`

	UnitMatrix        []Cell `yaml:"unit_matrix"`
	IntegrationMatrix []Cell `yaml:"integration_matrix"`

	Parallelism      int `yaml:"parallelism"`
	FlakyParallelism int `yaml:"flaky_parallelism"`

	PushRetry *Retry `yaml:"push_retry"`

	// Journal is the path of the SQLite run journal. Empty keeps runs in
	// memory only.
	Journal string `yaml:"journal"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Repo:         ".",
		Remote:       "origin",
		TargetBranch: "main",
		SourceBranch: "main",
		MetadataFile: "metadata.yaml",
		MetadataKey:  "version",
		ChangesDir:   ".changes",
		Parallelism:  4,
	}
}

// Load reads and validates the configuration at path, filling defaults
// for omitted fields. A missing file at the default path yields Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultPath {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Repo == "" {
		return fmt.Errorf("repo must not be empty")
	}
	if c.TargetBranch == "" {
		return fmt.Errorf("target_branch must not be empty")
	}
	if c.MetadataFile == "" {
		return fmt.Errorf("metadata_file must not be empty")
	}
	if c.ChangesDir == "" {
		return fmt.Errorf("changes_dir must not be empty")
	}
	if c.Parallelism < 0 || c.FlakyParallelism < 0 {
		return fmt.Errorf("parallelism values must not be negative")
	}
	if c.PushRetry != nil && c.PushRetry.MaxAttempts < 1 {
		return fmt.Errorf("push_retry.max_attempts must be at least 1")
	}
	return nil
}

// UnitCells converts the configured unit matrix to api cells.
func (c *Config) UnitCells() []api.MatrixCell { return cells(c.UnitMatrix) }

// IntegrationCells converts the configured integration matrix to api cells.
func (c *Config) IntegrationCells() []api.MatrixCell { return cells(c.IntegrationMatrix) }

// RetryPolicy converts the configured push retry, or nil when unset.
func (c *Config) RetryPolicy() *api.RetryPolicy {
	if c.PushRetry == nil {
		return nil
	}
	return &api.RetryPolicy{
		MaxAttempts:       c.PushRetry.MaxAttempts,
		InitialBackoff:    time.Duration(c.PushRetry.InitialBackoff),
		MaxBackoff:        time.Duration(c.PushRetry.MaxBackoff),
		BackoffMultiplier: c.PushRetry.BackoffMultiplier,
	}
}

func cells(in []Cell) []api.MatrixCell {
	out := make([]api.MatrixCell, 0, len(in))
	for _, c := range in {
		out = append(out, api.MatrixCell{OS: c.OS, Runtime: c.Runtime})
	}
	return out
}
