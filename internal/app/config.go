package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Config holds the settings of one build, as given on the command line.
type Config struct {
	ConfigPath string // .hcl file or directory, or a .yaml file
	OutputPath string // defaults to ConfigPath with a .nc extension

	LogFormat string
	LogLevel  string
	Workers   int

	// RecreateFrom, when set, is a built dataset whose inputs are rebuilt
	// instead of running a build.
	RecreateFrom string
	// RecreatePathFormat names each rebuilt input; {input_name} is
	// replaced by the input's name.
	RecreatePathFormat string
	// RecreateInputs restricts the rebuilt inputs. Empty means all.
	RecreateInputs []string
	// RecreateChunks are chunk sizes for the rebuilt inputs.
	RecreateChunks map[string]int
}

// InputNamePlaceholder is replaced by the input name in RecreatePathFormat.
const InputNamePlaceholder = "{input_name}"

// DefaultRecreatePathFormat writes rebuilt inputs to the working directory.
const DefaultRecreatePathFormat = InputNamePlaceholder + ".nc"

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = DefaultOutputPath(cfg.ConfigPath)
	}
	if cfg.RecreatePathFormat == "" {
		cfg.RecreatePathFormat = DefaultRecreatePathFormat
	}
	if cfg.RecreateFrom != "" && !strings.Contains(cfg.RecreatePathFormat, InputNamePlaceholder) {
		return nil, fmt.Errorf("recreate output format %q must contain %s", cfg.RecreatePathFormat, InputNamePlaceholder)
	}
	return &cfg, nil
}

// RecreatedPath is where the rebuilt input called name is written.
func (c *Config) RecreatedPath(name string) string {
	return strings.ReplaceAll(c.RecreatePathFormat, InputNamePlaceholder, name)
}

// DefaultOutputPath places the dataset next to its configuration.
func DefaultOutputPath(configPath string) string {
	clean := filepath.Clean(configPath)
	return strings.TrimSuffix(clean, filepath.Ext(clean)) + ".nc"
}
