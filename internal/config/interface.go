package config

import "context"

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads configuration from a file (or, for formats that support
	// it, a directory of files) and translates it into the model.
	Load(ctx context.Context, path string) (*Config, error)
}
