package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/fsutil"
	"github.com/vk/dataprep/internal/schema"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// Load reads a single .hcl file, or every .hcl file below a directory, and
// merges them into one configuration. Inputs keep file order, then
// declaration order within a file.
func (l *Loader) Load(ctx context.Context, path string) (*config.Config, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	files, err := fsutil.FindFiles(path, ".hcl")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %s", path)
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	cfg := &config.Config{}
	var outputFile string

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root schema.File
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		if err := mergeVersion(&cfg.SchemaVersion, root.SchemaVersion, "schema_version", file); err != nil {
			return nil, err
		}
		if err := mergeVersion(&cfg.DatasetVersion, root.DatasetVersion, "dataset_version", file); err != nil {
			return nil, err
		}

		extra, err := translateExtra(root.Extra)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		for k, v := range extra {
			if cfg.Extra == nil {
				cfg.Extra = map[string]string{}
			}
			if _, dup := cfg.Extra[k]; dup {
				return nil, fmt.Errorf("%s: extra key %q is set in more than one file", file, k)
			}
			cfg.Extra[k] = v
		}

		if root.Output != nil {
			if outputFile != "" {
				return nil, fmt.Errorf("%s: output block already declared in %s", file, outputFile)
			}
			outputFile = file
			if cfg.Output, err = translateOutput(root.Output); err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
		}

		for _, in := range root.Inputs {
			translated, err := translateInput(in)
			if err != nil {
				return nil, fmt.Errorf("%s: input %q: %w", file, in.Name, err)
			}
			cfg.Inputs = append(cfg.Inputs, translated)
		}
	}

	if cfg.Output == nil {
		return nil, fmt.Errorf("no output block found in %s", path)
	}
	logger.Debug("HCL loading complete.", "files", len(files), "inputs", len(cfg.Inputs), "output_variables", len(cfg.Output.Variables))
	return cfg, nil
}

func mergeVersion(dst *string, v, field, file string) error {
	if v == "" {
		return nil
	}
	if *dst != "" && *dst != v {
		return fmt.Errorf("%s: %s %q conflicts with %q set in another file", file, field, v, *dst)
	}
	*dst = v
	return nil
}
