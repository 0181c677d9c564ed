package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/vk/dataprep/internal/chunking"
	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/derive"
	"github.com/vk/dataprep/internal/fault"
	"github.com/vk/dataprep/internal/mapping"
	"github.com/vk/dataprep/internal/merge"
	"github.com/vk/dataprep/internal/registry"
	"github.com/vk/dataprep/internal/selection"
	"github.com/vk/dataprep/internal/source"
	"github.com/vk/dataprep/internal/split"
)

// Engine builds datasets with a fixed set of derived-variable functions and
// a source opener.
type Engine struct {
	registry *registry.Registry
	opener   source.Opener
	workers  int
}

// New creates an Engine. workers bounds the statistics computed at once.
func New(reg *registry.Registry, opener source.Opener, workers int) *Engine {
	return &Engine{registry: reg, opener: opener, workers: max(workers, 1)}
}

// Result is a finished build.
type Result struct {
	// Merged holds the output variables only.
	Merged *dataset.Dataset
	// Output is Merged plus the split boundaries and statistics.
	Output *dataset.Dataset
	Plan   chunking.Plan
	Splits []*split.Result
}

// Build runs every stage for cfg, which must already be validated.
func (e *Engine) Build(ctx context.Context, cfg *config.Config) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Building dataset.", "inputs", len(cfg.Inputs), "output_variables", len(cfg.Output.Variables))

	mc := merge.NewContext(cfg.Output)
	for rank, in := range cfg.Inputs {
		if err := e.fold(ctx, mc, rank, in, cfg.Output); err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Name, fault.InSource(err, in.Name))
		}
	}

	merged, err := mc.Finalize(ctx)
	if err != nil {
		return nil, fmt.Errorf("finalizing merge: %w", err)
	}
	res := &Result{
		Merged: merged,
		Output: merged,
		Plan:   chunking.NewPlan(ctx, merged, cfg.Output.Chunking),
	}

	if sp := cfg.Output.Splitting; sp != nil && len(sp.Splits) > 0 {
		if res.Splits, err = split.Split(ctx, merged, sp, e.workers); err != nil {
			return nil, fmt.Errorf("splitting along %q: %w", sp.Dim, err)
		}
		if res.Output, err = split.Attach(merged, res.Splits); err != nil {
			return nil, fmt.Errorf("attaching splits: %w", err)
		}
	}
	logger.Info("Dataset built.", "dims", res.Output.Dims, "variables", len(res.Output.Vars))
	return res, nil
}

// fold runs one source through every per-source stage and adds it to mc.
func (e *Engine) fold(ctx context.Context, mc *merge.Context, rank int, in *config.Input, out *config.Output) error {
	ctx = ctxlog.With(ctx, "source", in.Name)
	logger := ctxlog.FromContext(ctx)
	logger.Info("Loading source.", "path", in.Path)

	raw, err := e.opener.Open(ctx, in.Path)
	if err != nil {
		return err
	}
	if err := source.CheckAttributes(raw, in.Attributes); err != nil {
		return err
	}

	var selected *dataset.Dataset
	if len(in.Variables) > 0 {
		if selected, err = selection.Select(ctx, raw, in.Variables); err != nil {
			return err
		}
	} else {
		if selected, err = frame(raw, in.Dims); err != nil {
			return err
		}
	}
	if len(in.DerivedVariables) > 0 {
		if selected, err = derive.Evaluate(ctx, e.registry, selected, raw, in.DerivedVariables); err != nil {
			return err
		}
	}
	if err := checkDims(selected, in.Dims); err != nil {
		return err
	}

	rules, err := mapping.Rules(in.DimMapping)
	if err != nil {
		return err
	}
	target := out.Variable(in.TargetOutputVariable)
	mapped, err := mapping.Apply(ctx, selected, rules, target)
	if err != nil {
		return err
	}

	return mc.Add(ctx, merge.Contribution{
		Source:    in.Name,
		Rank:      rank,
		Target:    target.Name,
		ConcatDim: config.ConcatDim(in),
		Data:      mapped,
	})
}

// frame is the part of raw that derived variables are laid over when no
// variables are requested: the declared dims with their coordinates.
func frame(raw *dataset.Dataset, dims []string) (*dataset.Dataset, error) {
	out := dataset.New()
	for k, v := range raw.Attrs {
		out.Attrs[k] = v
	}
	for _, d := range raw.Dims {
		if !slices.Contains(dims, d) {
			continue
		}
		if err := out.SetIndex(raw.Index(d).Clone()); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "cannot lay out derived variables").WithDim(d)
		}
	}
	for _, c := range raw.Coords {
		if slices.ContainsFunc(c.Dims, func(d string) bool { return !out.HasDim(d) }) {
			continue
		}
		if err := out.AddCoord(c.Clone()); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "cannot lay out derived variables").WithVariable(c.Name)
		}
	}
	return out, nil
}

// checkDims requires the selected data to span only declared dims.
func checkDims(ds *dataset.Dataset, declared []string) error {
	for _, d := range ds.Dims {
		if !slices.Contains(declared, d) {
			return fault.New(fault.Configuration, "selected variables span a dim that is not declared (declared %v)", declared).WithDim(d)
		}
	}
	return nil
}
