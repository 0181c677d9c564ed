package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/fault"
	"github.com/vk/dataprep/internal/mapping"
	"github.com/vk/dataprep/internal/merge"
)

// Recreated is one input rebuilt from a built dataset.
type Recreated struct {
	Input   string
	Dataset *dataset.Dataset
}

// Recreate rebuilds the inputs of cfg from built, a dataset produced by
// Build for cfg, by inverting each input's dim mapping. Members are
// attributed to inputs through the source column of the variable-stacking
// dim. Derived variables are not recreated. When only is non-empty just
// those inputs are rebuilt; each name must be an input of cfg.
func (e *Engine) Recreate(ctx context.Context, cfg *config.Config, built *dataset.Dataset, only []string) ([]*Recreated, error) {
	logger := ctxlog.FromContext(ctx)

	for _, name := range only {
		if !slices.ContainsFunc(cfg.Inputs, func(in *config.Input) bool { return in.Name == name }) {
			return nil, fault.New(fault.Configuration, "input %q is not part of the configuration", name)
		}
	}

	var out []*Recreated
	for _, in := range cfg.Inputs {
		if len(only) > 0 && !slices.Contains(only, in.Name) {
			continue
		}
		ds, err := e.recreate(ctxlog.With(ctx, "source", in.Name), in, cfg.Output, built)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Name, fault.InSource(err, in.Name))
		}
		if len(ds.Vars) == 0 {
			logger.Warn("Input holds only derived variables; nothing to recreate.", "source", in.Name)
			continue
		}
		out = append(out, &Recreated{Input: in.Name, Dataset: ds})
	}
	logger.Info("Inputs recreated.", "inputs", len(out))
	return out, nil
}

func (e *Engine) recreate(ctx context.Context, in *config.Input, out *config.Output, built *dataset.Dataset) (*dataset.Dataset, error) {
	target := out.Variable(in.TargetOutputVariable)
	concat := config.ConcatDim(in)
	members := built.Index(concat)
	if members == nil {
		return nil, fault.New(fault.Configuration, "built dataset has no variable-stacking dim").WithDim(concat)
	}

	var own []int
	if col, ok := members.Aux[concat+merge.SourceDatasetSuffix]; ok {
		for i, l := range col {
			if l.Kind() == dataset.KindString && l.Str() == in.Name {
				own = append(own, i)
			}
		}
	} else {
		for i := range members.Labels {
			own = append(own, i)
		}
	}
	if len(own) == 0 {
		return nil, fault.New(fault.Configuration, "built dataset holds no members from this input").WithDim(concat)
	}
	part, err := built.Take(concat, own)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, err, "cannot pick the input's members").WithDim(concat)
	}

	rules, err := mapping.Rules(in.DimMapping)
	if err != nil {
		return nil, err
	}
	ds, err := mapping.Invert(ctx, part, rules, target)
	if err != nil {
		return nil, err
	}
	ds.Vars = slices.DeleteFunc(ds.Vars, func(v *dataset.Variable) bool {
		return slices.ContainsFunc(in.DerivedVariables, func(dv *config.DerivedVariable) bool { return dv.Name == v.Name })
	})
	ctxlog.FromContext(ctx).Debug("Recreated input.", "dims", ds.Dims, "variables", ds.VariableNames())
	return ds, nil
}
