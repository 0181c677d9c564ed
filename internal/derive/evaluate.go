package derive

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/fault"
	"github.com/vk/dataprep/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// RequiredAttributes must be present on every derived variable.
var RequiredAttributes = []string{"units", "long_name"}

// Evaluate computes defs in order and returns a copy of selected with the
// results added as data variables. A definition may reference the results
// of those before it. raw is the source as opened, before variable
// selection.
func Evaluate(ctx context.Context, reg *registry.Registry, selected, raw *dataset.Dataset, defs []*config.DerivedVariable) (*dataset.Dataset, error) {
	out := selected.Clone()
	for _, dv := range defs {
		v, err := evaluate(ctx, reg, out, raw, dv)
		if err != nil {
			return nil, withVariable(err, dv.Name)
		}
		if err := out.AddVariable(v); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "cannot attach derived variable").WithVariable(dv.Name)
		}
	}
	return out, nil
}

func evaluate(ctx context.Context, reg *registry.Registry, ds, raw *dataset.Dataset, dv *config.DerivedVariable) (*dataset.Variable, error) {
	ctx = ctxlog.With(ctx, "variable", dv.Name, "function", dv.Function)

	fn, ok := reg.Function(dv.Function)
	if !ok {
		return nil, fault.New(fault.Configuration, "unknown function %q", dv.Function)
	}
	args, err := bind(ds, raw, fn, dv.Kwargs)
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Debug("Evaluating derived variable.")
	result, err := fn.Fn(ctx, args)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, err, "function %q failed", fn.Name)
	}

	for _, d := range result.Dims {
		if !ds.HasDim(d) {
			return nil, fault.New(fault.Configuration, "function %q returned dims %v, but the source has no dim %q", fn.Name, result.Dims, d).WithDim(d)
		}
	}
	aligned, err := ds.BroadcastTo(result, ds.Dims)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, err, "cannot align the result of %q to the source dims %v", fn.Name, ds.Dims)
	}
	aligned.Name = dv.Name

	attrs, err := attributes(ctx, fn.Attrs, result.Attrs, dv.Attrs)
	if err != nil {
		return nil, err
	}
	aligned.Attrs = attrs
	return aligned, nil
}

// bind resolves kwargs against fn's parameters.
func bind(ds, raw *dataset.Dataset, fn *registry.Function, kwargs []*config.Kwarg) (*registry.Args, error) {
	args := registry.NewArgs()
	given := map[string]*config.Kwarg{}
	for _, kw := range kwargs {
		if _, ok := fn.Param(kw.Name); !ok {
			return nil, fault.New(fault.Configuration, "function %q has no parameter %q", fn.Name, kw.Name)
		}
		given[kw.Name] = kw
	}

	for _, p := range fn.Params {
		kw, ok := given[p.Name]
		switch {
		case !ok && !p.Optional:
			return nil, fault.New(fault.Configuration, "missing required argument %q", p.Name)
		case !ok:
			if config.IsSet(p.Default) {
				args.SetLiteral(p.Name, p.Default)
			} else {
				args.SetLiteral(p.Name, cty.NullVal(p.Type))
			}
		case p.Kind == registry.Field:
			if !kw.IsRef() {
				return nil, fault.New(fault.Configuration, "argument %q must reference the dataset with %q", p.Name, config.DatasetRefPrefix)
			}
			v, err := resolve(ds, raw, kw.Ref)
			if err != nil {
				return nil, err
			}
			args.SetField(p.Name, v)
		default:
			if kw.IsRef() {
				return nil, fault.New(fault.Configuration, "argument %q takes a literal, not a dataset reference", p.Name)
			}
			val, err := convert.Convert(kw.Value, p.Type)
			if err != nil {
				return nil, fault.Wrap(fault.Configuration, err, "argument %q must be a %s", p.Name, p.Type.FriendlyName())
			}
			args.SetLiteral(p.Name, val)
		}
	}
	return args, nil
}

// resolve looks up a dataset reference.
func resolve(ds, raw *dataset.Dataset, name string) (*dataset.Variable, error) {
	if v, ok := ds.Variable(name); ok {
		return v.Clone(), nil
	}
	if v, ok := ds.Coord(name); ok {
		return v.Clone(), nil
	}
	if v, ok := ds.IndexVariable(name); ok {
		return v, nil
	}
	if raw != nil {
		if v, ok := raw.Variable(name); ok {
			return alignToSelection(ds, raw, v)
		}
		if v, ok := raw.Coord(name); ok {
			return alignToSelection(ds, raw, v)
		}
	}
	return nil, fault.New(fault.Configuration, "%s%s does not name a variable, coordinate or dim of the source", config.DatasetRefPrefix, name)
}

// alignToSelection restricts a variable of the raw source to the members
// kept by variable selection.
func alignToSelection(ds, raw *dataset.Dataset, v *dataset.Variable) (*dataset.Variable, error) {
	out := v.Clone()
	for _, d := range v.Dims {
		ix := ds.Index(d)
		if ix == nil {
			return nil, fault.New(fault.Configuration, "%q spans dim %q, which none of the requested variables span", v.Name, d).WithDim(d)
		}
		pos, missing := raw.Index(d).Locate(ix.Labels)
		if missing != nil {
			return nil, fault.New(fault.MissingCoordinateValue, "value %s not found in coordinate of %q", missing, v.Name).WithDim(d)
		}
		out = out.Take(d, pos)
	}
	return out, nil
}

// attributes layers the function's defaults, the attributes the function
// set on its result and the configured overrides, then checks that the
// required attributes are all present.
func attributes(ctx context.Context, defaults, result, overrides map[string]string) (map[string]string, error) {
	logger := ctxlog.FromContext(ctx)
	attrs := maps.Clone(defaults)
	if attrs == nil {
		attrs = map[string]string{}
	}
	for k, v := range result {
		if v != "" {
			attrs[k] = v
		}
	}
	for _, k := range slices.Sorted(maps.Keys(overrides)) {
		v := overrides[k]
		if prev, ok := attrs[k]; ok && prev != v {
			logger.Warn("Overriding attribute of derived variable from configuration.", "attribute", k, "from", prev, "to", v)
		}
		attrs[k] = v
	}
	for _, k := range RequiredAttributes {
		if attrs[k] == "" {
			return nil, fault.New(fault.MissingAttribute,
				"attribute %q is set neither by the function nor in the configuration; add it under the attrs of the derived variable", k)
		}
	}
	return attrs, nil
}

func withVariable(err error, name string) error {
	if fe, ok := err.(*fault.Error); ok && fe.Variable == "" {
		return fe.WithVariable(name)
	}
	return fmt.Errorf("derived variable %q: %w", name, err)
}
