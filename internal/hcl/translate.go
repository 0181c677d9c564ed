package hcl

import (
	"fmt"
	"maps"
	"slices"

	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/schema"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

func translateOutput(o *schema.Output) (*config.Output, error) {
	out := &config.Output{Chunking: o.Chunking}
	for _, v := range o.Variables {
		out.Variables = append(out.Variables, &config.OutputVariable{Name: v.Name, Dims: v.Dims})
	}
	if len(o.CoordRanges) > 0 {
		out.CoordRanges = make(map[string]*config.Range, len(o.CoordRanges))
	}
	for _, cr := range o.CoordRanges {
		if _, dup := out.CoordRanges[cr.Dim]; dup {
			return nil, fmt.Errorf("coord_range %q declared twice", cr.Dim)
		}
		out.CoordRanges[cr.Dim] = &config.Range{Start: cr.Start, End: cr.End, Step: cr.Step}
	}
	if s := o.Splitting; s != nil {
		out.Splitting = &config.Splitting{Dim: s.Dim}
		for _, sp := range s.Splits {
			split := &config.Split{Name: sp.Name, Start: sp.Start, End: sp.End}
			if sp.Statistics != nil {
				split.Statistics = &config.Statistics{Ops: sp.Statistics.Ops, Dims: sp.Statistics.Dims}
			}
			out.Splitting.Splits = append(out.Splitting.Splits, split)
		}
	}
	return out, nil
}

func translateInput(in *schema.Input) (*config.Input, error) {
	out := &config.Input{
		Name:                 in.Name,
		Path:                 in.Path,
		Dims:                 in.Dims,
		TargetOutputVariable: in.TargetOutputVariable,
		Attributes:           in.Attributes,
	}
	for _, v := range in.Variables {
		req := &config.VariableRequest{Name: v.Name, Units: v.Units}
		for _, s := range v.Selections {
			sel, err := translateSelection(s)
			if err != nil {
				return nil, fmt.Errorf("variable %q: %w", v.Name, err)
			}
			req.Selections = append(req.Selections, sel)
		}
		out.Variables = append(out.Variables, req)
	}
	for _, dv := range in.DerivedVariables {
		kwargs, err := translateKwargs(dv.Kwargs)
		if err != nil {
			return nil, fmt.Errorf("derived_variable %q: %w", dv.Name, err)
		}
		out.DerivedVariables = append(out.DerivedVariables, &config.DerivedVariable{
			Name:     dv.Name,
			Function: dv.Function,
			Kwargs:   kwargs,
			Attrs:    dv.Attrs,
		})
	}
	for _, m := range in.DimMappings {
		out.DimMapping = append(out.DimMapping, &config.DimMapping{
			Dim:        m.OutputDim,
			Method:     m.Method,
			From:       m.Dim,
			Dims:       m.Dims,
			NameFormat: m.NameFormat,
		})
	}
	return out, nil
}

func translateSelection(s *schema.Selection) (*config.Selection, error) {
	sel := &config.Selection{Dim: s.Dim, Units: s.Units}
	if config.IsSet(s.Values) {
		sel.Values = elements(s.Values)
	}
	if config.IsSet(s.Start) || config.IsSet(s.End) || config.IsSet(s.Step) {
		if sel.Values != nil {
			return nil, fmt.Errorf("select %q: values cannot be combined with start/end/step", s.Dim)
		}
		sel.Range = &config.Range{Start: s.Start, End: s.End, Step: s.Step}
	}
	return sel, nil
}

// elements flattens a list, tuple or set; a single value becomes a list of one.
func elements(v cty.Value) []cty.Value {
	ty := v.Type()
	if !(ty.IsListType() || ty.IsTupleType() || ty.IsSetType()) {
		return []cty.Value{v}
	}
	out := make([]cty.Value, 0, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		_, ev := it.Element()
		out = append(out, ev)
	}
	return out
}

func translateKwargs(v cty.Value) ([]*config.Kwarg, error) {
	if !config.IsSet(v) {
		return nil, nil
	}
	ty := v.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("kwargs must be an object, got %s", ty.FriendlyName())
	}
	vals := v.AsValueMap()
	out := make([]*config.Kwarg, 0, len(vals))
	for _, name := range slices.Sorted(maps.Keys(vals)) {
		out = append(out, config.NewKwarg(name, vals[name]))
	}
	return out, nil
}

func translateExtra(v cty.Value) (map[string]string, error) {
	if !config.IsSet(v) {
		return nil, nil
	}
	ty := v.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("extra must be an object, got %s", ty.FriendlyName())
	}
	out := map[string]string{}
	for k, ev := range v.AsValueMap() {
		s, err := convert.Convert(ev, cty.String)
		if err != nil {
			return nil, fmt.Errorf("extra %q: %w", k, err)
		}
		if s.IsNull() {
			continue
		}
		out[k] = s.AsString()
	}
	return out, nil
}
