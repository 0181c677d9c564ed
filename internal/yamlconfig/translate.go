package yamlconfig

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/vk/dataprep/internal/config"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

type file struct {
	SchemaVersion  string    `yaml:"schema_version"`
	DatasetVersion string    `yaml:"dataset_version"`
	Extra          yaml.Node `yaml:"extra"`
	Output         *output   `yaml:"output"`
	Inputs         yaml.Node `yaml:"inputs"`
}

type output struct {
	Variables   yaml.Node             `yaml:"variables"`
	CoordRanges map[string]*rangeSpec `yaml:"coord_ranges"`
	Chunking    map[string]int        `yaml:"chunking"`
	Splitting   *splitting            `yaml:"splitting"`
}

type rangeSpec struct {
	Start yaml.Node `yaml:"start"`
	End   yaml.Node `yaml:"end"`
	Step  yaml.Node `yaml:"step"`
}

type splitting struct {
	Dim    string    `yaml:"dim"`
	Splits yaml.Node `yaml:"splits"`
}

type split struct {
	Start             yaml.Node   `yaml:"start"`
	End               yaml.Node   `yaml:"end"`
	ComputeStatistics *statistics `yaml:"compute_statistics"`
}

type statistics struct {
	Ops  []string `yaml:"ops"`
	Dims []string `yaml:"dims"`
}

type input struct {
	Path                 string               `yaml:"path"`
	Dims                 []string             `yaml:"dims"`
	Variables            yaml.Node            `yaml:"variables"`
	DerivedVariables     yaml.Node            `yaml:"derived_variables"`
	DimMapping           yaml.Node            `yaml:"dim_mapping"`
	TargetOutputVariable string               `yaml:"target_output_variable"`
	Attributes           map[string]yaml.Node `yaml:"attributes"`
}

type selection struct {
	Values yaml.Node `yaml:"values"`
	Units  string    `yaml:"units"`
}

type dimMapping struct {
	Method     string   `yaml:"method"`
	Dim        string   `yaml:"dim"`
	Dims       []string `yaml:"dims"`
	NameFormat string   `yaml:"name_format"`
}

type derivedVariable struct {
	Function string            `yaml:"function"`
	Kwargs   yaml.Node         `yaml:"kwargs"`
	Attrs    map[string]string `yaml:"attrs"`
}

// pair is one key/value entry of a mapping node, in document order.
type pair struct {
	key   string
	value *yaml.Node
}

func entries(n *yaml.Node, what string) ([]pair, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: %s must be a mapping", n.Line, what)
	}
	out := make([]pair, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out = append(out, pair{key: n.Content[i].Value, value: n.Content[i+1]})
	}
	return out, nil
}

func (f *file) translate() (*config.Config, error) {
	cfg := &config.Config{SchemaVersion: f.SchemaVersion, DatasetVersion: f.DatasetVersion}
	if f.Output == nil {
		return nil, fmt.Errorf("output is required")
	}

	extra, err := entries(&f.Extra, "extra")
	if err != nil {
		return nil, err
	}
	for _, e := range extra {
		if cfg.Extra == nil {
			cfg.Extra = map[string]string{}
		}
		cfg.Extra[e.key] = e.value.Value
	}

	if cfg.Output, err = f.Output.translate(); err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}

	inputs, err := entries(&f.Inputs, "inputs")
	if err != nil {
		return nil, err
	}
	for _, e := range inputs {
		var raw input
		if err := e.value.Decode(&raw); err != nil {
			return nil, fmt.Errorf("input %q: %w", e.key, err)
		}
		in, err := raw.translate(e.key)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", e.key, err)
		}
		cfg.Inputs = append(cfg.Inputs, in)
	}
	return cfg, nil
}

func (o *output) translate() (*config.Output, error) {
	out := &config.Output{Chunking: o.Chunking}
	vars, err := entries(&o.Variables, "variables")
	if err != nil {
		return nil, err
	}
	for _, e := range vars {
		var dims []string
		if err := e.value.Decode(&dims); err != nil {
			return nil, fmt.Errorf("variable %q: %w", e.key, err)
		}
		out.Variables = append(out.Variables, &config.OutputVariable{Name: e.key, Dims: dims})
	}

	for _, dim := range slices.Sorted(maps.Keys(o.CoordRanges)) {
		r, err := o.CoordRanges[dim].translate()
		if err != nil {
			return nil, fmt.Errorf("coord_ranges %q: %w", dim, err)
		}
		if out.CoordRanges == nil {
			out.CoordRanges = map[string]*config.Range{}
		}
		out.CoordRanges[dim] = r
	}

	if o.Splitting != nil {
		out.Splitting = &config.Splitting{Dim: o.Splitting.Dim}
		splits, err := entries(&o.Splitting.Splits, "splits")
		if err != nil {
			return nil, err
		}
		for _, e := range splits {
			var raw split
			if err := e.value.Decode(&raw); err != nil {
				return nil, fmt.Errorf("split %q: %w", e.key, err)
			}
			s := &config.Split{Name: e.key}
			if s.Start, err = scalar(&raw.Start); err != nil {
				return nil, fmt.Errorf("split %q start: %w", e.key, err)
			}
			if s.End, err = scalar(&raw.End); err != nil {
				return nil, fmt.Errorf("split %q end: %w", e.key, err)
			}
			if st := raw.ComputeStatistics; st != nil {
				s.Statistics = &config.Statistics{Ops: st.Ops, Dims: st.Dims}
			}
			out.Splitting.Splits = append(out.Splitting.Splits, s)
		}
	}
	return out, nil
}

func (r *rangeSpec) translate() (*config.Range, error) {
	out := &config.Range{}
	var err error
	if out.Start, err = scalar(&r.Start); err != nil {
		return nil, err
	}
	if out.End, err = scalar(&r.End); err != nil {
		return nil, err
	}
	if out.Step, err = scalar(&r.Step); err != nil {
		return nil, err
	}
	return out, nil
}

func (in *input) translate(name string) (*config.Input, error) {
	out := &config.Input{
		Name:                 name,
		Path:                 in.Path,
		Dims:                 in.Dims,
		TargetOutputVariable: in.TargetOutputVariable,
	}
	for k, v := range in.Attributes {
		if out.Attributes == nil {
			out.Attributes = map[string]string{}
		}
		out.Attributes[k] = v.Value
	}

	var err error
	if out.Variables, err = translateVariables(&in.Variables); err != nil {
		return nil, err
	}

	derived, err := entries(&in.DerivedVariables, "derived_variables")
	if err != nil {
		return nil, err
	}
	for _, e := range derived {
		var raw derivedVariable
		if err := e.value.Decode(&raw); err != nil {
			return nil, fmt.Errorf("derived variable %q: %w", e.key, err)
		}
		dv := &config.DerivedVariable{Name: e.key, Function: raw.Function, Attrs: raw.Attrs}
		kwargs, err := entries(&raw.Kwargs, "kwargs")
		if err != nil {
			return nil, err
		}
		for _, kw := range kwargs {
			v, err := scalar(kw.value)
			if err != nil {
				return nil, fmt.Errorf("derived variable %q kwarg %q: %w", e.key, kw.key, err)
			}
			dv.Kwargs = append(dv.Kwargs, config.NewKwarg(kw.key, v))
		}
		slices.SortFunc(dv.Kwargs, func(a, b *config.Kwarg) int { return strings.Compare(a.Name, b.Name) })
		out.DerivedVariables = append(out.DerivedVariables, dv)
	}

	mappings, err := entries(&in.DimMapping, "dim_mapping")
	if err != nil {
		return nil, err
	}
	for _, e := range mappings {
		var raw dimMapping
		if err := e.value.Decode(&raw); err != nil {
			return nil, fmt.Errorf("dim_mapping %q: %w", e.key, err)
		}
		out.DimMapping = append(out.DimMapping, &config.DimMapping{
			Dim:        e.key,
			Method:     raw.Method,
			From:       raw.Dim,
			Dims:       raw.Dims,
			NameFormat: unquoteFormat(raw.NameFormat),
		})
	}
	return out, nil
}

// translateVariables accepts either a list of bare names or a mapping from
// name to per-dim selections.
func translateVariables(n *yaml.Node) ([]*config.VariableRequest, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.SequenceNode:
		var names []string
		if err := n.Decode(&names); err != nil {
			return nil, fmt.Errorf("variables: %w", err)
		}
		out := make([]*config.VariableRequest, len(names))
		for i, name := range names {
			out[i] = &config.VariableRequest{Name: name}
		}
		return out, nil
	}

	vars, err := entries(n, "variables")
	if err != nil {
		return nil, err
	}
	var out []*config.VariableRequest
	for _, e := range vars {
		req := &config.VariableRequest{Name: e.key}
		var sels []pair
		if e.value.Kind != yaml.ScalarNode || e.value.ShortTag() != "!!null" {
			if sels, err = entries(e.value, fmt.Sprintf("variable %q", e.key)); err != nil {
				return nil, err
			}
		}
		for _, s := range sels {
			var raw selection
			if err := s.value.Decode(&raw); err != nil {
				return nil, fmt.Errorf("variable %q selection %q: %w", e.key, s.key, err)
			}
			sel, err := raw.translate(s.key)
			if err != nil {
				return nil, fmt.Errorf("variable %q: %w", e.key, err)
			}
			req.Selections = append(req.Selections, sel)
		}
		out = append(out, req)
	}
	return out, nil
}

func (s *selection) translate(dim string) (*config.Selection, error) {
	out := &config.Selection{Dim: dim, Units: s.Units}
	switch s.Values.Kind {
	case yaml.SequenceNode:
		for _, item := range s.Values.Content {
			v, err := scalar(item)
			if err != nil {
				return nil, fmt.Errorf("selection %q: %w", dim, err)
			}
			out.Values = append(out.Values, v)
		}
	case yaml.MappingNode:
		var r rangeSpec
		if err := s.Values.Decode(&r); err != nil {
			return nil, fmt.Errorf("selection %q: %w", dim, err)
		}
		rng, err := r.translate()
		if err != nil {
			return nil, fmt.Errorf("selection %q: %w", dim, err)
		}
		out.Range = rng
	case yaml.ScalarNode:
		v, err := scalar(&s.Values)
		if err != nil {
			return nil, fmt.Errorf("selection %q: %w", dim, err)
		}
		if config.IsSet(v) {
			out.Values = []cty.Value{v}
		}
	}
	return out, nil
}

// scalar converts a YAML scalar into a cty value. Numbers become cty.Number;
// timestamps and every other scalar keep their literal text. An absent node
// yields cty.NilVal.
func scalar(n *yaml.Node) (cty.Value, error) {
	if n == nil || n.Kind == 0 {
		return cty.NilVal, nil
	}
	if n.Kind != yaml.ScalarNode {
		return cty.NilVal, fmt.Errorf("line %d: expected a scalar value", n.Line)
	}
	switch n.ShortTag() {
	case "!!null":
		return cty.NilVal, nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return cty.NilVal, err
		}
		return cty.NumberIntVal(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return cty.NilVal, err
		}
		return cty.NumberFloatVal(f), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return cty.NilVal, err
		}
		return cty.BoolVal(b), nil
	}
	return cty.StringVal(n.Value), nil
}

// unquoteFormat strips a Python f-string wrapper, f"...", which older
// configuration files used around name formats.
func unquoteFormat(s string) string {
	if inner, ok := strings.CutPrefix(s, `f"`); ok {
		if inner, ok = strings.CutSuffix(inner, `"`); ok {
			return inner
		}
	}
	return s
}
