package mapping

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/fault"
)

// Rule produces one output dim from a source dataset.
type Rule interface {
	// OutputDim is the canonical dim the rule produces.
	OutputDim() string
	// Consumes lists the native dims the rule takes from the source.
	Consumes() []string
	isRule()
}

// Rename renames a native dim 1:1. Coordinate values pass through.
type Rename struct {
	Dim  string
	From string
}

// Stack combines native dims, in order, into one dim whose members are the
// tuples of their Cartesian product, the first dim varying slowest.
type Stack struct {
	Dim  string
	Dims []string
}

// StackVariablesByVarName folds the variable axis into a new dim. For every
// variable and every combination of values along Dims, a member name is
// generated from NameFormat by substituting {var_name} and {<dim>}. Dims
// are then dropped. With no Dims this is a plain rename of each variable.
type StackVariablesByVarName struct {
	Dim        string
	Dims       []string
	NameFormat string
}

func (r Rename) OutputDim() string                  { return r.Dim }
func (r Stack) OutputDim() string                   { return r.Dim }
func (r StackVariablesByVarName) OutputDim() string { return r.Dim }

func (r Rename) Consumes() []string                  { return []string{r.From} }
func (r Stack) Consumes() []string                   { return r.Dims }
func (r StackVariablesByVarName) Consumes() []string { return r.Dims }

func (Rename) isRule()                  {}
func (Stack) isRule()                   {}
func (StackVariablesByVarName) isRule() {}

var formatToken = regexp.MustCompile(`\{([^{}]*)\}`)

// tokens returns the placeholder names used in the format, in order.
func (r StackVariablesByVarName) tokens() []string {
	var out []string
	for _, m := range formatToken.FindAllStringSubmatch(r.NameFormat, -1) {
		out = append(out, m[1])
	}
	return out
}

func (r StackVariablesByVarName) check() error {
	toks := r.tokens()
	if !slices.Contains(toks, "var_name") {
		return fault.New(fault.Configuration, "name_format %q must contain {var_name}", r.NameFormat).WithDim(r.Dim)
	}
	for _, tok := range toks {
		if tok != "var_name" && !slices.Contains(r.Dims, tok) {
			return fault.New(fault.Configuration, "name_format %q uses {%s}, which is not one of the stacked dims %v", r.NameFormat, tok, r.Dims).WithDim(r.Dim)
		}
	}
	return nil
}

// FromConfig converts a configured dim mapping into its Rule.
func FromConfig(m *config.DimMapping) (Rule, error) {
	switch m.Method {
	case config.MethodRename:
		if m.From == "" {
			return nil, fault.New(fault.Configuration, "rename needs the source dim").WithDim(m.Dim)
		}
		return Rename{Dim: m.Dim, From: m.From}, nil
	case config.MethodStack:
		if len(m.Dims) == 0 {
			return nil, fault.New(fault.Configuration, "stack needs at least one dim").WithDim(m.Dim)
		}
		return Stack{Dim: m.Dim, Dims: slices.Clone(m.Dims)}, nil
	case config.MethodStackVariablesByVarName:
		r := StackVariablesByVarName{Dim: m.Dim, Dims: slices.Clone(m.Dims), NameFormat: m.NameFormat}
		if err := r.check(); err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, fault.New(fault.Configuration, "unknown mapping method %q", m.Method).WithDim(m.Dim)
}

// Rules converts every dim mapping of an input.
func Rules(mappings []*config.DimMapping) ([]Rule, error) {
	out := make([]Rule, 0, len(mappings))
	for _, m := range mappings {
		r, err := FromConfig(m)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func describe(r Rule) string {
	switch r := r.(type) {
	case Rename:
		return fmt.Sprintf("rename(%s)", r.From)
	case Stack:
		return fmt.Sprintf("stack(%v)", r.Dims)
	case StackVariablesByVarName:
		return fmt.Sprintf("stack_variables_by_var_name(%v, %q)", r.Dims, r.NameFormat)
	}
	panic(fmt.Sprintf("mapping: unknown rule %T", r))
}
