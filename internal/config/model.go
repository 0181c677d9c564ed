package config

import (
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Supported schema versions.
const (
	SchemaV020 = "v0.2.0"
	SchemaV050 = "v0.5.0"
)

// SupportedSchemaVersions lists the accepted values of Config.SchemaVersion.
var SupportedSchemaVersions = []string{SchemaV020, SchemaV050}

// DatasetRefPrefix marks a derived-variable argument that refers to a
// variable or coordinate of the input dataset rather than a literal.
const DatasetRefPrefix = "ds_input."

// Mapping methods.
const (
	MethodRename                  = "rename"
	MethodStack                   = "stack"
	MethodStackVariablesByVarName = "stack_variables_by_var_name"
)

// Config is the unified, format-agnostic representation of a dataset build.
type Config struct {
	SchemaVersion  string
	DatasetVersion string
	// Inputs are kept in declaration order, which is the merge order.
	Inputs []*Input
	Output *Output
	// Extra is free-form metadata copied onto the written dataset.
	Extra map[string]string
}

// Input describes one source dataset.
type Input struct {
	Name                 string
	Path                 string
	Dims                 []string
	Variables            []*VariableRequest
	DerivedVariables     []*DerivedVariable
	DimMapping           []*DimMapping
	TargetOutputVariable string
	// Attributes the opened dataset must carry with exactly these values.
	Attributes map[string]string
}

// VariableRequest names a variable to take from the source, optionally
// restricted along some of its dims.
type VariableRequest struct {
	Name string
	// Units, when set, must equal the variable's recorded units.
	Units      string
	Selections []*Selection
}

// Selection restricts one dim either to a list of values or to a range.
type Selection struct {
	Dim    string
	Values []cty.Value
	Range  *Range
	// Units, when set, must equal the recorded units of the coordinate.
	Units string
}

// Range is an inclusive coordinate range with an optional expected step.
// Step is cty.NilVal when absent.
type Range struct {
	Start cty.Value
	End   cty.Value
	Step  cty.Value
}

// HasStep reports whether an expected step was configured.
func (r *Range) HasStep() bool { return IsSet(r.Step) }

// DerivedVariable is a variable computed by a registered function.
type DerivedVariable struct {
	Name     string
	Function string
	// Kwargs are kept sorted by name.
	Kwargs []*Kwarg
	Attrs  map[string]string
}

// Kwarg is one function argument: a reference into the input dataset, or a
// literal value.
type Kwarg struct {
	Name  string
	Ref   string
	Value cty.Value
}

// IsRef reports whether the argument refers to the input dataset.
func (k *Kwarg) IsRef() bool { return k.Ref != "" }

// NewKwarg interprets a raw argument value, recognising dataset references.
func NewKwarg(name string, v cty.Value) *Kwarg {
	if IsSet(v) && v.Type() == cty.String {
		if ref, ok := strings.CutPrefix(v.AsString(), DatasetRefPrefix); ok {
			return &Kwarg{Name: name, Ref: ref}
		}
	}
	return &Kwarg{Name: name, Value: v}
}

// DimMapping is the rule producing one output dimension.
type DimMapping struct {
	Dim        string
	Method     string
	From       string
	Dims       []string
	NameFormat string
}

// Output describes the merged dataset.
type Output struct {
	// Variables are kept in declaration order.
	Variables   []*OutputVariable
	CoordRanges map[string]*Range
	Chunking    map[string]int
	Splitting   *Splitting
}

// OutputVariable is one canonical output variable and its dims.
type OutputVariable struct {
	Name string
	Dims []string
}

// Variable returns the output variable called name.
func (o *Output) Variable(name string) *OutputVariable {
	for _, v := range o.Variables {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// Splitting partitions the output along one dim.
type Splitting struct {
	Dim    string
	Splits []*Split
}

// Split is a named half-open range [Start, End) along the split dim.
type Split struct {
	Name       string
	Start      cty.Value
	End        cty.Value
	Statistics *Statistics
}

// Statistics requests reductions of every variable over Dims. Ops prefixed
// with "diff_" reduce the first difference along the split dim.
type Statistics struct {
	Ops  []string
	Dims []string
}

// IsSet reports whether v holds a known, non-null value.
func IsSet(v cty.Value) bool {
	return v.Type() != cty.NilType && v.IsKnown() && !v.IsNull()
}
