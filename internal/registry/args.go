package registry

import (
	"fmt"
	"time"

	"github.com/vk/dataprep/internal/cftime"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Args carries resolved arguments into a Func. Arguments have been checked
// against the function's parameters, so accessors panic on names the
// function did not declare.
type Args struct {
	fields   map[string]*dataset.Variable
	literals map[string]cty.Value
}

// NewArgs creates an empty argument set.
func NewArgs() *Args {
	return &Args{fields: map[string]*dataset.Variable{}, literals: map[string]cty.Value{}}
}

// SetField binds a dataset variable to a field parameter.
func (a *Args) SetField(name string, v *dataset.Variable) { a.fields[name] = v }

// SetLiteral binds a converted value to a literal parameter.
func (a *Args) SetLiteral(name string, v cty.Value) { a.literals[name] = v }

// Field returns the variable bound to name.
func (a *Args) Field(name string) *dataset.Variable {
	v, ok := a.fields[name]
	if !ok {
		panic(fmt.Sprintf("registry: field argument %q not bound", name))
	}
	return v
}

// Literal returns the value bound to name.
func (a *Args) Literal(name string) cty.Value {
	v, ok := a.literals[name]
	if !ok {
		panic(fmt.Sprintf("registry: literal argument %q not bound", name))
	}
	return v
}

// String returns a string literal.
func (a *Args) String(name string) (string, error) {
	var s string
	if err := gocty.FromCtyValue(a.Literal(name), &s); err != nil {
		return "", fmt.Errorf("argument %q: %w", name, err)
	}
	return s, nil
}

// Float returns a numeric literal.
func (a *Args) Float(name string) (float64, error) {
	var f float64
	if err := gocty.FromCtyValue(a.Literal(name), &f); err != nil {
		return 0, fmt.Errorf("argument %q: %w", name, err)
	}
	return f, nil
}

// Times decodes a field holding CF-encoded times, e.g. the time coordinate.
func (a *Args) Times(name string) ([]time.Time, error) {
	v := a.Field(name)
	units, ok := v.Attrs["units"]
	if !ok {
		return nil, fmt.Errorf("argument %q: variable %q records no time units", name, v.Name)
	}
	u, err := cftime.ParseUnits(units)
	if err != nil {
		return nil, fmt.Errorf("argument %q: %w", name, err)
	}
	return u.Decode(v.Data), nil
}
