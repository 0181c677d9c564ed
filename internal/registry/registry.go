package registry

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/vk/dataprep/internal/dataset"
	"github.com/zclconf/go-cty/cty"
)

// Module is the interface that all function modules must implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// ParamKind tells how an argument is supplied.
type ParamKind int

const (
	// Field arguments reference a variable or coordinate of the source
	// dataset with the "ds_input." prefix.
	Field ParamKind = iota + 1
	// Literal arguments are plain configuration values.
	Literal
)

func (k ParamKind) String() string {
	switch k {
	case Field:
		return "field"
	case Literal:
		return "literal"
	}
	return "invalid"
}

// Param declares one function parameter.
type Param struct {
	Name string
	Kind ParamKind
	// Type is the cty type a literal is converted to.
	Type     cty.Type
	Optional bool
	// Default is used for an omitted optional literal.
	Default cty.Value
}

// Func computes a derived variable. The returned variable may span any
// subset of the dataset's dims.
type Func func(ctx context.Context, args *Args) (*dataset.Variable, error)

// Function is a registered derived-variable function.
type Function struct {
	Name   string
	Params []Param
	// Attrs are the default attributes of the result.
	Attrs map[string]string
	Fn    Func
}

// Param returns the parameter called name.
func (f *Function) Param(name string) (Param, bool) {
	i := slices.IndexFunc(f.Params, func(p Param) bool { return p.Name == name })
	if i < 0 {
		return Param{}, false
	}
	return f.Params[i], true
}

// Registry holds all the registered functions of a single application
// instance.
type Registry struct {
	functions map[string]*Function
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{functions: make(map[string]*Function)}
}

// RegisterFunction adds fn under its name. Registering a name twice is a
// programming error and panics.
func (r *Registry) RegisterFunction(fn *Function) {
	if _, exists := r.functions[fn.Name]; exists {
		panic(fmt.Sprintf("function with name '%s' already registered", fn.Name))
	}
	slog.Debug("Registering derived variable function.", "name", fn.Name, "params", len(fn.Params))
	r.functions[fn.Name] = fn
}

// Function looks up a function by its fully-qualified name.
func (r *Registry) Function(name string) (*Function, bool) {
	fn, ok := r.functions[name]
	return fn, ok
}

// Names lists the registered function names in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.functions))
}
