package registry

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/fault"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// ValidateRegistry checks that every registered function is well formed:
// qualified name, an implementation, unique parameters, typed literals and
// defaults that convert to their type.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, name := range r.Names() {
		fn := r.functions[name]
		if !strings.Contains(name, ".") {
			errs = append(errs, fmt.Sprintf("function '%s': name must be qualified by its module, e.g. 'module.function'", name))
		}
		if fn.Fn == nil {
			errs = append(errs, fmt.Sprintf("function '%s': no implementation", name))
		}
		seen := map[string]bool{}
		for _, p := range fn.Params {
			if seen[p.Name] {
				errs = append(errs, fmt.Sprintf("function '%s': parameter '%s' declared twice", name, p.Name))
			}
			seen[p.Name] = true
			switch p.Kind {
			case Field:
				if p.Optional {
					errs = append(errs, fmt.Sprintf("function '%s': field parameter '%s' cannot be optional", name, p.Name))
				}
			case Literal:
				if p.Type == cty.NilType {
					errs = append(errs, fmt.Sprintf("function '%s': literal parameter '%s' has no type", name, p.Name))
					continue
				}
				if p.Type.Equals(cty.DynamicPseudoType) {
					logger.Warn("Function parameter accepts any type, which disables static type checking.", "function", name, "param", p.Name)
				}
				if config.IsSet(p.Default) {
					if _, err := convert.Convert(p.Default, p.Type); err != nil {
						errs = append(errs, fmt.Sprintf("function '%s': default of '%s' is not a %s: %v", name, p.Name, p.Type.FriendlyName(), err))
					}
				}
			default:
				errs = append(errs, fmt.Sprintf("function '%s': parameter '%s' has no kind", name, p.Name))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// ValidateConfig checks every derived variable of cfg against the registry:
// the function exists, required arguments are given, no unknown arguments
// are passed, fields are dataset references and literals convert to their
// declared type.
func (r *Registry) ValidateConfig(ctx context.Context, cfg *config.Config) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, in := range cfg.Inputs {
		for _, dv := range in.DerivedVariables {
			where := fmt.Sprintf("input %q, derived variable %q", in.Name, dv.Name)
			fn, ok := r.Function(dv.Function)
			if !ok {
				errs = append(errs, fmt.Sprintf("%s: unknown function %q (available: %s)", where, dv.Function, strings.Join(r.Names(), ", ")))
				continue
			}
			for _, msg := range checkKwargs(fn, dv.Kwargs) {
				errs = append(errs, where+": "+msg)
			}
			logger.Debug("Derived variable resolved.", "input", in.Name, "variable", dv.Name, "function", fn.Name)
		}
	}

	if len(errs) > 0 {
		return fault.New(fault.Configuration, "derived variable validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func checkKwargs(fn *Function, kwargs []*config.Kwarg) []string {
	var errs []string
	given := map[string]bool{}
	for _, kw := range kwargs {
		given[kw.Name] = true
		p, ok := fn.Param(kw.Name)
		if !ok {
			errs = append(errs, fmt.Sprintf("function %q has no parameter %q", fn.Name, kw.Name))
			continue
		}
		switch p.Kind {
		case Field:
			if !kw.IsRef() {
				errs = append(errs, fmt.Sprintf("argument %q must reference the dataset with %q", kw.Name, config.DatasetRefPrefix))
			}
		case Literal:
			if kw.IsRef() {
				errs = append(errs, fmt.Sprintf("argument %q takes a literal, not a dataset reference", kw.Name))
				continue
			}
			if _, err := convert.Convert(kw.Value, p.Type); err != nil {
				errs = append(errs, fmt.Sprintf("argument %q: must be a %s: %v", kw.Name, p.Type.FriendlyName(), err))
			}
		}
	}
	for _, p := range fn.Params {
		if !p.Optional && !given[p.Name] {
			errs = append(errs, fmt.Sprintf("missing required argument %q", p.Name))
		}
	}
	slices.Sort(errs)
	return errs
}
