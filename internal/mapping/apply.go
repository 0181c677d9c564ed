package mapping

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/fault"
)

// Apply maps ds onto the dims of target. The result holds a single data
// variable named after target, laid over target.Dims in that order, plus
// the non-index coordinates that survive the mapping. ds is not modified.
//
// The index along the variable-stacking dim carries the aux columns
// <dim>_units and <dim>_long_name, taken from each source variable's
// attributes (empty when absent).
func Apply(ctx context.Context, ds *dataset.Dataset, rules []Rule, target *config.OutputVariable) (*dataset.Dataset, error) {
	logger := ctxlog.FromContext(ctx)

	byName, err := checkRules(ds, rules, target)
	if err != nil {
		return nil, err
	}
	out := ds.Clone()

	for _, r := range rules {
		switch r := r.(type) {
		case Rename:
			if err := out.RenameDim(r.From, r.Dim); err != nil {
				return nil, fault.Wrap(fault.Configuration, err, "rename failed").WithDim(r.Dim)
			}
		case Stack:
			if err := out.Stack(r.Dim, r.Dims); err != nil {
				return nil, fault.Wrap(fault.Configuration, err, "stack failed").WithDim(r.Dim)
			}
		case StackVariablesByVarName:
			// applied last, once every other output dim exists
		default:
			panic(fmt.Sprintf("mapping: unknown rule %T", r))
		}
		logger.Debug("Applied dim mapping.", "dim", r.OutputDim(), "rule", describe(r))
	}

	result, err := stackVariables(out, byName, target)
	if err != nil {
		return nil, err
	}
	logger.Debug("Applied dim mapping.", "dim", byName.Dim, "rule", describe(byName), "members", result.Size(byName.Dim))
	return result, nil
}

// checkRules verifies that the rules cover target exactly, that every dim
// they consume exists, and that no variable spans a dim left unconsumed.
func checkRules(ds *dataset.Dataset, rules []Rule, target *config.OutputVariable) (StackVariablesByVarName, error) {
	var byName []StackVariablesByVarName
	covered := map[string]int{}
	consumed := map[string]bool{}
	for _, r := range rules {
		if !slices.Contains(target.Dims, r.OutputDim()) {
			return StackVariablesByVarName{}, fault.New(fault.Configuration,
				"mapped dim is not a dim of output variable %q %v", target.Name, target.Dims).WithDim(r.OutputDim())
		}
		covered[r.OutputDim()]++
		for _, d := range r.Consumes() {
			if !ds.HasDim(d) {
				return StackVariablesByVarName{}, fault.New(fault.Configuration,
					"%s uses dim %q, which the source does not have (dims %v)", describe(r), d, ds.Dims).WithDim(r.OutputDim())
			}
			consumed[d] = true
		}
		if s, ok := r.(StackVariablesByVarName); ok {
			byName = append(byName, s)
		}
	}
	for _, d := range target.Dims {
		if covered[d] != 1 {
			return StackVariablesByVarName{}, fault.New(fault.Configuration,
				"output dim must be produced by exactly one mapping, found %d", covered[d]).WithDim(d)
		}
	}
	if len(byName) != 1 {
		return StackVariablesByVarName{}, fault.New(fault.Configuration,
			"exactly one %s mapping is required, found %d", config.MethodStackVariablesByVarName, len(byName))
	}
	for _, v := range ds.Vars {
		for _, d := range v.Dims {
			if !consumed[d] {
				return StackVariablesByVarName{}, fault.New(fault.Configuration,
					"variable spans dim %q, which no mapping consumes", d).WithVariable(v.Name)
			}
		}
	}
	return byName[0], nil
}

// stackVariables folds every data variable of ds into members of r.Dim.
func stackVariables(ds *dataset.Dataset, r StackVariablesByVarName, target *config.OutputVariable) (*dataset.Dataset, error) {
	rest := slices.DeleteFunc(slices.Clone(target.Dims), func(d string) bool { return d == r.Dim })
	for _, d := range rest {
		if !ds.HasDim(d) {
			return nil, fault.New(fault.Configuration, "output dim was not produced by any mapping").WithDim(d)
		}
	}

	var (
		parts     []*dataset.Variable
		names     []dataset.Label
		units     []dataset.Label
		longNames []dataset.Label
		seen      = map[string]string{}
	)
	for _, v := range ds.Vars {
		for _, d := range r.Dims {
			if !v.Has(d) {
				return nil, fault.New(fault.Configuration, "variable does not span stacked dim %q", d).WithVariable(v.Name).WithDim(r.Dim)
			}
		}
		sizes := ds.Shape(r.Dims)
		combos := 1
		for _, n := range sizes {
			combos *= n
		}
		for c := 0; c < combos; c++ {
			slice := v
			subst := map[string]string{"var_name": v.Name}
			rem := c
			for k := len(r.Dims) - 1; k >= 0; k-- {
				d := r.Dims[k]
				p := rem % sizes[k]
				rem /= sizes[k]
				subst[d] = ds.Index(d).Labels[p].String()
				slice = slice.Take(d, []int{p})
			}
			name := r.format(subst)
			if prev, dup := seen[name]; dup {
				return nil, fault.New(fault.DuplicateAxisMember,
					"member %q is generated by both %q and %q; adjust name_format %q", name, prev, v.Name, r.NameFormat).WithDim(r.Dim)
			}
			seen[name] = v.Name

			part, err := asMember(ds, slice, r, rest)
			if err != nil {
				return nil, fault.Wrap(fault.Configuration, err, "cannot lay variable over %v", target.Dims).WithVariable(v.Name)
			}
			parts = append(parts, part)
			names = append(names, dataset.String(name))
			units = append(units, dataset.String(v.Attrs["units"]))
			longNames = append(longNames, dataset.String(v.Attrs["long_name"]))
		}
	}
	if len(parts) == 0 {
		return nil, fault.New(fault.Configuration, "source has no variables to stack").WithDim(r.Dim)
	}

	joined, err := dataset.Concat(r.Dim, parts...)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, err, "stacking variables failed").WithDim(r.Dim)
	}
	joined, err = joined.Transpose(target.Dims)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, err, "stacking variables failed").WithDim(r.Dim)
	}
	joined.Name = target.Name
	joined.Attrs = map[string]string{}

	members := dataset.NewIndex(r.Dim, names)
	for _, aux := range []struct {
		name string
		col  []dataset.Label
	}{{r.Dim + "_units", units}, {r.Dim + "_long_name", longNames}} {
		if err := members.SetAux(aux.name, aux.col); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "recording member metadata failed").WithDim(r.Dim)
		}
	}

	out := dataset.New()
	maps.Copy(out.Attrs, ds.Attrs)
	for _, d := range target.Dims {
		ix := members
		if d != r.Dim {
			ix = ds.Index(d)
		}
		if err := out.SetIndex(ix); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "building mapped dataset failed").WithDim(d)
		}
	}
	if err := out.AddVariable(joined); err != nil {
		return nil, fault.Wrap(fault.Configuration, err, "building mapped dataset failed")
	}
	for _, c := range ds.Coords {
		if slices.ContainsFunc(c.Dims, func(d string) bool { return !slices.Contains(rest, d) }) {
			continue
		}
		if err := out.AddCoord(c); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "building mapped dataset failed").WithVariable(c.Name)
		}
	}
	return out, nil
}

// asMember drops the stacked dims from v, broadcasts it over the remaining
// output dims and gives it a unit-length axis along r.Dim.
func asMember(ds *dataset.Dataset, v *dataset.Variable, r StackVariablesByVarName, rest []string) (*dataset.Variable, error) {
	dropped := v.Clone()
	for _, d := range r.Dims {
		a := dropped.Axis(d)
		dropped.Dims = slices.Delete(dropped.Dims, a, a+1)
		dropped.Shape = slices.Delete(dropped.Shape, a, a+1)
	}
	b, err := dropped.Broadcast(rest, ds.Shape(rest))
	if err != nil {
		return nil, err
	}
	b.Dims = append(b.Dims, r.Dim)
	b.Shape = append(b.Shape, 1)
	return b, nil
}

func (r StackVariablesByVarName) format(subst map[string]string) string {
	return formatToken.ReplaceAllStringFunc(r.NameFormat, func(tok string) string {
		return subst[strings.Trim(tok, "{}")]
	})
}
