package mapping

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/fault"
)

// Invert reverses Apply. The target variable of ds is split back into one
// variable per var_name found in the member names of the variable-stacking
// dim; the values name_format recorded for the stacked dims become those
// dims again. The remaining rules are then undone in reverse order. Every
// member must match name_format, so ds should hold only the members that
// came from the source being recreated. ds is not modified.
func Invert(ctx context.Context, ds *dataset.Dataset, rules []Rule, target *config.OutputVariable) (*dataset.Dataset, error) {
	logger := ctxlog.FromContext(ctx)

	var byName []StackVariablesByVarName
	for _, r := range rules {
		if s, ok := r.(StackVariablesByVarName); ok {
			byName = append(byName, s)
		}
	}
	if len(byName) != 1 {
		return nil, fault.New(fault.Configuration,
			"exactly one %s mapping is required, found %d", config.MethodStackVariablesByVarName, len(byName))
	}
	r := byName[0]

	v, ok := ds.Variable(target.Name)
	if !ok {
		return nil, fault.New(fault.Configuration, "dataset holds no such output variable").WithVariable(target.Name)
	}
	v, err := v.Transpose(target.Dims)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, err, "output variable is not laid over %v", target.Dims).WithVariable(target.Name)
	}

	out, err := unstackVariables(ds, v, r, target)
	if err != nil {
		return nil, err
	}
	logger.Debug("Inverted dim mapping.", "dim", r.Dim, "rule", describe(r), "variables", out.VariableNames())

	for i := len(rules) - 1; i >= 0; i-- {
		switch r := rules[i].(type) {
		case Rename:
			if err := out.RenameDim(r.Dim, r.From); err != nil {
				return nil, fault.Wrap(fault.Configuration, err, "reverting rename failed").WithDim(r.Dim)
			}
		case Stack:
			if ix := out.Index(r.Dim); ix == nil || !slices.Equal(ix.Levels, r.Dims) {
				return nil, fault.New(fault.Configuration, "dim does not record the stacked dims %v", r.Dims).WithDim(r.Dim)
			}
			if err := out.Unstack(r.Dim); err != nil {
				return nil, fault.Wrap(fault.Configuration, err, "reverting stack failed").WithDim(r.Dim)
			}
		case StackVariablesByVarName:
			continue
		default:
			panic(fmt.Sprintf("mapping: unknown rule %T", r))
		}
		logger.Debug("Inverted dim mapping.", "dim", rules[i].OutputDim(), "rule", describe(rules[i]))
	}
	return out, nil
}

// unstackVariables turns the members of r.Dim back into variables over the
// other output dims plus r.Dims. Level combinations that no member names
// are NaN.
func unstackVariables(ds *dataset.Dataset, v *dataset.Variable, r StackVariablesByVarName, target *config.OutputVariable) (*dataset.Dataset, error) {
	members := ds.Index(r.Dim)
	if members == nil {
		return nil, fault.New(fault.Configuration, "dataset has no variable-stacking dim").WithDim(r.Dim)
	}
	parsed, err := r.parseMembers(members)
	if err != nil {
		return nil, err
	}

	// r.Dim doubles as the first level, holding the variable names.
	stacked := make([]dataset.Label, members.Len())
	for i, p := range parsed {
		stacked[i] = dataset.Tuple(append([]dataset.Label{dataset.String(p.varName)}, p.levels...)...)
	}
	grid := dataset.New()
	for _, d := range target.Dims {
		var ix *dataset.Index
		switch {
		case d == r.Dim:
			ix = dataset.NewIndex(r.Dim, stacked)
			ix.Levels = append([]string{r.Dim}, r.Dims...)
		case ds.HasDim(d):
			ix = ds.Index(d).Clone()
		default:
			return nil, fault.New(fault.Configuration, "dataset lacks output dim").WithDim(d)
		}
		if err := grid.SetIndex(ix); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "cannot lay out members").WithDim(d)
		}
	}
	if err := grid.AddVariable(v.Clone()); err != nil {
		return nil, fault.Wrap(fault.Configuration, err, "cannot lay out members").WithVariable(v.Name)
	}
	if err := grid.Unstack(r.Dim); err != nil {
		return nil, fault.Wrap(fault.Configuration, err, "cannot split members into variables").WithDim(r.Dim)
	}

	out := dataset.New()
	maps.Copy(out.Attrs, ds.Attrs)
	for _, d := range grid.Dims {
		if d == r.Dim {
			continue
		}
		if err := out.SetIndex(grid.Index(d)); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "cannot lay out members").WithDim(d)
		}
	}
	all, _ := grid.Variable(v.Name)
	for i, name := range grid.Index(r.Dim).Labels {
		part, err := all.Take(r.Dim, []int{i}).Squeeze(r.Dim)
		if err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "cannot split members into variables").WithDim(r.Dim)
		}
		part.Name = name.Str()
		part.Attrs = memberAttrs(members, r.Dim, slices.IndexFunc(parsed, func(p member) bool { return p.varName == part.Name }))
		if err := out.AddVariable(part); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "cannot split members into variables").WithVariable(part.Name)
		}
	}
	for _, c := range ds.Coords {
		if slices.ContainsFunc(c.Dims, func(d string) bool { return !out.HasDim(d) }) {
			continue
		}
		if err := out.AddCoord(c.Clone()); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "cannot carry coordinate").WithVariable(c.Name)
		}
	}
	return out, nil
}

// memberAttrs recovers units and long_name from the aux columns Apply wrote.
func memberAttrs(members *dataset.Index, dim string, pos int) map[string]string {
	attrs := map[string]string{}
	for key, col := range map[string]string{"units": dim + "_units", "long_name": dim + "_long_name"} {
		if vals, ok := members.Aux[col]; ok && vals[pos].Kind() == dataset.KindString && vals[pos].Str() != "" {
			attrs[key] = vals[pos].Str()
		}
	}
	return attrs
}

type member struct {
	varName string
	levels  []dataset.Label
}

// parseMembers reads var_name and the stacked dim values out of every
// member name. Each stacked dim takes numbers if all its values parse as
// numbers, else times, else strings.
func (r StackVariablesByVarName) parseMembers(members *dataset.Index) ([]member, error) {
	re, toks, err := r.pattern()
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, err, "cannot invert name_format %q", r.NameFormat).WithDim(r.Dim)
	}
	for _, d := range r.Dims {
		if !slices.Contains(toks, d) {
			return nil, fault.New(fault.Configuration, "name_format %q does not record {%s}, so its values cannot be recovered", r.NameFormat, d).WithDim(r.Dim)
		}
	}

	raw := make([][]string, len(r.Dims))
	out := make([]member, members.Len())
	for i, l := range members.Labels {
		if l.Kind() != dataset.KindString {
			return nil, fault.New(fault.Configuration, "member %s is not a name", l).WithDim(r.Dim)
		}
		match := re.FindStringSubmatch(l.Str())
		if match == nil {
			return nil, fault.New(fault.Configuration, "member %q does not match name_format %q", l.Str(), r.NameFormat).WithDim(r.Dim)
		}
		values := map[string]string{}
		for k, tok := range toks {
			if prev, ok := values[tok]; ok && prev != match[k+1] {
				return nil, fault.New(fault.Configuration, "member %q gives {%s} both %q and %q", l.Str(), tok, prev, match[k+1]).WithDim(r.Dim)
			}
			values[tok] = match[k+1]
		}
		out[i].varName = values["var_name"]
		for k, d := range r.Dims {
			raw[k] = append(raw[k], values[d])
		}
	}
	for k := range r.Dims {
		labels := levelLabels(raw[k])
		for i := range out {
			out[i].levels = append(out[i].levels, labels[i])
		}
	}
	return out, nil
}

// pattern compiles NameFormat into an anchored expression with one group
// per placeholder, and returns the placeholder names in group order.
func (r StackVariablesByVarName) pattern() (*regexp.Regexp, []string, error) {
	var b strings.Builder
	b.WriteString("^")
	last := 0
	for _, loc := range formatToken.FindAllStringIndex(r.NameFormat, -1) {
		b.WriteString(regexp.QuoteMeta(r.NameFormat[last:loc[0]]))
		b.WriteString("(.+?)")
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(r.NameFormat[last:]))
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	return re, r.tokens(), err
}

func levelLabels(vals []string) []dataset.Label {
	out := make([]dataset.Label, len(vals))
	numbers := true
	for i, s := range vals {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			numbers = false
			break
		}
		out[i] = dataset.Number(f)
	}
	if numbers {
		return out
	}
	times := true
	for i, s := range vals {
		t, err := dataset.ParseTime(s)
		if err != nil {
			times = false
			break
		}
		out[i] = dataset.Time(t)
	}
	if times {
		return out
	}
	return dataset.Strings(vals...)
}
