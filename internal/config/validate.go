package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/vk/dataprep/internal/fault"
)

// StatisticOps are the reductions a split may request. Each may also be
// requested with DiffPrefix.
var StatisticOps = []string{"mean", "std", "var", "min", "max", "sum"}

// DiffPrefix marks a statistic computed on first differences.
const DiffPrefix = "diff_"

// Validate performs the structural checks that need no data: references
// between sections, coverage of output dims by mapping rules, and the
// well-formedness of splits. All problems are reported together.
func Validate(cfg *Config) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !slices.Contains(SupportedSchemaVersions, cfg.SchemaVersion) {
		add("schema_version %q is not supported (supported: %s)", cfg.SchemaVersion, strings.Join(SupportedSchemaVersions, ", "))
	}
	if cfg.SchemaVersion == SchemaV020 && len(cfg.Extra) > 0 {
		add("'extra' is not allowed with schema_version %s", SchemaV020)
	}

	if cfg.Output == nil || len(cfg.Output.Variables) == 0 {
		add("output must declare at least one variable")
		return validationError(errs)
	}
	outDims := map[string]int{}
	seenOut := map[string]bool{}
	for _, ov := range cfg.Output.Variables {
		if seenOut[ov.Name] {
			add("output variable %q declared twice", ov.Name)
		}
		seenOut[ov.Name] = true
		if dup := duplicate(ov.Dims); dup != "" {
			add("output variable %q lists dim %q twice", ov.Name, dup)
		}
		for _, d := range ov.Dims {
			outDims[d]++
		}
	}

	if len(cfg.Inputs) == 0 {
		add("at least one input is required")
	}
	seenInput := map[string]bool{}
	concatDims := map[string]string{}
	for _, in := range cfg.Inputs {
		if seenInput[in.Name] {
			add("input %q declared twice", in.Name)
		}
		seenInput[in.Name] = true
		for _, msg := range validateInput(in, cfg.Output) {
			add("input %q: %s", in.Name, msg)
		}

		concat := ConcatDim(in)
		if concat == "" || cfg.Output.Variable(in.TargetOutputVariable) == nil {
			continue
		}
		if prev, ok := concatDims[in.TargetOutputVariable]; ok && prev != concat {
			add("input %q: stacks variables along %q but other inputs for %q stack along %q", in.Name, concat, in.TargetOutputVariable, prev)
		}
		concatDims[in.TargetOutputVariable] = concat
		if outDims[concat] > 1 {
			add("input %q: variables are stacked along %q, which is shared by several output variables", in.Name, concat)
		}
	}

	for _, ov := range cfg.Output.Variables {
		if len(cfg.Inputs) > 0 && !targeted(cfg.Inputs, ov.Name) {
			add("output variable %q is not the target of any input", ov.Name)
		}
	}
	for dim := range cfg.Output.CoordRanges {
		if outDims[dim] == 0 {
			add("coord_ranges: dim %q is not an output dim", dim)
		}
	}
	for dim, size := range cfg.Output.Chunking {
		if outDims[dim] == 0 {
			add("chunking: dim %q is not an output dim", dim)
		}
		if size <= 0 {
			add("chunking: size for %q must be positive, got %d", dim, size)
		}
	}
	if sp := cfg.Output.Splitting; sp != nil {
		for _, msg := range validateSplitting(sp, outDims) {
			add("splitting: %s", msg)
		}
	}

	return validationError(errs)
}

func validateInput(in *Input, out *Output) []string {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if in.Path == "" {
		add("path is required")
	}
	if len(in.Dims) == 0 {
		add("dims are required")
	}
	if dup := duplicate(in.Dims); dup != "" {
		add("dim %q listed twice", dup)
	}
	target := out.Variable(in.TargetOutputVariable)
	if target == nil {
		add("target_output_variable %q is not an output variable", in.TargetOutputVariable)
	}
	if len(in.Variables) == 0 && len(in.DerivedVariables) == 0 {
		add("no variables or derived_variables requested")
	}

	names := map[string]bool{}
	for _, v := range in.Variables {
		if names[v.Name] {
			add("variable %q requested twice", v.Name)
		}
		names[v.Name] = true
		for _, sel := range v.Selections {
			if !slices.Contains(in.Dims, sel.Dim) {
				add("variable %q selects on %q, which is not one of the input dims %v", v.Name, sel.Dim, in.Dims)
			}
			if (sel.Range == nil) == (len(sel.Values) == 0) {
				add("variable %q: selection on %q needs either values or a range", v.Name, sel.Dim)
			}
			if sel.Range != nil && (!IsSet(sel.Range.Start) || !IsSet(sel.Range.End)) {
				add("variable %q: range on %q needs start and end", v.Name, sel.Dim)
			}
		}
	}
	for _, dv := range in.DerivedVariables {
		if names[dv.Name] {
			add("derived variable %q clashes with another variable", dv.Name)
		}
		names[dv.Name] = true
		if dv.Function == "" {
			add("derived variable %q has no function", dv.Name)
		}
	}

	covered := map[string]int{}
	nativeUse := map[string]string{}
	claim := func(native, by string) {
		if !slices.Contains(in.Dims, native) {
			add("dim_mapping %q uses %q, which is not one of the input dims %v", by, native, in.Dims)
			return
		}
		if prev, ok := nativeUse[native]; ok {
			add("input dim %q is used by both dim_mapping %q and %q", native, prev, by)
		}
		nativeUse[native] = by
	}
	stackByName := 0
	for _, m := range in.DimMapping {
		covered[m.Dim]++
		if target != nil && !slices.Contains(target.Dims, m.Dim) {
			add("dim_mapping %q is not a dim of output variable %q %v", m.Dim, target.Name, target.Dims)
		}
		switch m.Method {
		case MethodRename:
			if m.From == "" {
				add("dim_mapping %q: rename needs the source dim", m.Dim)
			} else {
				claim(m.From, m.Dim)
			}
		case MethodStack:
			if len(m.Dims) == 0 {
				add("dim_mapping %q: stack needs at least one dim", m.Dim)
			}
			for _, d := range m.Dims {
				claim(d, m.Dim)
			}
		case MethodStackVariablesByVarName:
			stackByName++
			if !strings.Contains(m.NameFormat, "{var_name}") {
				add("dim_mapping %q: name_format %q must contain {var_name}", m.Dim, m.NameFormat)
			}
			for _, d := range m.Dims {
				claim(d, m.Dim)
			}
		default:
			add("dim_mapping %q: unknown method %q", m.Dim, m.Method)
		}
	}
	if stackByName != 1 {
		add("exactly one dim_mapping must use %s, found %d", MethodStackVariablesByVarName, stackByName)
	}
	if target != nil {
		for _, d := range target.Dims {
			switch covered[d] {
			case 0:
				add("output dim %q of %q has no dim_mapping", d, target.Name)
			case 1:
			default:
				add("output dim %q has %d dim_mappings", d, covered[d])
			}
		}
	}
	for _, d := range in.Dims {
		if _, ok := nativeUse[d]; !ok {
			add("input dim %q is not consumed by any dim_mapping", d)
		}
	}
	return errs
}

func validateSplitting(sp *Splitting, outDims map[string]int) []string {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}
	if outDims[sp.Dim] == 0 {
		add("dim %q is not an output dim", sp.Dim)
	}
	seen := map[string]bool{}
	for _, s := range sp.Splits {
		if seen[s.Name] {
			add("split %q declared twice", s.Name)
		}
		seen[s.Name] = true
		if !IsSet(s.Start) || !IsSet(s.End) {
			add("split %q needs start and end", s.Name)
		}
		if strings.Contains(s.Name, "__") {
			add("split name %q must not contain '__'", s.Name)
		}
		if s.Statistics == nil {
			continue
		}
		for _, op := range s.Statistics.Ops {
			if !slices.Contains(StatisticOps, strings.TrimPrefix(op, DiffPrefix)) {
				add("split %q: unknown statistic %q", s.Name, op)
			}
		}
		for _, d := range s.Statistics.Dims {
			if outDims[d] == 0 {
				add("split %q: statistics dim %q is not an output dim", s.Name, d)
			}
		}
	}
	return errs
}

// ConcatDim is the output dim an input stacks its variables along, or "" if
// it has no such mapping.
func ConcatDim(in *Input) string {
	for _, m := range in.DimMapping {
		if m.Method == MethodStackVariablesByVarName {
			return m.Dim
		}
	}
	return ""
}

func targeted(inputs []*Input, name string) bool {
	return slices.ContainsFunc(inputs, func(in *Input) bool { return in.TargetOutputVariable == name })
}

func validationError(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fault.New(fault.Configuration, "configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
}

func duplicate(names []string) string {
	seen := map[string]bool{}
	for _, n := range names {
		if seen[n] {
			return n
		}
		seen[n] = true
	}
	return ""
}
