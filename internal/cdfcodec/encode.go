package cdfcodec

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/vk/dataprep/internal/cftime"
	"github.com/vk/dataprep/internal/chunking"
	"github.com/vk/dataprep/internal/dataset"
)

// Attributes with a meaning to the codec.
const (
	AttrLabels      = "labels"
	AttrStackedDims = "stacked_dims"
	AttrLevelOf     = "level_of"
	AttrAuxOf       = "aux_of"
	AttrCoordinates = "coordinates"
	AttrChunkSizes  = "chunk_sizes"
	AttrFillValue   = "_FillValue"
	AttrMissing     = "missing_value"
	AttrUnits       = "units"
)

// Var is one netCDF variable.
type Var struct {
	Name string
	api.Variable
}

type encoder struct {
	plan chunking.Plan
	vars []Var
	seen map[string]bool
}

// Encode lays ds out as netCDF variables, index variables first, and its
// global attributes. With a non-nil plan every variable spanning a dim
// records its chunk shape in chunk_sizes. Names never start with an
// underscore, which netCDF reserves.
func Encode(ds *dataset.Dataset, plan chunking.Plan) ([]Var, api.AttributeMap, error) {
	e := &encoder{plan: plan, seen: map[string]bool{}}
	for _, d := range ds.Dims {
		if err := e.index(ds.Index(d)); err != nil {
			return nil, nil, err
		}
	}
	for _, c := range ds.Coords {
		if err := e.array(c, nil); err != nil {
			return nil, nil, err
		}
	}
	for _, v := range ds.Vars {
		if err := e.array(v, coordinates(ds, v)); err != nil {
			return nil, nil, err
		}
	}
	global, err := attributeMap(stringAttrs(ds.Attrs))
	if err != nil {
		return nil, nil, err
	}
	return e.vars, global, nil
}

func (e *encoder) add(name string, values any, dims []string, attrs map[string]any) error {
	if reserved(name) {
		return fmt.Errorf("netcdf variable name %q starts with an underscore", name)
	}
	if e.seen[name] {
		return fmt.Errorf("netcdf variable %q written twice", name)
	}
	e.seen[name] = true
	am, err := attributeMap(attrs)
	if err != nil {
		return fmt.Errorf("variable %q: %w", name, err)
	}
	e.vars = append(e.vars, Var{Name: name, Variable: api.Variable{Values: values, Dimensions: dims, Attributes: am}})
	return nil
}

func (e *encoder) index(ix *dataset.Index) error {
	values, enc, err := encodeLabels(ix.Labels)
	if err != nil {
		return fmt.Errorf("index %q: %w", ix.Dim, err)
	}
	attrs := stringAttrs(ix.Attrs)
	maps.Copy(attrs, enc)
	dims := []string{ix.Dim}

	if ix.Kind() == dataset.KindTuple {
		levels, _ := json.Marshal(ix.Levels)
		attrs[AttrStackedDims] = string(levels)
		for i, level := range ix.Levels {
			col := make([]dataset.Label, ix.Len())
			for j, l := range ix.Labels {
				col[j] = l.Parts()[i]
			}
			vals, a, err := encodeLabels(col)
			if err != nil {
				return fmt.Errorf("index %q, level %q: %w", ix.Dim, level, err)
			}
			a[AttrLevelOf] = ix.Dim
			if err := e.add(ix.Dim+"_"+level, vals, dims, a); err != nil {
				return err
			}
		}
	}
	if err := e.add(ix.Dim, values, dims, attrs); err != nil {
		return err
	}

	for _, name := range ix.AuxNames() {
		if slices.Contains(ix.Levels, name) {
			continue
		}
		vals, a, err := encodeLabels(ix.Aux[name])
		if err != nil {
			return fmt.Errorf("aux column %q: %w", name, err)
		}
		a[AttrAuxOf] = ix.Dim
		if err := e.add(name, vals, dims, a); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) array(v *dataset.Variable, coords []string) error {
	attrs := stringAttrs(v.Attrs)
	if len(coords) > 0 {
		attrs[AttrCoordinates] = strings.Join(coords, " ")
	}
	if e.plan != nil && len(v.Dims) > 0 {
		chunks := e.plan.For(v)
		sizes := make([]int32, len(chunks))
		for i, c := range chunks {
			sizes[i] = int32(c)
		}
		attrs[AttrChunkSizes] = sizes
	}
	return e.add(v.Name, nest(v.Data, v.Shape), v.Dims, attrs)
}

// encodeLabels stores a label column along with the attributes needed to
// read it back.
func encodeLabels(labels []dataset.Label) (any, map[string]any, error) {
	attrs := map[string]any{}
	if len(labels) == 0 {
		return []float64{}, attrs, nil
	}
	kind := labels[0].Kind()
	for _, l := range labels {
		if l.Kind() != kind {
			return nil, nil, fmt.Errorf("mixed %s and %s labels", kind, l.Kind())
		}
	}

	switch kind {
	case dataset.KindNumber:
		vals := make([]float64, len(labels))
		for i, l := range labels {
			vals[i] = l.Float()
		}
		return vals, attrs, nil
	case dataset.KindTime:
		times := make([]time.Time, len(labels))
		for i, l := range labels {
			times[i] = l.Time()
		}
		attrs[AttrUnits] = cftime.Epoch.String()
		return cftime.Epoch.Encode(times), attrs, nil
	case dataset.KindString:
		strs := make([]string, len(labels))
		for i, l := range labels {
			strs[i] = l.Str()
		}
		b, err := json.Marshal(strs)
		if err != nil {
			return nil, nil, err
		}
		attrs[AttrLabels] = string(b)
		return positions(len(labels)), attrs, nil
	case dataset.KindTuple:
		return positions(len(labels)), attrs, nil
	}
	return nil, nil, fmt.Errorf("cannot store %s labels", kind)
}

func positions(n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(i)
	}
	return out
}

// coordinates lists the non-index coordinates that lie over dims of v.
func coordinates(ds *dataset.Dataset, v *dataset.Variable) []string {
	var out []string
	for _, c := range ds.Coords {
		if !slices.ContainsFunc(c.Dims, func(d string) bool { return !v.Has(d) }) {
			out = append(out, c.Name)
		}
	}
	return out
}

// stringAttrs copies attrs for writing, leaving out reserved names.
func stringAttrs(attrs map[string]string) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if !reserved(k) {
			out[k] = v
		}
	}
	return out
}

// reserved reports whether netCDF keeps name for itself.
func reserved(name string) bool {
	return strings.HasPrefix(name, "_")
}

func attributeMap(attrs map[string]any) (api.AttributeMap, error) {
	return util.NewOrderedMap(slices.Sorted(maps.Keys(attrs)), attrs)
}
