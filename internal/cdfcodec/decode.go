package cdfcodec

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/vk/dataprep/internal/cftime"
	"github.com/vk/dataprep/internal/dataset"
)

// Group is the read side of an open netCDF file.
type Group interface {
	Attributes() api.AttributeMap
	ListVariables() []string
	GetVariable(name string) (*api.Variable, error)
}

// encoding lists the attributes consumed by the codec rather than carried
// onto the dataset. Fill values are applied as NaN.
var encoding = []string{AttrLabels, AttrStackedDims, AttrLevelOf, AttrAuxOf, AttrCoordinates, AttrChunkSizes, AttrFillValue, AttrMissing}

type rawVar struct {
	name    string
	dims    []string
	shape   []int
	data    []float64
	strings []string
	attrs   map[string]string
}

// isIndex reports whether r is the one-dimensional variable named after
// its dim.
func (r *rawVar) isIndex() bool { return len(r.dims) == 1 && r.dims[0] == r.name }

// Decode reads every variable of g into a dataset. Dims without an index
// variable are indexed by position.
func Decode(g Group) (*dataset.Dataset, error) {
	var raws []*rawVar
	byName := map[string]*rawVar{}
	coords := map[string]bool{}
	sizes := map[string]int{}
	var dims []string

	for _, name := range g.ListVariables() {
		v, err := g.GetVariable(name)
		if err != nil {
			return nil, fmt.Errorf("reading variable %q: %w", name, err)
		}
		r, err := newRawVar(name, v)
		if err != nil {
			return nil, err
		}
		raws = append(raws, r)
		byName[name] = r
		for _, c := range strings.Fields(r.attrs[AttrCoordinates]) {
			coords[c] = true
		}
		for i, d := range r.dims {
			n, ok := sizes[d]
			if !ok {
				sizes[d] = r.shape[i]
				dims = append(dims, d)
				continue
			}
			if n != r.shape[i] {
				return nil, fmt.Errorf("variable %q has %d members along %q, other variables have %d", name, r.shape[i], d, n)
			}
		}
	}

	ds := dataset.New()
	for k, v := range attributes(g.Attributes()) {
		ds.Attrs[k] = v
	}
	for _, d := range dims {
		ix, err := decodeIndex(d, sizes[d], byName)
		if err != nil {
			return nil, err
		}
		if err := ds.SetIndex(ix); err != nil {
			return nil, err
		}
	}

	for _, r := range raws {
		switch {
		case r.isIndex() || r.attrs[AttrLevelOf] != "":
		case r.attrs[AttrAuxOf] != "":
			ix := ds.Index(r.attrs[AttrAuxOf])
			if ix == nil {
				return nil, fmt.Errorf("aux column %q belongs to unknown dim %q", r.name, r.attrs[AttrAuxOf])
			}
			labels, err := decodeLabels(r)
			if err != nil {
				return nil, err
			}
			if err := ix.SetAux(r.name, labels); err != nil {
				return nil, err
			}
		default:
			v, err := decodeArray(r)
			if err != nil {
				return nil, err
			}
			add := ds.AddVariable
			if coords[r.name] {
				add = ds.AddCoord
			}
			if err := add(v); err != nil {
				return nil, err
			}
		}
	}
	return ds, nil
}

func newRawVar(name string, v *api.Variable) (*rawVar, error) {
	r := &rawVar{name: name, dims: v.Dimensions, attrs: attributes(v.Attributes)}
	if strs, ok := v.Values.([]string); ok {
		// Character arrays carry a trailing string-length dim.
		r.strings = strs
		r.shape = []int{len(strs)}
		if len(r.dims) > 1 {
			r.dims = r.dims[:1]
		}
		return r, nil
	}
	data, shape, err := flatten(v.Values)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	if len(shape) != len(r.dims) {
		return nil, fmt.Errorf("variable %q: %d dims but %d-dimensional values", name, len(r.dims), len(shape))
	}
	r.data, r.shape = data, shape
	return r, nil
}

func decodeIndex(dim string, size int, byName map[string]*rawVar) (*dataset.Index, error) {
	r := byName[dim]
	if r == nil || !r.isIndex() {
		pos := make([]float64, size)
		for i := range pos {
			pos[i] = float64(i)
		}
		return dataset.NewIndex(dim, dataset.Numbers(pos...)), nil
	}

	stacked := r.attrs[AttrStackedDims]
	if stacked == "" {
		labels, err := decodeLabels(r)
		if err != nil {
			return nil, err
		}
		ix := dataset.NewIndex(dim, labels)
		ix.Attrs = carried(r.attrs, labels)
		return ix, nil
	}

	var levels []string
	if err := json.Unmarshal([]byte(stacked), &levels); err != nil {
		return nil, fmt.Errorf("index %q: bad %s attribute: %w", dim, AttrStackedDims, err)
	}
	cols := make([][]dataset.Label, len(levels))
	for k, level := range levels {
		lv := byName[dim+"_"+level]
		if lv == nil {
			return nil, fmt.Errorf("index %q: level variable %q is missing", dim, dim+"_"+level)
		}
		col, err := decodeLabels(lv)
		if err != nil {
			return nil, err
		}
		if len(col) != size {
			return nil, fmt.Errorf("index %q: level %q has %d members, want %d", dim, level, len(col), size)
		}
		cols[k] = col
	}
	labels := make([]dataset.Label, size)
	for i := range labels {
		parts := make([]dataset.Label, len(levels))
		for k := range levels {
			parts[k] = cols[k][i]
		}
		labels[i] = dataset.Tuple(parts...)
	}
	ix := dataset.NewIndex(dim, labels)
	ix.Levels = levels
	ix.Attrs = carried(r.attrs, labels)
	for k, level := range levels {
		ix.Aux[level] = cols[k]
	}
	return ix, nil
}

func decodeLabels(r *rawVar) ([]dataset.Label, error) {
	if r.strings != nil {
		return dataset.Strings(r.strings...), nil
	}
	if enc := r.attrs[AttrLabels]; enc != "" {
		var names []string
		if err := json.Unmarshal([]byte(enc), &names); err != nil {
			return nil, fmt.Errorf("variable %q: bad %s attribute: %w", r.name, AttrLabels, err)
		}
		labels := make([]dataset.Label, len(r.data))
		for i, p := range r.data {
			n := int(p)
			if n < 0 || n >= len(names) {
				return nil, fmt.Errorf("variable %q: label position %d out of range", r.name, n)
			}
			labels[i] = dataset.String(names[n])
		}
		return labels, nil
	}
	if units := r.attrs[AttrUnits]; cftime.IsTimeUnits(units) {
		u, err := cftime.ParseUnits(units)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", r.name, err)
		}
		return dataset.Times(u.Decode(r.data)...), nil
	}
	return dataset.Numbers(r.data...), nil
}

func decodeArray(r *rawVar) (*dataset.Variable, error) {
	if r.strings != nil {
		return nil, fmt.Errorf("variable %q holds strings and is not an index", r.name)
	}
	data := r.data
	for _, key := range []string{AttrFillValue, AttrMissing} {
		s, ok := r.attrs[key]
		if !ok {
			continue
		}
		fill, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		for i, f := range data {
			if f == fill {
				data[i] = math.NaN()
			}
		}
	}
	v, err := dataset.NewVariable(r.name, slices.Clone(r.dims), r.shape, data)
	if err != nil {
		return nil, err
	}
	v.Attrs = carried(r.attrs, nil)
	return v, nil
}

// carried drops the codec's own attributes, and the units of time labels,
// which Decode has already applied.
func carried(attrs map[string]string, labels []dataset.Label) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if !slices.Contains(encoding, k) && !reserved(k) {
			out[k] = v
		}
	}
	if len(labels) > 0 && labels[0].Kind() == dataset.KindTime {
		delete(out, AttrUnits)
		delete(out, "calendar")
	}
	return out
}

// attributes renders every attribute as a string. Single-element arrays
// are unwrapped.
func attributes(am api.AttributeMap) map[string]string {
	out := map[string]string{}
	if am == nil {
		return out
	}
	for _, k := range am.Keys() {
		v, ok := am.Get(k)
		if !ok {
			continue
		}
		out[k] = attrString(v)
	}
	return out
}

func attrString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []string:
		return strings.Join(x, " ")
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Len() == 1 {
		return fmt.Sprint(rv.Index(0).Interface())
	}
	return fmt.Sprint(v)
}
