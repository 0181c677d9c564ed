// Package dataset models labeled N-dimensional datasets: dimensions with one
// coordinate index each, data variables and non-index coordinate variables
// laid over those dimensions, and free-form attributes.
package dataset

import (
	"fmt"
	"maps"
	"slices"
)

// Dataset is a set of variables sharing one coordinate index per dimension.
// Because every dimension has exactly one Index, all variables that span a
// dimension agree on its coordinate values.
type Dataset struct {
	Dims    []string
	Indexes map[string]*Index
	Vars    []*Variable
	// Coords are non-index coordinate variables, e.g. lat(y, x).
	Coords []*Variable
	Attrs  map[string]string
}

// New creates an empty dataset.
func New() *Dataset {
	return &Dataset{
		Indexes: map[string]*Index{},
		Attrs:   map[string]string{},
	}
}

// Index returns the index over dim, or nil.
func (ds *Dataset) Index(dim string) *Index { return ds.Indexes[dim] }

// Size is the length of dim, or zero if the dataset has no such dim.
func (ds *Dataset) Size(dim string) int {
	if ix := ds.Indexes[dim]; ix != nil {
		return ix.Len()
	}
	return 0
}

// HasDim reports whether dim is one of the dataset's dimensions.
func (ds *Dataset) HasDim(dim string) bool { return ds.Indexes[dim] != nil }

// SetIndex adds or replaces the index for ix.Dim. Replacing an index with
// one of a different length is rejected while variables span the dim.
func (ds *Dataset) SetIndex(ix *Index) error {
	if cur, ok := ds.Indexes[ix.Dim]; ok {
		if cur.Len() != ix.Len() {
			for _, v := range ds.all() {
				if v.Has(ix.Dim) {
					return fmt.Errorf("cannot resize dim %q from %d to %d: spanned by %q", ix.Dim, cur.Len(), ix.Len(), v.Name)
				}
			}
		}
	} else {
		ds.Dims = append(ds.Dims, ix.Dim)
	}
	ds.Indexes[ix.Dim] = ix
	return nil
}

// Variable returns the data variable called name.
func (ds *Dataset) Variable(name string) (*Variable, bool) {
	i := slices.IndexFunc(ds.Vars, func(v *Variable) bool { return v.Name == name })
	if i < 0 {
		return nil, false
	}
	return ds.Vars[i], true
}

// Coord returns the non-index coordinate variable called name.
func (ds *Dataset) Coord(name string) (*Variable, bool) {
	i := slices.IndexFunc(ds.Coords, func(v *Variable) bool { return v.Name == name })
	if i < 0 {
		return nil, false
	}
	return ds.Coords[i], true
}

// VariableNames lists data variables in order.
func (ds *Dataset) VariableNames() []string {
	names := make([]string, len(ds.Vars))
	for i, v := range ds.Vars {
		names[i] = v.Name
	}
	return names
}

// AddVariable appends a data variable, replacing one of the same name.
func (ds *Dataset) AddVariable(v *Variable) error {
	if err := ds.check(v); err != nil {
		return err
	}
	if i := slices.IndexFunc(ds.Vars, func(o *Variable) bool { return o.Name == v.Name }); i >= 0 {
		ds.Vars[i] = v
		return nil
	}
	ds.Vars = append(ds.Vars, v)
	return nil
}

// AddCoord appends a non-index coordinate variable.
func (ds *Dataset) AddCoord(v *Variable) error {
	if err := ds.check(v); err != nil {
		return err
	}
	if i := slices.IndexFunc(ds.Coords, func(o *Variable) bool { return o.Name == v.Name }); i >= 0 {
		ds.Coords[i] = v
		return nil
	}
	ds.Coords = append(ds.Coords, v)
	return nil
}

func (ds *Dataset) check(v *Variable) error {
	for i, d := range v.Dims {
		ix, ok := ds.Indexes[d]
		if !ok {
			return fmt.Errorf("variable %q spans unknown dim %q", v.Name, d)
		}
		if ix.Len() != v.Shape[i] {
			return fmt.Errorf("variable %q has length %d along %q, index has %d", v.Name, v.Shape[i], d, ix.Len())
		}
	}
	return nil
}

func (ds *Dataset) all() []*Variable {
	return append(slices.Clone(ds.Vars), ds.Coords...)
}

// Clone returns a deep copy.
func (ds *Dataset) Clone() *Dataset {
	out := &Dataset{
		Dims:    slices.Clone(ds.Dims),
		Indexes: make(map[string]*Index, len(ds.Indexes)),
		Attrs:   maps.Clone(ds.Attrs),
	}
	if out.Attrs == nil {
		out.Attrs = map[string]string{}
	}
	for d, ix := range ds.Indexes {
		out.Indexes[d] = ix.Clone()
	}
	for _, v := range ds.Vars {
		out.Vars = append(out.Vars, v.Clone())
	}
	for _, v := range ds.Coords {
		out.Coords = append(out.Coords, v.Clone())
	}
	return out
}

// Take restricts dim to the members at pos, in that order.
func (ds *Dataset) Take(dim string, pos []int) (*Dataset, error) {
	ix, ok := ds.Indexes[dim]
	if !ok {
		return nil, fmt.Errorf("dataset has no dim %q", dim)
	}
	out := ds.Clone()
	out.Indexes[dim] = ix.Take(pos)
	for i, v := range out.Vars {
		out.Vars[i] = v.Take(dim, pos)
	}
	for i, v := range out.Coords {
		out.Coords[i] = v.Take(dim, pos)
	}
	return out, nil
}

// Select restricts dim to the given labels, in the given order. The first
// label absent from the index is returned alongside a nil dataset.
func (ds *Dataset) Select(dim string, labels []Label) (*Dataset, *Label, error) {
	ix, ok := ds.Indexes[dim]
	if !ok {
		return nil, nil, fmt.Errorf("dataset has no dim %q", dim)
	}
	pos, missing := ix.Locate(labels)
	if missing != nil {
		return nil, missing, nil
	}
	out, err := ds.Take(dim, pos)
	return out, nil, err
}

// RenameDim renames a dimension on the index and every variable.
func (ds *Dataset) RenameDim(from, to string) error {
	ix, ok := ds.Indexes[from]
	if !ok {
		return fmt.Errorf("dataset has no dim %q", from)
	}
	if from == to {
		return nil
	}
	if _, taken := ds.Indexes[to]; taken {
		return fmt.Errorf("cannot rename %q to existing dim %q", from, to)
	}
	delete(ds.Indexes, from)
	ds.Indexes[to] = ix.Renamed(to)
	ds.Dims[slices.Index(ds.Dims, from)] = to
	for _, v := range ds.all() {
		if a := v.Axis(from); a >= 0 {
			v.Dims = slices.Clone(v.Dims)
			v.Dims[a] = to
		}
	}
	return nil
}

// DropDim removes a dimension that no variable spans.
func (ds *Dataset) DropDim(dim string) error {
	for _, v := range ds.all() {
		if v.Has(dim) {
			return fmt.Errorf("cannot drop dim %q: spanned by %q", dim, v.Name)
		}
	}
	delete(ds.Indexes, dim)
	ds.Dims = slices.DeleteFunc(ds.Dims, func(d string) bool { return d == dim })
	return nil
}

// Shape returns the extents of dims.
func (ds *Dataset) Shape(dims []string) []int {
	out := make([]int, len(dims))
	for i, d := range dims {
		out[i] = ds.Size(d)
	}
	return out
}

// BroadcastTo lays v over dims using the dataset's extents.
func (ds *Dataset) BroadcastTo(v *Variable, dims []string) (*Variable, error) {
	return v.Broadcast(dims, ds.Shape(dims))
}

// IndexVariable exposes the index over dim as a 1-d variable. Numeric labels
// become their value, time labels seconds since the Unix epoch, and other
// labels their position.
func (ds *Dataset) IndexVariable(dim string) (*Variable, bool) {
	ix, ok := ds.Indexes[dim]
	if !ok {
		return nil, false
	}
	data := make([]float64, ix.Len())
	for i, l := range ix.Labels {
		switch l.Kind() {
		case KindNumber:
			data[i] = l.Float()
		case KindTime:
			data[i] = float64(l.Time().UnixNano()) / 1e9
		default:
			data[i] = float64(i)
		}
	}
	v := &Variable{
		Name:  dim,
		Dims:  []string{dim},
		Shape: []int{ix.Len()},
		Data:  data,
		Attrs: maps.Clone(ix.Attrs),
	}
	if v.Attrs == nil {
		v.Attrs = map[string]string{}
	}
	if ix.Kind() == KindTime {
		v.Attrs["units"] = EpochUnits
	}
	return v, true
}

// EpochUnits is the CF units string of time values exposed as numbers.
const EpochUnits = "seconds since 1970-01-01 00:00:00"
