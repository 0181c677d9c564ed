package dataset

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

// Variable is a named N-dimensional array stored in row-major order.
type Variable struct {
	Name  string
	Dims  []string
	Shape []int
	Data  []float64
	Attrs map[string]string
}

// NewVariable validates the shape against the data length.
func NewVariable(name string, dims []string, shape []int, data []float64) (*Variable, error) {
	if len(dims) != len(shape) {
		return nil, fmt.Errorf("variable %q: %d dims but %d sizes", name, len(dims), len(shape))
	}
	if n := product(shape); n != len(data) {
		return nil, fmt.Errorf("variable %q: shape %v holds %d values, got %d", name, shape, n, len(data))
	}
	if dup := firstDuplicate(dims); dup != "" {
		return nil, fmt.Errorf("variable %q: dim %q repeated", name, dup)
	}
	return &Variable{
		Name:  name,
		Dims:  dims,
		Shape: shape,
		Data:  data,
		Attrs: map[string]string{},
	}, nil
}

// Size is the total number of elements.
func (v *Variable) Size() int { return len(v.Data) }

// Axis returns the position of dim, or -1.
func (v *Variable) Axis(dim string) int { return slices.Index(v.Dims, dim) }

// Has reports whether the variable spans dim.
func (v *Variable) Has(dim string) bool { return v.Axis(dim) >= 0 }

// Len is the variable's extent along dim, or zero if it does not span it.
func (v *Variable) Len(dim string) int {
	if a := v.Axis(dim); a >= 0 {
		return v.Shape[a]
	}
	return 0
}

// Clone returns a deep copy.
func (v *Variable) Clone() *Variable {
	return &Variable{
		Name:  v.Name,
		Dims:  slices.Clone(v.Dims),
		Shape: slices.Clone(v.Shape),
		Data:  slices.Clone(v.Data),
		Attrs: maps.Clone(v.Attrs),
	}
}

func (v *Variable) strides() []int { return strides(v.Shape) }

// Take selects the positions pos along dim, in that order.
func (v *Variable) Take(dim string, pos []int) *Variable {
	axis := v.Axis(dim)
	if axis < 0 {
		return v.Clone()
	}
	outer := product(v.Shape[:axis])
	inner := product(v.Shape[axis+1:])
	n := v.Shape[axis]

	data := make([]float64, 0, outer*len(pos)*inner)
	for o := 0; o < outer; o++ {
		block := v.Data[o*n*inner : (o+1)*n*inner]
		for _, p := range pos {
			data = append(data, block[p*inner:(p+1)*inner]...)
		}
	}
	out := v.Clone()
	out.Shape[axis] = len(pos)
	out.Data = data
	return out
}

// Broadcast rearranges the variable onto dims, which must contain every dim
// the variable already spans. sizes gives the extent of each target dim;
// existing dims must keep their extent. New dims repeat the data.
func (v *Variable) Broadcast(dims []string, sizes []int) (*Variable, error) {
	if len(dims) != len(sizes) {
		return nil, fmt.Errorf("variable %q: %d target dims but %d sizes", v.Name, len(dims), len(sizes))
	}
	srcStride := v.strides()
	stride := make([]int, len(dims))
	for i, d := range dims {
		a := v.Axis(d)
		if a < 0 {
			continue
		}
		if v.Shape[a] != sizes[i] {
			return nil, fmt.Errorf("variable %q: dim %q has length %d, target has %d", v.Name, d, v.Shape[a], sizes[i])
		}
		stride[i] = srcStride[a]
	}
	for _, d := range v.Dims {
		if !slices.Contains(dims, d) {
			return nil, fmt.Errorf("variable %q: dim %q missing from target dims %v", v.Name, d, dims)
		}
	}

	total := product(sizes)
	data := make([]float64, total)
	idx := make([]int, len(dims))
	off := 0
	for flat := 0; flat < total; flat++ {
		data[flat] = v.Data[off]
		// advance the multi-index, last dim fastest
		for k := len(dims) - 1; k >= 0; k-- {
			idx[k]++
			off += stride[k]
			if idx[k] < sizes[k] {
				break
			}
			off -= stride[k] * idx[k]
			idx[k] = 0
		}
	}
	return &Variable{
		Name:  v.Name,
		Dims:  slices.Clone(dims),
		Shape: slices.Clone(sizes),
		Data:  data,
		Attrs: maps.Clone(v.Attrs),
	}, nil
}

// Transpose reorders the variable's dims; dims must be a permutation of them.
func (v *Variable) Transpose(dims []string) (*Variable, error) {
	if len(dims) != len(v.Dims) {
		return nil, fmt.Errorf("variable %q: cannot transpose %v to %v", v.Name, v.Dims, dims)
	}
	sizes := make([]int, len(dims))
	for i, d := range dims {
		a := v.Axis(d)
		if a < 0 {
			return nil, fmt.Errorf("variable %q: cannot transpose %v to %v", v.Name, v.Dims, dims)
		}
		sizes[i] = v.Shape[a]
	}
	return v.Broadcast(dims, sizes)
}

// Squeeze removes dim, along which v must have length 1.
func (v *Variable) Squeeze(dim string) (*Variable, error) {
	axis := v.Axis(dim)
	if axis < 0 {
		return nil, fmt.Errorf("variable %q does not span %q", v.Name, dim)
	}
	if v.Shape[axis] != 1 {
		return nil, fmt.Errorf("variable %q: cannot squeeze %q of length %d", v.Name, dim, v.Shape[axis])
	}
	out := v.Clone()
	out.Dims = slices.Delete(out.Dims, axis, axis+1)
	out.Shape = slices.Delete(out.Shape, axis, axis+1)
	return out, nil
}

// Diff is the first difference along dim: out[i] = in[i+1] - in[i].
func (v *Variable) Diff(dim string) (*Variable, error) {
	axis := v.Axis(dim)
	if axis < 0 {
		return nil, fmt.Errorf("variable %q does not span %q", v.Name, dim)
	}
	n := v.Shape[axis]
	if n < 2 {
		return nil, fmt.Errorf("variable %q: need at least 2 points along %q to difference, have %d", v.Name, dim, n)
	}
	outer := product(v.Shape[:axis])
	inner := product(v.Shape[axis+1:])
	data := make([]float64, 0, outer*(n-1)*inner)
	for o := 0; o < outer; o++ {
		base := o * n * inner
		for p := 0; p < n-1; p++ {
			for i := 0; i < inner; i++ {
				data = append(data, v.Data[base+(p+1)*inner+i]-v.Data[base+p*inner+i])
			}
		}
	}
	out := v.Clone()
	out.Shape[axis] = n - 1
	out.Data = data
	return out, nil
}

// Concat joins variables end to end along dim. All parts must share the
// dims of the first part (in any order) and agree on every other extent.
func Concat(dim string, parts ...*Variable) (*Variable, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("no variables to concatenate")
	}
	first := parts[0]
	axis := first.Axis(dim)
	if axis < 0 {
		return nil, fmt.Errorf("variable %q does not span %q", first.Name, dim)
	}
	outer := product(first.Shape[:axis])
	inner := product(first.Shape[axis+1:])

	aligned := make([]*Variable, len(parts))
	total := 0
	for i, p := range parts {
		q, err := p.Transpose(first.Dims)
		if err != nil {
			return nil, err
		}
		for a, n := range q.Shape {
			if a != axis && n != first.Shape[a] {
				return nil, fmt.Errorf("cannot concatenate %q along %q: dim %q has length %d, want %d", p.Name, dim, q.Dims[a], n, first.Shape[a])
			}
		}
		aligned[i] = q
		total += q.Shape[axis]
	}

	data := make([]float64, 0, outer*total*inner)
	for o := 0; o < outer; o++ {
		for _, q := range aligned {
			n := q.Shape[axis]
			data = append(data, q.Data[o*n*inner:(o+1)*n*inner]...)
		}
	}
	out := first.Clone()
	out.Shape[axis] = total
	out.Data = data
	return out, nil
}

// Align broadcasts vars onto the union of their dims, taken in order of
// first appearance. Shared dims must have the same extent everywhere.
func Align(vars ...*Variable) ([]*Variable, error) {
	var dims []string
	var sizes []int
	for _, v := range vars {
		for a, d := range v.Dims {
			i := slices.Index(dims, d)
			if i < 0 {
				dims = append(dims, d)
				sizes = append(sizes, v.Shape[a])
				continue
			}
			if sizes[i] != v.Shape[a] {
				return nil, fmt.Errorf("variable %q has length %d along %q, others have %d", v.Name, v.Shape[a], d, sizes[i])
			}
		}
	}
	out := make([]*Variable, len(vars))
	for i, v := range vars {
		b, err := v.Broadcast(dims, sizes)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// Equal reports whether two variables hold the same dims, shape, attributes
// and values. NaNs compare equal to each other.
func (v *Variable) Equal(o *Variable) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.Name != o.Name || !slices.Equal(v.Dims, o.Dims) || !slices.Equal(v.Shape, o.Shape) || !maps.Equal(v.Attrs, o.Attrs) {
		return false
	}
	return slices.EqualFunc(v.Data, o.Data, func(a, b float64) bool {
		return a == b || (math.IsNaN(a) && math.IsNaN(b))
	})
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func strides(shape []int) []int {
	st := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= shape[i]
	}
	return st
}

func firstDuplicate(names []string) string {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			return n
		}
		seen[n] = struct{}{}
	}
	return ""
}
