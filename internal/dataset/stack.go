package dataset

import (
	"fmt"
	"math"
	"slices"
)

// Stack combines dims, in the given order, into a new dimension whose members
// are the tuples of their Cartesian product. The first listed dim varies
// slowest. Variables spanning only some of dims are broadcast over the rest
// first; the new dim becomes their last axis. The level values are kept as
// aux columns named after the stacked dims.
func (ds *Dataset) Stack(newDim string, dims []string) error {
	if len(dims) == 0 {
		return fmt.Errorf("stack into %q: no dims given", newDim)
	}
	if ds.HasDim(newDim) && !slices.Contains(dims, newDim) {
		return fmt.Errorf("stack into %q: dim already exists", newDim)
	}
	if dup := firstDuplicate(dims); dup != "" {
		return fmt.Errorf("stack into %q: dim %q listed twice", newDim, dup)
	}
	levels := make([]*Index, len(dims))
	for i, d := range dims {
		ix := ds.Indexes[d]
		if ix == nil {
			return fmt.Errorf("stack into %q: dataset has no dim %q", newDim, d)
		}
		levels[i] = ix
	}

	sizes := ds.Shape(dims)
	total := product(sizes)
	labels := make([]Label, total)
	aux := make([][]Label, len(dims))
	for i := range aux {
		aux[i] = make([]Label, total)
	}
	st := strides(sizes)
	for flat := 0; flat < total; flat++ {
		parts := make([]Label, len(dims))
		for k := range dims {
			parts[k] = levels[k].Labels[(flat/st[k])%sizes[k]]
			aux[k][flat] = parts[k]
		}
		labels[flat] = Tuple(parts...)
	}
	stacked := NewIndex(newDim, labels)
	stacked.Levels = slices.Clone(dims)
	for k, d := range dims {
		stacked.Aux[d] = aux[k]
	}

	restack := func(v *Variable) (*Variable, error) {
		spans := false
		for _, d := range dims {
			if v.Has(d) {
				spans = true
			}
		}
		if !spans {
			return v, nil
		}
		var keep []string
		for _, d := range v.Dims {
			if !slices.Contains(dims, d) {
				keep = append(keep, d)
			}
		}
		order := append(slices.Clone(keep), dims...)
		b, err := v.Broadcast(order, ds.Shape(order))
		if err != nil {
			return nil, err
		}
		b.Dims = append(keep, newDim)
		b.Shape = append(ds.Shape(keep), total)
		return b, nil
	}
	for i, v := range ds.Vars {
		r, err := restack(v)
		if err != nil {
			return fmt.Errorf("stack into %q: %w", newDim, err)
		}
		ds.Vars[i] = r
	}
	for i, v := range ds.Coords {
		r, err := restack(v)
		if err != nil {
			return fmt.Errorf("stack into %q: %w", newDim, err)
		}
		ds.Coords[i] = r
	}

	for _, d := range dims {
		delete(ds.Indexes, d)
	}
	pos := slices.Index(ds.Dims, dims[0])
	ds.Dims = slices.DeleteFunc(ds.Dims, func(d string) bool { return slices.Contains(dims, d) })
	ds.Dims = slices.Insert(ds.Dims, min(pos, len(ds.Dims)), newDim)
	ds.Indexes[newDim] = stacked
	return nil
}

// Unstack splits a stacked dimension back into its level dims. Level values
// are taken in first-seen order; combinations absent from the stacked index
// are filled with NaN. The level dims replace the stacked dim at its axis.
func (ds *Dataset) Unstack(dim string) error {
	ix := ds.Indexes[dim]
	if ix == nil {
		return fmt.Errorf("unstack %q: no such dim", dim)
	}
	if len(ix.Levels) == 0 {
		return fmt.Errorf("unstack %q: dim is not stacked", dim)
	}
	if dups := ix.Duplicates(); len(dups) > 0 {
		return fmt.Errorf("unstack %q: member %s occurs more than once", dim, dups[0])
	}
	for _, lvl := range ix.Levels {
		if lvl != dim && ds.HasDim(lvl) {
			return fmt.Errorf("unstack %q: level dim %q already exists", dim, lvl)
		}
	}

	nlev := len(ix.Levels)
	levelIdx := make([]*Index, nlev)
	levelPos := make([]map[string]int, nlev)
	for k, name := range ix.Levels {
		levelIdx[k] = NewIndex(name, nil)
		levelPos[k] = map[string]int{}
	}
	for _, l := range ix.Labels {
		parts := l.Parts()
		if len(parts) != nlev {
			return fmt.Errorf("unstack %q: member %s has %d parts, want %d", dim, l, len(parts), nlev)
		}
		for k, p := range parts {
			if _, ok := levelPos[k][p.Key()]; !ok {
				levelPos[k][p.Key()] = levelIdx[k].Len()
				levelIdx[k].Labels = append(levelIdx[k].Labels, p)
			}
		}
	}
	sizes := make([]int, nlev)
	for k := range levelIdx {
		sizes[k] = levelIdx[k].Len()
	}
	st := strides(sizes)
	// target holds, for each stacked member, its flat offset in the level grid.
	target := make([]int, ix.Len())
	for i, l := range ix.Labels {
		off := 0
		for k, p := range l.Parts() {
			off += levelPos[k][p.Key()] * st[k]
		}
		target[i] = off
	}
	gridSize := product(sizes)

	unstack := func(v *Variable) *Variable {
		axis := v.Axis(dim)
		if axis < 0 {
			return v
		}
		outer := product(v.Shape[:axis])
		inner := product(v.Shape[axis+1:])
		n := v.Shape[axis]
		data := make([]float64, outer*gridSize*inner)
		for i := range data {
			data[i] = math.NaN()
		}
		for o := 0; o < outer; o++ {
			for p := 0; p < n; p++ {
				src := v.Data[(o*n+p)*inner : (o*n+p+1)*inner]
				copy(data[(o*gridSize+target[p])*inner:], src)
			}
		}
		out := v.Clone()
		out.Dims = slices.Concat(v.Dims[:axis], ix.Levels, v.Dims[axis+1:])
		out.Shape = slices.Concat(v.Shape[:axis], sizes, v.Shape[axis+1:])
		out.Data = data
		return out
	}
	for i, v := range ds.Vars {
		ds.Vars[i] = unstack(v)
	}
	for i, v := range ds.Coords {
		ds.Coords[i] = unstack(v)
	}

	pos := slices.Index(ds.Dims, dim)
	delete(ds.Indexes, dim)
	ds.Dims = slices.Delete(ds.Dims, pos, pos+1)
	ds.Dims = slices.Insert(ds.Dims, pos, ix.Levels...)
	for k, name := range ix.Levels {
		ds.Indexes[name] = levelIdx[k]
	}
	return nil
}
