package dataset

import (
	"fmt"
	"maps"
	"slices"
)

// Index holds the coordinate values along one dimension. Aux columns are
// per-member labels carried alongside the members (e.g. the units of each
// stacked feature, or the level values of a stacked multi-index); every
// column has exactly Len() entries.
type Index struct {
	Dim    string
	Labels []Label
	Attrs  map[string]string
	Aux    map[string][]Label
	// Levels names the stacked dimensions when Labels are tuples.
	Levels []string
}

// NewIndex creates an index over dim with the given labels.
func NewIndex(dim string, labels []Label) *Index {
	return &Index{
		Dim:    dim,
		Labels: labels,
		Attrs:  map[string]string{},
		Aux:    map[string][]Label{},
	}
}

// Len is the number of members along the dimension.
func (ix *Index) Len() int { return len(ix.Labels) }

// Kind is the label kind of the first member, or zero for an empty index.
func (ix *Index) Kind() LabelKind {
	if len(ix.Labels) == 0 {
		return 0
	}
	return ix.Labels[0].Kind()
}

// Positions maps label keys to their position.
func (ix *Index) Positions() map[string]int {
	pos := make(map[string]int, len(ix.Labels))
	for i, l := range ix.Labels {
		pos[l.Key()] = i
	}
	return pos
}

// Locate returns the positions of want, or the first label that is absent.
func (ix *Index) Locate(want []Label) ([]int, *Label) {
	pos := ix.Positions()
	out := make([]int, len(want))
	for i, l := range want {
		p, ok := pos[l.Key()]
		if !ok {
			missing := l
			return nil, &missing
		}
		out[i] = p
	}
	return out, nil
}

// Between returns the positions of members m with start <= m <= end, in
// index order.
func (ix *Index) Between(start, end Label) []int {
	var out []int
	for i, l := range ix.Labels {
		if l.Compare(start) >= 0 && l.Compare(end) <= 0 {
			out = append(out, i)
		}
	}
	return out
}

// HalfOpen returns the positions of members m with start <= m < end.
func (ix *Index) HalfOpen(start, end Label) []int {
	var out []int
	for i, l := range ix.Labels {
		if l.Compare(start) >= 0 && l.Compare(end) < 0 {
			out = append(out, i)
		}
	}
	return out
}

// Take returns a new index with the members at pos, in that order.
func (ix *Index) Take(pos []int) *Index {
	out := &Index{
		Dim:    ix.Dim,
		Labels: make([]Label, len(pos)),
		Attrs:  maps.Clone(ix.Attrs),
		Aux:    make(map[string][]Label, len(ix.Aux)),
		Levels: slices.Clone(ix.Levels),
	}
	for i, p := range pos {
		out.Labels[i] = ix.Labels[p]
	}
	for name, col := range ix.Aux {
		taken := make([]Label, len(pos))
		for i, p := range pos {
			taken[i] = col[p]
		}
		out.Aux[name] = taken
	}
	return out
}

// Clone returns a deep copy.
func (ix *Index) Clone() *Index {
	pos := make([]int, ix.Len())
	for i := range pos {
		pos[i] = i
	}
	return ix.Take(pos)
}

// Renamed returns a copy of the index over a different dimension name.
func (ix *Index) Renamed(dim string) *Index {
	out := ix.Clone()
	out.Dim = dim
	return out
}

// SetAux attaches an aux column, which must match the index length.
func (ix *Index) SetAux(name string, col []Label) error {
	if len(col) != ix.Len() {
		return fmt.Errorf("aux column %q has %d entries, index %q has %d", name, len(col), ix.Dim, ix.Len())
	}
	if ix.Aux == nil {
		ix.Aux = map[string][]Label{}
	}
	ix.Aux[name] = col
	return nil
}

// AuxNames lists the aux columns in sorted order.
func (ix *Index) AuxNames() []string {
	return slices.Sorted(maps.Keys(ix.Aux))
}

// Duplicates returns the labels that occur more than once, in first-seen
// order.
func (ix *Index) Duplicates() []Label {
	seen := make(map[string]int, len(ix.Labels))
	var dups []Label
	for _, l := range ix.Labels {
		k := l.Key()
		seen[k]++
		if seen[k] == 2 {
			dups = append(dups, l)
		}
	}
	return dups
}

// ConcatIndexes joins indexes over the same dimension end to end. Aux
// columns missing from some parts are filled with empty strings.
func ConcatIndexes(parts ...*Index) (*Index, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("no indexes to concatenate")
	}
	dim := parts[0].Dim
	auxNames := map[string]struct{}{}
	var labels []Label
	for _, p := range parts {
		if p.Dim != dim {
			return nil, fmt.Errorf("cannot concatenate index %q with index %q", dim, p.Dim)
		}
		labels = append(labels, p.Labels...)
		for name := range p.Aux {
			auxNames[name] = struct{}{}
		}
	}

	out := NewIndex(dim, labels)
	out.Attrs = maps.Clone(parts[0].Attrs)
	out.Levels = slices.Clone(parts[0].Levels)
	for name := range auxNames {
		col := make([]Label, 0, len(labels))
		for _, p := range parts {
			if c, ok := p.Aux[name]; ok {
				col = append(col, c...)
				continue
			}
			for range p.Labels {
				col = append(col, String(""))
			}
		}
		out.Aux[name] = col
	}
	return out, nil
}

// Equal reports whether two indexes hold the same members, attributes, aux
// columns and levels. Nil and empty maps are treated alike.
func (ix *Index) Equal(o *Index) bool {
	if ix == nil || o == nil {
		return ix == o
	}
	if ix.Dim != o.Dim || !slices.EqualFunc(ix.Labels, o.Labels, Label.Equal) {
		return false
	}
	if !maps.Equal(ix.Attrs, o.Attrs) || !slices.Equal(ix.Levels, o.Levels) || len(ix.Aux) != len(o.Aux) {
		return false
	}
	for name, col := range ix.Aux {
		other, ok := o.Aux[name]
		if !ok || !slices.EqualFunc(col, other, Label.Equal) {
			return false
		}
	}
	return true
}
