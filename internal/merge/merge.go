package merge

import (
	"context"
	"slices"

	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/fault"
	"github.com/vk/dataprep/internal/selection"
)

// Contribution is one source's mapped dataset for one output variable. The
// dataset spans exactly the output variable's dims and holds one data
// variable named after it.
type Contribution struct {
	Source string
	// Rank is the source's position in declaration order. Label order and
	// concatenation order follow rank, not arrival.
	Rank      int
	Target    string
	ConcatDim string
	Data      *dataset.Dataset
}

// Context is the state of one merge: the coordinate values established
// along shared dims and the accumulators of the output variables.
type Context struct {
	output      *config.Output
	shared      map[string]bool
	established map[string]*established
	accs        map[string]*Accumulator
}

// established is the coordinate set fixed so far along one dim.
type established struct {
	index *dataset.Index
	// rank of the contribution whose label order the index follows
	rank int
}

// NewContext creates an empty merge over the output variables of out.
func NewContext(out *config.Output) *Context {
	count := map[string]int{}
	for _, ov := range out.Variables {
		for _, d := range ov.Dims {
			count[d]++
		}
	}
	shared := map[string]bool{}
	for d, n := range count {
		if n > 1 {
			shared[d] = true
		}
	}
	return &Context{
		output:      out,
		shared:      shared,
		established: map[string]*established{},
		accs:        map[string]*Accumulator{},
	}
}

// Shared reports whether dim is declared by more than one output variable.
func (c *Context) Shared(dim string) bool { return c.shared[dim] }

// Established returns the coordinate values fixed so far along a shared
// dim, or nil.
func (c *Context) Established(dim string) *dataset.Index {
	if e := c.established[dim]; e != nil {
		return e.index
	}
	return nil
}

// Accumulator returns the accumulator of an output variable, or nil if
// nothing has been merged into it yet.
func (c *Context) Accumulator(name string) *Accumulator { return c.accs[name] }

// Add folds a contribution into the merge. On error the merge state is
// unchanged.
func (c *Context) Add(ctx context.Context, in Contribution) error {
	err := c.add(ctx, in)
	return fault.InSource(err, in.Source)
}

func (c *Context) add(ctx context.Context, in Contribution) error {
	logger := ctxlog.FromContext(ctx).With("source", in.Source, "output_variable", in.Target)

	target := c.output.Variable(in.Target)
	if target == nil {
		return fault.New(fault.Configuration, "%q is not an output variable", in.Target)
	}
	if !slices.Equal(in.Data.Dims, target.Dims) {
		return fault.New(fault.Configuration, "contribution spans %v, output variable %q spans %v", in.Data.Dims, target.Name, target.Dims)
	}
	if c.shared[in.ConcatDim] {
		return fault.New(fault.Configuration, "variables are stacked along %q, which is shared by several output variables", in.ConcatDim).WithDim(in.ConcatDim)
	}
	acc := c.accs[in.Target]
	if acc == nil {
		acc = newAccumulator(target, in.ConcatDim)
	} else if acc.concat != in.ConcatDim {
		return fault.New(fault.Configuration, "variables are stacked along %q, earlier sources stacked them along %q", in.ConcatDim, acc.concat)
	}

	data, err := c.applyRanges(in.Data)
	if err != nil {
		return err
	}
	if err := acc.checkMembers(in.Source, data); err != nil {
		return err
	}

	// Work on copies so that a failure leaves the merge untouched.
	next := c.snapshot()
	nextAcc := next.accs[in.Target]
	if nextAcc == nil {
		nextAcc = acc
		next.accs[in.Target] = nextAcc
	}

	for _, dim := range target.Dims {
		if dim == in.ConcatDim {
			continue
		}
		scope, sets := next.scope(nextAcc, dim)
		cur := sets[dim]
		merged, err := intersect(cur, data.Index(dim), in.Rank)
		if err != nil {
			return err
		}
		sets[dim] = merged
		if data, err = project(data, merged.index); err != nil {
			return err
		}
		if cur != nil && !merged.index.Equal(cur.index) {
			logger.Debug("Established coordinates changed; re-applying to earlier contributions.",
				"dim", dim, "before", cur.index.Len(), "after", merged.index.Len(), "shared", next.shared[dim])
			for _, a := range scope {
				if err := a.project(dim, merged.index); err != nil {
					return err
				}
			}
		}
	}

	nextAcc.contributions = append(nextAcc.contributions, &contribution{source: in.Source, rank: in.Rank, data: data})
	*c = *next
	logger.Info("Merged contribution.", "members", data.Size(in.ConcatDim), "contributions", len(nextAcc.contributions))
	return nil
}

// Finalize assembles the merged dataset: the output variables in
// declaration order over the established coordinate values. Every output
// variable must have received a contribution.
func (c *Context) Finalize(ctx context.Context) (*dataset.Dataset, error) {
	out := dataset.New()
	for _, ov := range c.output.Variables {
		acc := c.accs[ov.Name]
		if acc == nil {
			return nil, fault.New(fault.Configuration, "no source contributes to output variable %q", ov.Name)
		}
		part, err := acc.finalize(ctx, func(dim string) *dataset.Index {
			_, sets := c.scope(acc, dim)
			return sets[dim].index
		})
		if err != nil {
			return nil, err
		}
		for _, d := range part.Dims {
			if out.HasDim(d) {
				continue
			}
			if err := out.SetIndex(part.Index(d)); err != nil {
				return nil, fault.Wrap(fault.Configuration, err, "cannot assemble merged dataset").WithDim(d)
			}
		}
		for _, v := range part.Vars {
			if err := out.AddVariable(v); err != nil {
				return nil, fault.Wrap(fault.Configuration, err, "cannot assemble merged dataset").WithVariable(v.Name)
			}
		}
		for _, coord := range part.Coords {
			if _, dup := out.Coord(coord.Name); !dup {
				if err := out.AddCoord(coord); err != nil {
					return nil, fault.Wrap(fault.Configuration, err, "cannot assemble merged dataset").WithVariable(coord.Name)
				}
			}
		}
	}
	return out, nil
}

// applyRanges restricts a contribution to the output coordinate ranges.
func (c *Context) applyRanges(ds *dataset.Dataset) (*dataset.Dataset, error) {
	out := ds
	for _, dim := range ds.Dims {
		r, ok := c.output.CoordRanges[dim]
		if !ok {
			continue
		}
		pos, err := selection.Range(out.Index(dim), r)
		if err != nil {
			return nil, err
		}
		if out, err = out.Take(dim, pos); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "cannot apply output range").WithDim(dim)
		}
	}
	return out, nil
}

// scope returns the accumulators bound by the established set of dim and
// the map holding that set.
func (c *Context) scope(acc *Accumulator, dim string) ([]*Accumulator, map[string]*established) {
	if !c.shared[dim] {
		return []*Accumulator{acc}, acc.established
	}
	var all []*Accumulator
	for _, ov := range c.output.Variables {
		if a := c.accs[ov.Name]; a != nil {
			all = append(all, a)
		}
	}
	return all, c.established
}

// snapshot copies the merge state. Contribution datasets are shared, since
// they are replaced rather than modified.
func (c *Context) snapshot() *Context {
	next := &Context{
		output:      c.output,
		shared:      c.shared,
		established: cloneSets(c.established),
		accs:        make(map[string]*Accumulator, len(c.accs)),
	}
	for name, a := range c.accs {
		next.accs[name] = a.clone()
	}
	return next
}

func cloneSets(sets map[string]*established) map[string]*established {
	out := make(map[string]*established, len(sets))
	for d, e := range sets {
		cp := *e
		out[d] = &cp
	}
	return out
}

// intersect narrows cur to the labels of in. The result follows the label
// order of whichever side has the lower rank.
func intersect(cur *established, in *dataset.Index, rank int) (*established, error) {
	if cur == nil {
		return &established{index: in.Clone(), rank: rank}, nil
	}
	inPos := in.Positions()
	var keep []int
	for i, l := range cur.index.Labels {
		if _, ok := inPos[l.Key()]; ok {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, fault.New(fault.DisjointCoordinates,
			"no coordinate value in common with earlier sources: have %d values, earlier sources established %d", in.Len(), cur.index.Len()).WithDim(in.Dim)
	}
	narrowed := cur.index.Take(keep)
	if rank >= cur.rank {
		return &established{index: narrowed, rank: cur.rank}, nil
	}
	pos, _ := in.Locate(narrowed.Labels)
	slices.Sort(pos)
	return &established{index: in.Take(pos), rank: rank}, nil
}

// project lays ds over the members of ix along ix.Dim, in that order.
func project(ds *dataset.Dataset, ix *dataset.Index) (*dataset.Dataset, error) {
	have := ds.Index(ix.Dim)
	if have == nil || slices.EqualFunc(have.Labels, ix.Labels, dataset.Label.Equal) {
		return ds, nil
	}
	pos, missing := have.Locate(ix.Labels)
	if missing != nil {
		return nil, fault.New(fault.DisjointCoordinates, "established value %s is missing from the contribution", missing).WithDim(ix.Dim)
	}
	out, err := ds.Take(ix.Dim, pos)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, err, "cannot re-apply established coordinates").WithDim(ix.Dim)
	}
	return out, nil
}
