package merge

import (
	"context"
	"slices"

	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/fault"
)

// SourceDatasetSuffix names the aux column recording, for every member of
// a variables dim, the source it came from.
const SourceDatasetSuffix = "_source_dataset"

// Accumulator is the running merge target of one output variable.
type Accumulator struct {
	target *config.OutputVariable
	concat string
	// established sets of dims declared by this output variable only
	established   map[string]*established
	contributions []*contribution
}

type contribution struct {
	source string
	rank   int
	data   *dataset.Dataset
}

func newAccumulator(target *config.OutputVariable, concat string) *Accumulator {
	return &Accumulator{target: target, concat: concat, established: map[string]*established{}}
}

// Name is the output variable the accumulator builds.
func (a *Accumulator) Name() string { return a.target.Name }

// ConcatDim is the dim contributions are concatenated along.
func (a *Accumulator) ConcatDim() string { return a.concat }

// Sources lists the contributing sources in rank order.
func (a *Accumulator) Sources() []string {
	var out []string
	for _, c := range a.ranked() {
		out = append(out, c.source)
	}
	return out
}

func (a *Accumulator) clone() *Accumulator {
	return &Accumulator{
		target:        a.target,
		concat:        a.concat,
		established:   cloneSets(a.established),
		contributions: slices.Clone(a.contributions),
	}
}

func (a *Accumulator) ranked() []*contribution {
	out := slices.Clone(a.contributions)
	slices.SortStableFunc(out, func(x, y *contribution) int { return x.rank - y.rank })
	return out
}

// checkMembers rejects members of the variables dim that an earlier
// contribution already supplied.
func (a *Accumulator) checkMembers(source string, ds *dataset.Dataset) error {
	owner := map[string]string{}
	for _, c := range a.contributions {
		for _, l := range c.data.Index(a.concat).Labels {
			owner[l.Key()] = c.source
		}
	}
	for _, l := range ds.Index(a.concat).Labels {
		if prev, ok := owner[l.Key()]; ok {
			return fault.New(fault.DuplicateAxisMember, "member %s is contributed by both %q and %q", l, prev, source).
				WithDim(a.concat).WithVariable(a.target.Name)
		}
	}
	return nil
}

// project re-applies an established set to every stored contribution.
func (a *Accumulator) project(dim string, ix *dataset.Index) error {
	for i, c := range a.contributions {
		data, err := project(c.data, ix)
		if err != nil {
			return fault.InSource(err, c.source)
		}
		if data != c.data {
			a.contributions[i] = &contribution{source: c.source, rank: c.rank, data: data}
		}
	}
	return nil
}

// finalize concatenates the contributions in rank order. Every other dim
// takes the index returned by established.
func (a *Accumulator) finalize(ctx context.Context, established func(dim string) *dataset.Index) (*dataset.Dataset, error) {
	ranked := a.ranked()
	if len(ranked) == 0 {
		return nil, fault.New(fault.Configuration, "no source contributes to output variable %q", a.target.Name)
	}

	parts := make([]*dataset.Variable, len(ranked))
	indexes := make([]*dataset.Index, len(ranked))
	var sources []dataset.Label
	for i, c := range ranked {
		v, ok := c.data.Variable(a.target.Name)
		if !ok {
			return nil, fault.New(fault.Configuration, "source %q holds no variable %q", c.source, a.target.Name)
		}
		parts[i] = v
		ix := c.data.Index(a.concat)
		indexes[i] = ix
		for range ix.Labels {
			sources = append(sources, dataset.String(c.source))
		}
	}
	v, err := dataset.Concat(a.concat, parts...)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, err, "cannot concatenate contributions").WithVariable(a.target.Name)
	}
	ix, err := dataset.ConcatIndexes(indexes...)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, err, "cannot concatenate contributions").WithDim(a.concat)
	}
	if err := ix.SetAux(a.concat+SourceDatasetSuffix, sources); err != nil {
		return nil, fault.Wrap(fault.Configuration, err, "cannot record contributing sources").WithDim(a.concat)
	}

	out := dataset.New()
	for _, d := range a.target.Dims {
		dix := ix
		if d != a.concat {
			dix = established(d).Clone()
		}
		if err := out.SetIndex(dix); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "cannot assemble output variable").WithVariable(a.target.Name).WithDim(d)
		}
	}
	if err := out.AddVariable(v); err != nil {
		return nil, err
	}
	for _, c := range ranked {
		for _, coord := range c.data.Coords {
			if _, dup := out.Coord(coord.Name); dup {
				continue
			}
			if err := out.AddCoord(coord.Clone()); err != nil {
				return nil, err
			}
		}
	}
	ctxlog.FromContext(ctx).Debug("Finalized output variable.", "output_variable", a.target.Name, "sources", len(ranked), "shape", v.Shape)
	return out, nil
}
