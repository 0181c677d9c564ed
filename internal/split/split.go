package split

import (
	"context"
	"slices"

	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/fault"
)

// Result is one split of the merged dataset.
type Result struct {
	Name  string
	Start dataset.Label
	End   dataset.Label
	// Data holds the members m of the split dim with Start <= m < End.
	Data *dataset.Dataset
	// Stats are named StatName(variable, split, op), in variable then op
	// order.
	Stats []*dataset.Variable
}

// Aux columns of the split_name index written by Attach.
const (
	SplitNameDim = "split_name"
	StartColumn  = "split_start"
	EndColumn    = "split_end"
)

// Split partitions ds as configured by sp and computes the requested
// statistics on up to workers goroutines.
func Split(ctx context.Context, ds *dataset.Dataset, sp *config.Splitting, workers int) ([]*Result, error) {
	logger := ctxlog.FromContext(ctx)

	ix := ds.Index(sp.Dim)
	if ix == nil {
		return nil, fault.New(fault.Configuration, "merged dataset has no dim to split along").WithDim(sp.Dim)
	}

	results := make([]*Result, len(sp.Splits))
	for i, s := range sp.Splits {
		start, err := ix.Coerce(s.Start)
		if err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "split %q: invalid start", s.Name).WithDim(sp.Dim)
		}
		end, err := ix.Coerce(s.End)
		if err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "split %q: invalid end", s.Name).WithDim(sp.Dim)
		}
		if start.Compare(end) >= 0 {
			return nil, fault.New(fault.Configuration, "split %q: start %s is not before end %s", s.Name, start, end).WithDim(sp.Dim)
		}
		results[i] = &Result{Name: s.Name, Start: start, End: end}
	}
	if err := checkOverlap(results); err != nil {
		return nil, err.WithDim(sp.Dim)
	}

	for i, s := range sp.Splits {
		r := results[i]
		pos := ix.HalfOpen(r.Start, r.End)
		data, err := ds.Take(sp.Dim, pos)
		if err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "split %q failed", s.Name).WithDim(sp.Dim)
		}
		r.Data = data
		if len(pos) == 0 {
			logger.Warn("Split selects no coordinate values.", "split", s.Name, "dim", sp.Dim, "start", r.Start, "end", r.End)
		} else {
			logger.Info("Selected split.", "split", s.Name, "dim", sp.Dim, "size", len(pos))
		}

		if s.Statistics != nil {
			if r.Stats, err = Statistics(ctx, data, sp.Dim, s.Name, s.Statistics, workers); err != nil {
				return nil, err
			}
		}
	}
	return results, nil
}

// checkOverlap rejects splits whose ranges intersect. Ranges that merely
// touch, [a, b) and [b, c), do not overlap.
func checkOverlap(results []*Result) *fault.Error {
	for i, a := range results {
		for _, b := range results[i+1:] {
			if a.Start.Compare(b.End) < 0 && b.Start.Compare(a.End) < 0 {
				return fault.New(fault.Configuration, "splits %q [%s, %s) and %q [%s, %s) overlap",
					a.Name, a.Start, a.End, b.Name, b.Start, b.End)
			}
		}
	}
	return nil
}

// Attach returns a copy of ds carrying every split's statistics as data
// variables and the split boundaries as a split_name index with
// split_start and split_end columns.
func Attach(ds *dataset.Dataset, results []*Result) (*dataset.Dataset, error) {
	out := ds.Clone()
	names := make([]dataset.Label, len(results))
	starts := make([]dataset.Label, len(results))
	ends := make([]dataset.Label, len(results))
	for i, r := range results {
		names[i] = dataset.String(r.Name)
		starts[i] = r.Start
		ends[i] = r.End
		for _, v := range r.Stats {
			if _, clash := out.Variable(v.Name); clash || slices.Contains(out.Dims, v.Name) {
				return nil, fault.New(fault.Configuration, "statistic name clashes with an existing variable").WithVariable(v.Name)
			}
			if err := out.AddVariable(v); err != nil {
				return nil, fault.Wrap(fault.Configuration, err, "cannot attach statistic").WithVariable(v.Name)
			}
		}
	}
	if len(results) > 0 {
		ix := dataset.NewIndex(SplitNameDim, names)
		if err := ix.SetAux(StartColumn, starts); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "cannot attach split boundaries").WithDim(SplitNameDim)
		}
		if err := ix.SetAux(EndColumn, ends); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "cannot attach split boundaries").WithDim(SplitNameDim)
		}
		if err := out.SetIndex(ix); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "cannot attach split boundaries").WithDim(SplitNameDim)
		}
	}
	return out, nil
}
