package split

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/fault"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// StatName is the name a statistic is stored under.
func StatName(variable, split, op string) string {
	return variable + "__" + split + "__" + op
}

type task struct {
	v  *dataset.Variable
	op string
}

// Statistics computes st for every data variable of ds. The result order
// follows the variables and then st.Ops, whatever the number of workers.
func Statistics(ctx context.Context, ds *dataset.Dataset, splitDim, split string, st *config.Statistics, workers int) ([]*dataset.Variable, error) {
	logger := ctxlog.FromContext(ctx).With("split", split)

	var tasks []task
	for _, v := range ds.Vars {
		for _, op := range st.Ops {
			if strings.HasPrefix(op, config.DiffPrefix) && !v.Has(splitDim) {
				logger.Debug("Skipping difference statistic for variable not spanning the split dim.", "variable", v.Name, "op", op)
				continue
			}
			tasks = append(tasks, task{v: v, op: op})
		}
	}
	logger.Info("Computing statistics.", "variables", len(ds.Vars), "ops", st.Ops, "dims", st.Dims)

	out := make([]*dataset.Variable, len(tasks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, tk := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := compute(tk.v, tk.op, splitDim, st.Dims)
			if err != nil {
				return fault.Wrap(fault.Configuration, err, "split %q: statistic %q failed", split, tk.op).WithVariable(tk.v.Name)
			}
			r.Name = StatName(tk.v.Name, split, tk.op)
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func compute(v *dataset.Variable, op, splitDim string, dims []string) (*dataset.Variable, error) {
	base, diff := strings.CutPrefix(op, config.DiffPrefix)
	reduce, ok := reducers[base]
	if !ok {
		return nil, fmt.Errorf("unknown statistic %q", op)
	}
	x := v
	if diff {
		var err error
		if x, err = v.Diff(splitDim); err != nil {
			return nil, err
		}
	}
	return Reduce(x, dims, reduce)
}

var reducers = map[string]func([]float64) float64{
	"mean": func(x []float64) float64 { return stat.Mean(x, nil) },
	"std":  func(x []float64) float64 { return stat.PopStdDev(x, nil) },
	"var":  func(x []float64) float64 { return stat.PopVariance(x, nil) },
	"min":  floats.Min,
	"max":  floats.Max,
	"sum":  floats.Sum,
}

// Reduce applies fn over the dims of v listed in dims, skipping NaNs. Dims
// v does not span are ignored. A cell with no finite value reduces to NaN.
func Reduce(v *dataset.Variable, dims []string, fn func([]float64) float64) (*dataset.Variable, error) {
	var kept, reduced []string
	for _, d := range v.Dims {
		if slices.Contains(dims, d) {
			reduced = append(reduced, d)
		} else {
			kept = append(kept, d)
		}
	}
	t, err := v.Transpose(append(slices.Clone(kept), reduced...))
	if err != nil {
		return nil, err
	}
	shape := t.Shape[:len(kept)]
	cells, block := 1, 1
	for _, n := range shape {
		cells *= n
	}
	for _, n := range t.Shape[len(kept):] {
		block *= n
	}

	data := make([]float64, cells)
	buf := make([]float64, 0, block)
	for c := range data {
		buf = buf[:0]
		for _, x := range t.Data[c*block : (c+1)*block] {
			if !math.IsNaN(x) {
				buf = append(buf, x)
			}
		}
		if len(buf) == 0 {
			data[c] = math.NaN()
			continue
		}
		data[c] = fn(buf)
	}
	return &dataset.Variable{
		Name:  v.Name,
		Dims:  kept,
		Shape: slices.Clone(shape),
		Data:  data,
		Attrs: maps.Clone(v.Attrs),
	}, nil
}
