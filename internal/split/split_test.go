package split

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/fault"
	"github.com/vk/dataprep/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

// merged has x = hour² + 10*grid over (time, grid) for hours 0..5, and
// orography = grid over (grid).
func merged(t *testing.T) *dataset.Dataset {
	t.Helper()
	return testutil.NewDataset(t).
		Dim("time", testutil.Hours(testutil.Epoch1990, 6, time.Hour)).
		Dim("grid", testutil.Range(0, 1, 2)).
		Var("x", []string{"time", "grid"}, func(p []int) float64 { return float64(p[0]*p[0] + 10*p[1]) }, "units", "K").
		Var("orography", []string{"grid"}, func(p []int) float64 { return float64(p[0]) }, "units", "m").
		Build()
}

func at(hour int) cty.Value {
	return cty.StringVal(testutil.Epoch1990.Add(time.Duration(hour) * time.Hour).Format("2006-01-02T15:04"))
}

func splitting(stats *config.Statistics, bounds ...int) *config.Splitting {
	sp := &config.Splitting{Dim: "time"}
	names := []string{"train", "val", "test"}
	for i := 0; i+1 < len(bounds); i += 2 {
		sp.Splits = append(sp.Splits, &config.Split{Name: names[i/2], Start: at(bounds[i]), End: at(bounds[i+1]), Statistics: stats})
	}
	return sp
}

func statOf(t *testing.T, r *Result, name string) *dataset.Variable {
	t.Helper()
	for _, v := range r.Stats {
		if v.Name == name {
			return v
		}
	}
	t.Fatalf("split %q has no statistic %q", r.Name, name)
	return nil
}

func TestSplit(t *testing.T) {
	t.Parallel()

	t.Run("each value falls into at most one split", func(t *testing.T) {
		t.Parallel()
		// --- Arrange ---
		ctx, _ := testutil.Context(t)
		ds := merged(t)

		// --- Act ---
		got, err := Split(ctx, ds, splitting(nil, 0, 2, 2, 4, 4, 6), 1)

		// --- Assert ---
		require.NoError(t, err)
		require.Len(t, got, 3)
		seen := map[string]string{}
		for _, r := range got {
			assert.Equal(t, 2, r.Data.Size("time"), r.Name)
			for _, l := range r.Data.Index("time").Labels {
				prev, dup := seen[l.Key()]
				assert.False(t, dup, "%s is in both %s and %s", l, prev, r.Name)
				seen[l.Key()] = r.Name
			}
		}
		assert.Len(t, seen, 6)
	})

	t.Run("gaps are excluded", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.Context(t)

		got, err := Split(ctx, merged(t), splitting(nil, 0, 2, 3, 5), 1)

		require.NoError(t, err)
		assert.Equal(t, testutil.Hours(testutil.Epoch1990, 2, time.Hour), got[0].Data.Index("time").Labels)
		assert.Equal(t, testutil.Hours(testutil.Epoch1990.Add(3*time.Hour), 2, time.Hour), got[1].Data.Index("time").Labels)
	})

	t.Run("overlapping splits are rejected", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.Context(t)

		_, err := Split(ctx, merged(t), splitting(nil, 0, 3, 2, 5), 1)

		require.Error(t, err)
		assert.True(t, errors.Is(err, fault.ErrConfiguration))
		assert.Contains(t, err.Error(), `splits "train"`)
		assert.Contains(t, err.Error(), "overlap")
	})

	t.Run("start must precede end", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.Context(t)

		_, err := Split(ctx, merged(t), splitting(nil, 3, 3), 1)

		require.Error(t, err)
		assert.True(t, errors.Is(err, fault.ErrConfiguration))
	})
}

func TestStatistics(t *testing.T) {
	t.Parallel()
	stats := &config.Statistics{Ops: []string{"mean", "diff_mean", "std"}, Dims: []string{"time", "grid"}}

	t.Run("reductions and differences stay within the split", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.Context(t)

		got, err := Split(ctx, merged(t), splitting(stats, 0, 3, 3, 6), 2)

		require.NoError(t, err)
		train, val := got[0], got[1]
		assert.InDelta(t, 40.0/6, statOf(t, train, "x__train__mean").Data[0], 1e-12)
		assert.InDelta(t, math.Sqrt(434.0/6-(40.0/6)*(40.0/6)), statOf(t, train, "x__train__std").Data[0], 1e-9)
		// hour² differences are 1, 3 in train and 7, 9 in val; 9-4 crosses the boundary
		assert.Equal(t, 2.0, statOf(t, train, "x__train__diff_mean").Data[0])
		assert.Equal(t, 8.0, statOf(t, val, "x__val__diff_mean").Data[0])
		assert.Equal(t, 0.5, statOf(t, train, "orography__train__mean").Data[0])
	})

	t.Run("differences skip variables without the split dim", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.Context(t)

		got, err := Split(ctx, merged(t), splitting(stats, 0, 3), 1)

		require.NoError(t, err)
		var names []string
		for _, v := range got[0].Stats {
			names = append(names, v.Name)
		}
		assert.Equal(t, []string{"x__train__mean", "x__train__diff_mean", "x__train__std", "orography__train__mean", "orography__train__std"}, names)
	})

	t.Run("results do not depend on the number of workers", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.Context(t)

		one, err := Split(ctx, merged(t), splitting(stats, 0, 3, 3, 6), 1)
		require.NoError(t, err)
		many, err := Split(ctx, merged(t), splitting(stats, 0, 3, 3, 6), 8)
		require.NoError(t, err)

		labels := cmp.Comparer(func(a, b dataset.Label) bool { return a.Equal(b) })
		assert.Empty(t, cmp.Diff(one, many, labels, cmpopts.EquateNaNs()))
	})

	t.Run("NaNs are skipped", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.Context(t)
		ds := merged(t)
		x, _ := ds.Variable("x")
		x.Data[0] = math.NaN()

		got, err := Split(ctx, ds, splitting(&config.Statistics{Ops: []string{"mean"}, Dims: []string{"time", "grid"}}, 0, 3), 1)

		require.NoError(t, err)
		assert.Equal(t, 8.0, statOf(t, got[0], "x__train__mean").Data[0])
	})

	t.Run("a difference needs two points", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.Context(t)

		_, err := Split(ctx, merged(t), splitting(stats, 0, 1), 1)

		require.Error(t, err)
		var fe *fault.Error
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "x", fe.Variable)
	})
}

func TestReduce(t *testing.T) {
	t.Parallel()
	v, err := dataset.NewVariable("u", []string{"a", "b"}, []int{2, 3}, []float64{1, 2, 3, 4, 5, math.NaN()})
	require.NoError(t, err)

	got, err := Reduce(v, []string{"b", "missing"}, reducers["sum"])

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Dims)
	assert.Equal(t, []float64{6, 9}, got.Data)

	all, err := Reduce(v, []string{"a"}, reducers["max"])
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 3}, all.Data)
}

func TestAttach(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	ds := merged(t)
	results, err := Split(ctx, ds, splitting(&config.Statistics{Ops: []string{"mean"}, Dims: []string{"time"}}, 0, 3, 3, 6), 1)
	require.NoError(t, err)

	got, err := Attach(ds, results)

	require.NoError(t, err)
	assert.Equal(t, []string{"x", "orography", "x__train__mean", "orography__train__mean", "x__val__mean", "orography__val__mean"}, got.VariableNames())
	m, _ := got.Variable("x__train__mean")
	assert.Equal(t, []string{"grid"}, m.Dims)
	assert.Equal(t, "K", m.Attrs["units"])
	ix := got.Index(SplitNameDim)
	require.NotNil(t, ix)
	assert.Equal(t, dataset.Strings("train", "val"), ix.Labels)
	assert.Equal(t, results[1].Start, ix.Aux[StartColumn][1])
	assert.Len(t, ds.Vars, 2, "input must not be modified")
}
