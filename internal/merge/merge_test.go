package merge

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/fault"
	"github.com/vk/dataprep/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

var labels = cmp.Comparer(func(a, b dataset.Label) bool { return a.Equal(b) })

// part describes a synthetic contribution. Each value encodes where it came
// from: 10000*rank + 1000*hour + level + member position.
type part struct {
	source   string
	rank     int
	target   string
	concat   string
	hours    []int
	levels   []float64
	features []string
}

func (p part) build(t *testing.T) Contribution {
	t.Helper()
	times := make([]dataset.Label, len(p.hours))
	for i, h := range p.hours {
		times[i] = dataset.Time(testutil.Epoch1990.Add(time.Duration(h) * time.Hour))
	}
	b := testutil.NewDataset(t).Dim("time", times)
	dims := []string{"time"}
	if p.levels != nil {
		b = b.Dim("level", dataset.Numbers(p.levels...))
		dims = append(dims, "level")
	}
	b = b.Dim(p.concat, dataset.Strings(p.features...))
	dims = append(dims, p.concat)
	value := func(pos []int) float64 {
		v := float64(10000*p.rank + 1000*p.hours[pos[0]])
		if p.levels != nil {
			v += p.levels[pos[1]]
		}
		return v + float64(pos[len(pos)-1])
	}
	ds := b.Var(p.target, dims, value).Build()
	return Contribution{Source: p.source, Rank: p.rank, Target: p.target, ConcatDim: p.concat, Data: ds}
}

func state(source string, rank int, hours []int, levels []float64, features ...string) part {
	return part{source: source, rank: rank, target: "state", concat: "state_feature", hours: hours, levels: levels, features: features}
}

func forcing(source string, rank int, hours []int, features ...string) part {
	return part{source: source, rank: rank, target: "forcing", concat: "forcing_feature", hours: hours, features: features}
}

func stateOnly() *config.Output {
	return &config.Output{Variables: []*config.OutputVariable{
		{Name: "state", Dims: []string{"time", "level", "state_feature"}},
	}}
}

func stateAndForcing() *config.Output {
	return &config.Output{Variables: []*config.OutputVariable{
		{Name: "state", Dims: []string{"time", "level", "state_feature"}},
		{Name: "forcing", Dims: []string{"time", "forcing_feature"}},
	}}
}

func run(t *testing.T, out *config.Output, parts ...part) (*dataset.Dataset, error) {
	t.Helper()
	ctx, _ := testutil.Context(t)
	mc := NewContext(out)
	for _, p := range parts {
		if err := mc.Add(ctx, p.build(t)); err != nil {
			return nil, err
		}
	}
	return mc.Finalize(ctx)
}

func TestMerge_RetroactivePropagation(t *testing.T) {
	t.Parallel()
	a := state("a", 0, []int{0, 1}, []float64{100, 200}, "u")
	b := state("b", 1, []int{0, 1}, []float64{100}, "v")

	for name, order := range map[string][]part{"a first": {a, b}, "b first": {b, a}} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			// --- Act ---
			got, err := run(t, stateOnly(), order...)

			// --- Assert ---
			require.NoError(t, err)
			assert.Equal(t, dataset.Numbers(100), got.Index("level").Labels)
			assert.Equal(t, dataset.Strings("u", "v"), got.Index("state_feature").Labels)
			s, _ := got.Variable("state")
			assert.Equal(t, []int{2, 1, 2}, s.Shape)
			assert.Equal(t, []float64{100, 10100, 1100, 11100}, s.Data)
		})
	}
}

func TestMerge_SharedDimBindsEveryOutputVariable(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	mc := NewContext(stateAndForcing())
	require.True(t, mc.Shared("time"))
	require.False(t, mc.Shared("level"))

	// --- Act ---
	require.NoError(t, mc.Add(ctx, state("a", 0, []int{0, 1, 2, 3}, []float64{100}, "u").build(t)))
	require.NoError(t, mc.Add(ctx, forcing("f", 1, []int{1, 2, 3, 4}, "toa").build(t)))
	got, err := mc.Finalize(ctx)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 3, mc.Established("time").Len())
	assert.Equal(t, []string{"state", "forcing"}, got.VariableNames())
	assert.Equal(t, []string{"time", "level", "state_feature", "forcing_feature"}, got.Dims)
	s, _ := got.Variable("state")
	assert.Equal(t, []float64{1100, 2100, 3100}, s.Data, "state merged earlier is restricted too")
	f, _ := got.Variable("forcing")
	assert.Equal(t, []float64{11000, 12000, 13000}, f.Data)
}

func TestMerge_OrderIndependence(t *testing.T) {
	t.Parallel()
	parts := []part{
		state("a", 0, []int{0, 1, 2, 3}, []float64{200, 100, 50}, "u", "v"),
		state("b", 1, []int{1, 2, 3}, []float64{50, 100}, "t"),
		forcing("f", 2, []int{0, 1, 2}, "toa"),
	}
	permutations := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	want, err := run(t, stateAndForcing(), parts...)
	require.NoError(t, err)
	assert.Equal(t, dataset.Numbers(100, 50), want.Index("level").Labels, "label order follows the lowest rank")
	assert.Equal(t, 2, want.Size("time"))

	for _, perm := range permutations {
		ordered := []part{parts[perm[0]], parts[perm[1]], parts[perm[2]]}
		got, err := run(t, stateAndForcing(), ordered...)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got, labels); diff != "" {
			t.Errorf("merge in order %v differs (-want +got):\n%s", perm, diff)
		}
	}
}

func TestMerge_Idempotent(t *testing.T) {
	t.Parallel()
	parts := []part{
		state("a", 0, []int{0, 1}, []float64{100, 200}, "u"),
		state("b", 1, []int{0, 1}, []float64{100}, "v"),
	}

	first, err := run(t, stateOnly(), parts...)
	require.NoError(t, err)
	second, err := run(t, stateOnly(), parts...)
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(first, second, labels))
}

func TestMerge_SourceDatasetColumn(t *testing.T) {
	t.Parallel()

	got, err := run(t, stateOnly(),
		state("b", 1, []int{0}, []float64{100}, "t"),
		state("a", 0, []int{0}, []float64{100}, "u", "v"),
	)

	require.NoError(t, err)
	ix := got.Index("state_feature")
	assert.Equal(t, dataset.Strings("u", "v", "t"), ix.Labels)
	assert.Equal(t, dataset.Strings("a", "a", "b"), ix.Aux["state_feature"+SourceDatasetSuffix])
}

func TestMerge_CoordRanges(t *testing.T) {
	t.Parallel()

	t.Run("output ranges seed the established values", func(t *testing.T) {
		t.Parallel()
		out := stateOnly()
		out.CoordRanges = map[string]*config.Range{
			"time": {Start: cty.StringVal("1990-09-03T01:00"), End: cty.StringVal("1990-09-03T02:00")},
		}

		got, err := run(t, out, state("a", 0, []int{0, 1, 2, 3}, []float64{100}, "u"))

		require.NoError(t, err)
		assert.Equal(t, testutil.Hours(testutil.Epoch1990.Add(time.Hour), 2, time.Hour), got.Index("time").Labels)
	})

	t.Run("range bounds must be in the data", func(t *testing.T) {
		t.Parallel()
		out := stateOnly()
		out.CoordRanges = map[string]*config.Range{"level": {Start: cty.NumberIntVal(100), End: cty.NumberIntVal(150)}}

		_, err := run(t, out, state("a", 0, []int{0}, []float64{100, 200}, "u"))

		require.Error(t, err)
		assert.True(t, errors.Is(err, fault.ErrMissingCoordinateValue))
		var fe *fault.Error
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "a", fe.Source)
	})
}

func TestMerge_Errors(t *testing.T) {
	t.Parallel()

	t.Run("disjoint coordinates leave the merge unchanged", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.Context(t)
		mc := NewContext(stateOnly())
		require.NoError(t, mc.Add(ctx, state("a", 0, []int{0, 1}, []float64{100}, "u").build(t)))

		err := mc.Add(ctx, state("b", 1, []int{5, 6}, []float64{100}, "v").build(t))

		require.Error(t, err)
		assert.True(t, errors.Is(err, fault.ErrDisjointCoordinates))
		var fe *fault.Error
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "b", fe.Source)
		assert.Equal(t, "time", fe.Dim)
		assert.Equal(t, []string{"a"}, mc.Accumulator("state").Sources())
	})

	t.Run("duplicate members", func(t *testing.T) {
		t.Parallel()

		_, err := run(t, stateOnly(),
			state("a", 0, []int{0}, []float64{100}, "u"),
			state("b", 1, []int{0}, []float64{100}, "u"),
		)

		require.Error(t, err)
		assert.True(t, errors.Is(err, fault.ErrDuplicateAxisMember))
		assert.Contains(t, err.Error(), `member u is contributed by both "a" and "b"`)
	})

	t.Run("output variable without contributions", func(t *testing.T) {
		t.Parallel()

		_, err := run(t, stateAndForcing(), state("a", 0, []int{0}, []float64{100}, "u"))

		require.Error(t, err)
		assert.True(t, errors.Is(err, fault.ErrConfiguration))
		assert.Contains(t, err.Error(), `no source contributes to output variable "forcing"`)
	})
}

func TestProject(t *testing.T) {
	t.Parallel()
	data := state("a", 0, []int{0, 1, 2}, []float64{100}, "u").build(t).Data

	t.Run("reorders to the established members", func(t *testing.T) {
		t.Parallel()
		ix := dataset.NewIndex("time", []dataset.Label{
			dataset.Time(testutil.Epoch1990.Add(2 * time.Hour)),
			dataset.Time(testutil.Epoch1990),
		})

		got, err := project(data, ix)

		require.NoError(t, err)
		v, _ := got.Variable("state")
		assert.Equal(t, []float64{2000, 0}, v.Data)
	})

	t.Run("established member absent from the contribution", func(t *testing.T) {
		t.Parallel()
		ix := dataset.NewIndex("time", []dataset.Label{dataset.Time(testutil.Epoch1990.Add(5 * time.Hour))})

		_, err := project(data, ix)

		require.Error(t, err)
		assert.True(t, errors.Is(err, fault.ErrDisjointCoordinates))
		var fe *fault.Error
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "time", fe.Dim)
	})
}
