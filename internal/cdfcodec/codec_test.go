package cdfcodec

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dataprep/internal/chunking"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/testutil"
)

// memGroup serves encoded variables the way an open file would.
type memGroup struct {
	vars  []Var
	attrs api.AttributeMap
}

func (g *memGroup) Attributes() api.AttributeMap { return g.attrs }

func (g *memGroup) ListVariables() []string {
	names := make([]string, len(g.vars))
	for i, v := range g.vars {
		names[i] = v.Name
	}
	return names
}

func (g *memGroup) GetVariable(name string) (*api.Variable, error) {
	for _, v := range g.vars {
		if v.Name == name {
			vr := v.Variable
			return &vr, nil
		}
	}
	return nil, fmt.Errorf("no variable %q", name)
}

func merged(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds := testutil.NewDataset(t).
		Dim("time", testutil.Hours(testutil.Epoch1990, 3, 3*time.Hour), "long_name", "time").
		Dim("x", testutil.Range(0, 1, 2)).
		Dim("y", testutil.Range(10, 5, 2)).
		Dim("state_feature", dataset.Strings("u100m", "t2m")).
		Var("state", []string{"time", "x", "y", "state_feature"}, func(pos []int) float64 {
			if pos[0] == 2 && pos[3] == 1 {
				return math.NaN()
			}
			return float64(1000*pos[0] + 100*pos[1] + 10*pos[2] + pos[3])
		}, "description", "model state").
		Coord("lat", []string{"x", "y"}, func(pos []int) float64 { return 50 + float64(pos[0]+pos[1]) }, "units", "degrees_north").
		Attr("dataset_version", "v1.0.0").
		Build()
	require.NoError(t, ds.Stack("grid_index", []string{"x", "y"}))
	require.NoError(t, ds.Index("state_feature").SetAux("state_feature_units", dataset.Strings("m/s", "K")))
	return ds
}

var compare = []cmp.Option{
	cmp.Comparer(func(a, b dataset.Label) bool { return a.Equal(b) }),
	cmpopts.EquateNaNs(),
	cmpopts.EquateEmpty(),
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ds := merged(t)

	// --- Act ---
	vars, attrs, err := Encode(ds, chunking.Plan{"time": 2})
	require.NoError(t, err)
	got, err := Decode(&memGroup{vars: vars, attrs: attrs})

	// --- Assert ---
	require.NoError(t, err)
	if diff := cmp.Diff(ds, got, compare...); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()
	ds := merged(t)

	vars, attrs, err := Encode(ds, chunking.Plan{"time": 2})
	require.NoError(t, err)

	byName := map[string]api.Variable{}
	var order []string
	for _, v := range vars {
		byName[v.Name] = v.Variable
		order = append(order, v.Name)
	}

	t.Run("indexes come first", func(t *testing.T) {
		assert.Equal(t, []string{
			"time", "grid_index_x", "grid_index_y", "grid_index",
			"state_feature", "state_feature_units", "lat", "state",
		}, order)
	})

	t.Run("times are seconds since the epoch", func(t *testing.T) {
		tv := byName["time"]
		require.IsType(t, []float64{}, tv.Values)
		assert.Equal(t, float64(testutil.Epoch1990.Unix()), tv.Values.([]float64)[0])
		units, ok := tv.Attributes.Get(AttrUnits)
		require.True(t, ok)
		assert.Equal(t, "seconds since 1970-01-01 00:00:00", units)
	})

	t.Run("string labels are positions", func(t *testing.T) {
		fv := byName["state_feature"]
		assert.Equal(t, []int32{0, 1}, fv.Values)
		enc, _ := fv.Attributes.Get(AttrLabels)
		assert.Equal(t, `["u100m","t2m"]`, enc)
	})

	t.Run("data variables are nested and annotated", func(t *testing.T) {
		sv := byName["state"]
		assert.Equal(t, []string{"time", "state_feature", "grid_index"}, sv.Dimensions)
		require.IsType(t, [][][]float64{}, sv.Values)
		coords, _ := sv.Attributes.Get(AttrCoordinates)
		assert.Equal(t, "lat", coords)
		chunks, _ := sv.Attributes.Get(AttrChunkSizes)
		assert.Equal(t, []int32{2, 2, 4}, chunks)
	})

	t.Run("no name starts with an underscore", func(t *testing.T) {
		for _, v := range vars {
			assert.False(t, strings.HasPrefix(v.Name, "_"), v.Name)
			for _, k := range v.Attributes.Keys() {
				assert.False(t, strings.HasPrefix(k, "_"), "%s.%s", v.Name, k)
			}
		}
		for _, k := range attrs.Keys() {
			assert.False(t, strings.HasPrefix(k, "_"), k)
		}
	})

	t.Run("global attributes", func(t *testing.T) {
		v, ok := attrs.Get("dataset_version")
		require.True(t, ok)
		assert.Equal(t, "v1.0.0", v)
	})
}

func TestEncode_ReservedNames(t *testing.T) {
	t.Parallel()

	t.Run("reserved attributes are left out", func(t *testing.T) {
		t.Parallel()
		// --- Arrange ---
		ds := merged(t)
		ds.Vars[0].Attrs["_FillValue"] = "-999"
		ds.Attrs["_NCProperties"] = "version=2"

		// --- Act ---
		vars, attrs, err := Encode(ds, chunking.Plan{"time": 1})

		// --- Assert ---
		require.NoError(t, err)
		_, ok := attrs.Get("_NCProperties")
		assert.False(t, ok)
		for _, v := range vars {
			for _, k := range v.Attributes.Keys() {
				assert.False(t, strings.HasPrefix(k, "_"), "%s.%s", v.Name, k)
			}
		}
	})

	t.Run("reserved variable names are rejected", func(t *testing.T) {
		t.Parallel()
		// --- Arrange ---
		ds := merged(t)
		ds.Vars[0].Name = "_state"

		// --- Act ---
		_, _, err := Encode(ds, nil)

		// --- Assert ---
		require.Error(t, err)
		assert.Contains(t, err.Error(), "starts with an underscore")
	})
}

func TestDecode(t *testing.T) {
	t.Parallel()

	t.Run("dims without an index get positions", func(t *testing.T) {
		t.Parallel()
		g := &memGroup{vars: []Var{
			{Name: "t2m", Variable: api.Variable{Values: [][]float32{{1, 2, 3}, {4, 5, 6}}, Dimensions: []string{"y", "x"}}},
		}}

		ds, err := Decode(g)

		require.NoError(t, err)
		assert.Equal(t, []string{"y", "x"}, ds.Dims)
		assert.True(t, ds.Index("x").Labels[2].Equal(dataset.Number(2)))
		v, ok := ds.Variable("t2m")
		require.True(t, ok)
		assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, v.Data)
	})

	t.Run("fill values become NaN", func(t *testing.T) {
		t.Parallel()
		am, err := attributeMap(map[string]any{AttrFillValue: []float64{-999}, "units": "K"})
		require.NoError(t, err)
		g := &memGroup{vars: []Var{
			{Name: "t2m", Variable: api.Variable{Values: []float64{280, -999}, Dimensions: []string{"x"}, Attributes: am}},
		}}

		ds, err := Decode(g)

		require.NoError(t, err)
		v, _ := ds.Variable("t2m")
		assert.Equal(t, 280.0, v.Data[0])
		assert.True(t, math.IsNaN(v.Data[1]))
		assert.Equal(t, map[string]string{"units": "K"}, v.Attrs)
	})

	t.Run("CF time units decode to times", func(t *testing.T) {
		t.Parallel()
		am, err := attributeMap(map[string]any{AttrUnits: "hours since 1990-09-01 00:00:00"})
		require.NoError(t, err)
		g := &memGroup{vars: []Var{
			{Name: "time", Variable: api.Variable{Values: []int32{0, 6}, Dimensions: []string{"time"}, Attributes: am}},
		}}

		ds, err := Decode(g)

		require.NoError(t, err)
		ix := ds.Index("time")
		assert.Equal(t, dataset.KindTime, ix.Kind())
		assert.True(t, ix.Labels[1].Equal(dataset.Time(time.Date(1990, 9, 1, 6, 0, 0, 0, time.UTC))))
		assert.Empty(t, ix.Attrs)
	})

	t.Run("inconsistent dim lengths", func(t *testing.T) {
		t.Parallel()
		g := &memGroup{vars: []Var{
			{Name: "a", Variable: api.Variable{Values: []float64{1, 2}, Dimensions: []string{"x"}}},
			{Name: "b", Variable: api.Variable{Values: []float64{1, 2, 3}, Dimensions: []string{"x"}}},
		}}

		_, err := Decode(g)

		require.Error(t, err)
		assert.Contains(t, err.Error(), `has 3 members along "x"`)
	})
}
