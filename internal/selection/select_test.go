package selection

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/fault"
	"github.com/vk/dataprep/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

func heightLevels(t *testing.T) *dataset.Dataset {
	t.Helper()
	return testutil.NewDataset(t).
		Dim("time", testutil.Hours(testutil.Epoch1990, 4, 3*time.Hour)).
		Dim("x", testutil.Range(0, 1, 2)).
		Dim("altitude", dataset.Numbers(50, 100, 200), "units", "m").
		Var("u", []string{"time", "x", "altitude"}, func(p []int) float64 { return float64(100*p[0] + 10*p[1] + p[2]) }, "units", "m/s").
		Var("v", []string{"time", "x", "altitude"}, func(p []int) float64 { return -float64(p[2]) }, "units", "m/s").
		Var("orography", []string{"x"}, func(p []int) float64 { return float64(p[0]) }).
		Coord("lat", []string{"x"}, func(p []int) float64 { return 55 + float64(p[0]) }).
		Build()
}

func values(vals ...cty.Value) []cty.Value { return vals }

func TestSelect(t *testing.T) {
	t.Parallel()

	t.Run("values select exact members in order", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.Context(t)
		ds := heightLevels(t)

		got, err := Select(ctx, ds, []*config.VariableRequest{{
			Name:       "u",
			Units:      "m/s",
			Selections: []*config.Selection{{Dim: "altitude", Values: values(cty.NumberIntVal(200), cty.NumberIntVal(100)), Units: "m"}},
		}})

		require.NoError(t, err)
		assert.Equal(t, []string{"u"}, got.VariableNames())
		assert.True(t, got.Index("altitude").Labels[0].Equal(dataset.Number(200)))
		u, _ := got.Variable("u")
		assert.Equal(t, []int{4, 2, 2}, u.Shape)
		assert.Equal(t, []float64{2, 1, 12, 11}, u.Data[:4])
		_, hasLat := got.Coord("lat")
		assert.True(t, hasLat)
		assert.Equal(t, 3, ds.Size("altitude"), "source must not be modified")
	})

	t.Run("bare name returns the whole variable", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.Context(t)
		ds := heightLevels(t)

		got, err := Select(ctx, ds, []*config.VariableRequest{{Name: "orography"}})

		require.NoError(t, err)
		assert.Equal(t, []string{"x"}, got.Dims)
		o, _ := got.Variable("orography")
		src, _ := ds.Variable("orography")
		assert.True(t, o.Equal(src))
	})

	t.Run("inclusive time range with step", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.Context(t)
		ds := heightLevels(t)

		got, err := Select(ctx, ds, []*config.VariableRequest{{
			Name: "u",
			Selections: []*config.Selection{{Dim: "time", Range: &config.Range{
				Start: cty.StringVal("1990-09-03T03:00"),
				End:   cty.StringVal("1990-09-03T09:00"),
				Step:  cty.StringVal("PT3H"),
			}}},
		}})

		require.NoError(t, err)
		assert.Equal(t, 3, got.Size("time"))
	})

	t.Run("two variables share one selection", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.Context(t)
		sel := func() []*config.Selection {
			return []*config.Selection{{Dim: "altitude", Values: values(cty.NumberIntVal(100))}}
		}

		got, err := Select(ctx, heightLevels(t), []*config.VariableRequest{
			{Name: "u", Selections: sel()},
			{Name: "v", Selections: sel()},
		})

		require.NoError(t, err)
		v, _ := got.Variable("v")
		assert.Equal(t, []float64{-1, -1, -1, -1, -1, -1, -1, -1}, v.Data)
	})
}

func TestSelect_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		request *config.VariableRequest
		kind    error
		want    string
	}{
		{
			name:    "unknown variable lists the available ones",
			request: &config.VariableRequest{Name: "w"},
			kind:    fault.ErrConfiguration,
			want:    "available variables are u, v, orography",
		},
		{
			name:    "variable units differ",
			request: &config.VariableRequest{Name: "u", Units: "ft/s"},
			kind:    fault.ErrUnitMismatch,
			want:    `expected units "ft/s" but got "m/s"`,
		},
		{
			name:    "variable records no units",
			request: &config.VariableRequest{Name: "orography", Units: "m"},
			kind:    fault.ErrUnitMismatch,
			want:    "records none",
		},
		{
			name: "coordinate units differ",
			request: &config.VariableRequest{Name: "u", Selections: []*config.Selection{
				{Dim: "altitude", Values: values(cty.NumberIntVal(100)), Units: "ft"},
			}},
			kind: fault.ErrUnitMismatch,
			want: `dim "altitude"`,
		},
		{
			name: "absent value",
			request: &config.VariableRequest{Name: "u", Selections: []*config.Selection{
				{Dim: "altitude", Values: values(cty.NumberIntVal(150))},
			}},
			kind: fault.ErrMissingCoordinateValue,
			want: "value 150 not found",
		},
		{
			name: "range bound not in the data",
			request: &config.VariableRequest{Name: "u", Selections: []*config.Selection{
				{Dim: "time", Range: &config.Range{Start: cty.StringVal("1990-09-03T01:00"), End: cty.StringVal("1990-09-03T09:00")}},
			}},
			kind: fault.ErrMissingCoordinateValue,
			want: "is not in the data",
		},
		{
			name: "range step differs",
			request: &config.VariableRequest{Name: "u", Selections: []*config.Selection{
				{Dim: "time", Range: &config.Range{Start: cty.StringVal("1990-09-03T00:00"), End: cty.StringVal("1990-09-03T09:00"), Step: cty.StringVal("PT1H")}},
			}},
			kind: fault.ErrConfiguration,
			want: "is not the requested one (1h0m0s)",
		},
		{
			name: "selection on a dim the variable lacks",
			request: &config.VariableRequest{Name: "orography", Selections: []*config.Selection{
				{Dim: "altitude", Values: values(cty.NumberIntVal(100))},
			}},
			kind: fault.ErrConfiguration,
			want: "does not span dim",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx, _ := testutil.Context(t)

			got, err := Select(ctx, heightLevels(t), []*config.VariableRequest{tc.request})

			require.Error(t, err)
			assert.Nil(t, got, "no partial data on failure")
			assert.True(t, errors.Is(err, tc.kind), err.Error())
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	t.Run("conflicting selections on one dim", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.Context(t)

		_, err := Select(ctx, heightLevels(t), []*config.VariableRequest{
			{Name: "u", Selections: []*config.Selection{{Dim: "altitude", Values: values(cty.NumberIntVal(100))}}},
			{Name: "v", Selections: []*config.Selection{{Dim: "altitude", Values: values(cty.NumberIntVal(200))}}},
		})

		require.Error(t, err)
		assert.True(t, errors.Is(err, fault.ErrConfiguration))
		assert.Contains(t, err.Error(), `selection differs from the one made for variable "u"`)
	})

	t.Run("coordinate that does not fit its dims", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.Context(t)
		ds := heightLevels(t)
		lat, _ := ds.Coord("lat")
		lat.Shape = []int{3}
		lat.Data = []float64{55, 56, 57}

		_, err := Select(ctx, ds, []*config.VariableRequest{{Name: "u"}})

		require.Error(t, err)
		assert.True(t, errors.Is(err, fault.ErrConfiguration))
		var fe *fault.Error
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "lat", fe.Variable)
	})
}

func TestRange_NumericStep(t *testing.T) {
	t.Parallel()
	ix := dataset.NewIndex("altitude", dataset.Numbers(0, 50, 100, 150))

	pos, err := Range(ix, &config.Range{Start: cty.NumberIntVal(50), End: cty.NumberIntVal(150), Step: cty.NumberIntVal(50)})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, pos)

	_, err = Range(ix, &config.Range{Start: cty.NumberIntVal(50), End: cty.NumberIntVal(50)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be the same")
}
