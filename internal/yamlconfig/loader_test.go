package yamlconfig

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

const exampleYAML = `
schema_version: v0.5.0
dataset_version: v0.1.0

extra:
  project: danra

output:
  variables:
    state: [time, grid_index, state_feature]
    forcing: [time, grid_index, forcing_feature]
  coord_ranges:
    time:
      start: 1990-09-03T00:00
      end: 1990-09-09T00:00
      step: PT3H
  chunking:
    time: 1
  splitting:
    dim: time
    splits:
      train:
        start: 1990-09-03T00:00
        end: 1990-09-06T00:00
        compute_statistics:
          ops: [mean, std, diff_mean]
          dims: [grid_index, time]
      validation:
        start: 1990-09-06T00:00
        end: 1990-09-07T00:00

inputs:
  danra_height_levels:
    path: height_levels.nc
    dims: [time, x, y, altitude]
    variables:
      u:
        altitude:
          values: [100, 200.5]
          units: m
      t:
        time:
          values:
            start: 1990-09-03T00:00
            end: 1990-09-04T00:00
    dim_mapping:
      time:
        method: rename
        dim: time
      state_feature:
        method: stack_variables_by_var_name
        dims: [altitude]
        name_format: f"{var_name}{altitude}m"
      grid_index:
        method: stack
        dims: [x, y]
    target_output_variable: state

  danra_surface:
    path: single_levels.nc
    dims: [time, x, y]
    attributes:
      source: danra
    variables:
      - pres_seasurface
    derived_variables:
      toa_radiation:
        function: physical_field.toa_radiation
        kwargs:
          time: ds_input.time
          lat: ds_input.lat
          lon: ds_input.lon
    dim_mapping:
      time:
        method: rename
        dim: time
      grid_index:
        method: stack
        dims: [x, y]
      forcing_feature:
        method: stack_variables_by_var_name
        name_format: "{var_name}"
    target_output_variable: forcing
`

func TestParse(t *testing.T) {
	t.Parallel()

	// --- Act ---
	cfg, err := Parse([]byte(exampleYAML))

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, config.SchemaV050, cfg.SchemaVersion)
	assert.Equal(t, map[string]string{"project": "danra"}, cfg.Extra)

	t.Run("output keeps declaration order", func(t *testing.T) {
		var names []string
		for _, v := range cfg.Output.Variables {
			names = append(names, v.Name)
		}
		assert.Equal(t, []string{"state", "forcing"}, names)
		require.Len(t, cfg.Output.Splitting.Splits, 2)
		assert.Equal(t, "train", cfg.Output.Splitting.Splits[0].Name)
		assert.Equal(t, cty.StringVal("1990-09-06T00:00"), cfg.Output.Splitting.Splits[0].End)
		assert.Nil(t, cfg.Output.Splitting.Splits[1].Statistics)
		assert.Equal(t, cty.StringVal("PT3H"), cfg.Output.CoordRanges["time"].Step)
	})

	t.Run("inputs keep declaration order", func(t *testing.T) {
		require.Len(t, cfg.Inputs, 2)
		assert.Equal(t, "danra_height_levels", cfg.Inputs[0].Name)
		assert.Equal(t, "danra_surface", cfg.Inputs[1].Name)
	})

	t.Run("selections", func(t *testing.T) {
		u := cfg.Inputs[0].Variables[0]
		require.Len(t, u.Selections, 1)
		sel := u.Selections[0]
		assert.Equal(t, "m", sel.Units)
		require.Len(t, sel.Values, 2)
		assert.True(t, sel.Values[0].Equals(cty.NumberIntVal(100)).True())
		assert.True(t, sel.Values[1].Equals(cty.NumberFloatVal(200.5)).True())

		rng := cfg.Inputs[0].Variables[1].Selections[0].Range
		require.NotNil(t, rng)
		assert.False(t, rng.HasStep())
	})

	t.Run("name format wrapper is removed", func(t *testing.T) {
		assert.Equal(t, "{var_name}{altitude}m", cfg.Inputs[0].DimMapping[1].NameFormat)
	})

	t.Run("bare variable list and derived variables", func(t *testing.T) {
		in := cfg.Inputs[1]
		require.Len(t, in.Variables, 1)
		assert.Equal(t, "pres_seasurface", in.Variables[0].Name)
		assert.Empty(t, in.Variables[0].Selections)
		assert.Equal(t, map[string]string{"source": "danra"}, in.Attributes)

		dv := in.DerivedVariables[0]
		assert.Equal(t, "physical_field.toa_radiation", dv.Function)
		var refs []string
		for _, kw := range dv.Kwargs {
			refs = append(refs, kw.Ref)
		}
		assert.Equal(t, []string{"lat", "lon", "time"}, refs)
	})
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty document":   "",
		"unknown key":      "schema_version: v0.5.0\nbogus: 1\noutput:\n  variables: {}\n",
		"missing output":   "schema_version: v0.5.0\n",
		"inputs as a list": "output:\n  variables: {}\ninputs: [a, b]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	dir := testutil.WriteFiles(t, map[string]string{"example.yaml": exampleYAML})

	// --- Act ---
	cfg, err := NewLoader().Load(ctx, filepath.Join(dir, "example.yaml"))

	// --- Assert ---
	require.NoError(t, err)
	require.NoError(t, config.Validate(cfg))

	_, err = NewLoader().Load(ctx, filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
