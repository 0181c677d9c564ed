package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/source"
	"github.com/vk/dataprep/internal/store"
	"github.com/vk/dataprep/internal/testutil"
)

func TestRun_PanicRecovery(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Define an HCL string with a syntax error that is guaranteed to cause a panic
	// during the loading phase inside app.NewApp().
	invalidHCL := `
		output {
			variable "state" {
		// Missing closing brace here
	`
	// Create a temporary directory and file to hold the invalid config.
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "main.hcl")
	err := os.WriteFile(filePath, []byte(invalidHCL), 0600)
	require.NoError(t, err, "failed to set up test file")

	// Prepare the arguments for the run function.
	args := []string{filePath}
	out := &bytes.Buffer{}

	// --- Act ---
	// Call the run function, which should recover the panic and return it as an error.
	runErr := run(out, args)

	// --- Assert ---
	require.Error(t, runErr, "run() should have returned an error after recovering from a panic")

	errStr := runErr.Error()
	require.True(t, strings.Contains(errStr, "application startup panicked"), "The error message should indicate that a panic was recovered.")
	require.True(t, strings.Contains(errStr, "failed to parse"), "The error message should contain the underlying reason for the panic.")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	args := []string{"-h"}
	out := &bytes.Buffer{}

	// --- Act ---
	// The run function should see `shouldExit=true` and return a nil error.
	err := run(out, args)

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Providing an unknown flag will cause cli.Parse to return an error.
	args := []string{"--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}

	// --- Act ---
	// The run function should propagate the error from cli.Parse.
	err := run(out, args)

	// --- Assert ---
	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	ctx, _ := testutil.Context(t)
	src := testutil.NewDataset(t).
		Dim("time", testutil.Hours(testutil.Epoch1990, 4, time.Hour)).
		Dim("x", testutil.Range(0, 1, 2)).
		Dim("y", testutil.Range(0, 1, 2)).
		Var("t2m", []string{"time", "x", "y"}, func(pos []int) float64 { return float64(280 + pos[0]) },
			"units", "K", "long_name", "2m temperature").
		Build()
	require.NoError(t, store.NetCDF{}.Write(ctx, filepath.Join(dir, "surface.nc"), src, nil))

	cfg := `
schema_version: v0.5.0
dataset_version: v0.1.0
output:
  variables:
    state: [time, grid_index, state_feature]
inputs:
  surface:
    path: ` + filepath.Join(dir, "surface.nc") + `
    dims: [time, x, y]
    variables:
      - t2m
    dim_mapping:
      time:
        method: rename
        dim: time
      grid_index:
        method: stack
        dims: [x, y]
      state_feature:
        method: stack_variables_by_var_name
        name_format: "{var_name}"
    target_output_variable: state
`
	cfgPath := filepath.Join(dir, "build.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(out, []string{"--log-format", "text", cfgPath})

	// --- Assert ---
	require.NoError(t, err, out.String())
	built, err := source.NetCDF{}.Open(ctx, filepath.Join(dir, "build.nc"))
	require.NoError(t, err)
	state, ok := built.Variable("state")
	require.True(t, ok)
	assert.Equal(t, []string{"time", "grid_index", "state_feature"}, state.Dims)
	assert.Equal(t, 280.0, state.Data[0])
	assert.Equal(t, "v0.1.0", built.Attrs["dataset_version"])
	assert.Equal(t, dataset.KindTuple, built.Index("grid_index").Kind())
}
