package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("positional path and defaults", func(t *testing.T) {
		t.Parallel()
		cfg, exit, err := Parse([]string{"configs/danra.yaml"}, &bytes.Buffer{})

		require.NoError(t, err)
		assert.False(t, exit)
		assert.Equal(t, "configs/danra.yaml", cfg.ConfigPath)
		assert.Equal(t, "configs/danra.nc", cfg.OutputPath)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.GreaterOrEqual(t, cfg.Workers, 1)
	})

	t.Run("flags", func(t *testing.T) {
		t.Parallel()
		cfg, _, err := Parse([]string{"-c", "grid", "-o", "out.nc", "--log-format", "TEXT", "--log-level", "debug", "--workers", "3"}, &bytes.Buffer{})

		require.NoError(t, err)
		assert.Equal(t, "grid", cfg.ConfigPath)
		assert.Equal(t, "out.nc", cfg.OutputPath)
		assert.Equal(t, "text", cfg.LogFormat)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 3, cfg.Workers)
	})

	t.Run("recreate flags", func(t *testing.T) {
		t.Parallel()
		cfg, _, err := Parse([]string{
			"--recreate", "built.nc", "--recreate-output-format", "in/{input_name}.nc",
			"--only-inputs", "surface, levels", "--chunks", "time=10,grid_index=500", "a.yaml",
		}, &bytes.Buffer{})

		require.NoError(t, err)
		assert.Equal(t, "built.nc", cfg.RecreateFrom)
		assert.Equal(t, "in/{input_name}.nc", cfg.RecreatePathFormat)
		assert.Equal(t, []string{"surface", "levels"}, cfg.RecreateInputs)
		assert.Equal(t, map[string]int{"time": 10, "grid_index": 500}, cfg.RecreateChunks)
	})

	t.Run("no path prints usage", func(t *testing.T) {
		t.Parallel()
		out := &bytes.Buffer{}
		cfg, exit, err := Parse(nil, out)

		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	})

	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "bad log format", args: []string{"--log-format", "xml", "a.yaml"}, want: "invalid log-format"},
		{name: "bad log level", args: []string{"--log-level", "trace", "a.yaml"}, want: "invalid log-level"},
		{name: "no workers", args: []string{"--workers", "0", "a.yaml"}, want: "workers must be at least 1"},
		{name: "bad chunks", args: []string{"--chunks", "time=0", "a.yaml"}, want: "invalid chunks entry"},
		{name: "chunks without size", args: []string{"--chunks", "time", "a.yaml"}, want: "invalid chunks entry"},
		{name: "recreate format without name", args: []string{"--recreate", "b.nc", "--recreate-output-format", "x.nc", "a.yaml"}, want: "must contain {input_name}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := Parse(tc.args, &bytes.Buffer{})

			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr))
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.want)
		})
	}
}
