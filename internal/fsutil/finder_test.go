package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFiles(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	for _, name := range []string{"b.hcl", "a.hcl", "notes.txt", filepath.Join("inputs", "c.hcl")} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("# test"), 0o600))
	}

	// --- Act ---
	files, err := FindFiles(dir, ".hcl")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.hcl"),
		filepath.Join(dir, "b.hcl"),
		filepath.Join(dir, "inputs", "c.hcl"),
	}, files)

	single, err := FindFiles(filepath.Join(dir, "notes.txt"), ".hcl")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "notes.txt")}, single)

	_, err = FindFiles(filepath.Join(dir, "missing"), ".hcl")
	require.Error(t, err)
}

func TestHasExtension(t *testing.T) {
	t.Parallel()

	assert.True(t, HasExtension("build.YAML", ".yaml", ".yml"))
	assert.False(t, HasExtension("build.hcl", ".yaml", ".yml"))
}
