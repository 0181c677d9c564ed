package chunking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vk/dataprep/internal/testutil"
)

func TestNewPlan(t *testing.T) {
	t.Parallel()
	ctx, logs := testutil.Context(t)
	ds := testutil.NewDataset(t).
		Dim("time", testutil.Hours(testutil.Epoch1990, 4, time.Hour)).
		Dim("grid_index", testutil.Range(0, 1, 6)).
		Var("state", []string{"time", "grid_index"}, func(p []int) float64 { return 0 }).
		Build()

	plan := NewPlan(ctx, ds, map[string]int{"time": 2, "grid_index": 100})

	assert.Equal(t, Plan{"time": 2, "grid_index": 6}, plan)
	v, _ := ds.Variable("state")
	assert.Equal(t, []int{2, 6}, plan.For(v))
	assert.NotContains(t, logs.String(), "exceeds")

	t.Run("defaults to one chunk per dim", func(t *testing.T) {
		assert.Equal(t, Plan{"time": 4, "grid_index": 6}, NewPlan(ctx, ds, nil))
	})

	t.Run("oversized configured chunks warn", func(t *testing.T) {
		sizes := map[string]int{"time": 1 << 20, "grid_index": 1 << 10}
		assert.Equal(t, int64(8<<30), ChunkBytes(v, sizes))

		NewPlan(ctx, ds, sizes)

		assert.Contains(t, logs.String(), "Chunk size exceeds 1 GiB.")
	})
}
