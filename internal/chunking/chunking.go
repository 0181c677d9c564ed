// Package chunking plans the chunk sizes the merged dataset is written
// with. Dims without a configured size get a single chunk.
package chunking

import (
	"context"
	"maps"
	"slices"

	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/dataset"
)

// MaxChunkBytes is the chunk size above which a warning is logged.
const MaxChunkBytes = 1 << 30

// BytesPerElement is the storage width of a data value.
const BytesPerElement = 8

// Plan maps each dim to its chunk length.
type Plan map[string]int

// NewPlan resolves the configured sizes against the dims of ds. Sizes larger
// than a dim are clamped to its length.
func NewPlan(ctx context.Context, ds *dataset.Dataset, sizes map[string]int) Plan {
	logger := ctxlog.FromContext(ctx)
	plan := make(Plan, len(ds.Dims))
	for _, d := range ds.Dims {
		n := ds.Size(d)
		size, ok := sizes[d]
		if !ok || size > n {
			size = n
		}
		plan[d] = max(size, 1)
	}
	logger.Info("Chunking dataset.", "chunks", map[string]int(plan))
	warnOversized(ctx, ds, sizes)
	return plan
}

// For returns the chunk shape of v.
func (p Plan) For(v *dataset.Variable) []int {
	out := make([]int, len(v.Dims))
	for i, d := range v.Dims {
		size, ok := p[d]
		if !ok {
			size = v.Shape[i]
		}
		out[i] = size
	}
	return out
}

// Dims lists the planned dims in sorted order.
func (p Plan) Dims() []string { return slices.Sorted(maps.Keys(p)) }

// ChunkBytes is the size of one chunk of v under the configured sizes. Dims
// without a configured size do not contribute.
func ChunkBytes(v *dataset.Variable, sizes map[string]int) int64 {
	total := int64(BytesPerElement)
	for _, d := range v.Dims {
		if size, ok := sizes[d]; ok {
			total *= int64(size)
		}
	}
	return total
}

func warnOversized(ctx context.Context, ds *dataset.Dataset, sizes map[string]int) {
	logger := ctxlog.FromContext(ctx)
	for _, v := range ds.Vars {
		if b := ChunkBytes(v, sizes); b > MaxChunkBytes {
			logger.Warn("Chunk size exceeds 1 GiB.", "variable", v.Name, "bytes", b)
		}
	}
}
