package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/dataprep/internal/dataset"
)

// DatasetBuilder assembles small synthetic datasets for tests.
type DatasetBuilder struct {
	t  *testing.T
	ds *dataset.Dataset
}

// NewDataset starts an empty dataset.
func NewDataset(t *testing.T) *DatasetBuilder {
	t.Helper()
	return &DatasetBuilder{t: t, ds: dataset.New()}
}

// Dim adds a dimension with the given members. attrs are key/value pairs.
func (b *DatasetBuilder) Dim(name string, labels []dataset.Label, attrs ...string) *DatasetBuilder {
	b.t.Helper()
	ix := dataset.NewIndex(name, labels)
	setAttrs(ix.Attrs, attrs)
	require.NoError(b.t, b.ds.SetIndex(ix))
	return b
}

// Var adds a data variable whose value at each element is fn of its
// per-dim positions. attrs are key/value pairs.
func (b *DatasetBuilder) Var(name string, dims []string, fn func(pos []int) float64, attrs ...string) *DatasetBuilder {
	b.t.Helper()
	require.NoError(b.t, b.ds.AddVariable(b.build(name, dims, fn, attrs)))
	return b
}

// Coord adds a non-index coordinate variable.
func (b *DatasetBuilder) Coord(name string, dims []string, fn func(pos []int) float64, attrs ...string) *DatasetBuilder {
	b.t.Helper()
	require.NoError(b.t, b.ds.AddCoord(b.build(name, dims, fn, attrs)))
	return b
}

// Attr sets a dataset attribute.
func (b *DatasetBuilder) Attr(key, value string) *DatasetBuilder {
	b.ds.Attrs[key] = value
	return b
}

// Build returns the assembled dataset.
func (b *DatasetBuilder) Build() *dataset.Dataset { return b.ds }

func (b *DatasetBuilder) build(name string, dims []string, fn func(pos []int) float64, attrs []string) *dataset.Variable {
	b.t.Helper()
	shape := b.ds.Shape(dims)
	n := 1
	for _, s := range shape {
		n *= s
	}
	data := make([]float64, n)
	pos := make([]int, len(dims))
	for i := range data {
		rem := i
		for a := len(dims) - 1; a >= 0; a-- {
			pos[a] = rem % shape[a]
			rem /= shape[a]
		}
		data[i] = fn(pos)
	}
	v, err := dataset.NewVariable(name, dims, shape, data)
	require.NoError(b.t, err)
	setAttrs(v.Attrs, attrs)
	return v
}

func setAttrs(dst map[string]string, kv []string) {
	for i := 0; i+1 < len(kv); i += 2 {
		dst[kv[i]] = kv[i+1]
	}
}

// Hours returns n time labels spaced step apart, starting at start.
func Hours(start time.Time, n int, step time.Duration) []dataset.Label {
	out := make([]dataset.Label, n)
	for i := range out {
		out[i] = dataset.Time(start.Add(time.Duration(i) * step))
	}
	return out
}

// Range returns the numbers 0..n-1 scaled by step and offset by start.
func Range(start, step float64, n int) []dataset.Label {
	out := make([]dataset.Label, n)
	for i := range out {
		out[i] = dataset.Number(start + float64(i)*step)
	}
	return out
}

// Epoch1990 is the first time step used by test datasets.
var Epoch1990 = time.Date(1990, 9, 3, 0, 0, 0, 0, time.UTC)
