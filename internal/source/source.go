package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/vk/dataprep/internal/cdfcodec"
	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/fault"
)

// Opener loads the dataset stored at path.
type Opener interface {
	Open(ctx context.Context, path string) (*dataset.Dataset, error)
}

// NetCDF opens netCDF files.
type NetCDF struct{}

// Open implements Opener.
func (NetCDF) Open(ctx context.Context, path string) (*dataset.Dataset, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Opening netCDF source.", "path", path)

	g, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer g.Close()

	ds, err := cdfcodec.Decode(g)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	logger.Debug("Opened netCDF source.", "path", path, "dims", ds.Dims, "variables", len(ds.Vars))
	return ds, nil
}

// Memory serves datasets registered with Put. Open returns a clone, so
// callers may modify what they get.
type Memory struct {
	datasets sync.Map // Key: path, Value: *dataset.Dataset
}

// NewMemory creates an empty Memory opener.
func NewMemory() *Memory {
	return &Memory{}
}

// Put registers ds under path, replacing any earlier dataset.
func (m *Memory) Put(path string, ds *dataset.Dataset) {
	m.datasets.Store(path, ds)
}

// Open implements Opener.
func (m *Memory) Open(ctx context.Context, path string) (*dataset.Dataset, error) {
	v, ok := m.datasets.Load(path)
	if !ok {
		return nil, fmt.Errorf("opening %s: no such dataset", path)
	}
	return v.(*dataset.Dataset).Clone(), nil
}

// CheckAttributes verifies that ds carries every expected attribute with
// exactly the expected value. All mismatches are reported together.
func CheckAttributes(ds *dataset.Dataset, expected map[string]string) error {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var problems []string
	for _, k := range keys {
		got, ok := ds.Attrs[k]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("attribute %q is missing", k))
		case got != expected[k]:
			problems = append(problems, fmt.Sprintf("attribute %q is %q, expected %q", k, got, expected[k]))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fault.New(fault.Configuration, "dataset attributes do not match: %s", strings.Join(problems, "; "))
}
