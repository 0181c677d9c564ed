package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/vk/dataprep/internal/cdfcodec"
	"github.com/vk/dataprep/internal/chunking"
	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/dataset"
)

// CreatedWith is recorded in the created_with attribute.
const CreatedWith = "dataprep"

// Writer persists a dataset at path.
type Writer interface {
	Write(ctx context.Context, path string, ds *dataset.Dataset, plan chunking.Plan) error
}

// NetCDF writes netCDF files.
type NetCDF struct{}

// Write implements Writer.
func (NetCDF) Write(ctx context.Context, path string, ds *dataset.Dataset, plan chunking.Plan) (err error) {
	logger := ctxlog.FromContext(ctx)

	vars, attrs, err := cdfcodec.Encode(ds, plan)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	_ = os.Remove(tmp)
	w, err := cdf.OpenWriter(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	for _, v := range vars {
		if err := w.AddVar(v.Name, v.Variable); err != nil {
			return errors.Join(fmt.Errorf("writing variable %q to %s: %w", v.Name, path, err), w.Close())
		}
	}
	if err := w.AddAttributes(attrs); err != nil {
		return errors.Join(fmt.Errorf("writing attributes to %s: %w", path, err), w.Close())
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("moving %s into place: %w", path, err)
	}
	logger.Info("Wrote dataset.", "path", path, "variables", len(ds.Vars), "dims", ds.Dims)
	return nil
}

// Memory records written datasets by path.
type Memory struct {
	written sync.Map // Key: path, Value: *dataset.Dataset
	plans   sync.Map // Key: path, Value: chunking.Plan
}

// NewMemory creates an empty Memory writer.
func NewMemory() *Memory {
	return &Memory{}
}

// Write implements Writer.
func (m *Memory) Write(ctx context.Context, path string, ds *dataset.Dataset, plan chunking.Plan) error {
	m.written.Store(path, ds.Clone())
	m.plans.Store(path, maps.Clone(plan))
	return nil
}

// Get returns the dataset last written at path.
func (m *Memory) Get(path string) (*dataset.Dataset, chunking.Plan, bool) {
	ds, ok := m.written.Load(path)
	if !ok {
		return nil, nil, false
	}
	plan, _ := m.plans.Load(path)
	return ds.(*dataset.Dataset), plan.(chunking.Plan), true
}

// Provenance returns the attributes describing how a dataset was built.
// Extra metadata is copied first, so it cannot shadow them.
func Provenance(cfg *config.Config, now time.Time, version string) map[string]string {
	attrs := maps.Clone(cfg.Extra)
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs["schema_version"] = cfg.SchemaVersion
	attrs["dataset_version"] = cfg.DatasetVersion
	attrs["created_on"] = now.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05")
	attrs["created_with"] = CreatedWith
	if version != "" {
		attrs["created_with_version"] = version
	}
	return attrs
}

// WithAttrs returns a shallow copy of ds whose attributes also hold attrs.
// ds itself is not modified.
func WithAttrs(ds *dataset.Dataset, attrs map[string]string) *dataset.Dataset {
	out := *ds
	out.Attrs = maps.Clone(ds.Attrs)
	if out.Attrs == nil {
		out.Attrs = map[string]string{}
	}
	maps.Copy(out.Attrs, attrs)
	return &out
}
