// Package registry derives and memoizes the runtime storage-collection
// definition for each data source. It is the single shared mutable
// structure in the process: a handle map keyed by data-source id.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/formbase/formbase/internal/apperr"
	"github.com/formbase/formbase/internal/schema"
)

// IndexSpec is a single-field ascending index hint.
type IndexSpec struct {
	Field string
	Name  string
}

// Handle is the derived, cached storage definition for one data source.
// It is immutable once registered.
type Handle struct {
	DataSourceID   string
	CollectionName string
	FieldTypes     map[string]schema.StorageType
	Indexes        []IndexSpec
}

// Indexer creates indexes against the storage backend.
type Indexer interface {
	EnsureIndexes(ctx context.Context, collection string, specs []IndexSpec) error
}

// Registry caches one Handle per data-source id and guarantees
// at-most-one effective materialization (index-creation side effect)
// per id, even under concurrent first use.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle
	group   singleflight.Group
	indexer Indexer
	logger  *slog.Logger
}

// New creates an empty registry backed by the given indexer.
func New(indexer Indexer, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handles: make(map[string]*Handle),
		indexer: indexer,
		logger:  logger,
	}
}

// CollectionName is the deterministic physical collection name for a
// data source, stable across restarts.
func CollectionName(dataSourceID string) string {
	return "data_" + dataSourceID
}

// GetOrCreate returns the handle for the data source, deriving and
// registering it on first use. The first caller materializes indexes;
// concurrent callers for the same id wait and share the outcome. A
// failed materialization registers nothing, so a later call retries.
func (r *Registry) GetOrCreate(ctx context.Context, ds *schema.DataSource) (*Handle, error) {
	r.mu.RLock()
	h := r.handles[ds.ID]
	r.mu.RUnlock()
	if h != nil {
		return h, nil
	}

	v, err, _ := r.group.Do(ds.ID, func() (any, error) {
		// Re-check under the flight: a previous caller may have
		// registered between our miss and the claim.
		r.mu.RLock()
		existing := r.handles[ds.ID]
		r.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		h, err := derive(ds)
		if err != nil {
			return nil, err
		}
		if err := r.indexer.EnsureIndexes(ctx, h.CollectionName, h.Indexes); err != nil {
			return nil, apperr.Storage("ensuring indexes on "+h.CollectionName, err)
		}

		r.mu.Lock()
		r.handles[ds.ID] = h
		r.mu.Unlock()

		r.logger.Debug("registered dynamic collection",
			"datasourceid", ds.ID,
			"collection", h.CollectionName,
			"fields", len(h.FieldTypes),
		)
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// derive maps the schema's fields to storage types and index hints.
func derive(ds *schema.DataSource) (*Handle, error) {
	if len(ds.Fields) == 0 {
		return nil, &apperr.InvalidSchemaError{Reason: fmt.Sprintf("data source %s has no fields", ds.ID)}
	}
	if err := ds.CheckFields(); err != nil {
		return nil, err
	}

	h := &Handle{
		DataSourceID:   ds.ID,
		CollectionName: CollectionName(ds.ID),
		FieldTypes:     make(map[string]schema.StorageType, len(ds.Fields)+2),
	}

	for i := range ds.Fields {
		f := &ds.Fields[i]
		st, _ := schema.StorageTypeOf(f.Type)
		h.FieldTypes[f.Name] = st
		if f.Required() {
			h.Indexes = append(h.Indexes, IndexSpec{Field: f.Name, Name: "idx_" + f.Name})
		}
	}

	// System columns are always present and always indexed.
	h.FieldTypes["appid"] = schema.StorageString
	h.FieldTypes["datasourceid"] = schema.StorageString
	h.Indexes = append(h.Indexes,
		IndexSpec{Field: "appid", Name: "idx_appid"},
		IndexSpec{Field: "datasourceid", Name: "idx_datasourceid"},
	)

	return h, nil
}

// Invalidate drops the cached handle for one data source. The physical
// collection and its indexes persist; only the cache entry is evicted.
func (r *Registry) Invalidate(dataSourceID string) {
	r.mu.Lock()
	delete(r.handles, dataSourceID)
	r.mu.Unlock()
}

// InvalidateAll drops every cached handle.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	r.handles = make(map[string]*Handle)
	r.mu.Unlock()
}

// Cached returns the ids with a registered handle, for diagnostics.
func (r *Registry) Cached() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	return ids
}
