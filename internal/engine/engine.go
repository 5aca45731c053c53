// Package engine implements the application core: data-source
// lifecycle, app and page metadata, and schema-driven record CRUD over
// dynamically materialized collections.
package engine

import (
	"log/slog"

	"github.com/formbase/formbase/internal/registry"
	"github.com/formbase/formbase/internal/relation"
	"github.com/formbase/formbase/internal/store"
)

// EventSink receives change notifications for live subscribers.
// Implementations must not block; the engine calls them inline on the
// request path.
type EventSink interface {
	RecordEvent(dataSourceID, action string, payload any)
	DataSourceEvent(dataSourceID, action string)
}

type noopSink struct{}

func (noopSink) RecordEvent(string, string, any) {}
func (noopSink) DataSourceEvent(string, string)  {}

// Config wires the engine's collaborators.
type Config struct {
	Schemas   store.SchemaStore
	Apps      store.AppStore
	Pages     store.PageStore
	Records   store.RecordStore
	Registry  *registry.Registry
	Relations *relation.Resolver
	Events    EventSink
	Logger    *slog.Logger
}

// Engine coordinates schema storage, collection materialization,
// validation, and record persistence.
type Engine struct {
	schemas   store.SchemaStore
	apps      store.AppStore
	pages     store.PageStore
	records   store.RecordStore
	registry  *registry.Registry
	relations *relation.Resolver
	events    EventSink
	logger    *slog.Logger
}

// New creates an engine from cfg. Events and Logger are optional.
func New(cfg Config) *Engine {
	if cfg.Events == nil {
		cfg.Events = noopSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		schemas:   cfg.Schemas,
		apps:      cfg.Apps,
		pages:     cfg.Pages,
		records:   cfg.Records,
		registry:  cfg.Registry,
		relations: cfg.Relations,
		events:    cfg.Events,
		logger:    cfg.Logger,
	}
}

// Registry exposes the collection registry for cache diagnostics.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Relations exposes the relation resolver.
func (e *Engine) Relations() *relation.Resolver {
	return e.relations
}
