// Package api exposes the engine over HTTP: generic record CRUD per
// data source, data-source and app/page management, relation
// resolution, and a WebSocket feed of live changes.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/formbase/formbase/internal/engine"
	"github.com/formbase/formbase/internal/ws"
)

// Server is the REST API server.
type Server struct {
	engine  *engine.Engine
	hub     *ws.Hub
	logger  *slog.Logger
	port    int
	server  *http.Server
	devMode bool
}

// Option configures the API server.
type Option func(*Server)

// WithDevMode enables CORS for development.
func WithDevMode(dev bool) Option {
	return func(s *Server) {
		s.devMode = dev
	}
}

// WithHub sets the WebSocket hub.
func WithHub(hub *ws.Hub) Option {
	return func(s *Server) {
		s.hub = hub
	}
}

// New creates a new API server.
func New(eng *engine.Engine, logger *slog.Logger, port int, opts ...Option) *Server {
	s := &Server{
		engine: eng,
		logger: logger,
		port:   port,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = requestLogger(s.logger, mux)
	if s.devMode {
		handler = s.corsMiddleware(handler)
	}
	return handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	s.logger.Info("starting API server", "port", s.port, "dev_mode", s.devMode)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)

	// Generic record CRUD, keyed by data source.
	mux.HandleFunc("POST /api/crud/{datasourceid}", s.handleCreateRecord)
	mux.HandleFunc("GET /api/crud/{datasourceid}", s.handleListRecords)
	mux.HandleFunc("GET /api/crud/{datasourceid}/stats", s.handleRecordStats)
	mux.HandleFunc("DELETE /api/crud/{datasourceid}", s.handleBatchDeleteRecords)
	mux.HandleFunc("POST /api/crud/{datasourceid}/batch-delete", s.handleBatchDeleteRecords)
	mux.HandleFunc("GET /api/crud/{datasourceid}/fields/{field}/options", s.handleRelationOptions)
	mux.HandleFunc("GET /api/crud/relation/options/{targetdatasourceid}", s.handleRelationTargetOptions)
	mux.HandleFunc("POST /api/crud/relation/validate", s.handleValidateRelation)
	mux.HandleFunc("GET /api/crud/datasource/{id}/config", s.handleDataSourceConfig)
	mux.HandleFunc("GET /api/crud/{datasourceid}/{id}", s.handleGetRecord)
	mux.HandleFunc("PUT /api/crud/{datasourceid}/{id}", s.handleUpdateRecord)
	mux.HandleFunc("DELETE /api/crud/{datasourceid}/{id}", s.handleDeleteRecord)

	// Data-source definitions.
	mux.HandleFunc("POST /api/datasources", s.handleCreateDataSource)
	mux.HandleFunc("GET /api/datasources", s.handleListDataSources)
	mux.HandleFunc("GET /api/datasources/{id}", s.handleGetDataSource)
	mux.HandleFunc("PUT /api/datasources/{id}", s.handleUpdateDataSource)
	mux.HandleFunc("DELETE /api/datasources/{id}", s.handleDeleteDataSource)
	mux.HandleFunc("GET /api/datasources/{id}/fields", s.handleDataSourceFields)
	mux.HandleFunc("POST /api/datasources/{id}/publish", s.handlePublishDataSource)
	mux.HandleFunc("POST /api/datasources/{id}/archive", s.handleArchiveDataSource)
	mux.HandleFunc("POST /api/datasources/{id}/clone", s.handleCloneDataSource)
	mux.HandleFunc("PUT /api/datasources/{id}/relations", s.handleSetRelations)
	mux.HandleFunc("POST /api/datasources/{id}/relations/validate", s.handleValidateRelations)

	// Apps.
	mux.HandleFunc("POST /api/apps", s.handleCreateApp)
	mux.HandleFunc("GET /api/apps", s.handleListApps)
	mux.HandleFunc("GET /api/apps/{id}", s.handleGetApp)
	mux.HandleFunc("GET /api/apps/{id}/full", s.handleGetAppFull)
	mux.HandleFunc("PUT /api/apps/{id}", s.handleUpdateApp)
	mux.HandleFunc("DELETE /api/apps/{id}", s.handleDeleteApp)
	mux.HandleFunc("POST /api/apps/{id}/publish", s.handlePublishApp)
	mux.HandleFunc("POST /api/apps/{id}/archive", s.handleArchiveApp)
	mux.HandleFunc("POST /api/apps/{id}/clone", s.handleCloneApp)

	// Pages.
	mux.HandleFunc("POST /api/pages", s.handleCreatePage)
	mux.HandleFunc("GET /api/pages", s.handleListPages)
	mux.HandleFunc("PUT /api/pages/reorder", s.handleReorderPages)
	mux.HandleFunc("GET /api/pages/{id}", s.handleGetPage)
	mux.HandleFunc("PUT /api/pages/{id}", s.handleUpdatePage)
	mux.HandleFunc("DELETE /api/pages/{id}", s.handleDeletePage)
	mux.HandleFunc("POST /api/pages/{id}/publish", s.handlePublishPage)
	mux.HandleFunc("POST /api/pages/{id}/archive", s.handleArchivePage)

	// Collection-cache diagnostics.
	mux.HandleFunc("GET /api/debug/cache", s.handleCacheState)
	mux.HandleFunc("DELETE /api/debug/cache", s.handleCacheFlush)
	mux.HandleFunc("DELETE /api/debug/cache/{datasourceid}", s.handleCacheEvict)

	// WebSocket
	if s.hub != nil {
		mux.HandleFunc("/api/ws", s.hub.HandleWebSocket)
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
