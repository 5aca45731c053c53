package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/formbase/formbase/internal/apperr"
	"github.com/formbase/formbase/internal/engine"
	"github.com/formbase/formbase/internal/relation"
	"github.com/formbase/formbase/internal/schema"
)

// Record CRUD

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeJSON(r, &payload); err != nil {
		s.renderError(w, err)
		return
	}

	record, err := s.engine.CreateRecord(r.Context(), r.PathValue("datasourceid"), payload)
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusCreated, record)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, pagination, err := s.engine.ListRecords(r.Context(), r.PathValue("datasourceid"), queryParams(r))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respondPage(w, records, pagination)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.engine.GetRecord(r.Context(), r.PathValue("datasourceid"), r.PathValue("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, record)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeJSON(r, &payload); err != nil {
		s.renderError(w, err)
		return
	}

	record, err := s.engine.UpdateRecord(r.Context(), r.PathValue("datasourceid"), r.PathValue("id"), payload)
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, record)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteRecord(r.Context(), r.PathValue("datasourceid"), r.PathValue("id")); err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"id": r.PathValue("id")})
}

func (s *Server) handleBatchDeleteRecords(w http.ResponseWriter, r *http.Request) {
	var req batchDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.renderError(w, err)
		return
	}

	deleted, err := s.engine.BatchDeleteRecords(r.Context(), r.PathValue("datasourceid"), req.IDs)
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]int64{"deletedCount": deleted})
}

func (s *Server) handleRecordStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.RecordStats(r.Context(), r.PathValue("datasourceid"), queryParams(r))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, stats)
}

// handleDataSourceConfig serves the field configuration a form
// renderer needs, keyed under the CRUD prefix for client convenience.
func (s *Server) handleDataSourceConfig(w http.ResponseWriter, r *http.Request) {
	ds, err := s.engine.GetDataSourceFields(r.Context(), r.PathValue("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, ds)
}

// Relations

func (s *Server) handleRelationOptions(w http.ResponseWriter, r *http.Request) {
	ds, err := s.engine.GetDataSource(r.Context(), r.PathValue("datasourceid"))
	if err != nil {
		s.renderError(w, err)
		return
	}

	fieldName := r.PathValue("field")
	field := ds.FieldByName(fieldName)
	if field == nil {
		s.renderError(w, apperr.NotFound("field "+fieldName))
		return
	}
	if field.Relation == nil {
		s.renderError(w, apperr.InvalidRequest("field "+fieldName+" has no relation"))
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := s.engine.Relations().Options(r.Context(), field.Relation, relation.OptionsRequest{
		Search:   q.Get("search"),
		Page:     page,
		PageSize: pageSize,
		Limit:    limit,
	})
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// handleRelationTargetOptions serves options for an ad hoc relation
// described entirely by query parameters, before any field persists it.
func (s *Server) handleRelationTargetOptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	rel := &schema.Relation{
		TargetDataSourceID: r.PathValue("targetdatasourceid"),
		TargetField:        q.Get("labelField"),
		TargetValueField:   q.Get("valueField"),
	}
	if sf := q.Get("searchFields"); sf != "" {
		rel.SearchFields = strings.Split(sf, ",")
	}
	if q.Get("search") != "" || len(rel.SearchFields) > 0 {
		rel.Searchable = true
	}

	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if page > 0 || pageSize > 0 {
		rel.Paginated = true
		rel.PageSize = pageSize
	}

	result, err := s.engine.Relations().Options(r.Context(), rel, relation.OptionsRequest{
		Search:   q.Get("search"),
		Page:     page,
		PageSize: pageSize,
		Limit:    limit,
	})
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// handleValidateRelation checks one relation config and always answers
// 200 with a verdict; malformed bodies are the only error path.
func (s *Server) handleValidateRelation(w http.ResponseWriter, r *http.Request) {
	var req validateRelationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.renderError(w, err)
		return
	}
	if req.Relation == nil {
		s.renderError(w, apperr.InvalidRequest("relation is required"))
		return
	}

	if _, err := s.engine.Relations().Validate(r.Context(), req.Relation); err != nil {
		respond(w, http.StatusOK, relationVerdict{Error: err.Error()})
		return
	}
	respond(w, http.StatusOK, relationVerdict{Valid: true})
}

func (s *Server) handleSetRelations(w http.ResponseWriter, r *http.Request) {
	var req relationsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.renderError(w, err)
		return
	}

	ds, err := s.engine.SetRelations(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, ds)
}

// handleValidateRelations dry-runs a relation batch, reporting a
// per-field verdict instead of failing the request.
func (s *Server) handleValidateRelations(w http.ResponseWriter, r *http.Request) {
	var req relationsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.renderError(w, err)
		return
	}

	ds, err := s.engine.GetDataSource(r.Context(), r.PathValue("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}

	results := make(map[string]relationCheck, len(req))
	for name, rel := range req {
		if ds.FieldByName(name) == nil {
			results[name] = relationCheck{Message: "field does not exist"}
			continue
		}
		if _, err := s.engine.Relations().Validate(r.Context(), rel); err != nil {
			results[name] = relationCheck{Message: err.Error()}
			continue
		}
		results[name] = relationCheck{Valid: true}
	}
	respond(w, http.StatusOK, results)
}

// Data sources

func (s *Server) handleCreateDataSource(w http.ResponseWriter, r *http.Request) {
	var in engine.CreateDataSourceInput
	if err := decodeJSON(r, &in); err != nil {
		s.renderError(w, err)
		return
	}

	ds, err := s.engine.CreateDataSource(r.Context(), in)
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusCreated, ds)
}

func (s *Server) handleListDataSources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.engine.ListDataSources(r.Context(), q.Get("appid"), q.Get("status"), q.Get("category"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, list)
}

func (s *Server) handleGetDataSource(w http.ResponseWriter, r *http.Request) {
	ds, err := s.engine.GetDataSource(r.Context(), r.PathValue("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, ds)
}

func (s *Server) handleDataSourceFields(w http.ResponseWriter, r *http.Request) {
	ds, err := s.engine.GetDataSourceFields(r.Context(), r.PathValue("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, ds)
}

func (s *Server) handleUpdateDataSource(w http.ResponseWriter, r *http.Request) {
	var req updateDataSourceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.renderError(w, err)
		return
	}

	ds, err := s.engine.UpdateDataSource(r.Context(), r.PathValue("id"), req.patch())
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, ds)
}

func (s *Server) handleDeleteDataSource(w http.ResponseWriter, r *http.Request) {
	ds, err := s.engine.DeleteDataSource(r.Context(), r.PathValue("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, ds)
}

func (s *Server) handlePublishDataSource(w http.ResponseWriter, r *http.Request) {
	ds, err := s.engine.PublishDataSource(r.Context(), r.PathValue("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, ds)
}

func (s *Server) handleArchiveDataSource(w http.ResponseWriter, r *http.Request) {
	ds, err := s.engine.ArchiveDataSource(r.Context(), r.PathValue("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, ds)
}

func (s *Server) handleCloneDataSource(w http.ResponseWriter, r *http.Request) {
	var req cloneDataSourceRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.renderError(w, err)
			return
		}
	}

	clone, err := s.engine.CloneDataSource(r.Context(), r.PathValue("id"), req.Title)
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusCreated, clone)
}

// Apps

func (s *Server) handleCreateApp(w http.ResponseWriter, r *http.Request) {
	var in engine.CreateAppInput
	if err := decodeJSON(r, &in); err != nil {
		s.renderError(w, err)
		return
	}

	app, err := s.engine.CreateApp(r.Context(), in)
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusCreated, app)
}

func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	apps, err := s.engine.ListApps(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, apps)
}

func (s *Server) handleGetApp(w http.ResponseWriter, r *http.Request) {
	app, err := s.engine.GetApp(r.Context(), r.PathValue("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, app)
}

func (s *Server) handleGetAppFull(w http.ResponseWriter, r *http.Request) {
	full, err := s.engine.GetAppFull(r.Context(), r.PathValue("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, full)
}

func (s *Server) handleUpdateApp(w http.ResponseWriter, r *http.Request) {
	var req updateAppRequest
	if err := decodeJSON(r, &req); err != nil {
		s.renderError(w, err)
		return
	}

	app, err := s.engine.UpdateApp(r.Context(), r.PathValue("id"), req.patch())
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, app)
}

func (s *Server) handleDeleteApp(w http.ResponseWriter, r *http.Request) {
	app, err := s.engine.DeleteApp(r.Context(), r.PathValue("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, app)
}

func (s *Server) handlePublishApp(w http.ResponseWriter, r *http.Request) {
	app, err := s.engine.PublishApp(r.Context(), r.PathValue("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, app)
}

func (s *Server) handleArchiveApp(w http.ResponseWriter, r *http.Request) {
	app, err := s.engine.ArchiveApp(r.Context(), r.PathValue("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, app)
}

func (s *Server) handleCloneApp(w http.ResponseWriter, r *http.Request) {
	var req cloneAppRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.renderError(w, err)
			return
		}
	}

	clone, err := s.engine.CloneApp(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusCreated, clone)
}

// Pages

func (s *Server) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	var in engine.CreatePageInput
	if err := decodeJSON(r, &in); err != nil {
		s.renderError(w, err)
		return
	}

	page, err := s.engine.CreatePage(r.Context(), in)
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusCreated, page)
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.engine.ListPages(r.Context(), r.URL.Query().Get("appid"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, pages)
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.engine.GetPage(r.Context(), r.PathValue("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, page)
}

func (s *Server) handleUpdatePage(w http.ResponseWriter, r *http.Request) {
	var req updatePageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.renderError(w, err)
		return
	}

	page, err := s.engine.UpdatePage(r.Context(), r.PathValue("id"), req.patch())
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, page)
}

func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	page, err := s.engine.DeletePage(r.Context(), r.PathValue("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, page)
}

func (s *Server) handlePublishPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.engine.PublishPage(r.Context(), r.PathValue("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, page)
}

func (s *Server) handleArchivePage(w http.ResponseWriter, r *http.Request) {
	page, err := s.engine.ArchivePage(r.Context(), r.PathValue("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, page)
}

func (s *Server) handleReorderPages(w http.ResponseWriter, r *http.Request) {
	var req reorderPagesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.renderError(w, err)
		return
	}
	if req.AppID == "" {
		s.renderError(w, apperr.InvalidRequest("appid is required"))
		return
	}

	pages, err := s.engine.ReorderPages(r.Context(), req.AppID, req.PageIDs)
	if err != nil {
		s.renderError(w, err)
		return
	}
	respond(w, http.StatusOK, pages)
}

// Cache diagnostics

func (s *Server) handleCacheState(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"collections": s.engine.Registry().Cached(),
	})
}

func (s *Server) handleCacheFlush(w http.ResponseWriter, r *http.Request) {
	s.engine.Registry().InvalidateAll()
	respond(w, http.StatusOK, map[string]string{"status": "flushed"})
}

func (s *Server) handleCacheEvict(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("datasourceid")
	s.engine.Registry().Invalidate(id)
	respond(w, http.StatusOK, map[string]string{"evicted": id})
}
