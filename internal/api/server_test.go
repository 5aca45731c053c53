package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/formbase/formbase/internal/engine"
	"github.com/formbase/formbase/internal/registry"
	"github.com/formbase/formbase/internal/relation"
	"github.com/formbase/formbase/internal/store"
)

// testServer creates a Server backed by in-memory stores.
func testServer(t *testing.T, opts ...Option) (*Server, *engine.Engine) {
	t.Helper()

	schemas := store.NewMockSchemaStore()
	apps := store.NewMockAppStore()
	pages := store.NewMockPageStore()
	records := store.NewMockRecordStore()
	reg := registry.New(&store.MockIndexer{}, slog.Default())
	resolver := relation.NewResolver(schemas, records, reg, slog.Default())

	eng := engine.New(engine.Config{
		Schemas:   schemas,
		Apps:      apps,
		Pages:     pages,
		Records:   records,
		Registry:  reg,
		Relations: resolver,
	})
	s := New(eng, slog.Default(), 0, opts...)
	return s, eng
}

func serveMux(s *Server) *http.ServeMux {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var resp envelope
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

func dataMap(t *testing.T, resp envelope) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %T, want object", resp.Data)
	}
	return m
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := testServer(t)
	mux := serveMux(s)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
}

// setupDataSource creates an app and a contacts data source through
// the HTTP surface and returns their ids.
func setupDataSource(t *testing.T, mux *http.ServeMux) (appID, dsID string) {
	t.Helper()

	w := doJSON(t, mux, "POST", "/api/apps", map[string]any{"appName": "CRM"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create app status = %d: %s", w.Code, w.Body)
	}
	appID = dataMap(t, decodeEnvelope(t, w))["appid"].(string)

	w = doJSON(t, mux, "POST", "/api/datasources", map[string]any{
		"title": "Contacts",
		"appid": appID,
		"fields": []map[string]any{
			{"name": "name", "type": "string", "label": "Name",
				"validation": map[string]any{"required": true}},
			{"name": "email", "type": "string", "label": "Email",
				"validation": map[string]any{"pattern": `^[^@\s]+@[^@\s]+$`}},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create data source status = %d: %s", w.Code, w.Body)
	}
	dsID = dataMap(t, decodeEnvelope(t, w))["datasourceid"].(string)
	return appID, dsID
}

func TestRecordLifecycleOverHTTP(t *testing.T) {
	s, _ := testServer(t)
	mux := serveMux(s)
	_, dsID := setupDataSource(t, mux)

	// Valid create.
	w := doJSON(t, mux, "POST", "/api/crud/"+dsID, map[string]any{
		"name": "Ada", "email": "ada@example.com",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create record status = %d: %s", w.Code, w.Body)
	}
	created := dataMap(t, decodeEnvelope(t, w))
	recordID, _ := created["_id"].(string)
	if recordID == "" {
		t.Fatal("created record has no _id")
	}

	// Invalid create surfaces the rule details.
	w = doJSON(t, mux, "POST", "/api/crud/"+dsID, map[string]any{"email": "nope"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid create status = %d, want 400", w.Code)
	}
	resp := decodeEnvelope(t, w)
	if resp.Success || len(resp.Details) != 2 {
		t.Errorf("invalid create response = %+v, want 2 details", resp)
	}

	// Read back.
	w = doJSON(t, mux, "GET", "/api/crud/"+dsID+"/"+recordID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get record status = %d", w.Code)
	}
	if got := dataMap(t, decodeEnvelope(t, w))["name"]; got != "Ada" {
		t.Errorf("name = %v, want Ada", got)
	}

	// Update.
	w = doJSON(t, mux, "PUT", "/api/crud/"+dsID+"/"+recordID, map[string]any{"name": "Ada L"})
	if w.Code != http.StatusOK {
		t.Fatalf("update record status = %d: %s", w.Code, w.Body)
	}

	// List with envelope pagination.
	w = doJSON(t, mux, "GET", "/api/crud/"+dsID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	resp = decodeEnvelope(t, w)
	if resp.Pagination == nil || resp.Pagination.Total != 1 {
		t.Errorf("pagination = %+v, want total 1", resp.Pagination)
	}

	// Delete, then 404.
	w = doJSON(t, mux, "DELETE", "/api/crud/"+dsID+"/"+recordID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = doJSON(t, mux, "GET", "/api/crud/"+dsID+"/"+recordID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
}

func TestListRecordsPaginationOverHTTP(t *testing.T) {
	s, _ := testServer(t)
	mux := serveMux(s)
	_, dsID := setupDataSource(t, mux)

	for i := 0; i < 12; i++ {
		w := doJSON(t, mux, "POST", "/api/crud/"+dsID, map[string]any{
			"name": fmt.Sprintf("c%02d", i),
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("seed %d status = %d", i, w.Code)
		}
	}

	w := doJSON(t, mux, "GET", "/api/crud/"+dsID+"?page=2&limit=5", nil)
	resp := decodeEnvelope(t, w)
	if resp.Pagination.Total != 12 || resp.Pagination.Pages != 3 || resp.Pagination.Page != 2 {
		t.Errorf("pagination = %+v, want total 12 over 3 pages, page 2", resp.Pagination)
	}
	records, ok := resp.Data.([]any)
	if !ok || len(records) != 5 {
		t.Errorf("page 2 size = %d, want 5", len(records))
	}
}

func TestBatchDeleteOverHTTP(t *testing.T) {
	s, _ := testServer(t)
	mux := serveMux(s)
	_, dsID := setupDataSource(t, mux)

	var ids []string
	for i := 0; i < 5; i++ {
		w := doJSON(t, mux, "POST", "/api/crud/"+dsID, map[string]any{"name": fmt.Sprintf("c%d", i)})
		ids = append(ids, dataMap(t, decodeEnvelope(t, w))["_id"].(string))
	}

	w := doJSON(t, mux, "DELETE", "/api/crud/"+dsID, map[string]any{
		"ids": ids[:3],
	})
	if w.Code != http.StatusOK {
		t.Fatalf("batch delete status = %d: %s", w.Code, w.Body)
	}
	if got := dataMap(t, decodeEnvelope(t, w))["deletedCount"]; got != float64(3) {
		t.Errorf("deletedCount = %v, want 3", got)
	}

	// The POST alias serves the same handler.
	w = doJSON(t, mux, "POST", "/api/crud/"+dsID+"/batch-delete", map[string]any{
		"ids": ids[3:],
	})
	if w.Code != http.StatusOK {
		t.Fatalf("batch delete alias status = %d: %s", w.Code, w.Body)
	}
	if got := dataMap(t, decodeEnvelope(t, w))["deletedCount"]; got != float64(2) {
		t.Errorf("deletedCount = %v, want 2", got)
	}

	w = doJSON(t, mux, "DELETE", "/api/crud/"+dsID, map[string]any{"ids": []string{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty batch delete status = %d, want 400", w.Code)
	}
}

func TestRecordStatsOverHTTP(t *testing.T) {
	s, _ := testServer(t)
	mux := serveMux(s)
	appID, _ := setupDataSource(t, mux)

	w := doJSON(t, mux, "POST", "/api/datasources", map[string]any{
		"title": "Tickets",
		"appid": appID,
		"fields": []map[string]any{
			{"name": "status", "type": "string", "label": "Status",
				"config": map[string]any{"options": []string{"open", "closed"}}},
		},
	})
	dsID := dataMap(t, decodeEnvelope(t, w))["datasourceid"].(string)

	for _, status := range []string{"open", "open", "closed"} {
		doJSON(t, mux, "POST", "/api/crud/"+dsID, map[string]any{"status": status})
	}

	w = doJSON(t, mux, "GET", "/api/crud/"+dsID+"/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d: %s", w.Code, w.Body)
	}
	stats := dataMap(t, decodeEnvelope(t, w))
	if stats["total"] != float64(3) || stats["today"] != float64(3) {
		t.Errorf("stats = %v, want total 3, today 3", stats)
	}
	fieldStats, _ := stats["fieldStats"].(map[string]any)
	if _, ok := fieldStats["status"]; !ok {
		t.Errorf("fieldStats = %v, want status histogram", fieldStats)
	}
}

func TestUnknownDataSourceIs404(t *testing.T) {
	s, _ := testServer(t)
	mux := serveMux(s)

	w := doJSON(t, mux, "POST", "/api/crud/ds_missing", map[string]any{"name": "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	resp := decodeEnvelope(t, w)
	if resp.Success || resp.Message == "" {
		t.Errorf("response = %+v, want failure message", resp)
	}
}

func TestDataSourceConfigEndpoint(t *testing.T) {
	s, _ := testServer(t)
	mux := serveMux(s)
	_, dsID := setupDataSource(t, mux)

	w := doJSON(t, mux, "GET", "/api/crud/datasource/"+dsID+"/config", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("config status = %d", w.Code)
	}
	cfg := dataMap(t, decodeEnvelope(t, w))
	fields, _ := cfg["fields"].([]any)
	if len(fields) != 2 {
		t.Errorf("config fields = %v, want 2", fields)
	}
}

func TestRelationOptionsOverHTTP(t *testing.T) {
	s, eng := testServer(t)
	mux := serveMux(s)
	appID, dsID := setupDataSource(t, mux)

	// Target data source with a couple of records.
	w := doJSON(t, mux, "POST", "/api/datasources", map[string]any{
		"title": "Departments",
		"appid": appID,
		"fields": []map[string]any{
			{"name": "deptName", "type": "string", "label": "Department"},
		},
	})
	targetID := dataMap(t, decodeEnvelope(t, w))["datasourceid"].(string)
	for _, name := range []string{"Engineering", "Sales"} {
		doJSON(t, mux, "POST", "/api/crud/"+targetID, map[string]any{"deptName": name})
	}

	// Attach the relation to the contacts name field.
	w = doJSON(t, mux, "PUT", "/api/datasources/"+dsID+"/relations", map[string]any{
		"name": map[string]any{
			"targetDataSourceId": targetID,
			"targetField":        "deptName",
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("set relations status = %d: %s", w.Code, w.Body)
	}

	ds, err := eng.GetDataSource(context.Background(), dsID)
	if err != nil {
		t.Fatalf("reloading data source: %v", err)
	}
	if ds.FieldByName("name").Relation == nil {
		t.Fatal("relation not persisted")
	}

	w = doJSON(t, mux, "GET", "/api/crud/"+dsID+"/fields/name/options", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("options status = %d: %s", w.Code, w.Body)
	}
	result := dataMap(t, decodeEnvelope(t, w))
	items, _ := result["items"].([]any)
	if len(items) != 2 {
		t.Errorf("items = %v, want 2", items)
	}

	// A relation pointing at a missing data source rejects the batch.
	w = doJSON(t, mux, "PUT", "/api/datasources/"+dsID+"/relations", map[string]any{
		"email": map[string]any{"targetDataSourceId": "ds_missing"},
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("bad relation status = %d, want 404", w.Code)
	}
}

func TestValidateRelationsEndpoint(t *testing.T) {
	s, _ := testServer(t)
	mux := serveMux(s)
	_, dsID := setupDataSource(t, mux)

	w := doJSON(t, mux, "POST", "/api/datasources/"+dsID+"/relations/validate", map[string]any{
		"name":  map[string]any{"targetDataSourceId": "ds_missing"},
		"ghost": map[string]any{"targetDataSourceId": "ds_missing"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("validate status = %d: %s", w.Code, w.Body)
	}
	results := dataMap(t, decodeEnvelope(t, w))
	for field, verdict := range results {
		v := verdict.(map[string]any)
		if v["valid"] == true {
			t.Errorf("field %s unexpectedly valid", field)
		}
	}
}

func TestRelationTargetOptionsOverHTTP(t *testing.T) {
	s, _ := testServer(t)
	mux := serveMux(s)
	appID, _ := setupDataSource(t, mux)

	w := doJSON(t, mux, "POST", "/api/datasources", map[string]any{
		"title": "Departments",
		"appid": appID,
		"fields": []map[string]any{
			{"name": "deptName", "type": "string", "label": "Department"},
		},
	})
	targetID := dataMap(t, decodeEnvelope(t, w))["datasourceid"].(string)
	for _, name := range []string{"Engineering", "Sales", "Support"} {
		doJSON(t, mux, "POST", "/api/crud/"+targetID, map[string]any{"deptName": name})
	}

	w = doJSON(t, mux, "GET", "/api/crud/relation/options/"+targetID+"?labelField=deptName", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("options status = %d: %s", w.Code, w.Body)
	}
	result := dataMap(t, decodeEnvelope(t, w))
	if items, _ := result["items"].([]any); len(items) != 3 {
		t.Errorf("items = %v, want 3", items)
	}

	w = doJSON(t, mux, "GET", "/api/crud/relation/options/"+targetID+"?labelField=deptName&searchFields=deptName&search=sal", nil)
	result = dataMap(t, decodeEnvelope(t, w))
	items, _ := result["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("searched items = %v, want 1", items)
	}
	if items[0].(map[string]any)["label"] != "Sales" {
		t.Errorf("label = %v, want Sales", items[0].(map[string]any)["label"])
	}

	w = doJSON(t, mux, "GET", "/api/crud/relation/options/ds_missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing target status = %d, want 404", w.Code)
	}
}

func TestValidateSingleRelationEndpoint(t *testing.T) {
	s, _ := testServer(t)
	mux := serveMux(s)
	_, dsID := setupDataSource(t, mux)

	w := doJSON(t, mux, "POST", "/api/crud/relation/validate", map[string]any{
		"relation": map[string]any{
			"targetDataSourceId": dsID,
			"targetField":        "name",
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("validate status = %d: %s", w.Code, w.Body)
	}
	if verdict := dataMap(t, decodeEnvelope(t, w)); verdict["valid"] != true {
		t.Errorf("verdict = %v, want valid", verdict)
	}

	w = doJSON(t, mux, "POST", "/api/crud/relation/validate", map[string]any{
		"relation": map[string]any{"targetDataSourceId": "ds_missing"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("invalid relation status = %d: %s", w.Code, w.Body)
	}
	verdict := dataMap(t, decodeEnvelope(t, w))
	if verdict["valid"] == true || verdict["error"] == nil {
		t.Errorf("verdict = %v, want invalid with error", verdict)
	}

	w = doJSON(t, mux, "POST", "/api/crud/relation/validate", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty body status = %d, want 400", w.Code)
	}
}

func TestPageReorderOverHTTP(t *testing.T) {
	s, _ := testServer(t)
	mux := serveMux(s)
	appID, _ := setupDataSource(t, mux)

	var ids []string
	for _, name := range []string{"Home", "About"} {
		w := doJSON(t, mux, "POST", "/api/pages", map[string]any{
			"pageName": name, "appid": appID,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("create page status = %d: %s", w.Code, w.Body)
		}
		ids = append(ids, dataMap(t, decodeEnvelope(t, w))["pageid"].(string))
	}

	w := doJSON(t, mux, "PUT", "/api/pages/reorder", map[string]any{
		"appid":   appID,
		"pageIds": []string{ids[1], ids[0]},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("reorder status = %d: %s", w.Code, w.Body)
	}
	pages, _ := decodeEnvelope(t, w).Data.([]any)
	first := pages[0].(map[string]any)
	if first["pageName"] != "About" {
		t.Errorf("first page = %v, want About", first["pageName"])
	}
}

func TestCacheDebugEndpoints(t *testing.T) {
	s, _ := testServer(t)
	mux := serveMux(s)
	_, dsID := setupDataSource(t, mux)

	doJSON(t, mux, "POST", "/api/crud/"+dsID, map[string]any{"name": "Ada"})

	w := doJSON(t, mux, "GET", "/api/debug/cache", nil)
	state := dataMap(t, decodeEnvelope(t, w))
	collections, _ := state["collections"].([]any)
	if len(collections) != 1 {
		t.Fatalf("cached collections = %v, want 1", collections)
	}

	w = doJSON(t, mux, "DELETE", "/api/debug/cache/"+dsID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("evict status = %d", w.Code)
	}
	w = doJSON(t, mux, "GET", "/api/debug/cache", nil)
	state = dataMap(t, decodeEnvelope(t, w))
	if collections, _ := state["collections"].([]any); len(collections) != 0 {
		t.Errorf("cached collections after evict = %v, want none", collections)
	}
}
