package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/formbase/formbase/internal/apperr"
	"github.com/formbase/formbase/internal/identifier"
	"github.com/formbase/formbase/internal/query"
	"github.com/formbase/formbase/internal/registry"
	"github.com/formbase/formbase/internal/schema"
)

// MockSchemaStore is an in-memory SchemaStore for testing.
type MockSchemaStore struct {
	mu sync.Mutex

	// IDFunc overrides id generation, e.g. to force collisions.
	IDFunc func() string

	byID  map[string]*schema.DataSource
	order []string
}

// NewMockSchemaStore returns an empty mock schema store.
func NewMockSchemaStore() *MockSchemaStore {
	return &MockSchemaStore{byID: make(map[string]*schema.DataSource)}
}

func (s *MockSchemaStore) generateID() string {
	if s.IDFunc != nil {
		return s.IDFunc()
	}
	return identifier.New(identifier.PrefixDataSource)
}

func (s *MockSchemaStore) Create(_ context.Context, ds *schema.DataSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	ds.CreatedAt = now
	ds.UpdatedAt = now

	for attempt := 0; attempt < identifier.MaxAttempts; attempt++ {
		id := s.generateID()
		if _, taken := s.byID[id]; taken {
			continue
		}
		ds.ID = id
		copied := *ds
		s.byID[id] = &copied
		s.order = append(s.order, id)
		return nil
	}
	return apperr.ErrDuplicateIdentifier
}

func (s *MockSchemaStore) Get(_ context.Context, id string) (*schema.DataSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("data source " + id)
	}
	copied := *ds
	return &copied, nil
}

func (s *MockSchemaStore) GetFields(ctx context.Context, id string) (*schema.DataSource, error) {
	ds, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &schema.DataSource{ID: ds.ID, Title: ds.Title, Fields: ds.Fields}, nil
}

func (s *MockSchemaStore) ListByApp(_ context.Context, appID, status, category string) ([]*schema.DataSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*schema.DataSource
	// Newest first.
	for i := len(s.order) - 1; i >= 0; i-- {
		ds := s.byID[s.order[i]]
		if ds == nil || ds.AppID != appID {
			continue
		}
		if status != "" && string(ds.Status) != status {
			continue
		}
		if category != "" && string(ds.Category) != category {
			continue
		}
		copied := *ds
		out = append(out, &copied)
	}
	return out, nil
}

func (s *MockSchemaStore) Update(_ context.Context, id string, patch SchemaPatch) (*schema.DataSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("data source " + id)
	}
	if patch.Title != nil {
		ds.Title = *patch.Title
	}
	if patch.Description != nil {
		ds.Description = *patch.Description
	}
	if patch.Fields != nil {
		fields := *patch.Fields
		schema.NormalizeFields(fields)
		ds.Fields = fields
	}
	if patch.Version != nil {
		ds.Version = *patch.Version
	}
	if patch.Status != nil {
		ds.Status = *patch.Status
	}
	if patch.Category != nil {
		ds.Category = *patch.Category
	}
	if patch.Tags != nil {
		ds.Tags = *patch.Tags
	}
	ds.UpdatedAt = time.Now()

	copied := *ds
	return &copied, nil
}

func (s *MockSchemaStore) Delete(_ context.Context, id string) (*schema.DataSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("data source " + id)
	}
	delete(s.byID, id)
	return ds, nil
}

// MockAppStore is an in-memory AppStore for testing.
type MockAppStore struct {
	mu sync.Mutex

	IDFunc func() string

	byID  map[string]*App
	order []string
}

// NewMockAppStore returns an empty mock app store.
func NewMockAppStore() *MockAppStore {
	return &MockAppStore{byID: make(map[string]*App)}
}

func (s *MockAppStore) generateID() string {
	if s.IDFunc != nil {
		return s.IDFunc()
	}
	return identifier.New(identifier.PrefixApp)
}

func (s *MockAppStore) Create(_ context.Context, app *App) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	app.CreatedAt = now
	app.UpdatedAt = now
	if app.Pages == nil {
		app.Pages = []string{}
	}
	if app.DataSources == nil {
		app.DataSources = []string{}
	}

	for attempt := 0; attempt < identifier.MaxAttempts; attempt++ {
		id := s.generateID()
		if _, taken := s.byID[id]; taken {
			continue
		}
		app.ID = id
		copied := *app
		s.byID[id] = &copied
		s.order = append(s.order, id)
		return nil
	}
	return apperr.ErrDuplicateIdentifier
}

func (s *MockAppStore) Get(_ context.Context, id string) (*App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("app " + id)
	}
	copied := *app
	return &copied, nil
}

func (s *MockAppStore) List(_ context.Context, status string) ([]*App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*App
	for i := len(s.order) - 1; i >= 0; i-- {
		app := s.byID[s.order[i]]
		if app == nil {
			continue
		}
		if status != "" && string(app.Status) != status {
			continue
		}
		copied := *app
		out = append(out, &copied)
	}
	return out, nil
}

func (s *MockAppStore) Update(_ context.Context, id string, patch AppPatch) (*App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("app " + id)
	}
	if patch.Name != nil {
		app.Name = *patch.Name
	}
	if patch.Description != nil {
		app.Description = *patch.Description
	}
	if patch.Version != nil {
		app.Version = *patch.Version
	}
	if patch.Status != nil {
		app.Status = *patch.Status
	}
	if patch.Tags != nil {
		app.Tags = *patch.Tags
	}
	app.UpdatedAt = time.Now()

	copied := *app
	return &copied, nil
}

func (s *MockAppStore) Delete(_ context.Context, id string) (*App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("app " + id)
	}
	delete(s.byID, id)
	return app, nil
}

func (s *MockAppStore) mutateList(appID string, mutate func(*App)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.byID[appID]
	if !ok {
		return apperr.NotFound("app " + appID)
	}
	mutate(app)
	app.UpdatedAt = time.Now()
	return nil
}

func addToSet(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func removeFrom(list []string, v string) []string {
	out := list[:0]
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func (s *MockAppStore) AddDataSource(_ context.Context, appID, dataSourceID string) error {
	return s.mutateList(appID, func(a *App) { a.DataSources = addToSet(a.DataSources, dataSourceID) })
}

func (s *MockAppStore) RemoveDataSource(_ context.Context, appID, dataSourceID string) error {
	return s.mutateList(appID, func(a *App) { a.DataSources = removeFrom(a.DataSources, dataSourceID) })
}

func (s *MockAppStore) AddPage(_ context.Context, appID, pageID string) error {
	return s.mutateList(appID, func(a *App) { a.Pages = addToSet(a.Pages, pageID) })
}

func (s *MockAppStore) RemovePage(_ context.Context, appID, pageID string) error {
	return s.mutateList(appID, func(a *App) { a.Pages = removeFrom(a.Pages, pageID) })
}

// MockPageStore is an in-memory PageStore for testing.
type MockPageStore struct {
	mu sync.Mutex

	IDFunc func() string

	byID map[string]*Page
}

// NewMockPageStore returns an empty mock page store.
func NewMockPageStore() *MockPageStore {
	return &MockPageStore{byID: make(map[string]*Page)}
}

func (s *MockPageStore) generateID() string {
	if s.IDFunc != nil {
		return s.IDFunc()
	}
	return identifier.New(identifier.PrefixPage)
}

func (s *MockPageStore) Create(_ context.Context, page *Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	page.CreatedAt = now
	page.UpdatedAt = now
	if page.Components == nil {
		page.Components = []Component{}
	}

	for attempt := 0; attempt < identifier.MaxAttempts; attempt++ {
		id := s.generateID()
		if _, taken := s.byID[id]; taken {
			continue
		}
		page.ID = id
		copied := *page
		s.byID[id] = &copied
		return nil
	}
	return apperr.ErrDuplicateIdentifier
}

func (s *MockPageStore) Get(_ context.Context, id string) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("page " + id)
	}
	copied := *page
	return &copied, nil
}

func (s *MockPageStore) ListByApp(_ context.Context, appID string) ([]*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Page
	for _, page := range s.byID {
		if page.AppID != appID {
			continue
		}
		copied := *page
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *MockPageStore) Update(_ context.Context, id string, patch PagePatch) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("page " + id)
	}
	if patch.Name != nil {
		page.Name = *patch.Name
	}
	if patch.Description != nil {
		page.Description = *patch.Description
	}
	if patch.Components != nil {
		page.Components = *patch.Components
	}
	if patch.Status != nil {
		page.Status = *patch.Status
	}
	if patch.Order != nil {
		page.Order = *patch.Order
	}
	page.UpdatedAt = time.Now()

	copied := *page
	return &copied, nil
}

func (s *MockPageStore) Delete(_ context.Context, id string) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("page " + id)
	}
	delete(s.byID, id)
	return page, nil
}

// MockRecordStore is an in-memory RecordStore for testing. It applies
// filters, sorting and pagination the way the MongoDB store would.
type MockRecordStore struct {
	mu   sync.Mutex
	data map[string][]Record
	next int
}

// NewMockRecordStore returns an empty mock record store.
func NewMockRecordStore() *MockRecordStore {
	return &MockRecordStore{data: make(map[string][]Record)}
}

func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func (s *MockRecordStore) Insert(_ context.Context, h *registry.Handle, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	rec["_id"] = fmt.Sprintf("%024x", s.next)
	s.data[h.CollectionName] = append(s.data[h.CollectionName], cloneRecord(rec))
	return rec, nil
}

func matchCondition(rec Record, c query.Condition) bool {
	got, present := rec[c.Field]
	switch c.Op {
	case query.OpContains:
		if !present {
			return false
		}
		return strings.Contains(
			strings.ToLower(fmt.Sprintf("%v", got)),
			strings.ToLower(fmt.Sprintf("%v", c.Value)),
		)
	case query.OpGte:
		if !present {
			return false
		}
		if gt, ok1 := got.(time.Time); ok1 {
			if wt, ok2 := c.Value.(time.Time); ok2 {
				return !gt.Before(wt)
			}
			return false
		}
		gn, ok1 := toFloat(got)
		wn, ok2 := toFloat(c.Value)
		return ok1 && ok2 && gn >= wn
	case query.OpIn:
		values, ok := c.Value.([]any)
		if !ok {
			return false
		}
		for _, v := range values {
			if fmt.Sprintf("%v", got) == fmt.Sprintf("%v", v) {
				return true
			}
		}
		return false
	default:
		return present && fmt.Sprintf("%v", got) == fmt.Sprintf("%v", c.Value)
	}
}

func matchFilter(rec Record, f query.Filter) bool {
	for _, c := range f.All {
		if !matchCondition(rec, c) {
			return false
		}
	}
	if len(f.Any) > 0 {
		any := false
		for _, c := range f.Any {
			if matchCondition(rec, c) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func lessValue(a, b any) bool {
	if at, ok1 := a.(time.Time); ok1 {
		if bt, ok2 := b.(time.Time); ok2 {
			return at.Before(bt)
		}
	}
	if an, ok1 := toFloat(a); ok1 {
		if bn, ok2 := toFloat(b); ok2 {
			return an < bn
		}
	}
	return fmt.Sprintf("%v", a) < fmt.Sprintf("%v", b)
}

func (s *MockRecordStore) matching(h *registry.Handle, f query.Filter) []Record {
	var out []Record
	for _, rec := range s.data[h.CollectionName] {
		if matchFilter(rec, f) {
			out = append(out, cloneRecord(rec))
		}
	}
	return out
}

func (s *MockRecordStore) Find(_ context.Context, h *registry.Handle, f query.Filter, sortBy query.Sort, skip, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.matching(h, f)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i][sortBy.Field], out[j][sortBy.Field]
		if sortBy.Desc {
			return lessValue(b, a)
		}
		return lessValue(a, b)
	})

	if skip > 0 {
		if skip >= len(out) {
			return nil, nil
		}
		out = out[skip:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *MockRecordStore) Count(_ context.Context, h *registry.Handle, f query.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.matching(h, f))), nil
}

func (s *MockRecordStore) FindByID(_ context.Context, h *registry.Handle, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.data[h.CollectionName] {
		if rec["_id"] == id {
			return cloneRecord(rec), nil
		}
	}
	return nil, apperr.NotFound("record " + id)
}

func (s *MockRecordStore) UpdateByID(_ context.Context, h *registry.Handle, id string, changes Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.data[h.CollectionName] {
		if rec["_id"] == id {
			for k, v := range changes {
				rec[k] = v
			}
			return cloneRecord(rec), nil
		}
	}
	return nil, apperr.NotFound("record " + id)
}

func (s *MockRecordStore) DeleteByID(_ context.Context, h *registry.Handle, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.data[h.CollectionName]
	for i, rec := range records {
		if rec["_id"] == id {
			s.data[h.CollectionName] = append(records[:i], records[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("record " + id)
}

func (s *MockRecordStore) DeleteByIDs(_ context.Context, h *registry.Handle, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var kept []Record
	var deleted int64
	for _, rec := range s.data[h.CollectionName] {
		if id, ok := rec["_id"].(string); ok && wanted[id] {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.data[h.CollectionName] = kept
	return deleted, nil
}

func (s *MockRecordStore) GroupCount(_ context.Context, h *registry.Handle, field string, f query.Filter) ([]ValueCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int64)
	values := make(map[string]any)
	var seen []string
	for _, rec := range s.matching(h, f) {
		v := rec[field]
		key := fmt.Sprintf("%v", v)
		if counts[key] == 0 {
			seen = append(seen, key)
			values[key] = v
		}
		counts[key]++
	}

	out := make([]ValueCount, 0, len(seen))
	for _, key := range seen {
		out = append(out, ValueCount{Value: values[key], Count: counts[key]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

// MockIndexer records index-creation calls for testing.
type MockIndexer struct {
	mu    sync.Mutex
	Err   error
	Calls []string
}

func (ix *MockIndexer) EnsureIndexes(_ context.Context, collection string, _ []registry.IndexSpec) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.Err != nil {
		return ix.Err
	}
	ix.Calls = append(ix.Calls, collection)
	return nil
}
