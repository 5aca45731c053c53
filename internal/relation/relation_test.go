package relation

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/formbase/formbase/internal/apperr"
	"github.com/formbase/formbase/internal/registry"
	"github.com/formbase/formbase/internal/schema"
	"github.com/formbase/formbase/internal/store"
)

func newTestResolver(t *testing.T) (*Resolver, *store.MockSchemaStore, *store.MockRecordStore, *registry.Registry) {
	t.Helper()
	schemas := store.NewMockSchemaStore()
	records := store.NewMockRecordStore()
	reg := registry.New(&store.MockIndexer{}, slog.Default())
	return NewResolver(schemas, records, reg, slog.Default()), schemas, records, reg
}

func createTarget(t *testing.T, schemas *store.MockSchemaStore) *schema.DataSource {
	t.Helper()
	ds := &schema.DataSource{
		Title: "Departments",
		AppID: "app_1",
		Fields: []schema.Field{
			{Name: "name", Type: schema.FieldString, Label: "Name"},
			{Name: "code", Type: schema.FieldString, Label: "Code"},
		},
	}
	if err := schemas.Create(context.Background(), ds); err != nil {
		t.Fatalf("creating target: %v", err)
	}
	return ds
}

func TestValidateRequiresTarget(t *testing.T) {
	resolver, _, _, _ := newTestResolver(t)

	_, err := resolver.Validate(context.Background(), &schema.Relation{Type: schema.RelationForeign})
	if !errors.Is(err, apperr.ErrInvalidRequest) {
		t.Fatalf("err = %v, want invalid request", err)
	}
}

func TestValidateMissingDataSource(t *testing.T) {
	resolver, _, _, _ := newTestResolver(t)

	rel := &schema.Relation{TargetDataSourceID: "ds_nope", TargetField: "name"}
	_, err := resolver.Validate(context.Background(), rel)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestValidateUnknownField(t *testing.T) {
	resolver, schemas, _, _ := newTestResolver(t)
	target := createTarget(t, schemas)

	rel := &schema.Relation{TargetDataSourceID: target.ID, TargetField: "missing"}
	_, err := resolver.Validate(context.Background(), rel)
	if !errors.Is(err, apperr.ErrInvalidRequest) {
		t.Fatalf("err = %v, want invalid request", err)
	}

	rel = &schema.Relation{TargetDataSourceID: target.ID, TargetField: "name", TargetValueField: "nope"}
	if _, err := resolver.Validate(context.Background(), rel); !errors.Is(err, apperr.ErrInvalidRequest) {
		t.Fatalf("err = %v, want invalid request for value field", err)
	}
}

func TestValidateOK(t *testing.T) {
	resolver, schemas, _, _ := newTestResolver(t)
	target := createTarget(t, schemas)

	rel := &schema.Relation{TargetDataSourceID: target.ID, TargetField: "name", TargetValueField: "code"}
	got, err := resolver.Validate(context.Background(), rel)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.ID != target.ID {
		t.Errorf("target id = %q, want %q", got.ID, target.ID)
	}
}

func seedRecords(t *testing.T, records *store.MockRecordStore, reg *registry.Registry, target *schema.DataSource) {
	t.Helper()
	handle, err := reg.GetOrCreate(context.Background(), target)
	if err != nil {
		t.Fatalf("materializing target: %v", err)
	}
	rows := []store.Record{
		{"datasourceid": target.ID, "name": "Engineering", "code": "ENG"},
		{"datasourceid": target.ID, "name": "Marketing", "code": "MKT"},
		{"datasourceid": target.ID, "name": "Sales", "code": nil},
	}
	for _, row := range rows {
		if _, err := records.Insert(context.Background(), handle, row); err != nil {
			t.Fatalf("seeding record: %v", err)
		}
	}
}

func TestOptionsValueAndLabel(t *testing.T) {
	resolver, schemas, records, reg := newTestResolver(t)
	target := createTarget(t, schemas)
	seedRecords(t, records, reg, target)

	rel := &schema.Relation{TargetDataSourceID: target.ID, TargetField: "name", TargetValueField: "code"}
	got, err := resolver.Options(context.Background(), rel, OptionsRequest{})
	if err != nil {
		t.Fatalf("Options() error = %v", err)
	}

	// Sales has no code, so it is dropped.
	if len(got.Options) != 2 {
		t.Fatalf("got %d options, want 2: %+v", len(got.Options), got.Options)
	}
	byValue := make(map[any]string)
	for _, opt := range got.Options {
		byValue[opt.Value] = opt.Label
	}
	if byValue["ENG"] != "Engineering" || byValue["MKT"] != "Marketing" {
		t.Errorf("options = %v, want ENG/Engineering and MKT/Marketing", byValue)
	}
	if got.Pagination != nil {
		t.Errorf("pagination = %+v, want nil for unpaginated relation", got.Pagination)
	}
}

func TestOptionsSearch(t *testing.T) {
	resolver, schemas, records, reg := newTestResolver(t)
	target := createTarget(t, schemas)
	seedRecords(t, records, reg, target)

	rel := &schema.Relation{
		TargetDataSourceID: target.ID,
		TargetField:        "name",
		TargetValueField:   "code",
		Searchable:         true,
		SearchFields:       []string{"name"},
	}
	got, err := resolver.Options(context.Background(), rel, OptionsRequest{Search: "engineer"})
	if err != nil {
		t.Fatalf("Options() error = %v", err)
	}
	if len(got.Options) != 1 || got.Options[0].Value != "ENG" {
		t.Fatalf("options = %+v, want only ENG", got.Options)
	}
}

func TestOptionsPaginated(t *testing.T) {
	resolver, schemas, records, reg := newTestResolver(t)
	target := createTarget(t, schemas)
	seedRecords(t, records, reg, target)

	rel := &schema.Relation{
		TargetDataSourceID: target.ID,
		TargetField:        "name",
		Paginated:          true,
		PageSize:           1,
	}
	got, err := resolver.Options(context.Background(), rel, OptionsRequest{Page: 1})
	if err != nil {
		t.Fatalf("Options() error = %v", err)
	}
	if len(got.Options) != 1 {
		t.Fatalf("got %d options, want 1 per page", len(got.Options))
	}
	if got.Pagination == nil {
		t.Fatal("pagination missing for paginated relation")
	}
	if got.Pagination.Total != 3 || got.Pagination.Pages != 3 {
		t.Errorf("pagination = %+v, want total 3 over 3 pages", got.Pagination)
	}
}

func TestOptionsDefaultValueFieldIsID(t *testing.T) {
	resolver, schemas, records, reg := newTestResolver(t)
	target := createTarget(t, schemas)
	seedRecords(t, records, reg, target)

	rel := &schema.Relation{TargetDataSourceID: target.ID, TargetField: "name"}
	got, err := resolver.Options(context.Background(), rel, OptionsRequest{})
	if err != nil {
		t.Fatalf("Options() error = %v", err)
	}
	if len(got.Options) != 3 {
		t.Fatalf("got %d options, want 3", len(got.Options))
	}
	for _, opt := range got.Options {
		if opt.Value == nil || opt.Value == "" {
			t.Errorf("option %+v has empty value, want record id", opt)
		}
	}
}
