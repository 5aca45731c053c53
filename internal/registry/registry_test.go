package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/formbase/formbase/internal/apperr"
	"github.com/formbase/formbase/internal/schema"
)

// countingIndexer records EnsureIndexes calls.
type countingIndexer struct {
	calls atomic.Int64
	err   error
}

func (c *countingIndexer) EnsureIndexes(_ context.Context, _ string, _ []IndexSpec) error {
	c.calls.Add(1)
	return c.err
}

func widgetSchema() *schema.DataSource {
	return &schema.DataSource{
		ID: "ds_widgets00001",
		Fields: []schema.Field{
			{Name: "name", Type: schema.FieldString, Validation: &schema.Validation{Required: true}},
			{Name: "qty", Type: schema.FieldNumber},
		},
	}
}

func TestGetOrCreateDerivesHandle(t *testing.T) {
	idx := &countingIndexer{}
	r := New(idx, slog.Default())

	h, err := r.GetOrCreate(context.Background(), widgetSchema())
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	if h.CollectionName != "data_ds_widgets00001" {
		t.Errorf("collection = %q", h.CollectionName)
	}
	if h.FieldTypes["name"] != schema.StorageString || h.FieldTypes["qty"] != schema.StorageDouble {
		t.Errorf("field types = %+v", h.FieldTypes)
	}
	if h.FieldTypes["appid"] != schema.StorageString || h.FieldTypes["datasourceid"] != schema.StorageString {
		t.Error("system columns missing from field map")
	}

	// Indexes: required field + the two system columns.
	fields := make(map[string]bool)
	for _, spec := range h.Indexes {
		fields[spec.Field] = true
	}
	for _, want := range []string{"name", "appid", "datasourceid"} {
		if !fields[want] {
			t.Errorf("missing index on %s (have %+v)", want, h.Indexes)
		}
	}
	if fields["qty"] {
		t.Error("optional field should not be indexed")
	}
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	idx := &countingIndexer{}
	r := New(idx, slog.Default())
	ds := widgetSchema()

	h1, err := r.GetOrCreate(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := r.GetOrCreate(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}

	if h1 != h2 {
		t.Error("expected the same handle instance on repeated calls")
	}
	if n := idx.calls.Load(); n != 1 {
		t.Errorf("EnsureIndexes called %d times, want 1", n)
	}
}

func TestGetOrCreateConcurrentFirstUse(t *testing.T) {
	idx := &countingIndexer{}
	r := New(idx, slog.Default())
	ds := widgetSchema()

	const n = 32
	handles := make([]*Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := r.GetOrCreate(context.Background(), ds)
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	if got := idx.calls.Load(); got != 1 {
		t.Errorf("EnsureIndexes called %d times under concurrency, want 1", got)
	}
	for i := 1; i < n; i++ {
		if handles[i] != handles[0] {
			t.Fatal("divergent handles for the same data source id")
		}
	}
}

func TestGetOrCreateRejectsEmptySchema(t *testing.T) {
	idx := &countingIndexer{}
	r := New(idx, slog.Default())

	_, err := r.GetOrCreate(context.Background(), &schema.DataSource{ID: "ds_empty0000001"})
	var ise *apperr.InvalidSchemaError
	if !errors.As(err, &ise) {
		t.Fatalf("error = %v, want InvalidSchemaError", err)
	}
	if idx.calls.Load() != 0 {
		t.Error("invalid schema must not reach the indexer")
	}
	if len(r.Cached()) != 0 {
		t.Error("invalid schema must not register a handle")
	}
}

func TestGetOrCreateRejectsUnknownFieldType(t *testing.T) {
	r := New(&countingIndexer{}, slog.Default())
	ds := &schema.DataSource{
		ID:     "ds_bad000000001",
		Fields: []schema.Field{{Name: "blob", Type: "binary"}},
	}
	var ise *apperr.InvalidSchemaError
	if _, err := r.GetOrCreate(context.Background(), ds); !errors.As(err, &ise) {
		t.Fatalf("error = %v, want InvalidSchemaError", err)
	}
}

func TestIndexerFailureDoesNotRegister(t *testing.T) {
	idx := &countingIndexer{err: errors.New("connection reset")}
	r := New(idx, slog.Default())
	ds := widgetSchema()

	_, err := r.GetOrCreate(context.Background(), ds)
	var se *apperr.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want StorageError", err)
	}

	// Next call retries the materialization once the backend recovers.
	idx.err = nil
	if _, err := r.GetOrCreate(context.Background(), ds); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if n := idx.calls.Load(); n != 2 {
		t.Errorf("EnsureIndexes calls = %d, want 2", n)
	}
}

func TestInvalidate(t *testing.T) {
	idx := &countingIndexer{}
	r := New(idx, slog.Default())
	ds := widgetSchema()

	if _, err := r.GetOrCreate(context.Background(), ds); err != nil {
		t.Fatal(err)
	}
	r.Invalidate(ds.ID)
	if len(r.Cached()) != 0 {
		t.Error("handle survived invalidation")
	}

	if _, err := r.GetOrCreate(context.Background(), ds); err != nil {
		t.Fatal(err)
	}
	if n := idx.calls.Load(); n != 2 {
		t.Errorf("EnsureIndexes calls = %d, want 2 after re-materialization", n)
	}
}

func TestInvalidateAll(t *testing.T) {
	r := New(&countingIndexer{}, slog.Default())
	a, b := widgetSchema(), widgetSchema()
	b.ID = "ds_widgets00002"

	ctx := context.Background()
	if _, err := r.GetOrCreate(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetOrCreate(ctx, b); err != nil {
		t.Fatal(err)
	}
	if len(r.Cached()) != 2 {
		t.Fatalf("cached = %v", r.Cached())
	}

	r.InvalidateAll()
	if len(r.Cached()) != 0 {
		t.Error("handles survived InvalidateAll")
	}
}
