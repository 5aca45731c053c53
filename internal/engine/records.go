package engine

import (
	"context"
	"time"

	"github.com/formbase/formbase/internal/apperr"
	"github.com/formbase/formbase/internal/query"
	"github.com/formbase/formbase/internal/store"
	"github.com/formbase/formbase/internal/validation"
)

// immutableKeys are managed by the engine and never taken from a client
// payload.
var immutableKeys = map[string]bool{
	"_id":          true,
	"appid":        true,
	"datasourceid": true,
	"createdAt":    true,
	"updatedAt":    true,
}

func sanitizePayload(payload map[string]any) store.Record {
	rec := make(store.Record, len(payload))
	for k, v := range payload {
		if immutableKeys[k] {
			continue
		}
		rec[k] = v
	}
	return rec
}

// CreateRecord validates payload against the data source's schema and
// inserts it into the materialized collection.
func (e *Engine) CreateRecord(ctx context.Context, dataSourceID string, payload map[string]any) (store.Record, error) {
	ds, err := e.schemas.Get(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}

	if details := validation.Check(ds, payload); len(details) > 0 {
		return nil, &apperr.ValidationError{Details: details}
	}

	handle, err := e.registry.GetOrCreate(ctx, ds)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rec := sanitizePayload(payload)
	rec["appid"] = ds.AppID
	rec["datasourceid"] = ds.ID
	rec["createdAt"] = now
	rec["updatedAt"] = now

	inserted, err := e.records.Insert(ctx, handle, rec)
	if err != nil {
		return nil, err
	}

	e.logger.Info("record created", "datasourceid", ds.ID, "record", inserted["_id"])
	e.events.RecordEvent(ds.ID, "created", inserted)
	return inserted, nil
}

// ListRecords queries the data source's records using the request
// parameters for filtering, sorting, and pagination.
func (e *Engine) ListRecords(ctx context.Context, dataSourceID string, params map[string]string) ([]store.Record, query.Pagination, error) {
	ds, err := e.schemas.Get(ctx, dataSourceID)
	if err != nil {
		return nil, query.Pagination{}, err
	}
	handle, err := e.registry.GetOrCreate(ctx, ds)
	if err != nil {
		return nil, query.Pagination{}, err
	}

	f := query.BuildFilter(ds, params)
	sortBy := query.BuildSort(ds, params["sort"])
	page := query.ParsePage(params["page"], params["limit"])

	total, err := e.records.Count(ctx, handle, f)
	if err != nil {
		return nil, query.Pagination{}, err
	}

	records, err := e.records.Find(ctx, handle, f, sortBy, page.Skip(), page.Limit)
	if err != nil {
		return nil, query.Pagination{}, err
	}
	if records == nil {
		records = []store.Record{}
	}
	return records, query.NewPagination(page, total), nil
}

// GetRecord loads one record by id.
func (e *Engine) GetRecord(ctx context.Context, dataSourceID, recordID string) (store.Record, error) {
	ds, err := e.schemas.Get(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}
	handle, err := e.registry.GetOrCreate(ctx, ds)
	if err != nil {
		return nil, err
	}
	return e.records.FindByID(ctx, handle, recordID)
}

// UpdateRecord applies a partial update after validating the supplied
// fields. Identity keys in the payload are ignored.
func (e *Engine) UpdateRecord(ctx context.Context, dataSourceID, recordID string, payload map[string]any) (store.Record, error) {
	ds, err := e.schemas.Get(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}

	if details := validation.CheckPartial(ds, payload); len(details) > 0 {
		return nil, &apperr.ValidationError{Details: details}
	}

	handle, err := e.registry.GetOrCreate(ctx, ds)
	if err != nil {
		return nil, err
	}

	changes := sanitizePayload(payload)
	changes["updatedAt"] = time.Now()

	updated, err := e.records.UpdateByID(ctx, handle, recordID, changes)
	if err != nil {
		return nil, err
	}

	e.events.RecordEvent(ds.ID, "updated", updated)
	return updated, nil
}

// DeleteRecord removes one record by id.
func (e *Engine) DeleteRecord(ctx context.Context, dataSourceID, recordID string) error {
	ds, err := e.schemas.Get(ctx, dataSourceID)
	if err != nil {
		return err
	}
	handle, err := e.registry.GetOrCreate(ctx, ds)
	if err != nil {
		return err
	}

	if err := e.records.DeleteByID(ctx, handle, recordID); err != nil {
		return err
	}
	e.events.RecordEvent(ds.ID, "deleted", store.Record{"_id": recordID})
	return nil
}

// BatchDeleteRecords removes the named records and reports how many
// actually existed. Unknown ids are skipped, not errors.
func (e *Engine) BatchDeleteRecords(ctx context.Context, dataSourceID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, apperr.InvalidRequest("record ids are required")
	}

	ds, err := e.schemas.Get(ctx, dataSourceID)
	if err != nil {
		return 0, err
	}
	handle, err := e.registry.GetOrCreate(ctx, ds)
	if err != nil {
		return 0, err
	}

	deleted, err := e.records.DeleteByIDs(ctx, handle, ids)
	if err != nil {
		return 0, err
	}

	e.logger.Info("records batch deleted", "datasourceid", ds.ID, "requested", len(ids), "deleted", deleted)
	e.events.RecordEvent(ds.ID, "deleted", map[string]any{"ids": ids, "deleted": deleted})
	return deleted, nil
}

// Stats summarizes a data source's records: overall count, count
// created since local midnight, and a value histogram for every field
// that declares a fixed option set.
type Stats struct {
	Total      int64                         `json:"total"`
	Today      int64                         `json:"today"`
	FieldStats map[string][]store.ValueCount `json:"fieldStats"`
}

// RecordStats computes record statistics, scoped by the same filter
// parameters ListRecords accepts.
func (e *Engine) RecordStats(ctx context.Context, dataSourceID string, params map[string]string) (*Stats, error) {
	ds, err := e.schemas.Get(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}
	handle, err := e.registry.GetOrCreate(ctx, ds)
	if err != nil {
		return nil, err
	}

	f := query.BuildFilter(ds, params)

	total, err := e.records.Count(ctx, handle, f)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	todayFilter := f
	todayFilter.All = append(append([]query.Condition{}, f.All...), query.Condition{
		Field: "createdAt", Op: query.OpGte, Value: midnight,
	})
	today, err := e.records.Count(ctx, handle, todayFilter)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Total: total, Today: today, FieldStats: map[string][]store.ValueCount{}}
	for i := range ds.Fields {
		field := &ds.Fields[i]
		if field.Config == nil || field.Config["options"] == nil {
			continue
		}
		counts, err := e.records.GroupCount(ctx, handle, field.Name, f)
		if err != nil {
			return nil, err
		}
		stats.FieldStats[field.Name] = counts
	}
	return stats, nil
}
