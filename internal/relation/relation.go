// Package relation resolves cross-collection field relations: it
// validates relation configurations against the target schema and
// materializes selectable options from the target's records.
package relation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/formbase/formbase/internal/apperr"
	"github.com/formbase/formbase/internal/query"
	"github.com/formbase/formbase/internal/registry"
	"github.com/formbase/formbase/internal/schema"
	"github.com/formbase/formbase/internal/store"
)

// DefaultPageSize is used for paginated option lists when neither the
// relation nor the request names a page size.
const DefaultPageSize = 20

// Option is one selectable value resolved from a relation target.
type Option struct {
	Value any    `json:"value"`
	Label string `json:"label"`
}

// OptionsRequest carries the per-request knobs for option resolution.
type OptionsRequest struct {
	Search   string
	Page     int
	PageSize int
	// Limit caps unpaginated result sets. Zero means no cap.
	Limit int
}

// Result is a resolved option list, with pagination metadata when the
// relation is paginated.
type Result struct {
	Options    []Option          `json:"items"`
	Pagination *query.Pagination `json:"pagination,omitempty"`
}

// Resolver validates relations and resolves their options.
type Resolver struct {
	schemas  store.SchemaStore
	records  store.RecordStore
	registry *registry.Registry
	logger   *slog.Logger
}

// NewResolver creates a relation resolver.
func NewResolver(schemas store.SchemaStore, records store.RecordStore, reg *registry.Registry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{schemas: schemas, records: records, registry: reg, logger: logger}
}

// Validate checks that rel names an existing target data source and
// that every field it references exists on that target. It returns the
// target definition so callers can reuse it.
func (r *Resolver) Validate(ctx context.Context, rel *schema.Relation) (*schema.DataSource, error) {
	if !schema.IsMeaningfulRelation(rel) {
		return nil, apperr.InvalidRequest("relation configuration is required")
	}
	if rel.TargetDataSourceID == "" {
		return nil, apperr.InvalidRequest("relation target data source id is required")
	}

	target, err := r.schemas.Get(ctx, rel.TargetDataSourceID)
	if err != nil {
		return nil, err
	}

	if err := checkFieldRef(target, "target field", rel.TargetField); err != nil {
		return nil, err
	}
	if err := checkFieldRef(target, "target value field", rel.TargetValueField); err != nil {
		return nil, err
	}
	for _, name := range rel.SearchFields {
		if err := checkFieldRef(target, "search field", name); err != nil {
			return nil, err
		}
	}
	return target, nil
}

func checkFieldRef(target *schema.DataSource, what, name string) error {
	if name == "" || name == "_id" {
		return nil
	}
	if target.FieldByName(name) == nil {
		return apperr.InvalidRequest(fmt.Sprintf("%s %q does not exist on data source %s", what, name, target.ID))
	}
	return nil
}

// Options resolves the selectable options for rel. Records missing the
// value field are dropped rather than surfaced as broken options.
func (r *Resolver) Options(ctx context.Context, rel *schema.Relation, req OptionsRequest) (*Result, error) {
	target, err := r.Validate(ctx, rel)
	if err != nil {
		return nil, err
	}

	handle, err := r.registry.GetOrCreate(ctx, target)
	if err != nil {
		return nil, err
	}

	valueField := rel.TargetValueField
	if valueField == "" {
		valueField = "_id"
	}
	labelField := rel.TargetField
	if labelField == "" {
		labelField = valueField
	}

	f := query.Filter{All: []query.Condition{
		{Field: "datasourceid", Op: query.OpEq, Value: target.ID},
	}}
	for _, key := range sortedKeys(rel.Filter) {
		f.All = append(f.All, query.Condition{Field: key, Op: query.OpEq, Value: rel.Filter[key]})
	}
	if rel.Searchable && req.Search != "" {
		searchFields := rel.SearchFields
		if len(searchFields) == 0 {
			searchFields = []string{labelField}
		}
		for _, name := range searchFields {
			f.Any = append(f.Any, query.Condition{Field: name, Op: query.OpContains, Value: req.Search})
		}
	}

	orderBy := query.DefaultSort()
	if len(rel.Sort) > 0 {
		key := sortedKeys(rel.Sort)[0]
		orderBy = query.Sort{Field: key, Desc: rel.Sort[key] < 0}
	}

	result := &Result{Options: []Option{}}
	var skip, limit int
	if rel.Paginated {
		size := req.PageSize
		if size < 1 {
			size = rel.PageSize
		}
		if size < 1 {
			size = DefaultPageSize
		}
		p := query.NewPage(req.Page, size)

		total, err := r.records.Count(ctx, handle, f)
		if err != nil {
			return nil, err
		}
		pagination := query.NewPagination(p, total)
		result.Pagination = &pagination
		skip, limit = p.Skip(), p.Limit
	} else {
		limit = req.Limit
	}

	records, err := r.records.Find(ctx, handle, f, orderBy, skip, limit)
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		value, ok := rec[valueField]
		if !ok || value == nil {
			continue
		}
		label := value
		if lv, ok := rec[labelField]; ok && lv != nil {
			label = lv
		}
		result.Options = append(result.Options, Option{
			Value: value,
			Label: fmt.Sprintf("%v", label),
		})
	}
	return result, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
