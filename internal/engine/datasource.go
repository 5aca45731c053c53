package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/formbase/formbase/internal/apperr"
	"github.com/formbase/formbase/internal/schema"
	"github.com/formbase/formbase/internal/store"
)

// CreateDataSourceInput is the payload for a new data source.
type CreateDataSourceInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	AppID       string          `json:"appid"`
	Fields      []schema.Field  `json:"fields"`
	Category    schema.Category `json:"category"`
	Version     string          `json:"version"`
	Creator     string          `json:"creator"`
	Tags        []string        `json:"tags"`
}

// CreateDataSource registers a new data-source definition under an
// existing app. The collection itself is materialized lazily on first
// record use, so a definition with no fields yet is acceptable here.
func (e *Engine) CreateDataSource(ctx context.Context, in CreateDataSourceInput) (*schema.DataSource, error) {
	if in.Title == "" {
		return nil, apperr.InvalidRequest("title is required")
	}
	if in.AppID == "" {
		return nil, apperr.InvalidRequest("appid is required")
	}
	if _, err := e.apps.Get(ctx, in.AppID); err != nil {
		return nil, err
	}

	schema.NormalizeFields(in.Fields)
	if err := schema.CheckFields(in.Fields); err != nil {
		return nil, err
	}

	ds := &schema.DataSource{
		Title:       in.Title,
		Description: in.Description,
		AppID:       in.AppID,
		Fields:      in.Fields,
		Version:     in.Version,
		Category:    in.Category,
		Creator:     in.Creator,
		Tags:        in.Tags,
		Status:      schema.StatusDraft,
	}
	if ds.Fields == nil {
		ds.Fields = []schema.Field{}
	}
	if ds.Version == "" {
		ds.Version = "1.0.0"
	}
	if ds.Category == "" {
		ds.Category = schema.CategoryForm
	}
	if ds.Creator == "" {
		ds.Creator = "system"
	}

	if err := e.schemas.Create(ctx, ds); err != nil {
		return nil, err
	}
	if err := e.apps.AddDataSource(ctx, in.AppID, ds.ID); err != nil {
		return nil, err
	}

	e.logger.Info("data source created", "datasourceid", ds.ID, "appid", ds.AppID, "title", ds.Title)
	e.events.DataSourceEvent(ds.ID, "created")
	return ds, nil
}

// GetDataSource loads a data-source definition.
func (e *Engine) GetDataSource(ctx context.Context, id string) (*schema.DataSource, error) {
	return e.schemas.Get(ctx, id)
}

// GetDataSourceFields loads only the field definitions, for form
// renderers that do not need the full document.
func (e *Engine) GetDataSourceFields(ctx context.Context, id string) (*schema.DataSource, error) {
	return e.schemas.GetFields(ctx, id)
}

// ListDataSources lists an app's data sources, optionally filtered by
// status and category.
func (e *Engine) ListDataSources(ctx context.Context, appID, status, category string) ([]*schema.DataSource, error) {
	if appID == "" {
		return nil, apperr.InvalidRequest("appid is required")
	}
	out, err := e.schemas.ListByApp(ctx, appID, status, category)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*schema.DataSource{}
	}
	return out, nil
}

// UpdateDataSource applies a partial update to a definition. A field
// change evicts the cached collection handle so the next record
// operation re-derives it.
func (e *Engine) UpdateDataSource(ctx context.Context, id string, patch store.SchemaPatch) (*schema.DataSource, error) {
	if patch.Fields != nil {
		schema.NormalizeFields(*patch.Fields)
		if err := schema.CheckFields(*patch.Fields); err != nil {
			return nil, err
		}
	}

	ds, err := e.schemas.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if patch.Fields != nil {
		e.registry.Invalidate(id)
	}

	e.events.DataSourceEvent(id, "updated")
	return ds, nil
}

func (e *Engine) setDataSourceStatus(ctx context.Context, id string, status schema.Status, action string) (*schema.DataSource, error) {
	ds, err := e.schemas.Update(ctx, id, store.SchemaPatch{Status: &status})
	if err != nil {
		return nil, err
	}
	e.logger.Info("data source "+action, "datasourceid", id)
	e.events.DataSourceEvent(id, action)
	return ds, nil
}

// PublishDataSource marks a definition published.
func (e *Engine) PublishDataSource(ctx context.Context, id string) (*schema.DataSource, error) {
	return e.setDataSourceStatus(ctx, id, schema.StatusPublished, "published")
}

// ArchiveDataSource marks a definition archived.
func (e *Engine) ArchiveDataSource(ctx context.Context, id string) (*schema.DataSource, error) {
	return e.setDataSourceStatus(ctx, id, schema.StatusArchived, "archived")
}

// DeleteDataSource removes a definition, detaches it from its app, and
// evicts the cached collection handle. Stored records are left in place
// and become unreachable through the API.
func (e *Engine) DeleteDataSource(ctx context.Context, id string) (*schema.DataSource, error) {
	ds, err := e.schemas.Delete(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := e.apps.RemoveDataSource(ctx, ds.AppID, id); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	e.registry.Invalidate(id)

	e.logger.Info("data source deleted", "datasourceid", id, "appid", ds.AppID)
	e.events.DataSourceEvent(id, "deleted")
	return ds, nil
}

// CloneDataSource copies a definition into a new draft under the same
// app. Records are not copied.
func (e *Engine) CloneDataSource(ctx context.Context, id, title string) (*schema.DataSource, error) {
	src, err := e.schemas.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if title == "" {
		title = src.Title + " (copy)"
	}
	clone := &schema.DataSource{
		Title:       title,
		Description: src.Description,
		AppID:       src.AppID,
		Fields:      src.Fields,
		Version:     src.Version,
		Category:    src.Category,
		Creator:     src.Creator,
		Tags:        append(append([]string{}, src.Tags...), "cloned"),
		Status:      schema.StatusDraft,
	}

	if err := e.schemas.Create(ctx, clone); err != nil {
		return nil, err
	}
	if err := e.apps.AddDataSource(ctx, clone.AppID, clone.ID); err != nil {
		return nil, err
	}

	e.logger.Info("data source cloned", "from", id, "to", clone.ID)
	e.events.DataSourceEvent(clone.ID, "created")
	return clone, nil
}

// SetRelations assigns relation configurations to the named fields.
// Every relation is validated against its target before any field is
// touched, so a bad entry rejects the whole batch.
func (e *Engine) SetRelations(ctx context.Context, id string, relations map[string]*schema.Relation) (*schema.DataSource, error) {
	if len(relations) == 0 {
		return nil, apperr.InvalidRequest("relations are required")
	}

	ds, err := e.schemas.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	for name, rel := range relations {
		if ds.FieldByName(name) == nil {
			return nil, apperr.InvalidRequest(fmt.Sprintf("field %q does not exist on data source %s", name, id))
		}
		if !schema.IsMeaningfulRelation(rel) {
			continue // clears the relation
		}
		if _, err := e.relations.Validate(ctx, rel); err != nil {
			return nil, fmt.Errorf("relation for field %q: %w", name, err)
		}
	}

	fields := append([]schema.Field{}, ds.Fields...)
	for i := range fields {
		rel, ok := relations[fields[i].Name]
		if !ok {
			continue
		}
		if schema.IsMeaningfulRelation(rel) {
			fields[i].Relation = rel
		} else {
			fields[i].Relation = nil
		}
	}

	updated, err := e.schemas.Update(ctx, id, store.SchemaPatch{Fields: &fields})
	if err != nil {
		return nil, err
	}

	e.events.DataSourceEvent(id, "updated")
	return updated, nil
}
