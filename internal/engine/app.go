package engine

import (
	"context"
	"errors"

	"github.com/formbase/formbase/internal/apperr"
	"github.com/formbase/formbase/internal/schema"
	"github.com/formbase/formbase/internal/store"
)

// CreateAppInput is the payload for a new app.
type CreateAppInput struct {
	Name        string   `json:"appName"`
	Description string   `json:"description"`
	Version     string   `json:"version"`
	Creator     string   `json:"creator"`
	Tags        []string `json:"tags"`
}

// CreateApp registers a new app shell.
func (e *Engine) CreateApp(ctx context.Context, in CreateAppInput) (*store.App, error) {
	if in.Name == "" {
		return nil, apperr.InvalidRequest("appName is required")
	}

	app := &store.App{
		Name:        in.Name,
		Description: in.Description,
		Version:     in.Version,
		Creator:     in.Creator,
		Tags:        in.Tags,
		Status:      schema.StatusDraft,
	}
	if app.Version == "" {
		app.Version = "1.0.0"
	}
	if app.Creator == "" {
		app.Creator = "system"
	}

	if err := e.apps.Create(ctx, app); err != nil {
		return nil, err
	}
	e.logger.Info("app created", "appid", app.ID, "name", app.Name)
	return app, nil
}

// GetApp loads an app.
func (e *Engine) GetApp(ctx context.Context, id string) (*store.App, error) {
	return e.apps.Get(ctx, id)
}

// AppFull is an app with its pages and data-source definitions
// resolved, for a renderer that needs the whole tree in one shot.
type AppFull struct {
	App         *store.App           `json:"app"`
	Pages       []*store.Page        `json:"pages"`
	DataSources []*schema.DataSource `json:"dataSources"`
}

// GetAppFull loads an app together with its pages, sorted by display
// order, and all its data-source definitions.
func (e *Engine) GetAppFull(ctx context.Context, id string) (*AppFull, error) {
	app, err := e.apps.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	pages, err := e.pages.ListByApp(ctx, id)
	if err != nil {
		return nil, err
	}
	sources, err := e.schemas.ListByApp(ctx, id, "", "")
	if err != nil {
		return nil, err
	}
	if pages == nil {
		pages = []*store.Page{}
	}
	if sources == nil {
		sources = []*schema.DataSource{}
	}
	return &AppFull{App: app, Pages: pages, DataSources: sources}, nil
}

// ListApps lists apps, optionally filtered by status.
func (e *Engine) ListApps(ctx context.Context, status string) ([]*store.App, error) {
	apps, err := e.apps.List(ctx, status)
	if err != nil {
		return nil, err
	}
	if apps == nil {
		apps = []*store.App{}
	}
	return apps, nil
}

// UpdateApp applies a partial update.
func (e *Engine) UpdateApp(ctx context.Context, id string, patch store.AppPatch) (*store.App, error) {
	return e.apps.Update(ctx, id, patch)
}

func (e *Engine) setAppStatus(ctx context.Context, id string, status schema.Status, action string) (*store.App, error) {
	app, err := e.apps.Update(ctx, id, store.AppPatch{Status: &status})
	if err != nil {
		return nil, err
	}
	e.logger.Info("app "+action, "appid", id)
	return app, nil
}

// PublishApp marks an app published.
func (e *Engine) PublishApp(ctx context.Context, id string) (*store.App, error) {
	return e.setAppStatus(ctx, id, schema.StatusPublished, "published")
}

// ArchiveApp marks an app archived.
func (e *Engine) ArchiveApp(ctx context.Context, id string) (*store.App, error) {
	return e.setAppStatus(ctx, id, schema.StatusArchived, "archived")
}

// DeleteApp removes an app and cascades to its pages and data-source
// definitions.
func (e *Engine) DeleteApp(ctx context.Context, id string) (*store.App, error) {
	app, err := e.apps.Delete(ctx, id)
	if err != nil {
		return nil, err
	}

	pages, err := e.pages.ListByApp(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, page := range pages {
		if _, err := e.pages.Delete(ctx, page.ID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}

	sources, err := e.schemas.ListByApp(ctx, id, "", "")
	if err != nil {
		return nil, err
	}
	for _, ds := range sources {
		if _, err := e.schemas.Delete(ctx, ds.ID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		e.registry.Invalidate(ds.ID)
		e.events.DataSourceEvent(ds.ID, "deleted")
	}

	e.logger.Info("app deleted", "appid", id, "pages", len(pages), "datasources", len(sources))
	return app, nil
}

// CloneApp copies an app, its data-source definitions, and its pages
// into a new draft. Page components are remapped to the cloned data
// sources; records are not copied.
func (e *Engine) CloneApp(ctx context.Context, id, name string) (*store.App, error) {
	src, err := e.GetAppFull(ctx, id)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = src.App.Name + " (copy)"
	}
	clone := &store.App{
		Name:        name,
		Description: src.App.Description,
		Version:     src.App.Version,
		Creator:     src.App.Creator,
		Tags:        append(append([]string{}, src.App.Tags...), "cloned"),
		Status:      schema.StatusDraft,
	}
	if err := e.apps.Create(ctx, clone); err != nil {
		return nil, err
	}

	idMap := make(map[string]string, len(src.DataSources))
	for _, ds := range src.DataSources {
		copied := &schema.DataSource{
			Title:       ds.Title,
			Description: ds.Description,
			AppID:       clone.ID,
			Fields:      ds.Fields,
			Version:     ds.Version,
			Category:    ds.Category,
			Creator:     ds.Creator,
			Tags:        ds.Tags,
			Status:      schema.StatusDraft,
		}
		if err := e.schemas.Create(ctx, copied); err != nil {
			return nil, err
		}
		if err := e.apps.AddDataSource(ctx, clone.ID, copied.ID); err != nil {
			return nil, err
		}
		idMap[ds.ID] = copied.ID
	}

	for _, page := range src.Pages {
		components := make([]store.Component, len(page.Components))
		for i, c := range page.Components {
			components[i] = c
			if mapped, ok := idMap[c.DataSourceID]; ok {
				components[i].DataSourceID = mapped
			}
		}
		copied := &store.Page{
			Name:        page.Name,
			Description: page.Description,
			AppID:       clone.ID,
			Components:  components,
			Status:      schema.StatusDraft,
			Order:       page.Order,
			Creator:     page.Creator,
		}
		if err := e.pages.Create(ctx, copied); err != nil {
			return nil, err
		}
		if err := e.apps.AddPage(ctx, clone.ID, copied.ID); err != nil {
			return nil, err
		}
	}

	e.logger.Info("app cloned", "from", id, "to", clone.ID)
	return e.apps.Get(ctx, clone.ID)
}
