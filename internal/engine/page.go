package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/formbase/formbase/internal/apperr"
	"github.com/formbase/formbase/internal/schema"
	"github.com/formbase/formbase/internal/store"
)

// CreatePageInput is the payload for a new page.
type CreatePageInput struct {
	Name        string            `json:"pageName"`
	Description string            `json:"description"`
	AppID       string            `json:"appid"`
	Components  []store.Component `json:"components"`
	Order       *int              `json:"order"`
	Creator     string            `json:"creator"`
}

// CreatePage registers a new page under an existing app. Without an
// explicit order it is appended after the app's current pages.
func (e *Engine) CreatePage(ctx context.Context, in CreatePageInput) (*store.Page, error) {
	if in.Name == "" {
		return nil, apperr.InvalidRequest("pageName is required")
	}
	if in.AppID == "" {
		return nil, apperr.InvalidRequest("appid is required")
	}
	if _, err := e.apps.Get(ctx, in.AppID); err != nil {
		return nil, err
	}

	order := 0
	if in.Order != nil {
		order = *in.Order
	} else {
		existing, err := e.pages.ListByApp(ctx, in.AppID)
		if err != nil {
			return nil, err
		}
		order = len(existing)
	}

	page := &store.Page{
		Name:        in.Name,
		Description: in.Description,
		AppID:       in.AppID,
		Components:  in.Components,
		Order:       order,
		Creator:     in.Creator,
		Status:      schema.StatusDraft,
	}
	if page.Creator == "" {
		page.Creator = "system"
	}

	if err := e.pages.Create(ctx, page); err != nil {
		return nil, err
	}
	if err := e.apps.AddPage(ctx, in.AppID, page.ID); err != nil {
		return nil, err
	}

	e.logger.Info("page created", "pageid", page.ID, "appid", page.AppID)
	return page, nil
}

// GetPage loads a page.
func (e *Engine) GetPage(ctx context.Context, id string) (*store.Page, error) {
	return e.pages.Get(ctx, id)
}

// ListPages lists an app's pages in display order.
func (e *Engine) ListPages(ctx context.Context, appID string) ([]*store.Page, error) {
	if appID == "" {
		return nil, apperr.InvalidRequest("appid is required")
	}
	pages, err := e.pages.ListByApp(ctx, appID)
	if err != nil {
		return nil, err
	}
	if pages == nil {
		pages = []*store.Page{}
	}
	return pages, nil
}

// UpdatePage applies a partial update.
func (e *Engine) UpdatePage(ctx context.Context, id string, patch store.PagePatch) (*store.Page, error) {
	return e.pages.Update(ctx, id, patch)
}

func (e *Engine) setPageStatus(ctx context.Context, id string, status schema.Status, action string) (*store.Page, error) {
	page, err := e.pages.Update(ctx, id, store.PagePatch{Status: &status})
	if err != nil {
		return nil, err
	}
	e.logger.Info("page "+action, "pageid", id)
	return page, nil
}

// PublishPage marks a page published.
func (e *Engine) PublishPage(ctx context.Context, id string) (*store.Page, error) {
	return e.setPageStatus(ctx, id, schema.StatusPublished, "published")
}

// ArchivePage marks a page archived.
func (e *Engine) ArchivePage(ctx context.Context, id string) (*store.Page, error) {
	return e.setPageStatus(ctx, id, schema.StatusArchived, "archived")
}

// DeletePage removes a page and detaches it from its app.
func (e *Engine) DeletePage(ctx context.Context, id string) (*store.Page, error) {
	page, err := e.pages.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.apps.RemovePage(ctx, page.AppID, id); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	e.logger.Info("page deleted", "pageid", id, "appid", page.AppID)
	return page, nil
}

// ReorderPages rewrites the display order of an app's pages to match
// the given id sequence. Every page of the app must appear exactly
// once.
func (e *Engine) ReorderPages(ctx context.Context, appID string, ids []string) ([]*store.Page, error) {
	if len(ids) == 0 {
		return nil, apperr.InvalidRequest("page ids are required")
	}

	existing, err := e.ListPages(ctx, appID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*store.Page, len(existing))
	for _, page := range existing {
		byID[page.ID] = page
	}
	if len(ids) != len(existing) {
		return nil, apperr.InvalidRequest(fmt.Sprintf("expected %d page ids, got %d", len(existing), len(ids)))
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if byID[id] == nil {
			return nil, apperr.InvalidRequest(fmt.Sprintf("page %s does not belong to app %s", id, appID))
		}
		if seen[id] {
			return nil, apperr.InvalidRequest("duplicate page id " + id)
		}
		seen[id] = true
	}

	for i, id := range ids {
		order := i
		if _, err := e.pages.Update(ctx, id, store.PagePatch{Order: &order}); err != nil {
			return nil, err
		}
	}
	return e.ListPages(ctx, appID)
}
