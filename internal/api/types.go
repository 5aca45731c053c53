package api

import (
	"github.com/formbase/formbase/internal/schema"
	"github.com/formbase/formbase/internal/store"
)

// Update request bodies carry pointers so absent keys are
// distinguishable from explicit zero values. Identity and lifecycle
// keys are deliberately not decodable here.

type updateDataSourceRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Fields      *[]schema.Field  `json:"fields"`
	Version     *string          `json:"version"`
	Category    *schema.Category `json:"category"`
	Tags        *[]string        `json:"tags"`
}

func (r updateDataSourceRequest) patch() store.SchemaPatch {
	return store.SchemaPatch{
		Title:       r.Title,
		Description: r.Description,
		Fields:      r.Fields,
		Version:     r.Version,
		Category:    r.Category,
		Tags:        r.Tags,
	}
}

type updateAppRequest struct {
	Name        *string   `json:"appName"`
	Description *string   `json:"description"`
	Version     *string   `json:"version"`
	Tags        *[]string `json:"tags"`
}

func (r updateAppRequest) patch() store.AppPatch {
	return store.AppPatch{
		Name:        r.Name,
		Description: r.Description,
		Version:     r.Version,
		Tags:        r.Tags,
	}
}

type updatePageRequest struct {
	Name        *string            `json:"pageName"`
	Description *string            `json:"description"`
	Components  *[]store.Component `json:"components"`
	Order       *int               `json:"order"`
}

func (r updatePageRequest) patch() store.PagePatch {
	return store.PagePatch{
		Name:        r.Name,
		Description: r.Description,
		Components:  r.Components,
		Order:       r.Order,
	}
}

type batchDeleteRequest struct {
	IDs []string `json:"ids"`
}

type cloneDataSourceRequest struct {
	Title string `json:"title"`
}

type cloneAppRequest struct {
	Name string `json:"appName"`
}

type reorderPagesRequest struct {
	AppID   string   `json:"appid"`
	PageIDs []string `json:"pageIds"`
}

type relationsRequest map[string]*schema.Relation

type relationCheck struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

type validateRelationRequest struct {
	Relation *schema.Relation `json:"relation"`
}

type relationVerdict struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}
