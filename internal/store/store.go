// Package store defines the persistence ports of the service and their
// MongoDB implementations. In-memory mocks live in mock.go for tests.
package store

import (
	"context"
	"time"

	"github.com/formbase/formbase/internal/query"
	"github.com/formbase/formbase/internal/registry"
	"github.com/formbase/formbase/internal/schema"
)

// Record is one untyped row of a dynamic collection.
type Record = map[string]any

// ValueCount is one bucket of a per-field value histogram.
type ValueCount struct {
	Value any   `bson:"_id" json:"value"`
	Count int64 `bson:"count" json:"count"`
}

// SchemaPatch is a partial update to a data-source definition. Nil
// pointers leave the corresponding attribute unchanged. The id and
// owning app are immutable and deliberately absent.
type SchemaPatch struct {
	Title       *string
	Description *string
	Fields      *[]schema.Field
	Version     *string
	Status      *schema.Status
	Category    *schema.Category
	Tags        *[]string
}

// SchemaStore persists data-source definitions.
type SchemaStore interface {
	// Create assigns a fresh id and inserts the definition, retrying on
	// id collision up to identifier.MaxAttempts before failing with
	// ErrDuplicateIdentifier.
	Create(ctx context.Context, ds *schema.DataSource) error
	Get(ctx context.Context, id string) (*schema.DataSource, error)
	// GetFields loads only id, title, and the field list.
	GetFields(ctx context.Context, id string) (*schema.DataSource, error)
	// ListByApp returns the app's data sources, optionally filtered by
	// status and category, newest first.
	ListByApp(ctx context.Context, appID, status, category string) ([]*schema.DataSource, error)
	Update(ctx context.Context, id string, patch SchemaPatch) (*schema.DataSource, error)
	// Delete removes the definition and returns it.
	Delete(ctx context.Context, id string) (*schema.DataSource, error)
}

// App is a metadata entity owning pages and data sources by id list.
type App struct {
	ID          string        `bson:"appid" json:"appid"`
	Name        string        `bson:"appName" json:"appName"`
	Description string        `bson:"description,omitempty" json:"description,omitempty"`
	Pages       []string      `bson:"pages" json:"pages"`
	DataSources []string      `bson:"dataSources" json:"dataSources"`
	Version     string        `bson:"version,omitempty" json:"version,omitempty"`
	Status      schema.Status `bson:"status" json:"status"`
	Creator     string        `bson:"creator,omitempty" json:"creator,omitempty"`
	Tags        []string      `bson:"tags,omitempty" json:"tags,omitempty"`
	CreatedAt   time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// AppPatch is a partial update to an app.
type AppPatch struct {
	Name        *string
	Description *string
	Version     *string
	Status      *schema.Status
	Tags        *[]string
}

// AppStore persists apps and maintains their child id lists.
type AppStore interface {
	Create(ctx context.Context, app *App) error
	Get(ctx context.Context, id string) (*App, error)
	List(ctx context.Context, status string) ([]*App, error)
	Update(ctx context.Context, id string, patch AppPatch) (*App, error)
	Delete(ctx context.Context, id string) (*App, error)

	// Child-list maintenance. Adds are set-like (no duplicates);
	// removals of absent ids are no-ops.
	AddDataSource(ctx context.Context, appID, dataSourceID string) error
	RemoveDataSource(ctx context.Context, appID, dataSourceID string) error
	AddPage(ctx context.Context, appID, pageID string) error
	RemovePage(ctx context.Context, appID, pageID string) error
}

// Component is one configured widget on a page.
type Component struct {
	Name         string         `bson:"componentName" json:"componentName"`
	DataSourceID string         `bson:"dataSourceId" json:"dataSourceId"`
	Config       map[string]any `bson:"config,omitempty" json:"config,omitempty"`
}

// Page is a metadata entity describing one rendered page of an app.
type Page struct {
	ID          string        `bson:"pageid" json:"pageid"`
	Name        string        `bson:"pageName" json:"pageName"`
	Description string        `bson:"description,omitempty" json:"description,omitempty"`
	AppID       string        `bson:"appid" json:"appid"`
	Components  []Component   `bson:"components" json:"components"`
	Status      schema.Status `bson:"status" json:"status"`
	Order       int           `bson:"order" json:"order"`
	Creator     string        `bson:"creator,omitempty" json:"creator,omitempty"`
	CreatedAt   time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// PagePatch is a partial update to a page.
type PagePatch struct {
	Name        *string
	Description *string
	Components  *[]Component
	Status      *schema.Status
	Order       *int
}

// PageStore persists pages.
type PageStore interface {
	Create(ctx context.Context, page *Page) error
	Get(ctx context.Context, id string) (*Page, error)
	// ListByApp returns the app's pages ordered by their Order field.
	ListByApp(ctx context.Context, appID string) ([]*Page, error)
	Update(ctx context.Context, id string, patch PagePatch) (*Page, error)
	Delete(ctx context.Context, id string) (*Page, error)
}

// RecordStore executes operations against a dynamic collection through
// its registry handle. Record primary keys are storage-assigned and
// surfaced as the hex string under "_id".
type RecordStore interface {
	Insert(ctx context.Context, h *registry.Handle, rec Record) (Record, error)
	// Find applies filter and sort; limit <= 0 means no limit.
	Find(ctx context.Context, h *registry.Handle, f query.Filter, s query.Sort, skip, limit int) ([]Record, error)
	Count(ctx context.Context, h *registry.Handle, f query.Filter) (int64, error)
	FindByID(ctx context.Context, h *registry.Handle, id string) (Record, error)
	UpdateByID(ctx context.Context, h *registry.Handle, id string, changes Record) (Record, error)
	DeleteByID(ctx context.Context, h *registry.Handle, id string) error
	// DeleteByIDs removes matching records and returns the count
	// actually removed; nonexistent ids are not errors.
	DeleteByIDs(ctx context.Context, h *registry.Handle, ids []string) (int64, error)
	// GroupCount returns value buckets for one field, largest first.
	GroupCount(ctx context.Context, h *registry.Handle, field string, f query.Filter) ([]ValueCount, error)
}
