// Package query translates incoming filter/sort/pagination parameters
// plus a data-source schema into storage-neutral query terms. The
// builders never fail: unknown filter keys and invalid sort specs
// degrade to defaults instead of erroring.
package query

import (
	"strconv"
	"strings"

	"github.com/formbase/formbase/internal/schema"
)

// Op is a comparison operator on a single field.
type Op string

const (
	OpEq       Op = "eq"
	OpContains Op = "contains" // case-insensitive substring match
	OpIn       Op = "in"
	OpGte      Op = "gte"
)

// Condition is one field comparison.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Filter is a conjunction of conditions, optionally with one
// disjunction group (used for multi-field searches).
type Filter struct {
	All []Condition
	Any []Condition
}

// Sort is a single-key sort order.
type Sort struct {
	Field string
	Desc  bool
}

// DefaultSort is newest-first by creation time.
func DefaultSort() Sort {
	return Sort{Field: "createdAt", Desc: true}
}

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// NewPage clamps page and limit to be at least 1, applying defaults
// for non-positive inputs.
func NewPage(page, limit int) Page {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	return Page{Page: page, Limit: limit}
}

// ParsePage reads page/limit from raw query strings.
func ParsePage(page, limit string) Page {
	p, _ := strconv.Atoi(page)
	l, _ := strconv.Atoi(limit)
	return NewPage(p, l)
}

// Skip returns the number of records to skip.
func (p Page) Skip() int {
	return (p.Page - 1) * p.Limit
}

// Pages returns ceil(total/limit).
func Pages(total int64, limit int) int {
	if limit < 1 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

// Pagination describes one page of a listing result.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// NewPagination builds the pagination block for a page and total.
func NewPagination(p Page, total int64) Pagination {
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, Pages: Pages(total, p.Limit)}
}

// reserved keys never treated as field filters.
var reservedParams = map[string]bool{
	"page":         true,
	"limit":        true,
	"sort":         true,
	"search":       true,
	"appid":        true,
	"datasourceid": true,
}

// BuildFilter derives the storage filter for a record listing. The
// data-source id is always pinned. Every other parameter matching a
// field name becomes a case-insensitive substring match for string
// fields and an exact match otherwise. Unknown keys are ignored.
func BuildFilter(ds *schema.DataSource, params map[string]string) Filter {
	f := Filter{All: []Condition{{Field: "datasourceid", Op: OpEq, Value: ds.ID}}}

	if appID := params["appid"]; appID != "" {
		f.All = append(f.All, Condition{Field: "appid", Op: OpEq, Value: appID})
	}

	for i := range ds.Fields {
		field := &ds.Fields[i]
		raw, ok := params[field.Name]
		if !ok || raw == "" || reservedParams[field.Name] {
			continue
		}
		if field.Type == schema.FieldString {
			f.All = append(f.All, Condition{Field: field.Name, Op: OpContains, Value: raw})
		} else {
			f.All = append(f.All, Condition{Field: field.Name, Op: OpEq, Value: coerce(field.Type, raw)})
		}
	}

	return f
}

// coerce converts a raw query-string value to the field's storage
// representation so exact matches compare like for like.
func coerce(t schema.FieldType, raw string) any {
	switch t {
	case schema.FieldNumber:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return n
		}
	case schema.FieldBoolean:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	}
	return raw
}

// BuildSort parses a "<field>:<asc|desc>" spec. Valid sort keys are the
// schema's field names plus createdAt and updatedAt; anything else,
// including a missing spec, falls back to createdAt descending.
func BuildSort(ds *schema.DataSource, spec string) Sort {
	if spec == "" {
		return DefaultSort()
	}

	field, order, _ := strings.Cut(spec, ":")
	if field != "createdAt" && field != "updatedAt" && ds.FieldByName(field) == nil {
		return DefaultSort()
	}
	return Sort{Field: field, Desc: order != "asc"}
}
