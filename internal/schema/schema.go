// Package schema defines the data-source model: a named collection of
// field definitions with validation rules, UI-control metadata, and
// optional cross-collection relations.
package schema

import (
	"fmt"
	"time"

	"github.com/formbase/formbase/internal/apperr"
)

// FieldType is the logical type of a field value.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldArray   FieldType = "array"
)

// Status is the lifecycle state of a data source, app, or page. It does
// not gate CRUD access.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Category classifies a data source for the UI. Informational only.
type Category string

const (
	CategoryForm   Category = "form"
	CategoryTable  Category = "table"
	CategoryChart  Category = "chart"
	CategoryCustom Category = "custom"
)

// Validation holds the per-field rules enforced by the validation
// engine. Pointer fields distinguish "unset" from zero.
type Validation struct {
	Required  bool     `bson:"required,omitempty" json:"required,omitempty"`
	Min       *float64 `bson:"min,omitempty" json:"min,omitempty"`
	Max       *float64 `bson:"max,omitempty" json:"max,omitempty"`
	MinLength *int     `bson:"minLength,omitempty" json:"minLength,omitempty"`
	MaxLength *int     `bson:"maxLength,omitempty" json:"maxLength,omitempty"`
	Pattern   string   `bson:"pattern,omitempty" json:"pattern,omitempty"`
}

// Field is one named, typed attribute of a data source.
type Field struct {
	Name       string         `bson:"name" json:"name"`
	Type       FieldType      `bson:"type" json:"type"`
	Label      string         `bson:"label" json:"label"`
	Control    string         `bson:"control,omitempty" json:"control,omitempty"`
	Config     map[string]any `bson:"config,omitempty" json:"config,omitempty"`
	Validation *Validation    `bson:"validation,omitempty" json:"validation,omitempty"`
	Relation   *Relation      `bson:"relation,omitempty" json:"relation,omitempty"`
}

// DisplayName returns the label, falling back to the storage name.
func (f *Field) DisplayName() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// Required reports whether the field carries a required rule.
func (f *Field) Required() bool {
	return f.Validation != nil && f.Validation.Required
}

// DataSource is a persisted data-source definition.
type DataSource struct {
	ID          string    `bson:"datasourceid" json:"datasourceid"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	AppID       string    `bson:"appid" json:"appid"`
	Fields      []Field   `bson:"fields" json:"fields"`
	Version     string    `bson:"version,omitempty" json:"version,omitempty"`
	Status      Status    `bson:"status" json:"status"`
	Category    Category  `bson:"category" json:"category"`
	Creator     string    `bson:"creator,omitempty" json:"creator,omitempty"`
	Tags        []string  `bson:"tags,omitempty" json:"tags,omitempty"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}

// FieldByName returns the field with the given storage name, or nil.
func (d *DataSource) FieldByName(name string) *Field {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i]
		}
	}
	return nil
}

// controls lists the UI control hints a field may carry.
var controls = map[string]bool{
	"input":    true,
	"number":   true,
	"email":    true,
	"tel":      true,
	"textarea": true,
	"select":   true,
	"radio":    true,
	"checkbox": true,
	"date":     true,
	"switch":   true,
}

// ValidFieldType reports whether t maps to a storage type.
func ValidFieldType(t FieldType) bool {
	_, ok := storageTypes[t]
	return ok
}

// CheckFields verifies that a field list can back a storage collection:
// every field named, names unique within the list, types known, and
// control hints (when set) recognized. An empty list is allowed here;
// the registry rejects it when a collection is actually materialized.
func CheckFields(fields []Field) error {
	seen := make(map[string]bool, len(fields))
	for i := range fields {
		f := &fields[i]
		if f.Name == "" {
			return &apperr.InvalidSchemaError{Reason: fmt.Sprintf("field %d has no name", i)}
		}
		if seen[f.Name] {
			return &apperr.InvalidSchemaError{Reason: fmt.Sprintf("duplicate field name %q", f.Name)}
		}
		seen[f.Name] = true
		if !ValidFieldType(f.Type) {
			return &apperr.InvalidSchemaError{Reason: fmt.Sprintf("field %q has unknown type %q", f.Name, f.Type)}
		}
		if f.Control != "" && !controls[f.Control] {
			return &apperr.InvalidSchemaError{Reason: fmt.Sprintf("field %q has unknown control %q", f.Name, f.Control)}
		}
	}
	return nil
}

// CheckFields verifies the data source's own field list.
func (d *DataSource) CheckFields() error {
	return CheckFields(d.Fields)
}
