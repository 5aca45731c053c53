package schema

// RelationType classifies a cross-collection relation.
type RelationType string

const (
	RelationForeign RelationType = "foreign"
	RelationLookup  RelationType = "lookup"
	RelationCascade RelationType = "cascade"
)

// Relation declares a reference from a field to another data source.
// TargetDataSourceID is a soft reference: validated at write time, not
// enforced continuously by the storage layer.
type Relation struct {
	Type               RelationType   `bson:"type,omitempty" json:"type,omitempty"`
	TargetDataSourceID string         `bson:"targetDataSourceId,omitempty" json:"targetDataSourceId,omitempty"`
	TargetField        string         `bson:"targetField,omitempty" json:"targetField,omitempty"`
	TargetValueField   string         `bson:"targetValueField,omitempty" json:"targetValueField,omitempty"`
	Filter             map[string]any `bson:"filter,omitempty" json:"filter,omitempty"`
	Sort               map[string]int `bson:"sort,omitempty" json:"sort,omitempty"`
	Searchable         bool           `bson:"searchable,omitempty" json:"searchable,omitempty"`
	SearchFields       []string       `bson:"searchFields,omitempty" json:"searchFields,omitempty"`
	Paginated          bool           `bson:"paginated,omitempty" json:"paginated,omitempty"`
	PageSize           int            `bson:"pageSize,omitempty" json:"pageSize,omitempty"`
}

// IsMeaningfulRelation reports whether r carries at least one non-empty,
// non-default property. Form editors submit all-defaults relation
// objects as placeholders; those are treated as "no relation" and must
// never be persisted.
func IsMeaningfulRelation(r *Relation) bool {
	if r == nil {
		return false
	}
	switch {
	case r.Type != "",
		r.TargetDataSourceID != "",
		r.TargetField != "",
		r.TargetValueField != "",
		len(r.Filter) > 0,
		len(r.Sort) > 0,
		r.Searchable,
		len(r.SearchFields) > 0,
		r.Paginated,
		r.PageSize > 0:
		return true
	}
	return false
}

// NormalizeFields strips non-meaningful relation objects from a field
// list. Called on every write path that persists field definitions.
func NormalizeFields(fields []Field) {
	for i := range fields {
		if !IsMeaningfulRelation(fields[i].Relation) {
			fields[i].Relation = nil
		}
	}
}

// Normalize strips non-meaningful relations from the data source.
func (d *DataSource) Normalize() {
	NormalizeFields(d.Fields)
}
