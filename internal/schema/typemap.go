package schema

// StorageType is the BSON-level type a field is stored as.
type StorageType string

const (
	StorageString      StorageType = "String"
	StorageDouble      StorageType = "Double"
	StorageBoolean     StorageType = "Boolean"
	StorageISODate     StorageType = "ISODate"
	StorageStringArray StorageType = "StringArray"
)

// storageTypes maps each logical field type to its storage type. A type
// without an entry cannot back a collection and fails schema checks.
var storageTypes = map[FieldType]StorageType{
	FieldString:  StorageString,
	FieldNumber:  StorageDouble,
	FieldBoolean: StorageBoolean,
	FieldDate:    StorageISODate,
	FieldArray:   StorageStringArray,
}

// StorageTypeOf resolves the storage type for a logical field type.
func StorageTypeOf(t FieldType) (StorageType, bool) {
	st, ok := storageTypes[t]
	return st, ok
}
