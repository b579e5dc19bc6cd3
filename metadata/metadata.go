package metadata

import (
	"reflect"
)

// Metadata is a field type that can be easily detected by riker.
// Used as an embedded type on a model struct, and certain metadata can be added as struct tags.
// Currently supported tags:
//
//	tablename
//	schema
//
// DefinedFields is filled in by the decoding package with the names of the
// struct fields that were present in the decoded payload. Attaching such a
// model marks only those fields as modified.
type Metadata struct {
	DefinedFields []string
}

var metadataType = reflect.TypeOf(Metadata{})

// Type returns the reflect type of Metadata
func Type() reflect.Type {
	return metadataType
}

// AddDefinedField appends a field name to the DefinedFields of the metadata value
func AddDefinedField(metadataValue reflect.Value, fieldName string) {
	if metadataValue.IsValid() && metadataValue.CanSet() {
		definedFields := metadataValue.FieldByName("DefinedFields")
		definedFields.Set(reflect.Append(definedFields, reflect.ValueOf(fieldName)))
	}
}

// InitializeDefinedFields resets DefinedFields to an empty, non-nil slice
func InitializeDefinedFields(metadataValue reflect.Value) {
	if metadataValue.IsValid() && metadataValue.CanSet() {
		definedFields := metadataValue.FieldByName("DefinedFields")
		definedFields.Set(reflect.ValueOf([]string{}))
	}
}

// HasDefinedFields returns true once DefinedFields has been initialized
func HasDefinedFields(metadataValue reflect.Value) bool {
	if !metadataValue.IsValid() {
		return false
	}
	return !metadataValue.FieldByName("DefinedFields").IsNil()
}

// GetMetadataValue finds the embedded Metadata field of a model struct value
func GetMetadataValue(modelStruct reflect.Value) reflect.Value {
	var metadataValue reflect.Value
	for i := 0; i < modelStruct.Type().NumField(); i++ {
		field := modelStruct.Type().Field(i)
		if field.Type == metadataType {
			metadataValue = modelStruct.Field(i)
			break
		}
	}
	return metadataValue
}

// GetMetadataFromStruct returns a copy of the embedded Metadata of a model struct value
func GetMetadataFromStruct(modelStruct reflect.Value) Metadata {
	var metadata Metadata
	metadataValue := GetMetadataValue(modelStruct)
	if metadataValue.IsValid() && metadataValue.CanInterface() {
		metadata = metadataValue.Interface().(Metadata)
	}
	return metadata
}

// IsDefined reports whether fieldName was present in the decoded payload.
// Models that were never decoded treat every field as defined.
func (m Metadata) IsDefined(fieldName string) bool {
	if m.DefinedFields == nil {
		return true
	}
	for _, name := range m.DefinedFields {
		if name == fieldName {
			return true
		}
	}
	return false
}
