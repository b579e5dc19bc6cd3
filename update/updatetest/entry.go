/*
Package updatetest provides an in-memory update.Entry for exercising command
building, batching and SQL generation without a state manager.
*/
package updatetest

import (
	"reflect"

	"github.com/skuid/riker/dbchange"
	"github.com/skuid/riker/reflectutil"
	"github.com/skuid/riker/tags"
)

// Entry is a hand configured update.Entry. Current values are read from Entity;
// values set through SetStoreGeneratedValue take precedence over them.
type Entry struct {
	Entity         interface{}
	Table          *tags.TableMetadata
	State          dbchange.EntityState
	Original       map[string]interface{}
	Modified       map[string]bool
	Temporary      map[string]bool
	StoreGenerated map[string]interface{}
}

// NewEntry resolves the table for entity from model. entity must be a pointer to a struct.
func NewEntry(model *tags.Model, entity interface{}, state dbchange.EntityState) *Entry {
	table, err := model.GetTableMetadataForEntity(entity)
	if err != nil {
		panic(err)
	}
	return &Entry{
		Entity:         entity,
		Table:          table,
		State:          state,
		Original:       map[string]interface{}{},
		Modified:       map[string]bool{},
		Temporary:      map[string]bool{},
		StoreGenerated: map[string]interface{}{},
	}
}

// WithOriginal sets the original value of a field
func (e *Entry) WithOriginal(fieldName string, value interface{}) *Entry {
	e.Original[fieldName] = value
	return e
}

// WithModified marks fields as modified
func (e *Entry) WithModified(fieldNames ...string) *Entry {
	for _, name := range fieldNames {
		e.Modified[name] = true
	}
	return e
}

// WithTemporary marks fields as holding temporary values
func (e *Entry) WithTemporary(fieldNames ...string) *Entry {
	for _, name := range fieldNames {
		e.Temporary[name] = true
	}
	return e
}

// GetEntity function
func (e *Entry) GetEntity() interface{} {
	return e.Entity
}

// GetTableMetadata function
func (e *Entry) GetTableMetadata() *tags.TableMetadata {
	return e.Table
}

// GetEntityState function
func (e *Entry) GetEntityState() dbchange.EntityState {
	return e.State
}

// GetCurrentValue function
func (e *Entry) GetCurrentValue(field *tags.FieldMetadata) interface{} {
	if value, ok := e.StoreGenerated[field.GetName()]; ok {
		return value
	}
	return reflect.ValueOf(e.Entity).Elem().FieldByIndex(field.GetFieldIndex()).Interface()
}

// GetOriginalValue function
func (e *Entry) GetOriginalValue(field *tags.FieldMetadata) (interface{}, error) {
	if value, ok := e.Original[field.GetName()]; ok {
		return value, nil
	}
	return e.GetCurrentValue(field), nil
}

// IsPropertyModified function
func (e *Entry) IsPropertyModified(field *tags.FieldMetadata) bool {
	return e.Modified[field.GetName()]
}

// HasTemporaryValue function
func (e *Entry) HasTemporaryValue(field *tags.FieldMetadata) bool {
	_, generated := e.StoreGenerated[field.GetName()]
	return e.Temporary[field.GetName()] && !generated
}

// HasExplicitValue function
func (e *Entry) HasExplicitValue(field *tags.FieldMetadata) bool {
	return !reflectutil.IsZeroValue(reflect.ValueOf(e.GetCurrentValue(field)))
}

// SetStoreGeneratedValue function
func (e *Entry) SetStoreGeneratedValue(field *tags.FieldMetadata, value interface{}) {
	e.StoreGenerated[field.GetName()] = value
}
