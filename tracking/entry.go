package tracking

import (
	"context"
	"fmt"
	"reflect"

	"github.com/skuid/riker/dbchange"
	"github.com/skuid/riker/reflectutil"
	"github.com/skuid/riker/tags"
	"go.uber.org/zap"
)

/*
Entry tracks one entity instance. Current values are read from the struct
itself; original values are a snapshot taken when the entity was loaded,
attached or last saved.

Values the store returns during a save are held beside the struct until the
save commits, so a failed save leaves the entity exactly as it was.
*/
type Entry struct {
	manager *StateManager
	entity  interface{}
	value   reflect.Value
	table   *tags.TableMetadata
	state   dbchange.EntityState

	originals      []interface{}
	forced         []bool
	temporary      []bool
	storeGenerated map[int]interface{}

	identityKey string
	hasIdentity bool
}

func newEntry(manager *StateManager, entity interface{}, value reflect.Value, table *tags.TableMetadata) *Entry {
	fieldCount := len(table.GetFields())
	return &Entry{
		manager:        manager,
		entity:         entity,
		value:          value,
		table:          table,
		state:          dbchange.Detached,
		forced:         make([]bool, fieldCount),
		temporary:      make([]bool, fieldCount),
		storeGenerated: map[int]interface{}{},
	}
}

// GetEntity returns the tracked pointer
func (e *Entry) GetEntity() interface{} {
	return e.entity
}

// GetTableMetadata function
func (e *Entry) GetTableMetadata() *tags.TableMetadata {
	return e.table
}

// GetEntityState function
func (e *Entry) GetEntityState() dbchange.EntityState {
	return e.state
}

func (e *Entry) structField(field *tags.FieldMetadata) reflect.Value {
	return e.value.FieldByIndex(field.GetFieldIndex())
}

// GetCurrentValue returns the live value of a property
func (e *Entry) GetCurrentValue(field *tags.FieldMetadata) interface{} {
	if value, ok := e.storeGenerated[field.GetIndex()]; ok {
		return value
	}
	return e.structField(field).Interface()
}

// GetCurrentValues returns the live values of fields, in order
func (e *Entry) GetCurrentValues(fields []*tags.FieldMetadata) []interface{} {
	values := make([]interface{}, len(fields))
	for i, field := range fields {
		values[i] = e.GetCurrentValue(field)
	}
	return values
}

/*
SetCurrentValue writes a property. Writing a different value clears the
property's temporary flag and moves an Unchanged entry to Modified when the
property is mutable. Keys of saved entities can't be changed.
*/
func (e *Entry) SetCurrentValue(field *tags.FieldMetadata, value interface{}) error {
	converted, err := tags.ConvertValue(value, field.GetFieldType())
	if err != nil {
		return fmt.Errorf("riker: setting %s.%s: %w", e.table.GetName(), field.GetName(), err)
	}
	if reflectutil.ValuesEqual(e.GetCurrentValue(field), converted) && !e.temporary[field.GetIndex()] {
		return nil
	}

	if field.IsReadOnlyAfterSave() && e.state != dbchange.Added && e.state != dbchange.Detached {
		return NewKeyModifiedError(e.table.GetName(), field.GetName())
	}

	e.assign(field, converted)
	e.temporary[field.GetIndex()] = false

	if field.IsPrimaryKey() && e.state != dbchange.Detached && e.state != dbchange.Deleted {
		if err := e.manager.rekey(e); err != nil {
			return err
		}
	}

	if e.state == dbchange.Unchanged && e.IsPropertyModified(field) {
		e.manager.changeState(e, dbchange.Modified)
	}
	return nil
}

func (e *Entry) assign(field *tags.FieldMetadata, value interface{}) {
	target := e.structField(field)
	if value == nil {
		target.Set(reflect.Zero(target.Type()))
		return
	}
	target.Set(reflect.ValueOf(value))
}

// HasOriginalValues is false for entries that were never loaded or saved
func (e *Entry) HasOriginalValues() bool {
	return e.originals != nil
}

// GetOriginalValue returns the value of a property as of the last load or save
func (e *Entry) GetOriginalValue(field *tags.FieldMetadata) (interface{}, error) {
	if e.originals == nil {
		return nil, ErrInvalidOperation
	}
	return e.originals[field.GetIndex()], nil
}

func (e *Entry) snapshot() {
	fields := e.table.GetFields()
	e.originals = make([]interface{}, len(fields))
	for _, field := range fields {
		e.originals[field.GetIndex()] = copyValue(e.GetCurrentValue(field))
	}
}

// copyValue detaches maps, slices and pointers from the struct so in place edits show up as changes
func copyValue(value interface{}) interface{} {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return value
		}
		clone := reflect.New(v.Elem().Type())
		clone.Elem().Set(v.Elem())
		return clone.Interface()
	case reflect.Slice:
		if v.IsNil() {
			return value
		}
		clone := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		reflect.Copy(clone, v)
		return clone.Interface()
	case reflect.Map:
		if v.IsNil() {
			return value
		}
		clone := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			clone.SetMapIndex(iter.Key(), iter.Value())
		}
		return clone.Interface()
	}
	return value
}

// IsPropertyModified is true for forced properties and mutable properties whose value differs from the original
func (e *Entry) IsPropertyModified(field *tags.FieldMetadata) bool {
	if e.forced[field.GetIndex()] {
		return true
	}
	if e.originals == nil || !field.IsMutable() {
		return false
	}
	return !reflectutil.ValuesEqual(e.GetCurrentValue(field), e.originals[field.GetIndex()])
}

// GetModifiedFields returns the fields IsPropertyModified reports as modified
func (e *Entry) GetModifiedFields() []*tags.FieldMetadata {
	modified := []*tags.FieldMetadata{}
	for _, field := range e.table.GetFields() {
		if e.IsPropertyModified(field) {
			modified = append(modified, field)
		}
	}
	return modified
}

/*
SetPropertyModified forces a property to be written on the next save. Clearing
the flag restores the original value, and an entry with nothing left to write
goes back to Unchanged.
*/
func (e *Entry) SetPropertyModified(field *tags.FieldMetadata, modified bool) error {
	if !field.IsMutable() {
		return fmt.Errorf("riker: %s.%s can't be marked modified", e.table.GetName(), field.GetName())
	}

	if modified {
		e.forced[field.GetIndex()] = true
		if e.state == dbchange.Unchanged {
			e.manager.changeState(e, dbchange.Modified)
		}
		return nil
	}

	e.forced[field.GetIndex()] = false
	if e.originals != nil {
		e.assign(field, e.originals[field.GetIndex()])
	}
	if e.state == dbchange.Modified && len(e.GetModifiedFields()) == 0 {
		e.manager.changeState(e, dbchange.Unchanged)
	}
	return nil
}

// HasTemporaryValue is true while a property holds a placeholder the store will replace
func (e *Entry) HasTemporaryValue(field *tags.FieldMetadata) bool {
	if _, ok := e.storeGenerated[field.GetIndex()]; ok {
		return false
	}
	return e.temporary[field.GetIndex()]
}

// HasTemporaryValues is true when any property holds a placeholder
func (e *Entry) HasTemporaryValues() bool {
	for _, field := range e.table.GetFields() {
		if e.HasTemporaryValue(field) {
			return true
		}
	}
	return false
}

// HasExplicitValue is true when the property holds something other than its type's zero value
func (e *Entry) HasExplicitValue(field *tags.FieldMetadata) bool {
	if e.HasTemporaryValue(field) {
		return false
	}
	return !reflectutil.IsZeroValue(reflect.ValueOf(e.GetCurrentValue(field)))
}

// SetStoreGeneratedValue records a value read back from the store. New keys are
// passed on to tracked dependents that reference this entry.
func (e *Entry) SetStoreGeneratedValue(field *tags.FieldMetadata, value interface{}) {
	previous := e.GetCurrentValue(field)
	e.storeGenerated[field.GetIndex()] = value
	if field.IsPrimaryKey() {
		e.manager.propagateKey(e, field, previous, value)
	}
}

// DiscardStoreGeneratedValues drops values read back by a save that didn't commit
func (e *Entry) DiscardStoreGeneratedValues() {
	if len(e.storeGenerated) > 0 {
		e.storeGenerated = map[int]interface{}{}
	}
}

// flushStoreGeneratedValues writes values read back by a committed save into the struct
func (e *Entry) flushStoreGeneratedValues() error {
	if len(e.storeGenerated) == 0 {
		return nil
	}
	keyChanged := false
	for _, field := range e.table.GetFields() {
		value, ok := e.storeGenerated[field.GetIndex()]
		if !ok {
			continue
		}
		e.assign(field, value)
		e.temporary[field.GetIndex()] = false
		keyChanged = keyChanged || field.IsPrimaryKey()
	}
	e.storeGenerated = map[int]interface{}{}
	if keyChanged {
		return e.manager.rekey(e)
	}
	return nil
}

/*
SetEntityState moves the entry to state.

  - Added runs the client side generators of unset properties and assigns the tenant key.
  - Unchanged and Modified fail while a property holds a temporary value.
  - Unchanged from Modified restores the original values.
  - Modified marks every mutable property modified.
  - Deleted detaches Added entries, other entries keep their originals for the WHERE clause.
  - Unknown is never valid.
*/
func (e *Entry) SetEntityState(ctx context.Context, state dbchange.EntityState) error {
	from := e.state

	switch state {
	case dbchange.Unknown:
		return dbchange.NewInvalidStateTransitionError(e.table.GetName(), from, state, "Unknown can't be set explicitly")

	case dbchange.Detached:
		if from != dbchange.Detached {
			e.manager.untrack(e)
		}
		return nil

	case dbchange.Added:
		if err := e.manager.generateValues(ctx, e); err != nil {
			return err
		}
		e.originals = nil
		return e.manager.track(e, dbchange.Added)

	case dbchange.Unchanged:
		if e.HasTemporaryValues() {
			return dbchange.NewInvalidStateTransitionError(e.table.GetName(), from, state, "the entity has temporary key values; save it first")
		}
		if from == dbchange.Modified {
			for _, field := range e.table.GetFields() {
				if e.IsPropertyModified(field) && e.originals != nil {
					e.assign(field, e.originals[field.GetIndex()])
				}
			}
		}
		e.clearForced()
		if e.originals == nil || from == dbchange.Added {
			e.snapshot()
		}
		return e.manager.track(e, dbchange.Unchanged)

	case dbchange.Modified:
		if e.HasTemporaryValues() {
			return dbchange.NewInvalidStateTransitionError(e.table.GetName(), from, state, "the entity has temporary key values; save it first")
		}
		if e.originals == nil {
			e.snapshot()
		}
		for _, field := range e.table.GetFields() {
			if field.IsMutable() {
				e.forced[field.GetIndex()] = true
			}
		}
		return e.manager.track(e, dbchange.Modified)

	case dbchange.Deleted:
		if from == dbchange.Added {
			e.manager.untrack(e)
			return nil
		}
		for _, field := range e.table.GetPrimaryKeyFields() {
			if e.HasTemporaryValue(field) {
				return dbchange.NewInvalidStateTransitionError(e.table.GetName(), from, state, "the key isn't known yet")
			}
		}
		if e.originals == nil {
			e.snapshot()
		}
		return e.manager.track(e, dbchange.Deleted)
	}

	return dbchange.NewInvalidStateTransitionError(e.table.GetName(), from, state, "unknown state")
}

func (e *Entry) clearForced() {
	for i := range e.forced {
		e.forced[i] = false
	}
}

/*
AcceptChanges makes the current values the new originals after a successful
save. Added and Modified entries become Unchanged, Deleted entries are
detached. Calling it again does nothing.
*/
func (e *Entry) AcceptChanges() error {
	switch e.state {
	case dbchange.Added, dbchange.Modified:
		if err := e.flushStoreGeneratedValues(); err != nil {
			return err
		}
		e.snapshot()
		e.clearForced()
		for i := range e.temporary {
			e.temporary[i] = false
		}
		e.manager.changeState(e, dbchange.Unchanged)
	case dbchange.Deleted:
		e.manager.untrack(e)
	}
	return nil
}

func (e *Entry) keyFields() []zap.Field {
	fields := []zap.Field{zap.String("entity", e.table.GetName())}
	if e.manager.sensitiveLogging {
		fields = append(fields, zap.String("key", reflectutil.KeyString(e.GetCurrentValues(e.table.GetPrimaryKeyFields())...)))
	}
	return fields
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s (%s)", e.table.GetName(), e.state)
}
