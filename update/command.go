/*
Package update turns dirty entries into row level modification commands,
orders and batches them, and executes the batches.

	preparer := update.NewPreparer(update.PreparerConfig{MaxBatchSize: 100})
	batches, err := preparer.Prepare(entries)
	...
	executor := update.NewExecutor(update.ExecutorConfig{Generator: sqlgen.NewPostgres()})
	rowsAffected, err := executor.Execute(ctx, tx, batches)
*/
package update

import (
	"fmt"
	"strings"

	"github.com/skuid/riker/dbchange"
	"github.com/skuid/riker/reflectutil"
	"github.com/skuid/riker/tags"
)

// Entry is the view of a tracked entity the update pipeline works with
type Entry interface {
	GetEntity() interface{}
	GetTableMetadata() *tags.TableMetadata
	GetEntityState() dbchange.EntityState
	GetCurrentValue(field *tags.FieldMetadata) interface{}
	GetOriginalValue(field *tags.FieldMetadata) (interface{}, error)
	IsPropertyModified(field *tags.FieldMetadata) bool
	// HasTemporaryValue reports whether the current value is a placeholder the store will replace
	HasTemporaryValue(field *tags.FieldMetadata) bool
	// HasExplicitValue reports whether the current value differs from the type's zero value
	HasExplicitValue(field *tags.FieldMetadata) bool
	// SetStoreGeneratedValue records a value read back from the store
	SetStoreGeneratedValue(field *tags.FieldMetadata, value interface{})
}

// ColumnModification is one column of a ModificationCommand
type ColumnModification struct {
	entry       Entry
	field       *tags.FieldMetadata
	useOriginal bool

	IsKey       bool
	IsCondition bool
	IsRead      bool
	IsWrite     bool
}

// GetColumnName function
func (c *ColumnModification) GetColumnName() string {
	return c.field.GetColumnName()
}

// GetField function
func (c *ColumnModification) GetField() *tags.FieldMetadata {
	return c.field
}

// GetEntry function
func (c *ColumnModification) GetEntry() Entry {
	return c.entry
}

// GetValue returns the current value in its stored form. Values are read when
// the command is rendered, so keys propagated by earlier batches are seen.
func (c *ColumnModification) GetValue() (interface{}, error) {
	return c.field.ToStore(c.entry.GetCurrentValue(c.field))
}

// GetConditionValue returns the value matched in the WHERE clause. Updates and
// deletes match the original value, inserts have nothing to match but the current one.
func (c *ColumnModification) GetConditionValue() (interface{}, error) {
	if !c.useOriginal {
		return c.GetValue()
	}
	value, err := c.entry.GetOriginalValue(c.field)
	if err != nil {
		return nil, err
	}
	return c.field.ToStore(value)
}

// ModificationCommand is one insert, update or delete of one row
type ModificationCommand struct {
	entry   Entry
	kind    dbchange.Type
	columns []*ColumnModification
}

// NewModificationCommand builds the command for an Added, Modified or Deleted entry
func NewModificationCommand(entry Entry) (*ModificationCommand, error) {
	state := entry.GetEntityState()
	kind, ok := dbchange.TypeForState(state)
	if !ok {
		return nil, dbchange.NewInvalidStateTransitionError(
			entry.GetTableMetadata().GetName(),
			state,
			state,
			"only Added, Modified and Deleted entities can be saved",
		)
	}

	command := &ModificationCommand{
		entry: entry,
		kind:  kind,
	}

	for _, field := range entry.GetTableMetadata().GetFields() {
		var column *ColumnModification
		switch kind {
		case dbchange.Insert:
			column = insertColumn(entry, field)
		case dbchange.Update:
			column = updateColumn(entry, field)
		case dbchange.Delete:
			column = deleteColumn(entry, field)
		}
		if column != nil {
			command.columns = append(command.columns, column)
		}
	}

	return command, nil
}

func insertColumn(entry Entry, field *tags.FieldMetadata) *ColumnModification {
	column := &ColumnModification{
		entry: entry,
		field: field,
		IsKey: field.IsPrimaryKey(),
	}
	if entry.HasTemporaryValue(field) || (field.IsStoreGeneratedOnAdd() && !entry.HasExplicitValue(field)) {
		column.IsRead = true
		return column
	}
	column.IsWrite = true
	column.IsCondition = column.IsKey
	return column
}

func updateColumn(entry Entry, field *tags.FieldMetadata) *ColumnModification {
	column := &ColumnModification{
		entry:       entry,
		field:       field,
		useOriginal: true,
		IsKey:       field.IsPrimaryKey(),
		IsCondition: field.IsPrimaryKey() || field.IsConcurrencyToken() || field.IsMultitenancyKey(),
		IsWrite:     field.IsMutable() && entry.IsPropertyModified(field),
		IsRead:      !field.IsPrimaryKey() && field.IsStoreGeneratedOnUpdate(),
	}
	if !column.IsCondition && !column.IsWrite && !column.IsRead {
		return nil
	}
	return column
}

func deleteColumn(entry Entry, field *tags.FieldMetadata) *ColumnModification {
	if !field.IsPrimaryKey() && !field.IsConcurrencyToken() && !field.IsMultitenancyKey() {
		return nil
	}
	return &ColumnModification{
		entry:       entry,
		field:       field,
		useOriginal: true,
		IsKey:       field.IsPrimaryKey(),
		IsCondition: true,
	}
}

// GetEntry function
func (c *ModificationCommand) GetEntry() Entry {
	return c.entry
}

// GetType function
func (c *ModificationCommand) GetType() dbchange.Type {
	return c.kind
}

// GetEntityState returns the state of the entry the command was built for
func (c *ModificationCommand) GetEntityState() dbchange.EntityState {
	return c.entry.GetEntityState()
}

// GetTableMetadata function
func (c *ModificationCommand) GetTableMetadata() *tags.TableMetadata {
	return c.entry.GetTableMetadata()
}

// GetTableName function
func (c *ModificationCommand) GetTableName() string {
	return c.entry.GetTableMetadata().GetTableName()
}

// GetSchema function
func (c *ModificationCommand) GetSchema() string {
	return c.entry.GetTableMetadata().GetSchema()
}

// GetColumns function
func (c *ModificationCommand) GetColumns() []*ColumnModification {
	return c.columns
}

// GetWriteColumns function
func (c *ModificationCommand) GetWriteColumns() []*ColumnModification {
	return c.filter(func(column *ColumnModification) bool { return column.IsWrite })
}

// GetReadColumns function
func (c *ModificationCommand) GetReadColumns() []*ColumnModification {
	return c.filter(func(column *ColumnModification) bool { return column.IsRead })
}

// GetConditionColumns function
func (c *ModificationCommand) GetConditionColumns() []*ColumnModification {
	return c.filter(func(column *ColumnModification) bool { return column.IsCondition })
}

func (c *ModificationCommand) filter(keep func(*ColumnModification) bool) []*ColumnModification {
	columns := []*ColumnModification{}
	for _, column := range c.columns {
		if keep(column) {
			columns = append(columns, column)
		}
	}
	return columns
}

// RequiresResultPropagation is true when the store returns values for this command
func (c *ModificationCommand) RequiresResultPropagation() bool {
	if c.kind == dbchange.Delete {
		return false
	}
	for _, column := range c.columns {
		if column.IsRead {
			return true
		}
	}
	return false
}

// GetKeyColumns function
func (c *ModificationCommand) GetKeyColumns() []*ColumnModification {
	return c.filter(func(column *ColumnModification) bool { return column.IsKey })
}

// HasWrittenKey is true when every key column is sent with the insert, so rows
// returned by the store can be matched back to the command by key
func (c *ModificationCommand) HasWrittenKey() bool {
	keyColumns := c.GetKeyColumns()
	if len(keyColumns) == 0 {
		return false
	}
	for _, column := range keyColumns {
		if !column.IsWrite {
			return false
		}
	}
	return true
}

// keyString identifies the row of an insert by the current values of its key
func (c *ModificationCommand) keyString() string {
	keyColumns := c.GetKeyColumns()
	values := make([]interface{}, len(keyColumns))
	for i, column := range keyColumns {
		values[i] = c.entry.GetCurrentValue(column.field)
	}
	return reflectutil.KeyString(values...)
}

// HasWrites is false for updates with nothing left to write
func (c *ModificationCommand) HasWrites() bool {
	for _, column := range c.columns {
		if column.IsWrite {
			return true
		}
	}
	return false
}

// PropagateResults copies one result row, ordered like GetReadColumns, into the entry
func (c *ModificationCommand) PropagateResults(values []interface{}) error {
	readColumns := c.GetReadColumns()
	if len(values) != len(readColumns) {
		return fmt.Errorf("riker: expected %d result columns for %s but got %d", len(readColumns), c.GetTableName(), len(values))
	}
	for i, column := range readColumns {
		value, err := column.field.FromStore(values[i])
		if err != nil {
			return err
		}
		c.entry.SetStoreGeneratedValue(column.field, value)
	}
	return nil
}

func (c *ModificationCommand) parameterCount() int {
	count := 0
	for _, column := range c.columns {
		if column.IsWrite {
			count++
		}
		if column.IsCondition && c.kind != dbchange.Insert {
			count++
		}
	}
	return count
}

// signature identifies commands that can share one statement
func (c *ModificationCommand) signature() string {
	parts := []string{c.kind.String(), c.GetTableMetadata().GetQualifiedTableName()}
	for _, column := range c.columns {
		flags := ""
		if column.IsWrite {
			flags += "w"
		}
		if column.IsRead {
			flags += "r"
		}
		if column.IsCondition {
			flags += "c"
		}
		parts = append(parts, column.GetColumnName()+":"+flags)
	}
	return strings.Join(parts, "|")
}

func (c *ModificationCommand) String() string {
	return fmt.Sprintf("%s %s", c.kind, c.GetTableMetadata().GetQualifiedTableName())
}
