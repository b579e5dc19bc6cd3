/*
Package sqlgen renders update batches, hilo block reservations and savepoints
for the supported SQL dialects.

Inserts are rendered as one multi-row INSERT, with a RETURNING clause when the
store supplies values for the new rows. A multi-row RETURNING leads with the key
columns so each returned row can be matched to its command. Updates and deletes
are rendered one row at a time. Column names are always quoted.
*/
package sqlgen

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/skuid/riker/dbchange"
	"github.com/skuid/riker/update"
	"github.com/skuid/riker/valuegen"
)

// Dialect is everything the store needs to know about a SQL flavor
type Dialect interface {
	update.SQLGenerator
	// Name is the dialect name used in configuration
	Name() string
	// MaxParameters is the largest number of bind parameters one statement may use
	MaxParameters() int
	// Placeholder is the bind parameter format of the dialect
	Placeholder() squirrel.PlaceholderFormat
	// NextBlockSQL reserves blockSize values from a sequence and selects the first one
	NextBlockSQL(key valuegen.SequenceKey, blockSize int) (string, []interface{})
	// EnsureSequenceSQL returns the statements creating a sequence if it doesn't exist
	EnsureSequenceSQL(key valuegen.SequenceKey, blockSize int) []Statement
	SavepointSQL(name string) string
	ReleaseSavepointSQL(name string) string
	RollbackToSavepointSQL(name string) string
}

// Statement is a SQL string and its arguments
type Statement struct {
	SQL  string
	Args []interface{}
}

// ForName returns the dialect registered under name
func ForName(name string) (Dialect, error) {
	switch name {
	case PostgresName, "":
		return NewPostgres(), nil
	case SQLiteName:
		return NewSQLite(), nil
	}
	return nil, fmt.Errorf("riker: unsupported dialect %q", name)
}

type generator struct {
	placeholder squirrel.PlaceholderFormat
	quote       func(string) string
}

func (g *generator) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(g.placeholder)
}

// Placeholder function
func (g *generator) Placeholder() squirrel.PlaceholderFormat {
	return g.placeholder
}

// GenerateBatch function
func (g *generator) GenerateBatch(batch *update.Batch) (update.Statement, error) {
	commands := batch.GetCommands()
	if len(commands) == 0 {
		return update.Statement{}, fmt.Errorf("riker: can't render an empty batch")
	}
	switch batch.GetType() {
	case dbchange.Insert:
		return g.insert(batch)
	case dbchange.Update:
		return g.update(batch)
	case dbchange.Delete:
		return g.delete(batch)
	}
	return update.Statement{}, fmt.Errorf("riker: can't render %s batch", batch.GetType())
}

func (g *generator) insert(batch *update.Batch) (update.Statement, error) {
	commands := batch.GetCommands()
	first := commands[0]
	tableName := batch.GetTableMetadata().GetQualifiedTableName()
	returnColumns := first.GetReadColumns()
	keyColumns := 0
	if batch.RequiresKeyMatching() {
		keyColumns = len(first.GetKeyColumns())
		returnColumns = append(first.GetKeyColumns(), returnColumns...)
	}
	returning := g.returning(returnColumns)

	writeColumns := first.GetWriteColumns()
	if len(writeColumns) == 0 {
		if len(commands) > 1 {
			return update.Statement{}, fmt.Errorf("riker: default values inserts into %s can't be batched", tableName)
		}
		sql := fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", tableName)
		if returning != "" {
			sql += " " + returning
		}
		return update.Statement{SQL: sql, ReturnsRows: returning != ""}, nil
	}

	columnNames := make([]string, 0, len(writeColumns))
	for _, column := range writeColumns {
		columnNames = append(columnNames, g.quote(column.GetColumnName()))
	}

	insertQuery := g.builder().Insert(tableName).Columns(columnNames...)
	for _, command := range commands {
		values := []interface{}{}
		for _, column := range command.GetWriteColumns() {
			value, err := column.GetValue()
			if err != nil {
				return update.Statement{}, err
			}
			value, err = driverValue(value)
			if err != nil {
				return update.Statement{}, err
			}
			values = append(values, value)
		}
		insertQuery = insertQuery.Values(values...)
	}
	if returning != "" {
		insertQuery = insertQuery.Suffix(returning)
	}

	sql, args, err := insertQuery.ToSql()
	if err != nil {
		return update.Statement{}, err
	}
	return update.Statement{SQL: sql, Args: args, ReturnsRows: returning != "", KeyColumns: keyColumns}, nil
}

func (g *generator) update(batch *update.Batch) (update.Statement, error) {
	commands := batch.GetCommands()
	if len(commands) > 1 {
		return update.Statement{}, fmt.Errorf("riker: updates are executed one row at a time, got %d", len(commands))
	}
	command := commands[0]

	updateQuery := g.builder().Update(batch.GetTableMetadata().GetQualifiedTableName())
	for _, column := range command.GetWriteColumns() {
		value, err := column.GetValue()
		if err != nil {
			return update.Statement{}, err
		}
		value, err = driverValue(value)
		if err != nil {
			return update.Statement{}, err
		}
		updateQuery = updateQuery.Set(g.quote(column.GetColumnName()), value)
	}

	for _, column := range command.GetConditionColumns() {
		condition, err := g.equals(column)
		if err != nil {
			return update.Statement{}, err
		}
		updateQuery = updateQuery.Where(condition)
	}

	returning := g.returning(command.GetReadColumns())
	if returning != "" {
		updateQuery = updateQuery.Suffix(returning)
	}

	sql, args, err := updateQuery.ToSql()
	if err != nil {
		return update.Statement{}, err
	}
	return update.Statement{SQL: sql, Args: args, ReturnsRows: returning != ""}, nil
}

func (g *generator) delete(batch *update.Batch) (update.Statement, error) {
	commands := batch.GetCommands()
	if len(commands) > 1 {
		return update.Statement{}, fmt.Errorf("riker: deletes are executed one row at a time, got %d", len(commands))
	}

	deleteQuery := g.builder().Delete(batch.GetTableMetadata().GetQualifiedTableName())
	for _, column := range commands[0].GetConditionColumns() {
		condition, err := g.equals(column)
		if err != nil {
			return update.Statement{}, err
		}
		deleteQuery = deleteQuery.Where(condition)
	}

	sql, args, err := deleteQuery.ToSql()
	if err != nil {
		return update.Statement{}, err
	}
	return update.Statement{SQL: sql, Args: args}, nil
}

func (g *generator) returning(columns []*update.ColumnModification) string {
	if len(columns) == 0 {
		return ""
	}
	names := make([]string, 0, len(columns))
	for _, column := range columns {
		names = append(names, g.quote(column.GetColumnName()))
	}
	return "RETURNING " + strings.Join(names, ", ")
}

// SavepointSQL function
func (g *generator) SavepointSQL(name string) string {
	return "SAVEPOINT " + g.quote(name)
}

// ReleaseSavepointSQL function
func (g *generator) ReleaseSavepointSQL(name string) string {
	return "RELEASE SAVEPOINT " + g.quote(name)
}

// RollbackToSavepointSQL function
func (g *generator) RollbackToSavepointSQL(name string) string {
	return "ROLLBACK TO SAVEPOINT " + g.quote(name)
}

// equals matches the column's condition value, nil values match with IS NULL
func (g *generator) equals(column *update.ColumnModification) (squirrel.Sqlizer, error) {
	value, err := column.GetConditionValue()
	if err != nil {
		return nil, err
	}
	value, err = driverValue(value)
	if err != nil {
		return nil, err
	}
	name := g.quote(column.GetColumnName())
	if value == nil {
		return squirrel.Eq{name: nil}, nil
	}
	return squirrel.Expr(name+" = ?", value), nil
}

// driverValue resolves driver.Valuer implementations so array backed types like
// uuids aren't mistaken for lists
func driverValue(value interface{}) (interface{}, error) {
	if valuer, ok := value.(driver.Valuer); ok {
		return valuer.Value()
	}
	return value, nil
}
