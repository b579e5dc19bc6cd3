package sqlgen

import (
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/skuid/riker/valuegen"
)

const (
	// SQLiteName is the configuration name of the sqlite dialect
	SQLiteName = "sqlite"
	// SQLiteMaxParameters is SQLITE_MAX_VARIABLE_NUMBER for sqlite 3.32 and later
	SQLiteMaxParameters = 32766
	// HiLoTableName holds one row per hilo sequence on stores without native sequences
	HiLoTableName = "riker_hilo"
)

// SQLite renders SQL for sqlite 3.35 or later. Hilo sequences are rows of the
// riker_hilo table.
type SQLite struct {
	generator
}

// NewSQLite function
func NewSQLite() *SQLite {
	return &SQLite{
		generator: generator{
			placeholder: squirrel.Question,
			quote:       quoteSQLite,
		},
	}
}

func quoteSQLite(name string) string {
	return `"` + strings.Replace(name, `"`, `""`, -1) + `"`
}

// Name function
func (s *SQLite) Name() string {
	return SQLiteName
}

// MaxParameters function
func (s *SQLite) MaxParameters() int {
	return SQLiteMaxParameters
}

// NextBlockSQL function
func (s *SQLite) NextBlockSQL(key valuegen.SequenceKey, blockSize int) (string, []interface{}) {
	return "UPDATE " + HiLoTableName + " SET next_value = next_value + ? WHERE name = ? RETURNING next_value - ?",
		[]interface{}{blockSize, key.String(), blockSize}
}

// EnsureSequenceSQL function
func (s *SQLite) EnsureSequenceSQL(key valuegen.SequenceKey, blockSize int) []Statement {
	return []Statement{
		{
			SQL: "CREATE TABLE IF NOT EXISTS " + HiLoTableName + " (name TEXT PRIMARY KEY, next_value INTEGER NOT NULL)",
		},
		{
			SQL:  "INSERT INTO " + HiLoTableName + " (name, next_value) VALUES (?, 1) ON CONFLICT (name) DO NOTHING",
			Args: []interface{}{key.String()},
		},
	}
}
