package sqlgen

import (
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/skuid/riker/valuegen"
)

const (
	// PostgresName is the configuration name of the postgres dialect
	PostgresName = "postgres"
	// PostgresMaxParameters is the bind parameter limit of the postgres wire protocol
	PostgresMaxParameters = 65535
)

// Postgres renders SQL for postgres. Hilo blocks come from native sequences
// whose increment is the block size.
type Postgres struct {
	generator
}

// NewPostgres function
func NewPostgres() *Postgres {
	return &Postgres{
		generator: generator{
			placeholder: squirrel.Dollar,
			quote:       pq.QuoteIdentifier,
		},
	}
}

// Name function
func (p *Postgres) Name() string {
	return PostgresName
}

// MaxParameters function
func (p *Postgres) MaxParameters() int {
	return PostgresMaxParameters
}

func (p *Postgres) sequenceName(key valuegen.SequenceKey) string {
	if key.Schema == "" {
		return pq.QuoteIdentifier(key.Name)
	}
	return pq.QuoteIdentifier(key.Schema) + "." + pq.QuoteIdentifier(key.Name)
}

// NextBlockSQL function
func (p *Postgres) NextBlockSQL(key valuegen.SequenceKey, blockSize int) (string, []interface{}) {
	return "SELECT nextval($1::regclass)", []interface{}{p.sequenceName(key)}
}

// EnsureSequenceSQL function
func (p *Postgres) EnsureSequenceSQL(key valuegen.SequenceKey, blockSize int) []Statement {
	return []Statement{
		{
			SQL: fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s START WITH 1 INCREMENT BY %d", p.sequenceName(key), blockSize),
		},
	}
}
