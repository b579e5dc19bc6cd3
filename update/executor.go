package update

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/skuid/riker/metrics"
	"github.com/skuid/riker/reflectutil"
	"go.uber.org/zap"
)

// ExecQuerier is satisfied by *sql.DB, *sql.Tx and *sql.Conn
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Statement is a rendered batch. When ReturnsRows is set the statement yields one row
// per command holding the command's read columns. When KeyColumns is set each row
// starts with that many key columns identifying its command, otherwise the
// statement has a single command.
type Statement struct {
	SQL         string
	Args        []interface{}
	ReturnsRows bool
	KeyColumns  int
}

// SQLGenerator renders batches for one SQL dialect
type SQLGenerator interface {
	GenerateBatch(batch *Batch) (Statement, error)
}

// ExecutorConfig configures an Executor
type ExecutorConfig struct {
	Generator SQLGenerator
	Logger    *zap.Logger
	// SensitiveLogging includes statement arguments in debug logs
	SensitiveLogging bool
	Metrics          *metrics.Metrics
}

// Executor runs batches against a connection and copies returned values back into entries
type Executor struct {
	generator        SQLGenerator
	logger           *zap.Logger
	sensitiveLogging bool
	metrics          *metrics.Metrics
}

// NewExecutor function
func NewExecutor(config ExecutorConfig) *Executor {
	executor := &Executor{
		generator:        config.Generator,
		logger:           config.Logger,
		sensitiveLogging: config.SensitiveLogging,
		metrics:          config.Metrics,
	}
	if executor.logger == nil {
		executor.logger = zap.NewNop()
	}
	return executor
}

/*
Execute runs the batches in order on conn and returns the number of rows the
store reported as affected. conn is expected to be a transaction; Execute never
commits or rolls back.

Every command must affect exactly one row. Commands that affect no row fail
with a ConcurrencyError naming their entries, commands that affect more than
one fail with a TooManyRowsAffectedError. Execution stops at the first failing
batch.
*/
func (e *Executor) Execute(ctx context.Context, conn ExecQuerier, batches []*Batch) (int, error) {
	total := 0
	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		statement, err := e.generator.GenerateBatch(batch)
		if err != nil {
			return total, err
		}

		fields := []zap.Field{
			zap.String("type", batch.GetType().String()),
			zap.String("table", batch.GetTableMetadata().GetQualifiedTableName()),
			zap.Int("commands", len(batch.commands)),
			zap.String("sql", statement.SQL),
		}
		if e.sensitiveLogging {
			fields = append(fields, zap.Any("args", statement.Args))
		}
		e.logger.Debug("executing batch", fields...)

		var affected int64
		if statement.ReturnsRows {
			affected, err = e.executeReader(ctx, conn, batch, statement)
		} else {
			affected, err = e.executeNonQuery(ctx, conn, batch, statement)
		}
		if err != nil {
			return total, err
		}

		e.metrics.ObserveBatch(batch.GetType().String(), len(batch.commands), affected)
		total += int(affected)
	}
	return total, nil
}

func (e *Executor) executeNonQuery(ctx context.Context, conn ExecQuerier, batch *Batch, statement Statement) (int64, error) {
	result, err := conn.ExecContext(ctx, statement.SQL, statement.Args...)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := checkAffected(batch, affected); err != nil {
		return 0, err
	}
	return affected, nil
}

func (e *Executor) executeReader(ctx context.Context, conn ExecQuerier, batch *Batch, statement Statement) (int64, error) {
	rows, err := conn.QueryContext(ctx, statement.SQL, statement.Args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var commandsByKey map[string]*ModificationCommand
	if statement.KeyColumns > 0 {
		commandsByKey = make(map[string]*ModificationCommand, len(batch.commands))
		for _, command := range batch.commands {
			commandsByKey[command.keyString()] = command
		}
	}

	var affected int64
	counts := make(map[*ModificationCommand]int64, len(batch.commands))
	for rows.Next() {
		affected++
		width := statement.KeyColumns
		if len(batch.commands) > 0 {
			width += len(batch.commands[0].GetReadColumns())
		}
		values := make([]interface{}, width)
		pointers := make([]interface{}, width)
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return 0, err
		}

		var command *ModificationCommand
		if statement.KeyColumns > 0 {
			key, err := returnedKey(batch.commands[0], values[:statement.KeyColumns])
			if err != nil {
				return 0, err
			}
			command = commandsByKey[key]
		} else if int(affected) <= len(batch.commands) {
			command = batch.commands[affected-1]
		}
		if command == nil {
			continue
		}

		counts[command]++
		if counts[command] > 1 {
			continue
		}
		if err := command.PropagateResults(values[statement.KeyColumns:]); err != nil {
			return 0, fmt.Errorf("riker: propagating results for %s: %w", command, err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if err := checkCommands(batch, counts, affected); err != nil {
		return 0, err
	}
	return affected, nil
}

// returnedKey formats the key columns of a returned row like the command keys
func returnedKey(command *ModificationCommand, values []interface{}) (string, error) {
	keyColumns := command.GetKeyColumns()
	converted := make([]interface{}, len(values))
	for i, column := range keyColumns {
		value, err := column.field.FromStore(values[i])
		if err != nil {
			return "", err
		}
		converted[i] = value
	}
	return reflectutil.KeyString(converted...), nil
}

// checkCommands classifies each command by the number of returned rows matched to it
func checkCommands(batch *Batch, counts map[*ModificationCommand]int64, affected int64) error {
	expected := int64(len(batch.commands))
	missing := []Entry{}
	extra := []Entry{}
	for _, command := range batch.commands {
		switch {
		case counts[command] == 0:
			missing = append(missing, command.entry)
		case counts[command] > 1:
			extra = append(extra, command.entry)
		}
	}
	if len(missing) > 0 {
		return NewConcurrencyError(missing, expected, affected)
	}
	if len(extra) > 0 || affected > expected {
		if len(extra) == 0 {
			extra = batch.GetEntries()
		}
		return NewTooManyRowsAffectedError(extra, expected, affected)
	}
	return nil
}

func checkAffected(batch *Batch, affected int64) error {
	expected := int64(len(batch.commands))
	switch {
	case affected < expected:
		return NewConcurrencyError(batch.GetEntries(), expected, affected)
	case affected > expected:
		return NewTooManyRowsAffectedError(batch.GetEntries(), expected, affected)
	}
	return nil
}
