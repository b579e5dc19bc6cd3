package riker

import (
	"context"
	"database/sql"
	"reflect"
	"time"

	"github.com/skuid/riker/dbchange"
	"github.com/skuid/riker/metadata"
	"github.com/skuid/riker/metrics"
	"github.com/skuid/riker/query"
	"github.com/skuid/riker/reflectutil"
	"github.com/skuid/riker/tracking"
	"github.com/skuid/riker/update"
	"go.uber.org/zap"
)

const savepointName = "riker_savepoint"

// ORM interface describes the behavior API of a riker unit of work
type ORM interface {
	Add(ctx context.Context, entity interface{}) error
	Attach(ctx context.Context, entity interface{}) error
	Update(ctx context.Context, entity interface{}) error
	Remove(ctx context.Context, entity interface{}) error
	Find(ctx context.Context, entity interface{}, keyValues ...interface{}) (interface{}, error)
	Load(ctx context.Context, filter interface{}, includes ...string) ([]interface{}, error)
	SaveChanges(acceptAllChangesOnSuccess bool) (int, error)
	SaveChangesContext(ctx context.Context, acceptAllChangesOnSuccess bool) (int, error)
}

/*
Session is one unit of work. It tracks the entities it loads or is given,
and SaveChanges writes everything that changed in one transaction. A Session
isn't safe for concurrent use.
*/
type Session struct {
	store    *Store
	manager  *tracking.StateManager
	tenantID interface{}
	logger   *zap.Logger
	tx       *sql.Tx
}

// ChangeTracker returns the state manager behind the session
func (s *Session) ChangeTracker() *tracking.StateManager {
	return s.manager
}

// Entry returns the entry of an entity, tracked or not
func (s *Session) Entry(entity interface{}) (*tracking.Entry, error) {
	return s.manager.GetOrCreateEntry(entity)
}

func (s *Session) setState(ctx context.Context, entity interface{}, state dbchange.EntityState) (*tracking.Entry, error) {
	entry, err := s.manager.GetOrCreateEntry(entity)
	if err != nil {
		return nil, err
	}
	if err := entry.SetEntityState(ctx, state); err != nil {
		return nil, err
	}
	return entry, nil
}

// Add starts tracking entity as a new row. Client side key values are generated here.
func (s *Session) Add(ctx context.Context, entity interface{}) error {
	_, err := s.setState(ctx, entity, dbchange.Added)
	return err
}

// Attach starts tracking entity as an existing, unchanged row
func (s *Session) Attach(ctx context.Context, entity interface{}) error {
	_, err := s.setState(ctx, entity, dbchange.Unchanged)
	return err
}

// Update tracks entity as an existing row whose every column is written on save.
// Entities without a key value are added instead.
func (s *Session) Update(ctx context.Context, entity interface{}) error {
	entry, err := s.manager.GetOrCreateEntry(entity)
	if err != nil {
		return err
	}
	if entry.GetEntityState() == dbchange.Detached && !hasKey(entry) {
		return entry.SetEntityState(ctx, dbchange.Added)
	}
	return entry.SetEntityState(ctx, dbchange.Modified)
}

/*
AttachDecoded tracks an entity decoded with Decode. Only the fields present in
the decoded payload are written on save. Entities without a key value are added,
and entities that weren't decoded are treated like Update.
*/
func (s *Session) AttachDecoded(ctx context.Context, entity interface{}) error {
	entry, err := s.manager.GetOrCreateEntry(entity)
	if err != nil {
		return err
	}
	if !hasKey(entry) {
		return entry.SetEntityState(ctx, dbchange.Added)
	}

	value, err := reflectutil.GetStructValue(entity)
	if err != nil {
		return err
	}
	definedFields := metadata.GetMetadataFromStruct(value).DefinedFields
	if definedFields == nil {
		return entry.SetEntityState(ctx, dbchange.Modified)
	}

	if err := entry.SetEntityState(ctx, dbchange.Unchanged); err != nil {
		return err
	}
	table := entry.GetTableMetadata()
	for _, name := range definedFields {
		field := table.GetField(name)
		if field == nil || !field.IsMutable() {
			continue
		}
		if err := entry.SetPropertyModified(field, true); err != nil {
			return err
		}
	}
	return nil
}

func hasKey(entry *tracking.Entry) bool {
	for _, field := range entry.GetTableMetadata().GetPrimaryKeyFields() {
		if !entry.HasExplicitValue(field) {
			return false
		}
	}
	return true
}

// Remove marks a tracked entity for deletion and applies the delete behavior to its tracked dependents
func (s *Session) Remove(ctx context.Context, entity interface{}) error {
	return s.manager.Remove(ctx, entity)
}

// DetectChanges function
func (s *Session) DetectChanges() error {
	return s.manager.DetectChanges()
}

// HasChanges function
func (s *Session) HasChanges() bool {
	return s.manager.HasChanges()
}

// AcceptAllChanges function
func (s *Session) AcceptAllChanges() error {
	return s.manager.AcceptAllChanges()
}

// UseTransaction makes the session save and query inside tx. Saves are wrapped
// in a savepoint and the session never commits or rolls back tx. Pass nil to go
// back to a transaction per save.
func (s *Session) UseTransaction(tx *sql.Tx) {
	s.tx = tx
}

func (s *Session) conn() update.ExecQuerier {
	if s.tx != nil {
		return s.tx
	}
	return s.store.db
}

/*
Find returns the entity of the given type with the given key values. A tracked
instance is returned without querying. Otherwise the row is loaded and tracked
as Unchanged. ModelNotFoundError is returned when no row has the key.
*/
func (s *Session) Find(ctx context.Context, entity interface{}, keyValues ...interface{}) (interface{}, error) {
	table, err := s.store.model.GetTableMetadataForEntity(entity)
	if err != nil {
		return nil, err
	}
	if entry, ok := s.manager.TryGetEntryByKey(table, keyValues...); ok {
		return entry.GetEntity(), nil
	}

	tbl, err := query.ByKey(table, s.tenantID, keyValues...)
	if err != nil {
		return nil, err
	}
	results, err := s.run(ctx, tbl)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ModelNotFoundError
	}
	return results[0], nil
}

/*
Load returns the rows of filter's type matching its non-zero fields and tracks
them as Unchanged. includes names navigation fields whose principals are loaded
with the rows. Rows that are already tracked come back as the tracked instance.
*/
func (s *Session) Load(ctx context.Context, filter interface{}, includes ...string) ([]interface{}, error) {
	table, err := s.store.model.GetTableMetadataForEntity(filter)
	if err != nil {
		return nil, err
	}
	tbl, err := query.Build(table, s.tenantID, filter, includes)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, tbl)
}

func (s *Session) run(ctx context.Context, tbl *query.Table) ([]interface{}, error) {
	sqlString, args, err := tbl.ToSQL(s.store.dialect.Placeholder())
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{zap.String("sql", sqlString)}
	if s.store.options.SensitiveLogging {
		fields = append(fields, zap.Any("args", args))
	}
	s.logger.Debug("running query", fields...)

	rows, err := s.conn().QueryContext(ctx, sqlString, args...)
	if err != nil {
		return nil, NewQueryError(err, sqlString)
	}
	defer rows.Close()

	results, err := query.Hydrate(tbl, rows)
	if err != nil {
		return nil, err
	}

	tracked := make([]interface{}, 0, len(results))
	for _, result := range results {
		entity, err := s.track(result)
		if err != nil {
			return nil, err
		}
		tracked = append(tracked, entity)
	}
	return tracked, nil
}

// track starts tracking a loaded entity and the principals hydrated into its navigation fields
func (s *Session) track(result interface{}) (interface{}, error) {
	entry, err := s.manager.StartTrackingFromQuery(result)
	if err != nil {
		return nil, err
	}
	if entry.GetEntity() != result {
		return entry.GetEntity(), nil
	}

	value := reflect.Indirect(reflect.ValueOf(result))
	for _, foreignKey := range entry.GetTableMetadata().GetForeignKeys() {
		if foreignKey.RelatedFieldName == "" {
			continue
		}
		navigation := value.FieldByIndex(foreignKey.RelatedFieldIndex)
		if navigation.Kind() != reflect.Ptr || navigation.IsNil() {
			continue
		}
		principal, err := s.track(navigation.Interface())
		if err != nil {
			return nil, err
		}
		navigation.Set(reflect.ValueOf(principal))
	}
	return result, nil
}

// SaveChanges saves with a background context
func (s *Session) SaveChanges(acceptAllChangesOnSuccess bool) (int, error) {
	return s.SaveChangesContext(context.Background(), acceptAllChangesOnSuccess)
}

/*
SaveChangesContext writes every tracked change in one transaction and returns
the number of rows the database reported as affected. Store generated values
are copied into the entities once the transaction commits. On failure nothing
is copied and the entries keep their pending changes, so the save can be retried.

With acceptAllChangesOnSuccess false the entries keep their states until
AcceptAllChanges is called.
*/
func (s *Session) SaveChangesContext(ctx context.Context, acceptAllChangesOnSuccess bool) (int, error) {
	start := time.Now()
	rows, err := s.manager.SaveChanges(ctx, acceptAllChangesOnSuccess)
	if err != tracking.ErrConcurrentOperation {
		s.store.metrics.ObserveSave(saveResult(err), time.Since(start))
	}
	return rows, err
}

func saveResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case update.IsConcurrencyError(err):
		return metrics.ResultConcurrency
	}
	return metrics.ResultError
}

// sessionDatabase prepares and executes the batches of a session's save
type sessionDatabase struct {
	session *Session
}

// SaveChanges function
func (d *sessionDatabase) SaveChanges(ctx context.Context, entries []*tracking.Entry) (int, error) {
	store := d.session.store

	updateEntries := make([]update.Entry, 0, len(entries))
	for _, entry := range entries {
		updateEntries = append(updateEntries, entry)
	}

	batches, err := store.preparer.Prepare(updateEntries)
	if err != nil {
		return 0, err
	}
	if len(batches) == 0 {
		return 0, nil
	}

	if d.session.tx != nil {
		return d.executeInSavepoint(ctx, d.session.tx, batches)
	}

	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	rows, err := store.executor.Execute(ctx, tx, batches)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return rows, nil
}

func (d *sessionDatabase) executeInSavepoint(ctx context.Context, tx *sql.Tx, batches []*update.Batch) (int, error) {
	dialect := d.session.store.dialect

	if _, err := tx.ExecContext(ctx, dialect.SavepointSQL(savepointName)); err != nil {
		return 0, err
	}

	rows, err := d.session.store.executor.Execute(ctx, tx, batches)
	if err != nil {
		if _, rollbackErr := tx.ExecContext(context.WithoutCancel(ctx), dialect.RollbackToSavepointSQL(savepointName)); rollbackErr != nil {
			d.session.logger.Error("rolling back to savepoint", zap.Error(rollbackErr))
		}
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, dialect.ReleaseSavepointSQL(savepointName)); err != nil {
		return 0, err
	}
	return rows, nil
}
