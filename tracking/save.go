package tracking

import (
	"context"
	"reflect"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/skuid/riker/dbchange"
	"github.com/skuid/riker/reflectutil"
	"github.com/skuid/riker/tags"
	"go.uber.org/zap"
)

/*
Remove marks a tracked entity Deleted and applies the delete behavior of every
foreign key referencing it to the tracked dependents:

  - Cascade removes the dependent as well, Added dependents are just detached.
  - SetNull clears the foreign key and the navigation pointer.
  - Restrict leaves the dependent for the store to reject.
*/
func (m *StateManager) Remove(ctx context.Context, entity interface{}) error {
	entry, ok := m.entries[entity]
	if !ok || entry.state == dbchange.Detached {
		return ErrNotTracked
	}
	return m.remove(ctx, entry)
}

func (m *StateManager) remove(ctx context.Context, entry *Entry) error {
	dependents := m.dependentsOf(entry)

	if err := entry.SetEntityState(ctx, dbchange.Deleted); err != nil {
		return err
	}

	for _, dependent := range dependents {
		if dependent.entry.state == dbchange.Deleted || dependent.entry.state == dbchange.Detached {
			continue
		}
		switch dependent.foreignKey.OnDelete {
		case tags.DeleteCascade:
			if err := m.remove(ctx, dependent.entry); err != nil {
				return err
			}
		case tags.DeleteSetNull:
			if err := m.nullForeignKey(dependent.entry, dependent.foreignKey); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *StateManager) nullForeignKey(entry *Entry, foreignKey *tags.ForeignKey) error {
	for _, field := range foreignKey.Fields {
		if err := entry.SetCurrentValue(field, nil); err != nil {
			return err
		}
	}
	if foreignKey.RelatedFieldIndex != nil {
		navigation := entry.value.FieldByIndex(foreignKey.RelatedFieldIndex)
		navigation.Set(reflect.Zero(navigation.Type()))
	}
	return nil
}

/*
PrepareToSave checks the entries about to be saved. Added and Modified entities
are validated when validation is enabled, and Modified entities must still have
their original key. Every problem found is returned in one error.
*/
func (m *StateManager) PrepareToSave(entries []*Entry) error {
	var result *multierror.Error

	for _, entry := range entries {
		if entry.state != dbchange.Added && entry.state != dbchange.Modified {
			continue
		}

		if m.validate != nil {
			if err := m.validate.Struct(entry.value.Interface()); err != nil {
				result = appendValidationErrors(result, err)
			}
		}

		if entry.state == dbchange.Modified {
			for _, field := range entry.table.GetPrimaryKeyFields() {
				original, err := entry.GetOriginalValue(field)
				if err == nil && !reflectutil.ValuesEqual(original, entry.GetCurrentValue(field)) {
					result = multierror.Append(result, NewKeyModifiedError(entry.table.GetName(), field.GetName()))
				}
			}
		}
	}

	if result != nil {
		result.ErrorFormat = prepareErrorOutputter
	}
	return result.ErrorOrNil()
}

/*
SaveChanges writes every Added, Modified and Deleted entry through the database
and returns the number of rows the store reported as affected.

Values the store generates are kept aside until the database call returns.
When it fails they are dropped and every entry is left exactly as it was.
When it succeeds they are written into the entities, and with
acceptAllChangesOnSuccess the entries become Unchanged or are detached.
*/
func (m *StateManager) SaveChanges(ctx context.Context, acceptAllChangesOnSuccess bool) (int, error) {
	if !m.busy.TryLock() {
		return 0, ErrConcurrentOperation
	}
	defer m.busy.Unlock()

	if m.database == nil {
		return 0, ErrNoDatabase
	}

	if m.autoDetectChanges {
		if err := m.DetectChanges(); err != nil {
			return 0, err
		}
	}

	entries := m.EntriesForState(dbchange.Added, dbchange.Modified, dbchange.Deleted)
	if len(entries) == 0 {
		return 0, nil
	}

	if err := m.PrepareToSave(entries); err != nil {
		return 0, err
	}

	m.logger.Debug("saving changes", zap.Int("entries", len(entries)))

	affected, err := m.database.SaveChanges(ctx, entries)
	if err != nil {
		for _, entry := range entries {
			entry.DiscardStoreGeneratedValues()
		}
		m.logger.Debug("saving changes failed", zap.Error(err))
		return 0, err
	}

	if acceptAllChangesOnSuccess {
		for _, entry := range entries {
			if err := entry.AcceptChanges(); err != nil {
				return affected, err
			}
		}
	} else {
		for _, entry := range entries {
			if err := entry.flushStoreGeneratedValues(); err != nil {
				return affected, err
			}
		}
	}

	m.logger.Debug("saved changes", zap.Int("entries", len(entries)), zap.Int("rows_affected", affected))
	return affected, nil
}
