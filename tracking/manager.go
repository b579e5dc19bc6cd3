/*
Package tracking keeps track of entity instances and their state, works out
what changed, and hands dirty entries to a Database to be saved.

	manager := tracking.NewStateManager(tracking.Config{
		Model:    model,
		Selector: selector,
		Database: database,
	})
	entry, err := manager.GetOrCreateEntry(&order)
	err = entry.SetEntityState(ctx, dbchange.Added)
	rows, err := manager.SaveChanges(ctx, true)
*/
package tracking

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/skuid/riker/dbchange"
	"github.com/skuid/riker/reflectutil"
	"github.com/skuid/riker/tags"
	"github.com/skuid/riker/valuegen"
	"go.uber.org/zap"
	validator "gopkg.in/go-playground/validator.v9"
)

// Database saves the given dirty entries in one transaction and returns the rows affected
type Database interface {
	SaveChanges(ctx context.Context, entries []*Entry) (int, error)
}

// Config configures a StateManager
type Config struct {
	Model    *tags.Model
	Selector *valuegen.Selector
	Database Database
	Logger   *zap.Logger
	// TenantID is assigned to the multitenancy key of added entities
	TenantID interface{}
	// AutoDetectChanges runs DetectChanges before every save
	AutoDetectChanges bool
	// ValidateOnSave runs struct validation on added and modified entities
	ValidateOnSave bool
	// SensitiveLogging includes key values in logs
	SensitiveLogging bool
}

// TrackedHandler is called when an entity starts being tracked
type TrackedHandler func(entry *Entry)

// StateChangedHandler is called when a tracked entry changes state
type StateChangedHandler func(entry *Entry, from, to dbchange.EntityState)

/*
StateManager tracks the entries of one unit of work. It isn't safe for
concurrent use; a save started while another is running fails with
ErrConcurrentOperation.
*/
type StateManager struct {
	model             *tags.Model
	selector          *valuegen.Selector
	database          Database
	logger            *zap.Logger
	tenantID          interface{}
	autoDetectChanges bool
	sensitiveLogging  bool
	validate          *validator.Validate

	entries    map[interface{}]*Entry
	order      []*Entry
	identities map[*tags.TableMetadata]map[string]*Entry

	onTracked      []TrackedHandler
	onStateChanged []StateChangedHandler

	busy sync.Mutex
}

// NewStateManager function
func NewStateManager(config Config) *StateManager {
	manager := &StateManager{
		model:             config.Model,
		selector:          config.Selector,
		database:          config.Database,
		logger:            config.Logger,
		tenantID:          config.TenantID,
		autoDetectChanges: config.AutoDetectChanges,
		sensitiveLogging:  config.SensitiveLogging,
		entries:           map[interface{}]*Entry{},
		identities:        map[*tags.TableMetadata]map[string]*Entry{},
	}
	if manager.model == nil {
		manager.model = tags.NewModel()
	}
	if manager.logger == nil {
		manager.logger = zap.NewNop()
	}
	if config.ValidateOnSave {
		manager.validate = validator.New()
	}
	return manager
}

// GetModel function
func (m *StateManager) GetModel() *tags.Model {
	return m.model
}

// OnTracked registers a handler for entities that start being tracked
func (m *StateManager) OnTracked(handler TrackedHandler) {
	m.onTracked = append(m.onTracked, handler)
}

// OnStateChanged registers a handler for state changes of tracked entries
func (m *StateManager) OnStateChanged(handler StateChangedHandler) {
	m.onStateChanged = append(m.onStateChanged, handler)
}

// GetOrCreateEntry returns the entry of a tracked entity, or a new Detached entry for it.
// entity must be a non-nil pointer to a struct.
func (m *StateManager) GetOrCreateEntry(entity interface{}) (*Entry, error) {
	if entry, ok := m.entries[entity]; ok {
		return entry, nil
	}
	value, err := reflectutil.GetStructValue(entity)
	if err != nil {
		return nil, err
	}
	table, err := m.model.GetTableMetadata(value.Type())
	if err != nil {
		return nil, err
	}
	entry := newEntry(m, entity, value, table)
	m.entries[entity] = entry
	return entry, nil
}

// TryGetEntry returns the entry of an entity if one exists
func (m *StateManager) TryGetEntry(entity interface{}) (*Entry, bool) {
	entry, ok := m.entries[entity]
	return entry, ok
}

// TryGetEntryByKey finds the tracked entry of a row by its primary key values
func (m *StateManager) TryGetEntryByKey(table *tags.TableMetadata, keyValues ...interface{}) (*Entry, bool) {
	entry, ok := m.identities[table][reflectutil.KeyString(keyValues...)]
	return entry, ok
}

/*
StartTrackingFromQuery tracks a freshly loaded entity as Unchanged. When the row
is already tracked the existing entry is returned and entity is ignored. A
Detached entry handed out for entity earlier becomes the tracked entry.
*/
func (m *StateManager) StartTrackingFromQuery(entity interface{}) (*Entry, error) {
	entry, known := m.entries[entity]
	if known && entry.state != dbchange.Detached {
		return entry, nil
	}
	if !known {
		value, err := reflectutil.GetStructValue(entity)
		if err != nil {
			return nil, err
		}
		table, err := m.model.GetTableMetadata(value.Type())
		if err != nil {
			return nil, err
		}
		entry = newEntry(m, entity, value, table)
	}

	table := entry.GetTableMetadata()
	if existing, ok := m.TryGetEntryByKey(table, entry.GetCurrentValues(table.GetPrimaryKeyFields())...); ok {
		return existing, nil
	}

	m.entries[entity] = entry
	entry.snapshot()
	if err := m.track(entry, dbchange.Unchanged); err != nil {
		if !known {
			delete(m.entries, entity)
		}
		return nil, err
	}
	return entry, nil
}

// Entries returns every tracked entry, in the order they started being tracked
func (m *StateManager) Entries() []*Entry {
	entries := make([]*Entry, 0, len(m.order))
	for _, entry := range m.order {
		if entry.state != dbchange.Detached {
			entries = append(entries, entry)
		}
	}
	return entries
}

// EntriesForState returns the tracked entries in any of the given states
func (m *StateManager) EntriesForState(states ...dbchange.EntityState) []*Entry {
	entries := []*Entry{}
	for _, entry := range m.order {
		for _, state := range states {
			if entry.state == state {
				entries = append(entries, entry)
				break
			}
		}
	}
	return entries
}

// ChangedCount returns the number of Added, Modified and Deleted entries
func (m *StateManager) ChangedCount() int {
	if m.autoDetectChanges {
		if err := m.DetectChanges(); err != nil {
			m.logger.Warn("detecting changes failed", zap.Error(err))
		}
	}
	return len(m.EntriesForState(dbchange.Added, dbchange.Modified, dbchange.Deleted))
}

// HasChanges function
func (m *StateManager) HasChanges() bool {
	return m.ChangedCount() > 0
}

/*
DetectChanges compares tracked entities with their snapshots. Unchanged
entries with modified properties become Modified. Foreign keys are copied from
tracked principals that navigation pointers point at.
*/
func (m *StateManager) DetectChanges() error {
	for _, entry := range m.Entries() {
		if entry.state == dbchange.Deleted {
			continue
		}
		if err := m.fixupNavigations(entry); err != nil {
			return err
		}
		if entry.state == dbchange.Unchanged && len(entry.GetModifiedFields()) > 0 {
			m.changeState(entry, dbchange.Modified)
		}
	}
	return nil
}

func navigationTarget(entry *Entry, foreignKey *tags.ForeignKey) interface{} {
	if foreignKey.RelatedFieldIndex == nil {
		return nil
	}
	navigation := entry.value.FieldByIndex(foreignKey.RelatedFieldIndex)
	if navigation.Kind() != reflect.Ptr || navigation.IsNil() {
		return nil
	}
	return navigation.Interface()
}

func (m *StateManager) fixupNavigations(entry *Entry) error {
	for _, foreignKey := range entry.table.GetForeignKeys() {
		target := navigationTarget(entry, foreignKey)
		if target == nil {
			continue
		}
		principal, ok := m.entries[target]
		if !ok || principal.state == dbchange.Detached {
			continue
		}
		values := principal.GetCurrentValues(foreignKey.PrincipalKey())
		for i, field := range foreignKey.Fields {
			if reflectutil.ValuesEqual(entry.GetCurrentValue(field), values[i]) {
				continue
			}
			if err := entry.SetCurrentValue(field, values[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// AcceptAllChanges calls AcceptChanges on every tracked entry
func (m *StateManager) AcceptAllChanges() error {
	for _, entry := range m.Entries() {
		if err := entry.AcceptChanges(); err != nil {
			return err
		}
	}
	return nil
}

// Clear stops tracking every entity
func (m *StateManager) Clear() {
	for _, entry := range m.Entries() {
		m.untrack(entry)
	}
	m.entries = map[interface{}]*Entry{}
	m.order = nil
	m.identities = map[*tags.TableMetadata]map[string]*Entry{}
}

func (m *StateManager) identityFor(entry *Entry) (string, bool) {
	keyFields := entry.table.GetPrimaryKeyFields()
	for _, field := range keyFields {
		if entry.HasTemporaryValue(field) {
			return "", false
		}
	}
	return reflectutil.KeyString(entry.GetCurrentValues(keyFields)...), true
}

// rekey moves the entry to its current key in the identity map
func (m *StateManager) rekey(entry *Entry) error {
	key, ok := m.identityFor(entry)
	if entry.hasIdentity && ok && key == entry.identityKey {
		return nil
	}
	if ok {
		if other, exists := m.identities[entry.table][key]; exists && other != entry {
			return NewIdentityConflictError(entry.table.GetName(), key)
		}
	}
	m.unregister(entry)
	if ok {
		if m.identities[entry.table] == nil {
			m.identities[entry.table] = map[string]*Entry{}
		}
		m.identities[entry.table][key] = entry
		entry.identityKey = key
		entry.hasIdentity = true
	}
	return nil
}

func (m *StateManager) unregister(entry *Entry) {
	if !entry.hasIdentity {
		return
	}
	if m.identities[entry.table][entry.identityKey] == entry {
		delete(m.identities[entry.table], entry.identityKey)
	}
	entry.identityKey = ""
	entry.hasIdentity = false
}

// track moves an entry into a tracked state. Deleted entries give up their key so it can be reused.
func (m *StateManager) track(entry *Entry, state dbchange.EntityState) error {
	if state == dbchange.Deleted {
		m.unregister(entry)
	} else if err := m.rekey(entry); err != nil {
		return err
	}

	m.entries[entry.entity] = entry
	if entry.state == dbchange.Detached {
		m.order = append(m.order, entry)
		m.logger.Debug("tracking entity", entry.keyFields()...)
		for _, handler := range m.onTracked {
			handler(entry)
		}
	}
	m.changeState(entry, state)
	return nil
}

func (m *StateManager) untrack(entry *Entry) {
	m.unregister(entry)
	delete(m.entries, entry.entity)
	for i, tracked := range m.order {
		if tracked == entry {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	entry.DiscardStoreGeneratedValues()
	m.changeState(entry, dbchange.Detached)
}

func (m *StateManager) changeState(entry *Entry, state dbchange.EntityState) {
	from := entry.state
	if from == state {
		return
	}
	entry.state = state
	if m.logger.Core().Enabled(zap.DebugLevel) {
		m.logger.Debug("entity state changed", append(entry.keyFields(),
			zap.String("from", from.String()),
			zap.String("to", state.String()),
		)...)
	}
	for _, handler := range m.onStateChanged {
		handler(entry, from, state)
	}
}

// generateValues fills unset generated properties and the tenant key of an entry being added
func (m *StateManager) generateValues(ctx context.Context, entry *Entry) error {
	for _, field := range entry.table.GetFields() {
		if field.IsMultitenancyKey() && m.tenantID != nil && !entry.HasExplicitValue(field) {
			tenantID, err := tags.ConvertValue(m.tenantID, field.GetFieldType())
			if err != nil {
				return fmt.Errorf("riker: assigning tenant to %s.%s: %w", entry.table.GetName(), field.GetName(), err)
			}
			entry.assign(field, tenantID)
			continue
		}

		if m.selector == nil || entry.HasExplicitValue(field) || entry.HasTemporaryValue(field) {
			continue
		}
		generator, err := m.selector.Select(entry.table, field)
		if err != nil {
			return err
		}
		if generator == nil {
			continue
		}
		value, err := generator.Next(ctx)
		if err != nil {
			return err
		}
		entry.assign(field, value)
		entry.temporary[field.GetIndex()] = generator.GeneratesTemporaryValues()
	}
	return nil
}

func keysMatch(a, b []interface{}) bool {
	for i := range a {
		if reflectutil.IsNil(a[i]) || !reflectutil.ValuesEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// propagateKey passes a store generated key on to the foreign keys of tracked dependents
func (m *StateManager) propagateKey(principal *Entry, field *tags.FieldMetadata, previous, value interface{}) {
	for _, foreignKey := range principal.table.GetReferencingForeignKeys() {
		position := -1
		for i, keyField := range foreignKey.PrincipalKey() {
			if keyField == field {
				position = i
			}
		}
		if position < 0 {
			continue
		}

		principalKey := principal.GetCurrentValues(foreignKey.PrincipalKey())
		principalKey[position] = previous

		for _, dependent := range m.order {
			if dependent.table != foreignKey.DependentMetadata {
				continue
			}
			if dependent.state != dbchange.Added && dependent.state != dbchange.Modified {
				continue
			}
			if navigationTarget(dependent, foreignKey) != principal.entity &&
				!keysMatch(dependent.GetCurrentValues(foreignKey.Fields), principalKey) {
				continue
			}
			dependentField := foreignKey.Fields[position]
			converted, err := tags.ConvertValue(value, dependentField.GetFieldType())
			if err != nil {
				m.logger.Warn("unable to propagate generated key",
					zap.String("foreign_key", foreignKey.String()),
					zap.Error(err),
				)
				continue
			}
			dependent.SetStoreGeneratedValue(dependentField, converted)
		}
	}
}

type dependentEntry struct {
	entry      *Entry
	foreignKey *tags.ForeignKey
}

// dependentsOf returns the tracked entries referencing principal
func (m *StateManager) dependentsOf(principal *Entry) []dependentEntry {
	dependents := []dependentEntry{}
	for _, foreignKey := range principal.table.GetReferencingForeignKeys() {
		principalKey := principal.GetCurrentValues(foreignKey.PrincipalKey())
		for _, dependent := range m.order {
			if dependent.table != foreignKey.DependentMetadata || dependent == principal {
				continue
			}
			if dependent.state == dbchange.Deleted || dependent.state == dbchange.Detached {
				continue
			}
			if navigationTarget(dependent, foreignKey) == principal.entity ||
				keysMatch(dependent.GetCurrentValues(foreignKey.Fields), principalKey) {
				dependents = append(dependents, dependentEntry{entry: dependent, foreignKey: foreignKey})
			}
		}
	}
	return dependents
}
