package tracking_test

import (
	"context"
	"testing"

	"github.com/skuid/riker/dbchange"
	"github.com/skuid/riker/testdata"
	"github.com/skuid/riker/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetCurrentValue(t *testing.T) {
	manager := newManager(t, nil)
	employee := &testdata.Employee{ID: 1, Name: "Jean-Luc"}
	entry, err := manager.StartTrackingFromQuery(employee)
	require.NoError(t, err)
	table := entry.GetTableMetadata()

	require.NoError(t, entry.SetCurrentValue(table.GetField("Name"), "Jean-Luc"))
	assert.Equal(t, dbchange.Unchanged, entry.GetEntityState(), "writing the same value changes nothing")

	require.NoError(t, entry.SetCurrentValue(table.GetField("Name"), "Picard"))
	assert.Equal(t, dbchange.Modified, entry.GetEntityState())
	assert.Equal(t, "Picard", employee.Name)

	original, err := entry.GetOriginalValue(table.GetField("Name"))
	require.NoError(t, err)
	assert.Equal(t, "Jean-Luc", original)

	err = entry.SetCurrentValue(table.GetField("ID"), 2)
	assert.True(t, tracking.IsKeyModified(err))
	assert.Equal(t, int64(1), employee.ID)

	err = entry.SetCurrentValue(table.GetField("Name"), 12)
	assert.Error(t, err)
}

func TestGetOriginalValueWithoutOriginals(t *testing.T) {
	manager := newManager(t, nil)
	entry, err := manager.GetOrCreateEntry(&testdata.Employee{ID: 1})
	require.NoError(t, err)
	require.NoError(t, entry.SetEntityState(context.Background(), dbchange.Added))

	assert.False(t, entry.HasOriginalValues())
	_, err = entry.GetOriginalValue(entry.GetTableMetadata().GetField("Name"))
	assert.Equal(t, tracking.ErrInvalidOperation, err)
}

func TestIsPropertyModifiedIdempotent(t *testing.T) {
	manager := newManager(t, nil)
	order := &testdata.Order{ID: 5, OrganizationID: "org", CustomerID: 1, Notes: map[string]string{"gift": "no"}}
	entry, err := manager.StartTrackingFromQuery(order)
	require.NoError(t, err)
	notes := entry.GetTableMetadata().GetField("Notes")

	assert.False(t, entry.IsPropertyModified(notes))
	assert.False(t, entry.IsPropertyModified(notes))

	order.Notes["gift"] = "yes"
	assert.True(t, entry.IsPropertyModified(notes), "edits inside a map are changes")
	assert.True(t, entry.IsPropertyModified(notes))
	assert.Equal(t, dbchange.Unchanged, entry.GetEntityState(), "state only changes on DetectChanges")

	require.NoError(t, manager.DetectChanges())
	assert.Equal(t, dbchange.Modified, entry.GetEntityState())
}

func TestAcceptChangesTwice(t *testing.T) {
	manager := newManager(t, nil)
	employee := &testdata.Employee{ID: 1, Name: "Will"}
	entry, err := manager.StartTrackingFromQuery(employee)
	require.NoError(t, err)
	name := entry.GetTableMetadata().GetField("Name")

	require.NoError(t, entry.SetCurrentValue(name, "Riker"))
	require.NoError(t, entry.AcceptChanges())
	assert.Equal(t, dbchange.Unchanged, entry.GetEntityState())
	original, err := entry.GetOriginalValue(name)
	require.NoError(t, err)
	assert.Equal(t, "Riker", original)

	require.NoError(t, entry.AcceptChanges())
	assert.Equal(t, dbchange.Unchanged, entry.GetEntityState())
	assert.Empty(t, entry.GetModifiedFields())
	original, err = entry.GetOriginalValue(name)
	require.NoError(t, err)
	assert.Equal(t, "Riker", original)
}

func TestSetEntityState(t *testing.T) {
	testCases := []struct {
		description string
		run         func(*testing.T, *tracking.StateManager)
	}{
		{
			"Should never accept Unknown",
			func(t *testing.T, manager *tracking.StateManager) {
				entry, err := manager.GetOrCreateEntry(&testdata.Employee{ID: 1})
				require.NoError(t, err)
				err = entry.SetEntityState(context.Background(), dbchange.Unknown)
				assert.True(t, dbchange.IsInvalidStateTransition(err))
				assert.Equal(t, dbchange.Detached, entry.GetEntityState())
			},
		},
		{
			"Should generate temporary keys on add",
			func(t *testing.T, manager *tracking.StateManager) {
				customer := &testdata.Customer{Name: "Acme"}
				entry, err := manager.GetOrCreateEntry(customer)
				require.NoError(t, err)
				require.NoError(t, entry.SetEntityState(context.Background(), dbchange.Added))

				assert.Equal(t, int64(-1), customer.ID)
				assert.Equal(t, "org", customer.OrganizationID)
				assert.True(t, entry.HasTemporaryValue(entry.GetTableMetadata().GetField("ID")))
				assert.False(t, entry.HasExplicitValue(entry.GetTableMetadata().GetField("ID")))
			},
		},
		{
			"Should keep explicit values on add",
			func(t *testing.T, manager *tracking.StateManager) {
				label := &testdata.Label{ID: 40, Name: "a"}
				entry, err := manager.GetOrCreateEntry(label)
				require.NoError(t, err)
				require.NoError(t, entry.SetEntityState(context.Background(), dbchange.Added))
				assert.Equal(t, int64(40), label.ID)
			},
		},
		{
			"Should refuse to leave Added while a key is temporary",
			func(t *testing.T, manager *tracking.StateManager) {
				entry, err := manager.GetOrCreateEntry(&testdata.Customer{Name: "Acme"})
				require.NoError(t, err)
				require.NoError(t, entry.SetEntityState(context.Background(), dbchange.Added))

				err = entry.SetEntityState(context.Background(), dbchange.Unchanged)
				assert.True(t, dbchange.IsInvalidStateTransition(err))
				err = entry.SetEntityState(context.Background(), dbchange.Modified)
				assert.True(t, dbchange.IsInvalidStateTransition(err))
				assert.Equal(t, dbchange.Added, entry.GetEntityState())
			},
		},
		{
			"Should mark every mutable property modified",
			func(t *testing.T, manager *tracking.StateManager) {
				entry, err := manager.GetOrCreateEntry(&testdata.Employee{ID: 1, Name: "Worf"})
				require.NoError(t, err)
				require.NoError(t, entry.SetEntityState(context.Background(), dbchange.Modified))

				names := []string{}
				for _, field := range entry.GetModifiedFields() {
					names = append(names, field.GetName())
				}
				assert.Equal(t, []string{"ManagerID", "Name"}, names)
			},
		},
		{
			"Should revert values when a modified entry becomes Unchanged",
			func(t *testing.T, manager *tracking.StateManager) {
				employee := &testdata.Employee{ID: 1, Name: "Worf"}
				entry, err := manager.StartTrackingFromQuery(employee)
				require.NoError(t, err)
				require.NoError(t, entry.SetCurrentValue(entry.GetTableMetadata().GetField("Name"), "Mogh"))

				require.NoError(t, entry.SetEntityState(context.Background(), dbchange.Unchanged))
				assert.Equal(t, "Worf", employee.Name)
				assert.Empty(t, entry.GetModifiedFields())
			},
		},
		{
			"Should detach added entries that are deleted",
			func(t *testing.T, manager *tracking.StateManager) {
				entry, err := manager.GetOrCreateEntry(&testdata.Label{Name: "a"})
				require.NoError(t, err)
				require.NoError(t, entry.SetEntityState(context.Background(), dbchange.Added))
				require.NoError(t, entry.SetEntityState(context.Background(), dbchange.Deleted))

				assert.Equal(t, dbchange.Detached, entry.GetEntityState())
				assert.Empty(t, manager.Entries())
			},
		},
		{
			"Should allow a deleted key to be added again",
			func(t *testing.T, manager *tracking.StateManager) {
				old, err := manager.StartTrackingFromQuery(&testdata.Label{ID: 1, Name: "old"})
				require.NoError(t, err)
				require.NoError(t, old.SetEntityState(context.Background(), dbchange.Deleted))

				replacement, err := manager.GetOrCreateEntry(&testdata.Label{ID: 1, Name: "new"})
				require.NoError(t, err)
				require.NoError(t, replacement.SetEntityState(context.Background(), dbchange.Added))

				found, ok := manager.TryGetEntryByKey(replacement.GetTableMetadata(), int64(1))
				require.True(t, ok)
				assert.Equal(t, replacement, found)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			tc.run(t, newManager(t, nil))
		})
	}
}

func TestSetPropertyModified(t *testing.T) {
	manager := newManager(t, nil)
	employee := &testdata.Employee{ID: 1, Name: "Deanna"}
	entry, err := manager.StartTrackingFromQuery(employee)
	require.NoError(t, err)
	table := entry.GetTableMetadata()

	require.NoError(t, entry.SetPropertyModified(table.GetField("Name"), true))
	assert.Equal(t, dbchange.Modified, entry.GetEntityState())
	assert.True(t, entry.IsPropertyModified(table.GetField("Name")))

	employee.Name = "Troi"
	require.NoError(t, entry.SetPropertyModified(table.GetField("Name"), false))
	assert.Equal(t, "Deanna", employee.Name)
	assert.Equal(t, dbchange.Unchanged, entry.GetEntityState())

	assert.Error(t, entry.SetPropertyModified(table.GetField("ID"), true))
}
