package update

import (
	"testing"

	"github.com/skuid/riker/dbchange"
	"github.com/skuid/riker/testdata"
	"github.com/skuid/riker/update/updatetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchSummary struct {
	kind    dbchange.Type
	table   string
	entries int
}

func summarize(batches []*Batch) []batchSummary {
	summaries := []batchSummary{}
	for _, batch := range batches {
		summaries = append(summaries, batchSummary{
			kind:    batch.GetType(),
			table:   batch.GetTableMetadata().GetName(),
			entries: len(batch.GetEntries()),
		})
	}
	return summaries
}

func int64Ptr(v int64) *int64 {
	return &v
}

func TestPrepareOrdering(t *testing.T) {
	model := testModel(t)

	testCases := []struct {
		description string
		entries     func() []Entry
		want        []batchSummary
	}{
		{
			"Should insert the principal before its dependent",
			func() []Entry {
				return []Entry{
					updatetest.NewEntry(model, &testdata.Order{ID: 1, OrganizationID: "org", CustomerID: -1}, dbchange.Added),
					updatetest.NewEntry(model, &testdata.Customer{ID: -1, OrganizationID: "org", Name: "Acme"}, dbchange.Added).WithTemporary("ID"),
				}
			},
			[]batchSummary{
				{dbchange.Insert, "Customer", 1},
				{dbchange.Insert, "Order", 1},
			},
		},
		{
			"Should order a chain of inserts",
			func() []Entry {
				return []Entry{
					updatetest.NewEntry(model, &testdata.OrderLine{OrderID: 1, LineNumber: 1}, dbchange.Added),
					updatetest.NewEntry(model, &testdata.OrderLine{OrderID: 1, LineNumber: 2}, dbchange.Added),
					updatetest.NewEntry(model, &testdata.Order{ID: 1, OrganizationID: "org", CustomerID: -1}, dbchange.Added),
					updatetest.NewEntry(model, &testdata.Customer{ID: -1, OrganizationID: "org", Name: "Acme"}, dbchange.Added).WithTemporary("ID"),
				}
			},
			[]batchSummary{
				{dbchange.Insert, "Customer", 1},
				{dbchange.Insert, "Order", 1},
				{dbchange.Insert, "OrderLine", 2},
			},
		},
		{
			"Should delete dependents before their principal",
			func() []Entry {
				return []Entry{
					updatetest.NewEntry(model, &testdata.Order{ID: 5, OrganizationID: "org"}, dbchange.Deleted),
					updatetest.NewEntry(model, &testdata.OrderLine{OrderID: 5, LineNumber: 1}, dbchange.Deleted),
				}
			},
			[]batchSummary{
				{dbchange.Delete, "OrderLine", 1},
				{dbchange.Delete, "Order", 1},
			},
		},
		{
			"Should update rows moving away from a principal before deleting it",
			func() []Entry {
				return []Entry{
					updatetest.NewEntry(model, &testdata.Order{ID: 5, OrganizationID: "org"}, dbchange.Deleted),
					updatetest.NewEntry(model, &testdata.Attachment{ID: "a1"}, dbchange.Modified).
						WithOriginal("OrderID", int64Ptr(5)).
						WithModified("OrderID"),
				}
			},
			[]batchSummary{
				{dbchange.Update, "Attachment", 1},
				{dbchange.Delete, "Order", 1},
			},
		},
		{
			"Should delete a key before inserting it again",
			func() []Entry {
				return []Entry{
					updatetest.NewEntry(model, &testdata.Label{ID: 1, Name: "new"}, dbchange.Added),
					updatetest.NewEntry(model, &testdata.Label{ID: 1, Name: "old"}, dbchange.Deleted),
				}
			},
			[]batchSummary{
				{dbchange.Delete, "Label", 1},
				{dbchange.Insert, "Label", 1},
			},
		},
		{
			"Should allow rows referencing themselves",
			func() []Entry {
				return []Entry{
					updatetest.NewEntry(model, &testdata.Employee{ID: 1, ManagerID: int64Ptr(1)}, dbchange.Added),
				}
			},
			[]batchSummary{
				{dbchange.Insert, "Employee", 1},
			},
		},
		{
			"Should never merge updates",
			func() []Entry {
				return []Entry{
					updatetest.NewEntry(model, &testdata.Employee{ID: 1, Name: "a"}, dbchange.Modified).WithModified("Name"),
					updatetest.NewEntry(model, &testdata.Employee{ID: 2, Name: "b"}, dbchange.Modified).WithModified("Name"),
				}
			},
			[]batchSummary{
				{dbchange.Update, "Employee", 1},
				{dbchange.Update, "Employee", 1},
			},
		},
		{
			"Should skip updates with nothing to write",
			func() []Entry {
				return []Entry{
					updatetest.NewEntry(model, &testdata.Employee{ID: 1, Name: "a"}, dbchange.Modified),
					updatetest.NewEntry(model, &testdata.Label{ID: 1}, dbchange.Deleted),
				}
			},
			[]batchSummary{
				{dbchange.Delete, "Label", 1},
			},
		},
		{
			"Should keep tables in separate batches",
			func() []Entry {
				return []Entry{
					updatetest.NewEntry(model, &testdata.Label{ID: 1}, dbchange.Deleted),
					updatetest.NewEntry(model, &testdata.Employee{ID: 1}, dbchange.Deleted),
					updatetest.NewEntry(model, &testdata.Label{ID: 2}, dbchange.Deleted),
				}
			},
			[]batchSummary{
				{dbchange.Delete, "Label", 1},
				{dbchange.Delete, "Employee", 1},
				{dbchange.Delete, "Label", 1},
			},
		},
		{
			"Should merge inserts reading values back only when their keys are written",
			func() []Entry {
				return []Entry{
					updatetest.NewEntry(model, &testdata.Customer{ID: -1, OrganizationID: "org", Name: "Acme"}, dbchange.Added).WithTemporary("ID"),
					updatetest.NewEntry(model, &testdata.Customer{ID: -2, OrganizationID: "org", Name: "Initech"}, dbchange.Added).WithTemporary("ID"),
					updatetest.NewEntry(model, &testdata.Order{ID: 1, OrganizationID: "org", CustomerID: 7}, dbchange.Added),
					updatetest.NewEntry(model, &testdata.Order{ID: 2, OrganizationID: "org", CustomerID: 7}, dbchange.Added),
				}
			},
			[]batchSummary{
				{dbchange.Insert, "Customer", 1},
				{dbchange.Insert, "Customer", 1},
				{dbchange.Insert, "Order", 2},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			batches, err := NewPreparer(PreparerConfig{}).Prepare(tc.entries())
			require.NoError(t, err)
			assert.Equal(t, tc.want, summarize(batches))
		})
	}
}

func TestPrepareCycle(t *testing.T) {
	model := testModel(t)
	first := updatetest.NewEntry(model, &testdata.Employee{ID: 1, ManagerID: int64Ptr(2)}, dbchange.Added)
	second := updatetest.NewEntry(model, &testdata.Employee{ID: 2, ManagerID: int64Ptr(1)}, dbchange.Added)
	unrelated := updatetest.NewEntry(model, &testdata.Label{ID: 1}, dbchange.Added)

	batches, err := NewPreparer(PreparerConfig{}).Prepare([]Entry{first, unrelated, second})
	assert.Nil(t, batches)
	require.True(t, IsDependencyCycle(err))

	cycle := err.(*DependencyCycleError)
	assert.Equal(t, []Entry{first, second}, cycle.Entries)
	assert.Equal(t, []string{"Employee.Manager"}, cycle.ForeignKeys)
	assert.Equal(
		t,
		"riker: unable to save changes because a circular dependency was detected between Employee (Added), Employee (Added) through foreign keys Employee.Manager",
		err.Error(),
	)
}

func TestPrepareBatchLimits(t *testing.T) {
	model := testModel(t)

	testCases := []struct {
		description string
		config      PreparerConfig
		want        []int
	}{
		{
			"Should put everything in one batch by default",
			PreparerConfig{},
			[]int{5},
		},
		{
			"Should split on batch size",
			PreparerConfig{MaxBatchSize: 2},
			[]int{2, 2, 1},
		},
		{
			"Should split on parameter count",
			PreparerConfig{MaxBatchParameters: 7},
			[]int{3, 2},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			entries := []Entry{}
			for i := int64(1); i <= 5; i++ {
				entries = append(entries, updatetest.NewEntry(model, &testdata.Label{ID: i, Name: "label"}, dbchange.Added))
			}

			batches, err := NewPreparer(tc.config).Prepare(entries)
			require.NoError(t, err)

			sizes := []int{}
			for _, batch := range batches {
				sizes = append(sizes, len(batch.GetCommands()))
				assert.Equal(t, dbchange.Insert, batch.GetType())
			}
			assert.Equal(t, tc.want, sizes)
		})
	}
}
