package riker_test_test

import (
	"context"
	"errors"
	"testing"

	"github.com/skuid/riker"
	"github.com/skuid/riker/riker_test"
	"github.com/skuid/riker/testdata"
	"github.com/stretchr/testify/assert"
)

var (
	_ riker.ORM = &riker_test.MockORM{}
	_ riker.ORM = &riker_test.MultiMockORM{}
	_ riker.ORM = &riker.Session{}
)

func TestMockFind(t *testing.T) {
	testCases := []struct {
		description string
		giveReturns interface{}
		giveError   error
	}{
		{
			"Should return error if present, regardless of returns set",
			&testdata.Employee{ID: 1},
			errors.New("Some error"),
		},
		{
			"Should return the set return object",
			&testdata.Employee{ID: 1},
			nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			morm := riker_test.MockORM{
				FindReturns: tc.giveReturns,
				FindError:   tc.giveError,
			}

			result, err := morm.Find(context.Background(), testdata.Employee{}, int64(1))

			assert.Equal(t, testdata.Employee{}, morm.FindCalledWith)
			assert.Equal(t, []interface{}{int64(1)}, morm.FindCalledWithKey)
			if tc.giveError != nil {
				assert.Equal(t, tc.giveError, err)
				assert.Nil(t, result)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.giveReturns, result)
			}
		})
	}
}

func TestMockLoad(t *testing.T) {
	morm := riker_test.MockORM{
		LoadReturns: []interface{}{"test 1", "test 2"},
	}

	results, err := morm.Load(context.Background(), &testdata.Order{Status: "open"}, "Customer")
	assert.NoError(t, err)
	assert.Equal(t, []interface{}{"test 1", "test 2"}, results)
	assert.Equal(t, &testdata.Order{Status: "open"}, morm.LoadCalledWith)
	assert.Equal(t, []string{"Customer"}, morm.LoadCalledWithIncludes)
}

func TestMockChanges(t *testing.T) {
	morm := riker_test.MockORM{
		RemoveError:     errors.New("not tracked"),
		SaveChangesRows: 2,
	}
	ctx := context.Background()

	assert.NoError(t, morm.Add(ctx, "added"))
	assert.NoError(t, morm.Attach(ctx, "attached"))
	assert.NoError(t, morm.Update(ctx, "updated"))
	assert.EqualError(t, morm.Remove(ctx, "removed"), "not tracked")

	rows, err := morm.SaveChanges(true)
	assert.NoError(t, err)
	assert.Equal(t, 2, rows)

	assert.Equal(t, []interface{}{"added"}, morm.AddCalledWith)
	assert.Equal(t, []interface{}{"attached"}, morm.AttachCalledWith)
	assert.Equal(t, []interface{}{"updated"}, morm.UpdateCalledWith)
	assert.Equal(t, []interface{}{"removed"}, morm.RemoveCalledWith)
	assert.Equal(t, 1, morm.SaveChangesCalls)
}

func TestMultiMockORM(t *testing.T) {
	multi := riker_test.MultiMockORM{
		MockORMs: []riker_test.MockORM{
			{AddError: errors.New("first")},
			{SaveChangesRows: 1},
		},
	}
	ctx := context.Background()

	assert.EqualError(t, multi.Add(ctx, "a"), "first")

	rows, err := multi.SaveChanges(true)
	assert.NoError(t, err)
	assert.Equal(t, 1, rows)

	_, err = multi.Load(ctx, "b")
	assert.EqualError(t, err, "Mock Function was called but not expected")
}
