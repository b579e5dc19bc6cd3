package riker_test

import (
	"context"
	"errors"
)

// MockORM can be used to test client functionality that calls riker.ORM behavior.
type MockORM struct {
	AddError               error
	AddCalledWith          []interface{}
	AttachError            error
	AttachCalledWith       []interface{}
	UpdateError            error
	UpdateCalledWith       []interface{}
	RemoveError            error
	RemoveCalledWith       []interface{}
	FindReturns            interface{}
	FindError              error
	FindCalledWith         interface{}
	FindCalledWithKey      []interface{}
	LoadReturns            []interface{}
	LoadError              error
	LoadCalledWith         interface{}
	LoadCalledWithIncludes []string
	SaveChangesRows        int
	SaveChangesError       error
	SaveChangesCalls       int
}

// Add returns the error stored in MockORM, and records the call value
func (morm *MockORM) Add(ctx context.Context, entity interface{}) error {
	morm.AddCalledWith = append(morm.AddCalledWith, entity)
	return morm.AddError
}

// Attach returns the error stored in MockORM, and records the call value
func (morm *MockORM) Attach(ctx context.Context, entity interface{}) error {
	morm.AttachCalledWith = append(morm.AttachCalledWith, entity)
	return morm.AttachError
}

// Update returns the error stored in MockORM, and records the call value
func (morm *MockORM) Update(ctx context.Context, entity interface{}) error {
	morm.UpdateCalledWith = append(morm.UpdateCalledWith, entity)
	return morm.UpdateError
}

// Remove returns the error stored in MockORM, and records the call value
func (morm *MockORM) Remove(ctx context.Context, entity interface{}) error {
	morm.RemoveCalledWith = append(morm.RemoveCalledWith, entity)
	return morm.RemoveError
}

// Find simply returns an error or return object when set on the MockORM
func (morm *MockORM) Find(ctx context.Context, entity interface{}, keyValues ...interface{}) (interface{}, error) {
	morm.FindCalledWith = entity
	morm.FindCalledWithKey = keyValues
	if morm.FindError != nil {
		return nil, morm.FindError
	}
	return morm.FindReturns, nil
}

// Load simply returns an error or return objects when set on the MockORM
func (morm *MockORM) Load(ctx context.Context, filter interface{}, includes ...string) ([]interface{}, error) {
	morm.LoadCalledWith = filter
	morm.LoadCalledWithIncludes = includes
	if morm.LoadError != nil {
		return nil, morm.LoadError
	}
	return morm.LoadReturns, nil
}

// SaveChanges returns the rows & error stored in MockORM, and counts the call
func (morm *MockORM) SaveChanges(acceptAllChangesOnSuccess bool) (int, error) {
	return morm.SaveChangesContext(context.Background(), acceptAllChangesOnSuccess)
}

// SaveChangesContext returns the rows & error stored in MockORM, and counts the call
func (morm *MockORM) SaveChangesContext(ctx context.Context, acceptAllChangesOnSuccess bool) (int, error) {
	morm.SaveChangesCalls++
	if morm.SaveChangesError != nil {
		return 0, morm.SaveChangesError
	}
	return morm.SaveChangesRows, nil
}

// MultiMockORM can be used to string together a series of calls to riker.ORM
type MultiMockORM struct {
	MockORMs []MockORM
	index    int
}

// Returns the next mock in the series of mocks
func (multi *MultiMockORM) next() (*MockORM, error) {
	currentIndex := multi.index
	if len(multi.MockORMs) > currentIndex {
		multi.index = multi.index + 1
		return &multi.MockORMs[currentIndex], nil
	}
	return nil, errors.New("Mock Function was called but not expected")
}

// Add function
func (multi *MultiMockORM) Add(ctx context.Context, entity interface{}) error {
	next, err := multi.next()
	if err != nil {
		return err
	}
	return next.Add(ctx, entity)
}

// Attach function
func (multi *MultiMockORM) Attach(ctx context.Context, entity interface{}) error {
	next, err := multi.next()
	if err != nil {
		return err
	}
	return next.Attach(ctx, entity)
}

// Update function
func (multi *MultiMockORM) Update(ctx context.Context, entity interface{}) error {
	next, err := multi.next()
	if err != nil {
		return err
	}
	return next.Update(ctx, entity)
}

// Remove function
func (multi *MultiMockORM) Remove(ctx context.Context, entity interface{}) error {
	next, err := multi.next()
	if err != nil {
		return err
	}
	return next.Remove(ctx, entity)
}

// Find function
func (multi *MultiMockORM) Find(ctx context.Context, entity interface{}, keyValues ...interface{}) (interface{}, error) {
	next, err := multi.next()
	if err != nil {
		return nil, err
	}
	return next.Find(ctx, entity, keyValues...)
}

// Load function
func (multi *MultiMockORM) Load(ctx context.Context, filter interface{}, includes ...string) ([]interface{}, error) {
	next, err := multi.next()
	if err != nil {
		return nil, err
	}
	return next.Load(ctx, filter, includes...)
}

// SaveChanges function
func (multi *MultiMockORM) SaveChanges(acceptAllChangesOnSuccess bool) (int, error) {
	return multi.SaveChangesContext(context.Background(), acceptAllChangesOnSuccess)
}

// SaveChangesContext function
func (multi *MultiMockORM) SaveChangesContext(ctx context.Context, acceptAllChangesOnSuccess bool) (int, error) {
	next, err := multi.next()
	if err != nil {
		return 0, err
	}
	return next.SaveChangesContext(ctx, acceptAllChangesOnSuccess)
}
