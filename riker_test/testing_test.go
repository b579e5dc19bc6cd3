package riker_test_test

import (
	"context"
	"database/sql/driver"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/skuid/riker"
	"github.com/skuid/riker/riker_test"
	"github.com/skuid/riker/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir string, name string, body string) {
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0o600))
}

func TestLoadFixturesFromFiles(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "acme", `{"name":"Acme","email":"info@acme.com"}`)
	writeFixture(t, dir, "initech", `{"name":"Initech"}`)

	fixtures, err := riker_test.LoadFixturesFromFiles([]string{"acme", "initech"}, dir, reflect.TypeOf(testdata.Customer{}))
	require.NoError(t, err)

	customers := fixtures.([]*testdata.Customer)
	require.Len(t, customers, 2)
	assert.Equal(t, "info@acme.com", customers[0].Email)
	assert.Equal(t, []string{"Email", "Name"}, customers[0].Metadata.DefinedFields)
	assert.Equal(t, []string{"Name"}, customers[1].Metadata.DefinedFields)

	_, err = riker_test.LoadFixturesFromFiles([]string{"missing"}, dir, reflect.TypeOf(testdata.Customer{}))
	assert.Error(t, err)
}

func TestRunSaveTest(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "acme", `{"name":"Acme","email":"info@acme.com"}`)
	fixtures, err := riker_test.LoadFixturesFromFiles([]string{"acme"}, dir, reflect.TypeOf(testdata.Customer{}))
	require.NoError(t, err)
	acme := fixtures.([]*testdata.Customer)[0]

	rows, err := riker_test.RunSaveTest(
		[]interface{}{testdata.Customer{}},
		func(mock sqlmock.Sqlmock) {
			riker_test.ExpectInsert(mock, riker_test.ExpectationHelper{
				TableName:        "customers",
				DBColumns:        []string{"organization_id", "name", "email"},
				ReturningColumns: []string{"id"},
			}, [][]driver.Value{
				{riker_test.SampleOrgID, "Acme", "info@acme.com"},
			}, [][]driver.Value{
				{int64(42)},
			})
		},
		func(session *riker.Session) error {
			return session.Add(context.Background(), acme)
		},
	)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
	assert.Equal(t, int64(42), acme.ID)
	assert.Equal(t, riker_test.SampleOrgID, acme.OrganizationID)
}

func TestExpectInsertWithoutReturning(t *testing.T) {
	rows, err := riker_test.RunSaveTest(
		[]interface{}{testdata.Employee{}},
		func(mock sqlmock.Sqlmock) {
			riker_test.ExpectInsert(mock, riker_test.ExpectationHelper{
				TableName: "employees",
				DBColumns: []string{"id", "manager_id", "name"},
			}, [][]driver.Value{
				{int64(1), nil, "Jean-Luc"},
			}, nil)
		},
		func(session *riker.Session) error {
			return session.Add(context.Background(), &testdata.Employee{ID: 1, Name: "Jean-Luc"})
		},
	)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
}
