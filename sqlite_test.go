package riker

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/skuid/riker/config"
	"github.com/skuid/riker/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const sqliteSchema = `
CREATE TABLE customers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	organization_id TEXT NOT NULL,
	name TEXT NOT NULL,
	email TEXT NOT NULL
);
CREATE TABLE employees (
	id INTEGER PRIMARY KEY,
	manager_id INTEGER REFERENCES employees (id),
	name TEXT NOT NULL
);
`

func newSQLiteStore(t *testing.T) *Store {
	options := config.Options{
		Dialect:           config.DialectSQLite,
		ConnString:        filepath.Join(t.TempDir(), "riker.db"),
		MaxBatchSize:      1000,
		HiLoBlockSize:     10,
		AutoDetectChanges: true,
		ValidateOnSave:    true,
	}

	db, err := OpenConnection(ConnectionPropsFromOptions(options))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(sqliteSchema)
	require.NoError(t, err)

	store, err := NewStore(Props{DB: db, Options: options, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	require.NoError(t, store.Register(testdata.Customer{}, testdata.Employee{}))
	return store
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	session := store.NewSession("org")
	acme := &testdata.Customer{Name: "Acme"}
	initech := &testdata.Customer{Name: "Initech", Email: "info@initech.com"}
	require.NoError(t, session.Add(ctx, acme))
	require.NoError(t, session.Add(ctx, initech))
	assert.Equal(t, int64(-1), acme.ID)

	rows, err := session.SaveChanges(true)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	assert.Equal(t, int64(1), acme.ID)
	assert.Equal(t, int64(2), initech.ID)

	session = store.NewSession("org")
	found, err := session.Find(ctx, testdata.Customer{}, int64(2))
	require.NoError(t, err)
	loaded := found.(*testdata.Customer)
	assert.Equal(t, "info@initech.com", loaded.Email)

	loaded.Email = "sales@initech.com"
	_, err = session.SaveChanges(true)
	require.NoError(t, err)

	results, err := store.NewSession("org").Load(ctx, &testdata.Customer{Email: "sales@initech.com"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Initech", results[0].(*testdata.Customer).Name)

	_, err = store.NewSession("other").Find(ctx, testdata.Customer{}, int64(2))
	assert.Equal(t, ModelNotFoundError, err, "rows of other tenants aren't visible")

	require.NoError(t, session.Remove(ctx, loaded))
	_, err = session.SaveChanges(true)
	require.NoError(t, err)

	_, err = store.NewSession("org").Find(ctx, testdata.Customer{}, int64(2))
	assert.Equal(t, ModelNotFoundError, err)
}

func TestSQLiteSelfReference(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	session := store.NewSession(nil)
	captain := &testdata.Employee{ID: 1, Name: "Picard"}
	officer := &testdata.Employee{ID: 2, Name: "Riker", Manager: captain}
	require.NoError(t, session.Add(ctx, officer))
	require.NoError(t, session.Add(ctx, captain))

	_, err := session.SaveChanges(true)
	require.NoError(t, err)
	require.NotNil(t, officer.ManagerID)
	assert.Equal(t, int64(1), *officer.ManagerID)

	results, err := store.NewSession(nil).Load(ctx, &testdata.Employee{}, "Manager")
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		employee := result.(*testdata.Employee)
		if employee.ID == 2 {
			require.NotNil(t, employee.Manager)
			assert.Equal(t, "Picard", employee.Manager.Name)
		}
	}
}
