package riker

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/skuid/riker/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionPropsFromOptions(t *testing.T) {
	idle := 2
	open := 10
	idleTime := 30 * time.Second
	service := "orders"

	testCases := []struct {
		description string
		options     config.Options
		expected    ConnectionProps
	}{
		{
			"should only set pool options that are configured",
			config.Options{Dialect: config.DialectPostgres, ConnString: "postgres://db/shop", MaxIdleConns: 2},
			ConnectionProps{ConnString: "postgres://db/shop", Driver: "postgres", MaxIdleConns: &idle},
		},
		{
			"should carry the tracing service and pool limits",
			config.Options{
				Dialect:      config.DialectPostgres,
				Driver:       "pgx",
				ConnString:   "postgres://db/shop",
				ServiceName:  "orders",
				MaxIdleConns: 2,
				MaxOpenConns: 10,
				MaxIdleTime:  30 * time.Second,
			},
			ConnectionProps{
				ConnString:   "postgres://db/shop",
				Driver:       "pgx",
				ServiceName:  &service,
				MaxIdleConns: &idle,
				MaxOpenConns: &open,
				MaxIdleTime:  &idleTime,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			assert.Equal(t, tc.expected, ConnectionPropsFromOptions(tc.options))
		})
	}
}

func TestOpenConnection(t *testing.T) {
	_, err := OpenConnection(ConnectionProps{Driver: "oracle"})
	assert.EqualError(t, err, `riker: unsupported driver "oracle"`)

	maxOpen := 1
	db, err := OpenConnection(ConnectionProps{
		Driver:       "sqlite",
		ConnString:   filepath.Join(t.TempDir(), "open.db"),
		MaxOpenConns: &maxOpen,
	})
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}
