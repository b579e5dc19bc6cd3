package riker

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/skuid/riker/config"
	sqltrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/database/sql"
	"modernc.org/sqlite"
)

// ConnectionProps describes the database to open. Unset pool options keep the database/sql defaults.
type ConnectionProps struct {
	ConnString string
	// Driver is postgres (lib/pq), pgx or sqlite
	Driver       string
	ServiceName  *string
	MaxIdleConns *int
	MaxOpenConns *int
	MaxIdleTime  *time.Duration
	MaxLifeTime  *time.Duration
}

// ConnectionPropsFromOptions builds ConnectionProps from loaded options
func ConnectionPropsFromOptions(options config.Options) ConnectionProps {
	props := ConnectionProps{
		ConnString:   options.ConnectionString(),
		Driver:       options.DriverName(),
		MaxIdleConns: &options.MaxIdleConns,
	}
	if options.ServiceName != "" {
		props.ServiceName = &options.ServiceName
	}
	if options.MaxOpenConns > 0 {
		props.MaxOpenConns = &options.MaxOpenConns
	}
	if options.MaxIdleTime > 0 {
		props.MaxIdleTime = &options.MaxIdleTime
	}
	if options.MaxLifeTime > 0 {
		props.MaxLifeTime = &options.MaxLifeTime
	}
	return props
}

func driverFor(name string) (driver.Driver, error) {
	switch name {
	case "postgres":
		return &pq.Driver{}, nil
	case "pgx":
		return stdlib.GetDefaultDriver(), nil
	case "sqlite":
		return &sqlite.Driver{}, nil
	}
	return nil, fmt.Errorf("riker: unsupported driver %q", name)
}

// OpenConnection opens and pings a database. When a service name is given the
// driver is registered with the datadog tracer first.
func OpenConnection(props ConnectionProps) (*sql.DB, error) {
	if props.Driver == "" {
		props.Driver = "postgres"
	}

	var db *sql.DB
	var err error
	if props.ServiceName != nil {
		impl, err := driverFor(props.Driver)
		if err != nil {
			return nil, err
		}
		sqltrace.Register(
			props.Driver,
			impl,
			sqltrace.WithServiceName(*props.ServiceName),
		)
		db, err = sqltrace.Open(props.Driver, props.ConnString)
		if err != nil {
			return nil, err
		}
	} else {
		if _, err := driverFor(props.Driver); err != nil {
			return nil, err
		}
		db, err = sql.Open(props.Driver, props.ConnString)
		if err != nil {
			return nil, err
		}
	}

	if props.MaxIdleConns != nil {
		db.SetMaxIdleConns(*props.MaxIdleConns)
	}

	if props.MaxIdleTime != nil {
		db.SetConnMaxIdleTime(*props.MaxIdleTime)
	}

	if props.MaxLifeTime != nil {
		db.SetConnMaxLifetime(*props.MaxLifeTime)
	}

	if props.MaxOpenConns != nil {
		db.SetMaxOpenConns(*props.MaxOpenConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
