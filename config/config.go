/*
Package config loads riker options with viper. Every option can be set in a
config file read by the caller's viper instance or with a RIKER_ environment
variable, e.g. RIKER_MAX_BATCH_SIZE. The standard PG* variables fill in the
postgres connection when no connection string is given.
*/
package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DialectPostgres selects lib/pq or pgx and postgres SQL
	DialectPostgres = "postgres"
	// DialectSQLite selects modernc.org/sqlite and sqlite SQL
	DialectSQLite = "sqlite"

	postgresMaxParameters = 65535
	sqliteMaxParameters   = 32766
)

// Options holds everything a riker Store needs
type Options struct {
	Dialect     string `mapstructure:"dialect"`
	Driver      string `mapstructure:"driver"`
	ConnString  string `mapstructure:"conn_string"`
	ServiceName string `mapstructure:"service_name"`

	DBHost     string `mapstructure:"dbhost"`
	DBPort     int    `mapstructure:"dbport"`
	DBName     string `mapstructure:"dbname"`
	DBUsername string `mapstructure:"dbusername"`
	DBPassword string `mapstructure:"dbpassword"`
	DBSSLMode  string `mapstructure:"dbsslmode"`

	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleTime  time.Duration `mapstructure:"max_idle_time"`
	MaxLifeTime  time.Duration `mapstructure:"max_life_time"`

	MaxBatchSize       int  `mapstructure:"max_batch_size"`
	MaxBatchParameters int  `mapstructure:"max_batch_parameters"`
	HiLoBlockSize      int  `mapstructure:"hilo_block_size"`
	AutoDetectChanges  bool `mapstructure:"auto_detect_changes"`
	ValidateOnSave     bool `mapstructure:"validate_on_save"`
	SensitiveLogging   bool `mapstructure:"sensitive_logging"`

	// EncryptionKey is the base64 encoded 32 byte key for encrypted columns
	EncryptionKey string `mapstructure:"encryption_key"`
}

// SetDefaults registers the default of every option on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("dialect", DialectPostgres)
	v.SetDefault("driver", "")
	v.SetDefault("conn_string", "")
	v.SetDefault("service_name", "")

	v.SetDefault("dbhost", "localhost")
	v.SetDefault("dbport", 5432)
	v.SetDefault("dbname", "")
	v.SetDefault("dbusername", "")
	v.SetDefault("dbpassword", "")
	v.SetDefault("dbsslmode", "disable")

	v.SetDefault("max_idle_conns", 2)
	v.SetDefault("max_open_conns", 0)
	v.SetDefault("max_idle_time", time.Duration(0))
	v.SetDefault("max_life_time", time.Duration(0))

	v.SetDefault("max_batch_size", 1000)
	v.SetDefault("max_batch_parameters", 0)
	v.SetDefault("hilo_block_size", 10)
	v.SetDefault("auto_detect_changes", true)
	v.SetDefault("validate_on_save", true)
	v.SetDefault("sensitive_logging", false)
	v.SetDefault("encryption_key", "")
}

// Load reads Options from v, which may be nil to use the environment only
func Load(v *viper.Viper) (Options, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix("riker")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("dbhost", "RIKER_DBHOST", "PGHOST")
	v.BindEnv("dbport", "RIKER_DBPORT", "PGPORT")
	v.BindEnv("dbname", "RIKER_DBNAME", "PGDATABASE")
	v.BindEnv("dbusername", "RIKER_DBUSERNAME", "PGUSER")
	v.BindEnv("dbpassword", "RIKER_DBPASSWORD", "PGPASSWORD")
	v.BindEnv("dbsslmode", "RIKER_DBSSLMODE", "PGSSLMODE")

	var options Options
	if err := v.Unmarshal(&options); err != nil {
		return Options{}, err
	}

	if err := options.Validate(); err != nil {
		return Options{}, err
	}

	if options.MaxBatchParameters == 0 {
		options.MaxBatchParameters = DefaultMaxParameters(options.Dialect)
	}
	return options, nil
}

// DefaultMaxParameters is the most bind parameters one statement may carry in a dialect
func DefaultMaxParameters(dialect string) int {
	if dialect == DialectSQLite {
		return sqliteMaxParameters
	}
	return postgresMaxParameters
}

// Validate function
func (o Options) Validate() error {
	switch o.Dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return fmt.Errorf("riker: unsupported dialect %q", o.Dialect)
	}
	if o.MaxBatchSize < 0 {
		return fmt.Errorf("riker: max_batch_size must not be negative, got %d", o.MaxBatchSize)
	}
	if o.MaxBatchParameters < 0 {
		return fmt.Errorf("riker: max_batch_parameters must not be negative, got %d", o.MaxBatchParameters)
	}
	if o.HiLoBlockSize < 1 {
		return fmt.Errorf("riker: hilo_block_size must be positive, got %d", o.HiLoBlockSize)
	}
	if o.EncryptionKey != "" {
		if _, err := o.DecodedEncryptionKey(); err != nil {
			return err
		}
	}
	return nil
}

// DriverName returns the database/sql driver, picked from the dialect when none is configured
func (o Options) DriverName() string {
	if o.Driver != "" {
		return o.Driver
	}
	if o.Dialect == DialectSQLite {
		return "sqlite"
	}
	return "postgres"
}

// ConnectionString returns ConnString, or a postgres URL built from the DB* options
func (o Options) ConnectionString() string {
	if o.ConnString != "" || o.Dialect != DialectPostgres {
		return o.ConnString
	}
	connURL := url.URL{
		Scheme: "postgres",
		Host:   o.DBHost + ":" + strconv.Itoa(o.DBPort),
		Path:   "/" + o.DBName,
	}
	if o.DBUsername != "" {
		connURL.User = url.UserPassword(o.DBUsername, o.DBPassword)
	}
	if o.DBSSLMode != "" {
		connURL.RawQuery = url.Values{"sslmode": []string{o.DBSSLMode}}.Encode()
	}
	return connURL.String()
}

// DecodedEncryptionKey returns the encryption key bytes, or nil when none is configured
func (o Options) DecodedEncryptionKey() ([]byte, error) {
	if o.EncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(o.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("riker: encryption_key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("riker: encryption_key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
