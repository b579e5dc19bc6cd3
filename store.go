package riker

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/skuid/riker/config"
	"github.com/skuid/riker/crypto"
	"github.com/skuid/riker/metrics"
	"github.com/skuid/riker/sqlgen"
	"github.com/skuid/riker/tags"
	"github.com/skuid/riker/tracking"
	"github.com/skuid/riker/update"
	"github.com/skuid/riker/valuegen"
	"go.uber.org/zap"
)

// Props configures a Store
type Props struct {
	DB      *sql.DB
	Options config.Options
	// Model defaults to an empty model; register entity types with Store.Register
	Model *tags.Model
	// Sequences may be shared between stores talking to the same database
	Sequences *valuegen.SequenceCache
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

/*
Store holds what outlives a unit of work: the connection, the model, the SQL
dialect, and the value generator caches. It is safe for concurrent use. Every
unit of work gets its own Session from NewSession.
*/
type Store struct {
	db       *sql.DB
	model    *tags.Model
	dialect  sqlgen.Dialect
	selector *valuegen.Selector
	preparer *update.Preparer
	executor *update.Executor
	logger   *zap.Logger
	metrics  *metrics.Metrics
	options  config.Options
}

// NewStore function
func NewStore(props Props) (*Store, error) {
	if props.DB == nil {
		return nil, fmt.Errorf("riker: a store needs a database connection")
	}
	dialect, err := sqlgen.ForName(props.Options.Dialect)
	if err != nil {
		return nil, err
	}

	options := props.Options
	if options.MaxBatchParameters < 1 || options.MaxBatchParameters > dialect.MaxParameters() {
		options.MaxBatchParameters = dialect.MaxParameters()
	}

	store := &Store{
		db:      props.DB,
		model:   props.Model,
		dialect: dialect,
		logger:  props.Logger,
		metrics: props.Metrics,
		options: options,
	}
	if store.model == nil {
		store.model = tags.NewModel()
	}
	if store.logger == nil {
		store.logger = zap.NewNop()
	}

	store.selector = valuegen.NewSelector(valuegen.SelectorConfig{
		Fetcher:    &sequenceFetcher{store: store},
		Sequences:  props.Sequences,
		Connection: options.ConnectionString(),
		BlockSize:  options.HiLoBlockSize,
	})
	store.preparer = update.NewPreparer(update.PreparerConfig{
		MaxBatchSize:       options.MaxBatchSize,
		MaxBatchParameters: options.MaxBatchParameters,
		Logger:             store.logger,
	})
	store.executor = update.NewExecutor(update.ExecutorConfig{
		Generator:        dialect,
		Logger:           store.logger,
		SensitiveLogging: options.SensitiveLogging,
		Metrics:          store.metrics,
	})
	return store, nil
}

/*
Open connects to the database described by options and returns a Store for it.
The encryption key for encrypted columns is installed when one is configured.
Metrics are registered with registerer when it isn't nil.
*/
func Open(options config.Options, logger *zap.Logger, registerer prometheus.Registerer) (*Store, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}

	key, err := options.DecodedEncryptionKey()
	if err != nil {
		return nil, err
	}
	if key != nil {
		if err := crypto.SetEncryptionKey(key); err != nil {
			return nil, err
		}
	}

	var storeMetrics *metrics.Metrics
	if registerer != nil {
		storeMetrics, err = metrics.New(registerer)
		if err != nil {
			return nil, err
		}
	}

	db, err := OpenConnection(ConnectionPropsFromOptions(options))
	if err != nil {
		return nil, err
	}

	store, err := NewStore(Props{
		DB:      db,
		Options: options,
		Logger:  logger,
		Metrics: storeMetrics,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Register adds entity types to the store's model
func (s *Store) Register(models ...interface{}) error {
	return s.model.Register(models...)
}

// GetModel function
func (s *Store) GetModel() *tags.Model {
	return s.model
}

// GetDB function
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// GetDialect function
func (s *Store) GetDialect() sqlgen.Dialect {
	return s.dialect
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// NewSession starts a unit of work for a tenant. tenantID may be nil for models without a multitenancy key.
func (s *Store) NewSession(tenantID interface{}) *Session {
	session := &Session{
		store:    s,
		tenantID: tenantID,
		logger:   s.logger,
	}
	session.manager = tracking.NewStateManager(tracking.Config{
		Model:             s.model,
		Selector:          s.selector,
		Database:          &sessionDatabase{session: session},
		Logger:            s.logger,
		TenantID:          tenantID,
		AutoDetectChanges: s.options.AutoDetectChanges,
		ValidateOnSave:    s.options.ValidateOnSave,
		SensitiveLogging:  s.options.SensitiveLogging,
	})
	return session
}

// EnsureSequences creates the hilo sequences of every registered entity type that uses one
func (s *Store) EnsureSequences(ctx context.Context) error {
	for _, table := range s.model.GetTables() {
		for _, field := range table.GetFields() {
			if field.GetStrategy() != tags.StrategyHiLo {
				continue
			}
			sequence := field.GetSequence()
			blockSize := sequence.BlockSize
			if blockSize < 1 {
				blockSize = s.options.HiLoBlockSize
			}
			key := valuegen.SequenceKey{Name: sequence.Name, Schema: sequence.Schema}
			for _, statement := range s.dialect.EnsureSequenceSQL(key, blockSize) {
				if _, err := s.db.ExecContext(ctx, statement.SQL, statement.Args...); err != nil {
					return NewQueryError(err, statement.SQL)
				}
			}
			s.logger.Debug("ensured hilo sequence",
				zap.String("table", table.GetName()),
				zap.String("sequence", key.String()),
				zap.Int("blockSize", blockSize),
			)
		}
	}
	return nil
}

// sequenceFetcher reserves hilo blocks outside of any session transaction
type sequenceFetcher struct {
	store *Store
}

// FetchBlock function
func (f *sequenceFetcher) FetchBlock(ctx context.Context, key valuegen.SequenceKey, blockSize int) (int64, error) {
	query, args := f.store.dialect.NextBlockSQL(key, blockSize)

	var low int64
	if err := f.store.db.QueryRowContext(ctx, query, args...).Scan(&low); err != nil {
		return 0, NewQueryError(err, query)
	}

	f.store.metrics.ObserveSequenceFetch(key.String())
	f.store.logger.Debug("reserved hilo block",
		zap.String("sequence", key.String()),
		zap.Int64("low", low),
		zap.Int("blockSize", blockSize),
	)
	return low, nil
}
