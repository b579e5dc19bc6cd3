/*
Package valuegen assigns generated values to properties of added entities.

A Selector resolves the Generator for a property once and caches it per
model type and field. Client side generators (sequential counters and uuids)
produce final values. Identity columns get temporary placeholders that the
store's value replaces after the insert. Hi-Lo generators reserve blocks of
values from a store sequence and hand them out without further round trips
until the block runs out.
*/
package valuegen

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	uuid "github.com/satori/go.uuid"
	"github.com/skuid/riker/tags"
)

// DefaultBlockSize is used for hilo sequences without a block_size
const DefaultBlockSize = 10

// Generator produces values for one property
type Generator interface {
	// Next returns the next value, converted to the property's type
	Next(ctx context.Context) (interface{}, error)
	// GeneratesTemporaryValues reports whether values must be replaced by the store's value after saving
	GeneratesTemporaryValues() bool
}

// ErrNoFetcher is returned when a hilo property is used without a BlockFetcher
var ErrNoFetcher = errors.New("hilo generation requires a block fetcher")

// SequentialGenerator hands out 1, 2, 3... It is safe for concurrent use.
type SequentialGenerator struct {
	counter   atomic.Int64
	fieldType reflect.Type
}

// NewSequentialGenerator returns a counter for an integer field type
func NewSequentialGenerator(fieldType reflect.Type) (*SequentialGenerator, error) {
	if !isInteger(fieldType) {
		return nil, fmt.Errorf("sequential generation needs an integer field, got %s", fieldType)
	}
	return &SequentialGenerator{fieldType: fieldType}, nil
}

// Next function
func (g *SequentialGenerator) Next(ctx context.Context) (interface{}, error) {
	return tags.ConvertValue(g.counter.Add(1), g.fieldType)
}

// GeneratesTemporaryValues function
func (g *SequentialGenerator) GeneratesTemporaryValues() bool {
	return false
}

// TemporaryGenerator hands out -1, -2, -3... as placeholders for store generated integer keys
type TemporaryGenerator struct {
	counter   atomic.Int64
	fieldType reflect.Type
}

// NewTemporaryGenerator returns a placeholder generator for a signed integer field type
func NewTemporaryGenerator(fieldType reflect.Type) (*TemporaryGenerator, error) {
	if !isSignedInteger(fieldType) {
		return nil, fmt.Errorf("temporary keys need a signed integer field, got %s", fieldType)
	}
	return &TemporaryGenerator{fieldType: fieldType}, nil
}

// Next function
func (g *TemporaryGenerator) Next(ctx context.Context) (interface{}, error) {
	return tags.ConvertValue(g.counter.Add(-1), g.fieldType)
}

// GeneratesTemporaryValues function
func (g *TemporaryGenerator) GeneratesTemporaryValues() bool {
	return true
}

// UUIDGenerator hands out random v4 uuids, as uuid.UUID or as a string
type UUIDGenerator struct {
	fieldType reflect.Type
	asString  bool
	temporary bool
}

// NewUUIDGenerator returns a uuid generator. Temporary uuids stand in for store defaults.
func NewUUIDGenerator(fieldType reflect.Type, temporary bool) (*UUIDGenerator, error) {
	base := fieldType
	if base.Kind() == reflect.Ptr {
		base = base.Elem()
	}
	switch {
	case base.Kind() == reflect.String:
		return &UUIDGenerator{fieldType: fieldType, asString: true, temporary: temporary}, nil
	case base.Kind() == reflect.Array && base.Len() == uuid.Size && base.Elem().Kind() == reflect.Uint8:
		return &UUIDGenerator{fieldType: fieldType, temporary: temporary}, nil
	}
	return nil, fmt.Errorf("uuid generation needs a string or uuid field, got %s", fieldType)
}

// Next function
func (g *UUIDGenerator) Next(ctx context.Context) (interface{}, error) {
	id := uuid.NewV4()
	if g.asString {
		return tags.ConvertValue(id.String(), g.fieldType)
	}
	return tags.ConvertValue(id, g.fieldType)
}

// GeneratesTemporaryValues function
func (g *UUIDGenerator) GeneratesTemporaryValues() bool {
	return g.temporary
}

// HiLoGenerator takes values from a shared SequenceState
type HiLoGenerator struct {
	key       SequenceKey
	state     *SequenceState
	fetcher   BlockFetcher
	fieldType reflect.Type
}

// NewHiLoGenerator function
func NewHiLoGenerator(key SequenceKey, state *SequenceState, fetcher BlockFetcher, fieldType reflect.Type) (*HiLoGenerator, error) {
	if fetcher == nil {
		return nil, ErrNoFetcher
	}
	if !isInteger(fieldType) {
		return nil, fmt.Errorf("hilo generation needs an integer field, got %s", fieldType)
	}
	return &HiLoGenerator{
		key:       key,
		state:     state,
		fetcher:   fetcher,
		fieldType: fieldType,
	}, nil
}

// Next may block on a round trip to reserve the next block
func (g *HiLoGenerator) Next(ctx context.Context) (interface{}, error) {
	value, err := g.state.Next(ctx, func(ctx context.Context) (int64, error) {
		return g.fetcher.FetchBlock(ctx, g.key, g.state.BlockSize())
	})
	if err != nil {
		return nil, err
	}
	return tags.ConvertValue(value, g.fieldType)
}

// GeneratesTemporaryValues function
func (g *HiLoGenerator) GeneratesTemporaryValues() bool {
	return false
}

// SelectorConfig configures a Selector
type SelectorConfig struct {
	// Fetcher reserves hilo blocks. Required only for models using hilo.
	Fetcher BlockFetcher
	// Sequences is shared by every Selector talking to the same database
	Sequences *SequenceCache
	// Connection identifies the database, usually host and database name
	Connection string
	// BlockSize applies to hilo sequences without a block_size
	BlockSize int
}

type selectorKey struct {
	table reflect.Type
	field string
}

/*
Selector resolves and caches the Generator of each property. It is safe for
concurrent use and meant to live as long as the database it generates for.
*/
type Selector struct {
	config     SelectorConfig
	mu         sync.Mutex
	generators map[selectorKey]Generator
}

// NewSelector function
func NewSelector(config SelectorConfig) *Selector {
	if config.Sequences == nil {
		config.Sequences = NewSequenceCache()
	}
	if config.BlockSize < 1 {
		config.BlockSize = DefaultBlockSize
	}
	return &Selector{
		config:     config,
		generators: map[selectorKey]Generator{},
	}
}

// Select returns the generator for a field, or nil when the field isn't generated on the client
func (s *Selector) Select(table *tags.TableMetadata, field *tags.FieldMetadata) (Generator, error) {
	key := selectorKey{table: table.GetType(), field: field.GetName()}

	s.mu.Lock()
	defer s.mu.Unlock()

	if generator, ok := s.generators[key]; ok {
		return generator, nil
	}

	generator, err := s.create(field)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", table.GetName(), field.GetName(), err)
	}
	s.generators[key] = generator
	return generator, nil
}

func (s *Selector) create(field *tags.FieldMetadata) (Generator, error) {
	fieldType := field.GetFieldType()

	switch field.GetStrategy() {
	case tags.StrategyIdentity:
		return NewTemporaryGenerator(fieldType)
	case tags.StrategySequential:
		return NewSequentialGenerator(fieldType)
	case tags.StrategyUUID:
		return NewUUIDGenerator(fieldType, false)
	case tags.StrategyHiLo:
		sequence := field.GetSequence()
		blockSize := sequence.BlockSize
		if blockSize < 1 {
			blockSize = s.config.BlockSize
		}
		key := SequenceKey{
			Name:       sequence.Name,
			Schema:     sequence.Schema,
			Connection: s.config.Connection,
		}
		return NewHiLoGenerator(key, s.config.Sequences.GetOrAdd(key, blockSize), s.config.Fetcher, fieldType)
	}

	// Unannotated keys with a store default still need a unique placeholder while tracked
	if field.IsPrimaryKey() && field.IsStoreGeneratedOnAdd() {
		if isSignedInteger(fieldType) {
			return NewTemporaryGenerator(fieldType)
		}
		return NewUUIDGenerator(fieldType, true)
	}
	return nil, nil
}

func isInteger(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return isSignedInteger(t)
}

func isSignedInteger(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}
