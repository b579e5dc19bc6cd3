package valuegen

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// SequenceKey identifies a store sequence on one database
type SequenceKey struct {
	Name       string
	Schema     string
	Connection string
}

func (k SequenceKey) String() string {
	if k.Schema == "" {
		return k.Name
	}
	return k.Schema + "." + k.Name
}

// BlockFetcher reserves the next block of a sequence and returns its lowest value
type BlockFetcher interface {
	FetchBlock(ctx context.Context, key SequenceKey, blockSize int) (int64, error)
}

// BlockFetcherFunc adapts a function to a BlockFetcher
type BlockFetcherFunc func(ctx context.Context, key SequenceKey, blockSize int) (int64, error)

// FetchBlock function
func (f BlockFetcherFunc) FetchBlock(ctx context.Context, key SequenceKey, blockSize int) (int64, error) {
	return f(ctx, key, blockSize)
}

/*
SequenceState owns the reserved block [next, limit) of one sequence. Values are
handed out under a mutex. When the block is used up, exactly one caller
fetches the next block; the others wait for that fetch instead of starting
their own. Waiters stop waiting when their context is done.
*/
type SequenceState struct {
	blockSize int

	mu         sync.Mutex
	next       int64
	limit      int64
	generation uint64

	flights singleflight.Group
}

// NewSequenceState returns an exhausted state, so the first Next fetches a block
func NewSequenceState(blockSize int) *SequenceState {
	if blockSize < 1 {
		blockSize = DefaultBlockSize
	}
	return &SequenceState{blockSize: blockSize}
}

// BlockSize function
func (s *SequenceState) BlockSize() int {
	return s.blockSize
}

// Next returns the next value, calling fetch to reserve a new block when needed
func (s *SequenceState) Next(ctx context.Context, fetch func(ctx context.Context) (int64, error)) (int64, error) {
	for {
		s.mu.Lock()
		if s.next < s.limit {
			value := s.next
			s.next++
			s.mu.Unlock()
			return value, nil
		}
		generation := s.generation
		s.mu.Unlock()

		// The fetch must finish even if the caller that started it stops waiting
		fetchCtx := context.WithoutCancel(ctx)
		result := s.flights.DoChan(strconv.FormatUint(generation, 10), func() (interface{}, error) {
			s.mu.Lock()
			refilled := s.generation != generation
			s.mu.Unlock()
			if refilled {
				return nil, nil
			}

			low, err := fetch(fetchCtx)
			if err != nil {
				return nil, err
			}

			s.mu.Lock()
			if s.generation == generation {
				s.next = low
				s.limit = low + int64(s.blockSize)
				s.generation++
			}
			s.mu.Unlock()
			return nil, nil
		})

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case res := <-result:
			if res.Err != nil {
				return 0, res.Err
			}
		}
	}
}

// SequenceCache shares SequenceStates between every generator using the same sequence
type SequenceCache struct {
	mu     sync.Mutex
	states map[SequenceKey]*SequenceState
}

// NewSequenceCache function
func NewSequenceCache() *SequenceCache {
	return &SequenceCache{
		states: map[SequenceKey]*SequenceState{},
	}
}

// GetOrAdd returns the state for key, creating it with blockSize on first use
func (c *SequenceCache) GetOrAdd(key SequenceKey, blockSize int) *SequenceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.states[key]
	if !ok {
		state = NewSequenceState(blockSize)
		c.states[key] = state
	}
	return state
}
