package ratelimit

import (
	"context"
	"sync"
	"time"
)

// CounterStore is the shared, atomic counter behind the Accountant.
//
// IncrementAndGet must add one to the counter at key and return the new
// value together with the remaining time to live in a single atomic step.
// The first increment of a key sets its time to live to window; later
// increments leave it alone so the counter resets when the window ends.
type CounterStore interface {
	IncrementAndGet(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
	Ping(ctx context.Context) error
}

// sweepEvery is how many increments pass between expiry sweeps.
const sweepEvery = 1024

// MemoryStore is a CounterStore local to one process. It is correct for a
// single instance and for tests; run several instances against a
// RedisStore instead.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	counters map[string]*memoryCounter
	ops      int
}

type memoryCounter struct {
	count    int64
	expireAt time.Time
}

// NewMemoryStore creates an empty store. now may be nil.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:      now,
		counters: make(map[string]*memoryCounter),
	}
}

func (s *MemoryStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	s.ops++
	if s.ops%sweepEvery == 0 {
		s.sweepLocked(now)
	}

	c, ok := s.counters[key]
	if !ok || !now.Before(c.expireAt) {
		c = &memoryCounter{expireAt: now.Add(window)}
		s.counters[key] = c
	}
	c.count++

	return c.count, c.expireAt.Sub(now), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len returns the number of live and not yet swept counters.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for k, c := range s.counters {
		if !now.Before(c.expireAt) {
			delete(s.counters, k)
		}
	}
}
