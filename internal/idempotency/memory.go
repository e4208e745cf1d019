package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/tourism-booking/internal/clock"
)

type entry struct {
	bookingID int64
	expires   time.Time
}

// MemoryStore is the single-process fallback used when Redis is not
// reachable.  Entries expire after ttl.  Claim and Complete sweep expired
// entries at most once per sweep interval, so the map only holds keys seen
// within roughly one ttl.
type MemoryStore struct {
	mu        sync.Mutex
	clock     clock.Clock
	ttl       time.Duration
	interval  time.Duration
	nextSweep time.Time
	entries   map[string]entry
}

const maxSweepInterval = time.Minute

func NewMemoryStore(clk clock.Clock, ttl time.Duration) *MemoryStore {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	interval := ttl
	if interval > maxSweepInterval {
		interval = maxSweepInterval
	}
	return &MemoryStore{
		clock:     clk,
		ttl:       ttl,
		interval:  interval,
		nextSweep: clk.Now().Add(interval),
		entries:   map[string]entry{},
	}
}

// sweep drops expired entries once the sweep interval has passed.  The
// caller holds s.mu.
func (s *MemoryStore) sweep(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
	s.nextSweep = now.Add(s.interval)
}

func (s *MemoryStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Claim(_ context.Context, k string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.sweep(now)
	if e, ok := s.entries[k]; ok && now.Before(e.expires) {
		return e.bookingID, false, nil
	}
	s.entries[k] = entry{expires: now.Add(s.ttl)}
	return 0, true, nil
}

func (s *MemoryStore) Complete(_ context.Context, k string, bookingID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.sweep(now)
	s.entries[k] = entry{bookingID: bookingID, expires: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Abandon(_ context.Context, k string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[k]; ok && e.bookingID == 0 {
		delete(s.entries, k)
	}
	return nil
}
