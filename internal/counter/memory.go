package counter

import (
	"context"
	"sync"
	"time"

	"github.com/veridex/tokenmeter/internal/clock"
	directorydomain "github.com/veridex/tokenmeter/internal/directory/domain"
)

type memoryEntry struct {
	agg       Aggregate
	expiresAt time.Time
}

// MemoryStore keeps window counters in process memory. It mirrors the redis
// store semantics (TTL fixed at first write, zero aggregate after expiry)
// and backs redis-less deployments and tests.
type MemoryStore struct {
	clk clock.Clock

	mu      sync.Mutex
	entries map[string]*memoryEntry
	grace   time.Duration
}

// NewMemoryStore creates an in-process counter store.
func NewMemoryStore(clk clock.Clock, grace time.Duration) *MemoryStore {
	return &MemoryStore{
		clk:     clk,
		entries: make(map[string]*memoryEntry),
		grace:   grace,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Record(ctx context.Context, id directorydomain.ResolvedIdentity, usage TokenUsage) error {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range Windows() {
		key := Key(id, w)
		entry, ok := s.entries[key]
		if !ok || !entry.expiresAt.After(now) {
			entry = &memoryEntry{expiresAt: now.Add(w.TTL(s.grace))}
			s.entries[key] = entry
		}
		entry.agg.TotalTokens += usage.TotalTokens
		entry.agg.RequestCount++
	}
	return nil
}

func (s *MemoryStore) Aggregate(ctx context.Context, id directorydomain.ResolvedIdentity, w Window) (Aggregate, error) {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[Key(id, w)]
	if !ok || !entry.expiresAt.After(now) {
		return Aggregate{}, nil
	}
	return entry.agg, nil
}

func (s *MemoryStore) Snapshot(ctx context.Context, id directorydomain.ResolvedIdentity) (Snapshot, error) {
	minute, _ := s.Aggregate(ctx, id, WindowMinute)
	hour, _ := s.Aggregate(ctx, id, WindowHour)
	day, _ := s.Aggregate(ctx, id, WindowDay)
	return Snapshot{Minute: minute, Hour: hour, Day: day}, nil
}
