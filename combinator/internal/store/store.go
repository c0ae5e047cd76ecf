package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/combinator/pkg/types"
)

// Entry is the latest sample of a metric together with the time it was
// received.
type Entry struct {
	Metric    string
	Sample    types.Sample
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory store, keyed by metric name.
// A background goroutine (Run) periodically evicts entries that have not
// been updated within the configured TTL.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// TTL returns the configured time-to-live.
func (s *Store) TTL() time.Duration { return s.ttl }

// Put stores or replaces the latest sample of metric.
func (s *Store) Put(metric string, sample types.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[metric] = &Entry{
		Metric:    metric,
		Sample:    sample,
		UpdatedAt: s.now(),
	}
}

// Publish implements sink.Publisher by keeping the newest sample of the chunk.
func (s *Store) Publish(metric string, samples []types.Sample) {
	if len(samples) == 0 {
		return
	}
	s.Put(metric, samples[len(samples)-1])
}

// Get returns the live entry for metric. Entries older than the TTL are
// reported as absent even before they are evicted.
func (s *Store) Get(metric string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[metric]
	if !ok || !e.UpdatedAt.After(s.now().Add(-s.ttl)) {
		return Entry{}, false
	}
	return *e, true
}

// List returns all live entries sorted by metric name.
func (s *Store) List() []Entry {
	s.mu.RLock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]Entry, 0, len(s.data))
	for _, e := range s.data {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, *e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Delete removes the given metrics, e.g. after they were dropped from the
// configuration.
func (s *Store) Delete(metrics ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range metrics {
		delete(s.data, m)
	}
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for name, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, name)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// interval (minimum 1 second). Run blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale samples", "count", n)
			}
		}
	}
}
