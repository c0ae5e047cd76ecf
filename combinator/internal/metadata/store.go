package metadata

import (
	"maps"
	"sort"
	"sync"
)

// Entry is the metadata known for one metric.
type Entry struct {
	Name     string         `json:"name"`
	Rate     float64        `json:"rate,omitempty"`
	HasRate  bool           `json:"has_rate"`
	Declared map[string]any `json:"declared,omitempty"`
}

// Store is a thread-safe metadata map keyed by metric name.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string]*Entry)}
}

// Rate returns the sampling rate of name and whether one is known.
func (s *Store) Rate(name string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[name]
	if !ok || !e.HasRate {
		return 0, false
	}
	return e.Rate, true
}

// SetRate records the sampling rate of name.
func (s *Store) SetRate(name string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(name)
	e.Rate = rate
	e.HasRate = true
}

// Declare replaces the declared attributes of name. A "rate" attribute is
// not applied here; the resolver publishes it through SetRate.
func (s *Store) Declare(name string, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(name).Declared = maps.Clone(attrs)
}

// Forget drops everything known about the given metrics. Used when combined
// metrics are removed or redefined so stale rates are not reused.
func (s *Store) Forget(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		delete(s.data, n)
	}
}

// Get returns a copy of the entry for name.
func (s *Store) Get(name string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[name]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(e), true
}

// List returns copies of all entries sorted by name.
func (s *Store) List() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.data))
	for _, e := range s.data {
		out = append(out, copyEntry(e))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// entry returns the entry for name, creating it. Caller holds mu.
func (s *Store) entry(name string) *Entry {
	e, ok := s.data[name]
	if !ok {
		e = &Entry{Name: name}
		s.data[name] = e
	}
	return e
}

func copyEntry(e *Entry) Entry {
	c := *e
	c.Declared = maps.Clone(e.Declared)
	return c
}
