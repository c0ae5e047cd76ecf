package engine

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/obsidianstack/combinator/combinator/internal/config"
	"github.com/obsidianstack/combinator/combinator/internal/expr"
)

// Entry is one registered combined metric.
type Entry struct {
	Name        string
	Tree        *expr.Tree
	Fingerprint []byte
	ChunkSize   int
	Declared    map[string]any

	// Generation is the registry generation that built Tree.
	Generation uint64
}

// DeclaredRate returns the rate set explicitly in the metric's metadata.
func (e *Entry) DeclaredRate() (float64, bool) {
	return config.CombinedMetric{Metadata: e.Declared}.DeclaredRate()
}

// Change summarises one Reconfigure call. Each list is sorted.
type Change struct {
	Kept     []string // same expression, buffered state preserved
	Added    []string
	Replaced []string // expression changed, state discarded
	Removed  []string // no longer registered, including failed redefinitions
	Failed   []string // definitions that could not be parsed
}

// Registry maps combined-metric names to their trees.
type Registry struct {
	entries    map[string]*Entry
	byInput    map[string][]*Entry
	generation uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		byInput: make(map[string][]*Entry),
	}
}

// Reconfigure replaces the registered metrics with defs. A metric whose
// canonical expression is byte-identical to the registered one keeps its
// tree; every other metric gets a fresh tree. A definition that fails to
// parse is skipped without affecting the others, and its error is part of
// the joined error returned.
func (r *Registry) Reconfigure(defs map[string]config.CombinedMetric) (Change, error) {
	r.generation++

	var (
		change Change
		errs   []error
	)
	next := make(map[string]*Entry, len(defs))

	for _, name := range sortedKeys(defs) {
		def := defs[name]
		prev, existed := r.entries[name]

		if def.Expression == nil {
			errs = append(errs, fmt.Errorf("engine: metric %q: missing expression", name))
			change.Failed = append(change.Failed, name)
			continue
		}
		fp, err := def.Fingerprint()
		if err != nil {
			errs = append(errs, fmt.Errorf("engine: metric %q: %w", name, err))
			change.Failed = append(change.Failed, name)
			continue
		}

		if existed && bytes.Equal(prev.Fingerprint, fp) {
			kept := *prev
			kept.ChunkSize = def.ChunkSize
			kept.Declared = def.DeclaredMetadata()
			next[name] = &kept
			change.Kept = append(change.Kept, name)
			continue
		}

		tree, err := expr.Parse(def.Expression)
		if err != nil {
			slog.Error("engine: invalid expression, skipping metric",
				"metric", name, "err", err)
			errs = append(errs, fmt.Errorf("engine: metric %q: %w", name, err))
			change.Failed = append(change.Failed, name)
			parseFailures.Inc()
			continue
		}
		next[name] = &Entry{
			Name:        name,
			Tree:        tree,
			Fingerprint: fp,
			ChunkSize:   def.ChunkSize,
			Declared:    def.DeclaredMetadata(),
			Generation:  r.generation,
		}
		if existed {
			change.Replaced = append(change.Replaced, name)
		} else {
			change.Added = append(change.Added, name)
		}
	}

	// A registered metric whose new definition failed is dropped as well,
	// so it is listed in both Failed and Removed.
	for _, name := range sortedKeys(r.entries) {
		if _, ok := next[name]; !ok {
			change.Removed = append(change.Removed, name)
		}
	}

	r.entries = next
	r.reindex()
	registeredTrees.Set(float64(len(next)))
	return change, errors.Join(errs...)
}

// reindex rebuilds the reverse index from input name to entries. Entries
// are ordered by name so evaluation order is deterministic.
func (r *Registry) reindex() {
	r.byInput = make(map[string][]*Entry)
	for _, name := range sortedKeys(r.entries) {
		e := r.entries[name]
		for input := range e.Tree.Inputs() {
			r.byInput[input] = append(r.byInput[input], e)
		}
	}
}

// Generation returns the number of Reconfigure calls so far.
func (r *Registry) Generation() uint64 { return r.generation }

// Len returns the number of registered metrics.
func (r *Registry) Len() int { return len(r.entries) }

// Get returns the entry for name.
func (r *Registry) Get(name string) (*Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Names returns the registered metric names, sorted.
func (r *Registry) Names() []string { return sortedKeys(r.entries) }

// Has reports whether name is a registered combined metric.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Dependents returns the entries consuming the named input.
func (r *Registry) Dependents(input string) []*Entry { return r.byInput[input] }

// DependencyNames returns every input name consumed by any registered
// metric, sorted.
func (r *Registry) DependencyNames() []string { return sortedKeys(r.byInput) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
