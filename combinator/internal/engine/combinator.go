package engine

import (
	"log/slog"
	"sync"

	"github.com/obsidianstack/combinator/combinator/internal/config"
	"github.com/obsidianstack/combinator/pkg/types"
)

// Metadata is the metadata store as seen by the Combinator.
type Metadata interface {
	MetadataStore
	Declare(name string, attrs map[string]any)
	Forget(names ...string)
}

// MetricInfo describes one registered combined metric.
type MetricInfo struct {
	Name       string   `json:"name"`
	Expression string   `json:"expression"`
	Inputs     []string `json:"inputs"`
	Pending    int      `json:"pending"`
	ChunkSize  int      `json:"chunk_size"`
	Generation uint64   `json:"generation"`
}

// Combinator is the serialized entry point to the registry. Every exported
// method holds the same mutex, so samples, reconfigurations and rate
// resolution never interleave.
//
// Samples emitted by a combined metric that is itself an input of other
// combined metrics are fed back into those metrics within the same OnData
// call.
type Combinator struct {
	mu   sync.Mutex
	reg  *Registry
	md   Metadata
	sink Sink
}

// New returns a Combinator with an empty registry.
func New(md Metadata, sink Sink) *Combinator {
	return &Combinator{reg: NewRegistry(), md: md, sink: sink}
}

// Reconfigure applies a new set of definitions. Declared metadata of every
// registered metric is published to the metadata store; rates of removed
// or redefined metrics are forgotten until the next ResolveRates.
func (c *Combinator) Reconfigure(defs map[string]config.CombinedMetric) (Change, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	change, err := c.reg.Reconfigure(defs)
	c.md.Forget(change.Removed...)
	c.md.Forget(change.Replaced...)
	for _, name := range c.reg.Names() {
		e := c.reg.entries[name]
		c.md.Declare(name, e.Declared)
	}

	slog.Info("engine: reconfigured",
		"generation", c.reg.Generation(),
		"kept", len(change.Kept),
		"added", len(change.Added),
		"replaced", len(change.Replaced),
		"removed", len(change.Removed),
		"failed", len(change.Failed))
	return change, err
}

type batch struct {
	name    string
	samples []types.Sample
	depth   int
}

// OnData routes samples of the named input through the registry and returns
// the number of samples emitted, feedback included.
func (c *Combinator) OnData(name string, samples []types.Sample) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	emitted := 0
	work := []batch{{name: name, samples: samples}}
	for len(work) > 0 {
		b := work[0]
		work = work[1:]

		fb := &feedback{sink: c.sink, reg: c.reg}
		emitted += c.reg.OnData(b.name, b.samples, fb)

		for _, metric := range fb.order {
			if b.depth >= c.reg.Len() {
				feedbackDropped.Inc()
				slog.Warn("engine: dependency chain too deep, not feeding back",
					"metric", metric, "depth", b.depth)
				continue
			}
			work = append(work, batch{name: metric, samples: fb.out[metric], depth: b.depth + 1})
		}
	}
	return emitted
}

// feedback forwards to the sink and keeps the samples of metrics that
// other registered metrics consume.
type feedback struct {
	sink  Sink
	reg   *Registry
	out   map[string][]types.Sample
	order []string
}

func (f *feedback) Send(metric string, s types.Sample) {
	f.sink.Send(metric, s)
	if len(f.reg.Dependents(metric)) == 0 {
		return
	}
	if f.out == nil {
		f.out = make(map[string][]types.Sample)
	}
	if _, seen := f.out[metric]; !seen {
		f.order = append(f.order, metric)
	}
	f.out[metric] = append(f.out[metric], s)
}

// ResolveRates runs rate resolution over the current registry.
func (c *Combinator) ResolveRates() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ResolveRates(c.reg, c.md)
}

// DependencyNames returns every metric name the registered trees consume.
func (c *Combinator) DependencyNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.DependencyNames()
}

// ChunkSizes returns the configured chunk size per registered metric.
func (c *Combinator) ChunkSizes() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	sizes := make(map[string]int, c.reg.Len())
	for name, e := range c.reg.entries {
		sizes[name] = e.ChunkSize
	}
	return sizes
}

// Metrics describes the registered metrics, sorted by name.
func (c *Combinator) Metrics() []MetricInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MetricInfo, 0, c.reg.Len())
	for _, name := range c.reg.Names() {
		out = append(out, c.info(c.reg.entries[name]))
	}
	return out
}

// Metric describes one registered metric.
func (c *Combinator) Metric(name string) (MetricInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.reg.entries[name]
	if !ok {
		return MetricInfo{}, false
	}
	return c.info(e), true
}

func (c *Combinator) info(e *Entry) MetricInfo {
	return MetricInfo{
		Name:       e.Name,
		Expression: e.Tree.String(),
		Inputs:     sortedKeys(e.Tree.Inputs()),
		Pending:    e.Tree.Pending(),
		ChunkSize:  e.ChunkSize,
		Generation: e.Generation,
	}
}
