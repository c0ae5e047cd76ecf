package sink

import (
	"sort"
	"sync"

	"github.com/obsidianstack/combinator/pkg/types"
)

// Publisher receives chunks of samples for one metric, oldest first.
type Publisher interface {
	Publish(metric string, samples []types.Sample)
}

// Chunker buffers samples per metric and publishes them in chunks.
// All methods are safe for concurrent use.
type Chunker struct {
	mu    sync.Mutex
	sizes map[string]int
	buf   map[string][]types.Sample
	pubs  []Publisher
}

// NewChunker returns a Chunker publishing to pubs. Until Configure is
// called every metric uses a chunk size of 1.
func NewChunker(pubs ...Publisher) *Chunker {
	return &Chunker{
		sizes: make(map[string]int),
		buf:   make(map[string][]types.Sample),
		pubs:  pubs,
	}
}

// Configure sets the chunk size per metric. Buffers that reach their new
// size are published; buffers of metrics no longer listed are published
// and dropped.
func (c *Chunker) Configure(sizes map[string]int) {
	c.mu.Lock()
	c.sizes = make(map[string]int, len(sizes))
	for name, n := range sizes {
		c.sizes[name] = n
	}
	var ready []chunk
	for _, name := range sortedNames(c.buf) {
		_, listed := c.sizes[name]
		if !listed || len(c.buf[name]) >= c.size(name) {
			ready = append(ready, c.take(name))
		}
	}
	c.mu.Unlock()

	c.publish(ready)
}

// Send implements engine.Sink.
func (c *Chunker) Send(metric string, s types.Sample) {
	c.mu.Lock()
	c.buf[metric] = append(c.buf[metric], s)
	if len(c.buf[metric]) < c.size(metric) {
		c.mu.Unlock()
		return
	}
	ready := c.take(metric)
	c.mu.Unlock()

	c.publish([]chunk{ready})
}

// Flush publishes every buffered sample regardless of chunk size.
func (c *Chunker) Flush() {
	c.mu.Lock()
	ready := make([]chunk, 0, len(c.buf))
	for _, name := range sortedNames(c.buf) {
		ready = append(ready, c.take(name))
	}
	c.mu.Unlock()

	c.publish(ready)
}

// Buffered returns the number of samples waiting for metric.
func (c *Chunker) Buffered(metric string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf[metric])
}

type chunk struct {
	metric  string
	samples []types.Sample
}

// size returns the chunk size of metric. Caller holds mu.
func (c *Chunker) size(metric string) int {
	if n := c.sizes[metric]; n > 0 {
		return n
	}
	return 1
}

// take removes the buffer of metric. Caller holds mu.
func (c *Chunker) take(metric string) chunk {
	ch := chunk{metric: metric, samples: c.buf[metric]}
	delete(c.buf, metric)
	return ch
}

func (c *Chunker) publish(chunks []chunk) {
	for _, ch := range chunks {
		if len(ch.samples) == 0 {
			continue
		}
		chunksPublished.Inc()
		for _, p := range c.pubs {
			p.Publish(ch.metric, ch.samples)
		}
	}
}

func sortedNames(m map[string][]types.Sample) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
