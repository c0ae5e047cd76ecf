package node

import (
	"github.com/obsidianstack/combinator/pkg/types"
)

// Source is the read side shared by every node kind. The set of
// implementations is closed to this package.
type Source interface {
	// HasInput reports whether Peek and Discard may be called.
	HasInput() bool
	// Peek returns the oldest pending sample without removing it.
	Peek() types.Sample
	// Discard removes the sample returned by Peek.
	Discard()
	// QueueLength reports buffered samples, for diagnostics only.
	QueueLength() int
	// Update recomputes the node from its children.
	Update()

	sealed()
}

// Input is a leaf fed from an external metric stream.
type Input interface {
	Source
	Name() string
	Put(types.Sample)
}

// Inputs maps an external metric name to every leaf consuming it, in
// depth-first order of appearance.
type Inputs map[string][]Input

// Names returns the metric names in the index.
func (in Inputs) Names() []string {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	return names
}

// CollectInputs walks the tree depth-first and groups its leaves by name.
func CollectInputs(root Source) Inputs {
	inputs := make(Inputs)
	collect(root, inputs)
	return inputs
}

func collect(src Source, inputs Inputs) {
	switch n := src.(type) {
	case *Constant:
	case *Metric:
		inputs[n.name] = append(inputs[n.name], n)
	case *Hold:
		inputs[n.name] = append(inputs[n.name], n)
	case *Binary:
		collect(n.left, inputs)
		collect(n.right, inputs)
	case *Variadic:
		for _, c := range n.children {
			collect(c, inputs)
		}
	case *Throttle:
		collect(n.child, inputs)
	default:
		panic("node: unknown source type")
	}
}

// AlwaysReady reports whether src never runs out of input on its own.
// Such a source cannot terminate a merge loop.
func AlwaysReady(src Source) bool {
	switch src.(type) {
	case *Constant, *Hold:
		return true
	}
	return false
}

// Constant is a leaf with a fixed value. It is always ready, reports its
// value at Horizon, and Discard does nothing, so it never forces a merge
// forward.
type Constant struct {
	value float64
}

// NewConstant returns a constant leaf.
func NewConstant(v float64) *Constant {
	return &Constant{value: v}
}

// Value returns the constant.
func (c *Constant) Value() float64 { return c.value }

func (c *Constant) HasInput() bool { return true }

func (c *Constant) Peek() types.Sample {
	return types.Sample{Time: types.Horizon, Value: c.value}
}

func (c *Constant) Discard() {}

func (c *Constant) QueueLength() int { return 1 }

func (c *Constant) Update() {}

func (c *Constant) sealed() {}

// Metric is a plain FIFO leaf bound to an external metric name.
type Metric struct {
	name  string
	queue Queue
}

// NewMetric returns an empty leaf for the named metric.
func NewMetric(name string) *Metric {
	return &Metric{name: name}
}

func (m *Metric) Name() string { return m.name }

func (m *Metric) Put(s types.Sample) { m.queue.Put(s) }

func (m *Metric) HasInput() bool { return m.queue.HasInput() }

func (m *Metric) Peek() types.Sample { return m.queue.Peek() }

func (m *Metric) Discard() { m.queue.Discard() }

func (m *Metric) QueueLength() int { return m.queue.Len() }

func (m *Metric) Update() {}

func (m *Metric) sealed() {}

// Hold is a metric leaf with one step of lookahead that keeps the last
// consumed value. It starts out holding 0 at Genesis and is always ready:
// while samples are queued it behaves like a FIFO whose Discard moves the
// front into the held slot; once the queue is empty it behaves like a
// Constant carrying the held value.
type Hold struct {
	name  string
	queue Queue
	held  types.Sample
}

// NewHold returns a hold leaf for the named metric.
func NewHold(name string) *Hold {
	return &Hold{name: name, held: types.Sample{Time: types.Genesis}}
}

func (h *Hold) Name() string { return h.name }

func (h *Hold) Put(s types.Sample) { h.queue.Put(s) }

// Held returns the last consumed sample.
func (h *Hold) Held() types.Sample { return h.held }

func (h *Hold) HasInput() bool { return true }

func (h *Hold) Peek() types.Sample {
	if h.queue.HasInput() {
		return h.queue.Peek()
	}
	return types.Sample{Time: types.Horizon, Value: h.held.Value}
}

func (h *Hold) Discard() {
	if !h.queue.HasInput() {
		return
	}
	h.held = h.queue.Peek()
	h.queue.Discard()
}

func (h *Hold) QueueLength() int { return 1 + h.queue.Len() }

func (h *Hold) Update() {}

func (h *Hold) sealed() {}

// output is the queue every interior node exposes as its Source side.
type output struct {
	out Queue
}

func (o *output) HasInput() bool { return o.out.HasInput() }

func (o *output) Peek() types.Sample { return o.out.Peek() }

func (o *output) Discard() { o.out.Discard() }

func (o *output) QueueLength() int { return o.out.Len() }

func (o *output) sealed() {}
