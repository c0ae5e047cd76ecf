package engine

import (
	"github.com/obsidianstack/combinator/pkg/types"
)

// Sink receives the samples emitted by combined metrics.
type Sink interface {
	Send(metric string, s types.Sample)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(metric string, s types.Sample)

// Send calls f.
func (f SinkFunc) Send(metric string, s types.Sample) { f(metric, s) }

// OnData feeds a batch of samples for the named input into every tree that
// consumes it and sends each tree's output to sink in emission order. Trees
// that do not consume name are not touched. It returns the number of
// samples emitted.
func (r *Registry) OnData(name string, batch []types.Sample, sink Sink) int {
	if len(batch) == 0 {
		return 0
	}
	emitted := 0
	for _, e := range r.byInput[name] {
		for _, leaf := range e.Tree.Inputs()[name] {
			for _, s := range batch {
				leaf.Put(s)
			}
		}
		e.Tree.Update()
		for _, s := range e.Tree.Drain() {
			sink.Send(e.Name, s)
			emitted++
		}
	}
	samplesIn.Add(float64(len(batch)))
	samplesOut.Add(float64(emitted))
	return emitted
}
