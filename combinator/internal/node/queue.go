package node

import "github.com/obsidianstack/combinator/pkg/types"

// Queue is an unbounded FIFO of samples. Producers must put samples in
// non-decreasing time order; this is not checked.
type Queue struct {
	buf  []types.Sample
	head int
}

// Put appends s to the back of the queue.
func (q *Queue) Put(s types.Sample) {
	q.buf = append(q.buf, s)
}

// HasInput reports whether the queue holds at least one sample.
func (q *Queue) HasInput() bool {
	return q.head < len(q.buf)
}

// Peek returns the front sample.
func (q *Queue) Peek() types.Sample {
	if !q.HasInput() {
		panic("node: peek on empty queue")
	}
	return q.buf[q.head]
}

// Discard drops the front sample.
func (q *Queue) Discard() {
	if !q.HasInput() {
		panic("node: discard on empty queue")
	}
	q.head++

	// Reclaim the consumed prefix once it dominates the backing array.
	switch {
	case q.head == len(q.buf):
		q.buf = q.buf[:0]
		q.head = 0
	case q.head >= 64 && q.head*2 >= len(q.buf):
		n := copy(q.buf, q.buf[q.head:])
		q.buf = q.buf[:n]
		q.head = 0
	}
}

// Len returns the number of queued samples.
func (q *Queue) Len() int {
	return len(q.buf) - q.head
}

// Drain removes and returns all queued samples in FIFO order.
func (q *Queue) Drain() []types.Sample {
	if !q.HasInput() {
		return nil
	}
	out := make([]types.Sample, q.Len())
	copy(out, q.buf[q.head:])
	q.buf = q.buf[:0]
	q.head = 0
	return out
}
