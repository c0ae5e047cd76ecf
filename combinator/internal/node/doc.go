// Package node implements the evaluation tree of a combined metric.
//
// Every node is a Source: something that may have a sample ready (HasInput),
// exposes the oldest one (Peek) and drops it (Discard). Leaves are constants,
// metric inputs fed by the transport, and hold inputs that keep their last
// value. Interior nodes own their children and an output queue:
//
//   - Binary merges two children, emitting at the earliest pending time.
//   - Variadic merges N children behind an all-ready barrier; constants
//     and hold inputs join every step.
//   - Throttle drops samples that arrive within a cooldown of the last one.
//
// Update recomputes a node post-order: children first, then the node's merge
// loop runs until one required child runs dry. Nothing in this package blocks
// or spawns goroutines; a tree must be driven by a single caller.
//
// Peek or Discard on a source without input is a contract violation and
// panics.
package node
