// Package engine evaluates combined metrics.
//
// A Registry holds one parsed expression tree per combined metric and a
// reverse index from input metric name to the trees consuming it. OnData
// routes a batch of samples for one input into every dependent tree and
// forwards whatever the trees emit to a Sink. Reconfigure reconciles the
// registry with a new set of definitions, keeping the buffered state of
// every tree whose expression did not change. ResolveRates derives the
// sampling rate of every combined metric from the rates of its inputs.
//
// Registry and the resolver are not safe for concurrent use. Combinator
// wraps them behind a single mutex and is what the rest of the process
// talks to.
package engine
