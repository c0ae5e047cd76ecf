package node

import (
	"fmt"
	"math"

	"github.com/obsidianstack/combinator/pkg/types"
)

// Aggregate folds the values of a Variadic node.
type Aggregate int

const (
	AggSum Aggregate = iota
	AggMin
	AggMax
)

func (a Aggregate) String() string {
	switch a {
	case AggSum:
		return "sum"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	}
	return "?"
}

// op returns the binary operator the aggregate folds with. All three absorb
// NaN, so the fold is NaN only when every value is NaN.
func (a Aggregate) op() Op {
	switch a {
	case AggSum:
		return OpAdd
	case AggMin:
		return OpMin
	case AggMax:
		return OpMax
	}
	panic("node: unknown aggregate")
}

// Fold aggregates values. An empty slice folds to NaN.
func (a Aggregate) Fold(values []float64) float64 {
	op := a.op()
	acc := math.NaN()
	for _, v := range values {
		acc = op.Apply(acc, v)
	}
	return acc
}

// Variadic merges N children behind an all-ready barrier: nothing is emitted
// until every child has a sample, so a silent child stalls the aggregate.
// Each step emits at the earliest pending time, consuming exactly the
// children whose sample carries that time. Constants and hold inputs are
// folded into every step; a hold contributes its next queued value or,
// when drained, the value it keeps.
type Variadic struct {
	output
	agg      Aggregate
	children []Source

	times  []types.Time
	values []float64
}

// NewVariadic takes ownership of children, which must not be empty.
func NewVariadic(agg Aggregate, children []Source) *Variadic {
	if len(children) == 0 {
		panic("node: variadic node without inputs")
	}
	return &Variadic{
		agg:      agg,
		children: children,
		times:    make([]types.Time, len(children)),
		values:   make([]float64, 0, len(children)),
	}
}

func (v *Variadic) Aggregate() Aggregate { return v.agg }

func (v *Variadic) Children() []Source { return v.children }

func (v *Variadic) Update() {
	for _, c := range v.children {
		c.Update()
	}

	for v.allReady() {
		t := types.Horizon
		for i, c := range v.children {
			v.times[i] = c.Peek().Time
			if v.times[i] < t {
				t = v.times[i]
			}
		}

		v.values = v.values[:0]
		for i, c := range v.children {
			if v.times[i] != t {
				if v.times[i] < t {
					panic(fmt.Sprintf("node: variadic input %d at %s precedes merge time %s", i, v.times[i], t))
				}
				if AlwaysReady(c) {
					v.values = append(v.values, c.Peek().Value)
				}
				continue
			}
			v.values = append(v.values, c.Peek().Value)
			c.Discard()
		}

		v.out.Put(types.Sample{Time: t, Value: v.agg.Fold(v.values)})
	}
}

func (v *Variadic) allReady() bool {
	for _, c := range v.children {
		if !c.HasInput() {
			return false
		}
	}
	return true
}
