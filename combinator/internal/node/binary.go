package node

import (
	"math"

	"github.com/obsidianstack/combinator/pkg/types"
)

// Op is a two-operand arithmetic operator.
type Op int

const (
	OpAdd Op = iota
	OpSubtract
	OpMultiply
	OpDivide
	OpMin
	OpMax
)

// String returns the operator as written in expressions.
func (op Op) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSubtract:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	case OpMin:
		return "min"
	case OpMax:
		return "max"
	}
	return "?"
}

// Apply combines a and b.
//
// Add, min and max treat NaN as "no value": a sensor that is up but cannot
// read its device reports NaN, and the measured quantity is then assumed
// absent. With exactly one NaN operand the other operand is returned, with
// two the result is NaN. Subtract, multiply and divide follow IEEE-754
// unchanged, including ±Inf and NaN on division by zero.
func (op Op) Apply(a, b float64) float64 {
	switch op {
	case OpAdd:
		return absorbNaN(a, b, func(x, y float64) float64 { return x + y })
	case OpSubtract:
		return a - b
	case OpMultiply:
		return a * b
	case OpDivide:
		return a / b
	case OpMin:
		return absorbNaN(a, b, math.Min)
	case OpMax:
		return absorbNaN(a, b, math.Max)
	}
	panic("node: unknown binary op")
}

func absorbNaN(a, b float64, f func(x, y float64) float64) float64 {
	if math.IsNaN(a) {
		return b
	}
	if math.IsNaN(b) {
		return a
	}
	return f(a, b)
}

// Binary merge-joins two children. Each step consumes the child (or both
// children) holding the earliest sample and emits the combined value at that
// time; the loop stops as soon as either child is empty.
type Binary struct {
	output
	op    Op
	left  Source
	right Source
}

// NewBinary takes ownership of left and right.
func NewBinary(op Op, left, right Source) *Binary {
	return &Binary{op: op, left: left, right: right}
}

func (b *Binary) Op() Op { return b.op }

func (b *Binary) Left() Source { return b.left }

func (b *Binary) Right() Source { return b.right }

func (b *Binary) Update() {
	b.left.Update()
	b.right.Update()

	for b.left.HasInput() && b.right.HasInput() {
		l := b.left.Peek()
		r := b.right.Peek()

		var t types.Time
		switch {
		case l.Time < r.Time:
			t = l.Time
			b.left.Discard()
		case r.Time < l.Time:
			t = r.Time
			b.right.Discard()
		default:
			t = l.Time
			b.left.Discard()
			b.right.Discard()
		}

		b.out.Put(types.Sample{Time: t, Value: b.op.Apply(l.Value, r.Value)})
	}
}
