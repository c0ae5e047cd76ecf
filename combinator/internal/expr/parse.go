package expr

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/obsidianstack/combinator/combinator/internal/node"
	"github.com/obsidianstack/combinator/pkg/types"
)

// ErrNeverBlocks is the cause of a ParseError for trees that would keep
// producing output without any external input.
var ErrNeverBlocks = errors.New("expression never waits for input")

// Tree is a parsed combined-metric expression together with its dependency
// index. The structure is fixed after Parse; only queued samples change.
type Tree struct {
	root   node.Source
	inputs node.Inputs
	text   string
}

// Parse builds a tree from a decoded expression document.
func Parse(doc any) (*Tree, error) {
	root, err := parseSource(doc, "", true)
	if err != nil {
		return nil, err
	}
	if node.AlwaysReady(root) {
		return nil, &ParseError{Expr: compact(doc), Err: fmt.Errorf("%w: root is always ready", ErrNeverBlocks)}
	}
	return &Tree{
		root:   root,
		inputs: node.CollectInputs(root),
		text:   Display(root),
	}, nil
}

// Render parses doc without the input guard and returns its display form.
// It is meant for diagnostics of documents that may not be valid metrics.
func Render(doc any) (string, error) {
	root, err := parseSource(doc, "", false)
	if err != nil {
		return "", err
	}
	return Display(root), nil
}

// Root returns the root node.
func (t *Tree) Root() node.Source { return t.root }

// Inputs returns the dependency index. Callers must not modify it.
func (t *Tree) Inputs() node.Inputs { return t.inputs }

// DependsOn reports whether the tree consumes the named metric.
func (t *Tree) DependsOn(name string) bool {
	_, ok := t.inputs[name]
	return ok
}

// Update recomputes the tree.
func (t *Tree) Update() { t.root.Update() }

// Drain removes every sample waiting at the root, oldest first.
func (t *Tree) Drain() []types.Sample {
	var out []types.Sample
	for t.root.HasInput() {
		out = append(out, t.root.Peek())
		t.root.Discard()
	}
	return out
}

// Pending returns the number of samples buffered in the tree's leaves.
func (t *Tree) Pending() int {
	var n int
	for _, leaves := range t.inputs {
		for _, in := range leaves {
			if h, ok := in.(*node.Hold); ok {
				n += h.QueueLength() - 1
				continue
			}
			n += in.QueueLength()
		}
	}
	return n
}

func (t *Tree) String() string { return t.text }

func parseSource(doc any, path string, guard bool) (node.Source, error) {
	switch v := doc.(type) {
	case int:
		return node.NewConstant(float64(v)), nil
	case int64:
		return node.NewConstant(float64(v)), nil
	case uint64:
		return node.NewConstant(float64(v)), nil
	case float64:
		return node.NewConstant(v), nil
	case string:
		if v == "" {
			return nil, errorf(path, doc, "empty metric name")
		}
		return node.NewMetric(v), nil
	case map[string]any:
		return parseNode(v, path, guard)
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, val := range v {
			ks, ok := k.(string)
			if !ok {
				return nil, errorf(path, doc, "non-string key %v", k)
			}
			m[ks] = val
		}
		return parseNode(m, path, guard)
	default:
		return nil, errorf(path, doc, "invalid input of type %T: want number, string or object", doc)
	}
}

func parseNode(m map[string]any, path string, guard bool) (node.Source, error) {
	raw, ok := m["operation"]
	if !ok {
		return nil, errorf(path, m, "missing operation")
	}
	op, ok := raw.(string)
	if !ok {
		return nil, errorf(path, m, "operation must be a string, got %T", raw)
	}

	switch op {
	case "+":
		return parseBinary(node.OpAdd, m, path, guard)
	case "-":
		return parseBinary(node.OpSubtract, m, path, guard)
	case "*":
		return parseBinary(node.OpMultiply, m, path, guard)
	case "/":
		return parseBinary(node.OpDivide, m, path, guard)
	case "sum":
		return parseVariadic(node.AggSum, m, path, guard)
	case "min":
		if _, ok := m["inputs"]; !ok && hasOperands(m) {
			return parseBinary(node.OpMin, m, path, guard)
		}
		return parseVariadic(node.AggMin, m, path, guard)
	case "max":
		if _, ok := m["inputs"]; !ok && hasOperands(m) {
			return parseBinary(node.OpMax, m, path, guard)
		}
		return parseVariadic(node.AggMax, m, path, guard)
	case "throttle":
		return parseThrottle(m, path, guard)
	case "hold":
		return parseHold(m, path)
	default:
		return nil, errorf(path, m, "unknown operation %q", op)
	}
}

func hasOperands(m map[string]any) bool {
	_, l := m["left"]
	_, r := m["right"]
	return l && r
}

func parseBinary(op node.Op, m map[string]any, path string, guard bool) (node.Source, error) {
	ldoc, ok := m["left"]
	if !ok {
		return nil, errorf(path, m, "operation %q requires left", op)
	}
	rdoc, ok := m["right"]
	if !ok {
		return nil, errorf(path, m, "operation %q requires right", op)
	}
	left, err := parseSource(ldoc, join(path, "left"), guard)
	if err != nil {
		return nil, err
	}
	right, err := parseSource(rdoc, join(path, "right"), guard)
	if err != nil {
		return nil, err
	}
	if guard && node.AlwaysReady(left) && node.AlwaysReady(right) {
		return nil, &ParseError{Path: path, Expr: compact(m),
			Err: fmt.Errorf("%w: both operands of %q are always ready", ErrNeverBlocks, op)}
	}
	return node.NewBinary(op, left, right), nil
}

func parseVariadic(agg node.Aggregate, m map[string]any, path string, guard bool) (node.Source, error) {
	raw, ok := m["inputs"]
	if !ok {
		return nil, errorf(path, m, "operation %q requires inputs", agg)
	}
	docs, ok := raw.([]any)
	if !ok {
		return nil, errorf(path, m, "inputs must be a list, got %T", raw)
	}
	if len(docs) == 0 {
		return nil, errorf(path, m, "empty inputs")
	}

	children := make([]node.Source, 0, len(docs))
	blocking := false
	for i, d := range docs {
		child, err := parseSource(d, index(join(path, "inputs"), i), guard)
		if err != nil {
			return nil, err
		}
		blocking = blocking || !node.AlwaysReady(child)
		children = append(children, child)
	}
	if guard && !blocking {
		return nil, &ParseError{Path: path, Expr: compact(m),
			Err: fmt.Errorf("%w: every input of %q is always ready", ErrNeverBlocks, agg)}
	}
	return node.NewVariadic(agg, children), nil
}

func parseThrottle(m map[string]any, path string, guard bool) (node.Source, error) {
	idoc, ok := m["input"]
	if !ok {
		return nil, errorf(path, m, "operation \"throttle\" requires input")
	}
	craw, ok := m["cooldown_period"]
	if !ok {
		return nil, errorf(path, m, "operation \"throttle\" requires cooldown_period")
	}
	cooldown, err := parseCooldown(craw)
	if err != nil {
		return nil, errorf(join(path, "cooldown_period"), craw, "%v", err)
	}
	child, err := parseSource(idoc, join(path, "input"), guard)
	if err != nil {
		return nil, err
	}
	if guard && node.AlwaysReady(child) {
		return nil, &ParseError{Path: path, Expr: compact(m),
			Err: fmt.Errorf("%w: throttle input is always ready", ErrNeverBlocks)}
	}
	return node.NewThrottle(child, cooldown), nil
}

func parseHold(m map[string]any, path string) (node.Source, error) {
	raw, ok := m["input"]
	if !ok {
		return nil, errorf(path, m, "operation \"hold\" requires input")
	}
	name, ok := raw.(string)
	if !ok || name == "" {
		return nil, errorf(join(path, "input"), raw, "hold input must be a metric name")
	}
	return node.NewHold(name), nil
}

// parseCooldown accepts a Go duration string, a number of seconds, or a
// numeric string of seconds.
func parseCooldown(raw any) (time.Duration, error) {
	var d time.Duration
	switch v := raw.(type) {
	case int:
		d = time.Duration(v) * time.Second
	case int64:
		d = time.Duration(v) * time.Second
	case uint64:
		d = time.Duration(v) * time.Second
	case float64:
		d = time.Duration(v * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			secs, ferr := strconv.ParseFloat(v, 64)
			if ferr != nil {
				return 0, fmt.Errorf("invalid cooldown_period %q", v)
			}
			parsed = time.Duration(secs * float64(time.Second))
		}
		d = parsed
	default:
		return 0, fmt.Errorf("cooldown_period must be a duration or number, got %T", raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative cooldown_period %s", d)
	}
	return d, nil
}
