package expr

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/combinator/combinator/internal/node"
	"github.com/obsidianstack/combinator/pkg/types"
)

// decode parses a YAML (or JSON) snippet the way config.Load does.
func decode(t *testing.T, src string) any {
	t.Helper()
	var doc any
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	return doc
}

func mustParse(t *testing.T, src string) *Tree {
	t.Helper()
	tree, err := Parse(decode(t, src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return tree
}

func TestParse_Shapes(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"metric", `"pdu.power"`, "pdu.power"},
		{"binary", `{operation: "+", left: a, right: 2}`, "(a + 2)"},
		{"nested", `{operation: "/", left: {operation: "-", left: a, right: b}, right: 1000}`, "((a - b) / 1000)"},
		{"sum", `{operation: sum, inputs: [a, b, c]}`, "sum[a, b, c]"},
		{"min with constant", `{operation: min, inputs: [a, 0.5]}`, "min[a, 0.5]"},
		{"binary max", `{operation: max, left: a, right: b}`, "max[a, b]"},
		{"throttle", `{operation: throttle, input: a, cooldown_period: 5s}`, "throttle(a, 5s)"},
		{"throttle seconds", `{operation: throttle, input: a, cooldown_period: "42"}`, "throttle(a, 42s)"},
		{"hold", `{operation: "*", left: a, right: {operation: hold, input: b}}`, "(a * hold(b))"},
		{"json", `{"operation": "-", "left": "x", "right": {"operation": "sum", "inputs": ["y", 1]}}`, "(x - sum[y, 1])"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := mustParse(t, tt.src)
			if got := tree.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantPath string
		wantMsg  string
	}{
		{"unknown op", `{operation: avg, inputs: [a]}`, "", `unknown operation "avg"`},
		{"missing op", `{left: a, right: b}`, "", "missing operation"},
		{"missing right", `{operation: "+", left: a}`, "", "requires right"},
		{"missing inputs", `{operation: sum}`, "", "requires inputs"},
		{"min without operands", `{operation: min, left: a}`, "", "requires inputs"},
		{"empty inputs", `{operation: sum, inputs: []}`, "", "empty inputs"},
		{"inputs not list", `{operation: sum, inputs: a}`, "", "must be a list"},
		{"bool input", `{operation: "+", left: a, right: true}`, "right", "invalid input of type bool"},
		{"nested failure", `{operation: "+", left: a, right: {operation: max, inputs: [b, {operation: pow}]}}`,
			"right.inputs[1]", `unknown operation "pow"`},
		{"bad cooldown", `{operation: throttle, input: a, cooldown_period: soon}`, "cooldown_period", "invalid cooldown_period"},
		{"negative cooldown", `{operation: throttle, input: a, cooldown_period: -1}`, "cooldown_period", "negative"},
		{"missing cooldown", `{operation: throttle, input: a}`, "", "requires cooldown_period"},
		{"hold of expression", `{operation: hold, input: {operation: sum, inputs: [a]}}`, "input", "metric name"},
		{"empty name", `""`, "", "empty metric name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(decode(t, tt.src))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Parse() error = %v, want *ParseError", err)
			}
			if pe.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", pe.Path, tt.wantPath)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestParse_NeverBlocksGuard(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"constant", `42`},
		{"constant binary", `{operation: "*", left: 5, right: {operation: "-", left: 45, right: 3}}`},
		{"constant aggregate", `{operation: sum, inputs: [1, 2, 3]}`},
		{"throttled constant", `{operation: throttle, input: 8, cooldown_period: 1s}`},
		{"hold root", `{operation: hold, input: a}`},
		{"hold and constant", `{operation: "+", left: {operation: hold, input: a}, right: 1}`},
		{"nested constant subtree", `{operation: "+", left: a, right: {operation: "+", left: 1, right: 2}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(decode(t, tt.src))
			if !errors.Is(err, ErrNeverBlocks) {
				t.Errorf("Parse() error = %v, want ErrNeverBlocks", err)
			}
		})
	}
}

// Numbers render in shortest form (15.3), not with fixed six decimals
// (15.300000); the fixed form only padded the output.
func TestRender_AllowsConstantTrees(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`{operation: "*", left: 5, right: {operation: "-", left: 45, right: 3}}`, "(5 * (45 - 3))"},
		{`{operation: "*", left: {operation: "+", left: 1, right: 2}, right: {operation: "-", left: 10, right: dummy.source}}`,
			"((1 + 2) * (10 - dummy.source))"},
		{`{operation: "-", left: {operation: "+", left: 15.3, right: {operation: min, inputs: [42, 24, 8, 12]}}, right: {operation: throttle, cooldown_period: "42", input: 8}}`,
			"((15.3 + min[42, 24, 8, 12]) - throttle(8, 42s))"},
	}
	for _, tt := range tests {
		got, err := Render(decode(t, tt.src))
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if got != tt.want {
			t.Errorf("Render() = %q, want %q", got, tt.want)
		}
	}
}

func TestTree_InputsAndDuplicates(t *testing.T) {
	tree := mustParse(t, `{operation: "+", left: {operation: sum, inputs: [a, b, a]}, right: {operation: hold, input: c}}`)

	names := tree.Inputs().Names()
	sort.Strings(names)
	if !reflect.DeepEqual(names, []string{"a", "b", "c"}) {
		t.Fatalf("Names() = %v, want [a b c]", names)
	}
	if got := len(tree.Inputs()["a"]); got != 2 {
		t.Errorf("leaves for a = %d, want 2", got)
	}
	if !tree.DependsOn("c") || tree.DependsOn("d") {
		t.Error("DependsOn mismatch")
	}
}

func TestTree_EvaluateDuplicateLeaves(t *testing.T) {
	// a - a is zero at every time stamp, which only holds if both leaves see
	// the same samples.
	tree := mustParse(t, `{operation: "-", left: a, right: a}`)
	for _, leaf := range tree.Inputs()["a"] {
		leaf.Put(types.Sample{Time: 1, Value: 3})
		leaf.Put(types.Sample{Time: 2, Value: 9})
	}
	tree.Update()

	got := tree.Drain()
	want := []types.Sample{{Time: 1, Value: 0}, {Time: 2, Value: 0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Drain() = %v, want %v", got, want)
	}
	if tree.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", tree.Pending())
	}
}

func TestParseCooldown(t *testing.T) {
	tests := []struct {
		raw  any
		want string
	}{
		{"250ms", "250ms"},
		{"1m30s", "1m30s"},
		{"42", "42s"},
		{"0.5", "500ms"},
		{3, "3s"},
		{1.5, "1.5s"},
	}
	for _, tt := range tests {
		got, err := parseCooldown(tt.raw)
		if err != nil {
			t.Fatalf("parseCooldown(%v) error = %v", tt.raw, err)
		}
		if got.String() != tt.want {
			t.Errorf("parseCooldown(%v) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestDisplay_BinaryRootIsMerge(t *testing.T) {
	tree := mustParse(t, `{operation: "+", left: a, right: b}`)
	if _, ok := tree.Root().(*node.Binary); !ok {
		t.Fatalf("root = %T, want *node.Binary", tree.Root())
	}
}
