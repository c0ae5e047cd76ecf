package engine

import (
	"errors"
	"reflect"
	"testing"

	"github.com/obsidianstack/combinator/combinator/internal/config"
	"github.com/obsidianstack/combinator/combinator/internal/metadata"
)

func registry(t *testing.T, defs map[string]config.CombinedMetric) *Registry {
	t.Helper()
	reg := NewRegistry()
	if _, err := reg.Reconfigure(defs); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	return reg
}

func rates(kv ...any) *metadata.Store {
	md := metadata.New()
	for i := 0; i+1 < len(kv); i += 2 {
		md.SetRate(kv[i].(string), kv[i+1].(float64))
	}
	return md
}

func TestDeferralBudget(t *testing.T) {
	tests := []struct{ n, want int }{
		{0, 0}, {1, 0}, {2, 0}, {3, 1}, {4, 3}, {5, 6}, {10, 36},
	}
	for _, tt := range tests {
		if got := DeferralBudget(tt.n); got != tt.want {
			t.Errorf("DeferralBudget(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestResolveRates_MaxOfInputs(t *testing.T) {
	reg := registry(t, map[string]config.CombinedMetric{
		"m": metric(map[string]any{"operation": "sum", "inputs": []any{"a", "b", "c"}}),
	})
	md := rates("a", 1.0, "b", 20.0, "c", 5.0)

	if err := ResolveRates(reg, md); err != nil {
		t.Fatalf("ResolveRates() error = %v", err)
	}
	if got, ok := md.Rate("m"); !ok || got != 20 {
		t.Errorf("rate(m): got %v, %v; want 20, true", got, ok)
	}
}

func TestResolveRates_Chain(t *testing.T) {
	// a depends on b, b on external x; resolves without deferral.
	reg := registry(t, map[string]config.CombinedMetric{
		"a": metric(op("+", "b", "y")),
		"b": metric(op("*", "x", 2)),
	})
	md := rates("x", 4.0, "y", 1.0)

	if err := ResolveRates(reg, md); err != nil {
		t.Fatalf("ResolveRates() error = %v", err)
	}
	if got, _ := md.Rate("b"); got != 4 {
		t.Errorf("rate(b): got %v, want 4", got)
	}
	if got, _ := md.Rate("a"); got != 4 {
		t.Errorf("rate(a): got %v, want 4", got)
	}
}

func TestResolveRates_DeferralWithinBudget(t *testing.T) {
	// a and b each wait on one combined metric; a is visited before b and
	// must be deferred once (budget for 3 metrics is 1).
	reg := registry(t, map[string]config.CombinedMetric{
		"a": metric(op("+", "b", "x")),
		"b": metric(op("+", "c", "x")),
		"c": metric(op("+", "x", "y")),
	})
	md := rates("x", 1.0, "y", 3.0)

	if err := ResolveRates(reg, md); err != nil {
		t.Fatalf("ResolveRates() error = %v", err)
	}
	for _, name := range []string{"a", "b", "c"} {
		if got, ok := md.Rate(name); !ok || got != 3 {
			t.Errorf("rate(%s): got %v, %v; want 3, true", name, got, ok)
		}
	}
}

func TestResolveRates_DirectCycle(t *testing.T) {
	reg := registry(t, map[string]config.CombinedMetric{
		"a": metric(op("+", "b", "x")),
		"b": metric(op("+", "a", "x")),
	})
	err := ResolveRates(reg, rates("x", 1.0))
	if !IsCircular(err) {
		t.Fatalf("ResolveRates() error = %v, want circular dependency", err)
	}
	var ce *CircularDependencyError
	errors.As(err, &ce)
	if ce.Budget != 0 {
		t.Errorf("Budget: got %d, want 0", ce.Budget)
	}
}

func TestResolveRates_SelfReference(t *testing.T) {
	reg := registry(t, map[string]config.CombinedMetric{
		"a": metric(op("+", "a", "x")),
	})
	if err := ResolveRates(reg, rates("x", 1.0)); !IsCircular(err) {
		t.Errorf("ResolveRates() error = %v, want circular dependency", err)
	}
}

func TestResolveRates_LongerCycleAmongAcyclicMetrics(t *testing.T) {
	reg := registry(t, map[string]config.CombinedMetric{
		"a": metric(op("+", "c", "x")),
		"b": metric(op("+", "a", "x")),
		"c": metric(op("+", "b", "x")),
		"d": metric(op("+", "x", "x")),
	})
	if err := ResolveRates(reg, rates("x", 1.0)); !IsCircular(err) {
		t.Errorf("ResolveRates() error = %v, want circular dependency", err)
	}
}

func TestResolveRates_MissingInputsAggregated(t *testing.T) {
	reg := registry(t, map[string]config.CombinedMetric{
		"a": metric(op("+", "x", "y")),
		"b": metric(op("*", "z", 2)),
	})
	md := rates("x", 2.0)

	err := ResolveRates(reg, md)
	var me *MissingInputError
	if !errors.As(err, &me) {
		t.Fatalf("ResolveRates() error = %v, want *MissingInputError", err)
	}
	want := []MissingInput{{Metric: "a", Input: "y"}, {Metric: "b", Input: "z"}}
	if !reflect.DeepEqual(me.Missing, want) {
		t.Errorf("Missing: got %v, want %v", me.Missing, want)
	}
	if IsCircular(err) {
		t.Error("missing inputs reported as circular")
	}

	// a still gets the rate of the input that is known.
	if got, ok := md.Rate("a"); !ok || got != 2 {
		t.Errorf("rate(a): got %v, %v; want 2, true", got, ok)
	}
	if _, ok := md.Rate("b"); ok {
		t.Error("b has no known input and should have no rate")
	}
}

func TestResolveRates_RatelessCombinedInputContributesNothing(t *testing.T) {
	reg := registry(t, map[string]config.CombinedMetric{
		"a": metric(op("+", "missing", 1)),
		"b": metric(op("+", "a", "y")),
	})
	md := rates("y", 7.0)

	err := ResolveRates(reg, md)
	var me *MissingInputError
	if !errors.As(err, &me) {
		t.Fatalf("ResolveRates() error = %v, want *MissingInputError", err)
	}
	if want := []MissingInput{{Metric: "a", Input: "missing"}}; !reflect.DeepEqual(me.Missing, want) {
		t.Errorf("Missing: got %v, want %v", me.Missing, want)
	}
	if got, _ := md.Rate("b"); got != 7 {
		t.Errorf("rate(b): got %v, want 7", got)
	}
}

func TestResolveRates_DeclaredRateWins(t *testing.T) {
	reg := registry(t, map[string]config.CombinedMetric{
		"a": withRate(op("+", "unknown", 1), 0.5),
		"b": metric(op("+", "a", 1)),
	})
	md := metadata.New()

	if err := ResolveRates(reg, md); err != nil {
		t.Fatalf("ResolveRates() error = %v", err)
	}
	if got, _ := md.Rate("a"); got != 0.5 {
		t.Errorf("rate(a): got %v, want 0.5", got)
	}
	if got, _ := md.Rate("b"); got != 0.5 {
		t.Errorf("rate(b): got %v, want 0.5", got)
	}
}

func TestResolveRates_Empty(t *testing.T) {
	if err := ResolveRates(NewRegistry(), metadata.New()); err != nil {
		t.Errorf("ResolveRates() on empty registry error = %v", err)
	}
}
