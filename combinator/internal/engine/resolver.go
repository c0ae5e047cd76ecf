package engine

import (
	"log/slog"
	"math"
	"sort"
)

// MetadataStore provides and records sampling rates in Hz.
type MetadataStore interface {
	Rate(name string) (float64, bool)
	SetRate(name string, rate float64)
}

// DeferralBudget returns the number of deferrals an acyclic set of n
// combined metrics can need at most: (n-2)(n-1)/2, never negative.
func DeferralBudget(n int) int {
	if n < 2 {
		return 0
	}
	return (n - 2) * (n - 1) / 2
}

// ResolveRates computes the rate of every registered metric as the maximum
// rate of its direct inputs and publishes it to md. A rate declared in the
// metric's metadata is published as is.
//
// A metric whose input is another combined metric that has not been
// resolved yet is put back at the end of the work queue. Once more
// deferrals have happened than DeferralBudget allows, the dependencies must
// be circular and a *CircularDependencyError is returned right away.
// Inputs that are neither known to md nor combined metrics are collected
// and reported together as a *MissingInputError after every metric was
// visited.
func ResolveRates(reg *Registry, md MetadataStore) error {
	queue := resolutionOrder(reg)
	budget := DeferralBudget(len(queue))

	// rates of resolved combined metrics; NaN marks "resolved without rate".
	resolved := make(map[string]float64, len(queue))
	var missing []MissingInput
	deferrals := 0

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		e := reg.entries[name]

		if rate, ok := e.DeclaredRate(); ok {
			md.SetRate(name, rate)
			resolved[name] = rate
			slog.Debug("engine: using declared rate", "metric", name, "rate", rate)
			continue
		}

		var (
			rate     = math.NaN()
			deferred bool
			absent   []MissingInput
		)
		for _, input := range sortedKeys(e.Tree.Inputs()) {
			if reg.Has(input) {
				r, done := resolved[input]
				if !done {
					deferred = true
					break
				}
				rate = maxRate(rate, r)
				continue
			}
			if r, ok := md.Rate(input); ok {
				rate = maxRate(rate, r)
				continue
			}
			absent = append(absent, MissingInput{Metric: name, Input: input})
		}

		if deferred {
			deferrals++
			resolverDeferrals.Inc()
			if deferrals > budget {
				return &CircularDependencyError{Metric: name, Budget: budget}
			}
			queue = append(queue, name)
			continue
		}

		missing = append(missing, absent...)
		resolved[name] = rate
		if math.IsNaN(rate) {
			slog.Warn("engine: no input rate known", "metric", name)
			continue
		}
		md.SetRate(name, rate)
		slog.Debug("engine: resolved rate", "metric", name, "rate", rate)
	}

	if len(missing) > 0 {
		return &MissingInputError{Missing: missing}
	}
	return nil
}

// maxRate is max ignoring NaN, which stands for "no rate".
func maxRate(a, b float64) float64 {
	switch {
	case math.IsNaN(a):
		return b
	case math.IsNaN(b):
		return a
	}
	return math.Max(a, b)
}

// resolutionOrder lists the registered metrics by number of combined-metric
// inputs, then by name, so that chains resolve front to back.
func resolutionOrder(reg *Registry) []string {
	names := reg.Names()
	deps := make(map[string]int, len(names))
	for _, name := range names {
		for input := range reg.entries[name].Tree.Inputs() {
			if reg.Has(input) {
				deps[name]++
			}
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		return deps[names[i]] < deps[names[j]]
	})
	return names
}
