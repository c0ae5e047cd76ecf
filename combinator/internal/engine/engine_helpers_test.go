package engine

import (
	"sync"

	"github.com/obsidianstack/combinator/combinator/internal/config"
	"github.com/obsidianstack/combinator/pkg/types"
)

type sent struct {
	metric string
	sample types.Sample
}

// recorder is a Sink that keeps everything it receives.
type recorder struct {
	mu  sync.Mutex
	got []sent
}

func (r *recorder) Send(metric string, s types.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, sent{metric, s})
}

func (r *recorder) forMetric(metric string) []types.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Sample
	for _, s := range r.got {
		if s.metric == metric {
			out = append(out, s.sample)
		}
	}
	return out
}

func op(operation string, left, right any) map[string]any {
	return map[string]any{"operation": operation, "left": left, "right": right}
}

func metric(expression any) config.CombinedMetric {
	return config.CombinedMetric{Expression: expression, ChunkSize: 1}
}

func withRate(expression any, rate float64) config.CombinedMetric {
	m := metric(expression)
	m.Metadata = map[string]any{"rate": rate}
	return m
}

func samples(pairs ...float64) []types.Sample {
	out := make([]types.Sample, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, types.Sample{Time: types.Time(pairs[i]), Value: pairs[i+1]})
	}
	return out
}

func equalSamples(a, b []types.Sample) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
