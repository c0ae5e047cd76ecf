package api

import (
	"encoding/json"
	"math"
	"strconv"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State       string `json:"state"`
	Detail      string `json:"detail,omitempty"`
	MetricCount int    `json:"metric_count"`
	LiveCount   int    `json:"live_count"`
	InputCount  int    `json:"input_count"`
}

// MetricResponse is one combined metric in GET /api/v1/metrics or
// GET /api/v1/metrics/{name}.
type MetricResponse struct {
	Name       string          `json:"name"`
	Expression string          `json:"expression"`
	Inputs     []string        `json:"inputs"`
	Pending    int             `json:"pending"`
	ChunkSize  int             `json:"chunk_size"`
	Generation uint64          `json:"generation"`
	Rate       *float64        `json:"rate,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Latest     *SampleResponse `json:"latest,omitempty"`
}

// SampleResponse is one sample.
type SampleResponse struct {
	Time     string `json:"time"` // RFC3339Nano
	Value    Float  `json:"value"`
	LastSeen string `json:"last_seen,omitempty"` // RFC3339
}

// InputResponse is one input metric in GET /api/v1/inputs.
type InputResponse struct {
	Name      string   `json:"name"`
	Rate      *float64 `json:"rate,omitempty"`
	Combined  bool     `json:"combined"`
	Consumers []string `json:"consumers"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot.
type SnapshotResponse struct {
	Metrics     []MetricResponse `json:"metrics"`
	GeneratedAt string           `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

// Float is a float64 that encodes NaN and infinities as strings.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
}

func (f *Float) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = Float(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}
