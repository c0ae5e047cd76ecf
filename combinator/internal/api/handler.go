package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/obsidianstack/combinator/combinator/internal/engine"
	"github.com/obsidianstack/combinator/combinator/internal/metadata"
	"github.com/obsidianstack/combinator/combinator/internal/store"
)

// Engine is the read side of engine.Combinator.
type Engine interface {
	Metrics() []engine.MetricInfo
	Metric(name string) (engine.MetricInfo, bool)
	DependencyNames() []string
}

// Metadata is the read side of metadata.Store.
type Metadata interface {
	Get(name string) (metadata.Entry, bool)
}

// Status describes the process state reported by /api/v1/health.
type Status struct {
	State  string // starting | serving | failed
	Detail string
}

// Deps are the collaborators the API reads from.
type Deps struct {
	Engine   Engine
	Metadata Metadata
	Store    *store.Store
	Status   func() Status
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	deps Deps
	mux  *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(deps Deps) http.Handler {
	h := &Handler{deps: deps, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/metrics", h.listMetrics)
	h.mux.HandleFunc("/api/v1/metrics/", h.getMetric) // subtree, extracts {name}
	h.mux.HandleFunc("/api/v1/inputs", h.inputs)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{
		State:       "serving",
		MetricCount: len(h.deps.Engine.Metrics()),
		LiveCount:   len(h.deps.Store.List()),
		InputCount:  len(h.deps.Engine.DependencyNames()),
	}
	if h.deps.Status != nil {
		st := h.deps.Status()
		resp.State, resp.Detail = st.State, st.Detail
	}

	code := http.StatusOK
	if resp.State == "failed" {
		code = http.StatusServiceUnavailable
	}
	jsonResp(w, code, resp)
}

// listMetrics returns GET /api/v1/metrics.
func (h *Handler) listMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.deps).Metrics)
}

// getMetric returns GET /api/v1/metrics/{name}.
func (h *Handler) getMetric(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/v1/metrics/")
	if name == "" {
		h.listMetrics(w, r)
		return
	}

	info, ok := h.deps.Engine.Metric(name)
	if !ok {
		jsonErr(w, http.StatusNotFound, "metric not found")
		return
	}
	jsonResp(w, http.StatusOK, h.toMetricResponse(info))
}

// inputs returns GET /api/v1/inputs.
func (h *Handler) inputs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	metrics := h.deps.Engine.Metrics()
	combined := make(map[string]bool, len(metrics))
	consumers := make(map[string][]string)
	for _, m := range metrics {
		combined[m.Name] = true
		for _, in := range m.Inputs {
			consumers[in] = append(consumers[in], m.Name)
		}
	}

	names := h.deps.Engine.DependencyNames()
	out := make([]InputResponse, 0, len(names))
	for _, name := range names {
		cs := consumers[name]
		sort.Strings(cs)
		out = append(out, InputResponse{
			Name:      name,
			Rate:      h.rate(name),
			Combined:  combined[name],
			Consumers: cs,
		})
	}
	jsonResp(w, http.StatusOK, out)
}

// snapshot returns GET /api/v1/snapshot.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.deps))
}

// BuildSnapshot assembles the full view of all combined metrics. It is
// shared with the websocket hub.
func BuildSnapshot(deps Deps) SnapshotResponse {
	h := &Handler{deps: deps}
	infos := deps.Engine.Metrics()
	out := make([]MetricResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, h.toMetricResponse(info))
	}
	return SnapshotResponse{
		Metrics:     out,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) toMetricResponse(info engine.MetricInfo) MetricResponse {
	resp := MetricResponse{
		Name:       info.Name,
		Expression: info.Expression,
		Inputs:     info.Inputs,
		Pending:    info.Pending,
		ChunkSize:  info.ChunkSize,
		Generation: info.Generation,
		Rate:       h.rate(info.Name),
	}
	if md, ok := h.deps.Metadata.Get(info.Name); ok {
		resp.Metadata = md.Declared
	}
	if e, ok := h.deps.Store.Get(info.Name); ok {
		resp.Latest = &SampleResponse{
			Time:     e.Sample.Time.String(),
			Value:    Float(e.Sample.Value),
			LastSeen: e.UpdatedAt.UTC().Format(time.RFC3339),
		}
	}
	return resp
}

func (h *Handler) rate(name string) *float64 {
	md, ok := h.deps.Metadata.Get(name)
	if !ok || !md.HasRate {
		return nil
	}
	r := md.Rate
	return &r
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
