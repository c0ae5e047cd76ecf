package main

import (
	"context"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/obsidianstack/combinator/combinator/internal/api"
	"github.com/obsidianstack/combinator/combinator/internal/engine"
)

func healthOf(t *testing.T, s *processStatus, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestProcessStatus_Transitions(t *testing.T) {
	s := newStatus()
	if got := s.get().State; got != "starting" {
		t.Errorf("initial state: got %q, want starting", got)
	}
	if got := healthOf(t, s, healthService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("initial health: got %v, want NOT_SERVING", got)
	}

	s.set(api.Status{State: "serving"})
	for _, svc := range []string{"", healthService} {
		if got := healthOf(t, s, svc); got != healthpb.HealthCheckResponse_SERVING {
			t.Errorf("health(%q) after serving: got %v, want SERVING", svc, got)
		}
	}

	s.set(api.Status{State: "failed", Detail: "cycle"})
	if got := s.get(); got.State != "failed" || got.Detail != "cycle" {
		t.Errorf("state: got %+v, want failed/cycle", got)
	}
	if got := healthOf(t, s, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("health after failure: got %v, want NOT_SERVING", got)
	}
}

func TestNames(t *testing.T) {
	got := names([]engine.MetricInfo{{Name: "a"}, {Name: "b"}})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("names: got %v, want [a b]", got)
	}
	if got := names(nil); len(got) != 0 {
		t.Errorf("names(nil): got %v, want []", got)
	}
}
