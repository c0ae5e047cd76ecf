package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/obsidianstack/combinator/combinator/internal/api"
	"github.com/obsidianstack/combinator/combinator/internal/auth"
	"github.com/obsidianstack/combinator/combinator/internal/config"
	"github.com/obsidianstack/combinator/combinator/internal/engine"
	"github.com/obsidianstack/combinator/combinator/internal/metadata"
	"github.com/obsidianstack/combinator/combinator/internal/scraper"
	"github.com/obsidianstack/combinator/combinator/internal/sink"
	"github.com/obsidianstack/combinator/combinator/internal/store"
	"github.com/obsidianstack/combinator/combinator/internal/ws"
	"github.com/obsidianstack/combinator/pkg/types"
)

// healthService is the gRPC health service name reported besides "".
const healthService = "combinator"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	logLevel := flag.String("log-level", "info", "log level: debug | info | warn | error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q: %v\n", *logLevel, err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("combinator starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	c := cfg.Combinator
	slog.Info("config loaded",
		"http_port", c.HTTPPort,
		"grpc_port", c.GRPCPort,
		"auth_mode", c.Auth.Mode,
		"sources", len(c.Sources),
		"metrics", len(c.Metrics),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *configPath); err != nil {
		slog.Error("combinator stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("combinator stopped")
}

// run wires every component and blocks until ctx is cancelled or a fatal
// error occurs.
func run(ctx context.Context, cfg *config.Config, configPath string) error {
	c := cfg.Combinator

	md := metadata.New()
	latest := store.New(c.LatestTTL)
	exporter := sink.NewPromExporter(prometheus.DefaultRegisterer)
	status := newStatus()

	// deps.Engine is filled in once the combinator exists; the hub only
	// builds snapshots after Run starts.
	deps := api.Deps{Metadata: md, Store: latest, Status: status.get}
	hub := ws.New(func() api.SnapshotResponse { return api.BuildSnapshot(deps) }, c.BroadcastInterval)

	chunker := sink.NewChunker(latest, hub, exporter)
	comb := engine.New(md, chunker)
	deps.Engine = comb

	fatal := make(chan error, 1)
	resolve := func() {
		if err := comb.ResolveRates(); err != nil {
			status.set(api.Status{State: "failed", Detail: err.Error()})
			select {
			case fatal <- fmt.Errorf("rate resolution: %w", err):
			default:
			}
			return
		}
		status.set(api.Status{State: "serving"})
		slog.Info("combinator: rates resolved")
	}

	tr, err := scraper.New(c.Sources, scraper.Options{
		OnData:  func(name string, batch []types.Sample) { comb.OnData(name, batch) },
		Rates:   md,
		OnReady: resolve,
	})
	if err != nil {
		return err
	}

	// apply reconciles the engine and its collaborators with cfg.
	apply := func(next *config.Config) {
		change, err := comb.Reconfigure(next.Combinator.Metrics)
		if err != nil {
			slog.Error("combinator: some metrics were rejected", "err", err)
		}
		chunker.Configure(comb.ChunkSizes())
		chunker.Flush()
		latest.Delete(change.Removed...)
		exporter.Retain(names(comb.Metrics()))
		tr.Subscribe(comb.DependencyNames())
		if tr.Ready() {
			resolve()
		}
	}
	apply(cfg)

	onReload := func(next *config.Config) {
		if !reflect.DeepEqual(next.Combinator.Sources, c.Sources) {
			slog.Warn("config: source changes take effect after restart")
		}
		apply(next)
	}

	// gRPC health service with optional API key authentication.
	grpcSrv := grpc.NewServer(
		grpc.UnaryInterceptor(auth.APIKeyInterceptor(c.Auth.Mode, c.Auth.EffectiveHeader(), c.Auth.Key())),
		grpc.StreamInterceptor(auth.APIKeyStreamInterceptor(c.Auth.Mode, c.Auth.EffectiveHeader(), c.Auth.Key())),
	)
	healthpb.RegisterHealthServer(grpcSrv, status.health)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", c.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen on gRPC port %d: %w", c.GRPCPort, err)
	}

	// Combined HTTP server: REST API, websocket stream and /metrics.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", auth.APIKeyMiddleware(c.Auth.Mode, c.Auth.EffectiveHeader(), c.Auth.Key(), api.New(deps)))
	httpMux.Handle("/ws/stream", auth.APIKeyMiddleware(c.Auth.Mode, c.Auth.EffectiveHeader(), c.Auth.Key(), hub))
	httpMux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		latest.Run(ctx)
		return nil
	})
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return tr.Run(ctx)
	})
	g.Go(func() error {
		return config.Watch(ctx, configPath, onReload)
	})
	g.Go(func() error {
		slog.Info("gRPC health service listening", "port", c.GRPCPort)
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		slog.Info("HTTP server listening", "port", c.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		var err error
		select {
		case <-ctx.Done():
		case err = <-fatal:
			slog.Error("combinator: fatal error, shutting down", "err", err)
		}

		slog.Info("combinator shutting down")
		chunker.Flush()
		grpcSrv.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
		return err
	})

	return g.Wait()
}

func names(infos []engine.MetricInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Name
	}
	return out
}

// processStatus mirrors the process state into the gRPC health service and
// the REST API.
type processStatus struct {
	mu     sync.RWMutex
	cur    api.Status
	health *health.Server
}

func newStatus() *processStatus {
	s := &processStatus{health: health.NewServer()}
	s.set(api.Status{State: "starting"})
	return s
}

func (s *processStatus) get() api.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *processStatus) set(st api.Status) {
	s.mu.Lock()
	s.cur = st
	s.mu.Unlock()

	serving := healthpb.HealthCheckResponse_NOT_SERVING
	if st.State == "serving" {
		serving = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", serving)
	s.health.SetServingStatus(healthService, serving)
}
