package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/combinator/combinator/internal/config"
	"github.com/obsidianstack/combinator/pkg/types"
)

var scrapesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "combinator_scraper_scrapes_total",
	Help: "Scrapes of input sources by outcome",
}, []string{"source", "result"})

func init() {
	prometheus.MustRegister(scrapesTotal)
}

// Handler receives a batch of samples for one input metric.
type Handler func(name string, batch []types.Sample)

// RateSetter records the sampling rate of an input metric.
type RateSetter interface {
	SetRate(name string, rate float64)
}

// Options wires a Transport to the rest of the process.
type Options struct {
	// OnData is called with every new sample of a subscribed metric.
	OnData Handler

	// Rates receives 1/scrape_interval for every metric the first time a
	// source provides it, subscribed or not, so that a later subscription
	// can be resolved without waiting for another scrape.
	Rates RateSetter

	// OnReady is called once, after every source was scraped at least once.
	OnReady func()
}

// Transport polls every configured source and delivers subscribed metrics.
type Transport struct {
	targets []*target
	opts    Options
	now     func() time.Time // injectable for deterministic tests

	mu         sync.RWMutex
	subscribed map[string]bool
	announced  map[string]bool
	pending    int
	ready      bool

	// deliver serializes delivery across sources. last holds the newest
	// delivered time per name, whichever source provided it.
	deliver sync.Mutex
	last    map[string]types.Time
}

// target is one source.
type target struct {
	src    config.Source
	client *http.Client
}

// New builds a Transport for sources. It builds one HTTP client per source
// and reuses it across scrapes.
func New(sources []config.Source, opts Options) (*Transport, error) {
	t := &Transport{
		opts:       opts,
		now:        time.Now,
		subscribed: make(map[string]bool),
		announced:  make(map[string]bool),
		pending:    len(sources),
		last:       make(map[string]types.Time),
	}
	for _, src := range sources {
		client, err := buildHTTPClient(src)
		if err != nil {
			return nil, fmt.Errorf("scraper %q: build http client: %w", src.ID, err)
		}
		t.targets = append(t.targets, &target{
			src:    src,
			client: client,
		})
	}
	return t, nil
}

// Subscribe replaces the set of delivered metric names.
func (t *Transport) Subscribe(names []string) {
	next := make(map[string]bool, len(names))
	for _, n := range names {
		next[n] = true
	}
	t.mu.Lock()
	t.subscribed = next
	t.mu.Unlock()
	slog.Info("scraper: subscribed", "metrics", len(names))
}

// Ready reports whether every source has been scraped at least once.
func (t *Transport) Ready() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready
}

// Run polls all sources until ctx is cancelled. Each source is scraped
// right away and then every scrape_interval.
func (t *Transport) Run(ctx context.Context) error {
	if len(t.targets) == 0 {
		t.markReady()
		<-ctx.Done()
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, tg := range t.targets {
		tg := tg
		g.Go(func() error {
			t.loop(ctx, tg)
			return nil
		})
	}
	return g.Wait()
}

func (t *Transport) loop(ctx context.Context, tg *target) {
	defer tg.client.CloseIdleConnections()

	t.scrape(ctx, tg)
	t.markScraped()

	ticker := time.NewTicker(tg.src.ScrapeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.scrape(ctx, tg)
		}
	}
}

// scrape fetches one source and delivers its subscribed samples.
func (t *Transport) scrape(ctx context.Context, tg *target) {
	now := t.now()
	mfs, err := fetchMetrics(ctx, tg.client, tg.src.Endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		scrapesTotal.WithLabelValues(tg.src.ID, "error").Inc()
		slog.Warn("scraper: fetch failed", "source", tg.src.ID, "err", err)
		return
	}
	scrapesTotal.WithLabelValues(tg.src.ID, "ok").Inc()

	samples := extract(mfs, now)

	t.mu.Lock()
	names := make([]string, 0, len(samples))
	var fresh []string
	for name := range samples {
		if !t.announced[name] {
			t.announced[name] = true
			fresh = append(fresh, name)
		}
		if t.subscribed[name] {
			names = append(names, name)
		}
	}
	t.mu.Unlock()

	if t.opts.Rates != nil {
		for _, name := range fresh {
			t.opts.Rates.SetRate(name, tg.src.Rate())
		}
	}

	sort.Strings(names)
	t.deliver.Lock()
	defer t.deliver.Unlock()
	for _, name := range names {
		s := samples[name]
		if last, ok := t.last[name]; ok && s.Time <= last {
			continue
		}
		t.last[name] = s.Time
		if t.opts.OnData != nil {
			t.opts.OnData(name, []types.Sample{s})
		}
	}
}

func (t *Transport) markScraped() {
	t.mu.Lock()
	t.pending--
	done := t.pending == 0
	t.mu.Unlock()
	if done {
		t.markReady()
	}
}

func (t *Transport) markReady() {
	t.mu.Lock()
	if t.ready {
		t.mu.Unlock()
		return
	}
	t.ready = true
	t.mu.Unlock()

	slog.Info("scraper: all sources scraped, ready")
	if t.opts.OnReady != nil {
		t.opts.OnReady()
	}
}

// extract converts metric families into one sample per family total and
// one per labelled series. Series without a counter, gauge or untyped value
// are skipped; so are families that have none.
func extract(mfs map[string]*dto.MetricFamily, now time.Time) map[string]types.Sample {
	at := types.FromTime(now)
	out := make(map[string]types.Sample)
	for family, mf := range mfs {
		latest := types.Genesis
		found := false
		for _, m := range mf.GetMetric() {
			v, ok := value(m)
			if !ok {
				continue
			}
			ts := at
			if m.TimestampMs != nil {
				ts = types.FromMillis(m.GetTimestampMs())
			}
			if ts > latest {
				latest = ts
			}
			found = true
			if len(m.GetLabel()) > 0 {
				out[seriesName(family, m)] = types.Sample{Time: ts, Value: v}
			}
		}
		if found {
			out[family] = types.Sample{Time: latest, Value: sumFamily(mf)}
		}
	}
	return out
}
