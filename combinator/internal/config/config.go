package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultScrapeInterval    = 10 * time.Second
	DefaultLatestTTL         = 5 * time.Minute
	DefaultBroadcastInterval = 5 * time.Second
	DefaultChunkSize         = 1
	DefaultGRPCPort          = 50051
	DefaultHTTPPort          = 8080
)

// Config is the top-level configuration file.
type Config struct {
	Combinator CombinatorConfig `yaml:"combinator"`
}

// CombinatorConfig holds every setting of the combinator process.
type CombinatorConfig struct {
	// HTTPPort serves the REST API, the websocket stream and /metrics.
	HTTPPort int `yaml:"http_port"`

	// GRPCPort serves the gRPC health service.
	GRPCPort int `yaml:"grpc_port"`

	// LatestTTL is how long the latest sample of a combined metric stays
	// visible through the API after it was emitted.
	LatestTTL time.Duration `yaml:"latest_ttl"`

	// BroadcastInterval controls how often websocket clients receive a full
	// snapshot of the latest values.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// ScrapeInterval is the default poll interval for sources that do not
	// set their own.
	ScrapeInterval time.Duration `yaml:"scrape_interval"`

	// Auth protects the REST API and the gRPC health service.
	Auth ServerAuthConfig `yaml:"auth"`

	// Sources are the Prometheus endpoints input metrics are read from.
	Sources []Source `yaml:"sources"`

	// Metrics maps each combined metric name to its definition.
	Metrics map[string]CombinedMetric `yaml:"metrics"`
}

// Source describes one Prometheus text endpoint providing input metrics.
type Source struct {
	// ID is a unique, human-readable identifier for this source.
	ID string `yaml:"id"`

	// Endpoint is the full URL of the metrics endpoint.
	Endpoint string `yaml:"endpoint"`

	// ScrapeInterval overrides CombinatorConfig.ScrapeInterval. The input
	// metrics of this source are announced with rate 1/ScrapeInterval.
	ScrapeInterval time.Duration `yaml:"scrape_interval"`

	// Auth configures how the combinator authenticates to this source.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// Rate returns the sampling rate in Hz implied by the scrape interval.
func (s Source) Rate() float64 {
	if s.ScrapeInterval <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.ScrapeInterval)
}

// CombinedMetric is one derived metric definition.
type CombinedMetric struct {
	// Expression is the decoded expression document.
	Expression any `yaml:"expression"`

	// ChunkSize is the number of samples buffered before they are published.
	ChunkSize int `yaml:"chunk_size"`

	// Metadata is declared as-is for the combined metric. A numeric "rate"
	// entry overrides the derived sampling rate.
	Metadata any `yaml:"metadata"`
}

// Fingerprint returns the canonical encoding of the expression. Two
// definitions with equal fingerprints evaluate identically.
func (m CombinedMetric) Fingerprint() ([]byte, error) {
	b, err := yaml.Marshal(m.Expression)
	if err != nil {
		return nil, fmt.Errorf("config: encode expression: %w", err)
	}
	return b, nil
}

// DeclaredMetadata returns the metadata object, or nil if none was declared.
func (m CombinedMetric) DeclaredMetadata() map[string]any {
	md, _ := m.Metadata.(map[string]any)
	return md
}

// DeclaredRate returns the explicitly configured rate, if any.
func (m CombinedMetric) DeclaredRate() (float64, bool) {
	var rate float64
	switch v := m.DeclaredMetadata()["rate"].(type) {
	case int:
		rate = float64(v)
	case float64:
		rate = v
	default:
		return 0, false
	}
	if math.IsNaN(rate) || rate < 0 {
		return 0, false
	}
	return rate, true
}

// AuthConfig specifies the authentication mode for a source.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header and KeyEnv are used when Mode == "apikey".
	Header string `yaml:"header"`
	KeyEnv string `yaml:"key_env"`

	// TokenEnv names the variable holding the bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username and PasswordEnv are used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string { return getenv(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string { return getenv(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return getenv(a.PasswordEnv) }

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// ServerAuthConfig configures API key authentication of the combinator's
// own endpoints.
type ServerAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable holding the expected key.
	KeyEnv string `yaml:"key_env"`

	// Header carries the key. Defaults to X-API-Key.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a ServerAuthConfig) Key() string { return getenv(a.KeyEnv) }

// EffectiveHeader returns Header or its default.
func (a ServerAuthConfig) EffectiveHeader() string {
	if a.Header == "" {
		return "X-API-Key"
	}
	return a.Header
}

func getenv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a config document. JSON is accepted as well.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	applySourceDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	sanitizeMetrics(cfg)
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Combinator: CombinatorConfig{
			HTTPPort:          DefaultHTTPPort,
			GRPCPort:          DefaultGRPCPort,
			LatestTTL:         DefaultLatestTTL,
			BroadcastInterval: DefaultBroadcastInterval,
			ScrapeInterval:    DefaultScrapeInterval,
		},
	}
}

func applySourceDefaults(cfg *Config) {
	c := &cfg.Combinator
	for i := range c.Sources {
		if c.Sources[i].ScrapeInterval == 0 {
			c.Sources[i].ScrapeInterval = c.ScrapeInterval
		}
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	c := cfg.Combinator
	if c.HTTPPort <= 0 || c.GRPCPort <= 0 {
		return fmt.Errorf("combinator: ports must be positive")
	}
	if c.LatestTTL <= 0 {
		return fmt.Errorf("combinator.latest_ttl must be positive")
	}
	if c.BroadcastInterval <= 0 {
		return fmt.Errorf("combinator.broadcast_interval must be positive")
	}
	switch c.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("combinator.auth: unknown mode %q", c.Auth.Mode)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true
		if src.Endpoint == "" {
			return fmt.Errorf("sources[%d] %q: endpoint is required", i, src.ID)
		}
		if src.ScrapeInterval <= 0 {
			return fmt.Errorf("sources[%d] %q: scrape_interval must be positive", i, src.ID)
		}
		switch src.Auth.Mode {
		case "mtls", "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("sources[%d] %q: unknown auth mode %q", i, src.ID, src.Auth.Mode)
		}
	}

	for name := range c.Metrics {
		if name == "" {
			return fmt.Errorf("metrics: empty metric name")
		}
	}
	return nil
}

// sanitizeMetrics drops per-metric settings that are invalid but not fatal.
func sanitizeMetrics(cfg *Config) {
	for name, m := range cfg.Combinator.Metrics {
		switch {
		case m.ChunkSize == 0:
			m.ChunkSize = DefaultChunkSize
		case m.ChunkSize < 0:
			slog.Warn("config: invalid chunk_size, ignoring",
				"metric", name, "chunk_size", m.ChunkSize)
			m.ChunkSize = DefaultChunkSize
		}
		if m.Metadata != nil && m.DeclaredMetadata() == nil {
			slog.Warn("config: metadata is not an object, ignoring", "metric", name)
			m.Metadata = nil
		}
		cfg.Combinator.Metrics[name] = m
	}
}
