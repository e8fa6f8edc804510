// Package config contains all knobs and defaults used to configure features of
// the echotree server when running as a standalone process.
package config

import (
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	DefaultMaxDepth  = 3
	DefaultMaxBranch = 5

	DefaultLookupEngine = "sqlite"
	DefaultLookupURI    = "file:echotree.db"

	DefaultIngestAddr     = "0.0.0.0:5002"
	DefaultSubscribeAddr  = "0.0.0.0:5001"
	DefaultListenerAddr   = "0.0.0.0:5000"
	DefaultSubmitTimeout  = 10 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultPingInterval   = 30 * time.Second
	DefaultMaxMessageSize = 64 * 1_024 // 64 KB

	CaseFoldingNone  = "none"
	CaseFoldingLower = "lower"
)

// TreeConfig defines the shape of the trees built for every submitted root word.
type TreeConfig struct {
	// MaxDepth is the maximum number of edges from the root to any leaf.
	MaxDepth int

	// MaxBranch is the maximum number of children of any node.
	MaxBranch int

	// CaseFolding is applied to submitted root words ('none' or 'lower').
	CaseFolding string
}

type LookupMetricsConfig struct {
	// Enabled enables export of the SQL connection pool metrics.
	Enabled bool
}

// LookupConfig defines the follower lookup store.
type LookupConfig struct {
	// Engine is the lookup engine to use (e.g. 'memory', 'sqlite', 'postgres', 'mysql', 'badger')
	Engine string
	URI    string

	// MaxOpenConns is the maximum number of open connections to the database.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of connections to the datastore in the idle connection
	// pool.
	MaxIdleConns int

	// ConnMaxIdleTime is the maximum amount of time a connection to the datastore may be idle.
	ConnMaxIdleTime time.Duration

	// ConnMaxLifetime is the maximum amount of time a connection to the datastore may be reused.
	ConnMaxLifetime time.Duration

	// MaxConcurrentReads bounds the lookups in flight against the store. 0 means unbounded.
	MaxConcurrentReads uint32

	Metrics LookupMetricsConfig
}

// IngestConfig defines the HTTP server producers submit root words and trees to.
type IngestConfig struct {
	Addr string

	// RateLimit is the number of submissions accepted per second. 0 disables limiting.
	RateLimit float64

	// SubmitTimeout bounds how long a request waits for the outcome of its own submission.
	SubmitTimeout time.Duration

	CORSAllowedOrigins []string
}

// SubscribeConfig defines the server subscribers connect to.
type SubscribeConfig struct {
	Addr string

	// WriteTimeout bounds a single delivery to a subscriber.
	WriteTimeout time.Duration

	// PingInterval is the interval of WebSocket keepalive pings.
	PingInterval time.Duration

	// MaxMessageSize bounds frames read from subscribers.
	MaxMessageSize int64

	// AllowWordSubmission lets a subscriber submit root words over its own socket.
	AllowWordSubmission bool
}

// ListenerConfig defines the server handing out the browser listener page.
type ListenerConfig struct {
	Enabled bool
	Addr    string
}

// TLSConfig defines configuration specific to Transport Layer Security (TLS) settings.
type TLSConfig struct {
	Enabled  bool
	CertPath string `mapstructure:"cert"`
	KeyPath  string `mapstructure:"key"`
}

// LogConfig defines server configurations for log specific settings. For production we
// recommend using the 'json' log format.
type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string

	// Format of the timestamp in the log output (e.g. 'Unix'(default) or 'ISO8601')
	TimestampFormat string
}

type TraceConfig struct {
	Enabled     bool
	OTLP        OTLPTraceConfig `mapstructure:"otlp"`
	SampleRatio float64
	ServiceName string
}

type OTLPTraceConfig struct {
	Endpoint string
	TLS      OTLPTraceTLSConfig
}

type OTLPTraceTLSConfig struct {
	Enabled bool
}

// ProfilerConfig defines server configurations specific to pprof profiling.
type ProfilerConfig struct {
	Enabled bool
	Addr    string
}

// MetricConfig defines configurations for serving custom metrics.
type MetricConfig struct {
	Enabled bool
	Addr    string
}

type Config struct {
	Tree      TreeConfig
	Lookup    LookupConfig
	Ingest    IngestConfig
	Subscribe SubscribeConfig
	Listener  ListenerConfig
	TLS       TLSConfig
	Log       LogConfig
	Trace     TraceConfig
	Profiler  ProfilerConfig
	Metrics   MetricConfig
}

func (cfg *Config) Verify() error {
	if cfg.Tree.MaxDepth < 0 {
		return fmt.Errorf("config 'tree.maxDepth' must be non-negative, got %d", cfg.Tree.MaxDepth)
	}

	if cfg.Tree.MaxBranch < 0 {
		return fmt.Errorf("config 'tree.maxBranch' must be non-negative, got %d", cfg.Tree.MaxBranch)
	}

	if cfg.Tree.CaseFolding != CaseFoldingNone && cfg.Tree.CaseFolding != CaseFoldingLower {
		return fmt.Errorf("config 'tree.caseFolding' must be one of ['none', 'lower']")
	}

	switch cfg.Lookup.Engine {
	case "memory":
	case "sqlite", "postgres", "mysql", "badger":
		if cfg.Lookup.URI == "" {
			return fmt.Errorf("config 'lookup.uri' must be set for the '%s' engine", cfg.Lookup.Engine)
		}
	default:
		return fmt.Errorf("config 'lookup.engine' must be one of ['memory', 'sqlite', 'postgres', 'mysql', 'badger']")
	}

	if cfg.Ingest.RateLimit < 0 {
		return errors.New("config 'ingest.rateLimit' must be non-negative")
	}

	if cfg.Ingest.SubmitTimeout <= 0 {
		return errors.New("config 'ingest.submitTimeout' must be a positive duration")
	}

	if cfg.Subscribe.WriteTimeout <= 0 {
		return errors.New("config 'subscribe.writeTimeout' must be a positive duration")
	}

	if cfg.Subscribe.PingInterval <= 0 {
		return errors.New("config 'subscribe.pingInterval' must be a positive duration")
	}

	if cfg.Subscribe.MaxMessageSize <= 0 {
		return errors.New("config 'subscribe.maxMessageSize' must be positive")
	}

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("config 'log.format' must be one of ['text', 'json']")
	}

	if cfg.Log.Level != "none" &&
		cfg.Log.Level != "debug" &&
		cfg.Log.Level != "info" &&
		cfg.Log.Level != "warn" &&
		cfg.Log.Level != "error" &&
		cfg.Log.Level != "panic" &&
		cfg.Log.Level != "fatal" {
		return fmt.Errorf(
			"config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error', 'panic', 'fatal']",
		)
	}

	if cfg.Log.TimestampFormat != "Unix" && cfg.Log.TimestampFormat != "ISO8601" {
		return fmt.Errorf("config 'log.TimestampFormat' must be one of ['Unix', 'ISO8601']")
	}

	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" || cfg.TLS.KeyPath == "" {
			return errors.New("'tls.cert' and 'tls.key' configs must be set")
		}
	}

	if cfg.Trace.SampleRatio < 0 || cfg.Trace.SampleRatio > 1 {
		return errors.New("config 'trace.sampleRatio' must be between 0 and 1")
	}

	return nil
}

// DefaultConfig is the echotree server default configurations.
func DefaultConfig() *Config {
	return &Config{
		Tree: TreeConfig{
			MaxDepth:    DefaultMaxDepth,
			MaxBranch:   DefaultMaxBranch,
			CaseFolding: CaseFoldingLower,
		},
		Lookup: LookupConfig{
			Engine:       DefaultLookupEngine,
			URI:          DefaultLookupURI,
			MaxIdleConns: 10,
			MaxOpenConns: 30,
		},
		Ingest: IngestConfig{
			Addr:               DefaultIngestAddr,
			SubmitTimeout:      DefaultSubmitTimeout,
			CORSAllowedOrigins: []string{"*"},
		},
		Subscribe: SubscribeConfig{
			Addr:                DefaultSubscribeAddr,
			WriteTimeout:        DefaultWriteTimeout,
			PingInterval:        DefaultPingInterval,
			MaxMessageSize:      DefaultMaxMessageSize,
			AllowWordSubmission: true,
		},
		Listener: ListenerConfig{
			Enabled: true,
			Addr:    DefaultListenerAddr,
		},
		TLS: TLSConfig{Enabled: false},
		Log: LogConfig{
			Format:          "text",
			Level:           "info",
			TimestampFormat: "Unix",
		},
		Trace: TraceConfig{
			Enabled: false,
			OTLP: OTLPTraceConfig{
				Endpoint: "0.0.0.0:4317",
				TLS: OTLPTraceTLSConfig{
					Enabled: false,
				},
			},
			SampleRatio: 0.2,
			ServiceName: "echotree",
		},
		Profiler: ProfilerConfig{
			Enabled: false,
			Addr:    ":3001",
		},
		Metrics: MetricConfig{
			Enabled: true,
			Addr:    "0.0.0.0:2112",
		},
	}
}

// MustDefaultConfig returns default server config with the listener page and metrics turned off
// and an in-memory lookup store.
func MustDefaultConfig() *Config {
	config := DefaultConfig()

	config.Listener.Enabled = false
	config.Metrics.Enabled = false
	config.Lookup.Engine = "memory"
	config.Lookup.URI = ""

	return config
}

// MustDefaultConfigWithRandomPorts returns MustDefaultConfig but with random ports for the ingest
// and subscribe addresses.
// This function may panic if somehow a random port cannot be chosen.
func MustDefaultConfigWithRandomPorts() *Config {
	config := MustDefaultConfig()

	ingestPort, ingestPortReleaser := TCPRandomPort()
	defer ingestPortReleaser()
	subscribePort, subscribePortReleaser := TCPRandomPort()
	defer subscribePortReleaser()

	config.Ingest.Addr = fmt.Sprintf("localhost:%d", ingestPort)
	config.Subscribe.Addr = fmt.Sprintf("localhost:%d", subscribePort)

	return config
}

// TCPRandomPort tries to find a random TCP Port. If it can't find one, it panics. Else, it returns the port and a function that releases the port.
// It is the responsibility of the caller to call the release function right before trying to listen on the given port.
func TCPRandomPort() (int, func()) {
	l, err := net.Listen("tcp", "")
	if err != nil {
		panic(err)
	}
	return l.Addr().(*net.TCPAddr).Port, func() {
		l.Close()
	}
}
