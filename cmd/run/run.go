// Package run contains the command to run an echotree server.
package run

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"os/signal"
	goruntime "runtime"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"sigs.k8s.io/controller-runtime/pkg/certwatcher"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/echotree/echotree/cmd/util"
	"github.com/echotree/echotree/internal/build"
	serverconfig "github.com/echotree/echotree/internal/server/config"
	"github.com/echotree/echotree/pkg/fanout"
	"github.com/echotree/echotree/pkg/logger"
	"github.com/echotree/echotree/pkg/middleware/recovery"
	"github.com/echotree/echotree/pkg/server"
	"github.com/echotree/echotree/pkg/server/health"
	"github.com/echotree/echotree/pkg/storage"
	"github.com/echotree/echotree/pkg/storage/sqlcommon"
	"github.com/echotree/echotree/pkg/storage/storagewrappers"
	"github.com/echotree/echotree/pkg/telemetry"
	"github.com/echotree/echotree/pkg/wordtree"
)

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the echotree server",
		Long: `Run the echotree server: the ingest server producers submit root words and trees to, the
subscribe server that streams every published tree to connected clients, and optionally the
listener page, metrics and profiler servers.`,
		Run:  run,
		Args: cobra.NoArgs,
	}

	defaultConfig := serverconfig.DefaultConfig()
	flags := cmd.Flags()

	flags.Int("tree-max-depth", defaultConfig.Tree.MaxDepth, "the maximum number of edges from the root word to any leaf")

	flags.Int("tree-max-branch", defaultConfig.Tree.MaxBranch, "the maximum number of followers expanded under any word")

	flags.String("tree-case-folding", defaultConfig.Tree.CaseFolding, "the normalization applied to submitted root words ('none' or 'lower')")

	flags.String("lookup-engine", defaultConfig.Lookup.Engine, "the lookup store engine ('memory', 'sqlite', 'postgres', 'mysql', 'badger')")

	flags.String("lookup-uri", defaultConfig.Lookup.URI, "the connection uri of the lookup store (a directory for 'badger')")

	flags.Int("lookup-max-open-conns", defaultConfig.Lookup.MaxOpenConns, "the maximum number of open connections to the lookup store")

	flags.Int("lookup-max-idle-conns", defaultConfig.Lookup.MaxIdleConns, "the maximum number of connections to the lookup store in the idle connection pool")

	flags.Duration("lookup-conn-max-idle-time", defaultConfig.Lookup.ConnMaxIdleTime, "the maximum amount of time a connection to the lookup store may be idle")

	flags.Duration("lookup-conn-max-lifetime", defaultConfig.Lookup.ConnMaxLifetime, "the maximum amount of time a connection to the lookup store may be reused")

	flags.Uint32("lookup-max-concurrent-reads", defaultConfig.Lookup.MaxConcurrentReads, "the maximum number of concurrent reads against the lookup store (0 means unbounded)")

	flags.Bool("lookup-metrics-enabled", defaultConfig.Lookup.Metrics.Enabled, "enable/disable sql connection pool metrics")

	flags.String("ingest-addr", defaultConfig.Ingest.Addr, "the host:port address to serve the ingest server on")

	flags.Float64("ingest-rate-limit", defaultConfig.Ingest.RateLimit, "the number of submissions accepted per second (0 means unlimited)")

	flags.Duration("ingest-submit-timeout", defaultConfig.Ingest.SubmitTimeout, "how long an ingest request waits for the outcome of its submission")

	flags.StringSlice("ingest-cors-allowed-origins", defaultConfig.Ingest.CORSAllowedOrigins, "specifies the CORS allowed origins of the ingest server")

	flags.String("subscribe-addr", defaultConfig.Subscribe.Addr, "the host:port address to serve the subscribe server on")

	flags.Duration("subscribe-write-timeout", defaultConfig.Subscribe.WriteTimeout, "the timeout of a single write to a subscriber")

	flags.Duration("subscribe-ping-interval", defaultConfig.Subscribe.PingInterval, "the interval of WebSocket keepalive pings")

	flags.Int64("subscribe-max-message-size", defaultConfig.Subscribe.MaxMessageSize, "the maximum size in bytes of a frame read from a subscriber")

	flags.Bool("subscribe-allow-word-submission", defaultConfig.Subscribe.AllowWordSubmission, "submit words received from WebSocket subscribers as new root words")

	flags.Bool("listener-enabled", defaultConfig.Listener.Enabled, "enable/disable the listener page server")

	flags.String("listener-addr", defaultConfig.Listener.Addr, "the host:port address to serve the listener page on")

	flags.Bool("tls-enabled", defaultConfig.TLS.Enabled, "enable/disable transport layer security (TLS) on the ingest and subscribe servers")

	flags.String("tls-cert", defaultConfig.TLS.CertPath, "the (absolute) file path of the certificate to use for the TLS connection")

	flags.String("tls-key", defaultConfig.TLS.KeyPath, "the (absolute) file path of the TLS key that should be used for the TLS connection")

	cmd.MarkFlagsRequiredTogether("tls-enabled", "tls-cert", "tls-key")

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in")

	flags.String("log-level", defaultConfig.Log.Level, "the log level to use")

	flags.String("log-timestamp-format", defaultConfig.Log.TimestampFormat, "the timestamp format to use for log messages")

	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")

	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLP.Endpoint, "the endpoint of the trace collector")

	flags.Bool("trace-otlp-tls-enabled", defaultConfig.Trace.OTLP.TLS.Enabled, "use TLS connection for trace collector")

	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of traces to sample. 1 means all, 0 means none.")

	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled traces.")

	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "enable/disable prometheus metrics on the '/metrics' endpoint")

	flags.String("metrics-addr", defaultConfig.Metrics.Addr, "the host:port address to serve the prometheus metrics server on")

	flags.Bool("profiler-enabled", defaultConfig.Profiler.Enabled, "enable/disable pprof profiling")

	flags.String("profiler-addr", defaultConfig.Profiler.Addr, "the host:port address to serve the pprof profiler server on")

	// NOTE: if you add a new flag here, update bindRunFlagsFunc, too

	cmd.PreRun = bindRunFlagsFunc(flags)

	return cmd
}

// ReadConfig returns the echotree server configuration based on the values provided in the server's 'config.yaml' file.
// The 'config.yaml' file is loaded from '/etc/echotree', '$HOME/.echotree', or the current working directory. If no configuration
// file is present, the default values are returned.
func ReadConfig() (*serverconfig.Config, error) {
	config := serverconfig.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load server config: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server config: %w", err)
	}

	return config, nil
}

func run(_ *cobra.Command, _ []string) {
	config, err := ReadConfig()
	if err != nil {
		panic(err)
	}

	if err := config.Verify(); err != nil {
		panic(err)
	}

	logger := logger.MustNewLogger(config.Log.Format, config.Log.Level, config.Log.TimestampFormat)
	serverCtx := &ServerContext{Logger: logger}
	if err := serverCtx.Run(context.Background(), config); err != nil {
		panic(err)
	}
}

type ServerContext struct {
	Logger logger.Logger
}

// telemetryConfig returns the tracer provider that must be closed to flush pending spans.
func (s *ServerContext) telemetryConfig(ctx context.Context, config *serverconfig.Config) (telemetry.TracerProvider, error) {
	if config.Trace.Enabled {
		s.Logger.Info(fmt.Sprintf("🕵 tracing enabled: sampling ratio is %v and sending traces to '%s', tls: %t", config.Trace.SampleRatio, config.Trace.OTLP.Endpoint, config.Trace.OTLP.TLS.Enabled))

		return telemetry.NewTracerProvider(ctx,
			telemetry.WithOTLPEndpoint(config.Trace.OTLP.Endpoint),
			telemetry.WithOTLPTLS(config.Trace.OTLP.TLS.Enabled),
			telemetry.WithServiceName(config.Trace.ServiceName),
			telemetry.WithSamplingRatio(config.Trace.SampleRatio),
		)
	}

	tp := telemetry.Noop()
	otel.SetTracerProvider(tp)
	return tp, nil
}

func (s *ServerContext) datastoreConfig(config *serverconfig.Config) (storage.FollowerDatastore, error) {
	dsCfg := sqlcommon.NewConfig(
		sqlcommon.WithLogger(s.Logger),
		sqlcommon.WithMaxOpenConns(config.Lookup.MaxOpenConns),
		sqlcommon.WithMaxIdleConns(config.Lookup.MaxIdleConns),
		sqlcommon.WithConnMaxIdleTime(config.Lookup.ConnMaxIdleTime),
		sqlcommon.WithConnMaxLifetime(config.Lookup.ConnMaxLifetime),
	)
	if config.Lookup.Metrics.Enabled {
		dsCfg.ExportMetrics = true
	}

	datastore, err := util.OpenDatastore(config.Lookup.Engine, config.Lookup.URI, dsCfg)
	if err != nil {
		return nil, err
	}

	s.Logger.Info(fmt.Sprintf("using '%v' lookup store", config.Lookup.Engine))

	return datastore, nil
}

// readiness reports the datastore's readiness to health checks, logging the reason when it is not ready.
func (s *ServerContext) readiness(datastore storage.FollowerDatastore) health.TargetService {
	return health.TargetServiceFunc(func(ctx context.Context) (bool, error) {
		status, err := datastore.IsReady(ctx)
		if err != nil {
			return false, err
		}
		if !status.IsReady {
			s.Logger.WarnWithContext(ctx, "lookup store is not ready", zap.String("reason", status.Message))
		}
		return status.IsReady, nil
	})
}

func (s *ServerContext) Run(ctx context.Context, config *serverconfig.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, os.Kill, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := s.telemetryConfig(ctx, config)
	if err != nil {
		return err
	}

	datastore, err := s.datastoreConfig(config)
	if err != nil {
		return err
	}
	defer datastore.Close()

	if status, err := datastore.IsReady(ctx); err != nil || !status.IsReady {
		s.Logger.Warn("lookup store is not ready, lookups may fail until it is",
			zap.String("reason", status.Message),
			zap.Error(err))
	}

	var lookup storage.FollowerLookup = datastore
	if config.Lookup.MaxConcurrentReads > 0 {
		lookup = storagewrappers.NewBoundedConcurrencyLookup(datastore, config.Lookup.MaxConcurrentReads)
	}

	cache := storagewrappers.NewFollowerCache(lookup, storagewrappers.WithFollowerCacheLogger(s.Logger))
	builder := wordtree.NewBuilder(cache, wordtree.WithLogger(s.Logger))
	hub := fanout.NewHub(fanout.WithLogger(s.Logger))
	publisher := server.NewPublisher(hub, builder,
		server.WithLogger(s.Logger),
		server.WithTreeBounds(config.Tree.MaxDepth, config.Tree.MaxBranch),
		server.WithCaseFolding(config.Tree.CaseFolding),
	)
	defer publisher.Close()

	var profilerServer *http.Server
	if config.Profiler.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		profilerServer = &http.Server{Addr: config.Profiler.Addr, Handler: mux}

		go func() {
			s.Logger.Info(fmt.Sprintf("🔬 starting pprof profiler on '%s'", config.Profiler.Addr))

			if err := profilerServer.ListenAndServe(); err != nil {
				if !errors.Is(err, http.ErrServerClosed) {
					s.Logger.Fatal("failed to start pprof profiler", zap.Error(err))
				}
			}
			s.Logger.Info("profiler shut down.")
		}()
	}

	var metricsServer *http.Server
	if config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		metricsServer = &http.Server{Addr: config.Metrics.Addr, Handler: mux}

		go func() {
			s.Logger.Info(fmt.Sprintf("📈 starting prometheus metrics server on '%s'", config.Metrics.Addr))
			if err := metricsServer.ListenAndServe(); err != nil {
				if !errors.Is(err, http.ErrServerClosed) {
					s.Logger.Fatal("failed to start prometheus metrics server", zap.Error(err))
				}
			}
			s.Logger.Info("metrics server shut down.")
		}()
	}

	s.Logger.Info(
		"starting echotree service...",
		zap.String("version", build.Version),
		zap.String("date", build.Date),
		zap.String("commit", build.Commit),
		zap.String("go-version", goruntime.Version()),
		zap.Any("config", config),
	)

	var tlsConfig *tls.Config
	if config.TLS.Enabled {
		getCertificate, err := watchAndLoadCertificateWithCertWatcher(ctx, config.TLS.CertPath, config.TLS.KeyPath, s.Logger)
		if err != nil {
			return err
		}
		tlsConfig = &tls.Config{
			MinVersion:     tls.VersionTLS12,
			GetCertificate: getCertificate,
		}
		s.Logger.Info("TLS is enabled, serving connections using the provided certificate")
	} else {
		s.Logger.Warn("TLS is disabled, serving connections using insecure plaintext")
	}

	readiness := s.readiness(datastore)

	ingestHandler := server.NewIngestHandler(publisher,
		server.WithIngestLogger(s.Logger),
		server.WithRateLimit(config.Ingest.RateLimit),
		server.WithSubmitTimeout(config.Ingest.SubmitTimeout),
		server.WithCORSAllowedOrigins(config.Ingest.CORSAllowedOrigins),
		server.WithReadiness(readiness),
	)
	ingestServer, err := s.serve(ctx, "ingest", config.Ingest.Addr, tlsConfig,
		telemetry.InstrumentHandler("ingest", recovery.HTTPPanicRecoveryHandler(ingestHandler, s.Logger), config.Trace.Enabled))
	if err != nil {
		return err
	}

	subscribeOpts := []server.SubscribeOption{
		server.WithSubscribeLogger(s.Logger),
		server.WithWriteTimeout(config.Subscribe.WriteTimeout),
		server.WithPingInterval(config.Subscribe.PingInterval),
		server.WithMaxMessageSize(config.Subscribe.MaxMessageSize),
		server.WithSubscribeReadiness(readiness),
	}
	if config.Subscribe.AllowWordSubmission {
		subscribeOpts = append(subscribeOpts, server.WithWordSubmission(publisher))
	}
	subscribeHandler := server.NewSubscribeHandler(hub, subscribeOpts...)
	subscribeServer, err := s.serve(ctx, "subscribe", config.Subscribe.Addr, tlsConfig,
		telemetry.InstrumentHandler("subscribe", recovery.HTTPPanicRecoveryHandler(subscribeHandler, s.Logger), config.Trace.Enabled))
	if err != nil {
		return err
	}

	var listenerServer *http.Server
	if config.Listener.Enabled {
		listenerHandler, err := server.NewListenerHandler(SubscribeURL(config), config.Subscribe.AllowWordSubmission)
		if err != nil {
			return err
		}
		listenerServer, err = s.serve(ctx, "listener", config.Listener.Addr, nil, listenerHandler)
		if err != nil {
			return err
		}
	}

	// wait for cancellation signal
	<-ctx.Done()
	s.Logger.Info("attempting to shutdown gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown.
	subscribeHandler.Close()

	for name, srv := range map[string]*http.Server{
		"listener":  listenerServer,
		"subscribe": subscribeServer,
		"ingest":    ingestServer,
		"profiler":  profilerServer,
		"metrics":   metricsServer,
	} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			s.Logger.Info(fmt.Sprintf("failed to shutdown the %s server", name), zap.Error(err))
		}
	}

	publisher.Close()

	if err := tracerProvider.Close(ctx); err != nil {
		s.Logger.Error("failed to shutdown tracing", zap.Error(err))
	}

	s.Logger.Info("server exited. goodbye 👋")

	return nil
}

// serve starts an HTTP server for handler on addr, over TLS when tlsConfig is set. The listener
// is bound before returning so that address errors are reported to the caller.
func (s *ServerContext) serve(ctx context.Context, name, addr string, tlsConfig *tls.Config, handler http.Handler) (*http.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s address '%s': %w", name, addr, err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	if tlsConfig != nil {
		srv.TLSConfig = tlsConfig
		lis = tls.NewListener(lis, tlsConfig)
	}

	go func() {
		s.Logger.Info(fmt.Sprintf("🚀 starting %s server on '%s'...", name, lis.Addr().String()))
		if err := srv.Serve(lis); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Fatal(fmt.Sprintf("failed to start %s server", name), zap.Error(err))
			}
		}
		s.Logger.Info(fmt.Sprintf("%s server shut down.", name))
	}()

	return srv, nil
}

// SubscribeURL is the WebSocket URL the listener page connects to. An unspecified host is
// replaced with localhost.
func SubscribeURL(config *serverconfig.Config) string {
	scheme := "ws"
	if config.TLS.Enabled {
		scheme = "wss"
	}

	host, port, err := net.SplitHostPort(config.Subscribe.Addr)
	if err != nil {
		host, port = config.Subscribe.Addr, ""
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	}

	u := url.URL{Scheme: scheme, Host: host, Path: server.SubscribePath}
	return u.String()
}

func watchAndLoadCertificateWithCertWatcher(ctx context.Context, certPath, keyPath string, logger logger.Logger) (func(*tls.ClientHelloInfo) (*tls.Certificate, error), error) {
	log.SetLogger(logr.Discard())
	// Create a certificate watcher
	watcher, err := certwatcher.New(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create certwatcher: %w", err)
	}

	// Load the initial certificate
	if err := watcher.ReadCertificate(); err != nil {
		return nil, fmt.Errorf("failed to load initial certificate: %w", err)
	}
	logger.Info("Initial TLS certificate loaded.", zap.String("certPath", certPath), zap.String("keyPath", keyPath))

	// Start watching for certificate changes
	go func() {
		logger.Info("Starting certificate watcher...", zap.String("certPath", certPath), zap.String("keyPath", keyPath))
		if err := watcher.Start(ctx); err != nil {
			logger.Error("Certwatcher encountered an error", zap.Error(err))
		}
	}()

	// Return a function that retrieves the updated certificate
	getCertificate := func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		return watcher.GetCertificate(nil)
	}

	return getCertificate, nil
}
