package run

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/echotree/echotree/cmd/util"
)

// bindRunFlagsFunc binds the cobra cmd flags to the equivalent config value being managed
// by viper. This bridges the config between cobra flags and viper flags.
func bindRunFlagsFunc(flags *pflag.FlagSet) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {
		util.MustBindPFlag("tree.maxDepth", flags.Lookup("tree-max-depth"))
		util.MustBindEnv("tree.maxDepth", "ECHOTREE_TREE_MAX_DEPTH")

		util.MustBindPFlag("tree.maxBranch", flags.Lookup("tree-max-branch"))
		util.MustBindEnv("tree.maxBranch", "ECHOTREE_TREE_MAX_BRANCH")

		util.MustBindPFlag("tree.caseFolding", flags.Lookup("tree-case-folding"))
		util.MustBindEnv("tree.caseFolding", "ECHOTREE_TREE_CASE_FOLDING")

		util.MustBindPFlag("lookup.engine", flags.Lookup("lookup-engine"))
		util.MustBindEnv("lookup.engine", "ECHOTREE_LOOKUP_ENGINE")

		util.MustBindPFlag("lookup.uri", flags.Lookup("lookup-uri"))
		util.MustBindEnv("lookup.uri", "ECHOTREE_LOOKUP_URI")

		util.MustBindPFlag("lookup.maxOpenConns", flags.Lookup("lookup-max-open-conns"))
		util.MustBindEnv("lookup.maxOpenConns", "ECHOTREE_LOOKUP_MAX_OPEN_CONNS")

		util.MustBindPFlag("lookup.maxIdleConns", flags.Lookup("lookup-max-idle-conns"))
		util.MustBindEnv("lookup.maxIdleConns", "ECHOTREE_LOOKUP_MAX_IDLE_CONNS")

		util.MustBindPFlag("lookup.connMaxIdleTime", flags.Lookup("lookup-conn-max-idle-time"))
		util.MustBindEnv("lookup.connMaxIdleTime", "ECHOTREE_LOOKUP_CONN_MAX_IDLE_TIME")

		util.MustBindPFlag("lookup.connMaxLifetime", flags.Lookup("lookup-conn-max-lifetime"))
		util.MustBindEnv("lookup.connMaxLifetime", "ECHOTREE_LOOKUP_CONN_MAX_LIFETIME")

		util.MustBindPFlag("lookup.maxConcurrentReads", flags.Lookup("lookup-max-concurrent-reads"))
		util.MustBindEnv("lookup.maxConcurrentReads", "ECHOTREE_LOOKUP_MAX_CONCURRENT_READS")

		util.MustBindPFlag("lookup.metrics.enabled", flags.Lookup("lookup-metrics-enabled"))
		util.MustBindEnv("lookup.metrics.enabled", "ECHOTREE_LOOKUP_METRICS_ENABLED")

		util.MustBindPFlag("ingest.addr", flags.Lookup("ingest-addr"))
		util.MustBindEnv("ingest.addr", "ECHOTREE_INGEST_ADDR")

		util.MustBindPFlag("ingest.rateLimit", flags.Lookup("ingest-rate-limit"))
		util.MustBindEnv("ingest.rateLimit", "ECHOTREE_INGEST_RATE_LIMIT")

		util.MustBindPFlag("ingest.submitTimeout", flags.Lookup("ingest-submit-timeout"))
		util.MustBindEnv("ingest.submitTimeout", "ECHOTREE_INGEST_SUBMIT_TIMEOUT")

		util.MustBindPFlag("ingest.corsAllowedOrigins", flags.Lookup("ingest-cors-allowed-origins"))
		util.MustBindEnv("ingest.corsAllowedOrigins", "ECHOTREE_INGEST_CORS_ALLOWED_ORIGINS")

		util.MustBindPFlag("subscribe.addr", flags.Lookup("subscribe-addr"))
		util.MustBindEnv("subscribe.addr", "ECHOTREE_SUBSCRIBE_ADDR")

		util.MustBindPFlag("subscribe.writeTimeout", flags.Lookup("subscribe-write-timeout"))
		util.MustBindEnv("subscribe.writeTimeout", "ECHOTREE_SUBSCRIBE_WRITE_TIMEOUT")

		util.MustBindPFlag("subscribe.pingInterval", flags.Lookup("subscribe-ping-interval"))
		util.MustBindEnv("subscribe.pingInterval", "ECHOTREE_SUBSCRIBE_PING_INTERVAL")

		util.MustBindPFlag("subscribe.maxMessageSize", flags.Lookup("subscribe-max-message-size"))
		util.MustBindEnv("subscribe.maxMessageSize", "ECHOTREE_SUBSCRIBE_MAX_MESSAGE_SIZE")

		util.MustBindPFlag("subscribe.allowWordSubmission", flags.Lookup("subscribe-allow-word-submission"))
		util.MustBindEnv("subscribe.allowWordSubmission", "ECHOTREE_SUBSCRIBE_ALLOW_WORD_SUBMISSION")

		util.MustBindPFlag("listener.enabled", flags.Lookup("listener-enabled"))
		util.MustBindEnv("listener.enabled", "ECHOTREE_LISTENER_ENABLED")

		util.MustBindPFlag("listener.addr", flags.Lookup("listener-addr"))
		util.MustBindEnv("listener.addr", "ECHOTREE_LISTENER_ADDR")

		util.MustBindPFlag("tls.enabled", flags.Lookup("tls-enabled"))
		util.MustBindEnv("tls.enabled", "ECHOTREE_TLS_ENABLED")

		util.MustBindPFlag("tls.cert", flags.Lookup("tls-cert"))
		util.MustBindEnv("tls.cert", "ECHOTREE_TLS_CERT")

		util.MustBindPFlag("tls.key", flags.Lookup("tls-key"))
		util.MustBindEnv("tls.key", "ECHOTREE_TLS_KEY")

		util.MustBindPFlag("log.format", flags.Lookup("log-format"))
		util.MustBindEnv("log.format", "ECHOTREE_LOG_FORMAT")

		util.MustBindPFlag("log.level", flags.Lookup("log-level"))
		util.MustBindEnv("log.level", "ECHOTREE_LOG_LEVEL")

		util.MustBindPFlag("log.timestampFormat", flags.Lookup("log-timestamp-format"))
		util.MustBindEnv("log.timestampFormat", "ECHOTREE_LOG_TIMESTAMP_FORMAT")

		util.MustBindPFlag("trace.enabled", flags.Lookup("trace-enabled"))
		util.MustBindEnv("trace.enabled", "ECHOTREE_TRACE_ENABLED")

		util.MustBindPFlag("trace.otlp.endpoint", flags.Lookup("trace-otlp-endpoint"))
		util.MustBindEnv("trace.otlp.endpoint", "ECHOTREE_TRACE_OTLP_ENDPOINT")

		util.MustBindPFlag("trace.otlp.tls.enabled", flags.Lookup("trace-otlp-tls-enabled"))
		util.MustBindEnv("trace.otlp.tls.enabled", "ECHOTREE_TRACE_OTLP_TLS_ENABLED")

		util.MustBindPFlag("trace.sampleRatio", flags.Lookup("trace-sample-ratio"))
		util.MustBindEnv("trace.sampleRatio", "ECHOTREE_TRACE_SAMPLE_RATIO")

		util.MustBindPFlag("trace.serviceName", flags.Lookup("trace-service-name"))
		util.MustBindEnv("trace.serviceName", "ECHOTREE_TRACE_SERVICE_NAME")

		util.MustBindPFlag("metrics.enabled", flags.Lookup("metrics-enabled"))
		util.MustBindEnv("metrics.enabled", "ECHOTREE_METRICS_ENABLED")

		util.MustBindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
		util.MustBindEnv("metrics.addr", "ECHOTREE_METRICS_ADDR")

		util.MustBindPFlag("profiler.enabled", flags.Lookup("profiler-enabled"))
		util.MustBindEnv("profiler.enabled", "ECHOTREE_PROFILER_ENABLED")

		util.MustBindPFlag("profiler.addr", flags.Lookup("profiler-addr"))
		util.MustBindEnv("profiler.addr", "ECHOTREE_PROFILER_ADDR")
	}
}
