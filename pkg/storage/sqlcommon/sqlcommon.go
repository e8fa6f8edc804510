package sqlcommon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/echotree/echotree/internal/build"
	"github.com/echotree/echotree/pkg/logger"
	"github.com/echotree/echotree/pkg/storage"
)

var tracer = otel.Tracer("pkg/storage/sqlcommon")

// TableName is the co-occurrence table every SQL store reads from.
const TableName = "WordStats"

// DefaultMaxRowsPerWrite caps the rows accepted by one WriteFollowers call.
const DefaultMaxRowsPerWrite = 1000

// Config defines the configuration parameters
// for setting up and managing a sql connection.
type Config struct {
	Username        string
	Password        string
	Logger          logger.Logger
	MaxRowsPerWrite int

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	ExportMetrics bool
}

// DatastoreOption defines a function type
// used for configuring a Config object.
type DatastoreOption func(*Config)

// WithUsername returns a DatastoreOption that sets the username in the Config.
func WithUsername(username string) DatastoreOption {
	return func(config *Config) {
		config.Username = username
	}
}

// WithPassword returns a DatastoreOption that sets the password in the Config.
func WithPassword(password string) DatastoreOption {
	return func(config *Config) {
		config.Password = password
	}
}

// WithLogger returns a DatastoreOption that sets the Logger in the Config.
func WithLogger(l logger.Logger) DatastoreOption {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// WithMaxRowsPerWrite returns a DatastoreOption that sets
// the maximum number of rows per write in the Config.
func WithMaxRowsPerWrite(maxRows int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxRowsPerWrite = maxRows
	}
}

// WithMaxOpenConns returns a DatastoreOption that sets the
// maximum number of open connections in the Config.
func WithMaxOpenConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxOpenConns = c
	}
}

// WithMaxIdleConns returns a DatastoreOption that sets the
// maximum number of idle connections in the Config.
func WithMaxIdleConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxIdleConns = c
	}
}

// WithConnMaxIdleTime returns a DatastoreOption that sets
// the maximum idle time for a connection in the Config.
func WithConnMaxIdleTime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxIdleTime = d
	}
}

// WithConnMaxLifetime returns a DatastoreOption that sets
// the maximum lifetime for a connection in the Config.
func WithConnMaxLifetime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxLifetime = d
	}
}

// WithMetrics returns a DatastoreOption that
// enables the export of metrics in the Config.
func WithMetrics() DatastoreOption {
	return func(cfg *Config) {
		cfg.ExportMetrics = true
	}
}

// NewConfig creates a new Config instance with default values
// and applies any provided DatastoreOption modifications.
func NewConfig(opts ...DatastoreOption) *Config {
	cfg := &Config{}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoopLogger()
	}

	if cfg.MaxRowsPerWrite == 0 {
		cfg.MaxRowsPerWrite = DefaultMaxRowsPerWrite
	}

	return cfg
}

// ApplyPoolSettings copies the connection pool limits of cfg onto db.
func ApplyPoolSettings(db *sql.DB, cfg *Config) {
	if cfg.MaxOpenConns != 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns != 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime != 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime != 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// RegisterDBStats exports the connection pool statistics of db when cfg asks for metrics.
// The returned collector is nil when metrics are disabled.
func RegisterDBStats(db *sql.DB, cfg *Config) (prometheus.Collector, error) {
	if !cfg.ExportMetrics {
		return nil, nil
	}

	collector := collectors.NewDBStatsCollector(db, build.ProjectName)
	if err := prometheus.Register(collector); err != nil {
		return nil, fmt.Errorf("initialize metrics: %w", err)
	}
	return collector, nil
}

// ErrorHandlerFn translates driver errors into storage errors.
type ErrorHandlerFn func(error) error

// DBInfo encapsulates DB information for use in common method.
type DBInfo struct {
	db             *sql.DB
	stbl           sq.StatementBuilderType
	upsertSuffix   string
	HandleSQLError ErrorHandlerFn
}

// NewDBInfo constructs a [DBInfo] object. The upsert suffix is appended to every insert so
// that writing an existing (word, follower) pair adds to its count.
func NewDBInfo(db *sql.DB, stbl sq.StatementBuilderType, errorHandler ErrorHandlerFn, dialect, upsertSuffix string) *DBInfo {
	if err := goose.SetDialect(dialect); err != nil {
		panic("failed to set database dialect: " + err.Error())
	}

	return &DBInfo{
		db:             db,
		stbl:           stbl,
		upsertSuffix:   upsertSuffix,
		HandleSQLError: errorHandler,
	}
}

// ReadFollowers provides the common follower query across sql storage. Ties on count are
// broken by insertion id so the order is stable across calls.
func ReadFollowers(ctx context.Context, dbInfo *DBInfo, word string) ([]storage.Follower, error) {
	ctx, span := tracer.Start(ctx, "sqlcommon.ReadFollowers", trace.WithAttributes(attribute.String("word", word)))
	defer span.End()

	rows, err := dbInfo.stbl.
		Select("follower", "count").
		From(TableName).
		Where(sq.Eq{"word": word}).
		OrderBy("count DESC", "id ASC").
		QueryContext(ctx)
	if err != nil {
		return nil, dbInfo.HandleSQLError(err)
	}
	defer rows.Close()

	followers := make([]storage.Follower, 0)
	for rows.Next() {
		var f storage.Follower
		if err := rows.Scan(&f.Word, &f.Count); err != nil {
			return nil, dbInfo.HandleSQLError(err)
		}
		followers = append(followers, f)
	}

	if err := rows.Err(); err != nil {
		return nil, dbInfo.HandleSQLError(err)
	}

	return followers, nil
}

// WriteFollowers provides the common method for writing co-occurrence rows across sql
// storage. All rows are written in a single transaction.
func WriteFollowers(ctx context.Context, dbInfo *DBInfo, rows []storage.Row, maxRows int) error {
	ctx, span := tracer.Start(ctx, "sqlcommon.WriteFollowers", trace.WithAttributes(attribute.Int("rows", len(rows))))
	defer span.End()

	if len(rows) > maxRows {
		return fmt.Errorf("cannot write more than %d rows in a single call, got %d", maxRows, len(rows))
	}

	for _, r := range rows {
		if err := storage.ValidateRow(r); err != nil {
			return fmt.Errorf("%w: %+v", err, r)
		}
	}

	if len(rows) == 0 {
		return nil
	}

	txn, err := dbInfo.db.BeginTx(ctx, nil)
	if err != nil {
		return dbInfo.HandleSQLError(err)
	}
	defer func() {
		_ = txn.Rollback()
	}()

	// One statement per row: a multi-row upsert may not touch the same pair twice.
	for _, r := range rows {
		_, err = dbInfo.stbl.
			Insert(TableName).
			Columns("word", "follower", "count").
			Values(r.Word, r.Follower, r.Count).
			Suffix(dbInfo.upsertSuffix).
			RunWith(txn).
			ExecContext(ctx)
		if err != nil {
			return dbInfo.HandleSQLError(err)
		}
	}

	if err := txn.Commit(); err != nil {
		return dbInfo.HandleSQLError(err)
	}

	return nil
}

// HandleSQLError maps errors common to every driver.
func HandleSQLError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", storage.ErrCancelled, err)
	}
	return fmt.Errorf("sql error: %w", err)
}

// IsReady returns true if connection to datastore is successful AND
// (the datastore has the latest migration applied OR skipVersionCheck).
func IsReady(ctx context.Context, skipVersionCheck bool, db *sql.DB) (storage.ReadinessStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// do ping first to ensure we have better error message
	// if error is due to connection issue.
	if pingErr := db.PingContext(ctx); pingErr != nil {
		return storage.ReadinessStatus{}, pingErr
	}

	if skipVersionCheck {
		return storage.ReadinessStatus{
			IsReady: true,
		}, nil
	}

	revision, err := SchemaVersion(ctx, db)
	if err != nil {
		return storage.ReadinessStatus{}, err
	}

	if revision < build.MinimumSupportedDatastoreSchemaRevision {
		return storage.ReadinessStatus{
			Message: "datastore requires migrations: at revision '" +
				strconv.FormatInt(revision, 10) +
				"', but requires '" +
				strconv.FormatInt(build.MinimumSupportedDatastoreSchemaRevision, 10) +
				"'. Run 'echotree migrate'.",
			IsReady: false,
		}, nil
	}
	return storage.ReadinessStatus{
		IsReady: true,
	}, nil
}

// WaitForDB pings db with exponential backoff until it answers or maxElapsed passes.
func WaitForDB(ctx context.Context, db *sql.DB, log logger.Logger, maxElapsed time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxElapsed
	attempt := 1
	err := backoff.Retry(func() error {
		err := db.PingContext(ctx)
		if err != nil {
			log.Info("waiting for database", zap.Int("attempt", attempt))
			attempt++
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

// OverrideCredentials replaces the user info of a URL-form connection string with the
// configured username and password. Unset values keep what the URI carries.
func OverrideCredentials(uri string, cfg *Config) (string, error) {
	if cfg.Username == "" && cfg.Password == "" {
		return uri, nil
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse connection uri: %w", err)
	}

	username := ""
	if cfg.Username != "" {
		username = cfg.Username
	} else if parsed.User != nil {
		username = parsed.User.Username()
	}

	switch {
	case cfg.Password != "":
		parsed.User = url.UserPassword(username, cfg.Password)
	case parsed.User != nil:
		if password, ok := parsed.User.Password(); ok {
			parsed.User = url.UserPassword(username, password)
		} else {
			parsed.User = url.User(username)
		}
	default:
		parsed.User = url.User(username)
	}

	return parsed.String(), nil
}
