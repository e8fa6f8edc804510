package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/echotree/echotree/assets"
	"github.com/echotree/echotree/pkg/logger"
	"github.com/echotree/echotree/pkg/storage"
	"github.com/echotree/echotree/pkg/storage/sqlcommon"
)

var tracer = otel.Tracer("echotree/pkg/storage/postgres")

func startTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "postgres."+name)
}

const upsertSuffix = "ON CONFLICT (word, follower) DO UPDATE SET count = WordStats.count + EXCLUDED.count"

// Datastore provides a PostgreSQL based implementation of [storage.FollowerDatastore].
type Datastore struct {
	stbl             sq.StatementBuilderType
	db               *sql.DB
	dbInfo           *sqlcommon.DBInfo
	logger           logger.Logger
	dbStatsCollector prometheus.Collector
	maxRowsPerWrite  int
	versionReady     bool
}

// Ensures that Datastore implements the FollowerDatastore interface.
var _ storage.FollowerDatastore = (*Datastore)(nil)

// Open opens a postgres connection pool for uri with the credentials and pool limits of cfg.
func Open(uri string, cfg *sqlcommon.Config) (*sql.DB, error) {
	uri, err := sqlcommon.OverrideCredentials(uri, cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres connection: %w", err)
	}

	sqlcommon.ApplyPoolSettings(db, cfg)
	return db, nil
}

// New creates a new [Datastore] storage.
func New(uri string, cfg *sqlcommon.Config) (*Datastore, error) {
	db, err := Open(uri, cfg)
	if err != nil {
		return nil, err
	}

	return NewWithDB(db, cfg)
}

// NewWithDB creates a new [Datastore] storage with the provided database connection.
func NewWithDB(db *sql.DB, cfg *sqlcommon.Config) (*Datastore, error) {
	if err := sqlcommon.WaitForDB(context.Background(), db, cfg.Logger, 1*time.Minute); err != nil {
		return nil, fmt.Errorf("configure db: %w", err)
	}

	collector, err := sqlcommon.RegisterDBStats(db, cfg)
	if err != nil {
		return nil, err
	}

	stbl := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).RunWith(db)

	return &Datastore{
		stbl:             stbl,
		db:               db,
		dbInfo:           sqlcommon.NewDBInfo(db, stbl, HandleSQLError, "postgres", upsertSuffix),
		logger:           cfg.Logger,
		dbStatsCollector: collector,
		maxRowsPerWrite:  cfg.MaxRowsPerWrite,
	}, nil
}

// Migrate applies the embedded PostgreSQL migrations up to targetVersion, or all of them when it is zero.
func (s *Datastore) Migrate(ctx context.Context, targetVersion int64, verbose bool) error {
	return sqlcommon.Migrate(ctx, s.db, sqlcommon.MigrationConfig{
		Dialect:       "postgres",
		Dir:           assets.PostgresMigrationDir,
		TargetVersion: targetVersion,
		Verbose:       verbose,
		Logger:        s.logger,
	})
}

// Close see [storage.FollowerDatastore].Close.
func (s *Datastore) Close() {
	if s.dbStatsCollector != nil {
		prometheus.Unregister(s.dbStatsCollector)
	}
	s.db.Close()
}

// ReadFollowers see [storage.FollowerLookup].ReadFollowers.
func (s *Datastore) ReadFollowers(ctx context.Context, word string) ([]storage.Follower, error) {
	ctx, span := startTrace(ctx, "ReadFollowers")
	defer span.End()

	return sqlcommon.ReadFollowers(ctx, s.dbInfo, word)
}

// WriteFollowers see [storage.FollowerWriter].WriteFollowers.
func (s *Datastore) WriteFollowers(ctx context.Context, rows []storage.Row) error {
	ctx, span := startTrace(ctx, "WriteFollowers")
	defer span.End()

	return sqlcommon.WriteFollowers(ctx, s.dbInfo, rows, s.maxRowsPerWrite)
}

// IsReady see [sqlcommon.IsReady].
func (s *Datastore) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	versionReady, err := sqlcommon.IsReady(ctx, s.versionReady, s.db)
	if err != nil {
		return versionReady, err
	}
	s.versionReady = versionReady.IsReady
	return versionReady, nil
}

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error) error {
	return sqlcommon.HandleSQLError(err)
}
