package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/echotree/echotree/assets"
	"github.com/echotree/echotree/pkg/logger"
	"github.com/echotree/echotree/pkg/storage"
	"github.com/echotree/echotree/pkg/storage/sqlcommon"
)

var tracer = otel.Tracer("echotree/pkg/storage/sqlite")

func startTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "sqlite."+name)
}

const upsertSuffix = "ON CONFLICT (word, follower) DO UPDATE SET count = WordStats.count + excluded.count"

// Datastore provides a SQLite based implementation of [storage.FollowerDatastore].
type Datastore struct {
	stbl             sq.StatementBuilderType
	db               *sql.DB
	dbInfo           *sqlcommon.DBInfo
	logger           logger.Logger
	dbStatsCollector prometheus.Collector
	maxRowsPerWrite  int
	versionReady     bool
}

// Ensures that SQLite implements the FollowerDatastore interface.
var _ storage.FollowerDatastore = (*Datastore)(nil)

// Prepare a raw DSN from config for use with SQLite, specifying defaults for journal mode and busy timeout.
func PrepareDSN(uri string) (string, error) {
	// Set journal mode and busy timeout pragmas if not specified.
	query := url.Values{}
	var err error

	if i := strings.Index(uri, "?"); i != -1 {
		query, err = url.ParseQuery(uri[i+1:])
		if err != nil {
			return uri, fmt.Errorf("error parsing dsn: %w", err)
		}

		uri = uri[:i]
	}

	foundJournalMode := false
	foundBusyTimeout := false
	for _, val := range query["_pragma"] {
		if strings.HasPrefix(val, "journal_mode") {
			foundJournalMode = true
		} else if strings.HasPrefix(val, "busy_timeout") {
			foundBusyTimeout = true
		}
	}

	if !foundJournalMode {
		query.Add("_pragma", "journal_mode(WAL)")
	}
	if !foundBusyTimeout {
		query.Add("_pragma", "busy_timeout(100)")
	}

	// Set transaction mode to immediate if not specified
	if !query.Has("_txlock") {
		query.Set("_txlock", "immediate")
	}

	uri += "?" + query.Encode()

	return uri, nil
}

// New creates a new [Datastore] storage.
func New(uri string, cfg *sqlcommon.Config) (*Datastore, error) {
	uri, err := PrepareDSN(uri)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite connection: %w", err)
	}

	sqlcommon.ApplyPoolSettings(db, cfg)

	collector, err := sqlcommon.RegisterDBStats(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	stbl := sq.StatementBuilder.RunWith(db)
	dbInfo := sqlcommon.NewDBInfo(db, stbl, HandleSQLError, "sqlite", upsertSuffix)

	return &Datastore{
		stbl:             stbl,
		db:               db,
		dbInfo:           dbInfo,
		logger:           cfg.Logger,
		dbStatsCollector: collector,
		maxRowsPerWrite:  cfg.MaxRowsPerWrite,
		versionReady:     false,
	}, nil
}

// Migrate applies the embedded SQLite migrations up to targetVersion, or all of them when it is zero.
func (s *Datastore) Migrate(ctx context.Context, targetVersion int64, verbose bool) error {
	return busyRetry(func() error {
		return sqlcommon.Migrate(ctx, s.db, sqlcommon.MigrationConfig{
			Dialect:       "sqlite",
			Dir:           assets.SqliteMigrationDir,
			TargetVersion: targetVersion,
			Verbose:       verbose,
			Logger:        s.logger,
		})
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

	var followers []storage.Follower
	err := busyRetry(func() error {
		var err error
		followers, err = sqlcommon.ReadFollowers(ctx, s.dbInfo, word)
		return err
	})
	return followers, err
}

// WriteFollowers see [storage.FollowerWriter].WriteFollowers.
func (s *Datastore) WriteFollowers(ctx context.Context, rows []storage.Row) error {
	ctx, span := startTrace(ctx, "WriteFollowers")
	defer span.End()

	return busyRetry(func() error {
		return sqlcommon.WriteFollowers(ctx, s.dbInfo, rows, s.maxRowsPerWrite)
	})
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
	if isBusyError(err) {
		// Left intact so busyRetry can see it.
		return err
	}

	return sqlcommon.HandleSQLError(err)
}

// SQLite will return an SQLITE_BUSY error when the database is locked rather than waiting for the lock.
// This function retries the operation up to maxRetries times before returning the error.
func busyRetry(fn func() error) error {
	const maxRetries = 10
	for retries := 0; ; retries++ {
		err := fn()
		if err == nil {
			return nil
		}

		if isBusyError(err) {
			if retries < maxRetries {
				continue
			}

			return fmt.Errorf("sqlite busy error after %d retries: %w", maxRetries, err)
		}

		return err
	}
}

var busyErrors = map[int]struct{}{
	sqlite3.SQLITE_BUSY_RECOVERY:      {},
	sqlite3.SQLITE_BUSY_SNAPSHOT:      {},
	sqlite3.SQLITE_BUSY_TIMEOUT:       {},
	sqlite3.SQLITE_BUSY:               {},
	sqlite3.SQLITE_LOCKED_SHAREDCACHE: {},
	sqlite3.SQLITE_LOCKED:             {},
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	_, ok := busyErrors[sqliteErr.Code()]
	return ok
}
