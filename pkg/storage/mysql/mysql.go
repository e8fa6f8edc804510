package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/echotree/echotree/assets"
	"github.com/echotree/echotree/pkg/logger"
	"github.com/echotree/echotree/pkg/storage"
	"github.com/echotree/echotree/pkg/storage/sqlcommon"
)

var tracer = otel.Tracer("echotree/pkg/storage/mysql")

const upsertSuffix = "ON DUPLICATE KEY UPDATE count = count + VALUES(count)"

// MySQL provides a MySQL based implementation of [storage.FollowerDatastore].
type MySQL struct {
	stbl             sq.StatementBuilderType
	db               *sql.DB
	dbInfo           *sqlcommon.DBInfo
	logger           logger.Logger
	dbStatsCollector prometheus.Collector
	maxRowsPerWrite  int
	versionReady     bool
}

var _ storage.FollowerDatastore = (*MySQL)(nil)

// PrepareDSN applies the configured credentials to a go-sql-driver DSN.
func PrepareDSN(uri string, cfg *sqlcommon.Config) (string, error) {
	if cfg.Username == "" && cfg.Password == "" {
		return uri, nil
	}

	dsnCfg, err := mysql.ParseDSN(uri)
	if err != nil {
		return "", fmt.Errorf("failed to parse mysql connection dsn: %w", err)
	}

	if cfg.Username != "" {
		dsnCfg.User = cfg.Username
	}
	if cfg.Password != "" {
		dsnCfg.Passwd = cfg.Password
	}

	return dsnCfg.FormatDSN(), nil
}

// New creates a new [MySQL] storage.
func New(uri string, cfg *sqlcommon.Config) (*MySQL, error) {
	uri, err := PrepareDSN(uri, cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}

	sqlcommon.ApplyPoolSettings(db, cfg)

	if err := sqlcommon.WaitForDB(context.Background(), db, cfg.Logger, 1*time.Minute); err != nil {
		return nil, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}

	collector, err := sqlcommon.RegisterDBStats(db, cfg)
	if err != nil {
		return nil, err
	}

	stbl := sq.StatementBuilder.RunWith(db)

	return &MySQL{
		stbl:             stbl,
		db:               db,
		dbInfo:           sqlcommon.NewDBInfo(db, stbl, HandleSQLError, "mysql", upsertSuffix),
		logger:           cfg.Logger,
		dbStatsCollector: collector,
		maxRowsPerWrite:  cfg.MaxRowsPerWrite,
	}, nil
}

// Migrate applies the embedded MySQL migrations up to targetVersion, or all of them when it is zero.
func (m *MySQL) Migrate(ctx context.Context, targetVersion int64, verbose bool) error {
	return sqlcommon.Migrate(ctx, m.db, sqlcommon.MigrationConfig{
		Dialect:       "mysql",
		Dir:           assets.MySQLMigrationDir,
		TargetVersion: targetVersion,
		Verbose:       verbose,
		Logger:        m.logger,
	})
}

// Close closes the datastore and cleans up any residual resources.
func (m *MySQL) Close() {
	if m.dbStatsCollector != nil {
		prometheus.Unregister(m.dbStatsCollector)
	}
	m.db.Close()
}

// ReadFollowers see [storage.FollowerLookup].ReadFollowers.
func (m *MySQL) ReadFollowers(ctx context.Context, word string) ([]storage.Follower, error) {
	ctx, span := tracer.Start(ctx, "mysql.ReadFollowers")
	defer span.End()

	return sqlcommon.ReadFollowers(ctx, m.dbInfo, word)
}

// WriteFollowers see [storage.FollowerWriter].WriteFollowers.
func (m *MySQL) WriteFollowers(ctx context.Context, rows []storage.Row) error {
	ctx, span := tracer.Start(ctx, "mysql.WriteFollowers")
	defer span.End()

	return sqlcommon.WriteFollowers(ctx, m.dbInfo, rows, m.maxRowsPerWrite)
}

// IsReady see [sqlcommon.IsReady].
func (m *MySQL) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	versionReady, err := sqlcommon.IsReady(ctx, m.versionReady, m.db)
	if err != nil {
		return versionReady, err
	}
	m.versionReady = versionReady.IsReady
	return versionReady, nil
}

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error) error {
	return sqlcommon.HandleSQLError(err)
}
