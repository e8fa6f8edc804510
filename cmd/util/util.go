// Package util provides common utilities for spf13/cobra CLI utilities
// that can be used for various commands within this project.
package util

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/echotree/echotree/pkg/logger"
	"github.com/echotree/echotree/pkg/storage"
	"github.com/echotree/echotree/pkg/storage/badger"
	"github.com/echotree/echotree/pkg/storage/memory"
	"github.com/echotree/echotree/pkg/storage/mysql"
	"github.com/echotree/echotree/pkg/storage/postgres"
	"github.com/echotree/echotree/pkg/storage/sqlcommon"
	"github.com/echotree/echotree/pkg/storage/sqlite"
)

// MustBindPFlag attempts to bind a specific key to a pflag (as used by cobra) and panics
// if the binding fails with a non-nil error.
func MustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

func MustBindEnv(input ...string) {
	if err := viper.BindEnv(input...); err != nil {
		panic("failed to bind env key: " + err.Error())
	}
}

// Migrator is implemented by the lookup stores that carry a versioned schema.
type Migrator interface {
	Migrate(ctx context.Context, targetVersion int64, verbose bool) error
}

// OpenDatastore opens the lookup store of the given engine. Badger stores are opened at uri
// as a directory; the SQL engines take cfg for their connection pool.
func OpenDatastore(engine, uri string, cfg *sqlcommon.Config) (storage.FollowerDatastore, error) {
	switch engine {
	case "memory":
		return memory.New(memory.WithMaxRowsPerWrite(cfg.MaxRowsPerWrite)), nil
	case "sqlite":
		ds, err := sqlite.New(uri, cfg)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite datastore: %w", err)
		}
		return ds, nil
	case "postgres":
		ds, err := postgres.New(uri, cfg)
		if err != nil {
			return nil, fmt.Errorf("initialize postgres datastore: %w", err)
		}
		return ds, nil
	case "mysql":
		ds, err := mysql.New(uri, cfg)
		if err != nil {
			return nil, fmt.Errorf("initialize mysql datastore: %w", err)
		}
		return ds, nil
	case "badger":
		opts := []badger.Option{badger.WithMaxRowsPerWrite(cfg.MaxRowsPerWrite)}
		if cfg.Logger != nil {
			opts = append(opts, badger.WithLogger(cfg.Logger))
		}
		ds, err := badger.New(uri, opts...)
		if err != nil {
			return nil, fmt.Errorf("initialize badger datastore: %w", err)
		}
		return ds, nil
	case "":
		return nil, fmt.Errorf("missing datastore engine type")
	default:
		return nil, fmt.Errorf("unknown datastore engine type: %s", engine)
	}
}

// MustOpenTestDatastore opens a migrated datastore of the given engine for a test, on a
// temporary directory where the engine needs one. It is closed when the test ends.
func MustOpenTestDatastore(t testing.TB, engine string) (storage.FollowerDatastore, string) {
	t.Helper()

	var uri string
	switch engine {
	case "sqlite":
		uri = "file:" + filepath.Join(t.TempDir(), "echotree.db")
	case "badger":
		uri = filepath.Join(t.TempDir(), "badger")
	}

	ds, err := OpenDatastore(engine, uri, sqlcommon.NewConfig(sqlcommon.WithLogger(logger.NewNoopLogger())))
	require.NoError(t, err)
	t.Cleanup(ds.Close)

	if m, ok := ds.(Migrator); ok {
		require.NoError(t, m.Migrate(context.Background(), 0, false))
	}

	return ds, uri
}

// PrepareTempConfigDir moves the working directory to a fresh temp dir so that a config.yaml
// in the current directory does not leak into the test.
func PrepareTempConfigDir(t *testing.T) string {
	_, err := os.Stat("/etc/echotree/config.yaml")
	require.ErrorIs(t, err, os.ErrNotExist, "Config file at /etc/echotree/config.yaml would disturb test result.")

	homedir := t.TempDir()
	t.Setenv("HOME", homedir)

	confdir := filepath.Join(homedir, ".echotree")
	require.NoError(t, os.Mkdir(confdir, 0o750))

	t.Chdir(t.TempDir())

	return confdir
}

// PrepareTempConfigFile writes config as the config.yaml of a fresh temp config dir.
func PrepareTempConfigFile(t *testing.T, config string) {
	confdir := PrepareTempConfigDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(confdir, "config.yaml"), []byte(config), 0o600))
}
