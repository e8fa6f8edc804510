package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/echotree/echotree/pkg/storage"
	"github.com/echotree/echotree/pkg/storage/sqlcommon"
	"github.com/echotree/echotree/pkg/storage/test"
)

func newMigratedDatastore(t *testing.T) *Datastore {
	t.Helper()

	uri := "file:" + filepath.Join(t.TempDir(), "echotree.db")
	ds, err := New(uri, sqlcommon.NewConfig())
	require.NoError(t, err)
	t.Cleanup(ds.Close)

	require.NoError(t, ds.Migrate(context.Background(), 0, false))
	return ds
}

func TestSQLiteDatastore(t *testing.T) {
	ds := newMigratedDatastore(t)
	test.RunAllTests(t, ds)
}

func TestSQLiteDatastoreNotReadyBeforeMigrate(t *testing.T) {
	uri := "file:" + filepath.Join(t.TempDir(), "echotree.db")
	ds, err := New(uri, sqlcommon.NewConfig())
	require.NoError(t, err)
	defer ds.Close()

	status, err := ds.IsReady(context.Background())
	require.NoError(t, err)
	require.False(t, status.IsReady)
	require.Contains(t, status.Message, "echotree migrate")
}

func TestSQLiteDatastoreAfterCloseIsNotReady(t *testing.T) {
	uri := "file:" + filepath.Join(t.TempDir(), "echotree.db")
	ds, err := New(uri, sqlcommon.NewConfig())
	require.NoError(t, err)
	ds.Close()

	status, err := ds.IsReady(context.Background())
	require.Error(t, err)
	require.False(t, status.IsReady)
}

func TestSQLiteMaxRowsPerWrite(t *testing.T) {
	uri := "file:" + filepath.Join(t.TempDir(), "echotree.db")
	ds, err := New(uri, sqlcommon.NewConfig(sqlcommon.WithMaxRowsPerWrite(1)))
	require.NoError(t, err)
	defer ds.Close()
	require.NoError(t, ds.Migrate(context.Background(), 0, false))

	err = ds.WriteFollowers(context.Background(), []storage.Row{
		{Word: "a", Follower: "b", Count: 1},
		{Word: "a", Follower: "c", Count: 1},
	})
	require.ErrorContains(t, err, "cannot write more than 1 rows")
}

func TestSQLiteSchemaVersion(t *testing.T) {
	ds := newMigratedDatastore(t)

	version, err := sqlcommon.SchemaVersion(context.Background(), ds.db)
	require.NoError(t, err)
	require.Equal(t, int64(1), version)

	// Re-running is a no-op.
	require.NoError(t, ds.Migrate(context.Background(), 1, false))
}

func TestPrepareDSN(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{
			name: "adds_defaults",
			uri:  "file:echotree.db",
			want: "file:echotree.db?_pragma=journal_mode%28WAL%29&_pragma=busy_timeout%28100%29&_txlock=immediate",
		},
		{
			name: "keeps_journal_mode",
			uri:  "file:echotree.db?_pragma=journal_mode(DELETE)",
			want: "file:echotree.db?_pragma=journal_mode%28DELETE%29&_pragma=busy_timeout%28100%29&_txlock=immediate",
		},
		{
			name: "keeps_txlock",
			uri:  "file:echotree.db?_txlock=deferred",
			want: "file:echotree.db?_pragma=journal_mode%28WAL%29&_pragma=busy_timeout%28100%29&_txlock=deferred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PrepareDSN(tt.uri)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
