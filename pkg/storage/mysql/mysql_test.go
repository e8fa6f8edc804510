package mysql

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/echotree/echotree/pkg/storage/sqlcommon"
	"github.com/echotree/echotree/pkg/storage/test"
)

func TestPrepareDSN(t *testing.T) {
	t.Run("unchanged_without_credentials", func(t *testing.T) {
		uri := "root:secret@tcp(localhost:3306)/echotree"
		got, err := PrepareDSN(uri, sqlcommon.NewConfig())
		require.NoError(t, err)
		require.Equal(t, uri, got)
	})

	t.Run("overrides_user_and_password", func(t *testing.T) {
		got, err := PrepareDSN("root:secret@tcp(localhost:3306)/echotree", sqlcommon.NewConfig(
			sqlcommon.WithUsername("echo"),
			sqlcommon.WithPassword("tree"),
		))
		require.NoError(t, err)
		require.Contains(t, got, "echo:tree@tcp(localhost:3306)/echotree")
	})

	t.Run("invalid_dsn", func(t *testing.T) {
		_, err := PrepareDSN("not a dsn", sqlcommon.NewConfig(sqlcommon.WithUsername("echo")))
		require.Error(t, err)
	})
}

// ECHOTREE_TEST_MYSQL_URI points at a disposable database, e.g.
// root:secret@tcp(localhost:3306)/echotree?parseTime=true.
func TestMySQLDatastore(t *testing.T) {
	uri := os.Getenv("ECHOTREE_TEST_MYSQL_URI")
	if uri == "" {
		t.Skip("ECHOTREE_TEST_MYSQL_URI is not set")
	}

	ds, err := New(uri, sqlcommon.NewConfig())
	require.NoError(t, err)
	defer ds.Close()

	require.NoError(t, ds.Migrate(context.Background(), 0, false))
	_, err = ds.db.ExecContext(context.Background(), "TRUNCATE TABLE WordStats")
	require.NoError(t, err)

	test.RunAllTests(t, ds)
}
