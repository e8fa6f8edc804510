package util

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/echotree/echotree/pkg/storage"
	"github.com/echotree/echotree/pkg/storage/sqlcommon"
)

func TestOpenDatastore(t *testing.T) {
	for _, engine := range []string{"memory", "sqlite", "badger"} {
		t.Run(engine, func(t *testing.T) {
			ds, _ := MustOpenTestDatastore(t, engine)

			ctx := context.Background()
			status, err := ds.IsReady(ctx)
			require.NoError(t, err)
			require.True(t, status.IsReady)

			require.NoError(t, ds.WriteFollowers(ctx, []storage.Row{{Word: "ant", Follower: "hill", Count: 2}}))

			followers, err := ds.ReadFollowers(ctx, "ant")
			require.NoError(t, err)
			require.Equal(t, []string{"hill"}, storage.Words(followers))
		})
	}
}

func TestOpenDatastoreUnknownEngine(t *testing.T) {
	_, err := OpenDatastore("", "", sqlcommon.NewConfig())
	require.ErrorContains(t, err, "missing datastore engine type")

	_, err = OpenDatastore("cassandra", "", sqlcommon.NewConfig())
	require.ErrorContains(t, err, "unknown datastore engine type: cassandra")
}
