// Package test holds the behavioral suite every follower datastore must pass.
package test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/echotree/echotree/pkg/storage"
)

func RunAllTests(t *testing.T, ds storage.FollowerDatastore) {
	t.Run("TestDatastoreIsReady", func(t *testing.T) {
		status, err := ds.IsReady(context.Background())
		require.NoError(t, err)
		require.True(t, status.IsReady)
	})
	t.Run("TestReadFollowersOrderedByCount", func(t *testing.T) { ReadFollowersOrderedByCountTest(t, ds) })
	t.Run("TestReadFollowersTiesKeepWriteOrder", func(t *testing.T) { ReadFollowersTiesKeepWriteOrderTest(t, ds) })
	t.Run("TestReadFollowersUnknownWord", func(t *testing.T) { ReadFollowersUnknownWordTest(t, ds) })
	t.Run("TestWriteFollowersAccumulates", func(t *testing.T) { WriteFollowersAccumulatesTest(t, ds) })
	t.Run("TestWriteFollowersRejectsInvalidRows", func(t *testing.T) { WriteFollowersRejectsInvalidRowsTest(t, ds) })
	t.Run("TestReadFollowersSelfFollower", func(t *testing.T) { ReadFollowersSelfFollowerTest(t, ds) })
}

func ReadFollowersOrderedByCountTest(t *testing.T, ds storage.FollowerDatastore) {
	ctx := context.Background()

	err := ds.WriteFollowers(ctx, []storage.Row{
		{Word: "ant", Follower: "farm", Count: 1},
		{Word: "ant", Follower: "hill", Count: 5},
		{Word: "ant", Follower: "eater", Count: 3},
		{Word: "hill", Follower: "top", Count: 2},
	})
	require.NoError(t, err)

	got, err := ds.ReadFollowers(ctx, "ant")
	require.NoError(t, err)

	expected := []storage.Follower{
		{Word: "hill", Count: 5},
		{Word: "eater", Count: 3},
		{Word: "farm", Count: 1},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	got, err = ds.ReadFollowers(ctx, "hill")
	require.NoError(t, err)
	require.Equal(t, []string{"top"}, storage.Words(got))
}

func ReadFollowersTiesKeepWriteOrderTest(t *testing.T, ds storage.FollowerDatastore) {
	ctx := context.Background()

	err := ds.WriteFollowers(ctx, []storage.Row{
		{Word: "tie", Follower: "c", Count: 2},
		{Word: "tie", Follower: "a", Count: 2},
		{Word: "tie", Follower: "top", Count: 9},
		{Word: "tie", Follower: "b", Count: 2},
	})
	require.NoError(t, err)

	got, err := ds.ReadFollowers(ctx, "tie")
	require.NoError(t, err)
	require.Equal(t, []string{"top", "c", "a", "b"}, storage.Words(got))
}

func ReadFollowersUnknownWordTest(t *testing.T, ds storage.FollowerDatastore) {
	got, err := ds.ReadFollowers(context.Background(), "never-written")
	require.NoError(t, err)
	require.Empty(t, got)
}

func WriteFollowersAccumulatesTest(t *testing.T, ds storage.FollowerDatastore) {
	ctx := context.Background()

	require.NoError(t, ds.WriteFollowers(ctx, []storage.Row{
		{Word: "echo", Follower: "chamber", Count: 2},
		{Word: "echo", Follower: "location", Count: 3},
	}))
	require.NoError(t, ds.WriteFollowers(ctx, []storage.Row{
		{Word: "echo", Follower: "chamber", Count: 4},
	}))

	got, err := ds.ReadFollowers(ctx, "echo")
	require.NoError(t, err)

	expected := []storage.Follower{
		{Word: "chamber", Count: 6},
		{Word: "location", Count: 3},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func WriteFollowersRejectsInvalidRowsTest(t *testing.T, ds storage.FollowerDatastore) {
	ctx := context.Background()

	err := ds.WriteFollowers(ctx, []storage.Row{{Word: " ", Follower: "x", Count: 1}})
	require.ErrorIs(t, err, storage.ErrInvalidWord)

	err = ds.WriteFollowers(ctx, []storage.Row{{Word: "neg", Follower: "x", Count: -1}})
	require.ErrorIs(t, err, storage.ErrInvalidCount)

	got, err := ds.ReadFollowers(ctx, "neg")
	require.NoError(t, err)
	require.Empty(t, got)
}

func ReadFollowersSelfFollowerTest(t *testing.T, ds storage.FollowerDatastore) {
	ctx := context.Background()

	require.NoError(t, ds.WriteFollowers(ctx, []storage.Row{
		{Word: "very", Follower: "very", Count: 7},
		{Word: "very", Follower: "good", Count: 1},
	}))

	got, err := ds.ReadFollowers(ctx, "very")
	require.NoError(t, err)
	require.Equal(t, []string{"very", "good"}, storage.Words(got))
}
