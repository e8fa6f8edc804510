package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/echotree/echotree/pkg/storage"
	"github.com/echotree/echotree/pkg/storage/test"
)

func TestMemdbStorage(t *testing.T) {
	ds := New()
	test.RunAllTests(t, ds)
}

func TestMaxRowsPerWrite(t *testing.T) {
	ds := New(WithMaxRowsPerWrite(1))

	err := ds.WriteFollowers(context.Background(), []storage.Row{
		{Word: "a", Follower: "b", Count: 1},
		{Word: "a", Follower: "c", Count: 1},
	})
	require.ErrorContains(t, err, "cannot write more than 1 rows")
}

func TestClosedBackend(t *testing.T) {
	ds := New()
	ds.Close()

	_, err := ds.ReadFollowers(context.Background(), "a")
	require.ErrorIs(t, err, storage.ErrClosed)

	status, err := ds.IsReady(context.Background())
	require.NoError(t, err)
	require.False(t, status.IsReady)
}

func TestReadFollowersCancelledContext(t *testing.T) {
	ds := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ds.ReadFollowers(ctx, "a")
	require.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentWritesNoRace(t *testing.T) {
	ds := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ds.WriteFollowers(ctx, []storage.Row{{Word: "w", Follower: "f", Count: 1}})
			_, _ = ds.ReadFollowers(ctx, "w")
		}()
	}
	wg.Wait()

	got, err := ds.ReadFollowers(ctx, "w")
	require.NoError(t, err)
	require.Equal(t, []storage.Follower{{Word: "f", Count: 10}}, got)
}
