package storagewrappers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/echotree/echotree/pkg/logger"
	"github.com/echotree/echotree/pkg/storage"
	"github.com/echotree/echotree/pkg/storage/memory"
	"github.com/echotree/echotree/pkg/storage/mocks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFollowerCacheQueriesOncePerWord(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lookup := mocks.NewMockFollowerLookup(ctrl)
	lookup.EXPECT().ReadFollowers(gomock.Any(), "ant").Times(1).Return([]storage.Follower{
		{Word: "hill", Count: 5},
		{Word: "eater", Count: 3},
		{Word: "farm", Count: 1},
	}, nil)
	lookup.EXPECT().ReadFollowers(gomock.Any(), "hill").Times(1).Return([]storage.Follower{
		{Word: "top", Count: 2},
	}, nil)

	cache := NewFollowerCache(lookup)
	ctx := context.Background()

	first, err := cache.GetFollowers(ctx, "ant")
	require.NoError(t, err)
	require.Equal(t, []string{"hill", "eater", "farm"}, first)

	second, err := cache.GetFollowers(ctx, "ant")
	require.NoError(t, err)
	require.Equal(t, first, second)

	got, err := cache.GetFollowers(ctx, "hill")
	require.NoError(t, err)
	require.Equal(t, []string{"top"}, got)

	require.Equal(t, 2, cache.Len())
}

func TestFollowerCacheEmptyFollowersAreCached(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lookup := mocks.NewMockFollowerLookup(ctrl)
	lookup.EXPECT().ReadFollowers(gomock.Any(), "farm").Times(1).Return([]storage.Follower{}, nil)

	cache := NewFollowerCache(lookup)

	for i := 0; i < 3; i++ {
		got, err := cache.GetFollowers(context.Background(), "farm")
		require.NoError(t, err)
		require.Empty(t, got)
	}
}

func TestFollowerCacheDoesNotCacheErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lookupErr := errors.New("store unreachable")

	lookup := mocks.NewMockFollowerLookup(ctrl)
	gomock.InOrder(
		lookup.EXPECT().ReadFollowers(gomock.Any(), "ant").Return(nil, lookupErr),
		lookup.EXPECT().ReadFollowers(gomock.Any(), "ant").Return([]storage.Follower{{Word: "hill", Count: 1}}, nil),
	)

	log, logs := logger.NewObserverLogger("error")
	cache := NewFollowerCache(lookup, WithFollowerCacheLogger(log))

	_, err := cache.GetFollowers(context.Background(), "ant")
	require.ErrorIs(t, err, lookupErr)
	require.Equal(t, 0, cache.Len())
	require.Equal(t, 1, logs.FilterMessage("follower lookup failed").Len())

	got, err := cache.GetFollowers(context.Background(), "ant")
	require.NoError(t, err)
	require.Equal(t, []string{"hill"}, got)
}

func TestFollowerCacheReturnsCopies(t *testing.T) {
	ds := memory.New()
	require.NoError(t, ds.WriteFollowers(context.Background(), []storage.Row{
		{Word: "echo", Follower: "chamber", Count: 2},
	}))

	cache := NewFollowerCache(ds)

	got, err := cache.GetFollowers(context.Background(), "echo")
	require.NoError(t, err)
	got[0] = "mutated"

	got, err = cache.GetFollowers(context.Background(), "echo")
	require.NoError(t, err)
	require.Equal(t, []string{"chamber"}, got)
}

func TestFollowerCacheConcurrentFirstLookup(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	release := make(chan struct{})

	lookup := mocks.NewMockFollowerLookup(ctrl)
	lookup.EXPECT().ReadFollowers(gomock.Any(), "ant").MinTimes(1).DoAndReturn(
		func(ctx context.Context, word string) ([]storage.Follower, error) {
			<-release
			return []storage.Follower{{Word: "hill", Count: 5}}, nil
		})

	cache := NewFollowerCache(lookup)

	var wg sync.WaitGroup
	results := make([][]string, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := cache.GetFollowers(context.Background(), "ant")
			require.NoError(t, err)
			results[i] = got
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, got := range results {
		require.Equal(t, []string{"hill"}, got)
	}
}

func TestFollowerCacheCancelledCallerDoesNotFailSharedLookup(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	started := make(chan struct{})
	release := make(chan struct{})

	lookup := mocks.NewMockFollowerLookup(ctrl)
	lookup.EXPECT().ReadFollowers(gomock.Any(), "ant").Times(1).DoAndReturn(
		func(ctx context.Context, word string) ([]storage.Follower, error) {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return []storage.Follower{{Word: "hill", Count: 5}}, nil
		})

	cache := NewFollowerCache(lookup)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.GetFollowers(firstCtx, "ant")
		firstErr <- err
	}()
	<-started

	second := make(chan []string, 1)
	go func() {
		got, err := cache.GetFollowers(context.Background(), "ant")
		if err == nil {
			second <- got
		}
		close(second)
	}()

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	require.Equal(t, []string{"hill"}, <-second)
	require.Equal(t, 1, cache.Len())
}
