package storagewrappers

import (
	"context"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/echotree/echotree/internal/build"
	"github.com/echotree/echotree/pkg/logger"
	"github.com/echotree/echotree/pkg/storage"
)

var (
	tracer = otel.Tracer("echotree/pkg/storage/storagewrappers")

	followerCacheLookupsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "follower_cache_lookups_total",
		Help:      "The total number of follower cache lookups, by result (hit or miss).",
	}, []string{"result"})
)

type FollowerCacheOpt func(*FollowerCache)

// WithFollowerCacheLogger sets the logger for the FollowerCache.
func WithFollowerCacheLogger(logger logger.Logger) FollowerCacheOpt {
	return func(c *FollowerCache) {
		c.logger = logger
	}
}

// FollowerCache memoizes the ranked follower words of every word it has been asked about for
// the lifetime of the instance. Entries are never evicted or invalidated; failed lookups are
// not cached.
type FollowerCache struct {
	lookup storage.FollowerLookup

	entries map[string][]string // GUARDED_BY(mu).
	mu      sync.RWMutex

	// sf collapses concurrent first lookups of the same word into one store query.
	sf singleflight.Group

	logger logger.Logger
}

// NewFollowerCache returns a FollowerCache reading through to lookup.
func NewFollowerCache(lookup storage.FollowerLookup, opts ...FollowerCacheOpt) *FollowerCache {
	c := &FollowerCache{
		lookup:  lookup,
		entries: make(map[string][]string),
		logger:  logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetFollowers returns the follower words of word, most frequent first. The first call for a
// word queries the underlying lookup; later calls are served from memory.
func (c *FollowerCache) GetFollowers(ctx context.Context, word string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "cache.GetFollowers", trace.WithAttributes(attribute.String("word", word)))
	defer span.End()

	c.mu.RLock()
	words, ok := c.entries[word]
	c.mu.RUnlock()

	if ok {
		span.SetAttributes(attribute.Bool("cached", true))
		followerCacheLookupsCounter.WithLabelValues("hit").Inc()
		return slices.Clone(words), nil
	}

	span.SetAttributes(attribute.Bool("cached", false))
	followerCacheLookupsCounter.WithLabelValues("miss").Inc()

	// The shared lookup outlives any one caller; each caller still stops waiting on its own ctx.
	ch := c.sf.DoChan(word, func() (interface{}, error) {
		followers, err := c.lookup.ReadFollowers(context.WithoutCancel(ctx), word)
		if err != nil {
			return nil, err
		}

		words := storage.Words(followers)

		c.mu.Lock()
		c.entries[word] = words
		c.mu.Unlock()

		return words, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if res.Err != nil {
		c.logger.ErrorWithContext(ctx, "follower lookup failed", zap.String("word", word), zap.Error(res.Err))
		return nil, res.Err
	}

	span.SetAttributes(attribute.Bool("shared", res.Shared))

	return slices.Clone(res.Val.([]string)), nil
}

// Len returns the number of cached words.
func (c *FollowerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
