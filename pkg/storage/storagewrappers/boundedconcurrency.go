package storagewrappers

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/echotree/echotree/internal/build"
	"github.com/echotree/echotree/pkg/storage"
)

var _ storage.FollowerLookup = (*boundedConcurrencyLookup)(nil)

var timeWaitingHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: build.ProjectName,
	Name:      "time_waiting_for_read_queries_ms",
	Help:      "Time (in ms) spent waiting for a free slot before a ReadFollowers call to the datastore",
	Buckets:   []float64{1, 10, 25, 50, 100, 1000, 5000}, // milliseconds
})

type boundedConcurrencyLookup struct {
	storage.FollowerLookup
	limiter chan struct{}
}

// NewBoundedConcurrencyLookup returns a wrapper over a lookup that makes sure that there are,
// at most, n concurrent calls to ReadFollowers.
func NewBoundedConcurrencyLookup(wrapped storage.FollowerLookup, n uint32) storage.FollowerLookup {
	return &boundedConcurrencyLookup{
		FollowerLookup: wrapped,
		limiter:        make(chan struct{}, n),
	}
}

// ReadFollowers see [storage.FollowerLookup].ReadFollowers.
func (b *boundedConcurrencyLookup) ReadFollowers(ctx context.Context, word string) ([]storage.Follower, error) {
	start := time.Now()

	select {
	case b.limiter <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timeWaiting := time.Since(start).Milliseconds()
	timeWaitingHistogram.Observe(float64(timeWaiting))
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int64("time_waiting", timeWaiting))

	defer func() {
		<-b.limiter
	}()

	return b.FollowerLookup.ReadFollowers(ctx, word)
}
