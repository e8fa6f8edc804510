package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/echotree/echotree/pkg/storage"
)

var tracer = otel.Tracer("echotree/pkg/storage/memory")

// StorageOption defines a function type used for configuring a [MemoryBackend] instance.
type StorageOption func(dataStore *MemoryBackend)

const defaultMaxRowsPerWrite = 1000

// MemoryBackend provides an ephemeral memory-backed implementation of [storage.FollowerDatastore].
// These instances may be safely shared by multiple go-routines.
type MemoryBackend struct {
	maxRowsPerWrite int

	// map: word => followers in first-write order
	followers map[string][]*storage.Follower // GUARDED_BY(mu).
	mu        sync.RWMutex
	closed    bool
}

// Ensures that [MemoryBackend] implements the [storage.FollowerDatastore] interface.
var _ storage.FollowerDatastore = (*MemoryBackend)(nil)

// New creates a new [MemoryBackend] given the options.
func New(opts ...StorageOption) *MemoryBackend {
	ds := &MemoryBackend{
		maxRowsPerWrite: defaultMaxRowsPerWrite,
		followers:       make(map[string][]*storage.Follower),
	}

	for _, opt := range opts {
		opt(ds)
	}

	return ds
}

// WithMaxRowsPerWrite returns a [StorageOption] that caps the number of rows accepted by a single
// [MemoryBackend.WriteFollowers] call.
func WithMaxRowsPerWrite(n int) StorageOption {
	return func(ds *MemoryBackend) { ds.maxRowsPerWrite = n }
}

// Close marks the backend closed. Later calls fail with [storage.ErrClosed].
func (s *MemoryBackend) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// ReadFollowers see [storage.FollowerLookup].ReadFollowers.
func (s *MemoryBackend) ReadFollowers(ctx context.Context, word string) ([]storage.Follower, error) {
	_, span := tracer.Start(ctx, "memory.ReadFollowers", trace.WithAttributes(attribute.String("word", word)))
	defer span.End()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	stored := s.followers[word]
	res := make([]storage.Follower, 0, len(stored))
	for _, f := range stored {
		res = append(res, *f)
	}

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Count > res[j].Count
	})

	return res, nil
}

// WriteFollowers see [storage.FollowerWriter].WriteFollowers.
func (s *MemoryBackend) WriteFollowers(ctx context.Context, rows []storage.Row) error {
	_, span := tracer.Start(ctx, "memory.WriteFollowers", trace.WithAttributes(attribute.Int("rows", len(rows))))
	defer span.End()

	if len(rows) > s.maxRowsPerWrite {
		return fmt.Errorf("cannot write more than %d rows in a single call, got %d", s.maxRowsPerWrite, len(rows))
	}

	for _, r := range rows {
		if err := storage.ValidateRow(r); err != nil {
			return fmt.Errorf("%w: %+v", err, r)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

Rows:
	for _, r := range rows {
		for _, f := range s.followers[r.Word] {
			if f.Word == r.Follower {
				f.Count += r.Count
				continue Rows
			}
		}
		s.followers[r.Word] = append(s.followers[r.Word], &storage.Follower{Word: r.Follower, Count: r.Count})
	}

	return nil
}

// IsReady see [storage.FollowerDatastore].IsReady.
func (s *MemoryBackend) IsReady(context.Context) (storage.ReadinessStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return storage.ReadinessStatus{Message: "closed"}, nil
	}
	return storage.ReadinessStatus{IsReady: true}, nil
}
