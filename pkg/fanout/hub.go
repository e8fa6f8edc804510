// Package fanout publishes one current artifact to any number of subscribers. Publishing
// replaces the artifact and wakes every subscriber session; each session then reads the
// latest artifact and writes it on its own, so a slow subscriber may skip intermediate
// versions but never delays the publisher or other subscribers.
package fanout

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/echotree/echotree/pkg/logger"
	"github.com/echotree/echotree/pkg/wordtree"
)

type HubOption func(*Hub)

// WithLogger sets the logger of the Hub and of its sessions.
func WithLogger(l logger.Logger) HubOption {
	return func(h *Hub) {
		h.logger = l
	}
}

// WithInitialArtifact sets the artifact served before the first publish.
func WithInitialArtifact(data string) HubOption {
	return func(h *Hub) {
		h.initial = data
	}
}

// WithRegistry makes the Hub register its sessions in r.
func WithRegistry(r *Registry) HubOption {
	return func(h *Hub) {
		h.registry = r
	}
}

// Hub owns the current artifact and the subscriber registry.
type Hub struct {
	store    *ArtifactStore
	registry *Registry
	initial  string
	logger   logger.Logger
}

// NewHub returns a Hub whose initial artifact is the empty tree unless configured otherwise.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		registry: NewRegistry(),
		initial:  wordtree.EmptyArtifact,
		logger:   logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(h)
	}

	h.store = NewArtifactStore(h.initial)

	return h
}

// Publish makes data the current artifact and wakes every subscriber.
func (h *Hub) Publish(data string) Artifact {
	artifact := h.store.Replace(data)
	h.registry.NotifyAll()
	return artifact
}

// Current returns the current artifact.
func (h *Hub) Current() Artifact {
	return h.store.Current()
}

// Subscribers returns the number of registered subscriber sessions.
func (h *Hub) Subscribers() int {
	return h.registry.Len()
}

// NewSession returns an unstarted session delivering to sub.
func (h *Hub) NewSession(sub Subscriber, opts ...SessionOption) *Session {
	s := &Session{
		id:         ulid.Make().String(),
		hub:        h,
		subscriber: sub,
		logger:     h.logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Serve runs a session for sub. See [Session.Run].
func (h *Hub) Serve(ctx context.Context, sub Subscriber, opts ...SessionOption) error {
	return h.NewSession(sub, opts...).Run(ctx)
}
