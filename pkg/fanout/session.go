package fanout

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/echotree/echotree/pkg/logger"
)

// Subscriber is a sink for artifacts, typically one client connection. Send returning an
// error ends the subscriber's session.
type Subscriber interface {
	Send(ctx context.Context, artifact Artifact) error
}

// SubscriberFunc adapts a function to a Subscriber.
type SubscriberFunc func(ctx context.Context, artifact Artifact) error

func (f SubscriberFunc) Send(ctx context.Context, artifact Artifact) error {
	return f(ctx, artifact)
}

// SessionState is the lifecycle stage of a Session.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateDelivering
	StateWaiting
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateDelivering:
		return "delivering"
	case StateWaiting:
		return "waiting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

type SessionOption func(*Session)

// WithRemoteAddr records the peer address of the subscriber for logging.
func WithRemoteAddr(addr string) SessionOption {
	return func(s *Session) {
		s.remoteAddr = addr
	}
}

// Session delivers the current artifact to one subscriber on connect and again after every
// publish, until the subscriber fails or the session's context ends. A Session runs once.
type Session struct {
	id         string
	hub        *Hub
	subscriber Subscriber
	remoteAddr string
	state      atomic.Int32
	handle     *Handle
	lastSeq    uint64
	delivered  bool
	logger     logger.Logger
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle stage.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// Run registers the session and delivers artifacts until ctx is done, returning nil, or a
// write fails, returning the write error. The session is unregistered either way.
func (s *Session) Run(ctx context.Context) error {
	s.handle = s.hub.registry.Register(s.id)
	s.logger = s.logger.With(zap.String("session_id", s.id), zap.String("remote_addr", s.remoteAddr))

	subscribersGauge.Inc()
	s.logger.InfoWithContext(ctx, "subscriber connected")

	defer func() {
		s.hub.registry.Unregister(s.handle)
		subscribersGauge.Dec()
		s.setState(StateClosed)
		s.logger.InfoWithContext(ctx, "subscriber disconnected")
	}()

	s.setState(StateDelivering)
	if err := s.deliver(ctx, "initial"); err != nil {
		return err
	}

	for {
		s.setState(StateWaiting)

		select {
		case <-ctx.Done():
			return nil
		case <-s.handle.C():
		}

		s.setState(StateDelivering)
		if err := s.deliver(ctx, "update"); err != nil {
			return err
		}
	}
}

func (s *Session) deliver(ctx context.Context, kind string) error {
	artifact := s.hub.store.Current()
	if s.delivered && artifact.Seq == s.lastSeq {
		// Coalesced signal for an artifact already written.
		return nil
	}

	if err := s.subscriber.Send(ctx, artifact); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		subscriberWriteFailuresCounter.Inc()
		s.logger.WarnWithContext(ctx, "subscriber write failed",
			zap.Uint64("seq", artifact.Seq),
			zap.Error(err))
		return fmt.Errorf("deliver artifact %d: %w", artifact.Seq, err)
	}

	deliveriesCounter.WithLabelValues(kind).Inc()
	s.delivered = true
	s.lastSeq = artifact.Seq
	return nil
}
