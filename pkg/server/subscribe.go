package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/echotree/echotree/pkg/fanout"
	"github.com/echotree/echotree/pkg/logger"
	"github.com/echotree/echotree/pkg/middleware/requestid"
	"github.com/echotree/echotree/pkg/server/health"
	"github.com/echotree/echotree/pkg/storage"
)

const (
	SubscribePath       = "/subscribe_to_echo_trees"
	SubscribeEventsPath = "/subscribe_to_echo_trees/events"

	// SSEEventName is the event type of artifacts on the event stream.
	SSEEventName = "echotree"
)

type SubscribeOption func(*SubscribeHandler)

// WithSubscribeLogger sets the logger of the subscribe handler.
func WithSubscribeLogger(l logger.Logger) SubscribeOption {
	return func(h *SubscribeHandler) {
		h.logger = l
	}
}

// WithWriteTimeout bounds a single write to a subscriber.
func WithWriteTimeout(timeout time.Duration) SubscribeOption {
	return func(h *SubscribeHandler) {
		h.writeTimeout = timeout
	}
}

// WithPingInterval sets the keepalive interval. A WebSocket peer that does not answer a ping
// within two intervals is dropped.
func WithPingInterval(interval time.Duration) SubscribeOption {
	return func(h *SubscribeHandler) {
		h.pingInterval = interval
	}
}

// WithMaxMessageSize bounds frames read from WebSocket subscribers.
func WithMaxMessageSize(size int64) SubscribeOption {
	return func(h *SubscribeHandler) {
		h.maxMessageSize = size
	}
}

// WithWordSubmission submits text frames received from WebSocket subscribers as root words.
func WithWordSubmission(publisher *Publisher) SubscribeOption {
	return func(h *SubscribeHandler) {
		h.publisher = publisher
	}
}

// WithSubscribeReadiness adds a readiness probe to the health endpoint.
func WithSubscribeReadiness(target health.TargetService) SubscribeOption {
	return func(h *SubscribeHandler) {
		h.readiness = target
	}
}

// SubscribeHandler attaches WebSocket and server-sent event clients to a hub. Every
// connection runs its own session: the current artifact is sent on connect and after
// every publish.
type SubscribeHandler struct {
	hub            *fanout.Hub
	publisher      *Publisher
	upgrader       websocket.Upgrader
	writeTimeout   time.Duration
	pingInterval   time.Duration
	maxMessageSize int64
	readiness      health.TargetService
	logger         logger.Logger

	// done ends every open connection; hijacked connections are not closed by http.Server.Shutdown.
	done     context.Context
	shutdown context.CancelFunc

	handler http.Handler
}

var _ http.Handler = (*SubscribeHandler)(nil)

// NewSubscribeHandler returns the subscribe HTTP handler for hub.
func NewSubscribeHandler(hub *fanout.Hub, opts ...SubscribeOption) *SubscribeHandler {
	h := &SubscribeHandler{
		hub:            hub,
		writeTimeout:   10 * time.Second,
		pingInterval:   30 * time.Second,
		maxMessageSize: 64 * 1024,
		logger:         logger.NewNoopLogger(),
		upgrader: websocket.Upgrader{
			// The listener page is served from another origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	for _, opt := range opts {
		opt(h)
	}

	h.done, h.shutdown = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+SubscribePath, h.serveWebSocket)
	mux.HandleFunc("GET "+SubscribeEventsPath, h.serveEvents)
	mux.Handle("GET /healthz", &health.Checker{TargetService: h.readiness, Timeout: 5 * time.Second})
	h.handler = requestid.Handler(mux)

	return h
}

func (h *SubscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

// Close ends every open subscriber connection. WebSocket peers receive a going away close frame.
func (h *SubscribeHandler) Close() {
	h.shutdown()
}

func (h *SubscribeHandler) connContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(h.done, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

type wsSubscriber struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (s *wsSubscriber) Send(_ context.Context, artifact fanout.Artifact) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, []byte(artifact.Data))
}

func (h *SubscribeHandler) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnWithContext(r.Context(), "websocket upgrade failed", requestIDField(r.Context()), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := h.connContext(r)
	defer cancel()

	var wg conc.WaitGroup
	wg.Go(func() {
		defer cancel()
		h.readPump(ctx, conn, &wg)
	})
	wg.Go(func() {
		h.pingLoop(ctx, conn)
	})

	sub := &wsSubscriber{conn: conn, writeTimeout: h.writeTimeout}
	err = h.hub.Serve(ctx, sub, fanout.WithRemoteAddr(r.RemoteAddr))
	if err == nil && h.done.Err() != nil {
		deadline := time.Now().Add(h.writeTimeout)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
	}

	cancel()
	_ = conn.Close()
	wg.Wait()
}

// readPump consumes frames until the peer goes away. Reading is also what processes pongs.
// Submitted words run on submissions so the pump keeps reading while a build is in progress.
func (h *SubscribeHandler) readPump(ctx context.Context, conn *websocket.Conn, submissions *conc.WaitGroup) {
	pongWait := 2 * h.pingInterval

	conn.SetReadLimit(h.maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				h.logger.DebugWithContext(ctx, "websocket read failed",
					zap.String("remote_addr", conn.RemoteAddr().String()),
					zap.Error(err))
			}
			return
		}

		if messageType != websocket.TextMessage || h.publisher == nil {
			continue
		}

		word := string(data)
		submissions.Go(func() {
			h.submitFromSubscriber(ctx, word)
		})
	}
}

// submitFromSubscriber waits for the outcome only to log it. ctx ends with the connection;
// the submission itself still proceeds.
func (h *SubscribeHandler) submitFromSubscriber(ctx context.Context, word string) {
	result, err := h.publisher.SubmitWord(ctx, word)
	switch {
	case err == nil:
		h.logger.DebugWithContext(ctx, "subscriber submitted word",
			zap.String("root_word", word),
			zap.String("outcome", string(result.Outcome)))
	case errors.Is(err, storage.ErrInvalidWord), errors.Is(err, context.Canceled):
	default:
		h.logger.WarnWithContext(ctx, "subscriber word submission failed",
			requestIDField(ctx),
			zap.String("root_word", word),
			zap.Error(err))
	}
}

func (h *SubscribeHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}

// sseSubscriber writes artifacts as server-sent events. Writes from the session and the
// keepalive loop are serialized.
type sseSubscriber struct {
	mu           sync.Mutex
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
}

func (s *sseSubscriber) Send(_ context.Context, artifact fanout.Artifact) error {
	var b strings.Builder
	b.WriteString("id: ")
	b.WriteString(strconv.FormatUint(artifact.Seq, 10))
	b.WriteString("\nevent: ")
	b.WriteString(SSEEventName)
	b.WriteString("\n")
	for _, line := range strings.Split(artifact.Data, "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	return s.write(b.String())
}

func (s *sseSubscriber) keepalive() error {
	return s.write(": ping\n\n")
}

func (s *sseSubscriber) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if _, err := fmt.Fprint(s.w, frame); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (h *SubscribeHandler) serveEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.connContext(r)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := &sseSubscriber{w: w, rc: http.NewResponseController(w), writeTimeout: h.writeTimeout}

	var wg conc.WaitGroup
	wg.Go(func() {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := sub.keepalive(); err != nil {
					cancel()
					return
				}
			}
		}
	})

	_ = h.hub.Serve(ctx, sub, fanout.WithRemoteAddr(r.RemoteAddr))
	cancel()
	wg.Wait()
}
