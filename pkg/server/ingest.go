package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/echotree/echotree/pkg/logger"
	"github.com/echotree/echotree/pkg/middleware/requestid"
	"github.com/echotree/echotree/pkg/server/health"
	"github.com/echotree/echotree/pkg/storage"
)

const (
	maxSubmissionBytes = 1 << 20

	seqHeader = "X-Echotree-Seq"
)

// ErrorResponse is the body of every failed ingest request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type submitWordRequest struct {
	Word string `json:"word"`
}

type IngestOption func(*IngestHandler)

// WithIngestLogger sets the logger of the ingest handler.
func WithIngestLogger(l logger.Logger) IngestOption {
	return func(h *IngestHandler) {
		h.logger = l
	}
}

// WithRateLimit limits accepted submissions to perSecond across all clients. Zero disables it.
func WithRateLimit(perSecond float64) IngestOption {
	return func(h *IngestHandler) {
		if perSecond > 0 {
			h.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
		}
	}
}

// WithSubmitTimeout bounds how long a request waits for the outcome of its submission.
func WithSubmitTimeout(timeout time.Duration) IngestOption {
	return func(h *IngestHandler) {
		h.submitTimeout = timeout
	}
}

// WithCORSAllowedOrigins enables CORS for the given origins.
func WithCORSAllowedOrigins(origins []string) IngestOption {
	return func(h *IngestHandler) {
		h.corsOrigins = origins
	}
}

// WithReadiness adds a readiness probe to the health endpoint.
func WithReadiness(target health.TargetService) IngestOption {
	return func(h *IngestHandler) {
		h.readiness = target
	}
}

// IngestHandler serves the producer facing endpoints:
//
//	POST /submit_new_echo_tree  <word> or {"word": "..."}  build and publish a tree
//	POST /submit_echo_tree      <tree document>           publish a precomputed tree
//	GET  /echo_tree                                       the current artifact
//	GET  /healthz                                         readiness
type IngestHandler struct {
	publisher     *Publisher
	limiter       *rate.Limiter
	submitTimeout time.Duration
	corsOrigins   []string
	readiness     health.TargetService
	logger        logger.Logger

	handler http.Handler
}

var _ http.Handler = (*IngestHandler)(nil)

// NewIngestHandler returns the ingest HTTP handler for publisher.
func NewIngestHandler(publisher *Publisher, opts ...IngestOption) *IngestHandler {
	h := &IngestHandler{
		publisher:     publisher,
		submitTimeout: 10 * time.Second,
		logger:        logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /submit_new_echo_tree", h.submitWord)
	mux.HandleFunc("POST /submit_echo_tree", h.submitArtifact)
	mux.HandleFunc("GET /echo_tree", h.currentArtifact)
	mux.Handle("GET /healthz", &health.Checker{TargetService: h.readiness, Timeout: 5 * time.Second})

	h.handler = requestid.Handler(mux)
	if len(h.corsOrigins) > 0 {
		h.handler = cors.New(cors.Options{
			AllowedOrigins:   h.corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type"},
			ExposedHeaders:   []string{requestid.RequestIDHeader, seqHeader},
			AllowCredentials: true,
		}).Handler(h.handler)
	}

	return h
}

func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

func (h *IngestHandler) submitWord(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w) {
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	word := string(body)
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "application/json" {
		var req submitWordRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON object with a 'word' string")
			return
		}
		word = req.Word
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.submitTimeout)
	defer cancel()

	result, err := h.publisher.SubmitWord(ctx, word)
	h.writeResult(ctx, w, result, err)
}

func (h *IngestHandler) submitArtifact(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w) {
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.submitTimeout)
	defer cancel()

	result, err := h.publisher.SubmitArtifact(ctx, string(body))
	h.writeResult(ctx, w, result, err)
}

func (h *IngestHandler) currentArtifact(w http.ResponseWriter, _ *http.Request) {
	artifact := h.publisher.Current()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(seqHeader, strconv.FormatUint(artifact.Seq, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, artifact.Data)
}

func (h *IngestHandler) allow(w http.ResponseWriter) bool {
	if h.limiter == nil || h.limiter.Allow() {
		return true
	}
	submissionsCounter.WithLabelValues("rate_limited").Inc()
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many submissions")
	return false
}

func (h *IngestHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSubmissionBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return nil, false
	}
	return body, true
}

func (h *IngestHandler) writeResult(ctx context.Context, w http.ResponseWriter, result Result, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, storage.ErrInvalidWord):
		writeError(w, http.StatusBadRequest, "invalid_word", "word must not be empty")
	case errors.Is(err, ErrInvalidArtifact):
		writeError(w, http.StatusBadRequest, "invalid_artifact", err.Error())
	case errors.Is(err, ErrLookupFailed):
		writeError(w, http.StatusBadGateway, "lookup_failed", "follower lookup failed")
	case errors.Is(err, ErrPublisherClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", "server is shutting down")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeJSON(w, http.StatusAccepted, Result{Outcome: OutcomePending, Seq: h.publisher.Current().Seq})
	default:
		h.logger.ErrorWithContext(ctx, "submission failed", requestIDField(ctx), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func requestIDField(ctx context.Context) zap.Field {
	id, _ := requestid.FromContext(ctx)
	return zap.String("request_id", id)
}
