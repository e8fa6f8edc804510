// Package health serves the readiness of an echotree server over HTTP.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// TargetService defines an interface that services can implement for server health checks.
type TargetService interface {
	IsReady(ctx context.Context) (bool, error)
}

// TargetServiceFunc adapts a function to a TargetService.
type TargetServiceFunc func(ctx context.Context) (bool, error)

func (f TargetServiceFunc) IsReady(ctx context.Context) (bool, error) {
	return f(ctx)
}

const (
	StatusServing    = "SERVING"
	StatusNotServing = "NOT_SERVING"
)

// Response is the body written by a Checker.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Checker answers health checks with the readiness of its target. A nil target is always ready.
type Checker struct {
	TargetService
	Timeout time.Duration
}

var _ http.Handler = (*Checker)(nil)

func (o *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	resp := Response{Status: StatusServing}
	code := http.StatusOK

	if o.TargetService != nil {
		ready, err := o.IsReady(ctx)
		switch {
		case err != nil:
			resp = Response{Status: StatusNotServing, Message: err.Error()}
			code = http.StatusServiceUnavailable
		case !ready:
			resp = Response{Status: StatusNotServing}
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
