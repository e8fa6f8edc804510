package server

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"github.com/echotree/echotree/assets"
)

type listenerPage struct {
	SubscribeURL        string
	AllowWordSubmission bool
}

// ListenerHandler serves the browser page that subscribes to word trees and renders them.
type ListenerHandler struct {
	page []byte
}

var _ http.Handler = (*ListenerHandler)(nil)

// NewListenerHandler renders the listener page once for the given WebSocket subscribe URL.
func NewListenerHandler(subscribeURL string, allowWordSubmission bool) (*ListenerHandler, error) {
	tmpl, err := template.ParseFS(assets.EmbedListener, assets.ListenerTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse listener template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, listenerPage{
		SubscribeURL:        subscribeURL,
		AllowWordSubmission: allowWordSubmission,
	})
	if err != nil {
		return nil, fmt.Errorf("render listener template: %w", err)
	}

	return &ListenerHandler{page: buf.Bytes()}, nil
}

func (h *ListenerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	switch r.URL.Path {
	case "/", "/request_echo_tree_script":
	default:
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.page)
}
