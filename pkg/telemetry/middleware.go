package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// InstrumentHandler wraps h with a server span per request named "<operation> <method>".
// With tracing disabled h is returned as is.
func InstrumentHandler(operation string, h http.Handler, enabled bool) http.Handler {
	if !enabled {
		return h
	}

	return otelhttp.NewHandler(h, operation,
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return operation + " " + r.Method
		}),
	)
}
