// Package recovery turns a handler panic into an internal error response.
package recovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/echotree/echotree/pkg/logger"
	"github.com/echotree/echotree/pkg/middleware/requestid"
)

const (
	internalErrorCode      = "internal_error"
	internalServerErrorMsg = "internal server error"
)

// HTTPPanicRecoveryHandler recover from panic for http services.
func HTTPPanicRecoveryHandler(next http.Handler, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if e, ok := err.(error); ok && errors.Is(e, http.ErrAbortHandler) {
				panic(err)
			}

			requestID, _ := requestid.FromContext(r.Context())
			l.ErrorWithContext(r.Context(), "HTTPPanicRecoveryHandler has recovered a panic",
				zap.Error(fmt.Errorf("%v", err)),
				zap.String("request_id", requestID),
				zap.ByteString("stacktrace", debug.Stack()),
			)

			responseBody, mErr := json.Marshal(map[string]string{
				"code":    internalErrorCode,
				"message": internalServerErrorMsg,
			})
			if mErr != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			w.Header().Set("content-type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write(responseBody)
		}()
		next.ServeHTTP(w, r)
	})
}
