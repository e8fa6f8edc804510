package recovery

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/echotree/echotree/pkg/logger"
	"github.com/echotree/echotree/pkg/middleware/requestid"
)

func TestPanic(t *testing.T) {
	panicHandlerFunc := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		panic("Unexpected error!")
	})

	l, logs := logger.NewObserverLogger("error")
	handler := requestid.Handler(HTTPPanicRecoveryHandler(panicHandlerFunc, l))

	req, err := http.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, err)

	resp := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(resp, req)
	})

	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.Equal(t, internalErrorCode, gjson.Get(resp.Body.String(), "code").String())

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, resp.Header().Get(requestid.RequestIDHeader), entries[0].ContextMap()["request_id"])
}

func TestAbortHandlerIsRepanicked(t *testing.T) {
	handler := HTTPPanicRecoveryHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}), logger.NewNoopLogger())

	require.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestNoPanic(t *testing.T) {
	handler := HTTPPanicRecoveryHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), logger.NewNoopLogger())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, resp.Code)
}
