package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestChecker(t *testing.T) {
	tests := []struct {
		name       string
		target     TargetService
		wantCode   int
		wantStatus string
	}{
		{
			name:       "no_target",
			wantCode:   http.StatusOK,
			wantStatus: StatusServing,
		},
		{
			name: "ready",
			target: TargetServiceFunc(func(context.Context) (bool, error) {
				return true, nil
			}),
			wantCode:   http.StatusOK,
			wantStatus: StatusServing,
		},
		{
			name: "not_ready",
			target: TargetServiceFunc(func(context.Context) (bool, error) {
				return false, nil
			}),
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusNotServing,
		},
		{
			name: "error",
			target: TargetServiceFunc(func(context.Context) (bool, error) {
				return false, errors.New("database is closed")
			}),
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusNotServing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &Checker{TargetService: tt.target}

			rec := httptest.NewRecorder()
			checker.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			require.Equal(t, tt.wantCode, rec.Code)
			require.Equal(t, tt.wantStatus, gjson.Get(rec.Body.String(), "status").String())
		})
	}
}
