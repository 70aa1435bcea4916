package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Version: "1.2.3",
		Env:     "test",
		Planner: config.PlannerConfig{Dialect: "postgres"},
	}
}

func TestHealthHandler_Health(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("dial tcp: connection refused") })

	tests := []struct {
		name       string
		checks     map[string]Pinger
		wantStatus int
		wantBody   HealthResponse
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantBody:   HealthResponse{Status: "ok"},
		},
		{
			name:       "all dependencies up",
			checks:     map[string]Pinger{"record_store": ok, "redis": ok},
			wantStatus: http.StatusOK,
			wantBody:   HealthResponse{Status: "ok", Checks: map[string]string{"record_store": "ok", "redis": "ok"}},
		},
		{
			name:       "one dependency down",
			checks:     map[string]Pinger{"record_store": ok, "redis": down},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   HealthResponse{Status: "degraded", Checks: map[string]string{"record_store": "ok", "redis": "unavailable"}},
		},
		{
			name:       "nil pinger ignored",
			checks:     map[string]Pinger{"redis": nil},
			wantStatus: http.StatusOK,
			wantBody:   HealthResponse{Status: "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(testConfig(), tt.checks, zap.NewNop())
			mux := http.NewServeMux()
			h.RegisterRoutes(mux)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var got HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.wantBody, got)
		})
	}
}

func TestHealthHandler_Ping(t *testing.T) {
	h := NewHealthHandler(testConfig(), nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Ping(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got PingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "1.2.3", got.Version)
	assert.Equal(t, "ekaya-ask", got.Service)
	assert.Equal(t, runtime.Version(), got.GoVersion)
	assert.Equal(t, "test", got.Environment)
	assert.Equal(t, "postgres", got.Dialect)
	assert.NotEmpty(t, got.Hostname)
}
