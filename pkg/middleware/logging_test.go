package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantLogs  int
		wantLevel zapcore.Level
		wantMsg   string
	}{
		{name: "ok request at debug", path: "/api/answer", status: http.StatusOK, wantLogs: 1, wantLevel: zapcore.DebugLevel, wantMsg: "HTTP request"},
		{name: "client error at debug", path: "/api/metrics", status: http.StatusBadRequest, wantLogs: 1, wantLevel: zapcore.DebugLevel, wantMsg: "HTTP request"},
		{name: "server error at warn", path: "/api/answer", status: http.StatusServiceUnavailable, wantLogs: 1, wantLevel: zapcore.WarnLevel, wantMsg: "HTTP request failed"},
		{name: "health probe is quiet", path: "/health", status: http.StatusOK, wantLogs: 0},
		{name: "failing health probe is logged", path: "/health", status: http.StatusServiceUnavailable, wantLogs: 1, wantLevel: zapcore.WarnLevel, wantMsg: "HTTP request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.status, rec.Code)
			require.Equal(t, tt.wantLogs, logs.Len())
			if tt.wantLogs == 0 {
				return
			}
			entry := logs.All()[0]
			assert.Equal(t, tt.wantMsg, entry.Message)
			assert.Equal(t, tt.wantLevel, entry.Level)
			fields := entry.ContextMap()
			assert.Equal(t, int64(tt.status), fields["status"])
			assert.Equal(t, tt.path, fields["path"])
			assert.Equal(t, int64(4), fields["bytes"])
		})
	}
}

func TestRequestLogger_DefaultStatusIsOK(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/answer", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, int64(http.StatusOK), logs.All()[0].ContextMap()["status"])
}

func TestRequestLogger_NilLogger_PassesThrough(t *testing.T) {
	called := false
	handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.True(t, called)
}

func TestRecover(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	handler := Recover(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/answer", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Panic while serving request", logs.All()[0].Message)
	assert.Equal(t, "boom", logs.All()[0].ContextMap()["panic"])
}

func TestRecover_PassesThroughNormalRequests(t *testing.T) {
	handler := Recover(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRecover_RepanicsOnAbort(t *testing.T) {
	handler := Recover(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
