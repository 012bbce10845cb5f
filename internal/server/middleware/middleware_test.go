package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestRateLimit_RejectsAfterBurst(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(0.001), 2)
	h := RateLimit(limiter)(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/queries", nil))
		require.Equal(t, http.StatusAccepted, rec.Code, "request %d", i)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/queries", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "TOO_MANY_REQUESTS", response.Error.Code)
}

func TestRateLimit_NilLimiterPassesThrough(t *testing.T) {
	h := RateLimit(nil)(okHandler())
	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/queries", nil))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
}

func TestLogger_RecordsRequest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := RequestID(Logger(zap.New(core))(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/results", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	entries := logs.FilterMessage("Request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/results", fields["path"])
	assert.EqualValues(t, http.StatusAccepted, fields["status"])
}

func TestLogger_ServerErrorsAtWarn(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := Logger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, 1, logs.FilterMessage("Request failed").Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}
