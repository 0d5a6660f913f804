package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messenger/internal/configs"
	"messenger/internal/pkg/errs"
)

func newTestRouter(t *testing.T, checks map[string]Pinger) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return Router(ctx, &AppDeps{
		Config: &configs.AppConfig{Environment: "production", AllowedOrigins: []string{"https://app.example"}},
		Checks: checks,
	})
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestReady(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	newTestRouter(t, map[string]Pinger{"postgres": ok}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	newTestRouter(t, map[string]Pinger{"postgres": ok, "redis": down}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body struct {
		Code int `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, errs.ErrUpstreamUnavailable, body.Code)
}

func TestWebSocketHandshakeIsRateLimited(t *testing.T) {
	router := newTestRouter(t, nil)

	// Plain GETs fail the upgrade but still count against the limit.
	for range ConnectBurst {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws/presence", nil)
	req.RemoteAddr = "203.0.113.7:5001"
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
