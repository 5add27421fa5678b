package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/martinmaurice/quota/internal/server/middleware"
	"github/martinmaurice/quota/pkg/enum"
	"github/martinmaurice/quota/pkg/metrics"
	"github/martinmaurice/quota/pkg/rate_limiter"
)

const testAdminKey = "test-operator-key"

var testKeys = middleware.StaticKeys{
	"subject-one-key":   1,
	"subject-two-key":   2,
	"subject-three-key": 3,
}

func newTestServer(t *testing.T, store rate_limiter.CounterStore, opts ...Option) (*Config, *metrics.Recorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	recorder, err := metrics.New(reg)
	require.NoError(t, err)

	client := rate_limiter.New(store, rate_limiter.DefaultPolicy(), rate_limiter.WithObserver(recorder))
	opts = append([]Option{
		WithSubjectResolver(testKeys),
		WithAdminKey(testAdminKey),
		WithMetrics("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	}, opts...)
	return NewServer(client, opts...), recorder
}

func send(t *testing.T, srv *Config, method, path string, headers map[string]string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

// do sends a request as the subject owning apiKey, or anonymously when empty.
func do(t *testing.T, srv *Config, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	headers := map[string]string{}
	if apiKey != "" {
		headers["X-API-KEY"] = apiKey
	}
	return send(t, srv, method, path, headers, body)
}

func doAdmin(t *testing.T, srv *Config, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return send(t, srv, method, path, map[string]string{"X-ADMIN-KEY": testAdminKey}, body)
}

func TestServer_ActionRoutesAreRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, rate_limiter.NewMemoryStorage())

	for i := 1; i <= 20; i++ {
		rr := do(t, srv, http.MethodPost, "/v1/bbaton/attempt", "subject-two-key", nil)
		require.Equal(t, http.StatusAccepted, rr.Code, "call %d", i)
	}

	rr := do(t, srv, http.MethodPost, "/v1/bbaton/attempt", "subject-two-key", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "900", rr.Header().Get("Retry-After"))

	rr = do(t, srv, http.MethodPost, "/v1/bbaton/complete", "subject-two-key", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code, "complete keeps its own counter")

	rr = do(t, srv, http.MethodPost, "/v1/bbaton/attempt", "subject-one-key", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code, "another subject keeps its own counter")

	rr = do(t, srv, http.MethodPost, "/v1/bbaton/attempt", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestServer_DisableRateLimiter(t *testing.T) {
	srv, _ := newTestServer(t, rate_limiter.NewMemoryStorage(), WithDisableRateLimiter(true))

	for i := 0; i < 25; i++ {
		rr := do(t, srv, http.MethodPost, "/v1/bbaton/complete", "subject-two-key", nil)
		require.Equal(t, http.StatusAccepted, rr.Code)
	}
}

func TestServer_Check(t *testing.T) {
	srv, _ := newTestServer(t, rate_limiter.NewMemoryStorage())

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{name: "missing subject", body: map[string]any{"action": "attempt"}, wantStatus: http.StatusBadRequest},
		{name: "negative subject", body: map[string]any{"action": "attempt", "subject_id": -3}, wantStatus: http.StatusBadRequest},
		{name: "unknown action", body: map[string]any{"action": "login", "subject_id": 3}, wantStatus: http.StatusBadRequest},
		{name: "valid", body: map[string]any{"action": "complete", "subject_id": 3}, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doAdmin(t, srv, http.MethodPost, "/check", tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
		})
	}

	var resp checkResponseDTO
	rr := doAdmin(t, srv, http.MethodPost, "/check", map[string]any{"action": "complete", "subject_id": 3})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, checkResponseDTO{Allowed: true, Count: 2, Limit: 20, Remaining: 18}, resp)

	rr = do(t, srv, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `quota_decisions_total{action="complete",result="allowed"} 2`)
}

func TestServer_StatusAndReset(t *testing.T) {
	srv, _ := newTestServer(t, rate_limiter.NewMemoryStorage())

	for i := 0; i < 4; i++ {
		do(t, srv, http.MethodPost, "/v1/bbaton/complete", "subject-three-key", nil)
	}

	var status rate_limiter.Status
	rr := doAdmin(t, srv, http.MethodGet, "/status/complete/3", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, int64(4), status.Count)
	assert.Equal(t, int64(16), status.Remaining)

	rr = doAdmin(t, srv, http.MethodDelete, "/reset/complete/3", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doAdmin(t, srv, http.MethodGet, "/status/complete/3", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Zero(t, status.Count)

	assert.Equal(t, http.StatusBadRequest, doAdmin(t, srv, http.MethodGet, "/status/login/3", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doAdmin(t, srv, http.MethodGet, "/status/complete/abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doAdmin(t, srv, http.MethodDelete, "/reset/attempt/0", nil).Code)
}

func TestServer_StoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { rc.Close() })

	srv, recorder := newTestServer(t, rate_limiter.NewRedis(rc, false))

	rr := do(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	mr.Close()

	rr = do(t, srv, http.MethodPost, "/v1/bbaton/attempt", "subject-two-key", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = doAdmin(t, srv, http.MethodPost, "/check", map[string]any{"action": "attempt", "subject_id": 1})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = do(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	assert.Equal(t, 2.0, testutil.ToFloat64(recorder.StoreErrors.WithLabelValues("incr")))
}

type stubServicer struct {
	rate_limiter.Servicer
}

func (stubServicer) Status(context.Context, enum.Action, int) (rate_limiter.Status, error) {
	return rate_limiter.Status{}, rate_limiter.ErrUnsupported
}

func TestGetStatusHandler_Unsupported(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/status/:action/:id", GetStatusHandler(stubServicer{}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status/attempt/1", nil))
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestServer_Throttle(t *testing.T) {
	srv, _ := newTestServer(t, rate_limiter.NewMemoryStorage(), WithThrottle(0.001, 1))

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, srv, http.MethodGet, "/health", "", nil).Code)
}

func TestServer_OperatorRoutesRequireAdminKey(t *testing.T) {
	srv, _ := newTestServer(t, rate_limiter.NewMemoryStorage())

	for i := 1; i <= 20; i++ {
		require.Equal(t, http.StatusAccepted, do(t, srv, http.MethodPost, "/v1/bbaton/attempt", "subject-two-key", nil).Code)
	}
	require.Equal(t, http.StatusTooManyRequests, do(t, srv, http.MethodPost, "/v1/bbaton/attempt", "subject-two-key", nil).Code)

	tests := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		body    any
	}{
		{name: "anonymous reset", method: http.MethodDelete, path: "/reset/attempt/2"},
		{name: "subject resets its own window", method: http.MethodDelete, path: "/reset/attempt/2", headers: map[string]string{"X-API-KEY": "subject-two-key"}},
		{name: "subject key sent as admin key", method: http.MethodDelete, path: "/reset/attempt/2", headers: map[string]string{"X-ADMIN-KEY": "subject-two-key"}},
		{name: "anonymous status", method: http.MethodGet, path: "/status/attempt/2"},
		{name: "anonymous check", method: http.MethodPost, path: "/check", body: map[string]any{"action": "complete", "subject_id": 1}},
		{name: "subject checks another subject", method: http.MethodPost, path: "/check", headers: map[string]string{"X-API-KEY": "subject-two-key"}, body: map[string]any{"action": "complete", "subject_id": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := send(t, srv, tt.method, tt.path, tt.headers, tt.body)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Equal(t, middleware.ProblemContentType, rr.Header().Get("Content-Type"))
		})
	}

	rr := do(t, srv, http.MethodPost, "/v1/bbaton/attempt", "subject-two-key", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code, "the window survives rejected resets")

	for i := 0; i < 21; i++ {
		send(t, srv, http.MethodPost, "/check", nil, map[string]any{"action": "complete", "subject_id": 1})
	}
	rr = do(t, srv, http.MethodPost, "/v1/bbaton/complete", "subject-one-key", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code, "rejected checks do not count against the subject")
}

func TestServer_OperatorRoutesClosedWithoutAdminKey(t *testing.T) {
	srv, _ := newTestServer(t, rate_limiter.NewMemoryStorage(), WithAdminKey(""))

	rr := send(t, srv, http.MethodDelete, "/reset/attempt/2", map[string]string{"X-ADMIN-KEY": ""}, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, http.StatusUnauthorized, doAdmin(t, srv, http.MethodGet, "/status/attempt/2", nil).Code)
}
