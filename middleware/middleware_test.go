package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/mintresearch/agent-engine/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestContext(t *testing.T) {
	tests := []struct {
		name     string
		chain    func(http.Handler) http.Handler
		header   string
		expectID func(t *testing.T, id string)
	}{
		{
			name:  "uses chi request id",
			chain: func(h http.Handler) http.Handler { return chimw.RequestID(RequestContext(h)) },
			expectID: func(t *testing.T, id string) {
				assert.NotEmpty(t, id)
			},
		},
		{
			name:   "falls back to header",
			chain:  RequestContext,
			header: "req-123",
			expectID: func(t *testing.T, id string) {
				assert.Equal(t, "req-123", id)
			},
		},
		{
			name:  "generates an id",
			chain: RequestContext,
			expectID: func(t *testing.T, id string) {
				assert.Len(t, id, 36)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := tt.chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			tt.expectID(t, seen)
			assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
		})
	}
}

func TestGetRequestIDFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, GetRequestIDFromContext(req.Context()))
}

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
		wantMsg   string
	}{
		{"success", http.StatusOK, "info", "request completed"},
		{"client error", http.StatusNotFound, "warn", "request rejected"},
		{"server error", http.StatusBadGateway, "error", "request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)

			r := chi.NewRouter()
			r.Use(RequestLogger(zap.New(core)))
			r.Get("/mcp/state/{area}", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/mcp/state/memory", nil))

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.wantLevel, entry.Level.String())
			assert.Equal(t, tt.wantMsg, entry.Message)
			assert.Equal(t, "/mcp/state/{area}", entry.ContextMap()["route"])
			assert.Equal(t, int64(tt.status), entry.ContextMap()["status"])
		})
	}
}

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	r := chi.NewRouter()
	r.Use(Metrics(metrics))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for i := 0; i < 3; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	}

	count, err := testutil.GatherAndCount(registry, "agent_engine_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expected := 3.0
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "agent_engine_http_requests_total" {
			assert.Equal(t, expected, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
}

func TestMetrics_NilPassThrough(t *testing.T) {
	called := false
	h := Metrics(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
