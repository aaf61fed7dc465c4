package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "licsrv/internal/errors"
	"licsrv/internal/messages"
	"licsrv/internal/services"
)

func TestMessagesHandler(t *testing.T) {
	catalog, err := messages.Default()
	require.NoError(t, err)
	router := NewMessagesHandler(catalog, quietLogger()).Routes()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		check      func(t *testing.T, body map[string]interface{})
	}{
		{
			name:       "all",
			path:       "/",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				all, ok := body["messages"].(map[string]interface{})
				require.True(t, ok)
				assert.Contains(t, all, "server")
				assert.Contains(t, all, "forgot")
				assert.Equal(t, catalog.Version(), body["version"])
			},
		},
		{
			name:       "category",
			path:       "/server",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "server", body["category"])
				assert.Contains(t, body["messages"], "online")
			},
		},
		{
			name:       "single message",
			path:       "/server/online",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				msg, ok := body["message"].(map[string]interface{})
				require.True(t, ok)
				assert.NotEmpty(t, msg["title"])
				assert.Nil(t, msg["action"])
			},
		},
		{
			name:       "unknown category",
			path:       "/billing",
			wantStatus: http.StatusNotFound,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, apierrors.CodeMessageNotFound, body["error"])
			},
		},
		{
			name:       "unknown key",
			path:       "/server/nope",
			wantStatus: http.StatusNotFound,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, apierrors.CodeMessageNotFound, body["error"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			tt.check(t, decodeBody(t, rec))
		})
	}
}

func TestHealthHandler(t *testing.T) {
	healthy := services.NewHealthService("1.0.0", "", nil, 0, quietLogger())
	h := NewHealthHandler(healthy, quietLogger())

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "online", decodeBody(t, rec)["status"])

	rec = httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, services.StatusReady, decodeBody(t, rec)["status"])

	failing := services.NewHealthService("1.0.0", "", map[string]services.Probe{
		"licenses": func(ctx context.Context) error { return errors.New("unreadable") },
	}, 0, quietLogger())
	rec = httptest.NewRecorder()
	NewHealthHandler(failing, quietLogger()).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, services.StatusNotReady, body["status"])
	assert.Equal(t, map[string]interface{}{"licenses": "unreadable"}, body["checks"])
}

func TestMetricsHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewMetricsHandler(nil).GetMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	exporter := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# HELP up\n"))
	})
	rec = httptest.NewRecorder()
	NewMetricsHandler(exporter).GetMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# HELP up")
}
