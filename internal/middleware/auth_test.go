package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAdminAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-admin"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name       string
		hash       string
		key        string
		wantStatus int
		wantCode   string
	}{
		{name: "valid key", hash: string(hash), key: "s3cret-admin", wantStatus: http.StatusOK},
		{name: "missing key", hash: string(hash), wantStatus: http.StatusUnauthorized, wantCode: "unauthorized"},
		{name: "wrong key", hash: string(hash), key: "guess", wantStatus: http.StatusUnauthorized, wantCode: "unauthorized"},
		{name: "not configured", key: "s3cret-admin", wantStatus: http.StatusServiceUnavailable, wantCode: "service_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := AuditLog(quietLogger())(AdminAuth(tt.hash, quietLogger())(okHandler()))

			req := httptest.NewRequest(http.MethodGet, "/api/admin/licenses", nil)
			if tt.key != "" {
				req.Header.Set(AdminKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeEnvelope(t, rec)["error"])
			}
		})
	}
}

func TestHashAdminKey(t *testing.T) {
	hash, err := HashAdminKey("another-key")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("another-key")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("other")))
}
