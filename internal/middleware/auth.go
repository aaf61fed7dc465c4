package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	apierrors "licsrv/internal/errors"
	"licsrv/internal/infrastructure"
)

// AdminKeyHeader carries the administrator credential.
const AdminKeyHeader = "X-Admin-Key"

// AdminAuth guards administrative routes with a shared key compared against a
// bcrypt hash. With no hash configured every administrative request is
// refused.
func AdminAuth(keyHash string, logger *slog.Logger) func(next http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "admin_auth"))
	hash := []byte(keyHash)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if len(hash) == 0 {
				logger.WarnContext(ctx, "admin API disabled, no key hash configured",
					slog.String("path", r.URL.Path),
				)
				apierrors.WriteError(w, apierrors.New(http.StatusServiceUnavailable, apierrors.CodeServiceUnavailable,
					"The administrative API is not configured"), infrastructure.GetTraceID(ctx))
				return
			}

			key := r.Header.Get(AdminKeyHeader)
			if key == "" {
				logger.WarnContext(ctx, "missing admin key",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.WriteError(w, apierrors.New(http.StatusUnauthorized, apierrors.CodeUnauthorized,
					"Admin key required"), infrastructure.GetTraceID(ctx))
				return
			}

			if err := bcrypt.CompareHashAndPassword(hash, []byte(key)); err != nil {
				logger.WarnContext(ctx, "invalid admin key",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.WriteError(w, apierrors.New(http.StatusUnauthorized, apierrors.CodeUnauthorized,
					"Invalid admin key"), infrastructure.GetTraceID(ctx))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HashAdminKey produces the hash stored in security.admin_key_hash.
func HashAdminKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// AuditLog records every administrative request and its outcome.
func AuditLog(logger *slog.Logger) func(next http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "admin_audit"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "admin request",
				slog.String("event_type", "admin_access"),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
