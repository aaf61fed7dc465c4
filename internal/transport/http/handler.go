package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/render"

	apierrors "licsrv/internal/errors"
	"licsrv/internal/middleware"
)

// ActionGuard applies the per-identity limits to abuse-prone actions.
// *middleware.ActionLimiter implements it.
type ActionGuard interface {
	Allow(ctx context.Context, action string, id middleware.Identity) error
}

// RequestDecoder decodes and validates request bodies.
// *middleware.Validator implements it.
type RequestDecoder interface {
	DecodeAndValidate(r *http.Request, dst interface{}) error
	ValidateStruct(v interface{}) error
}

var (
	_ ActionGuard    = (*middleware.ActionLimiter)(nil)
	_ RequestDecoder = (*middleware.Validator)(nil)
)

// base carries what every handler needs to decode requests and render
// results.
type base struct {
	decoder RequestDecoder
	guard   ActionGuard
	errors  *apierrors.ErrorHandler
	logger  *slog.Logger
}

func newBase(decoder RequestDecoder, guard ActionGuard, logger *slog.Logger, name string) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{
		decoder: decoder,
		guard:   guard,
		errors:  apierrors.NewErrorHandler(logger),
		logger:  logger.With(slog.String("handler", name)),
	}
}

// decode reads the body into dst and renders the failure itself. It reports
// whether the handler should continue.
func (b base) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := b.decoder.DecodeAndValidate(r, dst); err != nil {
		b.errors.HandleError(w, r, err)
		return false
	}
	return true
}

// decodeOptional is decode for endpoints whose body may be omitted.
func (b base) decodeOptional(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.ContentLength == 0 {
		return true
	}
	return b.decode(w, r, dst)
}

// allow consults the guard and renders a 429 itself. A nil guard allows
// everything.
func (b base) allow(w http.ResponseWriter, r *http.Request, action string, id middleware.Identity) bool {
	if b.guard == nil {
		return true
	}
	if err := b.guard.Allow(r.Context(), action, id); err != nil {
		b.errors.HandleError(w, r, err)
		return false
	}
	return true
}

func (b base) fail(w http.ResponseWriter, r *http.Request, err error) {
	b.errors.HandleError(w, r, err)
}

func (b base) respond(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// clientIP returns the caller address as rewritten by the RealIP middleware,
// without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
