package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"licsrv/internal/license"
	"licsrv/internal/middleware"
	"licsrv/internal/services"
	"licsrv/pkg/contracts/domain"
)

// LicenseHandler serves the client license protocol
type LicenseHandler struct {
	base
	service services.LicenseService
}

// NewLicenseHandler creates a new license handler. A nil guard disables the
// per-identity limits.
func NewLicenseHandler(service services.LicenseService, decoder RequestDecoder, guard ActionGuard, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		base:    newBase(decoder, guard, logger, "license"),
		service: service,
	}
}

// Routes returns a chi router for license endpoints
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/validate", h.Validate)
	r.Post("/forgot", h.Forgot)
	return r
}

// Validate handles POST /api/license/validate
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req domain.ValidateLicenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.allow(w, r, middleware.ActionLoginValidate, middleware.Identity{Email: req.Email, IP: clientIP(r), HardwareID: req.HardwareID}) {
		return
	}

	resp, err := h.service.Validate(r.Context(), req)
	if err != nil {
		h.logger.InfoContext(r.Context(), "license validation failed",
			slog.String("license_key", license.MaskKey(license.NormalizeKey(req.LicenseKey))),
			slog.String("error", err.Error()),
		)
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, resp)
}

// Forgot handles POST /api/license/forgot
func (h *LicenseHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req domain.ForgotLicenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.allow(w, r, middleware.ActionForgotLicense, middleware.Identity{Email: req.Email, IP: clientIP(r)}) {
		return
	}

	resp, err := h.service.Recover(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, resp)
}
