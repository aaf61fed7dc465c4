package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "licsrv/internal/errors"
	"licsrv/internal/middleware"
	"licsrv/internal/services"
	"licsrv/pkg/contracts/domain"
)

// LimitResetter clears per-identity limiter state.
// *middleware.ActionLimiter implements it.
type LimitResetter interface {
	Reset(id middleware.Identity) bool
}

// AdminHandler serves the administrative license and trial endpoints. It
// expects to be mounted behind middleware.AdminAuth.
type AdminHandler struct {
	base
	licenses services.LicenseService
	trials   services.TrialService
	limits   LimitResetter
}

// NewAdminHandler creates a new admin handler. A nil limits disables the
// rate limit reset endpoint.
func NewAdminHandler(licenses services.LicenseService, trials services.TrialService, limits LimitResetter, decoder RequestDecoder, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		base:     newBase(decoder, nil, logger, "admin"),
		licenses: licenses,
		trials:   trials,
		limits:   limits,
	}
}

// Routes returns a chi router for admin endpoints
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/licenses", func(r chi.Router) {
		r.Get("/", h.ListLicenses)
		r.Post("/", h.CreateLicense)
		r.Get("/{key}", h.GetLicense)
		r.Post("/{key}/revoke", h.RevokeLicense)
		r.Post("/{key}/rebind", h.RebindLicense)
	})
	r.Route("/trials", func(r chi.Router) {
		r.Get("/", h.ListTrials)
		r.Get("/{hardware_id}", h.GetTrial)
		r.Post("/{hardware_id}/reset", h.ResetTrial)
	})
	r.Post("/rate-limits/reset", h.ResetRateLimit)
	return r
}

// CreateLicense handles POST /api/admin/licenses
func (h *AdminHandler) CreateLicense(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLicenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.licenses.Issue(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, resp)
}

// ListLicenses handles GET /api/admin/licenses
func (h *AdminHandler) ListLicenses(w http.ResponseWriter, r *http.Request) {
	resp, err := h.licenses.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, resp)
}

// GetLicense handles GET /api/admin/licenses/{key}
func (h *AdminHandler) GetLicense(w http.ResponseWriter, r *http.Request) {
	resp, err := h.licenses.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, resp)
}

// RevokeLicense handles POST /api/admin/licenses/{key}/revoke. The body is
// optional.
func (h *AdminHandler) RevokeLicense(w http.ResponseWriter, r *http.Request) {
	var req domain.RevokeLicenseRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	resp, err := h.licenses.Revoke(r.Context(), chi.URLParam(r, "key"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, resp)
}

// RebindLicense handles POST /api/admin/licenses/{key}/rebind. An empty body
// clears the binding.
func (h *AdminHandler) RebindLicense(w http.ResponseWriter, r *http.Request) {
	var req domain.RebindLicenseRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	resp, err := h.licenses.Rebind(r.Context(), chi.URLParam(r, "key"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, resp)
}

// ListTrials handles GET /api/admin/trials
func (h *AdminHandler) ListTrials(w http.ResponseWriter, r *http.Request) {
	resp, err := h.trials.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, resp)
}

// GetTrial handles GET /api/admin/trials/{hardware_id}
func (h *AdminHandler) GetTrial(w http.ResponseWriter, r *http.Request) {
	hw, ok := h.hardwareParam(w, r)
	if !ok {
		return
	}
	resp, err := h.trials.Get(r.Context(), hw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, resp)
}

// ResetTrial handles POST /api/admin/trials/{hardware_id}/reset
func (h *AdminHandler) ResetTrial(w http.ResponseWriter, r *http.Request) {
	hw, ok := h.hardwareParam(w, r)
	if !ok {
		return
	}
	resp, err := h.trials.Reset(r.Context(), hw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, resp)
}

// ResetRateLimit handles POST /api/admin/rate-limits/reset. The identity
// must match the one the limited endpoint used: email and IP for key
// recovery, plus the hardware id for trial issuance.
func (h *AdminHandler) ResetRateLimit(w http.ResponseWriter, r *http.Request) {
	if h.limits == nil {
		h.fail(w, r, apierrors.New(http.StatusServiceUnavailable, apierrors.CodeServiceUnavailable, "Per-identity limits are disabled"))
		return
	}
	var req domain.RateLimitResetRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Email == "" && req.IP == "" && req.HardwareID == "" {
		h.fail(w, r, apierrors.InvalidArgument("email, ip or hardware_id is required"))
		return
	}

	cleared := h.limits.Reset(middleware.Identity{Email: req.Email, IP: req.IP, HardwareID: req.HardwareID})
	message := "No limiter state for this identity"
	if cleared {
		message = "Rate limit state cleared"
	}
	h.logger.InfoContext(r.Context(), "rate limit reset", slog.Bool("cleared", cleared))
	h.respond(w, r, http.StatusOK, domain.ActionResponse{Success: true, Message: message})
}

func (h *AdminHandler) hardwareParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	hw := chi.URLParam(r, "hardware_id")
	if !domain.ValidHardwareID(hw) {
		h.fail(w, r, apierrors.InvalidArgument("invalid hardware id"))
		return "", false
	}
	return hw, true
}
