package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"licsrv/internal/middleware"
	"licsrv/internal/services"
	"licsrv/pkg/contracts/domain"
)

// TrialHandler serves the trial quota and trial license endpoints
type TrialHandler struct {
	base
	trials   services.TrialService
	licenses services.LicenseService
}

// NewTrialHandler creates a new trial handler
func NewTrialHandler(trials services.TrialService, licenses services.LicenseService, decoder RequestDecoder, guard ActionGuard, logger *slog.Logger) *TrialHandler {
	return &TrialHandler{
		base:     newBase(decoder, guard, logger, "trial"),
		trials:   trials,
		licenses: licenses,
	}
}

// Routes returns a chi router for trial endpoints. The create and
// check-eligibility paths are kept for older desktop clients.
func (h *TrialHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/check", h.Check)
	r.Post("/increment", h.Increment)
	r.Post("/eligibility", h.Eligibility)
	r.Post("/check-eligibility", h.Eligibility)
	r.Post("/start", h.Start)
	r.Post("/create", h.Start)
	r.Get("/status", h.Status)
	r.Post("/status", h.Status)
	return r
}

// Check handles POST /api/trial/check
func (h *TrialHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req domain.TrialCheckRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.trials.Check(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, resp)
}

// Increment handles POST /api/trial/increment. An exhausted quota is a 200
// with success=false.
func (h *TrialHandler) Increment(w http.ResponseWriter, r *http.Request) {
	var req domain.TrialIncrementRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.trials.Increment(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, resp)
}

// Eligibility handles POST /api/trial/eligibility. Both answers are a 200.
func (h *TrialHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	var req domain.TrialEligibilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.licenses.CheckEligibility(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, resp)
}

// Start handles POST /api/trial/start
func (h *TrialHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req domain.TrialStartRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := middleware.Identity{Email: req.Email, IP: clientIP(r), HardwareID: req.HardwareID}
	if !h.allow(w, r, middleware.ActionTrialCreate, id) {
		return
	}

	resp, err := h.licenses.StartTrial(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, resp)
}

// Status handles GET /api/trial/status?license_key= and the POST form.
func (h *TrialHandler) Status(w http.ResponseWriter, r *http.Request) {
	var req domain.TrialStatusRequest
	if r.Method == http.MethodGet {
		req.LicenseKey = r.URL.Query().Get("license_key")
		if err := h.decoder.ValidateStruct(&req); err != nil {
			h.fail(w, r, err)
			return
		}
	} else if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.licenses.TrialStatus(r.Context(), req.LicenseKey)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, resp)
}
