// Package http implements the HTTP handlers of the entitlement server. It is
// a thin layer between the chi router and the services package: handlers
// decode and validate requests, apply the per-identity limits and render
// service results or errors in the standard envelope.
//
// # Architecture Principles
//
//	1. Thin handlers - minimal logic, delegate to services
//	2. HTTP-only concerns - request parsing, response formatting
//	3. Error transformation - every error renders through errors.FromDomain
//
// # Handler Structure
//
// Each handler follows this pattern:
//
//	func (h *Handler) Something(w http.ResponseWriter, r *http.Request) {
//	    var req domain.SomethingRequest
//	    if !h.decode(w, r, &req) {
//	        return
//	    }
//	    resp, err := h.service.Something(r.Context(), req)
//	    if err != nil {
//	        h.fail(w, r, err)
//	        return
//	    }
//	    h.respond(w, r, http.StatusOK, resp)
//	}
//
// # Routes
//
// Handlers expose Routes() for mounting:
//
//	/api/license   LicenseHandler   validate, forgot
//	/api/trial     TrialHandler     check, increment, eligibility, start, status
//	/api/admin     AdminHandler     licenses, trials, rate-limits
//	/api/v1/messages MessagesHandler
//
// HealthHandler and MetricsHandler are registered as single routes.
package http
