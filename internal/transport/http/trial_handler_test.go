package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	apierrors "licsrv/internal/errors"
	"licsrv/internal/middleware"
	"licsrv/pkg/contracts/domain"
)

func newTrialRouter(trials *MockTrialService, licenses *MockLicenseService, guard ActionGuard) http.Handler {
	return NewTrialHandler(trials, licenses, newDecoder(), guard, quietLogger()).Routes()
}

func TestTrialHandler_Check(t *testing.T) {
	trials := new(MockTrialService)
	trials.On("Check", mock.Anything, domain.TrialCheckRequest{HardwareID: testHW}).Return(&domain.TrialCheckResponse{
		Allowed: true, RemainingFiles: 30, Limits: domain.TrialLimits{Files: 30},
	}, nil)

	rec := doJSON(t, newTrialRouter(trials, nil, nil), http.MethodPost, "/check", domain.TrialCheckRequest{HardwareID: testHW})
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["allowed"])
	assert.Equal(t, float64(30), body["remaining_files"])
	assert.Equal(t, map[string]interface{}{"files": float64(30)}, body["limits"])
	trials.AssertExpectations(t)
}

func TestTrialHandler_Increment(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		resp       *domain.TrialIncrementResponse
		wantStatus int
	}{
		{
			name:       "recorded",
			body:       map[string]interface{}{"hardware_id": testHW, "files_count": 5},
			resp:       &domain.TrialIncrementResponse{Success: true, FilesUsed: 5, RemainingFiles: 25},
			wantStatus: http.StatusOK,
		},
		{
			name:       "limit reached is still 200",
			body:       map[string]interface{}{"hardware_id": testHW},
			resp:       &domain.TrialIncrementResponse{Success: false, FilesUsed: 30, Message: "Trial limit reached"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "files_count out of range",
			body:       map[string]interface{}{"hardware_id": testHW, "files_count": 5000},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trials := new(MockTrialService)
			if tt.resp != nil {
				trials.On("Increment", mock.Anything, mock.AnythingOfType("domain.TrialIncrementRequest")).Return(tt.resp, nil)
			}
			rec := doJSON(t, newTrialRouter(trials, nil, nil), http.MethodPost, "/increment", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.resp != nil {
				assert.Equal(t, tt.resp.Success, decodeBody(t, rec)["success"])
			}
			trials.AssertExpectations(t)
		})
	}
}

func TestTrialHandler_Eligibility(t *testing.T) {
	for _, path := range []string{"/eligibility", "/check-eligibility"} {
		t.Run(path, func(t *testing.T) {
			licenses := new(MockLicenseService)
			licenses.On("CheckEligibility", mock.Anything, domain.TrialEligibilityRequest{Email: "a@example.com", HardwareID: testHW}).
				Return(&domain.TrialEligibilityResponse{Eligible: false, Reason: apierrors.ReasonTrialUsedDevice, Message: "used"}, nil)

			rec := doJSON(t, newTrialRouter(nil, licenses, nil), http.MethodPost, path,
				domain.TrialEligibilityRequest{Email: "a@example.com", HardwareID: testHW})
			assert.Equal(t, http.StatusOK, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["eligible"])
			assert.Equal(t, apierrors.ReasonTrialUsedDevice, body["reason"])
		})
	}
}

func TestTrialHandler_Start(t *testing.T) {
	req := domain.TrialStartRequest{Email: "new@example.com", HardwareID: testHW, DeviceName: "Laptop"}

	t.Run("created", func(t *testing.T) {
		licenses, guard := new(MockLicenseService), new(MockGuard)
		guard.On("Allow", mock.Anything, middleware.ActionTrialCreate,
			middleware.Identity{Email: req.Email, IP: "203.0.113.7", HardwareID: testHW}).Return(nil)
		licenses.On("StartTrial", mock.Anything, req).Return(&domain.IssueLicenseResponse{
			Success: true, LicenseKey: testKey, Email: req.Email, IsTrial: true,
		}, nil)

		rec := doJSON(t, newTrialRouter(nil, licenses, guard), http.MethodPost, "/start", req)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, testKey, decodeBody(t, rec)["license_key"])
		guard.AssertExpectations(t)
	})

	t.Run("legacy path and ineligible", func(t *testing.T) {
		licenses := new(MockLicenseService)
		licenses.On("StartTrial", mock.Anything, req).Return(nil,
			&apierrors.EligibilityError{Reason: apierrors.ReasonTrialUsedEmail, Message: "You have already used your free trial"})

		rec := doJSON(t, newTrialRouter(nil, licenses, nil), http.MethodPost, "/create", req)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, apierrors.ReasonTrialUsedEmail, decodeBody(t, rec)["error"])
	})
}

func TestTrialHandler_Status(t *testing.T) {
	resp := &domain.TrialStatusResponse{LicenseKey: testKey, IsTrial: true, Active: true, DaysRemaining: 3}

	t.Run("query string", func(t *testing.T) {
		licenses := new(MockLicenseService)
		licenses.On("TrialStatus", mock.Anything, testKey).Return(resp, nil)
		rec := doJSON(t, newTrialRouter(nil, licenses, nil), http.MethodGet, "/status?license_key="+testKey, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(3), decodeBody(t, rec)["days_remaining"])
	})

	t.Run("json body", func(t *testing.T) {
		licenses := new(MockLicenseService)
		licenses.On("TrialStatus", mock.Anything, testKey).Return(resp, nil)
		rec := doJSON(t, newTrialRouter(nil, licenses, nil), http.MethodPost, "/status", domain.TrialStatusRequest{LicenseKey: testKey})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing key", func(t *testing.T) {
		rec := doJSON(t, newTrialRouter(nil, new(MockLicenseService), nil), http.MethodGet, "/status", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown key", func(t *testing.T) {
		licenses := new(MockLicenseService)
		licenses.On("TrialStatus", mock.Anything, testKey).Return(nil, apierrors.ErrLicenseNotFound)
		rec := doJSON(t, newTrialRouter(nil, licenses, nil), http.MethodGet, "/status?license_key="+testKey, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, apierrors.CodeInvalidLicense, decodeBody(t, rec)["error"])
	})
}
