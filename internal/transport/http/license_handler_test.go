package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	apierrors "licsrv/internal/errors"
	"licsrv/internal/middleware"
	"licsrv/pkg/contracts/domain"
)

const (
	testKey = "K7QD-9XHM-2RPA-W4TZ"
	testHW  = "abcdef0123456789"
)

func TestLicenseHandler_Validate(t *testing.T) {
	expires := domain.NewTimestamp(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	validReq := domain.ValidateLicenseRequest{Email: "buyer@example.com", LicenseKey: testKey, HardwareID: testHW}

	tests := []struct {
		name       string
		body       interface{}
		setup      func(svc *MockLicenseService, guard *MockGuard)
		wantStatus int
		wantCode   string
	}{
		{
			name: "success",
			body: validReq,
			setup: func(svc *MockLicenseService, guard *MockGuard) {
				guard.On("Allow", mock.Anything, middleware.ActionLoginValidate,
					middleware.Identity{Email: "buyer@example.com", IP: "203.0.113.7", HardwareID: testHW}).Return(nil)
				svc.On("Validate", mock.Anything, validReq).Return(&domain.ValidateLicenseResponse{
					Success: true, Message: "License validated successfully", Expires: &expires,
				}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "bound elsewhere",
			body: validReq,
			setup: func(svc *MockLicenseService, guard *MockGuard) {
				guard.On("Allow", mock.Anything, mock.Anything, mock.Anything).Return(nil)
				svc.On("Validate", mock.Anything, validReq).Return(nil, &apierrors.HardwareMismatchError{BoundDevice: "Office PC"})
			},
			wantStatus: http.StatusConflict,
			wantCode:   apierrors.CodeBoundToOtherDevice,
		},
		{
			name: "revoked",
			body: validReq,
			setup: func(svc *MockLicenseService, guard *MockGuard) {
				guard.On("Allow", mock.Anything, mock.Anything, mock.Anything).Return(nil)
				svc.On("Validate", mock.Anything, validReq).Return(nil, apierrors.ErrLicenseRevoked)
			},
			wantStatus: http.StatusForbidden,
			wantCode:   apierrors.CodeLicenseDeactivated,
		},
		{
			name: "rate limited",
			body: validReq,
			setup: func(svc *MockLicenseService, guard *MockGuard) {
				guard.On("Allow", mock.Anything, mock.Anything, mock.Anything).
					Return(&apierrors.RateLimitError{Action: middleware.ActionLoginValidate, RetryAfter: 90 * time.Second})
			},
			wantStatus: http.StatusTooManyRequests,
			wantCode:   apierrors.CodeRateLimitExceeded,
		},
		{
			name:       "malformed key never reaches the service",
			body:       map[string]string{"email": "a@example.com", "license_key": "nope", "hardware_id": testHW},
			setup:      func(*MockLicenseService, *MockGuard) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   apierrors.CodeValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, guard := new(MockLicenseService), new(MockGuard)
			tt.setup(svc, guard)
			h := NewLicenseHandler(svc, newDecoder(), guard, quietLogger()).Routes()

			rec := doJSON(t, h, http.MethodPost, "/validate", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["error"])
				assert.Equal(t, false, body["success"])
			} else {
				assert.Equal(t, true, body["success"])
			}
			svc.AssertExpectations(t)
			guard.AssertExpectations(t)
		})
	}
}

func TestLicenseHandler_ValidateRateLimitHeaders(t *testing.T) {
	svc, guard := new(MockLicenseService), new(MockGuard)
	guard.On("Allow", mock.Anything, mock.Anything, mock.Anything).
		Return(&apierrors.RateLimitError{Action: middleware.ActionLoginValidate, RetryAfter: 90 * time.Second})
	h := NewLicenseHandler(svc, newDecoder(), guard, quietLogger()).Routes()

	rec := doJSON(t, h, http.MethodPost, "/validate",
		domain.ValidateLicenseRequest{Email: "a@example.com", LicenseKey: testKey, HardwareID: testHW})
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
	assert.Equal(t, float64(90), decodeBody(t, rec)["retry_after"])
}

func TestLicenseHandler_Forgot(t *testing.T) {
	t.Run("sent", func(t *testing.T) {
		svc, guard := new(MockLicenseService), new(MockGuard)
		guard.On("Allow", mock.Anything, middleware.ActionForgotLicense,
			middleware.Identity{Email: "buyer@example.com", IP: "203.0.113.7"}).Return(nil)
		svc.On("Recover", mock.Anything, domain.ForgotLicenseRequest{Email: "buyer@example.com"}).
			Return(&domain.ForgotLicenseResponse{Success: true, Message: "License key sent to your email", EmailSent: true}, nil)
		h := NewLicenseHandler(svc, newDecoder(), guard, quietLogger()).Routes()

		rec := doJSON(t, h, http.MethodPost, "/forgot", map[string]string{"email": "buyer@example.com"})
		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["email_sent"])
		assert.NotContains(t, rec.Body.String(), testKey)
	})

	t.Run("unknown email", func(t *testing.T) {
		svc := new(MockLicenseService)
		svc.On("Recover", mock.Anything, mock.Anything).
			Return(nil, apierrors.New(http.StatusNotFound, apierrors.CodeNoLicenseFound, "No license found for this email address"))
		h := NewLicenseHandler(svc, newDecoder(), nil, quietLogger()).Routes()

		rec := doJSON(t, h, http.MethodPost, "/forgot", map[string]string{"email": "nobody@example.com"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, apierrors.CodeNoLicenseFound, decodeBody(t, rec)["error"])
	})

	t.Run("empty body", func(t *testing.T) {
		h := NewLicenseHandler(new(MockLicenseService), newDecoder(), nil, quietLogger()).Routes()
		rec := doJSON(t, h, http.MethodPost, "/forgot", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, apierrors.CodeInvalidRequest, decodeBody(t, rec)["error"])
	})
}

func TestClientIP(t *testing.T) {
	tests := map[string]string{
		"203.0.113.7:51234": "203.0.113.7",
		"203.0.113.7":       "203.0.113.7",
		"[2001:db8::1]:443": "2001:db8::1",
	}
	for addr, want := range tests {
		r, _ := http.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		assert.Equal(t, want, clientIP(r), addr)
	}
}
