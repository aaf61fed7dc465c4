package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"licsrv/internal/middleware"
	"licsrv/pkg/contracts/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newDecoder() *middleware.Validator {
	return middleware.NewValidator(quietLogger())
}

// MockLicenseService implements services.LicenseService for testing
type MockLicenseService struct {
	mock.Mock
}

func (m *MockLicenseService) Validate(ctx context.Context, req domain.ValidateLicenseRequest) (*domain.ValidateLicenseResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ValidateLicenseResponse), args.Error(1)
}

func (m *MockLicenseService) Recover(ctx context.Context, req domain.ForgotLicenseRequest) (*domain.ForgotLicenseResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ForgotLicenseResponse), args.Error(1)
}

func (m *MockLicenseService) CheckEligibility(ctx context.Context, req domain.TrialEligibilityRequest) (*domain.TrialEligibilityResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TrialEligibilityResponse), args.Error(1)
}

func (m *MockLicenseService) StartTrial(ctx context.Context, req domain.TrialStartRequest) (*domain.IssueLicenseResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IssueLicenseResponse), args.Error(1)
}

func (m *MockLicenseService) TrialStatus(ctx context.Context, licenseKey string) (*domain.TrialStatusResponse, error) {
	args := m.Called(ctx, licenseKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TrialStatusResponse), args.Error(1)
}

func (m *MockLicenseService) Issue(ctx context.Context, req domain.CreateLicenseRequest) (*domain.IssueLicenseResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IssueLicenseResponse), args.Error(1)
}

func (m *MockLicenseService) Revoke(ctx context.Context, licenseKey string, req domain.RevokeLicenseRequest) (*domain.LicenseResponse, error) {
	args := m.Called(ctx, licenseKey, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LicenseResponse), args.Error(1)
}

func (m *MockLicenseService) Rebind(ctx context.Context, licenseKey string, req domain.RebindLicenseRequest) (*domain.LicenseResponse, error) {
	args := m.Called(ctx, licenseKey, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LicenseResponse), args.Error(1)
}

func (m *MockLicenseService) Get(ctx context.Context, licenseKey string) (*domain.LicenseResponse, error) {
	args := m.Called(ctx, licenseKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LicenseResponse), args.Error(1)
}

func (m *MockLicenseService) List(ctx context.Context) (*domain.LicenseListResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LicenseListResponse), args.Error(1)
}

// MockTrialService implements services.TrialService for testing
type MockTrialService struct {
	mock.Mock
}

func (m *MockTrialService) Check(ctx context.Context, req domain.TrialCheckRequest) (*domain.TrialCheckResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TrialCheckResponse), args.Error(1)
}

func (m *MockTrialService) Increment(ctx context.Context, req domain.TrialIncrementRequest) (*domain.TrialIncrementResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TrialIncrementResponse), args.Error(1)
}

func (m *MockTrialService) Reset(ctx context.Context, hardwareID string) (*domain.TrialUsageResponse, error) {
	args := m.Called(ctx, hardwareID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TrialUsageResponse), args.Error(1)
}

func (m *MockTrialService) Get(ctx context.Context, hardwareID string) (*domain.TrialUsageResponse, error) {
	args := m.Called(ctx, hardwareID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TrialUsageResponse), args.Error(1)
}

func (m *MockTrialService) List(ctx context.Context) (*domain.TrialListResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TrialListResponse), args.Error(1)
}

// MockGuard implements ActionGuard and LimitResetter for testing
type MockGuard struct {
	mock.Mock
}

func (m *MockGuard) Allow(ctx context.Context, action string, id middleware.Identity) error {
	args := m.Called(ctx, action, id)
	return args.Error(0)
}

func (m *MockGuard) Reset(id middleware.Identity) bool {
	args := m.Called(id)
	return args.Bool(0)
}

func doJSON(t *testing.T, h http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "203.0.113.7:51234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}
