// Package services implements the business layer between the HTTP handlers and
// the license and trial managers.
//
// # Architecture
//
// Services follow these principles:
//
//	1. Interface-driven design for testability
//	2. Context propagation for cancellation and tracing
//	3. Dependency injection of managers, the audit journal and the mailer
//	4. Protocol types in, protocol types out
//
// # Available Services
//
//	- LicenseService: validation, key recovery, trial issuance and administration
//	- TrialService: per-device file quota
//	- HealthService: liveness, readiness probes and version
//
// # Error Handling
//
// Services return the domain errors of the errors package unchanged, or an
// *errors.APIError where the protocol needs a specific code. Handlers render
// both through errors.FromDomain. Notification failures never surface; the
// response reports email_sent=false instead.
//
// # Testing
//
// Services are tested by mocking their dependencies with testify:
//
//	manager := new(MockLicenseManager)
//	manager.On("Get", mock.Anything, key).Return(rec, nil)
//	svc := NewLicenseService(manager, journal, mailer, nil, LicenseServiceConfig{}, logger)
package services
