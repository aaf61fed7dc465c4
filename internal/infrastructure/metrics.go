package infrastructure

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Outcome labels shared by the counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// EntitlementMetrics holds the server's business and HTTP instruments. All
// methods are safe on a nil receiver.
type EntitlementMetrics struct {
	Validations         metric.Int64Counter
	Issued              metric.Int64Counter
	Revoked             metric.Int64Counter
	TrialIncrements     metric.Int64Counter
	TrialChecks         metric.Int64Counter
	Notifications       metric.Int64Counter
	RateLimited         metric.Int64Counter
	Backups             metric.Int64Counter
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter
}

// NewEntitlementMetrics creates every instrument on meter.
func NewEntitlementMetrics(meter metric.Meter) (*EntitlementMetrics, error) {
	m := &EntitlementMetrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.Validations, "license_validations_total", "License validation attempts by outcome"},
		{&m.Issued, "licenses_issued_total", "Licenses issued by source"},
		{&m.Revoked, "licenses_revoked_total", "Licenses revoked by reason"},
		{&m.TrialIncrements, "trial_increments_total", "Trial usage increments by outcome"},
		{&m.TrialChecks, "trial_checks_total", "Trial quota checks by result"},
		{&m.Notifications, "notifications_total", "Notification deliveries by kind and outcome"},
		{&m.RateLimited, "rate_limited_total", "Requests refused by a per-identity limit"},
		{&m.Backups, "backups_total", "Backups by type and outcome"},
		{&m.HTTPRequestsTotal, "http_requests_total", "Total number of HTTP requests"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewNoopMetrics returns instruments that record nothing.
func NewNoopMetrics() *EntitlementMetrics {
	m, _ := NewEntitlementMetrics(noop.NewMeterProvider().Meter(MeterName))
	return m
}

func outcome(ok bool) string {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// RecordValidation counts a validation by outcome, which is "success" or the
// wire error code.
func (m *EntitlementMetrics) RecordValidation(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.Validations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", result)))
}

// RecordIssued counts an issued license.
func (m *EntitlementMetrics) RecordIssued(ctx context.Context, source string) {
	if m == nil {
		return
	}
	if source == "" {
		source = "admin"
	}
	m.Issued.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordRevoked counts a revocation.
func (m *EntitlementMetrics) RecordRevoked(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.Revoked.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordTrialIncrement counts an increment attempt.
func (m *EntitlementMetrics) RecordTrialIncrement(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.TrialIncrements.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", result)))
}

// RecordTrialCheck counts a quota check.
func (m *EntitlementMetrics) RecordTrialCheck(ctx context.Context, allowed bool) {
	if m == nil {
		return
	}
	m.TrialChecks.Add(ctx, 1, metric.WithAttributes(attribute.Bool("allowed", allowed)))
}

// RecordNotification counts a delivery attempt.
func (m *EntitlementMetrics) RecordNotification(ctx context.Context, kind string, delivered bool) {
	if m == nil {
		return
	}
	m.Notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome(delivered)),
	))
}

// RecordRateLimited counts a request refused by policy.
func (m *EntitlementMetrics) RecordRateLimited(ctx context.Context, policy string) {
	if m == nil {
		return
	}
	m.RateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("policy", policy)))
}

// RecordBackup counts a backup run.
func (m *EntitlementMetrics) RecordBackup(ctx context.Context, backupType string, ok bool) {
	if m == nil {
		return
	}
	m.Backups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", backupType),
		attribute.String("outcome", outcome(ok)),
	))
}

// RecordHTTPRequest records a completed request.
func (m *EntitlementMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status_code", strconv.Itoa(status)),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, d.Seconds(), attrs)
}

// AddActiveRequest adjusts the in-flight gauge.
func (m *EntitlementMetrics) AddActiveRequest(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.HTTPActiveRequests.Add(ctx, delta)
}
