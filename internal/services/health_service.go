package services

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"licsrv/pkg/contracts/domain"
)

// Health states.
const (
	StatusOnline   = "online"
	StatusOK       = "ok"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// Probe checks one dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

// HealthService provides health check functionality
type HealthService struct {
	version   string
	buildTime string
	probes    map[string]Probe
	timeout   time.Duration
	startTime time.Time
	logger    *slog.Logger
}

// NewHealthService creates a health service. Probes are run by
// ReadinessCheck under timeout each.
func NewHealthService(version, buildTime string, probes map[string]Probe, timeout time.Duration, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthService{
		version:   version,
		buildTime: buildTime,
		probes:    probes,
		timeout:   timeout,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// Status returns the liveness document.
func (hs *HealthService) Status(ctx context.Context) domain.StatusResponse {
	return domain.StatusResponse{Status: StatusOnline, Version: hs.version}
}

// ReadinessCheck runs every probe and reports not_ready when any fails.
func (hs *HealthService) ReadinessCheck(ctx context.Context) domain.HealthResponse {
	resp := domain.HealthResponse{
		Status:  StatusReady,
		Version: hs.version,
		Checks:  make(map[string]string, len(hs.probes)),
	}

	names := make([]string, 0, len(hs.probes))
	for name := range hs.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		probeCtx, cancel := context.WithTimeout(ctx, hs.timeout)
		err := hs.probes[name](probeCtx)
		cancel()

		if err != nil {
			resp.Status = StatusNotReady
			resp.Checks[name] = err.Error()
			hs.logger.WarnContext(ctx, "readiness probe failed",
				slog.String("probe", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		resp.Checks[name] = StatusOK
	}
	return resp
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":      hs.version,
		"go_version":   runtime.Version(),
		"os":           runtime.GOOS,
		"arch":         runtime.GOARCH,
		"uptime":       time.Since(hs.startTime).Seconds(),
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
		"goroutines":   runtime.NumGoroutine(),
	}
	if hs.buildTime != "" {
		result["build_time"] = hs.buildTime
	}
	return result
}
