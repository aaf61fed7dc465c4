package services

import (
	"context"
	"errors"
	"log/slog"

	apierrors "licsrv/internal/errors"
	"licsrv/internal/infrastructure"
	"licsrv/pkg/contracts/domain"
)

// TrialService provides the per-device trial quota protocol.
type TrialService interface {
	Check(ctx context.Context, req domain.TrialCheckRequest) (*domain.TrialCheckResponse, error)
	Increment(ctx context.Context, req domain.TrialIncrementRequest) (*domain.TrialIncrementResponse, error)
	Reset(ctx context.Context, hardwareID string) (*domain.TrialUsageResponse, error)
	Get(ctx context.Context, hardwareID string) (*domain.TrialUsageResponse, error)
	List(ctx context.Context) (*domain.TrialListResponse, error)
}

// trialService implements TrialService
type trialService struct {
	manager TrialManager
	metrics *infrastructure.EntitlementMetrics
	logger  *slog.Logger
}

// NewTrialService creates a trial quota service.
func NewTrialService(manager TrialManager, metrics *infrastructure.EntitlementMetrics, logger *slog.Logger) TrialService {
	if logger == nil {
		logger = slog.Default()
	}
	return &trialService{
		manager: manager,
		metrics: metrics,
		logger:  logger.With(slog.String("service", "trial")),
	}
}

// Check reports the remaining quota without recording anything.
func (s *trialService) Check(ctx context.Context, req domain.TrialCheckRequest) (*domain.TrialCheckResponse, error) {
	st, err := s.manager.Check(ctx, req.HardwareID)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTrialCheck(ctx, st.Allowed)
	return &domain.TrialCheckResponse{
		Allowed:        st.Allowed,
		RemainingFiles: st.RemainingFiles,
		FilesUsed:      st.FilesUsed,
		Limits:         domain.TrialLimits{Files: st.MaxFiles},
	}, nil
}

// Increment records processed files. An exhausted quota is reported as
// success=false with the unchanged counters rather than as an error.
func (s *trialService) Increment(ctx context.Context, req domain.TrialIncrementRequest) (*domain.TrialIncrementResponse, error) {
	count := req.FilesCount
	if count == 0 {
		count = 1
	}

	st, err := s.manager.Increment(ctx, req.HardwareID, count)
	switch {
	case errors.Is(err, apierrors.ErrTrialLimitReached):
		s.metrics.RecordTrialIncrement(ctx, "limit_reached")
		return &domain.TrialIncrementResponse{
			Success:        false,
			FilesUsed:      st.FilesUsed,
			RemainingFiles: st.RemainingFiles,
			Message:        "Trial limit reached",
		}, nil
	case err != nil:
		s.metrics.RecordTrialIncrement(ctx, "error")
		return nil, err
	}

	s.metrics.RecordTrialIncrement(ctx, "success")
	return &domain.TrialIncrementResponse{
		Success:        true,
		FilesUsed:      st.FilesUsed,
		RemainingFiles: st.RemainingFiles,
	}, nil
}

// Reset clears a device's usage.
func (s *trialService) Reset(ctx context.Context, hardwareID string) (*domain.TrialUsageResponse, error) {
	usage, err := s.manager.Reset(ctx, hardwareID)
	if err != nil {
		return nil, err
	}
	return &domain.TrialUsageResponse{
		Success:    true,
		HardwareID: hardwareID,
		Usage:      usage,
		Message:    "Trial usage reset",
	}, nil
}

// Get returns the stored usage for one device.
func (s *trialService) Get(ctx context.Context, hardwareID string) (*domain.TrialUsageResponse, error) {
	usage, err := s.manager.Get(ctx, hardwareID)
	if err != nil {
		return nil, err
	}
	return &domain.TrialUsageResponse{Success: true, HardwareID: hardwareID, Usage: usage}, nil
}

// List returns every device's usage with the quota in force.
func (s *trialService) List(ctx context.Context) (*domain.TrialListResponse, error) {
	entries := make([]domain.TrialEntry, 0)
	for hw, usage := range s.manager.List(ctx) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries = append(entries, domain.TrialEntry{HardwareID: hw, Usage: usage})
	}
	return &domain.TrialListResponse{
		Success:  true,
		Count:    len(entries),
		MaxFiles: s.manager.MaxFiles(),
		Trials:   entries,
	}, nil
}
