package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "licsrv/internal/errors"
	"licsrv/internal/infrastructure"
	"licsrv/internal/trial"
	"licsrv/pkg/contracts/domain"
)

const testHW = "abcdef0123456789"

func newTrialFixture(t *testing.T) (*MockTrialManager, TrialService) {
	t.Helper()
	m := new(MockTrialManager)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m, NewTrialService(m, infrastructure.NewNoopMetrics(), quietLogger())
}

func TestTrialService_Check(t *testing.T) {
	m, svc := newTrialFixture(t)
	m.On("Check", mock.Anything, testHW).Return(trial.Status{Allowed: true, FilesUsed: 5, RemainingFiles: 25, MaxFiles: 30}, nil)

	resp, err := svc.Check(context.Background(), domain.TrialCheckRequest{HardwareID: testHW})
	require.NoError(t, err)
	assert.Equal(t, &domain.TrialCheckResponse{
		Allowed:        true,
		RemainingFiles: 25,
		FilesUsed:      5,
		Limits:         domain.TrialLimits{Files: 30},
	}, resp)
}

func TestTrialService_Increment(t *testing.T) {
	tests := []struct {
		name        string
		filesCount  int
		wantCount   int
		status      trial.Status
		err         error
		wantSuccess bool
		wantErr     error
	}{
		{
			name:        "defaults to one file",
			wantCount:   1,
			status:      trial.Status{Allowed: true, FilesUsed: 1, RemainingFiles: 29, MaxFiles: 30},
			wantSuccess: true,
		},
		{
			name:        "batch",
			filesCount:  5,
			wantCount:   5,
			status:      trial.Status{Allowed: true, FilesUsed: 5, RemainingFiles: 25, MaxFiles: 30},
			wantSuccess: true,
		},
		{
			name:       "limit reached is a normal answer",
			filesCount: 1,
			wantCount:  1,
			status:     trial.Status{FilesUsed: 30, RemainingFiles: 0, MaxFiles: 30},
			err:        apierrors.ErrTrialLimitReached,
		},
		{
			name:       "store failure",
			filesCount: 1,
			wantCount:  1,
			err:        apierrors.NewPersistenceError("save", "trials", errors.New("disk full")),
			wantErr:    apierrors.ErrPersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, svc := newTrialFixture(t)
			m.On("Increment", mock.Anything, testHW, tt.wantCount).Return(tt.status, tt.err)

			resp, err := svc.Increment(context.Background(), domain.TrialIncrementRequest{HardwareID: testHW, FilesCount: tt.filesCount})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, resp.Success)
			assert.Equal(t, tt.status.FilesUsed, resp.FilesUsed)
			assert.Equal(t, tt.status.RemainingFiles, resp.RemainingFiles)
			if !tt.wantSuccess {
				assert.Equal(t, "Trial limit reached", resp.Message)
			}
		})
	}
}

func TestTrialService_Reset(t *testing.T) {
	t.Run("known device", func(t *testing.T) {
		m, svc := newTrialFixture(t)
		m.On("Reset", mock.Anything, testHW).Return(domain.TrialUsage{FilesUsed: 0}, nil)

		resp, err := svc.Reset(context.Background(), testHW)
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, testHW, resp.HardwareID)
	})

	t.Run("unknown device", func(t *testing.T) {
		m, svc := newTrialFixture(t)
		m.On("Reset", mock.Anything, testHW).Return(domain.TrialUsage{}, apierrors.ErrHardwareIDNotFound)

		_, err := svc.Reset(context.Background(), testHW)
		assert.Equal(t, apierrors.CodeHardwareIDNotFound, apierrors.FromDomain(err).ErrorCode)
	})
}

func TestTrialService_List(t *testing.T) {
	m, svc := newTrialFixture(t)
	m.On("List", mock.Anything).Return(trialSeq(
		domain.TrialEntry{HardwareID: "device-0001", Usage: domain.TrialUsage{FilesUsed: 3}},
		domain.TrialEntry{HardwareID: "device-0002", Usage: domain.TrialUsage{FilesUsed: 30}},
	))
	m.On("MaxFiles").Return(30)

	resp, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 30, resp.MaxFiles)
	assert.Equal(t, "device-0002", resp.Trials[1].HardwareID)
}
