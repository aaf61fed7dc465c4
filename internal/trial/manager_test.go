package trial

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "licsrv/internal/errors"
	"licsrv/internal/store"
	"licsrv/pkg/contracts/domain"
)

const hw = "a1b2c3d4e5f60718"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, maxFiles int) (*Manager, *store.MemoryStore[domain.TrialUsage], *time.Time) {
	t.Helper()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	mem := store.NewMemoryStore[domain.TrialUsage]()
	m := NewManager(mem, StaticRules(maxFiles), quietLogger(), WithClock(func() time.Time { return now }))
	return m, mem, &now
}

func TestCheck_UnknownHardwareID(t *testing.T) {
	m, _, _ := newTestManager(t, 30)
	ctx := context.Background()

	_, err := m.Increment(ctx, "other-device-01", 12)
	require.NoError(t, err)

	st, err := m.Check(ctx, hw)
	require.NoError(t, err)
	assert.Equal(t, Status{Allowed: true, FilesUsed: 0, RemainingFiles: 30, MaxFiles: 30}, st)
}

func TestCheck_IsReadOnly(t *testing.T) {
	m, mem, _ := newTestManager(t, 30)
	_, err := m.Check(context.Background(), hw)
	require.NoError(t, err)
	assert.Zero(t, mem.Saves())
}

func TestCheck_LoadFailureDegradesToFresh(t *testing.T) {
	m, mem, _ := newTestManager(t, 30)
	_, err := m.Increment(context.Background(), hw, 10)
	require.NoError(t, err)
	mem.FailLoads = true

	st, err := m.Check(context.Background(), hw)
	require.NoError(t, err)
	assert.Equal(t, 0, st.FilesUsed)
	assert.True(t, st.Allowed)
}

func TestIncrement_FreshHardwareID(t *testing.T) {
	m, _, now := newTestManager(t, 30)
	ctx := context.Background()

	st, err := m.Increment(ctx, hw, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, st.FilesUsed)
	assert.Equal(t, 25, st.RemainingFiles)

	usage, err := m.Get(ctx, hw)
	require.NoError(t, err)
	assert.True(t, now.Equal(usage.FirstSeen.Time))
	assert.True(t, now.Equal(usage.LastSeen.Time))
}

func TestIncrement_QuotaBoundary(t *testing.T) {
	const maxFiles = 30
	m, mem, _ := newTestManager(t, maxFiles)
	ctx := context.Background()

	for i := 1; i <= maxFiles; i++ {
		st, err := m.Increment(ctx, hw, 1)
		require.NoError(t, err, "call %d", i)
		assert.Equal(t, i, st.FilesUsed)
	}
	saves := mem.Saves()

	st, err := m.Increment(ctx, hw, 1)
	assert.ErrorIs(t, err, apperrors.ErrTrialLimitReached)
	assert.Equal(t, maxFiles, st.FilesUsed)
	assert.Zero(t, st.RemainingFiles)
	assert.False(t, st.Allowed)
	assert.Equal(t, saves, mem.Saves(), "failed increment must not rewrite the store")

	check, err := m.Check(ctx, hw)
	require.NoError(t, err)
	assert.Equal(t, maxFiles, check.FilesUsed)
	assert.False(t, check.Allowed)
}

func TestIncrement_BatchMayOvershoot(t *testing.T) {
	m, _, _ := newTestManager(t, 10)
	ctx := context.Background()

	_, err := m.Increment(ctx, hw, 8)
	require.NoError(t, err)
	st, err := m.Increment(ctx, hw, 5)
	require.NoError(t, err)
	assert.Equal(t, 13, st.FilesUsed)
	assert.Zero(t, st.RemainingFiles)
}

func TestIncrement_InvalidArguments(t *testing.T) {
	m, _, _ := newTestManager(t, 30)
	ctx := context.Background()

	_, err := m.Increment(ctx, hw, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	_, err = m.Increment(ctx, "", 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestIncrement_SaveFailureIsSurfaced(t *testing.T) {
	m, mem, _ := newTestManager(t, 30)
	mem.FailSaves = true

	_, err := m.Increment(context.Background(), hw, 1)
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
}

func TestIncrement_MigratesLegacyRecord(t *testing.T) {
	m, mem, _ := newTestManager(t, 30)
	mem.SetRaw([]byte(`{"` + hw + `":{"conversions_used":4,"first_seen":"2024-01-01T00:00:00","last_seen":"2024-01-02T00:00:00"}}`))

	st, err := m.Increment(context.Background(), hw, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, st.FilesUsed)
	assert.NotContains(t, string(mem.Raw()), "conversions_used")
}

func TestReset(t *testing.T) {
	m, mem, _ := newTestManager(t, 3)
	ctx := context.Background()

	_, err := m.Reset(ctx, hw)
	assert.ErrorIs(t, err, apperrors.ErrHardwareIDNotFound)

	for i := 0; i < 3; i++ {
		_, err := m.Increment(ctx, hw, 1)
		require.NoError(t, err)
	}
	_, err = m.Increment(ctx, hw, 1)
	require.ErrorIs(t, err, apperrors.ErrTrialLimitReached)

	usage, err := m.Reset(ctx, hw)
	require.NoError(t, err)
	assert.Zero(t, usage.FilesUsed)
	require.NotNil(t, usage.BatchesUsed)
	assert.Zero(t, *usage.BatchesUsed)
	assert.Contains(t, string(mem.Raw()), `"batches_used":0`)

	st, err := m.Check(ctx, hw)
	require.NoError(t, err)
	assert.Equal(t, Status{Allowed: true, FilesUsed: 0, RemainingFiles: 3, MaxFiles: 3}, st)
}

func TestList(t *testing.T) {
	m, _, _ := newTestManager(t, 30)
	ctx := context.Background()
	for _, id := range []string{"device-0003", "device-0001", "device-0002"} {
		_, err := m.Increment(ctx, id, 1)
		require.NoError(t, err)
	}

	var ids []string
	for id := range m.List(ctx) {
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"device-0003", "device-0001", "device-0002"}, ids)
}

func TestFileRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	rules := NewFileRules(path, DefaultMaxFiles, quietLogger())

	assert.Equal(t, DefaultMaxFiles, rules.MaxFiles())
	assert.Equal(t, "default", rules.Source())

	require.NoError(t, os.WriteFile(path, []byte(`{"max_files": 50}`), 0o600))
	assert.Equal(t, 50, rules.MaxFiles())
	assert.Equal(t, "file", rules.Source())

	require.NoError(t, os.WriteFile(path, []byte("max_files: 7\n"), 0o600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))
	assert.Equal(t, 7, rules.MaxFiles())

	require.NoError(t, os.WriteFile(path, []byte(`{"max_files": `), 0o600))
	later := future.Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	assert.Equal(t, DefaultMaxFiles, rules.MaxFiles())
	assert.Equal(t, "invalid", rules.Source())

	require.NoError(t, os.Remove(path))
	assert.Equal(t, DefaultMaxFiles, rules.MaxFiles())
}

func TestManager_UsesHotReloadedRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_files: 2\n"), 0o600))
	m := NewManager(store.NewMemoryStore[domain.TrialUsage](), NewFileRules(path, DefaultMaxFiles, quietLogger()), quietLogger())
	ctx := context.Background()

	_, err := m.Increment(ctx, hw, 2)
	require.NoError(t, err)
	_, err = m.Increment(ctx, hw, 1)
	assert.ErrorIs(t, err, apperrors.ErrTrialLimitReached)

	require.NoError(t, os.WriteFile(path, []byte("max_files: 5\n"), 0o600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	st, err := m.Increment(ctx, hw, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, st.FilesUsed)
	assert.Equal(t, 2, st.RemainingFiles)
}
