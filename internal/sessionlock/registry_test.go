package sessionlock

import (
	"context"
	"testing"
	"time"

	"toolbroker/internal/config"
	"toolbroker/internal/db"
	"toolbroker/internal/logger"
	"toolbroker/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRegistry(t *testing.T, now *time.Time) *Registry {
	t.Helper()
	dbService, err := db.NewService(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	r := NewRegistry(dbService, model.TrendTrackProfile, time.Hour, logger.Discard())
	r.now = func() time.Time { return *now }
	return r
}

func TestStatus_NoLock(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	r := setupRegistry(t, &now)

	st, err := r.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Available)
	assert.Nil(t, st.EndTime)
}

func TestStatus_LockedThenReleased(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	r := setupRegistry(t, &now)
	ctx := context.Background()

	lock, err := r.Record(ctx, "ops-runbook")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), lock.EndTime)
	assert.NotEmpty(t, lock.ID)

	now = now.Add(20*time.Minute + 30*time.Second)
	st, err := r.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Available)
	assert.Equal(t, 40, st.RemainingMinutes)
	require.NotNil(t, st.EndTime)
	assert.True(t, st.EndTime.Equal(lock.EndTime))

	now = lock.EndTime
	st, err = r.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Available)
}

func TestRecord_IsAdvisory(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	r := setupRegistry(t, &now)
	ctx := context.Background()

	_, err := r.Record(ctx, "first")
	require.NoError(t, err)
	now = now.Add(time.Minute)
	second, err := r.Record(ctx, "second")
	require.NoError(t, err, "recording over an active window is allowed")

	st, err := r.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Available)
	assert.True(t, st.EndTime.Equal(second.EndTime))
}
