package meter

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokengate/tokengate/internal/db"
	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/op"
)

func setupMeter(t *testing.T, apiKey string, total, dailyLimit int64) context.Context {
	t.Helper()
	require.NoError(t, db.InitDB("sqlite", filepath.Join(t.TempDir(), "test.db"), false))
	require.NoError(t, op.InitCache())
	t.Cleanup(func() { _ = db.Close() })

	a := model.Allocation{
		UserID:          1,
		PackageID:       1,
		APIKey:          apiKey,
		TotalTokens:     total,
		RemainingTokens: total,
		DailyLimit:      dailyLimit,
		DailyResetAt:    time.Now().Unix(),
		ExpiresAt:       time.Now().Add(24 * time.Hour).Unix(),
		IsActive:        true,
	}
	require.NoError(t, op.AllocationCreate(&a, context.Background()))
	return context.Background()
}

func TestValidateUsage(t *testing.T) {
	ctx := setupMeter(t, "mkey-validate", 100, 0)

	usage, err := ValidateUsage("mkey-validate", 50, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), usage.Remaining)

	// Validation has no decrement side effect.
	usage, err = ValidateUsage("mkey-validate", 50, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), usage.Remaining)

	_, err = ValidateUsage("mkey-validate", 101, ctx)
	assert.ErrorIs(t, err, op.ErrInsufficientQuota)

	_, err = ValidateUsage("missing-key", 1, ctx)
	assert.ErrorIs(t, err, op.ErrAllocationNotFound)
}

func TestValidateUsageDailyLimit(t *testing.T) {
	ctx := setupMeter(t, "mkey-daily", 1000, 100)

	_, err := ConsumeTokens("mkey-daily", 80, ctx)
	require.NoError(t, err)

	usage, err := ValidateUsage("mkey-daily", 20, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), usage.DailyRemaining)

	_, err = ValidateUsage("mkey-daily", 21, ctx)
	assert.ErrorIs(t, err, ErrDailyLimitReached)
}

func TestValidateUsageResetsDailyOnNewDay(t *testing.T) {
	ctx := setupMeter(t, "mkey-rollover", 1000, 100)

	_, err := ConsumeTokens("mkey-rollover", 100, ctx)
	require.NoError(t, err)
	_, err = ValidateUsage("mkey-rollover", 1, ctx)
	assert.ErrorIs(t, err, ErrDailyLimitReached)

	// Move the reset marker into yesterday: the next validation rolls the
	// counter over and succeeds.
	yesterday := time.Now().Add(-24 * time.Hour).Unix()
	require.NoError(t, db.GetDB().Model(&model.Allocation{}).
		Where("api_key = ?", "mkey-rollover").
		Update("daily_reset_at", yesterday).Error)
	require.NoError(t, op.InitCache())

	usage, err := ValidateUsage("mkey-rollover", 1, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), usage.DailyRemaining)
}

func TestValidateUsageExpired(t *testing.T) {
	ctx := setupMeter(t, "mkey-expired", 100, 0)

	require.NoError(t, db.GetDB().Model(&model.Allocation{}).
		Where("api_key = ?", "mkey-expired").
		Update("expires_at", time.Now().Add(-time.Hour).Unix()).Error)
	// Cache still holds the old row; force a fresh read through the reset path.
	_, err := op.AllocationResetDaily("mkey-expired", time.Now().Unix()+1, ctx)
	require.NoError(t, err)

	_, err = ValidateUsage("mkey-expired", 1, ctx)
	assert.ErrorIs(t, err, ErrAllocationExpired)
}

func TestReconcileRefundsOverestimate(t *testing.T) {
	ctx := setupMeter(t, "mkey-over", 1000, 0)

	_, err := ConsumeTokens("mkey-over", 300, ctx)
	require.NoError(t, err)

	usage, err := Reconcile("mkey-over", 300, 200, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(800), usage.Remaining)
}

func TestReconcileConsumesUnderestimate(t *testing.T) {
	ctx := setupMeter(t, "mkey-under", 1000, 0)

	_, err := ConsumeTokens("mkey-under", 200, ctx)
	require.NoError(t, err)

	usage, err := Reconcile("mkey-under", 200, 350, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(650), usage.Remaining)
}

func TestReconcileClampsAndFlags(t *testing.T) {
	ctx := setupMeter(t, "mkey-clamp", 100, 0)

	_, err := ConsumeTokens("mkey-clamp", 90, ctx)
	require.NoError(t, err)

	// Upstream reports far more than the allocation had left: drain to zero
	// and flag, never negative, never an error for the caller.
	usage, err := Reconcile("mkey-clamp", 90, 500, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage.Remaining)

	a, err := op.AllocationGetByKey("mkey-clamp", ctx)
	require.NoError(t, err)
	assert.True(t, a.NeedsReview)
	assert.False(t, a.IsActive)
}
