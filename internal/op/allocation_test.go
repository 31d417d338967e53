package op

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokengate/tokengate/internal/db"
	"github.com/tokengate/tokengate/internal/model"
)

func newAllocation(t *testing.T, ctx context.Context, apiKey string, total int64) model.Allocation {
	t.Helper()
	a := model.Allocation{
		UserID:          1,
		PackageID:       1,
		APIKey:          apiKey,
		TotalTokens:     total,
		RemainingTokens: total,
		DailyResetAt:    time.Now().Unix(),
		ExpiresAt:       time.Now().Add(24 * time.Hour).Unix(),
		IsActive:        true,
	}
	require.NoError(t, AllocationCreate(&a, ctx))
	return a
}

func TestAllocationConsume(t *testing.T) {
	ctx := setupDB(t)
	newAllocation(t, ctx, "key-consume", 100)

	a, err := AllocationConsume("key-consume", 30, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(70), a.RemainingTokens)
	assert.Equal(t, int64(30), a.TotalUsed)
	assert.True(t, a.IsActive)

	_, err = AllocationConsume("key-consume", 71, ctx)
	assert.ErrorIs(t, err, ErrInsufficientQuota)

	// Draining to exactly zero deactivates.
	a, err = AllocationConsume("key-consume", 70, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.RemainingTokens)
	assert.False(t, a.IsActive)
}

func TestAllocationConsumeConcurrent(t *testing.T) {
	ctx := setupDB(t)
	const total = 1000
	const workers = 20
	const perCall = 30
	newAllocation(t, ctx, "key-race", total)

	var consumed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if _, err := AllocationConsume("key-race", perCall, ctx); err == nil {
					consumed.Add(perCall)
				}
			}
		}()
	}
	wg.Wait()

	a, err := reloadAllocation("key-race", ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, a.RemainingTokens, int64(0), "remainder must never go negative")
	assert.Equal(t, int64(total)-consumed.Load(), a.RemainingTokens,
		"remainder must equal total minus the successfully consumed sum")
}

func TestAllocationRefundClamps(t *testing.T) {
	ctx := setupDB(t)
	newAllocation(t, ctx, "key-refund", 100)

	_, err := AllocationConsume("key-refund", 40, ctx)
	require.NoError(t, err)

	// Refund more than was used: remainder clamps at the original grant.
	a, err := AllocationRefund("key-refund", 500, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), a.RemainingTokens)
	assert.Equal(t, int64(0), a.TotalUsed)
}

func TestAllocationRefundReactivates(t *testing.T) {
	ctx := setupDB(t)
	newAllocation(t, ctx, "key-reactivate", 100)

	_, err := AllocationConsume("key-reactivate", 100, ctx)
	require.NoError(t, err)

	a, err := AllocationRefund("key-reactivate", 25, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(25), a.RemainingTokens)
	assert.True(t, a.IsActive)
}

func TestAllocationDrainFlag(t *testing.T) {
	ctx := setupDB(t)
	newAllocation(t, ctx, "key-drain", 100)

	a, err := AllocationDrainFlag("key-drain", ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.RemainingTokens)
	assert.Equal(t, int64(100), a.TotalUsed)
	assert.False(t, a.IsActive)
	assert.True(t, a.NeedsReview)

	// A flagged allocation does not come back through refunds.
	a, err = AllocationRefund("key-drain", 10, ctx)
	require.NoError(t, err)
	assert.False(t, a.IsActive)
}

func TestAllocationResetDailyOncePerBoundary(t *testing.T) {
	ctx := setupDB(t)
	a := newAllocation(t, ctx, "key-daily", 100)

	// Push the reset marker into yesterday.
	yesterday := time.Now().Add(-24 * time.Hour).Unix()
	require.NoError(t, db.GetDB().Model(&model.Allocation{}).
		Where("api_key = ?", a.APIKey).
		Update("daily_reset_at", yesterday).Error)

	_, err := AllocationConsume("key-daily", 10, ctx)
	require.NoError(t, err)

	dayStart := time.Now().Truncate(24 * time.Hour).Unix()
	reset, err := AllocationResetDaily("key-daily", dayStart, ctx)
	require.NoError(t, err)
	assert.True(t, reset, "first reset past the boundary must apply")

	reset, err = AllocationResetDaily("key-daily", dayStart, ctx)
	require.NoError(t, err)
	assert.False(t, reset, "second reset on the same boundary must be a no-op")

	got, err := AllocationGetByKey("key-daily", ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.DailyUsed)
}

func TestAllocationCleanupExpired(t *testing.T) {
	ctx := setupDB(t)

	for i := 0; i < 3; i++ {
		a := model.Allocation{
			UserID:          1,
			PackageID:       1,
			APIKey:          fmt.Sprintf("key-expired-%d", i),
			TotalTokens:     100,
			RemainingTokens: 100,
			ExpiresAt:       time.Now().Add(-time.Hour).Unix(),
			IsActive:        true,
		}
		require.NoError(t, AllocationCreate(&a, ctx))
	}
	live := newAllocation(t, ctx, "key-live", 100)

	count, err := AllocationCleanupExpired(time.Now(), ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	got, err := AllocationGetByKey(live.APIKey, ctx)
	require.NoError(t, err)
	assert.True(t, got.IsActive, "active unexpired allocations must be untouched")

	// Second sweep finds nothing.
	count, err = AllocationCleanupExpired(time.Now(), ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
