package op

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tokengate/tokengate/internal/db"
	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/utils/cache"
	"gorm.io/gorm"
)

var allocationCache = cache.New[int, model.Allocation](16)
var allocationIDMap = cache.New[string, int](16)

func AllocationCreate(a *model.Allocation, ctx context.Context) error {
	a.CreatedAt = time.Now().Unix()
	if err := db.GetDB().WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to create allocation: %w", err)
	}
	allocationCache.Set(a.ID, *a)
	allocationIDMap.Set(a.APIKey, a.ID)
	return nil
}

func AllocationGet(id int, ctx context.Context) (model.Allocation, error) {
	a, ok := allocationCache.Get(id)
	if !ok {
		return model.Allocation{}, ErrAllocationNotFound
	}
	return a, nil
}

func AllocationGetByKey(apiKey string, ctx context.Context) (model.Allocation, error) {
	id, ok := allocationIDMap.Get(apiKey)
	if !ok {
		return model.Allocation{}, ErrAllocationNotFound
	}
	return AllocationGet(id, ctx)
}

// AllocationGetByPayment finds the allocation a payment already settled
// into, if any. Lets settlement retries stay idempotent.
func AllocationGetByPayment(paymentID string, ctx context.Context) (model.Allocation, error) {
	var a model.Allocation
	err := db.GetDB().WithContext(ctx).First(&a, "payment_id = ?", paymentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Allocation{}, ErrAllocationNotFound
	}
	if err != nil {
		return model.Allocation{}, err
	}
	return a, nil
}

func AllocationListByUser(userID int64, ctx context.Context) ([]model.Allocation, error) {
	var list []model.Allocation
	err := db.GetDB().WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}

// AllocationConsume atomically decrements the remainder. The guarded UPDATE
// ("remaining_tokens >= ?") is what keeps the remainder non-negative under
// concurrent proxy calls; read-then-write would not.
func AllocationConsume(apiKey string, tokens int64, ctx context.Context) (model.Allocation, error) {
	if tokens < 0 {
		return model.Allocation{}, fmt.Errorf("consume amount must not be negative")
	}
	if tokens == 0 {
		return AllocationGetByKey(apiKey, ctx)
	}
	result := db.GetDB().WithContext(ctx).Model(&model.Allocation{}).
		Where("api_key = ? AND is_active = ? AND remaining_tokens >= ?", apiKey, true, tokens).
		Updates(map[string]any{
			"remaining_tokens": gorm.Expr("remaining_tokens - ?", tokens),
			"daily_used":       gorm.Expr("daily_used + ?", tokens),
			"total_used":       gorm.Expr("total_used + ?", tokens),
		})
	if result.Error != nil {
		return model.Allocation{}, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := AllocationGetByKey(apiKey, ctx); err != nil {
			return model.Allocation{}, err
		}
		return model.Allocation{}, ErrInsufficientQuota
	}
	// Deactivation is a separate guarded statement so the consume expression
	// stays portable across the three supported dialects.
	if err := db.GetDB().WithContext(ctx).Model(&model.Allocation{}).
		Where("api_key = ? AND remaining_tokens <= 0 AND is_active = ?", apiKey, true).
		Update("is_active", false).Error; err != nil {
		return model.Allocation{}, err
	}
	return reloadAllocation(apiKey, ctx)
}

// AllocationRefund returns tokens after an overestimate, clamped so the
// remainder never exceeds the original grant. Reactivates an allocation
// that was drained by the estimate if it has not expired.
func AllocationRefund(apiKey string, tokens int64, ctx context.Context) (model.Allocation, error) {
	if tokens <= 0 {
		return AllocationGetByKey(apiKey, ctx)
	}
	err := db.GetDB().WithContext(ctx).Exec(
		`UPDATE allocations SET
			remaining_tokens = CASE WHEN remaining_tokens + ? > total_tokens THEN total_tokens ELSE remaining_tokens + ? END,
			daily_used = CASE WHEN daily_used - ? < 0 THEN 0 ELSE daily_used - ? END,
			total_used = CASE WHEN total_used - ? < 0 THEN 0 ELSE total_used - ? END
		WHERE api_key = ?`,
		tokens, tokens, tokens, tokens, tokens, tokens, apiKey,
	).Error
	if err != nil {
		return model.Allocation{}, err
	}
	if err := db.GetDB().WithContext(ctx).Model(&model.Allocation{}).
		Where("api_key = ? AND is_active = ? AND remaining_tokens > 0 AND expires_at > ? AND needs_review = ?",
			apiKey, false, time.Now().Unix(), false).
		Update("is_active", true).Error; err != nil {
		return model.Allocation{}, err
	}
	return reloadAllocation(apiKey, ctx)
}

// AllocationDrainFlag zeroes the remainder and marks the allocation for
// manual review. Used when upstream reports more usage than the allocation
// had left: the cost is already incurred, so the call is not failed.
func AllocationDrainFlag(apiKey string, ctx context.Context) (model.Allocation, error) {
	err := db.GetDB().WithContext(ctx).Exec(
		`UPDATE allocations SET
			total_used = total_used + remaining_tokens,
			daily_used = daily_used + remaining_tokens,
			remaining_tokens = 0,
			is_active = ?,
			needs_review = ?
		WHERE api_key = ?`,
		false, true, apiKey,
	).Error
	if err != nil {
		return model.Allocation{}, err
	}
	return reloadAllocation(apiKey, ctx)
}

// AllocationResetDaily zeroes the daily counter when a new calendar day has
// started. The guard on daily_reset_at makes the reset happen exactly once
// per day boundary no matter how many validations race into it.
func AllocationResetDaily(apiKey string, dayStart int64, ctx context.Context) (bool, error) {
	result := db.GetDB().WithContext(ctx).Model(&model.Allocation{}).
		Where("api_key = ? AND daily_reset_at < ?", apiKey, dayStart).
		Updates(map[string]any{
			"daily_used":     0,
			"daily_reset_at": dayStart,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	if _, err := reloadAllocation(apiKey, ctx); err != nil {
		return true, err
	}
	return true, nil
}

// AllocationCleanupExpired deactivates all and only allocations past their
// expiry. Active unexpired rows are untouched. Returns the number swept.
func AllocationCleanupExpired(now time.Time, ctx context.Context) (int, error) {
	var expired []model.Allocation
	if err := db.GetDB().WithContext(ctx).
		Where("is_active = ? AND expires_at > 0 AND expires_at <= ?", true, now.Unix()).
		Find(&expired).Error; err != nil {
		return 0, err
	}
	count := 0
	for _, a := range expired {
		result := db.GetDB().WithContext(ctx).Model(&model.Allocation{}).
			Where("id = ? AND is_active = ? AND expires_at <= ?", a.ID, true, now.Unix()).
			Update("is_active", false)
		if result.Error != nil {
			return count, result.Error
		}
		if result.RowsAffected > 0 {
			count++
			if _, err := reloadAllocation(a.APIKey, ctx); err != nil && !errors.Is(err, ErrAllocationNotFound) {
				return count, err
			}
		}
	}
	return count, nil
}

func reloadAllocation(apiKey string, ctx context.Context) (model.Allocation, error) {
	var a model.Allocation
	err := db.GetDB().WithContext(ctx).First(&a, "api_key = ?", apiKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Allocation{}, ErrAllocationNotFound
	}
	if err != nil {
		return model.Allocation{}, err
	}
	allocationCache.Set(a.ID, a)
	allocationIDMap.Set(a.APIKey, a.ID)
	return a, nil
}

func allocationRefreshCache(ctx context.Context) error {
	allocations := []model.Allocation{}
	if err := db.GetDB().WithContext(ctx).Find(&allocations).Error; err != nil {
		return err
	}
	for _, a := range allocations {
		allocationCache.Set(a.ID, a)
		allocationIDMap.Set(a.APIKey, a.ID)
	}
	return nil
}
