package meter

import (
	"context"
	"errors"
	"time"

	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/op"
	"github.com/tokengate/tokengate/internal/utils/log"
	"github.com/tokengate/tokengate/internal/utils/timex"
)

var (
	ErrAllocationInactive = errors.New("allocation is inactive")
	ErrAllocationExpired  = errors.New("allocation has expired")
	ErrDailyLimitReached  = errors.New("daily token limit reached")
)

// Usage is the quota snapshot returned alongside validations and proxy
// responses.
type Usage struct {
	Remaining      int64 `json:"remaining_tokens"`
	DailyRemaining int64 `json:"daily_remaining"`
}

// ValidateUsage checks whether the allocation behind apiKey can spend
// requestedTokens right now. Rolling the daily counter over at a day
// boundary is the one side effect; no tokens are consumed here.
func ValidateUsage(apiKey string, requestedTokens int64, ctx context.Context) (Usage, error) {
	allocation, err := op.AllocationGetByKey(apiKey, ctx)
	if err != nil {
		return Usage{}, err
	}

	now := time.Now()
	allocation, err = rolloverDaily(allocation, now, ctx)
	if err != nil {
		return Usage{}, err
	}

	if allocation.Expired(now) {
		return Usage{}, ErrAllocationExpired
	}
	if !allocation.IsActive {
		return Usage{}, ErrAllocationInactive
	}
	if requestedTokens > allocation.RemainingTokens {
		return usageOf(allocation), op.ErrInsufficientQuota
	}
	if allocation.DailyLimit > 0 && allocation.DailyUsed+requestedTokens > allocation.DailyLimit {
		return usageOf(allocation), ErrDailyLimitReached
	}
	return usageOf(allocation), nil
}

// ConsumeTokens spends tokens from the allocation. The decrement is a
// guarded conditional update in the store, so the remainder stays
// non-negative under concurrent calls.
func ConsumeTokens(apiKey string, tokens int64, ctx context.Context) (Usage, error) {
	allocation, err := op.AllocationConsume(apiKey, tokens, ctx)
	if err != nil {
		return Usage{}, err
	}
	return usageOf(allocation), nil
}

// Reconcile settles the difference between the estimated cost consumed
// before the upstream call and the actual usage it reported.
//
// Overestimates are refunded. Underestimates consume the delta; when the
// delta exceeds what is left, the allocation is drained to zero and
// flagged for review instead of failing a call whose upstream cost is
// already incurred.
func Reconcile(apiKey string, estimated, actual int64, ctx context.Context) (Usage, error) {
	switch {
	case actual == estimated:
		allocation, err := op.AllocationGetByKey(apiKey, ctx)
		if err != nil {
			return Usage{}, err
		}
		return usageOf(allocation), nil
	case actual < estimated:
		allocation, err := op.AllocationRefund(apiKey, estimated-actual, ctx)
		if err != nil {
			return Usage{}, err
		}
		return usageOf(allocation), nil
	default:
		delta := actual - estimated
		allocation, err := op.AllocationConsume(apiKey, delta, ctx)
		if errors.Is(err, op.ErrInsufficientQuota) {
			log.Warnf("allocation %s: actual usage %d exceeded remainder, draining and flagging", apiKey, actual)
			allocation, err = op.AllocationDrainFlag(apiKey, ctx)
		}
		if err != nil {
			return Usage{}, err
		}
		return usageOf(allocation), nil
	}
}

// rolloverDaily resets the daily counter when the stored reset marker
// belongs to an earlier day. The guarded update in the store makes the
// reset happen once per boundary even under racing validations.
func rolloverDaily(allocation model.Allocation, now time.Time, ctx context.Context) (model.Allocation, error) {
	dayStart := timex.DayStart(now)
	if allocation.DailyResetAt >= dayStart.Unix() {
		return allocation, nil
	}
	if _, err := op.AllocationResetDaily(allocation.APIKey, dayStart.Unix(), ctx); err != nil {
		return model.Allocation{}, err
	}
	return op.AllocationGetByKey(allocation.APIKey, ctx)
}

func usageOf(a model.Allocation) Usage {
	return Usage{
		Remaining:      a.RemainingTokens,
		DailyRemaining: a.DailyRemaining(),
	}
}
