package settle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/notify"
	"github.com/tokengate/tokengate/internal/op"
	"github.com/tokengate/tokengate/internal/upstream"
	"github.com/tokengate/tokengate/internal/utils/log"
)

// Orchestrator turns confirmed payments into live allocations: purchase the
// quota upstream bounded by the paid amount, mint an API key, mark the
// payment settled.
type Orchestrator struct {
	provider upstream.Provider
	notifier notify.Notifier
}

func New(provider upstream.Provider, notifier notify.Notifier) *Orchestrator {
	return &Orchestrator{provider: provider, notifier: notifier}
}

// Settle processes one confirmed payment. Idempotent: a retry after a
// partial failure finds the existing allocation instead of purchasing
// twice. On failure the payment stays confirmed and the operator is
// notified; nothing is rolled back because the on-chain funds are already
// received.
func (o *Orchestrator) Settle(ctx context.Context, payment model.PaymentRequest) error {
	if payment.Status != model.PaymentStatusConfirmed {
		return fmt.Errorf("payment %s is %s, not confirmed", payment.ID, payment.Status)
	}

	if existing, err := op.AllocationGetByPayment(payment.ID, ctx); err == nil {
		log.Infof("payment %s already settled into allocation %d, finishing transition", payment.ID, existing.ID)
		return o.finish(ctx, payment, existing)
	} else if !errors.Is(err, op.ErrAllocationNotFound) {
		return err
	}

	pkg, err := op.PackageGet(payment.PackageID, ctx)
	if err != nil {
		return o.fail(ctx, payment, fmt.Errorf("package lookup failed: %w", err))
	}

	result, err := o.provider.PurchaseQuota(ctx, pkg.ModelAccess, payment.QuotaAmount, payment.AmountUSD)
	if err != nil {
		return o.fail(ctx, payment, fmt.Errorf("upstream purchase failed: %w", err))
	}

	allocation := model.Allocation{
		UserID:          payment.UserID,
		PackageID:       pkg.ID,
		PaymentID:       payment.ID,
		APIKey:          GenerateAPIKey(),
		TotalTokens:     result.Purchased,
		RemainingTokens: result.Purchased,
		DailyLimit:      pkg.DailyLimit,
		DailyResetAt:    time.Now().Unix(),
		ExpiresAt:       time.Now().AddDate(0, 0, pkg.ExpiryDays).Unix(),
		IsActive:        true,
	}
	if err := op.AllocationCreate(&allocation, ctx); err != nil {
		return o.fail(ctx, payment, fmt.Errorf("allocation create failed: %w", err))
	}

	log.Infof("payment %s settled: %d tokens of %s for $%.2f (allocation %d)",
		payment.ID, result.Purchased, pkg.ModelAccess, result.CostUSD, allocation.ID)
	return o.finish(ctx, payment, allocation)
}

func (o *Orchestrator) finish(ctx context.Context, payment model.PaymentRequest, allocation model.Allocation) error {
	if err := op.PaymentMarkSettled(payment.ID, ctx); err != nil {
		return o.fail(ctx, payment, fmt.Errorf("settled transition failed: %w", err))
	}
	o.notifier.Notify(ctx, notify.NewEvent(notify.EventSettlementCompleted, payment.ID, payment.UserID,
		fmt.Sprintf("quota delivered: %d tokens, key %s", allocation.TotalTokens, allocation.APIKey)))
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, payment model.PaymentRequest, cause error) error {
	o.notifier.Notify(ctx, notify.NewEvent(notify.EventSettlementFailed, payment.ID, payment.UserID,
		fmt.Sprintf("settlement failed, payment held as confirmed: %v", cause)))
	return cause
}

// Resettle is the operator-initiated recovery path for a confirmed payment
// whose settlement failed. There is no automatic retry; an operator either
// resettles or resolves the payment as failed.
func (o *Orchestrator) Resettle(ctx context.Context, paymentID string) error {
	payment, err := op.PaymentGet(paymentID, ctx)
	if err != nil {
		return err
	}
	return o.Settle(ctx, payment)
}

const apiKeyPrefix = "sk-tokengate-"

// GenerateAPIKey mints an allocation credential: prefix plus 48 hex chars
// of crypto randomness.
func GenerateAPIKey() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return apiKeyPrefix + hex.EncodeToString(buf)
}
