package settle

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokengate/tokengate/internal/db"
	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/notify"
	"github.com/tokengate/tokengate/internal/op"
	"github.com/tokengate/tokengate/internal/upstream"
)

type fakeProvider struct {
	purchases int
	err       error
}

func (f *fakeProvider) GetPricing(context.Context, string) (model.UpstreamPrice, error) {
	return model.UpstreamPrice{}, errors.New("not implemented")
}

func (f *fakeProvider) PurchaseQuota(_ context.Context, _ string, amount int64, budget float64) (upstream.PurchaseResult, error) {
	if f.err != nil {
		return upstream.PurchaseResult{}, f.err
	}
	f.purchases++
	return upstream.PurchaseResult{Purchased: amount, CostUSD: budget}, nil
}

func (f *fakeProvider) ChatCompletion(context.Context, []byte) (int, []byte, error) {
	return 0, nil, errors.New("not implemented")
}

type recordingNotifier struct {
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, event notify.Event) {
	r.events = append(r.events, event)
}

func setupSettle(t *testing.T) (context.Context, *fakeProvider, *recordingNotifier, *Orchestrator) {
	t.Helper()
	require.NoError(t, db.InitDB("sqlite", filepath.Join(t.TempDir(), "test.db"), false))
	require.NoError(t, op.InitCache())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	pkg := model.Package{Name: "starter", QuotaAmount: 1000, ModelAccess: "gpt-test",
		CostPrice: 10, SellPrice: 15, ExpiryDays: 30, DailyLimit: 200}
	require.NoError(t, op.PackageCreate(&pkg, ctx))

	provider := &fakeProvider{}
	notifier := &recordingNotifier{}
	return ctx, provider, notifier, New(provider, notifier)
}

func confirmedPayment(t *testing.T, ctx context.Context, packageID int) model.PaymentRequest {
	t.Helper()
	p := model.PaymentRequest{
		ID:           uuid.NewString(),
		UserID:       7,
		PackageID:    packageID,
		QuotaAmount:  1000,
		AmountUSD:    18,
		AmountCrypto: 18,
		Currency:     "usdt-trc20",
		Address:      "Ttestaddress",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}
	require.NoError(t, op.PaymentCreate(&p, ctx))
	require.NoError(t, op.PaymentConfirm(p.ID, "tx-"+p.ID[:8], ctx))
	p.Status = model.PaymentStatusConfirmed
	return p
}

func TestSettleCreatesAllocation(t *testing.T) {
	ctx, provider, notifier, orchestrator := setupSettle(t)
	payment := confirmedPayment(t, ctx, 1)

	require.NoError(t, orchestrator.Settle(ctx, payment))

	allocation, err := op.AllocationGetByPayment(payment.ID, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), allocation.TotalTokens)
	assert.Equal(t, int64(1000), allocation.RemainingTokens)
	assert.Equal(t, int64(200), allocation.DailyLimit)
	assert.True(t, allocation.IsActive)
	assert.True(t, strings.HasPrefix(allocation.APIKey, "sk-tokengate-"))

	got, err := op.PaymentGet(payment.ID, ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSettled, got.Status)

	assert.Equal(t, 1, provider.purchases)
	require.NotEmpty(t, notifier.events)
	assert.Equal(t, notify.EventSettlementCompleted, notifier.events[len(notifier.events)-1].Kind)
}

func TestSettleFailureKeepsConfirmed(t *testing.T) {
	ctx, provider, notifier, orchestrator := setupSettle(t)
	payment := confirmedPayment(t, ctx, 1)
	provider.err = errors.New("provider down")

	err := orchestrator.Settle(ctx, payment)
	require.Error(t, err)

	got, err := op.PaymentGet(payment.ID, ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusConfirmed, got.Status)

	_, err = op.AllocationGetByPayment(payment.ID, ctx)
	assert.ErrorIs(t, err, op.ErrAllocationNotFound)

	require.NotEmpty(t, notifier.events)
	assert.Equal(t, notify.EventSettlementFailed, notifier.events[len(notifier.events)-1].Kind)
}

func TestSettleIdempotent(t *testing.T) {
	ctx, provider, _, orchestrator := setupSettle(t)
	payment := confirmedPayment(t, ctx, 1)

	require.NoError(t, orchestrator.Settle(ctx, payment))

	// A second settle of the same payment must not purchase again; the
	// payment is already settled so the transition fails loudly instead.
	err := orchestrator.Settle(ctx, payment)
	require.Error(t, err)
	assert.Equal(t, 1, provider.purchases)
}

func TestResettleAfterFailure(t *testing.T) {
	ctx, provider, _, orchestrator := setupSettle(t)
	payment := confirmedPayment(t, ctx, 1)

	provider.err = errors.New("provider down")
	require.Error(t, orchestrator.Settle(ctx, payment))

	provider.err = nil
	require.NoError(t, orchestrator.Resettle(ctx, payment.ID))

	got, err := op.PaymentGet(payment.ID, ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSettled, got.Status)
	assert.Equal(t, 1, provider.purchases)
}

func TestSettleRejectsNonConfirmed(t *testing.T) {
	ctx, provider, _, orchestrator := setupSettle(t)

	p := model.PaymentRequest{
		ID: uuid.NewString(), UserID: 7, PackageID: 1, QuotaAmount: 1000,
		AmountUSD: 18, AmountCrypto: 18, Currency: "usdt-trc20",
		Address: "Ttestaddress", ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}
	require.NoError(t, op.PaymentCreate(&p, ctx))

	err := orchestrator.Settle(ctx, p)
	require.Error(t, err)
	assert.Equal(t, 0, provider.purchases)
}
