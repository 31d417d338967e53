package op

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokengate/tokengate/internal/db"
	"github.com/tokengate/tokengate/internal/model"
)

func newPayment(t *testing.T, ctx context.Context, currency string, amount float64) model.PaymentRequest {
	t.Helper()
	p := model.PaymentRequest{
		ID:           uuid.NewString(),
		UserID:       7,
		PackageID:    1,
		QuotaAmount:  1000,
		AmountUSD:    18,
		AmountCrypto: amount,
		Currency:     currency,
		Address:      "Ttestaddress",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}
	require.NoError(t, PaymentCreate(&p, ctx))
	return p
}

func TestPaymentConfirmGuards(t *testing.T) {
	ctx := setupDB(t)
	p := newPayment(t, ctx, "usdt-trc20", 18)

	require.NoError(t, PaymentConfirm(p.ID, "tx-1", ctx))

	got, err := PaymentGet(p.ID, ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusConfirmed, got.Status)
	assert.Equal(t, "tx-1", got.TxHash)

	// A second confirmation attempt must not move it again.
	err = PaymentConfirm(p.ID, "tx-2", ctx)
	assert.ErrorIs(t, err, ErrPaymentNotPending)
}

func TestPaymentTxHashConfirmsAtMostOne(t *testing.T) {
	ctx := setupDB(t)
	first := newPayment(t, ctx, "usdt-trc20", 18)
	second := newPayment(t, ctx, "usdt-trc20", 25)

	require.NoError(t, PaymentConfirm(first.ID, "tx-shared", ctx))
	err := PaymentConfirm(second.ID, "tx-shared", ctx)
	assert.ErrorIs(t, err, ErrTxHashUsed)

	got, err := PaymentGet(second.ID, ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, got.Status)
}

func TestPaymentLifecycleToSettled(t *testing.T) {
	ctx := setupDB(t)
	p := newPayment(t, ctx, "eth", 0.006)

	// settled requires confirmed first
	require.Error(t, PaymentMarkSettled(p.ID, ctx))

	require.NoError(t, PaymentConfirm(p.ID, "tx-settle", ctx))
	require.NoError(t, PaymentMarkSettled(p.ID, ctx))

	got, err := PaymentGet(p.ID, ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSettled, got.Status)
	assert.True(t, got.Status.Terminal())

	// Terminal rows never transition again.
	require.Error(t, PaymentResolveFailed(p.ID, ctx))
}

func TestPaymentResolveFailed(t *testing.T) {
	ctx := setupDB(t)
	p := newPayment(t, ctx, "eth", 0.006)

	require.NoError(t, PaymentConfirm(p.ID, "tx-fail", ctx))
	require.NoError(t, PaymentResolveFailed(p.ID, ctx))

	got, err := PaymentGet(p.ID, ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, got.Status)
}

func TestPaymentExpireStale(t *testing.T) {
	ctx := setupDB(t)
	stale := newPayment(t, ctx, "btc", 0.0003)
	fresh := newPayment(t, ctx, "btc", 0.0004)

	// Age the first request past its TTL.
	require.NoError(t, db.GetDB().Model(&model.PaymentRequest{}).
		Where("id = ?", stale.ID).
		Update("expires_at", time.Now().Add(-time.Minute).Unix()).Error)

	expired, err := PaymentExpireStale("btc", time.Now(), ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.ID, expired[0].ID)

	got, err := PaymentGet(fresh.ID, ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, got.Status)

	// An expired request never confirms.
	err = PaymentConfirm(stale.ID, "tx-late", ctx)
	assert.ErrorIs(t, err, ErrPaymentNotPending)
}

func TestPaymentSettlementStats(t *testing.T) {
	ctx := setupDB(t)

	settled := newPayment(t, ctx, "usdt-trc20", 18)
	require.NoError(t, PaymentConfirm(settled.ID, "tx-stats", ctx))
	require.NoError(t, PaymentMarkSettled(settled.ID, ctx))
	newPayment(t, ctx, "usdt-trc20", 25)

	stats, err := PaymentSettlementStats(time.Time{}, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.SettledCount)
	assert.Equal(t, int64(1), stats.PendingCount)
	assert.InDelta(t, 18.0, stats.SettledUSD, 0.001)
	assert.InDelta(t, 18.0, stats.ByCurrency["usdt-trc20"], 0.001)
}
