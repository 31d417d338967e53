package gateway

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokengate/tokengate/internal/conf"
	"github.com/tokengate/tokengate/internal/db"
	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/op"
)

func setupGateway(t *testing.T) (*Gateway, context.Context) {
	t.Helper()
	require.NoError(t, db.InitDB("sqlite", filepath.Join(t.TempDir(), "test.db"), false))
	require.NoError(t, op.InitCache())
	t.Cleanup(func() { _ = db.Close() })

	conf.AppConfig.Payment = conf.Payment{
		MasterSecret: "test-secret",
		ExpiryHours:  24,
		Currencies: []conf.Currency{
			{Code: "usdt-trc20", Symbol: "USDT", RateID: "tether", MinAmount: 1, MinConfirmations: 1, PollSeconds: 30},
		},
	}
	return New(conf.AppConfig.Payment), context.Background()
}

func testPackage() model.Package {
	return model.Package{ID: 1, Name: "starter", QuotaAmount: 1000, ModelAccess: "gpt-test",
		CostPrice: 10, SellPrice: 15, ExpiryDays: 30}
}

func testQuote(amount float64) model.OrderQuote {
	return model.OrderQuote{
		Model:        "gpt-test",
		QuotaAmount:  1000,
		UnitPrice:    0.015,
		USDCost:      amount,
		Currency:     "usdt-trc20",
		CryptoAmount: amount,
	}
}

func TestCreateRequest(t *testing.T) {
	g, ctx := setupGateway(t)

	request, err := g.CreateRequest(ctx, 42, testPackage(), testQuote(15))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, request.Status)
	assert.Equal(t, DeriveAddress("test-secret", "usdt-trc20", 42), request.Address)
	assert.NotEmpty(t, request.ID)
	assert.Greater(t, request.ExpiresAt, request.CreatedAt)
}

func TestCreateRequestBelowMinimum(t *testing.T) {
	g, ctx := setupGateway(t)

	_, err := g.CreateRequest(ctx, 42, testPackage(), testQuote(0.5))
	assert.ErrorIs(t, err, ErrBelowMinimum)
}

func TestCreateRequestAmbiguousAmount(t *testing.T) {
	g, ctx := setupGateway(t)

	_, err := g.CreateRequest(ctx, 42, testPackage(), testQuote(15))
	require.NoError(t, err)

	// 15.1 is within 2% of the pending 15: unmatchable by the ±1% transfer
	// matching, so it must be rejected.
	_, err = g.CreateRequest(ctx, 42, testPackage(), testQuote(15.1))
	assert.ErrorIs(t, err, ErrAmbiguousAmount)

	// 18 is clearly separable.
	_, err = g.CreateRequest(ctx, 42, testPackage(), testQuote(18))
	require.NoError(t, err)

	// A different user lands on a different address, no conflict.
	_, err = g.CreateRequest(ctx, 43, testPackage(), testQuote(15))
	require.NoError(t, err)
}
