package pricing

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokengate/tokengate/internal/conf"
	"github.com/tokengate/tokengate/internal/db"
	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/op"
	"github.com/tokengate/tokengate/internal/upstream"
)

type fakeProvider struct {
	prices map[string]model.UpstreamPrice
	calls  int
	err    error
}

func (f *fakeProvider) GetPricing(_ context.Context, modelID string) (model.UpstreamPrice, error) {
	f.calls++
	if f.err != nil {
		return model.UpstreamPrice{}, f.err
	}
	price, ok := f.prices[modelID]
	if !ok {
		return model.UpstreamPrice{}, errors.New("unknown model")
	}
	return price, nil
}

func (f *fakeProvider) PurchaseQuota(context.Context, string, int64, float64) (upstream.PurchaseResult, error) {
	return upstream.PurchaseResult{}, errors.New("not implemented")
}

func (f *fakeProvider) ChatCompletion(context.Context, []byte) (int, []byte, error) {
	return 0, nil, errors.New("not implemented")
}

type fakeRates struct {
	rates map[string]float64
}

func (f *fakeRates) USDRate(_ context.Context, rateID string) (float64, error) {
	rate, ok := f.rates[rateID]
	if !ok {
		return 0, errors.New("no rate")
	}
	return rate, nil
}

var testCurrencies = []conf.Currency{
	{Code: "usdt-trc20", Symbol: "USDT", RateID: "tether", MinAmount: 1},
	{Code: "btc", Symbol: "BTC", RateID: "bitcoin", MinAmount: 0.0002},
}

func setupCalculator(t *testing.T) (*Calculator, *fakeProvider) {
	t.Helper()
	require.NoError(t, db.InitDB("sqlite", filepath.Join(t.TempDir(), "test.db"), false))
	require.NoError(t, op.InitCache())
	t.Cleanup(func() { _ = db.Close() })

	provider := &fakeProvider{prices: map[string]model.UpstreamPrice{
		// 0.015 USD per token
		"gpt-test": {Model: "gpt-test", InputPer1K: 15, OutputPer1K: 15},
	}}
	rateSource := &fakeRates{rates: map[string]float64{"tether": 1, "bitcoin": 60000}}
	return New(provider, rateSource, testCurrencies), provider
}

func TestQuoteWithinCap(t *testing.T) {
	calc, _ := setupCalculator(t)

	// 1000 tokens at $0.015 with the default 20% markup is $18, inside the
	// $20 cap.
	quote, err := calc.Quote(context.Background(), "gpt-test", 1000, "usdt-trc20")
	require.NoError(t, err)
	assert.InDelta(t, 0.015, quote.UnitPrice, 1e-9)
	assert.InDelta(t, 18.0, quote.USDCost, 0.001)
	assert.InDelta(t, 18.0, quote.CryptoAmount, 0.001)
	assert.Equal(t, "usdt-trc20", quote.Currency)
}

func TestQuoteOverCap(t *testing.T) {
	calc, _ := setupCalculator(t)

	// 5000 tokens at the same rate is $90: over the cap, no state created.
	_, err := calc.Quote(context.Background(), "gpt-test", 5000, "usdt-trc20")
	assert.ErrorIs(t, err, ErrOrderTooLarge)
}

func TestQuoteBelowMinimumQuota(t *testing.T) {
	calc, _ := setupCalculator(t)

	_, err := calc.Quote(context.Background(), "gpt-test", 50, "usdt-trc20")
	assert.ErrorIs(t, err, ErrOrderTooSmall)
}

func TestQuoteUnknownCurrency(t *testing.T) {
	calc, _ := setupCalculator(t)

	_, err := calc.Quote(context.Background(), "gpt-test", 1000, "doge")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestQuoteBelowCurrencyMinimum(t *testing.T) {
	calc, _ := setupCalculator(t)

	// $18 at $60000/BTC is 0.0003 BTC; raise the floor via a cheaper model.
	provider := &fakeProvider{prices: map[string]model.UpstreamPrice{
		"cheap": {Model: "cheap", InputPer1K: 0.1, OutputPer1K: 0.1},
	}}
	calc = New(provider, &fakeRates{rates: map[string]float64{"bitcoin": 60000}}, testCurrencies)
	_, err := calc.Quote(context.Background(), "cheap", 1000, "btc")
	assert.ErrorIs(t, err, ErrBelowMinAmount)
}

func TestQuoteUsesPriceCache(t *testing.T) {
	calc, provider := setupCalculator(t)

	_, err := calc.Quote(context.Background(), "gpt-test", 1000, "usdt-trc20")
	require.NoError(t, err)
	_, err = calc.Quote(context.Background(), "gpt-test", 1000, "usdt-trc20")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls, "second quote must hit the price cache")

	// A provider outage after the first fetch still quotes from cache.
	provider.err = errors.New("provider down")
	quote, err := calc.Quote(context.Background(), "gpt-test", 1000, "usdt-trc20")
	require.NoError(t, err)
	assert.InDelta(t, 18.0, quote.USDCost, 0.001)
}

func TestQuotePackage(t *testing.T) {
	calc, _ := setupCalculator(t)

	pkg := model.Package{
		ID: 1, Name: "starter", QuotaAmount: 1000, ModelAccess: "gpt-test",
		CostPrice: 10, SellPrice: 15, ExpiryDays: 30,
	}
	quote, err := calc.QuotePackage(context.Background(), pkg, "usdt-trc20")
	require.NoError(t, err)
	assert.InDelta(t, 15.0, quote.USDCost, 0.001)
	assert.InDelta(t, 15.0, quote.CryptoAmount, 0.001)
}
