package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tokengate/tokengate/internal/conf"
	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/op"
	"github.com/tokengate/tokengate/internal/rates"
	"github.com/tokengate/tokengate/internal/upstream"
)

var (
	ErrOrderTooLarge   = errors.New("order exceeds the per-order usd cap")
	ErrOrderTooSmall   = errors.New("order is below the minimum quota")
	ErrUnknownCurrency = errors.New("unsupported payment currency")
	ErrBelowMinAmount  = errors.New("order is below the currency minimum amount")
)

type cachedPrice struct {
	price     model.UpstreamPrice
	fetchedAt time.Time
}

// Calculator turns (model, quota, currency) into a priced order. Upstream
// pricing is cached for price_ttl_minutes so a burst of quotes does not
// hammer the provider.
type Calculator struct {
	provider   upstream.Provider
	rates      rates.Source
	currencies map[string]conf.Currency

	mu         sync.RWMutex
	priceCache map[string]cachedPrice
}

func New(provider upstream.Provider, rateSource rates.Source, currencies []conf.Currency) *Calculator {
	byCode := make(map[string]conf.Currency, len(currencies))
	for _, currency := range currencies {
		byCode[currency.Code] = currency
	}
	return &Calculator{
		provider:   provider,
		rates:      rateSource,
		currencies: byCode,
		priceCache: make(map[string]cachedPrice),
	}
}

// Quote prices quotaAmount tokens of modelID payable in currencyCode.
//
// usd = quota * unit price * (1 + markup%), then checked against the
// per-order usd cap and the currency's minimum crypto amount.
func (c *Calculator) Quote(ctx context.Context, modelID string, quotaAmount int64, currencyCode string) (model.OrderQuote, error) {
	currency, ok := c.currencies[currencyCode]
	if !ok {
		return model.OrderQuote{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, currencyCode)
	}

	minQuota, err := op.SettingGetInt(model.SettingKeyMinQuota)
	if err != nil {
		return model.OrderQuote{}, err
	}
	if quotaAmount < int64(minQuota) {
		return model.OrderQuote{}, fmt.Errorf("%w: minimum is %d tokens", ErrOrderTooSmall, minQuota)
	}

	price, err := c.upstreamPrice(ctx, modelID)
	if err != nil {
		return model.OrderQuote{}, err
	}
	unitPrice := price.UnitPrice()

	markupPercent, err := op.SettingGetFloat(model.SettingKeyMarkupPercent)
	if err != nil {
		return model.OrderQuote{}, err
	}
	usdCost := float64(quotaAmount) * unitPrice * (1 + markupPercent/100)
	usdCost = roundUSD(usdCost)

	capUSD, err := op.SettingGetFloat(model.SettingKeyOrderCapUSD)
	if err != nil {
		return model.OrderQuote{}, err
	}
	if capUSD > 0 && usdCost > capUSD {
		return model.OrderQuote{}, fmt.Errorf("%w: $%.2f over the $%.2f cap", ErrOrderTooLarge, usdCost, capUSD)
	}

	rate, err := c.rates.USDRate(ctx, currency.RateID)
	if err != nil {
		return model.OrderQuote{}, err
	}
	cryptoAmount := roundCrypto(usdCost / rate)
	if currency.MinAmount > 0 && cryptoAmount < currency.MinAmount {
		return model.OrderQuote{}, fmt.Errorf("%w: %.8f %s is under the %.8f minimum",
			ErrBelowMinAmount, cryptoAmount, currency.Code, currency.MinAmount)
	}

	return model.OrderQuote{
		Model:        modelID,
		QuotaAmount:  quotaAmount,
		UnitPrice:    unitPrice,
		USDCost:      usdCost,
		Currency:     currency.Code,
		CryptoAmount: cryptoAmount,
	}, nil
}

// QuotePackage prices a predefined package at its configured sell price,
// skipping the dynamic upstream lookup.
func (c *Calculator) QuotePackage(ctx context.Context, pkg model.Package, currencyCode string) (model.OrderQuote, error) {
	currency, ok := c.currencies[currencyCode]
	if !ok {
		return model.OrderQuote{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, currencyCode)
	}
	rate, err := c.rates.USDRate(ctx, currency.RateID)
	if err != nil {
		return model.OrderQuote{}, err
	}
	cryptoAmount := roundCrypto(pkg.SellPrice / rate)
	if currency.MinAmount > 0 && cryptoAmount < currency.MinAmount {
		return model.OrderQuote{}, fmt.Errorf("%w: %.8f %s is under the %.8f minimum",
			ErrBelowMinAmount, cryptoAmount, currency.Code, currency.MinAmount)
	}
	return model.OrderQuote{
		Model:        pkg.ModelAccess,
		QuotaAmount:  pkg.QuotaAmount,
		UnitPrice:    pkg.SellPrice / float64(pkg.QuotaAmount),
		USDCost:      roundUSD(pkg.SellPrice),
		Currency:     currency.Code,
		CryptoAmount: cryptoAmount,
	}, nil
}

func (c *Calculator) upstreamPrice(ctx context.Context, modelID string) (model.UpstreamPrice, error) {
	ttlMinutes, err := op.SettingGetInt(model.SettingKeyPriceTTLMinutes)
	if err != nil {
		return model.UpstreamPrice{}, err
	}
	ttl := time.Duration(ttlMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	c.mu.RLock()
	entry, ok := c.priceCache[modelID]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < ttl {
		return entry.price, nil
	}

	price, err := c.provider.GetPricing(ctx, modelID)
	if err != nil {
		if ok {
			// Stale price beats no price for a quote.
			return entry.price, nil
		}
		return model.UpstreamPrice{}, err
	}

	c.mu.Lock()
	c.priceCache[modelID] = cachedPrice{price: price, fetchedAt: time.Now()}
	c.mu.Unlock()
	return price, nil
}

func roundUSD(v float64) float64 {
	return math.Round(v*100) / 100
}

func roundCrypto(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}
