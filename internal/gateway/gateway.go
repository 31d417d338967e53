package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/tokengate/tokengate/internal/conf"
	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/op"
)

var (
	ErrAmbiguousAmount = errors.New("amount too close to another pending request on this address")
	ErrBelowMinimum    = errors.New("amount below the currency minimum")
)

// ambiguityBand is the relative distance below which two pending amounts on
// one address cannot be told apart by the ±1% transfer matching.
const ambiguityBand = 0.02

// Gateway opens payment requests against deterministic per-user addresses.
type Gateway struct {
	masterSecret string
	expiry       time.Duration
}

func New(config conf.Payment) *Gateway {
	return &Gateway{
		masterSecret: config.MasterSecret,
		expiry:       time.Duration(config.ExpiryHours) * time.Hour,
	}
}

// CreateRequest persists a pending payment for a quoted package order.
//
// Because the receiving address is shared across the user's requests in one
// currency, transfers are matched by amount alone. A new request whose
// amount lands within the ambiguity band of an existing pending request on
// the same address is rejected rather than created unmatchable.
func (g *Gateway) CreateRequest(ctx context.Context, userID int64, pkg model.Package, quote model.OrderQuote) (model.PaymentRequest, error) {
	currency, ok := conf.CurrencyByCode(quote.Currency)
	if !ok {
		return model.PaymentRequest{}, fmt.Errorf("unsupported currency: %s", quote.Currency)
	}
	if currency.MinAmount > 0 && quote.CryptoAmount < currency.MinAmount {
		return model.PaymentRequest{}, fmt.Errorf("%w: %.8f %s < %.8f",
			ErrBelowMinimum, quote.CryptoAmount, currency.Code, currency.MinAmount)
	}

	address := DeriveAddress(g.masterSecret, currency.Code, userID)

	pending, err := op.PaymentListPendingOnAddress(address, ctx)
	if err != nil {
		return model.PaymentRequest{}, err
	}
	for _, existing := range pending {
		if relativeDiff(existing.AmountCrypto, quote.CryptoAmount) < ambiguityBand {
			return model.PaymentRequest{}, fmt.Errorf("%w: %.8f vs pending %.8f",
				ErrAmbiguousAmount, quote.CryptoAmount, existing.AmountCrypto)
		}
	}

	request := model.PaymentRequest{
		ID:           uuid.NewString(),
		UserID:       userID,
		PackageID:    pkg.ID,
		QuotaAmount:  quote.QuotaAmount,
		AmountUSD:    quote.USDCost,
		AmountCrypto: quote.CryptoAmount,
		Currency:     currency.Code,
		Address:      address,
		ExpiresAt:    time.Now().Add(g.expiry).Unix(),
	}
	if err := op.PaymentCreate(&request, ctx); err != nil {
		return model.PaymentRequest{}, err
	}
	return request, nil
}

func relativeDiff(a, b float64) float64 {
	larger := math.Max(math.Abs(a), math.Abs(b))
	if larger == 0 {
		return 0
	}
	return math.Abs(a-b) / larger
}
