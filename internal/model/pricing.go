package model

// UpstreamPrice is the provider's per-1k-token pricing for one model.
type UpstreamPrice struct {
	Model       string  `json:"model"`
	InputPer1K  float64 `json:"input_price_per_1k"`
	OutputPer1K float64 `json:"output_price_per_1k"`
}

// UnitPrice is the blended USD price of a single token.
func (p UpstreamPrice) UnitPrice() float64 {
	return (p.InputPer1K + p.OutputPer1K) / 2 / 1000
}

// OrderQuote is the result of pricing an order before payment.
type OrderQuote struct {
	Model        string  `json:"model"`
	QuotaAmount  int64   `json:"quota_amount"`
	UnitPrice    float64 `json:"unit_price"`
	USDCost      float64 `json:"usd_cost"`
	Currency     string  `json:"currency"`
	CryptoAmount float64 `json:"crypto_amount"`
}
