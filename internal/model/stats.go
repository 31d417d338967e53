package model

type StatsMetrics struct {
	TokensConsumed int64 `json:"tokens_consumed" gorm:"bigint"`
	RequestSuccess int64 `json:"request_success" gorm:"bigint"`
	RequestFailed  int64 `json:"request_failed" gorm:"bigint"`
	WaitTime       int64 `json:"wait_time" gorm:"bigint"` // cumulative ms
}

type StatsTotal struct {
	ID int `gorm:"primaryKey"`
	StatsMetrics
}

type StatsDaily struct {
	Date string `json:"date" gorm:"primaryKey"` // 20060102
	StatsMetrics
}

// Add aggregates another StatsMetrics into the current one.
func (s *StatsMetrics) Add(delta StatsMetrics) {
	s.TokensConsumed += delta.TokensConsumed
	s.RequestSuccess += delta.RequestSuccess
	s.RequestFailed += delta.RequestFailed
	s.WaitTime += delta.WaitTime
}

// SettlementStats aggregates payment outcomes over a period.
type SettlementStats struct {
	Period         string             `json:"period"`
	SettledCount   int64              `json:"settled_count"`
	SettledUSD     float64            `json:"settled_usd"`
	PendingCount   int64              `json:"pending_count"`
	ConfirmedCount int64              `json:"confirmed_count"` // confirmed but not yet settled
	ExpiredCount   int64              `json:"expired_count"`
	ByCurrency     map[string]float64 `json:"by_currency" gorm:"-"` // settled crypto volume
}
