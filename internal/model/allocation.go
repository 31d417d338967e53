package model

import "time"

// Allocation is a user's metered grant of purchased quota.
// Invariant: 0 <= RemainingTokens <= TotalTokens. IsActive drops exactly
// when the remainder hits zero or the expiry passes.
type Allocation struct {
	ID              int    `json:"id" gorm:"primaryKey"`
	UserID          int64  `json:"user_id" gorm:"index;not null"`
	PackageID       int    `json:"package_id" gorm:"not null"`
	PaymentID       string `json:"payment_id" gorm:"index;size:36"` // settling payment, at most one allocation per payment
	APIKey          string `json:"api_key" gorm:"uniqueIndex;not null"`
	TotalTokens     int64  `json:"total_tokens" gorm:"not null"`
	RemainingTokens int64  `json:"remaining_tokens" gorm:"not null"`
	DailyUsed       int64  `json:"daily_used" gorm:"default:0"`
	DailyLimit      int64  `json:"daily_limit" gorm:"default:0"` // 0 = no daily cap
	DailyResetAt    int64  `json:"daily_reset_at"`               // start of the day the counter belongs to
	TotalUsed       int64  `json:"total_used" gorm:"default:0"`
	ExpiresAt       int64  `json:"expires_at" gorm:"index;not null"`
	IsActive        bool   `json:"is_active" gorm:"index;default:true"`
	NeedsReview     bool   `json:"needs_review" gorm:"default:false"`
	CreatedAt       int64  `json:"created_at"`
}

func (a *Allocation) Expired(now time.Time) bool {
	return a.ExpiresAt > 0 && now.Unix() >= a.ExpiresAt
}

// DailyRemaining returns how many tokens the daily cap still allows.
// Allocations without a cap report the overall remainder.
func (a *Allocation) DailyRemaining() int64 {
	if a.DailyLimit <= 0 {
		return a.RemainingTokens
	}
	left := a.DailyLimit - a.DailyUsed
	if left < 0 {
		return 0
	}
	if left > a.RemainingTokens {
		return a.RemainingTokens
	}
	return left
}
