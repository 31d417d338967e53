package model

import "fmt"

// Package is a catalog entry an operator sells. Rows are immutable after
// creation except for the availability flag.
type Package struct {
	ID          int     `json:"id" gorm:"primaryKey"`
	Name        string  `json:"name" gorm:"not null"`
	QuotaAmount int64   `json:"quota_amount" gorm:"not null"`
	ModelAccess string  `json:"model_access" gorm:"not null"` // upstream model identifier
	CostPrice   float64 `json:"cost_price" gorm:"not null"`
	SellPrice   float64 `json:"sell_price" gorm:"not null"`
	ExpiryDays  int     `json:"expiry_days" gorm:"default:30"`
	DailyLimit  int64   `json:"daily_limit" gorm:"default:0"` // 0 = no daily cap
	Available   bool    `json:"available" gorm:"default:true"`
	CreatedAt   int64   `json:"created_at"`
}

func (p *Package) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("package name is required")
	}
	if p.QuotaAmount <= 0 {
		return fmt.Errorf("quota amount must be positive")
	}
	if p.ModelAccess == "" {
		return fmt.Errorf("model access is required")
	}
	if p.SellPrice <= p.CostPrice {
		return fmt.Errorf("sell price must be above cost price")
	}
	if p.ExpiryDays <= 0 {
		return fmt.Errorf("expiry days must be positive")
	}
	if p.DailyLimit < 0 {
		return fmt.Errorf("daily limit must not be negative")
	}
	return nil
}
