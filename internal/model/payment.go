package model

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusSettled   PaymentStatus = "settled"
	PaymentStatusExpired   PaymentStatus = "expired"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
// confirmed is deliberately not terminal: it either settles or stays
// behind for manual reconciliation.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusSettled, PaymentStatusExpired, PaymentStatusFailed:
		return true
	}
	return false
}

// PaymentRequest is one committed order awaiting an on-chain transfer.
// Rows in a terminal state are kept for audit and never mutated again.
type PaymentRequest struct {
	ID           string        `json:"id" gorm:"primaryKey;size:36"`
	UserID       int64         `json:"user_id" gorm:"index;not null"`
	PackageID    int           `json:"package_id" gorm:"not null"`
	QuotaAmount  int64         `json:"quota_amount" gorm:"not null"`
	AmountUSD    float64       `json:"amount_usd" gorm:"column:amount_usd;not null"`
	AmountCrypto float64       `json:"amount_crypto" gorm:"not null"`
	Currency     string        `json:"currency" gorm:"index;not null"`
	Address      string        `json:"address" gorm:"index;not null"`
	Status       PaymentStatus `json:"status" gorm:"index;default:'pending'"`
	TxHash       string        `json:"tx_hash,omitempty" gorm:"index"`
	ExpiresAt    int64         `json:"expires_at" gorm:"not null"`
	CreatedAt    int64         `json:"created_at"`
	UpdatedAt    int64         `json:"updated_at"`
}
