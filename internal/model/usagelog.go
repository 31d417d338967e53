package model

// UsageLog records one proxied inference call.
type UsageLog struct {
	ID              int64  `json:"id" gorm:"primaryKey;autoIncrement:false"` // Snowflake ID
	Time            int64  `json:"time"`
	AllocationID    int    `json:"allocation_id" gorm:"index"`
	UserID          int64  `json:"user_id"`
	Model           string `json:"model"`
	EstimatedTokens int64  `json:"estimated_tokens"`
	ActualTokens    int64  `json:"actual_tokens"`
	UseTime         int64  `json:"use_time"` // total time in ms
	Error           string `json:"error"`
}
