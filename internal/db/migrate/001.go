package migrate

import (
	"gorm.io/gorm"
)

func init() {
	// Composite index for the monitoring loops: every poll lists pending
	// requests for one currency in creation order.
	RegisterAfterAutoMigration(Migration{
		Version: 1,
		Up: func(db *gorm.DB) error {
			// MySQL has no CREATE INDEX IF NOT EXISTS; the migration record
			// keeps this from running twice.
			if db.Migrator().HasIndex("payment_requests", "idx_payment_requests_pending") {
				return nil
			}
			return db.Exec(
				"CREATE INDEX idx_payment_requests_pending ON payment_requests (currency, status, created_at)",
			).Error
		},
	})
}
