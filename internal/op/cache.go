package op

import (
	"context"
	"time"
)

// InitCache loads the write-through caches from the database. Call once
// after InitDB.
func InitCache() error {
	ctx := context.Background()
	if err := settingRefreshCache(ctx); err != nil {
		return err
	}
	if err := packageRefreshCache(ctx); err != nil {
		return err
	}
	if err := allocationRefreshCache(ctx); err != nil {
		return err
	}
	return statsRefreshCache(ctx)
}

// SaveCache persists everything held in memory. Registered as a shutdown hook.
func SaveCache() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := StatsSaveDB(ctx); err != nil {
		return err
	}
	return usageLogFlushToDB(ctx)
}
