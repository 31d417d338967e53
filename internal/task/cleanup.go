package task

import (
	"context"
	"time"

	"github.com/tokengate/tokengate/internal/op"
	"github.com/tokengate/tokengate/internal/utils/log"
)

// CleanupExpiredAllocations deactivates allocations past their expiry.
func CleanupExpiredAllocations() {
	log.Debugf("allocation cleanup task started")
	startTime := time.Now()
	defer func() {
		log.Debugf("allocation cleanup task finished, run time: %s", time.Since(startTime))
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	count, err := op.AllocationCleanupExpired(time.Now(), ctx)
	if err != nil {
		log.Errorf("allocation cleanup failed: %v", err)
		return
	}
	if count > 0 {
		log.Infof("deactivated %d expired allocations", count)
	}
}
