package task

import (
	"context"
	"time"

	"github.com/tokengate/tokengate/internal/gateway"
	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/op"
	"github.com/tokengate/tokengate/internal/rates"
	"github.com/tokengate/tokengate/internal/utils/log"
)

const (
	TaskRateRefresh       = "rate_refresh"
	TaskAllocationCleanup = "allocation_cleanup"
	TaskStatsSave         = "stats_save"
	TaskUsageLogSave      = "usage_log_save"
	taskMonitorPrefix     = "monitor_"
)

// Init registers every background loop: one payment monitor per currency,
// the rate refresh, the allocation cleanup and the two persistence flushes.
func Init(monitors []*gateway.Monitor, rateService *rates.Service) {
	for _, monitor := range monitors {
		m := monitor
		Register(taskMonitorPrefix+m.Currency(), m.PollInterval(), true, func() {
			ctx, cancel := context.WithTimeout(context.Background(), m.PollInterval())
			defer cancel()
			if err := m.Tick(ctx); err != nil {
				log.Warnf("payment monitor %s tick failed: %v", m.Currency(), err)
			}
		})
	}

	Register(TaskRateRefresh, time.Minute, true, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		rateService.RefreshTask(ctx)
	})

	Register(TaskAllocationCleanup, 10*time.Minute, true, CleanupExpiredAllocations)

	statsSaveIntervalMinutes, err := op.SettingGetInt(model.SettingKeyStatsSaveInterval)
	if err != nil {
		log.Warnf("failed to get stats save interval: %v", err)
		statsSaveIntervalMinutes = 10
	}
	Register(TaskStatsSave, time.Duration(statsSaveIntervalMinutes)*time.Minute, false, op.StatsSaveDBTask)

	Register(TaskUsageLogSave, 10*time.Minute, false, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := op.UsageLogSaveDBTask(ctx); err != nil {
			log.Warnf("usage log save db task failed: %v", err)
		}
	})
}
