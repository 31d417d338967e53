package op

import (
	"context"
	"sync"
	"time"

	"github.com/tokengate/tokengate/internal/db"
	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/utils/log"
	"github.com/tokengate/tokengate/internal/utils/snowflake"
)

const usageLogMaxSize = 20

var usageLogCache = make([]model.UsageLog, 0, usageLogMaxSize)
var usageLogCacheLock sync.Mutex

var usageLogFlushLock sync.Mutex

func usageLogFlushToDB(ctx context.Context) error {
	usageLogFlushLock.Lock()
	defer usageLogFlushLock.Unlock()

	usageLogCacheLock.Lock()
	if len(usageLogCache) == 0 {
		usageLogCacheLock.Unlock()
		return nil
	}
	batch := make([]model.UsageLog, len(usageLogCache))
	copy(batch, usageLogCache)
	flushedUpto := len(batch)
	usageLogCacheLock.Unlock()

	result := db.GetDB().WithContext(ctx).Create(&batch)
	if result.Error != nil {
		return result.Error
	}

	usageLogCacheLock.Lock()
	if len(usageLogCache) >= flushedUpto {
		usageLogCache = usageLogCache[flushedUpto:]
	} else {
		usageLogCache = usageLogCache[:0]
	}
	if len(usageLogCache) == 0 {
		usageLogCache = make([]model.UsageLog, 0, usageLogMaxSize)
	}
	usageLogCacheLock.Unlock()

	return nil
}

func UsageLogAdd(ctx context.Context, usageLog model.UsageLog) error {
	enabled, err := SettingGetBool(model.SettingKeyUsageLogKeepEnabled)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}
	usageLog.ID = snowflake.GenerateID()

	usageLogCacheLock.Lock()
	usageLogCache = append(usageLogCache, usageLog)
	full := len(usageLogCache) >= usageLogMaxSize
	usageLogCacheLock.Unlock()

	if full {
		return usageLogFlushToDB(ctx)
	}
	return nil
}

func UsageLogSaveDBTask(ctx context.Context) error {
	log.Debugf("usage log save db task started")
	startTime := time.Now()
	defer func() {
		log.Debugf("usage log save db task finished, save time: %s", time.Since(startTime))
	}()
	enabled, err := SettingGetBool(model.SettingKeyUsageLogKeepEnabled)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}
	if err := usageLogFlushToDB(ctx); err != nil {
		return err
	}
	return usageLogCleanup(ctx)
}

func usageLogCleanup(ctx context.Context) error {
	keepPeriod, err := SettingGetInt(model.SettingKeyUsageLogKeepPeriod)
	if err != nil {
		return err
	}
	if keepPeriod <= 0 {
		return nil
	}
	cutoffTime := time.Now().Add(-time.Duration(keepPeriod) * 24 * time.Hour).Unix()
	return db.GetDB().WithContext(ctx).Where("time < ?", cutoffTime).Delete(&model.UsageLog{}).Error
}

func UsageLogList(ctx context.Context, allocationID, page, pageSize int) ([]model.UsageLog, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	if err := usageLogFlushToDB(ctx); err != nil {
		return nil, err
	}
	query := db.GetDB().WithContext(ctx)
	if allocationID > 0 {
		query = query.Where("allocation_id = ?", allocationID)
	}
	var logs []model.UsageLog
	err := query.Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&logs).Error
	return logs, err
}
