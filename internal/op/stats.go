package op

import (
	"context"
	"sync"
	"time"

	"github.com/tokengate/tokengate/internal/db"
	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/utils/log"
)

var statsTotalCache model.StatsTotal
var statsTotalCacheLock sync.RWMutex

var statsDailyCache model.StatsDaily
var statsDailyCacheLock sync.RWMutex

// StatsUpdate folds one request's metrics into the cached counters.
// Persistence happens on the periodic save task and at shutdown.
func StatsUpdate(delta model.StatsMetrics) {
	today := time.Now().Format("20060102")

	statsDailyCacheLock.Lock()
	if statsDailyCache.Date != today {
		if statsDailyCache.Date != "" {
			old := statsDailyCache
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				if err := db.GetDB().WithContext(ctx).Save(&old).Error; err != nil {
					log.Errorf("failed to save rolled-over daily stats: %v", err)
				}
			}()
		}
		statsDailyCache = model.StatsDaily{Date: today}
	}
	statsDailyCache.Add(delta)
	statsDailyCacheLock.Unlock()

	statsTotalCacheLock.Lock()
	statsTotalCache.Add(delta)
	statsTotalCacheLock.Unlock()
}

func StatsGetTotal() model.StatsTotal {
	statsTotalCacheLock.RLock()
	defer statsTotalCacheLock.RUnlock()
	return statsTotalCache
}

func StatsGetDaily() model.StatsDaily {
	statsDailyCacheLock.RLock()
	defer statsDailyCacheLock.RUnlock()
	return statsDailyCache
}

func StatsSaveDB(ctx context.Context) error {
	statsTotalCacheLock.RLock()
	totalSnap := statsTotalCache
	statsTotalCacheLock.RUnlock()
	if totalSnap.ID == 0 {
		totalSnap.ID = 1
	}

	statsDailyCacheLock.RLock()
	dailySnap := statsDailyCache
	statsDailyCacheLock.RUnlock()

	dbConn := db.GetDB().WithContext(ctx)
	if result := dbConn.Save(&totalSnap); result.Error != nil {
		return result.Error
	}
	if dailySnap.Date != "" {
		if result := dbConn.Save(&dailySnap); result.Error != nil {
			return result.Error
		}
	}
	return nil
}

func StatsSaveDBTask() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	log.Debugf("stats save db task started")
	startTime := time.Now()
	defer func() {
		log.Debugf("stats save db task finished, save time: %s", time.Since(startTime))
	}()
	if err := StatsSaveDB(ctx); err != nil {
		log.Errorf("stats save db error: %v", err)
	}
}

func statsRefreshCache(ctx context.Context) error {
	dbConn := db.GetDB().WithContext(ctx)

	var total model.StatsTotal
	if err := dbConn.First(&total, 1).Error; err == nil {
		statsTotalCacheLock.Lock()
		statsTotalCache = total
		statsTotalCacheLock.Unlock()
	}

	today := time.Now().Format("20060102")
	var daily model.StatsDaily
	if err := dbConn.First(&daily, "date = ?", today).Error; err == nil {
		statsDailyCacheLock.Lock()
		statsDailyCache = daily
		statsDailyCacheLock.Unlock()
	}
	return nil
}
