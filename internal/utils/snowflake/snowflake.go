package snowflake

import (
	"sync"
	"time"
)

var (
	sfMutex    sync.Mutex
	sfLastTime int64
)

// GenerateID returns a unique millisecond-timestamp-based ID. Calls within
// the same millisecond bump the counter forward instead of waiting.
func GenerateID() int64 {
	sfMutex.Lock()
	defer sfMutex.Unlock()

	now := time.Now().UnixMilli()

	if now <= sfLastTime {
		sfLastTime++
		return sfLastTime
	}

	sfLastTime = now
	return now
}
