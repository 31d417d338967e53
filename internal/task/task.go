package task

import (
	"sync"
	"time"

	"github.com/tokengate/tokengate/internal/utils/log"
)

type taskEntry struct {
	name       string
	interval   time.Duration
	fn         func()
	runOnStart bool
	ticker     *time.Ticker
	stopCh     chan struct{}
	updateCh   chan time.Duration
}

var (
	tasks   = make(map[string]*taskEntry)
	tasksMu sync.RWMutex
	running sync.WaitGroup
)

// Register adds a periodic task.
// runOnStart controls whether fn also fires immediately at startup.
func Register(name string, interval time.Duration, runOnStart bool, fn func()) {
	if interval <= 0 {
		log.Debugf("task %s not registered: interval is 0", name)
		return
	}

	tasksMu.Lock()
	defer tasksMu.Unlock()

	if _, exists := tasks[name]; exists {
		log.Warnf("task %s already registered, skipping", name)
		return
	}

	tasks[name] = &taskEntry{
		name:       name,
		interval:   interval,
		fn:         fn,
		runOnStart: runOnStart,
		stopCh:     make(chan struct{}),
		updateCh:   make(chan time.Duration),
	}
	log.Debugf("task %s registered with interval %v, runOnStart: %v", name, interval, runOnStart)
}

// Update changes a task's interval. An interval of 0 removes the task.
func Update(name string, interval time.Duration) {
	tasksMu.Lock()
	entry, exists := tasks[name]
	if !exists {
		tasksMu.Unlock()
		log.Warnf("task %s not found", name)
		return
	}

	if interval <= 0 {
		delete(tasks, name)
		tasksMu.Unlock()
		close(entry.stopCh)
		log.Infof("task %s removed: interval is 0", name)
		return
	}
	tasksMu.Unlock()

	select {
	case entry.updateCh <- interval:
		log.Infof("task %s interval updated to %v", name, interval)
	default:
		log.Warnf("task %s update channel full, skipping", name)
	}
}

// Run starts every registered task loop. It does not block; StopAll stops
// the loops and waits for in-flight runs to drain.
func Run() {
	tasksMu.RLock()
	defer tasksMu.RUnlock()
	for _, entry := range tasks {
		running.Add(1)
		go runTask(entry)
	}
}

// StopAll signals every loop to exit and waits for them. In-flight ticks
// finish; no new ones start.
func StopAll() {
	tasksMu.Lock()
	for name, entry := range tasks {
		close(entry.stopCh)
		delete(tasks, name)
	}
	tasksMu.Unlock()
	running.Wait()
}

func runTask(entry *taskEntry) {
	defer running.Done()

	if entry.runOnStart {
		entry.fn()
	}

	entry.ticker = time.NewTicker(entry.interval)
	defer entry.ticker.Stop()

	for {
		select {
		case <-entry.ticker.C:
			entry.fn()
		case newInterval := <-entry.updateCh:
			entry.ticker.Stop()
			entry.interval = newInterval
			entry.ticker = time.NewTicker(newInterval)
		case <-entry.stopCh:
			return
		}
	}
}
