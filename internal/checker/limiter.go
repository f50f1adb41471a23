package checker

import "sync"

// MonitorLimiter ensures that only one check per monitor is running at any given time.
type MonitorLimiter struct {
	mu       sync.Mutex
	monitors map[string]struct{}
}

// NewMonitorLimiter creates a new MonitorLimiter.
func NewMonitorLimiter() *MonitorLimiter {
	return &MonitorLimiter{
		monitors: make(map[string]struct{}),
	}
}

// Acquire attempts to mark a monitor as in flight.
// It returns false if a check for that monitor is already running.
func (ml *MonitorLimiter) Acquire(monitorID string) bool {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if _, busy := ml.monitors[monitorID]; busy {
		return false
	}
	ml.monitors[monitorID] = struct{}{}
	return true
}

// Release clears the in-flight mark for a monitor.
func (ml *MonitorLimiter) Release(monitorID string) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	delete(ml.monitors, monitorID)
}

// InFlight reports how many monitors currently hold a lock.
func (ml *MonitorLimiter) InFlight() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return len(ml.monitors)
}
