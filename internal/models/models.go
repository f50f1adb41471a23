package models

import "time"

// Status is the classification of a monitor or of a single check.
type Status string

const (
	StatusUp      Status = "UP"
	StatusDown    Status = "DOWN"
	StatusUnknown Status = "UNKNOWN"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUp, StatusDown, StatusUnknown:
		return true
	}
	return false
}

const (
	// MaxLogEntries caps the per-monitor log. Older entries are evicted first.
	MaxLogEntries = 1000

	// MinCheckSpacing is the coarse due filter applied at the store level.
	MinCheckSpacing = time.Minute
)

// Monitor represents a URL under observation together with its rolling history.
// The check engine only mutates Status, ResponseTimeMS, LastChecked and Logs.
type Monitor struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	URL             string     `json:"url"`
	IntervalMinutes int        `json:"interval"` // 0 means check once and never reschedule
	Status          Status     `json:"status"`
	ResponseTimeMS  *int64     `json:"response_time_ms"` // nil until a check succeeds
	LastChecked     *time.Time `json:"last_checked"`
	CreatedAt       time.Time  `json:"created_at"`
	Logs            []LogEntry `json:"logs,omitempty"`
}

// LogEntry stores the outcome of a single check for a Monitor.
type LogEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	Status          Status    `json:"status"`
	ResponseTimeMS  int64     `json:"response_time_ms"` // 0 when the check failed
	IntervalMinutes int       `json:"interval"`         // interval in effect when the check ran
}

// Summary is the set of monitor fields rewritten after every check.
type Summary struct {
	Status         Status
	ResponseTimeMS *int64
	LastChecked    time.Time
}

// Interval returns the configured check interval as a duration.
func (m *Monitor) Interval() time.Duration {
	return time.Duration(m.IntervalMinutes) * time.Minute
}

// OneShot reports whether the monitor is only ever checked once.
func (m *Monitor) OneShot() bool {
	return m.IntervalMinutes == 0
}

// Candidate is the coarse due filter: never checked, or checked at least
// MinCheckSpacing ago and not an already-checked one-shot monitor.
// Stores use it (or an equivalent query) to narrow the set of monitors
// handed to the scheduler.
func (m *Monitor) Candidate(now time.Time) bool {
	if m.LastChecked == nil {
		return true
	}
	if m.OneShot() {
		return false
	}
	return now.Sub(*m.LastChecked) >= MinCheckSpacing
}

// Due is the precise predicate applied to every candidate before dispatch.
func (m *Monitor) Due(now time.Time) bool {
	if !m.Candidate(now) {
		return false
	}
	if m.LastChecked == nil {
		return true
	}
	return now.Sub(*m.LastChecked) >= m.Interval()
}

// AppendLog appends entry and truncates logs to the most recent limit entries.
// A non-positive limit falls back to MaxLogEntries.
func AppendLog(logs []LogEntry, entry LogEntry, limit int) []LogEntry {
	if limit <= 0 {
		limit = MaxLogEntries
	}
	logs = append(logs, entry)
	if len(logs) > limit {
		trimmed := make([]LogEntry, limit)
		copy(trimmed, logs[len(logs)-limit:])
		logs = trimmed
	}
	return logs
}

// Apply rewrites the summary fields of m.
func (m *Monitor) Apply(s Summary) {
	m.Status = s.Status
	m.ResponseTimeMS = s.ResponseTimeMS
	checked := s.LastChecked
	m.LastChecked = &checked
}
