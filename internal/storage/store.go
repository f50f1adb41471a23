package storage

import (
	"context"
	"errors"
	"time"

	"uptimewatch/internal/models"
)

var (
	// ErrDuplicateKey is returned when attempting to create a duplicate resource
	ErrDuplicateKey = errors.New("duplicate")
	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("not found")
)

// MonitorStore is the persistence contract consumed by the check engine.
type MonitorStore interface {
	// FindDue returns monitors passing the coarse due filter at now
	// (see models.Monitor.Candidate). Logs are not populated.
	FindDue(ctx context.Context, now time.Time) ([]models.Monitor, error)

	// AppendLog appends entry to the monitor's log, evicting the oldest
	// entries beyond the retention cap.
	AppendLog(ctx context.Context, monitorID string, entry models.LogEntry) error

	// UpdateSummary rewrites the monitor's status, response time and last-checked time.
	UpdateSummary(ctx context.Context, monitorID string, summary models.Summary) error

	// RecordCheck performs AppendLog and UpdateSummary as one atomic write.
	RecordCheck(ctx context.Context, monitorID string, entry models.LogEntry, summary models.Summary) error
}

// MonitorReader exposes read access used by the API layer.
type MonitorReader interface {
	GetMonitor(ctx context.Context, id string) (*models.Monitor, error)

	// LookupMonitor returns the monitor without its log.
	LookupMonitor(ctx context.Context, id string) (*models.Monitor, error)
}

// Storer is implemented by every storage backend.
type Storer interface {
	MonitorStore
	MonitorReader

	// CreateMonitor inserts a new monitor. An empty ID is replaced by a generated one.
	CreateMonitor(ctx context.Context, monitor *models.Monitor) error
	Close() error
}
