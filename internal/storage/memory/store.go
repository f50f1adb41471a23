// Package memory provides an in-process storage.Storer.
//
// It is used by the test suites and by DATABASE_DRIVER=memory for local runs.
// Every read returns deep copies so callers never alias stored state.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"uptimewatch/internal/models"
	"uptimewatch/internal/storage"
)

// Store is a mutex-guarded map of monitors.
type Store struct {
	mu       sync.RWMutex
	monitors map[string]*models.Monitor
}

// New creates an empty Store.
func New() *Store {
	return &Store{monitors: make(map[string]*models.Monitor)}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// CreateMonitor stores a copy of monitor.
func (s *Store) CreateMonitor(ctx context.Context, monitor *models.Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if monitor.ID == "" {
		monitor.ID = uuid.NewString()
	}
	if _, ok := s.monitors[monitor.ID]; ok {
		return storage.ErrDuplicateKey
	}
	if monitor.Status == "" {
		monitor.Status = models.StatusUnknown
	}
	if monitor.CreatedAt.IsZero() {
		monitor.CreatedAt = time.Now().UTC()
	}
	m := clone(monitor, true)
	s.monitors[m.ID] = &m
	return nil
}

// GetMonitor returns a copy of the monitor including its log.
func (s *Store) GetMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.monitors[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := clone(m, true)
	return &c, nil
}

// LookupMonitor returns a copy of the monitor without its log.
func (s *Store) LookupMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.monitors[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := clone(m, false)
	return &c, nil
}

// FindDue returns candidates ordered by creation time, without logs.
func (s *Store) FindDue(ctx context.Context, now time.Time) ([]models.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []models.Monitor
	for _, m := range s.monitors {
		if m.Candidate(now) {
			due = append(due, clone(m, false))
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].CreatedAt.Equal(due[j].CreatedAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	return due, nil
}

// AppendLog appends entry with FIFO eviction beyond models.MaxLogEntries.
func (s *Store) AppendLog(ctx context.Context, monitorID string, entry models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monitors[monitorID]
	if !ok {
		return storage.ErrNotFound
	}
	m.Logs = models.AppendLog(m.Logs, entry, models.MaxLogEntries)
	return nil
}

// UpdateSummary rewrites the summary fields of a monitor.
func (s *Store) UpdateSummary(ctx context.Context, monitorID string, summary models.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monitors[monitorID]
	if !ok {
		return storage.ErrNotFound
	}
	m.Apply(summary)
	return nil
}

// RecordCheck appends entry and rewrites the summary under a single lock.
func (s *Store) RecordCheck(ctx context.Context, monitorID string, entry models.LogEntry, summary models.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monitors[monitorID]
	if !ok {
		return storage.ErrNotFound
	}
	m.Logs = models.AppendLog(m.Logs, entry, models.MaxLogEntries)
	m.Apply(summary)
	return nil
}

func clone(m *models.Monitor, withLogs bool) models.Monitor {
	c := *m
	if m.ResponseTimeMS != nil {
		rt := *m.ResponseTimeMS
		c.ResponseTimeMS = &rt
	}
	if m.LastChecked != nil {
		lc := *m.LastChecked
		c.LastChecked = &lc
	}
	c.Logs = nil
	if withLogs && len(m.Logs) > 0 {
		c.Logs = append([]models.LogEntry(nil), m.Logs...)
	}
	return c
}
