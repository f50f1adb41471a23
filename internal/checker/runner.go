package checker

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"uptimewatch/internal/models"
	"uptimewatch/internal/storage"
)

// ErrCheckInProgress is returned when a check for the same monitor is already running.
var ErrCheckInProgress = errors.New("check already in progress")

// Runner performs one full check of a monitor and persists the outcome.
type Runner struct {
	store    storage.MonitorStore
	resolver Resolver
	limiter  *MonitorLimiter
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewRunner creates a Runner. A nil clock uses the real clock and a nil
// logger discards output.
func NewRunner(store storage.MonitorStore, resolver Resolver, clock clockwork.Clock, logger *zap.Logger) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		store:    store,
		resolver: resolver,
		limiter:  NewMonitorLimiter(),
		clock:    clock,
		logger:   logger,
	}
}

// Run checks m unless a check for it is already in flight, in which case it
// returns ErrCheckInProgress without touching the store.
func (r *Runner) Run(ctx context.Context, m models.Monitor) (models.LogEntry, error) {
	if !r.limiter.Acquire(m.ID) {
		return models.LogEntry{}, ErrCheckInProgress
	}
	defer r.limiter.Release(m.ID)
	return r.execute(ctx, m)
}

// execute assumes the caller holds the monitor's limiter slot.
func (r *Runner) execute(ctx context.Context, m models.Monitor) (models.LogEntry, error) {
	res := r.resolver.Resolve(ctx, m.URL)
	if err := ctx.Err(); err != nil {
		r.logger.Warn("check aborted", zap.String("monitor_id", m.ID), zap.String("url", m.URL), zap.Error(err))
		return models.LogEntry{}, fmt.Errorf("check for monitor %s aborted: %w", m.ID, err)
	}

	now := r.clock.Now().UTC()
	entry := models.LogEntry{
		Timestamp:       now,
		Status:          res.Status,
		IntervalMinutes: m.IntervalMinutes,
	}
	if res.ResponseTimeMS != nil {
		entry.ResponseTimeMS = *res.ResponseTimeMS
	}
	summary := models.Summary{
		Status:         res.Status,
		ResponseTimeMS: res.ResponseTimeMS,
		LastChecked:    now,
	}

	if err := r.store.RecordCheck(ctx, m.ID, entry, summary); err != nil {
		r.logger.Error("failed to record check",
			zap.String("monitor_id", m.ID),
			zap.String("url", m.URL),
			zap.Error(err),
		)
		return entry, fmt.Errorf("record check for monitor %s: %w", m.ID, err)
	}

	fields := []zap.Field{
		zap.String("monitor_id", m.ID),
		zap.String("url", m.URL),
		zap.String("status", string(res.Status)),
		zap.Int("attempts", res.Attempts),
	}
	if res.StatusCode != 0 {
		fields = append(fields, zap.Int("status_code", res.StatusCode))
	}
	if res.Status == models.StatusUp {
		r.logger.Info("monitor up", append(fields, zap.Int64("response_time_ms", entry.ResponseTimeMS))...)
	} else {
		r.logger.Warn("monitor down", append(fields, zap.String("reason", res.Reason), zap.Error(res.Err))...)
	}
	return entry, nil
}
