package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uptimewatch/internal/models"
	"uptimewatch/internal/storage"
)

func TestStoreFindDue(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	checked := func(ago time.Duration) *time.Time {
		at := now.Add(-ago)
		return &at
	}

	seed := []models.Monitor{
		{ID: "never", URL: "https://a.example", IntervalMinutes: 5, CreatedAt: now.Add(-4 * time.Hour)},
		{ID: "oneshot-new", URL: "https://b.example", IntervalMinutes: 0, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "oneshot-done", URL: "https://c.example", IntervalMinutes: 0, LastChecked: checked(time.Hour), CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "recent", URL: "https://d.example", IntervalMinutes: 5, LastChecked: checked(30 * time.Second), CreatedAt: now.Add(-time.Hour)},
		{ID: "stale", URL: "https://e.example", IntervalMinutes: 5, LastChecked: checked(2 * time.Minute), CreatedAt: now},
	}
	for i := range seed {
		require.NoError(t, s.CreateMonitor(ctx, &seed[i]))
	}

	due, err := s.FindDue(ctx, now)
	require.NoError(t, err)

	var ids []string
	for _, m := range due {
		ids = append(ids, m.ID)
		assert.Nil(t, m.Logs)
	}
	// "stale" passes the coarse filter even though its 5 minute interval has not elapsed.
	assert.Equal(t, []string{"never", "oneshot-new", "stale"}, ids)
}

func TestStoreRecordCheck(t *testing.T) {
	ctx := context.Background()
	s := New()
	m := &models.Monitor{URL: "https://example.com", IntervalMinutes: 1}
	require.NoError(t, s.CreateMonitor(ctx, m))
	require.NotEmpty(t, m.ID, "an id should be generated")

	got, err := s.GetMonitor(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnknown, got.Status)
	assert.Nil(t, got.LastChecked)

	at := time.Now().UTC()
	rt := int64(120)
	err = s.RecordCheck(ctx, m.ID,
		models.LogEntry{Timestamp: at, Status: models.StatusUp, ResponseTimeMS: rt, IntervalMinutes: 1},
		models.Summary{Status: models.StatusUp, ResponseTimeMS: &rt, LastChecked: at},
	)
	require.NoError(t, err)

	got, err = s.GetMonitor(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUp, got.Status)
	require.NotNil(t, got.ResponseTimeMS)
	assert.Equal(t, rt, *got.ResponseTimeMS)
	require.Len(t, got.Logs, 1)
	assert.Equal(t, 1, got.Logs[0].IntervalMinutes)

	// mutating the returned copy must not leak into the store
	got.Logs[0].Status = models.StatusDown
	again, err := s.GetMonitor(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUp, again.Logs[0].Status)
}

func TestStoreLookupMonitorSkipsLogs(t *testing.T) {
	ctx := context.Background()
	s := New()
	m := &models.Monitor{ID: "m1", URL: "https://example.com", IntervalMinutes: 1}
	require.NoError(t, s.CreateMonitor(ctx, m))

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rt := int64(80)
	require.NoError(t, s.RecordCheck(ctx, m.ID,
		models.LogEntry{Timestamp: at, Status: models.StatusDown, IntervalMinutes: 1},
		models.Summary{Status: models.StatusDown, ResponseTimeMS: &rt, LastChecked: at},
	))

	got, err := s.LookupMonitor(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.URL, got.URL)
	assert.Equal(t, models.StatusDown, got.Status)
	require.NotNil(t, got.LastChecked)
	assert.Equal(t, at, *got.LastChecked)
	assert.Nil(t, got.Logs)

	full, err := s.GetMonitor(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, full.Logs, 1)

	_, err = s.LookupMonitor(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStoreLogRetention(t *testing.T) {
	ctx := context.Background()
	s := New()
	m := &models.Monitor{ID: "m1", URL: "https://example.com", IntervalMinutes: 1}
	require.NoError(t, s.CreateMonitor(ctx, m))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i <= models.MaxLogEntries; i++ {
		require.NoError(t, s.AppendLog(ctx, m.ID, models.LogEntry{Timestamp: base.Add(time.Duration(i) * time.Second), Status: models.StatusUp}))
	}

	got, err := s.GetMonitor(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, got.Logs, models.MaxLogEntries)
	assert.Equal(t, base.Add(time.Second), got.Logs[0].Timestamp)
	assert.Equal(t, base.Add(models.MaxLogEntries*time.Second), got.Logs[len(got.Logs)-1].Timestamp)
}

func TestStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetMonitor(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.AppendLog(ctx, "missing", models.LogEntry{}), storage.ErrNotFound)
	assert.ErrorIs(t, s.UpdateSummary(ctx, "missing", models.Summary{}), storage.ErrNotFound)
	assert.ErrorIs(t, s.RecordCheck(ctx, "missing", models.LogEntry{}, models.Summary{}), storage.ErrNotFound)

	require.NoError(t, s.CreateMonitor(ctx, &models.Monitor{ID: "dup"}))
	assert.ErrorIs(t, s.CreateMonitor(ctx, &models.Monitor{ID: "dup"}), storage.ErrDuplicateKey)
}
