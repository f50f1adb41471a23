package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uptimewatch/internal/models"
	"uptimewatch/internal/storage"
)

// Requires MONGO_TEST_URL, e.g. mongodb://localhost:27017
func newTestStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URL")
	if uri == "" {
		t.Skip("MONGO_TEST_URL not set")
	}
	store, err := New(context.Background(), uri, "uptimewatch_test")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMongoRecordCheckCapsLog(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := &models.Monitor{ID: uuid.NewString(), URL: "https://example.com", IntervalMinutes: 1}
	require.NoError(t, store.CreateMonitor(ctx, m))
	assert.ErrorIs(t, store.CreateMonitor(ctx, &models.Monitor{ID: m.ID}), storage.ErrDuplicateKey)

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i <= models.MaxLogEntries; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		rt := int64(i)
		require.NoError(t, store.RecordCheck(ctx, m.ID,
			models.LogEntry{Timestamp: at, Status: models.StatusUp, ResponseTimeMS: rt, IntervalMinutes: 1},
			models.Summary{Status: models.StatusUp, ResponseTimeMS: &rt, LastChecked: at},
		))
	}

	got, err := store.GetMonitor(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, got.Logs, models.MaxLogEntries)
	assert.Equal(t, int64(1), got.Logs[0].ResponseTimeMS)
	assert.Equal(t, models.StatusUp, got.Status)

	bare, err := store.LookupMonitor(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUp, bare.Status)
	assert.Empty(t, bare.Logs)

	assert.ErrorIs(t, store.AppendLog(ctx, "missing", models.LogEntry{Timestamp: base}), storage.ErrNotFound)
}

func TestMongoFindDue(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	now := time.Now().UTC()
	checked := now.Add(-time.Hour)
	oneShot := &models.Monitor{ID: uuid.NewString(), URL: "https://a.example", IntervalMinutes: 0, LastChecked: &checked}
	fresh := &models.Monitor{ID: uuid.NewString(), URL: "https://b.example", IntervalMinutes: 5}
	require.NoError(t, store.CreateMonitor(ctx, oneShot))
	require.NoError(t, store.CreateMonitor(ctx, fresh))

	due, err := store.FindDue(ctx, now)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, m := range due {
		seen[m.ID] = true
		assert.Empty(t, m.Logs)
	}
	assert.True(t, seen[fresh.ID])
	assert.False(t, seen[oneShot.ID])
}
