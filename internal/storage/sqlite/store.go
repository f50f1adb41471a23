package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"uptimewatch/internal/models"
	"uptimewatch/internal/storage"
)

// SQLiteStore implements the storage.Storer interface for SQLite.
// Timestamps are stored as UTC unix nanoseconds so they compare numerically.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore and establishes a connection to the database file.
// It also runs migrations to ensure the schema is up to date.
func New(ctx context.Context, dataSourceName string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dataSourceName)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// a single writer connection keeps concurrent check results from hitting SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// migrate ensures the database schema is created.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS monitors (
	id               TEXT PRIMARY KEY,
	owner_id         TEXT NOT NULL DEFAULT '',
	url              TEXT NOT NULL,
	interval_minutes INTEGER NOT NULL DEFAULT 5,
	status           TEXT NOT NULL DEFAULT 'UNKNOWN',
	response_time_ms INTEGER,
	last_checked     INTEGER,
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitors_last_checked ON monitors (last_checked);

CREATE TABLE IF NOT EXISTS monitor_logs (
	seq              INTEGER PRIMARY KEY AUTOINCREMENT,
	monitor_id       TEXT NOT NULL,
	checked_at       INTEGER NOT NULL,
	status           TEXT NOT NULL,
	response_time_ms INTEGER NOT NULL,
	interval_minutes INTEGER NOT NULL,
	FOREIGN KEY(monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_monitor_logs_monitor_id_seq ON monitor_logs (monitor_id, seq);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// CreateMonitor inserts a new monitor.
func (s *SQLiteStore) CreateMonitor(ctx context.Context, m *models.Monitor) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = models.StatusUnknown
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	query := `
INSERT INTO monitors (id, owner_id, url, interval_minutes, status, response_time_ms, last_checked, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query, m.ID, m.OwnerID, m.URL, m.IntervalMinutes, string(m.Status),
		nullInt(m.ResponseTimeMS), nullTime(m.LastChecked), m.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert monitor: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

// GetMonitor retrieves a monitor and its log in chronological order.
func (s *SQLiteStore) GetMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	m, err := s.LookupMonitor(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT checked_at, status, response_time_ms, interval_minutes FROM monitor_logs WHERE monitor_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitor logs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e models.LogEntry
		var checkedAt int64
		var status string
		if err := rows.Scan(&checkedAt, &status, &e.ResponseTimeMS, &e.IntervalMinutes); err != nil {
			return nil, fmt.Errorf("failed to scan log row: %w", err)
		}
		e.Timestamp = time.Unix(0, checkedAt).UTC()
		e.Status = models.Status(status)
		m.Logs = append(m.Logs, e)
	}
	return m, rows.Err()
}

// LookupMonitor retrieves a monitor without reading its log.
func (s *SQLiteStore) LookupMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	query := `SELECT id, owner_id, url, interval_minutes, status, response_time_ms, last_checked, created_at FROM monitors WHERE id = ?`
	m, err := scanMonitor(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor by id: %w", err)
	}
	return m, nil
}

// FindDue returns monitors never checked, or checked at least a minute ago
// and not one-shot.
func (s *SQLiteStore) FindDue(ctx context.Context, now time.Time) ([]models.Monitor, error) {
	query := `
SELECT id, owner_id, url, interval_minutes, status, response_time_ms, last_checked, created_at
FROM monitors
WHERE last_checked IS NULL OR (interval_minutes > 0 AND last_checked <= ?)
ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, now.Add(-models.MinCheckSpacing).UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query due monitors: %w", err)
	}
	defer rows.Close()
	var monitors []models.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitor row: %w", err)
		}
		monitors = append(monitors, *m)
	}
	return monitors, rows.Err()
}

// AppendLog appends an entry and trims the log in one transaction.
func (s *SQLiteStore) AppendLog(ctx context.Context, monitorID string, entry models.LogEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureMonitor(ctx, tx, monitorID); err != nil {
			return err
		}
		return appendLogTx(ctx, tx, monitorID, entry)
	})
}

// UpdateSummary rewrites the monitor's summary fields.
func (s *SQLiteStore) UpdateSummary(ctx context.Context, monitorID string, summary models.Summary) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return updateSummaryTx(ctx, tx, monitorID, summary)
	})
}

// RecordCheck appends the entry and rewrites the summary atomically.
func (s *SQLiteStore) RecordCheck(ctx context.Context, monitorID string, entry models.LogEntry, summary models.Summary) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateSummaryTx(ctx, tx, monitorID, summary); err != nil {
			return err
		}
		return appendLogTx(ctx, tx, monitorID, entry)
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func ensureMonitor(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM monitors WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up monitor: %w", err)
	}
	return nil
}

func appendLogTx(ctx context.Context, tx *sql.Tx, monitorID string, entry models.LogEntry) error {
	insert := `INSERT INTO monitor_logs (monitor_id, checked_at, status, response_time_ms, interval_minutes) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert, monitorID, entry.Timestamp.UTC().UnixNano(), string(entry.Status), entry.ResponseTimeMS, entry.IntervalMinutes); err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}

	// drop everything at or below the newest row that falls outside the cap
	trim := `
DELETE FROM monitor_logs
WHERE monitor_id = ?
  AND seq <= (SELECT seq FROM monitor_logs WHERE monitor_id = ? ORDER BY seq DESC LIMIT 1 OFFSET ?)`
	if _, err := tx.ExecContext(ctx, trim, monitorID, monitorID, models.MaxLogEntries); err != nil {
		return fmt.Errorf("failed to trim log: %w", err)
	}
	return nil
}

func updateSummaryTx(ctx context.Context, tx *sql.Tx, monitorID string, summary models.Summary) error {
	query := `UPDATE monitors SET status = ?, response_time_ms = ?, last_checked = ? WHERE id = ?`
	res, err := tx.ExecContext(ctx, query, string(summary.Status), nullInt(summary.ResponseTimeMS), summary.LastChecked.UTC().UnixNano(), monitorID)
	if err != nil {
		return fmt.Errorf("failed to update monitor summary: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMonitor(row rowScanner) (*models.Monitor, error) {
	var m models.Monitor
	var status string
	var responseTime, lastChecked sql.NullInt64
	var createdAt int64
	if err := row.Scan(&m.ID, &m.OwnerID, &m.URL, &m.IntervalMinutes, &status, &responseTime, &lastChecked, &createdAt); err != nil {
		return nil, err
	}
	m.Status = models.Status(status)
	if responseTime.Valid {
		rt := responseTime.Int64
		m.ResponseTimeMS = &rt
	}
	if lastChecked.Valid {
		lc := time.Unix(0, lastChecked.Int64).UTC()
		m.LastChecked = &lc
	}
	m.CreatedAt = time.Unix(0, createdAt).UTC()
	return &m, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().UnixNano(), Valid: true}
}
