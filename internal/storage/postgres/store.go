package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"uptimewatch/internal/models"
	"uptimewatch/internal/storage"
)

// PostgresStore implements the storage.Storer interface for PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// New creates a new PostgresStore and establishes a connection to the database.
// It also runs migrations to ensure the schema is up to date.
func New(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}
	// PgBouncer in transaction pooling mode rejects prepared statements.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &PostgresStore{db: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// migrate ensures the database schema is created.
func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS monitors (
		id               TEXT PRIMARY KEY,
		owner_id         TEXT NOT NULL DEFAULT '',
		url              TEXT NOT NULL,
		interval_minutes INTEGER NOT NULL DEFAULT 5,
		status           TEXT NOT NULL DEFAULT 'UNKNOWN',
		response_time_ms BIGINT,
		last_checked     TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_monitors_last_checked ON monitors (last_checked);

	CREATE TABLE IF NOT EXISTS monitor_logs (
		seq              BIGSERIAL PRIMARY KEY,
		monitor_id       TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
		checked_at       TIMESTAMPTZ NOT NULL,
		status           TEXT NOT NULL,
		response_time_ms BIGINT NOT NULL,
		interval_minutes INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_monitor_logs_monitor_id_seq ON monitor_logs (monitor_id, seq);
	`
	_, err := s.db.Exec(ctx, schema)
	return err
}

// CreateMonitor implements the Storer interface.
func (s *PostgresStore) CreateMonitor(ctx context.Context, m *models.Monitor) error {
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
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING`
	tag, err := s.db.Exec(ctx, query, m.ID, m.OwnerID, m.URL, m.IntervalMinutes, string(m.Status), m.ResponseTimeMS, m.LastChecked, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

// GetMonitor implements the Storer interface.
func (s *PostgresStore) GetMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	m, err := s.LookupMonitor(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `SELECT checked_at, status, response_time_ms, interval_minutes FROM monitor_logs WHERE monitor_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitor logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.LogEntry
		var status string
		if err := rows.Scan(&e.Timestamp, &status, &e.ResponseTimeMS, &e.IntervalMinutes); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Status = models.Status(status)
		e.Timestamp = e.Timestamp.UTC()
		m.Logs = append(m.Logs, e)
	}
	return m, rows.Err()
}

// LookupMonitor implements the Storer interface.
func (s *PostgresStore) LookupMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	query := `SELECT id, owner_id, url, interval_minutes, status, response_time_ms, last_checked, created_at FROM monitors WHERE id = $1`
	m, err := scanMonitor(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor: %w", err)
	}
	return m, nil
}

// FindDue implements the MonitorStore interface.
func (s *PostgresStore) FindDue(ctx context.Context, now time.Time) ([]models.Monitor, error) {
	query := `
	SELECT id, owner_id, url, interval_minutes, status, response_time_ms, last_checked, created_at
	FROM monitors
	WHERE last_checked IS NULL OR (interval_minutes > 0 AND last_checked <= $1)
	ORDER BY created_at, id`
	rows, err := s.db.Query(ctx, query, now.Add(-models.MinCheckSpacing))
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

// AppendLog implements the MonitorStore interface.
func (s *PostgresStore) AppendLog(ctx context.Context, monitorID string, entry models.LogEntry) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM monitors WHERE id = $1)`, monitorID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to look up monitor: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return appendLogTx(ctx, tx, monitorID, entry)
	})
}

// UpdateSummary implements the MonitorStore interface.
func (s *PostgresStore) UpdateSummary(ctx context.Context, monitorID string, summary models.Summary) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return updateSummaryTx(ctx, tx, monitorID, summary)
	})
}

// RecordCheck implements the MonitorStore interface.
func (s *PostgresStore) RecordCheck(ctx context.Context, monitorID string, entry models.LogEntry, summary models.Summary) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		// the row lock taken by the UPDATE serializes concurrent writers for this monitor
		if err := updateSummaryTx(ctx, tx, monitorID, summary); err != nil {
			return err
		}
		return appendLogTx(ctx, tx, monitorID, entry)
	})
}

func appendLogTx(ctx context.Context, tx pgx.Tx, monitorID string, entry models.LogEntry) error {
	insert := `INSERT INTO monitor_logs (monitor_id, checked_at, status, response_time_ms, interval_minutes) VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.Exec(ctx, insert, monitorID, entry.Timestamp.UTC(), string(entry.Status), entry.ResponseTimeMS, entry.IntervalMinutes); err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}
	trim := `
	DELETE FROM monitor_logs
	WHERE monitor_id = $1
	  AND seq <= (SELECT seq FROM monitor_logs WHERE monitor_id = $1 ORDER BY seq DESC OFFSET $2 LIMIT 1)`
	if _, err := tx.Exec(ctx, trim, monitorID, models.MaxLogEntries); err != nil {
		return fmt.Errorf("failed to trim log: %w", err)
	}
	return nil
}

func updateSummaryTx(ctx context.Context, tx pgx.Tx, monitorID string, summary models.Summary) error {
	query := `UPDATE monitors SET status = $1, response_time_ms = $2, last_checked = $3 WHERE id = $4`
	tag, err := tx.Exec(ctx, query, string(summary.Status), summary.ResponseTimeMS, summary.LastChecked.UTC(), monitorID)
	if err != nil {
		return fmt.Errorf("failed to update monitor summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanMonitor(row pgx.Row) (*models.Monitor, error) {
	var m models.Monitor
	var status string
	if err := row.Scan(&m.ID, &m.OwnerID, &m.URL, &m.IntervalMinutes, &status, &m.ResponseTimeMS, &m.LastChecked, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Status = models.Status(status)
	m.CreatedAt = m.CreatedAt.UTC()
	if m.LastChecked != nil {
		lc := m.LastChecked.UTC()
		m.LastChecked = &lc
	}
	return &m, nil
}
