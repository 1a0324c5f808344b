package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver.

	"github.com/oshokin/sos-engine/internal/domain/alert"
)

const (
	createTableQuery = `
		CREATE TABLE IF NOT EXISTS sos_alerts (
			id         TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL,
			state      TEXT NOT NULL,
			trigger    TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			record     JSONB NOT NULL
		)`

	upsertQuery = `
		INSERT INTO sos_alerts (id, subject_id, state, trigger, created_at, updated_at, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at,
			record = EXCLUDED.record`

	selectQuery = `SELECT record FROM sos_alerts WHERE id = $1`

	countQuery = `SELECT COUNT(*) FROM sos_alerts WHERE state = $1`
)

// Archive stores terminal alerts in the sos_alerts table.
type Archive struct {
	db *sql.DB
}

// Open connects to the database and ensures the table exists.
func Open(ctx context.Context, dsn string) (*Archive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	archive := New(db)
	if err = archive.Migrate(ctx); err != nil {
		_ = db.Close()

		return nil, err
	}

	return archive, nil
}

// New wraps an existing connection pool.
func New(db *sql.DB) *Archive {
	return &Archive{db: db}
}

// Migrate creates the table when it is missing.
func (a *Archive) Migrate(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create alerts table: %w", err)
	}

	return nil
}

// Save upserts the alert record.
func (a *Archive) Save(ctx context.Context, rec *alert.Alert) error {
	record, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode alert %s: %w", rec.ID, err)
	}

	_, err = a.db.ExecContext(ctx, upsertQuery,
		rec.ID, rec.SubjectID, string(rec.State), string(rec.Trigger), rec.CreatedAt, rec.UpdatedAt, record)
	if err != nil {
		return fmt.Errorf("failed to archive alert %s: %w", rec.ID, err)
	}

	return nil
}

// Load returns the archived alert or alert.ErrNotFound.
func (a *Archive) Load(ctx context.Context, id string) (*alert.Alert, error) {
	var record []byte

	err := a.db.QueryRowContext(ctx, selectQuery, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, alert.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load alert %s: %w", id, err)
	}

	var rec alert.Alert
	if err = json.Unmarshal(record, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode alert %s: %w", id, err)
	}

	return &rec, nil
}

// CountByState returns how many archived alerts ended in the state.
func (a *Archive) CountByState(ctx context.Context, state alert.State) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, countQuery, string(state)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	return n, nil
}

// Close releases the connection pool.
func (a *Archive) Close() error {
	return a.db.Close()
}
