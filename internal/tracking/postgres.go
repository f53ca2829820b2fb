package tracking

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const backendPostgres = "postgres"

// Schema creates the protest_runs table used by PostgresReporter.
const Schema = `CREATE TABLE IF NOT EXISTS protest_runs (
	tracking_id   TEXT PRIMARY KEY,
	request_id    TEXT NOT NULL,
	business_name TEXT NOT NULL,
	ein           TEXT NOT NULL,
	location      TEXT NOT NULL DEFAULT '',
	time_period   TEXT NOT NULL,
	status        TEXT NOT NULL,
	letter_path   TEXT NOT NULL DEFAULT '',
	archive_path  TEXT NOT NULL DEFAULT '',
	folder_link   TEXT NOT NULL DEFAULT '',
	letter_link   TEXT NOT NULL DEFAULT '',
	archive_link  TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresReporter upserts reports into a protest_runs table keyed by tracking ID.
type PostgresReporter struct {
	pool *pgxpool.Pool
}

// ConnectPostgres establishes a connection pool and ensures the table exists.
func ConnectPostgres(ctx context.Context, databaseURL string) (*PostgresReporter, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create protest_runs table: %w", err)
	}

	return &PostgresReporter{pool: pool}, nil
}

// Close closes the connection pool.
func (p *PostgresReporter) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// Report inserts or updates the row for r.TrackingID.
func (p *PostgresReporter) Report(ctx context.Context, r Report) error {
	if r.TrackingID == "" {
		return &Error{Backend: backendPostgres, Message: "tracking ID is required"}
	}

	var folder, letter, archive string
	if r.Links != nil {
		folder, letter, archive = r.Links.FolderLink, r.Links.LetterLink, r.Links.ArchiveLink
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO protest_runs (tracking_id, request_id, business_name, ein, location, time_period,
			status, letter_path, archive_path, folder_link, letter_link, archive_link, error, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (tracking_id) DO UPDATE SET
			request_id = $2, status = $7, letter_path = $8, archive_path = $9,
			folder_link = $10, letter_link = $11, archive_link = $12, error = $13, updated_at = $14`,
		r.TrackingID, r.RequestID, r.Profile.Name, r.Profile.TaxID, r.Profile.Location, r.Profile.Period,
		r.Status, r.LetterPath, r.ArchivePath, folder, letter, archive, r.Error, timestamp(r.Timestamp),
	)
	if err != nil {
		return &Error{Backend: backendPostgres, TrackingID: r.TrackingID, Message: "failed to upsert run", Cause: err}
	}
	return nil
}

// Status returns the stored status for a tracking ID.
func (p *PostgresReporter) Status(ctx context.Context, trackingID string) (string, error) {
	var status string
	err := p.pool.QueryRow(ctx,
		`SELECT status FROM protest_runs WHERE tracking_id = $1`, trackingID,
	).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("failed to get run status: %w", err)
	}
	return status, nil
}
