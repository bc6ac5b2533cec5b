package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/basicio/internal/ir"
)

// ErrRunNotFound is returned by LoadReport for an unknown batch id.
var ErrRunNotFound = errors.New("import run not found")

// RunSummary is one row of the import run log.
type RunSummary struct {
	Seq         int64           `json:"seq"`
	BatchID     string          `json:"batch_id"`
	BatchDigest string          `json:"batch_digest"`
	Outcome     ir.BatchOutcome `json:"outcome"`
	Counts      ir.Counts       `json:"counts"`
}

// SaveReport appends a report to the run log.
// Uses ON CONFLICT(batch_id) DO NOTHING for idempotency - saving the same
// batch twice keeps the first report.
func (s *Store) SaveReport(ctx context.Context, r *ir.Report) error {
	reportJSON, err := marshalReport(r)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO import_runs
		(batch_id, batch_digest, outcome, attempted, succeeded, failed, skipped, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(batch_id) DO NOTHING
	`,
		r.BatchID,
		r.BatchDigest,
		string(r.Outcome),
		r.Counts.Attempted,
		r.Counts.Succeeded,
		r.Counts.Failed,
		r.Counts.Skipped,
		reportJSON,
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// LoadReport retrieves the report of one batch.
// Returns an error wrapping ErrRunNotFound if the batch id is unknown.
func (s *Store) LoadReport(ctx context.Context, batchID string) (*ir.Report, error) {
	var reportJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT report FROM import_runs WHERE batch_id = ?
	`, batchID).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %s: %w", batchID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	return unmarshalReport(reportJSON)
}

// ListReports returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListReports(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, batch_id, batch_digest, outcome, attempted, succeeded, failed, skipped
		FROM import_runs
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return scanRuns(rows)
}

// RunsByDigest returns earlier runs of a batch with the same content digest,
// oldest first.
func (s *Store) RunsByDigest(ctx context.Context, digest string) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, batch_id, batch_digest, outcome, attempted, succeeded, failed, skipped
		FROM import_runs
		WHERE batch_digest = ?
		ORDER BY seq ASC
	`, digest)
	if err != nil {
		return nil, fmt.Errorf("query runs by digest: %w", err)
	}
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]RunSummary, error) {
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var (
			run     RunSummary
			outcome string
		)
		if err := rows.Scan(
			&run.Seq,
			&run.BatchID,
			&run.BatchDigest,
			&outcome,
			&run.Counts.Attempted,
			&run.Counts.Succeeded,
			&run.Counts.Failed,
			&run.Counts.Skipped,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Outcome = ir.BatchOutcome(outcome)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
