package store

import (
	"database/sql"
	"time"
)

// IngestRun is the audit record of one pipeline invocation.
type IngestRun struct {
	ID                int64
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	SourceURL         string
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	Attempts          sql.NullInt64
	HoursParsed       sql.NullInt64
	DaysAggregated    sql.NullInt64
	OutputPath        sql.NullString
	Success           bool
	ErrorMessage      sql.NullString
}

// StartIngestRun creates a new ingest run record and returns it.
func (s *Store) StartIngestRun(sourceURL string) (*IngestRun, error) {
	run := &IngestRun{
		StartedAt: time.Now().UTC(),
		SourceURL: sourceURL,
	}

	result, err := s.db.Exec(`
		INSERT INTO ingest_runs (started_at, source_url, success)
		VALUES (?, ?, FALSE)
	`, run.StartedAt, run.SourceURL)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteIngestRun stamps the finish time and persists the run's results.
func (s *Store) CompleteIngestRun(run *IngestRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE ingest_runs SET
			finished_at = ?,
			http_status = ?,
			response_size_bytes = ?,
			attempts = ?,
			hours_parsed = ?,
			days_aggregated = ?,
			output_path = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HTTPStatus, run.ResponseSizeBytes, run.Attempts, run.HoursParsed,
		run.DaysAggregated, run.OutputPath, run.Success, run.ErrorMessage, run.ID)
	return err
}

// GetRecentIngestRuns returns the most recent runs, newest first.
func (s *Store) GetRecentIngestRuns(limit int) ([]IngestRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, source_url, http_status, response_size_bytes,
		       attempts, hours_parsed, days_aggregated, output_path, success, error_message
		FROM ingest_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.SourceURL, &r.HTTPStatus,
			&r.ResponseSizeBytes, &r.Attempts, &r.HoursParsed, &r.DaysAggregated, &r.OutputPath,
			&r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
