package db

import "fmt"

// FetchRun records one feed refresh attempt within a scheduler tick.
type FetchRun struct {
	TickID     string
	Feed       string
	StartedAt  int64
	DurationMs int64
	OK         bool
	Detail     string
}

// RecordFetchRun appends one refresh attempt to the fetch log.
func (db *DB) RecordFetchRun(run FetchRun) error {
	_, err := db.Exec(`
		INSERT INTO fetch_runs (tick_id, feed, started_at, duration_ms, ok, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.TickID, run.Feed, run.StartedAt, run.DurationMs, run.OK, run.Detail)
	if err != nil {
		return fmt.Errorf("record fetch run for %s: %w", run.Feed, err)
	}
	return nil
}

// RecentFetchRuns returns the most recent refresh attempts, newest first.
func (db *DB) RecentFetchRuns(limit int) ([]FetchRun, error) {
	rows, err := db.Query(`
		SELECT tick_id, feed, started_at, duration_ms, ok, detail
		FROM fetch_runs
		ORDER BY started_at DESC, feed
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query fetch runs: %w", err)
	}
	defer rows.Close()

	var runs []FetchRun
	for rows.Next() {
		var run FetchRun
		if err := rows.Scan(&run.TickID, &run.Feed, &run.StartedAt,
			&run.DurationMs, &run.OK, &run.Detail); err != nil {
			return nil, fmt.Errorf("scan fetch run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
