package db

import "fmt"

// ParitySample records one shadow comparison between a locally served
// response and the upstream server's response for the same request.
type ParitySample struct {
	Path           string
	SampledAt      int64
	LocalStatus    int
	UpstreamStatus int
	Matched        bool
	Detail         string
}

// ParityPathStat aggregates parity samples for one request path.
type ParityPathStat struct {
	Path    string
	Samples int
	Matches int
}

// RecordParitySample appends one shadow comparison result.
func (db *DB) RecordParitySample(s ParitySample) error {
	_, err := db.Exec(`
		INSERT INTO parity_samples (path, sampled_at, local_status, upstream_status, matched, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.Path, s.SampledAt, s.LocalStatus, s.UpstreamStatus, s.Matched, s.Detail)
	if err != nil {
		return fmt.Errorf("record parity sample for %s: %w", s.Path, err)
	}
	return nil
}

// ParitySamples returns the most recent comparisons, newest first.
func (db *DB) ParitySamples(limit int) ([]ParitySample, error) {
	rows, err := db.Query(`
		SELECT path, sampled_at, local_status, upstream_status, matched, detail
		FROM parity_samples
		ORDER BY sampled_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query parity samples: %w", err)
	}
	defer rows.Close()

	var samples []ParitySample
	for rows.Next() {
		var s ParitySample
		if err := rows.Scan(&s.Path, &s.SampledAt, &s.LocalStatus,
			&s.UpstreamStatus, &s.Matched, &s.Detail); err != nil {
			return nil, fmt.Errorf("scan parity sample: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// ParityByPath aggregates match rates per request path, most sampled first.
func (db *DB) ParityByPath() ([]ParityPathStat, error) {
	rows, err := db.Query(`
		SELECT path, COUNT(*), SUM(matched)
		FROM parity_samples
		GROUP BY path
		ORDER BY COUNT(*) DESC, path`)
	if err != nil {
		return nil, fmt.Errorf("aggregate parity samples: %w", err)
	}
	defer rows.Close()

	var stats []ParityPathStat
	for rows.Next() {
		var s ParityPathStat
		if err := rows.Scan(&s.Path, &s.Samples, &s.Matches); err != nil {
			return nil, fmt.Errorf("scan parity stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
