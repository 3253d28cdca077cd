package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// WeatherPoint is one cached sample of the 5x4 degree world weather grid.
// Lat and Lng identify the grid node; the remaining fields mirror the
// columns of the wx.txt artifact.
type WeatherPoint struct {
	Lat       int
	Lng       int
	TempC     float64
	Humidity  float64
	WindMps   float64
	WindDir   float64
	Pressure  float64
	Condition string
	TZOffset  int64
	UpdatedAt int64
}

// UpsertWeatherPoints writes a batch of grid samples in a single
// transaction, replacing any existing sample for the same node.
func (db *DB) UpsertWeatherPoints(points []WeatherPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin weather upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO weather_points
			(lat, lng, temp_c, humidity, wind_mps, wind_dir, pressure, condition, tz_offset, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (lat, lng) DO UPDATE SET
			temp_c = excluded.temp_c,
			humidity = excluded.humidity,
			wind_mps = excluded.wind_mps,
			wind_dir = excluded.wind_dir,
			pressure = excluded.pressure,
			condition = excluded.condition,
			tz_offset = excluded.tz_offset,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare weather upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.Exec(p.Lat, p.Lng, p.TempC, p.Humidity, p.WindMps,
			p.WindDir, p.Pressure, p.Condition, p.TZOffset, p.UpdatedAt); err != nil {
			return fmt.Errorf("upsert weather point (%d,%d): %w", p.Lat, p.Lng, err)
		}
	}
	return tx.Commit()
}

// WeatherPoints returns every cached grid sample keyed by [lat, lng].
func (db *DB) WeatherPoints() (map[[2]int]WeatherPoint, error) {
	rows, err := db.Query(`
		SELECT lat, lng, temp_c, humidity, wind_mps, wind_dir, pressure, condition, tz_offset, updated_at
		FROM weather_points`)
	if err != nil {
		return nil, fmt.Errorf("query weather points: %w", err)
	}
	defer rows.Close()

	points := make(map[[2]int]WeatherPoint)
	for rows.Next() {
		var p WeatherPoint
		if err := rows.Scan(&p.Lat, &p.Lng, &p.TempC, &p.Humidity, &p.WindMps,
			&p.WindDir, &p.Pressure, &p.Condition, &p.TZOffset, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan weather point: %w", err)
		}
		points[[2]int{p.Lat, p.Lng}] = p
	}
	return points, rows.Err()
}

// GridCursor returns the index of the next grid node to refresh. A fresh
// database starts at 0.
func (db *DB) GridCursor() (int, error) {
	var idx int
	err := db.QueryRow(`SELECT next_idx FROM grid_cursor WHERE id = 0`).Scan(&idx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read grid cursor: %w", err)
	}
	return idx, nil
}

// SetGridCursor persists the index of the next grid node to refresh.
func (db *DB) SetGridCursor(idx int) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO grid_cursor (id, next_idx) VALUES (0, ?)`, idx)
	if err != nil {
		return fmt.Errorf("write grid cursor: %w", err)
	}
	return nil
}

// WeatherSummary aggregates the cached grid for the status page.
type WeatherSummary struct {
	Points         int
	MinTempC       float64
	MaxTempC       float64
	AvgTempC       float64
	ModalCondition string
}

// SummarizeWeather reports how much of the grid is populated and the
// temperature spread across it. An empty cache reports zero points and a
// Clear modal condition.
func (db *DB) SummarizeWeather() (WeatherSummary, error) {
	summary := WeatherSummary{ModalCondition: "Clear"}

	var minT, maxT, avgT sql.NullFloat64
	err := db.QueryRow(`
		SELECT COUNT(*), MIN(temp_c), MAX(temp_c), AVG(temp_c)
		FROM weather_points`).Scan(&summary.Points, &minT, &maxT, &avgT)
	if err != nil {
		return summary, fmt.Errorf("summarize weather: %w", err)
	}
	if summary.Points == 0 {
		return summary, nil
	}
	summary.MinTempC = minT.Float64
	summary.MaxTempC = maxT.Float64
	summary.AvgTempC = avgT.Float64

	err = db.QueryRow(`
		SELECT condition FROM weather_points
		GROUP BY condition ORDER BY COUNT(*) DESC, condition LIMIT 1`).
		Scan(&summary.ModalCondition)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return summary, fmt.Errorf("summarize weather conditions: %w", err)
	}
	return summary, nil
}
