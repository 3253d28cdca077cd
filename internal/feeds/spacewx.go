package feeds

import (
	"strconv"
	"strings"

	"github.com/banshee-data/propagation.report/internal/artifact"
	"github.com/banshee-data/propagation.report/internal/prop"
)

// Snapshot reads the engine's space-weather inputs from the artifact tree:
// the newest sunspot number, the most recent observed K index, and the
// latest interplanetary-field and solar-wind rows. Missing or unreadable
// artifacts leave the neutral defaults in place, so a cold data directory
// still renders maps.
func Snapshot(store artifact.Store) prop.SpaceWX {
	wx := prop.NeutralSpaceWX()

	if rows := artifactRows(store, "ssn", "ssn-31.txt"); len(rows) > 0 {
		fields := strings.Fields(rows[len(rows)-1])
		if len(fields) >= 4 {
			if v, err := strconv.ParseFloat(fields[3], 64); err == nil {
				wx.SSN = v
			}
		}
	}

	if rows := artifactRows(store, "geomag", "kindex.txt"); len(rows) > 0 {
		// Row 56 is the last observed value; anything after is forecast.
		row := rows[len(rows)-1]
		if len(rows) >= kObservedWindow {
			row = rows[kObservedWindow-1]
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(row), 64); err == nil {
			wx.Kp = v
		}
	}

	if rows := artifactRows(store, "Bz", "Bz.txt"); len(rows) > 0 {
		fields := strings.Fields(rows[len(rows)-1])
		if len(fields) >= 4 {
			if v, err := strconv.ParseFloat(fields[3], 64); err == nil {
				wx.Bz = v
			}
		}
	}

	if rows := artifactRows(store, "solar-wind", "swind-24hr.txt"); len(rows) > 0 {
		fields := strings.Fields(rows[len(rows)-1])
		if len(fields) >= 3 {
			if v, err := strconv.ParseFloat(fields[2], 64); err == nil {
				wx.WindSpeed = v
			}
		}
	}

	return wx
}

// artifactRows returns the file's non-empty, non-comment lines, or nil when
// it cannot be read.
func artifactRows(store artifact.Store, parts ...string) []string {
	data, err := store.ReadFile(parts...)
	if err != nil {
		return nil
	}
	var rows []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rows = append(rows, line)
	}
	return rows
}
