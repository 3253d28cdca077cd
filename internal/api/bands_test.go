package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bandLines(t *testing.T, ts *testServer, target string) []string {
	t.Helper()
	rec := ts.get(t, target)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.HasSuffix(body, "\n"), "band table ends with a newline")
	return strings.Split(strings.TrimSuffix(body, "\n"), "\n")
}

func TestBandConditionsTableShape(t *testing.T) {
	ts := newTestServer(t)
	lines := bandLines(t, ts, "/fetchBandConditions.pl?TXLAT=45&TXLNG=-75&RXLAT=51&RXLNG=0")

	// One current-conditions row, one parameter header, hours 1..23, hour 0.
	require.Len(t, lines, 26)

	rels := strings.Split(lines[0], ",")
	require.Len(t, rels, 9, "one reliability per band")
	for _, cell := range rels {
		v, err := strconv.ParseFloat(cell, 64)
		require.NoError(t, err, cell)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
		assert.Regexp(t, `^\d\.\d\d$`, cell)
	}

	// Defaults: 100 watts, CW, takeoff 3, short path, neutral solar flux.
	assert.Equal(t, "100W,CW,TOA>3,SP,S=70", lines[1])

	for h := 1; h <= 23; h++ {
		assert.True(t, strings.HasPrefix(lines[h+1], fmt.Sprintf("%d ", h)), lines[h+1])
	}
	assert.True(t, strings.HasPrefix(lines[25], "0 "), lines[25])

	// The first row is the current hour, so it must reappear verbatim in
	// the hourly forecast. The test clock reads 12:00 UTC.
	assert.Equal(t, "12 "+lines[0], lines[13])
}

func TestBandConditionsHonorsUTCOverride(t *testing.T) {
	ts := newTestServer(t)
	lines := bandLines(t, ts, "/fetchBandConditions.pl?TXLAT=45&TXLNG=-75&RXLAT=51&RXLNG=0&UTC=5")
	require.Len(t, lines, 26)
	assert.Equal(t, "5 "+lines[0], lines[6])
}

func TestBandConditionsHeaderEcho(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{"MODE=19", "100W,FT8,TOA>3,SP,S=70"},
		{"MODE=38", "100W,SSB,TOA>3,SP,S=70"},
		{"MODE=40", "100W,LSB,TOA>3,SP,S=70"},
		{"MODE=77", "100W,77,TOA>3,SP,S=70"},
		{"POW=500", "500W,CW,TOA>3,SP,S=70"},
		{"POWER=25", "25W,CW,TOA>3,SP,S=70"},
		{"PATH=1", "100W,CW,TOA>3,LP,S=70"},
		{"TOA=2.5", "100W,CW,TOA>2.5,SP,S=70"},
		{"TOA=4.0", "100W,CW,TOA>4,SP,S=70"},
		{"TOA=junk", "100W,CW,TOA>junk,SP,S=70"},
	}
	ts := newTestServer(t)
	for _, c := range cases {
		lines := bandLines(t, ts, "/fetchBandConditions.pl?TXLAT=45&TXLNG=-75&RXLAT=51&RXLNG=0&"+c.query)
		require.Len(t, lines, 26, c.query)
		assert.Equal(t, c.want, lines[1], c.query)
	}
}

func TestBandConditionsReadsSpaceWeatherArtifacts(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.WriteFile(
		[]byte("2026 02 02 130\n2026 02 03 137.5\n"), "ssn", "ssn-31.txt"))

	lines := bandLines(t, ts, "/fetchBandConditions.pl?TXLAT=45&TXLNG=-75&RXLAT=51&RXLNG=0")
	assert.Equal(t, "100W,CW,TOA>3,SP,S=137", lines[1])
}

func TestBandConditionsRejectsBadParams(t *testing.T) {
	cases := []string{
		"/fetchBandConditions.pl?TXLAT=999",
		"/fetchBandConditions.pl?RXLNG=victor",
		"/fetchBandConditions.pl?UTC=30",
		"/fetchBandConditions.pl?UTC=abc",
		"/fetchBandConditions.pl?TOA=95",
	}
	ts := newTestServer(t)
	for _, target := range cases {
		rec := ts.get(t, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}
