package feeds

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const auroraFixture = `{
  "Observation Time": "2026-02-03T11:40:00Z",
  "Forecast Time": "2026-02-03T11:45:00Z",
  "coordinates": [[0, 0, 10], [120, 45, 42], [359, 89, 7]]
}`

var auroraForecastAt = time.Date(2026, 2, 3, 11, 45, 0, 0, time.UTC)

func TestAuroraBackfillsShortHistory(t *testing.T) {
	c, mock, _ := newTestClient(t)
	oldest := auroraForecastAt.Add(-45 * time.Minute).Unix()
	seed := fmt.Sprintf("%d 30\n%d 35\n", oldest, auroraForecastAt.Add(-15*time.Minute).Unix())
	require.NoError(t, c.Store.WriteFile([]byte(seed), "aurora", "aurora.txt"))
	mock.AddResponse(200, auroraFixture)

	require.NoError(t, NewAurora(c).Refresh(context.Background()))

	rows := storeLines(t, c.Store, "aurora", "aurora.txt")
	require.Len(t, rows, auroraMinRows)
	// Seven synthetic zero rows stretch back from the oldest real sample.
	assert.Equal(t, fmt.Sprintf("%d 0", oldest-7*auroraBackfil), rows[0])
	assert.Equal(t, fmt.Sprintf("%d 0", oldest-auroraBackfil), rows[6])
	assert.Equal(t, fmt.Sprintf("%d 30", oldest), rows[7])
	assert.Equal(t, fmt.Sprintf("%d 42", auroraForecastAt.Unix()), rows[9])
}

func TestAuroraKeepsRollingWindow(t *testing.T) {
	c, mock, _ := newTestClient(t)
	var seed strings.Builder
	for i := 0; i < auroraWindow; i++ {
		fmt.Fprintf(&seed, "%d 5\n", auroraForecastAt.Add(-time.Duration(auroraWindow-i)*30*time.Minute).Unix())
	}
	require.NoError(t, c.Store.WriteFile([]byte(seed.String()), "aurora", "aurora.txt"))
	mock.AddResponse(200, auroraFixture)

	require.NoError(t, NewAurora(c).Refresh(context.Background()))

	rows := storeLines(t, c.Store, "aurora", "aurora.txt")
	require.Len(t, rows, auroraWindow)
	// The oldest seeded sample falls off the window.
	assert.Equal(t, fmt.Sprintf("%d 5", auroraForecastAt.Add(-47*30*time.Minute).Unix()), rows[0])
	assert.Equal(t, fmt.Sprintf("%d 42", auroraForecastAt.Unix()), rows[47])
}

func TestAuroraFallsBackToClockTime(t *testing.T) {
	c, mock, _ := newTestClient(t)
	mock.AddResponse(200, `{"coordinates": []}`)

	require.NoError(t, NewAurora(c).Refresh(context.Background()))

	rows := storeLines(t, c.Store, "aurora", "aurora.txt")
	require.Len(t, rows, auroraMinRows)
	assert.Equal(t, fmt.Sprintf("%d 0", testNow.Unix()), rows[9])
}
