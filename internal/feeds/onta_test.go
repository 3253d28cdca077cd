package feeds

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sotaFixture = `[
  {"activatorCallsign": "G4OBK/P", "frequency": "14.0625", "timeStamp": "2026-02-03T11:50:00Z", "mode": "cw", "summitCode": "G/NP-004"},
  {"callsign": "DL1ABC", "frequency": 7.032, "timeStamp": "yesterday", "mode": "CW", "summitCode": "DM/BW-001"},
  {"callsign": "W1XYZ", "frequency": "10.118", "mode": "", "summitCode": ""}
]`

const potaFixture = `[
  {"activator": "K2P", "frequency": "14285", "spotTime": "2026-02-03T11:55:00", "mode": "SSB", "latitude": 40.7, "longitude": -74.0, "reference": "US-0001"}
]`

func TestONTAMergesSummitAndParkSpots(t *testing.T) {
	c, mock, _ := newTestClient(t)
	mock.AddResponse(200, sotaFixture).AddResponse(200, potaFixture)

	require.NoError(t, NewONTA(c).Refresh(context.Background()))

	// Both spot APIs reject the stock client agent.
	assert.Equal(t, browserUserAgent, mock.GetRequest(0).Header.Get("User-Agent"))

	rows := storeLines(t, c.Store, "ONTA", "onta.txt")
	require.Len(t, rows, 4)
	assert.Equal(t, ontaHeader, rows[0])
	// SOTA serves MHz and no coordinates; the bogus-timestamp spot is dropped.
	sotaAt := time.Date(2026, 2, 3, 11, 50, 0, 0, time.UTC).Unix()
	assert.Equal(t, fmt.Sprintf("G4OBK/P,14062500,%d,cw,,0.00000,0.00000,G/NP-004,SOTA", sotaAt), rows[1])
	assert.Equal(t, fmt.Sprintf("W1XYZ,10118000,%d,CW,,0.00000,0.00000,Unknown,SOTA", testNow.Unix()), rows[2])
	// POTA serves kHz.
	assert.Equal(t, fmt.Sprintf("K2P,14285000,%d,SSB,,40.70000,-74.00000,US-0001,POTA", sotaAt+300), rows[3])
}

func TestONTAKeepsGoingWhenOneSourceFails(t *testing.T) {
	c, mock, _ := newTestClient(t)
	mock.AddResponse(500, "down").AddResponse(200, potaFixture)

	require.NoError(t, NewONTA(c).Refresh(context.Background()))

	rows := storeLines(t, c.Store, "ONTA", "onta.txt")
	require.Len(t, rows, 2)
	assert.Equal(t, ontaHeader, rows[0])
	assert.Contains(t, rows[1], "K2P")
}

func TestONTAFailsWhenBothSourcesDown(t *testing.T) {
	c, mock, _ := newTestClient(t)
	require.NoError(t, c.Store.WriteFile([]byte("old\n"), "ONTA", "onta.txt"))
	mock.AddResponse(500, "down").AddResponse(500, "down")

	err := NewONTA(c).Refresh(context.Background())

	var fe *FetchError
	require.ErrorAs(t, err, &fe)

	data, readErr := c.Store.ReadFile("ONTA", "onta.txt")
	require.NoError(t, readErr)
	assert.Equal(t, "old\n", string(data))
}
