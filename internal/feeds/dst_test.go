package feeds

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dstFixture carries two daily records in the WDC fixed-column layout plus
// header noise. Hour 2 of the second day is the 9999 missing sentinel.
func dstFixture() string {
	day2 := "DST2602*02RRX0200000" + strings.Repeat("  -1", 24)
	day3 := "DST2602*03RRX0200000" + "  -5" + " -12" + "9999" + strings.Repeat("   0", 20) + " -30"
	return "Unit: nT\n" + day2 + "\n" + day3 + "\nDST too short\n"
}

func TestDSTParsesFixedColumns(t *testing.T) {
	c, mock, _ := newTestClient(t)
	mock.AddResponse(200, dstFixture())

	require.NoError(t, NewDST(c).Refresh(context.Background()))

	assert.Contains(t, mock.GetRequest(0).URL.String(), "/presentmonth/dst2602.for.request")

	rows := storeLines(t, c.Store, "dst", "dst.txt")
	require.Len(t, rows, dstWindow)
	// 24 + 23 parsed values trim to the newest 24.
	assert.Equal(t, "2026-02-02T23:00:00 -1", rows[0])
	assert.Equal(t, "2026-02-03T00:00:00 -5", rows[1])
	assert.Equal(t, "2026-02-03T01:00:00 -12", rows[2])
	// Hour 2 was the missing sentinel, so hour 3 follows directly.
	assert.Equal(t, "2026-02-03T03:00:00 0", rows[3])
	assert.Equal(t, "2026-02-03T23:00:00 -30", rows[23])
}

func TestDSTTriesArchivePathAfterPresentMonth(t *testing.T) {
	c, mock, _ := newTestClient(t)
	mock.AddResponse(404, "not yet").AddResponse(200, dstFixture())

	require.NoError(t, NewDST(c).Refresh(context.Background()))

	require.Equal(t, 2, mock.RequestCount())
	assert.Contains(t, mock.GetRequest(1).URL.String(), "/202602/dst2602.for.request")
}

func TestDSTSeedsZeroedFileOnFirstFailure(t *testing.T) {
	c, mock, _ := newTestClient(t)
	mock.AddResponse(404, "gone").AddResponse(404, "gone")

	err := NewDST(c).Refresh(context.Background())

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 404, fe.Status)

	rows := storeLines(t, c.Store, "dst", "dst.txt")
	require.Len(t, rows, dstWindow)
	assert.Equal(t, "2026-02-02T13:00:00 0", rows[0])
	assert.Equal(t, "2026-02-03T12:00:00 0", rows[23])
}

func TestDSTPreservesExistingFileOnFailure(t *testing.T) {
	c, mock, _ := newTestClient(t)
	require.NoError(t, c.Store.WriteFile([]byte("2026-02-03T00:00:00 -7\n"), "dst", "dst.txt"))
	mock.AddResponse(404, "gone").AddResponse(404, "gone")

	err := NewDST(c).Refresh(context.Background())

	var fe *FetchError
	require.ErrorAs(t, err, &fe)

	data, readErr := c.Store.ReadFile("dst", "dst.txt")
	require.NoError(t, readErr)
	assert.Equal(t, "2026-02-03T00:00:00 -7\n", string(data))
}
