package feeds

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contestsFixture = `<?xml version="1.0" encoding="ISO-8859-1"?>
<rss version="2.0">
<channel>
<title>Contest Calendar</title>
<item>
<title>CQ WPX RTTY</title>
<link>https://www.contestcalendar.com/contestdetails.php?ref=123</link>
<description>1200Z, Feb 7 to 2400Z, Feb 8, 2026</description>
</item>
<item>
<title>Phone Sprint</title>
<link>https://www.contestcalendar.com/contestdetails.php?ref=124</link>
<description>0000Z-0400Z, Feb 4</description>
</item>
<item>
<title>January Classic</title>
<link>https://www.contestcalendar.com/contestdetails.php?ref=125</link>
<description>1200Z, Jan 10 to 2400Z, Jan 11</description>
</item>
<item>
<title>Spring Preview</title>
<link>https://www.contestcalendar.com/contestdetails.php?ref=126</link>
<description>1200Z, Feb 20 to 2400Z, Feb 21</description>
</item>
<item>
<title>Winter Activity</title>
<link>https://www.contestcalendar.com/contestdetails.php?ref=127</link>
<description>Runs 0900Z on Feb 5 and ends 1700Z on Feb 6</description>
</item>
<item>
<title></title>
<link>https://www.contestcalendar.com/contestdetails.php?ref=128</link>
<description>1200Z, Feb 7 to 2400Z, Feb 8</description>
</item>
</channel>
</rss>`

func contestStamp(month time.Month, day, hour, min, sec int) int64 {
	return time.Date(2026, month, day, hour, min, sec, 0, time.UTC).Unix()
}

func TestContestsFiltersAndSortsCalendar(t *testing.T) {
	c, mock, _ := newTestClient(t)
	mock.AddResponse(200, contestsFixture)

	require.NoError(t, NewContests(c).Refresh(context.Background()))

	rows := storeLines(t, c.Store, "contests", "contests311.txt")
	require.Len(t, rows, 7)
	assert.Equal(t, contestsHeader, rows[0])
	// Finished and beyond-horizon contests drop; the rest sort by start.
	assert.Equal(t, fmt.Sprintf("%d %d Phone Sprint",
		contestStamp(time.February, 4, 0, 0, 0), contestStamp(time.February, 4, 4, 0, 0)), rows[1])
	assert.Equal(t, "https://www.contestcalendar.com/contestdetails.php?ref=124", rows[2])
	assert.Equal(t, fmt.Sprintf("%d %d Winter Activity",
		contestStamp(time.February, 5, 9, 0, 0), contestStamp(time.February, 6, 17, 0, 0)), rows[3])
	assert.Equal(t, "https://www.contestcalendar.com/contestdetails.php?ref=127", rows[4])
	// A 2400Z end means the last second of that day.
	assert.Equal(t, fmt.Sprintf("%d %d CQ WPX RTTY",
		contestStamp(time.February, 7, 12, 0, 0), contestStamp(time.February, 8, 23, 59, 59)), rows[5])
	assert.Equal(t, "https://www.contestcalendar.com/contestdetails.php?ref=123", rows[6])
}

func TestContestsSeedsHeaderOnlyFileOnFirstFailure(t *testing.T) {
	c, mock, _ := newTestClient(t)
	mock.AddResponse(503, "down")

	err := NewContests(c).Refresh(context.Background())

	var fe *FetchError
	require.ErrorAs(t, err, &fe)

	rows := storeLines(t, c.Store, "contests", "contests311.txt")
	assert.Equal(t, []string{contestsHeader}, rows)
}

func TestContestsPreservesExistingFileOnFailure(t *testing.T) {
	c, mock, _ := newTestClient(t)
	seed := contestsHeader + "\n1 2 Old Contest\nhttp://example.net\n"
	require.NoError(t, c.Store.WriteFile([]byte(seed), "contests", "contests311.txt"))
	mock.AddResponse(503, "down")

	err := NewContests(c).Refresh(context.Background())

	require.Error(t, err)
	data, readErr := c.Store.ReadFile("contests", "contests311.txt")
	require.NoError(t, readErr)
	assert.Equal(t, seed, string(data))
}
