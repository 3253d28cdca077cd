package wxgrid

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/propagation.report/internal/artifact"
	"github.com/banshee-data/propagation.report/internal/db"
	"github.com/banshee-data/propagation.report/internal/feeds"
	"github.com/banshee-data/propagation.report/internal/fsutil"
	"github.com/banshee-data/propagation.report/internal/httputil"
	"github.com/banshee-data/propagation.report/internal/timeutil"
)

var testNow = time.Date(2026, 2, 3, 12, 0, 30, 0, time.UTC)

func newTestWorker(t *testing.T) (*Worker, *httputil.MockHTTPClient) {
	t.Helper()

	database, err := db.OpenDB(t.TempDir() + "/state.db")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	migrations, err := db.MigrationsFS()
	require.NoError(t, err)
	require.NoError(t, database.MigrateUp(migrations))

	mock := httputil.NewMockHTTPClient()
	store := artifact.NewStore(fsutil.NewMemoryFileSystem(), "data/processed_data")
	return NewWorker(mock, database, store, timeutil.NewMockClock(testNow)), mock
}

// openMeteoBatchFixture builds an n-location response with identical
// current weather everywhere: 21.4 C, 64%, 9 km/h from due south, WMO 61
// (light rain), UTC+1.
func openMeteoBatchFixture(n int) string {
	const item = `{"utc_offset_seconds": 3600, "current": {"temperature_2m": 21.4, ` +
		`"relative_humidity_2m": 64, "wind_speed_10m": 9.0, "wind_direction_10m": 180, ` +
		`"pressure_msl": 1008.2, "weather_code": 61}}`
	items := make([]string, n)
	for i := range items {
		items[i] = item
	}
	return "[" + strings.Join(items, ",") + "]"
}

func gridLines(t *testing.T, store artifact.Store) []string {
	t.Helper()
	data, err := store.ReadFile("worldwx", "wx.txt")
	require.NoError(t, err)
	content := string(data)
	require.True(t, strings.HasSuffix(content, "\n"), "artifact must end with a newline")
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

func TestGridCoordsEnumeration(t *testing.T) {
	coords := gridCoords()

	require.Len(t, coords, 3358)
	assert.Equal(t, Coord{Lat: -90, Lng: -180}, coords[0])
	assert.Equal(t, Coord{Lat: -86, Lng: -180}, coords[1], "latitude varies fastest")
	assert.Equal(t, Coord{Lat: 90, Lng: -180}, coords[45])
	assert.Equal(t, Coord{Lat: -90, Lng: -175}, coords[46], "longitude advances after a full latitude sweep")
	assert.Equal(t, Coord{Lat: 90, Lng: 180}, coords[3357])
}

func TestRefreshWritesFullGridFromFirstTick(t *testing.T) {
	w, mock := newTestWorker(t)
	mock.AddResponse(200, openMeteoBatchFixture(50))

	require.NoError(t, w.Refresh(context.Background()))

	require.Equal(t, 1, mock.RequestCount())
	req := mock.GetRequest(0)
	assert.True(t, strings.HasPrefix(req.URL.String(), "https://api.open-meteo.com/v1/forecast?"))
	query := req.URL.Query()
	assert.Equal(t, "auto", query.Get("timezone"))
	assert.Equal(t, "temperature_2m,relative_humidity_2m,wind_speed_10m,wind_direction_10m,pressure_msl,weather_code",
		query.Get("current"))

	wantLats := make([]string, 50)
	wantLngs := make([]string, 50)
	for i, c := range gridCoords()[:50] {
		wantLats[i] = strconv.Itoa(c.Lat)
		wantLngs[i] = strconv.Itoa(c.Lng)
	}
	assert.Equal(t, strings.Join(wantLats, ","), query.Get("latitude"))
	assert.Equal(t, strings.Join(wantLngs, ","), query.Get("longitude"))

	lines := gridLines(t, w.Store)
	require.Len(t, lines, 3431, "header + 3358 rows + 72 longitude separators")
	assert.Equal(t, "#   lat     lng  temp,C     %hum    mps     dir    mmHg    Wx           TZ", lines[0])

	// Fetched node: 9 km/h converts to 2.5 m/s, code 61 is Rain.
	assert.Equal(t, "    -90    -180    21.4    64.0     2.5   180.0  1008.2 Rain            3600", lines[1])
	// Longitude change after the 46 rows of the -180 column.
	assert.Equal(t, "", lines[47])
	assert.Equal(t, "    -90    -175    21.4    64.0     2.5   180.0  1008.2 Rain            3600", lines[48])
	// First node past the 50-point window is still a placeholder.
	assert.Equal(t, "    -74    -175     0.0    50.0     0.0     0.0  1013.0 Clear         -43200", lines[52])
	// Last node of the grid, untouched placeholder with the naive timezone.
	assert.Equal(t, "     90     180     0.0    50.0     0.0     0.0  1013.0 Clear          43200", lines[3430])

	blanks := 0
	for _, line := range lines {
		if line == "" {
			blanks++
		}
	}
	assert.Equal(t, 72, blanks)

	cursor, err := w.DB.GridCursor()
	require.NoError(t, err)
	assert.Equal(t, 50, cursor)

	points, err := w.DB.WeatherPoints()
	require.NoError(t, err)
	require.Len(t, points, 50)
	got := points[[2]int{-90, -180}]
	assert.Equal(t, 21.4, got.TempC)
	assert.Equal(t, "Rain", got.Condition)
	assert.Equal(t, testNow.Unix(), got.UpdatedAt)
}

func TestRefreshRateLimitKeepsCursor(t *testing.T) {
	w, mock := newTestWorker(t)
	require.NoError(t, w.DB.SetGridCursor(100))
	mock.AddResponse(429, "Too Many Requests")

	err := w.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, feeds.IsRateLimited(err))

	cursor, dbErr := w.DB.GridCursor()
	require.NoError(t, dbErr)
	assert.Equal(t, 100, cursor, "rate-limited window is retried next cycle")

	points, dbErr := w.DB.WeatherPoints()
	require.NoError(t, dbErr)
	assert.Empty(t, points)

	// The artifact is still regenerated, placeholders and all.
	lines := gridLines(t, w.Store)
	assert.Len(t, lines, 3431)
}

func TestRefreshAdvancesPastFailedWindow(t *testing.T) {
	w, mock := newTestWorker(t)
	mock.AddResponse(500, "upstream broken")

	err := w.Refresh(context.Background())
	require.Error(t, err)
	var fe *feeds.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, feeds.KindHTTPStatus, fe.Kind)
	assert.Equal(t, 500, fe.Status)

	cursor, dbErr := w.DB.GridCursor()
	require.NoError(t, dbErr)
	assert.Equal(t, 50, cursor, "non-429 failures skip the window until the cursor wraps")

	lines := gridLines(t, w.Store)
	assert.Len(t, lines, 3431)
}

func TestRefreshWrapsCursorAtGridEnd(t *testing.T) {
	w, mock := newTestWorker(t)
	require.NoError(t, w.DB.SetGridCursor(3350))
	mock.AddResponse(200, openMeteoBatchFixture(8))

	require.NoError(t, w.Refresh(context.Background()))

	req := mock.GetRequest(0)
	assert.Equal(t, "62,66,70,74,78,82,86,90", req.URL.Query().Get("latitude"))
	assert.Equal(t, "180,180,180,180,180,180,180,180", req.URL.Query().Get("longitude"))

	cursor, err := w.DB.GridCursor()
	require.NoError(t, err)
	assert.Equal(t, 0, cursor)

	points, err := w.DB.WeatherPoints()
	require.NoError(t, err)
	assert.Len(t, points, 8)
}

func TestRefreshResetsOutOfRangeCursor(t *testing.T) {
	w, mock := newTestWorker(t)
	require.NoError(t, w.DB.SetGridCursor(9999))
	mock.AddResponse(200, openMeteoBatchFixture(50))

	require.NoError(t, w.Refresh(context.Background()))

	cursor, err := w.DB.GridCursor()
	require.NoError(t, err)
	assert.Equal(t, 50, cursor)
}

func TestRefreshAcceptsSingleLocationResponse(t *testing.T) {
	w, mock := newTestWorker(t)
	require.NoError(t, w.DB.SetGridCursor(3357))
	mock.AddResponse(200, `{"current": {"temperature_2m": 5.0}}`)

	require.NoError(t, w.Refresh(context.Background()))

	points, err := w.DB.WeatherPoints()
	require.NoError(t, err)
	require.Len(t, points, 1)

	got, ok := points[[2]int{90, 180}]
	require.True(t, ok)
	assert.Equal(t, 5.0, got.TempC)
	assert.Equal(t, 50.0, got.Humidity, "missing humidity defaults")
	assert.Equal(t, 0.0, got.WindMps)
	assert.Equal(t, 1013.0, got.Pressure)
	assert.Equal(t, "Clear", got.Condition)
	assert.Equal(t, int64(43200), got.TZOffset, "missing offset falls back to longitude")

	cursor, err := w.DB.GridCursor()
	require.NoError(t, err)
	assert.Equal(t, 0, cursor)
}

func TestRefreshFailsOnMalformedBody(t *testing.T) {
	w, mock := newTestWorker(t)
	mock.AddResponse(200, "<html>not json</html>")

	err := w.Refresh(context.Background())
	require.Error(t, err)
	var fe *feeds.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, feeds.KindParse, fe.Kind)

	// A parse failure is treated like any non-429 failure.
	cursor, dbErr := w.DB.GridCursor()
	require.NoError(t, dbErr)
	assert.Equal(t, 50, cursor)
}

func TestRefreshConnectionErrorSurfaces(t *testing.T) {
	w, mock := newTestWorker(t)
	mock.AddErrorResponse(errors.New("connection refused"))

	err := w.Refresh(context.Background())
	require.Error(t, err)
	var fe *feeds.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, feeds.KindIO, fe.Kind)
}

func TestConditionForWMO(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "Clear"},
		{1, "Clear"},
		{2, "Clouds"},
		{45, "Clouds"},
		{48, "Clouds"},
		{51, "Rain"},
		{61, "Rain"},
		{82, "Rain"},
		{95, "Rain"},
		{99, "Rain"},
		{71, "Snow"},
		{77, "Snow"},
		{86, "Snow"},
		{42, "Clear"}, // unknown codes read as clear sky
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, conditionForWMO(tt.code), "code %d", tt.code)
	}
}
