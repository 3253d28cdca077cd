// Package wxgrid maintains the world weather grid: a 46x73 lattice of
// open-meteo samples cached in SQLite and published as the worldwx/wx.txt
// artifact. A persisted cursor spreads the refresh across ticks at 50
// points per cycle, so a full sweep takes 67 runs (about eleven hours) and
// the daily request volume stays inside open-meteo's free budget.
package wxgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/propagation.report/internal/artifact"
	"github.com/banshee-data/propagation.report/internal/db"
	"github.com/banshee-data/propagation.report/internal/feeds"
	"github.com/banshee-data/propagation.report/internal/httputil"
	"github.com/banshee-data/propagation.report/internal/timeutil"
	"github.com/banshee-data/propagation.report/internal/units"
)

const feedName = "worldwx"

const (
	latStart, latEnd, latStep = -90, 90, 4
	lngStart, lngEnd, lngStep = -180, 180, 5

	// 46 latitudes by 73 longitudes.
	gridPoints = 3358

	// batchSize points are refreshed per tick, one upstream request each.
	batchSize = 50
)

const (
	openMeteoURL  = "https://api.open-meteo.com/v1/forecast"
	currentFields = "temperature_2m,relative_humidity_2m,wind_speed_10m,wind_direction_10m,pressure_msl,weather_code"
	fetchTimeout  = 30 * time.Second
)

const gridHeader = "#   lat     lng  temp,C     %hum    mps     dir    mmHg    Wx           TZ"

const gridRowFormat = "%7d %7d %7.1f %7.1f %7.1f %7.1f %7.1f %-12s %7d"

// Coord is one node of the weather grid.
type Coord struct {
	Lat int
	Lng int
}

// gridCoords enumerates the grid longitude-major, the order the artifact
// is written in.
func gridCoords() []Coord {
	coords := make([]Coord, 0, gridPoints)
	for lng := lngStart; lng <= lngEnd; lng += lngStep {
		for lat := latStart; lat <= latEnd; lat += latStep {
			coords = append(coords, Coord{Lat: lat, Lng: lng})
		}
	}
	return coords
}

// Worker refreshes one cursor window of the grid per tick and regenerates
// the artifact from the full cache afterwards, so readers always see a
// complete grid even while most nodes are still placeholders.
type Worker struct {
	HTTP  httputil.HTTPClient
	DB    *db.DB
	Store artifact.Store
	Clock timeutil.Clock
}

func NewWorker(h httputil.HTTPClient, database *db.DB, store artifact.Store, clock timeutil.Clock) *Worker {
	return &Worker{HTTP: h, DB: database, Store: store, Clock: clock}
}

func (w *Worker) Name() string { return feedName }

// Refresh fetches the next cursor window, folds it into the cache, and
// rewrites worldwx/wx.txt. A 429 leaves the cursor where it was so the
// same window is retried next cycle; any other fetch failure advances past
// the window and surfaces after the artifact is regenerated.
func (w *Worker) Refresh(ctx context.Context) error {
	coords := gridCoords()

	start, err := w.DB.GridCursor()
	if err != nil {
		return &feeds.FetchError{Feed: feedName, Kind: feeds.KindIO, Err: err}
	}
	if start >= len(coords) {
		start = 0
	}
	end := start + batchSize
	if end > len(coords) {
		end = len(coords)
	}

	points, fetchErr := w.fetchBatch(ctx, coords[start:end])
	if feeds.IsRateLimited(fetchErr) {
		if err := w.writeGrid(coords); err != nil {
			return err
		}
		return fetchErr
	}
	if fetchErr == nil && len(points) > 0 {
		if err := w.DB.UpsertWeatherPoints(points); err != nil {
			return &feeds.FetchError{Feed: feedName, Kind: feeds.KindIO, Err: err}
		}
	}

	next := end
	if next >= len(coords) {
		next = 0
	}
	if err := w.DB.SetGridCursor(next); err != nil {
		return &feeds.FetchError{Feed: feedName, Kind: feeds.KindIO, Err: err}
	}

	if err := w.writeGrid(coords); err != nil {
		return err
	}
	return fetchErr
}

type openMeteoCurrent struct {
	Temperature   *float64 `json:"temperature_2m"`
	Humidity      *float64 `json:"relative_humidity_2m"`
	WindSpeed     *float64 `json:"wind_speed_10m"`
	WindDirection *float64 `json:"wind_direction_10m"`
	PressureMSL   *float64 `json:"pressure_msl"`
	WeatherCode   *int     `json:"weather_code"`
}

type openMeteoResult struct {
	UTCOffsetSeconds *int64           `json:"utc_offset_seconds"`
	Current          openMeteoCurrent `json:"current"`
}

// fetchBatch issues one batched forecast request. open-meteo is not
// retried: a failed window is either retried next cycle (429) or picked up
// again when the cursor wraps.
func (w *Worker) fetchBatch(ctx context.Context, batch []Coord) ([]db.WeatherPoint, error) {
	lats := make([]string, len(batch))
	lngs := make([]string, len(batch))
	for i, c := range batch {
		lats[i] = strconv.Itoa(c.Lat)
		lngs[i] = strconv.Itoa(c.Lng)
	}
	params := url.Values{
		"latitude":  {strings.Join(lats, ",")},
		"longitude": {strings.Join(lngs, ",")},
		"current":   {currentFields},
		"timezone":  {"auto"},
	}

	reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, openMeteoURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &feeds.FetchError{Feed: feedName, Kind: feeds.KindIO, Err: err}
	}

	resp, err := w.HTTP.Do(req)
	if err != nil {
		kind := feeds.KindIO
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			kind = feeds.KindTimeout
		}
		return nil, &feeds.FetchError{Feed: feedName, Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &feeds.FetchError{Feed: feedName, Kind: feeds.KindHTTPStatus, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &feeds.FetchError{Feed: feedName, Kind: feeds.KindIO, Err: err}
	}

	results, err := decodeResults(body)
	if err != nil {
		return nil, &feeds.FetchError{Feed: feedName, Kind: feeds.KindParse, Err: err}
	}

	now := w.Clock.Now().Unix()
	points := make([]db.WeatherPoint, 0, len(results))
	for i, res := range results {
		if i >= len(batch) {
			break
		}
		points = append(points, res.toPoint(batch[i], now))
	}
	return points, nil
}

// decodeResults accepts both response shapes: a single-location object and
// the array a batched request normally returns.
func decodeResults(body []byte) ([]openMeteoResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var results []openMeteoResult
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return nil, err
		}
		return results, nil
	}
	var single openMeteoResult
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, err
	}
	return []openMeteoResult{single}, nil
}

func (r openMeteoResult) toPoint(c Coord, now int64) db.WeatherPoint {
	p := placeholder(c)
	p.UpdatedAt = now

	cur := r.Current
	if cur.Temperature != nil {
		p.TempC = *cur.Temperature
	}
	if cur.Humidity != nil {
		p.Humidity = *cur.Humidity
	}
	if cur.WindSpeed != nil {
		p.WindMps = units.KmhToMps(*cur.WindSpeed)
	}
	if cur.WindDirection != nil {
		p.WindDir = *cur.WindDirection
	}
	if cur.PressureMSL != nil {
		p.Pressure = *cur.PressureMSL
	}
	if cur.WeatherCode != nil {
		p.Condition = conditionForWMO(*cur.WeatherCode)
	}
	if r.UTCOffsetSeconds != nil {
		p.TZOffset = *r.UTCOffsetSeconds
	}
	return p
}

// placeholder is the zeroed sample emitted for grid nodes the cursor has
// not reached yet.
func placeholder(c Coord) db.WeatherPoint {
	return db.WeatherPoint{
		Lat:       c.Lat,
		Lng:       c.Lng,
		Humidity:  50,
		Pressure:  1013,
		Condition: "Clear",
		TZOffset:  units.LongitudeOffset(float64(c.Lng)),
	}
}

// conditionForWMO maps open-meteo WMO weather codes onto the four
// condition strings the desktop client knows.
func conditionForWMO(code int) string {
	switch code {
	case 0, 1:
		return "Clear"
	case 2, 3, 45, 48:
		return "Clouds"
	case 51, 53, 55, 56, 57, 61, 63, 65, 66, 67, 80, 81, 82, 95, 96, 99:
		return "Rain"
	case 71, 73, 75, 77, 85, 86:
		return "Snow"
	}
	return "Clear"
}

// writeGrid regenerates worldwx/wx.txt from the full cache. A blank line
// separates longitude columns; the client's parser depends on it.
func (w *Worker) writeGrid(coords []Coord) error {
	cache, err := w.DB.WeatherPoints()
	if err != nil {
		return &feeds.FetchError{Feed: feedName, Kind: feeds.KindIO, Err: err}
	}

	lines := make([]string, 0, len(coords)+(lngEnd-lngStart)/lngStep+1)
	lines = append(lines, gridHeader)
	currentLng := lngStart
	for _, c := range coords {
		point, ok := cache[[2]int{c.Lat, c.Lng}]
		if !ok {
			point = placeholder(c)
		}
		if c.Lng != currentLng {
			lines = append(lines, "")
			currentLng = c.Lng
		}
		lines = append(lines, fmt.Sprintf(gridRowFormat, point.Lat, point.Lng,
			point.TempC, point.Humidity, point.WindMps, point.WindDir,
			point.Pressure, point.Condition, point.TZOffset))
	}
	if err := w.Store.WriteLines(lines, "worldwx", "wx.txt"); err != nil {
		return &feeds.FetchError{Feed: feedName, Kind: feeds.KindIO, Err: err}
	}
	return nil
}
