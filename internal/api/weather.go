package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/propagation.report/internal/monitoring"
	"github.com/banshee-data/propagation.report/internal/units"
)

const (
	wttrURL             = "https://wttr.in"
	openMeteoPointURL   = "https://api.open-meteo.com/v1/forecast"
	weatherFetchTimeout = 10 * time.Second
	weatherCacheSize    = 64
	weatherCacheTTL     = time.Hour
)

// weatherRequest is the validated query surface of /wx.pl.
type weatherRequest struct {
	Lat float64 `validate:"min=-90,max=90"`
	Lng float64 `validate:"min=-180,max=180"`
}

// wxKey keys one formatted report in the memoization cache; Bucket is
// the TTL window index.
type wxKey struct {
	Lat, Lng float64
	Bucket   int64
}

// observation is the normalized shape every weather source reduces to
// before formatting.
type observation struct {
	City        string
	TempC       float64
	PressureHPa float64
	Humidity    float64
	WindMps     float64
	WindDir     string
	Desc        string
}

// conditionNames maps raw provider descriptions to the short labels the
// client displays. Lookup happens on the capitalized form; misses fall
// through to keyword matching.
var conditionNames = map[string]string{
	"Clear":                       "Clear",
	"Sunny":                       "Sunny",
	"Partly cloudy":               "Partly Cloudy",
	"Cloudy":                      "Cloudy",
	"Overcast":                    "Overcast",
	"Mist":                        "Mist",
	"Fog":                         "Fog",
	"Light rain":                  "Light Rain",
	"Rain":                        "Rain",
	"Patchy rain intermediate":    "Rain",
	"Heavy rain":                  "Heavy Rain",
	"Light snow":                  "Light Snow",
	"Snow":                        "Snow",
	"Thundery outbreaks possible": "Thunder",
}

// handleWeather answers a point weather query through a three-tier
// ladder: wttr.in (memoized for an hour), then an open-meteo current
// lookup, then the nearest cached grid point. Only a fully exhausted
// ladder is an error.
func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := weatherRequest{}
	var err error
	if req.Lat, err = floatParam(q, "lat", 0); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Lng, err = floatParam(q, "lng", 0); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("bad weather query: %v", err))
		return
	}

	key := wxKey{
		Lat:    req.Lat,
		Lng:    req.Lng,
		Bucket: s.clock.Now().Unix() / int64(weatherCacheTTL/time.Second),
	}
	creq := s.wxCache.NewRequest(r.Context(), key,
		fmt.Sprintf("wx_%.4f_%.4f_%d", key.Lat, key.Lng, key.Bucket))
	if body, err := creq.Result(); err == nil {
		s.writeText(w, []byte(body.(string)))
		return
	} else {
		monitoring.Logf("api: wttr.in lookup failed for %.2f,%.2f: %v", req.Lat, req.Lng, err)
	}

	if body, err := s.openMeteoWeather(r.Context(), req.Lat, req.Lng); err == nil {
		s.writeText(w, []byte(body))
		return
	} else {
		monitoring.Logf("api: open-meteo fallback failed for %.2f,%.2f: %v", req.Lat, req.Lng, err)
	}

	if body, ok := s.gridWeather(req.Lat, req.Lng); ok {
		s.writeText(w, []byte(body))
		return
	}
	s.writeError(w, http.StatusInternalServerError, "weather lookup failed")
}

// wttr.in's j1 JSON wraps every scalar in a string and every object in a
// one-element array.
type wttrValue struct {
	Value string `json:"value"`
}

type wttrCondition struct {
	TempC         string      `json:"temp_C"`
	Pressure      string      `json:"pressure"`
	Humidity      string      `json:"humidity"`
	WindspeedKmph string      `json:"windspeedKmph"`
	Winddir16     string      `json:"winddir16Point"`
	WeatherDesc   []wttrValue `json:"weatherDesc"`
}

type wttrArea struct {
	AreaName []wttrValue `json:"areaName"`
}

type wttrReport struct {
	CurrentCondition []wttrCondition `json:"current_condition"`
	NearestArea      []wttrArea      `json:"nearest_area"`
}

// processWeather is the cache processor for the primary tier. Failures
// are not cached, so the handler's fallback ladder re-runs next request.
func (s *Server) processWeather(ctx context.Context, payload interface{}) (interface{}, error) {
	key := payload.(wxKey)

	ctx, cancel := context.WithTimeout(ctx, weatherFetchTimeout)
	defer cancel()
	url := fmt.Sprintf("%s/%v,%v?format=j1", wttrURL, key.Lat, key.Lng)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build weather request: %w", err)
	}
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch weather: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather provider returned status %d", resp.StatusCode)
	}

	var report wttrReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}
	if len(report.CurrentCondition) == 0 {
		return nil, fmt.Errorf("weather report carries no current conditions")
	}

	cur := report.CurrentCondition[0]
	obs := observation{City: "Unknown", WindDir: "N", Desc: "Clear"}
	if len(report.NearestArea) > 0 && len(report.NearestArea[0].AreaName) > 0 {
		obs.City = report.NearestArea[0].AreaName[0].Value
	}
	obs.TempC = floatOrDefault(cur.TempC, 0)
	obs.PressureHPa = floatOrDefault(cur.Pressure, 1013)
	obs.Humidity = floatOrDefault(cur.Humidity, 50)
	obs.WindMps = units.KmhToMps(floatOrDefault(cur.WindspeedKmph, 0))
	if cur.Winddir16 != "" {
		obs.WindDir = cur.Winddir16
	}
	if len(cur.WeatherDesc) > 0 && cur.WeatherDesc[0].Value != "" {
		obs.Desc = cur.WeatherDesc[0].Value
	}
	return s.formatWeather(obs, key.Lat, key.Lng), nil
}

type openMeteoCurrent struct {
	Temperature   *float64 `json:"temperature_2m"`
	Humidity      *float64 `json:"relative_humidity_2m"`
	WindSpeed     *float64 `json:"wind_speed_10m"`
	WindDirection *float64 `json:"wind_direction_10m"`
	PressureMSL   *float64 `json:"pressure_msl"`
	WeatherCode   *int     `json:"weather_code"`
}

type openMeteoReport struct {
	Current openMeteoCurrent `json:"current"`
}

// openMeteoWeather is the second tier: a single-point current-conditions
// lookup adapted into the same report shape.
func (s *Server) openMeteoWeather(ctx context.Context, lat, lng float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, weatherFetchTimeout)
	defer cancel()
	url := fmt.Sprintf(
		"%s?latitude=%v&longitude=%v&current=temperature_2m,relative_humidity_2m,wind_speed_10m,wind_direction_10m,pressure_msl,weather_code&timezone=GMT",
		openMeteoPointURL, lat, lng)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build weather request: %w", err)
	}
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("fetch weather: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather provider returned status %d", resp.StatusCode)
	}

	var report openMeteoReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return "", fmt.Errorf("decode weather response: %w", err)
	}

	cur := report.Current
	obs := observation{
		City:        fmt.Sprintf("%.2f,%.2f", lat, lng),
		PressureHPa: 1013,
		Humidity:    50,
		WindDir:     units.DegToCompass(0),
		Desc:        wmoDescription(0),
	}
	if cur.Temperature != nil {
		obs.TempC = *cur.Temperature
	}
	if cur.PressureMSL != nil {
		obs.PressureHPa = *cur.PressureMSL
	}
	if cur.Humidity != nil {
		obs.Humidity = *cur.Humidity
	}
	if cur.WindSpeed != nil {
		obs.WindMps = units.KmhToMps(*cur.WindSpeed)
	}
	if cur.WindDirection != nil {
		obs.WindDir = units.DegToCompass(*cur.WindDirection)
	}
	if cur.WeatherCode != nil {
		obs.Desc = wmoDescription(*cur.WeatherCode)
	}
	return s.formatWeather(obs, lat, lng), nil
}

// gridNearRadius bounds, in degrees, how far the nearest grid node may
// sit from the query before its reading stops being representative. The
// full grid spaces nodes four by five degrees, so this only binds while
// the grid is still filling.
const gridNearRadius = 15.0

// gridWeather is the last tier: the nearest point from the cached world
// grid, or the prevailing-weather summary while the grid has no node
// near the query yet.
func (s *Server) gridWeather(lat, lng float64) (string, bool) {
	if s.db == nil {
		return "", false
	}
	points, err := s.db.WeatherPoints()
	if err != nil {
		return "", false
	}

	var best struct {
		dist  float64
		found bool
		obs   observation
	}
	best.dist = math.Inf(1)
	for _, p := range points {
		dLat := lat - float64(p.Lat)
		dLng := lng - float64(p.Lng)
		dist := dLat*dLat + dLng*dLng
		if dist < best.dist {
			best.dist = dist
			best.found = true
			best.obs = observation{
				City:        fmt.Sprintf("Grid(%.1f,%.1f)", lat, lng),
				TempC:       p.TempC,
				PressureHPa: p.Pressure,
				Humidity:    p.Humidity,
				WindMps:     p.WindMps,
				WindDir:     units.DegToCompass(p.WindDir),
				Desc:        p.Condition,
			}
		}
		if dist == 0 {
			break
		}
	}
	if !best.found || best.dist > gridNearRadius*gridNearRadius {
		return s.summaryWeather(lat, lng)
	}
	return s.formatWeather(best.obs, lat, lng), true
}

// summaryWeather synthesizes a report from the grid aggregate when no
// individual points have been fetched yet.
func (s *Server) summaryWeather(lat, lng float64) (string, bool) {
	sum, err := s.db.SummarizeWeather()
	if err != nil || sum.Points == 0 {
		return "", false
	}
	obs := observation{
		City:        "World",
		TempC:       sum.AvgTempC,
		PressureHPa: 1013,
		Humidity:    50,
		WindDir:     "N",
		Desc:        sum.ModalCondition,
	}
	return s.formatWeather(obs, lat, lng), true
}

// formatWeather renders the client's exact eleven-line block. The key
// set and value formats are parsed positionally by the client, so every
// line is byte-significant.
func (s *Server) formatWeather(obs observation, lat, lng float64) string {
	desc := normalizeCondition(obs.Desc)
	lines := []string{
		"city=" + obs.City,
		fmt.Sprintf("temperature_c=%.2f", obs.TempC),
		fmt.Sprintf("pressure_hPa=%.2f", obs.PressureHPa),
		"pressure_chg=0.00",
		fmt.Sprintf("humidity_percent=%.2f", obs.Humidity),
		fmt.Sprintf("wind_speed_mps=%.2f", obs.WindMps),
		"wind_dir_name=" + obs.WindDir,
		"clouds=" + desc,
		"conditions=" + desc,
		"attribution=wttr.in",
		fmt.Sprintf("timezone=%d", units.ZoneOffset(lat, lng, s.clock.Now())),
	}
	return strings.Join(lines, "\n") + "\n"
}

func floatOrDefault(raw string, def float64) float64 {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

// normalizeCondition reduces a free-form description to the client's
// label set: exact names first, then keyword buckets, then passthrough.
func normalizeCondition(raw string) string {
	if mapped, ok := conditionNames[capitalize(raw)]; ok {
		return mapped
	}
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "rain"):
		return "Rain"
	case strings.Contains(lower, "snow"):
		return "Snow"
	case strings.Contains(lower, "cloud"):
		return "Cloudy"
	}
	return raw
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// wmoDescription names a WMO present-weather code the way the primary
// provider would describe it.
func wmoDescription(code int) string {
	switch code {
	case 0:
		return "Clear"
	case 1:
		return "Mainly Clear"
	case 2:
		return "Partly Cloudy"
	case 3:
		return "Overcast"
	case 45, 48:
		return "Fog"
	case 51, 53, 55:
		return "Drizzle"
	case 61, 63, 65:
		return "Rain"
	case 71, 73, 75:
		return "Snow"
	case 80, 81, 82:
		return "Rain Showers"
	case 95:
		return "Thunderstorm"
	}
	return "Clear"
}
