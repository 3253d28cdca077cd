package feeds

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/propagation.report/internal/monitoring"
)

const (
	geomagIndicesURL  = "https://services.swpc.noaa.gov/text/daily-geomagnetic-indices.txt"
	geomagForecastURL = "https://services.swpc.noaa.gov/text/3-day-forecast.txt"
)

const kIndexTimeout = 10 * time.Second

// The client plots exactly 72 K values: 7 days observed at 8 per day plus
// the first 2 forecast days.
const (
	kObservedWindow = 56
	kForecastWindow = 16
	kWindow         = kObservedWindow + kForecastWindow
)

// kpRowRe captures the eight planetary K values at the end of a daily
// geomagnetic indices row.
var kpRowRe = regexp.MustCompile(
	`(\d+(?:\.\d+)?)\s+(\d+(?:\.\d+)?)\s+(\d+(?:\.\d+)?)\s+(\d+(?:\.\d+)?)\s+(\d+(?:\.\d+)?)\s+(\d+(?:\.\d+)?)\s+(\d+(?:\.\d+)?)\s+(\d+(?:\.\d+)?)$`)

// KIndex combines observed and forecast planetary K indices into the
// 72-value series the client's geomagnetic pane expects.
type KIndex struct {
	*Client
}

func NewKIndex(c *Client) *KIndex { return &KIndex{c} }

func (f *KIndex) Name() string { return "kindex" }

func (f *KIndex) Refresh(ctx context.Context) error {
	observed, obsErr := f.fetchObserved(ctx)
	forecast, fcErr := f.fetchForecast(ctx)
	if obsErr != nil && fcErr != nil {
		return obsErr
	}
	if obsErr != nil {
		monitoring.Logf("feeds: kindex observed fetch failed, padding from forecast: %v", obsErr)
	}
	if fcErr != nil {
		monitoring.Logf("feeds: kindex forecast fetch failed, padding from observed: %v", fcErr)
	}

	if len(observed) > kObservedWindow {
		observed = observed[len(observed)-kObservedWindow:]
	}
	if len(forecast) > kForecastWindow {
		forecast = forecast[:kForecastWindow]
	}
	values := append(observed, forecast...)
	if len(values) == 0 {
		return parseErr(f.Name(), "no K values in either source")
	}
	if len(values) > kWindow {
		values = values[len(values)-kWindow:]
	}
	for len(values) < kWindow {
		values = append(values, values[len(values)-1])
	}

	rows := make([]string, len(values))
	for i, v := range values {
		rows[i] = fmt.Sprintf("%.2f", v)
	}
	if err := f.Store.WriteLines(rows, "geomag", "kindex.txt"); err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}
	return nil
}

// fetchObserved parses the trailing eight planetary K columns from each data
// row of the daily indices table, oldest day first.
func (f *KIndex) fetchObserved(ctx context.Context) ([]float64, error) {
	body, err := f.get(ctx, f.Name(), geomagIndicesURL, kIndexTimeout, defaultUserAgent)
	if err != nil {
		return nil, err
	}
	var values []float64
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, ":") || strings.HasPrefix(line, "#") || len(line) <= 60 {
			continue
		}
		m := kpRowRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		for _, field := range m[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				continue
			}
			values = append(values, v)
		}
	}
	return values, nil
}

// fetchForecast reads the "NOAA Kp index breakdown" section of the 3-day
// forecast. Each breakdown row carries one UT slot across three days; only
// the first two days are kept, flattened day-major.
func (f *KIndex) fetchForecast(ctx context.Context) ([]float64, error) {
	body, err := f.get(ctx, f.Name(), geomagForecastURL, kIndexTimeout, defaultUserAgent)
	if err != nil {
		return nil, err
	}
	var day1, day2 []float64
	inSection := false
	for _, line := range strings.Split(string(body), "\n") {
		if strings.Contains(line, "NOAA Kp index breakdown") {
			inSection = true
			continue
		}
		if !inSection || !strings.Contains(line, "UT") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		v1, err1 := strconv.ParseFloat(fields[1], 64)
		v2, err2 := strconv.ParseFloat(fields[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		day1 = append(day1, v1)
		day2 = append(day2, v2)
	}
	if len(day1) > 8 {
		day1 = day1[:8]
	}
	if len(day2) > 8 {
		day2 = day2[:8]
	}
	return append(day1, day2...), nil
}
