package feeds

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const auroraURL = "https://services.swpc.noaa.gov/json/ovation_aurora_latest.json"

const auroraTimeout = 10 * time.Second

// The client reads a rolling series of up to 48 samples and rejects the
// whole file when it holds fewer than a handful, so fresh installs are
// back-filled with zero-probability samples at 30-minute spacing.
const (
	auroraWindow  = 48
	auroraMinRows = 10
	auroraBackfil = 30 * 60
)

type auroraForecast struct {
	ForecastTime string       `json:"Forecast Time"`
	Coordinates  [][3]float64 `json:"coordinates"`
}

// Aurora folds the latest ovation forecast into the rolling aurora history:
// one row per forecast, unix time plus the maximum cell probability on the
// whole grid.
type Aurora struct {
	*Client
}

func NewAurora(c *Client) *Aurora { return &Aurora{c} }

func (f *Aurora) Name() string { return "aurora" }

func (f *Aurora) Refresh(ctx context.Context) error {
	var forecast auroraForecast
	if err := f.getJSON(ctx, f.Name(), auroraURL, auroraTimeout, defaultUserAgent, &forecast); err != nil {
		return err
	}

	maxProb := 0
	for _, c := range forecast.Coordinates {
		if p := int(c[2]); p > maxProb {
			maxProb = p
		}
	}
	uts := f.Clock.Now().Unix()
	if t, err := time.Parse(time.RFC3339, forecast.ForecastTime); err == nil {
		uts = t.Unix()
	}

	history := f.loadHistory()
	history[uts] = maxProb

	times := sortedTimes(history)
	if len(times) < auroraMinRows {
		oldest := times[0]
		for i := 0; i < auroraMinRows-len(times); i++ {
			history[oldest-int64(i+1)*auroraBackfil] = 0
		}
		times = sortedTimes(history)
	}
	if len(times) > auroraWindow {
		times = times[len(times)-auroraWindow:]
	}

	rows := make([]string, len(times))
	for i, t := range times {
		rows[i] = fmt.Sprintf("%d %d", t, history[t])
	}
	if err := f.Store.WriteLines(rows, "aurora", "aurora.txt"); err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}
	return nil
}

// loadHistory reads the existing series; a missing or malformed file just
// means an empty history.
func (f *Aurora) loadHistory() map[int64]int {
	history := make(map[int64]int)
	data, err := f.Store.ReadFile("aurora", "aurora.txt")
	if err != nil {
		return history
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		t, err1 := strconv.ParseInt(fields[0], 10, 64)
		p, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			continue
		}
		history[t] = p
	}
	return history
}

func sortedTimes(history map[int64]int) []int64 {
	times := make([]int64, 0, len(history))
	for t := range history {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times
}
