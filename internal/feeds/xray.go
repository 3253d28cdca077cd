package feeds

import (
	"context"
	"fmt"
	"sort"
	"time"
)

const xrayURL = "https://services.swpc.noaa.gov/json/goes/primary/xrays-3-day.json"

const xrayTimeout = 10 * time.Second

// xrayWindow is the 25 hours of 10-minute samples the client plots.
const xrayWindow = 150

type xraySample struct {
	TimeTag string  `json:"time_tag"`
	Flux    float64 `json:"flux"`
	Energy  string  `json:"energy"`
}

// XRay resamples the GOES X-ray archive to the fixed-width two-channel rows
// the client expects: one row per 10 minutes, at minutes ending in 5, short
// (0.05-0.4nm) and long (0.1-0.8nm) channels merged by timestamp.
type XRay struct {
	*Client
}

func NewXRay(c *Client) *XRay { return &XRay{c} }

func (f *XRay) Name() string { return "xray" }

func (f *XRay) Refresh(ctx context.Context) error {
	var samples []xraySample
	if err := f.getJSON(ctx, f.Name(), xrayURL, xrayTimeout, defaultUserAgent, &samples); err != nil {
		return err
	}

	short := make(map[time.Time]float64)
	long := make(map[time.Time]float64)
	for _, s := range samples {
		t, err := time.Parse("2006-01-02T15:04:05", trimZ(s.TimeTag))
		if err != nil {
			continue
		}
		if t.Minute()%10 != 5 {
			continue
		}
		switch s.Energy {
		case "0.05-0.4nm":
			short[t] = s.Flux
		case "0.1-0.8nm":
			long[t] = s.Flux
		}
	}

	keys := make([]time.Time, 0, len(short)+len(long))
	seen := make(map[time.Time]bool)
	for t := range short {
		keys = append(keys, t)
		seen[t] = true
	}
	for t := range long {
		if !seen[t] {
			keys = append(keys, t)
		}
	}
	if len(keys) == 0 {
		return parseErr(f.Name(), "no 10-minute samples in GOES archive")
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	if len(keys) > xrayWindow {
		keys = keys[len(keys)-xrayWindow:]
	}

	rows := make([]string, len(keys))
	for i, t := range keys {
		rows[i] = fmt.Sprintf("%4d %2d %2d  %04d   00000  00000     %8.2e    %8.2e",
			t.Year(), int(t.Month()), t.Day(), t.Hour()*100+t.Minute(), short[t], long[t])
	}
	if err := f.Store.WriteLines(rows, "xray", "xray.txt"); err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}
	return nil
}

// trimZ strips a trailing Z so zone-less layouts parse archive timestamps.
func trimZ(s string) string {
	if len(s) > 0 && s[len(s)-1] == 'Z' {
		return s[:len(s)-1]
	}
	return s
}
