package feeds

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/propagation.report/internal/monitoring"
)

const (
	potaURL = "https://api.pota.app/spot/activator"
	sotaURL = "https://api-db2.sota.org.uk/api/spots/50"
)

const ontaTimeout = 10 * time.Second

const ontaHeader = "#call,Hz,unix,mode,grid,lat,lng,park,org"

// sotaSpot and potaSpot carry the frequency as untyped JSON because both
// APIs have flipped between strings and numbers across versions.
type sotaSpot struct {
	ActivatorCallsign string      `json:"activatorCallsign"`
	Callsign          string      `json:"callsign"`
	Frequency         interface{} `json:"frequency"`
	TimeStamp         string      `json:"timeStamp"`
	Mode              string      `json:"mode"`
	SummitCode        string      `json:"summitCode"`
}

type potaSpot struct {
	Activator string      `json:"activator"`
	Frequency interface{} `json:"frequency"`
	SpotTime  string      `json:"spotTime"`
	Mode      string      `json:"mode"`
	Latitude  float64     `json:"latitude"`
	Longitude float64     `json:"longitude"`
	Reference string      `json:"reference"`
}

// ONTA merges summit and park activation spots into one CSV artifact, SOTA
// rows first. SOTA's spot summary has no coordinates, so those rows carry
// zeros; the client falls back to prefix lookup for them.
type ONTA struct {
	*Client
}

func NewONTA(c *Client) *ONTA { return &ONTA{c} }

func (f *ONTA) Name() string { return "onta" }

func (f *ONTA) Refresh(ctx context.Context) error {
	sota, sotaErr := f.fetchSOTA(ctx)
	pota, potaErr := f.fetchPOTA(ctx)
	if sotaErr != nil && potaErr != nil {
		return sotaErr
	}
	if sotaErr != nil {
		monitoring.Logf("feeds: onta summit source failed: %v", sotaErr)
	}
	if potaErr != nil {
		monitoring.Logf("feeds: onta park source failed: %v", potaErr)
	}

	rows := make([]string, 0, len(sota)+len(pota)+1)
	rows = append(rows, ontaHeader)
	rows = append(rows, sota...)
	rows = append(rows, pota...)
	if err := f.Store.WriteLines(rows, "ONTA", "onta.txt"); err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}
	return nil
}

func (f *ONTA) fetchSOTA(ctx context.Context) ([]string, error) {
	var spots []sotaSpot
	if err := f.getJSON(ctx, f.Name(), sotaURL, ontaTimeout, browserUserAgent, &spots); err != nil {
		return nil, err
	}
	rows := make([]string, 0, len(spots))
	for _, s := range spots {
		call := s.ActivatorCallsign
		if call == "" {
			call = s.Callsign
		}
		if call == "" {
			call = "Unknown"
		}
		mhz, _ := toFloat(s.Frequency)
		uts := f.Clock.Now().Unix()
		if s.TimeStamp != "" {
			t, ok := parseSpotTime(s.TimeStamp)
			if !ok {
				continue
			}
			uts = t
		}
		rows = append(rows, ontaRow(call, int64(mhz*1e6), uts, s.Mode, 0, 0, orDefault(s.SummitCode, "Unknown"), "SOTA"))
	}
	return rows, nil
}

func (f *ONTA) fetchPOTA(ctx context.Context) ([]string, error) {
	var spots []potaSpot
	if err := f.getJSON(ctx, f.Name(), potaURL, ontaTimeout, browserUserAgent, &spots); err != nil {
		return nil, err
	}
	rows := make([]string, 0, len(spots))
	for _, s := range spots {
		khz, _ := toFloat(s.Frequency)
		t, ok := parseSpotTime(s.SpotTime)
		if !ok {
			continue
		}
		rows = append(rows, ontaRow(orDefault(s.Activator, "Unknown"), int64(khz*1000), t,
			s.Mode, s.Latitude, s.Longitude, orDefault(s.Reference, "Unknown"), "POTA"))
	}
	return rows, nil
}

func ontaRow(call string, hz, uts int64, mode string, lat, lng float64, park, org string) string {
	if mode == "" {
		mode = "CW"
	}
	return fmt.Sprintf("%s,%d,%d,%s,,%.5f,%.5f,%s,%s", call, hz, uts, mode, lat, lng, park, org)
}

// parseSpotTime accepts the timestamp shapes both spot APIs serve: RFC 3339
// with or without a zone, and a space-separated variant. Zone-less values
// are UTC.
func parseSpotTime(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}

// toFloat coerces string and numeric JSON values.
func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
