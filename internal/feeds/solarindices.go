package feeds

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/propagation.report/internal/artifact"
	"github.com/banshee-data/propagation.report/internal/monitoring"
)

const solarIndicesURL = "https://services.swpc.noaa.gov/text/daily-solar-indices.txt"

const solarIndicesTimeout = 10 * time.Second

// Window sizes the client reads without tolerance: a 31-day sunspot series
// and 99 flux samples at three per day.
const (
	ssnWindow  = 31
	fluxWindow = 99
)

// SolarIndices turns the daily solar indices table into the sunspot and
// solar flux artifacts. Short histories are front-padded by repeating the
// oldest row so the files always carry a full window.
type SolarIndices struct {
	*Client
}

func NewSolarIndices(c *Client) *SolarIndices { return &SolarIndices{c} }

func (f *SolarIndices) Name() string { return "solar-indices" }

func (f *SolarIndices) Refresh(ctx context.Context) error {
	body, err := f.get(ctx, f.Name(), solarIndicesURL, solarIndicesTimeout, defaultUserAgent)
	if err != nil {
		return err
	}

	var ssnRows, fluxRows []string
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, ":") || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 10 {
			continue
		}
		year, err1 := strconv.Atoi(fields[0])
		month, err2 := strconv.Atoi(fields[1])
		day, err3 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		flux, ssn := fields[3], fields[4]

		ssnRows = append(ssnRows, fmt.Sprintf("%d %02d %02d %s", year, month, day, ssn))
		// The flux plot runs at three samples per day; the daily table only
		// has one, so each value is replicated.
		fluxRows = append(fluxRows, flux, flux, flux)
	}
	if len(ssnRows) == 0 {
		return parseErr(f.Name(), "no data rows in solar indices table")
	}
	if len(ssnRows) < ssnWindow {
		monitoring.Logf("feeds: solar indices returned %d days, padding to %d", len(ssnRows), ssnWindow)
	}

	if err := f.Store.WriteLines(artifact.TailPad(ssnRows, ssnWindow), "ssn", "ssn-31.txt"); err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}
	if err := f.Store.WriteLines(artifact.TailPad(fluxRows, fluxWindow), "solar-flux", "solarflux-99.txt"); err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}
	return nil
}
