package feeds

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	swPlasmaURL = "https://services.swpc.noaa.gov/products/solar-wind/plasma-1-day.json"
	swMagURL    = "https://services.swpc.noaa.gov/products/solar-wind/mag-1-day.json"
)

const solarWindTimeout = 10 * time.Second

// Resampling cadences. The client reads a fixed number of rows at a fixed
// spacing and tolerates gaps only as placeholder rows, so both series are
// rebuilt on a target grid ending at the current minute.
const (
	swindRows    = 1440
	swindStep    = 60
	swindWithin  = 31
	imfRows      = 150
	imfStep      = 600
	imfWithin    = 301
	imfHeaderRow = "# UNIX        Bx     By     Bz     Bt"
)

// swSample is one timestamped record from a solar-wind product table.
type swSample struct {
	uts int64
	rec []*string
}

// SolarWind resamples the plasma and interplanetary-magnetic-field products
// onto fixed one-minute and ten-minute grids, writing the solar-wind and Bz
// artifacts. Targets with no sample inside the tolerance become placeholder
// rows.
type SolarWind struct {
	*Client
}

func NewSolarWind(c *Client) *SolarWind { return &SolarWind{c} }

func (f *SolarWind) Name() string { return "solar-wind" }

func (f *SolarWind) Refresh(ctx context.Context) error {
	var plasmaRaw, magRaw [][]*string
	if err := f.getJSON(ctx, f.Name(), swPlasmaURL, solarWindTimeout, defaultUserAgent, &plasmaRaw); err != nil {
		return err
	}
	if err := f.getJSON(ctx, "imf", swMagURL, solarWindTimeout, defaultUserAgent, &magRaw); err != nil {
		return err
	}

	plasma := parseSWTable(plasmaRaw)
	mag := parseSWTable(magRaw)

	// Anchor the newest target at the current minute boundary.
	now := f.Clock.Now().Unix() / swindStep * swindStep

	swind := make([]string, swindRows)
	for i := range swind {
		target := now - int64(swindRows-1-i)*swindStep
		rec := nearestSample(plasma, target, swindWithin)
		if rec == nil || len(rec) < 3 || rec[1] == nil || rec[2] == nil {
			swind[i] = fmt.Sprintf("%d 0.00 0.0", target)
			continue
		}
		density, err1 := strconv.ParseFloat(*rec[1], 64)
		speed, err2 := strconv.ParseFloat(*rec[2], 64)
		if err1 != nil || err2 != nil {
			swind[i] = fmt.Sprintf("%d 0.00 0.0", target)
			continue
		}
		swind[i] = fmt.Sprintf("%d %s %s", target,
			trimZeros(fmt.Sprintf("%.2f", density)), trimZeros(fmt.Sprintf("%.1f", speed)))
	}

	bz := make([]string, 0, imfRows+1)
	bz = append(bz, imfHeaderRow)
	for i := 0; i < imfRows; i++ {
		target := now - int64(imfRows-1-i)*imfStep
		rec := nearestSample(mag, target, imfWithin)
		row := fmt.Sprintf("%d    0.0   0.0   0.0    0.0", target)
		if rec != nil && len(rec) >= 7 && rec[1] != nil && rec[2] != nil && rec[3] != nil && rec[6] != nil {
			bx, e1 := strconv.ParseFloat(*rec[1], 64)
			by, e2 := strconv.ParseFloat(*rec[2], 64)
			bzv, e3 := strconv.ParseFloat(*rec[3], 64)
			bt, e4 := strconv.ParseFloat(*rec[6], 64)
			if e1 == nil && e2 == nil && e3 == nil && e4 == nil {
				row = fmt.Sprintf("%d   %4.1f   %4.1f   %4.1f    %4.1f", target, bx, by, bzv, bt)
			}
		}
		bz = append(bz, row)
	}

	if err := f.Store.WriteLines(swind, "solar-wind", "swind-24hr.txt"); err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}
	if err := f.Store.WriteLines(bz, "Bz", "Bz.txt"); err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}
	return nil
}

// parseSWTable turns a product table (header row plus data rows, column 0 a
// "2006-01-02 15:04:05.000" timestamp) into samples sorted by time.
func parseSWTable(rows [][]*string) []swSample {
	samples := make([]swSample, 0, len(rows))
	for i, rec := range rows {
		if i == 0 || len(rec) == 0 || rec[0] == nil {
			continue
		}
		t, err := time.Parse("2006-01-02 15:04:05.000", *rec[0])
		if err != nil {
			continue
		}
		samples = append(samples, swSample{uts: t.Unix(), rec: rec})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].uts < samples[j].uts })
	return samples
}

// nearestSample returns the record closest to target, or nil when none lies
// within the tolerance.
func nearestSample(samples []swSample, target, within int64) []*string {
	if len(samples) == 0 {
		return nil
	}
	i := sort.Search(len(samples), func(i int) bool { return samples[i].uts >= target })
	best := -1
	bestDiff := within
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(samples) {
			continue
		}
		diff := samples[j].uts - target
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			best = j
		}
	}
	if best < 0 {
		return nil
	}
	return samples[best].rec
}

// trimZeros strips trailing zeros and a dangling decimal point, matching
// the compact numbers the reference files carry.
func trimZeros(s string) string {
	return strings.TrimRight(strings.TrimRight(s, "0"), ".")
}
