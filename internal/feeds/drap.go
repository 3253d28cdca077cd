package feeds

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/propagation.report/internal/render"
)

const drapURL = "https://services.swpc.noaa.gov/text/drap_global_frequencies.txt"

const drapTimeout = 10 * time.Second

// DRAP map dimensions match the propagation maps so the client can overlay
// them directly.
const (
	drapMapWidth  = 660
	drapMapHeight = 330
)

// DRAP ingests the D-region absorption prediction grid. Each refresh
// appends a min/max/mean line to the stats history and renders the grid
// through the absorption color scale into the overlay bitmap pair. The
// overlay headers carry zero resolution fields, unlike the map frames.
type DRAP struct {
	*Client
}

func NewDRAP(c *Client) *DRAP { return &DRAP{c} }

func (f *DRAP) Name() string { return "drap" }

func (f *DRAP) Refresh(ctx context.Context) error {
	body, err := f.get(ctx, f.Name(), drapURL, drapTimeout, defaultUserAgent)
	if err != nil {
		return err
	}

	grid, validAt, err := parseDRAP(string(body))
	if err != nil {
		return err
	}
	utime := f.Clock.Now().Unix()
	if !validAt.IsZero() {
		utime = validAt.Unix()
	}

	var all []float64
	for _, row := range grid {
		all = append(all, row...)
	}
	statsLine := fmt.Sprintf("%d : %.2f %.2f %.2f",
		utime, floats.Min(all), floats.Max(all), floats.Sum(all)/float64(len(all)))
	if err := f.Store.AppendLine(statsLine, "drap", "stats.history"); err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}

	resized := render.ResizeGrid(grid, drapMapWidth, drapMapHeight)
	frame := render.NewFrame565(drapMapWidth, drapMapHeight)
	for y, row := range resized {
		for x, v := range row {
			frame.Set(x, y, render.DRAPScale.At(v))
		}
	}

	raw := frame.EncodeRaw(0)
	if err := f.Store.WriteFile(raw, "map-D-DRAP.bmp"); err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}
	z, err := frame.Encode(0)
	if err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}
	if err := f.Store.WriteFile(z, "map-D-DRAP.bmp.z"); err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}
	return nil
}

// parseDRAP reads the absorption product: a "Product Valid At" comment and
// latitude rows of the form "  lat | f f f ...", north first.
func parseDRAP(content string) ([][]float64, time.Time, error) {
	var grid [][]float64
	var validAt time.Time

	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, "Product Valid At :") {
			raw := strings.TrimSpace(strings.SplitN(line, ":", 2)[1])
			raw = strings.TrimSpace(strings.TrimSuffix(raw, "UTC"))
			if t, err := time.Parse("2006-01-02 15:04", raw); err == nil {
				validAt = t
			}
			continue
		}
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" ||
			strings.Contains(line, "---") || !strings.Contains(line, "|") {
			continue
		}
		parts := strings.SplitN(line, "|", 2)
		fields := strings.Fields(parts[1])
		row := make([]float64, 0, len(fields))
		for _, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, time.Time{}, parseErr("drap", "bad grid value %q", field)
			}
			row = append(row, v)
		}
		grid = append(grid, row)
	}
	if len(grid) == 0 {
		return nil, time.Time{}, parseErr("drap", "no grid rows in absorption product")
	}
	return grid, validAt, nil
}
