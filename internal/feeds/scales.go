package feeds

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const noaaScalesURL = "https://services.swpc.noaa.gov/products/noaa-scales.json"

const scalesTimeout = 10 * time.Second

// rank2Coeffs is served verbatim next to the scales file. The client uses
// these quadratics to rank raw space-weather values on a common scale; the
// coefficients are fixed upstream and have no live source.
const rank2Coeffs = `# y = ax^2 + bx + c, where x = raw space weather value, y = small integer for ranking roughly -10..5
# N.B. column 1 is SPCWX_t index and must be in this order.
# hint: https://www.analyzemath.com/parabola/three_points_para_calc.html
#       a        b       c
0       0        0.05    -6              // Sunspot_N      60 => -3       200 => 4
1       0        1e6     -2              // X-Ray          (C)1e-6 => -2  (M)1e-5 => 8
2       0        0.1     -15             // Solar_Flux
3       0        3.2     -8.8            // Planetary_K    1 => -5.6   4 =>  4   9 => 20
4       0        1       -2              // Solar_Wind
5       0        1       -20             // DRAP
6       0        -0.8    -2              // Bz_Bt          0 => -2         -10 => 6
7       0        3       -3              // NOAA_SpcWx     0 => -3   1 => 0  3 => 6
8       0        0.16    -6              // AURORA         50 => 2         100 => 10
9   -0.04       -0.2      3              // DST           -10 => 1  0 => 3  5 => 1
`

type scaleDay struct {
	R scaleValue `json:"R"`
	S scaleValue `json:"S"`
	G scaleValue `json:"G"`
}

type scaleValue struct {
	Scale interface{} `json:"Scale"`
}

// scaleInt coerces a Scale field, which the product serves as a string,
// number or null depending on the day.
func (v scaleValue) scaleInt() int {
	switch x := v.Scale.(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0
		}
		return n
	case float64:
		return int(x)
	default:
		return 0
	}
}

// Scales writes the current plus three forecast days of R, S and G scale
// ranks, one letter per row, and the fixed ranking coefficients file.
type Scales struct {
	*Client
}

func NewScales(c *Client) *Scales { return &Scales{c} }

func (f *Scales) Name() string { return "noaa-scales" }

func (f *Scales) Refresh(ctx context.Context) error {
	var days map[string]scaleDay
	if err := f.getJSON(ctx, f.Name(), noaaScalesURL, scalesTimeout, defaultUserAgent, &days); err != nil {
		return err
	}

	var r, s, g []string
	for _, key := range []string{"0", "1", "2", "3"} {
		day := days[key]
		r = append(r, strconv.Itoa(day.R.scaleInt()))
		s = append(s, strconv.Itoa(day.S.scaleInt()))
		g = append(g, strconv.Itoa(day.G.scaleInt()))
	}

	rows := []string{
		fmt.Sprintf("R  %s", strings.Join(r, " ")),
		fmt.Sprintf("S  %s", strings.Join(s, " ")),
		fmt.Sprintf("G  %s", strings.Join(g, " ")),
	}
	if err := f.Store.WriteLines(rows, "NOAASpaceWX", "noaaswx.txt"); err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}
	if err := f.Store.WriteFile([]byte(rank2Coeffs), "NOAASpaceWX", "rank2_coeffs.txt"); err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}
	return nil
}
