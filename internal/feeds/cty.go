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

// CTY source chain: the win-test master file, the country-files mirror, and
// as a last resort the already-derived table from the legacy host.
const (
	ctyPrimaryURL  = "https://download.win-test.com/files/country/CTY_WT_MOD.DAT"
	ctyMirrorURL   = "https://www.country-files.com/cty/cty_wt_mod.dat"
	ctyDerivedURL  = "https://clearskyinstitute.com/ham/HamClock/cty/cty_wt_mod-ll-dxcc.txt"
	ctyArtifactDir = "cty"
	ctyArtifact    = "cty_wt_mod-ll-dxcc.txt"
)

const ctyTimeout = 30 * time.Second

var (
	ctyADIFRe     = regexp.MustCompile(`# ADIF (\d+)`)
	ctyOverrideRe = regexp.MustCompile(`(.+)<([-+]?\d*\.?\d+)/([-+]?\d*\.?\d+).*>`)
)

// ctyEntity is one derived prefix row.
type ctyEntity struct {
	prefix   string
	lat, lng float64
	adif     string
}

// CTY derives the per-prefix location table from the raw country database.
// The source stores longitudes west-positive; the derived table flips them
// east-positive, which is what every consumer here uses.
type CTY struct {
	*Client
}

func NewCTY(c *Client) *CTY { return &CTY{c} }

func (f *CTY) Name() string { return "cty" }

func (f *CTY) Refresh(ctx context.Context) error {
	body, err := f.get(ctx, f.Name(), ctyPrimaryURL, ctyTimeout, defaultUserAgent)
	if err != nil {
		monitoring.Logf("feeds: cty primary failed, trying mirror: %v", err)
		body, err = f.get(ctx, f.Name(), ctyMirrorURL, ctyTimeout, defaultUserAgent)
	}
	if err == nil {
		entities := parseCTY(string(body))
		if len(entities) == 0 {
			err = parseErr(f.Name(), "no entities in country database")
		} else {
			return f.write(entities)
		}
	}

	// Both raw sources are down; the legacy host serves the derived format
	// directly, so pass it through untouched.
	monitoring.Logf("feeds: cty raw sources failed, fetching derived table: %v", err)
	derived, derr := f.get(ctx, f.Name(), ctyDerivedURL, ctyTimeout, defaultUserAgent)
	if derr != nil {
		return derr
	}
	if err := f.Store.WriteFile(derived, ctyArtifactDir, ctyArtifact); err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}
	return nil
}

func (f *CTY) write(entities []ctyEntity) error {
	rows := make([]string, 0, len(entities)+2)
	rows = append(rows,
		fmt.Sprintf("# extracted from CTY_WT_MOD.DAT on %sZ", f.Clock.Now().UTC().Format("Mon Jan 02 15:04:05 2006")),
		"# prefix     lat+N   lng+E  DXCC")
	for _, e := range entities {
		rows = append(rows, fmt.Sprintf("%-12s %7.2f %7.2f  %s", e.prefix, e.lat, e.lng, e.adif))
	}
	if err := f.Store.WriteLines(rows, ctyArtifactDir, ctyArtifact); err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}
	return nil
}

// parseCTY walks the country database: an entity header line ends in ":",
// its comma-separated prefix list spans following lines up to ";", and
// "# ADIF n" comments in between tag the current DXCC number. Per-prefix
// "<lat/lng>" overrides replace the entity coordinates.
func parseCTY(content string) []ctyEntity {
	lines := strings.Split(content, "\n")
	var entities []ctyEntity
	adif := "0"

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if m := ctyADIFRe.FindStringSubmatch(line); m != nil {
			adif = m[1]
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasSuffix(line, ":") {
			continue
		}

		// Name: CQ: ITU: Continent: Lat: Long: TZ: PrimaryPrefix:
		parts := strings.Split(line, ":")
		if len(parts) < 8 {
			continue
		}
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[4]), 64)
		lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[5]), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		lng = -lng

		var prefixes strings.Builder
		for i++; i < len(lines); i++ {
			p := strings.TrimSpace(lines[i])
			if strings.HasPrefix(p, "#") {
				continue
			}
			prefixes.WriteString(p)
			if strings.HasSuffix(p, ";") {
				break
			}
		}

		for _, raw := range strings.Split(strings.TrimSuffix(prefixes.String(), ";"), ",") {
			p := strings.TrimSpace(raw)
			if p == "" {
				continue
			}
			if m := ctyOverrideRe.FindStringSubmatch(p); m != nil {
				oLat, err1 := strconv.ParseFloat(m[2], 64)
				oLng, err2 := strconv.ParseFloat(m[3], 64)
				if err1 == nil && err2 == nil {
					entities = append(entities, ctyEntity{
						prefix: strings.TrimLeft(m[1], "=*"), lat: oLat, lng: -oLng, adif: adif})
					continue
				}
			}
			entities = append(entities, ctyEntity{prefix: strings.TrimLeft(p, "=*"), lat: lat, lng: lng, adif: adif})
		}
	}
	return entities
}
