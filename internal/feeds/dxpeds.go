package feeds

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const adxoURL = "https://www.ng3k.com/Misc/adxo.html"

const dxpedsTimeout = 15 * time.Second

var (
	adxoRowRe  = regexp.MustCompile(`(?s)<tr class="adxoitem".*?>(.*?)</tr>`)
	adxoColRe  = regexp.MustCompile(`(?s)<td.*?>(.*?)</td>`)
	adxoCallRe = regexp.MustCompile(`(?s)<span class="call">(.*?)</span>`)
	adxoHrefRe = regexp.MustCompile(`href="(.*?)"`)
	htmlTagRe  = regexp.MustCompile(`(?s)<.*?>`)
)

// DXPeds scrapes the announced-DXpeditions table. Each table row becomes a
// "start,end,entity,call,url" record; rows whose dates fail to parse are
// dropped. The artifact is written twice because the client asks for it at
// both locations.
type DXPeds struct {
	*Client
}

func NewDXPeds(c *Client) *DXPeds { return &DXPeds{c} }

func (f *DXPeds) Name() string { return "dxpeditions" }

func (f *DXPeds) Refresh(ctx context.Context) error {
	body, err := f.get(ctx, f.Name(), adxoURL, dxpedsTimeout, browserUserAgent)
	if err != nil {
		return err
	}

	rows := []string{"1", "NG3K", adxoURL}
	for _, m := range adxoRowRe.FindAllStringSubmatch(string(body), -1) {
		row := m[1]
		cols := adxoColRe.FindAllStringSubmatch(row, -1)
		if len(cols) < 4 {
			continue
		}
		start := parseADXODate(stripTags(cols[0][1]))
		end := parseADXODate(stripTags(cols[1][1]))
		if start == 0 || end == 0 {
			continue
		}
		entity := stripTags(cols[2][1])

		call := stripTags(cols[3][1])
		if cm := adxoCallRe.FindStringSubmatch(cols[3][1]); cm != nil {
			call = stripTags(cm[1])
		}

		url := adxoURL
		if hm := adxoHrefRe.FindStringSubmatch(row); hm != nil {
			url = hm[1]
			if strings.HasPrefix(url, "/") {
				url = "https://www.ng3k.com" + url
			}
		}

		rows = append(rows, fmt.Sprintf("%d,%d,%s,%s,%s", start, end, entity, call, url))
	}

	for _, parts := range [][]string{{"dxpeds", "dxpeditions.txt"}, {"dxpeditions.txt"}} {
		if err := f.Store.WriteLines(rows, parts...); err != nil {
			return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
		}
	}
	return nil
}

// parseADXODate turns the site's "2026 Jan01" (or "2026 Jan 1") date into a
// unix timestamp, or 0 when it does not parse.
func parseADXODate(s string) int64 {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006 Jan02", "2006 Jan2", "2006 Jan 2"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix()
		}
	}
	return 0
}

func stripTags(s string) string {
	return strings.TrimSpace(htmlTagRe.ReplaceAllString(s, ""))
}
