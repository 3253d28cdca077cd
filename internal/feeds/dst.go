package feeds

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/propagation.report/internal/monitoring"
)

const kyotoDSTBaseURL = "http://wdc.kugi.kyoto-u.ac.jp/dst_realtime"

const dstTimeout = 15 * time.Second

// dstWindow is how many hourly values the client plots.
const dstWindow = 24

// dstMissing is the source's missing-value sentinel.
const dstMissing = "9999"

// dstValue is one parsed hourly disturbance-storm-time reading.
type dstValue struct {
	t time.Time
	v int
}

// DST fetches the real-time disturbance-storm-time index from the Kyoto
// WDC. The source is a fixed-column format: 4-character hourly fields with
// the date split across header columns. When the fetch fails and no
// artifact exists yet, a zeroed 24-hour file is written so the client's
// parser has something well-formed to chew on.
type DST struct {
	*Client
}

func NewDST(c *Client) *DST { return &DST{c} }

func (f *DST) Name() string { return "dst" }

func (f *DST) Refresh(ctx context.Context) error {
	now := f.Clock.Now().UTC()
	primary := fmt.Sprintf("%s/presentmonth/dst%s.for.request", kyotoDSTBaseURL, now.Format("0601"))
	fallback := fmt.Sprintf("%s/%s/dst%s.for.request", kyotoDSTBaseURL, now.Format("200601"), now.Format("0601"))

	body, err := f.get(ctx, f.Name(), primary, dstTimeout, defaultUserAgent)
	if err != nil {
		monitoring.Logf("feeds: dst present-month fetch failed, trying archive path: %v", err)
		body, err = f.get(ctx, f.Name(), fallback, dstTimeout, defaultUserAgent)
	}
	if err != nil {
		return f.fallbackFile(now, err)
	}

	values := parseDST(string(body))
	if len(values) == 0 {
		return f.fallbackFile(now, parseErr(f.Name(), "no valid records"))
	}
	sort.Slice(values, func(i, j int) bool { return values[i].t.Before(values[j].t) })
	if len(values) > dstWindow {
		values = values[len(values)-dstWindow:]
	}

	rows := make([]string, len(values))
	for i, dv := range values {
		rows[i] = fmt.Sprintf("%s %d", dv.t.Format("2006-01-02T15:04:05"), dv.v)
	}
	if err := f.Store.WriteLines(rows, "dst", "dst.txt"); err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}
	return nil
}

// fallbackFile keeps an existing artifact untouched, but seeds a zeroed
// series on first run so the client never sees a missing file.
func (f *DST) fallbackFile(now time.Time, cause error) error {
	if f.Store.Exists("dst", "dst.txt") {
		return cause
	}
	hour := now.Truncate(time.Hour)
	rows := make([]string, dstWindow)
	for h := 0; h < dstWindow; h++ {
		rows[h] = fmt.Sprintf("%s 0", hour.Add(-time.Duration(dstWindow-1-h)*time.Hour).Format("2006-01-02T15:04:05"))
	}
	if err := f.Store.WriteLines(rows, "dst", "dst.txt"); err != nil {
		return &FetchError{Feed: f.Name(), Kind: KindIO, Err: err}
	}
	return cause
}

// parseDST extracts hourly values from the WDC record layout: "DST" tag,
// two-digit year and month, day, a century column, then 24 four-character
// fields starting at byte 20.
func parseDST(content string) []dstValue {
	var values []dstValue
	for _, line := range strings.Split(content, "\n") {
		if !strings.HasPrefix(line, "DST") || len(line) < 24 {
			continue
		}
		yearShort, err1 := strconv.Atoi(strings.TrimSpace(line[3:5]))
		month, err2 := strconv.Atoi(strings.TrimSpace(line[5:7]))
		day, err3 := strconv.Atoi(strings.TrimSpace(line[8:10]))
		century, err4 := strconv.Atoi(strings.TrimSpace(line[14:16]))
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		if month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}
		year := century*100 + yearShort

		for h := 0; h < dstWindow; h++ {
			lo, hi := 20+h*4, 20+(h+1)*4
			if hi > len(line) {
				break
			}
			field := strings.TrimSpace(line[lo:hi])
			if field == "" || field == dstMissing {
				continue
			}
			v, err := strconv.Atoi(field)
			if err != nil {
				continue
			}
			values = append(values, dstValue{
				t: time.Date(year, time.Month(month), day, h, 0, 0, 0, time.UTC),
				v: v,
			})
		}
	}
	return values
}
