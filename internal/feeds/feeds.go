// Package feeds holds the upstream fetchers: one type per space-weather or
// amateur-radio feed, each pulling from its upstream, transforming the
// payload into the exact text format the desktop client parses, and writing
// it through the artifact store. Output files are replaced atomically and
// left untouched when a refresh fails, so a broken upstream never costs the
// client its last good data.
package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/banshee-data/propagation.report/internal/artifact"
	"github.com/banshee-data/propagation.report/internal/httputil"
	"github.com/banshee-data/propagation.report/internal/timeutil"
)

// Fetcher refreshes one feed's artifacts. Name is used for log lines and
// fetch-run records; Refresh failures are always *FetchError values.
type Fetcher interface {
	Name() string
	Refresh(ctx context.Context) error
}

// User agents sent upstream. Most feeds accept the plain client string; the
// spotting and DXpedition sites reject non-browser agents.
const (
	defaultUserAgent = "HamClock/1.0"
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// defaultRetries bounds the exponential backoff retry loop per request.
const defaultRetries = 2

// Client bundles what every fetcher shares: the HTTP seam for upstream
// requests, the artifact store for outputs, and the clock that anchors the
// sliding windows.
type Client struct {
	HTTP  httputil.HTTPClient
	Store artifact.Store
	Clock timeutil.Clock

	// retries and backoffInitial tune the retry loop; zero retries means a
	// single attempt. Tests shrink these to keep failure paths fast.
	retries        uint64
	backoffInitial time.Duration
}

// NewClient returns a Client with the default retry policy.
func NewClient(h httputil.HTTPClient, store artifact.Store, clock timeutil.Clock) *Client {
	return &Client{HTTP: h, Store: store, Clock: clock, retries: defaultRetries}
}

// All returns the standard fetcher set in refresh order. The weather grid
// runs separately because its batch budget spans multiple ticks.
func All(c *Client) []Fetcher {
	return []Fetcher{
		NewSolarIndices(c),
		NewKIndex(c),
		NewXRay(c),
		NewSolarWind(c),
		NewScales(c),
		NewAurora(c),
		NewONTA(c),
		NewDXPeds(c),
		NewDST(c),
		NewContests(c),
		NewDRAP(c),
		NewCTY(c),
	}
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOffContext {
	if c.retries == 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	eb := backoff.NewExponentialBackOff()
	if c.backoffInitial > 0 {
		eb.InitialInterval = c.backoffInitial
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, c.retries), ctx)
}

// get issues a GET with the feed's timeout and bounded retries and returns
// the response body. Timeouts and 5xx responses are retried; 4xx responses
// are not, so a rate limit surfaces immediately. All failures come back as
// *FetchError.
func (c *Client) get(ctx context.Context, feed, url string, timeout time.Duration, userAgent string) ([]byte, error) {
	var body []byte
	op := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(&FetchError{Feed: feed, Kind: KindIO, Err: err})
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.HTTP.Do(req)
		if err != nil {
			kind := KindIO
			if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
				kind = KindTimeout
			}
			return &FetchError{Feed: feed, Kind: kind, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			ferr := &FetchError{Feed: feed, Kind: KindHTTPStatus, Status: resp.StatusCode}
			if resp.StatusCode >= 500 {
				return ferr
			}
			return backoff.Permanent(ferr)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return &FetchError{Feed: feed, Kind: KindIO, Err: fmt.Errorf("read body: %w", err)}
		}
		return nil
	}

	if err := backoff.Retry(op, c.newBackOff(ctx)); err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			// Context cancellation surfaces from the backoff loop itself.
			err = &FetchError{Feed: feed, Kind: KindIO, Err: err}
		}
		return nil, err
	}
	return body, nil
}

// getJSON fetches like get and decodes the body into v.
func (c *Client) getJSON(ctx context.Context, feed, url string, timeout time.Duration, userAgent string, v interface{}) error {
	body, err := c.get(ctx, feed, url, timeout, userAgent)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &FetchError{Feed: feed, Kind: KindParse, Err: err}
	}
	return nil
}
