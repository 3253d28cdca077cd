package feeds

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why a feed refresh failed. The scheduler only logs the
// classification, but the weather grid inspects it to tell a rate-limited
// cycle apart from an ordinary outage.
type Kind int

const (
	// KindIO covers connection, DNS and body-read failures.
	KindIO Kind = iota
	// KindTimeout is a per-feed deadline expiring.
	KindTimeout
	// KindHTTPStatus is a non-200 response from the upstream.
	KindHTTPStatus
	// KindParse is a response that arrived but could not be decoded.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http status"
	case KindParse:
		return "parse"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FetchError is the error every fetcher returns on failure. Feed names the
// fetcher, Kind says what went wrong, and Status carries the HTTP code for
// KindHTTPStatus failures.
type FetchError struct {
	Feed   string
	Kind   Kind
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch %s: upstream status %d", e.Feed, e.Status)
	}
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.Feed, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Feed, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is an upstream 429. The weather grid
// aborts its batch cycle on this and resumes from the cursor next tick.
func IsRateLimited(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindHTTPStatus && fe.Status == http.StatusTooManyRequests
}

// parseErr builds a KindParse failure for feed.
func parseErr(feed, format string, args ...interface{}) *FetchError {
	return &FetchError{Feed: feed, Kind: KindParse, Err: fmt.Errorf(format, args...)}
}
