package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/propagation.report/internal/db"
	"github.com/banshee-data/propagation.report/internal/monitoring"
)

// ProxyMode selects how requests relate to the original upstream server.
// Mirroring modes exist to measure byte parity against the clearinghouse
// while migrating clients over, one endpoint at a time.
type ProxyMode string

const (
	// ProxyExclusive serves everything locally and never contacts the
	// upstream host. The production default.
	ProxyExclusive ProxyMode = "EXCLUSIVE"
	// ProxyOriginal forwards every GET to the upstream host and serves
	// its response unmodified. No local handling, no parity samples.
	ProxyOriginal ProxyMode = "ORIGINAL"
	// ProxyShadow serves the local response while mirroring the request
	// upstream and recording a parity sample per request.
	ProxyShadow ProxyMode = "SHADOW"
	// ProxyVerify records parity like ProxyShadow but serves the
	// upstream response, keeping clients on known-good bytes.
	ProxyVerify ProxyMode = "VERIFY"
)

const upstreamFetchTimeout = 15 * time.Second

// ParseProxyMode reads the PROXY_MODE environment value. Empty selects
// the exclusive default.
func ParseProxyMode(raw string) (ProxyMode, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", string(ProxyExclusive):
		return ProxyExclusive, nil
	case string(ProxyOriginal):
		return ProxyOriginal, nil
	case string(ProxyShadow):
		return ProxyShadow, nil
	case string(ProxyVerify):
		return ProxyVerify, nil
	}
	return "", fmt.Errorf("unknown proxy mode %q", raw)
}

// mirrorablePath excludes the local-only diagnostic surfaces: the
// upstream host has no /parity, /status.json or /debug/ and mirroring
// them would only pollute the samples.
func mirrorablePath(path string) bool {
	return path != "/parity" && path != "/status.json" &&
		!strings.HasPrefix(path, "/debug/")
}

// captureWriter buffers a locally generated response so the middleware
// can compare it against the upstream bytes before anything is sent.
type captureWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{header: make(http.Header), status: http.StatusOK}
}

func (c *captureWriter) Header() http.Header  { return c.header }
func (c *captureWriter) WriteHeader(code int) { c.status = code }
func (c *captureWriter) Write(p []byte) (int, error) {
	return c.body.Write(p)
}

func (c *captureWriter) flushTo(w http.ResponseWriter) {
	for k, vals := range c.header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(c.status)
	if _, err := w.Write(c.body.Bytes()); err != nil {
		logWriteError(err)
	}
}

type upstreamResult struct {
	status      int
	contentType string
	body        []byte
}

// proxyMiddleware implements the mirroring modes. It sits outside the
// prefix-strip middleware so the upstream host sees the request URI
// exactly as the client sent it.
func (s *Server) proxyMiddleware(next http.Handler) http.Handler {
	if s.proxyMode == ProxyExclusive || s.upstreamHost == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !mirrorablePath(normalizeClientPath(r.URL.Path)) {
			next.ServeHTTP(w, r)
			return
		}

		switch s.proxyMode {
		case ProxyOriginal:
			up, err := s.fetchUpstream(r)
			if err != nil {
				s.writeError(w, http.StatusBadGateway, fmt.Sprintf("upstream fetch failed: %v", err))
				return
			}
			serveUpstream(w, up)

		case ProxyShadow:
			local := newCaptureWriter()
			next.ServeHTTP(local, r)
			s.recordParity(r, local)
			local.flushTo(w)

		case ProxyVerify:
			local := newCaptureWriter()
			next.ServeHTTP(local, r)
			up := s.recordParity(r, local)
			if up == nil {
				// Upstream unreachable: local bytes beat no bytes.
				local.flushTo(w)
				return
			}
			serveUpstream(w, up)

		default:
			next.ServeHTTP(w, r)
		}
	})
}

func serveUpstream(w http.ResponseWriter, up *upstreamResult) {
	if up.contentType != "" {
		w.Header().Set("Content-Type", up.contentType)
	}
	w.WriteHeader(up.status)
	if _, err := w.Write(up.body); err != nil {
		logWriteError(err)
	}
}

// fetchUpstream replays the request against the upstream host.
func (s *Server) fetchUpstream(r *http.Request) (*upstreamResult, error) {
	ctx, cancel := context.WithTimeout(r.Context(), upstreamFetchTimeout)
	defer cancel()
	url := "http://" + s.upstreamHost + r.URL.RequestURI()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch upstream %s: %w", r.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}
	return &upstreamResult{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}, nil
}

// recordParity mirrors the request upstream, compares status and body
// against the captured local response, and stores one sample. Returns
// the upstream result, or nil when the mirror failed.
func (s *Server) recordParity(r *http.Request, local *captureWriter) *upstreamResult {
	sample := db.ParitySample{
		Path:        normalizeClientPath(r.URL.Path),
		SampledAt:   s.clock.Now().Unix(),
		LocalStatus: local.status,
	}

	up, err := s.fetchUpstream(r)
	if err != nil {
		monitoring.Logf("api: upstream mirror failed for %s: %v", sample.Path, err)
		sample.Detail = fmt.Sprintf("upstream unreachable: %v", err)
		s.storeParity(sample)
		return nil
	}

	sample.UpstreamStatus = up.status
	sample.Matched = up.status == local.status && bytes.Equal(up.body, local.body.Bytes())
	if !sample.Matched {
		if up.status != local.status {
			sample.Detail = fmt.Sprintf("status %d vs upstream %d", local.status, up.status)
		} else {
			sample.Detail = fmt.Sprintf("body differs: %d vs upstream %d bytes",
				local.body.Len(), len(up.body))
		}
	}
	s.storeParity(sample)
	return up
}

func (s *Server) storeParity(sample db.ParitySample) {
	if s.db == nil {
		return
	}
	if err := s.db.RecordParitySample(sample); err != nil {
		monitoring.Logf("api: record parity sample for %s: %v", sample.Path, err)
	}
}

// normalizeClientPath groups both addressing forms of an endpoint under
// one parity key.
func normalizeClientPath(path string) string {
	normalized := strings.TrimPrefix(path, clientPathPrefix)
	if normalized == "" {
		return "/"
	}
	return normalized
}
