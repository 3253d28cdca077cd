// Package api serves the HamClock client surface: CGI-style dynamic
// endpoints backed by the propagation engine and the upstream proxies,
// plus static serving of the fetcher artifact tree. The protocol is
// HTTP/1.0-friendly: keep-alives are disabled and every response carries
// Connection: close, because the client speaks one request per socket.
package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ctessum/requestcache"
	"github.com/go-playground/validator/v10"

	"github.com/banshee-data/propagation.report/internal/artifact"
	"github.com/banshee-data/propagation.report/internal/config"
	"github.com/banshee-data/propagation.report/internal/db"
	"github.com/banshee-data/propagation.report/internal/httputil"
	"github.com/banshee-data/propagation.report/internal/monitoring"
	"github.com/banshee-data/propagation.report/internal/prop"
	"github.com/banshee-data/propagation.report/internal/timeutil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// clientPathPrefix is stripped from incoming paths: the client addresses
// the original clearinghouse layout even when pointed at a local server.
const clientPathPrefix = "/ham/HamClock"

// versionResponse is parsed by the client with a strict scan. 32 bytes,
// byte-exact, including both trailing newlines.
const versionResponse = "4.22\nNo info for version  4.22\n\n"

// rssResponse replaces the upstream news feed with a fixed local line.
const rssResponse = "HamClock Replacement Server Active - Local Source Feed Running\n"

// Server holds the request-time dependencies. All fields are set once in
// NewServer and never mutated, so handlers run concurrently without locks.
type Server struct {
	engine *prop.Engine
	store  artifact.Store
	db     *db.DB
	client httputil.HTTPClient
	clock  timeutil.Clock

	validate *validator.Validate

	proxyMode    ProxyMode
	upstreamHost string

	sdoCache *requestcache.Cache
	wxCache  *requestcache.Cache
	sdoTTL   time.Duration
}

// ServerConfig wires a Server. Engine and Store are required; DB enables
// the parity recorder, the prevailing-weather shim and the /debug/ mux;
// nil HTTP, Clock and Tuning fall back to production defaults.
type ServerConfig struct {
	Engine       *prop.Engine
	Store        artifact.Store
	DB           *db.DB
	HTTP         httputil.HTTPClient
	Clock        timeutil.Clock
	Tuning       *config.TuningConfig
	ProxyMode    ProxyMode
	UpstreamHost string
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.HTTP == nil {
		cfg.HTTP = httputil.NewStandardClient(nil)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Tuning == nil {
		cfg.Tuning = config.EmptyTuningConfig()
	}
	if cfg.ProxyMode == "" {
		cfg.ProxyMode = ProxyExclusive
	}
	s := &Server{
		engine:       cfg.Engine,
		store:        cfg.Store,
		db:           cfg.DB,
		client:       cfg.HTTP,
		clock:        cfg.Clock,
		validate:     validator.New(),
		proxyMode:    cfg.ProxyMode,
		upstreamHost: cfg.UpstreamHost,
		sdoTTL:       cfg.Tuning.GetSDOCacheTTL(),
	}
	// Both upstream transcode caches share the engine's single-processor
	// discipline: one slow fetch at a time, concurrent duplicates collapse
	// onto the in-flight request.
	s.sdoCache = requestcache.NewCache(s.processSDO, 1,
		requestcache.Deduplicate(), requestcache.Memory(sdoCacheSize))
	s.wxCache = requestcache.NewCache(s.processWeather, 1,
		requestcache.Deduplicate(), requestcache.Memory(weatherCacheSize))
	return s
}

// ServeMux routes the normalized (prefix-stripped) path space.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/fetchIPGeoloc.pl", s.handleGeoloc)
	mux.HandleFunc("/fetchPSKReporter.pl", s.handleSpots)
	mux.HandleFunc("/fetchVOACAPArea.pl", s.handleVOACAPArea)
	mux.HandleFunc("/fetchVOACAP-MUF.pl", s.handleVOACAPMUF)
	mux.HandleFunc("/fetchVOACAP-TOA.pl", s.handleVOACAPTOA)
	mux.HandleFunc("/fetchBandConditions.pl", s.handleBandConditions)
	mux.HandleFunc("/SDO/", s.handleSDO)
	mux.HandleFunc("/wx.pl", s.handleWeather)
	mux.HandleFunc("/version.pl", s.handleVersion)
	mux.HandleFunc("/RSS/web15rss.pl", s.handleRSS)
	mux.HandleFunc("/fetchDRAP.pl", s.handleDRAPStats)
	mux.HandleFunc("/fetchONTA.pl", s.artifactShim("ONTA", "onta.txt"))
	mux.HandleFunc("/fetchAurora.pl", s.artifactShim("aurora", "aurora.txt"))
	mux.HandleFunc("/fetchDXPeds.pl", s.artifactShim("dxpeds", "dxpeditions.txt"))
	mux.HandleFunc("/fetchWordWx.pl", s.handlePrevailingWeather)
	mux.HandleFunc("/parity", s.handleParity)
	mux.HandleFunc("/status.json", s.handleStatus)
	if s.db != nil {
		s.db.AttachAdminRoutes(mux)
	}
	mux.HandleFunc("/", s.handleStatic)
	return mux
}

// Handler is the full middleware chain: request logging outermost, then
// the upstream mirror (which needs the original URI), then panic
// recovery, prefix normalization and the HTTP/1.0 compatibility header.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.ServeMux()
	h = compatMiddleware(h)
	h = recoverMiddleware(h)
	h = s.proxyMiddleware(h)
	h = LoggingMiddleware(h)
	return h
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, duration and remote.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms %s",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
			r.RemoteAddr,
		)
	})
}

// compatMiddleware strips the clearinghouse path prefix and closes the
// connection after every response. HamClock opens a fresh socket per
// request and its HTTP/1.0 parser never handles a reused connection.
func compatMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "close")
		if strings.HasPrefix(r.URL.Path, clientPathPrefix) {
			r2 := r.Clone(r.Context())
			r2.URL.Path = strings.TrimPrefix(r.URL.Path, clientPathPrefix)
			if r2.URL.Path == "" {
				r2.URL.Path = "/"
			}
			r = r2
		}
		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware turns a handler panic into a plain 500 instead of
// killing the connection goroutine mid-response.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				monitoring.Logf("api: panic serving %s: %v", r.URL.Path, rec)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// writeText sends a plain-text payload, logging write failures from
// disconnected clients at debug level only.
func (s *Server) writeText(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if _, err := w.Write(body); err != nil {
		logWriteError(err)
	}
}

// writeBinary is writeText for application/octet-stream payloads.
func (s *Server) writeBinary(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if _, err := w.Write(body); err != nil {
		logWriteError(err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

// logWriteError keeps client disconnects out of the error log: the
// clock's display refreshes abandon slow requests routinely.
func logWriteError(err error) {
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		monitoring.Logf("api: client disconnected mid-response: %v", err)
		return
	}
	log.Printf("api: response write failed: %v", err)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeText(w, []byte(versionResponse))
}

func (s *Server) handleRSS(w http.ResponseWriter, r *http.Request) {
	s.writeText(w, []byte(rssResponse))
}

// handleDRAPStats serves the absorption-statistics history the DRAP
// fetcher appends to on every cycle.
func (s *Server) handleDRAPStats(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.ReadFile("drap", "stats.history")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.writeText(w, data)
}

// artifactShim maps a legacy fetch endpoint onto the artifact file its
// feed writes, so clients using either form see the same bytes.
func (s *Server) artifactShim(parts ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := s.store.ReadFile(parts...)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		s.writeText(w, data)
	}
}

// handlePrevailingWeather summarizes the cached weather grid: temperature
// extremes and the modal condition across all fetched points.
func (s *Server) handlePrevailingWeather(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeError(w, http.StatusServiceUnavailable, "weather cache not configured")
		return
	}
	sum, err := s.db.SummarizeWeather()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("summarize weather: %v", err))
		return
	}
	if sum.Points == 0 {
		s.writeText(w, []byte("No data available"))
		return
	}
	body := fmt.Sprintf("MinTemp: %.1fC\nMaxTemp: %.1fC\nAvgTemp: %.1fC\nPrevailing: %s",
		sum.MinTempC, sum.MaxTempC, sum.AvgTempC, sum.ModalCondition)
	s.writeText(w, []byte(body))
}
