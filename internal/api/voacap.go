package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/banshee-data/propagation.report/internal/feeds"
	"github.com/banshee-data/propagation.report/internal/prop"
)

// mapRequest is the validated query surface shared by the three map
// endpoints. Zero Width/Height select the native map size; zero MHZ
// selects the frequency-independent MUF field.
type mapRequest struct {
	TxLat    float64 `validate:"min=-90,max=90"`
	TxLng    float64 `validate:"min=-180,max=180"`
	FreqMHz  float64 `validate:"min=0,max=54"`
	TOA      float64 `validate:"min=0,max=90"`
	Year     int     `validate:"min=0,max=9999"`
	Month    int     `validate:"min=1,max=12"`
	UTC      float64 `validate:"min=0,max=24"`
	LongPath bool
	Width    int `validate:"min=0,max=4096"`
	Height   int `validate:"min=0,max=4096"`
}

func floatParam(q url.Values, key string, def float64) (float64, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", key, raw)
	}
	return v, nil
}

func intParam(q url.Values, key string, def int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", key, raw)
	}
	return v, nil
}

// parseMapQuery fills the request from the client's ALL-CAPS query
// parameters, defaulting time fields to the current UTC instant.
func (s *Server) parseMapQuery(q url.Values) (mapRequest, error) {
	now := s.clock.Now().UTC()
	req := mapRequest{}
	var err error
	if req.TxLat, err = floatParam(q, "TXLAT", 0); err != nil {
		return req, err
	}
	if req.TxLng, err = floatParam(q, "TXLNG", 0); err != nil {
		return req, err
	}
	if req.FreqMHz, err = floatParam(q, "MHZ", 14.0); err != nil {
		return req, err
	}
	if req.TOA, err = floatParam(q, "TOA", 3.0); err != nil {
		return req, err
	}
	if req.Year, err = intParam(q, "YEAR", now.Year()); err != nil {
		return req, err
	}
	if req.Month, err = intParam(q, "MONTH", int(now.Month())); err != nil {
		return req, err
	}
	if req.UTC, err = floatParam(q, "UTC", float64(now.Hour())); err != nil {
		return req, err
	}
	if req.Width, err = intParam(q, "WIDTH", 0); err != nil {
		return req, err
	}
	if req.Height, err = intParam(q, "HEIGHT", 0); err != nil {
		return req, err
	}
	req.LongPath = q.Get("PATH") == "1"
	return req, nil
}

func (s *Server) handleVOACAPArea(w http.ResponseWriter, r *http.Request) {
	s.serveMap(w, r, prop.FieldREL)
}

// handleVOACAPMUF forces the frequency sentinel: the MUF endpoint renders
// the same map for every requested MHZ.
func (s *Server) handleVOACAPMUF(w http.ResponseWriter, r *http.Request) {
	s.serveMap(w, r, prop.FieldMUF)
}

func (s *Server) handleVOACAPTOA(w http.ResponseWriter, r *http.Request) {
	s.serveMap(w, r, prop.FieldTOA)
}

// serveMap renders the requested field and streams both blobs back to
// back. X-2Z-lengths declares the split so the client can slice the body
// without parsing the zlib streams.
func (s *Server) serveMap(w http.ResponseWriter, r *http.Request, field prop.Field) {
	req, err := s.parseMapQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("bad map query: %v", err))
		return
	}

	preq := prop.Request{
		TxLat:    req.TxLat,
		TxLng:    req.TxLng,
		FreqMHz:  req.FreqMHz,
		TOA:      req.TOA,
		Year:     req.Year,
		Month:    req.Month,
		UTC:      req.UTC,
		LongPath: req.LongPath,
		Width:    req.Width,
		Height:   req.Height,
		Field:    field,
		WX:       feeds.Snapshot(s.store),
	}
	if field == prop.FieldMUF {
		preq.FreqMHz = 0
	}

	result, err := s.engine.Map(r.Context(), preq)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("map render failed: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-2Z-lengths", fmt.Sprintf("%d %d", len(result.Primary), len(result.Dimmed)))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Primary)+len(result.Dimmed)))
	if _, err := w.Write(result.Primary); err != nil {
		logWriteError(err)
		return
	}
	if _, err := w.Write(result.Dimmed); err != nil {
		logWriteError(err)
	}
}
