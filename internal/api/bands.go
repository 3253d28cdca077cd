package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/banshee-data/propagation.report/internal/feeds"
	"github.com/banshee-data/propagation.report/internal/prop"
)

// bandFreqsMHz are the nine HF allocations the condition table covers,
// 80m through 10m, in the column order the client renders.
var bandFreqsMHz = [9]float64{3.5, 5.3, 7.0, 10.1, 14.0, 18.1, 21.0, 24.9, 28.0}

// modeNames maps the client's numeric mode codes to display names.
// Unknown codes are echoed back as sent.
var modeNames = map[string]string{
	"1":  "CW",
	"19": "FT8",
	"38": "SSB",
	"39": "USB",
	"40": "LSB",
}

// bandsRequest is the validated query surface of /fetchBandConditions.pl.
// Mode, Power and the TOA header are display strings echoed into line 2;
// only the coordinates, TOA value, path and hour drive the engine.
type bandsRequest struct {
	TxLat    float64 `validate:"min=-90,max=90"`
	TxLng    float64 `validate:"min=-180,max=180"`
	RxLat    float64 `validate:"min=-90,max=90"`
	RxLng    float64 `validate:"min=-180,max=180"`
	TOA      float64 `validate:"min=0,max=90"`
	UTC      int     `validate:"min=0,max=24"`
	LongPath bool
	Mode     string
	Power    string
	TOAHdr   string
}

func (s *Server) parseBandsQuery(q url.Values) (bandsRequest, error) {
	req := bandsRequest{}
	var err error
	if req.TxLat, err = floatParam(q, "TXLAT", 0); err != nil {
		return req, err
	}
	if req.TxLng, err = floatParam(q, "TXLNG", 0); err != nil {
		return req, err
	}
	if req.RxLat, err = floatParam(q, "RXLAT", 0); err != nil {
		return req, err
	}
	if req.RxLng, err = floatParam(q, "RXLNG", 0); err != nil {
		return req, err
	}
	if req.UTC, err = intParam(q, "UTC", s.clock.Now().UTC().Hour()); err != nil {
		return req, err
	}
	req.LongPath = q.Get("PATH") == "1"

	rawMode := q.Get("MODE")
	if rawMode == "" {
		rawMode = "CW"
	}
	if name, ok := modeNames[rawMode]; ok {
		req.Mode = name
	} else {
		req.Mode = rawMode
	}

	req.Power = q.Get("POW")
	if req.Power == "" {
		req.Power = q.Get("POWER")
	}
	if req.Power == "" {
		req.Power = "100"
	}

	// The TOA header echoes the raw parameter, rendered as an integer
	// when whole. Unparseable values pass through untouched and the
	// evaluation falls back to the default angle.
	rawTOA := q.Get("TOA")
	if rawTOA == "" {
		rawTOA = "3"
	}
	if v, perr := strconv.ParseFloat(rawTOA, 64); perr == nil {
		req.TOA = v
		if v == float64(int(v)) {
			req.TOAHdr = strconv.Itoa(int(v))
		} else {
			req.TOAHdr = fmt.Sprintf("%.1f", v)
		}
	} else {
		req.TOA = 3
		req.TOAHdr = rawTOA
	}
	return req, nil
}

// handleBandConditions renders the 26-line condition table: current-hour
// reliabilities, the parameter echo line, then one row per forecast hour
// 1 through 23 and finally hour 0.
func (s *Server) handleBandConditions(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseBandsQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("bad band query: %v", err))
		return
	}

	now := s.clock.Now().UTC()
	wx := feeds.Snapshot(s.store)

	relsAt := func(hour int) string {
		cols := make([]string, len(bandFreqsMHz))
		for i, mhz := range bandFreqsMHz {
			_, rel := s.engine.Point(prop.PointRequest{
				TxLat: req.TxLat, TxLng: req.TxLng,
				RxLat: req.RxLat, RxLng: req.RxLng,
				FreqMHz:  mhz,
				TOA:      req.TOA,
				Month:    int(now.Month()),
				UTC:      float64(hour),
				LongPath: req.LongPath,
				WX:       wx,
			})
			cols[i] = fmt.Sprintf("%.2f", rel)
		}
		return strings.Join(cols, ",")
	}

	path := "SP"
	if req.LongPath {
		path = "LP"
	}

	lines := make([]string, 0, 26)
	lines = append(lines, relsAt(req.UTC))
	lines = append(lines, fmt.Sprintf("%sW,%s,TOA>%s,%s,S=%d",
		req.Power, req.Mode, req.TOAHdr, path, int(wx.SSN)))
	for h := 1; h < 24; h++ {
		lines = append(lines, fmt.Sprintf("%d %s", h, relsAt(h)))
	}
	lines = append(lines, fmt.Sprintf("0 %s", relsAt(0)))

	s.writeText(w, []byte(strings.Join(lines, "\n")+"\n"))
}
