package api

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	pskReporterURL   = "https://retrieve.pskreporter.info/query"
	spotFetchTimeout = 10 * time.Second
	defaultSpotAge   = 1800
)

// spotsRequest is the validated query surface of /fetchPSKReporter.pl.
// The by/of prefix picks the orientation: by* means the client named
// itself as the transmitting station, of* as the receiving one.
type spotsRequest struct {
	Call       string `validate:"omitempty,max=12"`
	Grid       string `validate:"omitempty,alphanum,max=8"`
	IsReceiver bool
	MaxAge     int `validate:"min=1,max=86400"`
}

// parseSpotsQuery resolves the four aliased station parameters the way
// the client sends them: bycall/call and bygrid/grid first, ofcall/ofgrid
// only when neither is present.
func parseSpotsQuery(q url.Values) (spotsRequest, error) {
	req := spotsRequest{MaxAge: defaultSpotAge}

	req.Call = q.Get("bycall")
	if req.Call == "" {
		req.Call = q.Get("call")
	}
	req.Grid = q.Get("bygrid")
	if req.Grid == "" {
		req.Grid = q.Get("grid")
	}
	if req.Call == "" && req.Grid == "" {
		req.Call = q.Get("ofcall")
		req.Grid = q.Get("ofgrid")
		req.IsReceiver = true
	}
	if req.Call == "" && req.Grid == "" {
		return req, fmt.Errorf("callsign or grid required")
	}

	if raw := q.Get("maxage"); raw != "" {
		age, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("bad maxage %q: %w", raw, err)
		}
		req.MaxAge = age
	}
	return req, nil
}

// receptionReport mirrors one spot attribute set in the PSKReporter XML.
type receptionReport struct {
	SenderCallsign   string `xml:"senderCallsign,attr"`
	SenderLocator    string `xml:"senderLocator,attr"`
	ReceiverCallsign string `xml:"receiverCallsign,attr"`
	ReceiverLocator  string `xml:"receiverLocator,attr"`
	Frequency        string `xml:"frequency,attr"`
	Mode             string `xml:"mode,attr"`
	SNR              string `xml:"snr,attr"`
	FlowStartSeconds string `xml:"flowStartSeconds,attr"`
}

type spotQueryResult struct {
	Reports []receptionReport `xml:"receptionReport"`
}

// handleSpots proxies a PSKReporter query and flattens the XML into the
// client's CSV: time, tx grid, tx call, rx grid, rx call, mode, Hz, snr.
// Rows are newline-joined with no trailing newline.
func (s *Server) handleSpots(w http.ResponseWriter, r *http.Request) {
	req, err := parseSpotsQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("bad spot query: %v", err))
		return
	}

	params := url.Values{}
	params.Set("flowStartSeconds", strconv.Itoa(-req.MaxAge))
	params.Set("no_antennas", "1")
	switch {
	case req.Call != "" && req.IsReceiver:
		params.Set("receiverCallsign", req.Call)
	case req.Call != "":
		params.Set("senderCallsign", req.Call)
	default:
		// The retrieval API only indexes grids on the receive side.
		params.Set("receiverGridSquare", req.Grid)
	}

	ctx, cancel := context.WithTimeout(r.Context(), spotFetchTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		pskReporterURL+"?"+params.Encode(), nil)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("build spot request: %v", err))
		return
	}
	resp, err := s.client.Do(httpReq)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("spot lookup failed: %v", err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("spot provider returned status %d", resp.StatusCode))
		return
	}

	var result spotQueryResult
	if err := xml.NewDecoder(resp.Body).Decode(&result); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("decode spot response: %v", err))
		return
	}

	now := s.clock.Now().Unix()
	rows := make([]string, 0, len(result.Reports))
	for _, rep := range result.Reports {
		ts := rep.FlowStartSeconds
		if ts == "" {
			ts = strconv.FormatInt(now, 10)
		}
		freq := rep.Frequency
		if freq == "" {
			freq = "0"
		}
		snr := rep.SNR
		if snr == "" {
			snr = "0"
		}
		rows = append(rows, fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s,%s",
			ts, rep.SenderLocator, rep.SenderCallsign,
			rep.ReceiverLocator, rep.ReceiverCallsign,
			rep.Mode, freq, snr))
	}
	s.writeText(w, []byte(strings.Join(rows, "\n")))
}
