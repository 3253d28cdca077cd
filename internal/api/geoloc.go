package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	geolocURL          = "http://ip-api.com/json/"
	geolocFetchTimeout = 10 * time.Second
)

// geolocRequest is the validated query surface of /fetchIPGeoloc.pl. An
// empty IP asks the provider to locate the caller of the lookup itself.
type geolocRequest struct {
	IP string `validate:"omitempty,ip"`
}

// ipAPIResponse is the subset of the ip-api.com JSON body the client
// block needs. Status "fail" carries a Message instead of coordinates.
type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Query   string  `json:"query"`
}

// handleGeoloc proxies an IP-to-coordinates lookup and reshapes it into
// the client's LAT/LNG/IP/CREDIT block. No trailing newline: the client
// scans exactly four lines.
func (s *Server) handleGeoloc(w http.ResponseWriter, r *http.Request) {
	req := geolocRequest{IP: r.URL.Query().Get("ip")}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("bad ip parameter: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), geolocFetchTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, geolocURL+req.IP, nil)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("build geolocation request: %v", err))
		return
	}
	resp, err := s.client.Do(httpReq)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("geolocation lookup failed: %v", err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("geolocation provider returned status %d", resp.StatusCode))
		return
	}

	var loc ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("decode geolocation response: %v", err))
		return
	}
	if loc.Status == "fail" {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("geolocation failed: %s", loc.Message))
		return
	}

	body := fmt.Sprintf("LAT=%v\nLNG=%v\nIP=%s\nCREDIT=ip-api.com", loc.Lat, loc.Lon, loc.Query)
	s.writeText(w, []byte(body))
}
