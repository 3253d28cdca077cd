package api

import (
	"context"
	"fmt"
	"image/jpeg"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/propagation.report/internal/render"
)

const (
	sdoBaseURL      = "https://sdo.gsfc.nasa.gov/assets/img/latest/"
	sdoFetchTimeout = 15 * time.Second
	sdoCacheSize    = 64
)

// sdoSourceFiles maps a client wavelength token to the observatory's
// latest-image filename. 170 is a legacy alias for 171 and plain HMI
// selects the intensity continuum.
var sdoSourceFiles = map[string]string{
	"171":       "latest_1024_0171.jpg",
	"193":       "latest_1024_0193.jpg",
	"211":       "latest_1024_0211.jpg",
	"304":       "latest_1024_0304.jpg",
	"131":       "latest_1024_0131.jpg",
	"1600":      "latest_1024_1600.jpg",
	"1700":      "latest_1024_1700.jpg",
	"170":       "latest_1024_0171.jpg",
	"HMIB":      "latest_1024_HMIB.jpg",
	"HMIIC":     "latest_1024_HMIIC.jpg",
	"HMI":       "latest_1024_HMIIC.jpg",
	"211193171": "latest_1024_211193171.jpg",
}

var sdoResolutionRe = regexp.MustCompile(`(170|340|510|680)`)

// sdoRequest keys one transcode in the memoization cache. Bucket is the
// TTL window index, so entries expire by key rotation.
type sdoRequest struct {
	Wavelength string
	Resolution int
	Bucket     int64
}

// parseSDOPath recovers (wavelength, resolution) from a client filename
// like f_304_170.bmp.z. Both scans are substring matches against the
// basename, in an order the client's filename grammar was verified
// against; unknown names fall back to 171 at 170 pixels.
func parseSDOPath(p string) (wavelength string, resolution int) {
	filename := path.Base(p)

	resolution = 170
	if m := sdoResolutionRe.FindString(filename); m != "" {
		resolution, _ = strconv.Atoi(m)
	}

	switch {
	case strings.Contains(filename, "211_193_171") || strings.Contains(filename, "211193171"):
		wavelength = "211193171"
	case strings.Contains(filename, "HMIB"):
		wavelength = "HMIB"
	case strings.Contains(filename, "HMIIC"):
		wavelength = "HMIIC"
	case strings.Contains(filename, "HMI"):
		wavelength = "HMI"
	case strings.Contains(filename, "131"):
		wavelength = "131"
	case strings.Contains(filename, "304"):
		wavelength = "304"
	case strings.Contains(filename, "193"):
		wavelength = "193"
	case strings.Contains(filename, "211"):
		wavelength = "211"
	case strings.Contains(filename, "171"):
		wavelength = "171"
	case strings.Contains(filename, "1600"):
		wavelength = "1600"
	case strings.Contains(filename, "1700"):
		wavelength = "1700"
	default:
		wavelength = "171"
	}
	return wavelength, resolution
}

// handleSDO serves a solar image transcoded for the client: the latest
// observatory JPEG resized to the requested square and framed as a
// compressed 24-bpp bitmap. Transcodes are memoized per (wavelength,
// resolution) for one TTL window.
func (s *Server) handleSDO(w http.ResponseWriter, r *http.Request) {
	wavelength, resolution := parseSDOPath(r.URL.Path)
	req := sdoRequest{
		Wavelength: wavelength,
		Resolution: resolution,
		Bucket:     s.clock.Now().Unix() / int64(s.sdoTTL/time.Second),
	}

	creq := s.sdoCache.NewRequest(r.Context(), req,
		fmt.Sprintf("sdo_%s_%d_%d", req.Wavelength, req.Resolution, req.Bucket))
	result, err := creq.Result()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("solar image fetch failed: %v", err))
		return
	}
	s.writeBinary(w, result.([]byte))
}

// processSDO is the cache processor: fetch, decode, resize, reframe.
func (s *Server) processSDO(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(sdoRequest)
	source, ok := sdoSourceFiles[req.Wavelength]
	if !ok {
		source = sdoSourceFiles["171"]
	}

	ctx, cancel := context.WithTimeout(ctx, sdoFetchTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, sdoBaseURL+source, nil)
	if err != nil {
		return nil, fmt.Errorf("build solar image request: %w", err)
	}
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch solar image %s: %w", source, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("solar image %s: status %d", source, resp.StatusCode)
	}

	img, err := jpeg.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode solar image %s: %w", source, err)
	}

	rgba := render.ResizeImage(img, req.Resolution, req.Resolution)
	rgb := make([]byte, req.Resolution*req.Resolution*3)
	for y := 0; y < req.Resolution; y++ {
		for x := 0; x < req.Resolution; x++ {
			o := rgba.PixOffset(x, y)
			d := (y*req.Resolution + x) * 3
			rgb[d+0] = rgba.Pix[o+0]
			rgb[d+1] = rgba.Pix[o+1]
			rgb[d+2] = rgba.Pix[o+2]
		}
	}
	return render.Encode24(req.Resolution, req.Resolution, rgb)
}
