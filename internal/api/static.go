package api

import (
	"net/http"
	"strings"
)

// staticPrefixes are the artifact subdirectories the client addresses
// directly. Paths under any of them map straight into the artifact tree.
var staticPrefixes = []string{
	"/geomag/",
	"/ssn/",
	"/solar-flux/",
	"/xray/",
	"/solar-wind/",
	"/Bz/",
	"/aurora/",
	"/dst/",
	"/NOAASpaceWX/",
	"/drap/",
	"/cty/",
	"/ONTA/",
	"/dxpeds/",
	"/contests/",
	"/worldwx/",
}

// staticServable reports whether the path belongs to the static surface:
// a known artifact directory, or a bare artifact filename by extension.
func staticServable(path string) bool {
	for _, prefix := range staticPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return strings.HasSuffix(path, ".txt") ||
		strings.HasSuffix(path, ".bmp") ||
		strings.HasSuffix(path, ".bmp.z")
}

// handleStatic is the mux fallback: artifact files for the static
// surface, 404 for everything else. Compressed artifacts are served as
// octet streams, everything else as text, matching the client's reader.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if !staticServable(path) || strings.Contains(path, "..") {
		http.NotFound(w, r)
		return
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	data, err := s.store.ReadFile(parts...)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if strings.HasSuffix(path, ".z") {
		s.writeBinary(w, data)
		return
	}
	s.writeText(w, data)
}
