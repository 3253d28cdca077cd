package api

import (
	"net/http"

	"github.com/banshee-data/propagation.report/internal/db"
	"github.com/banshee-data/propagation.report/internal/httputil"
	"github.com/banshee-data/propagation.report/internal/version"
)

// statusFeed is one feed's most recent refresh outcome.
type statusFeed struct {
	Feed       string `json:"feed"`
	StartedAt  int64  `json:"started_at"`
	DurationMs int64  `json:"duration_ms"`
	OK         bool   `json:"ok"`
	Detail     string `json:"detail,omitempty"`
}

type statusResponse struct {
	Version   string       `json:"version"`
	Time      int64        `json:"time"`
	ProxyMode string       `json:"proxy_mode"`
	Feeds     []statusFeed `json:"feeds,omitempty"`
}

// handleStatus reports server identity and per-feed refresh health as
// JSON. Unlike the client-facing endpoints this one is for operators, so
// it keeps the JSON error conventions rather than plain text.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := statusResponse{
		Version:   version.String(),
		Time:      s.clock.Now().Unix(),
		ProxyMode: string(s.proxyMode),
	}
	if s.db != nil {
		runs, err := s.db.RecentFetchRuns(200)
		if err != nil {
			httputil.InternalServerError(w, "read fetch log: "+err.Error())
			return
		}
		resp.Feeds = latestPerFeed(runs)
	}
	httputil.WriteJSONOK(w, resp)
}

// latestPerFeed keeps the newest run per feed. Input is newest-first, so
// the first occurrence of each feed wins.
func latestPerFeed(runs []db.FetchRun) []statusFeed {
	seen := make(map[string]bool, len(runs))
	var out []statusFeed
	for _, run := range runs {
		if seen[run.Feed] {
			continue
		}
		seen[run.Feed] = true
		out = append(out, statusFeed{
			Feed:       run.Feed,
			StartedAt:  run.StartedAt,
			DurationMs: run.DurationMs,
			OK:         run.OK,
			Detail:     run.Detail,
		})
	}
	return out
}
