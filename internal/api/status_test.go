package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/propagation.report/internal/db"
)

func TestStatusReportsLatestRunPerFeed(t *testing.T) {
	ts := newTestServer(t)

	require.NoError(t, ts.db.RecordFetchRun(db.FetchRun{
		TickID: "tick-1", Feed: "ssn", StartedAt: testNow.Unix() - 600,
		DurationMs: 120, OK: false, Detail: "upstream status 503",
	}))
	require.NoError(t, ts.db.RecordFetchRun(db.FetchRun{
		TickID: "tick-2", Feed: "ssn", StartedAt: testNow.Unix(),
		DurationMs: 95, OK: true,
	}))
	require.NoError(t, ts.db.RecordFetchRun(db.FetchRun{
		TickID: "tick-2", Feed: "kindex", StartedAt: testNow.Unix(),
		DurationMs: 40, OK: true,
	}))

	rec := ts.get(t, "/status.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, testNow.Unix(), got.Time)
	assert.Equal(t, string(ProxyExclusive), got.ProxyMode)

	require.Len(t, got.Feeds, 2)
	byFeed := make(map[string]statusFeed)
	for _, f := range got.Feeds {
		byFeed[f.Feed] = f
	}
	assert.True(t, byFeed["ssn"].OK)
	assert.Equal(t, testNow.Unix(), byFeed["ssn"].StartedAt)
	assert.True(t, byFeed["kindex"].OK)
}

func TestStatusRejectsNonGET(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/status.json", nil)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
