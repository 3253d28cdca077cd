package api

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pskReportXML carries one fully populated spot and one missing the
// optional attributes, plus an element type the decoder must skip.
const pskReportXML = `<?xml version="1.0"?>
<receptionReports currentSeconds="1770120030">
<activeReceiver callsign="VK2ABC" locator="QF56od" mode="FT8"/>
<receptionReport receiverCallsign="VK2ABC" receiverLocator="QF56od" senderCallsign="K1TEST" senderLocator="FN42bl" frequency="14074123" mode="FT8" snr="-12" flowStartSeconds="1770119000"/>
<receptionReport receiverCallsign="JA1XYZ" receiverLocator="PM95" senderCallsign="K1TEST" senderLocator="FN42bl" mode="FT4"/>
</receptionReports>`

func TestSpotsCSVRows(t *testing.T) {
	ts := newTestServer(t)
	ts.client.AddResponse(http.StatusOK, pskReportXML)

	rec := ts.get(t, "/fetchPSKReporter.pl?bycall=K1TEST")
	require.Equal(t, http.StatusOK, rec.Code)

	// Missing frequency and snr default to 0; a missing timestamp is
	// filled with the current time. No trailing newline.
	want := "1770119000,FN42bl,K1TEST,QF56od,VK2ABC,FT8,14074123,-12\n" +
		"1770120030,FN42bl,K1TEST,PM95,JA1XYZ,FT4,0,0"
	assert.Equal(t, want, rec.Body.String())
}

func TestSpotsQueryOrientation(t *testing.T) {
	cases := []struct {
		name   string
		target string
		param  string
		value  string
	}{
		{"bycall is the sender", "/fetchPSKReporter.pl?bycall=K1TEST", "senderCallsign", "K1TEST"},
		{"bare call is the sender", "/fetchPSKReporter.pl?call=K1TEST", "senderCallsign", "K1TEST"},
		{"ofcall is the receiver", "/fetchPSKReporter.pl?ofcall=W1AW", "receiverCallsign", "W1AW"},
		{"grid queries the receive side", "/fetchPSKReporter.pl?grid=PM95", "receiverGridSquare", "PM95"},
		{"ofgrid queries the receive side", "/fetchPSKReporter.pl?ofgrid=PM95", "receiverGridSquare", "PM95"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.client.AddResponse(http.StatusOK, pskReportXML)

			rec := ts.get(t, c.target)
			require.Equal(t, http.StatusOK, rec.Code)

			req := ts.client.GetRequest(0)
			require.NotNil(t, req)
			q := req.URL.Query()
			assert.Equal(t, c.value, q.Get(c.param))
			assert.Equal(t, "-1800", q.Get("flowStartSeconds"))
			assert.Equal(t, "1", q.Get("no_antennas"))
		})
	}
}

func TestSpotsMaxAge(t *testing.T) {
	ts := newTestServer(t)
	ts.client.AddResponse(http.StatusOK, pskReportXML)

	rec := ts.get(t, "/fetchPSKReporter.pl?bycall=K1TEST&maxage=900")
	require.Equal(t, http.StatusOK, rec.Code)

	req := ts.client.GetRequest(0)
	require.NotNil(t, req)
	assert.Equal(t, "-900", req.URL.Query().Get("flowStartSeconds"))
}

func TestSpotsRejectsBadQueries(t *testing.T) {
	cases := []string{
		"/fetchPSKReporter.pl",                              // neither call nor grid
		"/fetchPSKReporter.pl?bycall=K1TEST&maxage=soon",    // unparseable age
		"/fetchPSKReporter.pl?bycall=K1TEST&maxage=0",       // below minimum
		"/fetchPSKReporter.pl?bycall=K1TEST&maxage=100000",  // above maximum
		"/fetchPSKReporter.pl?bycall=THIRTEENCHARSX",        // call too long
		"/fetchPSKReporter.pl?grid=QF56%2Fod",               // grid not alphanumeric
	}
	for _, target := range cases {
		ts := newTestServer(t)
		rec := ts.get(t, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Zero(t, ts.client.RequestCount(), target)
	}
}

func TestSpotsUpstreamFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.client.AddResponse(http.StatusServiceUnavailable, "busy")

	rec := ts.get(t, "/fetchPSKReporter.pl?bycall=K1TEST")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestParseSpotsQueryPrecedence(t *testing.T) {
	// bycall wins over call; of* is only consulted when both primary
	// forms are absent.
	req, err := parseSpotsQuery(url.Values{
		"bycall": {"K1AAA"}, "call": {"K1BBB"}, "ofcall": {"K1CCC"},
	})
	require.NoError(t, err)
	assert.Equal(t, "K1AAA", req.Call)
	assert.False(t, req.IsReceiver)

	req, err = parseSpotsQuery(url.Values{"ofcall": {"K1CCC"}})
	require.NoError(t, err)
	assert.Equal(t, "K1CCC", req.Call)
	assert.True(t, req.IsReceiver)
}
