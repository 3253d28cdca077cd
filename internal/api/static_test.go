package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticServable(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/geomag/kindex.txt", true},
		{"/ssn/ssn-31.txt", true},
		{"/solar-flux/solar-flux-99.txt", true},
		{"/Bz/Bz.txt", true},
		{"/NOAASpaceWX/noaaswx.txt", true},
		{"/cty/cty_wt_mod-ll-dxcc.txt", true},
		{"/worldwx/wx.txt", true},
		{"/contests/contests311.txt", true},
		// Bare filenames are matched by extension.
		{"/onta.txt", true},
		{"/map-D-660x330-Countries.bmp", true},
		{"/drap-330x165.bmp.z", true},
		// Everything else falls through to 404.
		{"/index.html", false},
		{"/favicon.ico", false},
		{"/fetchVOACAPArea.pl", false},
		{"/", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, staticServable(c.path), c.path)
	}
}

func TestStaticServesTextArtifact(t *testing.T) {
	ts := newTestServer(t)
	body := "2026 02 03  2 2 1 3  1 2 3 4\n"
	require.NoError(t, ts.store.WriteFile([]byte(body), "geomag", "kindex.txt"))

	rec := ts.get(t, "/geomag/kindex.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, body, rec.Body.String())

	rec = ts.get(t, "/geomag/missing.txt")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticServesCompressedArtifactAsBinary(t *testing.T) {
	ts := newTestServer(t)
	blob := []byte{0x78, 0x9c, 0x01, 0x00, 0xff, 0xfe}
	require.NoError(t, ts.store.WriteFile(blob, "NOAASpaceWX", "drap-330x165.bmp.z"))

	rec := ts.get(t, "/NOAASpaceWX/drap-330x165.bmp.z")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, blob, rec.Body.Bytes())
}

func TestStaticServesWithClientPrefix(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.WriteFile([]byte("70\n"), "ssn", "ssn-31.txt"))

	rec := ts.get(t, "/ham/HamClock/ssn/ssn-31.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "70\n", rec.Body.String())
}

func TestStaticRejectsTraversal(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.WriteFile([]byte("secret"), "geomag", "kindex.txt"))

	// Bypass the mux so its path canonicalization cannot mask the guard.
	req := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	req.URL.Path = "/geomag/../geomag/kindex.txt"
	rec := httptest.NewRecorder()
	ts.handleStatic(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
