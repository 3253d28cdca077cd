package feeds

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/propagation.report/internal/render"
)

const drapFixture = `#  Product Valid At :   2026-02-03 11:45 UTC
#  Lat |  Highest affected frequency (MHz)
#------|---------------------------
  60.0 |   0.0   2.0   4.0   6.0
  30.0 |   1.0   3.0   5.0  15.0
   0.0 |   0.5   1.5   2.2   1.0
`

func TestDRAPAppendsStatsHistory(t *testing.T) {
	c, mock, _ := newTestClient(t)
	require.NoError(t, c.Store.AppendLine("1770000000 : 1.00 2.00 1.50", "drap", "stats.history"))
	mock.AddResponse(200, drapFixture)

	require.NoError(t, NewDRAP(c).Refresh(context.Background()))

	validAt := time.Date(2026, 2, 3, 11, 45, 0, 0, time.UTC).Unix()
	rows := storeLines(t, c.Store, "drap", "stats.history")
	require.Len(t, rows, 2)
	assert.Equal(t, "1770000000 : 1.00 2.00 1.50", rows[0])
	assert.Equal(t, fmt.Sprintf("%d : 0.00 15.00 3.43", validAt), rows[1])
}

func TestDRAPRendersOverlayPair(t *testing.T) {
	c, mock, _ := newTestClient(t)
	mock.AddResponse(200, drapFixture)

	require.NoError(t, NewDRAP(c).Refresh(context.Background()))

	raw, err := c.Store.ReadFile("map-D-DRAP.bmp")
	require.NoError(t, err)
	frame, err := render.DecodeFrame565(raw)
	require.NoError(t, err)
	assert.Equal(t, drapMapWidth, frame.Width)
	assert.Equal(t, drapMapHeight, frame.Height)

	// Overlay headers carry zero resolution, unlike the map endpoints.
	assert.Zero(t, binary.LittleEndian.Uint32(raw[38:42]))
	assert.Zero(t, binary.LittleEndian.Uint32(raw[42:46]))

	colored := false
	for _, px := range frame.Pix {
		if px != 0 {
			colored = true
			break
		}
	}
	assert.True(t, colored, "rendered overlay has no colored pixels")

	z, err := c.Store.ReadFile("map-D-DRAP.bmp.z")
	require.NoError(t, err)
	zr, err := zlib.NewReader(bytes.NewReader(z))
	require.NoError(t, err)
	inflated, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, raw, inflated)
}

func TestDRAPRejectsMalformedGrid(t *testing.T) {
	c, mock, _ := newTestClient(t)
	mock.AddResponse(200, "  60.0 |   0.0   n/a\n")

	err := NewDRAP(c).Refresh(context.Background())

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindParse, fe.Kind)
	assert.False(t, c.Store.Exists("drap", "stats.history"))
	assert.False(t, c.Store.Exists("map-D-DRAP.bmp"))
}
