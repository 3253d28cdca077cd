package render

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/propagation.report/internal/fsutil"
)

func inflate(t *testing.T, blob []byte) []byte {
	t.Helper()
	zr, err := zlib.NewReader(bytes.NewReader(blob))
	require.NoError(t, err)
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	return raw
}

func TestPack565(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    uint16
	}{
		{"black", 0x00, 0x00, 0x00, 0x0000},
		{"white", 0xFF, 0xFF, 0xFF, 0xFFFF},
		{"pure red", 0xF8, 0x00, 0x00, 0xF800},
		{"pure green", 0x00, 0xFC, 0x00, 0x07E0},
		{"pure blue", 0x00, 0x00, 0xF8, 0x001F},
		{"low bits dropped", 0x07, 0x03, 0x07, 0x0000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Pack565(tt.r, tt.g, tt.b))
		})
	}
}

func TestUnpack565RoundTrip(t *testing.T) {
	// Channels with zero low bits survive a pack/unpack cycle unchanged.
	r, g, b := Unpack565(Pack565(0x40, 0x80, 0xF8))
	assert.Equal(t, uint8(0x40), r)
	assert.Equal(t, uint8(0x80), g)
	assert.Equal(t, uint8(0xF8), b)
}

func TestDim565(t *testing.T) {
	tests := []struct {
		name string
		in   uint16
		want uint16
	}{
		{"black stays black", 0x0000, 0x0000},
		{"white halves per channel", 0xFFFF, Pack565(0x78, 0x7C, 0x78)},
		{"pure red", 0xF800, 0x7800},
		{"pure green", 0x07E0, 0x03E0},
		{"pure blue", 0x001F, 0x000F},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Dim565(tt.in))
		})
	}
}

func TestHeader565(t *testing.T) {
	tests := []struct {
		name           string
		width, height  int
		pixelsPerMetre int
		wantStride     int
	}{
		{"map frame", 660, 330, DefaultPixelsPerMetre, 1320},
		{"odd width pads stride", 91, 45, 0, 184},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Header565(tt.width, tt.height, tt.pixelsPerMetre)
			require.Len(t, h, Prefix565Len)

			le := binary.LittleEndian
			pixBytes := tt.wantStride * tt.height
			assert.Equal(t, byte('B'), h[0])
			assert.Equal(t, byte('M'), h[1])
			assert.Equal(t, uint32(Prefix565Len+pixBytes), le.Uint32(h[2:6]))
			assert.Equal(t, uint32(Prefix565Len), le.Uint32(h[10:14]))
			assert.Equal(t, uint32(108), le.Uint32(h[14:18]))
			assert.Equal(t, int32(tt.width), int32(le.Uint32(h[18:22])))
			assert.Equal(t, int32(-tt.height), int32(le.Uint32(h[22:26])))
			assert.Equal(t, uint16(1), le.Uint16(h[26:28]))
			assert.Equal(t, uint16(16), le.Uint16(h[28:30]))
			assert.Equal(t, uint32(3), le.Uint32(h[30:34]))
			assert.Equal(t, uint32(pixBytes), le.Uint32(h[34:38]))
			assert.Equal(t, int32(tt.pixelsPerMetre), int32(le.Uint32(h[38:42])))
			assert.Equal(t, int32(tt.pixelsPerMetre), int32(le.Uint32(h[42:46])))
			assert.Equal(t, uint32(0xF800), le.Uint32(h[54:58]))
			assert.Equal(t, uint32(0x07E0), le.Uint32(h[58:62]))
			assert.Equal(t, uint32(0x001F), le.Uint32(h[62:66]))
			assert.Equal(t, uint32(0), le.Uint32(h[66:70]))
			assert.Equal(t, uint32(1), le.Uint32(h[70:74]))
			assert.Equal(t, make([]byte, 48), h[74:122])
		})
	}
}

func TestHeader565Deterministic(t *testing.T) {
	assert.Equal(t, Header565(660, 330, 3780), Header565(660, 330, 3780))
}

func TestFrame565EncodeDecode(t *testing.T) {
	frame := NewFrame565(8, 4)
	for i := range frame.Pix {
		frame.Pix[i] = uint16(i * 2053)
	}

	blob, err := frame.Encode(DefaultPixelsPerMetre)
	require.NoError(t, err)

	raw := inflate(t, blob)
	assert.Equal(t, frame.EncodeRaw(DefaultPixelsPerMetre), raw)

	decoded, err := DecodeFrame565(raw)
	require.NoError(t, err)
	assert.Equal(t, frame.Width, decoded.Width)
	assert.Equal(t, frame.Height, decoded.Height)
	assert.Equal(t, frame.Pix, decoded.Pix)
}

func TestDecodeFrame565Errors(t *testing.T) {
	_, err := DecodeFrame565([]byte("short"))
	assert.Error(t, err)

	bad := Header565(2, 2, 0)
	bad[0] = 'X'
	_, err = DecodeFrame565(append(bad, make([]byte, 16)...))
	assert.Error(t, err)

	deep := Header565(2, 2, 0)
	deep[28] = 24
	_, err = DecodeFrame565(append(deep, make([]byte, 16)...))
	assert.Error(t, err)

	_, err = DecodeFrame565(Header565(660, 330, 0))
	assert.Error(t, err, "missing pixel payload")
}

func TestFrame565Dimmed(t *testing.T) {
	frame := NewFrame565(2, 1)
	frame.Set(0, 0, 0xFFFF)
	frame.Set(1, 0, Pack565(0x40, 0x80, 0xF8))

	dim := frame.Dimmed()
	assert.Equal(t, Dim565(0xFFFF), dim.At(0, 0))
	assert.Equal(t, Pack565(0x20, 0x40, 0x78), dim.At(1, 0))
	assert.Equal(t, uint16(0xFFFF), frame.At(0, 0), "source frame unchanged")
}

func TestEncode24(t *testing.T) {
	rgb := []byte{
		1, 2, 3, 4, 5, 6, // top row
		7, 8, 9, 10, 11, 12,
	}
	blob, err := Encode24(2, 2, rgb)
	require.NoError(t, err)

	raw := inflate(t, blob)
	require.Len(t, raw, 54+8*2)

	le := binary.LittleEndian
	assert.Equal(t, byte('B'), raw[0])
	assert.Equal(t, byte('M'), raw[1])
	assert.Equal(t, uint32(len(raw)), le.Uint32(raw[2:6]))
	assert.Equal(t, uint32(54), le.Uint32(raw[10:14]))
	assert.Equal(t, uint32(40), le.Uint32(raw[14:18]))
	assert.Equal(t, int32(2), int32(le.Uint32(raw[18:22])))
	assert.Equal(t, int32(2), int32(le.Uint32(raw[22:26])), "bottom-up height is positive")
	assert.Equal(t, uint16(24), le.Uint16(raw[28:30]))
	assert.Equal(t, make([]byte, 12), raw[34:46], "image size and resolutions zeroed")

	// Bottom row first, BGR order, rows padded to 4 bytes.
	want := []byte{
		9, 8, 7, 12, 11, 10, 0, 0,
		3, 2, 1, 6, 5, 4, 0, 0,
	}
	assert.Equal(t, want, raw[54:])
}

func TestEncode24SizeMismatch(t *testing.T) {
	_, err := Encode24(4, 4, []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestScaleTableSizes(t *testing.T) {
	assert.Equal(t, 501, MUFScale.Len())
	assert.Equal(t, 1001, RELScale.Len())
	assert.Equal(t, 401, TOAScale.Len())
	assert.Equal(t, 301, DRAPScale.Len())
}

func TestScaleAnchorsExact(t *testing.T) {
	tests := []struct {
		name    string
		scale   *Scale
		value   float64
		r, g, b uint8
	}{
		{"muf floor", MUFScale, 0, 0x00, 0x00, 0x00},
		{"muf top", MUFScale, 35, 0xE9, 0x33, 0x23},
		{"rel floor", RELScale, 0, 0x66, 0x66, 0x66},
		{"rel top", RELScale, 100, 0x44, 0xCC, 0x44},
		{"toa floor", TOAScale, 0, 0x44, 0xCC, 0x44},
		{"toa top", TOAScale, 40, 0x66, 0x66, 0x66},
		{"drap top", DRAPScale, 30, 0xE9, 0x33, 0x23},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Pack565(tt.r, tt.g, tt.b), tt.scale.At(tt.value))
		})
	}
}

func TestScaleInterpolatesChannels(t *testing.T) {
	// Halfway between (0, 0x000000) and (4, 0x4E138A).
	assert.Equal(t, Pack565(39, 9, 69), MUFScale.At(2))
}

func TestScaleClamps(t *testing.T) {
	assert.Equal(t, MUFScale.At(0), MUFScale.At(-3))
	assert.Equal(t, MUFScale.At(50), MUFScale.At(35), "table extends flat past last anchor")
	assert.Equal(t, DRAPScale.At(30), DRAPScale.At(95))
	assert.Equal(t, TOAScale.At(40), TOAScale.At(88))
}

func TestScalePlateau(t *testing.T) {
	want := Pack565(0xEE, 0xEE, 0x44)
	assert.Equal(t, want, RELScale.At(45))
	assert.Equal(t, want, RELScale.At(55))
}

func TestNewScaleRejectsBadInput(t *testing.T) {
	_, err := NewScale(0, []Anchor{{0, 0}, {1, 1}})
	assert.Error(t, err)

	_, err = NewScale(10, []Anchor{{5, 0}, {1, 1}})
	assert.Error(t, err, "anchors must be strictly increasing")
}

func TestSynthesizeAndLoadBackground(t *testing.T) {
	memfs := fsutil.NewMemoryFileSystem()
	dir := "/data/maps"
	require.NoError(t, SynthesizeBackground(memfs, dir))

	bg, err := LoadBackground(memfs, dir)
	require.NoError(t, err)
	assert.Equal(t, MapWidth, bg.Countries.Width)
	assert.Equal(t, MapHeight, bg.Countries.Height)
	assert.Equal(t, MapWidth, bg.Terrain.Width)
	assert.Equal(t, MapHeight, bg.Terrain.Height)
	assert.Nil(t, bg.Mask)

	assert.Same(t, bg.Countries, bg.Frame("countries"))
	assert.Same(t, bg.Terrain, bg.Frame("terrain"))
	assert.Same(t, bg.Countries, bg.Frame(""), "unknown style falls back")

	assert.False(t, bg.MaskedAt(20, 10, MapWidth, MapHeight))
}

func TestSynthesizeBackgroundDeterministic(t *testing.T) {
	memfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, SynthesizeBackground(memfs, "/maps"))
	first, err := memfs.ReadFile("/maps/" + CountriesMapFile)
	require.NoError(t, err)

	require.NoError(t, SynthesizeBackground(memfs, "/maps"))
	second, err := memfs.ReadFile("/maps/" + CountriesMapFile)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoadBackgroundMissingMaps(t *testing.T) {
	_, err := LoadBackground(fsutil.NewMemoryFileSystem(), "/maps")
	assert.Error(t, err)
}

func TestLoadBackgroundMask(t *testing.T) {
	memfs := fsutil.NewMemoryFileSystem()
	dir := "/maps"
	require.NoError(t, SynthesizeBackground(memfs, dir))

	mask := make([]byte, MapWidth*MapHeight)
	mask[10*MapWidth+20] = 1
	require.NoError(t, memfs.WriteFile(filepath.Join(dir, CountryMaskFile), mask, 0o644))

	bg, err := LoadBackground(memfs, dir)
	require.NoError(t, err)
	require.NotNil(t, bg.Mask)

	assert.True(t, bg.MaskedAt(20, 10, MapWidth, MapHeight))
	assert.False(t, bg.MaskedAt(21, 10, MapWidth, MapHeight))
	assert.True(t, bg.MaskedAt(40, 20, 2*MapWidth, 2*MapHeight), "nearest cell at doubled size")
}

func TestLoadBackgroundMaskWrongSize(t *testing.T) {
	memfs := fsutil.NewMemoryFileSystem()
	dir := "/maps"
	require.NoError(t, SynthesizeBackground(memfs, dir))
	require.NoError(t, memfs.WriteFile(filepath.Join(dir, CountryMaskFile), []byte{1, 2, 3}, 0o644))

	_, err := LoadBackground(memfs, dir)
	assert.Error(t, err)
}

func TestFrameResize(t *testing.T) {
	frame := NewFrame565(660, 330)
	fill := Pack565(0x40, 0x80, 0xF8)
	for i := range frame.Pix {
		frame.Pix[i] = fill
	}

	same := frame.Resize(660, 330)
	assert.Same(t, frame, same)

	small := frame.Resize(330, 165)
	require.Equal(t, 330, small.Width)
	require.Equal(t, 165, small.Height)
	for _, c := range small.Pix {
		require.Equal(t, fill, c)
	}
}

func TestResizeGrid(t *testing.T) {
	grid := [][]float64{
		{5, 5},
		{5, 5},
	}
	out := ResizeGrid(grid, 4, 4)
	require.Len(t, out, 4)
	for _, row := range out {
		require.Len(t, row, 4)
		for _, v := range row {
			assert.InDelta(t, 5.0, v, 0.001)
		}
	}

	assert.Nil(t, ResizeGrid(nil, 4, 4))
	assert.Nil(t, ResizeGrid([][]float64{}, 4, 4))
}
