// Package render holds the bitmap codecs and color machinery for the map
// endpoints: RGB565 frame encoding, the piecewise-linear color scales, the
// background world maps and the bilinear resizer for upstream imagery.
package render

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
)

// Prefix565Len is the fixed length of the 16-bpp bitmap prefix: a 14-byte
// file header plus a 108-byte extended info header. The desktop client seeks
// straight past it, so it must be byte-identical across runs for equal
// dimensions.
const Prefix565Len = 122

// DefaultPixelsPerMetre is the print resolution stamped on propagation map
// frames. The DRAP overlay writes 0 instead.
const DefaultPixelsPerMetre = 3780

// RGB565 channel masks.
const (
	maskRed   = 0xF800
	maskGreen = 0x07E0
	maskBlue  = 0x001F
)

// Pack565 packs 8-bit RGB channels into a single RGB565 word.
func Pack565(r, g, b uint8) uint16 {
	return uint16(r&0xF8)<<8 | uint16(g&0xFC)<<3 | uint16(b)>>3
}

// Unpack565 expands an RGB565 word back to 8-bit channels. The low bits are
// zero-filled, matching what the client's renderer does.
func Unpack565(c uint16) (r, g, b uint8) {
	r = uint8(c>>11) << 3
	g = uint8(c>>5&0x3F) << 2
	b = uint8(c&0x1F) << 3
	return
}

// Dim565 halves each channel of an RGB565 word. The dimmed parity copy of a
// map frame is built this way from the primary, never by re-evaluating.
func Dim565(c uint16) uint16 {
	r := c >> 11 & 0x1F
	g := c >> 5 & 0x3F
	b := c & 0x1F
	return r>>1<<11 | g>>1<<5 | b>>1
}

// Header565 builds the 122-byte prefix for a top-down 16-bpp bit-field
// bitmap. pixelsPerMetre is written to both resolution fields; the map
// endpoints use 3780, the DRAP overlay writes 0. Row stride is rounded up to
// a 4-byte boundary, which equals 2·width for the even widths the grid
// produces.
func Header565(width, height, pixelsPerMetre int) []byte {
	rowBytes := (16*width + 31) / 32 * 4
	pixBytes := rowBytes * height

	h := make([]byte, Prefix565Len)
	le := binary.LittleEndian

	h[0], h[1] = 'B', 'M'
	le.PutUint32(h[2:], uint32(Prefix565Len+pixBytes)) // file size
	le.PutUint32(h[10:], Prefix565Len)                 // pixel offset

	le.PutUint32(h[14:], 108)                     // info header size
	le.PutUint32(h[18:], uint32(int32(width)))    // width, positive
	le.PutUint32(h[22:], uint32(int32(-height)))  // height, negative = top-down
	le.PutUint16(h[26:], 1)                       // planes
	le.PutUint16(h[28:], 16)                      // bits per pixel
	le.PutUint32(h[30:], 3)                       // BI_BITFIELDS
	le.PutUint32(h[34:], uint32(pixBytes))        // image size
	le.PutUint32(h[38:], uint32(pixelsPerMetre))  // horizontal resolution
	le.PutUint32(h[42:], uint32(pixelsPerMetre))  // vertical resolution
	le.PutUint32(h[54:], maskRed)                 // 46..53 palette fields stay zero
	le.PutUint32(h[58:], maskGreen)
	le.PutUint32(h[62:], maskBlue)
	le.PutUint32(h[70:], 1) // color space tag the client accepts as sRGB
	// 74..121: endpoints and gammas, all zero
	return h
}

// Frame565 is an uncompressed top-down RGB565 raster.
type Frame565 struct {
	Width, Height int
	Pix           []uint16 // row-major, len = Width*Height
}

// NewFrame565 allocates a zeroed frame.
func NewFrame565(width, height int) *Frame565 {
	return &Frame565{Width: width, Height: height, Pix: make([]uint16, width*height)}
}

// At returns the pixel at (x, y). No bounds checking beyond the slice's own.
func (f *Frame565) At(x, y int) uint16 { return f.Pix[y*f.Width+x] }

// Set writes the pixel at (x, y).
func (f *Frame565) Set(x, y int, c uint16) { f.Pix[y*f.Width+x] = c }

// Dimmed returns a copy of the frame with every channel halved.
func (f *Frame565) Dimmed() *Frame565 {
	out := NewFrame565(f.Width, f.Height)
	for i, c := range f.Pix {
		out.Pix[i] = Dim565(c)
	}
	return out
}

// Encode serializes the frame as header-plus-pixels with the given
// resolution fields and zlib-compresses the whole stream.
func (f *Frame565) Encode(pixelsPerMetre int) ([]byte, error) {
	raw := f.EncodeRaw(pixelsPerMetre)

	var out bytes.Buffer
	zw := zlib.NewWriter(&out)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress frame: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress frame: %w", err)
	}
	return out.Bytes(), nil
}

// EncodeRaw serializes the frame without compression: the 122-byte prefix
// followed by little-endian pixel words, rows padded to the 4-byte stride.
func (f *Frame565) EncodeRaw(pixelsPerMetre int) []byte {
	rowBytes := (16*f.Width + 31) / 32 * 4
	raw := make([]byte, Prefix565Len+rowBytes*f.Height)
	copy(raw, Header565(f.Width, f.Height, pixelsPerMetre))

	for y := 0; y < f.Height; y++ {
		row := raw[Prefix565Len+y*rowBytes:]
		for x := 0; x < f.Width; x++ {
			binary.LittleEndian.PutUint16(row[x*2:], f.Pix[y*f.Width+x])
		}
	}
	return raw
}

// DecodeFrame565 parses a frame produced by EncodeRaw (or any top-down
// 16-bpp bitmap with the same 122-byte prefix layout).
func DecodeFrame565(raw []byte) (*Frame565, error) {
	if len(raw) < Prefix565Len {
		return nil, fmt.Errorf("bitmap too short: %d bytes", len(raw))
	}
	if raw[0] != 'B' || raw[1] != 'M' {
		return nil, fmt.Errorf("not a bitmap: bad magic %q", raw[:2])
	}
	offset := binary.LittleEndian.Uint32(raw[10:14])
	width := int(int32(binary.LittleEndian.Uint32(raw[18:22])))
	height := int(int32(binary.LittleEndian.Uint32(raw[22:26])))
	if height < 0 {
		height = -height
	}
	bpp := binary.LittleEndian.Uint16(raw[28:30])
	if bpp != 16 {
		return nil, fmt.Errorf("unsupported depth %d bpp, want 16", bpp)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("bad dimensions %dx%d", width, height)
	}

	rowBytes := (16*width + 31) / 32 * 4
	need := int(offset) + rowBytes*height
	if len(raw) < need {
		return nil, fmt.Errorf("bitmap truncated: have %d bytes, need %d", len(raw), need)
	}

	f := NewFrame565(width, height)
	for y := 0; y < height; y++ {
		row := raw[int(offset)+y*rowBytes:]
		for x := 0; x < width; x++ {
			f.Pix[y*width+x] = binary.LittleEndian.Uint16(row[x*2:])
		}
	}
	return f, nil
}

// Encode24 serializes an RGB888 raster (row-major, 3 bytes per pixel, top
// row first) as a classic 40-byte-info bottom-up 24-bpp bitmap and
// zlib-compresses it. The image-size and resolution fields are written as
// zero, matching the byte layout the client's parser was verified against.
// Used for the solar-imagery transcodes.
func Encode24(width, height int, rgb []byte) ([]byte, error) {
	if len(rgb) != width*height*3 {
		return nil, fmt.Errorf("rgb payload is %d bytes, want %d", len(rgb), width*height*3)
	}

	rowBytes := (24*width + 31) / 32 * 4
	raw := make([]byte, 54+rowBytes*height)

	raw[0], raw[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(raw[2:6], uint32(len(raw)))
	binary.LittleEndian.PutUint32(raw[10:14], 54)
	binary.LittleEndian.PutUint32(raw[14:18], 40)
	binary.LittleEndian.PutUint32(raw[18:22], uint32(width))
	binary.LittleEndian.PutUint32(raw[22:26], uint32(height)) // positive = bottom-up
	binary.LittleEndian.PutUint16(raw[26:28], 1)
	binary.LittleEndian.PutUint16(raw[28:30], 24)
	// compression, image size, resolutions, palette fields all zero

	for y := 0; y < height; y++ {
		src := rgb[y*width*3:]
		dst := raw[54+(height-1-y)*rowBytes:]
		for x := 0; x < width; x++ {
			dst[x*3+0] = src[x*3+2] // B
			dst[x*3+1] = src[x*3+1] // G
			dst[x*3+2] = src[x*3+0] // R
		}
	}

	var out bytes.Buffer
	zw := zlib.NewWriter(&out)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress frame: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress frame: %w", err)
	}
	return out.Bytes(), nil
}
