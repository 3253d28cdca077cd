package render

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
)

// Anchor ties a scalar value to a 24-bit 0xRRGGBB color.
type Anchor struct {
	Value float64
	RGB   uint32
}

// Scale maps scalar values to RGB565 colors through a dense lookup table
// expanded from piecewise-linear anchors at one-tenth resolution.
// Values outside the anchor domain clamp to the endpoint colors.
type Scale struct {
	table []uint16
}

// Color scales shared by the propagation and absorption renderers. Each
// table entry i holds the color for value i/10.
var (
	// MUFScale colors maximum usable frequency, 0 to 50 MHz.
	MUFScale = mustScale(501, []Anchor{
		{0, 0x000000}, {4, 0x4E138A}, {9, 0x001EF5}, {15, 0x78FBD6},
		{20, 0x78FA4D}, {27, 0xFEFD54}, {30, 0xEC6F2D}, {35, 0xE93323},
	})

	// RELScale colors path reliability, 0 to 100 percent.
	RELScale = mustScale(1001, []Anchor{
		{0, 0x666666}, {21, 0xEE6766}, {40, 0xEEEE44}, {60, 0xEEEE44},
		{83, 0x44CC44}, {100, 0x44CC44},
	})

	// TOAScale colors takeoff angle, 0 to 40 degrees. The scale-end gray
	// doubles as the "no path" color.
	TOAScale = mustScale(401, []Anchor{
		{0, 0x44CC44}, {5, 0x44CC44}, {15, 0xEEEE44}, {25, 0xEE6766},
		{40, 0x666666},
	})

	// DRAPScale colors the highest affected frequency, 0 to 30 MHz.
	DRAPScale = mustScale(301, []Anchor{
		{0, 0x000000}, {4, 0x4E138A}, {9, 0x001EF5}, {15, 0x78FBD6},
		{20, 0x78FA4D}, {27, 0xFEFD54}, {30, 0xE93323},
	})
)

// NewScale expands anchors into a dense table of size entries, where entry
// i holds the color for value i/10. Anchors must be sorted by strictly
// increasing Value.
func NewScale(size int, anchors []Anchor) (*Scale, error) {
	if size < 1 {
		return nil, fmt.Errorf("scale size %d, want at least 1", size)
	}
	xs := make([]float64, len(anchors))
	red := make([]float64, len(anchors))
	green := make([]float64, len(anchors))
	blue := make([]float64, len(anchors))
	for i, a := range anchors {
		xs[i] = a.Value
		red[i] = float64(a.RGB >> 16 & 0xFF)
		green[i] = float64(a.RGB >> 8 & 0xFF)
		blue[i] = float64(a.RGB & 0xFF)
	}

	var r, g, b interp.PiecewiseLinear
	if err := r.Fit(xs, red); err != nil {
		return nil, fmt.Errorf("fit red channel: %w", err)
	}
	if err := g.Fit(xs, green); err != nil {
		return nil, fmt.Errorf("fit green channel: %w", err)
	}
	if err := b.Fit(xs, blue); err != nil {
		return nil, fmt.Errorf("fit blue channel: %w", err)
	}

	s := &Scale{table: make([]uint16, size)}
	for i := range s.table {
		v := float64(i) / 10
		s.table[i] = Pack565(uint8(r.Predict(v)), uint8(g.Predict(v)), uint8(b.Predict(v)))
	}
	return s, nil
}

func mustScale(size int, anchors []Anchor) *Scale {
	s, err := NewScale(size, anchors)
	if err != nil {
		panic(err)
	}
	return s
}

// At returns the color for v. The value is quantised to tenths and
// clamped to the table domain.
func (s *Scale) At(v float64) uint16 {
	i := int(v * 10)
	if i < 0 {
		i = 0
	}
	if i >= len(s.table) {
		i = len(s.table) - 1
	}
	return s.table[i]
}

// Len reports the number of entries in the lookup table.
func (s *Scale) Len() int { return len(s.table) }
