package render

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/banshee-data/propagation.report/internal/fsutil"
)

// Native world map dimensions used by the client.
const (
	MapWidth  = 660
	MapHeight = 330
)

// Background map filenames expected under the maps directory.
const (
	CountriesMapFile = "map-D-660x330-Countries.bmp"
	TerrainMapFile   = "map-D-660x330-Terrain.bmp"
	CountryMaskFile  = "countries-mask.bin"
)

// Background holds the world maps that rendered frames are blended over.
type Background struct {
	Countries *Frame565
	Terrain   *Frame565

	// Mask marks border pixels forced to black, one byte per pixel of the
	// Countries frame, nonzero where masked. Nil when no mask file exists.
	Mask []byte
}

// LoadBackground reads the world maps from dir. Both map files must be
// present; the border mask is optional.
func LoadBackground(fsys fsutil.FileSystem, dir string) (*Background, error) {
	countries, err := loadFrame(fsys, filepath.Join(dir, CountriesMapFile))
	if err != nil {
		return nil, err
	}
	terrain, err := loadFrame(fsys, filepath.Join(dir, TerrainMapFile))
	if err != nil {
		return nil, err
	}
	bg := &Background{Countries: countries, Terrain: terrain}

	maskPath := filepath.Join(dir, CountryMaskFile)
	if fsys.Exists(maskPath) {
		mask, err := fsys.ReadFile(maskPath)
		if err != nil {
			return nil, fmt.Errorf("read country mask %s: %w", maskPath, err)
		}
		if len(mask) != countries.Width*countries.Height {
			return nil, fmt.Errorf("country mask %s is %d bytes, want %d",
				maskPath, len(mask), countries.Width*countries.Height)
		}
		bg.Mask = mask
	}
	return bg, nil
}

func loadFrame(fsys fsutil.FileSystem, path string) (*Frame565, error) {
	raw, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read background map %s: %w", path, err)
	}
	frame, err := DecodeFrame565(raw)
	if err != nil {
		return nil, fmt.Errorf("decode background map %s: %w", path, err)
	}
	return frame, nil
}

// Frame returns the background frame for the given style, "terrain" or
// "countries". Unknown styles fall back to the Countries frame.
func (b *Background) Frame(style string) *Frame565 {
	if style == "terrain" {
		return b.Terrain
	}
	return b.Countries
}

// MaskedAt reports whether the border mask covers the pixel at (x, y) in a
// frame of the given dimensions, mapping to the nearest mask cell.
func (b *Background) MaskedAt(x, y, width, height int) bool {
	if b.Mask == nil || width < 1 || height < 1 {
		return false
	}
	mx := x * b.Countries.Width / width
	my := y * b.Countries.Height / height
	return b.Mask[my*b.Countries.Width+mx] != 0
}

// SynthesizeBackground writes deterministic placeholder world maps to dir
// so the renderer can start before real map assets are installed. Existing
// files are overwritten.
func SynthesizeBackground(fsys fsutil.FileSystem, dir string) error {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create maps directory: %w", err)
	}
	if err := fsys.WriteFile(filepath.Join(dir, CountriesMapFile),
		synthCountries(MapWidth, MapHeight).EncodeRaw(DefaultPixelsPerMetre), 0o644); err != nil {
		return fmt.Errorf("write placeholder countries map: %w", err)
	}
	if err := fsys.WriteFile(filepath.Join(dir, TerrainMapFile),
		synthTerrain(MapWidth, MapHeight).EncodeRaw(DefaultPixelsPerMetre), 0o644); err != nil {
		return fmt.Errorf("write placeholder terrain map: %w", err)
	}
	return nil
}

// synthCountries draws a graticule every 30 degrees on black.
func synthCountries(width, height int) *Frame565 {
	frame := NewFrame565(width, height)
	line := Pack565(0x60, 0x60, 0x60)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x%(width/12) == 0 || y%(height/6) == 0 {
				frame.Set(x, y, line)
			}
		}
	}
	return frame
}

// synthTerrain draws an ocean-toned gradient.
func synthTerrain(width, height int) *Frame565 {
	frame := NewFrame565(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g := uint8(40 + 60*y/height)
			b := uint8(90 + 120*x/width)
			frame.Set(x, y, Pack565(20, g, b))
		}
	}
	return frame
}

// Resize scales the frame to width by height with bilinear filtering.
// The receiver is returned unchanged when dimensions already match.
func (f *Frame565) Resize(width, height int) *Frame565 {
	if width == f.Width && height == f.Height {
		return f
	}
	src := f.toRGBA()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return frameFromRGBA(dst)
}

// ResizeImage scales src to width by height with bilinear filtering.
func ResizeImage(src image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// ResizeGrid scales a row-major value grid to width by height with bilinear
// filtering through a 16-bit fixed-point intermediate, so precision is
// bounded by max(grid)/65535. Rows must have equal length. Returns nil for
// an empty grid.
func ResizeGrid(grid [][]float64, width, height int) [][]float64 {
	rows := len(grid)
	if rows == 0 || len(grid[0]) == 0 {
		return nil
	}
	cols := len(grid[0])

	var max float64
	for _, row := range grid {
		for _, v := range row {
			if v > max {
				max = v
			}
		}
	}
	if max <= 0 {
		max = 1
	}

	src := image.NewGray16(image.Rect(0, 0, cols, rows))
	for y, row := range grid {
		for x, v := range row {
			if v < 0 {
				v = 0
			}
			src.SetGray16(x, y, color.Gray16{Y: uint16(v / max * 65535)})
		}
	}
	dst := image.NewGray16(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := make([][]float64, height)
	for y := range out {
		out[y] = make([]float64, width)
		for x := range out[y] {
			out[y][x] = float64(dst.Gray16At(x, y).Y) / 65535 * max
		}
	}
	return out
}

func (f *Frame565) toRGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := Unpack565(f.Pix[y*f.Width+x])
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 0xFF})
		}
	}
	return img
}

func frameFromRGBA(img *image.RGBA) *Frame565 {
	bounds := img.Bounds()
	frame := NewFrame565(bounds.Dx(), bounds.Dy())
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			c := img.RGBAAt(bounds.Min.X+x, bounds.Min.Y+y)
			frame.Set(x, y, Pack565(c.R, c.G, c.B))
		}
	}
	return frame
}
