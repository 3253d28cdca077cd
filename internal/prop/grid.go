package prop

import (
	"math"
	"runtime"
	"sync"

	"github.com/banshee-data/propagation.report/internal/geo"
	"github.com/banshee-data/propagation.report/internal/render"
)

// noPathTOA is the takeoff-angle value rendered where reliability is too low
// for a usable path; it lands on the gray end of the TOA scale.
const noPathTOA = 40.0

// renderMap evaluates the scalar field for every pixel, post-processes it
// and renders the primary/dimmed frame pair.
func (e *Engine) renderMap(req Request) (*MapResult, error) {
	w, h := req.Width, req.Height
	pc := e.newPathContext(req.TxLat, req.TxLng, req.FreqMHz, req.TOA,
		req.Month, req.UTC, req.LongPath, req.WX)

	// Pixel centers: row 0 is +90°, column 0 is −180°.
	latRad := make([]float64, h)
	for y := 0; y < h; y++ {
		latRad[y] = geo.DegToRad(90.0 - float64(y)*180.0/float64(h))
	}
	lngRad := make([]float64, w)
	for x := 0; x < w; x++ {
		lngRad[x] = geo.DegToRad(-180.0 + float64(x)*360.0/float64(w))
	}

	vals := make([]float64, w*h)
	dists := make([]float64, w*h)

	// The per-pixel evaluations are independent; fan rows out across the
	// CPUs. Each worker owns whole rows so there is no sharing inside one.
	rows := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < maxWorkers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := range rows {
				for x := 0; x < w; x++ {
					res := e.evalPath(pc, latRad[y], lngRad[x])
					idx := y*w + x
					if req.Field == FieldMUF {
						vals[idx] = res.MUF
					} else {
						vals[idx] = res.REL
					}
					dists[idx] = res.DistKm
				}
			}
		}()
	}
	for y := 0; y < h; y++ {
		rows <- y
	}
	close(rows)
	wg.Wait()

	for i := 0; i < e.smoothPasses; i++ {
		vals = smoothWrapX(vals, w, h)
	}

	frame := e.colorize(req, pc, latRad, lngRad, vals, dists)

	primary, err := frame.Encode(render.DefaultPixelsPerMetre)
	if err != nil {
		return nil, err
	}
	dimmed, err := frame.Dimmed().Encode(render.DefaultPixelsPerMetre)
	if err != nil {
		return nil, err
	}
	return &MapResult{Primary: primary, Dimmed: dimmed}, nil
}

// smoothWrapX applies one pass of the 5-point smoother (center weight 4,
// each neighbor 1, /8) to the interior rows. The x axis wraps, so the 180°
// meridian seam smooths like any other column; the poles are left as-is.
func smoothWrapX(vals []float64, w, h int) []float64 {
	out := make([]float64, len(vals))
	copy(out, vals)
	for y := 1; y < h-1; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			left := row + (x-1+w)%w
			right := row + (x+1)%w
			out[row+x] = (vals[row+x]*4.0 +
				vals[left] + vals[right] +
				vals[row+x-w] + vals[row+x+w]) / 8.0
		}
	}
	return out
}

// colorize turns the scalar field into an RGB565 frame: deterministic
// dither, reliability banding with the grayline ducting bump, color table
// lookup, alpha blend over the country background, border mask.
func (e *Engine) colorize(req Request, pc *pathContext, latRad, lngRad, vals, dists []float64) *render.Frame565 {
	w, h := req.Width, req.Height
	bg := e.bg.Countries.Resize(w, h)
	frame := render.NewFrame565(w, h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			val := vals[idx]

			// Fixed per-pixel grain so equal requests render equal bytes.
			var grain float64
			if e.dither {
				grain = float64(((x*13)^(y*17))&7)/100.0 - 0.035
			}

			var c uint16
			var norm float64
			if req.Field == FieldMUF {
				vg := geo.Clamp(val+grain*5.0, 0, 50)
				c = e.muf.At(vg)
				norm = vg / 50.0
			} else {
				vg := geo.Clamp(val+grain, 0, 1)

				// Ducting bump when both endpoints sit on the terminator.
				cosZRx := geo.CosSolarZenith(latRad[y], lngRad[x], pc.dec, pc.subLng)
				duct := 0.85 * math.Exp(-sq(math.Min(math.Abs(pc.cosZTx), math.Abs(cosZRx))/0.07))

				relV := vg * 100.0 * (1.0 + duct)
				relV = math.Round(relV/10.0) * 10.0

				if req.Field == FieldTOA {
					if relV > 20.0 {
						c = e.toa.At(2.0 + dists[idx]/1000.0*8.0)
					} else {
						c = e.toa.At(noPathTOA)
					}
				} else {
					c = e.rel.At(relV)
				}
				norm = vg
			}

			alpha := 0.4 + 0.4*norm
			c = blend565(c, bg.At(x, y), alpha)
			if e.bg.MaskedAt(x, y, w, h) {
				c = 0
			}
			frame.Set(x, y, c)
		}
	}
	return frame
}

// blend565 mixes top over bottom with the given alpha in 8-bit space.
func blend565(top, bottom uint16, alpha float64) uint16 {
	tr, tg, tb := render.Unpack565(top)
	br, bg, bb := render.Unpack565(bottom)
	r := uint8(float64(tr)*alpha + float64(br)*(1.0-alpha))
	g := uint8(float64(tg)*alpha + float64(bg)*(1.0-alpha))
	b := uint8(float64(tb)*alpha + float64(bb)*(1.0-alpha))
	return render.Pack565(r, g, b)
}

func maxWorkers() int {
	// Rendering is pure CPU; more workers than cores just adds scheduling.
	if n := runtime.NumCPU(); n >= 1 {
		return n
	}
	return 1
}
