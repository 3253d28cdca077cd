// Package prop implements the empirical HF propagation model behind the map
// and band-condition endpoints. An immutable Engine carries the color
// tables, background maps and tuning constants; evaluations are pure
// functions of the request plus a space-weather snapshot, so results are
// memoized by request fingerprint.
//
// The model is not a physical ionosphere simulation. It composes solar
// zenith, terminator geometry, geomagnetic latitude and skip-distance
// resonance into MUF and reliability fields that track the general shape of
// full VOACAP runs at a tiny fraction of the cost.
package prop

import (
	"context"
	"fmt"

	"github.com/ctessum/requestcache"

	"github.com/banshee-data/propagation.report/internal/config"
	"github.com/banshee-data/propagation.report/internal/geo"
	"github.com/banshee-data/propagation.report/internal/render"
)

// Field selects which scalar a map render colors.
type Field int

const (
	// FieldREL colors path reliability.
	FieldREL Field = iota
	// FieldMUF colors maximum usable frequency.
	FieldMUF
	// FieldTOA colors takeoff angle where the path is open.
	FieldTOA
)

func (f Field) String() string {
	switch f {
	case FieldMUF:
		return "MUF"
	case FieldTOA:
		return "TOA"
	default:
		return "REL"
	}
}

// Request is one map evaluation. Point evaluations use PointRequest instead.
type Request struct {
	TxLat, TxLng float64 // transmitter, degrees
	FreqMHz      float64 // 0 selects the MUF field regardless of Field
	TOA          float64 // requested takeoff angle, degrees
	Year, Month  int
	UTC          float64 // fractional hour, 0..24
	LongPath     bool
	Width        int // 0 defaults to the native map size
	Height       int
	Field        Field

	// WX is the space-weather snapshot the evaluation runs under. It is
	// deliberately not part of the cache fingerprint: maps regenerate when
	// their request parameters change, not mid-cycle.
	WX SpaceWX
}

// normalize fills defaults and resolves the MUF frequency sentinel. The MUF
// field never depends on the frequency, so it always evaluates as 0 MHz and
// equivalent requests share a cache entry.
func (r Request) normalize() Request {
	if r.Width <= 0 || r.Height <= 0 {
		r.Width, r.Height = render.MapWidth, render.MapHeight
	}
	if r.FreqMHz <= 0 || r.Field == FieldMUF {
		r.FreqMHz = 0
		r.Field = FieldMUF
	}
	if r.Month < 1 || r.Month > 12 {
		r.Month = 1
	}
	return r
}

// fingerprint is the memoization key: every request parameter quantised to
// two decimals, so equivalent float inputs land on the same cache entry.
func (r Request) fingerprint() string {
	path := "SP"
	if r.LongPath {
		path = "LP"
	}
	return fmt.Sprintf("map_%.2f_%.2f_%.2f_%.2f_%d_%d_%.2f_%dx%d_%s_%s",
		r.TxLat, r.TxLng, r.FreqMHz, r.TOA, r.Year, r.Month, r.UTC,
		r.Width, r.Height, path, r.Field)
}

// PointRequest is a single TX→RX evaluation, used by the band-condition
// table.
type PointRequest struct {
	TxLat, TxLng float64
	RxLat, RxLng float64
	FreqMHz      float64
	TOA          float64
	Month        int
	UTC          float64
	LongPath     bool
	WX           SpaceWX
}

// MapResult is the rendered pair of zlib blobs: the full-intensity frame and
// its channel-halved dimmed copy.
type MapResult struct {
	Primary []byte
	Dimmed  []byte
}

// Engine evaluates propagation requests. It is immutable after NewEngine
// and safe for concurrent use; all request state lives on the stack or in
// the memoization cache.
type Engine struct {
	bg  *render.Background
	muf *render.Scale
	rel *render.Scale
	toa *render.Scale

	slope         float64
	threshold     float64
	pathLossCoeff float64
	absCoeff      float64
	absExp        float64
	dither        bool
	smoothPasses  int

	cache *requestcache.Cache
}

// NewEngine builds the immutable evaluation context from the background
// maps and tuning constants. The map memoization cache is sized from the
// tuning config and deduplicates concurrent identical requests.
func NewEngine(bg *render.Background, tuning *config.TuningConfig) *Engine {
	e := &Engine{
		bg:            bg,
		muf:           render.MUFScale,
		rel:           render.RELScale,
		toa:           render.TOAScale,
		slope:         tuning.GetLogisticSlope(),
		threshold:     tuning.GetLogisticThreshold(),
		pathLossCoeff: tuning.GetPathLossCoefficient(),
		absCoeff:      tuning.GetAbsorptionCoeff(),
		absExp:        tuning.GetAbsorptionExponent(),
		dither:        tuning.GetDitherEnabled(),
		smoothPasses:  tuning.GetSmoothPasses(),
	}
	// One processor: a single render already fans out across the CPUs, so
	// distinct maps queue rather than oversubscribe.
	e.cache = requestcache.NewCache(e.process, 1,
		requestcache.Deduplicate(), requestcache.Memory(tuning.GetMapCacheSize()))
	return e
}

// process renders a map for the memoization cache.
func (e *Engine) process(_ context.Context, payload interface{}) (interface{}, error) {
	return e.renderMap(payload.(Request))
}

// Map returns the rendered map pair for the request, from cache when the
// fingerprint has been evaluated before.
func (e *Engine) Map(ctx context.Context, req Request) (*MapResult, error) {
	req = req.normalize()
	r := e.cache.NewRequest(ctx, req, req.fingerprint())
	result, err := r.Result()
	if err != nil {
		return nil, fmt.Errorf("render %s map: %w", req.Field, err)
	}
	return result.(*MapResult), nil
}

// Point evaluates a single path and returns the predicted MUF in MHz and
// reliability in [0,1]. No post-processing is applied.
func (e *Engine) Point(req PointRequest) (mufMHz, rel float64) {
	pc := e.newPathContext(req.TxLat, req.TxLng, req.FreqMHz, req.TOA,
		req.Month, req.UTC, req.LongPath, req.WX)
	res := e.evalPath(pc, geo.DegToRad(req.RxLat), geo.DegToRad(req.RxLng))
	return res.MUF, res.REL
}
