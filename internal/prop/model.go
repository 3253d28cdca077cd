package prop

import (
	"math"

	"github.com/banshee-data/propagation.report/internal/geo"
)

// SpaceWX is the space-weather snapshot a request is evaluated under. The
// caller reads it from the artifact tree at request time; when an artifact
// is missing the neutral defaults apply.
type SpaceWX struct {
	SSN       float64 // smoothed sunspot number
	Kp        float64 // planetary K index, 0..9
	Bz        float64 // IMF north-south component, nT
	WindSpeed float64 // solar wind speed, km/s
}

// NeutralSpaceWX returns quiet-sun defaults: SSN 70, zero Kp, zero Bz,
// zero wind.
func NeutralSpaceWX() SpaceWX {
	return SpaceWX{SSN: 70}
}

// Path sample positions along the great circle and their mixing weights.
// The midpoint dominates; the quarter points catch conditions near the
// endpoints.
var (
	sampleFracs   = [3]float64{0.25, 0.5, 0.75}
	sampleWeights = [3]float64{0.25, 0.5, 0.25}
)

// pathContext carries everything about a request that does not vary per
// receiver location: transmitter geometry, solar position, space weather
// and the model constants. Building it once per request keeps the inner
// pixel loop allocation-free.
type pathContext struct {
	freq     float64 // MHz; 0 evaluates MUF only
	toa      float64 // requested takeoff angle, degrees
	longPath bool

	txLat, txLng       float64 // radians
	sinTxLat, cosTxLat float64
	vTx                geo.Vec3

	dec, subLng    float64 // solar declination and subsolar longitude, radians
	sinDec, cosDec float64
	sAzTx          float64 // solar azimuth seen from TX
	cosZTx         float64 // cos solar zenith at TX, for grayline ducting

	mufBase    float64 // 5 + 0.1·SSN
	kpFactor   float64 // geomagnetic MUF depression, 0.5..1
	auroralLat float64 // |geomagnetic latitude| above which the oval penalty bites, degrees
	bzSouth    bool    // Bz < -1 nT
	windFast   bool    // wind speed > 550 km/s
}

func (e *Engine) newPathContext(txLatDeg, txLngDeg, freq, toa float64, month int, utc float64, longPath bool, wx SpaceWX) *pathContext {
	pc := &pathContext{
		freq:     freq,
		toa:      toa,
		longPath: longPath,
		txLat:    geo.DegToRad(txLatDeg),
		txLng:    geo.DegToRad(txLngDeg),
	}
	pc.sinTxLat, pc.cosTxLat = math.Sin(pc.txLat), math.Cos(pc.txLat)
	pc.vTx = geo.UnitVector(pc.txLat, pc.txLng)

	// Mid-month solar position; the seasonal term moves too slowly for the
	// day of month to matter at map resolution.
	pc.dec, pc.subLng = geo.SubsolarPoint(month, 15, utc)
	pc.sinDec, pc.cosDec = math.Sin(pc.dec), math.Cos(pc.dec)
	pc.sAzTx = geo.SolarAzimuth(pc.txLat, pc.txLng, pc.dec, pc.subLng)
	pc.cosZTx = geo.CosSolarZenith(pc.txLat, pc.txLng, pc.dec, pc.subLng)

	pc.mufBase = 5.0 + 0.1*wx.SSN
	pc.kpFactor = geo.Clamp(1.0-0.05*math.Max(0, wx.Kp-3.0), 0.5, 1.0)
	pc.auroralLat = 75.0 - 2.0*wx.Kp
	pc.bzSouth = wx.Bz < -1.0
	pc.windFast = wx.WindSpeed > 550.0
	return pc
}

// pathResult is one TX→RX evaluation: predicted MUF in MHz, reliability in
// [0,1], and the great-circle distance the caller may need for rendering.
type pathResult struct {
	MUF    float64
	REL    float64
	DistKm float64
}

// evalPath runs the three-sample path model for one receiver location.
// rxLat/rxLng are radians. Reliability stays zero when the context carries
// the MUF sentinel frequency.
func (e *Engine) evalPath(pc *pathContext, rxLat, rxLng float64) pathResult {
	distKm, az := geo.DistanceAzimuth(pc.txLat, pc.txLng, rxLat, rxLng)
	if pc.longPath {
		distKm, az = geo.LongPath(distKm, az)
	}

	// Alignment between the path heading and the terminator direction.
	// Propagation is enhanced along paths tangent to the grayline.
	relAz := geo.WrapPi(math.Abs(az - pc.sAzTx))
	grayTangent := 1.0 + 0.45*pow4(math.Cos(math.Abs(relAz)-math.Pi/2))
	magAz := 1.0 + 0.4*sq(math.Cos(az))
	combo := (grayTangent + magAz) / 2.0
	azimuthLayer := sq(math.Cos(relAz))

	fTrans := 1.0 / (1.0 + sq(pc.freq/35.0))
	vRx := geo.UnitVector(rxLat, rxLng)

	var mufSum, relSum float64
	for i, frac := range sampleFracs {
		sLat, sLng := geo.PathSample(pc.vTx, vRx, frac)
		sinSLat, cosSLat := math.Sin(sLat), math.Cos(sLat)

		cosZS := sinSLat*pc.sinDec + cosSLat*pc.cosDec*math.Cos(sLng-pc.subLng)

		// Solar zenith projected to the F-layer reflection height.
		sAng := math.Acos(geo.Clamp(cosZS, -1, 1))
		sProj := math.Asin(math.Min(1.0, geo.EarthRadiusKm/geo.FLayerRadiusKm*math.Sin(sAng)))
		cosZP := math.Cos(sProj)

		zenithLayer := math.Pow(math.Max(0, cosZP+0.1), 0.75)

		// Polar summer keeps a residual ionosphere through the long day.
		isPolar := (pc.dec < -0.1 && sLat < -0.8) || (pc.dec > 0.1 && sLat > 0.8)

		reflection := (0.4 + 0.6*zenithLayer) * (0.8 + 0.2*azimuthLayer)
		if cosZS <= -0.1 {
			floor := 0.0
			if isPolar {
				floor = 0.4 * math.Cos(sLat-pc.dec)
			}
			reflection = floor + (reflection-floor)*math.Exp((cosZS+0.1)*8.0)
		}

		refF := 1.0 + (distKm/1000.0)*(1.0-cosZP)*0.045*combo*fTrans*(1.1-0.1*azimuthLayer)

		magLat := geo.GeomagneticLatitude(sLat, sLng)
		magDeg := geo.RadToDeg(magLat)
		// Equatorial anomaly crests near ±15.5° geomagnetic.
		mBend := 0.85 + 0.65*math.Pow(math.Cos(magLat), 2.5) +
			1.1*(math.Exp(-sq((magDeg-15.5)/6.5))+math.Exp(-sq((magDeg+15.5)/6.5)))

		pMuf := pc.mufBase * reflection * mBend * pc.kpFactor
		mufSum += pMuf * sampleWeights[i]

		if pc.freq <= 0 {
			continue
		}

		// Polar cap absorption, strongest at high geomagnetic latitude and
		// low frequency.
		pcaLoss := math.Exp(-1.2 * pow4(math.Sin(magLat)) * math.Pow(20.0/pc.freq, 1.5))

		terminator := 1.0 / (1.0 + math.Exp(-35.0*(cosZS+0.04)))

		hLen := 3100.0 * (1.0 / (1.0 + pc.toa/35.0)) *
			(0.55 + 0.45*pc.freq/math.Max(0.5, pMuf)) * refF

		// Dual-ring skip-distance resonance.
		resonance := 0.45 + 3.4*(pow6(math.Cos(math.Pi*distKm/hLen))+
			0.55*pow4(math.Cos(math.Pi*distKm/(hLen*1.35))))

		eleAngle := math.Atan(900.0 / (math.Max(20.0, hLen) / 2.0))
		reflEff := math.Pow(math.Cos(math.Pi/2.0-eleAngle), 0.3)

		pathLoss := 1.0 / (1.0 + e.pathLossCoeff*distKm*(1.0/math.Max(0.2, combo)))

		absP := math.Exp(-e.absCoeff * terminator * zenithLayer * math.Pow(10.0/pc.freq, e.absExp))

		margin := (pMuf / pc.freq) * resonance * absP * reflEff * pathLoss * pcaLoss
		exponent := geo.Clamp(e.slope*(margin-e.threshold), -50, 50)
		pRel := 1.0 / (1.0 + math.Exp(-exponent))

		// Geomagnetic storm penalties.
		absMagDeg := math.Abs(magDeg)
		if pc.bzSouth && absMagDeg > pc.auroralLat {
			pRel *= 0.5
		}
		if pc.windFast && absMagDeg > 70.0 {
			pRel *= 0.8
		}

		relSum += pRel * sampleWeights[i]
	}

	return pathResult{MUF: mufSum, REL: relSum, DistKm: distKm}
}

func sq(v float64) float64   { return v * v }
func pow4(v float64) float64 { return sq(sq(v)) }
func pow6(v float64) float64 { s := sq(v); return s * s * s }
