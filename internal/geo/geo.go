// Package geo provides the spherical-earth geometry used by the propagation
// model: subsolar position, great-circle distance/azimuth, 3-D unit-vector
// path interpolation and dipole geomagnetic latitude.
//
// All angles are radians unless a name says otherwise. The earth is treated
// as a sphere of radius 6371 km; the F-layer reflection height adds 350 km.
package geo

import "math"

const (
	// EarthRadiusKm is the mean spherical earth radius.
	EarthRadiusKm = 6371.0

	// FLayerRadiusKm is the earth radius plus the nominal 350 km F-layer
	// reflection height, used to project solar zenith angles onto the layer.
	FLayerRadiusKm = 6721.0

	// EarthCircumferenceKm is the great-circle circumference at EarthRadiusKm.
	EarthCircumferenceKm = 2 * math.Pi * EarthRadiusKm
)

// Geomagnetic dipole pole position (north).
const (
	poleLatDeg = 80.5
	poleLngDeg = -72.5
)

var (
	poleLat    = DegToRad(poleLatDeg)
	poleLng    = DegToRad(poleLngDeg)
	sinPoleLat = math.Sin(poleLat)
	cosPoleLat = math.Cos(poleLat)
)

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 { return deg * math.Pi / 180.0 }

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 { return rad * 180.0 / math.Pi }

// monthDays is the cumulative-day lookup base for day-of-year computation.
// Leap years are ignored; the model's seasonal term does not need them.
var monthDays = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// DayOfYear returns the 1-based ordinal day for (month, day) on a non-leap
// calendar. Month is 1..12; out-of-range months are clamped.
func DayOfYear(month, day int) int {
	if month < 1 {
		month = 1
	}
	if month > 12 {
		month = 12
	}
	doy := day
	for m := 0; m < month-1; m++ {
		doy += monthDays[m]
	}
	return doy
}

// SubsolarPoint returns the solar declination and subsolar longitude in
// radians for the given calendar month/day and fractional UTC hour. The
// declination follows the 23.44°·sin(2π(doy−81)/365.25) approximation; the
// subsolar longitude is (12−UTC)·15° with the equation of time ignored.
func SubsolarPoint(month, day int, utc float64) (decRad, lngRad float64) {
	doy := DayOfYear(month, day)
	dec := 23.44 * math.Sin(DegToRad(360.0/365.25*(float64(doy)-81.0)))
	subLng := (12.0 - utc) * 15.0
	return DegToRad(dec), DegToRad(subLng)
}

// DistanceAzimuth returns the great-circle distance in km and the initial
// azimuth (radians, atan2 convention on the local ENU frame) from the first
// point to the second. Inputs are radians.
func DistanceAzimuth(lat1, lng1, lat2, lng2 float64) (distKm, azRad float64) {
	sin1, cos1 := math.Sin(lat1), math.Cos(lat1)
	sin2, cos2 := math.Sin(lat2), math.Cos(lat2)
	dLon := lng2 - lng1

	y := math.Sin(dLon) * cos2
	x := cos1*sin2 - sin1*cos2*math.Cos(dLon)
	az := math.Atan2(y, x)

	cosC := sin1*sin2 + cos1*cos2*math.Cos(dLon)
	dist := math.Acos(Clamp(cosC, -1, 1)) * EarthRadiusKm
	return dist, az
}

// LongPath converts a short-path (distance, azimuth) pair to its long-path
// equivalent: the complementary arc of the same great circle, departing in
// the opposite direction.
func LongPath(distKm, azRad float64) (float64, float64) {
	az := azRad + math.Pi
	if az > math.Pi {
		az -= 2 * math.Pi
	}
	return EarthCircumferenceKm - distKm, az
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// WrapPi folds an angle into (−π, π].
func WrapPi(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// Vec3 is a 3-D Cartesian vector on the unit sphere (x toward lng 0 on the
// equator, z toward the north pole).
type Vec3 struct{ X, Y, Z float64 }

// UnitVector converts spherical (lat, lng) radians to a Cartesian unit vector.
func UnitVector(lat, lng float64) Vec3 {
	cosLat := math.Cos(lat)
	return Vec3{
		X: cosLat * math.Cos(lng),
		Y: cosLat * math.Sin(lng),
		Z: math.Sin(lat),
	}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// LatLng converts a vector back to spherical coordinates. The vector does not
// need to be normalized.
func (v Vec3) LatLng() (lat, lng float64) {
	n := v.Norm()
	if n == 0 {
		return 0, 0
	}
	lat = math.Asin(Clamp(v.Z/n, -1, 1))
	lng = math.Atan2(v.Y, v.X)
	return lat, lng
}

// PathSample returns the point at fraction frac of the straight chord between
// the two unit vectors, re-normalized back onto the sphere. When the chord
// midpoint degenerates near the antipode (magnitude < 1e-3) the interpolation
// is nudged by a small epsilon so the normalization never divides by zero.
// This vector formulation is what keeps sampling seamless across the 180°
// meridian.
func PathSample(tx, rx Vec3, frac float64) (lat, lng float64) {
	mid := Vec3{
		X: tx.X + (rx.X-tx.X)*frac,
		Y: tx.Y + (rx.Y-tx.Y)*frac,
		Z: tx.Z + (rx.Z-tx.Z)*frac,
	}
	if mid.Norm() < 1e-3 {
		mid = Vec3{
			X: tx.X + (rx.X-tx.X+1e-3)*frac,
			Y: tx.Y + (rx.Y-tx.Y+1e-3)*frac,
			Z: tx.Z + (rx.Z-tx.Z+1e-3)*frac,
		}
	}
	return mid.LatLng()
}

// CosSolarZenith returns the cosine of the solar zenith angle at (lat, lng)
// for the given subsolar position. Positive means the sun is above the
// horizon.
func CosSolarZenith(lat, lng, decRad, subLngRad float64) float64 {
	return math.Sin(lat)*math.Sin(decRad) +
		math.Cos(lat)*math.Cos(decRad)*math.Cos(lng-subLngRad)
}

// SolarAzimuth returns the azimuth from (lat, lng) toward the subsolar point.
func SolarAzimuth(lat, lng, decRad, subLngRad float64) float64 {
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	return math.Atan2(
		math.Sin(subLngRad-lng)*math.Cos(decRad),
		cosLat*math.Sin(decRad)-sinLat*math.Cos(decRad)*math.Cos(subLngRad-lng),
	)
}

// GeomagneticLatitude returns the dipole geomagnetic latitude in radians for
// the geographic point (lat, lng), using the fixed north dipole pole.
func GeomagneticLatitude(lat, lng float64) float64 {
	s := math.Sin(lat)*sinPoleLat +
		math.Cos(lat)*cosPoleLat*math.Cos(lng-poleLng)
	return math.Asin(Clamp(s, -1, 1))
}
