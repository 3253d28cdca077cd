package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayOfYear(t *testing.T) {
	tests := []struct {
		name  string
		month int
		day   int
		want  int
	}{
		{"january first", 1, 1, 1},
		{"mid march", 3, 22, 81},
		{"mid june", 6, 15, 166},
		{"december last", 12, 31, 365},
		{"month clamped low", 0, 10, 10},
		{"month clamped high", 13, 1, 335},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DayOfYear(tt.month, tt.day))
		})
	}
}

func TestSubsolarPoint(t *testing.T) {
	// Day 81 is the model's equinox anchor: declination crosses zero.
	dec, lng := SubsolarPoint(3, 22, 12.0)
	assert.InDelta(t, 0.0, dec, 1e-9)
	assert.InDelta(t, 0.0, lng, 1e-9)

	// June solstice region: declination approaches +23.44 degrees.
	dec, _ = SubsolarPoint(6, 15, 0.0)
	assert.InDelta(t, 23.44, RadToDeg(dec), 0.25)

	// Subsolar longitude moves 15 degrees west per UTC hour.
	_, lng = SubsolarPoint(3, 22, 18.0)
	assert.InDelta(t, -90.0, RadToDeg(lng), 1e-9)
}

func TestDistanceAzimuth(t *testing.T) {
	// Quarter circumference due east along the equator.
	dist, az := DistanceAzimuth(0, 0, 0, DegToRad(90))
	assert.InDelta(t, EarthCircumferenceKm/4, dist, 0.5)
	assert.InDelta(t, math.Pi/2, az, 1e-9)

	// Due north pole-to-equator.
	dist, az = DistanceAzimuth(0, 0, DegToRad(90), 0)
	assert.InDelta(t, EarthCircumferenceKm/4, dist, 0.5)
	assert.InDelta(t, 0.0, az, 1e-9)

	// Coincident points.
	dist, _ = DistanceAzimuth(DegToRad(45), DegToRad(45), DegToRad(45), DegToRad(45))
	assert.InDelta(t, 0.0, dist, 1e-6)
}

func TestLongPathSymmetry(t *testing.T) {
	// Short plus long path must close the great circle; azimuths oppose.
	cases := []struct {
		lat1, lng1, lat2, lng2 float64
	}{
		{40.7, -74.0, 51.5, -0.1},
		{-33.9, 151.2, 35.7, 139.7},
		{0, 0, 10, 10},
	}

	for _, c := range cases {
		short, azShort := DistanceAzimuth(
			DegToRad(c.lat1), DegToRad(c.lng1), DegToRad(c.lat2), DegToRad(c.lng2))
		long, azLong := LongPath(short, azShort)

		assert.InDelta(t, EarthCircumferenceKm, short+long, 1.0)

		diff := math.Abs(WrapPi(azLong - azShort))
		assert.InDelta(t, math.Pi, diff, DegToRad(1.0))
	}
}

func TestPathSampleAntipode(t *testing.T) {
	// Receiver within 10 km of the transmitter antipode: the chord midpoint
	// degenerates, and the epsilon nudge must keep every sample finite.
	txLat, txLng := DegToRad(30.0), DegToRad(60.0)
	antLat, antLng := -30.0, 60.0-180.0
	// ~0.05 degrees of latitude is ~5.5 km.
	rxLat, rxLng := DegToRad(antLat+0.05), DegToRad(antLng)

	tx := UnitVector(txLat, txLng)
	rx := UnitVector(rxLat, rxLng)

	for _, frac := range []float64{0.25, 0.5, 0.75} {
		lat, lng := PathSample(tx, rx, frac)
		require.False(t, math.IsNaN(lat), "lat NaN at frac %v", frac)
		require.False(t, math.IsNaN(lng), "lng NaN at frac %v", frac)
		assert.LessOrEqual(t, math.Abs(lat), math.Pi/2+1e-9)
	}
}

func TestPathSampleMidpoint(t *testing.T) {
	// Equatorial half-way point lands half-way in longitude.
	tx := UnitVector(0, 0)
	rx := UnitVector(0, DegToRad(90))

	lat, lng := PathSample(tx, rx, 0.5)
	assert.InDelta(t, 0.0, lat, 1e-9)
	assert.InDelta(t, 45.0, RadToDeg(lng), 1e-6)
}

func TestCosSolarZenith(t *testing.T) {
	dec, subLng := SubsolarPoint(3, 22, 12.0)

	// Directly under the sun.
	assert.InDelta(t, 1.0, CosSolarZenith(dec, subLng, dec, subLng), 1e-9)

	// Local midnight on the equator: sun on the opposite side.
	assert.InDelta(t, -1.0, CosSolarZenith(0, math.Pi, dec, subLng), 1e-9)
}

func TestGeomagneticLatitude(t *testing.T) {
	// At the dipole pole itself.
	got := GeomagneticLatitude(DegToRad(80.5), DegToRad(-72.5))
	assert.InDelta(t, math.Pi/2, got, 1e-9)

	// The antipode of the pole.
	got = GeomagneticLatitude(DegToRad(-80.5), DegToRad(107.5))
	assert.InDelta(t, -math.Pi/2, got, 1e-9)

	// Result is always a valid latitude.
	for lat := -90.0; lat <= 90.0; lat += 15 {
		for lng := -180.0; lng <= 180.0; lng += 30 {
			m := GeomagneticLatitude(DegToRad(lat), DegToRad(lng))
			assert.LessOrEqual(t, math.Abs(m), math.Pi/2+1e-9)
		}
	}
}

func TestWrapPi(t *testing.T) {
	assert.InDelta(t, 0.0, WrapPi(2*math.Pi), 1e-9)
	assert.InDelta(t, -math.Pi/2, WrapPi(3*math.Pi/2), 1e-9)
	assert.InDelta(t, math.Pi/2, WrapPi(-3*math.Pi/2), 1e-9)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, Clamp(2.0, -1, 1))
	assert.Equal(t, -1.0, Clamp(-2.0, -1, 1))
	assert.Equal(t, 0.5, Clamp(0.5, -1, 1))
}
