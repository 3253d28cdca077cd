// Package units converts between the units upstream weather providers
// report and the units the desktop client consumes.
package units

// KmhToMps converts a wind speed from km/h, which every upstream
// provider reports, to m/s, which the client renders.
func KmhToMps(kmh float64) float64 {
	return kmh / 3.6
}

// compassRose is the sixteen-point compass in bearing order.
var compassRose = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// DegToCompass buckets a bearing into the sixteen-point compass rose.
func DegToCompass(deg float64) string {
	idx := int((deg+11.25)/22.5) % 16
	if idx < 0 {
		idx += 16
	}
	return compassRose[idx]
}
