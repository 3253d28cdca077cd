package units

import (
	"math"
	"time"

	"github.com/bradfitz/latlong"
)

// ZoneOffset resolves a location's UTC offset in seconds at the given
// instant through the IANA zone polygon table. Points outside every zone
// polygon, which in practice means open ocean, fall back to the
// longitude approximation.
func ZoneOffset(lat, lng float64, at time.Time) int64 {
	if zone := latlong.LookupZoneName(lat, lng); zone != "" {
		if loc, err := time.LoadLocation(zone); err == nil {
			_, offset := at.In(loc).Zone()
			return int64(offset)
		}
	}
	return LongitudeOffset(lng)
}

// LongitudeOffset approximates a UTC offset from longitude alone at
// fifteen degrees per hour.
func LongitudeOffset(lng float64) int64 {
	return int64(math.Round(lng/15.0)) * 3600
}
