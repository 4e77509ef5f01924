package buoy

import (
	"math"
	"strings"
)

// Canonical display units.
const (
	UnitSeconds    = "s"
	UnitCelsius    = "°C"
	UnitFahrenheit = "°F"
	UnitDegree     = "°"
)

// NormalizeUnit maps a raw provider unit token to the unit shown to users.
// Any "deg" token that is not a temperature is an angle.
func NormalizeUnit(raw string) string {
	switch {
	case raw == "sec":
		return UnitSeconds
	case raw == "degC":
		return UnitCelsius
	case raw == "degF":
		return UnitFahrenheit
	case strings.HasPrefix(raw, "deg"):
		return UnitDegree
	default:
		return raw
	}
}

var compassPoints = [...]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// Compass converts a bearing in degrees to a 16-point compass heading.
func Compass(degrees float64) string {
	d := math.Mod(degrees, 360)
	if d < 0 {
		d += 360
	}
	idx := int(math.Floor(d/22.5+0.5)) % len(compassPoints)
	return compassPoints[idx]
}
