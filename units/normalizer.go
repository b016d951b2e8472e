// Package units converts raw provider distance/duration/pace/power figures
// into canonical units (miles, yards, seconds, watts, mph) keyed by sport.
//
// The conversion heuristics are provider policy carried over verbatim:
// changing them changes how historical data is interpreted.
package units

import (
	"encoding/json"
	"math"
	"strconv"
)

const (
	MetersPerMile = 1609.34
	MetersPerYard = 0.9144
)

// Sport tags with dedicated normalization rules
const (
	SportSwim = "swim"
	SportRun  = "run"
	SportBike = "bike"
)

// AsFloat coerces a loosely-typed provider value into a float, nil when the
// value is absent or not numeric.
func AsFloat(value interface{}) *float64 {
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		return &v
	case float32:
		f := float64(v)
		return &f
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil
		}
		return &f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// FirstNumber probes the candidate keys in priority order against each source
// record in turn and returns the first non-null numeric match. Sources are
// generic string-keyed provider payloads; a nil source is skipped.
func FirstNumber(keys []string, sources ...map[string]interface{}) *float64 {
	for _, source := range sources {
		if source == nil {
			continue
		}
		for _, key := range keys {
			raw, ok := source[key]
			if !ok {
				continue
			}
			if num := AsFloat(raw); num != nil {
				return num
			}
		}
	}
	return nil
}

// NormalizeDuration converts a raw duration figure to seconds. Values smaller
// than 20 are interpreted as hours (provider convention); non-positive values
// are undefined.
func NormalizeDuration(raw *float64) *float64 {
	if raw == nil || *raw <= 0 {
		return nil
	}
	if *raw < 20 {
		sec := *raw * 3600
		return &sec
	}
	v := *raw
	return &v
}

// isCloseToMultiple reports whether value lies within tolerance of a whole
// multiple of base.
func isCloseToMultiple(value, base, tolerance float64) bool {
	if base <= 0 {
		return false
	}
	return math.Abs(value-math.Round(value/base)*base) <= tolerance
}

// NormalizeDistance converts a raw distance into the canonical unit for the
// sport: yards for swims, miles for runs and rides. A swim figure within 0.5
// of a 25-multiple is treated as pool yards verbatim, otherwise as meters;
// a run/bike figure above 50 is treated as meters, otherwise as miles.
// Other sports pass through unchanged with no unit.
func NormalizeDistance(sport string, value *float64) (*float64, string) {
	defaultUnit := ""
	switch sport {
	case SportSwim:
		defaultUnit = "yd"
	case SportRun, SportBike:
		defaultUnit = "mi"
	}
	if value == nil {
		return nil, defaultUnit
	}

	switch sport {
	case SportSwim:
		if isCloseToMultiple(*value, 25, 0.5) {
			v := *value
			return &v, "yd"
		}
		yd := *value / MetersPerYard
		return &yd, "yd"
	case SportRun, SportBike:
		if *value > 50 {
			mi := *value / MetersPerMile
			return &mi, "mi"
		}
		v := *value
		return &v, "mi"
	default:
		v := *value
		return &v, ""
	}
}

// SwimPace returns seconds per 100 yards, nil when either operand is
// undefined or non-positive.
func SwimPace(durationSec, distanceYd *float64) *float64 {
	if durationSec == nil || distanceYd == nil || *durationSec <= 0 || *distanceYd <= 0 {
		return nil
	}
	pace := *durationSec / (*distanceYd / 100)
	return &pace
}

// RunPace returns seconds per mile, nil when either operand is undefined or
// non-positive.
func RunPace(durationSec, distanceMi *float64) *float64 {
	if durationSec == nil || distanceMi == nil || *durationSec <= 0 || *distanceMi <= 0 {
		return nil
	}
	pace := *durationSec / *distanceMi
	return &pace
}

// SpeedMph returns miles per hour, nil when either operand is undefined or
// non-positive.
func SpeedMph(durationSec, distanceMi *float64) *float64 {
	if durationSec == nil || distanceMi == nil || *durationSec <= 0 || *distanceMi <= 0 {
		return nil
	}
	mph := *distanceMi / (*durationSec / 3600)
	return &mph
}
