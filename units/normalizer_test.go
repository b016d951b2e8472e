package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestNormalizeDistance(t *testing.T) {
	tests := []struct {
		name     string
		sport    string
		value    *float64
		expected float64
		unit     string
	}{
		{
			name:     "swim pool multiple stays yards",
			sport:    SportSwim,
			value:    floatPtr(1650),
			expected: 1650,
			unit:     "yd",
		},
		{
			name:     "swim near pool multiple stays yards",
			sport:    SportSwim,
			value:    floatPtr(1500.3),
			expected: 1500.3,
			unit:     "yd",
		},
		{
			name:     "swim open water meters converted",
			sport:    SportSwim,
			value:    floatPtr(1931),
			expected: 1931 / MetersPerYard,
			unit:     "yd",
		},
		{
			name:     "run meters converted to miles",
			sport:    SportRun,
			value:    floatPtr(10000),
			expected: 10000 / MetersPerMile,
			unit:     "mi",
		},
		{
			name:     "run small value already miles",
			sport:    SportRun,
			value:    floatPtr(5),
			expected: 5,
			unit:     "mi",
		},
		{
			name:     "bike meters converted to miles",
			sport:    SportBike,
			value:    floatPtr(40000),
			expected: 40000 / MetersPerMile,
			unit:     "mi",
		},
		{
			name:     "other sport passes through",
			sport:    "row",
			value:    floatPtr(2000),
			expected: 2000,
			unit:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, unit := NormalizeDistance(tt.sport, tt.value)
			require.NotNil(t, got)
			assert.InDelta(t, tt.expected, *got, 0.001)
			assert.Equal(t, tt.unit, unit)
		})
	}

	t.Run("nil value keeps sport unit", func(t *testing.T) {
		got, unit := NormalizeDistance(SportSwim, nil)
		assert.Nil(t, got)
		assert.Equal(t, "yd", unit)
	})
}

func TestNormalizeDuration(t *testing.T) {
	assert.Nil(t, NormalizeDuration(nil))
	assert.Nil(t, NormalizeDuration(floatPtr(0)))
	assert.Nil(t, NormalizeDuration(floatPtr(-5)))

	hours := NormalizeDuration(floatPtr(1.5))
	require.NotNil(t, hours)
	assert.InDelta(t, 5400.0, *hours, 0.001)

	seconds := NormalizeDuration(floatPtr(3600))
	require.NotNil(t, seconds)
	assert.InDelta(t, 3600.0, *seconds, 0.001)

	// 19.9 is still below the hour cutoff
	edge := NormalizeDuration(floatPtr(19.9))
	require.NotNil(t, edge)
	assert.InDelta(t, 19.9*3600, *edge, 0.001)
}

func TestAsFloat(t *testing.T) {
	assert.Nil(t, AsFloat(nil))
	assert.Nil(t, AsFloat("not a number"))
	assert.Nil(t, AsFloat(map[string]interface{}{}))

	for _, raw := range []interface{}{float64(42), float32(42), int(42), int64(42), "42"} {
		got := AsFloat(raw)
		require.NotNil(t, got, "value %v", raw)
		assert.InDelta(t, 42.0, *got, 0.001)
	}
}

func TestFirstNumber(t *testing.T) {
	plan := map[string]interface{}{"distancePlanned": nil, "distance": float64(1500)}
	raw := map[string]interface{}{"distance": float64(9999)}

	got := FirstNumber([]string{"distancePlanned", "distance"}, plan, raw)
	require.NotNil(t, got)
	assert.Equal(t, 1500.0, *got)

	assert.Nil(t, FirstNumber([]string{"missing"}, plan, raw))
	assert.Nil(t, FirstNumber([]string{"distance"}, nil, nil))
}

func TestPaceAndSpeed(t *testing.T) {
	pace := SwimPace(floatPtr(1200), floatPtr(2000))
	require.NotNil(t, pace)
	assert.InDelta(t, 60.0, *pace, 0.001)

	runPace := RunPace(floatPtr(3600), floatPtr(6))
	require.NotNil(t, runPace)
	assert.InDelta(t, 600.0, *runPace, 0.001)

	mph := SpeedMph(floatPtr(3600), floatPtr(20))
	require.NotNil(t, mph)
	assert.InDelta(t, 20.0, *mph, 0.001)

	assert.Nil(t, SwimPace(floatPtr(1200), nil))
	assert.Nil(t, RunPace(floatPtr(0), floatPtr(6)))
	assert.Nil(t, SpeedMph(nil, floatPtr(20)))
}
