// Package baseline computes sliding-window statistical baselines for athlete
// metrics, classifies deviations against them, and raises threshold alerts.
package baseline

import (
	models "podium-coach/database/models_pkg"
)

// Tracked metric names
const (
	MetricHRV        = "hrv"
	MetricRHR        = "rhr"
	MetricSleepHours = "sleep_hours"
)

// Window types, longest look-back first
const (
	WindowAnnual     = "annual"
	WindowSemiannual = "semiannual"
	WindowQuarterly  = "quarterly"
	WindowMonthly    = "monthly"
	WindowWeekly     = "weekly"
)

// MinSamples is the minimum number of non-null values a window must contain
// before a baseline is computed for it.
const MinSamples = 3

// Window is one fixed look-back period ending on the evaluation date
type Window struct {
	Name string
	Days int
}

// Windows lists every baseline window computed per metric
var Windows = []Window{
	{WindowAnnual, 365},
	{WindowSemiannual, 180},
	{WindowQuarterly, 90},
	{WindowMonthly, 30},
	{WindowWeekly, 7},
}

// MetricConfig describes one tracked metric: how to read it off a daily
// metric row, its improvement direction, and its display attributes.
type MetricConfig struct {
	Name string
	// HigherIsBetter flips the deviation sign so positive always means
	// improvement (resting heart rate improves downward).
	HigherIsBetter bool
	DisplayName    string
	Unit           string
	Value          func(m *models.DailyMetric) *float64
}

// MetricConfigs lists the tracked metrics in evaluation order
var MetricConfigs = []MetricConfig{
	{
		Name:           MetricHRV,
		HigherIsBetter: true,
		DisplayName:    "HRV",
		Unit:           "",
		Value:          func(m *models.DailyMetric) *float64 { return m.HRV },
	},
	{
		Name:           MetricRHR,
		HigherIsBetter: false,
		DisplayName:    "Resting Heart Rate",
		Unit:           "bpm",
		Value:          func(m *models.DailyMetric) *float64 { return m.RHR },
	},
	{
		Name:           MetricSleepHours,
		HigherIsBetter: true,
		DisplayName:    "Sleep Duration",
		Unit:           "hours",
		Value:          func(m *models.DailyMetric) *float64 { return m.SleepHours },
	},
}

// ConfigFor returns the config for a tracked metric name, nil when unknown
func ConfigFor(name string) *MetricConfig {
	for i := range MetricConfigs {
		if MetricConfigs[i].Name == name {
			return &MetricConfigs[i]
		}
	}
	return nil
}
