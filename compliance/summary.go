package compliance

import (
	"encoding/json"
	"sort"

	models "podium-coach/database/models_pkg"
	"podium-coach/units"
)

// Candidate provider keys per logical quantity, tried in priority order.
// Providers vary field names across payload versions; the ordered lists keep
// that tolerance declarative.
var (
	plannedDurationKeys = []string{
		"PlannedDurationSeconds",
		"PlannedDuration",
		"DurationPlannedSeconds",
		"WorkoutPlannedDuration",
		"TotalTimePlannedSeconds",
		"TotalTimePlanned",
	}
	plannedDistanceKeys = []string{
		"PlannedDistanceMeters",
		"PlannedDistance",
		"DistancePlanned",
		"WorkoutPlannedDistance",
	}
	plannedSwimPaceKeys = []string{"PlannedPacePer100", "TargetPacePer100", "PacePer100"}
	plannedRunPaceKeys  = []string{"PlannedPacePerMile", "TargetPacePerMile", "PacePerMile"}
	plannedPowerKeys    = []string{"TargetPower", "PlannedPower", "AveragePowerTarget"}

	actualDurationKeys = []string{
		"TotalTimeSeconds",
		"TotalTime",
		"Duration",
		"WorkoutDurationSeconds",
	}
	actualDistanceKeys = []string{
		"TotalDistance",
		"Distance",
		"DistanceMeters",
		"TotalDistanceMeters",
		"WorkoutDistance",
	}
	actualSpeedKeys = []string{"AverageSpeed", "AvgSpeed", "SpeedAverage"}
	actualPowerKeys = []string{"AveragePower", "AvgPower", "PowerAverage", "AverageWatts"}
)

// SportSummary holds the canonical-unit figures for one side of a workout
// (planned prescription or actual execution).
type SportSummary struct {
	DurationSeconds   *float64 `json:"duration_seconds"`
	DistanceValue     *float64 `json:"distance_value"`
	DistanceUnit      string   `json:"distance_unit,omitempty"`
	SwimPaceSecPer100 *float64 `json:"swim_pace_sec_per_100,omitempty"`
	RunPaceSecPerMile *float64 `json:"run_pace_sec_per_mile,omitempty"`
	AverageSpeedMph   *float64 `json:"average_speed_mph,omitempty"`
	PowerWatts        *float64 `json:"power_watts,omitempty"`
	SourceKeys        []string `json:"source_keys,omitempty"`
}

// payloadRecord decodes a stored raw workout payload into a generic record,
// nil when absent or malformed.
func payloadRecord(raw []byte) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var record map[string]interface{}
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil
	}
	return record
}

func sortedKeys(record map[string]interface{}) []string {
	if len(record) == 0 {
		return nil
	}
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// collectPlanSummary extracts the planned prescription for a workout from the
// plan payload, falling back to the raw workout payload for duration and
// distance. Pace and speed are derived from duration and distance when both
// are present, overriding any directly-stated figures.
func collectPlanSummary(sport string, plan, rawWorkout map[string]interface{}) SportSummary {
	duration := units.NormalizeDuration(units.FirstNumber(plannedDurationKeys, plan, rawWorkout))
	distance, distanceUnit := units.NormalizeDistance(sport, units.FirstNumber(plannedDistanceKeys, plan, rawWorkout))

	summary := SportSummary{
		DurationSeconds:   duration,
		DistanceValue:     distance,
		DistanceUnit:      distanceUnit,
		SwimPaceSecPer100: units.FirstNumber(plannedSwimPaceKeys, plan),
		RunPaceSecPerMile: units.FirstNumber(plannedRunPaceKeys, plan),
		PowerWatts:        units.FirstNumber(plannedPowerKeys, plan),
		SourceKeys:        sortedKeys(plan),
	}

	switch sport {
	case units.SportSwim:
		if pace := units.SwimPace(duration, distance); pace != nil {
			summary.SwimPaceSecPer100 = pace
		}
	case units.SportRun:
		if pace := units.RunPace(duration, distance); pace != nil {
			summary.RunPaceSecPerMile = pace
		}
		summary.AverageSpeedMph = units.SpeedMph(duration, distance)
	case units.SportBike:
		summary.AverageSpeedMph = units.SpeedMph(duration, distance)
	}
	return summary
}

// collectActualSummary derives the executed figures from the stored workout,
// preferring the normalized duration column and falling back to payload
// probing.
func collectActualSummary(sport string, workout *models.Workout, raw map[string]interface{}) SportSummary {
	var duration *float64
	if workout.DurationSec > 0 {
		d := float64(workout.DurationSec)
		duration = &d
	} else {
		duration = units.NormalizeDuration(units.FirstNumber(actualDurationKeys, raw))
	}

	distance, distanceUnit := units.NormalizeDistance(sport, units.FirstNumber(actualDistanceKeys, raw))

	summary := SportSummary{
		DurationSeconds: duration,
		DistanceValue:   distance,
		DistanceUnit:    distanceUnit,
		PowerWatts:      units.FirstNumber(actualPowerKeys, raw),
		SourceKeys:      sortedKeys(raw),
	}

	switch sport {
	case units.SportSwim:
		summary.SwimPaceSecPer100 = units.SwimPace(duration, distance)
	case units.SportRun:
		summary.RunPaceSecPerMile = units.RunPace(duration, distance)
		summary.AverageSpeedMph = units.SpeedMph(duration, distance)
	case units.SportBike:
		summary.AverageSpeedMph = units.SpeedMph(duration, distance)
	}
	if summary.AverageSpeedMph == nil {
		summary.AverageSpeedMph = units.FirstNumber(actualSpeedKeys, raw)
	}
	return summary
}
