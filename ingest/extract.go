package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	models "podium-coach/database/models_pkg"
	"podium-coach/tpapi"
	"podium-coach/units"

	"gorm.io/datatypes"
)

// Provider payloads mix casings across accounts, so every field is probed
// through an ordered key list before giving up.
var (
	workoutIDKeys       = []string{"workoutId", "id", "Id", "WorkoutId"}
	workoutDurationKeys = []string{"TotalTime", "TotalTimePlanned", "TotalTimePlannedSeconds"}
	workoutTSSKeys      = []string{"tss", "TssActual", "TSSActual", "TssPlanned"}
	workoutIFKeys       = []string{"intensityFactor", "IF", "If"}
	workoutDateKeys     = []string{"workoutDay", "WorkoutDay", "Date"}
	workoutSportKeys    = []string{"sportType", "sport", "WorkoutType"}

	metricDateKeys  = []string{"DateTime", "datetime", "Date"}
	metricRHRKeys   = []string{"Pulse", "RestingHeartRate", "restingHeartRate"}
	metricHRVKeys   = []string{"Hrv", "HRV", "hrv"}
	metricSleepKeys = []string{"SleepHours", "sleepHours"}
	metricBodyKeys  = []string{"BodyScore", "bodyScore"}
	metricCTLKeys   = []string{"CTL", "ctl", "Ctl"}
	metricATLKeys   = []string{"ATL", "atl", "Atl"}
	metricTSBKeys   = []string{"TSB", "tsb", "Tsb"}
)

// stringifyID renders a provider id value without scientific notation
func stringifyID(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// workoutExternalID finds the workout's provider id, falling back to any key
// ending in "id" when none of the usual names are present.
func workoutExternalID(rec tpapi.Record) string {
	for _, key := range workoutIDKeys {
		if id := stringifyID(rec[key]); id != "" {
			return id
		}
	}
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasSuffix(strings.ToLower(k), "id") {
			if id := stringifyID(rec[k]); id != "" {
				return id
			}
		}
	}
	return ""
}

// coerceDate parses a provider date field, trimming any time component
func coerceDate(value interface{}) *time.Time {
	str, ok := value.(string)
	if !ok || str == "" {
		return nil
	}
	if idx := strings.Index(str, "T"); idx >= 0 {
		str = str[:idx]
	}
	parsed, err := time.Parse("2006-01-02", str)
	if err != nil {
		return nil
	}
	return &parsed
}

func firstDate(keys []string, rec tpapi.Record) *time.Time {
	for _, key := range keys {
		if d := coerceDate(rec[key]); d != nil {
			return d
		}
	}
	return nil
}

func firstString(keys []string, rec tpapi.Record) string {
	for _, key := range keys {
		if s, ok := rec[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// metricDate returns the day a wellness record belongs to
func metricDate(rec tpapi.Record) *time.Time {
	return firstDate(metricDateKeys, rec)
}

// buildDailyMetric maps one provider wellness record onto a DailyMetric row
func buildDailyMetric(athleteID int64, day time.Time, rec tpapi.Record) *models.DailyMetric {
	return &models.DailyMetric{
		AthleteID:  athleteID,
		Date:       day,
		RHR:        units.FirstNumber(metricRHRKeys, rec),
		HRV:        units.FirstNumber(metricHRVKeys, rec),
		SleepHours: units.FirstNumber(metricSleepKeys, rec),
		BodyScore:  units.FirstNumber(metricBodyKeys, rec),
		CTL:        units.FirstNumber(metricCTLKeys, rec),
		ATL:        units.FirstNumber(metricATLKeys, rec),
		TSB:        units.FirstNumber(metricTSBKeys, rec),
	}
}

// inferTPAthleteID scans workout payloads for the provider's athlete id
func inferTPAthleteID(records []tpapi.Record) *int64 {
	for _, rec := range records {
		if v := units.AsFloat(rec["AthleteId"]); v != nil && *v != 0 {
			id := int64(*v)
			return &id
		}
	}
	return nil
}

// storeWorkout persists a fetched workout record, skipping ones already
// stored. For known workouts the raw payload is refreshed when updateRaw is
// set so compliance always evaluates the latest data.
func (o *Orchestrator) storeWorkout(athleteID int64, externalID string, rec tpapi.Record, updateRaw bool) (*models.Workout, bool, error) {
	existing, err := o.workouts.GetByExternalID(externalID)
	if err != nil {
		return nil, false, fmt.Errorf("storeWorkout: %w", err)
	}
	if existing != nil {
		if updateRaw {
			raw, err := json.Marshal(rec)
			if err != nil {
				return nil, false, fmt.Errorf("storeWorkout: %w", err)
			}
			if err := o.workouts.UpdateRawPayload(existing.ID, datatypes.JSON(raw)); err != nil {
				return nil, false, fmt.Errorf("storeWorkout: %w", err)
			}
			existing.RawJSON = datatypes.JSON(raw)
		}
		return existing, false, nil
	}

	duration := 0
	if normalized := units.NormalizeDuration(units.FirstNumber(workoutDurationKeys, rec)); normalized != nil {
		duration = int(*normalized)
	}

	var date time.Time
	if d := firstDate(workoutDateKeys, rec); d != nil {
		date = *d
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("storeWorkout: %w", err)
	}

	workout := &models.Workout{
		AthleteID:       athleteID,
		TPWorkoutID:     externalID,
		Date:            date,
		Sport:           firstString(workoutSportKeys, rec),
		DurationSec:     duration,
		TSS:             units.FirstNumber(workoutTSSKeys, rec),
		IntensityFactor: units.FirstNumber(workoutIFKeys, rec),
		RawJSON:         datatypes.JSON(raw),
	}
	if err := o.workouts.Create(workout); err != nil {
		return nil, false, fmt.Errorf("storeWorkout: %w", err)
	}
	return workout, true, nil
}

// planFor returns the provider's plan payload for a workout, consulting the
// Redis cache first. Plan fetch failures degrade to an unplanned evaluation.
func (o *Orchestrator) planFor(ctx context.Context, provider Provider, tpAthleteID *int64, workoutID string) map[string]interface{} {
	if o.plans != nil {
		if plan, ok := o.plans.GetPlan(ctx, workoutID); ok {
			return plan
		}
	}

	plan, err := provider.FetchWorkoutDetails(ctx, tpAthleteID, workoutID)
	if err != nil {
		o.log.WithError(err).WithField("workout_id", workoutID).Debug("plan fetch failed")
		return nil
	}
	if o.plans != nil && plan != nil {
		if err := o.plans.SetPlan(ctx, workoutID, plan); err != nil {
			o.log.WithError(err).Debug("plan cache write failed")
		}
	}
	return plan
}
