// Package compliance scores how closely an athlete's executed workout matched
// the coach-planned prescription, per dimension and aggregated.
package compliance

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	models "podium-coach/database/models_pkg"
	"podium-coach/units"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Percent-based rating tiers (fraction of planned)
const (
	DistanceGoodPct = 0.10
	DistanceOkPct   = 0.20
	DurationGoodPct = 0.10
	DurationOkPct   = 0.20
)

// Absolute rating cutoffs per sport (good, ok, bad). Anything past the third
// cutoff still rates "bad"; there is no fourth tier.
var (
	SwimPaceThresholds  = [3]float64{5.0, 8.0, 10.0}   // seconds per 100
	RunPaceThresholds   = [3]float64{10.0, 20.0, 30.0} // seconds per mile
	BikePowerThresholds = [3]float64{10.0, 20.0, 25.0} // watts
)

// RatingScores maps a rating to its contribution to the overall score
var RatingScores = map[string]float64{"good": 100, "ok": 70, "bad": 40}

// Metric is one rated dimension of a workout. The raw planned/actual/delta
// figures drive scoring; the display fields are presentation only and never
// feed back into ratings.
type Metric struct {
	Name           string   `json:"metric"`
	Planned        *float64 `json:"planned_raw"`
	Actual         *float64 `json:"actual_raw"`
	Delta          *float64 `json:"delta_raw,omitempty"`
	Unit           string   `json:"unit"`
	Rating         string   `json:"rating,omitempty"`
	PlannedDisplay string   `json:"planned,omitempty"`
	ActualDisplay  string   `json:"actual,omitempty"`
	DeltaDisplay   string   `json:"delta,omitempty"`
}

// Summary is the full compliance evaluation for one workout
type Summary struct {
	Sport        string       `json:"sport"`
	Planned      SportSummary `json:"planned"`
	Actual       SportSummary `json:"actual"`
	Metrics      []Metric     `json:"metrics"`
	OverallScore *float64     `json:"overall_score"`
	Notes        string       `json:"notes,omitempty"`
}

// DayCompliance reports the compliance rows matched for a requested date.
// IsExactMatch is false when the records come from an earlier fallback date,
// so callers can communicate staleness.
type DayCompliance struct {
	RequestedDate string                     `json:"requested_date"`
	IsExactMatch  bool                       `json:"is_exact_match"`
	WorkoutDate   string                     `json:"workout_date"`
	Records       []models.WorkoutCompliance `json:"records"`
}

// complianceStore persists and queries compliance rows
type complianceStore interface {
	UpsertCompliance(record *models.WorkoutCompliance) error
	ComplianceForDate(athleteID int64, date time.Time) ([]models.WorkoutCompliance, error)
	LatestComplianceDate(athleteID int64, target time.Time) (*time.Time, error)
}

// Evaluator scores workouts against their plans
type Evaluator struct {
	store complianceStore
	log   *logrus.Entry
}

// NewEvaluator creates a new compliance evaluator
func NewEvaluator(store complianceStore) *Evaluator {
	return &Evaluator{
		store: store,
		log:   logrus.WithField("component", "compliance"),
	}
}

// Evaluate returns the compliance summary for a workout without storing it.
// Sports other than swim, run, and bike produce an empty metric list: they
// are explicitly unscored, not an error.
func (e *Evaluator) Evaluate(workout *models.Workout, planData map[string]interface{}) *Summary {
	if workout == nil {
		return nil
	}
	sport := strings.ToLower(workout.Sport)
	raw := payloadRecord(workout.RawJSON)

	actual := collectActualSummary(sport, workout, raw)
	planned := collectPlanSummary(sport, planData, raw)

	var metrics []Metric
	switch sport {
	case units.SportSwim:
		metrics = evaluateSwim(planned, actual)
	case units.SportRun:
		metrics = evaluateRun(planned, actual)
	case units.SportBike:
		metrics = evaluateBike(planned, actual)
	}
	decorateMetrics(metrics, sport)

	return &Summary{
		Sport:        sport,
		Planned:      planned,
		Actual:       actual,
		Metrics:      metrics,
		OverallScore: scoreMetrics(metrics),
		Notes:        buildNotes(metrics),
	}
}

// Upsert evaluates the workout and fully replaces its stored compliance row.
// When no dimension produced a rating the summary is returned without
// touching storage.
func (e *Evaluator) Upsert(workout *models.Workout, planData map[string]interface{}) (*Summary, error) {
	summary := e.Evaluate(workout, planData)
	if summary == nil {
		return nil, nil
	}
	if len(summary.Metrics) == 0 {
		return summary, nil
	}

	plannedJSON, err := json.Marshal(summary.Planned)
	if err != nil {
		return nil, fmt.Errorf("Upsert: %w", err)
	}
	actualJSON, err := json.Marshal(summary.Actual)
	if err != nil {
		return nil, fmt.Errorf("Upsert: %w", err)
	}
	metricsJSON, err := json.Marshal(summary.Metrics)
	if err != nil {
		return nil, fmt.Errorf("Upsert: %w", err)
	}

	record := &models.WorkoutCompliance{
		WorkoutID:       workout.ID,
		AthleteID:       workout.AthleteID,
		WorkoutDate:     workout.Date,
		Sport:           workout.Sport,
		PlannedSummary:  datatypes.JSON(plannedJSON),
		ActualSummary:   datatypes.JSON(actualJSON),
		Metrics:         datatypes.JSON(metricsJSON),
		OverallScore:    summary.OverallScore,
		EvaluationNotes: summary.Notes,
	}
	if err := e.store.UpsertCompliance(record); err != nil {
		return nil, fmt.Errorf("Upsert: %w", err)
	}
	return summary, nil
}

// ForDay returns the compliance rows for the exact date, falling back to the
// most recent earlier date with any rows. Nil when no prior record exists.
func (e *Evaluator) ForDay(athleteID int64, target time.Time) (*DayCompliance, error) {
	records, err := e.store.ComplianceForDate(athleteID, target)
	if err != nil {
		return nil, fmt.Errorf("ForDay: %w", err)
	}

	effectiveDate := target
	exact := len(records) > 0

	if !exact {
		fallback, err := e.store.LatestComplianceDate(athleteID, target)
		if err != nil {
			return nil, fmt.Errorf("ForDay: %w", err)
		}
		if fallback == nil {
			return nil, nil
		}
		effectiveDate = *fallback
		records, err = e.store.ComplianceForDate(athleteID, effectiveDate)
		if err != nil {
			return nil, fmt.Errorf("ForDay: %w", err)
		}
	}

	return &DayCompliance{
		RequestedDate: target.Format("2006-01-02"),
		IsExactMatch:  exact,
		WorkoutDate:   effectiveDate.Format("2006-01-02"),
		Records:       records,
	}, nil
}

// percentDelta returns |actual-planned|/planned, nil when either operand is
// missing or planned is 0.
func percentDelta(planned, actual *float64) *float64 {
	if planned == nil || actual == nil || *planned == 0 {
		return nil
	}
	d := math.Abs(*actual-*planned) / *planned
	return &d
}

// absDelta returns |actual-planned|, nil when either operand is missing
func absDelta(planned, actual *float64) *float64 {
	if planned == nil || actual == nil {
		return nil
	}
	d := math.Abs(*actual - *planned)
	return &d
}

func ratePercent(diff *float64, good, ok float64) string {
	if diff == nil {
		return ""
	}
	switch {
	case *diff <= good:
		return "good"
	case *diff <= ok:
		return "ok"
	default:
		return "bad"
	}
}

func rateAbsolute(diff *float64, thresholds [3]float64) string {
	if diff == nil {
		return ""
	}
	switch {
	case *diff <= thresholds[0]:
		return "good"
	case *diff <= thresholds[1]:
		return "ok"
	default:
		// Past the second cutoff everything is "bad", including beyond the
		// third threshold.
		return "bad"
	}
}

func distanceMetric(planned, actual SportSummary) Metric {
	delta := percentDelta(planned.DistanceValue, actual.DistanceValue)
	return Metric{
		Name:    "distance",
		Planned: planned.DistanceValue,
		Actual:  actual.DistanceValue,
		Delta:   delta,
		Rating:  ratePercent(delta, DistanceGoodPct, DistanceOkPct),
	}
}

func durationMetric(planned, actual SportSummary) Metric {
	delta := percentDelta(planned.DurationSeconds, actual.DurationSeconds)
	return Metric{
		Name:    "duration",
		Planned: planned.DurationSeconds,
		Actual:  actual.DurationSeconds,
		Delta:   delta,
		Rating:  ratePercent(delta, DurationGoodPct, DurationOkPct),
	}
}

func evaluateSwim(planned, actual SportSummary) []Metric {
	paceDiff := absDelta(planned.SwimPaceSecPer100, actual.SwimPaceSecPer100)
	return []Metric{
		distanceMetric(planned, actual),
		durationMetric(planned, actual),
		{
			Name:    "pace",
			Planned: planned.SwimPaceSecPer100,
			Actual:  actual.SwimPaceSecPer100,
			Delta:   paceDiff,
			Rating:  rateAbsolute(paceDiff, SwimPaceThresholds),
		},
	}
}

func evaluateRun(planned, actual SportSummary) []Metric {
	paceDiff := absDelta(planned.RunPaceSecPerMile, actual.RunPaceSecPerMile)
	return []Metric{
		distanceMetric(planned, actual),
		durationMetric(planned, actual),
		{
			Name:    "pace",
			Planned: planned.RunPaceSecPerMile,
			Actual:  actual.RunPaceSecPerMile,
			Delta:   paceDiff,
			Rating:  rateAbsolute(paceDiff, RunPaceThresholds),
		},
	}
}

func evaluateBike(planned, actual SportSummary) []Metric {
	speedDelta := percentDelta(planned.AverageSpeedMph, actual.AverageSpeedMph)
	powerDiff := absDelta(planned.PowerWatts, actual.PowerWatts)
	return []Metric{
		distanceMetric(planned, actual),
		durationMetric(planned, actual),
		{
			Name:    "speed",
			Planned: planned.AverageSpeedMph,
			Actual:  actual.AverageSpeedMph,
			Delta:   speedDelta,
			Rating:  ratePercent(speedDelta, DistanceGoodPct, DistanceOkPct),
		},
		{
			Name:    "power",
			Planned: planned.PowerWatts,
			Actual:  actual.PowerWatts,
			Delta:   powerDiff,
			Rating:  rateAbsolute(powerDiff, BikePowerThresholds),
		},
	}
}

// secondsToMinutes renders a duration in minutes with one decimal
func secondsToMinutes(value *float64) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf("%.1f", *value/60.0)
}

// secondsToTimeString renders seconds as M:SS
func secondsToTimeString(value *float64) string {
	if value == nil {
		return ""
	}
	total := int(math.Round(*value))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// percentDisplay renders a fraction as a percentage with one decimal
func percentDisplay(value *float64) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf("%.1f%%", *value*100)
}

// roundedDistance renders distance per sport convention: whole yards for
// swims, hundredths of a mile otherwise.
func roundedDistance(value *float64, sport string) string {
	if value == nil {
		return ""
	}
	if sport == units.SportSwim {
		return fmt.Sprintf("%d", int(math.Round(*value)))
	}
	return fmt.Sprintf("%.2f", *value)
}

// decorateMetrics fills the presentation fields in place. The raw figures
// are left untouched so scoring stays independent of formatting.
func decorateMetrics(metrics []Metric, sport string) {
	distanceUnit := "units"
	paceUnit := "min"
	switch sport {
	case units.SportSwim:
		distanceUnit = "yd"
		paceUnit = "min/100 yd"
	case units.SportRun:
		distanceUnit = "mi"
		paceUnit = "min/mi"
	case units.SportBike:
		distanceUnit = "mi"
	}

	for i := range metrics {
		m := &metrics[i]
		switch m.Name {
		case "distance":
			m.Unit = distanceUnit
			m.PlannedDisplay = roundedDistance(m.Planned, sport)
			m.ActualDisplay = roundedDistance(m.Actual, sport)
			m.DeltaDisplay = percentDisplay(m.Delta)
		case "duration":
			m.Unit = "min"
			m.PlannedDisplay = secondsToMinutes(m.Planned)
			m.ActualDisplay = secondsToMinutes(m.Actual)
			m.DeltaDisplay = percentDisplay(m.Delta)
		case "pace":
			m.Unit = paceUnit
			m.PlannedDisplay = secondsToTimeString(m.Planned)
			m.ActualDisplay = secondsToTimeString(m.Actual)
			m.DeltaDisplay = secondsToTimeString(m.Delta)
		case "speed":
			m.Unit = "mph"
			if m.Planned != nil {
				m.PlannedDisplay = fmt.Sprintf("%.1f", *m.Planned)
			}
			if m.Actual != nil {
				m.ActualDisplay = fmt.Sprintf("%.1f", *m.Actual)
			}
			m.DeltaDisplay = percentDisplay(m.Delta)
		case "power":
			m.Unit = "W"
			if m.Planned != nil {
				m.PlannedDisplay = fmt.Sprintf("%.0f", *m.Planned)
			}
			if m.Actual != nil {
				m.ActualDisplay = fmt.Sprintf("%.0f", *m.Actual)
			}
		}
	}
}

// scoreMetrics averages the rating scores across rated dimensions, nil when
// nothing rated.
func scoreMetrics(metrics []Metric) *float64 {
	var sum float64
	var count int
	for _, m := range metrics {
		if score, ok := RatingScores[m.Rating]; ok {
			sum += score
			count++
		}
	}
	if count == 0 {
		return nil
	}
	avg := sum / float64(count)
	return &avg
}

// buildNotes joins a short remark per non-"good" rated dimension, empty when
// everything rated good or nothing rated.
func buildNotes(metrics []Metric) string {
	var parts []string
	for _, m := range metrics {
		if m.Rating != "" && m.Rating != "good" {
			parts = append(parts, fmt.Sprintf("%s rating %s", m.Name, m.Rating))
		}
	}
	return strings.Join(parts, "; ")
}
