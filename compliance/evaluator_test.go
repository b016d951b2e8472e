package compliance

import (
	"encoding/json"
	"testing"
	"time"

	models "podium-coach/database/models_pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fakeComplianceStore struct {
	upserts  []*models.WorkoutCompliance
	byDate   map[string][]models.WorkoutCompliance
	fallback *time.Time
}

func (f *fakeComplianceStore) UpsertCompliance(record *models.WorkoutCompliance) error {
	f.upserts = append(f.upserts, record)
	return nil
}

func (f *fakeComplianceStore) ComplianceForDate(athleteID int64, date time.Time) ([]models.WorkoutCompliance, error) {
	return f.byDate[date.Format("2006-01-02")], nil
}

func (f *fakeComplianceStore) LatestComplianceDate(athleteID int64, target time.Time) (*time.Time, error) {
	return f.fallback, nil
}

func fptr(v float64) *float64 { return &v }

func rawPayload(t *testing.T, record map[string]interface{}) datatypes.JSON {
	t.Helper()
	data, err := json.Marshal(record)
	require.NoError(t, err)
	return datatypes.JSON(data)
}

func metricByName(t *testing.T, metrics []Metric, name string) Metric {
	t.Helper()
	for _, m := range metrics {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("metric %q not found", name)
	return Metric{}
}

func TestEvaluateRunOnTarget(t *testing.T) {
	eval := NewEvaluator(&fakeComplianceStore{})

	workout := &models.Workout{
		Sport:       "Run",
		DurationSec: 3600,
		RawJSON:     rawPayload(t, map[string]interface{}{"TotalDistance": 9656.04}),
	}
	plan := map[string]interface{}{
		"PlannedDurationSeconds": 3600.0,
		"PlannedDistanceMeters":  9656.04,
	}

	summary := eval.Evaluate(workout, plan)
	require.NotNil(t, summary)
	assert.Equal(t, "run", summary.Sport)
	require.Len(t, summary.Metrics, 3)

	for _, m := range summary.Metrics {
		assert.Equal(t, "good", m.Rating, m.Name)
	}
	require.NotNil(t, summary.OverallScore)
	assert.InDelta(t, 100.0, *summary.OverallScore, 0.001)
	assert.Empty(t, summary.Notes)

	distance := metricByName(t, summary.Metrics, "distance")
	assert.Equal(t, "mi", distance.Unit)
	assert.Equal(t, "6.00", distance.PlannedDisplay)
	assert.Equal(t, "6.00", distance.ActualDisplay)

	duration := metricByName(t, summary.Metrics, "duration")
	assert.Equal(t, "min", duration.Unit)
	assert.Equal(t, "60.0", duration.ActualDisplay)

	pace := metricByName(t, summary.Metrics, "pace")
	assert.Equal(t, "min/mi", pace.Unit)
	assert.Equal(t, "10:00", pace.PlannedDisplay)
	assert.Equal(t, "10:00", pace.ActualDisplay)
}

func TestEvaluateRunRatingTiers(t *testing.T) {
	eval := NewEvaluator(&fakeComplianceStore{})

	// Planned 6 mi in 60 min (10:00/mi), ran 5 mi in 45 min (9:00/mi).
	workout := &models.Workout{
		Sport:       "Run",
		DurationSec: 2700,
		RawJSON:     rawPayload(t, map[string]interface{}{"TotalDistance": 5.0}),
	}
	plan := map[string]interface{}{
		"PlannedDurationSeconds": 3600.0,
		"PlannedDistance":        6.0,
	}

	summary := eval.Evaluate(workout, plan)
	require.NotNil(t, summary)

	distance := metricByName(t, summary.Metrics, "distance")
	assert.Equal(t, "ok", distance.Rating)
	require.NotNil(t, distance.Delta)
	assert.InDelta(t, 1.0/6.0, *distance.Delta, 0.0001)
	assert.Equal(t, "16.7%", distance.DeltaDisplay)

	duration := metricByName(t, summary.Metrics, "duration")
	assert.Equal(t, "bad", duration.Rating)
	assert.Equal(t, "25.0%", duration.DeltaDisplay)

	pace := metricByName(t, summary.Metrics, "pace")
	assert.Equal(t, "bad", pace.Rating)
	require.NotNil(t, pace.Delta)
	assert.InDelta(t, 60.0, *pace.Delta, 0.0001)
	assert.Equal(t, "1:00", pace.DeltaDisplay)

	require.NotNil(t, summary.OverallScore)
	assert.InDelta(t, 50.0, *summary.OverallScore, 0.001)
	assert.Equal(t, "distance rating ok; duration rating bad; pace rating bad", summary.Notes)
}

func TestEvaluateSwim(t *testing.T) {
	eval := NewEvaluator(&fakeComplianceStore{})

	// Planned 1650 yd at 2:00/100, swam it 10 s/100 slower.
	workout := &models.Workout{
		Sport:       "Swim",
		DurationSec: 2145,
		RawJSON:     rawPayload(t, map[string]interface{}{"TotalDistance": 1650.0}),
	}
	plan := map[string]interface{}{
		"PlannedDurationSeconds": 1980.0,
		"PlannedDistanceMeters":  1650.0,
	}

	summary := eval.Evaluate(workout, plan)
	require.NotNil(t, summary)
	assert.Equal(t, "yd", summary.Actual.DistanceUnit)

	distance := metricByName(t, summary.Metrics, "distance")
	assert.Equal(t, "good", distance.Rating)
	assert.Equal(t, "yd", distance.Unit)
	assert.Equal(t, "1650", distance.PlannedDisplay)

	duration := metricByName(t, summary.Metrics, "duration")
	assert.Equal(t, "good", duration.Rating)

	pace := metricByName(t, summary.Metrics, "pace")
	require.NotNil(t, pace.Planned)
	assert.InDelta(t, 120.0, *pace.Planned, 0.0001)
	require.NotNil(t, pace.Delta)
	assert.InDelta(t, 10.0, *pace.Delta, 0.0001)
	assert.Equal(t, "bad", pace.Rating)
	assert.Equal(t, "min/100 yd", pace.Unit)
	assert.Equal(t, "2:00", pace.PlannedDisplay)
	assert.Equal(t, "2:10", pace.ActualDisplay)

	require.NotNil(t, summary.OverallScore)
	assert.InDelta(t, 80.0, *summary.OverallScore, 0.001)
	assert.Equal(t, "pace rating bad", summary.Notes)
}

func TestEvaluateBike(t *testing.T) {
	eval := NewEvaluator(&fakeComplianceStore{})

	// Planned 20 mi in an hour at 200 W, rode on pace but 15 W under.
	workout := &models.Workout{
		Sport:       "Bike",
		DurationSec: 3600,
		RawJSON: rawPayload(t, map[string]interface{}{
			"TotalDistance": 32186.8,
			"AveragePower":  185.0,
		}),
	}
	plan := map[string]interface{}{
		"PlannedDurationSeconds": 3600.0,
		"PlannedDistanceMeters":  32186.8,
		"TargetPower":            200.0,
	}

	summary := eval.Evaluate(workout, plan)
	require.NotNil(t, summary)
	require.Len(t, summary.Metrics, 4)

	speed := metricByName(t, summary.Metrics, "speed")
	assert.Equal(t, "good", speed.Rating)
	assert.Equal(t, "mph", speed.Unit)
	assert.Equal(t, "20.0", speed.PlannedDisplay)
	assert.Equal(t, "20.0", speed.ActualDisplay)

	power := metricByName(t, summary.Metrics, "power")
	assert.Equal(t, "ok", power.Rating)
	assert.Equal(t, "W", power.Unit)
	assert.Equal(t, "200", power.PlannedDisplay)
	assert.Equal(t, "185", power.ActualDisplay)
	require.NotNil(t, power.Delta)
	assert.InDelta(t, 15.0, *power.Delta, 0.0001)

	require.NotNil(t, summary.OverallScore)
	assert.InDelta(t, 92.5, *summary.OverallScore, 0.001)
	assert.Equal(t, "power rating ok", summary.Notes)
}

func TestRatePercentBoundaries(t *testing.T) {
	assert.Equal(t, "good", ratePercent(fptr(0.10), DistanceGoodPct, DistanceOkPct))
	assert.Equal(t, "ok", ratePercent(fptr(0.101), DistanceGoodPct, DistanceOkPct))
	assert.Equal(t, "ok", ratePercent(fptr(0.20), DistanceGoodPct, DistanceOkPct))
	assert.Equal(t, "bad", ratePercent(fptr(0.201), DistanceGoodPct, DistanceOkPct))
	assert.Equal(t, "", ratePercent(nil, DistanceGoodPct, DistanceOkPct))
}

func TestRateAbsoluteBoundaries(t *testing.T) {
	assert.Equal(t, "good", rateAbsolute(fptr(10.0), RunPaceThresholds))
	assert.Equal(t, "ok", rateAbsolute(fptr(20.0), RunPaceThresholds))
	assert.Equal(t, "bad", rateAbsolute(fptr(25.0), RunPaceThresholds))
	assert.Equal(t, "bad", rateAbsolute(fptr(90.0), RunPaceThresholds))
	assert.Equal(t, "", rateAbsolute(nil, RunPaceThresholds))

	assert.Equal(t, "good", rateAbsolute(fptr(9.0), BikePowerThresholds))
	assert.Equal(t, "ok", rateAbsolute(fptr(20.0), BikePowerThresholds))
	assert.Equal(t, "bad", rateAbsolute(fptr(21.0), BikePowerThresholds))
}

func TestUpsertStoresRecord(t *testing.T) {
	store := &fakeComplianceStore{}
	eval := NewEvaluator(store)

	workout := &models.Workout{
		ID:          42,
		AthleteID:   7,
		Sport:       "Run",
		Date:        time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		DurationSec: 3600,
		RawJSON:     rawPayload(t, map[string]interface{}{"TotalDistance": 6.0}),
	}
	plan := map[string]interface{}{
		"PlannedDurationSeconds": 3600.0,
		"PlannedDistance":        6.0,
	}

	summary, err := eval.Upsert(workout, plan)
	require.NoError(t, err)
	require.NotNil(t, summary)

	require.Len(t, store.upserts, 1)
	record := store.upserts[0]
	assert.Equal(t, int64(42), record.WorkoutID)
	assert.Equal(t, int64(7), record.AthleteID)
	assert.Equal(t, "Run", record.Sport)
	require.NotNil(t, record.OverallScore)
	assert.InDelta(t, 100.0, *record.OverallScore, 0.001)

	var stored []Metric
	require.NoError(t, json.Unmarshal(record.Metrics, &stored))
	assert.Len(t, stored, 3)
}

func TestUpsertSkipsUnscoredSport(t *testing.T) {
	store := &fakeComplianceStore{}
	eval := NewEvaluator(store)

	workout := &models.Workout{
		ID:          9,
		Sport:       "Strength",
		DurationSec: 1800,
	}

	summary, err := eval.Upsert(workout, nil)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Empty(t, summary.Metrics)
	assert.Nil(t, summary.OverallScore)
	assert.Empty(t, store.upserts)
}

func TestUpsertNilWorkout(t *testing.T) {
	store := &fakeComplianceStore{}
	eval := NewEvaluator(store)

	summary, err := eval.Upsert(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, summary)
	assert.Empty(t, store.upserts)
}

func TestForDayExactMatch(t *testing.T) {
	target := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeComplianceStore{
		byDate: map[string][]models.WorkoutCompliance{
			"2024-05-01": {{ID: 1, WorkoutDate: target}},
		},
	}
	eval := NewEvaluator(store)

	day, err := eval.ForDay(7, target)
	require.NoError(t, err)
	require.NotNil(t, day)
	assert.True(t, day.IsExactMatch)
	assert.Equal(t, "2024-05-01", day.RequestedDate)
	assert.Equal(t, "2024-05-01", day.WorkoutDate)
	assert.Len(t, day.Records, 1)
}

func TestForDayFallsBackToEarlierDate(t *testing.T) {
	target := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	earlier := time.Date(2024, 4, 29, 0, 0, 0, 0, time.UTC)
	store := &fakeComplianceStore{
		byDate: map[string][]models.WorkoutCompliance{
			"2024-04-29": {{ID: 4, WorkoutDate: earlier}, {ID: 5, WorkoutDate: earlier}},
		},
		fallback: &earlier,
	}
	eval := NewEvaluator(store)

	day, err := eval.ForDay(7, target)
	require.NoError(t, err)
	require.NotNil(t, day)
	assert.False(t, day.IsExactMatch)
	assert.Equal(t, "2024-05-03", day.RequestedDate)
	assert.Equal(t, "2024-04-29", day.WorkoutDate)
	assert.Len(t, day.Records, 2)
}

func TestForDayNoHistory(t *testing.T) {
	eval := NewEvaluator(&fakeComplianceStore{})

	day, err := eval.ForDay(7, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, day)
}
