package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"podium-coach/baseline"
	"podium-coach/compliance"
	models "podium-coach/database/models_pkg"
	"podium-coach/recovery"
	"podium-coach/tpapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fakeAthleteStore struct {
	athlete    *models.Athlete
	ownToken   *models.OAuthToken
	coachToken *models.OAuthToken
	setTPCalls []int64
}

func (f *fakeAthleteStore) GetByID(id int64) (*models.Athlete, error) {
	if f.athlete != nil && f.athlete.ID == id {
		return f.athlete, nil
	}
	return nil, nil
}

func (f *fakeAthleteStore) GetOrCreateDemo() (*models.Athlete, error) { return f.athlete, nil }

func (f *fakeAthleteStore) SetTPAthleteID(athleteID, tpAthleteID int64) error {
	f.setTPCalls = append(f.setTPCalls, tpAthleteID)
	return nil
}

func (f *fakeAthleteStore) GetToken(athleteID int64) (*models.OAuthToken, error) {
	return f.ownToken, nil
}

func (f *fakeAthleteStore) FindCoachToken() (*models.OAuthToken, error) { return f.coachToken, nil }

type fakeWorkoutStore struct {
	existing   map[string]*models.Workout
	created    []*models.Workout
	rawUpdates map[int64]datatypes.JSON
	nextID     int64
}

func newFakeWorkoutStore() *fakeWorkoutStore {
	return &fakeWorkoutStore{
		existing:   map[string]*models.Workout{},
		rawUpdates: map[int64]datatypes.JSON{},
	}
}

func (f *fakeWorkoutStore) GetByExternalID(externalID string) (*models.Workout, error) {
	return f.existing[externalID], nil
}

func (f *fakeWorkoutStore) Create(workout *models.Workout) error {
	f.nextID++
	workout.ID = f.nextID
	f.created = append(f.created, workout)
	f.existing[workout.TPWorkoutID] = workout
	return nil
}

func (f *fakeWorkoutStore) UpdateRawPayload(workoutID int64, raw datatypes.JSON) error {
	f.rawUpdates[workoutID] = raw
	return nil
}

type fakeMetricSink struct {
	saved []*models.DailyMetric
	err   error
}

func (f *fakeMetricSink) UpsertDaily(metric *models.DailyMetric) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, metric)
	return nil
}

type fakeProvider struct {
	workouts      []tpapi.Record
	metrics       []tpapi.Record
	details       map[string]tpapi.Record
	workoutRanges []string
	metricRanges  []string
	failWorkoutOn string
}

func rangeLabel(start, end time.Time) string {
	return fmt.Sprintf("%s..%s", start.Format("2006-01-02"), end.Format("2006-01-02"))
}

func (f *fakeProvider) FetchWorkouts(ctx context.Context, tpAthleteID *int64, start, end time.Time) ([]tpapi.Record, error) {
	label := rangeLabel(start, end)
	f.workoutRanges = append(f.workoutRanges, label)
	if f.failWorkoutOn != "" && f.failWorkoutOn == label {
		return nil, errors.New("provider rejected range")
	}
	return f.workouts, nil
}

func (f *fakeProvider) FetchDailyMetricsRange(ctx context.Context, tpAthleteID *int64, start, end time.Time) ([]tpapi.Record, error) {
	f.metricRanges = append(f.metricRanges, rangeLabel(start, end))
	return f.metrics, nil
}

func (f *fakeProvider) FetchWorkoutDetails(ctx context.Context, tpAthleteID *int64, workoutID string) (tpapi.Record, error) {
	return f.details[workoutID], nil
}

type fakeBaselineEngine struct{ calls int }

func (f *fakeBaselineEngine) CalculateBaselines(athleteID int64, endDate time.Time) (baseline.Summary, error) {
	f.calls++
	return baseline.Summary{}, nil
}

type fakeRecoveryEngine struct {
	thresholds []float64
}

func (f *fakeRecoveryEngine) Evaluate(ctx context.Context, athleteID int64, checkDate time.Time, threshold float64) (*recovery.Result, error) {
	f.thresholds = append(f.thresholds, threshold)
	return &recovery.Result{}, nil
}

type fakeComplianceEngine struct {
	evaluated []*models.Workout
	plans     []map[string]interface{}
}

func (f *fakeComplianceEngine) Upsert(workout *models.Workout, planData map[string]interface{}) (*compliance.Summary, error) {
	f.evaluated = append(f.evaluated, workout)
	f.plans = append(f.plans, planData)
	score := 100.0
	return &compliance.Summary{
		Sport:        workout.Sport,
		Metrics:      []compliance.Metric{{Name: "distance", Rating: "good"}},
		OverallScore: &score,
	}, nil
}

func (f *fakeComplianceEngine) ForDay(athleteID int64, target time.Time) (*compliance.DayCompliance, error) {
	return nil, nil
}

func fixedToday(date string) func() time.Time {
	parsed, _ := time.Parse("2006-01-02", date)
	return func() time.Time { return parsed }
}

func testOrchestrator(athletes *fakeAthleteStore, workouts *fakeWorkoutStore, metrics *fakeMetricSink, provider *fakeProvider) (*Orchestrator, *fakeRecoveryEngine, *fakeComplianceEngine) {
	recoveryEng := &fakeRecoveryEngine{}
	complianceEng := &fakeComplianceEngine{}
	orch := NewOrchestrator(
		athletes,
		workouts,
		metrics,
		func(athleteID int64) Provider { return provider },
		&fakeBaselineEngine{},
		recoveryEng,
		complianceEng,
		nil,
		0,
		fixedToday("2024-05-10"),
	)
	return orch, recoveryEng, complianceEng
}

func TestWorkoutExternalID(t *testing.T) {
	assert.Equal(t, "abc", workoutExternalID(tpapi.Record{"workoutId": "abc"}))
	assert.Equal(t, "12345", workoutExternalID(tpapi.Record{"Id": 12345.0}))
	assert.Equal(t, "987", workoutExternalID(tpapi.Record{"ExerciseId": 987.0, "Sport": "Run"}))
	assert.Equal(t, "", workoutExternalID(tpapi.Record{"Sport": "Run"}))

	// Named keys win over suffix probing.
	assert.Equal(t, "named", workoutExternalID(tpapi.Record{"workoutId": "named", "AthleteId": 55.0}))
}

func TestCoerceDate(t *testing.T) {
	d := coerceDate("2022-06-01T06:12:34")
	require.NotNil(t, d)
	assert.Equal(t, "2022-06-01", d.Format("2006-01-02"))

	d = coerceDate("2022-06-01")
	require.NotNil(t, d)
	assert.Equal(t, "2022-06-01", d.Format("2006-01-02"))

	assert.Nil(t, coerceDate("not a date"))
	assert.Nil(t, coerceDate(""))
	assert.Nil(t, coerceDate(42.0))
}

func TestBuildDailyMetric(t *testing.T) {
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	metric := buildDailyMetric(7, day, tpapi.Record{
		"RestingHeartRate": 48.0,
		"hrv":              62.5,
		"SleepHours":       7.5,
		"Ctl":              80.0,
	})

	assert.Equal(t, int64(7), metric.AthleteID)
	require.NotNil(t, metric.RHR)
	assert.Equal(t, 48.0, *metric.RHR)
	require.NotNil(t, metric.HRV)
	assert.Equal(t, 62.5, *metric.HRV)
	require.NotNil(t, metric.SleepHours)
	assert.Equal(t, 7.5, *metric.SleepHours)
	require.NotNil(t, metric.CTL)
	assert.Equal(t, 80.0, *metric.CTL)
	assert.Nil(t, metric.BodyScore)
	assert.Nil(t, metric.TSB)
}

func TestInferTPAthleteID(t *testing.T) {
	id := inferTPAthleteID([]tpapi.Record{
		{"workoutId": "1"},
		{"workoutId": "2", "AthleteId": 777.0},
	})
	require.NotNil(t, id)
	assert.Equal(t, int64(777), *id)

	assert.Nil(t, inferTPAthleteID([]tpapi.Record{{"AthleteId": 0.0}}))
	assert.Nil(t, inferTPAthleteID(nil))
}

func TestIngestRecent(t *testing.T) {
	tpID := int64(777)
	athletes := &fakeAthleteStore{
		athlete:  &models.Athlete{ID: 1, TPAthleteID: &tpID},
		ownToken: &models.OAuthToken{AthleteID: 1},
	}
	workouts := newFakeWorkoutStore()
	workouts.existing["200"] = &models.Workout{ID: 99, AthleteID: 1, TPWorkoutID: "200", Sport: "Run"}

	metrics := &fakeMetricSink{}
	provider := &fakeProvider{
		workouts: []tpapi.Record{
			{"workoutId": 100.0, "workoutDay": "2024-05-09T00:00:00", "sportType": "Run", "TotalTime": 1.5},
			{"workoutId": 200.0, "workoutDay": "2024-05-10T00:00:00", "sportType": "Run"},
		},
		metrics: []tpapi.Record{
			{"DateTime": "2024-05-10T04:00:00", "Pulse": 48.0},
			{"DateTime": "2024-05-09T04:00:00", "Hrv": 60.0},
			{"Pulse": 50.0},
		},
	}

	orch, recoveryEng, complianceEng := testOrchestrator(athletes, workouts, metrics, provider)

	athleteID := int64(1)
	report, err := orch.IngestRecent(context.Background(), &athleteID, 7)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, "2024-05-04..2024-05-10", report.Range)
	assert.Equal(t, 7, report.RangeDays)
	assert.False(t, report.UsedCoachToken)
	assert.NotEmpty(t, report.RunID)

	assert.Equal(t, 2, report.WorkoutsFetched)
	assert.Equal(t, 1, report.WorkoutsInserted)
	assert.Equal(t, 1, report.WorkoutDuplicates)
	assert.Equal(t, []string{"100", "200"}, report.SampleWorkoutIDs)

	// The new workout got the sub-20 duration heuristic (hours to seconds).
	require.Len(t, workouts.created, 1)
	created := workouts.created[0]
	assert.Equal(t, "100", created.TPWorkoutID)
	assert.Equal(t, 5400, created.DurationSec)
	assert.Equal(t, "Run", created.Sport)
	assert.Equal(t, "2024-05-09", created.Date.Format("2006-01-02"))

	// The duplicate's raw payload was refreshed in place.
	assert.Contains(t, workouts.rawUpdates, int64(99))

	// Record without a date is skipped, the rest saved in sorted order.
	assert.Equal(t, 3, report.MetricsFetched)
	assert.Equal(t, 2, report.MetricsSaved)
	assert.Equal(t, []string{"2024-05-09", "2024-05-10"}, report.MetricDatesSaved)
	assert.Len(t, metrics.saved, 2)

	// Both workouts went through compliance, and the default alert threshold
	// reached the recovery engine.
	assert.Len(t, complianceEng.evaluated, 2)
	assert.Len(t, report.ComplianceUpdates, 2)
	require.Len(t, recoveryEng.thresholds, 1)
	assert.Equal(t, recovery.DefaultThreshold, recoveryEng.thresholds[0])
}

func TestIngestRecentCoachTokenNeedsProviderID(t *testing.T) {
	athletes := &fakeAthleteStore{
		athlete:    &models.Athlete{ID: 1},
		coachToken: &models.OAuthToken{AthleteID: 9, Scope: "coach:athletes"},
	}
	orch, _, _ := testOrchestrator(athletes, newFakeWorkoutStore(), &fakeMetricSink{}, &fakeProvider{})

	athleteID := int64(1)
	_, err := orch.IngestRecent(context.Background(), &athleteID, 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync the roster first")
}

func TestIngestRecentInfersProviderAthleteID(t *testing.T) {
	athletes := &fakeAthleteStore{
		athlete:  &models.Athlete{ID: 1},
		ownToken: &models.OAuthToken{AthleteID: 1},
	}
	provider := &fakeProvider{
		workouts: []tpapi.Record{
			{"workoutId": 100.0, "workoutDay": "2024-05-10", "AthleteId": 777.0},
		},
	}
	orch, _, _ := testOrchestrator(athletes, newFakeWorkoutStore(), &fakeMetricSink{}, provider)

	report, err := orch.IngestRecent(context.Background(), nil, 1)
	require.NoError(t, err)

	require.Equal(t, []int64{777}, athletes.setTPCalls)
	require.NotNil(t, report.TPAthleteID)
	assert.Equal(t, int64(777), *report.TPAthleteID)
}

func TestBackfillHistoricalSegments(t *testing.T) {
	tpID := int64(777)
	athletes := &fakeAthleteStore{
		athlete:  &models.Athlete{ID: 1, TPAthleteID: &tpID},
		ownToken: &models.OAuthToken{AthleteID: 1},
	}
	workouts := newFakeWorkoutStore()
	metrics := &fakeMetricSink{}
	provider := &fakeProvider{
		workouts: []tpapi.Record{{"workoutId": 300.0, "workoutDay": "2024-05-02"}},
		metrics:  []tpapi.Record{{"DateTime": "2024-05-02", "Pulse": 50.0}},
	}

	orch, _, complianceEng := testOrchestrator(athletes, workouts, metrics, provider)

	athleteID := int64(1)
	report, err := orch.BackfillHistorical(context.Background(), &athleteID, 9, 2)
	require.NoError(t, err)

	// 10 calendar days split in two, walked oldest first.
	assert.Equal(t, 2, report.Segments)
	assert.Equal(t, "2024-05-01..2024-05-10", report.DateRange)
	assert.Equal(t, []string{"2024-05-01..2024-05-05", "2024-05-06..2024-05-10"}, provider.workoutRanges)

	// The same workout comes back in both segments; only the first insert
	// counts.
	assert.Equal(t, 1, report.WorkoutsInserted)
	assert.Equal(t, 1, report.WorkoutDuplicates)
	assert.Equal(t, 2, report.MetricsSaved)
	assert.Empty(t, report.FailedSegments)

	// Backfill skips compliance entirely.
	assert.Empty(t, complianceEng.evaluated)
}

func TestBackfillHistoricalRecordsFailedSegment(t *testing.T) {
	tpID := int64(777)
	athletes := &fakeAthleteStore{
		athlete:  &models.Athlete{ID: 1, TPAthleteID: &tpID},
		ownToken: &models.OAuthToken{AthleteID: 1},
	}
	provider := &fakeProvider{
		metrics:       []tpapi.Record{{"DateTime": "2024-05-02", "Pulse": 50.0}},
		failWorkoutOn: "2024-05-01..2024-05-05",
	}

	orch, _, _ := testOrchestrator(athletes, newFakeWorkoutStore(), &fakeMetricSink{}, provider)

	athleteID := int64(1)
	report, err := orch.BackfillHistorical(context.Background(), &athleteID, 9, 2)
	require.NoError(t, err)

	require.Len(t, report.FailedSegments, 1)
	assert.Equal(t, "workouts", report.FailedSegments[0].Type)
	assert.Equal(t, "2024-05-01..2024-05-05", report.FailedSegments[0].Range)

	// Metrics for the failed segment still landed.
	assert.Equal(t, 2, report.MetricsSaved)
}
