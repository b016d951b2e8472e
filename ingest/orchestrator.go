// Package ingest pulls workouts and wellness metrics from the training
// platform, persists them idempotently, and chains the downstream analysis
// engines after every pull.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"podium-coach/baseline"
	"podium-coach/cache"
	"podium-coach/compliance"
	models "podium-coach/database/models_pkg"
	"podium-coach/recovery"
	"podium-coach/tpapi"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// athleteStore covers athlete lookup and token inspection
type athleteStore interface {
	GetByID(id int64) (*models.Athlete, error)
	GetOrCreateDemo() (*models.Athlete, error)
	SetTPAthleteID(athleteID, tpAthleteID int64) error
	GetToken(athleteID int64) (*models.OAuthToken, error)
	FindCoachToken() (*models.OAuthToken, error)
}

type workoutStore interface {
	GetByExternalID(externalID string) (*models.Workout, error)
	Create(workout *models.Workout) error
	UpdateRawPayload(workoutID int64, raw datatypes.JSON) error
}

type metricStore interface {
	UpsertDaily(metric *models.DailyMetric) error
}

// Provider is the provider API surface the orchestrator needs
type Provider interface {
	FetchWorkouts(ctx context.Context, tpAthleteID *int64, start, end time.Time) ([]tpapi.Record, error)
	FetchDailyMetricsRange(ctx context.Context, tpAthleteID *int64, start, end time.Time) ([]tpapi.Record, error)
	FetchWorkoutDetails(ctx context.Context, tpAthleteID *int64, workoutID string) (tpapi.Record, error)
}

// ProviderFactory builds a provider client bound to one athlete
type ProviderFactory func(athleteID int64) Provider

type baselineEngine interface {
	CalculateBaselines(athleteID int64, endDate time.Time) (baseline.Summary, error)
}

type recoveryEngine interface {
	Evaluate(ctx context.Context, athleteID int64, checkDate time.Time, threshold float64) (*recovery.Result, error)
}

type complianceEngine interface {
	Upsert(workout *models.Workout, planData map[string]interface{}) (*compliance.Summary, error)
	ForDay(athleteID int64, target time.Time) (*compliance.DayCompliance, error)
}

// ComplianceUpdate is one workout's compliance outcome inside a run report
type ComplianceUpdate struct {
	WorkoutID    string   `json:"workout_id"`
	Sport        string   `json:"sport"`
	Date         string   `json:"date"`
	OverallScore *float64 `json:"overall_score"`
	Notes        string   `json:"notes,omitempty"`
}

// Report summarizes one recent-window ingestion run
type Report struct {
	RunID             string                    `json:"run_id"`
	TPAthleteID       *int64                    `json:"tp_athlete_id"`
	UsedCoachToken    bool                      `json:"used_coach_token"`
	Range             string                    `json:"range"`
	RangeDays         int                       `json:"range_days"`
	WorkoutsFetched   int                       `json:"workouts_fetched"`
	WorkoutsInserted  int                       `json:"workouts_inserted"`
	WorkoutDuplicates int                       `json:"workout_duplicates"`
	SampleWorkoutIDs  []string                  `json:"sample_workout_ids"`
	MetricsFetched    int                       `json:"metrics_fetched"`
	MetricsSaved      int                       `json:"metrics_saved"`
	MetricDatesSaved  []string                  `json:"metrics_dates_saved"`
	BaselineSummary   baseline.Summary          `json:"baseline_summary"`
	RecoveryAlert     *recovery.Result          `json:"recovery_alert"`
	ComplianceUpdates []ComplianceUpdate        `json:"compliance_updates"`
	LatestCompliance  *compliance.DayCompliance `json:"latest_compliance"`
}

// FailedSegment records one backfill segment that could not be fetched
type FailedSegment struct {
	Type  string `json:"type"`
	Range string `json:"range"`
	Error string `json:"error"`
}

// BackfillReport summarizes one historical backfill run
type BackfillReport struct {
	RunID             string          `json:"run_id"`
	TPAthleteID       *int64          `json:"tp_athlete_id"`
	UsedCoachToken    bool            `json:"used_coach_token"`
	DateRange         string          `json:"date_range"`
	Segments          int             `json:"segments"`
	WorkoutsInserted  int             `json:"workouts_inserted"`
	WorkoutDuplicates int             `json:"workout_duplicates"`
	MetricsSaved      int             `json:"metrics_saved"`
	FailedSegments    []FailedSegment `json:"failed_segments"`
}

// Orchestrator runs ingestion end to end for one athlete at a time
type Orchestrator struct {
	athletes       athleteStore
	workouts       workoutStore
	metrics        metricStore
	providers      ProviderFactory
	baselines      baselineEngine
	recovery       recoveryEngine
	compliance     complianceEngine
	plans          *cache.PlanCache
	alertThreshold float64
	today          func() time.Time
	log            *logrus.Entry
}

// NewOrchestrator wires the ingestion pipeline. plans may be nil when Redis
// is unavailable; plan payloads are then fetched fresh each run.
func NewOrchestrator(
	athletes athleteStore,
	workouts workoutStore,
	metrics metricStore,
	providers ProviderFactory,
	baselines baselineEngine,
	recoveryEng recoveryEngine,
	complianceEng complianceEngine,
	plans *cache.PlanCache,
	alertThreshold float64,
	today func() time.Time,
) *Orchestrator {
	if alertThreshold <= 0 {
		alertThreshold = recovery.DefaultThreshold
	}
	return &Orchestrator{
		athletes:       athletes,
		workouts:       workouts,
		metrics:        metrics,
		providers:      providers,
		baselines:      baselines,
		recovery:       recoveryEng,
		compliance:     complianceEng,
		plans:          plans,
		alertThreshold: alertThreshold,
		today:          today,
		log:            logrus.WithField("component", "ingest"),
	}
}

// resolveAthlete returns the requested athlete or the demo athlete
func (o *Orchestrator) resolveAthlete(athleteID *int64) (*models.Athlete, error) {
	if athleteID != nil {
		return o.athletes.GetByID(*athleteID)
	}
	return o.athletes.GetOrCreateDemo()
}

// usingCoachToken reports whether provider calls for this athlete will ride
// on a coach token rather than the athlete's own.
func (o *Orchestrator) usingCoachToken(athleteID int64) (bool, error) {
	own, err := o.athletes.GetToken(athleteID)
	if err != nil {
		return false, err
	}
	if own != nil {
		return false, nil
	}
	coach, err := o.athletes.FindCoachToken()
	if err != nil {
		return false, err
	}
	return coach != nil, nil
}

// IngestRecent pulls the trailing window ending at the effective today,
// stores new workouts and metrics, then recomputes baselines, evaluates the
// recovery alert, and refreshes compliance for every fetched workout.
func (o *Orchestrator) IngestRecent(ctx context.Context, athleteID *int64, days int) (*Report, error) {
	athlete, err := o.resolveAthlete(athleteID)
	if err != nil {
		return nil, fmt.Errorf("IngestRecent: %w", err)
	}
	if athlete == nil {
		return nil, fmt.Errorf("IngestRecent: athlete not found")
	}

	if days < 1 {
		days = 1
	}
	end := o.today()
	start := end.AddDate(0, 0, -(days - 1))

	usingCoach, err := o.usingCoachToken(athlete.ID)
	if err != nil {
		return nil, fmt.Errorf("IngestRecent: %w", err)
	}
	// Coach tokens address athletes by provider id, so a roster athlete
	// without one cannot be fetched yet.
	if usingCoach && athlete.TPAthleteID == nil {
		return nil, fmt.Errorf("IngestRecent: athlete %d has no provider athlete id yet, sync the roster first", athlete.ID)
	}

	report := &Report{
		RunID:       uuid.New().String(),
		TPAthleteID: athlete.TPAthleteID,
		Range:       fmt.Sprintf("%s..%s", start.Format("2006-01-02"), end.Format("2006-01-02")),
		RangeDays:   days,
	}

	provider := o.providers(athlete.ID)
	records, err := provider.FetchWorkouts(ctx, athlete.TPAthleteID, start, end)
	if err != nil {
		return nil, fmt.Errorf("IngestRecent: %w", err)
	}
	report.WorkoutsFetched = len(records)

	for _, rec := range records {
		externalID := workoutExternalID(rec)
		if externalID == "" {
			continue
		}
		if len(report.SampleWorkoutIDs) < 5 {
			report.SampleWorkoutIDs = append(report.SampleWorkoutIDs, externalID)
		}

		workout, inserted, err := o.storeWorkout(athlete.ID, externalID, rec, true)
		if err != nil {
			return nil, fmt.Errorf("IngestRecent: %w", err)
		}
		if inserted {
			report.WorkoutsInserted++
		} else {
			report.WorkoutDuplicates++
		}

		plan := o.planFor(ctx, provider, athlete.TPAthleteID, externalID)
		summary, err := o.compliance.Upsert(workout, plan)
		if err != nil {
			o.log.WithError(err).WithField("workout_id", externalID).Warn("compliance evaluation failed")
			continue
		}
		if summary != nil && len(summary.Metrics) > 0 {
			report.ComplianceUpdates = append(report.ComplianceUpdates, ComplianceUpdate{
				WorkoutID:    externalID,
				Sport:        workout.Sport,
				Date:         workout.Date.Format("2006-01-02"),
				OverallScore: summary.OverallScore,
				Notes:        summary.Notes,
			})
		}
	}

	// Adopt the provider athlete id from workout payloads when we did not
	// know it yet; coach-token fetches need it on every subsequent call.
	if athlete.TPAthleteID == nil {
		if inferred := inferTPAthleteID(records); inferred != nil {
			if err := o.athletes.SetTPAthleteID(athlete.ID, *inferred); err != nil {
				o.log.WithError(err).Warn("failed to persist inferred provider athlete id")
			} else {
				athlete.TPAthleteID = inferred
				report.TPAthleteID = inferred
			}
		}
	}

	metricRecords, err := provider.FetchDailyMetricsRange(ctx, athlete.TPAthleteID, start, end)
	if err != nil {
		return nil, fmt.Errorf("IngestRecent: %w", err)
	}
	report.MetricsFetched = len(metricRecords)

	for _, rec := range metricRecords {
		day := metricDate(rec)
		if day == nil {
			continue
		}
		if err := o.metrics.UpsertDaily(buildDailyMetric(athlete.ID, *day, rec)); err != nil {
			return nil, fmt.Errorf("IngestRecent: %w", err)
		}
		report.MetricsSaved++
		report.MetricDatesSaved = append(report.MetricDatesSaved, day.Format("2006-01-02"))
	}
	sort.Strings(report.MetricDatesSaved)

	report.BaselineSummary, err = o.baselines.CalculateBaselines(athlete.ID, end)
	if err != nil {
		o.log.WithError(err).Warn("baseline calculation incomplete")
	}

	report.RecoveryAlert, err = o.recovery.Evaluate(ctx, athlete.ID, end, o.alertThreshold)
	if err != nil {
		o.log.WithError(err).Warn("recovery evaluation failed")
	}

	report.LatestCompliance, err = o.compliance.ForDay(athlete.ID, end)
	if err != nil {
		o.log.WithError(err).Warn("compliance lookup failed")
	}

	report.UsedCoachToken = usingCoach
	o.log.WithFields(logrus.Fields{
		"run_id":    report.RunID,
		"athlete":   athlete.ID,
		"range":     report.Range,
		"workouts":  report.WorkoutsInserted,
		"metrics":   report.MetricsSaved,
		"dup_count": report.WorkoutDuplicates,
	}).Info("ingestion run complete")
	return report, nil
}

// BackfillHistorical pulls daysBack days of history split into equal
// segments, skipping compliance evaluation for speed. Failed segments are
// reported, not fatal.
func (o *Orchestrator) BackfillHistorical(ctx context.Context, athleteID *int64, daysBack, segments int) (*BackfillReport, error) {
	athlete, err := o.resolveAthlete(athleteID)
	if err != nil {
		return nil, fmt.Errorf("BackfillHistorical: %w", err)
	}
	if athlete == nil {
		return nil, fmt.Errorf("BackfillHistorical: athlete not found")
	}

	usingCoach, err := o.usingCoachToken(athlete.ID)
	if err != nil {
		return nil, fmt.Errorf("BackfillHistorical: %w", err)
	}
	if usingCoach && athlete.TPAthleteID == nil {
		return nil, fmt.Errorf("BackfillHistorical: athlete %d has no provider athlete id yet, sync the roster first", athlete.ID)
	}

	if segments < 1 {
		segments = 1
	}
	end := o.today()
	start := end.AddDate(0, 0, -daysBack)
	totalDays := daysBack + 1
	segDays := (totalDays + segments - 1) / segments

	report := &BackfillReport{
		RunID:       uuid.New().String(),
		TPAthleteID: athlete.TPAthleteID,
		DateRange:   fmt.Sprintf("%s..%s", start.Format("2006-01-02"), end.Format("2006-01-02")),
	}

	provider := o.providers(athlete.ID)
	for segStart := start; !segStart.After(end); segStart = segStart.AddDate(0, 0, segDays) {
		segEnd := segStart.AddDate(0, 0, segDays-1)
		if segEnd.After(end) {
			segEnd = end
		}
		report.Segments++
		rangeLabel := fmt.Sprintf("%s..%s", segStart.Format("2006-01-02"), segEnd.Format("2006-01-02"))

		records, err := provider.FetchWorkouts(ctx, athlete.TPAthleteID, segStart, segEnd)
		if err != nil {
			report.FailedSegments = append(report.FailedSegments, FailedSegment{Type: "workouts", Range: rangeLabel, Error: err.Error()})
		} else {
			for _, rec := range records {
				externalID := workoutExternalID(rec)
				if externalID == "" {
					continue
				}
				_, inserted, err := o.storeWorkout(athlete.ID, externalID, rec, false)
				if err != nil {
					report.FailedSegments = append(report.FailedSegments, FailedSegment{Type: "workouts", Range: rangeLabel, Error: err.Error()})
					break
				}
				if inserted {
					report.WorkoutsInserted++
				} else {
					report.WorkoutDuplicates++
				}
			}
		}

		metricRecords, err := provider.FetchDailyMetricsRange(ctx, athlete.TPAthleteID, segStart, segEnd)
		if err != nil {
			report.FailedSegments = append(report.FailedSegments, FailedSegment{Type: "metrics", Range: rangeLabel, Error: err.Error()})
			continue
		}
		for _, rec := range metricRecords {
			day := metricDate(rec)
			if day == nil {
				continue
			}
			if err := o.metrics.UpsertDaily(buildDailyMetric(athlete.ID, *day, rec)); err != nil {
				report.FailedSegments = append(report.FailedSegments, FailedSegment{Type: "metrics", Range: rangeLabel, Error: err.Error()})
				break
			}
			report.MetricsSaved++
		}
	}

	report.UsedCoachToken = usingCoach
	o.log.WithFields(logrus.Fields{
		"run_id":   report.RunID,
		"athlete":  athlete.ID,
		"range":    report.DateRange,
		"segments": report.Segments,
		"failed":   len(report.FailedSegments),
	}).Info("backfill complete")
	return report, nil
}
