package models

import (
	"time"

	"gorm.io/datatypes"
)

// Athlete is the identity anchor for all ingested data.
// Created on first contact (demo bootstrap or roster sync) and enriched once
// the provider assigns a numeric id; never hard-deleted in normal operation.
type Athlete struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalID  string    `gorm:"uniqueIndex;not null" json:"external_id"`
	TPAthleteID *int64    `gorm:"index" json:"tp_athlete_id,omitempty"` // provider numeric id, nil until roster/profile sync
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for Athlete
func (Athlete) TableName() string {
	return "athletes"
}

// OAuthToken stores the provider bearer credentials for one athlete.
// Storing a new token replaces any previous token for the athlete.
type OAuthToken struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AthleteID    int64     `gorm:"index;not null" json:"athlete_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope"`
	Provider     string    `gorm:"default:trainingpeaks" json:"provider"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for OAuthToken
func (OAuthToken) TableName() string {
	return "oauth_tokens"
}

// Workout is one provider workout, unique per (athlete, external workout id).
// Re-sync updates the raw payload in place rather than duplicating the row;
// the full provider record is kept so compliance can re-derive summaries.
type Workout struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	AthleteID       int64          `gorm:"index;not null" json:"athlete_id"`
	TPWorkoutID     string         `gorm:"uniqueIndex;not null" json:"tp_workout_id"`
	Date            time.Time      `gorm:"type:date;index" json:"date"`
	Sport           string         `gorm:"size:30" json:"sport"`
	DurationSec     int            `json:"duration_sec"`
	TSS             *float64       `json:"tss,omitempty"`
	IntensityFactor *float64       `json:"intensity_factor,omitempty"`
	RawJSON         datatypes.JSON `json:"raw_json,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for Workout
func (Workout) TableName() string {
	return "workouts"
}

// DailyMetric holds one day's physiological readings for an athlete.
// At most one row exists per (athlete, date); re-sync replaces the row.
// All readings are independently nullable because providers report them
// sparsely.
type DailyMetric struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AthleteID  int64     `gorm:"uniqueIndex:idx_daily_metrics_athlete_date;not null" json:"athlete_id"`
	Date       time.Time `gorm:"type:date;uniqueIndex:idx_daily_metrics_athlete_date;index" json:"date"`
	RHR        *float64  `json:"rhr,omitempty"`
	HRV        *float64  `json:"hrv,omitempty"`
	SleepHours *float64  `json:"sleep_hours,omitempty"`
	BodyScore  *float64  `json:"body_score,omitempty"`
	CTL        *float64  `json:"ctl,omitempty"` // chronic training load
	ATL        *float64  `json:"atl,omitempty"` // acute training load
	TSB        *float64  `json:"tsb,omitempty"` // training stress balance
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for DailyMetric
func (DailyMetric) TableName() string {
	return "daily_metrics"
}

// BaselineMetric is a statistical snapshot of one metric over one sliding
// window ending at WindowEndDate. Only the latest computation per
// (athlete, metric, window type) is retained; recalculation deletes the
// prior row before inserting.
type BaselineMetric struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AthleteID     int64     `gorm:"index;not null" json:"athlete_id"`
	MetricName    string    `gorm:"size:50;index" json:"metric_name"` // hrv, rhr, sleep_hours
	WindowType    string    `gorm:"size:20;index" json:"window_type"` // weekly..annual
	WindowEndDate time.Time `gorm:"type:date;index" json:"window_end_date"`
	Mean          float64   `json:"mean"`
	StdDev        float64   `json:"std_dev"`
	Percentile25  float64   `json:"percentile_25"`
	Percentile75  float64   `json:"percentile_75"`
	SampleCount   int       `json:"sample_count"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for BaselineMetric
func (BaselineMetric) TableName() string {
	return "baseline_metrics"
}

// MetricAlert records a detected threshold breach (weekly drift vs the
// monthly baseline, or an acute spike vs the weekly baseline). Append-only;
// callers rate-limit how often the check runs.
type MetricAlert struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AthleteID      int64     `gorm:"index;not null" json:"athlete_id"`
	AlertDate      time.Time `gorm:"type:date;index" json:"alert_date"`
	MetricName     string    `gorm:"size:50" json:"metric_name"`
	AlertType      string    `gorm:"size:20" json:"alert_type"` // weekly, acute
	CurrentValue   float64   `json:"current_value"`
	BaselineValue  float64   `json:"baseline_value"`
	DeviationScore float64   `json:"deviation_score"`
	Severity       string    `gorm:"size:10" json:"severity"` // green, yellow, red
	Message        string    `json:"message"`
	Acknowledged   bool      `gorm:"default:false" json:"acknowledged"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for MetricAlert
func (MetricAlert) TableName() string {
	return "metric_alerts"
}

// EmailLog is the append-only dedup ledger for outbound alert emails:
// one row per (athlete, date, email type), written after every triggered
// evaluation whether the send succeeded or not. Its presence is the sole
// source of truth for "already notified today".
type EmailLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AthleteID int64     `gorm:"index;not null" json:"athlete_id"`
	Date      time.Time `gorm:"type:date;index" json:"date"`
	EmailType string    `gorm:"size:40" json:"email_type"`
	Status    string    `gorm:"size:40" json:"status"` // sent, logged, error, provider-specific
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for EmailLog
func (EmailLog) TableName() string {
	return "email_log"
}

// WorkoutCompliance stores the planned-vs-actual evaluation for one workout.
// Upserted on every re-evaluation: summaries, ratings, score, and notes are
// fully replaced, keyed by workout id.
type WorkoutCompliance struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkoutID       int64          `gorm:"uniqueIndex;not null" json:"workout_id"`
	AthleteID       int64          `gorm:"index;not null" json:"athlete_id"`
	WorkoutDate     time.Time      `gorm:"type:date;index" json:"workout_date"`
	Sport           string         `gorm:"size:30" json:"sport"`
	PlannedSummary  datatypes.JSON `json:"planned_summary,omitempty"`
	ActualSummary   datatypes.JSON `json:"actual_summary,omitempty"`
	Metrics         datatypes.JSON `json:"metrics,omitempty"`
	OverallScore    *float64       `json:"overall_score,omitempty"`
	EvaluationNotes string         `json:"evaluation_notes,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for WorkoutCompliance
func (WorkoutCompliance) TableName() string {
	return "workout_compliance"
}
