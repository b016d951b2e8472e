package workouts

import (
	"fmt"
	"time"

	models "podium-coach/database/models_pkg"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repository handles database operations for workouts and their compliance
// evaluations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new workouts repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetByExternalID retrieves a workout by its provider workout id, nil when absent
func (r *Repository) GetByExternalID(tpWorkoutID string) (*models.Workout, error) {
	var workout models.Workout
	err := r.db.Where("tp_workout_id = ?", tpWorkoutID).First(&workout).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByExternalID: %w", err)
	}
	return &workout, nil
}

// Create inserts a new workout row
func (r *Repository) Create(workout *models.Workout) error {
	if err := r.db.Create(workout).Error; err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// UpdateRawPayload refreshes the stored provider payload for a re-seen
// workout so compliance evaluation works from the latest data.
func (r *Repository) UpdateRawPayload(workoutID int64, raw datatypes.JSON) error {
	err := r.db.Model(&models.Workout{}).
		Where("id = ?", workoutID).
		Update("raw_json", raw).Error
	if err != nil {
		return fmt.Errorf("UpdateRawPayload: %w", err)
	}
	return nil
}

// InRange returns workouts for the athlete with date in [start, end]
func (r *Repository) InRange(athleteID int64, start, end time.Time) ([]models.Workout, error) {
	var out []models.Workout
	err := r.db.
		Where("athlete_id = ? AND date >= ? AND date <= ?", athleteID, start, end).
		Order("date").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("InRange: %w", err)
	}
	return out, nil
}

// GetComplianceByWorkoutID retrieves the compliance row for a workout, nil when absent
func (r *Repository) GetComplianceByWorkoutID(workoutID int64) (*models.WorkoutCompliance, error) {
	var record models.WorkoutCompliance
	err := r.db.Where("workout_id = ?", workoutID).First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetComplianceByWorkoutID: %w", err)
	}
	return &record, nil
}

// UpsertCompliance creates or fully replaces the compliance evaluation for a
// workout. Summaries, metrics, score, and notes are overwritten on every call.
func (r *Repository) UpsertCompliance(record *models.WorkoutCompliance) error {
	existing, err := r.GetComplianceByWorkoutID(record.WorkoutID)
	if err != nil {
		return err
	}
	if existing == nil {
		if err := r.db.Create(record).Error; err != nil {
			return fmt.Errorf("UpsertCompliance: %w", err)
		}
		return nil
	}
	existing.WorkoutDate = record.WorkoutDate
	existing.Sport = record.Sport
	existing.PlannedSummary = record.PlannedSummary
	existing.ActualSummary = record.ActualSummary
	existing.Metrics = record.Metrics
	existing.OverallScore = record.OverallScore
	existing.EvaluationNotes = record.EvaluationNotes
	if err := r.db.Save(existing).Error; err != nil {
		return fmt.Errorf("UpsertCompliance: %w", err)
	}
	record.ID = existing.ID
	return nil
}

// ComplianceForDate returns all compliance rows for the athlete on the exact
// date, most recently updated first.
func (r *Repository) ComplianceForDate(athleteID int64, date time.Time) ([]models.WorkoutCompliance, error) {
	var out []models.WorkoutCompliance
	err := r.db.
		Where("athlete_id = ? AND workout_date = ?", athleteID, date).
		Order("updated_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("ComplianceForDate: %w", err)
	}
	return out, nil
}

// LatestComplianceDate returns the most recent date ≤ target with any
// compliance rows for the athlete, nil when no prior record exists.
func (r *Repository) LatestComplianceDate(athleteID int64, target time.Time) (*time.Time, error) {
	var record models.WorkoutCompliance
	err := r.db.
		Where("athlete_id = ? AND workout_date <= ?", athleteID, target).
		Order("workout_date DESC, updated_at DESC").
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestComplianceDate: %w", err)
	}
	return &record.WorkoutDate, nil
}
