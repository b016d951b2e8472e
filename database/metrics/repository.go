package metrics

import (
	"fmt"
	"time"

	models "podium-coach/database/models_pkg"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles database operations for daily metrics
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new metrics repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertDaily writes one day's readings for an athlete. A single conditional
// upsert keyed (athlete_id, date) keeps at most one row per athlete/day with
// latest-write-wins semantics.
func (r *Repository) UpsertDaily(metric *models.DailyMetric) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "athlete_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"rhr", "hrv", "sleep_hours", "body_score", "ctl", "atl", "tsb",
		}),
	}).Create(metric).Error
	if err != nil {
		return fmt.Errorf("UpsertDaily: %w", err)
	}
	return nil
}

// InRange returns all metric rows for the athlete with date in [start, end]
func (r *Repository) InRange(athleteID int64, start, end time.Time) ([]models.DailyMetric, error) {
	var out []models.DailyMetric
	err := r.db.
		Where("athlete_id = ? AND date >= ? AND date <= ?", athleteID, start, end).
		Order("date").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("InRange: %w", err)
	}
	return out, nil
}

// ForDay returns the metric row for one athlete/day, nil when absent
func (r *Repository) ForDay(athleteID int64, day time.Time) (*models.DailyMetric, error) {
	var metric models.DailyMetric
	err := r.db.Where("athlete_id = ? AND date = ?", athleteID, day).First(&metric).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ForDay: %w", err)
	}
	return &metric, nil
}
