package baselines

import (
	"fmt"
	"time"

	models "podium-coach/database/models_pkg"

	"gorm.io/gorm"
)

// Repository handles database operations for baseline snapshots, threshold
// alerts, and the email dedup ledger.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new baselines repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Replace deletes any existing baseline for the exact
// (athlete, metric, window type) tuple and inserts the new snapshot, so each
// window type is a single current snapshot rather than a history.
func (r *Repository) Replace(baseline *models.BaselineMetric) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		del := tx.Where(
			"athlete_id = ? AND metric_name = ? AND window_type = ?",
			baseline.AthleteID, baseline.MetricName, baseline.WindowType,
		).Delete(&models.BaselineMetric{})
		if del.Error != nil {
			return del.Error
		}
		return tx.Create(baseline).Error
	})
	if err != nil {
		return fmt.Errorf("Replace: %w", err)
	}
	return nil
}

// Latest returns the most recently created baseline for the metric and
// window, nil when none has been computed.
func (r *Repository) Latest(athleteID int64, metricName, windowType string) (*models.BaselineMetric, error) {
	var baseline models.BaselineMetric
	err := r.db.
		Where("athlete_id = ? AND metric_name = ? AND window_type = ?", athleteID, metricName, windowType).
		Order("created_at DESC").
		First(&baseline).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Latest: %w", err)
	}
	return &baseline, nil
}

// SaveAlert appends a threshold-breach alert
func (r *Repository) SaveAlert(alert *models.MetricAlert) error {
	if err := r.db.Create(alert).Error; err != nil {
		return fmt.Errorf("SaveAlert: %w", err)
	}
	return nil
}

// RecentAlerts returns alerts for the athlete from the last N days
func (r *Repository) RecentAlerts(athleteID int64, days int) ([]models.MetricAlert, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	var alerts []models.MetricAlert
	err := r.db.
		Where("athlete_id = ? AND alert_date >= ?", athleteID, cutoff).
		Order("alert_date DESC").
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("RecentAlerts: %w", err)
	}
	return alerts, nil
}

// EmailAlreadySent reports whether the dedup ledger has an entry for the
// athlete, day, and email type.
func (r *Repository) EmailAlreadySent(athleteID int64, day time.Time, emailType string) (bool, error) {
	var count int64
	err := r.db.Model(&models.EmailLog{}).
		Where("athlete_id = ? AND date = ? AND email_type = ?", athleteID, day, emailType).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("EmailAlreadySent: %w", err)
	}
	return count > 0, nil
}

// RecordEmail appends a ledger entry with the delivery status. Written after
// every triggered evaluation, success or failure, so a failed send does not
// retry within the same day.
func (r *Repository) RecordEmail(athleteID int64, day time.Time, emailType, status string) error {
	entry := models.EmailLog{
		AthleteID: athleteID,
		Date:      day,
		EmailType: emailType,
		Status:    status,
	}
	if err := r.db.Create(&entry).Error; err != nil {
		return fmt.Errorf("RecordEmail: %w", err)
	}
	return nil
}
