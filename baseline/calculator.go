package baseline

import (
	"fmt"
	"math"
	"time"

	models "podium-coach/database/models_pkg"

	"github.com/sirupsen/logrus"
)

// Alert thresholds (standard deviations)
const (
	ThresholdWeekly = 1.0 // weekly mean drift vs monthly baseline
	ThresholdAcute  = 2.0 // today's value vs weekly baseline
)

// metricsReader reads daily metric history
type metricsReader interface {
	InRange(athleteID int64, start, end time.Time) ([]models.DailyMetric, error)
	ForDay(athleteID int64, day time.Time) (*models.DailyMetric, error)
}

// snapshotStore persists baseline snapshots and threshold alerts
type snapshotStore interface {
	Replace(baseline *models.BaselineMetric) error
	Latest(athleteID int64, metricName, windowType string) (*models.BaselineMetric, error)
	SaveAlert(alert *models.MetricAlert) error
}

// WindowStats is the per-window summary returned to callers for reporting.
// Percentiles are persisted but not part of the reporting summary.
type WindowStats struct {
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	SampleCount int     `json:"sample_count"`
}

// Summary maps metric name → window name → stats
type Summary map[string]map[string]WindowStats

// Calculator computes and persists baseline snapshots per athlete
type Calculator struct {
	metrics metricsReader
	store   snapshotStore
	log     *logrus.Entry
}

// NewCalculator creates a new baseline calculator
func NewCalculator(metrics metricsReader, store snapshotStore) *Calculator {
	return &Calculator{
		metrics: metrics,
		store:   store,
		log:     logrus.WithField("component", "baseline"),
	}
}

// CalculateBaselines computes every tracked metric over every window ending
// at endDate and replaces the stored snapshot per (metric, window type).
// Windows with fewer than MinSamples non-null values are skipped. Each window
// write commits independently; on failure the summary of windows persisted so
// far is returned along with the error.
func (c *Calculator) CalculateBaselines(athleteID int64, endDate time.Time) (Summary, error) {
	results := Summary{}

	for _, window := range Windows {
		startDate := endDate.AddDate(0, 0, -window.Days)

		rows, err := c.metrics.InRange(athleteID, startDate, endDate)
		if err != nil {
			return results, fmt.Errorf("CalculateBaselines: %w", err)
		}
		if len(rows) == 0 {
			continue
		}

		for _, cfg := range MetricConfigs {
			values := make([]float64, 0, len(rows))
			for i := range rows {
				if v := cfg.Value(&rows[i]); v != nil {
					values = append(values, *v)
				}
			}
			if len(values) < MinSamples {
				continue
			}

			m := mean(values)
			std := sampleStdDev(values, m)
			p25, p75 := percentiles(values)

			snapshot := &models.BaselineMetric{
				AthleteID:     athleteID,
				MetricName:    cfg.Name,
				WindowType:    window.Name,
				WindowEndDate: endDate,
				Mean:          m,
				StdDev:        std,
				Percentile25:  p25,
				Percentile75:  p75,
				SampleCount:   len(values),
			}
			if err := c.store.Replace(snapshot); err != nil {
				return results, fmt.Errorf("CalculateBaselines: %w", err)
			}

			if results[cfg.Name] == nil {
				results[cfg.Name] = map[string]WindowStats{}
			}
			results[cfg.Name][window.Name] = WindowStats{
				Mean:        m,
				StdDev:      std,
				SampleCount: len(values),
			}
		}
	}

	c.log.WithFields(logrus.Fields{
		"athlete_id": athleteID,
		"end_date":   endDate.Format("2006-01-02"),
		"metrics":    len(results),
	}).Debug("baselines recalculated")

	return results, nil
}

// GetBaseline returns the most recent snapshot for the metric and window,
// nil when none exists.
func (c *Calculator) GetBaseline(athleteID int64, metricName, windowType string) (*models.BaselineMetric, error) {
	return c.store.Latest(athleteID, metricName, windowType)
}

// DeviationScore converts a value and baseline into a direction-normalized
// z-score: positive always means improvement relative to baseline, negative
// always means decline. A degenerate baseline (zero spread) carries no signal
// and scores 0.
func DeviationScore(value float64, baseline *models.BaselineMetric, higherIsBetter bool) float64 {
	if baseline.StdDev == 0 {
		return 0
	}
	z := (value - baseline.Mean) / baseline.StdDev
	if !higherIsBetter {
		z = -z
	}
	return z
}

// Severity converts a deviation score to a traffic-light tier
func Severity(score float64) string {
	abs := math.Abs(score)
	switch {
	case abs < 0.5:
		return "green"
	case abs < 1.0:
		return "yellow"
	default:
		return "red"
	}
}

// CheckAlertConditions compares each tracked metric's weekly mean against the
// monthly baseline and today's raw value against the weekly baseline, writing
// one MetricAlert row per breach. No dedup is applied here; callers rate-limit
// how often the check runs.
func (c *Calculator) CheckAlertConditions(athleteID int64, checkDate time.Time) ([]models.MetricAlert, error) {
	var alerts []models.MetricAlert

	todayMetric, err := c.metrics.ForDay(athleteID, checkDate)
	if err != nil {
		return nil, fmt.Errorf("CheckAlertConditions: %w", err)
	}
	if todayMetric == nil {
		return alerts, nil
	}

	for _, cfg := range MetricConfigs {
		current := cfg.Value(todayMetric)
		if current == nil {
			continue
		}

		weekly, err := c.store.Latest(athleteID, cfg.Name, WindowWeekly)
		if err != nil {
			return alerts, fmt.Errorf("CheckAlertConditions: %w", err)
		}
		monthly, err := c.store.Latest(athleteID, cfg.Name, WindowMonthly)
		if err != nil {
			return alerts, fmt.Errorf("CheckAlertConditions: %w", err)
		}

		// Weekly mean drift vs monthly baseline
		if weekly != nil && monthly != nil && weekly.StdDev > 0 {
			deviation := DeviationScore(weekly.Mean, monthly, cfg.HigherIsBetter)
			if math.Abs(deviation) > ThresholdWeekly {
				alert := models.MetricAlert{
					AthleteID:      athleteID,
					AlertDate:      checkDate,
					MetricName:     cfg.Name,
					AlertType:      "weekly",
					CurrentValue:   weekly.Mean,
					BaselineValue:  monthly.Mean,
					DeviationScore: deviation,
					Severity:       Severity(deviation),
					Message:        alertMessage(cfg.DisplayName, weekly.Mean, monthly.Mean, "weekly", cfg.Unit),
				}
				if err := c.store.SaveAlert(&alert); err != nil {
					return alerts, fmt.Errorf("CheckAlertConditions: %w", err)
				}
				alerts = append(alerts, alert)
			}
		}

		// Acute spike: today's value vs weekly baseline
		if weekly != nil {
			deviation := DeviationScore(*current, weekly, cfg.HigherIsBetter)
			if math.Abs(deviation) > ThresholdAcute {
				alert := models.MetricAlert{
					AthleteID:      athleteID,
					AlertDate:      checkDate,
					MetricName:     cfg.Name,
					AlertType:      "acute",
					CurrentValue:   *current,
					BaselineValue:  weekly.Mean,
					DeviationScore: deviation,
					Severity:       Severity(deviation),
					Message:        alertMessage(cfg.DisplayName, *current, weekly.Mean, "acute", cfg.Unit),
				}
				if err := c.store.SaveAlert(&alert); err != nil {
					return alerts, fmt.Errorf("CheckAlertConditions: %w", err)
				}
				alerts = append(alerts, alert)
			}
		}
	}

	return alerts, nil
}

// alertMessage renders a human-readable breach message with percent-difference
// framing.
func alertMessage(displayName string, current, baselineMean float64, alertType, unit string) string {
	direction := "below"
	if current > baselineMean {
		direction = "above"
	}
	var percentDiff float64
	if baselineMean != 0 {
		percentDiff = math.Abs((current - baselineMean) / baselineMean * 100)
	}

	switch alertType {
	case "weekly":
		return fmt.Sprintf("%s this week (%.1f%s) is %.0f%% %s your monthly average (%.1f%s)",
			displayName, current, unit, percentDiff, direction, baselineMean, unit)
	case "acute":
		return fmt.Sprintf("Today's %s (%.1f%s) is significantly %s your weekly average (%.1f%s)",
			displayName, current, unit, direction, baselineMean, unit)
	default:
		return fmt.Sprintf("%s: %.1f%s vs baseline %.1f%s", displayName, current, unit, baselineMean, unit)
	}
}
