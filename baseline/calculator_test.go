package baseline

import (
	"testing"
	"time"

	models "podium-coach/database/models_pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

type fakeMetrics struct {
	rows  []models.DailyMetric
	today *models.DailyMetric
}

func (f *fakeMetrics) InRange(athleteID int64, start, end time.Time) ([]models.DailyMetric, error) {
	var out []models.DailyMetric
	for _, row := range f.rows {
		if !row.Date.Before(start) && !row.Date.After(end) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeMetrics) ForDay(athleteID int64, day time.Time) (*models.DailyMetric, error) {
	return f.today, nil
}

type fakeStore struct {
	replaced []models.BaselineMetric
	latest   map[string]*models.BaselineMetric // key metric|window
	alerts   []models.MetricAlert
}

func (f *fakeStore) Replace(baseline *models.BaselineMetric) error {
	f.replaced = append(f.replaced, *baseline)
	return nil
}

func (f *fakeStore) Latest(athleteID int64, metricName, windowType string) (*models.BaselineMetric, error) {
	return f.latest[metricName+"|"+windowType], nil
}

func (f *fakeStore) SaveAlert(alert *models.MetricAlert) error {
	f.alerts = append(f.alerts, *alert)
	return nil
}

func day(offset int) time.Time {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, offset)
}

func TestStats(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	m := mean(values)
	assert.InDelta(t, 5.0, m, 0.0001)
	assert.InDelta(t, 2.13809, sampleStdDev(values, m), 0.0001)

	// single sample has no spread
	assert.Equal(t, 0.0, sampleStdDev([]float64{42}, 42))

	p25, p75 := percentiles([]float64{8, 7, 6, 5, 4, 3, 2, 1})
	assert.Equal(t, 3.0, p25)
	assert.Equal(t, 7.0, p75)
}

func TestCalculateBaselinesSkipsSparseWindows(t *testing.T) {
	end := day(0)
	metrics := &fakeMetrics{
		rows: []models.DailyMetric{
			{AthleteID: 1, Date: day(-1), HRV: floatPtr(60), RHR: floatPtr(48), SleepHours: floatPtr(7.5)},
			{AthleteID: 1, Date: day(-2), HRV: floatPtr(62), RHR: floatPtr(47)},
			{AthleteID: 1, Date: day(-3), HRV: floatPtr(58), RHR: floatPtr(49), SleepHours: floatPtr(8)},
		},
	}
	store := &fakeStore{}

	summary, err := NewCalculator(metrics, store).CalculateBaselines(1, end)
	require.NoError(t, err)

	// 3 HRV samples in every window: one snapshot per window
	require.Contains(t, summary, MetricHRV)
	assert.Len(t, summary[MetricHRV], len(Windows))
	assert.InDelta(t, 60.0, summary[MetricHRV][WindowWeekly].Mean, 0.0001)
	assert.Equal(t, 3, summary[MetricHRV][WindowWeekly].SampleCount)

	// only 2 sleep samples: below the minimum, no snapshot
	assert.NotContains(t, summary, MetricSleepHours)

	// every persisted snapshot carries the window end date
	for _, snapshot := range store.replaced {
		assert.Equal(t, end, snapshot.WindowEndDate)
	}
}

func TestDeviationScore(t *testing.T) {
	base := &models.BaselineMetric{Mean: 60, StdDev: 5}

	// higher-is-better metric above baseline improves
	assert.InDelta(t, 1.0, DeviationScore(65, base, true), 0.0001)
	// lower-is-better metric above baseline declines
	assert.InDelta(t, -1.0, DeviationScore(65, base, false), 0.0001)
	// degenerate baseline carries no signal
	assert.Equal(t, 0.0, DeviationScore(99, &models.BaselineMetric{Mean: 60}, true))
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, "green", Severity(0.49))
	assert.Equal(t, "green", Severity(-0.3))
	assert.Equal(t, "yellow", Severity(0.5))
	assert.Equal(t, "yellow", Severity(-0.99))
	assert.Equal(t, "red", Severity(1.0))
	assert.Equal(t, "red", Severity(-2.5))
}

func TestCheckAlertConditions(t *testing.T) {
	store := &fakeStore{
		latest: map[string]*models.BaselineMetric{
			// weekly HRV mean has drifted well below the monthly baseline
			MetricHRV + "|" + WindowWeekly:  {Mean: 50, StdDev: 2},
			MetricHRV + "|" + WindowMonthly: {Mean: 60, StdDev: 4},
		},
	}
	metrics := &fakeMetrics{
		today: &models.DailyMetric{AthleteID: 1, Date: day(0), HRV: floatPtr(43)},
	}

	alerts, err := NewCalculator(metrics, store).CheckAlertConditions(1, day(0))
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	weekly := alerts[0]
	assert.Equal(t, "weekly", weekly.AlertType)
	assert.Equal(t, MetricHRV, weekly.MetricName)
	assert.InDelta(t, -2.5, weekly.DeviationScore, 0.0001)
	assert.Equal(t, "red", weekly.Severity)

	acute := alerts[1]
	assert.Equal(t, "acute", acute.AlertType)
	assert.InDelta(t, -3.5, acute.DeviationScore, 0.0001)
	assert.Len(t, store.alerts, 2)
}

func TestCheckAlertConditionsNoMetricToday(t *testing.T) {
	calc := NewCalculator(&fakeMetrics{}, &fakeStore{})
	alerts, err := calc.CheckAlertConditions(1, day(0))
	require.NoError(t, err)
	assert.Empty(t, alerts)
}
