// Package recovery evaluates same-day metrics against long-window baselines
// and dispatches at most one recovery email per athlete per calendar day.
package recovery

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"podium-coach/baseline"
	models "podium-coach/database/models_pkg"

	"github.com/sirupsen/logrus"
)

// AlertEmailType keys the dedup ledger entries written by this evaluator
const AlertEmailType = "recovery_alert"

// DefaultThreshold is the fractional deviation from baseline that counts as
// a breach (5%).
const DefaultThreshold = 0.05

// WindowPriority orders baseline windows from most to least stable. A coarse
// baseline is preferred over a noisy short one; the first window with a
// computed mean wins.
var WindowPriority = []string{
	baseline.WindowAnnual,
	baseline.WindowSemiannual,
	baseline.WindowQuarterly,
	baseline.WindowMonthly,
}

// Evaluation reason codes
const (
	ReasonNoMetric         = "no_metric_for_day"
	ReasonInsufficientData = "insufficient_baseline_or_metric"
	ReasonSleepBreach      = "sleep_breach"
	ReasonHRVRHRBreach     = "hrv_rhr_breach"
	ReasonSleepAndHRVRHR   = "sleep_and_hrv_rhr_breach"
	ReasonConditionsNotMet = "conditions_not_met"
	ReasonAlreadySent      = "already_sent"
)

// MetricStatus captures one metric's standing against its baseline
type MetricStatus struct {
	Name      string   `json:"name"`
	Current   *float64 `json:"current"`
	Baseline  *float64 `json:"baseline"`
	Direction string   `json:"direction"` // breach direction: below or above
	Breached  bool     `json:"breached"`
	DeltaPct  *float64 `json:"delta_pct"`
}

// Result is the structured outcome of one evaluation. Non-triggering
// conditions are reported through the reason code, never as errors.
type Result struct {
	Triggered   bool                    `json:"triggered"`
	Reason      string                  `json:"reason"`
	CheckDate   string                  `json:"check_date"`
	Metrics     map[string]MetricStatus `json:"metrics"`
	EmailStatus string                  `json:"email_status,omitempty"`
}

// metricReader reads one day's metrics
type metricReader interface {
	ForDay(athleteID int64, day time.Time) (*models.DailyMetric, error)
}

// baselineReader resolves the latest baseline snapshot per window
type baselineReader interface {
	Latest(athleteID int64, metricName, windowType string) (*models.BaselineMetric, error)
}

// emailLedger is the per-day dedup ledger
type emailLedger interface {
	EmailAlreadySent(athleteID int64, day time.Time, emailType string) (bool, error)
	RecordEmail(athleteID int64, day time.Time, emailType, status string) error
}

// EmailSink sends an email and reports an opaque delivery status. Transport
// failures surface as a status string, not an error, so the ledger is always
// written.
type EmailSink interface {
	Send(ctx context.Context, to, subject, body string) string
}

// Evaluator runs the recovery-alert decision per athlete per day
type Evaluator struct {
	metrics    metricReader
	baselines  baselineReader
	ledger     emailLedger
	sink       EmailSink
	coachEmail string
	log        *logrus.Entry
}

// NewEvaluator creates a new recovery evaluator. coachEmail is the alert
// recipient.
func NewEvaluator(metrics metricReader, baselines baselineReader, ledger emailLedger, sink EmailSink, coachEmail string) *Evaluator {
	return &Evaluator{
		metrics:    metrics,
		baselines:  baselines,
		ledger:     ledger,
		sink:       sink,
		coachEmail: coachEmail,
		log:        logrus.WithField("component", "recovery"),
	}
}

// Evaluate checks sleep, HRV, and resting HR for the day against their
// baselines and sends a recovery alert when sleep breaches alone or HRV and
// resting HR breach jointly. At most one email is sent per athlete per
// calendar day regardless of how many times the evaluator runs.
func (e *Evaluator) Evaluate(ctx context.Context, athleteID int64, day time.Time, threshold float64) (*Result, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	result := &Result{
		CheckDate: day.Format("2006-01-02"),
		Metrics:   map[string]MetricStatus{},
	}

	metric, err := e.metrics.ForDay(athleteID, day)
	if err != nil {
		return nil, fmt.Errorf("Evaluate: %w", err)
	}
	if metric == nil {
		result.Reason = ReasonNoMetric
		return result, nil
	}

	for _, cfg := range baseline.MetricConfigs {
		baselineMean, err := e.selectBaseline(athleteID, cfg.Name)
		if err != nil {
			return nil, fmt.Errorf("Evaluate: %w", err)
		}
		result.Metrics[cfg.Name] = metricStatus(cfg, cfg.Value(metric), threshold, baselineMean)
	}

	sleep := result.Metrics[baseline.MetricSleepHours]
	hrv := result.Metrics[baseline.MetricHRV]
	rhr := result.Metrics[baseline.MetricRHR]

	for _, s := range []MetricStatus{sleep, hrv, rhr} {
		if s.Current == nil || s.Baseline == nil || *s.Baseline == 0 {
			result.Reason = ReasonInsufficientData
			return result, nil
		}
	}

	triggerSleep := sleep.Breached
	triggerCombo := hrv.Breached && rhr.Breached
	result.Triggered = triggerSleep || triggerCombo

	switch {
	case triggerSleep && triggerCombo:
		result.Reason = ReasonSleepAndHRVRHR
	case triggerSleep:
		result.Reason = ReasonSleepBreach
	case triggerCombo:
		result.Reason = ReasonHRVRHRBreach
	default:
		result.Reason = ReasonConditionsNotMet
	}

	if !result.Triggered {
		return result, nil
	}

	sent, err := e.ledger.EmailAlreadySent(athleteID, day, AlertEmailType)
	if err != nil {
		return nil, fmt.Errorf("Evaluate: %w", err)
	}
	if sent {
		result.Reason = ReasonAlreadySent
		return result, nil
	}

	subject := fmt.Sprintf("Recovery Alert for %s", day.Format("2006-01-02"))
	body := e.composeBody(result.Reason, sleep, hrv, rhr)
	status := e.sink.Send(ctx, e.coachEmail, subject, body)

	// The ledger is written whatever the delivery status, so a failed send
	// does not retry until the next calendar day.
	if err := e.ledger.RecordEmail(athleteID, day, AlertEmailType, status); err != nil {
		return nil, fmt.Errorf("Evaluate: %w", err)
	}
	result.EmailStatus = status

	e.log.WithFields(logrus.Fields{
		"athlete_id": athleteID,
		"date":       result.CheckDate,
		"reason":     result.Reason,
		"status":     status,
	}).Info("recovery alert dispatched")

	return result, nil
}

// selectBaseline probes window types from most to least stable and returns
// the first computed mean, nil when no window has one.
func (e *Evaluator) selectBaseline(athleteID int64, metricName string) (*float64, error) {
	for _, window := range WindowPriority {
		snapshot, err := e.baselines.Latest(athleteID, metricName, window)
		if err != nil {
			return nil, err
		}
		if snapshot != nil {
			m := snapshot.Mean
			return &m, nil
		}
	}
	return nil, nil
}

func metricStatus(cfg baseline.MetricConfig, value *float64, threshold float64, baselineMean *float64) MetricStatus {
	direction := "below"
	if !cfg.HigherIsBetter {
		direction = "above"
	}
	status := MetricStatus{
		Name:      cfg.Name,
		Current:   value,
		Baseline:  baselineMean,
		Direction: direction,
	}
	if value == nil || baselineMean == nil || *baselineMean == 0 {
		return status
	}
	delta := (*value - *baselineMean) / *baselineMean
	status.DeltaPct = &delta
	if cfg.HigherIsBetter {
		status.Breached = delta <= -threshold
	} else {
		status.Breached = delta >= threshold
	}
	return status
}

func (e *Evaluator) composeBody(reason string, sleep, hrv, rhr MetricStatus) string {
	lead := "Recovery indicators signal elevated fatigue."
	switch reason {
	case ReasonSleepBreach:
		lead = "Sleep hours dropped below baseline threshold."
	case ReasonHRVRHRBreach:
		lead = "HRV and Resting HR jointly breached baseline thresholds."
	case ReasonSleepAndHRVRHR:
		lead = "Multiple recovery indicators breached their baselines."
	}

	lines := []string{
		lead,
		formatMetricLine("Sleep Hours", sleep),
		formatMetricLine("HRV", hrv),
		formatMetricLine("Resting HR", rhr),
		"\nRecommend checking in with the athlete and adjusting training if necessary.",
	}
	return strings.Join(lines, "\n")
}

func formatMetricLine(label string, metric MetricStatus) string {
	if metric.Current == nil || metric.Baseline == nil {
		return fmt.Sprintf("- %s: insufficient data", label)
	}
	var change float64
	if metric.DeltaPct != nil {
		change = *metric.DeltaPct * 100
	}
	tendency := "above"
	if metric.DeltaPct != nil && *metric.DeltaPct < 0 {
		tendency = "below"
	}
	return fmt.Sprintf("- %s: %.2f vs baseline %.2f (%.1f%% %s)",
		label, *metric.Current, *metric.Baseline, math.Abs(change), tendency)
}
