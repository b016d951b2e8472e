package app

import (
	"context"
	"fmt"
	"time"

	"podium-coach/baseline"
	"podium-coach/config"
	"podium-coach/ingest"
	"podium-coach/roster"
	"podium-coach/tpapi"
)

// Config exposes the loaded configuration
func (a *App) Config() *config.Config {
	return a.config
}

// Orchestrator exposes the ingestion pipeline for CLI commands
func (a *App) Orchestrator() *ingest.Orchestrator {
	return a.orchestrator
}

// Roster exposes the roster syncer for CLI commands
func (a *App) Roster() *roster.Syncer {
	return a.rosterSyncer
}

// Calculator exposes the baseline calculator for CLI commands
func (a *App) Calculator() *baseline.Calculator {
	return a.calculator
}

// GapProbe is one consecutive missing-date range checked against the
// provider directly.
type GapProbe struct {
	Range string `json:"range"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

// GapReport compares the continuous expected date range against stored
// metric days, probing the provider for every gap to show whether the data
// is missing upstream or only locally.
type GapReport struct {
	Start        string     `json:"start"`
	End          string     `json:"end"`
	ExpectedDays int        `json:"expected_days"`
	PresentDays  int        `json:"present_days"`
	MissingCount int        `json:"missing_count"`
	MissingDates []string   `json:"missing_dates"`
	APIProbe     []GapProbe `json:"api_probe"`
}

// DiagnoseMissingDates reports which days in the trailing window have no
// stored wellness metrics for the athlete.
func (a *App) DiagnoseMissingDates(athleteID int64, daysBack int) (*GapReport, error) {
	if daysBack < 1 {
		daysBack = 1
	}
	end := a.config.EffectiveToday()
	start := end.AddDate(0, 0, -(daysBack - 1))

	rows, err := a.metricRepo.InRange(athleteID, start, end)
	if err != nil {
		return nil, fmt.Errorf("DiagnoseMissingDates: %w", err)
	}

	present := make(map[string]bool, len(rows))
	for _, row := range rows {
		present[row.Date.Format("2006-01-02")] = true
	}

	report := &GapReport{
		Start: start.Format("2006-01-02"),
		End:   end.Format("2006-01-02"),
	}

	var missing []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		report.ExpectedDays++
		if present[d.Format("2006-01-02")] {
			report.PresentDays++
			continue
		}
		missing = append(missing, d)
		report.MissingDates = append(report.MissingDates, d.Format("2006-01-02"))
	}
	report.MissingCount = len(missing)
	if len(missing) == 0 {
		return report, nil
	}

	athlete, err := a.athleteRepo.GetByID(athleteID)
	if err != nil || athlete == nil {
		return report, nil
	}

	provider := tpapi.NewClient(a.config.Provider.APIBase, athleteID, a.tokens)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for _, gap := range groupConsecutive(missing) {
		probe := GapProbe{Range: fmt.Sprintf("%s..%s", gap[0].Format("2006-01-02"), gap[1].Format("2006-01-02"))}
		records, err := provider.FetchDailyMetricsRange(ctx, athlete.TPAthleteID, gap[0], gap[1])
		if err != nil {
			probe.Error = err.Error()
		} else {
			probe.Count = len(records)
		}
		report.APIProbe = append(report.APIProbe, probe)
	}
	return report, nil
}

// groupConsecutive collapses sorted dates into [start, end] runs
func groupConsecutive(dates []time.Time) [][2]time.Time {
	var out [][2]time.Time
	runStart := dates[0]
	prev := dates[0]
	for _, d := range dates[1:] {
		if d.Sub(prev) > 24*time.Hour {
			out = append(out, [2]time.Time{runStart, prev})
			runStart = d
		}
		prev = d
	}
	out = append(out, [2]time.Time{runStart, prev})
	return out
}
