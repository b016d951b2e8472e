package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"podium-coach/app"
	"podium-coach/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagAthleteID    int64
	flagIngestDays   int
	flagBackfillDays int
	flagDiagnoseDays int
	flagSegments     int
)

var rootCmd = &cobra.Command{
	Use:   "podium-coach",
	Short: "Endurance coaching analytics service",
	Long: `podium-coach pulls workouts and wellness metrics from the training
platform, maintains sliding-window physiological baselines, scores workout
compliance against coach plans, and emails recovery alerts when an athlete's
sleep, HRV, and resting heart rate deviate from baseline.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and daily ingestion scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.New(loadConfig()).Start()
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion pass over the trailing window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Orchestrator().IngestRecent(ctx, athleteFlag(), flagIngestDays)
		})
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Backfill historical workouts and metrics in segments",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Orchestrator().BackfillHistorical(ctx, athleteFlag(), flagBackfillDays, flagSegments)
		})
	},
}

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Sync the coach's athlete roster",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Roster().Sync(ctx)
		})
	},
}

var baselinesCmd = &cobra.Command{
	Use:   "baselines",
	Short: "Recalculate baselines for an athlete",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) (interface{}, error) {
			id := int64(1)
			if athleteFlag() != nil {
				id = *athleteFlag()
			}
			return a.Calculator().CalculateBaselines(id, a.Config().EffectiveToday())
		})
	},
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Report metric dates missing from storage over the trailing window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) (interface{}, error) {
			id := int64(1)
			if athleteFlag() != nil {
				id = *athleteFlag()
			}
			return a.DiagnoseMissingDates(id, flagDiagnoseDays)
		})
	},
}

func athleteFlag() *int64 {
	if flagAthleteID > 0 {
		return &flagAthleteID
	}
	return nil
}

func loadConfig() *config.Config {
	cfg := config.LoadFromEnv()
	if cfg.AppEnv == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return cfg
}

// withApp bootstraps storage, runs one operation, prints its result as JSON,
// and tears everything down.
func withApp(fn func(ctx context.Context, a *app.App) (interface{}, error)) error {
	a := app.New(loadConfig())
	if err := a.Bootstrap(); err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	result, err := fn(ctx, a)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func init() {
	for _, cmd := range []*cobra.Command{ingestCmd, backfillCmd, baselinesCmd, diagnoseCmd} {
		cmd.Flags().Int64Var(&flagAthleteID, "athlete", 0, "athlete id (defaults to the demo athlete)")
	}
	ingestCmd.Flags().IntVar(&flagIngestDays, "days", 7, "trailing window size in days")
	backfillCmd.Flags().IntVar(&flagBackfillDays, "days", 365, "how far back to fetch")
	backfillCmd.Flags().IntVar(&flagSegments, "segments", 9, "number of date segments")
	diagnoseCmd.Flags().IntVar(&flagDiagnoseDays, "days", 30, "trailing window to check")

	rootCmd.AddCommand(serveCmd, ingestCmd, backfillCmd, rosterCmd, baselinesCmd, diagnoseCmd)
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
