// Package app wires every component together and drives the long-running
// service: database, Redis, analysis engines, HTTP API, SSE broker, and the
// daily ingestion scheduler.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"podium-coach/api"
	"podium-coach/auth"
	"podium-coach/baseline"
	"podium-coach/cache"
	"podium-coach/compliance"
	"podium-coach/config"
	"podium-coach/database"
	"podium-coach/database/athletes"
	"podium-coach/database/baselines"
	"podium-coach/database/metrics"
	"podium-coach/database/workouts"
	"podium-coach/email"
	"podium-coach/ingest"
	"podium-coach/realtime"
	"podium-coach/recovery"
	"podium-coach/roster"
	"podium-coach/tpapi"

	"github.com/sirupsen/logrus"
)

// App represents the main application
type App struct {
	config *config.Config
	db     *database.Database
	redis  *cache.RedisClient
	broker *realtime.Broker

	athleteRepo  *athletes.Repository
	workoutRepo  *workouts.Repository
	metricRepo   *metrics.Repository
	baselineRepo *baselines.Repository

	tokens       *auth.Manager
	calculator   *baseline.Calculator
	recovery     *recovery.Evaluator
	compliance   *compliance.Evaluator
	orchestrator *ingest.Orchestrator
	rosterSyncer *roster.Syncer
	scheduler    *DailyScheduler

	log *logrus.Entry
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{
		config: cfg,
		log:    logrus.WithField("component", "app"),
	}
}

// Bootstrap connects storage and builds every engine without starting the
// long-running loops. CLI commands use this to run one-shot operations.
func (a *App) Bootstrap() error {
	dbPort, err := strconv.Atoi(a.config.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}

	db, err := database.Connect(
		a.config.DatabaseHost,
		dbPort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	if err := a.db.Migrate(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	a.redis = cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)

	a.athleteRepo = athletes.NewRepository(a.db.DB())
	a.workoutRepo = workouts.NewRepository(a.db.DB())
	a.metricRepo = metrics.NewRepository(a.db.DB())
	a.baselineRepo = baselines.NewRepository(a.db.DB())

	a.tokens = auth.NewManager(
		a.athleteRepo,
		a.config.Provider.AuthBase,
		a.config.Provider.ClientID,
		a.config.Provider.ClientSecret,
	)

	a.calculator = baseline.NewCalculator(a.metricRepo, a.baselineRepo)

	mailClient := email.NewClient(a.config.Email)
	a.recovery = recovery.NewEvaluator(
		a.metricRepo,
		a.baselineRepo,
		a.baselineRepo,
		mailClient,
		a.config.Email.HeadCoachEmail,
	)

	a.compliance = compliance.NewEvaluator(a.workoutRepo)

	providerFactory := func(athleteID int64) ingest.Provider {
		return tpapi.NewClient(a.config.Provider.APIBase, athleteID, a.tokens)
	}

	a.orchestrator = ingest.NewOrchestrator(
		a.athleteRepo,
		a.workoutRepo,
		a.metricRepo,
		providerFactory,
		a.calculator,
		a.recovery,
		a.compliance,
		cache.NewPlanCache(a.redis),
		a.config.Alerts.RecoveryThreshold,
		a.config.EffectiveToday,
	)

	// Roster calls ride on whichever stored token carries the coach scope;
	// binding the client to athlete 0 forces the coach-token fallback.
	a.rosterSyncer = roster.NewSyncer(
		a.athleteRepo,
		tpapi.NewClient(a.config.Provider.APIBase, 0, a.tokens),
	)

	return nil
}

// Close releases storage connections
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("redis close failed")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("database close failed")
		}
	}
}

// Start bootstraps the app and runs the API server, SSE broker, and daily
// scheduler until interrupted.
func (a *App) Start() error {
	if err := a.Bootstrap(); err != nil {
		return err
	}
	defer a.Close()

	a.broker = realtime.NewBroker()
	go a.broker.Run()

	apiServer := api.NewServer(
		a.athleteRepo,
		a.baselineRepo,
		a.calculator,
		a.compliance,
		a.orchestrator,
		a.rosterSyncer,
		a.broker,
		a.config.EffectiveToday,
	)
	go func() {
		if err := apiServer.Start(a.config.APIPort); err != nil {
			a.log.WithError(err).Error("API server failed")
		}
	}()

	scheduler, err := NewDailyScheduler(a.orchestrator, a.listAthleteIDs, a.config.DailyJobTime)
	if err != nil {
		return fmt.Errorf("scheduler setup failed: %w", err)
	}
	a.scheduler = scheduler
	go a.scheduler.Start()

	a.log.WithFields(logrus.Fields{
		"api_port":  a.config.APIPort,
		"daily_job": a.config.DailyJobTime,
	}).Info("application started")

	return a.gracefulShutdown()
}

func (a *App) listAthleteIDs() ([]int64, error) {
	list, err := a.athleteRepo.List()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(list))
	for _, athlete := range list {
		ids = append(ids, athlete.ID)
	}
	return ids, nil
}

// gracefulShutdown blocks until an interrupt, then stops background workers
// with a timeout.
func (a *App) gracefulShutdown() error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	a.log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if a.scheduler != nil {
			a.scheduler.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		a.log.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		a.log.Warn("shutdown timed out")
		return shutdownCtx.Err()
	}
}
