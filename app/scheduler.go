package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"podium-coach/ingest"

	"github.com/sirupsen/logrus"
)

// defaultIngestDays is the trailing window each scheduled run pulls
const defaultIngestDays = 7

// DailyScheduler runs a full ingestion for every athlete once a day at a
// configured wall-clock time.
type DailyScheduler struct {
	orchestrator *ingest.Orchestrator
	athleteIDs   func() ([]int64, error)
	hour         int
	minute       int
	done         chan bool
	log          *logrus.Entry
}

// NewDailyScheduler creates a scheduler firing at "HH:MM" local time
func NewDailyScheduler(orchestrator *ingest.Orchestrator, athleteIDs func() ([]int64, error), at string) (*DailyScheduler, error) {
	hour, minute, err := parseClock(at)
	if err != nil {
		return nil, err
	}
	return &DailyScheduler{
		orchestrator: orchestrator,
		athleteIDs:   athleteIDs,
		hour:         hour,
		minute:       minute,
		done:         make(chan bool),
		log:          logrus.WithField("component", "scheduler"),
	}, nil
}

func parseClock(at string) (int, int, error) {
	parts := strings.Split(at, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("parseClock: expected HH:MM, got %q", at)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("parseClock: invalid hour in %q", at)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("parseClock: invalid minute in %q", at)
	}
	return hour, minute, nil
}

// nextRun returns the next occurrence of the configured clock time
func (ds *DailyScheduler) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), ds.hour, ds.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start runs the scheduler loop. Call in a goroutine.
func (ds *DailyScheduler) Start() {
	for {
		next := ds.nextRun(time.Now())
		ds.log.WithField("next_run", next.Format(time.RFC3339)).Info("daily ingestion scheduled")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			ds.runAll()
		case <-ds.done:
			timer.Stop()
			return
		}
	}
}

// Stop stops the scheduler
func (ds *DailyScheduler) Stop() {
	ds.done <- true
}

func (ds *DailyScheduler) runAll() {
	ids, err := ds.athleteIDs()
	if err != nil {
		ds.log.WithError(err).Error("failed to list athletes for daily run")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	for _, id := range ids {
		athleteID := id
		report, err := ds.orchestrator.IngestRecent(ctx, &athleteID, defaultIngestDays)
		if err != nil {
			ds.log.WithError(err).WithField("athlete_id", athleteID).Error("daily ingestion failed")
			continue
		}
		ds.log.WithFields(logrus.Fields{
			"athlete_id": athleteID,
			"run_id":     report.RunID,
			"workouts":   report.WorkoutsInserted,
			"metrics":    report.MetricsSaved,
		}).Info("daily ingestion finished")
	}
}
