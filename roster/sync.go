// Package roster syncs the coach's athlete roster from the training platform
// into the local athlete table.
package roster

import (
	"context"
	"fmt"
	"strings"

	models "podium-coach/database/models_pkg"
	"podium-coach/tpapi"
	"podium-coach/units"

	"github.com/sirupsen/logrus"
)

// athleteWriter upserts athletes by their provider id
type athleteWriter interface {
	Upsert(tpAthleteID int64, name, email, externalID string) (*models.Athlete, error)
}

// rosterFetcher lists the athletes attached to the coach account
type rosterFetcher interface {
	FetchCoachAthletes(ctx context.Context) ([]tpapi.Record, error)
}

// Entry is one synced athlete in a roster summary
type Entry struct {
	ID          int64  `json:"id"`
	TPAthleteID *int64 `json:"tp_athlete_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
}

// Summary reports one roster sync run. Athletes holds a small sample, not
// the full roster.
type Summary struct {
	Count    int     `json:"count"`
	Athletes []Entry `json:"athletes"`
}

// Syncer pulls the coach roster and upserts local athlete rows
type Syncer struct {
	athletes athleteWriter
	fetcher  rosterFetcher
	log      *logrus.Entry
}

// NewSyncer creates a roster syncer
func NewSyncer(athletes athleteWriter, fetcher rosterFetcher) *Syncer {
	return &Syncer{
		athletes: athletes,
		fetcher:  fetcher,
		log:      logrus.WithField("component", "roster"),
	}
}

// Sync fetches the roster and upserts each athlete, matching by provider id.
// Roster entries without an id are skipped.
func (s *Syncer) Sync(ctx context.Context) (*Summary, error) {
	records, err := s.fetcher.FetchCoachAthletes(ctx)
	if err != nil {
		return nil, fmt.Errorf("Sync: %w", err)
	}

	summary := &Summary{}
	for _, rec := range records {
		tpID := rosterAthleteID(rec)
		if tpID == nil {
			continue
		}

		first, _ := rec["FirstName"].(string)
		last, _ := rec["LastName"].(string)
		email, _ := rec["Email"].(string)
		name := strings.TrimSpace(first + " " + last)

		athlete, err := s.athletes.Upsert(*tpID, name, email, "")
		if err != nil {
			return nil, fmt.Errorf("Sync: %w", err)
		}

		summary.Count++
		if len(summary.Athletes) < 10 {
			summary.Athletes = append(summary.Athletes, Entry{
				ID:          athlete.ID,
				TPAthleteID: athlete.TPAthleteID,
				Name:        athlete.Name,
				Email:       athlete.Email,
			})
		}
	}

	s.log.WithField("count", summary.Count).Info("roster synced")
	return summary, nil
}

func rosterAthleteID(rec tpapi.Record) *int64 {
	for _, key := range []string{"Id", "id"} {
		if v := units.AsFloat(rec[key]); v != nil && *v != 0 {
			id := int64(*v)
			return &id
		}
	}
	return nil
}
