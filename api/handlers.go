package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"podium-coach/baseline"

	models "podium-coach/database/models_pkg"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// pathAthleteID parses the {id} path segment, writing a 400 on failure
func (s *Server) pathAthleteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid athlete id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func getIntParam(r *http.Request, key string, defaultVal int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		return defaultVal
	}
	return val
}

func (s *Server) handleListAthletes(w http.ResponseWriter, r *http.Request) {
	list, err := s.athletes.List()
	if err != nil {
		s.log.WithError(err).Error("failed to list athletes")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"athletes": list,
		"count":    len(list),
	})
}

// handleGetBaselines returns the latest baseline snapshot for every metric
// and window that has one.
func (s *Server) handleGetBaselines(w http.ResponseWriter, r *http.Request) {
	athleteID, ok := s.pathAthleteID(w, r)
	if !ok {
		return
	}

	out := map[string]map[string]*models.BaselineMetric{}
	for _, cfg := range baseline.MetricConfigs {
		windows := map[string]*models.BaselineMetric{}
		for _, window := range baseline.Windows {
			snapshot, err := s.calculator.GetBaseline(athleteID, cfg.Name, window.Name)
			if err != nil {
				s.log.WithError(err).Error("failed to load baseline")
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if snapshot != nil {
				windows[window.Name] = snapshot
			}
		}
		if len(windows) > 0 {
			out[cfg.Name] = windows
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"athlete_id": athleteID,
		"baselines":  out,
	})
}

func (s *Server) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	athleteID, ok := s.pathAthleteID(w, r)
	if !ok {
		return
	}
	days := getIntParam(r, "days", 7)

	alerts, err := s.baselines.RecentAlerts(athleteID, days)
	if err != nil {
		s.log.WithError(err).Error("failed to fetch alerts")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"athlete_id": athleteID,
		"days":       days,
		"alerts":     alerts,
		"count":      len(alerts),
	})
}

// handleGetCompliance returns compliance for the requested date, falling
// back to the most recent earlier workout day.
func (s *Server) handleGetCompliance(w http.ResponseWriter, r *http.Request) {
	athleteID, ok := s.pathAthleteID(w, r)
	if !ok {
		return
	}

	target := s.today()
	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		target = parsed
	}

	day, err := s.compliance.ForDay(athleteID, target)
	if err != nil {
		s.log.WithError(err).Error("failed to fetch compliance")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if day == nil {
		http.Error(w, "no compliance records found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(day)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	athleteID, ok := s.pathAthleteID(w, r)
	if !ok {
		return
	}
	days := getIntParam(r, "days", 7)

	report, err := s.orchestrator.IngestRecent(r.Context(), &athleteID, days)
	if err != nil {
		s.log.WithError(err).Error("ingestion run failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.broker.Broadcast("ingest_complete", report)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	athleteID, ok := s.pathAthleteID(w, r)
	if !ok {
		return
	}
	days := getIntParam(r, "days", 365)
	segments := getIntParam(r, "segments", 9)

	report, err := s.orchestrator.BackfillHistorical(r.Context(), &athleteID, days, segments)
	if err != nil {
		s.log.WithError(err).Error("backfill run failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.broker.Broadcast("backfill_complete", report)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func (s *Server) handleRosterSync(w http.ResponseWriter, r *http.Request) {
	summary, err := s.roster.Sync(r.Context())
	if err != nil {
		s.log.WithError(err).Error("roster sync failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.broker.Broadcast("roster_synced", summary)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
