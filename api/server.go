// Package api exposes the coaching dashboard's HTTP surface: athlete data,
// baselines, alerts, compliance, ingestion triggers, and an SSE event stream.
package api

import (
	"fmt"
	"net/http"
	"time"

	"podium-coach/baseline"
	"podium-coach/compliance"
	"podium-coach/database/athletes"
	"podium-coach/database/baselines"
	"podium-coach/ingest"
	"podium-coach/realtime"
	"podium-coach/roster"

	"github.com/sirupsen/logrus"
)

// Server handles HTTP API requests
type Server struct {
	athletes     *athletes.Repository
	baselines    *baselines.Repository
	calculator   *baseline.Calculator
	compliance   *compliance.Evaluator
	orchestrator *ingest.Orchestrator
	roster       *roster.Syncer
	broker       *realtime.Broker
	today        func() time.Time
	log          *logrus.Entry
}

// NewServer creates a new API server instance
func NewServer(
	athleteRepo *athletes.Repository,
	baselineRepo *baselines.Repository,
	calculator *baseline.Calculator,
	complianceEng *compliance.Evaluator,
	orchestrator *ingest.Orchestrator,
	rosterSyncer *roster.Syncer,
	broker *realtime.Broker,
	today func() time.Time,
) *Server {
	return &Server{
		athletes:     athleteRepo,
		baselines:    baselineRepo,
		calculator:   calculator,
		compliance:   complianceEng,
		orchestrator: orchestrator,
		roster:       rosterSyncer,
		broker:       broker,
		today:        today,
		log:          logrus.WithField("component", "api"),
	}
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()

	mux.Handle("GET /api/events", s.broker) // SSE endpoint

	mux.HandleFunc("GET /api/athletes", s.handleListAthletes)
	mux.HandleFunc("GET /api/athletes/{id}/baselines", s.handleGetBaselines)
	mux.HandleFunc("GET /api/athletes/{id}/alerts", s.handleGetAlerts)
	mux.HandleFunc("GET /api/athletes/{id}/compliance", s.handleGetCompliance)

	mux.HandleFunc("POST /api/athletes/{id}/ingest", s.handleIngest)
	mux.HandleFunc("POST /api/athletes/{id}/backfill", s.handleBackfill)
	mux.HandleFunc("POST /api/roster/sync", s.handleRosterSync)

	mux.HandleFunc("GET /health", s.handleHealth)

	handler := s.corsMiddleware(s.loggingMiddleware(mux))

	serverAddr := fmt.Sprintf("0.0.0.0:%d", port)
	s.log.WithField("addr", serverAddr).Info("API server starting")
	return http.ListenAndServe(serverAddr, handler)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("request handled")
	})
}
