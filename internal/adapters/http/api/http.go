// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/commutewatch/riskengine/internal/adapters/repository"
	"github.com/commutewatch/riskengine/internal/domain/model"
	"github.com/commutewatch/riskengine/internal/domain/types"
	"github.com/commutewatch/riskengine/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	// Scores returns a route's buckets; repository.ErrNotFound when none.
	Scores(ctx context.Context, routeID string) ([]model.Score, error)
	// Snapshot returns the authority risk snapshot for period.
	Snapshot(ctx context.Context, period types.Period) (types.RiskSnapshot, error)
	// Trigger requests an extra aggregation pass.
	Trigger(ctx context.Context) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	scoresHandler    *ScoresHandler
	analyticsHandler *AnalyticsHandler
	logger           logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		scoresHandler:    NewScoresHandler(deps, log),
		analyticsHandler: NewAnalyticsHandler(deps, log),
		logger:           log,
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	r.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats")).Methods(http.MethodGet)
	r.HandleFunc("/scores/recalculate", MetricsMiddleware(s.scoresHandler.HandleRecalculate, "recalculate")).Methods(http.MethodPost)
	// mux falls through to the next match on a method mismatch, so every other
	// method is claimed here before {routeId} can treat "recalculate" as an id.
	r.HandleFunc("/scores/recalculate", MetricsMiddleware(methodNotAllowed(http.MethodPost), "recalculate"))
	r.HandleFunc("/scores/{routeId}", MetricsMiddleware(s.scoresHandler.HandleGetScores, "scores")).Methods(http.MethodGet)
	r.HandleFunc("/analytics/authority", MetricsMiddleware(s.analyticsHandler.HandleAuthority, "analytics")).Methods(http.MethodGet)
}

// Handler returns the router wrapped with panic recovery and gzip.
func (s *Server) Handler(extra ...func(*mux.Router)) http.Handler {
	r := mux.NewRouter()
	s.Register(r)
	for _, fn := range extra {
		fn(r)
	}
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
	)(handlers.CompressHandler(r))
}

type recoveryLogger struct{ l logger.Logger }

func (r recoveryLogger) Println(v ...interface{}) {
	r.l.Error(context.Background(), "http handler panicked", logger.Any("panic", v))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func methodNotAllowed(allow string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Allow", allow)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
