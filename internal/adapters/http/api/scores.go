package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/commutewatch/riskengine/pkg/logger"
)

// ScoresHandler serves stored route scores and manual recalculation.
type ScoresHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps Dependencies, log logger.Logger) *ScoresHandler {
	return &ScoresHandler{deps: deps, logger: log}
}

// HandleGetScores handles GET /scores/{routeId}.
func (h *ScoresHandler) HandleGetScores(w http.ResponseWriter, r *http.Request) {
	routeID := strings.TrimSpace(mux.Vars(r)["routeId"])
	if routeID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrMissingRouteID)
		return
	}
	scores, err := h.deps.Scores(r.Context(), routeID)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		h.logger.Error(r.Context(), "score lookup failed", logger.String("route_id", routeID), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

type ackResponse struct {
	Status string `json:"status"`
}

// HandleRecalculate handles POST /scores/recalculate.
func (h *ScoresHandler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Trigger(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
