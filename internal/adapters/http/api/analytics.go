package api

import (
	"errors"
	"net/http"

	"github.com/commutewatch/riskengine/internal/domain/types"
	"github.com/commutewatch/riskengine/pkg/logger"
)

// AnalyticsHandler serves the authority risk snapshot.
type AnalyticsHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(deps Dependencies, log logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{deps: deps, logger: log}
}

// HandleAuthority handles GET /analytics/authority?period=7d|30d|90d.
func (h *AnalyticsHandler) HandleAuthority(w http.ResponseWriter, r *http.Request) {
	period, err := types.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	snap, err := h.deps.Snapshot(r.Context(), period)
	if err != nil {
		if errors.Is(err, types.ErrInvalidPeriod) {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		h.logger.Error(r.Context(), "risk snapshot failed", logger.String("period", string(period)), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
