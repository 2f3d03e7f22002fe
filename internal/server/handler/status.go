package handler

import (
	"net/http"

	"github.com/alanyoungcy/stratbot/internal/service"
	"github.com/alanyoungcy/stratbot/internal/strategy"
)

// StatusSource produces the current session status.
type StatusSource interface {
	Snapshot() service.Status
}

// StatusHandler serves account, risk and strategy status.
type StatusHandler struct {
	status     StatusSource
	strategies func() []strategy.StrategyInfo
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(status StatusSource, strategies func() []strategy.StrategyInfo) *StatusHandler {
	return &StatusHandler{status: status, strategies: strategies}
}

type statusResponse struct {
	service.Status
	Strategies []strategy.StrategyInfo `json:"strategies"`
}

// GetStatus responds with the account, risk metrics and strategy list.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: h.status.Snapshot()}
	if h.strategies != nil {
		resp.Strategies = h.strategies()
	}
	writeJSON(w, http.StatusOK, resp)
}
