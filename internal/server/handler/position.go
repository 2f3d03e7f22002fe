package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// PositionLister is the read side of the ledger.
type PositionLister interface {
	Positions(states ...domain.PositionState) []domain.Position
}

// PositionHandler serves position endpoints.
type PositionHandler struct {
	mode    string
	ledger  PositionLister
	history domain.PositionStore
	logger  *slog.Logger
}

// NewPositionHandler creates a PositionHandler. history may be nil, in which
// case ?source=store is rejected.
func NewPositionHandler(mode string, ledger PositionLister, history domain.PositionStore, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{mode: mode, ledger: ledger, history: history, logger: logger}
}

type listPositionsResponse struct {
	Positions []domain.TradeEvent `json:"positions"`
	Count     int                 `json:"count"`
}

// ListPositions returns session positions, optionally filtered by state.
// With ?source=store it pages through persisted history instead.
// GET /api/positions?state=OPEN
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	states, err := parseStates(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var positions []domain.Position
	if r.URL.Query().Get("source") == "store" {
		if h.history == nil {
			writeError(w, http.StatusNotFound, "position store not configured")
			return
		}
		positions, err = h.history.ListHistory(r.Context(), parseListOpts(r))
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: list position history failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to list positions")
			return
		}
		positions = filterStates(positions, states)
	} else {
		positions = h.ledger.Positions(states...)
	}

	now := time.Now().UTC()
	out := make([]domain.TradeEvent, 0, len(positions))
	for _, p := range positions {
		out = append(out, domain.NewTradeEvent(h.mode, p, now))
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: out, Count: len(out)})
}

func filterStates(positions []domain.Position, states []domain.PositionState) []domain.Position {
	if len(states) == 0 {
		return positions
	}
	keep := positions[:0]
	for _, p := range positions {
		for _, s := range states {
			if p.State == s {
				keep = append(keep, p)
				break
			}
		}
	}
	return keep
}
