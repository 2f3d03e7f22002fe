package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/stratbot/internal/recorder"
)

// SessionSource describes the running session.
type SessionSource func() recorder.Session

// ReportHandler renders the text report and CSV export on demand.
type ReportHandler struct {
	session SessionSource
	ledger  PositionLister
	logger  *slog.Logger
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(session SessionSource, ledger PositionLister, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{session: session, ledger: ledger, logger: logger}
}

// Report writes the summary report as plain text.
// GET /api/report
func (h *ReportHandler) Report(w http.ResponseWriter, r *http.Request) {
	sess := h.session()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := recorder.WriteReport(w, sess, h.ledger.Positions()); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: write report failed", slog.String("error", err.Error()))
	}
}

// ExportCSV streams every position in its latest state as CSV.
// GET /api/export.csv
func (h *ReportHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	sess := h.session()
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sess.ID+"_trades.csv"))
	positions := h.ledger.Positions()
	if err := recorder.WriteCSV(w, sess.Mode, positions, time.Now().UTC()); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: write csv failed", slog.String("error", err.Error()))
	}
}
