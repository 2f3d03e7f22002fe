package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/alanyoungcy/stratbot/internal/config"
	"github.com/alanyoungcy/stratbot/internal/ledger"
	"github.com/alanyoungcy/stratbot/internal/pnl"
	"github.com/alanyoungcy/stratbot/internal/recorder"
	"github.com/alanyoungcy/stratbot/internal/risk"
)

// ExportJournal re-renders the report and CSV for a finished session from
// its journal. The positions are replayed into a fresh ledger so the account
// totals match what the session would have reported.
func ExportJournal(ctx context.Context, cfg *config.Config, path string, logger *slog.Logger) (recorder.Artifacts, error) {
	positions, err := recorder.ReplayFile(path)
	if err != nil {
		return recorder.Artifacts{}, fmt.Errorf("app: export: %w", err)
	}

	session := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	mode := cfg.Mode
	if i := strings.IndexByte(session, '_'); i > 0 {
		mode = session[:i]
	}

	rm := risk.NewManager(risk.LimitsFromConfig(cfg), logger)
	book := ledger.New(cfg.Trading.StartingBalance, rm, ledger.Options{
		Mode: mode,
		Fees: pnl.Fees{WinnerFee: cfg.Trading.WinnerFee, TakerFee: cfg.Trading.TakerFee},
	}, logger)
	if err := book.Restore(ctx, positions); err != nil {
		return recorder.Artifacts{}, fmt.Errorf("app: export: %w", err)
	}

	var started, ended time.Time
	for _, p := range positions {
		if started.IsZero() || p.OpenedAt.Before(started) {
			started = p.OpenedAt
		}
		last := p.OpenedAt
		if p.ClosedAt != nil {
			last = *p.ClosedAt
		}
		if last.After(ended) {
			ended = last
		}
	}

	sess := recorder.Session{
		ID:      session,
		Mode:    mode,
		Started: started,
		Ended:   ended,
		Account: book.Account(),
	}
	art, err := recorder.Export(filepath.Dir(path), sess, book.Positions())
	if err != nil {
		return recorder.Artifacts{}, fmt.Errorf("app: export: %w", err)
	}
	return art, nil
}
