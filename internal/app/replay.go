package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/stratbot/internal/backtest"
	"github.com/alanyoungcy/stratbot/internal/config"
	"github.com/alanyoungcy/stratbot/internal/recorder"
)

// Replay runs a recorded frame tape through the simulator and writes the
// journal, report and CSV for the replayed session next to the testing
// output. only restricts the run to the named strategies.
func Replay(ctx context.Context, cfg *config.Config, path string, only []string, logger *slog.Logger) (recorder.Artifacts, backtest.Result, error) {
	frames, err := backtest.ReadFrames(path)
	if err != nil {
		return recorder.Artifacts{}, backtest.Result{}, fmt.Errorf("app: replay: %w", err)
	}
	if len(frames) == 0 {
		return recorder.Artifacts{}, backtest.Result{}, fmt.Errorf("app: replay: %s has no frames", path)
	}

	started, ended := frames[0].At, frames[len(frames)-1].At
	session := recorder.SessionID(backtest.Mode, started)
	journal, err := recorder.OpenJournal(cfg.Testing.OutputDir, session, logger)
	if err != nil {
		return recorder.Artifacts{}, backtest.Result{}, fmt.Errorf("app: replay: %w", err)
	}

	res, runErr := backtest.NewReplayer(cfg, only, logger).Run(ctx, frames, journal)
	if err := journal.Close(); err != nil {
		logger.Warn("journal close failed", slog.String("error", err.Error()))
	}
	if runErr != nil {
		return recorder.Artifacts{}, res, fmt.Errorf("app: replay: %w", runErr)
	}

	art, err := recorder.Export(cfg.Testing.OutputDir, recorder.Session{
		ID:      session,
		Mode:    backtest.Mode,
		Started: started,
		Ended:   ended,
		Account: res.Account,
	}, res.Positions)
	if err != nil {
		return recorder.Artifacts{}, res, fmt.Errorf("app: replay: %w", err)
	}
	return art, res, nil
}
