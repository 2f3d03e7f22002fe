package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stratbot/internal/backtest"
	"github.com/alanyoungcy/stratbot/internal/config"
	"github.com/alanyoungcy/stratbot/internal/domain"
	"github.com/alanyoungcy/stratbot/internal/recorder"
)

func TestReplayWritesSessionArtifacts(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Defaults()
	cfg.Testing.OutputDir = t.TempDir()

	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	quote := func(yes, no float64) map[string]domain.OutcomeQuote {
		return map[string]domain.OutcomeQuote{
			domain.OutcomeYes: {Price: yes},
			domain.OutcomeNo:  {Price: no},
		}
	}
	tape, err := backtest.OpenTape(cfg.Testing.OutputDir, "testing_1")
	require.NoError(t, err)
	require.NoError(t, tape.Record(start, []domain.MarketSnapshot{
		{MarketID: "m1", Status: domain.MarketStatusActive, Outcomes: quote(0.44, 0.46)},
	}, domain.PriceSet{AsOf: start}))
	end := start.Add(20 * time.Minute)
	require.NoError(t, tape.Record(end, []domain.MarketSnapshot{
		{MarketID: "m1", Status: domain.MarketStatusResolved, Winner: "No", Outcomes: quote(0, 1)},
	}, domain.PriceSet{AsOf: end}))
	require.NoError(t, tape.Close())

	art, res, err := Replay(context.Background(), &cfg, tape.Path(), []string{"binary_hedging"}, logger)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Opened)
	assert.Equal(t, 2, res.Settled)

	_, err = os.Stat(art.Report)
	require.NoError(t, err)

	// The replay journals every transition like a live session.
	positions, err := recorder.ReplayFile(filepath.Join(cfg.Testing.OutputDir, recorder.SessionID(backtest.Mode, start)+".jsonl"))
	require.NoError(t, err)
	assert.Len(t, positions, 2)
}

func TestReplayMissingTape(t *testing.T) {
	cfg := config.Defaults()
	_, _, err := Replay(context.Background(), &cfg, "does-not-exist.frames.jsonl", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, "app: replay")
}
