package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stratbot/internal/config"
	"github.com/alanyoungcy/stratbot/internal/domain"
	"github.com/alanyoungcy/stratbot/internal/ledger"
	"github.com/alanyoungcy/stratbot/internal/pnl"
	"github.com/alanyoungcy/stratbot/internal/recorder"
	"github.com/alanyoungcy/stratbot/internal/risk"
)

func TestExportJournalRebuildsAccount(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Defaults()
	dir := t.TempDir()

	started := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	now := started
	session := recorder.SessionID("testing", started)
	journal, err := recorder.OpenJournal(dir, session, logger)
	require.NoError(t, err)

	book := ledger.New(cfg.Trading.StartingBalance, risk.NewManager(risk.LimitsFromConfig(&cfg), logger), ledger.Options{
		Mode: "testing",
		Fees: pnl.Fees{WinnerFee: cfg.Trading.WinnerFee},
		Now:  func() time.Time { return now },
	}, logger)
	book.AddObserver(journal)

	ctx := context.Background()
	open := func(market string) domain.Position {
		pos, err := book.Reserve(ctx, domain.Opportunity{
			Strategy: "latency_arbitrage", MarketID: market, Outcome: domain.OutcomeYes, Side: domain.OrderSideBuy,
			ReferencePrice: 0.45, Edge: 0.05, Confidence: 1,
		})
		require.NoError(t, err)
		pos, err = book.Confirm(ctx, pos.ID, domain.OrderResult{Confirmed: true, OrderID: "o-" + market, FillPrice: 0.45, FillSize: pos.Size})
		require.NoError(t, err)
		return pos
	}

	won := open("m1")
	open("m2")
	now = started.Add(10 * time.Minute)
	settledPos, err := book.Resolve(ctx, won.ID, 1)
	require.NoError(t, err)
	require.NoError(t, journal.Close())

	art, err := ExportJournal(ctx, &cfg, journal.Path(), logger)
	require.NoError(t, err)

	report, err := os.ReadFile(art.Report)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(report), "SESSION REPORT"))
	assert.Contains(t, string(report), session)

	_, err = os.Stat(art.CSV)
	require.NoError(t, err)

	want := book.Account()
	positions, err := recorder.ReplayFile(journal.Path())
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.InDelta(t, cfg.Trading.StartingBalance+*settledPos.RealizedPnL, want.CurrentBalance, 1e-9)
}

func TestExportJournalMissingFile(t *testing.T) {
	cfg := config.Defaults()
	_, err := ExportJournal(context.Background(), &cfg, "does-not-exist.jsonl", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, "app: export")
}
