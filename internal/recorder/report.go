package recorder

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// Session describes the run a report covers.
type Session struct {
	ID      string
	Mode    string
	Started time.Time
	Ended   time.Time
	Account domain.AccountState
}

// WriteReport renders the plain-text session report.
func WriteReport(w io.Writer, sess Session, positions []domain.Position) error {
	s := Summarize(positions)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "SESSION REPORT\t%s\n", sess.ID)
	fmt.Fprintf(tw, "mode\t%s\n", sess.Mode)
	fmt.Fprintf(tw, "started\t%s\n", sess.Started.UTC().Format(time.RFC3339))
	fmt.Fprintf(tw, "duration\t%s\n", sess.Ended.Sub(sess.Started).Round(time.Second))
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "starting balance\t%s\n", usd(sess.Account.StartingBalance))
	fmt.Fprintf(tw, "final balance\t%s\n", usd(sess.Account.CurrentBalance))
	fmt.Fprintf(tw, "open exposure\t%s\n", usd(sess.Account.TotalExposureUSD))
	fmt.Fprintf(tw, "drawdown latch\t%t\n", sess.Account.DrawdownTripped)
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "total trades\t%d\n", s.Total)
	fmt.Fprintf(tw, "settled\t%d\n", s.Settled)
	fmt.Fprintf(tw, "open\t%d\n", s.Open)
	fmt.Fprintf(tw, "uncertain (expired)\t%d\n", s.Uncertain)
	fmt.Fprintf(tw, "wins / losses\t%d / %d\n", s.Wins, s.Losses)
	fmt.Fprintf(tw, "win rate\t%.1f%%\n", s.WinRate*100)
	fmt.Fprintf(tw, "total pnl\t%s\n", usd(s.TotalPnL))
	fmt.Fprintf(tw, "average pnl\t%s\n", usd(s.AvgPnL))
	fmt.Fprintf(tw, "total fees\t%s\n", usd(s.TotalFees))
	fmt.Fprintf(tw, "max drawdown\t%s\n", usd(s.MaxDrawdown))

	if len(s.Strategies) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "strategy\ttrades\tsettled\topen\twin rate\tnet pnl\tfees")
		for _, ss := range s.Strategies {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f%%\t%s\t%s\n",
				ss.Strategy, ss.Trades, ss.Settled, ss.Open, ss.WinRate*100, usd(ss.NetPnL), usd(ss.Fees))
		}
	}
	return tw.Flush()
}

func usd(v float64) string {
	if v < 0 {
		return "-$" + humanize.CommafWithDigits(-v, 2)
	}
	return "$" + humanize.CommafWithDigits(v, 2)
}

// CSVHeader matches the TradeEvent JSON field names.
var CSVHeader = []string{
	"position_id", "mode", "strategy", "market_id", "question", "outcome", "side",
	"entry_price", "size", "notional_usd", "edge", "confidence", "state",
	"opened_at", "resolved_at", "exit_price", "realized_pnl", "fees",
	"uncertain", "order_id", "leg_group_id", "reason", "recorded_at",
}

// WriteCSV writes one row per position in its latest state.
func WriteCSV(w io.Writer, mode string, positions []domain.Position, at time.Time) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("recorder: csv header: %w", err)
	}
	for _, p := range positions {
		ev := domain.NewTradeEvent(mode, p, at)
		row := []string{
			ev.PositionID, ev.Mode, ev.Strategy, ev.MarketID, ev.Question, ev.Outcome, string(ev.Side),
			ftoa(ev.EntryPrice), ftoa(ev.Size), ftoa(ev.NotionalUSD), ftoa(ev.Edge), ftoa(ev.Confidence), string(ev.State),
			ev.OpenedAt.UTC().Format(time.RFC3339), timePtr(ev.ResolvedAt), floatPtr(ev.ExitPrice), floatPtr(ev.RealizedPnL), ftoa(ev.Fees),
			strconv.FormatBool(ev.Uncertain), ev.OrderID, ev.LegGroupID, ev.Reason, ev.RecordedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("recorder: csv row %s: %w", p.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func floatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return ftoa(*v)
}

func timePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Artifacts are the files written at shutdown.
type Artifacts struct {
	Report string
	CSV    string
}

// Export writes <dir>/<session>_report.txt and <dir>/<session>_trades.csv.
func Export(dir string, sess Session, positions []domain.Position) (Artifacts, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifacts{}, fmt.Errorf("recorder: create output dir: %w", err)
	}
	out := Artifacts{
		Report: filepath.Join(dir, sess.ID+"_report.txt"),
		CSV:    filepath.Join(dir, sess.ID+"_trades.csv"),
	}
	if err := writeFile(out.Report, func(w io.Writer) error { return WriteReport(w, sess, positions) }); err != nil {
		return Artifacts{}, err
	}
	if err := writeFile(out.CSV, func(w io.Writer) error { return WriteCSV(w, sess.Mode, positions, sess.Ended) }); err != nil {
		return Artifacts{}, err
	}
	return out, nil
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recorder: create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("recorder: write %s: %w", path, err)
	}
	return f.Close()
}
