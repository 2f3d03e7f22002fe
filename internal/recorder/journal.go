// Package recorder persists the trade journal and renders session reports
// from it.
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// Journal appends one JSON line per position transition. It implements
// ledger.Observer.
type Journal struct {
	mu      sync.Mutex
	f       *os.File
	enc     *json.Encoder
	path    string
	session string
	written int
	logger  *slog.Logger
}

// SessionID names a session from its mode and start time.
func SessionID(mode string, started time.Time) string {
	return fmt.Sprintf("%s_%d", mode, started.Unix())
}

// OpenJournal creates <dir>/<session>.jsonl for appending.
func OpenJournal(dir, session string, logger *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: create output dir: %w", err)
	}
	path := filepath.Join(dir, session+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("recorder: open journal: %w", err)
	}
	return &Journal{
		f:       f,
		enc:     json.NewEncoder(f),
		path:    path,
		session: session,
		logger:  logger.With(slog.String("component", "journal")),
	}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Session returns the session id.
func (j *Journal) Session() string { return j.session }

// Observe appends ev. Write errors are logged; the ledger cannot act on them.
func (j *Journal) Observe(ev domain.TradeEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return
	}
	if err := j.enc.Encode(ev); err != nil {
		j.logger.Error("journal append failed",
			slog.String("position_id", ev.PositionID),
			slog.String("error", err.Error()),
		)
		return
	}
	j.written++
}

// Written returns the number of records appended.
func (j *Journal) Written() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}

// Close syncs and closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	err := j.f.Sync()
	if cerr := j.f.Close(); err == nil {
		err = cerr
	}
	j.f = nil
	return err
}

// Replay reads a journal and returns the latest state of every position, in
// order of first appearance. A DISCARDED record removes its position.
func Replay(r io.Reader) ([]domain.Position, error) {
	latest := make(map[string]domain.Position)
	var order []string

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev domain.TradeEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("recorder: replay line %d: %w", line, err)
		}
		if _, seen := latest[ev.PositionID]; !seen {
			order = append(order, ev.PositionID)
		}
		latest[ev.PositionID] = ev.Position()
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("recorder: replay: %w", err)
	}

	out := make([]domain.Position, 0, len(order))
	for _, id := range order {
		p := latest[id]
		if p.State == domain.Discarded {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// ReplayFile opens path and replays it.
func ReplayFile(path string) ([]domain.Position, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}
	defer f.Close()
	return Replay(f)
}
