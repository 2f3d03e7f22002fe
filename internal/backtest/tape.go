// Package backtest records the inputs of live evaluation cycles and replays
// them through the trading core against the simulator.
package backtest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// Frame is what one evaluation cycle saw: the market snapshots with their
// history and the reference prices.
type Frame struct {
	At      time.Time               `json:"at"`
	Markets []domain.MarketSnapshot `json:"markets"`
	Prices  domain.PriceSet         `json:"prices"`
}

// Market returns the snapshot of marketID in this frame.
func (f Frame) Market(marketID string) (domain.MarketSnapshot, bool) {
	for _, m := range f.Markets {
		if m.MarketID == marketID {
			return m, true
		}
	}
	return domain.MarketSnapshot{}, false
}

// Tape appends frames to <dir>/<session>.frames.jsonl.
type Tape struct {
	mu      sync.Mutex
	f       *os.File
	enc     *json.Encoder
	path    string
	written int
}

// OpenTape creates the tape file for session.
func OpenTape(dir, session string) (*Tape, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backtest: create output dir: %w", err)
	}
	path := filepath.Join(dir, session+".frames.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("backtest: open tape: %w", err)
	}
	return &Tape{f: f, enc: json.NewEncoder(f), path: path}, nil
}

// Path returns the tape file path.
func (t *Tape) Path() string { return t.path }

// Written returns the number of frames appended.
func (t *Tape) Written() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written
}

// Record appends one frame.
func (t *Tape) Record(at time.Time, markets []domain.MarketSnapshot, prices domain.PriceSet) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return errors.New("backtest: tape closed")
	}
	if err := t.enc.Encode(Frame{At: at.UTC(), Markets: markets, Prices: prices}); err != nil {
		return fmt.Errorf("backtest: append frame: %w", err)
	}
	t.written++
	return nil
}

// Close flushes and closes the file. It is safe to call more than once.
func (t *Tape) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}

// ReadFrames loads a tape in recorded order.
func ReadFrames(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backtest: open tape: %w", err)
	}
	defer f.Close()
	return DecodeFrames(f)
}

// DecodeFrames reads one JSON frame per line. Frames must be in time order.
func DecodeFrames(r io.Reader) ([]Frame, error) {
	sc := bufio.NewScanner(r)
	// A frame carries every market's history, so lines get long.
	sc.Buffer(make([]byte, 0, 1<<20), 64<<20)

	var frames []Frame
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var fr Frame
		if err := json.Unmarshal(sc.Bytes(), &fr); err != nil {
			return nil, fmt.Errorf("backtest: line %d: %w", line, err)
		}
		if n := len(frames); n > 0 && fr.At.Before(frames[n-1].At) {
			return nil, fmt.Errorf("backtest: line %d: frame at %s precedes %s", line, fr.At.Format(time.RFC3339), frames[n-1].At.Format(time.RFC3339))
		}
		frames = append(frames, fr)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("backtest: read tape: %w", err)
	}
	return frames, nil
}
