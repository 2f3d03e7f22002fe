package ledger

import (
	"fmt"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// DuplicateBetError is returned by Reserve when the key already has a live
// position.
type DuplicateBetError struct {
	Key        domain.PositionKey
	ExistingID string
}

func (e *DuplicateBetError) Error() string {
	return fmt.Sprintf("ledger: duplicate bet %s/%s/%s (live position %s)",
		e.Key.Strategy, e.Key.MarketID, e.Key.Outcome, e.ExistingID)
}

func (e *DuplicateBetError) Unwrap() error { return domain.ErrDuplicateBet }

// ExecutionError reports a reservation that was rolled back because the
// order could not be placed.
type ExecutionError struct {
	PositionID string
	Key        domain.PositionKey
	Reason     string
	Err        error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ledger: position %s discarded: %s: %v", e.PositionID, e.Reason, e.Err)
	}
	return fmt.Sprintf("ledger: position %s discarded: %s", e.PositionID, e.Reason)
}

// Unwrap exposes both domain.ErrExecution and the underlying gateway error.
func (e *ExecutionError) Unwrap() []error {
	if e.Err != nil {
		return []error{domain.ErrExecution, e.Err}
	}
	return []error{domain.ErrExecution}
}
