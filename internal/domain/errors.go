package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrSigningFailed = errors.New("signing failed")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrLockHeld      = errors.New("lock already held")

	// ErrFeedStale marks price data older than the allowed horizon. Strategies
	// skip the symbol; they never substitute a value.
	ErrFeedStale = errors.New("feed stale")

	// ErrDuplicateBet is returned when a (strategy, market, outcome) key
	// already has a PENDING or OPEN position.
	ErrDuplicateBet = errors.New("duplicate bet")

	// ErrExecution is returned when the gateway rejects or fails an order. The
	// PENDING reservation has been rolled back by the time callers see it.
	ErrExecution = errors.New("execution failed")

	// ErrRiskLimitExceeded covers every risk rejection except the drawdown
	// latch.
	ErrRiskLimitExceeded = errors.New("risk limit exceeded")

	// ErrDrawdownTripped is the emergency latch. New trading stops for the
	// life of the process; open positions keep being monitored.
	ErrDrawdownTripped = errors.New("drawdown kill-switch tripped")

	// ErrInvariantViolation signals corrupted ledger accounting and is the
	// only core error that stops the process.
	ErrInvariantViolation = errors.New("invariant violation")

	ErrInvalidTransition = errors.New("invalid position transition")
)
