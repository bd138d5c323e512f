package services

import "errors"

// Settlement error taxonomy. Validation and resource errors have no side
// effects; state-conflict errors may clear on retry once the market moves.
var (
	// Validation errors
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrInvalidOutcomes = errors.New("market requires at least two distinct outcomes")
	ErrPolicyInvalid   = errors.New("resolver policy configuration is invalid")
	ErrUnknownOutcome  = errors.New("unknown outcome")
	ErrInvalidReason   = errors.New("ledger reason not allowed")

	// State-conflict errors
	ErrMarketNotOpen   = errors.New("market is not open for trading")
	ErrMarketStillOpen = errors.New("market has not closed yet")
	ErrAlreadyResolved = errors.New("market already resolved")

	// Resource errors
	ErrInsufficientFunds = errors.New("insufficient BDC balance")

	// Indeterminate: the market stays closed and flagged, external
	// intervention required. Never auto-resolved by tie-break.
	ErrResolutionDeadlock = errors.New("resolution deadlocked")
)
