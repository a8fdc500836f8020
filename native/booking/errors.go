package booking

import "errors"

// Sentinel errors returned by the engine and validator. The RPC layer maps
// these onto protocol error codes; they are compared with errors.Is.
var (
	ErrInvalidDateRange = errors.New("booking: check-out must be after check-in")
	ErrInvalidAmount    = errors.New("booking: amount must be positive")
	ErrOverDeposit      = errors.New("booking: deposit exceeds remaining total")
	ErrBookingNotFound  = errors.New("booking: not found")
	ErrInvalidState     = errors.New("booking: transition not legal in current status")
	ErrUnauthorized     = errors.New("booking: caller not authorized")
)
