package booking

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Status enumerates the lifecycle states of a booking record.
type Status uint8

const (
	StatusPending Status = iota
	StatusDeposited
	StatusConfirmed
	StatusCompleted
	StatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDeposited, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether a booking in this status can undergo further
// transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// String returns the canonical lowercase label for the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDeposited:
		return "deposited"
	case StatusConfirmed:
		return "confirmed"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseStatus resolves a status label back into its enumeration value.
// Unknown labels are rejected rather than propagated.
func ParseStatus(label string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "pending":
		return StatusPending, nil
	case "deposited":
		return StatusDeposited, nil
	case "confirmed":
		return StatusConfirmed, nil
	case "completed":
		return StatusCompleted, nil
	case "cancelled":
		return StatusCancelled, nil
	default:
		return 0, fmt.Errorf("booking: unknown status %q", label)
	}
}

// Booking is the canonical escrow record held by the engine. Identifiers are
// allocated from a monotonic counter starting at 1; id 0 is never valid.
// Guest, accommodation and date fields are immutable after creation.
type Booking struct {
	ID              uint64
	Guest           common.Address
	AccommodationID string
	CheckIn         int64
	CheckOut        int64
	TotalAmount     *big.Int
	DepositedAmount *big.Int
	Status          Status
	CreatedAt       int64
	CancelReason    string
}

// Completed mirrors the on-record terminal flag: true only once the stay has
// been completed and funds released.
func (b *Booking) Completed() bool {
	return b != nil && b.Status == StatusCompleted
}

// Clone returns a deep copy so callers can mutate the result without
// affecting the stored record.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	clone := *b
	if b.TotalAmount != nil {
		clone.TotalAmount = new(big.Int).Set(b.TotalAmount)
	} else {
		clone.TotalAmount = big.NewInt(0)
	}
	if b.DepositedAmount != nil {
		clone.DepositedAmount = new(big.Int).Set(b.DepositedAmount)
	} else {
		clone.DepositedAmount = big.NewInt(0)
	}
	return &clone
}

// Sanitize validates and normalises a booking record, returning a clone with
// non-nil amount fields. The original value is not mutated.
func Sanitize(b *Booking) (*Booking, error) {
	if b == nil {
		return nil, fmt.Errorf("booking: nil record")
	}
	clone := b.Clone()
	if clone.ID == 0 {
		return nil, fmt.Errorf("booking: id must be non-zero")
	}
	if strings.TrimSpace(clone.AccommodationID) == "" {
		return nil, fmt.Errorf("booking: accommodation id required")
	}
	if clone.CheckOut <= clone.CheckIn {
		return nil, ErrInvalidDateRange
	}
	if clone.TotalAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if clone.DepositedAmount.Sign() < 0 {
		return nil, fmt.Errorf("booking: deposited amount must be non-negative")
	}
	if clone.Status != StatusCancelled && clone.DepositedAmount.Cmp(clone.TotalAmount) > 0 {
		return nil, ErrOverDeposit
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("booking: invalid status %d", clone.Status)
	}
	return clone, nil
}
