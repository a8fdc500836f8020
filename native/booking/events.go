package booking

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"ubook/core/types"
)

const (
	EventTypeBookingCreated   = "booking.created"
	EventTypeBookingDeposited = "booking.deposited"
	EventTypeBookingConfirmed = "booking.confirmed"
	EventTypeFundsReleased    = "booking.funds_released"
	EventTypeBookingCancelled = "booking.cancelled"
)

// NewCreatedEvent returns the canonical payload emitted when a booking is
// allocated, carrying the identifier, guest and total amount.
func NewCreatedEvent(b *Booking) *types.Event {
	evt := newBookingEvent(EventTypeBookingCreated, b)
	if b != nil {
		evt.Attributes["amount"] = formatAmount(b.TotalAmount)
	}
	return evt
}

// NewDepositedEvent returns the payload for a successful deposit, including
// the incremental value and the cumulative escrowed amount.
func NewDepositedEvent(b *Booking, value *big.Int) *types.Event {
	evt := newBookingEvent(EventTypeBookingDeposited, b)
	evt.Attributes["value"] = formatAmount(value)
	if b != nil {
		evt.Attributes["deposited"] = formatAmount(b.DepositedAmount)
	}
	return evt
}

// NewConfirmedEvent returns the payload emitted when the operator confirms a
// fully deposited booking.
func NewConfirmedEvent(b *Booking) *types.Event {
	return newBookingEvent(EventTypeBookingConfirmed, b)
}

// NewFundsReleasedEvent returns the payload for a completed booking, naming
// the admin the escrowed funds were released to.
func NewFundsReleasedEvent(b *Booking, admin common.Address, amount *big.Int) *types.Event {
	evt := newBookingEvent(EventTypeFundsReleased, b)
	evt.Attributes["admin"] = formatAddress(admin)
	evt.Attributes["amount"] = formatAmount(amount)
	return evt
}

// NewCancelledEvent returns the payload for a cancellation, carrying the
// operator-supplied reason alongside the refunded and withheld amounts.
func NewCancelledEvent(b *Booking, refund, fee *big.Int) *types.Event {
	evt := newBookingEvent(EventTypeBookingCancelled, b)
	if b != nil {
		evt.Attributes["reason"] = b.CancelReason
	}
	evt.Attributes["refund"] = formatAmount(refund)
	evt.Attributes["fee"] = formatAmount(fee)
	return evt
}

func newBookingEvent(eventType string, b *Booking) *types.Event {
	attrs := make(map[string]string)
	if b == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["bookingId"] = strconv.FormatUint(b.ID, 10)
	attrs["guest"] = formatAddress(b.Guest)
	attrs["accommodationId"] = b.AccommodationID
	attrs["status"] = b.Status.String()
	attrs["checkIn"] = strconv.FormatInt(b.CheckIn, 10)
	attrs["checkOut"] = strconv.FormatInt(b.CheckOut, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
