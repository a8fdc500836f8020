package booking

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ubook/core/events"
	"ubook/core/types"
)

var (
	errNilState            = errors.New("booking engine: state not configured")
	errNilOperator         = errors.New("booking engine: operator not configured")
	errInsufficientBalance = errors.New("booking engine: insufficient balance")
)

// engineState is the storage surface the engine mutates. Implementations must
// hand out defensive copies from BookingGet.
type engineState interface {
	BookingPut(*Booking) error
	BookingGet(id uint64) (*Booking, bool)
	AllocateBookingID() (uint64, error)
	NextBookingID() uint64
	BalanceGet(addr common.Address) (*big.Int, error)
	BalanceSet(addr common.Address, balance *big.Int) error
	EscrowCredit(id uint64, amount *big.Int) error
	EscrowDebit(id uint64, amount *big.Int) error
	VaultAddress() common.Address
}

type bookingEvent struct {
	evt *types.Event
}

func (e bookingEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e bookingEvent) Event() *types.Event { return e.evt }

// Engine is the sole authority over booking records and escrowed funds. Every
// transition is re-validated here regardless of any client-side checks; the
// engine is the final arbiter for custody decisions.
type Engine struct {
	state       engineState
	emitter     events.Emitter
	operator    common.Address
	feeTreasury common.Address
	feeBps      uint32
	nowFn       func() int64
}

// NewEngine creates a booking engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOperator configures the privileged address allowed to confirm and
// complete bookings.
func (e *Engine) SetOperator(addr common.Address) { e.operator = addr }

// SetFeeTreasury configures the address receiving withheld cancellation fees.
// When unset, fees accrue to the operator.
func (e *Engine) SetFeeTreasury(addr common.Address) { e.feeTreasury = addr }

// SetPlatformFeeBps configures the cancellation fee in basis points. Values
// above 10000 are rejected.
func (e *Engine) SetPlatformFeeBps(bps uint32) error {
	if bps > 10_000 {
		return fmt.Errorf("booking engine: fee bps out of range: %d", bps)
	}
	e.feeBps = bps
	return nil
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(bookingEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) loadBooking(id uint64) (*Booking, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	b, ok := e.state.BookingGet(id)
	if !ok {
		return nil, ErrBookingNotFound
	}
	return b, nil
}

func (e *Engine) storeBooking(b *Booking) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.BookingPut(b)
}

func (e *Engine) transferFunds(from, to common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("booking engine: negative transfer amount")
	}
	fromBal, err := e.state.BalanceGet(from)
	if err != nil {
		return err
	}
	toBal, err := e.state.BalanceGet(to)
	if err != nil {
		return err
	}
	if cloneBigInt(fromBal).Cmp(amt) < 0 {
		return errInsufficientBalance
	}
	if err := e.state.BalanceSet(from, new(big.Int).Sub(cloneBigInt(fromBal), amt)); err != nil {
		return err
	}
	return e.state.BalanceSet(to, new(big.Int).Add(cloneBigInt(toBal), amt))
}

func (e *Engine) feeRecipient() common.Address {
	if e.feeTreasury != (common.Address{}) {
		return e.feeTreasury
	}
	return e.operator
}

// CreateBooking allocates a new booking in Pending with no funds escrowed.
// The date range and amount are validated before an identifier is consumed.
func (e *Engine) CreateBooking(guest common.Address, accommodationID string, checkIn, checkOut int64, totalAmount *big.Int) (*Booking, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if guest == (common.Address{}) {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(accommodationID) == "" {
		return nil, fmt.Errorf("booking engine: accommodation id required")
	}
	if checkOut <= checkIn {
		return nil, ErrInvalidDateRange
	}
	total := cloneBigInt(totalAmount)
	if total.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	id, err := e.state.AllocateBookingID()
	if err != nil {
		return nil, err
	}
	b := &Booking{
		ID:              id,
		Guest:           guest,
		AccommodationID: strings.TrimSpace(accommodationID),
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		TotalAmount:     total,
		DepositedAmount: big.NewInt(0),
		Status:          StatusPending,
		CreatedAt:       e.now(),
	}
	if err := e.storeBooking(b); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(b))
	return b.Clone(), nil
}

// Deposit escrows value from the guest towards the booking total, moving the
// record from Pending to Deposited on the first successful deposit.
func (e *Engine) Deposit(id uint64, from common.Address, amount *big.Int) error {
	b, err := e.loadBooking(id)
	if err != nil {
		return err
	}
	if b.Guest != from {
		return ErrUnauthorized
	}
	if b.Status != StatusPending && b.Status != StatusDeposited {
		return ErrInvalidState
	}
	if err := ValidateDeposit(amount, b.DepositedAmount, b.TotalAmount); err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if err := e.transferFunds(b.Guest, e.state.VaultAddress(), amt); err != nil {
		return err
	}
	if err := e.state.EscrowCredit(id, amt); err != nil {
		return err
	}
	b.DepositedAmount = new(big.Int).Add(b.DepositedAmount, amt)
	if b.Status == StatusPending {
		b.Status = StatusDeposited
	}
	if err := e.storeBooking(b); err != nil {
		return err
	}
	e.emit(NewDepositedEvent(b, amt))
	return nil
}

// Confirm marks a fully deposited booking as confirmed by the operator.
func (e *Engine) Confirm(id uint64, caller common.Address) error {
	if e.operator == (common.Address{}) {
		return errNilOperator
	}
	b, err := e.loadBooking(id)
	if err != nil {
		return err
	}
	if caller != e.operator {
		return ErrUnauthorized
	}
	if b.Status != StatusDeposited {
		return ErrInvalidState
	}
	if b.DepositedAmount.Cmp(b.TotalAmount) != 0 {
		return ErrInvalidState
	}
	b.Status = StatusConfirmed
	if err := e.storeBooking(b); err != nil {
		return err
	}
	e.emit(NewConfirmedEvent(b))
	return nil
}

// Complete settles the booking in favour of the operator, releasing the full
// escrowed amount and marking the record terminal.
func (e *Engine) Complete(id uint64, caller common.Address) error {
	if e.operator == (common.Address{}) {
		return errNilOperator
	}
	b, err := e.loadBooking(id)
	if err != nil {
		return err
	}
	if caller != e.operator {
		return ErrUnauthorized
	}
	if b.Status != StatusDeposited && b.Status != StatusConfirmed {
		return ErrInvalidState
	}
	released := cloneBigInt(b.DepositedAmount)
	if released.Sign() > 0 {
		if err := e.transferFunds(e.state.VaultAddress(), e.operator, released); err != nil {
			return err
		}
		if err := e.state.EscrowDebit(id, released); err != nil {
			return err
		}
	}
	b.Status = StatusCompleted
	if err := e.storeBooking(b); err != nil {
		return err
	}
	e.emit(NewFundsReleasedEvent(b, e.operator, released))
	return nil
}

// Cancel tears down a non-terminal booking, refunding the guest minus the
// platform fee. The fee divides by 10000 and floors, so dust rounds in favour
// of the guest.
func (e *Engine) Cancel(id uint64, caller common.Address, reason string) error {
	b, err := e.loadBooking(id)
	if err != nil {
		return err
	}
	if caller != b.Guest && caller != e.operator {
		return ErrUnauthorized
	}
	if b.Status.Terminal() {
		return ErrInvalidState
	}
	fee, refund := CancellationFee(b.DepositedAmount, e.feeBps)
	if b.DepositedAmount.Sign() > 0 {
		vault := e.state.VaultAddress()
		if refund.Sign() > 0 {
			if err := e.transferFunds(vault, b.Guest, refund); err != nil {
				return err
			}
		}
		if fee.Sign() > 0 {
			if err := e.transferFunds(vault, e.feeRecipient(), fee); err != nil {
				return err
			}
		}
		if err := e.state.EscrowDebit(id, b.DepositedAmount); err != nil {
			return err
		}
	}
	b.DepositedAmount = big.NewInt(0)
	b.Status = StatusCancelled
	b.CancelReason = strings.TrimSpace(reason)
	if err := e.storeBooking(b); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(b, refund, fee))
	return nil
}

// Get returns the booking for id. Unknown identifiers yield a zero-value
// record and false rather than an error.
func (e *Engine) Get(id uint64) (*Booking, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	return e.state.BookingGet(id)
}

// NextBookingID returns the identifier the next created booking will receive.
func (e *Engine) NextBookingID() uint64 {
	if e == nil || e.state == nil {
		return 0
	}
	return e.state.NextBookingID()
}

// PlatformFeeBps returns the configured cancellation fee in basis points.
func (e *Engine) PlatformFeeBps() uint32 {
	if e == nil {
		return 0
	}
	return e.feeBps
}
