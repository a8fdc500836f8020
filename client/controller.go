package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"ubook/native/booking"
)

// ErrTransitionInProgress is returned when a transition for a booking is
// requested while an earlier one has not settled.
var ErrTransitionInProgress = errors.New("client: transition already in flight for booking")

// OutcomeStatus classifies what the controller knows about a submitted
// transition.
type OutcomeStatus uint8

const (
	// OutcomeConfirmed means the node acknowledged the transition.
	OutcomeConfirmed OutcomeStatus = iota
	// OutcomeFailed means the node (or a local check) definitively rejected it.
	OutcomeFailed
	// OutcomeUnknown means submission was attempted but no answer arrived.
	// The transition may or may not have been applied; the journal keeps the
	// pending reference until reconciliation settles it.
	OutcomeUnknown
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeFailed:
		return "failed"
	case OutcomeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(s))
	}
}

// Outcome is the result of one lifecycle transition request.
type Outcome struct {
	Status     OutcomeStatus
	TxHash     string
	PendingRef string
	Reason     string
	Booking    *BookingState
}

// Controller drives booking lifecycle transitions for a single guest or
// operator identity. It validates locally before submitting, allows at most
// one in-flight transition per booking, journals every submission, and
// mirrors confirmed state into the cache.
type Controller struct {
	node    NodeClient
	cache   *Cache
	journal *Journal
	nowFn   func() time.Time

	mu       sync.Mutex
	inFlight map[uint64]struct{}
}

func NewController(node NodeClient, cache *Cache, journal *Journal) *Controller {
	return &Controller{
		node:     node,
		cache:    cache,
		journal:  journal,
		nowFn:    time.Now,
		inFlight: make(map[uint64]struct{}),
	}
}

// NewMemoryController wires a controller backed by an in-memory journal,
// suitable for one-shot tool invocations that do not track pending
// transitions across runs.
func NewMemoryController(node NodeClient, guest string) (*Controller, error) {
	journal, err := OpenJournal(":memory:")
	if err != nil {
		return nil, err
	}
	return NewController(node, NewCache(guest), journal), nil
}

// SetNowFunc overrides the controller clock.
func (c *Controller) SetNowFunc(now func() time.Time) {
	if now != nil {
		c.nowFn = now
	}
}

// Cache exposes the local mirror for read paths.
func (c *Controller) Cache() *Cache { return c.cache }

func (c *Controller) acquire(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[id]; busy {
		return false
	}
	c.inFlight[id] = struct{}{}
	return true
}

func (c *Controller) release(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, id)
}

// RequestCreate validates the stay against the accommodation listing, computes
// the total locally, and submits booking_create. The total is never caller
// supplied.
func (c *Controller) RequestCreate(ctx context.Context, guest, accommodationID string, checkIn, checkOut int64) (*Outcome, error) {
	entry, err := c.node.CatalogGet(ctx, accommodationID)
	if err != nil {
		return nil, fmt.Errorf("resolve accommodation %q: %w", accommodationID, err)
	}
	if !entry.Available {
		return failedOutcome("", "accommodation is not available"), nil
	}
	// Catalog prices arrive as decimal base-unit strings.
	price, ok := new(big.Int).SetString(entry.PricePerNight, 10)
	if !ok || price.Sign() <= 0 {
		return nil, fmt.Errorf("accommodation %q has invalid price %q", accommodationID, entry.PricePerNight)
	}
	nights, err := booking.ComputeNights(checkIn, checkOut)
	if err != nil {
		return failedOutcome("", err.Error()), nil
	}
	total, err := booking.ComputeTotal(nights, price)
	if err != nil {
		return failedOutcome("", err.Error()), nil
	}

	pendingRef := uuid.NewString()
	if err := c.journal.Begin(ctx, pendingRef, 0, "create"); err != nil {
		return nil, err
	}
	result, err := c.node.BookingCreate(ctx, CreateRequest{
		Guest:           guest,
		AccommodationID: accommodationID,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		TotalAmount:     total.String(),
	})
	if err != nil {
		return c.settleFailure(ctx, pendingRef, 0, err)
	}
	_ = c.journal.Resolve(ctx, pendingRef, JournalConfirmed, result.TxHash, "")
	return c.confirmed(ctx, result.BookingID, result.TxHash), nil
}

// RequestDeposit submits a deposit after checking it against the local
// snapshot of the booking, when one is available.
func (c *Controller) RequestDeposit(ctx context.Context, id uint64, from, value string) (*Outcome, error) {
	amount, err := booking.ParseAmount(value)
	if err != nil {
		return failedOutcome("", err.Error()), nil
	}
	if snapshot, ok := c.cache.Get(id); ok {
		if reason := checkDepositAgainst(snapshot, amount); reason != "" {
			return failedOutcome("", reason), nil
		}
	}
	return c.submit(ctx, id, "deposit", func(ctx context.Context) (string, error) {
		return c.node.BookingDeposit(ctx, id, from, amount.String())
	})
}

// RequestConfirm submits the operator acknowledgement of a fully funded stay.
func (c *Controller) RequestConfirm(ctx context.Context, id uint64, caller string) (*Outcome, error) {
	return c.submit(ctx, id, "confirm", func(ctx context.Context) (string, error) {
		return c.node.BookingConfirm(ctx, id, caller)
	})
}

// RequestComplete submits the escrow release for a finished stay.
func (c *Controller) RequestComplete(ctx context.Context, id uint64, caller string) (*Outcome, error) {
	return c.submit(ctx, id, "complete", func(ctx context.Context) (string, error) {
		return c.node.BookingComplete(ctx, id, caller)
	})
}

// RequestCancel submits a cancellation. Stays that already started or reached
// a terminal state are rejected locally when the snapshot shows so, saving the
// round trip.
func (c *Controller) RequestCancel(ctx context.Context, id uint64, caller, reason string) (*Outcome, error) {
	if snapshot, ok := c.cache.Get(id); ok {
		status, err := booking.ParseStatus(snapshot.Status)
		if err == nil && !booking.CanCancel(status, snapshot.CheckIn, c.nowFn().Unix()) {
			return failedOutcome("", "booking can no longer be cancelled"), nil
		}
	}
	return c.submit(ctx, id, "cancel", func(ctx context.Context) (string, error) {
		return c.node.BookingCancel(ctx, id, caller, reason)
	})
}

// Lookup returns the cached snapshot for a booking, refreshing from the node
// on a miss.
func (c *Controller) Lookup(ctx context.Context, id uint64) (*BookingState, error) {
	if snapshot, ok := c.cache.Get(id); ok {
		return snapshot, nil
	}
	state, err := c.node.BookingGet(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Put(state)
	return state, nil
}

// Reconcile re-reads the node state for every pending journal entry and
// settles those whose effect is now observable. Creates are left pending: the
// allocated identifier is unknown, so only an operator audit can settle them.
func (c *Controller) Reconcile(ctx context.Context) (settled int, err error) {
	entries, err := c.journal.Pending(ctx)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if entry.BookingID == 0 {
			continue
		}
		state, err := c.node.BookingGet(ctx, entry.BookingID)
		if err != nil {
			continue
		}
		if !transitionApplied(entry.Operation, state) {
			continue
		}
		if err := c.journal.Resolve(ctx, entry.PendingRef, JournalConfirmed, "", "settled by reconciliation"); err == nil {
			c.cache.Put(state)
			settled++
		}
	}
	return settled, nil
}

func (c *Controller) submit(ctx context.Context, id uint64, operation string, send func(context.Context) (string, error)) (*Outcome, error) {
	if !c.acquire(id) {
		return nil, ErrTransitionInProgress
	}
	defer c.release(id)

	pendingRef := uuid.NewString()
	if err := c.journal.Begin(ctx, pendingRef, id, operation); err != nil {
		return nil, err
	}
	txHash, err := send(ctx)
	if err != nil {
		return c.settleFailure(ctx, pendingRef, id, err)
	}
	_ = c.journal.Resolve(ctx, pendingRef, JournalConfirmed, txHash, "")
	return c.confirmed(ctx, id, txHash), nil
}

// settleFailure distinguishes a definitive node rejection from a transport
// failure. Only the former resolves the journal row: an unanswered submission
// may still have been applied, so it must stay pending rather than be
// reported as failed.
func (c *Controller) settleFailure(ctx context.Context, pendingRef string, id uint64, err error) (*Outcome, error) {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		_ = c.journal.Resolve(ctx, pendingRef, JournalFailed, "", rpcErr.Message)
		return failedOutcome(pendingRef, rpcErr.Message), nil
	}
	if id != 0 {
		c.cache.Invalidate(id)
	}
	return &Outcome{Status: OutcomeUnknown, PendingRef: pendingRef, Reason: err.Error()}, nil
}

func (c *Controller) confirmed(ctx context.Context, id uint64, txHash string) *Outcome {
	out := &Outcome{Status: OutcomeConfirmed, TxHash: txHash}
	if state, err := c.node.BookingGet(ctx, id); err == nil {
		c.cache.Put(state)
		out.Booking = state
	} else if id != 0 {
		c.cache.Invalidate(id)
	}
	return out
}

func failedOutcome(pendingRef, reason string) *Outcome {
	return &Outcome{Status: OutcomeFailed, PendingRef: pendingRef, Reason: reason}
}

func checkDepositAgainst(snapshot *BookingState, amount *big.Int) string {
	status, err := booking.ParseStatus(snapshot.Status)
	if err != nil {
		return ""
	}
	if status != booking.StatusPending && status != booking.StatusDeposited {
		return fmt.Sprintf("booking is %s; deposits are closed", snapshot.Status)
	}
	total, okTotal := new(big.Int).SetString(snapshot.TotalAmount, 10)
	deposited, okDeposited := new(big.Int).SetString(snapshot.DepositedAmount, 10)
	if !okTotal || !okDeposited {
		return ""
	}
	if err := booking.ValidateDeposit(amount, deposited, total); err != nil {
		return err.Error()
	}
	return ""
}

// transitionApplied reports whether the node state shows the pending
// operation took effect.
func transitionApplied(operation string, state *BookingState) bool {
	status, err := booking.ParseStatus(state.Status)
	if err != nil {
		return false
	}
	switch operation {
	case "deposit":
		deposited, ok := new(big.Int).SetString(state.DepositedAmount, 10)
		return ok && deposited.Sign() > 0
	case "confirm":
		return status == booking.StatusConfirmed || status == booking.StatusCompleted
	case "complete":
		return status == booking.StatusCompleted
	case "cancel":
		return status == booking.StatusCancelled
	default:
		return false
	}
}
