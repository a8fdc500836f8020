// Package bookingdb persists the booking engine state in a BoltDB file:
// booking records, account balances, per-booking escrow holdings and the
// monotonic identifier counter.
package bookingdb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	bolt "go.etcd.io/bbolt"

	"ubook/native/booking"
)

var (
	bucketBookings = []byte("bookings")
	bucketBalances = []byte("balances")
	bucketEscrow   = []byte("escrow")
	bucketMeta     = []byte("meta")

	keyNextBookingID = []byte("nextBookingId")
)

// vaultAddress is the module account holding escrowed deposits. It has no
// corresponding key; funds only leave it through engine transitions.
var vaultAddress = common.HexToAddress("0x000000000000000000000000000000000000b00c")

// Store is a bbolt-backed implementation of the engine state surface.
type Store struct {
	db *bolt.DB
}

// storedBooking is the JSON shape persisted per record. Amounts travel as
// decimal strings to stay integer-exact.
type storedBooking struct {
	ID              uint64 `json:"id"`
	Guest           string `json:"guest"`
	AccommodationID string `json:"accommodationId"`
	CheckIn         int64  `json:"checkIn"`
	CheckOut        int64  `json:"checkOut"`
	TotalAmount     string `json:"totalAmount"`
	DepositedAmount string `json:"depositedAmount"`
	Status          string `json:"status"`
	CreatedAt       int64  `json:"createdAt"`
	CancelReason    string `json:"cancelReason,omitempty"`
}

// Open initialises (and migrates) the store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketBookings, bucketBalances, bucketEscrow, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if meta.Get(keyNextBookingID) == nil {
			return meta.Put(keyNextBookingID, encodeUint64(1))
		}
		return nil
	})
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// SeedBalance credits an account at first open. Used to apply genesis
// balances from configuration; existing balances are left alone.
func (s *Store) SeedBalance(addr common.Address, balance *big.Int) error {
	if balance == nil || balance.Sign() <= 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketBalances)
		if bucket.Get(addr.Bytes()) != nil {
			return nil
		}
		return bucket.Put(addr.Bytes(), []byte(balance.String()))
	})
}

// BookingPut sanitizes and persists the record.
func (s *Store) BookingPut(b *booking.Booking) error {
	sanitized, err := booking.Sanitize(b)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(encodeBooking(sanitized))
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBookings).Put(encodeUint64(sanitized.ID), payload)
	})
}

// BookingGet returns a copy of the stored record, or false when absent.
func (s *Store) BookingGet(id uint64) (*booking.Booking, bool) {
	var out *booking.Booking
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketBookings).Get(encodeUint64(id))
		if raw == nil {
			return nil
		}
		decoded, err := decodeBooking(raw)
		if err != nil {
			return err
		}
		out = decoded
		return nil
	})
	if err != nil || out == nil {
		return nil, false
	}
	return out, true
}

// BookingsByGuest returns all records created by the supplied guest ordered
// by ascending identifier (creation order).
func (s *Store) BookingsByGuest(guest common.Address) ([]*booking.Booking, error) {
	var out []*booking.Booking
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBookings).ForEach(func(_, raw []byte) error {
			decoded, err := decodeBooking(raw)
			if err != nil {
				return err
			}
			if decoded.Guest == guest {
				out = append(out, decoded)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AllocateBookingID consumes and returns the next identifier.
func (s *Store) AllocateBookingID() (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		id = decodeUint64(meta.Get(keyNextBookingID))
		if id == 0 {
			id = 1
		}
		return meta.Put(keyNextBookingID, encodeUint64(id+1))
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// NextBookingID reports the identifier the next booking will receive without
// consuming it.
func (s *Store) NextBookingID() uint64 {
	var id uint64
	_ = s.db.View(func(tx *bolt.Tx) error {
		id = decodeUint64(tx.Bucket(bucketMeta).Get(keyNextBookingID))
		return nil
	})
	if id == 0 {
		id = 1
	}
	return id
}

// BalanceGet returns the account balance, zero when the account is unknown.
func (s *Store) BalanceGet(addr common.Address) (*big.Int, error) {
	balance := big.NewInt(0)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketBalances).Get(addr.Bytes())
		if raw == nil {
			return nil
		}
		parsed, ok := new(big.Int).SetString(string(raw), 10)
		if !ok {
			return fmt.Errorf("bookingdb: corrupt balance for %s", addr.Hex())
		}
		balance = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// BalanceSet overwrites the account balance.
func (s *Store) BalanceSet(addr common.Address, balance *big.Int) error {
	if balance == nil || balance.Sign() < 0 {
		return fmt.Errorf("bookingdb: balance must be non-negative")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBalances).Put(addr.Bytes(), []byte(balance.String()))
	})
}

// EscrowCredit increases the escrow holding tracked for a booking.
func (s *Store) EscrowCredit(id uint64, amount *big.Int) error {
	return s.adjustEscrow(id, amount, false)
}

// EscrowDebit decreases the escrow holding tracked for a booking. Debiting
// below zero is a custody fault and is rejected.
func (s *Store) EscrowDebit(id uint64, amount *big.Int) error {
	return s.adjustEscrow(id, amount, true)
}

func (s *Store) adjustEscrow(id uint64, amount *big.Int, debit bool) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bookingdb: escrow adjustment must be non-negative")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketEscrow)
		key := encodeUint64(id)
		current := big.NewInt(0)
		if raw := bucket.Get(key); raw != nil {
			parsed, ok := new(big.Int).SetString(string(raw), 10)
			if !ok {
				return fmt.Errorf("bookingdb: corrupt escrow balance for booking %d", id)
			}
			current = parsed
		}
		if debit {
			if current.Cmp(amount) < 0 {
				return fmt.Errorf("bookingdb: escrow underflow for booking %d", id)
			}
			current.Sub(current, amount)
		} else {
			current.Add(current, amount)
		}
		return bucket.Put(key, []byte(current.String()))
	})
}

// EscrowBalance returns the escrow holding tracked for a booking.
func (s *Store) EscrowBalance(id uint64) (*big.Int, error) {
	balance := big.NewInt(0)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketEscrow).Get(encodeUint64(id))
		if raw == nil {
			return nil
		}
		parsed, ok := new(big.Int).SetString(string(raw), 10)
		if !ok {
			return fmt.Errorf("bookingdb: corrupt escrow balance for booking %d", id)
		}
		balance = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// VaultAddress returns the module account deposits are escrowed under.
func (s *Store) VaultAddress() common.Address { return vaultAddress }

func encodeBooking(b *booking.Booking) storedBooking {
	return storedBooking{
		ID:              b.ID,
		Guest:           b.Guest.Hex(),
		AccommodationID: b.AccommodationID,
		CheckIn:         b.CheckIn,
		CheckOut:        b.CheckOut,
		TotalAmount:     b.TotalAmount.String(),
		DepositedAmount: b.DepositedAmount.String(),
		Status:          b.Status.String(),
		CreatedAt:       b.CreatedAt,
		CancelReason:    b.CancelReason,
	}
}

func decodeBooking(raw []byte) (*booking.Booking, error) {
	var stored storedBooking
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	status, err := booking.ParseStatus(stored.Status)
	if err != nil {
		return nil, err
	}
	total, ok := new(big.Int).SetString(stored.TotalAmount, 10)
	if !ok {
		return nil, fmt.Errorf("bookingdb: corrupt total for booking %d", stored.ID)
	}
	deposited, ok := new(big.Int).SetString(stored.DepositedAmount, 10)
	if !ok {
		return nil, fmt.Errorf("bookingdb: corrupt deposit for booking %d", stored.ID)
	}
	return &booking.Booking{
		ID:              stored.ID,
		Guest:           common.HexToAddress(stored.Guest),
		AccommodationID: stored.AccommodationID,
		CheckIn:         stored.CheckIn,
		CheckOut:        stored.CheckOut,
		TotalAmount:     total,
		DepositedAmount: deposited,
		Status:          status,
		CreatedAt:       stored.CreatedAt,
		CancelReason:    stored.CancelReason,
	}, nil
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(raw []byte) uint64 {
	if len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}
