package booking

import (
	"errors"
	"math/big"
	"testing"
)

func TestComputeNights(t *testing.T) {
	cases := []struct {
		name     string
		checkIn  int64
		checkOut int64
		want     uint64
		wantErr  bool
	}{
		{name: "exact three nights", checkIn: 0, checkOut: 3 * 86400, want: 3},
		{name: "partial night rounds up", checkIn: 0, checkOut: 86400 + 3600, want: 2},
		{name: "single second counts as one night", checkIn: 100, checkOut: 101, want: 1},
		{name: "equal timestamps rejected", checkIn: 500, checkOut: 500, wantErr: true},
		{name: "inverted range rejected", checkIn: 500, checkOut: 400, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ComputeNights(tc.checkIn, tc.checkOut)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidDateRange) {
					t.Fatalf("expected ErrInvalidDateRange, got %v", err)
				}
				if got != 0 {
					t.Fatalf("invalid range returned %d nights", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("nights = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestComputeTotal(t *testing.T) {
	total, err := ComputeTotal(3, celo(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total.Cmp(celo(15)) != 0 {
		t.Fatalf("total = %s, want 15 CELO", total)
	}
	if _, err := ComputeTotal(3, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative price, got %v", err)
	}
	if _, err := ComputeTotal(0, celo(5)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero nights, got %v", err)
	}
	if _, err := ComputeTotal(3, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil price, got %v", err)
	}
}

func TestValidateDeposit(t *testing.T) {
	total := celo(15)
	if err := ValidateDeposit(celo(15), big.NewInt(0), total); err != nil {
		t.Fatalf("full deposit rejected: %v", err)
	}
	if err := ValidateDeposit(celo(5), celo(10), total); err != nil {
		t.Fatalf("topping up to total rejected: %v", err)
	}
	if err := ValidateDeposit(big.NewInt(0), big.NewInt(0), total); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero deposit: got %v", err)
	}
	if err := ValidateDeposit(big.NewInt(-1), big.NewInt(0), total); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative deposit: got %v", err)
	}
	if err := ValidateDeposit(celo(20), big.NewInt(0), total); !errors.Is(err, ErrOverDeposit) {
		t.Fatalf("expected ErrOverDeposit, got %v", err)
	}
	if err := ValidateDeposit(celo(6), celo(10), total); !errors.Is(err, ErrOverDeposit) {
		t.Fatalf("expected ErrOverDeposit on cumulative overflow, got %v", err)
	}
}

func TestCanCancel(t *testing.T) {
	now := int64(1_700_000_000)
	future := now + 86400
	past := now - 86400

	for _, status := range []Status{StatusPending, StatusDeposited, StatusConfirmed} {
		if !CanCancel(status, future, now) {
			t.Fatalf("cancel of %s before check-in should be allowed", status)
		}
		if CanCancel(status, past, now) {
			t.Fatalf("cancel of %s after check-in should be blocked", status)
		}
	}
	// Check-in exactly now counts as started.
	if CanCancel(StatusPending, now, now) {
		t.Fatalf("cancel at check-in instant should be blocked")
	}
	for _, status := range []Status{StatusCompleted, StatusCancelled} {
		if CanCancel(status, future, now) {
			t.Fatalf("cancel of terminal %s should be blocked", status)
		}
	}
}

func TestCancellationFeeFloors(t *testing.T) {
	// 5 CELO at 500 bps: fee 0.25 CELO, refund 4.75 CELO.
	fee, refund := CancellationFee(celo(5), 500)
	wantFee, _ := new(big.Int).SetString("250000000000000000", 10)
	if fee.Cmp(wantFee) != 0 {
		t.Fatalf("fee = %s, want %s", fee, wantFee)
	}
	if new(big.Int).Add(fee, refund).Cmp(celo(5)) != 0 {
		t.Fatalf("fee + refund != deposited")
	}

	// Division floors: 3 wei at 500 bps withholds nothing.
	fee, refund = CancellationFee(big.NewInt(3), 500)
	if fee.Sign() != 0 || refund.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("dust fee = %s refund = %s", fee, refund)
	}

	fee, refund = CancellationFee(nil, 500)
	if fee.Sign() != 0 || refund.Sign() != 0 {
		t.Fatalf("nil deposit produced fee=%s refund=%s", fee, refund)
	}
}
