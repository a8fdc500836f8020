package booking

import (
	"math/big"
)

// secondsPerNight is the length of one chargeable night.
const secondsPerNight = 86_400

// ComputeNights returns the number of chargeable nights between check-in and
// check-out, rounding any partial night up. A range where check-out is not
// strictly after check-in is rejected.
func ComputeNights(checkIn, checkOut int64) (uint64, error) {
	if checkOut <= checkIn {
		return 0, ErrInvalidDateRange
	}
	span := checkOut - checkIn
	nights := span / secondsPerNight
	if span%secondsPerNight != 0 {
		nights++
	}
	return uint64(nights), nil
}

// ComputeTotal returns nights x pricePerNight in base units. Negative prices
// are rejected; a nil price is treated as zero and rejected with the total.
func ComputeTotal(nights uint64, pricePerNight *big.Int) (*big.Int, error) {
	if pricePerNight == nil || pricePerNight.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	total := new(big.Int).Mul(new(big.Int).SetUint64(nights), pricePerNight)
	if total.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return total, nil
}

// ValidateDeposit reports whether a deposit of amount against the remaining
// headroom of total is legal: strictly positive and never pushing the
// cumulative deposit past the total.
func ValidateDeposit(amount, deposited, total *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if total == nil || total.Sign() <= 0 {
		return ErrInvalidAmount
	}
	cumulative := new(big.Int).Set(amount)
	if deposited != nil {
		cumulative.Add(cumulative, deposited)
	}
	if cumulative.Cmp(total) > 0 {
		return ErrOverDeposit
	}
	return nil
}

// CanCancel reports whether a cancellation is still permitted: the booking
// must not be terminal and the stay must not have started.
func CanCancel(status Status, checkIn, now int64) bool {
	if status.Terminal() {
		return false
	}
	return checkIn > now
}

// CancellationFee returns the fee withheld from a refund of deposited at
// feeBps basis points, flooring the division, together with the amount
// returned to the guest.
func CancellationFee(deposited *big.Int, feeBps uint32) (fee, refund *big.Int) {
	amount := new(big.Int)
	if deposited != nil && deposited.Sign() > 0 {
		amount.Set(deposited)
	}
	fee = new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(feeBps)))
	fee.Div(fee, big.NewInt(10_000))
	refund = new(big.Int).Sub(amount, fee)
	return fee, refund
}
