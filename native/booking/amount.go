package booking

import (
	"fmt"
	"math/big"
	"strings"
)

// CELO amounts travel as integer base units (1 CELO = 1e18). Parsing accepts
// either a decimal CELO figure ("5", "0.25") or an explicit base-unit
// shorthand ("5e18"), mirroring the amount handling of the CLI tooling.

const celoDecimals = 18

var celoUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(celoDecimals), nil)

// ParseAmount converts a user-supplied amount string into base units.
func ParseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("booking: amount required")
	}
	if idx := strings.IndexAny(trimmed, "eE"); idx >= 0 {
		mantissa, ok := new(big.Int).SetString(trimmed[:idx], 10)
		if !ok || mantissa.Sign() < 0 {
			return nil, fmt.Errorf("booking: invalid amount %q", raw)
		}
		exp, ok := new(big.Int).SetString(trimmed[idx+1:], 10)
		if !ok || exp.Sign() < 0 || !exp.IsInt64() || exp.Int64() > 76 {
			return nil, fmt.Errorf("booking: invalid amount exponent %q", raw)
		}
		scale := new(big.Int).Exp(big.NewInt(10), exp, nil)
		return mantissa.Mul(mantissa, scale), nil
	}
	whole, frac, hasFrac := strings.Cut(trimmed, ".")
	if whole == "" {
		whole = "0"
	}
	units, ok := new(big.Int).SetString(whole, 10)
	if !ok || units.Sign() < 0 {
		return nil, fmt.Errorf("booking: invalid amount %q", raw)
	}
	units.Mul(units, celoUnit)
	if hasFrac {
		if len(frac) == 0 || len(frac) > celoDecimals {
			return nil, fmt.Errorf("booking: amount precision exceeds %d decimals", celoDecimals)
		}
		fracUnits, ok := new(big.Int).SetString(frac, 10)
		if !ok || fracUnits.Sign() < 0 {
			return nil, fmt.Errorf("booking: invalid amount %q", raw)
		}
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(celoDecimals-len(frac))), nil)
		units.Add(units, fracUnits.Mul(fracUnits, scale))
	}
	return units, nil
}

// FormatAmount renders base units as a decimal CELO string with trailing
// zeros trimmed.
func FormatAmount(v *big.Int) string {
	if v == nil || v.Sign() == 0 {
		return "0"
	}
	units := new(big.Int).Set(v)
	neg := units.Sign() < 0
	units.Abs(units)
	whole, frac := new(big.Int).QuoRem(units, celoUnit, new(big.Int))
	out := whole.String()
	if frac.Sign() > 0 {
		digits := fmt.Sprintf("%0*s", celoDecimals, frac.String())
		digits = strings.TrimRight(digits, "0")
		out += "." + digits
	}
	if neg {
		out = "-" + out
	}
	return out
}
