package utils

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Decimal amount errors
var (
	ErrInvalidDecimal    = errors.New("invalid decimal amount")
	ErrPrecisionExceeded = errors.New("amount has more fractional digits than the token supports")
)

// plain decimal notation only: no sign, exponent, hex or fraction syntax
var decimalPattern = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)

// ParseDecimal parses a human decimal string into an exact rational.
func ParseDecimal(amount string) (*big.Rat, error) {
	s := strings.TrimSpace(amount)
	if !decimalPattern.MatchString(s) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, amount)
	}
	s = strings.TrimSuffix(s, ".")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, amount)
	}
	return r, nil
}

// ParseUnits scales a human decimal string to integer base units without
// going through floating point. "1.5" with 6 decimals is 1500000.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if !decimalPattern.MatchString(s) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, amount)
	}

	whole, frac, _ := strings.Cut(s, ".")
	frac = strings.TrimRight(frac, "0")
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: %q has %d fractional digits, max %d", ErrPrecisionExceeded, amount, len(frac), decimals)
	}
	if whole == "" {
		whole = "0"
	}

	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	units, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, amount)
	}
	return units, nil
}

// FormatUnits renders integer base units as a decimal string with trailing zeros trimmed.
func FormatUnits(units *big.Int, decimals uint8) string {
	if units == nil {
		return "0"
	}
	neg := units.Sign() < 0
	digits := new(big.Int).Abs(units).String()
	d := int(decimals)
	if len(digits) <= d {
		digits = strings.Repeat("0", d-len(digits)+1) + digits
	}
	whole, frac := digits[:len(digits)-d], strings.TrimRight(digits[len(digits)-d:], "0")
	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// RatString renders an exact rational with at most prec fractional digits, trailing zeros trimmed.
func RatString(r *big.Rat, prec int) string {
	if r == nil {
		return "0"
	}
	s := r.FloatString(prec)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}

// Min returns the smaller of a or b
func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
