// Package amount converts between human decimal amounts and the scaled
// integers used on-chain without going through binary floating point.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// MaxDecimals is the largest supported token precision.
const MaxDecimals = 18

// Literal bounds. Anything larger is not a plausible amount.
const (
	MaxDigits   = 64
	MaxExponent = 64
)

// non-terminating expansions are cut at this many fractional digits
const maxRepeatingDigits = 36

var (
	ErrInvalidDecimal = errors.New("invalid decimal")
	ErrNotFinite      = errors.New("value is not finite")
	ErrPrecision      = errors.New("decimals out of range")
	ErrInexact        = errors.New("value has more fractional digits than precision allows")
	ErrOutOfRange     = errors.New("value out of range")
)

var (
	decimalRe  = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE]([+-]?\d+))?$`)
	nonFinites = []string{"nan", "inf", "infinity"}
)

// Parse parses a plain decimal literal (optionally with an exponent). Literals
// with more than MaxDigits digits or an exponent beyond ±MaxExponent are
// rejected.
func Parse(value string) (*big.Rat, error) {
	value = strings.TrimSpace(value)
	m := decimalRe.FindStringSubmatch(value)
	if m == nil {
		bare := strings.ToLower(strings.TrimLeft(value, "+-"))
		for _, nf := range nonFinites {
			if bare == nf {
				return nil, fmt.Errorf("%w: %q", ErrNotFinite, value)
			}
		}
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, value)
	}
	if digits := len(m[1]) - strings.Count(m[1], "."); digits > MaxDigits {
		return nil, fmt.Errorf("%w: %d digits", ErrOutOfRange, digits)
	}
	if m[3] != "" {
		exp, err := strconv.Atoi(m[3])
		if err != nil || exp > MaxExponent || exp < -MaxExponent {
			return nil, fmt.Errorf("%w: exponent %s", ErrOutOfRange, m[3])
		}
	}
	r, ok := new(big.Rat).SetString(value)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, value)
	}
	return r, nil
}

// ParsePositive parses value and requires it to be strictly greater than zero.
func ParsePositive(value string) (*big.Rat, error) {
	r, err := Parse(value)
	if err != nil {
		return nil, err
	}
	if r.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q must be > 0", ErrInvalidDecimal, value)
	}
	return r, nil
}

// Pow10 returns 10^n.
func Pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// ToScaled renders value with exactly decimals fractional digits (rounding
// halves away from zero) and reads the concatenated digits as an integer.
func ToScaled(value string, decimals int) (*big.Int, error) {
	if err := checkPrecision(decimals); err != nil {
		return nil, err
	}
	r, err := Parse(value)
	if err != nil {
		return nil, err
	}
	return scale(r, decimals)
}

// ToScaledExact is ToScaled but refuses values that would need rounding.
func ToScaledExact(value string, decimals int) (*big.Int, error) {
	if err := checkPrecision(decimals); err != nil {
		return nil, err
	}
	r, err := Parse(value)
	if err != nil {
		return nil, err
	}
	scaled, err := scale(r, decimals)
	if err != nil {
		return nil, err
	}
	if new(big.Rat).SetFrac(scaled, Pow10(decimals)).Cmp(r) != 0 {
		return nil, fmt.Errorf("%w: %q at %d decimals", ErrInexact, value, decimals)
	}
	return scaled, nil
}

// FromScaled renders raw / 10^decimals as "whole.fraction" with trailing
// zeros trimmed.
func FromScaled(raw *big.Int, decimals int) (string, error) {
	if err := checkPrecision(decimals); err != nil {
		return "", err
	}
	if raw == nil {
		return "", fmt.Errorf("%w: nil amount", ErrInvalidDecimal)
	}

	abs := new(big.Int).Abs(raw)
	whole, frac := new(big.Int).QuoRem(abs, Pow10(decimals), new(big.Int))

	sign := ""
	if raw.Sign() < 0 {
		sign = "-"
	}

	if decimals == 0 || frac.Sign() == 0 {
		return sign + whole.String(), nil
	}

	fracStr := frac.String()
	fracStr = strings.Repeat("0", decimals-len(fracStr)) + fracStr
	fracStr = strings.TrimRight(fracStr, "0")

	return sign + whole.String() + "." + fracStr, nil
}

// Rat returns raw / 10^decimals as an exact rational.
func Rat(raw *big.Int, decimals int) *big.Rat {
	return new(big.Rat).SetFrac(raw, Pow10(decimals))
}

// Canonical renders r as the shortest exact decimal string. Terminating
// expansions are always exact; others are cut at 36 fractional digits.
func Canonical(r *big.Rat) string {
	if k, ok := fractionDigits(r.Denom()); ok {
		return r.FloatString(k)
	}
	return strings.TrimSuffix(strings.TrimRight(r.FloatString(maxRepeatingDigits), "0"), ".")
}

// fractionDigits reports how many fractional digits a reduced fraction with
// denominator d needs, or false when d has a prime factor other than 2 and 5.
func fractionDigits(d *big.Int) (int, bool) {
	rest := new(big.Int).Set(d)
	twos := int(rest.TrailingZeroBits())
	rest.Rsh(rest, uint(twos))

	five := big.NewInt(5)
	var fives int
	q, m := new(big.Int), new(big.Int)
	for {
		q.QuoRem(rest, five, m)
		if m.Sign() != 0 {
			break
		}
		rest.Set(q)
		fives++
	}
	if rest.Cmp(big.NewInt(1)) != 0 {
		return 0, false
	}
	return max(twos, fives), true
}

func scale(r *big.Rat, decimals int) (*big.Int, error) {
	s := r.FloatString(decimals)
	whole, frac, _ := strings.Cut(s, ".")
	out, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
	}
	return out, nil
}

func checkPrecision(decimals int) error {
	if decimals < 0 || decimals > MaxDecimals {
		return fmt.Errorf("%w: %d", ErrPrecision, decimals)
	}
	return nil
}
