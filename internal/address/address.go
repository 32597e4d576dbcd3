// Package address canonicalizes TON account identifiers so that a claimed
// investor can be compared with addresses observed on-chain.
package address

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tonkeeper/tongo/ton"
)

// ErrInvalidAddress is returned for empty or unparsable account identifiers.
var ErrInvalidAddress = errors.New("invalid address")

// Normalize converts a raw (0:...) or user-friendly (EQ.../UQ...) address into
// the canonical raw form, uppercased.
func Normalize(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	acc, err := ton.ParseAccountID(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, addr, err)
	}

	return strings.ToUpper(acc.ToRaw()), nil
}

// Equal reports whether two identifiers refer to the same account.
// Unparsable input never compares equal.
func Equal(a, b string) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return na == nb
}

// Friendly converts an address to bounceable user-friendly form for display.
// Unparsable input is returned unchanged.
func Friendly(addr string) string {
	acc, err := ton.ParseAccountID(strings.TrimSpace(addr))
	if err != nil {
		return addr
	}
	return acc.ToHuman(true, false)
}

// Short returns a shortened address for display
func Short(addr string, n int) string {
	if addr == "" {
		return "unknown"
	}
	if len(addr) < n*2+3 {
		return addr
	}
	return addr[:n] + "..." + addr[len(addr)-n:]
}
