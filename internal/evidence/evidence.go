// Package evidence cross-checks allocator deposit claims against on-chain
// data. Two strategies exist: matching an embedded mint trace, and looking the
// transaction up in a chain index.
package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/suspectuso/deposit-verifier/internal/deposit"
)

// Strategy names, as recorded with each verified deposit.
const (
	StrategyTrace = "trace"
	StrategyIndex = "index"
)

// Mismatch checks.
const (
	CheckAmountMismatch       = "amount_mismatch"
	CheckTransactionMismatch  = "transaction_mismatch"
	CheckInvestorMismatch     = "investor_mismatch"
	CheckAmountBelowThreshold = "amount_below_threshold"
	CheckBlockMismatch        = "block_mismatch"
	CheckTransactionNotFound  = "transaction_not_found"
	CheckInvalidTrace         = "invalid_trace"
)

type Status int

const (
	// StatusNoEvidence means nothing relevant was found; it is not a rejection.
	StatusNoEvidence Status = iota
	StatusVerified
)

func (s Status) String() string {
	if s == StatusVerified {
		return "verified"
	}
	return "no_evidence"
}

// Input is what a Verifier checks.
type Input struct {
	Event deposit.Event
	Proof deposit.Proof
	Trace json.RawMessage
}

// Outcome carries the verdict and whatever on-chain facts were established.
type Outcome struct {
	Status          Status
	Strategy        string
	TxHash          string
	OnChainInvestor string
	OnChainAmount   string
	BlockSeqno      *uint64
	Timestamp       *time.Time
}

// Verifier checks a deposit claim against on-chain evidence. A rejected claim
// is reported as *MismatchError, an unreachable evidence source as
// *UnavailableError.
type Verifier interface {
	Verify(ctx context.Context, in Input) (Outcome, error)
}

// MismatchError means evidence exists and contradicts the claim.
type MismatchError struct {
	Check  string
	Detail string
}

func (e *MismatchError) Error() string {
	if e.Detail == "" {
		return "evidence mismatch: " + e.Check
	}
	return fmt.Sprintf("evidence mismatch: %s: %s", e.Check, e.Detail)
}

func mismatch(check, format string, args ...any) error {
	return &MismatchError{Check: check, Detail: fmt.Sprintf(format, args...)}
}

// UnavailableError means evidence could not be obtained at all.
type UnavailableError struct {
	Hint string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("evidence unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Auto tries the trace matcher when a trace was supplied and falls back to
// the index matcher when the trace holds no evidence. Either may be nil to
// disable that strategy.
type Auto struct {
	Trace Verifier
	Index Verifier
}

func (a Auto) Verify(ctx context.Context, in Input) (Outcome, error) {
	if hasTrace(in.Trace) && a.Trace != nil {
		out, err := a.Trace.Verify(ctx, in)
		if err != nil || out.Status != StatusNoEvidence {
			return out, err
		}
	}
	if a.Index != nil {
		return a.Index.Verify(ctx, in)
	}
	return Outcome{Status: StatusNoEvidence}, nil
}

func hasTrace(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// normalizeHash lowercases a hex hash and drops any 0x prefix.
func normalizeHash(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.TrimPrefix(h, "0x")
}
