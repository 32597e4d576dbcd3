package evidence

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/suspectuso/deposit-verifier/internal/address"
	"github.com/suspectuso/deposit-verifier/internal/amount"
	"github.com/suspectuso/deposit-verifier/internal/metrics"
	"github.com/suspectuso/deposit-verifier/internal/tonapi"
)

const (
	nanoDecimals     = 9
	defaultTimeout   = 10 * time.Second
	msTimestampFloor = 1_000_000_000_000
)

var (
	minTolerance = big.NewRat(5, 100)
	relTolerance = big.NewRat(2, 100)

	seqnoOnly  = regexp.MustCompile(`^\d+$`)
	blockTuple = regexp.MustCompile(`^\(?\s*-?\d+\s*[,:]\s*-?[0-9a-fA-F]+\s*[,:]\s*(\d+)\s*\)?$`)
)

// TransactionFetcher is the chain index capability the index matcher needs.
type TransactionFetcher interface {
	GetTransaction(ctx context.Context, txHash string) (*tonapi.Transaction, error)
}

// IndexMatcher verifies a claim by looking the transaction up in a chain index.
type IndexMatcher struct {
	Fetcher TransactionFetcher
	Timeout time.Duration
	Metrics *metrics.Metrics
}

func (m *IndexMatcher) Verify(ctx context.Context, in Input) (Outcome, error) {
	tx, err := m.fetch(ctx, in.Event.TonTxHash)
	if err != nil {
		return Outcome{Strategy: StrategyIndex}, err
	}

	if tx.Success != nil && !*tx.Success {
		return Outcome{Strategy: StrategyIndex}, mismatch(CheckTransactionMismatch, "transaction %s did not succeed", in.Event.TonTxHash)
	}

	if !referencesAddress(tx, in.Event.InvestorKey) {
		return Outcome{Strategy: StrategyIndex}, mismatch(CheckInvestorMismatch, "investor %s not referenced by transaction", address.Short(in.Event.InvestorKey, 6))
	}

	fx := in.Event.FX()
	if fx.Sign() <= 0 {
		return Outcome{Strategy: StrategyIndex}, mismatch(CheckAmountBelowThreshold, "fx rate %q is not positive", in.Event.FXRate)
	}
	derived := DeriveNativeAmount(tx)
	expected := new(big.Rat).Quo(in.Event.USDT(), fx)
	lower := LowerBound(expected)
	if derived == nil || derived.Cmp(lower) < 0 {
		got := "none"
		if derived != nil {
			got = amount.Canonical(derived)
		}
		return Outcome{Strategy: StrategyIndex}, mismatch(CheckAmountBelowThreshold, "on-chain amount %s below minimum %s", got, lower.FloatString(9))
	}

	claimedSeqno, claimedOK := ParseBlockSeqno(in.Proof.BlockID)
	txSeqno, txOK := transactionSeqno(tx)
	if claimedOK && txOK && claimedSeqno != txSeqno {
		return Outcome{Strategy: StrategyIndex}, mismatch(CheckBlockMismatch, "proof block %d, transaction block %d", claimedSeqno, txSeqno)
	}

	out := Outcome{
		Status:          StatusVerified,
		Strategy:        StrategyIndex,
		TxHash:          normalizeHash(firstNonEmpty(tx.Hash, in.Event.TonTxHash)),
		OnChainInvestor: in.Event.InvestorKey,
		OnChainAmount:   amount.Canonical(derived),
		Timestamp:       transactionTime(tx),
	}
	switch {
	case txOK:
		out.BlockSeqno = &txSeqno
	case claimedOK:
		out.BlockSeqno = &claimedSeqno
	}
	return out, nil
}

func (m *IndexMatcher) fetch(ctx context.Context, txHash string) (*tonapi.Transaction, error) {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	tx, err := m.Fetcher.GetTransaction(ctx, txHash)

	switch {
	case err == nil:
		m.Metrics.ObserveIndexLookup(time.Since(start), "ok")
		return tx, nil
	case errors.Is(err, tonapi.ErrNotFound):
		m.Metrics.ObserveIndexLookup(time.Since(start), "not_found")
		return nil, mismatch(CheckTransactionNotFound, "chain index has no transaction %s", txHash)
	case errors.Is(err, context.DeadlineExceeded):
		m.Metrics.ObserveIndexLookup(time.Since(start), "timeout")
		return nil, &UnavailableError{
			Hint: fmt.Sprintf("chain index did not answer within %s; retry delivery later", timeout),
			Err:  err,
		}
	default:
		m.Metrics.ObserveIndexLookup(time.Since(start), "error")
		return nil, &UnavailableError{
			Hint: "chain index unreachable; retry delivery later",
			Err:  err,
		}
	}
}

func referencesAddress(tx *tonapi.Transaction, investor string) bool {
	for _, a := range tx.Addresses() {
		if address.Equal(a, investor) {
			return true
		}
	}
	return false
}

// DeriveNativeAmount returns the largest value field of the transaction in
// whole coins. Integer values are taken to be nanoton.
func DeriveNativeAmount(tx *tonapi.Transaction) *big.Rat {
	var best *big.Rat
	for _, v := range tx.Values() {
		r := nativeValue(v.String())
		if r == nil {
			continue
		}
		if best == nil || r.Cmp(best) > 0 {
			best = r
		}
	}
	return best
}

func nativeValue(s string) *big.Rat {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if seqnoOnly.MatchString(s) {
		raw, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil
		}
		return amount.Rat(raw, nanoDecimals)
	}
	r, err := amount.Parse(s)
	if err != nil || r.Sign() < 0 {
		return nil
	}
	return r
}

// LowerBound is expected minus max(0.05, 2% of expected).
func LowerBound(expected *big.Rat) *big.Rat {
	tol := new(big.Rat).Mul(expected, relTolerance)
	if tol.Cmp(minTolerance) < 0 {
		tol.Set(minTolerance)
	}
	return new(big.Rat).Sub(expected, tol)
}

// ParseBlockSeqno reads a block sequence number from "(wc,shard,seqno)",
// "wc:shard:seqno" or a bare integer.
func ParseBlockSeqno(blockID string) (uint64, bool) {
	blockID = strings.TrimSpace(blockID)
	if blockID == "" {
		return 0, false
	}
	s := blockID
	if !seqnoOnly.MatchString(blockID) {
		m := blockTuple.FindStringSubmatch(blockID)
		if m == nil {
			return 0, false
		}
		s = m[1]
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func transactionSeqno(tx *tonapi.Transaction) (uint64, bool) {
	if n, ok := ParseBlockSeqno(tx.Block); ok {
		return n, true
	}
	return ParseBlockSeqno(tx.McBlockSeqno.String())
}

func transactionTime(tx *tonapi.Transaction) *time.Time {
	for _, v := range []tonapi.Value{tx.Utime, tx.Now} {
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		var ts time.Time
		if n >= msTimestampFloor {
			ts = time.UnixMilli(n).UTC()
		} else {
			ts = time.Unix(n, 0).UTC()
		}
		return &ts
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
