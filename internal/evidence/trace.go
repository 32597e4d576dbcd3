package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/suspectuso/deposit-verifier/internal/address"
	"github.com/suspectuso/deposit-verifier/internal/amount"
)

const (
	actionJettonMint   = "JettonMint"
	actionContractExec = "SmartContractExec"

	defaultJettonDecimals = 9
	maxTraceDepth         = 32
)

var errInvalidTrace = errors.New("invalid trace")

// TraceAction is one validated entry of an embedded action list.
type TraceAction struct {
	Type     string
	Status   string
	TxHashes []string
	Mint     *MintPayload
}

// MintPayload is the validated body of a JettonMint action.
type MintPayload struct {
	AmountRaw *big.Int
	Decimals  int
	Recipient string
}

// Succeeded treats a missing status as success, matching index output for
// actions without a separate status.
func (a TraceAction) Succeeded() bool {
	switch strings.ToLower(a.Status) {
	case "", "ok", "success", "succeeded":
		return true
	}
	return false
}

// JettonMintSummary is the mint found in a trace together with every
// transaction hash tied to it.
type JettonMintSummary struct {
	AmountRaw *big.Int
	Decimals  int
	Amount    string
	Recipient string
	TxHashes  map[string]struct{}
}

// ParseTrace turns an untrusted chain trace into validated action lists. Every
// JSON object carrying an "actions" array contributes one list, at any depth.
func ParseTrace(raw json.RawMessage) ([][]TraceAction, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidTrace, err)
	}

	var lists [][]TraceAction
	if err := walkTrace(root, 0, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

func walkTrace(node any, depth int, lists *[][]TraceAction) error {
	if depth > maxTraceDepth {
		return fmt.Errorf("%w: nesting deeper than %d", errInvalidTrace, maxTraceDepth)
	}

	switch n := node.(type) {
	case map[string]any:
		if rawActions, ok := n["actions"]; ok && rawActions != nil {
			items, ok := rawActions.([]any)
			if !ok {
				return fmt.Errorf("%w: actions must be an array", errInvalidTrace)
			}
			list := make([]TraceAction, 0, len(items))
			for i, item := range items {
				obj, ok := item.(map[string]any)
				if !ok {
					return fmt.Errorf("%w: actions[%d] must be an object", errInvalidTrace, i)
				}
				action, err := parseAction(obj)
				if err != nil {
					return fmt.Errorf("actions[%d]: %w", i, err)
				}
				list = append(list, action)
			}
			*lists = append(*lists, list)
		}
		keys := make([]string, 0, len(n))
		for key := range n {
			if key != "actions" {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		for _, key := range keys {
			if err := walkTrace(n[key], depth+1, lists); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range n {
			if err := walkTrace(child, depth+1, lists); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseAction(obj map[string]any) (TraceAction, error) {
	var a TraceAction
	var err error

	if a.Type, err = optionalString(obj, "type"); err != nil {
		return TraceAction{}, err
	}
	if a.Status, err = optionalString(obj, "status"); err != nil {
		return TraceAction{}, err
	}

	if v, ok := obj["base_transactions"]; ok && v != nil {
		items, ok := v.([]any)
		if !ok {
			return TraceAction{}, fmt.Errorf("%w: base_transactions must be an array", errInvalidTrace)
		}
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return TraceAction{}, fmt.Errorf("%w: base_transactions entries must be strings", errInvalidTrace)
			}
			a.TxHashes = append(a.TxHashes, s)
		}
	}
	for _, key := range []string{"tx_hash", "hash", "transaction_hash"} {
		s, err := optionalString(obj, key)
		if err != nil {
			return TraceAction{}, err
		}
		if s != "" {
			a.TxHashes = append(a.TxHashes, s)
		}
	}

	if a.Type == actionJettonMint {
		body, ok := obj[actionJettonMint].(map[string]any)
		if !ok {
			return TraceAction{}, fmt.Errorf("%w: JettonMint payload missing", errInvalidTrace)
		}
		mint, err := parseMint(body)
		if err != nil {
			return TraceAction{}, err
		}
		a.Mint = mint
	}

	return a, nil
}

func parseMint(body map[string]any) (*MintPayload, error) {
	m := &MintPayload{Decimals: defaultJettonDecimals}

	var rawAmount string
	switch v := body["amount"].(type) {
	case string:
		rawAmount = strings.TrimSpace(v)
	case json.Number:
		rawAmount = v.String()
	default:
		return nil, fmt.Errorf("%w: JettonMint amount missing", errInvalidTrace)
	}
	amt, ok := new(big.Int).SetString(rawAmount, 10)
	if !ok || amt.Sign() < 0 {
		return nil, fmt.Errorf("%w: JettonMint amount %q is not a non-negative integer", errInvalidTrace, rawAmount)
	}
	m.AmountRaw = amt

	if jetton, ok := body["jetton"].(map[string]any); ok {
		if v, present := jetton["decimals"]; present && v != nil {
			d, err := smallInt(v)
			if err != nil || d < 0 || d > amount.MaxDecimals {
				return nil, fmt.Errorf("%w: jetton decimals out of range", errInvalidTrace)
			}
			m.Decimals = d
		}
	}

	switch r := body["recipient"].(type) {
	case string:
		m.Recipient = r
	case map[string]any:
		if s, ok := r["address"].(string); ok {
			m.Recipient = s
		}
	}

	return m, nil
}

func optionalString(obj map[string]any, key string) (string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", errInvalidTrace, key)
	}
	return s, nil
}

func smallInt(v any) (int, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	}
	return 0, fmt.Errorf("not a number")
}

// SummarizeMint finds the first successful mint in any action list and
// collects hashes from it and from contract executions preceding it in the
// same list. It returns nil when the trace holds no successful mint.
func SummarizeMint(lists [][]TraceAction) (*JettonMintSummary, error) {
	for _, list := range lists {
		for i, a := range list {
			if a.Type != actionJettonMint || a.Mint == nil || !a.Succeeded() {
				continue
			}

			human, err := amount.FromScaled(a.Mint.AmountRaw, a.Mint.Decimals)
			if err != nil {
				return nil, err
			}
			s := &JettonMintSummary{
				AmountRaw: a.Mint.AmountRaw,
				Decimals:  a.Mint.Decimals,
				Amount:    human,
				Recipient: a.Mint.Recipient,
				TxHashes:  make(map[string]struct{}),
			}
			for _, h := range a.TxHashes {
				s.TxHashes[normalizeHash(h)] = struct{}{}
			}
			for _, prev := range list[:i] {
				if prev.Type != actionContractExec {
					continue
				}
				for _, h := range prev.TxHashes {
					s.TxHashes[normalizeHash(h)] = struct{}{}
				}
			}
			delete(s.TxHashes, "")
			return s, nil
		}
	}
	return nil, nil
}

// TraceMatcher verifies a claim against an embedded mint trace.
type TraceMatcher struct{}

func (TraceMatcher) Verify(_ context.Context, in Input) (Outcome, error) {
	if !hasTrace(in.Trace) {
		return Outcome{Status: StatusNoEvidence, Strategy: StrategyTrace}, nil
	}

	lists, err := ParseTrace(in.Trace)
	if err != nil {
		return Outcome{Strategy: StrategyTrace}, mismatch(CheckInvalidTrace, "%v", err)
	}
	summary, err := SummarizeMint(lists)
	if err != nil {
		return Outcome{Strategy: StrategyTrace}, mismatch(CheckInvalidTrace, "%v", err)
	}
	if summary == nil {
		return Outcome{Status: StatusNoEvidence, Strategy: StrategyTrace}, nil
	}

	claimed, err := amount.ToScaledExact(in.Event.DCTAmount, summary.Decimals)
	if err != nil {
		return Outcome{Strategy: StrategyTrace}, mismatch(CheckAmountMismatch, "claimed %s not representable at %d decimals", in.Event.DCTAmount, summary.Decimals)
	}
	if claimed.Cmp(summary.AmountRaw) != 0 {
		return Outcome{Strategy: StrategyTrace}, mismatch(CheckAmountMismatch, "minted %s, claimed %s", summary.Amount, in.Event.DCTAmount)
	}

	want := normalizeHash(in.Event.TonTxHash)
	if _, ok := summary.TxHashes[want]; !ok {
		return Outcome{Strategy: StrategyTrace}, mismatch(CheckTransactionMismatch, "tx %s not part of the mint trace", in.Event.TonTxHash)
	}

	out := Outcome{
		Status:        StatusVerified,
		Strategy:      StrategyTrace,
		TxHash:        want,
		OnChainAmount: summary.Amount,
	}
	if recipient, err := address.Normalize(summary.Recipient); err == nil {
		out.OnChainInvestor = recipient
	}
	return out, nil
}
