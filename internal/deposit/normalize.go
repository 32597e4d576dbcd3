package deposit

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/suspectuso/deposit-verifier/internal/address"
	"github.com/suspectuso/deposit-verifier/internal/amount"
)

// Normalize validates an untrusted event object. No partial event is ever
// returned alongside an error.
func Normalize(raw json.RawMessage) (Event, error) {
	fields, err := object(raw, "event")
	if err != nil {
		return Event{}, err
	}

	var ev Event

	if ev.DepositID, err = requiredText(fields, "depositId"); err != nil {
		return Event{}, err
	}

	investor, err := requiredText(fields, "investorKey")
	if err != nil {
		return Event{}, err
	}
	if ev.InvestorKey, err = address.Normalize(investor); err != nil {
		return Event{}, invalid("investorKey", "not a valid TON address")
	}

	if ev.TonTxHash, err = requiredText(fields, "tonTxHash"); err != nil {
		return Event{}, err
	}

	if ev.USDTAmount, err = positiveAmount(fields, "usdtAmount"); err != nil {
		return Event{}, err
	}
	if ev.DCTAmount, err = positiveAmount(fields, "dctAmount"); err != nil {
		return Event{}, err
	}
	if ev.FXRate, err = positiveAmount(fields, "fxRate"); err != nil {
		return Event{}, err
	}

	ev.ValuationUSDT = ev.USDTAmount
	if isPresent(fields["valuationUsdt"]) {
		if ev.ValuationUSDT, err = positiveAmount(fields, "valuationUsdt"); err != nil {
			return Event{}, err
		}
	}

	return ev, nil
}

// DecodeProof validates the proof object. Unknown fields are kept in Raw.
func DecodeProof(raw json.RawMessage) (Proof, error) {
	fields, err := object(raw, "proof")
	if err != nil {
		return Proof{}, err
	}

	p := Proof{Raw: append(json.RawMessage(nil), bytes.TrimSpace(raw)...)}
	targets := []struct {
		key string
		dst *string
	}{
		{"blockId", &p.BlockID},
		{"shardProof", &p.ShardProof},
		{"signature", &p.Signature},
		{"routerTxHash", &p.RouterTxHash},
	}
	for _, t := range targets {
		v := fields[t.key]
		if !isPresent(v) {
			continue
		}
		s, ok := text(v)
		if !ok {
			return Proof{}, invalid("proof."+t.key, "must be a string")
		}
		*t.dst = strings.TrimSpace(s)
	}

	return p, nil
}

// ParseObservedAt reads the optional observedAt timestamp, defaulting to now.
func ParseObservedAt(raw json.RawMessage, now time.Time) (time.Time, error) {
	if !isPresent(raw) {
		return now, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, invalid("observedAt", "must be an ISO-8601 string")
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, invalid("observedAt", "must be an ISO-8601 string")
	}
	return ts.UTC(), nil
}

func object(raw json.RawMessage, field string) (map[string]json.RawMessage, error) {
	if !isPresent(raw) {
		return nil, invalid(field, "missing")
	}
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] != '{' {
		return nil, invalid(field, "must be an object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, invalid(field, "must be an object")
	}
	return fields, nil
}

func requiredText(fields map[string]json.RawMessage, key string) (string, error) {
	v := fields[key]
	if !isPresent(v) {
		return "", invalid(key, "required")
	}
	s, ok := text(v)
	if !ok {
		return "", invalid(key, "must be a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid(key, "must not be empty")
	}
	return s, nil
}

func positiveAmount(fields map[string]json.RawMessage, key string) (string, error) {
	v := fields[key]
	if !isPresent(v) {
		return "", invalid(key, "required")
	}
	s, ok := text(v)
	if !ok {
		return "", invalid(key, "must be a number")
	}
	r, err := amount.ParsePositive(s)
	if errors.Is(err, amount.ErrOutOfRange) {
		return "", invalid(key, "out of range")
	}
	if err != nil {
		return "", invalid(key, "must be a finite number > 0")
	}
	return amount.Canonical(r), nil
}

// text accepts a JSON string or a JSON number and returns its textual form.
func text(v json.RawMessage) (string, bool) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return "", false
	}
	switch c := v[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", false
		}
		return s, true
	case c == '-' || (c >= '0' && c <= '9'):
		var n json.Number
		if err := json.Unmarshal(v, &n); err != nil {
			return "", false
		}
		return n.String(), true
	default:
		return "", false
	}
}

func isPresent(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && !bytes.Equal(v, []byte("null"))
}
