package tonapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Transaction is the subset of a TonAPI blockchain transaction used to
// cross-check deposits. Fields are decoded leniently because the index schema
// is not under our control.
type Transaction struct {
	Hash         string         `json:"hash"`
	Lt           Value          `json:"lt"`
	Account      AccountAddress `json:"account"`
	Success      *bool          `json:"success,omitempty"`
	Utime        Value          `json:"utime"`
	Now          Value          `json:"now"`
	Block        string         `json:"block"`
	McBlockSeqno Value          `json:"mc_block_seqno"`
	Amount       Value          `json:"amount"`
	Value        Value          `json:"value"`
	InMsg        *Message       `json:"in_msg,omitempty"`
	OutMsgs      []Message      `json:"out_msgs"`
}

// Message is an inbound or outbound message of a transaction.
type Message struct {
	Source      *AccountAddress `json:"source,omitempty"`
	Destination *AccountAddress `json:"destination,omitempty"`
	Value       Value           `json:"value"`
}

// AccountAddress accepts either {"address": "..."} or a bare string.
type AccountAddress struct {
	Address string `json:"address"`
}

func (a *AccountAddress) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &a.Address)
	}
	var obj struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("account address: %w", err)
	}
	a.Address = obj.Address
	return nil
}

// Value is a numeric field that may be encoded as a JSON number or string.
// The empty Value means the field was absent or null.
type Value string

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("numeric value: %w", err)
	}
	*v = Value(n.String())
	return nil
}

func (v Value) String() string { return string(v) }

// Addresses returns every address the transaction references, in order:
// account, in-message source and destination, then each out-message.
func (tx *Transaction) Addresses() []string {
	var out []string
	add := func(a *AccountAddress) {
		if a != nil && a.Address != "" {
			out = append(out, a.Address)
		}
	}
	add(&tx.Account)
	if tx.InMsg != nil {
		add(tx.InMsg.Source)
		add(tx.InMsg.Destination)
	}
	for i := range tx.OutMsgs {
		add(tx.OutMsgs[i].Source)
		add(tx.OutMsgs[i].Destination)
	}
	return out
}

// Values returns every value-like field in scan order.
func (tx *Transaction) Values() []Value {
	out := []Value{tx.Amount, tx.Value}
	if tx.InMsg != nil {
		out = append(out, tx.InMsg.Value)
	}
	for _, m := range tx.OutMsgs {
		out = append(out, m.Value)
	}
	return out
}

// transactionsResponse covers index deployments that wrap results in a list.
type transactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}
