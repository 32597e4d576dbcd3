package deposit

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/suspectuso/deposit-verifier/internal/amount"
)

// Envelope is the webhook body sent by the allocator.
type Envelope struct {
	Event      json.RawMessage `json:"event"`
	Proof      json.RawMessage `json:"proof"`
	ObservedAt json.RawMessage `json:"observedAt,omitempty"`
	ChainTrace json.RawMessage `json:"chainTrace,omitempty"`
}

// Event is a validated allocator deposit claim. Amounts are canonical decimal
// strings, InvestorKey is the canonical raw address.
type Event struct {
	DepositID     string `json:"depositId"`
	InvestorKey   string `json:"investorKey"`
	USDTAmount    string `json:"usdtAmount"`
	DCTAmount     string `json:"dctAmount"`
	FXRate        string `json:"fxRate"`
	TonTxHash     string `json:"tonTxHash"`
	ValuationUSDT string `json:"valuationUsdt"`
}

func (e Event) USDT() *big.Rat { return rat(e.USDTAmount) }
func (e Event) FX() *big.Rat   { return rat(e.FXRate) }

// Proof is the allocator's proof payload. Raw is stored verbatim for audit.
type Proof struct {
	BlockID      string
	ShardProof   string
	Signature    string
	RouterTxHash string
	Raw          json.RawMessage
}

// Record is what gets persisted once an event passed verification.
type Record struct {
	Event Event
	Proof Proof

	Strategy          string
	OnChainInvestor   string
	OnChainAmount     string
	BlockSeqno        *uint64
	ChainTimestamp    *time.Time
	// VerificationError notes why a deposit was accepted without
	// verified chain evidence. Empty when evidence matched.
	VerificationError string

	ObservedAt time.Time
	VerifiedAt time.Time
}

func rat(s string) *big.Rat {
	r, err := amount.Parse(s)
	if err != nil {
		return new(big.Rat)
	}
	return r
}
