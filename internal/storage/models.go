package storage

import "time"

// VerifiedDeposit is a persisted, verified allocator deposit.
type VerifiedDeposit struct {
	ID            string
	DepositID     string
	InvestorKey   string
	USDTAmount    string
	DCTAmount     string
	FXRate        string
	TonTxHash     string
	ValuationUSDT string

	ProofBlockID   string
	ProofShard     string
	ProofSignature string
	RouterTxHash   string
	ProofPayload   string

	Strategy          string
	OnChainInvestor   string
	OnChainAmount     string
	BlockSeqno        *uint64
	ChainTimestamp    *time.Time
	VerificationError string

	ObservedAt time.Time
	VerifiedAt time.Time
}
