package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/suspectuso/deposit-verifier/internal/deposit"
)

var ErrNotFound = errors.New("not found")

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance and initializes the database
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS verified_deposits (
			id TEXT PRIMARY KEY,
			deposit_id TEXT NOT NULL,
			investor_key TEXT NOT NULL,
			usdt_amount TEXT NOT NULL,
			dct_amount TEXT NOT NULL,
			fx_rate TEXT NOT NULL,
			ton_tx_hash TEXT NOT NULL,
			valuation_usdt TEXT NOT NULL,
			proof_block_id TEXT NOT NULL DEFAULT '',
			proof_shard TEXT NOT NULL DEFAULT '',
			proof_signature TEXT NOT NULL DEFAULT '',
			router_tx_hash TEXT NOT NULL DEFAULT '',
			proof_payload TEXT NOT NULL,
			strategy TEXT NOT NULL DEFAULT '',
			onchain_investor TEXT NOT NULL DEFAULT '',
			onchain_amount TEXT NOT NULL DEFAULT '',
			block_seqno INTEGER,
			chain_timestamp INTEGER,
			verification_error TEXT NOT NULL DEFAULT '',
			observed_at INTEGER NOT NULL,
			verified_at INTEGER NOT NULL,
			UNIQUE (deposit_id, ton_tx_hash)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verified_deposits_investor ON verified_deposits(investor_key)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// Record inserts a verified deposit. A second insert for the same
// (deposit_id, ton_tx_hash) reports duplicate instead of failing.
func (s *Storage) Record(ctx context.Context, rec deposit.Record) (string, bool, error) {
	id := uuid.NewString()

	var blockSeqno sql.NullInt64
	if rec.BlockSeqno != nil {
		blockSeqno = sql.NullInt64{Int64: int64(*rec.BlockSeqno), Valid: true}
	}
	var chainTS sql.NullInt64
	if rec.ChainTimestamp != nil {
		chainTS = sql.NullInt64{Int64: rec.ChainTimestamp.UnixMilli(), Valid: true}
	}

	ev, p := rec.Event, rec.Proof
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verified_deposits (
			id, deposit_id, investor_key, usdt_amount, dct_amount, fx_rate, ton_tx_hash, valuation_usdt,
			proof_block_id, proof_shard, proof_signature, router_tx_hash, proof_payload,
			strategy, onchain_investor, onchain_amount, block_seqno, chain_timestamp, verification_error,
			observed_at, verified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ev.DepositID, ev.InvestorKey, ev.USDTAmount, ev.DCTAmount, ev.FXRate, ev.TonTxHash, ev.ValuationUSDT,
		p.BlockID, p.ShardProof, p.Signature, p.RouterTxHash, string(p.Raw),
		rec.Strategy, rec.OnChainInvestor, rec.OnChainAmount, blockSeqno, chainTS, rec.VerificationError,
		rec.ObservedAt.UnixMilli(), rec.VerifiedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", true, nil
		}
		return "", false, fmt.Errorf("insert verified deposit: %w", err)
	}

	return id, false, nil
}

// Get returns a verified deposit by record ID
func (s *Storage) Get(ctx context.Context, id string) (*VerifiedDeposit, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectDeposit+` WHERE id = ?`, id))
}

// GetByDeposit returns the verified deposit for an allocator deposit and tx hash
func (s *Storage) GetByDeposit(ctx context.Context, depositID, tonTxHash string) (*VerifiedDeposit, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		selectDeposit+` WHERE deposit_id = ? AND ton_tx_hash = ?`, depositID, tonTxHash))
}

// Count returns the number of verified deposits
func (s *Storage) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM verified_deposits").Scan(&count)
	return count, err
}

const selectDeposit = `SELECT id, deposit_id, investor_key, usdt_amount, dct_amount, fx_rate, ton_tx_hash, valuation_usdt,
	proof_block_id, proof_shard, proof_signature, router_tx_hash, proof_payload,
	strategy, onchain_investor, onchain_amount, block_seqno, chain_timestamp, verification_error,
	observed_at, verified_at
	FROM verified_deposits`

func (s *Storage) scanOne(row *sql.Row) (*VerifiedDeposit, error) {
	var d VerifiedDeposit
	var blockSeqno, chainTS sql.NullInt64
	var observedAt, verifiedAt int64

	err := row.Scan(
		&d.ID, &d.DepositID, &d.InvestorKey, &d.USDTAmount, &d.DCTAmount, &d.FXRate, &d.TonTxHash, &d.ValuationUSDT,
		&d.ProofBlockID, &d.ProofShard, &d.ProofSignature, &d.RouterTxHash, &d.ProofPayload,
		&d.Strategy, &d.OnChainInvestor, &d.OnChainAmount, &blockSeqno, &chainTS, &d.VerificationError,
		&observedAt, &verifiedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if blockSeqno.Valid {
		n := uint64(blockSeqno.Int64)
		d.BlockSeqno = &n
	}
	if chainTS.Valid {
		ts := time.UnixMilli(chainTS.Int64).UTC()
		d.ChainTimestamp = &ts
	}
	d.ObservedAt = time.UnixMilli(observedAt).UTC()
	d.VerifiedAt = time.UnixMilli(verifiedAt).UTC()

	return &d, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
