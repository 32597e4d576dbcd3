// Package postgres records verified deposits in Postgres and publishes
// record ids over LISTEN/NOTIFY.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/suspectuso/deposit-verifier/internal/deposit"
)

// NotifyChannel is the LISTEN channel carrying new record ids.
const NotifyChannel = "verified_deposit"

const uniqueViolation = "23505"

var ErrInvalidConfig = errors.New("storage/postgres: invalid config")

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrInvalidConfig)
	}
	return &Store{pool: pool}, nil
}

// Open dials dsn and returns a Store owning the pool.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: dsn is required", ErrInvalidConfig)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: connect: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("storage/postgres: ensure schema: %w", err)
	}
	return nil
}

// Record inserts a verified deposit; a unique violation on
// (deposit_id, ton_tx_hash) is reported as duplicate.
func (s *Store) Record(ctx context.Context, rec deposit.Record) (string, bool, error) {
	id := uuid.NewString()

	var blockSeqno *int64
	if rec.BlockSeqno != nil {
		if *rec.BlockSeqno > math.MaxInt64 {
			return "", false, fmt.Errorf("storage/postgres: block seqno %d out of range", *rec.BlockSeqno)
		}
		n := int64(*rec.BlockSeqno)
		blockSeqno = &n
	}
	var onchainAmount *string
	if rec.OnChainAmount != "" {
		onchainAmount = &rec.OnChainAmount
	}
	proofPayload := string(rec.Proof.Raw)
	if proofPayload == "" {
		proofPayload = "{}"
	}

	ev, p := rec.Event, rec.Proof
	_, err := s.pool.Exec(ctx, `
		INSERT INTO verified_deposits (
			id, deposit_id, investor_key, usdt_amount, dct_amount, fx_rate, ton_tx_hash, valuation_usdt,
			proof_block_id, proof_shard, proof_signature, router_tx_hash, proof_payload,
			strategy, onchain_investor, onchain_amount, block_seqno, chain_timestamp, verification_error,
			observed_at, verified_at
		) VALUES (
			$1, $2, $3, $4::text::numeric, $5::text::numeric, $6::text::numeric, $7, $8::text::numeric,
			$9, $10, $11, $12, $13::text::jsonb,
			$14, $15, $16::text::numeric, $17, $18, $19,
			$20, $21
		)
	`, id, ev.DepositID, ev.InvestorKey, ev.USDTAmount, ev.DCTAmount, ev.FXRate, ev.TonTxHash, ev.ValuationUSDT,
		p.BlockID, p.ShardProof, p.Signature, p.RouterTxHash, proofPayload,
		rec.Strategy, rec.OnChainInvestor, onchainAmount, blockSeqno, rec.ChainTimestamp, rec.VerificationError,
		rec.ObservedAt, rec.VerifiedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", true, nil
		}
		return "", false, fmt.Errorf("storage/postgres: insert: %w", err)
	}
	return id, false, nil
}

// NotifyRecord publishes id on NotifyChannel.
func (s *Store) NotifyRecord(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, id); err != nil {
		return fmt.Errorf("storage/postgres: notify: %w", err)
	}
	return nil
}

// Count returns how many records exist for a deposit and tx hash.
func (s *Store) Count(ctx context.Context, depositID, tonTxHash string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM verified_deposits WHERE deposit_id = $1 AND ton_tx_hash = $2
	`, depositID, tonTxHash).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage/postgres: count: %w", err)
	}
	return n, nil
}
