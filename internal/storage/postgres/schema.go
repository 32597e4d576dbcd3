package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS verified_deposits (
	id TEXT PRIMARY KEY,
	deposit_id TEXT NOT NULL,
	investor_key TEXT NOT NULL,
	usdt_amount NUMERIC NOT NULL,
	dct_amount NUMERIC NOT NULL,
	fx_rate NUMERIC NOT NULL,
	ton_tx_hash TEXT NOT NULL,
	valuation_usdt NUMERIC NOT NULL,

	proof_block_id TEXT NOT NULL DEFAULT '',
	proof_shard TEXT NOT NULL DEFAULT '',
	proof_signature TEXT NOT NULL DEFAULT '',
	router_tx_hash TEXT NOT NULL DEFAULT '',
	proof_payload JSONB NOT NULL,

	strategy TEXT NOT NULL DEFAULT '',
	onchain_investor TEXT NOT NULL DEFAULT '',
	onchain_amount NUMERIC,
	block_seqno BIGINT,
	chain_timestamp TIMESTAMPTZ,
	verification_error TEXT NOT NULL DEFAULT '',

	observed_at TIMESTAMPTZ NOT NULL,
	verified_at TIMESTAMPTZ NOT NULL,

	CONSTRAINT verified_deposits_deposit_tx_key UNIQUE (deposit_id, ton_tx_hash),
	CONSTRAINT usdt_amount_pos CHECK (usdt_amount > 0),
	CONSTRAINT dct_amount_pos CHECK (dct_amount > 0),
	CONSTRAINT fx_rate_pos CHECK (fx_rate > 0)
);

CREATE INDEX IF NOT EXISTS verified_deposits_investor_idx ON verified_deposits (investor_key);
`
