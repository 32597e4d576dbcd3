//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/deposit-verifier/internal/deposit"
)

func openTestStore(t *testing.T, ctx context.Context) (*Store, string) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s, err := New(pool)
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(ctx))
	return s, dsn
}

func integrationRecord(depositID string) deposit.Record {
	seqno := uint64(45367521)
	return deposit.Record{
		Event: deposit.Event{
			DepositID:     depositID,
			InvestorKey:   "0:83DFD552E63729B472FCBCC8C45EBCC6691702558B68EC7527E1BA403A0F31A8",
			USDTAmount:    "1000",
			DCTAmount:     "950.123456789",
			FXRate:        "1.052631",
			TonTxHash:     "4b3f0a9c",
			ValuationUSDT: "1000",
		},
		Proof:         deposit.Proof{Raw: json.RawMessage(`{"blockId":"45367521"}`)},
		Strategy:      "trace",
		OnChainAmount: "950.123456789",
		BlockSeqno:    &seqno,
		ObservedAt:    time.Now().UTC(),
		VerifiedAt:    time.Now().UTC(),
	}
}

func TestStore_RecordExactlyOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	s, _ := openTestStore(t, ctx)

	depositID := "it-" + time.Now().Format("150405.000000000")
	rec := integrationRecord(depositID)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, dup, err := s.Record(ctx, rec)
			assert.NoError(t, err)
			if !dup {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
	n, err := s.Count(ctx, depositID, rec.Event.TonTxHash)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_NotifyRecord(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	s, dsn := openTestStore(t, ctx)

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(context.Background()) })
	_, err = conn.Exec(ctx, "LISTEN "+NotifyChannel)
	require.NoError(t, err)

	require.NoError(t, s.NotifyRecord(ctx, "record-1"))

	n, err := conn.WaitForNotification(ctx)
	require.NoError(t, err)
	assert.Equal(t, NotifyChannel, n.Channel)
	assert.Equal(t, "record-1", n.Payload)
}
