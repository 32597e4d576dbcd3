package tonapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const txJSON = `{
	"hash": "4b3f0a",
	"lt": 47000000000001,
	"account": {"address": "0:aaaa"},
	"success": true,
	"utime": 1717000000,
	"block": "(0,8000000000000000,45367521)",
	"in_msg": {"source": {"address": "0:bbbb"}, "destination": {"address": "0:aaaa"}, "value": 950000000000},
	"out_msgs": [
		{"source": "0:aaaa", "destination": {"address": "0:cccc"}, "value": "1000000"}
	]
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL+"/", "secret-key", Options{RequestsPerSecond: 1000})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGetTransaction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/blockchain/transactions/4b3f0a", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, int64(0), r.ContentLength)
		assert.Empty(t, r.Header.Get("Content-Type"))
		w.Write([]byte(txJSON))
	})

	tx, err := c.GetTransaction(context.Background(), "4b3f0a")
	require.NoError(t, err)

	assert.Equal(t, "4b3f0a", tx.Hash)
	assert.Equal(t, Value("1717000000"), tx.Utime)
	assert.Equal(t, Value("47000000000001"), tx.Lt)
	assert.Equal(t, []string{"0:aaaa", "0:bbbb", "0:aaaa", "0:aaaa", "0:cccc"}, tx.Addresses())
	assert.Equal(t, []Value{"", "", "950000000000", "1000000"}, tx.Values())
}

func TestGetTransactionListShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transactions":[` + txJSON + `]}`))
	})

	tx, err := c.GetTransaction(context.Background(), "4b3f0a")
	require.NoError(t, err)
	assert.Equal(t, "4b3f0a", tx.Hash)

	empty := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transactions":[]}`))
	})
	_, err = empty.GetTransaction(context.Background(), "4b3f0a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetTransactionErrors(t *testing.T) {
	notFound := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := notFound.GetTransaction(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)

	broken := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	})
	_, err = broken.GetTransaction(context.Background(), "x")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream down", apiErr.Body)
}

func TestGetTransactionHonoursContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.GetTransaction(ctx, "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
