package custody

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", Token: "secret", Timeout: time.Second})
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(Config{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestBalanceOf(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/accounts/0xVAULT/balance", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"account":"0xVAULT","balance":"105000000000000000000"}`))
	})

	bal, err := c.BalanceOf(context.Background(), "0xVAULT")
	require.NoError(t, err)
	assert.Equal(t, "105000000000000000000", bal.String())
}

func TestBalanceOfMissingField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"account":"0xVAULT"}`))
	})

	_, err := c.BalanceOf(context.Background(), "0xVAULT")
	assert.ErrorContains(t, err, "balance missing")
}

func TestTransferConfirmed(t *testing.T) {
	var got transferRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/transfers", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"status":"confirmed","tx_hash":"0xabc"}`))
	})

	err := c.Transfer(context.Background(), "op-1", "0xA", "0xVAULT", decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.Equal(t, "0xA", got.From)
	assert.Equal(t, "0xVAULT", got.To)
	assert.Equal(t, "50", got.Amount)
	assert.Equal(t, "op-1", got.Reference)
}

func TestTransferWithoutReferenceGetsOne(t *testing.T) {
	var got transferRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"status":"confirmed"}`))
	})

	require.NoError(t, c.Transfer(context.Background(), "", "0xA", "0xVAULT", decimal.NewFromInt(1)))
	assert.NotEmpty(t, got.Reference)
}

func TestTransferRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"failed","reason":"insufficient funds"}`))
	})

	err := c.Transfer(context.Background(), "op-1", "0xA", "0xVAULT", decimal.NewFromInt(50))
	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorContains(t, err, "insufficient funds")
}

func TestErrorStatusCarriesMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"node syncing"}`))
	})

	_, err := c.BalanceOf(context.Background(), "0xVAULT")
	assert.ErrorContains(t, err, "503")
	assert.ErrorContains(t, err, "node syncing")
}

func TestCanceledContextSkipsRequest(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Transfer(ctx, "op-1", "0xA", "0xVAULT", decimal.NewFromInt(1))
	assert.Error(t, err)
	assert.False(t, called)
}
