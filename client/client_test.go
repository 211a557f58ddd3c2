package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSync_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/sync", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"new_count":3,"processed":4,"skipped":1,"failed":0,"pages":1}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	result, err := client.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.NewCount)
	assert.Equal(t, 1, result.Skipped)
}

func TestSync_ReportedFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"new_count":0,"pages":0,"error":"failed to fetch transactions: invalid api key"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	result, err := client.Sync(context.Background())
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Zero(t, result.NewCount)
}

func TestHoldings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/holdings", r.URL.Path)
		w.Write([]byte(`{
			"currency": "EUR",
			"fx_rate": "0.93",
			"positions": [{"mint": "SOL", "symbol": "SOL", "balance": "2", "unit_price": "139.5", "total_value": "279"}],
			"total": "279",
			"display": "€279.00"
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	p, err := client.Holdings(context.Background())
	require.NoError(t, err)
	require.Len(t, p.Positions, 1)
	assert.True(t, decimal.RequireFromString("279").Equal(p.Total))
	assert.Equal(t, "€279.00", p.Display)
}

func TestListTransactions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "SWAP", q.Get("type"))
		assert.Equal(t, "5", q.Get("limit"))
		assert.Equal(t, "true", q.Get("raw"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transactions": []map[string]interface{}{
				{"signature": "sig1", "type": "SWAP", "token_mint": "SOL", "token_amount": 1.5, "direction": "out", "raw_data": map[string]string{"signature": "sig1"}},
			},
			"count": 1,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	txns, err := client.ListTransactions(context.Background(), ListParams{Type: "SWAP", Limit: 5, IncludeRaw: true})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "sig1", txns[0].Signature)
	assert.JSONEq(t, `{"signature":"sig1"}`, string(txns[0].RawData))
}

func TestGetTransaction_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transactions/missing", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "transaction not found"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.GetTransaction(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction not found")
}
