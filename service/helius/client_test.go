package helius

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

const testWallet = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func TestFetchTransactions(t *testing.T) {
	t.Run("sends bounds and key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "GET", r.Method)
			assert.Equal(t, "/v0/addresses/"+testWallet+"/transactions", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "secret", q.Get("api-key"))
			assert.Equal(t, "100", q.Get("limit"))
			assert.Equal(t, "sigOld", q.Get("before"))
			assert.Equal(t, "sigCursor", q.Get("until"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"signature":"a"},{"signature":"b","type":"SWAP"}]`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "secret", nil, nil, nil)
		page, err := client.FetchTransactions(context.Background(), testWallet, FetchParams{
			Before: "sigOld",
			Until:  "sigCursor",
			Limit:  100,
		})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.JSONEq(t, `{"signature":"b","type":"SWAP"}`, string(page[1]))
	})

	t.Run("omits empty bounds", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.False(t, q.Has("before"))
			assert.False(t, q.Has("until"))
			w.Write([]byte(`[]`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "secret", nil, nil, nil)
		page, err := client.FetchTransactions(context.Background(), testWallet, FetchParams{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, page)
	})
}

func TestFetchTransactionsErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantAPI bool
		wantMsg string
	}{
		{name: "error object with 200", status: http.StatusOK, body: `{"error":"invalid api key"}`, wantAPI: true, wantMsg: "invalid api key"},
		{name: "error object with 401", status: http.StatusUnauthorized, body: `{"error":"unauthorized"}`, wantAPI: true, wantMsg: "unauthorized"},
		{name: "plain text 500", status: http.StatusInternalServerError, body: `upstream down`, wantAPI: true, wantMsg: "upstream down"},
		{name: "object without error", status: http.StatusOK, body: `{"items":[]}`},
		{name: "scalar", status: http.StatusOK, body: `42`},
		{name: "malformed list", status: http.StatusOK, body: `[{"signature":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "secret", nil, nil, nil)
			page, err := client.FetchTransactions(context.Background(), testWallet, FetchParams{Limit: 10})
			require.Error(t, err)
			assert.Nil(t, page)

			var apiErr *APIError
			if tt.wantAPI {
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, tt.status, apiErr.StatusCode)
				assert.Equal(t, tt.wantMsg, apiErr.Message)
			} else {
				assert.False(t, errors.As(err, &apiErr))
			}
		})
	}
}

func TestFetchTransactionsRedactsKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(server.URL, "supersecret", &http.Client{Timeout: 20 * time.Millisecond}, nil, nil)
	_, err := client.FetchTransactions(context.Background(), testWallet, FetchParams{Limit: 10})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "supersecret")
}
