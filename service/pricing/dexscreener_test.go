package pricing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/brojonat/soltrack/service/solana"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

func TestDexScreenerPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/latest/dex/tokens/"))
		ids := strings.Split(strings.TrimPrefix(r.URL.Path, "/latest/dex/tokens/"), ",")
		assert.ElementsMatch(t, []string{solana.WrappedSOLMint, usdcMint, bonkMint}, ids)

		fmt.Fprintf(w, `{"pairs":[
			{"baseToken":{"address":%q},"priceUsd":"150.25"},
			{"baseToken":{"address":%q},"priceUsd":"1.0001"},
			{"baseToken":{"address":%q},"priceUsd":"0.99"},
			{"baseToken":{"address":%q},"priceUsd":""}
		]}`, solana.WrappedSOLMint, usdcMint, usdcMint, bonkMint)
	}))
	defer server.Close()

	ds := NewDexScreener(server.URL, 30, nil, nil, nil)
	prices, err := ds.Prices(context.Background(), []string{solana.NativeMint, usdcMint, bonkMint, "short"})
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("150.25").Equal(prices[solana.NativeMint]))
	assert.True(t, decimal.RequireFromString("1.0001").Equal(prices[usdcMint]), "first pair wins")
	assert.NotContains(t, prices, bonkMint)
	assert.NotContains(t, prices, "short")
}

func TestDexScreenerChunks(t *testing.T) {
	var (
		mu     sync.Mutex
		chunks [][]string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(strings.TrimPrefix(r.URL.Path, "/latest/dex/tokens/"), ",")
		mu.Lock()
		chunks = append(chunks, ids)
		failing := len(chunks) == 2
		mu.Unlock()

		if failing {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var pairs []string
		for _, id := range ids {
			pairs = append(pairs, fmt.Sprintf(`{"baseToken":{"address":%q},"priceUsd":"2"}`, id))
		}
		fmt.Fprintf(w, `{"pairs":[%s]}`, strings.Join(pairs, ","))
	}))
	defer server.Close()

	mints := make([]string, 65)
	for i := range mints {
		mints[i] = fmt.Sprintf("Mint%040d", i)
	}

	ds := NewDexScreener(server.URL, 30, nil, nil, nil)
	prices, err := ds.Prices(context.Background(), mints)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 30)
	assert.Len(t, chunks[1], 30)
	assert.Len(t, chunks[2], 5)

	// The failed second chunk leaves its mints unpriced.
	assert.Len(t, prices, 35)
	assert.Contains(t, prices, mints[0])
	assert.NotContains(t, prices, mints[30])
	assert.Contains(t, prices, mints[64])
}

func TestDexScreenerNoQuotableMints(t *testing.T) {
	ds := NewDexScreener("http://127.0.0.1:0", 30, nil, nil, nil)
	prices, err := ds.Prices(context.Background(), []string{"abc"})
	require.NoError(t, err)
	assert.Empty(t, prices)
}
