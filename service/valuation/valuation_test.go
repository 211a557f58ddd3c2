package valuation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/soltrack/service/config"
	"github.com/brojonat/soltrack/service/db"
	"github.com/brojonat/soltrack/service/solana"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	dustMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

type fakeQuotes struct {
	prices map[string]decimal.Decimal
	err    error
	calls  int
}

func (f *fakeQuotes) Prices(ctx context.Context, mints []string) (map[string]decimal.Decimal, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]decimal.Decimal)
	for _, m := range mints {
		if p, ok := f.prices[m]; ok {
			out[m] = p
		}
	}
	return out, nil
}

type fixedRate string

func (r fixedRate) Rate(ctx context.Context, from, to string) decimal.Decimal {
	return decimal.RequireFromString(string(r))
}

func testOpener(t *testing.T) db.Opener {
	t.Helper()
	store := db.NewTestSQLiteStore(t)
	return db.OpenerFunc(func(ctx context.Context) (db.Store, error) {
		return nopCloser{store}, nil
	})
}

// nopCloser keeps the shared test store open across operations.
type nopCloser struct{ db.Store }

func (nopCloser) Close() error { return nil }

func seed(t *testing.T, opener db.Opener, records ...db.Record) {
	t.Helper()
	err := db.WithStore(context.Background(), opener, func(s db.Store) error {
		_, err := s.UpsertMany(context.Background(), records)
		return err
	})
	require.NoError(t, err)
}

func rec(sig, mint string, amount float64, dir solana.Direction) db.Record {
	ts := time.Unix(1700000000, 0).UTC()
	return db.Record{
		Signature:   sig,
		Timestamp:   &ts,
		Type:        solana.TypeTransfer,
		TokenMint:   mint,
		TokenAmount: amount,
		Direction:   string(dir),
		RawData:     json.RawMessage(`{}`),
	}
}

func testConfig() *config.Config {
	return &config.Config{ReferenceCurrency: "EUR", HoldingsEpsilon: 1e-6}
}

func TestComputeHoldings(t *testing.T) {
	opener := testOpener(t)
	seed(t, opener,
		rec("a", usdcMint, 5.0, solana.DirectionIn),
		rec("b", dustMint, 0.0000001, solana.DirectionIn),
		rec("c", solana.NativeMint, 2.0, solana.DirectionIn),
		rec("d", solana.NativeMint, 2.0, solana.DirectionOut),
	)

	agg, err := NewAggregator(testConfig(), opener, &fakeQuotes{}, fixedRate("1"), nil)
	require.NoError(t, err)

	holdings, err := agg.ComputeHoldings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{usdcMint: 5.0}, holdings)
}

func TestComputeHoldingsEmptyStore(t *testing.T) {
	agg, err := NewAggregator(testConfig(), testOpener(t), &fakeQuotes{}, fixedRate("1"), nil)
	require.NoError(t, err)

	holdings, err := agg.ComputeHoldings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestPriceHoldings(t *testing.T) {
	quotes := &fakeQuotes{prices: map[string]decimal.Decimal{
		solana.NativeMint: decimal.RequireFromString("100"),
	}}
	holdings := map[string]float64{solana.NativeMint: 1.5, usdcMint: 10}

	priced, err := PriceHoldings(context.Background(), holdings, quotes, decimal.RequireFromString("0.9"))
	require.NoError(t, err)
	assert.Equal(t, 1, quotes.calls, "one batched lookup")

	sol := priced[solana.NativeMint]
	assert.True(t, decimal.RequireFromString("90").Equal(sol.UnitPrice))
	assert.True(t, decimal.RequireFromString("135").Equal(sol.TotalValue))

	missing := priced[usdcMint]
	assert.True(t, missing.UnitPrice.IsZero())
	assert.True(t, missing.TotalValue.IsZero())
	assert.True(t, decimal.NewFromInt(10).Equal(missing.Balance))
}

func TestPriceHoldingsEmpty(t *testing.T) {
	quotes := &fakeQuotes{}
	priced, err := PriceHoldings(context.Background(), nil, quotes, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Empty(t, priced)
	assert.Zero(t, quotes.calls)
}

func TestPriceHoldingsQuoteError(t *testing.T) {
	quotes := &fakeQuotes{err: context.Canceled}
	_, err := PriceHoldings(context.Background(), map[string]float64{usdcMint: 1}, quotes, decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNetWorth(t *testing.T) {
	opener := testOpener(t)
	seed(t, opener,
		rec("a", usdcMint, 100, solana.DirectionIn),
		rec("b", solana.NativeMint, 2, solana.DirectionIn),
	)
	quotes := &fakeQuotes{prices: map[string]decimal.Decimal{
		usdcMint:          decimal.RequireFromString("1"),
		solana.NativeMint: decimal.RequireFromString("150"),
	}}

	agg, err := NewAggregator(testConfig(), opener, quotes, fixedRate("0.5"), nil)
	require.NoError(t, err)

	p, err := agg.NetWorth(context.Background())
	require.NoError(t, err)
	require.Len(t, p.Positions, 2)
	assert.Equal(t, solana.NativeMint, p.Positions[0].Mint)
	assert.True(t, decimal.RequireFromString("200").Equal(p.Total))
	assert.Equal(t, "EUR", p.Currency)
	assert.Equal(t, "€200.00", p.Display)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$1,234.57", FormatMoney(decimal.RequireFromString("1234.567"), "USD"))
	assert.Equal(t, "€0.00", FormatMoney(decimal.Zero, "EUR"))
	assert.Equal(t, "12.30 XYZ", FormatMoney(decimal.RequireFromString("12.3"), "XYZ"))
}

func TestNewAggregatorRequiresDependencies(t *testing.T) {
	_, err := NewAggregator(nil, nil, nil, nil, nil)
	assert.Error(t, err)
	_, err = NewAggregator(testConfig(), nil, &fakeQuotes{}, fixedRate("1"), nil)
	assert.Error(t, err)
}
