// Package valuation derives wallet holdings from stored transactions and
// values them in a reference currency.
package valuation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/brojonat/soltrack/service/config"
	"github.com/brojonat/soltrack/service/db"
	"github.com/brojonat/soltrack/service/pricing"
	"github.com/brojonat/soltrack/service/solana"
	"github.com/shopspring/decimal"
)

// quoteCurrency is the currency quote sources price in.
const quoteCurrency = "USD"

// PricedHolding is the valuation of one mint.
type PricedHolding struct {
	Mint       string          `json:"mint"`
	Symbol     string          `json:"symbol"`
	Balance    decimal.Decimal `json:"balance"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// Portfolio is the full valuation of the tracked wallet.
type Portfolio struct {
	Currency  string          `json:"currency"`
	FXRate    decimal.Decimal `json:"fx_rate"`
	Positions []PricedHolding `json:"positions"`
	Total     decimal.Decimal `json:"total"`
	// Display is Total formatted in Currency, e.g. "€1,234.56".
	Display string `json:"display"`
}

// Aggregator computes holdings and their value.
type Aggregator struct {
	opener   db.Opener
	quotes   pricing.QuoteSource
	rates    pricing.RateSource
	currency string
	epsilon  float64
	logger   *slog.Logger
}

// NewAggregator creates an aggregator from explicit configuration.
func NewAggregator(cfg *config.Config, opener db.Opener, quotes pricing.QuoteSource, rates pricing.RateSource, logger *slog.Logger) (*Aggregator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opener == nil || quotes == nil || rates == nil {
		return nil, fmt.Errorf("opener, quote source and rate source are required")
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	currency := strings.ToUpper(cfg.ReferenceCurrency)
	if currency == "" {
		currency = "EUR"
	}
	return &Aggregator{
		opener:   opener,
		quotes:   quotes,
		rates:    rates,
		currency: currency,
		epsilon:  cfg.HoldingsEpsilon,
		logger:   logger,
	}, nil
}

// ComputeHoldings returns the signed balance of every mint whose balance
// exceeds epsilon.
func (a *Aggregator) ComputeHoldings(ctx context.Context) (map[string]float64, error) {
	var balances map[string]float64
	err := db.WithStore(ctx, a.opener, func(store db.Store) error {
		var err error
		balances, err = store.AggregateByMint(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate holdings: %w", err)
	}
	return FilterHoldings(balances, a.epsilon), nil
}

// FilterHoldings drops balances at or below epsilon.
func FilterHoldings(balances map[string]float64, epsilon float64) map[string]float64 {
	holdings := make(map[string]float64, len(balances))
	for mint, balance := range balances {
		if math.IsNaN(balance) || balance <= epsilon {
			continue
		}
		holdings[mint] = balance
	}
	return holdings
}

// PriceHoldings values holdings with one batched quote lookup. Unit prices
// are converted with fxRate. A mint without a quote is valued at zero.
func PriceHoldings(ctx context.Context, holdings map[string]float64, quotes pricing.QuoteSource, fxRate decimal.Decimal) (map[string]PricedHolding, error) {
	mints := make([]string, 0, len(holdings))
	for mint := range holdings {
		mints = append(mints, mint)
	}
	sort.Strings(mints)

	prices := map[string]decimal.Decimal{}
	if len(mints) > 0 {
		var err error
		prices, err = quotes.Prices(ctx, mints)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch prices: %w", err)
		}
	}

	priced := make(map[string]PricedHolding, len(mints))
	for _, mint := range mints {
		balance := decimal.NewFromFloat(holdings[mint])
		unit := decimal.Zero
		if usd, ok := prices[mint]; ok {
			unit = usd.Mul(fxRate)
		}
		priced[mint] = PricedHolding{
			Mint:       mint,
			Symbol:     solana.Symbol(mint),
			Balance:    balance,
			UnitPrice:  unit,
			TotalValue: balance.Mul(unit),
		}
	}
	return priced, nil
}

// NetWorth computes, prices and totals the current holdings.
func (a *Aggregator) NetWorth(ctx context.Context) (*Portfolio, error) {
	holdings, err := a.ComputeHoldings(ctx)
	if err != nil {
		return nil, err
	}

	rate := a.rates.Rate(ctx, quoteCurrency, a.currency)
	priced, err := PriceHoldings(ctx, holdings, a.quotes, rate)
	if err != nil {
		return nil, err
	}

	p := &Portfolio{
		Currency:  a.currency,
		FXRate:    rate,
		Positions: make([]PricedHolding, 0, len(priced)),
		Total:     decimal.Zero,
	}
	for _, h := range priced {
		p.Positions = append(p.Positions, h)
		p.Total = p.Total.Add(h.TotalValue)
	}
	sort.Slice(p.Positions, func(i, j int) bool {
		if c := p.Positions[i].TotalValue.Cmp(p.Positions[j].TotalValue); c != 0 {
			return c > 0
		}
		return p.Positions[i].Mint < p.Positions[j].Mint
	})
	p.Display = FormatMoney(p.Total, a.currency)

	a.logger.DebugContext(ctx, "computed net worth",
		"positions", len(p.Positions),
		"total", p.Total.StringFixed(2),
		"currency", a.currency,
	)
	return p, nil
}

// FormatMoney renders amount in currency, rounded to the currency's minor unit.
// Unknown currency codes fall back to a plain two-decimal rendering.
func FormatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	factor := decimal.New(1, int32(cur.Fraction))
	minor := amount.Mul(factor).Round(0)
	return money.New(minor.IntPart(), cur.Code).Display()
}
