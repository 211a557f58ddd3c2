// Package pricing looks up USD token quotes and currency exchange rates.
package pricing

import (
	"context"

	"github.com/brojonat/soltrack/service/solana"
	"github.com/shopspring/decimal"
)

// QuoteSource returns USD unit prices keyed by the requested identifier.
// Identifiers without a known price are absent from the result.
type QuoteSource interface {
	Prices(ctx context.Context, mints []string) (map[string]decimal.Decimal, error)
}

// RateSource returns the number of units of to per unit of from.
// It never fails; implementations fall back to a fixed rate.
type RateSource interface {
	Rate(ctx context.Context, from, to string) decimal.Decimal
}

// minIdentifierLength filters out identifiers that cannot be token mints.
const minIdentifierLength = 30

// quoteIdentifier maps a stored mint to the identifier used for quoting.
// The native sentinel is quoted through the wrapped SOL mint.
func quoteIdentifier(mint string) string {
	if mint == solana.NativeMint {
		return solana.WrappedSOLMint
	}
	return mint
}
