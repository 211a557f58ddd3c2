package solana

import "sort"

// DustThreshold hides native and wSOL amounts at or below this value in
// per-transaction breakdowns. It suppresses rent adjustments.
const DustThreshold = 0.002

// Breakdown sums what the wallet sent and received in one transaction.
type Breakdown struct {
	Sent     map[string]float64 `json:"sent"`
	Received map[string]float64 `json:"received"`
}

// Flow is one line of a breakdown, keyed by display symbol.
type Flow struct {
	Symbol string  `json:"symbol"`
	Mint   string  `json:"mint"`
	Amount float64 `json:"amount"`
}

// BreakdownOf groups the wallet's legs by mint and direction.
func BreakdownOf(legs []Leg) Breakdown {
	b := Breakdown{
		Sent:     make(map[string]float64),
		Received: make(map[string]float64),
	}
	for _, leg := range legs {
		switch leg.Direction {
		case DirectionOut:
			b.Sent[leg.Mint] += leg.Amount
		case DirectionIn:
			b.Received[leg.Mint] += leg.Amount
		}
	}
	return b
}

// SentFlows returns the non-dust outgoing flows sorted by symbol.
func (b Breakdown) SentFlows() []Flow { return flows(b.Sent) }

// ReceivedFlows returns the non-dust incoming flows sorted by symbol.
func (b Breakdown) ReceivedFlows() []Flow { return flows(b.Received) }

func flows(totals map[string]float64) []Flow {
	out := make([]Flow, 0, len(totals))
	for mint, amount := range totals {
		if IsDust(mint, amount) {
			continue
		}
		out = append(out, Flow{Symbol: Symbol(mint), Mint: mint, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// IsDust reports whether a SOL-denominated amount is too small to show.
// Other tokens are never dust.
func IsDust(mint string, amount float64) bool {
	if mint != NativeMint && mint != WrappedSOLMint {
		return false
	}
	return amount <= DustThreshold
}

// Symbol returns a short display label for a mint.
func Symbol(mint string) string {
	switch {
	case mint == NativeMint:
		return "SOL"
	case mint == WrappedSOLMint:
		return "wSOL"
	case len(mint) > 4:
		return mint[:4]
	default:
		return mint
	}
}

// BreakdownOfRaw decodes a stored payload and breaks down the wallet's legs.
func BreakdownOfRaw(data []byte, wallet string) (Breakdown, error) {
	raw, err := DecodeRawTransaction(data)
	if err != nil {
		return Breakdown{}, err
	}
	return BreakdownOf(Legs(raw, wallet)), nil
}
