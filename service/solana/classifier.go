package solana

import (
	solanago "github.com/gagliardetto/solana-go"
)

const (
	// NativeMint is the sentinel mint recorded for native SOL movements.
	NativeMint = "SOL"

	// TypeUnknown is recorded when the source does not categorize a transaction.
	TypeUnknown  = "UNKNOWN"
	TypeSwap     = "SWAP"
	TypeTransfer = "TRANSFER"
)

// WrappedSOLMint is the SPL mint of wrapped SOL. Quote sources price the
// native asset under this mint.
var WrappedSOLMint = solanago.SolMint.String()

// LamportsToSOL converts base units to display units.
func LamportsToSOL(lamports int64) float64 {
	return float64(lamports) / float64(solanago.LAMPORTS_PER_SOL)
}

// Classify derives the transaction type, a representative (mint, amount)
// pair and the full leg list for one raw transaction.
//
// Token legs are checked before native legs and the first token leg that
// touches the wallet wins, so a transaction with several token legs for the
// wallet reports only the first. Consumers that need exact in/out totals
// must use Legs.
func Classify(raw *RawTransaction, wallet string) Classification {
	c := Classification{
		Type:      TypeUnknown,
		Mint:      NativeMint,
		Direction: DirectionNone,
		Shape:     shapeOf(raw),
		Legs:      Legs(raw, wallet),
	}
	if raw == nil {
		return c
	}
	if raw.Type != nil && *raw.Type != "" {
		c.Type = *raw.Type
	}

	for _, t := range raw.TokenTransfers {
		if t.From() != wallet && t.To() != wallet {
			continue
		}
		c.Mint = t.Mint
		if t.TokenAmount != nil {
			c.Amount = *t.TokenAmount
		}
		c.Direction = directionOf(t.From(), t.To(), wallet)
		break
	}

	if c.Amount == 0 {
		for _, n := range raw.NativeTransfers {
			if n.Amount == nil || *n.Amount <= 0 {
				continue
			}
			c.Mint = NativeMint
			c.Amount = LamportsToSOL(*n.Amount)
			c.Direction = directionOf(n.FromUserAccount, n.ToUserAccount, wallet)
			break
		}
	}

	return c
}

// Legs decomposes a raw transaction into native legs followed by token legs.
func Legs(raw *RawTransaction, wallet string) []Leg {
	if raw == nil {
		return nil
	}
	legs := make([]Leg, 0, len(raw.NativeTransfers)+len(raw.TokenTransfers))
	for _, n := range raw.NativeTransfers {
		var lamports int64
		if n.Amount != nil {
			lamports = *n.Amount
		}
		legs = append(legs, Leg{
			Kind:      LegNative,
			From:      n.FromUserAccount,
			To:        n.ToUserAccount,
			Mint:      NativeMint,
			Amount:    LamportsToSOL(lamports),
			Direction: directionOf(n.FromUserAccount, n.ToUserAccount, wallet),
		})
	}
	for _, t := range raw.TokenTransfers {
		var amount float64
		if t.TokenAmount != nil {
			amount = *t.TokenAmount
		}
		legs = append(legs, Leg{
			Kind:      LegToken,
			From:      t.From(),
			To:        t.To(),
			Mint:      t.Mint,
			Amount:    amount,
			Direction: directionOf(t.From(), t.To(), wallet),
		})
	}
	return legs
}

func shapeOf(raw *RawTransaction) Shape {
	if raw == nil {
		return ShapeNone
	}
	hasNative := len(raw.NativeTransfers) > 0
	hasToken := len(raw.TokenTransfers) > 0
	switch {
	case hasNative && hasToken:
		return ShapeMixed
	case hasNative:
		return ShapeNativeOnly
	case hasToken:
		return ShapeTokenOnly
	default:
		return ShapeNone
	}
}

// directionOf reports the wallet's side of a movement. A self-transfer nets
// to zero and has no direction.
func directionOf(from, to, wallet string) Direction {
	if from == wallet && to == wallet {
		return DirectionNone
	}
	switch wallet {
	case from:
		return DirectionOut
	case to:
		return DirectionIn
	default:
		return DirectionNone
	}
}
