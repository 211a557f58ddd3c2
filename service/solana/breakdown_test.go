package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakdownOf(t *testing.T) {
	legs := []Leg{
		{Kind: LegNative, Mint: NativeMint, Amount: 0.5, Direction: DirectionOut},
		{Kind: LegNative, Mint: NativeMint, Amount: 0.000005, Direction: DirectionIn},
		{Kind: LegToken, Mint: bonkMint, Amount: 1000, Direction: DirectionIn},
		{Kind: LegToken, Mint: bonkMint, Amount: 250, Direction: DirectionIn},
		{Kind: LegToken, Mint: abcMint, Amount: 9, Direction: DirectionNone},
	}

	b := BreakdownOf(legs)

	assert.Equal(t, 0.5, b.Sent[NativeMint])
	assert.Equal(t, 1250.0, b.Received[bonkMint])
	assert.NotContains(t, b.Sent, abcMint)
	assert.NotContains(t, b.Received, abcMint)

	sent := b.SentFlows()
	require.Len(t, sent, 1)
	assert.Equal(t, "SOL", sent[0].Symbol)

	// Rent-sized SOL inflow is hidden.
	received := b.ReceivedFlows()
	require.Len(t, received, 1)
	assert.Equal(t, "DezX", received[0].Symbol)
	assert.Equal(t, 1250.0, received[0].Amount)
}

func TestIsDust(t *testing.T) {
	assert.True(t, IsDust(NativeMint, 0.002))
	assert.True(t, IsDust(WrappedSOLMint, 0.0001))
	assert.False(t, IsDust(NativeMint, 0.01))
	assert.False(t, IsDust(bonkMint, 0.0000001))
}

func TestSymbol(t *testing.T) {
	assert.Equal(t, "SOL", Symbol(NativeMint))
	assert.Equal(t, "wSOL", Symbol(WrappedSOLMint))
	assert.Equal(t, "DezX", Symbol(bonkMint))
	assert.Equal(t, "abc", Symbol("abc"))
}

func TestBreakdownOfRaw(t *testing.T) {
	payload := `{
		"signature": "swap1",
		"type": "SWAP",
		"nativeTransfers": [{"fromUserAccount": "` + testWallet + `", "toUserAccount": "` + otherUser + `", "amount": 250000000}],
		"tokenTransfers": [{"fromUserAccount": "` + otherUser + `", "toUserAccount": "` + testWallet + `", "tokenAmount": 1000, "mint": "` + bonkMint + `"}]
	}`

	b, err := BreakdownOfRaw([]byte(payload), testWallet)
	require.NoError(t, err)
	assert.Equal(t, 0.25, b.Sent[NativeMint])
	assert.Equal(t, 1000.0, b.Received[bonkMint])

	_, err = BreakdownOfRaw([]byte(`[]`), testWallet)
	assert.Error(t, err)
}
