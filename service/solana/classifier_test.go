package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWallet = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	otherUser  = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	abcMint    = "ABCmint1111111111111111111111111111111111111"
	bonkMint   = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

func mustDecode(t *testing.T, payload string) *RawTransaction {
	t.Helper()
	raw, err := DecodeRawTransaction([]byte(payload))
	require.NoError(t, err)
	return raw
}

// TestClassify_NativeLeg tests a plain SOL transfer out of the wallet.
func TestClassify_NativeLeg(t *testing.T) {
	raw := mustDecode(t, `{
		"signature": "sig-native",
		"timestamp": 1700000000,
		"type": "TRANSFER",
		"fee": 5000,
		"nativeTransfers": [
			{"fromUserAccount": "`+testWallet+`", "toUserAccount": "`+otherUser+`", "amount": 1500000000}
		]
	}`)

	c := Classify(raw, testWallet)

	assert.Equal(t, "TRANSFER", c.Type)
	assert.Equal(t, NativeMint, c.Mint)
	assert.InDelta(t, 1.5, c.Amount, 1e-12)
	assert.Equal(t, DirectionOut, c.Direction)
	assert.Equal(t, ShapeNativeOnly, c.Shape)
	require.Len(t, c.Legs, 1)
	assert.Equal(t, LegNative, c.Legs[0].Kind)
}

// TestClassify_TokenLegPrecedence tests that token legs win over native legs.
func TestClassify_TokenLegPrecedence(t *testing.T) {
	raw := mustDecode(t, `{
		"signature": "sig-mixed",
		"type": "SWAP",
		"nativeTransfers": [
			{"fromUserAccount": "`+testWallet+`", "toUserAccount": "`+otherUser+`", "amount": 2000000000}
		],
		"tokenTransfers": [
			{"fromUserAccount": "`+otherUser+`", "toUserAccount": "`+testWallet+`", "tokenAmount": 42.0, "mint": "`+abcMint+`"}
		]
	}`)

	c := Classify(raw, testWallet)

	assert.Equal(t, "SWAP", c.Type)
	assert.Equal(t, abcMint, c.Mint)
	assert.Equal(t, 42.0, c.Amount)
	assert.Equal(t, DirectionIn, c.Direction)
	assert.Equal(t, ShapeMixed, c.Shape)
	assert.Len(t, c.Legs, 2)
}

// TestClassify_FirstTokenMatchWins documents the first-match heuristic.
func TestClassify_FirstTokenMatchWins(t *testing.T) {
	raw := mustDecode(t, `{
		"signature": "sig-multi",
		"type": "SWAP",
		"tokenTransfers": [
			{"fromUserAccount": "`+otherUser+`", "toUserAccount": "`+otherUser+`", "tokenAmount": 7, "mint": "`+bonkMint+`"},
			{"fromUserAccount": "`+testWallet+`", "toUserAccount": "`+otherUser+`", "tokenAmount": 10, "mint": "`+abcMint+`"},
			{"fromUserAccount": "`+otherUser+`", "toUserAccount": "`+testWallet+`", "tokenAmount": 99, "mint": "`+bonkMint+`"}
		]
	}`)

	c := Classify(raw, testWallet)

	assert.Equal(t, abcMint, c.Mint)
	assert.Equal(t, 10.0, c.Amount)
	assert.Equal(t, DirectionOut, c.Direction)
	assert.Equal(t, ShapeTokenOnly, c.Shape)
	assert.Len(t, c.Legs, 3)
}

func TestClassify_LegacyTokenUserKeys(t *testing.T) {
	raw := mustDecode(t, `{
		"signature": "sig-legacy",
		"tokenTransfers": [
			{"fromUser": "`+testWallet+`", "toUser": "`+otherUser+`", "tokenAmount": 3.25, "mint": "`+abcMint+`"}
		]
	}`)

	c := Classify(raw, testWallet)

	assert.Equal(t, TypeUnknown, c.Type)
	assert.Equal(t, abcMint, c.Mint)
	assert.Equal(t, 3.25, c.Amount)
	assert.Equal(t, DirectionOut, c.Direction)
}

func TestClassify_NativeFallbackSkipsZeroLegs(t *testing.T) {
	raw := mustDecode(t, `{
		"signature": "sig-zero",
		"type": "TRANSFER",
		"nativeTransfers": [
			{"fromUserAccount": "`+otherUser+`", "toUserAccount": "`+testWallet+`", "amount": 0},
			{"fromUserAccount": "`+otherUser+`", "toUserAccount": "`+testWallet+`", "amount": 250000000}
		],
		"tokenTransfers": [
			{"fromUserAccount": "`+otherUser+`", "toUserAccount": "`+otherUser+`", "tokenAmount": 5, "mint": "`+abcMint+`"}
		]
	}`)

	c := Classify(raw, testWallet)

	assert.Equal(t, NativeMint, c.Mint)
	assert.InDelta(t, 0.25, c.Amount, 1e-12)
	assert.Equal(t, DirectionIn, c.Direction)
}

func TestClassify_NoLegs(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantType string
	}{
		{"no type", `{"signature": "sig-empty"}`, TypeUnknown},
		{"empty type", `{"signature": "sig-empty", "type": ""}`, TypeUnknown},
		{"source type kept", `{"signature": "sig-nft", "type": "NFT_MINT"}`, "NFT_MINT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(mustDecode(t, tt.payload), testWallet)

			assert.Equal(t, tt.wantType, c.Type)
			assert.Equal(t, NativeMint, c.Mint)
			assert.Equal(t, 0.0, c.Amount)
			assert.Equal(t, DirectionNone, c.Direction)
			assert.Equal(t, ShapeNone, c.Shape)
			assert.Empty(t, c.Legs)
		})
	}
}

func TestClassify_NilTransaction(t *testing.T) {
	c := Classify(nil, testWallet)
	assert.Equal(t, TypeUnknown, c.Type)
	assert.Equal(t, NativeMint, c.Mint)
	assert.Equal(t, ShapeNone, c.Shape)
}

func TestDecodeRawTransaction(t *testing.T) {
	t.Run("keeps raw bytes and optional fields", func(t *testing.T) {
		payload := `{"signature":"abc","timestamp":1700000000,"fee":0}`
		raw := mustDecode(t, payload)

		assert.Equal(t, "abc", raw.Signature)
		assert.JSONEq(t, payload, string(raw.Raw))
		require.NotNil(t, raw.Fee)
		assert.Equal(t, int64(0), *raw.Fee)
		assert.Nil(t, raw.Type)
		require.NotNil(t, raw.BlockTime())
		assert.Equal(t, int64(1700000000), raw.BlockTime().Unix())
	})

	t.Run("absent timestamp", func(t *testing.T) {
		raw := mustDecode(t, `{"signature":"abc"}`)
		assert.Nil(t, raw.BlockTime())
		assert.Nil(t, raw.Fee)
	})

	t.Run("wrong field type", func(t *testing.T) {
		_, err := DecodeRawTransaction([]byte(`{"signature":"abc","nativeTransfers":"oops"}`))
		assert.Error(t, err)
	})
}

// TestClassify_SelfTransferHasNoDirection tests that a movement from the
// wallet to itself neither adds to nor subtracts from holdings.
func TestClassify_SelfTransferHasNoDirection(t *testing.T) {
	raw := mustDecode(t, `{
		"signature": "sig-self",
		"type": "TRANSFER",
		"nativeTransfers": [
			{"fromUserAccount": "`+testWallet+`", "toUserAccount": "`+testWallet+`", "amount": 2000000000}
		],
		"tokenTransfers": [
			{"fromUserAccount": "`+testWallet+`", "toUserAccount": "`+testWallet+`", "tokenAmount": 10, "mint": "`+abcMint+`"}
		]
	}`)

	c := Classify(raw, testWallet)
	assert.Equal(t, abcMint, c.Mint)
	assert.InDelta(t, 10.0, c.Amount, 1e-12)
	assert.Equal(t, DirectionNone, c.Direction)

	require.Len(t, c.Legs, 2)
	for _, leg := range c.Legs {
		assert.Equal(t, DirectionNone, leg.Direction, "leg %s", leg.Mint)
	}

	b := BreakdownOf(c.Legs)
	assert.Empty(t, b.Sent)
	assert.Empty(t, b.Received)
}
