package solana

import (
	"encoding/json"
	"fmt"
	"time"
)

// RawTransaction is one element of the enhanced transactions response.
// Optional fields are pointers so that an absent field can be told apart
// from a present zero value.
type RawTransaction struct {
	Signature       string           `json:"signature"`
	Timestamp       *int64           `json:"timestamp,omitempty"`
	Type            *string          `json:"type,omitempty"`
	Source          *string          `json:"source,omitempty"`
	Description     *string          `json:"description,omitempty"`
	Fee             *int64           `json:"fee,omitempty"`
	FeePayer        *string          `json:"feePayer,omitempty"`
	Slot            *uint64          `json:"slot,omitempty"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers,omitempty"`
	TokenTransfers  []TokenTransfer  `json:"tokenTransfers,omitempty"`

	// Raw holds the element exactly as received.
	Raw json.RawMessage `json:"-"`
}

// NativeTransfer is a lamport movement between two accounts.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          *int64 `json:"amount,omitempty"`
}

// TokenTransfer is an SPL token movement. Amount is already in display units.
// Older payloads use fromUser/toUser instead of fromUserAccount/toUserAccount.
type TokenTransfer struct {
	FromUserAccount  string   `json:"fromUserAccount,omitempty"`
	ToUserAccount    string   `json:"toUserAccount,omitempty"`
	FromUser         string   `json:"fromUser,omitempty"`
	ToUser           string   `json:"toUser,omitempty"`
	FromTokenAccount string   `json:"fromTokenAccount,omitempty"`
	ToTokenAccount   string   `json:"toTokenAccount,omitempty"`
	TokenAmount      *float64 `json:"tokenAmount,omitempty"`
	Mint             string   `json:"mint"`
	TokenStandard    *string  `json:"tokenStandard,omitempty"`
}

// From returns the sending wallet of the transfer.
func (t TokenTransfer) From() string {
	if t.FromUserAccount != "" {
		return t.FromUserAccount
	}
	return t.FromUser
}

// To returns the receiving wallet of the transfer.
func (t TokenTransfer) To() string {
	if t.ToUserAccount != "" {
		return t.ToUserAccount
	}
	return t.ToUser
}

// DecodeRawTransaction decodes a single element and keeps its raw bytes.
func DecodeRawTransaction(data []byte) (*RawTransaction, error) {
	var raw RawTransaction
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	raw.Raw = append(json.RawMessage(nil), data...)
	return &raw, nil
}

// BlockTime returns the confirmation time, or nil when the source omitted it.
func (r *RawTransaction) BlockTime() *time.Time {
	if r.Timestamp == nil {
		return nil
	}
	t := time.Unix(*r.Timestamp, 0).UTC()
	return &t
}

// Direction of a movement relative to the tracked wallet.
type Direction string

const (
	DirectionIn   Direction = "in"
	DirectionOut  Direction = "out"
	DirectionNone Direction = "none"
)

// LegKind distinguishes native lamport movements from token movements.
type LegKind string

const (
	LegNative LegKind = "native"
	LegToken  LegKind = "token"
)

// Leg is one directional movement of one asset.
type Leg struct {
	Kind      LegKind   `json:"kind"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Mint      string    `json:"mint"`
	Amount    float64   `json:"amount"`
	Direction Direction `json:"direction"`
}

// Shape is the structural variant of a raw payload, resolved once when
// the payload is classified.
type Shape string

const (
	ShapeNone       Shape = "none"
	ShapeNativeOnly Shape = "native_only"
	ShapeTokenOnly  Shape = "token_only"
	ShapeMixed      Shape = "mixed"
)

// Classification is the normalized view of one raw transaction.
type Classification struct {
	Type      string    `json:"type"`
	Mint      string    `json:"mint"`
	Amount    float64   `json:"amount"`
	Direction Direction `json:"direction"`
	Shape     Shape     `json:"shape"`
	Legs      []Leg     `json:"legs"`
}
