package nats

import (
	"encoding/json"
	"time"

	"github.com/brojonat/soltrack/service/db"
)

// TransactionEvent is published to "txns.{wallet_address}" for every newly
// stored transaction.
type TransactionEvent struct {
	Signature     string `json:"signature"`
	WalletAddress string `json:"wallet_address"`

	Type      string  `json:"type"`
	TokenMint string  `json:"token_mint"`
	Amount    float64 `json:"amount"`
	Direction string  `json:"direction"`
	Fee       *int64  `json:"fee,omitempty"`

	BlockTime *time.Time      `json:"block_time,omitempty"`
	RawData   json.RawMessage `json:"raw_data,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// FromRecord converts a stored record to a TransactionEvent for wallet.
func FromRecord(wallet string, r *db.Record) *TransactionEvent {
	return &TransactionEvent{
		Signature:     r.Signature,
		WalletAddress: wallet,
		Type:          r.Type,
		TokenMint:     r.TokenMint,
		Amount:        r.TokenAmount,
		Direction:     r.Direction,
		Fee:           r.Fee,
		BlockTime:     r.Timestamp,
		RawData:       r.RawData,
		PublishedAt:   time.Now().UTC(),
	}
}

// Subject returns the subject an event for wallet is published on.
func Subject(wallet string) string {
	return "txns." + wallet
}
