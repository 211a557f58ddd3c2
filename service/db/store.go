package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/soltrack/service/metrics"
)

// ErrNotFound is returned when a signature is not stored.
var ErrNotFound = errors.New("transaction not found")

// Record is one stored transaction. Signature is the primary key.
type Record struct {
	Signature   string          `json:"signature"`
	Timestamp   *time.Time      `json:"timestamp,omitempty"` // nil when the source omitted it
	Type        string          `json:"type"`
	TokenMint   string          `json:"token_mint"`
	TokenAmount float64         `json:"token_amount"`
	Direction   string          `json:"direction"` // "in", "out" or "none"
	Fee         *int64          `json:"fee,omitempty"`
	RawData     json.RawMessage `json:"raw_data"`
}

// ListParams contains pagination and filter parameters.
type ListParams struct {
	Type   string // empty for all types
	Limit  int
	Offset int
}

// TypeCount is the number of stored records of one type.
type TypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// Store is the persistence contract shared by the SQLite and Postgres backends.
type Store interface {
	// EnsureSchema creates the transactions table if absent.
	EnsureSchema(ctx context.Context) error
	// UpsertMany inserts records whose signature is not stored yet and
	// returns how many rows were inserted. Existing rows are never modified.
	UpsertMany(ctx context.Context, records []Record) (int, error)
	// LatestSignature returns the signature of the newest record, or nil
	// when the store is empty.
	LatestSignature(ctx context.Context) (*string, error)
	GetTransaction(ctx context.Context, signature string) (*Record, error)
	ListTransactions(ctx context.Context, params ListParams) ([]*Record, error)
	ScanAll(ctx context.Context) ([]*Record, error)
	Count(ctx context.Context) (int64, error)
	CountByType(ctx context.Context) ([]TypeCount, error)
	// AggregateByMint sums incoming minus outgoing amounts per mint.
	AggregateByMint(ctx context.Context) (map[string]float64, error)
	Close() error
}

// Options selects and configures a backend. DatabaseURL takes precedence.
type Options struct {
	Path        string
	DatabaseURL string
}

// Open connects to the configured backend and ensures the schema exists.
func Open(ctx context.Context, opts Options, logger *slog.Logger, m *metrics.Metrics) (Store, error) {
	var (
		store Store
		err   error
	)
	if opts.DatabaseURL != "" {
		store, err = NewPostgresStore(ctx, opts.DatabaseURL, logger, m)
	} else {
		store, err = NewSQLiteStore(opts.Path, logger, m)
	}
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return store, nil
}

// Opener hands out a store for one unit of work. Callers close it when done
// so that no connection is held across operations.
type Opener interface {
	Open(ctx context.Context) (Store, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context) (Store, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context) (Store, error) { return f(ctx) }

// NewOpener returns an Opener that calls Open with fixed options.
func NewOpener(opts Options, logger *slog.Logger, m *metrics.Metrics) Opener {
	return OpenerFunc(func(ctx context.Context) (Store, error) {
		return Open(ctx, opts, logger, m)
	})
}

// WithStore opens a store, runs fn and closes the store.
func WithStore(ctx context.Context, opener Opener, fn func(Store) error) error {
	store, err := opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func observe(m *metrics.Metrics, operation string, start time.Time, err error) {
	if m != nil {
		m.RecordDBQuery(operation, "transactions", time.Since(start).Seconds(), err)
	}
}
