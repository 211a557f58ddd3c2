// Package sync pulls new wallet transactions from the remote source,
// classifies them and stores them idempotently.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/brojonat/soltrack/service/config"
	"github.com/brojonat/soltrack/service/db"
	"github.com/brojonat/soltrack/service/helius"
	"github.com/brojonat/soltrack/service/metrics"
	"github.com/brojonat/soltrack/service/nats"
	"github.com/brojonat/soltrack/service/solana"
)

// Source returns one newest-first page of raw transactions for a wallet.
type Source interface {
	FetchTransactions(ctx context.Context, wallet string, params helius.FetchParams) ([]json.RawMessage, error)
}

// Result reports the outcome of one sync run. Error is nil on success.
type Result struct {
	// NewCount is the number of rows actually inserted.
	NewCount int `json:"new_count"`
	// Processed is the number of records handed to the store.
	Processed int `json:"processed"`
	// Skipped is the number of processed records that were already stored.
	Skipped int `json:"skipped"`
	// Failed is the number of elements that could not be stored at all.
	Failed int `json:"failed"`
	Pages  int `json:"pages"`
	// Cursor is the stored signature the run resumed from.
	Cursor *string `json:"cursor,omitempty"`
	// Truncated is set when the page budget ran out before the cursor or
	// the end of history was reached. Nothing is stored in that case.
	Truncated bool    `json:"truncated,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// OK reports whether the run succeeded.
func (r *Result) OK() bool {
	return r.Error == nil
}

// Engine runs incremental syncs for the configured wallet.
type Engine struct {
	wallet    string
	source    Source
	opener    db.Opener
	publisher nats.Publisher
	pageLimit int
	maxPages  int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewEngine creates an engine from explicit configuration. publisher may be
// nil to disable event publication.
func NewEngine(cfg *config.Config, source Source, opener db.Opener, publisher nats.Publisher, logger *slog.Logger, m *metrics.Metrics) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := checkCredentials(cfg.WalletAddress, cfg.HeliusAPIKey); err != nil {
		return nil, err
	}
	if source == nil || opener == nil {
		return nil, fmt.Errorf("source and opener are required")
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	pageLimit := cfg.SyncPageLimit
	if pageLimit < 1 {
		pageLimit = 100
	}
	maxPages := cfg.SyncMaxPages
	if maxPages < 1 {
		maxPages = 50
	}

	return &Engine{
		wallet:    cfg.WalletAddress,
		source:    source,
		opener:    opener,
		publisher: publisher,
		pageLimit: pageLimit,
		maxPages:  maxPages,
		logger:    logger,
		metrics:   m,
	}, nil
}

func checkCredentials(wallet, apiKey string) error {
	var errs []error
	if wallet == "" {
		errs = append(errs, errors.New("wallet address is required"))
	}
	if apiKey == "" {
		errs = append(errs, errors.New("helius api key is required"))
	}
	return errors.Join(errs...)
}

// Sync fetches every transaction newer than the latest stored one and
// stores it. Failures are reported in the result, never returned or panicked.
// Nothing is written unless every page was fetched successfully.
func (e *Engine) Sync(ctx context.Context) *Result {
	start := time.Now()
	result := &Result{}
	fetched := 0

	err := e.run(ctx, result, &fetched)
	if err != nil {
		msg := err.Error()
		result.Error = &msg
		e.logger.ErrorContext(ctx, "sync failed",
			"wallet", e.wallet,
			"pages", result.Pages,
			"error", err,
		)
	} else {
		e.logger.InfoContext(ctx, "sync completed",
			"wallet", e.wallet,
			"pages", result.Pages,
			"new", result.NewCount,
			"processed", result.Processed,
			"skipped", result.Skipped,
			"failed", result.Failed,
			"duration", time.Since(start),
		)
	}

	e.metrics.RecordSync(time.Since(start).Seconds(), result.Pages, fetched,
		result.NewCount, result.Skipped, result.Failed, err)
	return result
}

func (e *Engine) run(ctx context.Context, result *Result, fetched *int) error {
	if e.source == nil || e.opener == nil {
		return fmt.Errorf("sync engine is not configured")
	}
	if e.wallet == "" {
		return fmt.Errorf("wallet address is required")
	}

	var cursor *string
	err := db.WithStore(ctx, e.opener, func(store db.Store) error {
		var err error
		cursor, err = store.LatestSignature(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to read cursor: %w", err)
	}
	result.Cursor = cursor

	elements, err := e.fetchSince(ctx, cursor, result)
	if err != nil {
		return err
	}
	*fetched = len(elements)

	records := e.buildRecords(ctx, elements, result)
	result.Processed = len(records)
	if len(records) == 0 {
		return nil
	}

	var fresh []db.Record
	err = db.WithStore(ctx, e.opener, func(store db.Store) error {
		if e.publisher != nil {
			var err error
			if fresh, err = unstored(ctx, store, records); err != nil {
				return err
			}
		}
		inserted, err := store.UpsertMany(ctx, records)
		if err != nil {
			return err
		}
		result.NewCount = inserted
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store transactions: %w", err)
	}
	result.Skipped = result.Processed - result.NewCount

	e.publish(ctx, fresh)
	return nil
}

// fetchSince pages backwards from the newest transaction until the cursor
// is reached. Every request is bounded by until=cursor; the elements from
// the cursor onward are dropped in case the source ignores the bound.
func (e *Engine) fetchSince(ctx context.Context, cursor *string, result *Result) ([]json.RawMessage, error) {
	params := helius.FetchParams{Limit: e.pageLimit}
	if cursor != nil {
		params.Until = *cursor
	}

	var collected []json.RawMessage
	for result.Pages < e.maxPages {
		page, err := e.source.FetchTransactions(ctx, e.wallet, params)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch transactions: %w", err)
		}
		result.Pages++

		reachedCursor := false
		for _, element := range page {
			if cursor != nil && peekSignature(element) == *cursor {
				reachedCursor = true
				break
			}
			collected = append(collected, element)
		}

		if reachedCursor || len(page) < e.pageLimit {
			return collected, nil
		}
		oldest := peekSignature(page[len(page)-1])
		if oldest == "" {
			e.logger.WarnContext(ctx, "stopping pagination at element without signature",
				"wallet", e.wallet,
				"page", result.Pages,
			)
			return collected, nil
		}
		params.Before = oldest
	}

	// Storing only the newest pages would move the cursor past a gap that
	// later runs never fetch.
	result.Truncated = true
	e.logger.WarnContext(ctx, "reached page limit before cursor",
		"wallet", e.wallet,
		"max_pages", e.maxPages,
		"fetched", len(collected),
	)
	return nil, fmt.Errorf("history exceeds %d pages of %d transactions before reaching the stored cursor; nothing was stored, raise SYNC_MAX_PAGES", e.maxPages, e.pageLimit)
}

// buildRecords decodes and classifies each element independently.
func (e *Engine) buildRecords(ctx context.Context, elements []json.RawMessage, result *Result) []db.Record {
	records := make([]db.Record, 0, len(elements))
	for _, element := range elements {
		raw, err := solana.DecodeRawTransaction(element)
		if err != nil {
			sig := peekSignature(element)
			if sig == "" {
				result.Failed++
				e.logger.WarnContext(ctx, "skipping undecodable transaction without signature", "error", err)
				continue
			}
			e.logger.WarnContext(ctx, "storing undecodable transaction with defaults",
				"signature", sig,
				"error", err,
			)
			records = append(records, defaultRecord(sig, element))
			e.metrics.RecordClassified(solana.TypeUnknown, string(solana.ShapeNone))
			continue
		}
		if raw.Signature == "" {
			result.Failed++
			e.logger.WarnContext(ctx, "skipping transaction without signature")
			continue
		}

		c := solana.Classify(raw, e.wallet)
		e.metrics.RecordClassified(c.Type, string(c.Shape))
		records = append(records, db.Record{
			Signature:   raw.Signature,
			Timestamp:   raw.BlockTime(),
			Type:        c.Type,
			TokenMint:   c.Mint,
			TokenAmount: c.Amount,
			Direction:   string(c.Direction),
			Fee:         raw.Fee,
			RawData:     raw.Raw,
		})
	}
	return records
}

func (e *Engine) publish(ctx context.Context, records []db.Record) {
	if e.publisher == nil || len(records) == 0 {
		return
	}
	events := make([]*nats.TransactionEvent, len(records))
	for i := range records {
		events[i] = nats.FromRecord(e.wallet, &records[i])
	}
	if err := e.publisher.PublishTransactionBatch(ctx, events); err != nil {
		e.logger.WarnContext(ctx, "failed to publish transaction events",
			"wallet", e.wallet,
			"count", len(events),
			"error", err,
		)
	}
}

// unstored returns the records whose signature is not stored yet, once each.
func unstored(ctx context.Context, store db.Store, records []db.Record) ([]db.Record, error) {
	seen := make(map[string]bool, len(records))
	var fresh []db.Record
	for _, r := range records {
		if seen[r.Signature] {
			continue
		}
		seen[r.Signature] = true
		_, err := store.GetTransaction(ctx, r.Signature)
		if errors.Is(err, db.ErrNotFound) {
			fresh = append(fresh, r)
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

func defaultRecord(signature string, element json.RawMessage) db.Record {
	return db.Record{
		Signature: signature,
		Type:      solana.TypeUnknown,
		TokenMint: solana.NativeMint,
		Direction: string(solana.DirectionNone),
		RawData:   element,
	}
}

// peekSignature reads only the signature field of an element.
func peekSignature(element json.RawMessage) string {
	var head struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(element, &head); err != nil {
		return ""
	}
	return head.Signature
}
