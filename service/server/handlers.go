package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/brojonat/soltrack/service/db"
	"github.com/brojonat/soltrack/service/solana"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	maxSignatureLen  = 128
)

// transactionResponse is the JSON response format for a stored transaction.
type transactionResponse struct {
	Signature   string          `json:"signature"`
	Timestamp   *time.Time      `json:"timestamp,omitempty"`
	Type        string          `json:"type"`
	TokenMint   string          `json:"token_mint"`
	Symbol      string          `json:"symbol"`
	TokenAmount float64         `json:"token_amount"`
	Direction   string          `json:"direction"`
	Fee         *int64          `json:"fee,omitempty"`
	RawData     json.RawMessage `json:"raw_data,omitempty"`
}

func recordToResponse(r *db.Record, includeRaw bool) transactionResponse {
	resp := transactionResponse{
		Signature:   r.Signature,
		Timestamp:   r.Timestamp,
		Type:        r.Type,
		TokenMint:   r.TokenMint,
		Symbol:      solana.Symbol(r.TokenMint),
		TokenAmount: r.TokenAmount,
		Direction:   r.Direction,
		Fee:         r.Fee,
	}
	if includeRaw {
		resp.RawData = r.RawData
	}
	return resp
}

// swapResponse shows what the wallet sent and received in one swap.
type swapResponse struct {
	Signature string        `json:"signature"`
	Timestamp *time.Time    `json:"timestamp,omitempty"`
	Sent      []solana.Flow `json:"sent"`
	Received  []solana.Flow `json:"received"`
}

// summaryResponse is the store overview shown at the top of the dashboard.
type summaryResponse struct {
	Total           int64                 `json:"total"`
	ByType          []db.TypeCount        `json:"by_type"`
	LatestSignature *string               `json:"latest_signature,omitempty"`
	Recent          []transactionResponse `json:"recent"`
}

// handleSummary returns counts per type and the most recent transactions.
// GET /api/v1/summary
func handleSummary(opener db.Opener, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		summary, err := loadSummary(r, opener, 10)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to load summary", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, summary, http.StatusOK)
	})
}

func loadSummary(r *http.Request, opener db.Opener, recent int) (*summaryResponse, error) {
	ctx := r.Context()
	summary := &summaryResponse{ByType: []db.TypeCount{}, Recent: []transactionResponse{}}
	err := db.WithStore(ctx, opener, func(store db.Store) error {
		var err error
		if summary.Total, err = store.Count(ctx); err != nil {
			return err
		}
		counts, err := store.CountByType(ctx)
		if err != nil {
			return err
		}
		if counts != nil {
			summary.ByType = counts
		}
		if summary.LatestSignature, err = store.LatestSignature(ctx); err != nil {
			return err
		}
		records, err := store.ListTransactions(ctx, db.ListParams{Limit: recent})
		if err != nil {
			return err
		}
		for _, rec := range records {
			summary.Recent = append(summary.Recent, recordToResponse(rec, false))
		}
		return nil
	})
	return summary, err
}

// handleListTransactions lists stored transactions newest first.
// GET /api/v1/transactions?type=SWAP&limit=N&offset=N&raw=true
func handleListTransactions(opener db.Opener, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		limit, offset, err := parsePagination(query.Get("limit"), query.Get("offset"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		txType := query.Get("type")
		includeRaw := query.Get("raw") == "true"

		var records []*db.Record
		err = db.WithStore(r.Context(), opener, func(store db.Store) error {
			var err error
			records, err = store.ListTransactions(r.Context(), db.ListParams{Type: txType, Limit: limit, Offset: offset})
			return err
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list transactions", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.DebugContext(r.Context(), "transactions listed", "type", txType, "count", len(records))

		resp := make([]transactionResponse, len(records))
		for i, rec := range records {
			resp[i] = recordToResponse(rec, includeRaw)
		}
		writeJSON(w, map[string]interface{}{
			"transactions": resp,
			"count":        len(resp),
			"limit":        limit,
			"offset":       offset,
		}, http.StatusOK)
	})
}

// handleGetTransaction returns one transaction with its raw payload and legs.
// GET /api/v1/transactions/{signature}
func handleGetTransaction(opener db.Opener, wallet string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature := r.PathValue("signature")
		if signature == "" || len(signature) > maxSignatureLen {
			writeError(w, "invalid signature", http.StatusBadRequest)
			return
		}

		var rec *db.Record
		err := db.WithStore(r.Context(), opener, func(store db.Store) error {
			var err error
			rec, err = store.GetTransaction(r.Context(), signature)
			return err
		})
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, "transaction not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get transaction", "signature", signature, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := struct {
			transactionResponse
			Legs []solana.Leg `json:"legs"`
		}{transactionResponse: recordToResponse(rec, true), Legs: []solana.Leg{}}
		if raw, err := solana.DecodeRawTransaction(rec.RawData); err == nil {
			if legs := solana.Legs(raw, wallet); len(legs) > 0 {
				resp.Legs = legs
			}
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleListSwaps lists swaps with per-mint sent and received totals.
// GET /api/v1/swaps?limit=N&offset=N
func handleListSwaps(opener db.Opener, wallet string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		limit, offset, err := parsePagination(query.Get("limit"), query.Get("offset"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		var records []*db.Record
		err = db.WithStore(r.Context(), opener, func(store db.Store) error {
			var err error
			records, err = store.ListTransactions(r.Context(), db.ListParams{Type: solana.TypeSwap, Limit: limit, Offset: offset})
			return err
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list swaps", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		swaps := make([]swapResponse, 0, len(records))
		for _, rec := range records {
			b, err := solana.BreakdownOfRaw(rec.RawData, wallet)
			if err != nil {
				logger.DebugContext(r.Context(), "skipping swap with unreadable payload", "signature", rec.Signature, "error", err)
				continue
			}
			swaps = append(swaps, swapResponse{
				Signature: rec.Signature,
				Timestamp: rec.Timestamp,
				Sent:      b.SentFlows(),
				Received:  b.ReceivedFlows(),
			})
		}
		writeJSON(w, map[string]interface{}{
			"swaps": swaps,
			"count": len(swaps),
		}, http.StatusOK)
	})
}

// handleHoldings returns the valued holdings of the tracked wallet.
// GET /api/v1/holdings
func handleHoldings(valuer Valuer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		portfolio, err := valuer.NetWorth(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to compute holdings", "error", err)
			writeError(w, "failed to compute holdings", http.StatusInternalServerError)
			return
		}
		writeJSON(w, portfolio, http.StatusOK)
	})
}

// handleSync runs one sync. Concurrent triggers wait for the running sync.
// POST /api/v1/sync
func handleSync(syncer Syncer, mu *sync.Mutex, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		result := syncer.Sync(r.Context())
		if !result.OK() {
			logger.WarnContext(r.Context(), "sync triggered via API failed", "error", *result.Error)
			writeJSON(w, result, http.StatusBadGateway)
			return
		}
		writeJSON(w, result, http.StatusOK)
	})
}

// parsePagination parses limit (default 100, max 1000) and offset (default 0).
func parsePagination(limitStr, offsetStr string) (int, int, error) {
	limit := defaultListLimit
	if limitStr != "" {
		var parsed int
		if _, err := fmt.Sscanf(limitStr, "%d", &parsed); err != nil {
			return 0, 0, errors.New("invalid limit parameter: must be an integer")
		}
		if parsed < 1 {
			return 0, 0, errors.New("limit must be at least 1")
		}
		if parsed > maxListLimit {
			return 0, 0, fmt.Errorf("limit cannot exceed %d", maxListLimit)
		}
		limit = parsed
	}

	offset := 0
	if offsetStr != "" {
		var parsed int
		if _, err := fmt.Sscanf(offsetStr, "%d", &parsed); err != nil {
			return 0, 0, errors.New("invalid offset parameter: must be an integer")
		}
		if parsed < 0 {
			return 0, 0, errors.New("offset cannot be negative")
		}
		offset = parsed
	}
	return limit, offset, nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]string{"error": message}, statusCode)
}
