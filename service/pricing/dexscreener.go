package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brojonat/soltrack/service/metrics"
	"github.com/shopspring/decimal"
)

// DefaultChunkSize is the maximum number of identifiers per request.
const DefaultChunkSize = 30

// DexScreener quotes token prices from the DexScreener token endpoint.
type DexScreener struct {
	baseURL    string
	chunkSize  int
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewDexScreener creates a quote source. A chunkSize below 1 uses DefaultChunkSize.
func NewDexScreener(baseURL string, chunkSize int, httpClient *http.Client, logger *slog.Logger, m *metrics.Metrics) *DexScreener {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &DexScreener{
		baseURL:    baseURL,
		chunkSize:  chunkSize,
		httpClient: httpClient,
		logger:     logger,
		metrics:    m,
	}
}

type tokensResponse struct {
	Pairs []struct {
		BaseToken struct {
			Address string `json:"address"`
		} `json:"baseToken"`
		PriceUSD string `json:"priceUsd"`
	} `json:"pairs"`
}

// Prices looks up mints in chunks. A failed chunk is logged and its mints
// are left unpriced; only context cancellation is returned as an error.
func (d *DexScreener) Prices(ctx context.Context, mints []string) (map[string]decimal.Decimal, error) {
	ids := make([]string, 0, len(mints))
	seen := make(map[string]bool)
	for _, mint := range mints {
		id := quoteIdentifier(mint)
		if len(id) <= minIdentifierLength || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	byID := make(map[string]decimal.Decimal)
	for start := 0; start < len(ids); start += d.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+d.chunkSize, len(ids))
		chunk := ids[start:end]

		prices, err := d.fetchChunk(ctx, chunk)
		if err != nil {
			d.logger.WarnContext(ctx, "failed to fetch price chunk",
				"size", len(chunk),
				"error", err,
			)
			continue
		}
		for id, price := range prices {
			byID[id] = price
		}
	}

	result := make(map[string]decimal.Decimal, len(mints))
	for _, mint := range mints {
		if price, ok := byID[quoteIdentifier(mint)]; ok {
			result[mint] = price
		}
	}
	return result, nil
}

func (d *DexScreener) fetchChunk(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	start := time.Now()
	prices, err := d.doFetchChunk(ctx, ids)
	d.metrics.RecordRemoteCall("dexscreener", "tokens", time.Since(start).Seconds(), err)
	return prices, err
}

func (d *DexScreener) doFetchChunk(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	u := fmt.Sprintf("%s/latest/dex/tokens/%s", d.baseURL, strings.Join(ids, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var payload tokensResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	prices := make(map[string]decimal.Decimal)
	for _, pair := range payload.Pairs {
		addr := pair.BaseToken.Address
		if addr == "" {
			continue
		}
		// The first pair listed for a token wins.
		if _, ok := prices[addr]; ok {
			continue
		}
		price, err := decimal.NewFromString(pair.PriceUSD)
		if err != nil {
			d.logger.DebugContext(ctx, "skipping pair without usable price",
				"mint", addr,
				"price_usd", pair.PriceUSD,
			)
			continue
		}
		prices[addr] = price
	}
	return prices, nil
}
