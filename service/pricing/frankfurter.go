package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brojonat/soltrack/service/metrics"
	"github.com/shopspring/decimal"
)

// DefaultFallbackRate is the USD to EUR rate used when the lookup fails.
const DefaultFallbackRate = 0.93

// Frankfurter looks up exchange rates from the frankfurter API.
type Frankfurter struct {
	baseURL    string
	fallback   decimal.Decimal
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewFrankfurter creates a rate source that answers fallback on any failure.
func NewFrankfurter(baseURL string, fallback float64, httpClient *http.Client, logger *slog.Logger, m *metrics.Metrics) *Frankfurter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Frankfurter{
		baseURL:    baseURL,
		fallback:   decimal.NewFromFloat(fallback),
		httpClient: httpClient,
		logger:     logger,
		metrics:    m,
	}
}

// Rate returns the latest from->to rate, or the fallback rate.
func (f *Frankfurter) Rate(ctx context.Context, from, to string) decimal.Decimal {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1)
	}

	start := time.Now()
	rate, err := f.fetch(ctx, from, to)
	f.metrics.RecordRemoteCall("frankfurter", "latest", time.Since(start).Seconds(), err)
	if err != nil {
		f.logger.WarnContext(ctx, "using fallback exchange rate",
			"from", from,
			"to", to,
			"fallback", f.fallback.String(),
			"error", err,
		)
		f.metrics.RecordFXFallback()
		return f.fallback
	}
	return rate
}

func (f *Frankfurter) fetch(ctx context.Context, from, to string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/latest?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var payload struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode response: %w", err)
	}

	rate, ok := payload.Rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("rate for %s missing from response", to)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive rate %s for %s", rate, to)
	}
	return rate, nil
}
