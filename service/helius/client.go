// Package helius fetches enhanced transaction history for a wallet.
package helius

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/brojonat/soltrack/service/metrics"
)

// ErrUnexpectedResponse is returned when the body is neither a list nor an error object.
var ErrUnexpectedResponse = errors.New("unexpected response shape")

// APIError is an error reported by the API, either through a non-2xx
// status or an {"error": ...} body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("helius api error (status %d): %s", e.StatusCode, e.Message)
}

// FetchParams bounds one page request. Empty signatures are omitted.
type FetchParams struct {
	// Before returns only transactions older than this signature.
	Before string
	// Until stops the listing at this signature (exclusive).
	Until string
	Limit int
}

// Client is the HTTP client for the enhanced transactions API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a new client. If httpClient is nil, a client with a 10s
// timeout is used.
func NewClient(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
		metrics:    m,
	}
}

// FetchTransactions returns one newest-first page of raw transaction
// elements for wallet. Elements are returned undecoded so that callers can
// decode and store each one independently.
func (c *Client) FetchTransactions(ctx context.Context, wallet string, params FetchParams) ([]json.RawMessage, error) {
	start := time.Now()
	page, err := c.fetch(ctx, wallet, params)
	c.metrics.RecordRemoteCall("helius", "fetch_transactions", time.Since(start).Seconds(), err)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to fetch transactions",
			"wallet", wallet,
			"before", params.Before,
			"until", params.Until,
			"error", err,
		)
		return nil, err
	}

	c.logger.DebugContext(ctx, "fetched transaction page",
		"wallet", wallet,
		"count", len(page),
		"before", params.Before,
		"until", params.Until,
	)
	return page, nil
}

func (c *Client) fetch(ctx context.Context, wallet string, params FetchParams) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("api-key", c.apiKey)
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Before != "" {
		q.Set("before", params.Before)
	}
	if params.Until != "" {
		q.Set("until", params.Until)
	}
	u := fmt.Sprintf("%s/v0/addresses/%s/transactions?%s", c.baseURL, url.PathEscape(wallet), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", c.redact(err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", c.redact(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}
	return decodePage(resp.StatusCode, body)
}

// decodePage accepts a JSON list and rejects every other shape.
func decodePage(status int, body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrUnexpectedResponse)
	}

	switch trimmed[0] {
	case '[':
		var page []json.RawMessage
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return page, nil
	case '{':
		return nil, parseErrorResponse(status, trimmed)
	default:
		return nil, fmt.Errorf("%w: %.64s", ErrUnexpectedResponse, trimmed)
	}
}

// parseErrorResponse turns an error body into an APIError when it carries
// an "error" field.
func parseErrorResponse(status int, body []byte) error {
	var errResp struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || len(errResp.Error) == 0 {
		if status >= 200 && status < 300 {
			return fmt.Errorf("%w: %.64s", ErrUnexpectedResponse, body)
		}
		return &APIError{StatusCode: status, Message: string(body)}
	}

	var msg string
	if err := json.Unmarshal(errResp.Error, &msg); err != nil {
		msg = string(errResp.Error)
	}
	return &APIError{StatusCode: status, Message: msg}
}

// redact strips the query string, which carries the api key, from URL errors.
func (c *Client) redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if u, perr := url.Parse(urlErr.URL); perr == nil {
			u.RawQuery = ""
			urlErr.URL = u.String()
		}
	}
	return err
}
