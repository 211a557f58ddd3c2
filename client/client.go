// Package client is the HTTP client for the soltrack dashboard API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// SyncResult is the outcome of a sync run on the server.
type SyncResult struct {
	NewCount  int     `json:"new_count"`
	Processed int     `json:"processed"`
	Skipped   int     `json:"skipped"`
	Failed    int     `json:"failed"`
	Pages     int     `json:"pages"`
	Cursor    *string `json:"cursor,omitempty"`
	Truncated bool    `json:"truncated,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// Position is the valuation of one held mint.
type Position struct {
	Mint       string          `json:"mint"`
	Symbol     string          `json:"symbol"`
	Balance    decimal.Decimal `json:"balance"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// Portfolio is the valued holdings of the tracked wallet.
type Portfolio struct {
	Currency  string          `json:"currency"`
	FXRate    decimal.Decimal `json:"fx_rate"`
	Positions []Position      `json:"positions"`
	Total     decimal.Decimal `json:"total"`
	Display   string          `json:"display"`
}

// Transaction is a stored transaction as returned by the API.
type Transaction struct {
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

// ListParams filters and pages ListTransactions. Zero values use server defaults.
type ListParams struct {
	Type       string
	Limit      int
	Offset     int
	IncludeRaw bool
}

// Client is the HTTP client for the soltrack dashboard API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new dashboard API client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Sync asks the server to run a sync. A failed run returns both the result
// and an error carrying the reported failure.
func (c *Client) Sync(ctx context.Context) (*SyncResult, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/sync", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadGateway {
		return nil, c.parseErrorResponse(resp)
	}

	var result SyncResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != nil {
		return &result, fmt.Errorf("sync failed: %s", *result.Error)
	}

	c.logger.Debug("sync completed", "new", result.NewCount, "pages", result.Pages)
	return &result, nil
}

// Holdings retrieves the valued holdings.
func (c *Client) Holdings(ctx context.Context) (*Portfolio, error) {
	var portfolio Portfolio
	if err := c.get(ctx, "/api/v1/holdings", &portfolio); err != nil {
		return nil, err
	}
	return &portfolio, nil
}

// ListTransactions retrieves stored transactions newest first.
func (c *Client) ListTransactions(ctx context.Context, params ListParams) ([]*Transaction, error) {
	q := url.Values{}
	if params.Type != "" {
		q.Set("type", params.Type)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}
	if params.IncludeRaw {
		q.Set("raw", "true")
	}
	path := "/api/v1/transactions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var response struct {
		Transactions []*Transaction `json:"transactions"`
	}
	if err := c.get(ctx, path, &response); err != nil {
		return nil, err
	}
	return response.Transactions, nil
}

// GetTransaction retrieves one stored transaction with its raw payload.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	var txn Transaction
	if err := c.get(ctx, "/api/v1/transactions/"+url.PathEscape(signature), &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
