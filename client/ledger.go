// Package client is a typed HTTP client for the ledger query API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/brojonat/mintledger/service/ledger"
)

// Client is the HTTP client for the ledger service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new ledger service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
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

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
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
	return nil
}

// TokenAccount fetches one token account. Unknown addresses return an error
// wrapping ledger.ErrNotFound.
func (c *Client) TokenAccount(ctx context.Context, address string) (*ledger.Account, error) {
	var acct ledger.Account
	if err := c.get(ctx, "/token-account/"+url.PathEscape(address), &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// Balance fetches one account's encoded balance.
func (c *Client) Balance(ctx context.Context, address string) (*ledger.Balance, error) {
	var b ledger.Balance
	if err := c.get(ctx, "/balance/"+url.PathEscape(address), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Mint fetches mint metadata.
func (c *Client) Mint(ctx context.Context, mint string) (*ledger.Mint, error) {
	var m ledger.Mint
	if err := c.get(ctx, "/mint/"+url.PathEscape(mint), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListBalances returns every balance, sorted by address.
func (c *Client) ListBalances(ctx context.Context) ([]ledger.Balance, error) {
	var byAddress map[string]string
	if err := c.get(ctx, "/all-balances", &byAddress); err != nil {
		return nil, err
	}
	out := make([]ledger.Balance, 0, len(byAddress))
	for addr, bal := range byAddress {
		out = append(out, ledger.Balance{Address: addr, Balance: bal})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// ListAccounts returns every token account.
func (c *Client) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	var accounts []ledger.Account
	if err := c.get(ctx, "/all-accounts", &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListEvents queries the event log. Zero filter fields are omitted.
func (c *Client) ListEvents(ctx context.Context, filter ledger.EventFilter) ([]ledger.Event, error) {
	params := url.Values{}
	if filter.Address != "" {
		params.Set("address", filter.Address)
	}
	if filter.Signature != "" {
		params.Set("signature", filter.Signature)
	}
	if filter.Type != "" {
		params.Set("type", string(filter.Type))
	}
	if filter.Limit > 0 {
		params.Set("limit", strconv.Itoa(filter.Limit))
	}

	path := "/events"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var events []ledger.Event
	if err := c.get(ctx, path, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
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
	c.logger.Debug("request completed", "path", path)
	return nil
}

func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", errResp.Error, ledger.ErrNotFound)
	}
	return fmt.Errorf("request failed: %s", errResp.Error)
}
