// Package ironbeam implements the REST and WebSocket clients for the IronBeam
// futures API: bearer-token auth, batched quote snapshots, bracket order
// updates, and the live quote stream.
package ironbeam

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"trademgr/internal/domain"
)

// Client is the REST client for the IronBeam API. Call Authenticate before
// any other method; the bearer token it obtains is attached to every request.
type Client struct {
	baseURL    string
	username   string
	apiKey     string
	password   string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient creates an IronBeam REST client.
//
// baseURL is the API root, e.g. "https://demo.ironbeamapi.com/v2".
// password may be empty for demo accounts.
func NewClient(baseURL, username, apiKey, password string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		apiKey:   apiKey,
		password: password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Authenticate exchanges the configured credentials for a bearer token.
func (c *Client) Authenticate(ctx context.Context) error {
	body, err := c.doRequest(ctx, http.MethodPost, "/auth", authRequest{
		Username: c.username,
		APIKey:   c.apiKey,
		Password: c.password,
	}, false)
	if err != nil {
		return fmt.Errorf("ironbeam: authenticate: %w", err)
	}

	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("ironbeam: decode auth response: %w", err)
	}
	if resp.Token == "" {
		return fmt.Errorf("ironbeam: authenticate: %w", domain.ErrUnauthorized)
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	return nil
}

// Token returns the current bearer token, empty before Authenticate.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// GetQuotes fetches a batched quote snapshot and resolves each symbol to a
// single price, preferring the last trade and falling back to the bid/ask
// midpoint. Symbols with no usable price are omitted.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	path := "/market/quotes?symbols=" + url.QueryEscape(strings.Join(symbols, ","))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, fmt.Errorf("ironbeam: get quotes: %w", err)
	}

	var resp quotesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ironbeam: decode quotes: %w", err)
	}

	prices := make(map[string]float64, len(resp.Quotes))
	for _, q := range resp.Quotes {
		dq := domain.Quote{Symbol: q.Symbol, Last: q.LastPrice, Bid: q.BidPrice, Ask: q.AskPrice}
		if price, ok := dq.Price(); ok {
			prices[q.Symbol] = price
		}
	}
	return prices, nil
}

// UpdateOrder modifies the stop-loss or take-profit leg of a working bracket
// order.
func (c *Client) UpdateOrder(ctx context.Context, accountID, orderID string, upd domain.OrderUpdate) error {
	path := fmt.Sprintf("/order/%s/update/%s", url.PathEscape(accountID), url.PathEscape(orderID))
	_, err := c.doRequest(ctx, http.MethodPut, path, orderUpdateRequest{
		Quantity:   upd.Quantity,
		StopLoss:   upd.StopLoss,
		TakeProfit: upd.TakeProfit,
	}, true)
	if err != nil {
		return fmt.Errorf("ironbeam: update order %s: %w", orderID, err)
	}
	return nil
}

// CreateStream allocates a server-side stream and returns the WebSocket URL
// to attach to it. The token rides as a query parameter because the broker's
// stream endpoint does not read headers.
func (c *Client) CreateStream(ctx context.Context) (string, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/stream/create", nil, true)
	if err != nil {
		return "", fmt.Errorf("ironbeam: create stream: %w", err)
	}

	var resp createStreamResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("ironbeam: decode stream response: %w", err)
	}
	if resp.StreamID == "" {
		return "", fmt.Errorf("ironbeam: create stream: empty stream id")
	}

	wsBase := strings.Replace(c.baseURL, "https://", "wss://", 1)
	wsBase = strings.Replace(wsBase, "http://", "ws://", 1)
	return fmt.Sprintf("%s/stream/%s?token=%s", wsBase, url.PathEscape(resp.StreamID), url.QueryEscape(c.Token())), nil
}

// doRequest builds, sends, and reads an HTTP request against the API.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any, authed bool) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if authed {
		token := c.Token()
		if token == "" {
			return nil, domain.ErrUnauthorized
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, apiErr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, apiErr.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %s", apiErr.Message)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, apiErr.Message)
	}
}
