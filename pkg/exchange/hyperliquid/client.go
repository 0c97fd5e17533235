package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"tradeloop/pkg/exchange"
)

const (
	mainnetInfoURL     = "https://api.hyperliquid.xyz/info"
	testnetInfoURL     = "https://api.hyperliquid-testnet.xyz/info"
	defaultHTTPTimeout = 10 * time.Second
	defaultRateLimit   = 5.0
	burstSize          = 2
)

// Client wraps access to the Hyperliquid info endpoint. It never retries on
// its own; the caller's next tick is the retry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the default info endpoint URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burstSize)
		}
	}
}

// NewClient constructs a Hyperliquid info client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:    mainnetInfoURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), burstSize),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// RecentTrades returns the latest public prints for coin.
func (c *Client) RecentTrades(ctx context.Context, coin string) ([]RecentTrade, error) {
	var out []RecentTrade
	if err := c.doRequest(ctx, infoRequest{Type: "recentTrades", Coin: coin}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SpotState returns spot token balances for user.
func (c *Client) SpotState(ctx context.Context, user string) (*SpotState, error) {
	var out SpotState
	if err := c.doRequest(ctx, infoRequest{Type: "spotClearinghouseState", User: user}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doRequest(ctx context.Context, req infoRequest, result any) error {
	op := "hyperliquid: " + req.Type
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return exchange.Transient(op, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return exchange.Transient(op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return exchange.Transient(op, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return exchange.Transient(op, &exchange.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)})
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
