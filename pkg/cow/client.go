// Package cow is a client for the CoW Protocol order book API.
package cow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
)

// DefaultBaseURL is the Base order book
const DefaultBaseURL = "https://api.cow.fi/base/api/v1"

// DefaultTimeout is the default HTTP client timeout
const DefaultTimeout = 30 * time.Second

// DefaultQuoteValidity is how long a requested quote stays valid
const DefaultQuoteValidity = time.Hour

// Config configures the order book client
type Config struct {
	// BaseURL defaults to DefaultBaseURL
	BaseURL string
	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client
	// Timeout for requests (optional, defaults to 30s)
	Timeout time.Duration
	// RequestsPerSecond caps outgoing calls, defaults to 5
	RequestsPerSecond float64
	Logger            *zap.Logger
}

// APIError is a non-2xx response from the order book.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cow api returned %d: %s", e.StatusCode, e.Body)
}

// Client talks to the CoW Protocol order book over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient creates a new order book client
func NewClient(config Config) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		logger:     logger.Named("cow"),
		now:        time.Now,
	}
}

// SellQuoteRequest builds the standard USDC → WETH sell quote for owner.
func SellQuoteRequest(sellToken, buyToken, owner string, sellAmount string, validTo time.Time) QuoteRequest {
	return QuoteRequest{
		SellToken:           evm.NormalizeAddress(sellToken),
		BuyToken:            evm.NormalizeAddress(buyToken),
		From:                evm.NormalizeAddress(owner),
		Receiver:            evm.NormalizeAddress(owner),
		SellAmountBeforeFee: sellAmount,
		Kind:                KindSell,
		ValidTo:             uint32(validTo.Unix()),
		AppData:             ZeroAppData,
		PartiallyFillable:   false,
		SellTokenBalance:    BalanceERC20,
		BuyTokenBalance:     BalanceERC20,
		SigningScheme:       SigningSchemeEIP712,
	}
}

// Quote requests a price for req.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if req.Kind == "" {
		req.Kind = KindSell
	}
	if req.ValidTo == 0 {
		req.ValidTo = uint32(c.now().Add(DefaultQuoteValidity).Unix())
	}

	var quote Quote
	if err := c.do(ctx, http.MethodPost, "/quote", req, &quote); err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	c.logger.Debug("quote received",
		zap.String("sellAmount", quote.Quote.SellAmount),
		zap.String("buyAmount", quote.Quote.BuyAmount),
		zap.String("feeAmount", quote.Quote.FeeAmount),
		zap.Uint32("validTo", quote.Quote.ValidTo))
	return &quote, nil
}

// FreshQuote returns prev while it is still valid, otherwise fetches a new quote.
func (c *Client) FreshQuote(ctx context.Context, req QuoteRequest, prev *Quote) (*Quote, error) {
	if prev != nil && !prev.Stale(c.now()) {
		return prev, nil
	}
	return c.Quote(ctx, req)
}

// SubmitOrder posts a signed order and returns its UID.
func (c *Client) SubmitOrder(ctx context.Context, order SignedOrder) (string, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/orders", order, &raw); err != nil {
		return "", fmt.Errorf("failed to submit order: %w", err)
	}
	uid, err := decodeOrderUID(raw)
	if err != nil {
		return "", fmt.Errorf("failed to submit order: %w", err)
	}
	c.logger.Info("order submitted", zap.String("uid", uid))
	return uid, nil
}

// decodeOrderUID accepts both the bare string and the {"orderUid": ...} shapes.
func decodeOrderUID(raw json.RawMessage) (string, error) {
	var uid string
	if err := json.Unmarshal(raw, &uid); err == nil && uid != "" {
		return uid, nil
	}
	var wrapped struct {
		OrderUID string `json:"orderUid"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil || wrapped.OrderUID == "" {
		return "", fmt.Errorf("response has no order uid: %s", string(raw))
	}
	return wrapped.OrderUID, nil
}

// OrderStatus returns the current state of uid. For a fulfilled order
// without an inline tx hash the settlement is looked up from its trades.
func (c *Client) OrderStatus(ctx context.Context, uid string) (*OrderInfo, error) {
	var info OrderInfo
	if err := c.do(ctx, http.MethodGet, "/orders/"+uid, nil, &info); err != nil {
		return nil, fmt.Errorf("failed to get order status: %w", err)
	}
	if info.UID == "" {
		info.UID = uid
	}

	if info.Status == "fulfilled" && info.TxHash == "" {
		trades, err := c.Trades(ctx, uid)
		if err != nil {
			c.logger.Warn("trade lookup failed", zap.String("uid", uid), zap.Error(err))
		} else if len(trades) > 0 {
			info.TxHash = trades[len(trades)-1].TxHash
		}
	}
	return &info, nil
}

// Trades lists the settlements of uid.
func (c *Client) Trades(ctx context.Context, uid string) ([]Trade, error) {
	var trades []Trade
	if err := c.do(ctx, http.MethodGet, "/trades?orderUid="+uid, nil, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(responseBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
