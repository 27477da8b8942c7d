package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

// DefaultCoinGeckoURL is the public simple-price endpoint
const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3/simple/price"

// DefaultTimeout is the default HTTP client timeout
const DefaultTimeout = 10 * time.Second

// ErrNoPrice is returned when the response lacks the requested pair.
var ErrNoPrice = errors.New("price: no price in response")

// CoinGeckoConfig configures the CoinGecko source
type CoinGeckoConfig struct {
	// URL of the simple/price endpoint, defaults to DefaultCoinGeckoURL
	URL string
	// CoinID is the asset id, defaults to "ethereum"
	CoinID string
	// Currency is the quote currency, defaults to "usd"
	Currency string
	// Timeout for requests, defaults to 10s
	Timeout    time.Duration
	HTTPClient *http.Client
	// BreakerFailures opens the breaker after this many consecutive failures, defaults to 5
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open, defaults to 60s
	BreakerCooldown time.Duration
}

// CoinGecko fetches spot prices from the CoinGecko API.
// Calls go through a circuit breaker so a failing API is not hammered on every tick.
type CoinGecko struct {
	url        string
	coinID     string
	currency   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[decimal.Decimal]
}

// NewCoinGecko creates a CoinGecko price source
func NewCoinGecko(config CoinGeckoConfig) *CoinGecko {
	endpoint := config.URL
	if endpoint == "" {
		endpoint = DefaultCoinGeckoURL
	}
	coinID := config.CoinID
	if coinID == "" {
		coinID = "ethereum"
	}
	currency := config.Currency
	if currency == "" {
		currency = "usd"
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	failures := config.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := config.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[decimal.Decimal](gobreaker.Settings{
		Name:        "coingecko",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &CoinGecko{
		url:        strings.TrimSuffix(endpoint, "/"),
		coinID:     coinID,
		currency:   currency,
		httpClient: httpClient,
		breaker:    breaker,
	}
}

// Name identifies the source in logs
func (c *CoinGecko) Name() string {
	return "coingecko"
}

// FetchUSD returns the current price of CoinID in Currency.
func (c *CoinGecko) FetchUSD(ctx context.Context) (decimal.Decimal, error) {
	return c.breaker.Execute(func() (decimal.Decimal, error) {
		return c.fetch(ctx)
	})
}

func (c *CoinGecko) fetch(ctx context.Context) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("ids", c.coinID)
	query.Set("vs_currencies", c.currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+query.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price API returned status %d", resp.StatusCode)
	}

	var body map[string]map[string]json.Number
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price response: %w", err)
	}

	raw, ok := body[c.coinID][c.currency]
	if !ok {
		return decimal.Zero, ErrNoPrice
	}
	value, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q: %w", raw, err)
	}
	if value.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("non-positive price %s", value)
	}
	return value, nil
}
