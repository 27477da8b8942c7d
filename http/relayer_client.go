// Package http is the donor-side client for the gasless swap relayer.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/relayer"
)

// ============================================================================
// HTTP Relayer Client
// ============================================================================

// RelayerClient talks to a relayer service over HTTP
type RelayerClient struct {
	url        string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *zap.Logger
}

// RelayerConfig configures the HTTP relayer client
type RelayerConfig struct {
	// URL is the base URL of the relayer service
	URL string

	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client

	// Timeout for requests (optional, defaults to 30s)
	Timeout time.Duration

	// BreakerFailures opens the circuit after this many consecutive failures (default 5)
	BreakerFailures uint32

	// BreakerCooldown is how long the circuit stays open (default 30s)
	BreakerCooldown time.Duration

	Logger *zap.Logger
}

// DefaultRelayerURL is the relayer served by fundd on the same host
const DefaultRelayerURL = "http://localhost:8080"

// submitRetries is the number of attempts on 429 rate limit errors
const submitRetries = 3

// submitRetryBaseDelay is the base delay for exponential backoff on retries
var submitRetryBaseDelay = 1 * time.Second

// StatusError is a non-2xx relayer response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relayer returned %d: %s", e.StatusCode, e.Message)
}

// NewRelayerClient creates a new HTTP relayer client
func NewRelayerClient(config *RelayerConfig) *RelayerClient {
	if config == nil {
		config = &RelayerConfig{}
	}

	url := config.URL
	if url == "" {
		url = DefaultRelayerURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	failures := config.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := config.BreakerCooldown
	if cooldown == 0 {
		cooldown = 30 * time.Second
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "relayer",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Client errors mean the relayer is healthy and rejected the request.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("relayer circuit state changed", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &RelayerClient{
		url:        strings.TrimSuffix(url, "/"),
		httpClient: httpClient,
		breaker:    breaker,
		logger:     logger.Named("relayerclient"),
	}
}

// ============================================================================
// Relayer operations
// ============================================================================

// SubmitSwap sends a gasless swap. Retries up to 3 times with exponential
// backoff on 429; the relayer deduplicates identical bodies.
func (c *RelayerClient) SubmitSwap(ctx context.Context, req *relayer.SwapRequest) (*relayer.SwapResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal swap request: %w", err)
	}

	var lastErr error
	for attempt := range submitRetries {
		responseBody, err := c.do(ctx, http.MethodPost, "/api/gasless-swap", body)
		if err == nil {
			var resp relayer.SwapResponse
			if err := json.Unmarshal(responseBody, &resp); err != nil {
				return nil, fmt.Errorf("failed to decode swap response: %w", err)
			}
			return &resp, nil
		}
		lastErr = err

		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests && attempt < submitRetries-1 {
			delay := submitRetryBaseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		break
	}

	return nil, toFundError(lastErr)
}

// Status reads the relayer account state.
func (c *RelayerClient) Status(ctx context.Context) (*relayer.Status, error) {
	responseBody, err := c.do(ctx, http.MethodGet, "/api/relayer-status", nil)
	if err != nil {
		return nil, toFundError(err)
	}
	var status relayer.Status
	if err := json.Unmarshal(responseBody, &status); err != nil {
		return nil, fmt.Errorf("failed to decode relayer status: %w", err)
	}
	return &status, nil
}

func (c *RelayerClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("relayer request failed: %w", err)
		}
		defer resp.Body.Close()

		responseBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(responseBody)}
		}
		return responseBody, nil
	})
}

// errorMessage pulls the "error" field out of a JSON error body.
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return string(body)
}

func toFundError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fund.WrapFundError(fund.ErrCodeRelayerUnavailable, "Relayer service temporarily unavailable", err)
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusBadRequest:
			return fund.WrapFundError(fund.ErrCodeInvalidRequest, se.Message, err)
		case se.StatusCode >= 500:
			return fund.WrapFundError(fund.ErrCodeRelayerUnavailable, "Relayer error: "+se.Message, err)
		}
		return err
	}
	return fund.WrapFundError(fund.ErrCodeNetwork, "Network connection error - please check your connection", err)
}
