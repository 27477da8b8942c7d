// Package tokenmetadata looks up ERC-20 capabilities from a hosted token index.
package tokenmetadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
)

// DefaultBaseURL is the default URL for the token metadata API
const DefaultBaseURL = "https://tokens.anyspend.com"

// DefaultTimeout is the default HTTP client timeout
const DefaultTimeout = 10 * time.Second

// TokenMetadata represents the response from the token metadata API
type TokenMetadata struct {
	ChainID         int    `json:"chainId"`
	TokenAddress    string `json:"tokenAddress"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Decimals        int    `json:"decimals"`
	SupportsEip2612 bool   `json:"supportsEip2612"`
	Version         string `json:"version,omitempty"`
}

// AssetInfo converts the metadata into the permit signing domain inputs.
func (m *TokenMetadata) AssetInfo() evm.AssetInfo {
	return evm.AssetInfo{
		Address:  evm.NormalizeAddress(m.TokenAddress),
		Symbol:   m.Symbol,
		Name:     m.Name,
		Version:  m.Version,
		Decimals: m.Decimals,
	}
}

// Config contains configuration for the token metadata client
type Config struct {
	// BaseURL is the base URL of the token metadata service
	// Defaults to tokens.anyspend.com if not set
	BaseURL string
	// Timeout is the HTTP client timeout
	// Defaults to 10 seconds if not set
	Timeout time.Duration
	// HTTPClient overrides the client built from Timeout
	HTTPClient *http.Client
}

// Client is HTTP client for the token metadata API. Successful lookups are
// kept for the life of the client; token capabilities do not change.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      sync.Map // map[string]*TokenMetadata
}

// NewClient creates a new token metadata client
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

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// chainName converts a chain ID to the API's chain name
func chainName(chainID fund.ChainID) string {
	switch chainID {
	case 1:
		return "ethereum"
	case 8453:
		return "base"
	case 84532:
		return "base-sepolia"
	default:
		return ""
	}
}

// Lookup fetches token metadata by chain ID and token address
func (c *Client) Lookup(ctx context.Context, chainID fund.ChainID, tokenAddress string) (*TokenMetadata, error) {
	name := chainName(chainID)
	if name == "" {
		return nil, fmt.Errorf("unsupported chain ID: %d", chainID)
	}

	key := name + "/" + strings.ToLower(tokenAddress)
	if cached, ok := c.cache.Load(key); ok {
		return cached.(*TokenMetadata), nil
	}

	metadata, err := c.fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.Store(key, metadata)
	return metadata, nil
}

// SupportsPermit reports whether the token implements EIP-2612.
func (c *Client) SupportsPermit(ctx context.Context, chainID fund.ChainID, tokenAddress string) (bool, error) {
	metadata, err := c.Lookup(ctx, chainID, tokenAddress)
	if err != nil {
		return false, err
	}
	return metadata.SupportsEip2612, nil
}

func (c *Client) fetch(ctx context.Context, key string) (*TokenMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/metadata/"+key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch token metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("token not found: %s", key)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token metadata API returned status %d", resp.StatusCode)
	}

	var metadata TokenMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode token metadata: %w", err)
	}

	// Permit domains default to version "2" (USDC and most bridged stables)
	if metadata.Version == "" {
		metadata.Version = "2"
	}
	return &metadata, nil
}
