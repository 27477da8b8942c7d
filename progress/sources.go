// Package progress reports campaign totals from pluggable, layered sources.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
)

const (
	// DefaultProjectID is the fund's Juicebox project on Base
	DefaultProjectID = 107

	DefaultJuiceboxURL = "https://juicebox.money/v4"
	DefaultJBDBURL     = "https://jbdb.up.railway.app"

	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 10 * time.Second

	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	maxPageBytes     = 4 << 20
)

// Totals is what a source reports for a project.
type Totals struct {
	TotalRaised      decimal.Decimal `json:"totalRaised"`
	ContributorCount int             `json:"contributorCount"`
}

// Source fetches totals for a project.
type Source interface {
	Name() string
	Fetch(ctx context.Context, projectID int) (Totals, error)
}

// HTTPConfig is shared by the HTTP-backed sources.
type HTTPConfig struct {
	// BaseURL overrides the source's default endpoint
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func (c HTTPConfig) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (c HTTPConfig) base(fallback string) string {
	if c.BaseURL == "" {
		return fallback
	}
	return strings.TrimSuffix(c.BaseURL, "/")
}

func get(ctx context.Context, client *http.Client, endpoint string, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

// ============================================================================
// Juicebox page scraper
// ============================================================================

var (
	totalRaisedPattern = regexp.MustCompile(`(?i)TOTAL RAISED\s*\$\s*([\d,]+(?:\.\d+)?)`)
	paymentsPattern    = regexp.MustCompile(`(?i)PAYMENTS\s*([\d,]+)`)
	dollarPattern      = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d+)?)`)
	ethPattern         = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*ETH\b`)

	maxPlausibleUSD = decimal.NewFromInt(50000)
	// scrapeETHUSD converts an ETH-denominated total when no dollar figure is found
	scrapeETHUSD = decimal.NewFromInt(3000)
)

// JuiceboxScraper reads totals from the public project page.
type JuiceboxScraper struct {
	base       string
	httpClient *http.Client
}

// NewJuiceboxScraper creates a scraper for juicebox.money/v4/base:{id}
func NewJuiceboxScraper(config HTTPConfig) *JuiceboxScraper {
	return &JuiceboxScraper{base: config.base(DefaultJuiceboxURL), httpClient: config.client()}
}

func (s *JuiceboxScraper) Name() string { return "juicebox" }

func (s *JuiceboxScraper) Fetch(ctx context.Context, projectID int) (Totals, error) {
	page, err := get(ctx, s.httpClient, fmt.Sprintf("%s/base:%d", s.base, projectID), browserUserAgent)
	if err != nil {
		return Totals{}, err
	}
	return ParsePage(string(page)), nil
}

// ParsePage extracts totals from a rendered project page.
//
// The labelled "TOTAL RAISED" figure wins. Otherwise the largest dollar amount
// under 50000 is used, then the largest ETH amount at a nominal 3000 USD.
func ParsePage(page string) Totals {
	var totals Totals
	text := pageText(page)

	if m := totalRaisedPattern.FindStringSubmatch(text); m != nil {
		totals.TotalRaised, _ = parseFigure(m[1])
	}
	if m := paymentsPattern.FindStringSubmatch(text); m != nil {
		totals.ContributorCount, _ = strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	}

	if totals.TotalRaised.IsZero() {
		for _, m := range dollarPattern.FindAllStringSubmatch(text, -1) {
			v, err := parseFigure(m[1])
			if err != nil || v.Sign() <= 0 || !v.LessThan(maxPlausibleUSD) {
				continue
			}
			if v.GreaterThan(totals.TotalRaised) {
				totals.TotalRaised = v
			}
		}
	}

	if totals.TotalRaised.IsZero() {
		maxETH := decimal.Zero
		for _, m := range ethPattern.FindAllStringSubmatch(text, -1) {
			v, err := decimal.NewFromString(m[1])
			if err == nil && v.GreaterThan(maxETH) {
				maxETH = v
			}
		}
		totals.TotalRaised = maxETH.Mul(scrapeETHUSD).Round(0)
	}

	return totals
}

// pageText returns the visible text of page, one space between text nodes.
// Script and style bodies are dropped.
func pageText(page string) string {
	z := html.NewTokenizer(strings.NewReader(page))
	var b strings.Builder
	hidden := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			if name, _ := z.TagName(); isHiddenTag(string(name)) {
				hidden++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHiddenTag(string(name)) && hidden > 0 {
				hidden--
			}
		case html.TextToken:
			if hidden > 0 {
				continue
			}
			if t := strings.TrimSpace(string(z.Text())); t != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(t)
			}
		}
	}
}

func isHiddenTag(name string) bool {
	return name == "script" || name == "style"
}

func parseFigure(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
}

// ============================================================================
// Backend endpoint
// ============================================================================

// BackendSource reads /api/juicebox-data from a fund server.
type BackendSource struct {
	base       string
	httpClient *http.Client
}

// NewBackendSource creates a source for config.BaseURL
func NewBackendSource(config HTTPConfig) *BackendSource {
	return &BackendSource{base: config.base("http://localhost:8080"), httpClient: config.client()}
}

func (s *BackendSource) Name() string { return "backend" }

func (s *BackendSource) Fetch(ctx context.Context, projectID int) (Totals, error) {
	query := url.Values{}
	query.Set("projectId", strconv.Itoa(projectID))
	body, err := get(ctx, s.httpClient, s.base+"/api/juicebox-data?"+query.Encode(), "")
	if err != nil {
		return Totals{}, err
	}

	var resp struct {
		TotalRaised      *decimal.Decimal `json:"totalRaised"`
		ContributorCount *int             `json:"contributorCount"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Totals{}, fmt.Errorf("failed to decode progress response: %w", err)
	}
	if resp.TotalRaised == nil || resp.ContributorCount == nil {
		return Totals{}, fmt.Errorf("progress response missing totals")
	}
	return Totals{TotalRaised: *resp.TotalRaised, ContributorCount: *resp.ContributorCount}, nil
}

// ============================================================================
// JBDB indexer
// ============================================================================

// JBDBSource reads project stats from the jbdb indexer.
type JBDBSource struct {
	base       string
	chain      fund.ChainID
	httpClient *http.Client
}

// NewJBDBSource creates an indexer source for projects on chain
func NewJBDBSource(chain fund.ChainID, config HTTPConfig) *JBDBSource {
	return &JBDBSource{base: config.base(DefaultJBDBURL), chain: chain, httpClient: config.client()}
}

func (s *JBDBSource) Name() string { return "jbdb" }

type jbdbProject struct {
	ChainID       int64            `json:"chainId"`
	ProjectID     int              `json:"projectId"`
	VolumeUSD     *decimal.Decimal `json:"volumeUsd"`
	PaymentsCount int              `json:"paymentsCount"`
}

func (s *JBDBSource) Fetch(ctx context.Context, projectID int) (Totals, error) {
	body, err := get(ctx, s.httpClient, fmt.Sprintf("%s/project/%d/%d", s.base, s.chain, projectID), "")
	if err != nil {
		return Totals{}, err
	}

	var projects []jbdbProject
	if err := json.Unmarshal(body, &projects); err != nil {
		return Totals{}, fmt.Errorf("failed to decode jbdb response: %w", err)
	}
	for _, p := range projects {
		if p.ProjectID != projectID || p.VolumeUSD == nil {
			continue
		}
		return Totals{TotalRaised: *p.VolumeUSD, ContributorCount: p.PaymentsCount}, nil
	}
	return Totals{}, fmt.Errorf("jbdb has no stats for project %d", projectID)
}
