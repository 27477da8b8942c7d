package progress

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

type stubSource struct {
	name   string
	totals Totals
	err    error
	calls  int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context, projectID int) (Totals, error) {
	s.calls++
	return s.totals, s.err
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		name         string
		html         string
		raised       string
		contributors int
	}{
		{name: "labelled", html: "<div>TOTAL RAISED$1234</div><div>PAYMENTS17</div>", raised: "1234", contributors: 17},
		{name: "case insensitive", html: "total raised$88 payments3", raised: "88", contributors: 3},
		{name: "largest plausible dollar", html: "$12.50 then $640 and $99999", raised: "640"},
		{name: "bound is exclusive", html: "$50000 or $49999.99", raised: "49999.99"},
		{name: "eth amount", html: "raised 0.25 ETH of 2 eth", raised: "6000"},
		{name: "eth rounding", html: "0.1234 ETH", raised: "370"},
		{name: "split elements", html: "<p>Total raised</p><span>$</span><span>2,450</span><p>Payments</p><p>31</p>", raised: "2450", contributors: 31},
		{name: "thousands separator", html: "<b>$1,250.75</b>", raised: "1250.75"},
		{name: "script ignored", html: "<script>var goal = '$40000'</script><p>$300</p>", raised: "300"},
		{name: "nothing", html: "<html></html>", raised: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePage(tt.html)
			assert.Equal(t, tt.raised, got.TotalRaised.String())
			assert.Equal(t, tt.contributors, got.ContributorCount)
		})
	}
}

func TestJuiceboxScraper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v4/base:107", r.URL.Path)
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		_, _ = w.Write([]byte("TOTAL RAISED$420 PAYMENTS9"))
	}))
	defer server.Close()

	scraper := NewJuiceboxScraper(HTTPConfig{BaseURL: server.URL + "/v4"})
	totals, err := scraper.Fetch(context.Background(), 107)
	require.NoError(t, err)
	assert.Equal(t, "420", totals.TotalRaised.String())
	assert.Equal(t, 9, totals.ContributorCount)
}

func TestBackendSource(t *testing.T) {
	t.Run("decodes totals", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/juicebox-data", r.URL.Path)
			assert.Equal(t, "107", r.URL.Query().Get("projectId"))
			_, _ = w.Write([]byte(`{"totalRaised":250,"contributorCount":4}`))
		}))
		defer server.Close()

		totals, err := NewBackendSource(HTTPConfig{BaseURL: server.URL}).Fetch(context.Background(), 107)
		require.NoError(t, err)
		assert.Equal(t, "250", totals.TotalRaised.String())
		assert.Equal(t, 4, totals.ContributorCount)
	})

	t.Run("missing fields", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":"Failed to scrape data"}`))
		}))
		defer server.Close()

		_, err := NewBackendSource(HTTPConfig{BaseURL: server.URL}).Fetch(context.Background(), 107)
		assert.Error(t, err)
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := NewBackendSource(HTTPConfig{BaseURL: server.URL}).Fetch(context.Background(), 107)
		assert.Error(t, err)
	})
}

func TestJBDBSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/project/8453/107", r.URL.Path)
		_, _ = w.Write([]byte(`[{"chainId":8453,"projectId":107,"volumeUsd":"812.5","paymentsCount":11}]`))
	}))
	defer server.Close()

	totals, err := NewJBDBSource(8453, HTTPConfig{BaseURL: server.URL}).Fetch(context.Background(), 107)
	require.NoError(t, err)
	assert.Equal(t, "812.5", totals.TotalRaised.String())
	assert.Equal(t, 11, totals.ContributorCount)

	_, err = NewJBDBSource(8453, HTTPConfig{BaseURL: server.URL}).Fetch(context.Background(), 108)
	assert.Error(t, err)
}

func TestReporterFallbackChain(t *testing.T) {
	ctx := context.Background()

	t.Run("zero before anything succeeds", func(t *testing.T) {
		r := NewReporter(nil, ReporterConfig{})
		latest := r.Latest()
		assert.True(t, latest.Fallback)
		assert.True(t, latest.TotalRaised.IsZero())
		assert.Equal(t, 0, latest.ContributorCount)
		assert.Equal(t, "1500", latest.Goal.String())

		got := r.Refresh(ctx)
		assert.True(t, got.Fallback)
		assert.True(t, got.TotalRaised.IsZero())
	})

	t.Run("static when live fails", func(t *testing.T) {
		failing := &stubSource{name: "backend", err: errors.New("down")}
		static := &Totals{TotalRaised: decimal.NewFromInt(300), ContributorCount: 5}
		r := NewReporter([]Source{failing}, ReporterConfig{Static: static})

		got := r.Refresh(ctx)
		assert.True(t, got.Fallback)
		assert.Equal(t, "300", got.TotalRaised.String())
		assert.Equal(t, 5, got.ContributorCount)
	})

	t.Run("sources tried in order", func(t *testing.T) {
		first := &stubSource{name: "backend", err: errors.New("down")}
		second := &stubSource{name: "jbdb", totals: Totals{TotalRaised: decimal.NewFromInt(750), ContributorCount: 12}}
		third := &stubSource{name: "juicebox"}
		r := NewReporter([]Source{first, second, third}, ReporterConfig{})

		got := r.Refresh(ctx)
		assert.False(t, got.Fallback)
		assert.Equal(t, "750", got.TotalRaised.String())
		assert.Equal(t, "50", got.Percentage().String())
		assert.Equal(t, 1, first.calls)
		assert.Equal(t, 0, third.calls)
		assert.Equal(t, got, r.Latest())
	})

	t.Run("keeps last live value", func(t *testing.T) {
		source := &stubSource{name: "backend", totals: Totals{TotalRaised: decimal.NewFromInt(90), ContributorCount: 2}}
		r := NewReporter([]Source{source}, ReporterConfig{Static: &Totals{TotalRaised: decimal.NewFromInt(10)}})
		r.Refresh(ctx)

		source.err = errors.New("down")
		got := r.Refresh(ctx)
		assert.True(t, got.Fallback)
		assert.Equal(t, "90", got.TotalRaised.String())
	})

	t.Run("other project does not touch latest", func(t *testing.T) {
		source := &stubSource{name: "backend", totals: Totals{TotalRaised: decimal.NewFromInt(5)}}
		r := NewReporter([]Source{source}, ReporterConfig{})
		before := r.Latest()

		got := r.Fetch(ctx, 200)
		assert.False(t, got.Fallback)
		assert.Equal(t, before, r.Latest())
	})
}

func TestReporterStart(t *testing.T) {
	source := &stubSource{name: "backend", totals: Totals{TotalRaised: decimal.NewFromInt(42), ContributorCount: 1}}
	r := NewReporter([]Source{source}, ReporterConfig{})

	h := r.Start(context.Background())
	defer h.Stop()

	require.Eventually(t, func() bool {
		return !r.Latest().Fallback
	}, timeout, tick)
	assert.Equal(t, "42", r.Latest().TotalRaised.String())
}
