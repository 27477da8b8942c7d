package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/internal/config"
	fundgin "github.com/mmoncada1/Marina-Pickleball-Community-Fund/pkg/gin"
	evmsigner "github.com/mmoncada1/Marina-Pickleball-Community-Fund/signers/evm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// loadDefaults points every upstream at a failing local server.
func loadDefaults(t *testing.T) *config.Config {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(upstream.Close)

	c, err := config.Load(config.New(t.TempDir()))
	require.NoError(t, err)
	c.Price.CoinGeckoURL = upstream.URL
	c.Progress.JBDBURL = upstream.URL
	c.Progress.JuiceboxURL = upstream.URL
	c.Cow.BaseURL = upstream.URL
	return c
}

func TestBuildStackWithoutRelayer(t *testing.T) {
	c := loadDefaults(t)

	s, err := buildStack(context.Background(), c, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, s.services.Relayer)
	assert.NotNil(t, s.services.Orders)
	assert.NotNil(t, s.services.Progress)
	assert.Equal(t, fund.ChainID(8453), s.services.ChainID)
	assert.Len(t, s.pollers, 2)

	// price and progress answer from fallbacks before any fetch
	router := fundgin.NewRouter(context.Background(), s.services)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/juicebox-data", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"fallback":true`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/gasless-swap", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBuildStackDialFailure(t *testing.T) {
	c := loadDefaults(t)
	c.Relayer.PrivateKey = "0x01"

	orig := dialFunc
	t.Cleanup(func() { dialFunc = orig })
	dialFunc = func(ctx context.Context, key string, chain fund.ChainID, rpcURL string) (*evmsigner.Signer, error) {
		return nil, errors.New("dial refused")
	}

	_, err := buildStack(context.Background(), c, zap.NewNop())
	assert.EqualError(t, err, "dial refused")
}

func TestBuildStackRejectsBadStatic(t *testing.T) {
	c := loadDefaults(t)
	c.Progress.StaticRaisedUSD = "lots"

	_, err := buildStack(context.Background(), c, zap.NewNop())
	assert.ErrorIs(t, err, fund.ErrConfig)
}

func TestRelayerConfig(t *testing.T) {
	c := loadDefaults(t)
	c.Relayer.MinBalanceETH = "0.01"
	c.Relayer.DemoMode = true

	rc := relayerConfig(c, zap.NewNop())
	assert.Equal(t, "10000000000000000", rc.MinBalance.String())
	assert.True(t, rc.DemoMode)
	assert.Equal(t, "1.2", rc.FeeMultiplier.String())
}

func TestRunStopsOnCancel(t *testing.T) {
	c := loadDefaults(t)
	c.HTTP.Addr = "127.0.0.1:0"
	c.HTTP.Metrics = false

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, run(ctx, c, zap.NewNop()))
}
