package main

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/internal/config"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/pkg/cow"
	fundgin "github.com/mmoncada1/Marina-Pickleball-Community-Fund/pkg/gin"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/price"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/progress"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/relayer"
	evmsigner "github.com/mmoncada1/Marina-Pickleball-Community-Fund/signers/evm"
)

type poller interface {
	Start(ctx context.Context) *fund.Handle
}

// stack is everything fundd serves and keeps fresh.
type stack struct {
	services fundgin.Services
	pollers  []poller
}

// dialFunc opens the relayer signer; replaced in tests.
var dialFunc = func(ctx context.Context, key string, chain fund.ChainID, rpcURL string) (*evmsigner.Signer, error) {
	return evmsigner.Dial(ctx, key, map[fund.ChainID]string{chain: rpcURL}, chain)
}

func buildStack(ctx context.Context, c *config.Config, logger *zap.Logger) (*stack, error) {
	chain := c.ChainID()

	fallback, err := decimal.NewFromString(c.Price.FallbackUSD)
	if err != nil {
		return nil, fund.ConfigError("price.fallback_usd")
	}
	oracle := price.NewOracle(price.NewCoinGecko(price.CoinGeckoConfig{URL: c.Price.CoinGeckoURL}), price.OracleConfig{
		Fallback: fallback,
		Interval: c.Price.Interval,
		Logger:   logger,
	})

	reporter, err := buildReporter(c, logger)
	if err != nil {
		return nil, err
	}

	orders := cow.NewClient(cow.Config{
		BaseURL:           c.Cow.BaseURL,
		RequestsPerSecond: c.Cow.RequestsPerSecond,
		Logger:            logger,
	})

	s := &stack{
		services: fundgin.Services{
			Orders:   orders,
			Progress: reporter,
			Prices:   oracle,
			ChainID:  chain,
		},
		pollers: []poller{oracle, reporter},
	}

	if c.Relayer.PrivateKey == "" {
		logger.Warn("relayer private key not set, gasless swaps disabled")
		return s, nil
	}
	signer, err := dialFunc(ctx, c.Relayer.PrivateKey, chain, c.Chain.RPCURL)
	if err != nil {
		return nil, err
	}
	svc, err := relayer.NewService(signer, orders, oracle, relayerConfig(c, logger))
	if err != nil {
		return nil, err
	}
	logger.Info("relayer ready", zap.String("address", signer.Address()), zap.Bool("demoMode", c.Relayer.DemoMode))
	s.services.Relayer = svc
	return s, nil
}

func relayerConfig(c *config.Config, logger *zap.Logger) relayer.Config {
	rc := relayer.Config{
		ChainID:       c.ChainID(),
		DemoMode:      c.Relayer.DemoMode,
		WaitForPermit: c.Relayer.WaitForPermit,
		Logger:        logger,
	}
	if minBalance, ok := fund.ParseEther(c.Relayer.MinBalanceETH); ok {
		rc.MinBalance = minBalance
	}
	if c.Relayer.FeeMultiplier > 0 {
		rc.FeeMultiplier = decimal.NewFromFloat(c.Relayer.FeeMultiplier)
	}
	return rc
}

func buildReporter(c *config.Config, logger *zap.Logger) (*progress.Reporter, error) {
	var static *progress.Totals
	if c.Progress.StaticRaisedUSD != "" {
		raised, err := decimal.NewFromString(c.Progress.StaticRaisedUSD)
		if err != nil {
			return nil, fund.ConfigError("progress.static_raised_usd")
		}
		static = &progress.Totals{TotalRaised: raised, ContributorCount: c.Progress.StaticPayments}
	}

	sources := []progress.Source{
		progress.NewJBDBSource(c.ChainID(), progress.HTTPConfig{BaseURL: c.Progress.JBDBURL}),
		progress.NewJuiceboxScraper(progress.HTTPConfig{BaseURL: c.Progress.JuiceboxURL}),
	}
	return progress.NewReporter(sources, progress.ReporterConfig{
		ProjectID: c.Progress.ProjectID,
		Static:    static,
		Interval:  c.Progress.Interval,
		Logger:    logger,
	}), nil
}

func routerOptions(c *config.Config, logger *zap.Logger) []fundgin.Options {
	opts := []fundgin.Options{
		fundgin.WithLogger(logger),
		fundgin.WithSwapRateLimit(rate.Limit(c.HTTP.SwapRate), c.HTTP.SwapBurst),
	}
	if len(c.HTTP.AllowedOrigins) > 0 {
		opts = append(opts, fundgin.WithAllowedOrigins(c.HTTP.AllowedOrigins...))
	}
	if c.HTTP.Metrics {
		opts = append(opts, fundgin.WithMetrics())
	}
	return opts
}
