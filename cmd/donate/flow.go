package main

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/balance"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/donation"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/funding"
	relayerhttp "github.com/mmoncada1/Marina-Pickleball-Community-Fund/http"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/internal/config"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/payment"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/pkg/cow"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/pkg/tokenmetadata"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/price"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/swap"
)

// session is one donor's wired flow plus the pieces the commands report on.
type session struct {
	flow   *donation.Flow
	oracle *price.Oracle
	swaps  *swap.Orchestrator
}

func paymentBackend(c *config.Config) payment.Backend {
	if c.Payment.Backend == config.BackendDirect {
		return payment.DirectContract{Address: c.Payment.Contract}
	}
	return payment.Terminal{
		ProjectID: c.Payment.ProjectID,
		Directory: c.Payment.Directory,
		Memo:      c.Payment.Memo,
	}
}

// newSession wires a donation flow for wallet. reader serves chain reads
// for balances, capability probing and terminal lookup.
func newSession(c *config.Config, wallet evm.Wallet, reader evm.ChainReader, out io.Writer, logger *zap.Logger) (*session, error) {
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

	observer := balance.NewObserver(map[fund.ChainID]evm.ChainReader{chain: reader}, balance.Config{
		FastInterval: c.Balance.FastInterval,
		SlowInterval: c.Balance.SlowInterval,
		Logger:       logger,
	})

	payments := payment.NewSubmitter(wallet, reader, payment.Config{
		ChainID: chain,
		Backend: paymentBackend(c),
		OnChange: func(r fund.TransactionRecord) {
			fmt.Fprintf(out, "  payment: %s\n", r.Status)
		},
		Logger: logger,
	})

	orders := cow.NewClient(cow.Config{
		BaseURL:           c.Cow.BaseURL,
		RequestsPerSecond: c.Cow.RequestsPerSecond,
		Logger:            logger,
	})
	prober := swap.NewProber(reader, tokenmetadata.NewClient(tokenmetadata.Config{BaseURL: c.TokenMetadata.BaseURL}), chain, logger)
	relay := relayerhttp.NewRelayerClient(&relayerhttp.RelayerConfig{URL: c.Relayer.URL, Logger: logger})
	swaps := swap.NewOrchestrator(prober, reader, oracle, []swap.Strategy{
		swap.NewRelayer(wallet, reader, orders, relay, swap.RelayerConfig{Logger: logger}),
		swap.NewTraditional(wallet, c.Cow.SwapPageURL),
	}, swap.Config{
		ChainID: chain,
		OnChange: func(s swap.State) {
			fmt.Fprintf(out, "  swap: %s\n", s.Step)
		},
		Logger: logger,
	})

	flow := donation.New(donation.Components{
		Wallet:   wallet,
		Prices:   oracle,
		Balances: observer,
		Payments: payments,
		Swaps:    swaps,
		Providers: []funding.Provider{
			&funding.ZKP2P{},
			&funding.CowSwapPage{BaseURL: c.Cow.SwapPageURL},
			&funding.ManualExchange{},
		},
		Pollers: []donation.Poller{oracle},
	}, donation.Config{
		ChainID: chain,
		Funding: funding.RedirectorConfig{Interval: c.Balance.FastInterval},
		Logger:  logger,
	})
	return &session{flow: flow, oracle: oracle, swaps: swaps}, nil
}
