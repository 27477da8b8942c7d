// Package balance observes the native and token balances of the connected account.
package balance

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
)

const (
	// DefaultFastInterval is used while waiting for a top-up to land
	DefaultFastInterval = 2 * time.Second
	// DefaultSlowInterval is the background refresh rate
	DefaultSlowInterval = 30 * time.Second

	// NativeSymbol is the key of the native balance in a Snapshot
	NativeSymbol = "ETH"
)

// Asset is one tracked balance. Address is empty for the native asset.
type Asset struct {
	Symbol   string
	Decimals int32
	Address  string
	// USDPegged values the asset 1:1 in USD instead of using the rate
	USDPegged bool
}

// Snapshot is the result of one observation cycle.
type Snapshot struct {
	ChainID    fund.ChainID                 `json:"chainId"`
	Address    string                       `json:"address"`
	Balances   map[string]fund.TokenBalance `json:"balances"`
	Err        bool                         `json:"error"`
	ObservedAt time.Time                    `json:"observedAt"`
}

// Value returns the raw balance for symbol, zero when it is not tracked.
func (s Snapshot) Value(symbol string) *big.Int {
	if b, ok := s.Balances[symbol]; ok && b.Value != nil {
		return b.Value
	}
	return big.NewInt(0)
}

// Native returns the raw native balance.
func (s Snapshot) Native() *big.Int {
	return s.Value(NativeSymbol)
}

// Config configures an Observer
type Config struct {
	// Assets overrides the default ETH + chain stablecoin set
	Assets       []Asset
	FastInterval time.Duration
	SlowInterval time.Duration
	// Rate supplies USD per native unit for fiat values (optional)
	Rate   func() decimal.Decimal
	Logger *zap.Logger
}

// Observer reads balances for an account on a target chain.
type Observer struct {
	readers map[fund.ChainID]evm.ChainReader
	assets  []Asset
	fast    time.Duration
	slow    time.Duration
	rate    func() decimal.Decimal
	logger  *zap.Logger
	now     func() time.Time
}

// NewObserver creates an observer over one reader per supported chain.
func NewObserver(readers map[fund.ChainID]evm.ChainReader, config Config) *Observer {
	fast := config.FastInterval
	if fast <= 0 {
		fast = DefaultFastInterval
	}
	slow := config.SlowInterval
	if slow <= 0 {
		slow = DefaultSlowInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Observer{
		readers: readers,
		assets:  config.Assets,
		fast:    fast,
		slow:    slow,
		rate:    config.Rate,
		logger:  logger.Named("balance"),
		now:     time.Now,
	}
}

func (o *Observer) assetsFor(chain fund.ChainID) []Asset {
	if len(o.assets) > 0 {
		return o.assets
	}
	assets := []Asset{{Symbol: NativeSymbol, Decimals: evm.NativeDecimals}}
	if config, err := evm.GetNetworkConfig(chain); err == nil {
		assets = append(assets, Asset{
			Symbol:    config.DefaultAsset.Symbol,
			Decimals:  int32(config.DefaultAsset.Decimals),
			Address:   config.DefaultAsset.Address,
			USDPegged: true,
		})
	}
	return assets
}

// Fetch reads every tracked asset for account on chain.
//
// It never fails: an asset whose read errors is reported as zero and the
// snapshot's Err flag is set. An account without an address yields an empty
// snapshot.
func (o *Observer) Fetch(ctx context.Context, account fund.Account, chain fund.ChainID) Snapshot {
	snap := Snapshot{
		ChainID:    chain,
		Address:    account.Address,
		Balances:   map[string]fund.TokenBalance{},
		ObservedAt: o.now(),
	}
	if !account.HasAddress() {
		return snap
	}

	assets := o.assetsFor(chain)
	reader, ok := o.readers[chain]
	if !ok {
		o.logger.Warn("no reader for chain", zap.Int64("chainId", int64(chain)))
		for _, asset := range assets {
			snap.Balances[asset.Symbol] = o.tokenBalance(asset, big.NewInt(0))
		}
		snap.Err = true
		return snap
	}

	values := make([]*big.Int, len(assets))
	failed := make([]bool, len(assets))

	var g errgroup.Group
	for i, asset := range assets {
		g.Go(func() error {
			value, err := reader.GetBalance(ctx, account.Address, asset.Address)
			if err != nil {
				o.logger.Warn("balance read failed",
					zap.String("symbol", asset.Symbol),
					zap.String("address", account.Address),
					zap.Error(err))
				failed[i] = true
				value = big.NewInt(0)
			}
			values[i] = value
			return nil
		})
	}
	_ = g.Wait()

	for i, asset := range assets {
		snap.Balances[asset.Symbol] = o.tokenBalance(asset, values[i])
		if failed[i] {
			snap.Err = true
		}
	}
	return snap
}

func (o *Observer) tokenBalance(asset Asset, value *big.Int) fund.TokenBalance {
	b := fund.TokenBalance{
		Symbol:   asset.Symbol,
		Decimals: asset.Decimals,
		Value:    value,
		Address:  asset.Address,
	}
	formatted := b.Formatted()
	switch {
	case asset.USDPegged:
		b.FiatValue = &formatted
	case o.rate != nil:
		fiat := formatted.Mul(o.rate()).Round(2)
		b.FiatValue = &fiat
	}
	return b
}
