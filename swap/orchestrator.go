package swap

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
)

// PriceSource reports the native asset's USD price.
type PriceSource interface {
	Current() decimal.Decimal
}

// Config configures an Orchestrator
type Config struct {
	ChainID  fund.ChainID
	OnChange func(State)
	Logger   *zap.Logger
}

// Orchestrator runs one swap at a time through the best available strategy.
type Orchestrator struct {
	prober     *Prober
	gas        GasPriceReader
	price      PriceSource
	strategies map[Method]Strategy
	machine    *Machine
	chain      fund.ChainID
	logger     *zap.Logger
}

// NewOrchestrator creates an orchestrator over strategies. A Traditional
// strategy should always be registered; it is the fallback for every capability.
func NewOrchestrator(prober *Prober, gas GasPriceReader, price PriceSource, strategies []Strategy, config Config) *Orchestrator {
	byMethod := make(map[Method]Strategy, len(strategies))
	for _, s := range strategies {
		byMethod[s.Method()] = s
	}
	chain := config.ChainID
	if chain == 0 {
		chain = fund.ChainID(evm.ChainIDBase.Int64())
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		prober:     prober,
		gas:        gas,
		price:      price,
		strategies: byMethod,
		machine:    NewMachine(config.OnChange),
		chain:      chain,
		logger:     logger.Named("swap"),
	}
}

// State returns the current swap progress.
func (o *Orchestrator) State() State {
	return o.machine.State()
}

// Reset abandons the current attempt.
func (o *Orchestrator) Reset() {
	o.machine.Reset()
}

// EstimateFee returns the client-side fee estimate for display.
func (o *Orchestrator) EstimateFee(ctx context.Context) decimal.Decimal {
	return EstimateFee(ctx, o.gas, o.price.Current())
}

// Swap sells usdc (a decimal amount, e.g. "25.50") for the native asset.
//
// Returns:
//
//	*Result on completion
//	A FundError whose Message is the classified, user-facing text
func (o *Orchestrator) Swap(ctx context.Context, owner string, usdc string, override Method) (*Result, error) {
	attempt := o.machine.Reset()

	if owner == "" {
		o.machine.Fail(attempt, fund.ErrNoAddress.Message)
		return nil, fund.ErrNoAddress
	}
	amount, ok := fund.ParseUnits(usdc, evm.DefaultDecimals)
	if !ok || amount.Sign() <= 0 {
		o.machine.Fail(attempt, fund.ErrInvalidAmount.Message)
		return nil, fund.ErrInvalidAmount
	}
	network, err := evm.GetNetworkConfig(o.chain)
	if err != nil {
		o.machine.Fail(attempt, fund.UserMessage(err))
		return nil, err
	}

	o.machine.Advance(attempt, StepMethodSelection)
	capability := o.prober.Probe(ctx, owner, network.DefaultAsset.Address)
	method := SelectMethod(capability, override)
	strategy, ok := o.strategies[method]
	if !ok {
		method = MethodTraditional
		if strategy, ok = o.strategies[method]; !ok {
			err := errNoStrategy(method)
			o.machine.Fail(attempt, fund.UserMessage(err))
			return nil, err
		}
	}
	o.machine.SetMethod(attempt, capability, method)
	o.logger.Info("swap started",
		zap.String("owner", owner),
		zap.String("usdc", usdc),
		zap.String("capability", capability.String()),
		zap.String("method", string(method)))

	o.machine.Advance(attempt, StepFeeEstimation)
	if method == MethodRelayer {
		o.machine.SetFee(attempt, o.EstimateFee(ctx))
	}

	result, err := strategy.Execute(ctx, Request{
		Owner:      owner,
		ChainID:    o.chain,
		USDCAmount: amount,
		Progress:   func(step Step) { o.machine.Advance(attempt, step) },
	})
	if err != nil {
		fe := classify(err)
		o.machine.Fail(attempt, fe.Message)
		o.logger.Warn("swap failed", zap.String("method", string(method)), zap.Error(err))
		return result, fe
	}

	o.machine.Complete(attempt, result)
	o.logger.Info("swap completed",
		zap.String("method", string(method)),
		zap.String("orderUid", result.OrderUID),
		zap.Bool("simulated", result.Simulated))
	return result, nil
}
