package swap

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/funding"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/pkg/cow"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/relayer"
)

// Request is one swap of USDCAmount (base units) owned by Owner.
type Request struct {
	Owner      string
	ChainID    fund.ChainID
	USDCAmount *big.Int
	// Progress is called as the strategy moves through its steps
	Progress func(Step)
}

func (r Request) progress(step Step) {
	if r.Progress != nil {
		r.Progress(step)
	}
}

// Result is a finished swap.
type Result struct {
	Method         Method             `json:"method"`
	OrderUID       string             `json:"orderUid,omitempty"`
	TxHash         string             `json:"txHash,omitempty"`
	ApprovalTxHash string             `json:"approvalTxHash,omitempty"`
	PermitTxHash   string             `json:"permitTxHash,omitempty"`
	SwapURL        string             `json:"swapUrl,omitempty"`
	RelayerFeeUSDC string             `json:"relayerFeeUsdc,omitempty"`
	EstimatedETH   string             `json:"estimatedEth,omitempty"`
	Simulated      bool               `json:"simulated,omitempty"`
	SimulationID   string             `json:"simulationId,omitempty"`
	Monitor        *cow.MonitorResult `json:"monitor,omitempty"`
}

// Strategy executes a swap one way.
type Strategy interface {
	Method() Method
	Execute(ctx context.Context, req Request) (*Result, error)
}

// QuoteSource prices orders.
type QuoteSource interface {
	Quote(ctx context.Context, req cow.QuoteRequest) (*cow.Quote, error)
}

// OrderBook places orders and reports their status.
type OrderBook interface {
	QuoteSource
	cow.StatusSource
	// FreshQuote returns prev while it is still valid, otherwise a new quote.
	FreshQuote(ctx context.Context, req cow.QuoteRequest, prev *cow.Quote) (*cow.Quote, error)
	SubmitOrder(ctx context.Context, order cow.SignedOrder) (string, error)
}

// RelayerAPI is the gasless submission endpoint.
type RelayerAPI interface {
	SubmitSwap(ctx context.Context, req *relayer.SwapRequest) (*relayer.SwapResponse, error)
}

func assetFor(chain fund.ChainID) (evm.NetworkConfig, error) {
	return evm.GetNetworkConfig(chain)
}

func approveCall(asset string, amount *big.Int) evm.Call {
	return evm.Call{
		To:       asset,
		ABI:      evm.ERC20ABI,
		Function: evm.FunctionApprove,
		Args:     []interface{}{common.HexToAddress(evm.CowVaultRelayerAddress), amount},
	}
}

// ============================================================================
// Traditional
// ============================================================================

// Traditional approves the vault relayer on-chain and hands off to the hosted swap page.
type Traditional struct {
	wallet      evm.Wallet
	swapPageURL string
}

// NewTraditional creates the approval + hosted page strategy
func NewTraditional(wallet evm.Wallet, swapPageURL string) *Traditional {
	return &Traditional{wallet: wallet, swapPageURL: swapPageURL}
}

func (t *Traditional) Method() Method { return MethodTraditional }

func (t *Traditional) Execute(ctx context.Context, req Request) (*Result, error) {
	network, err := assetFor(req.ChainID)
	if err != nil {
		return nil, err
	}

	req.progress(StepPermitSigning)
	hash, err := t.wallet.SendCall(ctx, approveCall(network.DefaultAsset.Address, req.USDCAmount))
	if err != nil {
		return nil, fmt.Errorf("approval failed: %w", err)
	}
	receipt, err := t.wallet.WaitForTransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("approval confirmation failed: %w", err)
	}
	if !receipt.Succeeded() {
		return nil, fund.NewFundError(fund.ErrCodeTransactionFailed, "Approval transaction reverted", map[string]interface{}{"txHash": hash})
	}

	req.progress(StepSwapExecution)
	usdc := evm.FormatUnits(req.USDCAmount, evm.DefaultDecimals).String()
	url, err := funding.CowSwapURL(t.swapPageURL, req.Owner, usdc)
	if err != nil {
		return nil, err
	}
	return &Result{Method: MethodTraditional, ApprovalTxHash: hash, SwapURL: url}, nil
}

// ============================================================================
// Relayer
// ============================================================================

// RelayerConfig configures the gasless strategy
type RelayerConfig struct {
	// SlippageBps defaults to cow.DefaultSlippageBps
	SlippageBps int64
	// Validity of the permit and order, defaults to 1h
	Validity time.Duration
	Monitor  cow.MonitorConfig
	Logger   *zap.Logger
}

// Relayer signs a USDC permit and an order, and has the relayer pay the gas.
type Relayer struct {
	wallet evm.Wallet
	reader evm.ChainReader
	orders OrderBook
	relay  RelayerAPI
	config RelayerConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewRelayer creates the gasless strategy
func NewRelayer(wallet evm.Wallet, reader evm.ChainReader, orders OrderBook, relay RelayerAPI, config RelayerConfig) *Relayer {
	if config.SlippageBps == 0 {
		config.SlippageBps = cow.DefaultSlippageBps
	}
	if config.Validity <= 0 {
		config.Validity = evm.DefaultValidityPeriod * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relayer{
		wallet: wallet,
		reader: reader,
		orders: orders,
		relay:  relay,
		config: config,
		logger: logger.Named("swap.relayer"),
		now:    time.Now,
	}
}

func (r *Relayer) Method() Method { return MethodRelayer }

func (r *Relayer) Execute(ctx context.Context, req Request) (*Result, error) {
	network, err := assetFor(req.ChainID)
	if err != nil {
		return nil, err
	}
	deadline := r.now().Add(r.config.Validity)

	req.progress(StepPermitSigning)
	permit, err := evm.SignPermit(ctx, r.wallet, r.reader, network.DefaultAsset, network.ChainID,
		evm.CowVaultRelayerAddress, req.USDCAmount, deadline)
	if err != nil {
		return nil, err
	}

	quoteReq := cow.SellQuoteRequest(network.DefaultAsset.Address, evm.WETHAddress, req.Owner, req.USDCAmount.String(), deadline)
	quote, err := r.orders.Quote(ctx, quoteReq)
	if err != nil {
		return nil, err
	}
	order, signed, err := r.signQuote(ctx, quote, req.Owner, network)
	if err != nil {
		return nil, err
	}

	// Signing waits on the donor; the held quote may have lapsed meanwhile.
	fresh, err := r.orders.FreshQuote(ctx, quoteReq, quote)
	if err != nil {
		return nil, err
	}
	if fresh != quote {
		r.logger.Debug("quote expired before submission, re-signing", zap.Int64("quoteId", quote.ID))
		if order, signed, err = r.signQuote(ctx, fresh, req.Owner, network); err != nil {
			return nil, err
		}
	}

	req.progress(StepSwapExecution)
	resp, err := r.relay.SubmitSwap(ctx, &relayer.SwapRequest{
		UserAddress:     evm.NormalizeAddress(req.Owner),
		USDCAmount:      req.USDCAmount.String(),
		MinEthAmount:    order.BuyAmount,
		Deadline:        deadline.Unix(),
		PermitSignature: &permit.Signature,
		Order:           &signed,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		Method:         MethodRelayer,
		OrderUID:       resp.OrderUID,
		PermitTxHash:   resp.PermitTxHash,
		RelayerFeeUSDC: resp.RelayerFeeUSDC,
		EstimatedETH:   resp.EstimatedEthOutput,
		Simulated:      resp.Simulated,
		SimulationID:   resp.SimulationID,
	}
	if resp.Simulated {
		r.logger.Info("relayer simulated swap", zap.String("simulationId", resp.SimulationID))
		return result, nil
	}

	return monitor(ctx, r.orders, result, r.config.Monitor)
}

func (r *Relayer) signQuote(ctx context.Context, quote *cow.Quote, owner string, network evm.NetworkConfig) (cow.Order, cow.SignedOrder, error) {
	order := cow.OrderFromQuote(quote, owner, r.config.SlippageBps)
	signed, err := cow.SignOrder(ctx, r.wallet, order, owner, network.ChainID)
	if err != nil {
		return cow.Order{}, cow.SignedOrder{}, err
	}
	signed.QuoteID = quote.ID
	return order, signed, nil
}

// ============================================================================
// Account abstraction
// ============================================================================

// SmartWallet is a contract wallet that can batch calls under a paymaster.
type SmartWallet interface {
	Account() fund.Account
	SendCalls(ctx context.Context, calls []evm.Call, paymasterURL string) (string, error)
}

// AccountAbstractionConfig configures the smart wallet strategy
type AccountAbstractionConfig struct {
	PaymasterURL string
	SlippageBps  int64
	Validity     time.Duration
	Monitor      cow.MonitorConfig
}

// AccountAbstraction places a pre-signed order and batches approve + setPreSignature
// through the wallet's paymaster.
type AccountAbstraction struct {
	wallet SmartWallet
	orders OrderBook
	config AccountAbstractionConfig
	now    func() time.Time
}

// NewAccountAbstraction creates the smart wallet strategy. wallet may be nil
// when the session has no smart wallet; Execute then fails.
func NewAccountAbstraction(wallet SmartWallet, orders OrderBook, config AccountAbstractionConfig) *AccountAbstraction {
	if config.SlippageBps == 0 {
		config.SlippageBps = cow.DefaultSlippageBps
	}
	if config.Validity <= 0 {
		config.Validity = evm.DefaultValidityPeriod * time.Second
	}
	return &AccountAbstraction{wallet: wallet, orders: orders, config: config, now: time.Now}
}

func (a *AccountAbstraction) Method() Method { return MethodAccountAbstraction }

func (a *AccountAbstraction) Execute(ctx context.Context, req Request) (*Result, error) {
	if a.wallet == nil {
		return nil, fund.NewFundError(fund.ErrCodeConfig, "Smart wallet is not available for this session", nil)
	}
	network, err := assetFor(req.ChainID)
	if err != nil {
		return nil, err
	}
	deadline := a.now().Add(a.config.Validity)

	quote, err := a.orders.Quote(ctx, cow.SellQuoteRequest(network.DefaultAsset.Address, evm.WETHAddress, req.Owner, req.USDCAmount.String(), deadline))
	if err != nil {
		return nil, err
	}

	req.progress(StepPermitSigning)
	order := cow.OrderFromQuote(quote, req.Owner, a.config.SlippageBps)
	uid, err := a.orders.SubmitOrder(ctx, cow.SignedOrder{
		Order:         order,
		Signature:     evm.NormalizeAddress(req.Owner),
		SigningScheme: cow.SigningSchemePresign,
		From:          evm.NormalizeAddress(req.Owner),
		QuoteID:       quote.ID,
	})
	if err != nil {
		return nil, err
	}
	uidBytes, err := evm.HexToBytes(uid)
	if err != nil {
		return nil, fmt.Errorf("invalid order uid: %w", err)
	}

	req.progress(StepSwapExecution)
	hash, err := a.wallet.SendCalls(ctx, []evm.Call{
		approveCall(network.DefaultAsset.Address, req.USDCAmount),
		{
			To:       evm.CowSettlementAddress,
			ABI:      evm.CowSettlementABI,
			Function: evm.FunctionSetPreSignature,
			Args:     []interface{}{uidBytes, true},
		},
	}, a.config.PaymasterURL)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Method:       MethodAccountAbstraction,
		OrderUID:     uid,
		PermitTxHash: hash,
		EstimatedETH: evm.FormatUnits(parseBig(order.BuyAmount), evm.NativeDecimals).String(),
	}
	return monitor(ctx, a.orders, result, a.config.Monitor)
}

func monitor(ctx context.Context, source cow.StatusSource, result *Result, config cow.MonitorConfig) (*Result, error) {
	outcome := cow.MonitorOrder(ctx, source, result.OrderUID, config)
	result.Monitor = &outcome
	result.TxHash = outcome.TxHash
	if outcome.Failed {
		return result, fund.NewFundError(fund.ErrCodeOrderFailed, "Order was "+string(outcome.Status),
			map[string]interface{}{"orderUid": result.OrderUID})
	}
	return result, nil
}

func parseBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}
