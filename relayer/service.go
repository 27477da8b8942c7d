package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/internal/metrics"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/pkg/cow"
)

const (
	// DefaultGasLimit is the gas budget used for fee quoting
	DefaultGasLimit = 200000

	// DefaultCacheTTL is how long a completed submission is remembered
	DefaultCacheTTL = 10 * time.Minute
)

var (
	// DefaultMinBalance is 0.001 ETH
	DefaultMinBalance = big.NewInt(1_000_000_000_000_000)

	// DefaultFallbackGasPrice is 0.001 gwei
	DefaultFallbackGasPrice = big.NewInt(1_000_000)

	// DefaultFeeMultiplier covers gas price movement between quote and inclusion
	DefaultFeeMultiplier = decimal.RequireFromString("1.2")
)

// OrderSubmitter places signed orders with the settlement protocol.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, order cow.SignedOrder) (string, error)
}

// PriceSource reports the native asset's USD price.
type PriceSource interface {
	Current() decimal.Decimal
}

// Config configures the relayer service
type Config struct {
	// ChainID defaults to Base
	ChainID fund.ChainID
	// MinBalance is the native balance below which the relayer counts as unfunded
	MinBalance *big.Int
	// GasLimit used to price the fee, defaults to 200000
	GasLimit uint64
	// FallbackGasPrice is used when the node gives no price
	FallbackGasPrice *big.Int
	// FeeMultiplier defaults to 1.2
	FeeMultiplier decimal.Decimal
	// DemoMode answers with tagged simulations while unfunded
	DemoMode bool
	// WaitForPermit waits for the permit receipt before placing the order
	WaitForPermit bool
	CacheTTL      time.Duration
	Logger        *zap.Logger
}

// Service relays gasless swaps.
type Service struct {
	signer  evm.RelayerSigner
	orders  OrderSubmitter
	price   PriceSource
	network evm.NetworkConfig
	config  Config
	cache   *fund.SubmissionCache[*SwapResponse]
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a relayer paying gas from signer.
//
// Args:
//
//	signer: The funded relayer key
//	orders: Settlement order book
//	price:  Native asset price used to convert the fee to USDC
//	config: Service configuration
//
// Returns:
//
//	*Service or an error when the chain is unsupported
func NewService(signer evm.RelayerSigner, orders OrderSubmitter, price PriceSource, config Config) (*Service, error) {
	if config.ChainID == 0 {
		config.ChainID = fund.ChainID(evm.ChainIDBase.Int64())
	}
	network, err := evm.GetNetworkConfig(config.ChainID)
	if err != nil {
		return nil, err
	}
	if config.MinBalance == nil {
		config.MinBalance = DefaultMinBalance
	}
	if config.GasLimit == 0 {
		config.GasLimit = DefaultGasLimit
	}
	if config.FallbackGasPrice == nil {
		config.FallbackGasPrice = DefaultFallbackGasPrice
	}
	if config.FeeMultiplier.IsZero() {
		config.FeeMultiplier = DefaultFeeMultiplier
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultCacheTTL
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		signer:  signer,
		orders:  orders,
		price:   price,
		network: network,
		config:  config,
		cache:   fund.NewSubmissionCache[*SwapResponse](config.CacheTTL),
		logger:  logger.Named("relayer"),
		now:     time.Now,
	}, nil
}

// DemoMode reports whether unfunded submissions are simulated.
func (s *Service) DemoMode() bool {
	return s.config.DemoMode
}

// Status reads the relayer balance.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	bal, err := s.signer.GetBalance(ctx, s.signer.Address(), "")
	if err != nil {
		return nil, fmt.Errorf("failed to read relayer balance: %w", err)
	}
	s.observeBalance(bal)
	return &Status{
		Address:       s.signer.Address(),
		BalanceWei:    bal.String(),
		BalanceETH:    evm.FormatUnits(bal, evm.NativeDecimals).String(),
		MinBalanceETH: evm.FormatUnits(s.config.MinBalance, evm.NativeDecimals).String(),
		Funded:        bal.Cmp(s.config.MinBalance) >= 0,
		DemoMode:      s.config.DemoMode,
		ChainID:       s.network.ChainID.Int64(),
	}, nil
}

// FeeQuote is the relayer fee at one gas price.
type FeeQuote struct {
	GasPrice *big.Int
	// Wei is the fee charged against the swap output
	Wei  *big.Int
	USDC decimal.Decimal
}

// QuoteFee prices the relayer fee in USDC.
func (s *Service) QuoteFee(ctx context.Context) decimal.Decimal {
	return s.quote(ctx).USDC
}

func (s *Service) quote(ctx context.Context) FeeQuote {
	gasPrice, err := s.signer.GasPrice(ctx)
	if err != nil || gasPrice == nil || gasPrice.Sign() <= 0 {
		if err != nil {
			s.logger.Debug("gas price unavailable, using fallback", zap.Error(err))
		}
		gasPrice = s.config.FallbackGasPrice
	}
	return FeeQuote{
		GasPrice: gasPrice,
		Wei:      RelayerFeeWei(gasPrice, s.config.GasLimit, s.config.FeeMultiplier),
		USDC:     RelayerFee(gasPrice, s.config.GasLimit, s.config.FeeMultiplier, s.price.Current()),
	}
}

// RelayerFee converts gasLimit at gasPrice into USDC with multiplier applied.
func RelayerFee(gasPrice *big.Int, gasLimit uint64, multiplier, ethUSD decimal.Decimal) decimal.Decimal {
	gasCost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	eth := evm.FormatUnits(gasCost, evm.NativeDecimals)
	return eth.Mul(multiplier).Mul(ethUSD).Round(evm.DefaultDecimals)
}

// RelayerFeeWei is gasLimit at gasPrice with multiplier applied, truncated to whole wei.
func RelayerFeeWei(gasPrice *big.Int, gasLimit uint64, multiplier decimal.Decimal) *big.Int {
	gasCost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	return decimal.NewFromBigInt(gasCost, 0).Mul(multiplier).Truncate(0).BigInt()
}

// NetOutput is expected wei minus the fee, never negative.
func NetOutput(expected, fee *big.Int) *big.Int {
	net := new(big.Int).Sub(expected, fee)
	if net.Sign() < 0 {
		return net.SetInt64(0)
	}
	return net
}

// Submit relays req once. Identical requests share one result: a retry
// while the first is still running waits for it, and a retry after it
// succeeded gets the stored response back.
func (s *Service) Submit(ctx context.Context, req *SwapRequest) (*SwapResponse, error) {
	if err := req.Validate(); err != nil {
		metrics.RelayerSubmissionsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	key := fund.SubmissionKey(body)

	status, cached, done := s.cache.Claim(key)
	switch status {
	case fund.LookupCached:
		metrics.RelayerSubmissionsTotal.WithLabelValues("cached").Inc()
		return cached, nil
	case fund.LookupInFlight:
		result, ok, err := s.cache.Wait(ctx, key, done)
		if err != nil {
			return nil, err
		}
		if ok {
			metrics.RelayerSubmissionsTotal.WithLabelValues("cached").Inc()
			return result, nil
		}
		return nil, fund.NewFundError(fund.ErrCodeRelayerUnavailable, "Previous identical submission failed, please retry", nil)
	}

	resp, err := s.submit(ctx, req)
	if err != nil {
		s.cache.Release(key, done)
		outcome := "error"
		if fund.CodeOf(err) == fund.ErrCodeInvalidRequest {
			outcome = "rejected"
		}
		metrics.RelayerSubmissionsTotal.WithLabelValues(outcome).Inc()
		s.logger.Warn("gasless swap failed", zap.String("user", req.UserAddress), zap.Error(err))
		return nil, err
	}

	s.cache.Complete(key, resp, done)
	if resp.Simulated {
		metrics.RelayerSubmissionsTotal.WithLabelValues("simulated").Inc()
	} else {
		metrics.RelayerSubmissionsTotal.WithLabelValues("submitted").Inc()
	}
	return resp, nil
}

func (s *Service) submit(ctx context.Context, req *SwapRequest) (*SwapResponse, error) {
	bal, err := s.signer.GetBalance(ctx, s.signer.Address(), "")
	if err != nil {
		return nil, fund.WrapFundError(fund.ErrCodeRelayerUnavailable, "Relayer service temporarily unavailable", err)
	}
	s.observeBalance(bal)

	quote := s.quote(ctx)
	fee := quote.USDC
	usdc := evm.FormatUnits(mustBig(req.USDCAmount), evm.DefaultDecimals)
	if fee.GreaterThanOrEqual(usdc) {
		return nil, ErrFeeExceedsAmount
	}

	estimated := req.MinEthAmount
	if req.Order != nil && req.Order.BuyAmount != "" {
		estimated = req.Order.BuyAmount
	}

	permit, err := s.checkPermit(req)
	if err != nil {
		return nil, err
	}

	if bal.Cmp(s.config.MinBalance) < 0 {
		if !s.config.DemoMode {
			return nil, ErrRelayerUnfunded
		}
		id := uuid.NewString()
		s.logger.Info("relayer unfunded, simulating swap",
			zap.String("simulationId", id),
			zap.String("user", req.UserAddress),
			zap.String("balance", bal.String()))
		return &SwapResponse{
			Success:            true,
			RelayerFeeUSDC:     fee.StringFixed(evm.DefaultDecimals),
			EstimatedEthOutput: formatEth(estimated),
			NetEthReceived:     netEth(estimated, quote),
			GasUsed:            s.config.GasLimit,
			GasPriceGwei:       gwei(quote.GasPrice),
			Simulated:          true,
			SimulationID:       id,
			Message:            "Relayer is not funded; no transaction was sent",
		}, nil
	}

	if err := s.checkOrder(req); err != nil {
		return nil, err
	}

	call, err := evm.PermitCall(permit)
	if err != nil {
		return nil, fund.WrapFundError(fund.ErrCodeInvalidRequest, ErrInvalidPermit.Message, err)
	}
	permitHash, err := s.signer.SendCall(ctx, call)
	if err != nil {
		return nil, classifyChainError(err)
	}
	s.logger.Info("permit submitted", zap.String("txHash", permitHash), zap.String("owner", permit.Owner))

	if s.config.WaitForPermit {
		receipt, err := s.signer.WaitForTransactionReceipt(ctx, permitHash)
		if err != nil {
			return nil, fund.WrapFundError(fund.ErrCodeNetwork, "Permit confirmation failed", err)
		}
		if !receipt.Succeeded() {
			return nil, fund.NewFundError(fund.ErrCodeTransactionFailed, "Permit transaction reverted", map[string]interface{}{"txHash": permitHash})
		}
	}

	uid, err := s.orders.SubmitOrder(ctx, *req.Order)
	if err != nil {
		return nil, fund.WrapFundError(fund.ErrCodeOrderFailed, "Order submission failed", err)
	}
	s.logger.Info("order submitted", zap.String("orderUid", uid), zap.String("fee", fee.String()))

	return &SwapResponse{
		Success:            true,
		OrderUID:           uid,
		PermitTxHash:       permitHash,
		RelayerFeeUSDC:     fee.StringFixed(evm.DefaultDecimals),
		EstimatedEthOutput: formatEth(estimated),
		NetEthReceived:     netEth(estimated, quote),
		GasUsed:            s.config.GasLimit,
		GasPriceGwei:       gwei(quote.GasPrice),
		ExplorerURL:        s.network.TxURL(permitHash),
	}, nil
}

func (s *Service) checkPermit(req *SwapRequest) (*evm.Permit, error) {
	sig := *req.PermitSignature
	if sig.Deadline == "" {
		sig.Deadline = strconv.FormatInt(req.Deadline, 10)
	}
	deadline, ok := new(big.Int).SetString(sig.Deadline, 10)
	if !ok {
		return nil, ErrInvalidPermit
	}
	if deadline.Cmp(big.NewInt(s.now().Unix())) <= 0 {
		return nil, ErrPermitExpired
	}

	permit := &evm.Permit{
		Owner:     evm.NormalizeAddress(req.UserAddress),
		Spender:   evm.CowVaultRelayerAddress,
		Token:     s.network.DefaultAsset.Address,
		Value:     req.USDCAmount,
		Signature: sig,
	}
	if err := evm.VerifyPermit(permit, s.network.DefaultAsset, s.network.ChainID); err != nil {
		return nil, fund.WrapFundError(fund.ErrCodeInvalidRequest, ErrInvalidPermit.Message, err)
	}
	return permit, nil
}

func (s *Service) checkOrder(req *SwapRequest) error {
	order := req.Order
	if order == nil {
		return ErrMissingParameters
	}
	if !evm.SameAddress(order.From, req.UserAddress) || !evm.SameAddress(order.Receiver, req.UserAddress) {
		return fund.NewFundError(fund.ErrCodeInvalidRequest, "Order must be owned by and pay out to the user", nil)
	}
	if !evm.SameAddress(order.SellToken, s.network.DefaultAsset.Address) || order.SellAmount == "" {
		return ErrInvalidOrder
	}
	buy, ok := new(big.Int).SetString(order.BuyAmount, 10)
	if !ok || buy.Cmp(mustBig(req.MinEthAmount)) < 0 {
		return fund.NewFundError(fund.ErrCodeInvalidRequest, "Order buy amount is below the minimum", nil)
	}
	if err := cow.VerifyOrderSignature(*order, s.network.ChainID); err != nil {
		return fund.WrapFundError(fund.ErrCodeInvalidRequest, ErrInvalidOrder.Message, err)
	}
	return nil
}

func (s *Service) observeBalance(bal *big.Int) {
	f, _ := evm.FormatUnits(bal, 0).Float64()
	metrics.RelayerBalanceWei.Set(f)
}

func classifyChainError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fund.WrapFundError(fund.ErrCodeNetwork, "Network connection error - please check your connection", err)
	}
	return fund.WrapFundError(fund.ErrCodeRelayerUnavailable, "Relayer service temporarily unavailable", err)
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

func formatEth(wei string) string {
	return evm.FormatUnits(mustBig(wei), evm.NativeDecimals).String()
}

func netEth(estimated string, quote FeeQuote) string {
	return evm.FormatUnits(NetOutput(mustBig(estimated), quote.Wei), evm.NativeDecimals).String()
}

func gwei(wei *big.Int) string {
	return evm.FormatUnits(wei, 9).String()
}
