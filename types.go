package fund

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// ChainID identifies an EVM chain
type ChainID int64

// Account is the connected wallet session as seen by the donation flow.
type Account struct {
	// Address is empty when the session has no account yet
	Address   string  `json:"address,omitempty"`
	Connected bool    `json:"connected"`
	ChainID   ChainID `json:"chainId"`
}

// HasAddress reports whether the account can be used for reads and payments.
func (a Account) HasAddress() bool {
	return a.Connected && a.Address != ""
}

// TokenBalance is one tracked asset from a single observation cycle.
type TokenBalance struct {
	Symbol    string           `json:"symbol"`
	Decimals  int32            `json:"decimals"`
	Value     *big.Int         `json:"value"`
	Address   string           `json:"address,omitempty"`
	FiatValue *decimal.Decimal `json:"fiatValue,omitempty"`
}

// Formatted returns Value scaled by Decimals.
func (b TokenBalance) Formatted() decimal.Decimal {
	if b.Value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(b.Value, -b.Decimals)
}

// ContributionIntent is derived from the amount the donor typed in.
type ContributionIntent struct {
	USDAmount string `json:"usdAmount"`
	// Required is the native amount rounded to 6 decimals, empty when no amount was entered
	Required   string `json:"required"`
	Sufficient bool   `json:"sufficient"`
}

// HasAmount distinguishes "nothing entered" from an actual request.
func (i ContributionIntent) HasAmount() bool {
	return i.Required != ""
}

// ============================================================================
// Transaction lifecycle
// ============================================================================

// TxStatus is the lifecycle of a submitted payment
type TxStatus string

const (
	TxIdle       TxStatus = "idle"
	TxConnecting TxStatus = "connecting"
	TxPending    TxStatus = "pending"
	TxConfirming TxStatus = "confirming"
	TxSuccess    TxStatus = "success"
	TxError      TxStatus = "error"
)

func (s TxStatus) rank() int {
	switch s {
	case TxConnecting:
		return 1
	case TxPending:
		return 2
	case TxConfirming:
		return 3
	case TxSuccess, TxError:
		return 4
	default:
		return 0
	}
}

// Terminal reports whether no further transition is possible for the attempt.
func (s TxStatus) Terminal() bool {
	return s == TxSuccess || s == TxError
}

// InFlight reports whether the attempt is waiting on the wallet or the chain.
func (s TxStatus) InFlight() bool {
	return s == TxConnecting || s == TxPending || s == TxConfirming
}

// TransactionRecord is one payment attempt.
type TransactionRecord struct {
	Attempt uint64   `json:"attempt"`
	Hash    string   `json:"hash,omitempty"`
	Status  TxStatus `json:"status"`
	Error   string   `json:"error,omitempty"`
}

// Advance moves the record forward to next.
// Returns false when next would be a step backwards or the record is terminal.
func (r *TransactionRecord) Advance(next TxStatus) bool {
	if r.Status.Terminal() {
		return false
	}
	if next.rank() <= r.Status.rank() {
		return false
	}
	r.Status = next
	return true
}

// Fail moves the record to error with message.
func (r *TransactionRecord) Fail(message string) bool {
	if !r.Advance(TxError) {
		return false
	}
	r.Error = message
	return true
}

// ============================================================================
// Swap orders
// ============================================================================

// OrderStatus is a settlement order's lifecycle as observed by this system.
type OrderStatus string

const (
	OrderCreated             OrderStatus = "created"
	OrderSubmitted           OrderStatus = "submitted"
	OrderPresignaturePending OrderStatus = "presignaturePending"
	OrderOpen                OrderStatus = "open"
	OrderFulfilled           OrderStatus = "fulfilled"
	OrderCancelled           OrderStatus = "cancelled"
	OrderExpired             OrderStatus = "expired"
)

func (s OrderStatus) rank() int {
	switch s {
	case OrderSubmitted:
		return 1
	case OrderPresignaturePending:
		return 2
	case OrderOpen:
		return 3
	case OrderFulfilled, OrderCancelled, OrderExpired:
		return 4
	default:
		return 0
	}
}

// Terminal reports whether the order has reached a final state.
func (s OrderStatus) Terminal() bool {
	return s.rank() == 4
}

// Pending reports whether the protocol still holds the order.
func (s OrderStatus) Pending() bool {
	return s == OrderPresignaturePending || s == OrderOpen
}

// Failed reports whether the order ended without execution.
func (s OrderStatus) Failed() bool {
	return s == OrderCancelled || s == OrderExpired
}

// SwapOrder is an order placed with the settlement protocol.
type SwapOrder struct {
	UID        string      `json:"uid,omitempty"`
	SellToken  string      `json:"sellToken"`
	BuyToken   string      `json:"buyToken"`
	SellAmount *big.Int    `json:"sellAmount"`
	BuyAmount  *big.Int    `json:"buyAmount"`
	FeeAmount  *big.Int    `json:"feeAmount"`
	ValidTo    time.Time   `json:"validTo"`
	Status     OrderStatus `json:"status"`
	TxHash     string      `json:"txHash,omitempty"`
}

// Advance moves the order forward; repeated or backwards statuses are ignored.
func (o *SwapOrder) Advance(next OrderStatus) bool {
	if o.Status.Terminal() || next.rank() <= o.Status.rank() {
		return false
	}
	o.Status = next
	return true
}

// ============================================================================
// Campaign progress
// ============================================================================

// DefaultFundingGoalUSD is the campaign target.
var DefaultFundingGoalUSD = decimal.NewFromInt(1500)

// CampaignProgress is the aggregate raised so far.
type CampaignProgress struct {
	TotalRaised      decimal.Decimal `json:"totalRaised"`
	ContributorCount int             `json:"contributorCount"`
	Goal             decimal.Decimal `json:"goal"`
	// Fallback is set when no live source answered
	Fallback  bool      `json:"fallback"`
	UpdatedAt time.Time `json:"lastUpdated"`
}

// Percentage is TotalRaised over Goal, capped at 100.
func (p CampaignProgress) Percentage() decimal.Decimal {
	if p.Goal.Sign() <= 0 {
		return decimal.Zero
	}
	pct := p.TotalRaised.Div(p.Goal).Mul(decimal.NewFromInt(100))
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.NewFromInt(100)
	}
	return pct
}
