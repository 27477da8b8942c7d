package fund

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTransactionRecordOnlyMovesForward(t *testing.T) {
	r := TransactionRecord{Status: TxIdle}

	assert.True(t, r.Advance(TxConnecting))
	assert.True(t, r.Advance(TxConfirming))
	assert.False(t, r.Advance(TxPending), "pending is behind confirming")
	assert.False(t, r.Advance(TxConfirming))
	assert.True(t, r.Status.InFlight())

	assert.True(t, r.Advance(TxSuccess))
	assert.True(t, r.Status.Terminal())
	assert.False(t, r.Fail("late failure"))
	assert.Equal(t, TxSuccess, r.Status)
	assert.Empty(t, r.Error)
}

func TestTransactionRecordFail(t *testing.T) {
	r := TransactionRecord{Status: TxPending}
	assert.True(t, r.Fail("Transaction failed"))
	assert.Equal(t, TxError, r.Status)
	assert.Equal(t, "Transaction failed", r.Error)
	assert.False(t, r.Advance(TxSuccess))
}

func TestSwapOrderAdvance(t *testing.T) {
	o := SwapOrder{Status: OrderSubmitted}

	assert.True(t, o.Advance(OrderOpen))
	assert.True(t, o.Status.Pending())
	assert.False(t, o.Advance(OrderPresignaturePending))
	assert.False(t, o.Advance(OrderOpen))
	assert.True(t, o.Advance(OrderExpired))
	assert.True(t, o.Status.Failed())
	assert.False(t, o.Advance(OrderFulfilled))
}

func TestAccountHasAddress(t *testing.T) {
	assert.False(t, Account{Address: "0xabc"}.HasAddress())
	assert.False(t, Account{Connected: true}.HasAddress())
	assert.True(t, Account{Address: "0xabc", Connected: true}.HasAddress())
}

func TestTokenBalanceFormatted(t *testing.T) {
	b := TokenBalance{Symbol: "USDC", Decimals: 6, Value: big.NewInt(25_500_000)}
	assert.Equal(t, "25.5", b.Formatted().String())
	assert.True(t, TokenBalance{Decimals: 18}.Formatted().IsZero())
}

func TestCampaignProgressPercentage(t *testing.T) {
	p := CampaignProgress{TotalRaised: decimal.NewFromInt(375), Goal: DefaultFundingGoalUSD}
	assert.Equal(t, "25.0", p.Percentage().StringFixed(1))

	p.TotalRaised = decimal.NewFromInt(2000)
	assert.Equal(t, "100", p.Percentage().String())

	assert.True(t, CampaignProgress{TotalRaised: decimal.NewFromInt(5)}.Percentage().IsZero())
}
