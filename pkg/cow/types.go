package cow

import (
	"math/big"
	"time"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
)

const (
	KindSell = "sell"
	KindBuy  = "buy"

	BalanceERC20 = "erc20"

	SigningSchemeEIP712  = "eip712"
	SigningSchemePresign = "presign"

	// ZeroAppData is the empty app-data hash
	ZeroAppData = "0x0000000000000000000000000000000000000000000000000000000000000000"
)

// QuoteRequest asks the protocol to price a sell order.
type QuoteRequest struct {
	SellToken           string `json:"sellToken"`
	BuyToken            string `json:"buyToken"`
	From                string `json:"from"`
	Receiver            string `json:"receiver,omitempty"`
	SellAmountBeforeFee string `json:"sellAmountBeforeFee"`
	Kind                string `json:"kind"`
	ValidTo             uint32 `json:"validTo,omitempty"`
	AppData             string `json:"appData,omitempty"`
	PartiallyFillable   bool   `json:"partiallyFillable"`
	SellTokenBalance    string `json:"sellTokenBalance,omitempty"`
	BuyTokenBalance     string `json:"buyTokenBalance,omitempty"`
	SigningScheme       string `json:"signingScheme,omitempty"`
}

// Order is the signable order struct, with amounts as decimal strings.
type Order struct {
	SellToken         string `json:"sellToken"`
	BuyToken          string `json:"buyToken"`
	Receiver          string `json:"receiver,omitempty"`
	SellAmount        string `json:"sellAmount"`
	BuyAmount         string `json:"buyAmount"`
	ValidTo           uint32 `json:"validTo"`
	AppData           string `json:"appData"`
	FeeAmount         string `json:"feeAmount"`
	Kind              string `json:"kind"`
	PartiallyFillable bool   `json:"partiallyFillable"`
	SellTokenBalance  string `json:"sellTokenBalance"`
	BuyTokenBalance   string `json:"buyTokenBalance"`
}

// Quote is the protocol's response to a QuoteRequest.
type Quote struct {
	Quote      Order  `json:"quote"`
	From       string `json:"from"`
	Expiration string `json:"expiration"`
	ID         int64  `json:"id,omitempty"`
}

// Deadline is when the quoted order stops being valid.
func (q *Quote) Deadline() time.Time {
	return time.Unix(int64(q.Quote.ValidTo), 0)
}

// Stale reports whether the quote can no longer be used at now.
func (q *Quote) Stale(now time.Time) bool {
	return q == nil || !now.Before(q.Deadline())
}

// SignedOrder is an order ready for submission.
type SignedOrder struct {
	Order
	Signature     string `json:"signature"`
	SigningScheme string `json:"signingScheme"`
	From          string `json:"from"`
	QuoteID       int64  `json:"quoteId,omitempty"`
}

// OrderInfo is the protocol's view of a submitted order.
type OrderInfo struct {
	UID                string           `json:"uid"`
	Status             fund.OrderStatus `json:"status"`
	CreationDate       string           `json:"creationDate"`
	ExecutedSellAmount string           `json:"executedSellAmount,omitempty"`
	ExecutedBuyAmount  string           `json:"executedBuyAmount,omitempty"`
	ExecutedFeeAmount  string           `json:"executedFeeAmount,omitempty"`
	TxHash             string           `json:"txHash,omitempty"`
}

// Trade is one settlement of an order.
type Trade struct {
	OrderUID  string `json:"orderUid"`
	TxHash    string `json:"txHash"`
	BuyAmount string `json:"buyAmount"`
}

// ToSwapOrder converts a quote into the domain order record.
func (q *Quote) ToSwapOrder() fund.SwapOrder {
	return fund.SwapOrder{
		SellToken:  q.Quote.SellToken,
		BuyToken:   q.Quote.BuyToken,
		SellAmount: parseAmount(q.Quote.SellAmount),
		BuyAmount:  parseAmount(q.Quote.BuyAmount),
		FeeAmount:  parseAmount(q.Quote.FeeAmount),
		ValidTo:    q.Deadline(),
		Status:     fund.OrderCreated,
	}
}

func parseAmount(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}
