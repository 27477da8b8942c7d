package cow

import (
	"context"
	"fmt"
	"math/big"

	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
)

// DefaultSlippageBps is the tolerance applied to quoted buy amounts (5%).
const DefaultSlippageBps = 500

// OrderTypes is the EIP-712 Order struct used by the settlement contract.
var OrderTypes = map[string][]evm.TypedDataField{
	"Order": {
		{Name: "sellToken", Type: "address"},
		{Name: "buyToken", Type: "address"},
		{Name: "receiver", Type: "address"},
		{Name: "sellAmount", Type: "uint256"},
		{Name: "buyAmount", Type: "uint256"},
		{Name: "validTo", Type: "uint32"},
		{Name: "appData", Type: "bytes32"},
		{Name: "feeAmount", Type: "uint256"},
		{Name: "kind", Type: "string"},
		{Name: "partiallyFillable", Type: "bool"},
		{Name: "sellTokenBalance", Type: "string"},
		{Name: "buyTokenBalance", Type: "string"},
	},
}

// OrderDomain is the settlement contract's EIP-712 domain on chainID.
func OrderDomain(chainID *big.Int) evm.TypedDataDomain {
	return evm.TypedDataDomain{
		Name:              "Gnosis Protocol",
		Version:           "v2",
		ChainID:           chainID,
		VerifyingContract: evm.CowSettlementAddress,
	}
}

// OrderTypedData builds the typed-data payload for signing order.
func OrderTypedData(order Order, chainID *big.Int) (evm.TypedDataDomain, map[string][]evm.TypedDataField, map[string]interface{}, error) {
	sellAmount, ok := new(big.Int).SetString(order.SellAmount, 10)
	if !ok {
		return evm.TypedDataDomain{}, nil, nil, fmt.Errorf("invalid sellAmount %q", order.SellAmount)
	}
	buyAmount, ok := new(big.Int).SetString(order.BuyAmount, 10)
	if !ok {
		return evm.TypedDataDomain{}, nil, nil, fmt.Errorf("invalid buyAmount %q", order.BuyAmount)
	}
	feeAmount, ok := new(big.Int).SetString(defaultString(order.FeeAmount, "0"), 10)
	if !ok {
		return evm.TypedDataDomain{}, nil, nil, fmt.Errorf("invalid feeAmount %q", order.FeeAmount)
	}
	appData, err := evm.HexToBytes32(defaultString(order.AppData, ZeroAppData))
	if err != nil {
		return evm.TypedDataDomain{}, nil, nil, fmt.Errorf("invalid appData: %w", err)
	}

	message := map[string]interface{}{
		"sellToken":         evm.NormalizeAddress(order.SellToken),
		"buyToken":          evm.NormalizeAddress(order.BuyToken),
		"receiver":          evm.NormalizeAddress(defaultString(order.Receiver, evm.ZeroAddress)),
		"sellAmount":        sellAmount,
		"buyAmount":         buyAmount,
		"validTo":           new(big.Int).SetUint64(uint64(order.ValidTo)),
		"appData":           appData[:],
		"feeAmount":         feeAmount,
		"kind":              defaultString(order.Kind, KindSell),
		"partiallyFillable": order.PartiallyFillable,
		"sellTokenBalance":  defaultString(order.SellTokenBalance, BalanceERC20),
		"buyTokenBalance":   defaultString(order.BuyTokenBalance, BalanceERC20),
	}
	return OrderDomain(chainID), OrderTypes, message, nil
}

// MinimumAmount applies slippageBps of tolerance to amount, rounding down.
func MinimumAmount(amount *big.Int, slippageBps int64) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	if slippageBps < 0 {
		slippageBps = 0
	}
	if slippageBps > 10000 {
		slippageBps = 10000
	}
	out := new(big.Int).Mul(amount, big.NewInt(10000-slippageBps))
	return out.Div(out, big.NewInt(10000))
}

// OrderFromQuote turns a quote into a fill-or-kill order paying receiver,
// with the buy amount lowered by slippageBps.
func OrderFromQuote(quote *Quote, receiver string, slippageBps int64) Order {
	order := quote.Quote
	order.Receiver = evm.NormalizeAddress(receiver)
	order.BuyAmount = MinimumAmount(parseAmount(order.BuyAmount), slippageBps).String()
	order.AppData = defaultString(order.AppData, ZeroAppData)
	order.SellTokenBalance = defaultString(order.SellTokenBalance, BalanceERC20)
	order.BuyTokenBalance = defaultString(order.BuyTokenBalance, BalanceERC20)
	order.PartiallyFillable = false
	return order
}

// Signer signs EIP-712 payloads.
type Signer interface {
	SignTypedData(ctx context.Context, domain evm.TypedDataDomain, types map[string][]evm.TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error)
}

// SignOrder signs order as owner on chainID.
func SignOrder(ctx context.Context, signer Signer, order Order, owner string, chainID *big.Int) (SignedOrder, error) {
	domain, types, message, err := OrderTypedData(order, chainID)
	if err != nil {
		return SignedOrder{}, err
	}
	sig, err := signer.SignTypedData(ctx, domain, types, "Order", message)
	if err != nil {
		return SignedOrder{}, fmt.Errorf("failed to sign order: %w", err)
	}
	return SignedOrder{
		Order:         order,
		Signature:     evm.BytesToHex(sig),
		SigningScheme: SigningSchemeEIP712,
		From:          evm.NormalizeAddress(owner),
	}, nil
}

// VerifyOrderSignature checks that order was signed by its From address.
func VerifyOrderSignature(order SignedOrder, chainID *big.Int) error {
	if order.SigningScheme != SigningSchemeEIP712 {
		return fmt.Errorf("unsupported signing scheme %q", order.SigningScheme)
	}
	sig, err := evm.HexToBytes(order.Signature)
	if err != nil {
		return err
	}
	domain, types, message, err := OrderTypedData(order.Order, chainID)
	if err != nil {
		return err
	}
	signer, err := evm.RecoverTypedDataSigner(domain, types, "Order", message, sig)
	if err != nil {
		return err
	}
	if !evm.SameAddress(signer, order.From) {
		return fmt.Errorf("order signed by %s, expected %s", signer, order.From)
	}
	return nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
