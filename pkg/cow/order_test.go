package cow

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
)

type keySigner struct {
	key *ecdsa.PrivateKey
}

func (k *keySigner) SignTypedData(ctx context.Context, domain evm.TypedDataDomain, types map[string][]evm.TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error) {
	digest, err := evm.HashTypedData(domain, types, primaryType, message)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, k.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

func testOrder() Order {
	return Order{
		SellToken:        evm.USDCAddress,
		BuyToken:         evm.WETHAddress,
		SellAmount:       "24900000",
		BuyAmount:        "7000000000000000",
		ValidTo:          1900000000,
		AppData:          ZeroAppData,
		FeeAmount:        "100000",
		Kind:             KindSell,
		SellTokenBalance: BalanceERC20,
		BuyTokenBalance:  BalanceERC20,
	}
}

func TestMinimumAmount(t *testing.T) {
	tests := []struct {
		amount int64
		bps    int64
		want   int64
	}{
		{amount: 10000, bps: 500, want: 9500},
		{amount: 999, bps: 500, want: 949},
		{amount: 10000, bps: 0, want: 10000},
		{amount: 10000, bps: -5, want: 10000},
		{amount: 10000, bps: 20000, want: 0},
	}
	for _, tt := range tests {
		got := MinimumAmount(big.NewInt(tt.amount), tt.bps)
		assert.Equal(t, tt.want, got.Int64(), "MinimumAmount(%d, %d)", tt.amount, tt.bps)
	}
	assert.Equal(t, int64(0), MinimumAmount(nil, 500).Int64())
}

func TestOrderFromQuote(t *testing.T) {
	quote := &Quote{Quote: testOrder()}
	quote.Quote.PartiallyFillable = true

	order := OrderFromQuote(quote, testOwner, DefaultSlippageBps)
	assert.Equal(t, "6650000000000000", order.BuyAmount)
	assert.Equal(t, evm.NormalizeAddress(testOwner), order.Receiver)
	assert.False(t, order.PartiallyFillable)
	assert.Equal(t, "7000000000000000", quote.Quote.BuyAmount, "quote must not be mutated")
}

func TestSignOrderRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey).Hex()

	order := testOrder()
	order.Receiver = owner

	signed, err := SignOrder(context.Background(), &keySigner{key: key}, order, owner, evm.ChainIDBase)
	require.NoError(t, err)
	assert.Equal(t, SigningSchemeEIP712, signed.SigningScheme)
	require.NoError(t, VerifyOrderSignature(signed, evm.ChainIDBase))

	t.Run("tampered amount", func(t *testing.T) {
		tampered := signed
		tampered.BuyAmount = "1"
		assert.Error(t, VerifyOrderSignature(tampered, evm.ChainIDBase))
	})

	t.Run("other chain", func(t *testing.T) {
		assert.Error(t, VerifyOrderSignature(signed, evm.ChainIDBaseSepolia))
	})
}

func TestOrderTypedDataRejectsBadAmounts(t *testing.T) {
	order := testOrder()
	order.SellAmount = "not-a-number"
	_, _, _, err := OrderTypedData(order, evm.ChainIDBase)
	assert.Error(t, err)
}
