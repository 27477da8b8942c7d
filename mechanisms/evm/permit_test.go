package evm_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/test/mocks/chain"
)

func signedPermit(t *testing.T, wallet *chain.Wallet, reader evm.ChainReader, value int64) (*evm.Permit, evm.NetworkConfig) {
	t.Helper()
	network, err := evm.GetNetworkConfig(8453)
	require.NoError(t, err)
	permit, err := evm.SignPermit(context.Background(), wallet, reader, network.DefaultAsset, network.ChainID,
		evm.CowVaultRelayerAddress, big.NewInt(value), time.Unix(1893456000, 0))
	require.NoError(t, err)
	return permit, network
}

func TestSignPermitVerifies(t *testing.T) {
	c := chain.NewChain()
	wallet := chain.NewWallet(c, 8453)
	permit, network := signedPermit(t, wallet, c, 25_000_000)

	assert.Equal(t, wallet.Address(), permit.Owner)
	assert.Equal(t, evm.NormalizeAddress(evm.CowVaultRelayerAddress), permit.Spender)
	assert.Equal(t, "25000000", permit.Value)
	assert.Equal(t, "1893456000", permit.Signature.Deadline)
	assert.Equal(t, "0", permit.Signature.Nonce)
	assert.Contains(t, []uint8{27, 28}, permit.Signature.V)

	require.NoError(t, evm.VerifyPermit(permit, network.DefaultAsset, network.ChainID))
}

func TestVerifyPermitRejectsTampering(t *testing.T) {
	c := chain.NewChain()
	wallet := chain.NewWallet(c, 8453)
	other := chain.NewWallet(c, 8453)

	tests := []struct {
		name   string
		mutate func(p *evm.Permit)
	}{
		{"value", func(p *evm.Permit) { p.Value = "26000000" }},
		{"spender", func(p *evm.Permit) { p.Spender = other.Address() }},
		{"owner", func(p *evm.Permit) { p.Owner = other.Address() }},
		{"deadline", func(p *evm.Permit) { p.Signature.Deadline = "1893456001" }},
		{"nonce", func(p *evm.Permit) { p.Signature.Nonce = "1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			permit, network := signedPermit(t, wallet, c, 25_000_000)
			tt.mutate(permit)
			assert.Error(t, evm.VerifyPermit(permit, network.DefaultAsset, network.ChainID))
		})
	}

	t.Run("wrong chain", func(t *testing.T) {
		permit, network := signedPermit(t, wallet, c, 25_000_000)
		assert.Error(t, evm.VerifyPermit(permit, network.DefaultAsset, evm.ChainIDBaseSepolia))
	})
}

func TestSignPermitUsesOnChainNonce(t *testing.T) {
	c := chain.NewChain()
	wallet := chain.NewWallet(c, 8453)

	c.ReadErr = errors.New("rpc down")
	network, err := evm.GetNetworkConfig(8453)
	require.NoError(t, err)
	_, err = evm.SignPermit(context.Background(), wallet, c, network.DefaultAsset, network.ChainID,
		evm.CowVaultRelayerAddress, big.NewInt(1), time.Now().Add(time.Hour))
	assert.Error(t, err)

	wallet.Disconnect()
	c.ReadErr = nil
	_, err = evm.SignPermit(context.Background(), wallet, c, network.DefaultAsset, network.ChainID,
		evm.CowVaultRelayerAddress, big.NewInt(1), time.Now().Add(time.Hour))
	assert.ErrorContains(t, err, "no address")
}

func TestSplitJoinSignature(t *testing.T) {
	raw := make([]byte, 65)
	for i := range 64 {
		raw[i] = byte(i + 1)
	}
	raw[64] = 1

	split, err := evm.SplitSignature(raw)
	require.NoError(t, err)
	assert.Equal(t, uint8(28), split.V)
	assert.Len(t, split.R, 66)

	joined, err := evm.JoinSignature(split)
	require.NoError(t, err)
	assert.Equal(t, raw[:64], joined[:64])
	assert.Equal(t, byte(28), joined[64])

	_, err = evm.SplitSignature(raw[:64])
	assert.Error(t, err)
	_, err = evm.JoinSignature(evm.PermitSignature{R: "0x01", S: split.S})
	assert.Error(t, err)
}

func TestPermitCall(t *testing.T) {
	c := chain.NewChain()
	wallet := chain.NewWallet(c, 8453)
	permit, _ := signedPermit(t, wallet, c, 25_000_000)

	call, err := evm.PermitCall(permit)
	require.NoError(t, err)
	assert.Equal(t, evm.FunctionPermit, call.Function)
	assert.True(t, evm.SameAddress(evm.USDCAddress, call.To))
	require.Len(t, call.Args, 7)
	assert.Equal(t, common.HexToAddress(wallet.Address()), call.Args[0])
	assert.Equal(t, common.HexToAddress(evm.CowVaultRelayerAddress), call.Args[1])
	assert.Equal(t, "25000000", call.Args[2].(*big.Int).String())
	assert.Equal(t, permit.Signature.V, call.Args[4])

	permit.Value = "lots"
	_, err = evm.PermitCall(permit)
	assert.Error(t, err)
}

func TestUnits(t *testing.T) {
	v, err := evm.ParseUnits("25.5", evm.DefaultDecimals)
	require.NoError(t, err)
	assert.Equal(t, "25500000", v.String())

	v, err = evm.ParseUnits("0.0294117647", evm.NativeDecimals)
	require.NoError(t, err)
	assert.Equal(t, "29411764700000000", v.String())

	_, err = evm.ParseUnits("-1", 6)
	assert.Error(t, err)
	_, err = evm.ParseUnits("abc", 6)
	assert.Error(t, err)

	assert.Equal(t, "0.05", evm.FormatUnits(big.NewInt(50_000_000_000_000_000), evm.NativeDecimals).String())
	assert.True(t, evm.FormatUnits(nil, 6).IsZero())
}

func TestAddresses(t *testing.T) {
	assert.True(t, evm.SameAddress(evm.USDCAddress, "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"))
	assert.True(t, evm.IsZeroAddress(""))
	assert.True(t, evm.IsZeroAddress(evm.ZeroAddress))
	assert.False(t, evm.IsZeroAddress(evm.WETHAddress))
	assert.True(t, evm.IsValidAddress(evm.WETHAddress))
	assert.False(t, evm.IsValidAddress("0x123"))
}

func TestGetNetworkConfig(t *testing.T) {
	network, err := evm.GetNetworkConfig(8453)
	require.NoError(t, err)
	assert.Equal(t, "USD Coin", network.DefaultAsset.Name)
	assert.Equal(t, int64(8453), network.ChainID.Int64())

	_, err = evm.GetNetworkConfig(1)
	assert.ErrorIs(t, err, fund.ErrUnsupportedChain)
}

func TestToBigInt(t *testing.T) {
	for _, in := range []interface{}{big.NewInt(5), "5", uint64(5), int64(5)} {
		v, err := evm.ToBigInt(in)
		require.NoError(t, err)
		assert.Equal(t, int64(5), v.Int64())
	}
	_, err := evm.ToBigInt(5.0)
	assert.Error(t, err)
}
