package main

import (
	"bytes"
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/internal/config"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/payment"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/test/mocks/chain"
)

const base = fund.ChainID(8453)

type harness struct {
	chain   *chain.Chain
	wallet  *chain.Wallet
	session *session
	out     *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	prices := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ethereum":{"usd":3400}}`))
	}))
	t.Cleanup(prices.Close)

	c, err := config.Load(config.New(t.TempDir()))
	require.NoError(t, err)
	c.Payment.Backend = config.BackendDirect
	c.Payment.Contract = "0x1111111111111111111111111111111111111111"
	c.Price.CoinGeckoURL = prices.URL

	ch := chain.NewChain()
	wallet := chain.NewWallet(ch, base)
	out := &bytes.Buffer{}
	s, err := newSession(c, wallet, ch, out, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.flow.Close)
	return &harness{chain: ch, wallet: wallet, session: s, out: out}
}

func wei(s string) *big.Int {
	v, _ := new(big.Int).SetString(s, 10)
	return v
}

func TestRunUsage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.session.run(ctx, nil, h.out), errUsage)
	assert.ErrorIs(t, h.session.run(ctx, []string{"tip"}, h.out), errUsage)
	assert.ErrorIs(t, h.session.run(ctx, []string{"contribute"}, h.out), errUsage)
	assert.ErrorIs(t, h.session.run(ctx, []string{"fund", "manual"}, h.out), errUsage)
}

func TestRunStatus(t *testing.T) {
	h := newHarness(t)
	h.chain.SetBalance(h.wallet.Address(), "", wei("50000000000000000"))

	require.NoError(t, h.session.run(context.Background(), []string{"status", "100"}, h.out))
	assert.Contains(t, h.out.String(), "rate: 3400 USD/ETH")
	assert.Contains(t, h.out.String(), "100 USD = 0.029412 ETH (sufficient: true)")
	assert.Contains(t, h.out.String(), "[zkp2p cowswap manual]")
}

func TestRunContribute(t *testing.T) {
	h := newHarness(t)
	h.chain.SetBalance(h.wallet.Address(), "", wei("50000000000000000"))

	require.NoError(t, h.session.run(context.Background(), []string{"contribute", "100"}, h.out))
	assert.Contains(t, h.out.String(), "payment: success")
	assert.Contains(t, h.out.String(), "contributed, tx ")

	calls := h.wallet.SentCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "29412000000000000", calls[0].Value.String())
}

func TestRunContributeInsufficient(t *testing.T) {
	h := newHarness(t)
	h.chain.SetBalance(h.wallet.Address(), "", wei("10000000000000000"))

	err := h.session.run(context.Background(), []string{"contribute", "100"}, h.out)
	assert.ErrorIs(t, err, fund.ErrInsufficientBalance)
	assert.Contains(t, h.out.String(), "need 0.029412 ETH, have 0.01 ETH")
	assert.Empty(t, h.wallet.SentCalls())
}

func TestRunFundUnknownProvider(t *testing.T) {
	h := newHarness(t)
	err := h.session.run(context.Background(), []string{"fund", "paypal", "10"}, h.out)
	assert.Equal(t, fund.ErrCodeConfig, fund.CodeOf(err))
}

func TestPaymentBackend(t *testing.T) {
	c, err := config.Load(config.New(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, payment.Terminal{ProjectID: 107}, paymentBackend(c))

	c.Payment.Backend = config.BackendDirect
	c.Payment.Contract = "0x1111111111111111111111111111111111111111"
	assert.Equal(t, payment.DirectContract{Address: c.Payment.Contract}, paymentBackend(c))
}
