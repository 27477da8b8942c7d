package funding

import (
	"context"
	"errors"
	"net/url"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/balance"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
)

const (
	DefaultZKP2PURL       = "https://zkp2p.xyz/swap"
	DefaultCowSwapPageURL = "https://swap.cow.fi/"
	DefaultExchangeURL    = "https://www.coinbase.com/"
	DefaultReferrer       = "Marina+Pickleball+Community+Fund"
)

// Request describes the top-up the donor needs.
type Request struct {
	Address string       `json:"address"`
	ChainID fund.ChainID `json:"chainId"`
	// AmountNative is the required native amount as resolved for the contribution
	AmountNative string `json:"amountNative,omitempty"`
	// AmountUSD is what the donor typed in
	AmountUSD string `json:"amountUsd,omitempty"`
}

// Provider hands the donor off to an external funding flow.
type Provider interface {
	// Name identifies the provider
	Name() string
	// Asset is the balance symbol the provider delivers into
	Asset() string
	// Open starts the flow. It returns a URL to open, or "" when the flow was launched in-process.
	Open(ctx context.Context, req Request) (string, error)
}

// OnrampOptions are passed to a hosted fundWallet flow.
type OnrampOptions struct {
	ChainID           fund.ChainID
	Amount            string
	Asset             string
	PreferredProvider string
}

// OnrampLauncher is the wallet provider's hosted card / mobile-pay funding.
type OnrampLauncher interface {
	FundWallet(ctx context.Context, address string, opts OnrampOptions) error
}

// Onramp funds the wallet in the native asset through the wallet provider.
type Onramp struct {
	launcher OnrampLauncher
}

// NewOnramp wraps launcher
func NewOnramp(launcher OnrampLauncher) *Onramp {
	return &Onramp{launcher: launcher}
}

func (o *Onramp) Name() string  { return "onramp" }
func (o *Onramp) Asset() string { return balance.NativeSymbol }

func (o *Onramp) Open(ctx context.Context, req Request) (string, error) {
	if o.launcher == nil {
		return "", fund.ConfigError("onramp launcher")
	}
	err := o.launcher.FundWallet(ctx, req.Address, OnrampOptions{
		ChainID:           req.ChainID,
		Amount:            req.AmountNative,
		Asset:             "native-currency",
		PreferredProvider: "coinbase",
	})
	return "", err
}

// ZKP2P sends the donor to the peer-to-peer Venmo → USDC ramp.
type ZKP2P struct {
	BaseURL         string
	Referrer        string
	CallbackURL     string
	PaymentPlatform string
}

func (z *ZKP2P) Name() string  { return "zkp2p" }
func (z *ZKP2P) Asset() string { return "USDC" }

func (z *ZKP2P) Open(ctx context.Context, req Request) (string, error) {
	return z.URL(req.Address, req.AmountUSD)
}

// URL builds the ramp link for address and a USD amount.
func (z *ZKP2P) URL(address, usd string) (string, error) {
	if address == "" {
		return "", fund.ErrNoAddress
	}
	amount, ok := fund.ParseUnits(usd, evm.DefaultDecimals)
	if !ok || amount.Sign() <= 0 {
		return "", fund.ErrInvalidAmount
	}

	base := valueOr(z.BaseURL, DefaultZKP2PURL)
	params := url.Values{}
	params.Set("referrer", valueOr(z.Referrer, DefaultReferrer))
	if z.CallbackURL != "" {
		params.Set("callbackUrl", z.CallbackURL)
	}
	params.Set("amountUsdc", amount.String())
	params.Set("recipientAddress", address)
	params.Set("paymentPlatform", valueOr(z.PaymentPlatform, "Venmo"))
	return base + "?" + params.Encode(), nil
}

// CowSwapPage opens the hosted swap page selling USDC for the native asset.
type CowSwapPage struct {
	BaseURL string
}

func (c *CowSwapPage) Name() string  { return "cowswap" }
func (c *CowSwapPage) Asset() string { return balance.NativeSymbol }

func (c *CowSwapPage) Open(ctx context.Context, req Request) (string, error) {
	return CowSwapURL(c.BaseURL, req.Address, req.AmountUSD)
}

// CowSwapURL builds the hosted swap link for selling usdc USDC into ETH for recipient.
func CowSwapURL(baseURL, recipient, usdc string) (string, error) {
	if recipient == "" {
		return "", fund.ErrNoAddress
	}
	amount, ok := fund.ParseUnits(usdc, evm.DefaultDecimals)
	if !ok || amount.Sign() <= 0 {
		return "", fund.ErrInvalidAmount
	}

	u, err := url.Parse(valueOr(baseURL, DefaultCowSwapPageURL))
	if err != nil {
		return "", err
	}
	params := u.Query()
	params.Set("chain", "base")
	params.Set("sellToken", evm.USDCAddress)
	params.Set("buyToken", evm.ZeroAddress)
	params.Set("sellAmount", amount.String())
	params.Set("recipient", recipient)
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// ManualExchange is the fallback: buy on an exchange and withdraw to the shown address.
type ManualExchange struct {
	ExchangeURL string
}

func (m *ManualExchange) Name() string  { return "manual" }
func (m *ManualExchange) Asset() string { return balance.NativeSymbol }

func (m *ManualExchange) Open(ctx context.Context, req Request) (string, error) {
	if req.Address == "" {
		return "", fund.ErrNoAddress
	}
	return valueOr(m.ExchangeURL, DefaultExchangeURL), nil
}

// Instructions is the text shown next to the manual option.
func (m *ManualExchange) Instructions(req Request) string {
	network := "Base"
	if config, err := evm.GetNetworkConfig(req.ChainID); err == nil {
		network = config.Name
	}
	return "Send ETH on " + network + " to " + req.Address
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// errNoProvider is returned when Start is called without a provider.
var errNoProvider = errors.New("funding: no provider")
