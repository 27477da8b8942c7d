package evm

import (
	"math/big"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
)

const (
	// Default token decimals for USDC
	DefaultDecimals = 6

	// Native asset decimals
	NativeDecimals = 18

	// Transaction status
	TxStatusSuccess = 1
	TxStatusFailed  = 0

	// Default validity period for permits and orders (1 hour)
	DefaultValidityPeriod = 3600 // seconds

	// Token contracts on Base
	USDCAddress = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	WETHAddress = "0x4200000000000000000000000000000000000006"

	// ZeroAddress is used by hosted swap pages to denote the native asset
	ZeroAddress = "0x0000000000000000000000000000000000000000"

	// CoW Protocol contracts on Base
	CowSettlementAddress   = "0x9008D19f58AAbD9eD0D60971565AA8510560ab41"
	CowVaultRelayerAddress = "0xC92E8bdf79f0507f65a392b0ab4667716BFE0110"

	// Juicebox v4 contracts on Base
	JBMultiTerminalAddress = "0xdb9644369c79c3633cde70d2df50d827d7dc7dbc"
	JBDirectoryAddress     = "0x0bc9f153dee4d3d474ce0903775b9b2aaae9aa41"

	// JBNativeToken is the sentinel a Juicebox terminal uses for ETH
	JBNativeToken = "0x000000000000000000000000000000000000EEEe"

	// Function names
	FunctionBalanceOf       = "balanceOf"
	FunctionApprove         = "approve"
	FunctionNonces          = "nonces"
	FunctionDomainSeparator = "DOMAIN_SEPARATOR"
	FunctionPermit          = "permit"
	FunctionPay             = "pay"
	FunctionContribute      = "contribute"
	FunctionPrimaryTerminal = "primaryTerminalOf"
	FunctionSetPreSignature = "setPreSignature"
)

var (
	// Network chain IDs
	ChainIDBase        = big.NewInt(8453)
	ChainIDBaseSepolia = big.NewInt(84532)

	// NetworkConfigs lists the chains the fund can take contributions on.
	NetworkConfigs = map[fund.ChainID]NetworkConfig{
		8453: {
			ChainID: ChainIDBase,
			Name:    "Base",
			DefaultAsset: AssetInfo{
				Address:  USDCAddress,
				Symbol:   "USDC",
				Name:     "USD Coin",
				Version:  "2",
				Decimals: DefaultDecimals,
			},
			ExplorerURL: "https://basescan.org",
		},
		84532: {
			ChainID: ChainIDBaseSepolia,
			Name:    "Base Sepolia",
			DefaultAsset: AssetInfo{
				Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
				Symbol:   "USDC",
				Name:     "USDC",
				Version:  "2",
				Decimals: DefaultDecimals,
			},
			ExplorerURL: "https://sepolia.basescan.org",
		},
	}

	// ERC20ABI covers every token call the fund makes
	ERC20ABI = []byte(`[
		{
			"inputs": [{"name": "account", "type": "address"}],
			"name": "balanceOf",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"name": "approve",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [{"name": "owner", "type": "address"}],
			"name": "nonces",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "DOMAIN_SEPARATOR",
			"outputs": [{"name": "", "type": "bytes32"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "deadline", "type": "uint256"},
				{"name": "v", "type": "uint8"},
				{"name": "r", "type": "bytes32"},
				{"name": "s", "type": "bytes32"}
			],
			"name": "permit",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	// JBMultiTerminalABI is the pay entry point of a Juicebox v4 terminal
	JBMultiTerminalABI = []byte(`[
		{
			"inputs": [
				{"name": "projectId", "type": "uint256"},
				{"name": "token", "type": "address"},
				{"name": "amount", "type": "uint256"},
				{"name": "beneficiary", "type": "address"},
				{"name": "minReturnedTokens", "type": "uint256"},
				{"name": "memo", "type": "string"},
				{"name": "metadata", "type": "bytes"}
			],
			"name": "pay",
			"outputs": [{"name": "beneficiaryTokenCount", "type": "uint256"}],
			"stateMutability": "payable",
			"type": "function"
		}
	]`)

	// JBDirectoryABI resolves a project's terminal for a token
	JBDirectoryABI = []byte(`[
		{
			"inputs": [
				{"name": "projectId", "type": "uint256"},
				{"name": "token", "type": "address"}
			],
			"name": "primaryTerminalOf",
			"outputs": [{"name": "", "type": "address"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// CowSettlementABI covers on-chain pre-signing for contract owners
	CowSettlementABI = []byte(`[
		{
			"inputs": [
				{"name": "orderUid", "type": "bytes"},
				{"name": "signed", "type": "bool"}
			],
			"name": "setPreSignature",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	// PickleballFundABI is the bespoke crowdfunding contract
	PickleballFundABI = []byte(`[
		{
			"inputs": [],
			"name": "contribute",
			"outputs": [],
			"stateMutability": "payable",
			"type": "function"
		}
	]`)

	// EIP712DomainTypes is the full four-field domain used by USDC and CoW
	EIP712DomainTypes = []TypedDataField{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	}

	// PermitTypes defines the EIP-2612 Permit struct
	PermitTypes = map[string][]TypedDataField{
		"Permit": {
			{Name: "owner", Type: "address"},
			{Name: "spender", Type: "address"},
			{Name: "value", Type: "uint256"},
			{Name: "nonce", Type: "uint256"},
			{Name: "deadline", Type: "uint256"},
		},
	}
)

// GetNetworkConfig returns the configuration for chainID.
func GetNetworkConfig(chainID fund.ChainID) (NetworkConfig, error) {
	config, ok := NetworkConfigs[chainID]
	if !ok {
		return NetworkConfig{}, fund.ErrUnsupportedChain
	}
	return config, nil
}

// GetPermitEIP712Types returns the complete EIP-712 types map for permit signing.
func GetPermitEIP712Types() map[string][]TypedDataField {
	return map[string][]TypedDataField{
		"EIP712Domain": EIP712DomainTypes,
		"Permit":       PermitTypes["Permit"],
	}
}
