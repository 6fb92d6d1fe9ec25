package xache

import "strings"

// NetworkConfig is the static per-network configuration used by the payment
// handler. The table is fixed at build time: an unknown network id is a
// configuration error, never an empty result.
type NetworkConfig struct {
	// NetworkID is the protocol network identifier (e.g. "base", "solana").
	NetworkID string

	// ChainID is the EVM chain id; zero for Solana networks.
	ChainID int64

	// RPCURL is the default public RPC endpoint for balance and
	// authorization-state probes.
	RPCURL string

	// USDCAddress is the canonical USDC contract or mint address.
	USDCAddress string

	// Decimals is the USDC decimal count (6 on every supported network).
	Decimals int
}

var networks = map[string]NetworkConfig{
	"base": {
		NetworkID:   "base",
		ChainID:     8453,
		RPCURL:      "https://mainnet.base.org",
		USDCAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Decimals:    6,
	},
	"base-sepolia": {
		NetworkID:   "base-sepolia",
		ChainID:     84532,
		RPCURL:      "https://sepolia.base.org",
		USDCAddress: "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Decimals:    6,
	},
	"ethereum": {
		NetworkID:   "ethereum",
		ChainID:     1,
		RPCURL:      "https://ethereum-rpc.publicnode.com",
		USDCAddress: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		Decimals:    6,
	},
	"sepolia": {
		NetworkID:   "sepolia",
		ChainID:     11155111,
		RPCURL:      "https://ethereum-sepolia-rpc.publicnode.com",
		USDCAddress: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		Decimals:    6,
	},
	"polygon": {
		NetworkID:   "polygon",
		ChainID:     137,
		RPCURL:      "https://polygon-rpc.com",
		USDCAddress: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		Decimals:    6,
	},
	"avalanche": {
		NetworkID:   "avalanche",
		ChainID:     43114,
		RPCURL:      "https://api.avax.network/ext/bc/C/rpc",
		USDCAddress: "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
		Decimals:    6,
	},
	"solana": {
		NetworkID:   "solana",
		RPCURL:      "https://api.mainnet-beta.solana.com",
		USDCAddress: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Decimals:    6,
	},
	"solana-devnet": {
		NetworkID:   "solana-devnet",
		RPCURL:      "https://api.devnet.solana.com",
		USDCAddress: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
		Decimals:    6,
	},
}

// LookupNetwork resolves a network id against the static table. Unknown
// networks fail with ErrInvalidNetwork.
func LookupNetwork(networkID string) (NetworkConfig, error) {
	cfg, ok := networks[networkID]
	if !ok {
		return NetworkConfig{}, NewProtocolError(
			ErrCodeInvalidConfig, "unknown network "+networkID, ErrInvalidNetwork,
		).WithDetails("network", networkID)
	}
	return cfg, nil
}

// IsSolanaNetwork reports whether the network id names a Solana network.
// Challenge dispatch keys off this, not off key material.
func IsSolanaNetwork(networkID string) bool {
	return strings.Contains(networkID, "solana")
}

// USDCDomainName returns the EIP-712 domain name for USDC on the given
// network. Sepolia testnet deployments register the domain as "USDC" while
// every other deployment uses "USD Coin". The distinction is load-bearing:
// the wrong string changes the domain hash and the token contract rejects
// the signature.
func USDCDomainName(networkID string) string {
	if strings.Contains(networkID, "sepolia") {
		return "USDC"
	}
	return "USD Coin"
}
