package constants

import "time"

const (
	DelayBetweenRPCCalls      = 200              // delay in milliseconds between RPC calls
	TransactionReceiptTimeout = 5 * time.Second  // timeout for transaction receipt
	CallContractTimeout       = 10 * time.Second // timeout for contract call
	HealthCheckTimeout        = 3 * time.Second  // timeout for endpoint health checks
	RateSourceTimeout         = 15 * time.Second // timeout for price feed requests
	ChainListTimeout          = 30 * time.Second // timeout for chainlist.org fetch
	TLSHandshakeTimeout       = 10 * time.Second // timeout for TLS handshake
	ResponseHeaderTimeout     = 20 * time.Second // timeout for response header
	ExpectContinueTimeout     = 1 * time.Second  // timeout for expect continue
	MaxResponseBodySize       = 10 * 1024 * 1024 // maximum response body size in bytes (10MB)
)

// Payment workflow defaults
const (
	DefaultStepTimeout              = 30 * time.Second
	DefaultVerificationTimeout      = 2 * time.Minute
	DefaultVerificationPollInterval = 3 * time.Second
	DefaultRateTTL                  = 5 * time.Minute
	DefaultRate                     = "1.0"
	DefaultFiatCurrency             = "USD"
	EndpointRefreshInterval         = 6 * time.Hour
)

// TransferGasLimit is the fixed gas budget attached to every token transfer.
const TransferGasLimit uint64 = 200000

// ERC-20 function selectors and event topics
const (
	TransferSelector  = "0xa9059cbb"
	BalanceOfSelector = "0x70a08231"
	TransferEventSig  = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
)

// Network Types
const (
	NetworkCelo          = "celo"
	NetworkCeloAlfajores = "celo-alfajores"
)

// mapping from network name to numeric chain ID
var NetworkToChainID = map[string]int64{
	NetworkCelo:          42220,
	NetworkCeloAlfajores: 44787,
}

var OfficialRPCEndpoints = map[string][]string{
	NetworkCelo:          {"https://forno.celo.org"},
	NetworkCeloAlfajores: {"https://alfajores-forno.celo-testnet.org"},
}

var BlockExplorerURLs = map[string]string{
	NetworkCelo:          "https://celoscan.io",
	NetworkCeloAlfajores: "https://alfajores.celoscan.io",
}
