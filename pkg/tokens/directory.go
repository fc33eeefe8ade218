package tokens

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/billpay/pkg/constants"
)

// celoTokens is the Celo mainnet stablecoin directory
var celoTokens = []TokenContract{
	{Key: "cUSD", Symbol: "cUSD", Name: "Celo Dollar", Address: common.HexToAddress("0x765DE816845861e75A25fCA122bb6898B8B1282a"), Decimals: 18, IsActive: true},
	{Key: "USDT", Symbol: "USDT", Name: "Tether USD", Address: common.HexToAddress("0x617f3112bf5397D0467D315cC709EF968D9ba546"), Decimals: 6, IsActive: true},
	{Key: "USDC", Symbol: "USDC", Name: "USD Coin", Address: common.HexToAddress("0xcebA9300f2b948710d2653dD7B07f33A8B32118C"), Decimals: 6},
	{Key: "cEUR", Symbol: "cEUR", Name: "Celo Euro", Address: common.HexToAddress("0xd8763cba276a3738e6de85b4b3bf5fded6d6ca73"), Decimals: 18},
	{Key: "cREAL", Symbol: "cREAL", Name: "Celo Brazilian Real", Address: common.HexToAddress("0xe8537a3d056da446677b9e9d6c5db704eaab4787"), Decimals: 18},
	{Key: "XOF", Symbol: "XOF", Name: "ECO CFA", Address: common.HexToAddress("0x73F93dcc49cB8A239e2032663e9475dd5ef29A08"), Decimals: 18},
	{Key: "KES", Symbol: "KES", Name: "Celo Kenyan Shilling", Address: common.HexToAddress("0x456a3D042C0DbD3db53D5489e98dFb038553B0d0"), Decimals: 18},
	{Key: "PHP", Symbol: "PHP", Name: "PUSO", Address: common.HexToAddress("0x105d4A9306D2E55a71d2Eb95B81553AE1dC20d7B"), Decimals: 18},
	{Key: "COP", Symbol: "COP", Name: "Celo Colombian Peso", Address: common.HexToAddress("0x8a567e2ae79ca692bd748ab832081c45de4041ea"), Decimals: 18},
	{Key: "GHS", Symbol: "GHS", Name: "Celo Ghanaian Cedi", Address: common.HexToAddress("0xfAeA5F3404bbA20D3cc2f8C4B0A888F55a3c7313"), Decimals: 18},
	{Key: "GBP", Symbol: "GBP", Name: "Celo British Pound", Address: common.HexToAddress("0xCCF663b1fF11028f0b19058d0f7B674004a40746"), Decimals: 18},
	{Key: "ZAR", Symbol: "ZAR", Name: "Celo South African Rand", Address: common.HexToAddress("0x4c35853A3B4e647fD266f4de678dCc8fEC410BF6"), Decimals: 18},
	{Key: "ZAR-ALT", Symbol: "ZAR", Name: "Celo South African Rand (alt)", Address: common.HexToAddress("0xff4Ab19391af240c311c54200a492233052B6325"), Decimals: 18},
	{Key: "AUD", Symbol: "AUD", Name: "Celo Australian Dollar", Address: common.HexToAddress("0x7175504C455076F15c04A2F90a8e352281F492F9"), Decimals: 18},
}

// alfajoresTokens is the Alfajores testnet directory
var alfajoresTokens = []TokenContract{
	{Key: "cUSD", Symbol: "cUSD", Name: "Celo Dollar", Address: common.HexToAddress("0x874069Fa1Eb16D44d622F2e0Ca25eeA172369bC1"), Decimals: 18, IsActive: true},
	{Key: "USDC", Symbol: "USDC", Name: "USD Coin", Address: common.HexToAddress("0x2F25deB3848C207fc8E0c34035B3Ba7fC157602B"), Decimals: 6, IsActive: true},
	{Key: "cEUR", Symbol: "cEUR", Name: "Celo Euro", Address: common.HexToAddress("0x10c892A6EC43a53E45D0B916B4b7D383B1b78C0F"), Decimals: 18},
	{Key: "cREAL", Symbol: "cREAL", Name: "Celo Brazilian Real", Address: common.HexToAddress("0xE4D517785D091D3c54818832dB6094bcc2744545"), Decimals: 18},
}

var directories = map[string][]TokenContract{
	constants.NetworkCelo:          celoTokens,
	constants.NetworkCeloAlfajores: alfajoresTokens,
}

// ForNetwork returns the built-in registry for a network
func ForNetwork(network string) (*Registry, error) {
	contracts, ok := directories[network]
	if !ok {
		return nil, fmt.Errorf("no token directory for network: %s", network)
	}
	return NewRegistry(network, contracts)
}

// DefaultFeeCurrency returns the token used to pay gas on a network (cUSD)
func DefaultFeeCurrency(network string) (common.Address, error) {
	registry, err := ForNetwork(network)
	if err != nil {
		return common.Address{}, err
	}
	token, err := registry.Resolve("cUSD")
	if err != nil {
		return common.Address{}, err
	}
	return token.Address, nil
}
