package rates

import "github.com/sigweihq/billpay/pkg/constants"

// cryptoToFiat maps a stablecoin symbol to the fiat currency it tracks
var cryptoToFiat = map[string]string{
	"cUSD":  "USD",
	"USDT":  "USD",
	"USDC":  "USD",
	"cEUR":  "EUR",
	"cREAL": "BRL",
	"eXOF":  "XOF",
	"XOF":   "XOF",
	"cKES":  "KES",
	"KES":   "KES",
	"PUSO":  "PHP",
	"PHP":   "PHP",
	"cCOP":  "COP",
	"COP":   "COP",
	"GHS":   "GHS",
	"GBP":   "GBP",
	"ZAR":   "ZAR",
	"AUD":   "AUD",
}

// FiatCurrencyFor returns the fiat currency a stablecoin settles into, USD when unknown
func FiatCurrencyFor(symbol string) string {
	if fiat, ok := cryptoToFiat[symbol]; ok {
		return fiat
	}
	return constants.DefaultFiatCurrency
}
