package domain

// DefaultCurrency is used when a user has no preferred display currency.
const DefaultCurrency = "USD"

const (
	CurrencyETH = "ETH"
	CurrencyBTC = "BTC"
)

// zeroDecimalCurrencies have no minor unit.
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true, "KRW": true, "ISK": true, "CLP": true, "VND": true,
	"UGX": true, "XAF": true, "XOF": true, "PYG": true,
}

var threeDecimalCurrencies = map[string]bool{
	"BHD": true, "KWD": true, "OMR": true, "JOD": true, "TND": true,
}

// CurrencyExponent returns how many decimal places separate base units from display units.
func CurrencyExponent(code string) int32 {
	switch {
	case code == CurrencyETH:
		return 18
	case code == CurrencyBTC:
		return 8
	case zeroDecimalCurrencies[code]:
		return 0
	case threeDecimalCurrencies[code]:
		return 3
	default:
		return 2
	}
}

// IsCrypto reports whether the code is one of the supported on-chain currencies.
func IsCrypto(code string) bool {
	return code == CurrencyETH || code == CurrencyBTC
}
