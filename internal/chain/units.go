// Package chain reads on-chain wallet balances from public Ethereum and Bitcoin endpoints.
package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// WeiToEth renders wei as ETH with full precision and no trailing zeros, e.g. 1.5e18 -> "1.5".
func WeiToEth(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}

// SatsToBtc renders satoshis as BTC with no trailing zeros, e.g. 150000000 -> "1.5".
func SatsToBtc(sats int64) string {
	return decimal.New(sats, -8).String()
}
