package chain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mtlprog/finsight/internal/httpclient"
)

// BitcoinClient reads address balances from a mempool.space compatible explorer API.
type BitcoinClient struct {
	baseURL string
	http    *httpclient.Client
}

// NewBitcoinClient creates a client for the explorer at baseURL, e.g. https://mempool.space/api.
func NewBitcoinClient(baseURL string, maxRetries int, baseDelay time.Duration) *BitcoinClient {
	return &BitcoinClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpclient.New("mempool", maxRetries, baseDelay),
	}
}

type txoStats struct {
	FundedTxoSum int64 `json:"funded_txo_sum"`
	SpentTxoSum  int64 `json:"spent_txo_sum"`
}

type addressInfo struct {
	Address      string   `json:"address"`
	ChainStats   txoStats `json:"chain_stats"`
	MempoolStats txoStats `json:"mempool_stats"`
}

// GetBalanceSats returns confirmed plus unconfirmed balance in satoshis.
func (c *BitcoinClient) GetBalanceSats(ctx context.Context, address string) (int64, error) {
	// Parse: {"address":"bc1...","chain_stats":{"funded_txo_sum":..,"spent_txo_sum":..},"mempool_stats":{...}}
	var info addressInfo
	if err := c.http.GetJSON(ctx, fmt.Sprintf("%s/address/%s", c.baseURL, address), &info); err != nil {
		return 0, fmt.Errorf("bitcoin balance for %s: %w", address, err)
	}
	confirmed := info.ChainStats.FundedTxoSum - info.ChainStats.SpentTxoSum
	pending := info.MempoolStats.FundedTxoSum - info.MempoolStats.SpentTxoSum
	return confirmed + pending, nil
}
