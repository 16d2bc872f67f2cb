package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/mtlprog/finsight/internal/httpclient"
)

// ErrAllEndpointsFailed is returned when every configured RPC URL failed.
var ErrAllEndpointsFailed = errors.New("all RPC endpoints failed")

// EthereumClient queries eth_getBalance against an ordered list of JSON-RPC URLs,
// moving to the next URL on any failure.
type EthereumClient struct {
	urls []string
	http *httpclient.Client
}

// NewEthereumClient creates a client over rpcURLs, tried in order.
func NewEthereumClient(rpcURLs []string) *EthereumClient {
	return &EthereumClient{
		urls: rpcURLs,
		http: httpclient.New("ethereum-rpc", 0, 0),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

// GetBalanceWei returns the latest balance of address in wei.
func (c *EthereumClient) GetBalanceWei(ctx context.Context, address string) (*big.Int, error) {
	if len(c.urls) == 0 {
		return nil, fmt.Errorf("ethereum balance for %s: no RPC URLs configured: %w", address, ErrAllEndpointsFailed)
	}

	var lastErr error
	for _, url := range c.urls {
		wei, err := c.getBalance(ctx, url, address)
		if err == nil {
			return wei, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("ethereum RPC endpoint failed, trying next", "url", url, "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("ethereum balance for %s: %w: last error: %w", address, ErrAllEndpointsFailed, lastErr)
}

func (c *EthereumClient) getBalance(ctx context.Context, url, address string) (*big.Int, error) {
	req := rpcRequest{JSONRPC: "2.0", Method: "eth_getBalance", Params: []any{address, "latest"}, ID: 1}

	// Parse: {"jsonrpc":"2.0","id":1,"result":"0x14d1120d7b160000"}
	var resp rpcResponse
	if err := c.http.PostJSON(ctx, url, req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return parseHexQuantity(resp.Result)
}

func parseHexQuantity(s string) (*big.Int, error) {
	digits, ok := strings.CutPrefix(s, "0x")
	if !ok || digits == "" {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return v, nil
}
