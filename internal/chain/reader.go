package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/finsight/internal/domain"
)

// Supported networks.
const (
	NetworkEthereum = "ethereum"
	NetworkBitcoin  = "bitcoin"
)

var (
	ErrUnsupportedNetwork = errors.New("unsupported network")
	ErrInvalidAddress     = errors.New("invalid address")
)

var (
	ethAddress = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	btcLegacy  = regexp.MustCompile(`^[13][a-km-zA-HJ-NP-Z1-9]{25,34}$`)
	btcBech32  = regexp.MustCompile(`^bc1[ac-hj-np-z02-9]{39,59}$`)
)

// EthereumBalances is the contract of EthereumClient.
type EthereumBalances interface {
	GetBalanceWei(ctx context.Context, address string) (*big.Int, error)
}

// BitcoinBalances is the contract of BitcoinClient.
type BitcoinBalances interface {
	GetBalanceSats(ctx context.Context, address string) (int64, error)
}

// Reader answers balance queries for any supported network.
type Reader struct {
	eth EthereumBalances
	btc BitcoinBalances
}

// NewReader creates a Reader. A nil client makes its network unsupported.
func NewReader(eth EthereumBalances, btc BitcoinBalances) *Reader {
	return &Reader{eth: eth, btc: btc}
}

// ValidateAddress reports whether address is well formed for network. It never calls out.
func ValidateAddress(network, address string) bool {
	switch strings.ToLower(network) {
	case NetworkEthereum:
		return ethAddress.MatchString(address)
	case NetworkBitcoin:
		return btcLegacy.MatchString(address) || btcBech32.MatchString(address)
	default:
		return false
	}
}

// ValidateAddress is the method form of the package-level ValidateAddress.
func (r *Reader) ValidateAddress(network, address string) bool {
	return ValidateAddress(network, address)
}

// GetBalance returns the human-readable balance, e.g. "1.5" ETH.
func (r *Reader) GetBalance(ctx context.Context, network, address string) (string, error) {
	m, err := r.GetBaseUnits(ctx, network, address)
	if err != nil {
		return "", err
	}
	if m.Currency == domain.CurrencyETH {
		return WeiToEth(m.Amount.BigInt()), nil
	}
	return SatsToBtc(m.Amount.IntPart()), nil
}

// GetBaseUnits returns the balance in wei or satoshis with its currency.
func (r *Reader) GetBaseUnits(ctx context.Context, network, address string) (domain.Money, error) {
	network = strings.ToLower(network)
	if !ValidateAddress(network, address) {
		if network != NetworkEthereum && network != NetworkBitcoin {
			return domain.Money{}, fmt.Errorf("%s: %w", network, ErrUnsupportedNetwork)
		}
		return domain.Money{}, fmt.Errorf("%s address %q: %w", network, address, ErrInvalidAddress)
	}

	switch {
	case network == NetworkEthereum && r.eth != nil:
		wei, err := r.eth.GetBalanceWei(ctx, address)
		if err != nil {
			return domain.Money{}, err
		}
		return domain.Money{Amount: decimal.NewFromBigInt(wei, 0), Currency: domain.CurrencyETH}, nil
	case network == NetworkBitcoin && r.btc != nil:
		sats, err := r.btc.GetBalanceSats(ctx, address)
		if err != nil {
			return domain.Money{}, err
		}
		return domain.Money{Amount: decimal.NewFromInt(sats), Currency: domain.CurrencyBTC}, nil
	default:
		return domain.Money{}, fmt.Errorf("%s: %w", network, ErrUnsupportedNetwork)
	}
}
