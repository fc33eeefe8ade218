package tokens

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrTokenNotFound is returned when a symbol or address is not in the registry
var ErrTokenNotFound = errors.New("token not supported")

// TokenContract describes one supported ERC-20 stablecoin
type TokenContract struct {
	Key      string         `json:"key"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Address  common.Address `json:"contractAddress"`
	Decimals int32          `json:"decimals"`
	IsActive bool           `json:"isActive"`
}

// Registry is an immutable, ordered set of token contracts for one network
type Registry struct {
	network   string
	tokens    []TokenContract
	byKey     map[string]int
	byAddress map[common.Address]int
}

// NewRegistry builds a registry, rejecting duplicate keys and addresses
func NewRegistry(network string, contracts []TokenContract) (*Registry, error) {
	r := &Registry{
		network:   network,
		tokens:    make([]TokenContract, 0, len(contracts)),
		byKey:     make(map[string]int, len(contracts)),
		byAddress: make(map[common.Address]int, len(contracts)),
	}

	for _, c := range contracts {
		if c.Key == "" {
			return nil, fmt.Errorf("token on %s has empty key", network)
		}
		if c.Decimals < 0 || c.Decimals > 36 {
			return nil, fmt.Errorf("token %s has invalid decimals %d", c.Key, c.Decimals)
		}
		if _, dup := r.byKey[c.Key]; dup {
			return nil, fmt.Errorf("duplicate token key %s on %s", c.Key, network)
		}
		// common.Address is byte-based, so this comparison ignores hex case
		if _, dup := r.byAddress[c.Address]; dup {
			return nil, fmt.Errorf("duplicate contract address %s on %s", c.Address.Hex(), network)
		}
		r.byKey[c.Key] = len(r.tokens)
		r.byAddress[c.Address] = len(r.tokens)
		r.tokens = append(r.tokens, c)
	}

	return r, nil
}

// Network returns the network the registry describes
func (r *Registry) Network() string {
	return r.network
}

// Resolve looks a token up by its registry key (e.g. "cUSD", "ZAR-ALT")
func (r *Registry) Resolve(symbol string) (TokenContract, error) {
	idx, ok := r.byKey[symbol]
	if !ok {
		return TokenContract{}, fmt.Errorf("%w: %s", ErrTokenNotFound, symbol)
	}
	return r.tokens[idx], nil
}

// ResolveByAddress looks a token up by contract address, ignoring hex case
func (r *Registry) ResolveByAddress(address string) (TokenContract, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return TokenContract{}, fmt.Errorf("%w: %s", ErrTokenNotFound, address)
	}
	idx, ok := r.byAddress[common.HexToAddress(address)]
	if !ok {
		return TokenContract{}, fmt.Errorf("%w: %s", ErrTokenNotFound, address)
	}
	return r.tokens[idx], nil
}

// ListActive returns active tokens in registration order
func (r *Registry) ListActive() []TokenContract {
	active := make([]TokenContract, 0, len(r.tokens))
	for _, t := range r.tokens {
		if t.IsActive {
			active = append(active, t)
		}
	}
	return active
}

// ListAll returns every token in registration order
func (r *Registry) ListAll() []TokenContract {
	return append([]TokenContract(nil), r.tokens...)
}
