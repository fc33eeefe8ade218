package evm

import (
	"errors"
	"fmt"
)

// ErrNoEndpoints is returned when a client has no RPC endpoint to try
var ErrNoEndpoints = errors.New("no RPC endpoints available")

// UnsupportedNetworkError is returned when a network has no known chain ID
type UnsupportedNetworkError struct {
	Network string
}

func (e *UnsupportedNetworkError) Error() string {
	return fmt.Sprintf("unsupported network: %s (add to constants.NetworkToChainID)", e.Network)
}

// RPCError wraps a failure from a single endpoint
type RPCError struct {
	Network  string
	Endpoint string
	Err      error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error on %s (%s): %v", e.Endpoint, e.Network, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}
