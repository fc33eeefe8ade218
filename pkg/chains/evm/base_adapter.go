package evm

import (
	"log/slog"

	"github.com/sigweihq/billpay/pkg/chains"
	"github.com/sigweihq/billpay/pkg/constants"
)

// BaseEVMAdapter binds a Celo network to its RPC client and transfer validator
type BaseEVMAdapter struct {
	network   string
	chainID   int64
	rpc       *RPCClient
	validator *TransactionValidator
}

var (
	_ chains.ChainAdapter    = (*BaseEVMAdapter)(nil)
	_ chains.EndpointUpdater = (*BaseEVMAdapter)(nil)
)

// NewBaseEVMAdapter creates an adapter failing over between endpoints
func NewBaseEVMAdapter(network string, chainID int64, endpoints []string, logger *slog.Logger) *BaseEVMAdapter {
	return &BaseEVMAdapter{
		network:   network,
		chainID:   chainID,
		rpc:       NewRPCClient(network, chainID, endpoints, logger),
		validator: NewTransactionValidator(),
	}
}

// Network implements chains.ChainAdapter
func (a *BaseEVMAdapter) Network() string {
	return a.network
}

// ChainID implements chains.ChainAdapter
func (a *BaseEVMAdapter) ChainID() int64 {
	return a.chainID
}

// RPCClient implements chains.ChainAdapter
func (a *BaseEVMAdapter) RPCClient() chains.RPCClient {
	return a.rpc
}

// TransactionValidator implements chains.ChainAdapter
func (a *BaseEVMAdapter) TransactionValidator() chains.TransactionValidator {
	return a.validator
}

// Endpoints implements chains.EndpointUpdater
func (a *BaseEVMAdapter) Endpoints() []string {
	return a.rpc.Endpoints()
}

// UpdateEndpoints implements chains.EndpointUpdater. Verifiers and wallet
// clients holding this adapter pick the new endpoints up on their next call.
func (a *BaseEVMAdapter) UpdateEndpoints(endpoints []string) {
	a.rpc.SetEndpoints(endpoints)
}

// NewEVMAdapter creates the adapter for a network listed in constants.NetworkToChainID
func NewEVMAdapter(network string, endpoints []string, logger *slog.Logger) (chains.ChainAdapter, error) {
	chainID, ok := constants.NetworkToChainID[network]
	if !ok {
		return nil, &UnsupportedNetworkError{Network: network}
	}
	return NewBaseEVMAdapter(network, chainID, endpoints, logger), nil
}
