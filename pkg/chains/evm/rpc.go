package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sigweihq/billpay/pkg/chains"
	"github.com/sigweihq/billpay/pkg/constants"
)

// RPCClient implements chains.RPCClient for EVM chains
type RPCClient struct {
	network string
	chainID int64
	logger  *slog.Logger

	mu        sync.RWMutex
	endpoints []string
}

// NewRPCClient creates a new EVM RPC client
func NewRPCClient(network string, chainID int64, endpoints []string, logger *slog.Logger) *RPCClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &RPCClient{
		network:   network,
		chainID:   chainID,
		endpoints: endpoints,
		logger:    logger,
	}
}

var _ chains.RPCClient = (*RPCClient)(nil)

// Endpoints returns the endpoints this client fails over between
func (r *RPCClient) Endpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.endpoints...)
}

// SetEndpoints swaps the failover list. Calls already in flight keep the old list.
func (r *RPCClient) SetEndpoints(endpoints []string) {
	r.mu.Lock()
	r.endpoints = append([]string(nil), endpoints...)
	r.mu.Unlock()
}

// GetTransactionReceipt implements chains.RPCClient
// Uses random start position for load balancing across RPC endpoints
func (r *RPCClient) GetTransactionReceipt(ctx context.Context, txHash string) (chains.TransactionReceipt, error) {
	var receipt *ethtypes.Receipt
	err := r.withFailover(ctx, constants.TransactionReceiptTimeout, func(callCtx context.Context, client *ethclient.Client) error {
		var err error
		receipt, err = patchedTransactionReceipt(callCtx, client, common.HexToHash(txHash))
		return err
	})
	if err != nil {
		return nil, err
	}
	return NewEVMReceipt(receipt), nil
}

// CallContract implements chains.RPCClient
func (r *RPCClient) CallContract(ctx context.Context, contract string, data []byte) ([]byte, error) {
	msg := map[string]interface{}{
		"to":   contract,
		"data": hexutil.Encode(data),
	}

	var result hexutil.Bytes
	err := r.withFailover(ctx, constants.CallContractTimeout, func(callCtx context.Context, client *ethclient.Client) error {
		return client.Client().CallContext(callCtx, &result, "eth_call", msg, "latest")
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// IsHealthy implements chains.RPCClient
func (r *RPCClient) IsHealthy(ctx context.Context, endpoint string) bool {
	return isEndpointHealthy(ctx, endpoint)
}

// withFailover runs call against each endpoint in turn until one succeeds.
// A receipt that no endpoint knows about is reported as chains.ErrReceiptNotFound.
func (r *RPCClient) withFailover(ctx context.Context, timeout time.Duration, call func(context.Context, *ethclient.Client) error) error {
	endpoints := r.Endpoints()
	if len(endpoints) == 0 {
		return fmt.Errorf("%w for network %s", ErrNoEndpoints, r.network)
	}

	// Start at a random position for load balancing
	startIdx := rand.Intn(len(endpoints))
	var lastErr error
	notFound := 0

	for i := 0; i < len(endpoints); i++ {
		if i > 0 {
			delay := time.Duration(i*constants.DelayBetweenRPCCalls) * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		// Wrap around using modulo for round-robin
		endpoint := endpoints[(startIdx+i)%len(endpoints)]

		client, err := ethclient.DialContext(ctx, endpoint)
		if err != nil {
			lastErr = &RPCError{Network: r.network, Endpoint: endpoint, Err: err}
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err = call(callCtx, client)
		cancel()
		client.Close()

		if err == nil {
			return nil
		}
		if errors.Is(err, chains.ErrReceiptNotFound) {
			notFound++
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = &RPCError{Network: r.network, Endpoint: endpoint, Err: err}
		r.logger.Warn("RPC endpoint failed, trying next",
			"network", r.network,
			"endpoint", endpoint,
			"error", err)
	}

	if notFound > 0 {
		return chains.ErrReceiptNotFound
	}
	return fmt.Errorf("all RPC endpoints failed for network %s: %w", r.network, lastErr)
}

// patchedTransactionReceipt gets a transaction receipt tolerating non-standard log fields
func patchedTransactionReceipt(ctx context.Context, client *ethclient.Client, txHash common.Hash) (*ethtypes.Receipt, error) {
	var raw json.RawMessage
	err := client.Client().CallContext(ctx, &raw, "eth_getTransactionReceipt", txHash)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, chains.ErrReceiptNotFound
	}

	cleaned, err := stripBlockTimestampFromLogs(raw)
	if err != nil {
		return nil, err
	}

	var receipt ethtypes.Receipt
	if err := json.Unmarshal(cleaned, &receipt); err != nil {
		return nil, err
	}

	return &receipt, nil
}

// stripBlockTimestampFromLogs removes the blockTimestamp field from transaction logs
func stripBlockTimestampFromLogs(raw json.RawMessage) ([]byte, error) {
	var receiptMap map[string]interface{}
	if err := json.Unmarshal(raw, &receiptMap); err != nil {
		return nil, err
	}

	if logs, ok := receiptMap["logs"].([]interface{}); ok {
		for _, log := range logs {
			if logMap, ok := log.(map[string]interface{}); ok {
				delete(logMap, "blockTimestamp")
			}
		}
	}

	return json.Marshal(receiptMap)
}

// isEndpointHealthy performs a simple health check on an RPC endpoint
func isEndpointHealthy(ctx context.Context, endpoint string) bool {
	ctx, cancel := context.WithTimeout(ctx, constants.HealthCheckTimeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return false
	}
	defer client.Close()

	_, err = client.BlockNumber(ctx)
	return err == nil
}
