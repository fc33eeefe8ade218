package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// CeloTransaction is a transaction request with Celo fee abstraction
type CeloTransaction struct {
	From        common.Address
	To          common.Address
	Data        []byte
	Gas         uint64
	FeeCurrency *common.Address // token used to pay gas; nil pays in CELO
}

// Provider is the wallet connection that holds the user's keys
type Provider interface {
	Accounts(ctx context.Context) ([]common.Address, error)
	SendTransaction(ctx context.Context, tx CeloTransaction) (common.Hash, error)
}

// sendTxArgs is the eth_sendTransaction parameter object
type sendTxArgs struct {
	From        common.Address  `json:"from"`
	To          common.Address  `json:"to"`
	Data        hexutil.Bytes   `json:"data"`
	Gas         hexutil.Uint64  `json:"gas"`
	Value       *hexutil.Big    `json:"value"`
	FeeCurrency *common.Address `json:"feeCurrency,omitempty"`
}

// RPCProvider talks to a wallet node over JSON-RPC
type RPCProvider struct {
	client *rpc.Client
}

var _ Provider = (*RPCProvider)(nil)

// DialProvider connects to a wallet JSON-RPC endpoint
func DialProvider(ctx context.Context, url string) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet provider: %w", err)
	}
	return &RPCProvider{client: client}, nil
}

// NewRPCProvider wraps an existing RPC client
func NewRPCProvider(client *rpc.Client) *RPCProvider {
	return &RPCProvider{client: client}
}

func (p *RPCProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *RPCProvider) SendTransaction(ctx context.Context, tx CeloTransaction) (common.Hash, error) {
	args := sendTxArgs{
		From:        tx.From,
		To:          tx.To,
		Data:        tx.Data,
		Gas:         hexutil.Uint64(tx.Gas),
		Value:       (*hexutil.Big)(new(big.Int)),
		FeeCurrency: tx.FeeCurrency,
	}

	var hash common.Hash
	if err := p.client.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// Close releases the underlying connection
func (p *RPCProvider) Close() {
	p.client.Close()
}
