package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/billpay/pkg/chains/evm"
	"github.com/sigweihq/billpay/pkg/constants"
	"github.com/sigweihq/billpay/pkg/tokens"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrWalletUnavailable is returned when no wallet provider is connected
	ErrWalletUnavailable = errors.New("wallet provider not available")
	// ErrNoAccount is returned when the wallet exposes no account
	ErrNoAccount = errors.New("no connected account")
	// ErrCallFailed is returned when a read-only contract call fails or decodes badly
	ErrCallFailed = errors.New("contract call failed")
	// ErrSubmissionFailed is returned when the wallet rejects or fails to submit a transfer
	ErrSubmissionFailed = errors.New("submission failed")
)

// ContractCaller performs read-only contract calls
type ContractCaller interface {
	CallContract(ctx context.Context, contract string, data []byte) ([]byte, error)
}

// Client is the only component that signs and submits token transfers.
// Reads go through the chain RPC; writes go through the wallet provider.
type Client struct {
	provider Provider
	reader   ContractCaller
	gasLimit uint64
	logger   *slog.Logger
	parallel int
}

// NewClient creates a chain client. provider may be nil when no wallet is
// attached; reads still work, account discovery and submission fail soft.
func NewClient(provider Provider, reader ContractCaller, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		provider: provider,
		reader:   reader,
		gasLimit: constants.TransferGasLimit,
		logger:   logger,
		parallel: 4,
	}
}

// WithGasLimit overrides the gas budget attached to transfers
func (c *Client) WithGasLimit(limit uint64) *Client {
	if limit > 0 {
		c.gasLimit = limit
	}
	return c
}

// Available reports whether a wallet provider is attached
func (c *Client) Available() bool {
	return c.provider != nil
}

// GetConnectedAccount returns the first account exposed by the wallet
func (c *Client) GetConnectedAccount(ctx context.Context) (common.Address, error) {
	if c.provider == nil {
		return common.Address{}, ErrWalletUnavailable
	}

	accounts, err := c.provider.Accounts(ctx)
	if err != nil {
		c.logger.Warn("wallet account request failed", "error", err)
		return common.Address{}, fmt.Errorf("%w: %v", ErrWalletUnavailable, err)
	}
	if len(accounts) == 0 {
		return common.Address{}, ErrNoAccount
	}
	return accounts[0], nil
}

// GetTokenBalance reads balanceOf(owner) on the token contract
func (c *Client) GetTokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if c.reader == nil {
		return nil, fmt.Errorf("%w: no chain reader configured", ErrCallFailed)
	}

	data, err := evm.PackBalanceOf(owner)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCallFailed, err)
	}

	result, err := c.reader.CallContract(ctx, token.Hex(), data)
	if err != nil {
		c.logger.Warn("balance call failed", "token", token.Hex(), "owner", owner.Hex(), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCallFailed, err)
	}

	balance, err := evm.UnpackBalance(result)
	if err != nil {
		c.logger.Warn("malformed balance result", "token", token.Hex(), "owner", owner.Hex(), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCallFailed, err)
	}
	return balance, nil
}

// TokenBalance pairs a token with an owner's balance of it
type TokenBalance struct {
	Token   tokens.TokenContract `json:"token"`
	Balance *big.Int             `json:"balance"`
}

// GetTokenBalances reads the owner's balance of every token concurrently.
// Tokens whose read fails are left out; order follows the input.
func (c *Client) GetTokenBalances(ctx context.Context, owner common.Address, contracts []tokens.TokenContract) ([]TokenBalance, error) {
	results := make([]*big.Int, len(contracts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallel)
	var mu sync.Mutex
	for i, token := range contracts {
		g.Go(func() error {
			balance, err := c.GetTokenBalance(gctx, token.Address, owner)
			if err != nil {
				return nil
			}
			mu.Lock()
			results[i] = balance
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	balances := make([]TokenBalance, 0, len(contracts))
	for i, token := range contracts {
		if results[i] != nil {
			balances = append(balances, TokenBalance{Token: token, Balance: results[i]})
		}
	}
	return balances, nil
}

// SubmitTransfer sends transfer(recipient, amount) on the token contract from
// the connected account, paying gas in feeCurrency. A returned error does not
// prove the transaction was not broadcast.
func (c *Client) SubmitTransfer(ctx context.Context, token, recipient common.Address, amount *big.Int, feeCurrency common.Address) (common.Hash, error) {
	from, err := c.GetConnectedAccount(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	data, err := evm.PackTransfer(recipient, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	tx := CeloTransaction{
		From: from,
		To:   token,
		Data: data,
		Gas:  c.gasLimit,
	}
	if feeCurrency != (common.Address{}) {
		tx.FeeCurrency = &feeCurrency
	}

	hash, err := c.provider.SendTransaction(ctx, tx)
	if err != nil {
		c.logger.Error("transfer submission failed",
			"token", token.Hex(),
			"recipient", recipient.Hex(),
			"amount", amount.String(),
			"error", err)
		return common.Hash{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	if hash == (common.Hash{}) {
		return common.Hash{}, fmt.Errorf("%w: wallet returned no transaction hash", ErrSubmissionFailed)
	}

	c.logger.Info("transfer submitted",
		"txHash", hash.Hex(),
		"from", from.Hex(),
		"token", token.Hex(),
		"recipient", recipient.Hex(),
		"amount", amount.String())
	return hash, nil
}
