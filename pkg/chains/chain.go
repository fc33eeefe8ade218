package chains

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// ErrReceiptNotFound is returned when the chain has no receipt for a hash yet
var ErrReceiptNotFound = errors.New("transaction receipt not found")

// ErrNoTransferEvent is returned when a receipt carries no token transfer log
var ErrNoTransferEvent = errors.New("no transfer event found")

// ChainAdapter provides blockchain-specific operations for payment verification
type ChainAdapter interface {
	// Network returns the network name (e.g., "celo", "celo-alfajores")
	Network() string

	// ChainID returns the numeric chain ID
	ChainID() int64

	// RPCClient returns the RPC client manager for this chain
	RPCClient() RPCClient

	// TransactionValidator returns the transaction validator for this chain
	TransactionValidator() TransactionValidator
}

// RPCClient handles blockchain RPC operations
type RPCClient interface {
	// GetTransactionReceipt retrieves a transaction receipt with failover.
	// Returns ErrReceiptNotFound when no endpoint knows the transaction.
	GetTransactionReceipt(ctx context.Context, txHash string) (TransactionReceipt, error)

	// CallContract performs a read-only contract call against the latest block
	CallContract(ctx context.Context, contract string, data []byte) ([]byte, error)

	// IsHealthy performs a health check on the RPC endpoint
	IsHealthy(ctx context.Context, endpoint string) bool
}

// TransactionReceipt is a chain-agnostic transaction receipt
type TransactionReceipt interface {
	// TxHash returns the transaction hash the receipt belongs to
	TxHash() string

	// BlockNumber returns the block the transaction was included in
	BlockNumber() uint64

	// GasUsed returns the gas consumed by the transaction
	GasUsed() uint64

	// IsSuccessful returns whether the transaction succeeded
	IsSuccessful() bool

	// GetTransferEvents returns every token transfer event in the receipt
	GetTransferEvents() ([]TransferEvent, error)
}

// TransferEvent represents a token transfer event
type TransferEvent struct {
	From  string   // Sender wallet address
	To    string   // Recipient wallet address
	Value *big.Int // Amount in token base units
	Asset string   // Token contract address
}

// TransferExpectation holds what a receipt is expected to contain.
// Empty fields are not checked.
type TransferExpectation struct {
	Amount    *big.Int
	Recipient string
	Token     string
}

// IsEmpty reports whether no expectation was supplied
func (e TransferExpectation) IsEmpty() bool {
	return e.Amount == nil && e.Recipient == "" && e.Token == ""
}

// MismatchError reports which transfer field did not match the expectation
type MismatchError struct {
	Field    string // "amount", "recipient" or "token"
	Got      string
	Expected string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s mismatch: got %s, expected %s", e.Field, e.Got, e.Expected)
}

// TransactionValidator validates transaction parameters
type TransactionValidator interface {
	// ValidateTransfer checks that a successful receipt contains a transfer
	// matching the expectation. Mismatches are returned as *MismatchError.
	ValidateTransfer(receipt TransactionReceipt, expected TransferExpectation) error

	// NormalizeTransactionHash adds the 0x prefix and checks the hash format
	NormalizeTransactionHash(txHash string) (string, error)

	// AddressesEqual compares two addresses using chain-specific rules
	// For EVM: case-insensitive (due to EIP-55 checksumming)
	AddressesEqual(addr1, addr2 string) bool
}
