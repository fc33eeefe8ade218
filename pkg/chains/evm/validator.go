package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/billpay/pkg/chains"
)

// TransactionValidator implements chains.TransactionValidator for EVM chains
type TransactionValidator struct{}

func NewTransactionValidator() *TransactionValidator {
	return &TransactionValidator{}
}

var _ chains.TransactionValidator = (*TransactionValidator)(nil)

// ValidateTransfer implements chains.TransactionValidator.
// Checks are applied in order token, recipient, amount so the reported
// mismatch names the first field that could not be satisfied.
func (v *TransactionValidator) ValidateTransfer(receipt chains.TransactionReceipt, expected chains.TransferExpectation) error {
	if !receipt.IsSuccessful() {
		return fmt.Errorf("transaction failed on blockchain")
	}
	if expected.IsEmpty() {
		return nil
	}

	events, err := receipt.GetTransferEvents()
	if err != nil {
		return fmt.Errorf("no transfer event found in transaction: %w", err)
	}

	candidates := events
	if expected.Token != "" {
		candidates = filterEvents(events, func(e chains.TransferEvent) bool {
			return v.AddressesEqual(e.Asset, expected.Token)
		})
		if len(candidates) == 0 {
			return &chains.MismatchError{
				Field:    "token",
				Got:      events[0].Asset,
				Expected: common.HexToAddress(expected.Token).Hex(),
			}
		}
	}

	if expected.Recipient != "" {
		matched := filterEvents(candidates, func(e chains.TransferEvent) bool {
			return v.AddressesEqual(e.To, expected.Recipient)
		})
		if len(matched) == 0 {
			return &chains.MismatchError{
				Field:    "recipient",
				Got:      candidates[0].To,
				Expected: common.HexToAddress(expected.Recipient).Hex(),
			}
		}
		candidates = matched
	}

	if expected.Amount != nil {
		for _, e := range candidates {
			if e.Value != nil && e.Value.Cmp(expected.Amount) == 0 {
				return nil
			}
		}
		got := "0"
		if candidates[0].Value != nil {
			got = candidates[0].Value.String()
		}
		return &chains.MismatchError{
			Field:    "amount",
			Got:      got,
			Expected: expected.Amount.String(),
		}
	}

	return nil
}

// NormalizeTransactionHash implements chains.TransactionValidator
func (v *TransactionValidator) NormalizeTransactionHash(txHash string) (string, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return "", fmt.Errorf("transaction hash is empty")
	}

	if !strings.HasPrefix(txHash, "0x") && !strings.HasPrefix(txHash, "0X") {
		txHash = "0x" + txHash
	}

	if len(txHash) != 66 { // 0x + 64 hex chars
		return "", fmt.Errorf("invalid transaction hash format: %s", txHash)
	}
	for _, c := range txHash[2:] {
		if !isHexDigit(c) {
			return "", fmt.Errorf("invalid transaction hash format: %s", txHash)
		}
	}

	return "0x" + strings.ToLower(txHash[2:]), nil
}

// AddressesEqual implements chains.TransactionValidator
// EVM addresses are case-insensitive due to EIP-55 checksumming
func (v *TransactionValidator) AddressesEqual(addr1, addr2 string) bool {
	return strings.EqualFold(addr1, addr2)
}

func filterEvents(events []chains.TransferEvent, keep func(chains.TransferEvent) bool) []chains.TransferEvent {
	var out []chains.TransferEvent
	for _, e := range events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
