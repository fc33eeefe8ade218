package evm

import (
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sigweihq/billpay/pkg/chains"
	"github.com/sigweihq/billpay/pkg/constants"
)

// transferEventSignature is keccak256("Transfer(address,address,uint256)")
var transferEventSignature = common.HexToHash(constants.TransferEventSig)

// EVMReceipt implements chains.TransactionReceipt
type EVMReceipt struct {
	receipt *ethtypes.Receipt
}

var _ chains.TransactionReceipt = (*EVMReceipt)(nil)

// NewEVMReceipt creates a new EVM receipt wrapper
func NewEVMReceipt(receipt *ethtypes.Receipt) *EVMReceipt {
	return &EVMReceipt{receipt: receipt}
}

func (r *EVMReceipt) TxHash() string {
	return r.receipt.TxHash.Hex()
}

func (r *EVMReceipt) BlockNumber() uint64 {
	if r.receipt.BlockNumber == nil {
		return 0
	}
	return r.receipt.BlockNumber.Uint64()
}

func (r *EVMReceipt) GasUsed() uint64 {
	return r.receipt.GasUsed
}

func (r *EVMReceipt) IsSuccessful() bool {
	return r.receipt.Status == ethtypes.ReceiptStatusSuccessful
}

// GetUnderlyingReceipt returns the underlying EVM receipt
func (r *EVMReceipt) GetUnderlyingReceipt() *ethtypes.Receipt {
	return r.receipt
}

// GetTransferEvents decodes every ERC-20 Transfer log in the receipt, in log order
func (r *EVMReceipt) GetTransferEvents() ([]chains.TransferEvent, error) {
	var events []chains.TransferEvent
	for _, log := range r.receipt.Logs {
		if log == nil || len(log.Topics) < 3 || log.Topics[0] != transferEventSignature {
			continue
		}
		events = append(events, chains.TransferEvent{
			From:  common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
			To:    common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
			Value: common.BytesToHash(log.Data).Big(),
			Asset: log.Address.Hex(),
		})
	}

	if len(events) == 0 {
		return nil, chains.ErrNoTransferEvent
	}
	return events, nil
}
