package evm

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sigweihq/billpay/pkg/chains"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEVMReceiptTransferEvents(t *testing.T) {
	approvalTopic := common.HexToHash("0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925")
	receipt := makeReceipt(ethtypes.ReceiptStatusSuccessful,
		&ethtypes.Log{Address: testToken, Topics: []common.Hash{approvalTopic}},
		transferLog(testToken, testPayer, testRecipient, big.NewInt(42)),
	)

	r := NewEVMReceipt(receipt)
	assert.True(t, r.IsSuccessful())
	assert.Equal(t, uint64(1234), r.BlockNumber())
	assert.Equal(t, uint64(52000), r.GasUsed())
	assert.Equal(t, testTxHash.Hex(), r.TxHash())
	assert.Same(t, receipt, r.GetUnderlyingReceipt())

	events, err := r.GetTransferEvents()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, testPayer.Hex(), events[0].From)
	assert.Equal(t, testRecipient.Hex(), events[0].To)
	assert.Equal(t, testToken.Hex(), events[0].Asset)
	assert.Equal(t, 0, events[0].Value.Cmp(big.NewInt(42)))
}

func TestEVMReceiptNoTransfer(t *testing.T) {
	r := NewEVMReceipt(makeReceipt(ethtypes.ReceiptStatusFailed))
	assert.False(t, r.IsSuccessful())

	_, err := r.GetTransferEvents()
	assert.True(t, errors.Is(err, chains.ErrNoTransferEvent))
}

func TestEVMReceiptNilBlockNumber(t *testing.T) {
	receipt := makeReceipt(ethtypes.ReceiptStatusSuccessful)
	receipt.BlockNumber = nil
	assert.Equal(t, uint64(0), NewEVMReceipt(receipt).BlockNumber())
}
