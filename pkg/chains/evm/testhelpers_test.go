package evm

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

var (
	testToken     = common.HexToAddress("0x765DE816845861e75A25fCA122bb6898B8B1282a")
	testOtherCoin = common.HexToAddress("0x617f3112bf5397D0467D315cC709EF968D9ba546")
	testPayer     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testRecipient = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testTxHash    = common.HexToHash("0xabc0000000000000000000000000000000000000000000000000000000000001")
)

func transferLog(token, from, to common.Address, value *big.Int) *ethtypes.Log {
	return &ethtypes.Log{
		Address: token,
		Topics: []common.Hash{
			transferEventSignature,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:   common.LeftPadBytes(value.Bytes(), 32),
		TxHash: testTxHash,
	}
}

func makeReceipt(status uint64, logs ...*ethtypes.Log) *ethtypes.Receipt {
	if logs == nil {
		logs = []*ethtypes.Log{}
	}
	return &ethtypes.Receipt{
		Status:            status,
		CumulativeGasUsed: 52000,
		GasUsed:           52000,
		Logs:              logs,
		TxHash:            testTxHash,
		BlockNumber:       big.NewInt(1234),
	}
}

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// fakeRPC is a minimal JSON-RPC endpoint backed by a handler per method
type fakeRPC struct {
	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]func(params []json.RawMessage) (interface{}, *rpcErrorBody)
}

func newFakeRPC(t *testing.T) (*fakeRPC, *httptest.Server) {
	t.Helper()
	f := &fakeRPC{
		calls:    make(map[string]int),
		handlers: make(map[string]func([]json.RawMessage) (interface{}, *rpcErrorBody)),
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeRPC) handle(method string, h func(params []json.RawMessage) (interface{}, *rpcErrorBody)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

func (f *fakeRPC) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeRPC) serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.calls[req.Method]++
	h := f.handlers[req.Method]
	f.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if h == nil {
		resp["error"] = rpcErrorBody{Code: -32601, Message: "method not found"}
	} else if result, rpcErr := h(req.Params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
