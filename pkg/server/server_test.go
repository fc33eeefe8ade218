package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sigweihq/billpay/pkg/constants"
	"github.com/sigweihq/billpay/pkg/ledger"
	"github.com/sigweihq/billpay/pkg/payment"
	"github.com/sigweihq/billpay/pkg/rates"
	"github.com/sigweihq/billpay/pkg/tokens"
	"github.com/sigweihq/billpay/pkg/types"
	"github.com/sigweihq/billpay/pkg/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPayments struct {
	mock.Mock
}

func (m *mockPayments) Process(ctx context.Context, req types.PaymentRequest) (*types.PaymentResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(*types.PaymentResult), args.Error(1)
}

func (m *mockPayments) Status(ctx context.Context, paymentID string) (*ledger.PaymentRecord, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.PaymentRecord), args.Error(1)
}

func (m *mockPayments) List(ctx context.Context, params ledger.ListParams) ([]*ledger.PaymentRecord, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.PaymentRecord), args.Error(1)
}

func (m *mockPayments) Verify(ctx context.Context, req types.VerifyRequest) (*types.VerifyResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.VerifyResponse), args.Error(1)
}

var _ PaymentService = (*mockPayments)(nil)

type fakeWallet struct {
	available bool
	account   common.Address
	balances  []wallet.TokenBalance
}

func (f *fakeWallet) Available() bool { return f.available }

func (f *fakeWallet) GetConnectedAccount(context.Context) (common.Address, error) {
	if !f.available {
		return common.Address{}, wallet.ErrWalletUnavailable
	}
	return f.account, nil
}

func (f *fakeWallet) GetTokenBalances(_ context.Context, _ common.Address, _ []tokens.TokenContract) ([]wallet.TokenBalance, error) {
	return f.balances, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, payments PaymentService, w WalletService, opts Options) *gin.Engine {
	t.Helper()
	registry, err := tokens.ForNetwork(constants.NetworkCelo)
	require.NoError(t, err)

	router, err := NewRouter(Services{
		Payments: payments,
		Tokens:   registry,
		Wallet:   w,
		Rates:    rates.NewCache(rates.NewPeggedSource(), time.Minute, nil, nil),
		Metrics:  http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		ChainID:  42220,
	}, opts, nil)
	require.NoError(t, err)
	return router
}

func doJSON(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreatePaymentStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		result     *types.PaymentResult
		err        error
		wantStatus int
	}{
		{
			name:       "completed",
			result:     &types.PaymentResult{Success: true, PaymentID: "p1", Status: "completed", FiatAmount: 100, FiatCurrency: "USD"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "validation",
			result:     &types.PaymentResult{ErrorMessage: "token not supported"},
			err:        &payment.Error{Kind: payment.KindValidation, Reason: "token not supported"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "replay",
			result:     &types.PaymentResult{ErrorMessage: "transaction already processed"},
			err:        &payment.Error{Kind: payment.KindReplayConflict, Reason: "transaction already processed"},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "verification",
			result:     &types.PaymentResult{ErrorMessage: "amount mismatch: got 1, expected 2"},
			err:        &payment.Error{Kind: payment.KindVerification, Reason: "amount mismatch: got 1, expected 2"},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "transient",
			result:     &types.PaymentResult{ErrorMessage: "submission failed"},
			err:        &payment.Error{Kind: payment.KindTransient, Reason: "submission failed"},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := &mockPayments{}
			payments.On("Process", mock.Anything, mock.AnythingOfType("types.PaymentRequest")).Return(tt.result, tt.err)
			router := newTestRouter(t, payments, &fakeWallet{}, Options{})

			rec := doJSON(router, http.MethodPost, "/api/payments", map[string]string{"tokenSymbol": "cUSD", "amount": "100"})
			assert.Equal(t, tt.wantStatus, rec.Code)

			var got types.PaymentResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, *tt.result, got)
			assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
		})
	}
}

func TestCreatePaymentMalformedBody(t *testing.T) {
	payments := &mockPayments{}
	router := newTestRouter(t, payments, &fakeWallet{}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/payments", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	payments.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestGetPayment(t *testing.T) {
	created := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	record := &ledger.PaymentRecord{
		ID:          "p1",
		TxReference: "0x4f3c1e2b00000000000000000000000000000000000000000000000000000001",
		TokenSymbol: "cUSD",
		TokenAmount: decimal.NewFromInt(100),
		FiatAmount:  decimal.NewFromInt(100),
		Status:      ledger.StatusFailed,
		Error:       "submission failed",
		CreatedAt:   created,
		UpdatedAt:   created,
	}

	payments := &mockPayments{}
	payments.On("Status", mock.Anything, "p1").Return(record, nil)
	payments.On("Status", mock.Anything, "missing").Return(nil, &payment.Error{Kind: payment.KindNotFound, Reason: "payment not found"})
	router := newTestRouter(t, payments, &fakeWallet{}, Options{})

	for _, path := range []string{"/api/payments/p1", "/api/payments?paymentId=p1"} {
		rec := doJSON(router, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)

		var got types.PaymentStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "failed", got.Status)
		assert.Equal(t, "https://celoscan.io/tx/"+record.TxReference, got.ExplorerURL)
		assert.Equal(t, "100", got.TokenAmount)
		require.NotNil(t, got.Error)
		assert.Equal(t, "submission failed", *got.Error)
	}

	rec := doJSON(router, http.MethodGet, "/api/payments/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "payment not found")
}

func TestListPayments(t *testing.T) {
	payments := &mockPayments{}
	payments.On("List", mock.Anything, ledger.ListParams{PayerAddress: "0xabc", Limit: 10, Offset: 5}).
		Return([]*ledger.PaymentRecord{{ID: "p2"}, {ID: "p1"}}, nil)
	payments.On("List", mock.Anything, ledger.ListParams{Limit: ledger.DefaultListLimit}).
		Return([]*ledger.PaymentRecord{}, nil)
	router := newTestRouter(t, payments, &fakeWallet{}, Options{})

	rec := doJSON(router, http.MethodGet, "/api/payments?payer=0xabc&limit=10&offset=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got types.HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, "p2", got.Payments[0].ID)

	rec = doJSON(router, http.MethodGet, "/api/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodGet, "/api/payments?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyEndpoint(t *testing.T) {
	payments := &mockPayments{}
	payments.On("Verify", mock.Anything, types.VerifyRequest{TxReference: "0xaa"}).
		Return(nil, &payment.Error{Kind: payment.KindValidation, Reason: "invalid transaction reference"})
	router := newTestRouter(t, payments, &fakeWallet{}, Options{})

	rec := doJSON(router, http.MethodPost, "/api/payments/verify", types.VerifyRequest{TxReference: "0xaa"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid transaction reference")

	rec = doJSON(router, http.MethodPost, "/api/payments/verify", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTokenRoutes(t *testing.T) {
	router := newTestRouter(t, &mockPayments{}, &fakeWallet{}, Options{})

	rec := doJSON(router, http.MethodGet, "/api/tokens", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list types.TokensResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, constants.NetworkCelo, list.Network)
	require.Len(t, list.Tokens, 2)
	assert.Equal(t, "cUSD", list.Tokens[0].Symbol)
	assert.Equal(t, "USD", list.Tokens[0].FiatCurrency)

	rec = doJSON(router, http.MethodGet, "/api/tokens?all=true", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Tokens, 14)

	rec = doJSON(router, http.MethodGet, "/api/tokens/USDT", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"decimals":6`)

	rec = doJSON(router, http.MethodGet, "/api/tokens/ZZZ", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWalletRoutes(t *testing.T) {
	account := common.HexToAddress("0x1111111111111111111111111111111111111111")
	w := &fakeWallet{
		available: true,
		account:   account,
		balances: []wallet.TokenBalance{
			{Token: tokens.TokenContract{Symbol: "USDT", Decimals: 6}, Balance: big.NewInt(12_500_000)},
		},
	}
	router := newTestRouter(t, &mockPayments{}, w, Options{})

	rec := doJSON(router, http.MethodGet, "/api/wallet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got types.WalletResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Available)
	assert.Equal(t, account.Hex(), got.Account)
	assert.Equal(t, int64(42220), got.ChainID)

	rec = doJSON(router, http.MethodGet, "/api/wallet/balances/"+account.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balances types.BalancesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balances))
	require.Len(t, balances.Balances, 1)
	assert.Equal(t, "12.5", balances.Balances[0].Formatted)
	assert.Equal(t, "12500000", balances.Balances[0].Units)

	rec = doJSON(router, http.MethodGet, "/api/wallet/balances/nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWalletUnavailable(t *testing.T) {
	router := newTestRouter(t, &mockPayments{}, &fakeWallet{}, Options{})

	rec := doJSON(router, http.MethodGet, "/api/wallet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"available":false,"network":"celo","chainId":42220}`, rec.Body.String())
}

func TestRateRoute(t *testing.T) {
	router := newTestRouter(t, &mockPayments{}, &fakeWallet{}, Options{})

	rec := doJSON(router, http.MethodGet, "/api/rates/cUSD/USD", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got types.RateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "cUSD/USD", got.Pair)
	assert.Equal(t, "1", got.Rate)
	assert.False(t, got.Unmapped)

	rec = doJSON(router, http.MethodGet, "/api/rates/ZZZ/USD", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Unmapped)
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, &mockPayments{}, &fakeWallet{}, Options{})

	rec := doJSON(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = doJSON(router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}

func TestRateLimit(t *testing.T) {
	router := newTestRouter(t, &mockPayments{}, &fakeWallet{}, Options{RateLimit: "2-M"})

	for i := 0; i < 2; i++ {
		rec := doJSON(router, http.MethodGet, "/api/tokens", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := doJSON(router, http.MethodGet, "/api/tokens", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// health is outside the limited group
	rec = doJSON(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInvalidRateLimit(t *testing.T) {
	registry, err := tokens.ForNetwork(constants.NetworkCelo)
	require.NoError(t, err)

	_, err = NewRouter(Services{
		Payments: &mockPayments{},
		Tokens:   registry,
		Wallet:   &fakeWallet{},
		Rates:    rates.NewCache(nil, 0, nil, nil),
	}, Options{RateLimit: "lots"}, nil)
	assert.Error(t, err)

	_, err = NewRouter(Services{}, Options{}, nil)
	assert.Error(t, err)
}

func TestRequestIDPropagation(t *testing.T) {
	router := newTestRouter(t, &mockPayments{}, &fakeWallet{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "5f0c3f52-5b0e-4a54-9b8a-0d7f3d5e2a11")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "5f0c3f52-5b0e-4a54-9b8a-0d7f3d5e2a11", rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get(RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, &mockPayments{}, &fakeWallet{}, Options{CORSOrigins: []string{"https://pay.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/tokens", nil)
	req.Header.Set("Origin", "https://pay.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://pay.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
	assert.Equal(t, "internal server error", reasonOf(errors.New("boom")))
}
