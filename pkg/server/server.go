package server

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sigweihq/billpay/pkg/ledger"
	"github.com/sigweihq/billpay/pkg/payment"
	"github.com/sigweihq/billpay/pkg/rates"
	"github.com/sigweihq/billpay/pkg/tokens"
	"github.com/sigweihq/billpay/pkg/types"
	"github.com/sigweihq/billpay/pkg/utils"
	"github.com/sigweihq/billpay/pkg/wallet"
)

// PaymentService is the orchestrator surface exposed over HTTP
type PaymentService interface {
	Process(ctx context.Context, req types.PaymentRequest) (*types.PaymentResult, error)
	Status(ctx context.Context, paymentID string) (*ledger.PaymentRecord, error)
	List(ctx context.Context, params ledger.ListParams) ([]*ledger.PaymentRecord, error)
	Verify(ctx context.Context, req types.VerifyRequest) (*types.VerifyResponse, error)
}

// WalletService exposes wallet detection and balance reads
type WalletService interface {
	Available() bool
	GetConnectedAccount(ctx context.Context) (common.Address, error)
	GetTokenBalances(ctx context.Context, owner common.Address, contracts []tokens.TokenContract) ([]wallet.TokenBalance, error)
}

// RateService answers conversion rate lookups
type RateService interface {
	GetRate(ctx context.Context, crypto, fiat string) rates.Quote
}

// Services are the components the HTTP layer calls into
type Services struct {
	Payments PaymentService
	Tokens   *tokens.Registry
	Wallet   WalletService
	Rates    RateService
	Metrics  http.Handler // optional
	ChainID  int64
}

// Options tune the HTTP surface
type Options struct {
	IsProduction bool
	RateLimit    string // empty disables rate limiting
	CORSOrigins  []string
}

// NewRouter builds the gin engine with middleware and routes
func NewRouter(svc Services, opts Options, logger *slog.Logger) (*gin.Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if svc.Payments == nil || svc.Tokens == nil || svc.Wallet == nil || svc.Rates == nil {
		return nil, fmt.Errorf("payments, tokens, wallet and rates services are required")
	}

	if opts.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(StructuredLogging(logger), gin.Recovery(), CORS(opts.CORSOrigins))

	if err := r.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if svc.Metrics != nil {
		r.GET("/metrics", gin.WrapH(svc.Metrics))
	}

	api := r.Group("/api")
	if opts.RateLimit != "" {
		limiterInstance, err := NewRateLimiter(opts.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("invalid rate limit %q: %w", opts.RateLimit, err)
		}
		api.Use(RateLimit(limiterInstance))
	}

	h := &handler{svc: svc}
	payments := api.Group("/payments")
	{
		payments.POST("", h.createPayment)
		payments.POST("/verify", h.verifyPayment)
		payments.GET("", h.listPayments)
		payments.GET("/:paymentID", h.getPayment)
	}

	tokenRoutes := api.Group("/tokens")
	{
		tokenRoutes.GET("", h.listTokens)
		tokenRoutes.GET("/:symbol", h.getToken)
	}

	walletRoutes := api.Group("/wallet")
	{
		walletRoutes.GET("", h.getWallet)
		walletRoutes.GET("/balances/:owner", h.getBalances)
	}

	api.GET("/rates/:crypto/:fiat", h.getRate)

	return r, nil
}

type handler struct {
	svc Services
}

// createPayment godoc
// @Summary Pay a bill with a stablecoin
// @Accept  json
// @Produce json
// @Param   payment body types.PaymentRequest true "Payment details"
// @Success 200 {object} types.PaymentResult
// @Failure 400 {object} types.PaymentResult "Validation error"
// @Failure 409 {object} types.PaymentResult "Transaction already processed"
// @Failure 422 {object} types.PaymentResult "Verification failed"
// @Failure 503 {object} types.PaymentResult "Transient failure, retry"
// @Router /api/payments [post]
func (h *handler) createPayment(c *gin.Context) {
	logger := LoggerFromContext(c.Request.Context())

	var req types.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("failed to bind payment request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, types.PaymentResult{
			Success:      false,
			ErrorMessage: "invalid request format",
			ErrorKind:    "validation",
		})
		return
	}

	result, err := h.svc.Payments.Process(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// verifyPayment godoc
// @Summary Verify a transaction reference on chain
// @Accept  json
// @Produce json
// @Param   verify body types.VerifyRequest true "Reference and expectations"
// @Success 200 {object} types.VerifyResponse
// @Failure 400 {object} types.ErrorResponse
// @Router /api/payments/verify [post]
func (h *handler) verifyPayment(c *gin.Context) {
	var req types.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid request format", Details: err.Error()})
		return
	}

	resp, err := h.svc.Payments.Verify(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// getPayment godoc
// @Summary Get a payment's status
// @Produce json
// @Param   paymentID path string true "Payment id"
// @Success 200 {object} types.PaymentStatusResponse
// @Failure 404 {object} types.ErrorResponse
// @Router /api/payments/{paymentID} [get]
func (h *handler) getPayment(c *gin.Context) {
	h.writeStatus(c, c.Param("paymentID"))
}

// listPayments serves ?paymentId= status lookups and the payment history
func (h *handler) listPayments(c *gin.Context) {
	if id := c.Query("paymentId"); id != "" {
		h.writeStatus(c, id)
		return
	}

	var params types.HistoryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid query parameters", Details: err.Error()})
		return
	}
	if params.Limit == 0 {
		params.Limit = ledger.DefaultListLimit
	}

	records, err := h.svc.Payments.List(c.Request.Context(), ledger.ListParams{
		PayerAddress: params.PayerAddress,
		Limit:        params.Limit,
		Offset:       params.Offset,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := types.HistoryResponse{
		Payments: make([]*types.PaymentStatusResponse, 0, len(records)),
		Total:    len(records),
		Limit:    params.Limit,
		Offset:   params.Offset,
	}
	for _, record := range records {
		resp.Payments = append(resp.Payments, toStatusResponse(record, h.svc.Tokens.Network()))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) writeStatus(c *gin.Context, paymentID string) {
	record, err := h.svc.Payments.Status(c.Request.Context(), paymentID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStatusResponse(record, h.svc.Tokens.Network()))
}

// listTokens godoc
// @Summary List supported stablecoins
// @Produce json
// @Param   all query bool false "Include inactive tokens"
// @Success 200 {object} types.TokensResponse
// @Router /api/tokens [get]
func (h *handler) listTokens(c *gin.Context) {
	contracts := h.svc.Tokens.ListActive()
	if c.Query("all") == "true" {
		contracts = h.svc.Tokens.ListAll()
	}

	resp := types.TokensResponse{Network: h.svc.Tokens.Network(), Tokens: make([]types.TokenResponse, 0, len(contracts))}
	for _, token := range contracts {
		resp.Tokens = append(resp.Tokens, toTokenResponse(token))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) getToken(c *gin.Context) {
	token, err := h.svc.Tokens.Resolve(c.Param("symbol"))
	if err != nil {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "token not supported"})
		return
	}
	c.JSON(http.StatusOK, toTokenResponse(token))
}

// getWallet godoc
// @Summary Report wallet-provider detection and the connected account
// @Produce json
// @Success 200 {object} types.WalletResponse
// @Router /api/wallet [get]
func (h *handler) getWallet(c *gin.Context) {
	resp := types.WalletResponse{
		Available: h.svc.Wallet.Available(),
		Network:   h.svc.Tokens.Network(),
		ChainID:   h.svc.ChainID,
	}
	if resp.Available {
		if account, err := h.svc.Wallet.GetConnectedAccount(c.Request.Context()); err == nil {
			resp.Account = account.Hex()
		} else {
			LoggerFromContext(c.Request.Context()).Debug("no connected account", slog.String("error", err.Error()))
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) getBalances(c *gin.Context) {
	owner := c.Param("owner")
	if !common.IsHexAddress(owner) {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid address: owner"})
		return
	}

	balances, err := h.svc.Wallet.GetTokenBalances(c.Request.Context(), common.HexToAddress(owner), h.svc.Tokens.ListActive())
	if err != nil {
		LoggerFromContext(c.Request.Context()).Error("failed to read balances", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, types.ErrorResponse{Error: "failed to read balances"})
		return
	}

	resp := types.BalancesResponse{Owner: common.HexToAddress(owner).Hex(), Balances: make([]types.BalanceItem, 0, len(balances))}
	for _, b := range balances {
		resp.Balances = append(resp.Balances, types.BalanceItem{
			Symbol:    b.Token.Symbol,
			Units:     unitsString(b.Balance),
			Formatted: utils.FormatTokenAmount(b.Balance, b.Token.Decimals),
		})
	}
	c.JSON(http.StatusOK, resp)
}

// getRate godoc
// @Summary Current conversion rate for a pair
// @Produce json
// @Param   crypto path string true "Stablecoin symbol"
// @Param   fiat   path string true "Fiat currency code"
// @Success 200 {object} types.RateResponse
// @Router /api/rates/{crypto}/{fiat} [get]
func (h *handler) getRate(c *gin.Context) {
	quote := h.svc.Rates.GetRate(c.Request.Context(), c.Param("crypto"), c.Param("fiat"))
	c.JSON(http.StatusOK, types.RateResponse{
		Pair:       quote.Pair,
		Rate:       quote.Rate.String(),
		CapturedAt: quote.CapturedAt,
		Stale:      quote.Stale,
		Unmapped:   quote.Unmapped,
	})
}

func (h *handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		LoggerFromContext(c.Request.Context()).Error("request failed", slog.String("error", err.Error()))
	}
	c.JSON(status, types.ErrorResponse{Error: reasonOf(err), Kind: string(payment.KindOf(err))})
}

func unitsString(units *big.Int) string {
	if units == nil {
		return "0"
	}
	return units.String()
}
