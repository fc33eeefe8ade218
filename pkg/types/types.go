package types

import "time"

// PaymentRequest is the inbound bill-payment request from the UI layer.
// TxReference is set when the wallet already submitted the transfer.
// The validate tags are enforced by the payment orchestrator.
type PaymentRequest struct {
	TokenSymbol      string `json:"tokenSymbol" validate:"required"`
	Amount           string `json:"amount" validate:"required,token_amount"`
	RecipientAddress string `json:"recipientAddress" validate:"required,eth_addr"`
	BillReference    string `json:"billReference" validate:"required,max=128"`
	ServiceProvider  string `json:"serviceProvider" validate:"required,max=128"`
	ServiceType      string `json:"serviceType" validate:"required,max=64"`
	TxReference      string `json:"txReference,omitempty" validate:"omitempty,tx_reference"`
	PayerAddress     string `json:"payerAddress,omitempty" validate:"omitempty,eth_addr"`
	FiatCurrency     string `json:"fiatCurrency,omitempty" validate:"omitempty,alpha,len=3"`
}

// PaymentResult is the outbound answer to a payment request
type PaymentResult struct {
	Success      bool    `json:"success"`
	PaymentID    string  `json:"paymentId,omitempty"`
	Status       string  `json:"status,omitempty"`
	TxReference  string  `json:"txReference,omitempty"`
	FiatAmount   float64 `json:"fiatAmount,omitempty"`
	FiatCurrency string  `json:"fiatCurrency,omitempty"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
	ErrorKind    string  `json:"errorKind,omitempty"`
}

// PaymentStatusResponse is the status query answer for one payment
type PaymentStatusResponse struct {
	ID               string    `json:"id"`
	TxReference      string    `json:"txReference,omitempty"`
	ExplorerURL      string    `json:"explorerUrl,omitempty"`
	PayerAddress     string    `json:"payerAddress,omitempty"`
	TokenSymbol      string    `json:"tokenSymbol"`
	TokenAmount      string    `json:"tokenAmount"`
	RecipientAddress string    `json:"recipientAddress"`
	FiatCurrency     string    `json:"fiatCurrency,omitempty"`
	FiatAmount       string    `json:"fiatAmount"`
	BillReference    string    `json:"billReference"`
	ServiceProvider  string    `json:"serviceProvider"`
	ServiceType      string    `json:"serviceType"`
	Status           string    `json:"status"`
	Error            *string   `json:"error,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// VerifyRequest asks for an on-chain check of a transaction reference
type VerifyRequest struct {
	TxReference       string `json:"txReference" binding:"required"`
	TokenSymbol       string `json:"tokenSymbol,omitempty"`
	ExpectedAmount    string `json:"expectedAmount,omitempty"`
	ExpectedRecipient string `json:"expectedRecipient,omitempty"`
}

// VerifyResponse reports the outcome of a verification attempt
type VerifyResponse struct {
	Verified    bool   `json:"verified"`
	Reason      string `json:"reason,omitempty"`
	Retryable   bool   `json:"retryable"`
	TxReference string `json:"txReference"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	Network     string `json:"network"`
}

// HistoryParams represents parameters for payment history queries
type HistoryParams struct {
	PayerAddress string `form:"payer" json:"payer,omitempty"`
	Limit        int    `form:"limit" json:"limit"`
	Offset       int    `form:"offset" json:"offset"`
}

// HistoryResponse represents the payment history response
type HistoryResponse struct {
	Payments []*PaymentStatusResponse `json:"payments"`
	Total    int                      `json:"total"`
	Limit    int                      `json:"limit"`
	Offset   int                      `json:"offset"`
}

// TokenResponse describes a supported stablecoin
type TokenResponse struct {
	Symbol          string `json:"symbol"`
	Key             string `json:"key"`
	Name            string `json:"name"`
	ContractAddress string `json:"contractAddress"`
	Decimals        int32  `json:"decimals"`
	IsActive        bool   `json:"isActive"`
	FiatCurrency    string `json:"fiatCurrency"`
}

// TokensResponse lists the supported stablecoins on the configured network
type TokensResponse struct {
	Network string          `json:"network"`
	Tokens  []TokenResponse `json:"tokens"`
}

// WalletResponse reports wallet-provider detection and the connected account
type WalletResponse struct {
	Available bool   `json:"available"`
	Account   string `json:"account,omitempty"`
	Network   string `json:"network"`
	ChainID   int64  `json:"chainId"`
}

// BalanceItem is one token balance of an account
type BalanceItem struct {
	Symbol    string `json:"symbol"`
	Units     string `json:"units"`
	Formatted string `json:"formatted"`
}

// BalancesResponse lists an account's active token balances
type BalancesResponse struct {
	Owner    string        `json:"owner"`
	Balances []BalanceItem `json:"balances"`
}

// RateResponse is a rate cache quote
type RateResponse struct {
	Pair       string    `json:"pair"`
	Rate       string    `json:"rate"`
	CapturedAt time.Time `json:"capturedAt,omitzero"`
	Stale      bool      `json:"stale"`
	Unmapped   bool      `json:"unmapped"`
}

// ErrorResponse is the JSON body of every non-2xx answer
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Kind    string `json:"kind,omitempty"`
}
