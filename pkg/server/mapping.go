package server

import (
	"github.com/sigweihq/billpay/pkg/constants"
	"github.com/sigweihq/billpay/pkg/ledger"
	"github.com/sigweihq/billpay/pkg/rates"
	"github.com/sigweihq/billpay/pkg/tokens"
	"github.com/sigweihq/billpay/pkg/types"
)

func toStatusResponse(record *ledger.PaymentRecord, network string) *types.PaymentStatusResponse {
	resp := &types.PaymentStatusResponse{
		ID:               record.ID,
		TxReference:      record.TxReference,
		PayerAddress:     record.PayerAddress,
		TokenSymbol:      record.TokenSymbol,
		TokenAmount:      record.TokenAmount.String(),
		RecipientAddress: record.RecipientAddress,
		FiatCurrency:     record.FiatCurrency,
		FiatAmount:       record.FiatAmount.String(),
		BillReference:    record.BillReference,
		ServiceProvider:  record.ServiceProvider,
		ServiceType:      record.ServiceType,
		Status:           string(record.Status),
		CreatedAt:        record.CreatedAt,
		UpdatedAt:        record.UpdatedAt,
	}
	if explorer, ok := constants.BlockExplorerURLs[network]; ok && record.TxReference != "" {
		resp.ExplorerURL = explorer + "/tx/" + record.TxReference
	}
	if record.Error != "" {
		reason := record.Error
		resp.Error = &reason
	}
	return resp
}

func toTokenResponse(token tokens.TokenContract) types.TokenResponse {
	return types.TokenResponse{
		Symbol:          token.Symbol,
		Key:             token.Key,
		Name:            token.Name,
		ContractAddress: token.Address.Hex(),
		Decimals:        token.Decimals,
		IsActive:        token.IsActive,
		FiatCurrency:    rates.FiatCurrencyFor(token.Symbol),
	}
}
