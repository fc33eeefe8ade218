package payment

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sigweihq/billpay/pkg/utils"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("token_amount", validateTokenAmount)
	_ = v.RegisterValidation("tx_reference", validateTxReference)
	return v
}

// validateTokenAmount accepts positive decimal strings
func validateTokenAmount(fl validator.FieldLevel) bool {
	amount, err := utils.ParseDecimalAmount(fl.Field().String())
	return err == nil && amount.IsPositive()
}

// validateTxReference accepts 32-byte hex hashes with or without 0x
func validateTxReference(fl validator.FieldLevel) bool {
	ref := strings.TrimSpace(fl.Field().String())
	ref = strings.TrimPrefix(strings.TrimPrefix(ref, "0x"), "0X")
	if len(ref) != 64 {
		return false
	}
	for _, c := range ref {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

// validationReason turns the first validator failure into a user message
func validationReason(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid payment request"
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("missing required field: %s", fe.Field())
	case "eth_addr":
		return fmt.Sprintf("invalid address: %s", fe.Field())
	case "token_amount":
		return ReasonInvalidAmount
	case "tx_reference":
		return ReasonInvalidReference
	default:
		return fmt.Sprintf("invalid field: %s", fe.Field())
	}
}
