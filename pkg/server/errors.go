package server

import (
	"errors"
	"net/http"

	"github.com/sigweihq/billpay/pkg/payment"
)

// statusFor maps a payment failure to an HTTP status
func statusFor(err error) int {
	switch payment.KindOf(err) {
	case payment.KindValidation:
		return http.StatusBadRequest
	case payment.KindNotFound:
		return http.StatusNotFound
	case payment.KindReplayConflict:
		return http.StatusConflict
	case payment.KindVerification:
		return http.StatusUnprocessableEntity
	case payment.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// reasonOf returns the user-facing message of a payment failure
func reasonOf(err error) string {
	var perr *payment.Error
	if errors.As(err, &perr) {
		return perr.Reason
	}
	return "internal server error"
}
