package payment

import "errors"

// Kind classifies a payment failure for callers
type Kind string

const (
	KindValidation     Kind = "validation"
	KindTransient      Kind = "transient"
	KindVerification   Kind = "verification"
	KindReplayConflict Kind = "replay_conflict"
	KindNotFound       Kind = "not_found"
)

// Failure reasons surfaced to the user and stored on failed records
const (
	ReasonWalletNotConnected  = "wallet not connected"
	ReasonPayerMismatch       = "payer does not match connected wallet"
	ReasonTokenNotSupported   = "token not supported"
	ReasonInvalidAmount       = "invalid amount"
	ReasonInvalidReference    = "invalid transaction reference"
	ReasonSubmissionFailed    = "submission failed"
	ReasonSubmissionTimedOut  = "submission timed out"
	ReasonAlreadyProcessed    = "transaction already processed"
	ReasonPaymentNotFound     = "payment not found"
	ReasonStorageUnavailable  = "payment storage unavailable"
	ReasonWorkflowInterrupted = "payment workflow interrupted"
)

// Error is a classified payment failure. Reason is the user-facing message.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or "" when err is not a payment error
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

func newError(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}
