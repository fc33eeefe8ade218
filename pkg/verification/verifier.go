package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/sigweihq/billpay/pkg/chains"
	"github.com/sigweihq/billpay/pkg/metrics"
)

// Failure reasons reported by the verifier
const (
	ReasonInvalidReference   = "invalid transaction reference"
	ReasonVerificationFailed = "verification failed"
	ReasonTransactionFailed  = "transaction failed"
	ReasonNoTransferEvent    = "no transfer event found"
	ReasonTimedOut           = "verification timed out"
)

// Request describes a transaction to check. Empty expectations are skipped.
type Request struct {
	TxReference       string
	ExpectedAmount    *big.Int
	ExpectedRecipient string
	TokenAddress      string
}

// ReceiptSnapshot is the part of a receipt kept with a verification result
type ReceiptSnapshot struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
	Successful  bool   `json:"successful"`
}

// Result is the outcome of one verification attempt
type Result struct {
	Verified  bool             `json:"verified"`
	Reason    string           `json:"reason,omitempty"`
	Retryable bool             `json:"retryable"`
	Receipt   *ReceiptSnapshot `json:"receipt,omitempty"`
}

// Verifier confirms that a transaction reference is mined, succeeded and
// carries the expected token transfer
type Verifier struct {
	adapter  chains.ChainAdapter
	logger   *slog.Logger
	recorder metrics.Recorder
}

// NewVerifier creates a verifier for the adapter's network
func NewVerifier(adapter chains.ChainAdapter, logger *slog.Logger, recorder metrics.Recorder) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Verifier{
		adapter:  adapter,
		logger:   logger,
		recorder: recorder,
	}
}

// NewVerifierForNetwork looks the adapter up in a chain registry
func NewVerifierForNetwork(registry *chains.Registry, network string, logger *slog.Logger, recorder metrics.Recorder) (*Verifier, error) {
	if registry == nil {
		return nil, fmt.Errorf("chain registry not initialized")
	}
	adapter, err := registry.Get(network)
	if err != nil {
		return nil, fmt.Errorf("no chain adapter for network %s: %w", network, err)
	}
	return NewVerifier(adapter, logger, recorder), nil
}

// Network returns the network the verifier reads from
func (v *Verifier) Network() string {
	return v.adapter.Network()
}

// NormalizeReference returns the canonical form of a transaction reference
func (v *Verifier) NormalizeReference(txReference string) (string, error) {
	return v.adapter.TransactionValidator().NormalizeTransactionHash(txReference)
}

// Verify performs a single verification attempt
func (v *Verifier) Verify(ctx context.Context, req Request) Result {
	start := time.Now()
	result := v.verify(ctx, req)

	outcome := "verified"
	switch {
	case result.Verified:
	case result.Retryable:
		outcome = "retryable"
	default:
		outcome = "rejected"
	}
	labels := map[string]string{metrics.LabelNetwork: v.adapter.Network(), metrics.LabelOutcome: outcome}
	v.recorder.IncCounter("verification", labels)
	v.recorder.ObserveLatency("verification", time.Since(start), labels)
	return result
}

func (v *Verifier) verify(ctx context.Context, req Request) Result {
	validator := v.adapter.TransactionValidator()

	txHash, err := validator.NormalizeTransactionHash(req.TxReference)
	if err != nil {
		return Result{Reason: fmt.Sprintf("%s: %v", ReasonInvalidReference, err)}
	}

	receipt, err := v.adapter.RPCClient().GetTransactionReceipt(ctx, txHash)
	if err != nil {
		if !errors.Is(err, chains.ErrReceiptNotFound) {
			v.logger.Warn("receipt lookup failed", "txHash", txHash, "network", v.adapter.Network(), "error", err)
		}
		return Result{Reason: ReasonVerificationFailed, Retryable: true}
	}

	snapshot := &ReceiptSnapshot{
		TxHash:      receipt.TxHash(),
		BlockNumber: receipt.BlockNumber(),
		GasUsed:     receipt.GasUsed(),
		Successful:  receipt.IsSuccessful(),
	}

	if !receipt.IsSuccessful() {
		v.logger.Warn("transaction reverted", "txHash", txHash, "block", snapshot.BlockNumber)
		return Result{Reason: ReasonTransactionFailed, Receipt: snapshot}
	}

	expected := chains.TransferExpectation{
		Amount:    req.ExpectedAmount,
		Recipient: req.ExpectedRecipient,
		Token:     req.TokenAddress,
	}
	if err := validator.ValidateTransfer(receipt, expected); err != nil {
		var mismatch *chains.MismatchError
		switch {
		case errors.As(err, &mismatch):
			v.logger.Warn("transfer mismatch",
				"txHash", txHash,
				"field", mismatch.Field,
				"got", mismatch.Got,
				"expected", mismatch.Expected)
			return Result{Reason: mismatch.Error(), Receipt: snapshot}
		case errors.Is(err, chains.ErrNoTransferEvent):
			return Result{Reason: ReasonNoTransferEvent, Receipt: snapshot}
		default:
			return Result{Reason: fmt.Sprintf("%s: %v", ReasonVerificationFailed, err), Receipt: snapshot}
		}
	}

	return Result{Verified: true, Receipt: snapshot}
}

// VerifyWithRetry polls Verify while the result is retryable. It stops when
// the context ends and reports ReasonTimedOut in that case.
func (v *Verifier) VerifyWithRetry(ctx context.Context, req Request, pollInterval time.Duration) Result {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	attempt := 0
	for {
		attempt++
		result := v.Verify(ctx, req)
		if !result.Retryable {
			return result
		}
		if ctx.Err() != nil {
			return Result{Reason: ReasonTimedOut, Retryable: true}
		}

		v.logger.Debug("transaction not yet verifiable, polling",
			"txReference", req.TxReference,
			"attempt", attempt,
			"interval", pollInterval)

		timer := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{Reason: ReasonTimedOut, Retryable: true}
		case <-timer.C:
		}
	}
}
