package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sigweihq/billpay/pkg/constants"
	"github.com/sigweihq/billpay/pkg/ledger"
	"github.com/sigweihq/billpay/pkg/metrics"
	"github.com/sigweihq/billpay/pkg/rates"
	"github.com/sigweihq/billpay/pkg/tokens"
	"github.com/sigweihq/billpay/pkg/types"
	"github.com/sigweihq/billpay/pkg/utils"
	"github.com/sigweihq/billpay/pkg/verification"
)

// ChainClient submits transfers through the user's wallet
type ChainClient interface {
	GetConnectedAccount(ctx context.Context) (common.Address, error)
	SubmitTransfer(ctx context.Context, token, recipient common.Address, amount *big.Int, feeCurrency common.Address) (common.Hash, error)
}

// TransactionVerifier checks transaction references on chain
type TransactionVerifier interface {
	Network() string
	NormalizeReference(txReference string) (string, error)
	Verify(ctx context.Context, req verification.Request) verification.Result
	VerifyWithRetry(ctx context.Context, req verification.Request, pollInterval time.Duration) verification.Result
}

// RateProvider converts stablecoin amounts into fiat
type RateProvider interface {
	GetRate(ctx context.Context, crypto, fiat string) rates.Quote
}

// TokenResolver looks up token contracts by symbol
type TokenResolver interface {
	Resolve(symbol string) (tokens.TokenContract, error)
}

// Config holds the workflow tunables
type Config struct {
	FeeCurrency          common.Address
	StepTimeout          time.Duration
	VerificationTimeout  time.Duration
	VerificationInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.StepTimeout <= 0 {
		c.StepTimeout = constants.DefaultStepTimeout
	}
	if c.VerificationTimeout <= 0 {
		c.VerificationTimeout = constants.DefaultVerificationTimeout
	}
	if c.VerificationInterval <= 0 {
		c.VerificationInterval = constants.DefaultVerificationPollInterval
	}
	return c
}

// Dependencies are the collaborators an Orchestrator drives
type Dependencies struct {
	Tokens   TokenResolver
	Chain    ChainClient
	Verifier TransactionVerifier
	Rates    RateProvider
	Store    ledger.Store
	Guard    ledger.ReplayGuard
	Logger   *slog.Logger
	Recorder metrics.Recorder
}

// Orchestrator drives a bill payment from request to recorded outcome. It is
// the only component that creates or mutates payment records.
type Orchestrator struct {
	tokens   TokenResolver
	chain    ChainClient
	verifier TransactionVerifier
	rates    RateProvider
	store    ledger.Store
	guard    ledger.ReplayGuard
	cfg      Config
	validate *validator.Validate
	logger   *slog.Logger
	recorder metrics.Recorder
	newID    func() string
	observer func(paymentID string, from, to State)
}

// NewOrchestrator wires an orchestrator. Tokens, Chain, Verifier, Rates, Store
// and Guard are required.
func NewOrchestrator(deps Dependencies, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Tokens == nil:
		return nil, errors.New("token resolver is required")
	case deps.Chain == nil:
		return nil, errors.New("chain client is required")
	case deps.Verifier == nil:
		return nil, errors.New("transaction verifier is required")
	case deps.Rates == nil:
		return nil, errors.New("rate provider is required")
	case deps.Store == nil:
		return nil, errors.New("payment store is required")
	case deps.Guard == nil:
		return nil, errors.New("replay guard is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	return &Orchestrator{
		tokens:   deps.Tokens,
		chain:    deps.Chain,
		verifier: deps.Verifier,
		rates:    deps.Rates,
		store:    deps.Store,
		guard:    deps.Guard,
		cfg:      cfg.withDefaults(),
		validate: newValidator(),
		logger:   logger,
		recorder: recorder,
		newID:    uuid.NewString,
	}, nil
}

// run is the mutable state of one Process call
type run struct {
	req     types.PaymentRequest
	machine *machine
	logger  *slog.Logger

	payer  common.Address
	token  tokens.TokenContract
	units  *big.Int
	txRef  string
	record *ledger.PaymentRecord
}

// Process runs the payment workflow. The result is always non-nil; on failure
// it carries the reason and the returned error is a *Error.
func (o *Orchestrator) Process(ctx context.Context, req types.PaymentRequest) (*types.PaymentResult, error) {
	start := time.Now()

	r := &run{req: req, logger: o.logger}
	r.machine = newMachine(func(from, to State) {
		id := ""
		if r.record != nil {
			id = r.record.ID
		}
		r.logger.Debug("payment state transition", "from", from, "to", to)
		if o.observer != nil {
			o.observer(id, from, to)
		}
	})

	result, err := o.process(ctx, r)

	outcome := "completed"
	if err != nil {
		outcome = string(KindOf(err))
	}
	labels := map[string]string{metrics.LabelNetwork: o.verifier.Network(), metrics.LabelOutcome: outcome}
	o.recorder.IncCounter("payment", labels)
	o.recorder.ObserveLatency("payment", time.Since(start), labels)

	return result, err
}

func (o *Orchestrator) process(ctx context.Context, r *run) (*types.PaymentResult, error) {
	req := r.req

	if err := o.validate.Struct(req); err != nil {
		return o.fail(ctx, r, newError(KindValidation, validationReason(err), nil))
	}

	if req.TxReference != "" {
		ref, err := o.verifier.NormalizeReference(req.TxReference)
		if err != nil {
			return o.fail(ctx, r, newError(KindValidation, ReasonInvalidReference, err))
		}
		r.txRef = ref

		stepCtx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
		seen, err := o.guard.Seen(stepCtx, ref)
		cancel()
		if err != nil {
			return o.fail(ctx, r, newError(KindTransient, ReasonStorageUnavailable, err))
		}
		if seen {
			return o.fail(ctx, r, newError(KindReplayConflict, ReasonAlreadyProcessed, nil))
		}
	}

	if err := o.advance(r, StateInitiating); err != nil {
		return o.fail(ctx, r, err)
	}
	if err := o.resolvePayer(ctx, r); err != nil {
		return o.fail(ctx, r, err)
	}

	if err := o.createRecord(ctx, r); err != nil {
		return o.fail(ctx, r, err)
	}
	if err := o.advance(r, StateSending); err != nil {
		return o.fail(ctx, r, err)
	}

	if err := o.submit(ctx, r); err != nil {
		return o.fail(ctx, r, err)
	}
	if err := o.advance(r, StateVerifying); err != nil {
		return o.fail(ctx, r, err)
	}

	if err := o.verify(ctx, r); err != nil {
		return o.fail(ctx, r, err)
	}
	if err := o.advance(r, StateConverting); err != nil {
		return o.fail(ctx, r, err)
	}

	fiatCurrency, fiatAmount := o.convert(ctx, r)
	if err := o.advance(r, StateRecording); err != nil {
		return o.fail(ctx, r, err)
	}

	if err := o.recordCompletion(ctx, r, fiatCurrency, fiatAmount); err != nil {
		return o.fail(ctx, r, err)
	}
	if err := o.advance(r, StateComplete); err != nil {
		return o.fail(ctx, r, err)
	}

	r.logger.Info("payment completed",
		"fiatAmount", fiatAmount.String(),
		"fiatCurrency", fiatCurrency)

	return &types.PaymentResult{
		Success:      true,
		PaymentID:    r.record.ID,
		Status:       string(ledger.StatusCompleted),
		TxReference:  r.txRef,
		FiatAmount:   fiatAmount.InexactFloat64(),
		FiatCurrency: fiatCurrency,
	}, nil
}

func (o *Orchestrator) advance(r *run, to State) *Error {
	if err := r.machine.transition(to); err != nil {
		return newError(KindTransient, ReasonWorkflowInterrupted, err)
	}
	return nil
}

// resolvePayer trusts the request's payer only for an already submitted
// transaction. Otherwise the transfer is signed by the connected account, so
// that account is the payer and a differing payerAddress is rejected.
func (o *Orchestrator) resolvePayer(ctx context.Context, r *run) *Error {
	if r.txRef != "" && r.req.PayerAddress != "" {
		r.payer = common.HexToAddress(r.req.PayerAddress)
		return nil
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
	defer cancel()

	account, err := o.chain.GetConnectedAccount(stepCtx)
	if err != nil {
		return newError(KindValidation, ReasonWalletNotConnected, err)
	}
	if r.req.PayerAddress != "" && common.HexToAddress(r.req.PayerAddress) != account {
		return newError(KindValidation, ReasonPayerMismatch,
			fmt.Errorf("payer %s, connected account %s", r.req.PayerAddress, account.Hex()))
	}
	r.payer = account
	return nil
}

// createRecord resolves the token, converts the amount and saves a pending record
func (o *Orchestrator) createRecord(ctx context.Context, r *run) *Error {
	token, err := o.tokens.Resolve(r.req.TokenSymbol)
	if err != nil {
		return newError(KindValidation, ReasonTokenNotSupported, err)
	}
	r.token = token

	r.units = utils.ParseTokenAmount(r.logger, r.req.Amount, token.Decimals)
	if r.units.Sign() <= 0 {
		return newError(KindValidation, ReasonInvalidAmount,
			fmt.Errorf("%s is below the precision of %s", r.req.Amount, token.Symbol))
	}

	record := &ledger.PaymentRecord{
		ID:               o.newID(),
		TxReference:      r.txRef,
		PayerAddress:     r.payer.Hex(),
		TokenSymbol:      token.Symbol,
		TokenAmount:      utils.UnitsToDecimal(r.units, token.Decimals),
		RecipientAddress: common.HexToAddress(r.req.RecipientAddress).Hex(),
		BillReference:    r.req.BillReference,
		ServiceProvider:  r.req.ServiceProvider,
		ServiceType:      r.req.ServiceType,
		Status:           ledger.StatusPending,
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
	defer cancel()
	if err := o.store.Save(stepCtx, record); err != nil {
		return newError(KindTransient, ReasonStorageUnavailable, err)
	}

	r.record = record
	r.logger = r.logger.With("paymentId", record.ID)
	r.logger.Info("payment initiated",
		"token", token.Symbol,
		"amount", record.TokenAmount.String(),
		"recipient", record.RecipientAddress,
		"billReference", record.BillReference)
	return nil
}

// submit sends the transfer unless the caller already submitted it
func (o *Orchestrator) submit(ctx context.Context, r *run) *Error {
	if r.txRef == "" {
		stepCtx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
		hash, err := o.chain.SubmitTransfer(stepCtx, r.token.Address,
			common.HexToAddress(r.req.RecipientAddress), r.units, o.cfg.FeeCurrency)
		timedOut := errors.Is(stepCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err != nil {
			if timedOut {
				return newError(KindTransient, ReasonSubmissionTimedOut, err)
			}
			return newError(KindTransient, ReasonSubmissionFailed, err)
		}

		ref, err := o.verifier.NormalizeReference(hash.Hex())
		if err != nil {
			return newError(KindTransient, ReasonSubmissionFailed, err)
		}
		r.txRef = ref
	}

	status := ledger.StatusProcessing
	payer := r.payer.Hex()
	if _, err := o.updateRecord(ctx, r, ledger.PaymentUpdate{
		Status:       &status,
		TxReference:  &r.txRef,
		PayerAddress: &payer,
	}); err != nil {
		return newError(KindTransient, ReasonStorageUnavailable, err)
	}

	r.logger = r.logger.With("txReference", r.txRef)
	r.logger.Info("payment submitted")
	return nil
}

// verify polls the chain until the transfer is confirmed or the budget runs out
func (o *Orchestrator) verify(ctx context.Context, r *run) *Error {
	verifyCtx, cancel := context.WithTimeout(ctx, o.cfg.VerificationTimeout)
	defer cancel()

	result := o.verifier.VerifyWithRetry(verifyCtx, verification.Request{
		TxReference:       r.txRef,
		ExpectedAmount:    r.units,
		ExpectedRecipient: r.req.RecipientAddress,
		TokenAddress:      r.token.Address.Hex(),
	}, o.cfg.VerificationInterval)

	if result.Verified {
		return nil
	}
	if result.Retryable {
		return newError(KindTransient, result.Reason, nil)
	}
	return newError(KindVerification, result.Reason, nil)
}

// convert prices the verified amount in fiat. The rate cache never fails.
func (o *Orchestrator) convert(ctx context.Context, r *run) (string, decimal.Decimal) {
	fiatCurrency := strings.ToUpper(r.req.FiatCurrency)
	if fiatCurrency == "" {
		fiatCurrency = rates.FiatCurrencyFor(r.token.Symbol)
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
	defer cancel()

	quote := o.rates.GetRate(stepCtx, r.token.Symbol, fiatCurrency)
	if quote.Stale || quote.Unmapped {
		r.logger.Warn("converting with degraded rate",
			"pair", quote.Pair,
			"rate", quote.Rate.String(),
			"stale", quote.Stale,
			"unmapped", quote.Unmapped)
	}

	return fiatCurrency, utils.UnitsToDecimal(r.units, r.token.Decimals).Mul(quote.Rate)
}

// recordCompletion claims the reference and marks the record completed
func (o *Orchestrator) recordCompletion(ctx context.Context, r *run, fiatCurrency string, fiatAmount decimal.Decimal) *Error {
	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
	err := o.guard.Claim(stepCtx, r.txRef, r.record.ID)
	cancel()
	if errors.Is(err, ledger.ErrAlreadyClaimed) {
		return newError(KindReplayConflict, ReasonAlreadyProcessed, err)
	}
	if err != nil {
		return newError(KindTransient, ReasonStorageUnavailable, err)
	}

	status := ledger.StatusCompleted
	if _, err := o.updateRecord(ctx, r, ledger.PaymentUpdate{
		Status:       &status,
		FiatCurrency: &fiatCurrency,
		FiatAmount:   &fiatAmount,
	}); err != nil {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.StepTimeout)
		defer cancel()
		if relErr := o.guard.Release(releaseCtx, r.txRef); relErr != nil {
			r.logger.Error("failed to release transaction claim", "error", relErr)
		}
		return newError(KindTransient, ReasonStorageUnavailable, err)
	}
	return nil
}

func (o *Orchestrator) updateRecord(ctx context.Context, r *run, update ledger.PaymentUpdate) (*ledger.PaymentRecord, error) {
	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
	defer cancel()

	updated, err := o.store.Update(stepCtx, r.record.ID, update)
	if err != nil {
		return nil, err
	}
	r.record = updated
	return updated, nil
}

// fail moves the run to failed, persists the reason on the record if one
// exists and builds the failure result
func (o *Orchestrator) fail(ctx context.Context, r *run, perr *Error) (*types.PaymentResult, error) {
	// Requests rejected before the workflow starts stay idle
	from := r.machine.state
	if from != StateIdle && !from.IsTerminal() {
		_ = r.machine.transition(StateFailed)
	}

	attrs := []any{"kind", perr.Kind, "reason", perr.Reason, "state", from}
	if perr.Err != nil {
		attrs = append(attrs, "error", perr.Err)
	}
	if perr.Kind == KindValidation {
		r.logger.Warn("payment rejected", attrs...)
	} else {
		r.logger.Error("payment failed", attrs...)
	}

	result := &types.PaymentResult{
		Success:      false,
		ErrorMessage: perr.Reason,
		ErrorKind:    string(perr.Kind),
		TxReference:  r.txRef,
	}

	if r.record != nil {
		result.PaymentID = r.record.ID
		result.Status = string(ledger.StatusFailed)

		// The caller's context may already be done; the failure must still be stored
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.StepTimeout)
		defer cancel()

		status := ledger.StatusFailed
		reason := perr.Reason
		if _, err := o.store.Update(storeCtx, r.record.ID, ledger.PaymentUpdate{
			Status: &status,
			Error:  &reason,
		}); err != nil {
			r.logger.Error("failed to mark payment failed", "error", err)
		}
	}

	return result, perr
}

// Status returns the stored record of a payment
func (o *Orchestrator) Status(ctx context.Context, paymentID string) (*ledger.PaymentRecord, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, newError(KindValidation, "payment id is required", nil)
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
	defer cancel()

	record, err := o.store.Get(stepCtx, paymentID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, newError(KindNotFound, ReasonPaymentNotFound, err)
	}
	if err != nil {
		return nil, newError(KindTransient, ReasonStorageUnavailable, err)
	}
	return record, nil
}

// List returns recent payment records, newest first
func (o *Orchestrator) List(ctx context.Context, params ledger.ListParams) ([]*ledger.PaymentRecord, error) {
	if params.Limit < 0 || params.Offset < 0 {
		return nil, newError(KindValidation, "limit and offset must not be negative", nil)
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
	defer cancel()

	records, err := o.store.List(stepCtx, params)
	if err != nil {
		return nil, newError(KindTransient, ReasonStorageUnavailable, err)
	}
	return records, nil
}

// Verify performs one on-chain check of a reference without touching records
func (o *Orchestrator) Verify(ctx context.Context, req types.VerifyRequest) (*types.VerifyResponse, error) {
	ref, err := o.verifier.NormalizeReference(req.TxReference)
	if err != nil {
		return nil, newError(KindValidation, ReasonInvalidReference, err)
	}

	vreq := verification.Request{TxReference: ref}
	if req.ExpectedRecipient != "" {
		if !common.IsHexAddress(req.ExpectedRecipient) {
			return nil, newError(KindValidation, "invalid address: expectedRecipient", nil)
		}
		vreq.ExpectedRecipient = req.ExpectedRecipient
	}

	if req.TokenSymbol != "" {
		token, err := o.tokens.Resolve(req.TokenSymbol)
		if err != nil {
			return nil, newError(KindValidation, ReasonTokenNotSupported, err)
		}
		vreq.TokenAddress = token.Address.Hex()

		if req.ExpectedAmount != "" {
			amount, err := utils.ParseDecimalAmount(req.ExpectedAmount)
			if err != nil || !amount.IsPositive() {
				return nil, newError(KindValidation, ReasonInvalidAmount, err)
			}
			units := utils.ParseTokenAmount(o.logger, req.ExpectedAmount, token.Decimals)
			if units.Sign() <= 0 {
				return nil, newError(KindValidation, ReasonInvalidAmount,
					fmt.Errorf("%s is below the precision of %s", req.ExpectedAmount, token.Symbol))
			}
			vreq.ExpectedAmount = units
		}
	} else if req.ExpectedAmount != "" {
		return nil, newError(KindValidation, "tokenSymbol is required with expectedAmount", nil)
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
	defer cancel()

	result := o.verifier.Verify(stepCtx, vreq)
	resp := &types.VerifyResponse{
		Verified:    result.Verified,
		Reason:      result.Reason,
		Retryable:   result.Retryable,
		TxReference: ref,
		Network:     o.verifier.Network(),
	}
	if result.Receipt != nil {
		resp.BlockNumber = result.Receipt.BlockNumber
	}
	return resp, nil
}
