package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no record exists for an id
	ErrNotFound = errors.New("payment record not found")
	// ErrDuplicateKey is returned when saving a record whose id already exists
	ErrDuplicateKey = errors.New("payment record already exists")
	// ErrAlreadyClaimed is returned when a transaction reference was already accepted
	ErrAlreadyClaimed = errors.New("transaction reference already claimed")
	// ErrInvalidInput is returned for records or references that cannot be stored
	ErrInvalidInput = errors.New("invalid ledger input")
)

// Status is the lifecycle state of a payment record
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transitions are expected
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// PaymentRecord is one bill-payment attempt
type PaymentRecord struct {
	ID               string          `json:"id"`
	TxReference      string          `json:"txReference,omitempty"`
	PayerAddress     string          `json:"payerAddress,omitempty"`
	TokenSymbol      string          `json:"tokenSymbol"`
	TokenAmount      decimal.Decimal `json:"tokenAmount"`
	RecipientAddress string          `json:"recipientAddress"`
	FiatCurrency     string          `json:"fiatCurrency,omitempty"`
	FiatAmount       decimal.Decimal `json:"fiatAmount"`
	BillReference    string          `json:"billReference"`
	ServiceProvider  string          `json:"serviceProvider"`
	ServiceType      string          `json:"serviceType"`
	Status           Status          `json:"status"`
	Error            string          `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// PaymentUpdate holds the fields to change; nil fields are left untouched
type PaymentUpdate struct {
	Status       *Status
	TxReference  *string
	PayerAddress *string
	FiatCurrency *string
	FiatAmount   *decimal.Decimal
	Error        *string
}

// Apply copies the set fields onto r
func (u PaymentUpdate) Apply(r *PaymentRecord) {
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.TxReference != nil {
		r.TxReference = *u.TxReference
	}
	if u.PayerAddress != nil {
		r.PayerAddress = *u.PayerAddress
	}
	if u.FiatCurrency != nil {
		r.FiatCurrency = *u.FiatCurrency
	}
	if u.FiatAmount != nil {
		r.FiatAmount = *u.FiatAmount
	}
	if u.Error != nil {
		r.Error = *u.Error
	}
}

// ListParams pages through records, newest first
type ListParams struct {
	PayerAddress string
	Limit        int
	Offset       int
}

// DefaultListLimit applies when ListParams.Limit is not positive
const DefaultListLimit = 50

// Store is keyed storage for payment records
type Store interface {
	Save(ctx context.Context, record *PaymentRecord) error
	Get(ctx context.Context, id string) (*PaymentRecord, error)
	Update(ctx context.Context, id string, update PaymentUpdate) (*PaymentRecord, error)
	List(ctx context.Context, params ListParams) ([]*PaymentRecord, error)
}

// ReplayGuard is the set of transaction references already accepted.
// Claim must check and insert atomically.
type ReplayGuard interface {
	Seen(ctx context.Context, txReference string) (bool, error)
	Claim(ctx context.Context, txReference, paymentID string) error
	Release(ctx context.Context, txReference string) error
}
