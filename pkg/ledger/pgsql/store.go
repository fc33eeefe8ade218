package pgsql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sigweihq/billpay/pkg/ledger"
)

const uniqueViolation = "23505"

const insertColumns = `id, tx_reference, payer_address, token_symbol, token_amount, recipient_address,
	fiat_currency, fiat_amount, bill_reference, service_provider, service_type, status, error,
	created_at, updated_at`

// paymentColumns reads numerics as text so they round-trip through decimal exactly
const paymentColumns = `id, tx_reference, payer_address, token_symbol, token_amount::text, recipient_address,
	fiat_currency, fiat_amount::text, bill_reference, service_provider, service_type, status, error,
	created_at, updated_at`

// Store implements ledger.Store and ledger.ReplayGuard on PostgreSQL
type Store struct {
	db  *pgxpool.Pool
	now func() time.Time
}

var (
	_ ledger.Store       = (*Store)(nil)
	_ ledger.ReplayGuard = (*Store)(nil)
)

// NewStore creates a store over an existing pool
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db, now: time.Now}
}

// NewPool opens and pings a connection pool
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}

func (s *Store) Save(ctx context.Context, record *ledger.PaymentRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: record id is required", ledger.ErrInvalidInput)
	}

	now := s.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	query := `INSERT INTO payments (` + insertColumns + `)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8::numeric, $9, $10, $11, $12, $13, $14, $15)`
	_, err := s.db.Exec(ctx, query,
		record.ID, record.TxReference, record.PayerAddress, record.TokenSymbol, record.TokenAmount.String(),
		record.RecipientAddress, record.FiatCurrency, record.FiatAmount.String(), record.BillReference,
		record.ServiceProvider, record.ServiceType, string(record.Status), record.Error,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ledger.ErrDuplicateKey, record.ID)
		}
		return fmt.Errorf("error inserting payment: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*ledger.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	record, err := scanPayment(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
		}
		return nil, fmt.Errorf("error finding payment: %w", err)
	}
	return record, nil
}

func (s *Store) Update(ctx context.Context, id string, update ledger.PaymentUpdate) (*ledger.PaymentRecord, error) {
	var status *string
	if update.Status != nil {
		v := string(*update.Status)
		status = &v
	}
	var fiatAmount *string
	if update.FiatAmount != nil {
		v := update.FiatAmount.String()
		fiatAmount = &v
	}

	query := `UPDATE payments SET
			status = COALESCE($2, status),
			tx_reference = COALESCE($3, tx_reference),
			payer_address = COALESCE($4, payer_address),
			fiat_currency = COALESCE($5, fiat_currency),
			fiat_amount = COALESCE($6::numeric, fiat_amount),
			error = COALESCE($7, error),
			updated_at = $8
		WHERE id = $1
		RETURNING ` + paymentColumns
	record, err := scanPayment(s.db.QueryRow(ctx, query,
		id, status, update.TxReference, update.PayerAddress, update.FiatCurrency, fiatAmount, update.Error,
		s.now().UTC(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
		}
		return nil, fmt.Errorf("error updating payment: %w", err)
	}
	return record, nil
}

func (s *Store) List(ctx context.Context, params ledger.ListParams) ([]*ledger.PaymentRecord, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = ledger.DefaultListLimit
	}

	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE ($1 = '' OR lower(payer_address) = lower($1))
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	rows, err := s.db.Query(ctx, query, params.PayerAddress, limit, params.Offset)
	if err != nil {
		return nil, fmt.Errorf("error listing payments: %w", err)
	}
	defer rows.Close()

	records := []*ledger.PaymentRecord{}
	for rows.Next() {
		record, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning payment: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return records, nil
}

func (s *Store) Seen(ctx context.Context, txReference string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_transactions WHERE tx_reference = $1)`,
		normalizeReference(txReference),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking transaction reference: %w", err)
	}
	return exists, nil
}

// Claim relies on the primary key so concurrent claims resolve inside the database
func (s *Store) Claim(ctx context.Context, txReference, paymentID string) error {
	ref := normalizeReference(txReference)
	if ref == "" {
		return fmt.Errorf("%w: transaction reference is required", ledger.ErrInvalidInput)
	}

	tag, err := s.db.Exec(ctx,
		`INSERT INTO processed_transactions (tx_reference, payment_id) VALUES ($1, $2)
		ON CONFLICT (tx_reference) DO NOTHING`,
		ref, paymentID,
	)
	if err != nil {
		return fmt.Errorf("error claiming transaction reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyClaimed, ref)
	}
	return nil
}

func (s *Store) Release(ctx context.Context, txReference string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM processed_transactions WHERE tx_reference = $1`, normalizeReference(txReference))
	if err != nil {
		return fmt.Errorf("error releasing transaction reference: %w", err)
	}
	return nil
}

func scanPayment(row pgx.Row) (*ledger.PaymentRecord, error) {
	var (
		record                  ledger.PaymentRecord
		status                  string
		tokenAmount, fiatAmount string
	)
	err := row.Scan(
		&record.ID, &record.TxReference, &record.PayerAddress, &record.TokenSymbol, &tokenAmount,
		&record.RecipientAddress, &record.FiatCurrency, &fiatAmount, &record.BillReference,
		&record.ServiceProvider, &record.ServiceType, &status, &record.Error,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Status = ledger.Status(status)
	if record.TokenAmount, err = decimal.NewFromString(tokenAmount); err != nil {
		return nil, fmt.Errorf("invalid token_amount %q: %w", tokenAmount, err)
	}
	if record.FiatAmount, err = decimal.NewFromString(fiatAmount); err != nil {
		return nil, fmt.Errorf("invalid fiat_amount %q: %w", fiatAmount, err)
	}
	return &record, nil
}

func normalizeReference(txReference string) string {
	return strings.ToLower(strings.TrimSpace(txReference))
}
