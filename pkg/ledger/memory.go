package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store and ReplayGuard
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*PaymentRecord
	claims  map[string]string // txReference -> paymentID
	now     func() time.Time
}

var (
	_ Store       = (*MemoryStore)(nil)
	_ ReplayGuard = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory ledger
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*PaymentRecord),
		claims:  make(map[string]string),
		now:     time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, record *PaymentRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: record id is required", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, record.ID)
	}

	stored := *record
	now := m.now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.records[record.ID] = &stored

	record.CreatedAt = stored.CreatedAt
	record.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	copied := *record
	return &copied, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, update PaymentUpdate) (*PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	update.Apply(record)
	record.UpdatedAt = m.now().UTC()

	copied := *record
	return &copied, nil
}

func (m *MemoryStore) List(_ context.Context, params ListParams) ([]*PaymentRecord, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	m.mu.RLock()
	matched := make([]*PaymentRecord, 0, len(m.records))
	for _, r := range m.records {
		if params.PayerAddress != "" && !strings.EqualFold(r.PayerAddress, params.PayerAddress) {
			continue
		}
		copied := *r
		matched = append(matched, &copied)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if params.Offset >= len(matched) {
		return []*PaymentRecord{}, nil
	}
	end := params.Offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[params.Offset:end], nil
}

func (m *MemoryStore) Seen(_ context.Context, txReference string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.claims[normalizeReference(txReference)]
	return ok, nil
}

// Claim inserts the reference unless present; check and insert share one lock
func (m *MemoryStore) Claim(_ context.Context, txReference, paymentID string) error {
	ref := normalizeReference(txReference)
	if ref == "" {
		return fmt.Errorf("%w: transaction reference is required", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if owner, exists := m.claims[ref]; exists {
		return fmt.Errorf("%w: %s (payment %s)", ErrAlreadyClaimed, ref, owner)
	}
	m.claims[ref] = paymentID
	return nil
}

func (m *MemoryStore) Release(_ context.Context, txReference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.claims, normalizeReference(txReference))
	return nil
}

// normalizeReference lowercases hashes so differently-cased copies collide
func normalizeReference(txReference string) string {
	return strings.ToLower(strings.TrimSpace(txReference))
}
