package rates

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// countingSource returns a scripted rate or error and counts calls
type countingSource struct {
	mu    sync.Mutex
	calls int32
	rate  decimal.Decimal
	err   error
	delay time.Duration
}

func (s *countingSource) FetchRate(ctx context.Context, crypto, fiat string) (decimal.Decimal, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate, s.err
}

func (s *countingSource) set(rate decimal.Decimal, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate, s.err = rate, err
}

func (s *countingSource) count() int {
	return int(atomic.LoadInt32(&s.calls))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(source Source, logger *slog.Logger) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewCache(source, 5*time.Minute, logger, nil)
	cache.now = clock.Now
	return cache, clock
}

func TestGetRateWithinTTLRefreshesOnce(t *testing.T) {
	source := &countingSource{rate: decimal.RequireFromString("0.92")}
	cache, clock := newTestCache(source, nil)

	first := cache.GetRate(context.Background(), "cUSD", "EUR")
	clock.Advance(4 * time.Minute)
	second := cache.GetRate(context.Background(), "cUSD", "EUR")

	assert.Equal(t, 1, source.count())
	assert.True(t, first.Rate.Equal(decimal.RequireFromString("0.92")))
	assert.True(t, second.Rate.Equal(first.Rate))
	assert.False(t, second.Stale)
	assert.Equal(t, "cUSD/EUR", second.Pair)
}

func TestGetRateRefreshesAfterTTL(t *testing.T) {
	source := &countingSource{rate: decimal.NewFromInt(1)}
	cache, clock := newTestCache(source, nil)

	cache.GetRate(context.Background(), "cUSD", "USD")
	clock.Advance(5*time.Minute + time.Second)
	source.set(decimal.RequireFromString("0.999"), nil)
	quote := cache.GetRate(context.Background(), "cUSD", "USD")

	assert.Equal(t, 2, source.count())
	assert.True(t, quote.Rate.Equal(decimal.RequireFromString("0.999")))
}

func TestGetRateExactlyAtTTLIsFresh(t *testing.T) {
	source := &countingSource{rate: decimal.NewFromInt(1)}
	cache, clock := newTestCache(source, nil)

	cache.GetRate(context.Background(), "cUSD", "USD")
	clock.Advance(5 * time.Minute)
	cache.GetRate(context.Background(), "cUSD", "USD")

	assert.Equal(t, 1, source.count())
}

func TestGetRateStaleFallback(t *testing.T) {
	var logs bytes.Buffer
	source := &countingSource{rate: decimal.RequireFromString("1.01")}
	cache, clock := newTestCache(source, slog.New(slog.NewTextHandler(&logs, nil)))

	initial := cache.GetRate(context.Background(), "cUSD", "USD")
	clock.Advance(10 * time.Minute)
	source.set(decimal.Zero, errors.New("feed unavailable"))

	quote := cache.GetRate(context.Background(), "cUSD", "USD")

	assert.True(t, quote.Stale)
	assert.False(t, quote.Unmapped)
	assert.True(t, quote.Rate.Equal(decimal.RequireFromString("1.01")))
	assert.Equal(t, initial.CapturedAt, quote.CapturedAt)
	assert.Contains(t, logs.String(), "using stale rate")
}

func TestGetRateDefaultWhenNeverPriced(t *testing.T) {
	var logs bytes.Buffer
	source := &countingSource{err: ErrUnmappedPair}
	cache, _ := newTestCache(source, slog.New(slog.NewTextHandler(&logs, nil)))

	quote := cache.GetRate(context.Background(), "cGHS", "GHS")

	assert.True(t, quote.Unmapped)
	assert.True(t, quote.Rate.Equal(decimal.NewFromInt(1)))
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Empty(t, cache.Entries(), "defaults are not cached")
}

func TestGetRateRejectsNonPositive(t *testing.T) {
	source := &countingSource{rate: decimal.Zero}
	cache, _ := newTestCache(source, nil)

	quote := cache.GetRate(context.Background(), "cUSD", "USD")
	assert.True(t, quote.Unmapped)
}

func TestGetRateNilSource(t *testing.T) {
	cache := NewCache(nil, 0, nil, nil)
	quote := cache.GetRate(context.Background(), "cUSD", "USD")
	assert.True(t, quote.Unmapped)
	assert.True(t, quote.Rate.Equal(DefaultRate))
}

func TestGetRateConcurrentMissesShareRefresh(t *testing.T) {
	source := &countingSource{rate: decimal.NewFromInt(1), delay: 50 * time.Millisecond}
	cache, _ := newTestCache(source, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q := cache.GetRate(context.Background(), "cUSD", "USD")
			assert.True(t, q.Rate.Equal(decimal.NewFromInt(1)))
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, source.count(), 2)
	assert.Len(t, cache.Entries(), 1)
}

func TestFiatAmountFromQuote(t *testing.T) {
	cache := NewCache(NewPeggedSource(), 0, nil, nil)

	quote := cache.GetRate(context.Background(), "cUSD", FiatCurrencyFor("cUSD"))
	fiat := decimal.NewFromInt(100).Mul(quote.Rate)

	assert.True(t, fiat.Equal(decimal.NewFromInt(100)))
	assert.False(t, quote.Unmapped)
}
