package rates

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sigweihq/billpay/pkg/constants"
	"github.com/sigweihq/billpay/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// DefaultRate is returned for pairs that have never been priced successfully
var DefaultRate = decimal.RequireFromString(constants.DefaultRate)

// Entry is one cached conversion rate
type Entry struct {
	Pair       string
	Rate       decimal.Decimal
	CapturedAt time.Time
	TTL        time.Duration
}

// Quote is the answer to a rate lookup
type Quote struct {
	Pair       string          `json:"pair"`
	Rate       decimal.Decimal `json:"rate"`
	CapturedAt time.Time       `json:"capturedAt"`
	Stale      bool            `json:"stale"`    // refresh failed, last known rate returned
	Unmapped   bool            `json:"unmapped"` // no rate known, default returned
}

// Cache serves crypto→fiat rates with a TTL, falling back to the last known
// rate (or DefaultRate) when the source fails. It never returns an error.
type Cache struct {
	source   Source
	ttl      time.Duration
	logger   *slog.Logger
	recorder metrics.Recorder
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]Entry
	group   singleflight.Group
}

// NewCache creates a rate cache. A non-positive ttl uses the default of five minutes.
func NewCache(source Source, ttl time.Duration, logger *slog.Logger, recorder metrics.Recorder) *Cache {
	if ttl <= 0 {
		ttl = constants.DefaultRateTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Cache{
		source:   source,
		ttl:      ttl,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
		entries:  make(map[string]Entry),
	}
}

// PairKey builds the cache key for a crypto/fiat pair
func PairKey(crypto, fiat string) string {
	return crypto + "/" + fiat
}

// GetRate returns the rate for converting crypto into fiat
func (c *Cache) GetRate(ctx context.Context, crypto, fiat string) Quote {
	key := PairKey(crypto, fiat)

	c.mu.RLock()
	entry, cached := c.entries[key]
	c.mu.RUnlock()

	if cached && c.now().Sub(entry.CapturedAt) <= entry.TTL {
		c.recorder.IncCounter("rate_cache", map[string]string{metrics.LabelOutcome: "hit"})
		return Quote{Pair: key, Rate: entry.Rate, CapturedAt: entry.CapturedAt}
	}

	// Concurrent misses for the same pair share one upstream call
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.refresh(ctx, key, crypto, fiat)
	})
	if err == nil {
		fresh := v.(Entry)
		c.recorder.IncCounter("rate_cache", map[string]string{metrics.LabelOutcome: "refresh"})
		return Quote{Pair: key, Rate: fresh.Rate, CapturedAt: fresh.CapturedAt}
	}

	if cached {
		c.recorder.IncCounter("rate_cache", map[string]string{metrics.LabelOutcome: "stale"})
		c.logger.Warn("rate refresh failed, using stale rate",
			"pair", key,
			"rate", entry.Rate.String(),
			"capturedAt", entry.CapturedAt,
			"error", err)
		return Quote{Pair: key, Rate: entry.Rate, CapturedAt: entry.CapturedAt, Stale: true}
	}

	c.recorder.IncCounter("rate_cache", map[string]string{metrics.LabelOutcome: "default"})
	c.logger.Warn("no rate available for pair, using default",
		"pair", key,
		"rate", DefaultRate.String(),
		"error", err)
	return Quote{Pair: key, Rate: DefaultRate, CapturedAt: c.now(), Unmapped: true}
}

func (c *Cache) refresh(ctx context.Context, key, crypto, fiat string) (Entry, error) {
	if c.source == nil {
		return Entry{}, fmt.Errorf("no rate source configured")
	}

	rate, err := c.source.FetchRate(ctx, crypto, fiat)
	if err != nil {
		return Entry{}, err
	}
	if !rate.IsPositive() {
		return Entry{}, fmt.Errorf("source returned non-positive rate %s for %s", rate, key)
	}

	entry := Entry{Pair: key, Rate: rate, CapturedAt: c.now(), TTL: c.ttl}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return entry, nil
}

// Entries returns a snapshot of the cached rates
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}
