package pricing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/apperr"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
)

// ErrEntryNotFound is returned by a Source that has no row for a key.
var ErrEntryNotFound = errors.New("rate card entry not found")

// Multipliers are the multiplicative adjustments of a rate-card entry.
// A zero factor means "not configured" and is treated as 1.
type Multipliers struct {
	Pitch           map[roof.PitchTier]decimal.Decimal `json:"pitch,omitempty"`
	PerExtraStory   decimal.Decimal                    `json:"perExtraStory"`
	TearOffPerLayer decimal.Decimal                    `json:"tearOffPerLayer"`
	HVHZ            decimal.Decimal                    `json:"hvhz"`
}

// FixedAdder is a named cost added after all multipliers. Exactly one of
// Amount (dollars) or PercentOfJob (percent of the adjusted square price)
// is used; a non-zero PercentOfJob takes precedence.
type FixedAdder struct {
	Name         string          `json:"name"`
	Amount       decimal.Decimal `json:"amount"`
	PercentOfJob decimal.Decimal `json:"percentOfJob"`
}

// Entry is one rate-card row.
type Entry struct {
	Key                 Key          `json:"key"`
	PricePerSquareCents int64        `json:"pricePerSquareCents"`
	Multipliers         Multipliers  `json:"multipliers"`
	FixedAdders         []FixedAdder `json:"fixedAdders"`
}

// PricePerSquare returns the entry's price per square in dollars.
func (e Entry) PricePerSquare() decimal.Decimal {
	return decimal.New(e.PricePerSquareCents, -2)
}

// Validate rejects rows the engine could not price sensibly.
func (e Entry) Validate() error {
	if err := e.Key.Validate(); err != nil {
		return err
	}
	if e.PricePerSquareCents <= 0 {
		return apperr.Validation("rate card %s: price per square must be positive", e.Key)
	}
	m := e.Multipliers
	for tier, f := range m.Pitch {
		if f.IsNegative() {
			return apperr.Validation("rate card %s: negative %s pitch multiplier", e.Key, tier)
		}
	}
	if m.PerExtraStory.IsNegative() || m.TearOffPerLayer.IsNegative() || m.HVHZ.IsNegative() {
		return apperr.Validation("rate card %s: negative multiplier", e.Key)
	}
	for _, a := range e.FixedAdders {
		if a.Name == "" {
			return apperr.Validation("rate card %s: fixed adder without a name", e.Key)
		}
		if a.Amount.IsNegative() || a.PercentOfJob.IsNegative() {
			return apperr.Validation("rate card %s: negative fixed adder %q", e.Key, a.Name)
		}
	}
	return nil
}

// Source looks up rate-card entries by exact key. It returns an error
// wrapping ErrEntryNotFound when no row exists.
type Source interface {
	RateCardEntry(ctx context.Context, key Key) (Entry, error)
}

// rateCache is one generation of cached entries. A fresh value replaces it on
// invalidation, so readers never observe a partially cleared cache.
type rateCache struct {
	entries sync.Map // Key -> Entry
}

// cachedSource resolves keys with DEFAULT-county fallback and caches hits.
type cachedSource struct {
	source Source
	cache  atomic.Pointer[rateCache]
}

func newCachedSource(source Source) *cachedSource {
	c := &cachedSource{source: source}
	c.cache.Store(&rateCache{})
	return c
}

func (c *cachedSource) invalidate() {
	c.cache.Store(&rateCache{})
}

func (c *cachedSource) lookup(ctx context.Context, key Key) (Entry, bool, error) {
	cache := c.cache.Load()
	if v, ok := cache.entries.Load(key); ok {
		return v.(Entry), true, nil
	}

	entry, err := c.source.RateCardEntry(ctx, key)
	if errors.Is(err, ErrEntryNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	// A fetch that straddled an invalidation lands in the retired generation,
	// which no reader consults any more.
	cache.entries.Store(key, entry)
	return entry, true, nil
}

// resolve returns the entry for key, falling back to the DEFAULT county with
// every other field held constant. fallback reports whether DEFAULT was used.
func (c *cachedSource) resolve(ctx context.Context, key Key) (Entry, bool, error) {
	entry, ok, err := c.lookup(ctx, key)
	if err != nil {
		return Entry{}, false, apperr.Configuration(err, "read rate card %s", key)
	}
	if ok {
		return entry, false, nil
	}
	if key.County != DefaultCounty {
		entry, ok, err = c.lookup(ctx, key.WithCounty(DefaultCounty))
		if err != nil {
			return Entry{}, false, apperr.Configuration(err, "read rate card %s", key.WithCounty(DefaultCounty))
		}
		if ok {
			return entry, true, nil
		}
	}
	return Entry{}, false, apperr.NotFound("no rate card entry for %s or its %s county fallback", key, DefaultCounty).
		With("key", key.String())
}
