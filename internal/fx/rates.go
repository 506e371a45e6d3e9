package fx

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxwallet/internal/ledger"
	"github.com/congo-pay/fxwallet/internal/money"
)

// DefaultRate is a seed row written by InitializeDefaults.
type DefaultRate struct {
	From string
	To   string
	Rate decimal.Decimal
}

// DefaultRates are deliberately not inverses of each other.
var DefaultRates = []DefaultRate{
	{From: "USD", To: "MXN", Rate: decimal.RequireFromString("18.70")},
	{From: "MXN", To: "USD", Rate: decimal.RequireFromString("0.053")},
}

// RateTable answers directional rate lookups. Only the exact ordered pair is
// ever consulted; the reverse pair is never inverted.
type RateTable struct {
	store  ledger.RateStore
	cache  Cache
	logger *slog.Logger
}

// NewRateTable builds a RateTable. cache may be nil.
func NewRateTable(store ledger.RateStore, cache Cache, logger *slog.Logger) *RateTable {
	return &RateTable{store: store, cache: cache, logger: logger}
}

// Lookup returns the multiplier for converting from into to, served from
// the cache when it holds the pair.
func (t *RateTable) Lookup(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return money.One, nil
	}

	if t.cache != nil {
		r, ok, err := t.cache.Get(ctx, from, to)
		switch {
		case err != nil:
			t.logger.Warn("fx cache read failed", slog.String("pair", from+"/"+to), slog.Any("error", err))
		case ok:
			return r.Rate, nil
		}
	}

	r, err := t.store.Rate(ctx, from, to)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if t.cache != nil {
		if err := t.cache.Set(ctx, r); err != nil {
			t.logger.Warn("fx cache write failed", slog.String("pair", r.Pair()), slog.Any("error", err))
		}
	}
	return r.Rate, nil
}

// LookupIn returns the multiplier read through rr without consulting the
// cache. Conversions pass their open unit so the rate comes from the same
// transaction that moves the balances.
func (t *RateTable) LookupIn(ctx context.Context, rr ledger.RateReader, from, to string) (decimal.Decimal, error) {
	if from == to {
		return money.One, nil
	}
	r, err := rr.Rate(ctx, from, to)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return r.Rate, nil
}

// Upsert sets the rate for the ordered pair, leaving the reverse pair alone.
// The new row is written through to the cache; when that fails the cached
// entry is dropped instead.
func (t *RateTable) Upsert(ctx context.Context, from, to string, rate decimal.Decimal) (ledger.FxRate, error) {
	if !money.Positive(rate) {
		return ledger.FxRate{}, fmt.Errorf("%w: got %s", ledger.ErrInvalidRate, rate)
	}
	if !money.FitsScale(rate) {
		return ledger.FxRate{}, fmt.Errorf("%w: at most %d decimal places", ledger.ErrInvalidRate, money.Scale)
	}
	if from == to {
		return ledger.FxRate{}, fmt.Errorf("%w: %s", ledger.ErrSameCurrency, from)
	}

	r, err := t.store.UpsertRate(ctx, from, to, rate)
	if err != nil {
		return ledger.FxRate{}, fmt.Errorf("upsert rate %s/%s: %w", from, to, err)
	}

	if t.cache != nil {
		if err := t.cache.Set(ctx, r); err != nil {
			t.logger.Warn("fx cache write failed", slog.String("pair", r.Pair()), slog.Any("error", err))
			if err := t.cache.Delete(ctx, from, to); err != nil {
				t.logger.Warn("fx cache invalidation failed", slog.String("pair", r.Pair()), slog.Any("error", err))
			}
		}
	}
	t.logger.Info("fx rate updated", slog.String("pair", r.Pair()), slog.String("rate", money.Format(r.Rate)))
	return r, nil
}

// InitializeDefaults inserts DefaultRates for pairs that have no row yet.
// Existing rows are never overwritten, so calling it again is harmless.
func (t *RateTable) InitializeDefaults(ctx context.Context) (int, error) {
	inserted := 0
	for _, d := range DefaultRates {
		ok, err := t.store.InsertRateIfAbsent(ctx, d.From, d.To, d.Rate)
		if err != nil {
			return inserted, fmt.Errorf("seed rate %s/%s: %w", d.From, d.To, err)
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// List returns every stored rate ordered by pair.
func (t *RateTable) List(ctx context.Context) ([]ledger.FxRate, error) {
	return t.store.Rates(ctx)
}
