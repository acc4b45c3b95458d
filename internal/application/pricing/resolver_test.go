package pricing_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kitebatch/internal/application/pricing"
	"github.com/alejandrodnm/kitebatch/internal/domain"
	"github.com/alejandrodnm/kitebatch/internal/metrics"
)

// mockQuotes es un QuoteProvider en memoria que cuenta llamadas.
type mockQuotes struct {
	prices map[string]decimal.Decimal
	errs   map[string]error
	calls  map[string]int
}

func newMockQuotes() *mockQuotes {
	return &mockQuotes{
		prices: map[string]decimal.Decimal{},
		errs:   map[string]error{},
		calls:  map[string]int{},
	}
}

func (m *mockQuotes) GetQuote(_ context.Context, symbol string) (domain.Quote, error) {
	m.calls[symbol]++
	if err, ok := m.errs[symbol]; ok {
		return domain.Quote{}, err
	}
	p, ok := m.prices[symbol]
	if !ok {
		return domain.Quote{}, fmt.Errorf("mock: %w", domain.ErrSymbolNotFound)
	}
	return domain.Quote{Symbol: symbol, LastPrice: p}, nil
}

func nd(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

func TestResolve_ExplicitWins(t *testing.T) {
	q := newMockQuotes()
	q.prices["INFY"] = decimal.NewFromInt(999)
	r := pricing.NewResolver(q, nil, nil)

	item := domain.WatchItem{Symbol: "INFY", Quantity: 1, Price: nd("100"), FetchedPrice: nd("200")}
	res := r.Resolve(context.Background(), &item)

	require.True(t, res.OK())
	assert.Equal(t, domain.SourceExplicit, res.Source)
	assert.True(t, res.Price.Equal(decimal.NewFromInt(100)))
	assert.Zero(t, q.calls["INFY"], "no network when a price is known")
}

func TestResolve_FetchedBeforeQuote(t *testing.T) {
	q := newMockQuotes()
	r := pricing.NewResolver(q, nil, nil)

	item := domain.WatchItem{Symbol: "INFY", Quantity: 1, Price: nd("0"), FetchedPrice: nd("200")}
	res := r.Resolve(context.Background(), &item)

	assert.Equal(t, domain.SourceFetched, res.Source)
	assert.True(t, res.Price.Equal(decimal.NewFromInt(200)))
	assert.Zero(t, q.calls["INFY"])
}

func TestResolve_QuoteCachesFetchedPrice(t *testing.T) {
	q := newMockQuotes()
	q.prices["TCS"] = decimal.RequireFromString("3950.5")
	r := pricing.NewResolver(q, nil, nil)

	item := domain.WatchItem{Symbol: "TCS", Quantity: 1}
	res := r.Resolve(context.Background(), &item)
	require.True(t, res.OK())
	assert.Equal(t, domain.SourceQuote, res.Source)
	require.True(t, item.FetchedPrice.Valid)
	assert.Equal(t, "3950.50", item.FetchedPrice.Decimal.StringFixed(2))

	res = r.Resolve(context.Background(), &item)
	assert.Equal(t, domain.SourceFetched, res.Source)
	assert.Equal(t, 1, q.calls["TCS"], "second resolution is served from the item")
}

func TestResolve_NotFound(t *testing.T) {
	r := pricing.NewResolver(newMockQuotes(), nil, nil)

	item := domain.WatchItem{Symbol: "NOPE", Quantity: 1}
	res := r.Resolve(context.Background(), &item)

	assert.False(t, res.OK())
	assert.Equal(t, domain.SourceUnresolved, res.Source)
	assert.True(t, res.Price.IsZero())
	assert.True(t, errors.Is(res.Err, domain.ErrSymbolNotFound))
	assert.False(t, res.NullPrice().Valid)
	assert.False(t, item.FetchedPrice.Valid)
}

func TestResolve_QuoteUnavailable(t *testing.T) {
	q := newMockQuotes()
	q.errs["INFY"] = fmt.Errorf("kite: %w", domain.ErrPermissionDenied)
	q.errs["TCS"] = errors.New("connection reset")
	r := pricing.NewResolver(q, nil, nil)

	for _, sym := range []string{"INFY", "TCS"} {
		item := domain.WatchItem{Symbol: sym, Quantity: 1}
		res := r.Resolve(context.Background(), &item)
		assert.False(t, res.OK(), sym)
		assert.True(t, errors.Is(res.Err, domain.ErrQuoteUnavailable), sym)
		assert.False(t, errors.Is(res.Err, domain.ErrSymbolNotFound), sym)
	}
}

func TestResolve_ZeroQuoteIsUnavailable(t *testing.T) {
	q := newMockQuotes()
	q.prices["ILLIQ"] = decimal.Zero
	r := pricing.NewResolver(q, nil, nil)

	item := domain.WatchItem{Symbol: "ILLIQ", Quantity: 1}
	res := r.Resolve(context.Background(), &item)

	assert.False(t, res.OK())
	assert.True(t, errors.Is(res.Err, domain.ErrQuoteUnavailable))
	assert.False(t, item.FetchedPrice.Valid, "zero is never substituted")
}

func TestResolve_InstrumentIndexShortCircuits(t *testing.T) {
	q := newMockQuotes()
	q.prices["INFY"] = decimal.NewFromInt(1400)
	idx := domain.NewInstrumentIndex([]domain.Instrument{{Symbol: "INFY"}})
	r := pricing.NewResolver(q, idx, nil)

	unknown := domain.WatchItem{Symbol: "UNKNOWN", Quantity: 1}
	res := r.Resolve(context.Background(), &unknown)
	assert.True(t, errors.Is(res.Err, domain.ErrSymbolNotFound))
	assert.Zero(t, q.calls["UNKNOWN"])

	known := domain.WatchItem{Symbol: "infy", Quantity: 1}
	res = r.Resolve(context.Background(), &known)
	assert.Equal(t, domain.SourceQuote, res.Source)
}

func TestResolve_Offline(t *testing.T) {
	r := pricing.NewResolver(nil, nil, nil)

	item := domain.WatchItem{Symbol: "INFY", Quantity: 1}
	res := r.Resolve(context.Background(), &item)
	assert.True(t, errors.Is(res.Err, domain.ErrQuoteUnavailable))

	item.Price = nd("10")
	assert.True(t, r.Resolve(context.Background(), &item).OK())
}

func TestResolveAll_SelectedOnlyAndMetrics(t *testing.T) {
	q := newMockQuotes()
	q.prices["A"] = decimal.NewFromInt(10)
	rec := metrics.New()
	r := pricing.NewResolver(q, nil, rec)

	items := []domain.WatchItem{
		{Symbol: "A", Quantity: 1, Selected: true},
		{Symbol: "B", Quantity: 1, Selected: true},
		{Symbol: "C", Quantity: 1, Selected: false},
		{Symbol: "D", Quantity: 1, Selected: true, Price: nd("5")},
	}
	resolved, unresolved := r.ResolveAll(context.Background(), items)

	assert.Equal(t, 2, resolved)
	assert.Equal(t, 1, unresolved)
	assert.Zero(t, q.calls["C"], "unselected rows are skipped")
	assert.True(t, items[0].FetchedPrice.Valid)

	expected := `
# HELP kitebatch_price_resolutions_total Price resolutions by source
# TYPE kitebatch_price_resolutions_total counter
kitebatch_price_resolutions_total{source="explicit"} 1
kitebatch_price_resolutions_total{source="quote"} 1
kitebatch_price_resolutions_total{source="unresolved"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(rec.Gatherer(), strings.NewReader(expected), "kitebatch_price_resolutions_total"))
}
