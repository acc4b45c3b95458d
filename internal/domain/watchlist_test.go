package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func nd(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

func TestNewWatchItem_Normalizes(t *testing.T) {
	it := NewWatchItem("  infy ", -3)
	assert.Equal(t, "INFY", it.Symbol)
	assert.Equal(t, 1, it.Quantity)
	assert.True(t, it.Selected)
}

func TestNormalize_DropsNonPositivePrices(t *testing.T) {
	it := WatchItem{Symbol: "tcs", Quantity: 0, Price: nd("0"), FetchedPrice: nd("-1")}
	it.Normalize()

	assert.Equal(t, "TCS", it.Symbol)
	assert.Equal(t, 1, it.Quantity)
	assert.False(t, it.Price.Valid)
	assert.False(t, it.FetchedPrice.Valid)
}

func TestResolvedPrice_Precedence(t *testing.T) {
	it := WatchItem{Price: nd("10"), FetchedPrice: nd("20")}
	p, src, ok := it.ResolvedPrice()
	assert.True(t, ok)
	assert.Equal(t, SourceExplicit, src)
	assert.True(t, p.Equal(decimal.NewFromInt(10)))

	it.Price = decimal.NullDecimal{}
	_, src, _ = it.ResolvedPrice()
	assert.Equal(t, SourceFetched, src)

	it.FetchedPrice = decimal.NullDecimal{}
	p, src, ok = it.ResolvedPrice()
	assert.False(t, ok)
	assert.Equal(t, SourceUnresolved, src)
	assert.True(t, p.IsZero())
}

func TestSetFetchedPrice_IgnoresZero(t *testing.T) {
	var it WatchItem
	it.SetFetchedPrice(decimal.Zero)
	assert.False(t, it.FetchedPrice.Valid)

	it.SetFetchedPrice(decimal.NewFromFloat(12.5))
	assert.True(t, it.FetchedPrice.Valid)
	assert.False(t, it.Price.Valid, "explicit price untouched")
}

func TestEstimatedTotal(t *testing.T) {
	items := []WatchItem{
		{Symbol: "A", Quantity: 2, Price: nd("100"), Selected: true},
		{Symbol: "B", Quantity: 3, FetchedPrice: nd("10.5"), Selected: true},
		{Symbol: "C", Quantity: 1, Selected: true},
		{Symbol: "D", Quantity: 9, Price: nd("1000"), Selected: false},
	}
	total, unpriced := EstimatedTotal(items)
	assert.Equal(t, "231.50", total.StringFixed(2))
	assert.Equal(t, 1, unpriced)
}

func TestPriceSource_RoundTrip(t *testing.T) {
	for _, s := range []PriceSource{SourceUnresolved, SourceExplicit, SourceFetched, SourceQuote} {
		assert.Equal(t, s, ParsePriceSource(s.String()))
	}
	assert.Equal(t, SourceUnresolved, ParsePriceSource("bogus"))
}

func TestOrderOutcome_Labels(t *testing.T) {
	failed := OrderOutcome{Status: StatusFailed, Reason: "insufficient funds", Kind: KindImmediate}
	assert.Equal(t, "Failed(insufficient funds)", failed.StatusLabel())
	assert.Equal(t, "Immediate", failed.KindLabel())
	assert.False(t, failed.Succeeded())

	gtt := OrderOutcome{
		Status: StatusSubmitted,
		Kind:   KindConditional,
		Trigger: &TriggerParams{
			TriggerPrice: decimal.NewFromInt(1400),
			LimitPrice:   decimal.RequireFromString("1401.5"),
		},
	}
	assert.Equal(t, "Submitted", gtt.StatusLabel())
	assert.Equal(t, "Conditional{trigger=1400.00, limit=1401.50}", gtt.KindLabel())
	assert.True(t, gtt.Succeeded())
}

func TestParseOrderKind(t *testing.T) {
	cases := map[string]OrderKind{
		"":             KindImmediate,
		"market":       KindImmediate,
		"Immediate":    KindImmediate,
		"gtt":          KindConditional,
		" conditional": KindConditional,
	}
	for in, want := range cases {
		got, ok := ParseOrderKind(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseOrderKind("limit")
	assert.False(t, ok)
}

func TestBatch_TotalEstimatedCost(t *testing.T) {
	b := Batch{Outcomes: []OrderOutcome{
		{Status: StatusSubmitted, EstimatedCost: nd("100")},
		{Status: StatusFailed, EstimatedCost: nd("999")},
		{Status: StatusSimulated},
		{Status: StatusSimulated, EstimatedCost: nd("0.5")},
	}}
	assert.Equal(t, "100.50", b.TotalEstimatedCost().StringFixed(2))
}

func TestBalance_Budget(t *testing.T) {
	assert.True(t, Balance{}.Budget().IsZero())
	assert.True(t, Balance{AvailableCash: nd("-50")}.Budget().IsZero())
	assert.Equal(t, "245431.60", Balance{AvailableCash: nd("245431.6")}.Budget().StringFixed(2))
}
