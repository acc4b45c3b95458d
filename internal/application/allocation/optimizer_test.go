package allocation_test

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kitebatch/internal/application/allocation"
	"github.com/alejandrodnm/kitebatch/internal/domain"
)

func priced(symbol string, price int64) domain.WatchItem {
	return domain.WatchItem{
		Symbol:   symbol,
		Quantity: 1,
		Price:    decimal.NewNullDecimal(decimal.NewFromInt(price)),
		Selected: true,
	}
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestOptimize_ExactFit(t *testing.T) {
	items := []domain.WatchItem{priced("A", 100), priced("B", 50)}

	a := allocation.Optimize(items, d(300))

	require.True(t, a.Applied)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, 2, items[1].Quantity)
	assert.True(t, a.TotalCost.Equal(d(300)))
	assert.True(t, a.BaseCost.Equal(d(150)))
	assert.Equal(t, "₹300.00 of ₹300.00 used across 2 symbols", a.Message)
	assert.True(t, a.Overshoot().IsZero())
}

func TestOptimize_BudgetBelowBaselineOvershoots(t *testing.T) {
	items := []domain.WatchItem{priced("A", 100), priced("B", 50)}

	a := allocation.Optimize(items, d(100))

	// Cada símbolo conserva al menos una acción: el total queda por encima.
	require.True(t, a.Applied)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, 1, items[1].Quantity)
	assert.True(t, a.TotalCost.Equal(d(150)))
	assert.True(t, a.Overshoot().Equal(d(50)))
	assert.Contains(t, a.Message, "exceeds budget by ₹50.00")
}

func TestOptimize_FloorsRatio(t *testing.T) {
	items := []domain.WatchItem{priced("A", 100), priced("B", 50)}

	a := allocation.Optimize(items, d(449))

	assert.Equal(t, 2, items[0].Quantity, "449/150 floors to 2")
	assert.Equal(t, 2, items[1].Quantity)
	assert.True(t, a.TotalCost.Equal(d(300)))
}

func TestOptimize_IneligibleUntouched(t *testing.T) {
	unpriced := domain.WatchItem{Symbol: "NOPRICE", Quantity: 7, Selected: true}
	fetched := domain.WatchItem{
		Symbol: "FETCHED", Quantity: 1, Selected: true,
		FetchedPrice: decimal.NewNullDecimal(d(50)),
	}
	items := []domain.WatchItem{priced("A", 100), unpriced, fetched}

	a := allocation.Optimize(items, d(1000))

	require.True(t, a.Applied)
	assert.Equal(t, 2, a.Eligible)
	assert.Equal(t, 1, a.Skipped)
	assert.Equal(t, 7, items[1].Quantity, "unpriced row keeps its quantity")
	assert.Equal(t, 6, items[0].Quantity, "1000/150 floors to 6")
	assert.Equal(t, 6, items[2].Quantity, "fetched price counts")
	assert.Contains(t, a.Message, "1 without a price left unchanged")
}

func TestOptimize_NoEligibleItems(t *testing.T) {
	items := []domain.WatchItem{
		{Symbol: "A", Quantity: 3, Selected: true},
		{Symbol: "B", Quantity: 4, Selected: true},
	}

	a := allocation.Optimize(items, d(1000))

	assert.False(t, a.Applied)
	assert.NotEmpty(t, a.Message)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, 4, items[1].Quantity)
}

func TestOptimize_ZeroBudget(t *testing.T) {
	items := []domain.WatchItem{priced("A", 100), priced("B", 50)}

	a := allocation.Optimize(items, decimal.Zero)

	require.True(t, a.Applied)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, 1, items[1].Quantity)
}

func TestOptimize_NegativeBudget(t *testing.T) {
	items := []domain.WatchItem{priced("A", 100)}
	items[0].Quantity = 9

	a := allocation.Optimize(items, d(-1))

	assert.False(t, a.Applied)
	assert.Contains(t, a.Message, "negative")
	assert.Equal(t, 9, items[0].Quantity)
}

func TestOptimize_FractionalPrices(t *testing.T) {
	items := []domain.WatchItem{
		{Symbol: "A", Quantity: 1, Selected: true, Price: decimal.NewNullDecimal(decimal.RequireFromString("1412.95"))},
		{Symbol: "B", Quantity: 1, Selected: true, Price: decimal.NewNullDecimal(decimal.RequireFromString("3950.50"))},
	}

	a := allocation.Optimize(items, decimal.RequireFromString("100000"))

	// 100000 / 5363.45 = 18.64 → 18 cada uno
	assert.Equal(t, 18, items[0].Quantity)
	assert.Equal(t, 18, items[1].Quantity)
	assert.Equal(t, "96542.10", a.TotalCost.StringFixed(2))
}

func TestOptimize_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(8)
		items := make([]domain.WatchItem, n)
		sum := decimal.Zero
		for j := range items {
			p := decimal.New(int64(1+rng.Intn(500000)), -2) // 0.01 .. 5000.00
			items[j] = domain.WatchItem{
				Symbol: "S", Quantity: 1, Selected: true,
				Price: decimal.NewNullDecimal(p),
			}
			sum = sum.Add(p)
		}
		budget := decimal.New(int64(rng.Intn(10000000)), -2)

		a := allocation.Optimize(items, budget)
		require.True(t, a.Applied)

		total := decimal.Zero
		for _, it := range items {
			require.GreaterOrEqual(t, it.Quantity, 1)
			total = total.Add(it.Price.Decimal.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		require.True(t, total.Equal(a.TotalCost))
		require.True(t, total.LessThanOrEqual(budget.Add(sum)), "total %s budget %s sum %s", total, budget, sum)
		if budget.GreaterThanOrEqual(sum) {
			require.True(t, total.LessThanOrEqual(budget), "fits when budget covers one of each")
		} else {
			require.True(t, total.Equal(sum), "below the baseline every item gets exactly one")
		}
	}
}

func TestOptimize_HugeBudgetCapsQuantity(t *testing.T) {
	items := []domain.WatchItem{priced("A", 1)}

	a := allocation.Optimize(items, decimal.RequireFromString("1e19"))

	require.True(t, a.Applied)
	assert.True(t, a.Capped)
	assert.Equal(t, allocation.MaxQuantity, items[0].Quantity)
	assert.True(t, a.TotalCost.Equal(decimal.NewFromInt(allocation.MaxQuantity)), "total matches the written quantity")
	assert.Contains(t, a.Message, "capped")
}

func TestOptimize_TinyPriceCapsQuantity(t *testing.T) {
	items := []domain.WatchItem{{
		Symbol: "PENNY", Quantity: 1, Selected: true,
		Price: decimal.NewNullDecimal(decimal.RequireFromString("0.0000000001")),
	}}

	a := allocation.Optimize(items, d(100000))

	require.True(t, a.Applied)
	assert.Positive(t, items[0].Quantity)
	assert.LessOrEqual(t, items[0].Quantity, allocation.MaxQuantity)
	assert.True(t, a.TotalCost.LessThanOrEqual(d(100000)))
}
