// Package allocation turns a priced watch-list into integer share counts that
// fit a cash budget.
package allocation

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/kitebatch/internal/domain"
)

// Allocation is the outcome of one Optimize call.
type Allocation struct {
	Items     []domain.WatchItem
	Message   string
	Budget    decimal.Decimal
	TotalCost decimal.Decimal // cost of the eligible items after allocation
	BaseCost  decimal.Decimal // cost of one share of every eligible item
	Eligible  int
	Skipped   int  // items left untouched for lack of a price
	Capped    bool // some quantity hit MaxQuantity
	Applied   bool
}

// MaxQuantity bounds any single allocated quantity.
const MaxQuantity = math.MaxInt32

// Overshoot returns how much TotalCost exceeds the budget (zero if it fits).
func (a Allocation) Overshoot() decimal.Decimal {
	if a.TotalCost.GreaterThan(a.Budget) {
		return a.TotalCost.Sub(a.Budget)
	}
	return decimal.Zero
}

var (
	one    = decimal.NewFromInt(1)
	maxQty = decimal.NewFromInt(MaxQuantity)
)

// Optimize assigns quantities to every item with a resolved price so the total
// cost fits budget, writing them back into items. Items without a price keep
// their quantity and are left out of the math.
//
// Every eligible item gets at least one share. The budget-fit step is a single
// rescale, so when budget is below the one-share baseline the total still
// exceeds it; the overshoot is bounded by the sum of eligible prices.
// Quantities never exceed MaxQuantity.
func Optimize(items []domain.WatchItem, budget decimal.Decimal) Allocation {
	a := Allocation{Items: items, Budget: budget}

	if budget.IsNegative() {
		a.Message = fmt.Sprintf("budget ₹%s is negative; allocation skipped", budget.StringFixed(2))
		return a
	}

	type eligible struct {
		idx   int
		price decimal.Decimal
		qty   decimal.Decimal
	}
	var rows []eligible
	for i, it := range items {
		p, _, ok := it.ResolvedPrice()
		if !ok {
			a.Skipped++
			continue
		}
		rows = append(rows, eligible{idx: i, price: p})
	}
	a.Eligible = len(rows)

	if len(rows) == 0 {
		a.Message = "no items have a resolved price; allocation skipped"
		return a
	}

	// baseline: one share of every eligible item
	base := decimal.Zero
	for _, r := range rows {
		base = base.Add(r.price)
	}
	a.BaseCost = base
	if !base.IsPositive() {
		a.Message = "baseline cost is zero; allocation skipped"
		return a
	}

	ratio := budget.Div(base)
	tentative := decimal.Max(one, ratio.Floor())
	if tentative.GreaterThan(maxQty) {
		tentative = maxQty
		a.Capped = true
	}
	total := decimal.Zero
	for i := range rows {
		rows[i].qty = tentative
		total = total.Add(rows[i].qty.Mul(rows[i].price))
	}

	if total.GreaterThan(budget) {
		reduction := budget.Div(total)
		total = decimal.Zero
		for i := range rows {
			rows[i].qty = decimal.Max(one, rows[i].qty.Mul(reduction).Floor())
			total = total.Add(rows[i].qty.Mul(rows[i].price))
		}
	}

	for _, r := range rows {
		items[r.idx].Quantity = int(r.qty.IntPart())
	}
	a.TotalCost = total
	a.Applied = true
	a.Message = allocationMessage(a)
	return a
}

func allocationMessage(a Allocation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "₹%s of ₹%s used across %d symbols",
		a.TotalCost.StringFixed(2), a.Budget.StringFixed(2), a.Eligible)
	if a.Skipped > 0 {
		fmt.Fprintf(&sb, "; %d without a price left unchanged", a.Skipped)
	}
	if a.Capped {
		fmt.Fprintf(&sb, "; quantities capped at %d", MaxQuantity)
	}
	if over := a.Overshoot(); over.IsPositive() {
		fmt.Fprintf(&sb, "; exceeds budget by ₹%s (minimum one share each)", over.StringFixed(2))
	}
	return sb.String()
}
