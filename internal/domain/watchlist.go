package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PriceSource indica de dónde salió el precio usado para un símbolo.
type PriceSource int

const (
	SourceUnresolved PriceSource = iota
	SourceExplicit
	SourceFetched
	SourceQuote
)

func (s PriceSource) String() string {
	switch s {
	case SourceExplicit:
		return "explicit"
	case SourceFetched:
		return "fetched"
	case SourceQuote:
		return "quote"
	default:
		return "unresolved"
	}
}

// ParsePriceSource is the inverse of PriceSource.String.
func ParsePriceSource(s string) PriceSource {
	switch s {
	case "explicit":
		return SourceExplicit
	case "fetched":
		return SourceFetched
	case "quote":
		return SourceQuote
	default:
		return SourceUnresolved
	}
}

// WatchItem is one row of the working watch-list.
type WatchItem struct {
	Symbol       string
	Quantity     int                 // always >= 1
	Price        decimal.NullDecimal // explicit user-supplied price
	FetchedPrice decimal.NullDecimal // last quote lookup, independent of Price
	Selected     bool
}

// NewWatchItem builds a selected item with a normalized symbol and a quantity
// clamped to at least 1.
func NewWatchItem(symbol string, quantity int) WatchItem {
	item := WatchItem{Symbol: symbol, Quantity: quantity, Selected: true}
	item.Normalize()
	return item
}

// NormalizeSymbol trims and upper-cases an exchange trading symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Normalize enforces the row invariants: upper-case symbol, quantity >= 1 and
// no non-positive prices.
func (w *WatchItem) Normalize() {
	w.Symbol = NormalizeSymbol(w.Symbol)
	if w.Quantity < 1 {
		w.Quantity = 1
	}
	if w.Price.Valid && !w.Price.Decimal.IsPositive() {
		w.Price = decimal.NullDecimal{}
	}
	if w.FetchedPrice.Valid && !w.FetchedPrice.Decimal.IsPositive() {
		w.FetchedPrice = decimal.NullDecimal{}
	}
}

// ResolvedPrice returns the authoritative price without touching the network:
// the explicit price if positive, else the fetched one, else unresolved.
func (w WatchItem) ResolvedPrice() (decimal.Decimal, PriceSource, bool) {
	if w.Price.Valid && w.Price.Decimal.IsPositive() {
		return w.Price.Decimal, SourceExplicit, true
	}
	if w.FetchedPrice.Valid && w.FetchedPrice.Decimal.IsPositive() {
		return w.FetchedPrice.Decimal, SourceFetched, true
	}
	return decimal.Zero, SourceUnresolved, false
}

// SetFetchedPrice caches a quote result on the item. Non-positive prices are
// ignored.
func (w *WatchItem) SetFetchedPrice(p decimal.Decimal) {
	if !p.IsPositive() {
		return
	}
	w.FetchedPrice = decimal.NewNullDecimal(p)
}

// EstimatedCost devuelve precio × cantidad si el precio está resuelto.
func (w WatchItem) EstimatedCost() (decimal.Decimal, bool) {
	p, _, ok := w.ResolvedPrice()
	if !ok {
		return decimal.Zero, false
	}
	return p.Mul(decimal.NewFromInt(int64(w.Quantity))), true
}

// EstimatedTotal sums the estimated cost of every selected item with a
// resolved price and reports how many selected items had none.
func EstimatedTotal(items []WatchItem) (total decimal.Decimal, unpriced int) {
	total = decimal.Zero
	for _, it := range items {
		if !it.Selected {
			continue
		}
		c, ok := it.EstimatedCost()
		if !ok {
			unpriced++
			continue
		}
		total = total.Add(c)
	}
	return total, unpriced
}
