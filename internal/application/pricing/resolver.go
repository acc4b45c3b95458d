// Package pricing resolves a best-effort last-traded price for watch-list
// rows. It never fails a batch: unknown prices come back as unresolved.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/kitebatch/internal/domain"
	"github.com/alejandrodnm/kitebatch/internal/metrics"
	"github.com/alejandrodnm/kitebatch/internal/ports"
)

// Resolution is the result of resolving one item.
type Resolution struct {
	Symbol string
	Price  decimal.Decimal
	Source domain.PriceSource
	// Err is domain.ErrSymbolNotFound or domain.ErrQuoteUnavailable (wrapping
	// the provider error) when Source is SourceUnresolved.
	Err error
}

// OK reports whether a positive price was found.
func (r Resolution) OK() bool {
	return r.Source != domain.SourceUnresolved
}

// NullPrice returns the price as an optional value.
func (r Resolution) NullPrice() decimal.NullDecimal {
	if !r.OK() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(r.Price)
}

// Resolver walks the fallback chain explicit → fetched → quote → unresolved.
type Resolver struct {
	quotes      ports.QuoteProvider // nil: offline, no lookups
	instruments domain.InstrumentIndex
	metrics     *metrics.Recorder
}

// NewResolver creates a Resolver. quotes may be nil for offline dry runs;
// instruments may be empty, in which case every symbol is looked up.
func NewResolver(quotes ports.QuoteProvider, instruments domain.InstrumentIndex, rec *metrics.Recorder) *Resolver {
	return &Resolver{quotes: quotes, instruments: instruments, metrics: rec}
}

// Resolve returns the best price for item. A successful quote lookup is cached
// in item.FetchedPrice so later calls in the same session skip the network.
func (r *Resolver) Resolve(ctx context.Context, item *domain.WatchItem) Resolution {
	res := r.resolve(ctx, item)
	r.metrics.Resolution(res.Source.String())
	return res
}

func (r *Resolver) resolve(ctx context.Context, item *domain.WatchItem) Resolution {
	symbol := domain.NormalizeSymbol(item.Symbol)

	if p, src, ok := item.ResolvedPrice(); ok {
		return Resolution{Symbol: symbol, Price: p, Source: src}
	}

	if r.quotes == nil {
		return Resolution{Symbol: symbol, Err: fmt.Errorf("%w: no quote provider", domain.ErrQuoteUnavailable)}
	}

	if r.instruments.Len() > 0 && !r.instruments.Contains(symbol) {
		slog.Warn("price: symbol not found, enter a price manually", "symbol", symbol)
		return Resolution{Symbol: symbol, Err: domain.ErrSymbolNotFound}
	}

	q, err := r.quotes.GetQuote(ctx, symbol)
	if err != nil {
		return r.unresolved(symbol, err)
	}
	if !q.LastPrice.IsPositive() {
		slog.Warn("price: quote has no last price", "symbol", symbol)
		return Resolution{Symbol: symbol, Err: fmt.Errorf("%w: last price %s", domain.ErrQuoteUnavailable, q.LastPrice)}
	}

	item.SetFetchedPrice(q.LastPrice)
	slog.Debug("price: resolved from quote", "symbol", symbol, "last_price", q.LastPrice.StringFixed(2))
	return Resolution{Symbol: symbol, Price: q.LastPrice, Source: domain.SourceQuote}
}

// unresolved classifies a provider failure without propagating it.
func (r *Resolver) unresolved(symbol string, err error) Resolution {
	if errors.Is(err, domain.ErrSymbolNotFound) {
		slog.Warn("price: symbol not found, enter a price manually", "symbol", symbol, "err", err)
		return Resolution{Symbol: symbol, Err: fmt.Errorf("%w: %v", domain.ErrSymbolNotFound, err)}
	}
	slog.Warn("price: symbol found but quote unavailable", "symbol", symbol, "err", err,
		"permission", errors.Is(err, domain.ErrPermissionDenied))
	return Resolution{Symbol: symbol, Err: fmt.Errorf("%w: %v", domain.ErrQuoteUnavailable, err)}
}

// ResolveAll resolves every selected item in place and returns the counts.
func (r *Resolver) ResolveAll(ctx context.Context, items []domain.WatchItem) (resolved, unresolved int) {
	for i := range items {
		if !items[i].Selected {
			continue
		}
		if r.Resolve(ctx, &items[i]).OK() {
			resolved++
		} else {
			unresolved++
		}
	}
	slog.Info("price: resolution complete", "resolved", resolved, "unresolved", unresolved)
	return resolved, unresolved
}
