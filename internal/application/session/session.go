// Package session holds the state of one trading session: the working
// watch-list and read-mostly broker snapshots. It is created once per session
// by the caller and discarded at logout.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/kitebatch/internal/application/allocation"
	"github.com/alejandrodnm/kitebatch/internal/application/dispatch"
	"github.com/alejandrodnm/kitebatch/internal/application/pricing"
	"github.com/alejandrodnm/kitebatch/internal/domain"
	"github.com/alejandrodnm/kitebatch/internal/metrics"
	"github.com/alejandrodnm/kitebatch/internal/ports"
)

const instrumentCacheTTL = 12 * time.Hour

// Session is the explicit context object passed to the resolver, optimizer
// and dispatcher.
type Session struct {
	Watchlist   []domain.WatchItem
	Instruments domain.InstrumentIndex
	Balance     domain.Balance
	RefreshedAt time.Time

	broker   ports.Broker // nil in offline dry runs
	cache    ports.InstrumentCache
	exchange string
}

// New creates a session over watchlist. broker and cache may be nil.
func New(broker ports.Broker, cache ports.InstrumentCache, exchange string, watchlist []domain.WatchItem) *Session {
	if exchange == "" {
		exchange = dispatch.DefaultExchange
	}
	return &Session{
		Watchlist: watchlist,
		broker:    broker,
		cache:     cache,
		exchange:  exchange,
	}
}

// Online reports whether a broker is attached.
func (s *Session) Online() bool { return s.broker != nil }

// Broker returns the attached broker, nil when offline.
func (s *Session) Broker() ports.Broker { return s.broker }

// Refresh reloads the balance and the instrument list concurrently. Either
// failing is a structural error: the batch must not start.
func (s *Session) Refresh(ctx context.Context) error {
	if s.broker == nil {
		return fmt.Errorf("session.Refresh: %w", domain.ErrNoBroker)
	}

	var (
		balance     domain.Balance
		instruments []domain.Instrument
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := s.broker.GetBalance(gctx)
		if err != nil {
			return fmt.Errorf("balance: %w", err)
		}
		balance = b
		return nil
	})
	g.Go(func() error {
		list, err := s.loadInstruments(gctx)
		if err != nil {
			return fmt.Errorf("instruments: %w", err)
		}
		instruments = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("session.Refresh: %w", err)
	}

	s.Balance = balance
	s.Instruments = domain.NewInstrumentIndex(instruments)
	s.RefreshedAt = time.Now().UTC()

	slog.Info("session: refreshed",
		"available_cash", nullString(balance.AvailableCash),
		"used_margin", nullString(balance.UsedMargin),
		"instruments", len(s.Instruments),
	)
	return nil
}

// loadInstruments prefers a fresh cached dump over the multi-megabyte download.
func (s *Session) loadInstruments(ctx context.Context) ([]domain.Instrument, error) {
	if s.cache != nil {
		cached, err := s.cache.LoadInstruments(ctx, s.exchange, instrumentCacheTTL)
		if err != nil {
			slog.Warn("session: instrument cache read failed", "err", err)
		} else if len(cached) > 0 {
			slog.Debug("session: instruments from cache", "count", len(cached))
			return cached, nil
		}
	}

	list, err := s.broker.GetInstruments(ctx, s.exchange)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SaveInstruments(ctx, s.exchange, list); err != nil {
			slog.Warn("session: instrument cache write failed", "err", err)
		}
	}
	return list, nil
}

// Budget is the cash available for the next batch.
func (s *Session) Budget() decimal.Decimal {
	return s.Balance.Budget()
}

// AddSymbol appends a selected row to the watch-list.
func (s *Session) AddSymbol(symbol string, quantity int) error {
	item := domain.NewWatchItem(symbol, quantity)
	if item.Symbol == "" {
		return fmt.Errorf("session.AddSymbol: %w: empty symbol", domain.ErrInvalidInput)
	}
	s.Watchlist = append(s.Watchlist, item)
	return nil
}

// SetDefaultQuantity sets quantity on every selected row.
func (s *Session) SetDefaultQuantity(quantity int) {
	if quantity < 1 {
		quantity = 1
	}
	for i := range s.Watchlist {
		if s.Watchlist[i].Selected {
			s.Watchlist[i].Quantity = quantity
		}
	}
}

// Selected returns a copy of the selected rows, in order.
func (s *Session) Selected() []domain.WatchItem {
	var out []domain.WatchItem
	for _, it := range s.Watchlist {
		if it.Selected {
			out = append(out, it)
		}
	}
	return out
}

// ApplySelected writes rows produced from Selected back into the watch-list.
func (s *Session) ApplySelected(rows []domain.WatchItem) {
	j := 0
	for i := range s.Watchlist {
		if !s.Watchlist[i].Selected {
			continue
		}
		if j >= len(rows) {
			return
		}
		s.Watchlist[i] = rows[j]
		j++
	}
}

// Resolver builds a price resolver bound to this session's snapshots.
func (s *Session) Resolver(rec *metrics.Recorder) *pricing.Resolver {
	var quotes ports.QuoteProvider
	if s.broker != nil {
		quotes = s.broker
	}
	return pricing.NewResolver(quotes, s.Instruments, rec)
}

// ResolvePrices resolves every selected row in place.
func (s *Session) ResolvePrices(ctx context.Context, r *pricing.Resolver) (resolved, unresolved int) {
	return r.ResolveAll(ctx, s.Watchlist)
}

// Optimize allocates the session budget (or override, if valid) over the
// selected rows and writes the quantities back.
func (s *Session) Optimize(override decimal.NullDecimal) allocation.Allocation {
	budget := s.Budget()
	if override.Valid {
		budget = override.Decimal
	}
	rows := s.Selected()
	alloc := allocation.Optimize(rows, budget)
	s.ApplySelected(rows)
	return alloc
}

// Dispatch sends the selected rows through d.
func (s *Session) Dispatch(ctx context.Context, d *dispatch.Dispatcher, req dispatch.Request) dispatch.Result {
	rows := s.Selected()
	res := d.Dispatch(ctx, rows, req)
	s.ApplySelected(rows)
	return res
}

func nullString(n decimal.NullDecimal) string {
	if !n.Valid {
		return "n/a"
	}
	return n.Decimal.StringFixed(2)
}
