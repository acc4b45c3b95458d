// Package dispatch submits one order per watch-list row, sequentially and
// with a fixed pacing delay, isolating every failure to its own row.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/kitebatch/internal/application/pricing"
	"github.com/alejandrodnm/kitebatch/internal/domain"
	"github.com/alejandrodnm/kitebatch/internal/metrics"
	"github.com/alejandrodnm/kitebatch/internal/ports"
)

const (
	DefaultPacing   = 500 * time.Millisecond
	DefaultExchange = "NSE"
	DefaultProduct  = "CNC"
)

var (
	errInvalidQuantity = errors.New("quantity must be at least 1")
	errMissingSymbol   = errors.New("symbol is empty")
	errMissingTrigger  = errors.New("missing trigger parameters")
	errBadTrigger      = errors.New("trigger and limit price must be positive")
	errUnknownKind     = errors.New("unknown order kind")
)

// PriceResolver is the slice of pricing.Resolver the dispatcher needs.
type PriceResolver interface {
	Resolve(ctx context.Context, item *domain.WatchItem) pricing.Resolution
}

// ProgressFunc is called after each row with its 1-based index.
type ProgressFunc func(index, total int, outcome domain.OrderOutcome)

// Config holds dispatcher settings.
type Config struct {
	Exchange string
	Product  string
	Pacing   time.Duration // fixed delay after every row but the last; 0 disables
}

// Request describes one batch.
type Request struct {
	Kind     domain.OrderKind
	Simulate bool
	Triggers map[string]domain.TriggerParams // keyed by normalized symbol
}

// Result is the aggregate of one batch. Outcomes are in input order.
type Result struct {
	Batch     domain.Batch
	Succeeded int
	Failed    int
	Outcomes  []domain.OrderOutcome
}

// Dispatcher owns the broker connection for the duration of a batch.
type Dispatcher struct {
	submitter ports.OrderSubmitter // may be nil when only simulating
	prices    PriceResolver        // may be nil: rows keep their own price
	journal   ports.Journal        // may be nil
	metrics   *metrics.Recorder
	progress  ProgressFunc
	cfg       Config

	sleep func(ctx context.Context, d time.Duration)
	now   func() time.Time
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithJournal persists the batch as it runs.
func WithJournal(j ports.Journal) Option { return func(d *Dispatcher) { d.journal = j } }

// WithProgress reports each row as soon as it is done.
func WithProgress(fn ProgressFunc) Option { return func(d *Dispatcher) { d.progress = fn } }

// WithMetrics records per-row counters.
func WithMetrics(rec *metrics.Recorder) Option { return func(d *Dispatcher) { d.metrics = rec } }

// WithSleep replaces the pacing sleep (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration)) Option {
	return func(d *Dispatcher) { d.sleep = fn }
}

// New creates a Dispatcher.
func New(submitter ports.OrderSubmitter, prices PriceResolver, cfg Config, opts ...Option) *Dispatcher {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.Product == "" {
		cfg.Product = DefaultProduct
	}
	if cfg.Pacing < 0 {
		cfg.Pacing = 0
	}
	d := &Dispatcher{
		submitter: submitter,
		prices:    prices,
		cfg:       cfg,
		sleep:     sleepCtx,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch processes items in order and always returns one outcome per item,
// even if every row fails. It never returns an error: per-row problems become
// Failed outcomes and journal problems are only logged.
func (d *Dispatcher) Dispatch(ctx context.Context, items []domain.WatchItem, req Request) Result {
	if req.Kind == "" {
		req.Kind = domain.KindImmediate
	}
	mode := domain.ModeLive
	if req.Simulate {
		mode = domain.ModeDryRun
	}

	res := Result{
		Batch: domain.Batch{
			ID:        uuid.New().String(),
			Mode:      mode,
			Kind:      req.Kind,
			StartedAt: d.now().UTC(),
			Total:     len(items),
		},
		Outcomes: make([]domain.OrderOutcome, 0, len(items)),
	}

	slog.Info("dispatch: batch start",
		"batch", res.Batch.ID,
		"items", len(items),
		"mode", mode,
		"kind", req.Kind,
	)
	if d.journal != nil {
		if err := d.journal.BeginBatch(ctx, res.Batch); err != nil {
			slog.Warn("dispatch: journal begin failed", "batch", res.Batch.ID, "err", err)
		}
	}

	for i := range items {
		outcome := d.processItem(ctx, &items[i], req, res.Succeeded)

		res.Outcomes = append(res.Outcomes, outcome)
		if outcome.Succeeded() {
			res.Succeeded++
		} else {
			res.Failed++
		}
		d.metrics.Order(string(outcome.Status), string(outcome.Kind))

		if d.journal != nil {
			if err := d.journal.SaveOutcome(ctx, res.Batch.ID, i+1, outcome); err != nil {
				slog.Warn("dispatch: journal outcome failed", "symbol", outcome.Symbol, "err", err)
			}
		}
		if d.progress != nil {
			d.progress(i+1, len(items), outcome)
		}

		if i < len(items)-1 && d.cfg.Pacing > 0 {
			d.sleep(ctx, d.cfg.Pacing)
		}
	}

	res.Batch.FinishedAt = d.now().UTC()
	res.Batch.Succeeded = res.Succeeded
	res.Batch.Failed = res.Failed
	res.Batch.Outcomes = res.Outcomes
	d.metrics.Batch(res.Batch.FinishedAt.Sub(res.Batch.StartedAt))

	if d.journal != nil {
		if err := d.journal.FinishBatch(ctx, res.Batch); err != nil {
			slog.Warn("dispatch: journal finish failed", "batch", res.Batch.ID, "err", err)
		}
	}

	slog.Info("dispatch: batch complete",
		"batch", res.Batch.ID,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
	)
	return res
}

// processItem handles one row. A panic anywhere below is turned into a Failed
// outcome so the loop continues.
func (d *Dispatcher) processItem(ctx context.Context, item *domain.WatchItem, req Request, succeededSoFar int) (out domain.OrderOutcome) {
	out = domain.OrderOutcome{
		Symbol:   domain.NormalizeSymbol(item.Symbol),
		Quantity: item.Quantity,
		OrderID:  domain.FailedOrderID,
		Kind:     req.Kind,
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch: panic while processing row", "symbol", out.Symbol, "panic", r)
			out = failed(out, fmt.Errorf("unexpected error: %v", r))
		}
		out.ProcessedAt = d.now().UTC()
	}()

	if out.Symbol == "" {
		return failed(out, errMissingSymbol)
	}
	if item.Quantity < 1 {
		return failed(out, errInvalidQuantity)
	}

	switch req.Kind {
	case domain.KindImmediate, domain.KindConditional:
	default:
		return failed(out, fmt.Errorf("%w %q", errUnknownKind, req.Kind))
	}

	var trigger domain.TriggerParams
	if req.Kind == domain.KindConditional {
		tp, ok := req.Triggers[out.Symbol]
		if !ok {
			return failed(out, errMissingTrigger)
		}
		out.Trigger = &tp
		if !tp.Valid() {
			return failed(out, errBadTrigger)
		}
		trigger = tp
	}

	if req.Simulate {
		out.OrderID = fmt.Sprintf("dry-run-%d", succeededSoFar+1)
		out.Status = domain.StatusSimulated
		slog.Info("dispatch: [DRY RUN] would place order",
			"symbol", out.Symbol, "quantity", out.Quantity, "kind", req.Kind)
	} else {
		orderID, err := d.submit(ctx, *item, req.Kind, trigger)
		if err != nil {
			slog.Error("dispatch: order failed", "symbol", out.Symbol, "quantity", out.Quantity, "err", err)
			return failed(out, err)
		}
		out.OrderID = orderID
		out.Status = domain.StatusSubmitted
		slog.Info("dispatch: order submitted",
			"symbol", out.Symbol, "quantity", out.Quantity, "order_id", orderID, "kind", req.Kind)
	}

	d.attachPrice(ctx, item, &out)
	return out
}

func (d *Dispatcher) submit(ctx context.Context, item domain.WatchItem, kind domain.OrderKind, trigger domain.TriggerParams) (string, error) {
	if d.submitter == nil {
		return "", domain.ErrNoBroker
	}
	symbol := domain.NormalizeSymbol(item.Symbol)

	switch kind {
	case domain.KindImmediate:
		return d.submitter.SubmitMarketOrder(ctx, domain.MarketOrderRequest{
			Symbol:   symbol,
			Exchange: d.cfg.Exchange,
			Product:  d.cfg.Product,
			Quantity: item.Quantity,
		})
	case domain.KindConditional:
		last, _, _ := item.ResolvedPrice()
		return d.submitter.SubmitConditionalOrder(ctx, domain.ConditionalOrderRequest{
			Symbol:       symbol,
			Exchange:     d.cfg.Exchange,
			Product:      d.cfg.Product,
			Quantity:     item.Quantity,
			TriggerPrice: trigger.TriggerPrice,
			LimitPrice:   trigger.LimitPrice,
			LastPrice:    last,
		})
	default:
		return "", fmt.Errorf("%w %q", errUnknownKind, kind)
	}
}

// attachPrice fills the informational price and cost. It never changes the
// quantity, status or order ID: the order may already be at the broker, so a
// panic here only drops the price.
func (d *Dispatcher) attachPrice(ctx context.Context, item *domain.WatchItem, out *domain.OrderOutcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch: panic while resolving price", "symbol", out.Symbol, "order_id", out.OrderID, "panic", r)
			out.PriceSource = domain.SourceUnresolved
			out.ResolvedPrice = decimal.NullDecimal{}
			out.EstimatedCost = decimal.NullDecimal{}
		}
	}()

	var res pricing.Resolution
	if d.prices != nil {
		res = d.prices.Resolve(ctx, item)
	} else if p, src, ok := item.ResolvedPrice(); ok {
		res = pricing.Resolution{Symbol: out.Symbol, Price: p, Source: src}
	}

	out.PriceSource = res.Source
	out.ResolvedPrice = res.NullPrice()
	if res.OK() {
		out.EstimatedCost = decimal.NewNullDecimal(res.Price.Mul(decimal.NewFromInt(int64(out.Quantity))))
	}
}

func failed(out domain.OrderOutcome, err error) domain.OrderOutcome {
	out.Status = domain.StatusFailed
	out.OrderID = domain.FailedOrderID
	out.Reason = err.Error()
	return out
}

// sleepCtx espera d respetando la cancelación del contexto.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
