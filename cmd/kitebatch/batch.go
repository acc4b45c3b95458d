package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.uber.org/multierr"

	"github.com/alejandrodnm/kitebatch/config"
	"github.com/alejandrodnm/kitebatch/internal/adapters/kite"
	"github.com/alejandrodnm/kitebatch/internal/adapters/notify"
	"github.com/alejandrodnm/kitebatch/internal/adapters/storage"
	"github.com/alejandrodnm/kitebatch/internal/adapters/tabular"
	"github.com/alejandrodnm/kitebatch/internal/application/dispatch"
	"github.com/alejandrodnm/kitebatch/internal/application/session"
	"github.com/alejandrodnm/kitebatch/internal/domain"
	"github.com/alejandrodnm/kitebatch/internal/metrics"
	"github.com/alejandrodnm/kitebatch/internal/ports"
)

const abortWindow = 5 * time.Second

// runBatch lee la watch-list, resuelve precios, optimiza si se pide y
// despacha. Devuelve el exit code.
func runBatch(ctx context.Context, cfg *config.Config, opts options) int {
	console := notify.NewConsole()

	// 1. Errores estructurales antes de tocar nada
	if opts.watchlist == "" && len(opts.add) == 0 {
		slog.Error("nothing to do: pass -watchlist and/or -add")
		return 2
	}
	items, err := loadWatchlist(opts.watchlist, console)
	if err != nil {
		slog.Error("failed to read watch-list", "err", err, "path", opts.watchlist)
		return 1
	}

	kind := cfg.OrderKind()
	var triggers map[string]domain.TriggerParams
	if kind == domain.KindConditional {
		if opts.triggers == "" {
			slog.Warn("gtt batch without -triggers: every row will fail")
		} else if triggers, err = loadTriggers(opts.triggers, console); err != nil {
			slog.Error("failed to read triggers", "err", err, "path", opts.triggers)
			return 1
		}
	}

	if opts.live && !cfg.HasSession() {
		slog.Error("live orders need KITE_API_KEY and KITE_ACCESS_TOKEN")
		return 1
	}
	if opts.live && !opts.confirm {
		slog.Error("live orders need -confirm")
		return 2
	}

	var (
		journal ports.Journal
		cache   ports.InstrumentCache
	)
	if !cfg.Storage.Disabled {
		store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			return 1
		}
		defer store.Close()
		journal, cache = store, store
	}

	rec := metrics.New()
	if cfg.Metrics.Addr != "" {
		rec.Serve(ctx, cfg.Metrics.Addr)
		slog.Info("metrics: serving", "addr", cfg.Metrics.Addr)
	}

	// 2. Sesión: offline si no hay token (solo dry run con precios explícitos)
	var broker ports.Broker
	if cfg.HasSession() {
		broker = kite.NewClient(cfg.Broker.BaseURL, cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.Broker.AccessToken).
			WithExchange(cfg.Broker.Exchange)
	} else {
		slog.Warn("no broker session: offline dry run, only explicit prices are used")
	}

	sess := session.New(broker, cache, cfg.Broker.Exchange, items)
	for _, a := range opts.add {
		if err := sess.AddSymbol(a.symbol, a.quantity); err != nil {
			slog.Warn("skipping symbol", "symbol", a.symbol, "err", err)
		}
	}
	if opts.defaultQty > 0 {
		sess.SetDefaultQuantity(opts.defaultQty)
	}
	if len(sess.Selected()) == 0 {
		slog.Error("no selected rows in the watch-list")
		return 2
	}

	if sess.Online() {
		if err := sess.Refresh(ctx); err != nil {
			slog.Error("failed to load account snapshot", "err", err)
			return 1
		}
		console.PrintBalance(sess.Balance)
	}

	// 3. Precios → optimizador
	resolver := sess.Resolver(rec)
	if _, unresolved := sess.ResolvePrices(ctx, resolver); unresolved > 0 {
		slog.Warn("some symbols have no price; enter one in the Price column", "count", unresolved)
	}

	if opts.optimize {
		if !sess.Online() && !opts.budget.Valid {
			slog.Error("-optimize without a broker session needs -budget")
			return 2
		}
		alloc := sess.Optimize(opts.budget)
		console.PrintAllocation(alloc.Message, alloc.Applied)
	}
	console.PrintWatchlist(sess.Watchlist)

	// 4. Confirmación de órdenes reales
	if opts.live {
		total, _ := domain.EstimatedTotal(sess.Watchlist)
		fmt.Printf("\n⚠️  LIVE MODE: %d REAL %s ORDERS (est. ₹%s)\n", len(sess.Selected()), kind, total.StringFixed(2))
		fmt.Printf("   Press Ctrl+C within %s to abort...\n\n", abortWindow)

		abortTimer := time.NewTimer(abortWindow)
		select {
		case <-abortTimer.C:
		case <-ctx.Done():
			abortTimer.Stop()
			slog.Info("live batch aborted by user")
			return 130
		}
	}

	// 5. Dispatch
	var submitter ports.OrderSubmitter
	if broker != nil {
		submitter = broker
	}
	dopts := []dispatch.Option{
		dispatch.WithProgress(console.Progress),
		dispatch.WithMetrics(rec),
	}
	if journal != nil {
		dopts = append(dopts, dispatch.WithJournal(journal))
	}
	d := dispatch.New(submitter, resolver, dispatch.Config{
		Exchange: cfg.Broker.Exchange,
		Product:  cfg.Broker.Product,
		Pacing:   cfg.Pacing(),
	}, dopts...)

	res := sess.Dispatch(ctx, d, dispatch.Request{
		Kind:     kind,
		Simulate: !opts.live,
		Triggers: triggers,
	})
	console.PrintResults(res.Batch)

	if opts.out != "" {
		path := opts.out
		if path == "auto" {
			path = tabular.ExportFileName(time.Now())
		}
		if err := exportResults(path, res.Outcomes); err != nil {
			slog.Error("failed to export results", "err", err, "path", path)
			return 1
		}
		slog.Info("results exported", "path", path, "rows", len(res.Outcomes))
	}

	if res.Succeeded == 0 && res.Failed > 0 {
		return 3
	}
	return 0
}

func loadWatchlist(path string, console *notify.Console) ([]domain.WatchItem, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	wl, err := tabular.ReadWatchlist(f)
	if err != nil {
		return nil, err
	}
	console.PrintWarnings("Watch-list rows repaired", multierr.Errors(wl.Warnings))
	return wl.Items, nil
}

func loadTriggers(path string, console *notify.Console) (map[string]domain.TriggerParams, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tr, err := tabular.ReadTriggers(f)
	if err != nil {
		return nil, err
	}
	console.PrintWarnings("Trigger rows with problems", multierr.Errors(tr.Warnings))
	return tr.Params, nil
}

func exportResults(path string, outcomes []domain.OrderOutcome) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tabular.WriteOutcomes(f, outcomes); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
