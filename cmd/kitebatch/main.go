package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/kitebatch/config"
	"github.com/alejandrodnm/kitebatch/internal/domain"
)

// options son los flags de una ejecución.
type options struct {
	watchlist    string
	triggers     string
	kind         string
	live         bool
	confirm      bool
	optimize     bool
	budget       decimal.NullDecimal
	defaultQty   int
	add          []addition
	out          string
	report       bool
	batchID      string
	limit        int
	requestToken string
}

type addition struct {
	symbol   string
	quantity int
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	watchlist := flag.String("watchlist", "", "CSV watch-list (Symbol[,Quantity,Price,Selected])")
	triggers := flag.String("triggers", "", "CSV with Symbol,TriggerPrice,LimitPrice for gtt orders")
	kind := flag.String("kind", "", "order kind: market|gtt (overrides config)")
	live := flag.Bool("live", false, "send real orders (default: dry run)")
	confirm := flag.Bool("confirm", false, "required together with -live")
	optimize := flag.Bool("optimize", false, "fit quantities to the available cash before dispatch")
	budget := flag.String("budget", "", "budget override in rupees (required for -optimize without a session)")
	defaultQty := flag.Int("default-qty", 0, "set this quantity on every selected row")
	add := flag.String("add", "", "extra symbols, e.g. INFY:5,TCS")
	out := flag.String("out", "", "export results CSV to this path ('auto' for a timestamped name)")
	report := flag.Bool("report", false, "print the batch history from the journal and exit")
	batchID := flag.String("batch", "", "with -report: show the outcomes of this batch (id prefix)")
	limit := flag.Int("limit", 20, "with -report: number of batches to list")
	requestToken := flag.String("request-token", "", "exchange a login request token for an access token and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "expose Prometheus metrics on this address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *kind != "" {
		cfg.Dispatch.OrderKind = *kind
	}
	if *live {
		cfg.Dispatch.Live = true
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	setupLogger(cfg.Log)

	opts := options{
		watchlist:    *watchlist,
		triggers:     *triggers,
		live:         cfg.Dispatch.Live,
		confirm:      *confirm,
		optimize:     *optimize,
		defaultQty:   *defaultQty,
		out:          *out,
		report:       *report,
		batchID:      *batchID,
		limit:        *limit,
		requestToken: *requestToken,
	}
	if *budget != "" {
		b, err := decimal.NewFromString(strings.ReplaceAll(*budget, ",", ""))
		if err != nil {
			slog.Error("invalid -budget", "value", *budget, "err", err)
			os.Exit(1)
		}
		opts.budget = decimal.NewNullDecimal(b)
	}
	if opts.add, err = parseAdditions(*add); err != nil {
		slog.Error("invalid -add", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case opts.requestToken != "":
		os.Exit(runLogin(ctx, cfg, opts.requestToken))
	case opts.report:
		os.Exit(runReport(ctx, cfg, opts))
	}

	// Las credenciales solo son obligatorias para órdenes reales.
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	slog.Info("kitebatch starting",
		"config", *configPath,
		"watchlist", opts.watchlist,
		"kind", cfg.OrderKind(),
		"live", opts.live,
		"optimize", opts.optimize,
		"online", cfg.HasSession(),
	)

	os.Exit(runBatch(ctx, cfg, opts))
}

// parseAdditions interpreta "INFY:5,TCS" (cantidad 1 por defecto).
func parseAdditions(s string) ([]addition, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []addition
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		a := addition{quantity: 1}
		sym, qty, hasQty := strings.Cut(part, ":")
		a.symbol = domain.NormalizeSymbol(sym)
		if a.symbol == "" {
			return nil, fmt.Errorf("empty symbol in %q", part)
		}
		if hasQty {
			n, err := strconv.Atoi(strings.TrimSpace(qty))
			if err != nil {
				return nil, fmt.Errorf("quantity of %s: %w", a.symbol, err)
			}
			a.quantity = n
		}
		out = append(out, a)
	}
	return out, nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
