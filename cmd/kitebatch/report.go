package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alejandrodnm/kitebatch/config"
	"github.com/alejandrodnm/kitebatch/internal/adapters/kite"
	"github.com/alejandrodnm/kitebatch/internal/adapters/notify"
	"github.com/alejandrodnm/kitebatch/internal/adapters/storage"
)

// runReport lista los batches del diario o, con -batch, las filas de uno.
func runReport(ctx context.Context, cfg *config.Config, opts options) int {
	if cfg.Storage.Disabled {
		slog.Error("report needs storage; storage.disabled is set")
		return 2
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		return 1
	}
	defer store.Close()

	console := notify.NewConsole()

	limit := opts.limit
	if opts.batchID != "" && limit < 500 {
		limit = 500
	}
	batches, err := store.GetBatches(ctx, limit)
	if err != nil {
		slog.Error("failed to read history", "err", err)
		return 1
	}

	if opts.batchID == "" {
		console.PrintHistory(batches)
		return 0
	}

	for _, b := range batches {
		if !strings.HasPrefix(b.ID, opts.batchID) {
			continue
		}
		outcomes, err := store.GetOutcomes(ctx, b.ID)
		if err != nil {
			slog.Error("failed to read batch outcomes", "batch", b.ID, "err", err)
			return 1
		}
		b.Outcomes = outcomes
		console.PrintResults(b)
		return 0
	}
	slog.Error("batch not found", "batch", opts.batchID)
	return 1
}

// runLogin canjea el request_token del redirect de login por un access token.
// El token se imprime; guardarlo es cosa del usuario.
func runLogin(ctx context.Context, cfg *config.Config, requestToken string) int {
	client := kite.NewClient(cfg.Broker.BaseURL, cfg.Broker.APIKey, cfg.Broker.APISecret, "")
	token, err := client.GenerateSession(ctx, requestToken)
	if err != nil {
		slog.Error("failed to generate session", "err", err)
		return 1
	}
	fmt.Printf("KITE_ACCESS_TOKEN=%s\n", token)
	return 0
}
