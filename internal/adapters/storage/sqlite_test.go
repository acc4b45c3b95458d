package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kitebatch/internal/adapters/storage"
	"github.com/alejandrodnm/kitebatch/internal/domain"
)

func newStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func makeBatch(id string, started time.Time) domain.Batch {
	return domain.Batch{
		ID:        id,
		Mode:      domain.ModeDryRun,
		Kind:      domain.KindImmediate,
		StartedAt: started,
		Total:     2,
	}
}

func TestSQLiteStorage_JournalRoundTrip(t *testing.T) {
	db := newStorage(t)
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Millisecond)

	b := makeBatch("b-1", started)
	require.NoError(t, db.BeginBatch(ctx, b))

	ok := domain.OrderOutcome{
		Symbol: "INFY", Quantity: 3, OrderID: "dry-run-1", Status: domain.StatusSimulated,
		ResolvedPrice: decimal.NewNullDecimal(decimal.RequireFromString("1412.95")),
		EstimatedCost: decimal.NewNullDecimal(decimal.RequireFromString("4238.85")),
		PriceSource:   domain.SourceQuote,
		Kind:          domain.KindImmediate,
		ProcessedAt:   started.Add(time.Second),
	}
	bad := domain.OrderOutcome{
		Symbol: "TCS", Quantity: 1, OrderID: domain.FailedOrderID, Status: domain.StatusFailed,
		Reason: "missing trigger parameters", Kind: domain.KindConditional,
		Trigger:     &domain.TriggerParams{TriggerPrice: decimal.NewFromInt(0), LimitPrice: decimal.NewFromInt(5)},
		ProcessedAt: started.Add(2 * time.Second),
	}
	require.NoError(t, db.SaveOutcome(ctx, b.ID, 1, ok))
	require.NoError(t, db.SaveOutcome(ctx, b.ID, 2, bad))

	b.FinishedAt = started.Add(3 * time.Second)
	b.Succeeded, b.Failed = 1, 1
	require.NoError(t, db.FinishBatch(ctx, b))

	batches, err := db.GetBatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "b-1", batches[0].ID)
	assert.Equal(t, domain.ModeDryRun, batches[0].Mode)
	assert.Equal(t, 1, batches[0].Succeeded)
	assert.Equal(t, 1, batches[0].Failed)
	assert.True(t, batches[0].StartedAt.Equal(started))
	assert.True(t, batches[0].FinishedAt.Equal(b.FinishedAt))

	outcomes, err := db.GetOutcomes(ctx, "b-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, "INFY", outcomes[0].Symbol)
	assert.Equal(t, domain.StatusSimulated, outcomes[0].Status)
	assert.Equal(t, domain.SourceQuote, outcomes[0].PriceSource)
	assert.True(t, outcomes[0].EstimatedCost.Decimal.Equal(decimal.RequireFromString("4238.85")))
	assert.Nil(t, outcomes[0].Trigger)

	assert.Equal(t, "TCS", outcomes[1].Symbol)
	assert.Equal(t, "Failed(missing trigger parameters)", outcomes[1].StatusLabel())
	assert.False(t, outcomes[1].ResolvedPrice.Valid)
	require.NotNil(t, outcomes[1].Trigger)
	assert.True(t, outcomes[1].Trigger.LimitPrice.Equal(decimal.NewFromInt(5)))
}

func TestSQLiteStorage_BatchesNewestFirst(t *testing.T) {
	db := newStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, db.BeginBatch(ctx, makeBatch("old", now.Add(-time.Hour))))
	require.NoError(t, db.BeginBatch(ctx, makeBatch("new", now)))
	require.NoError(t, db.BeginBatch(ctx, makeBatch("mid", now.Add(-time.Minute))))

	batches, err := db.GetBatches(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "new", batches[0].ID)
	assert.Equal(t, "mid", batches[1].ID)
	assert.True(t, batches[0].FinishedAt.IsZero(), "unfinished batch")
}

func TestSQLiteStorage_OutcomeRequiresBatch(t *testing.T) {
	db := newStorage(t)
	err := db.SaveOutcome(context.Background(), "missing", 1, domain.OrderOutcome{Symbol: "X", Quantity: 1})
	assert.Error(t, err)
}

func TestSQLiteStorage_FinishUnknownBatch(t *testing.T) {
	db := newStorage(t)
	err := db.FinishBatch(context.Background(), makeBatch("nope", time.Now()))
	assert.Error(t, err)
}

func TestSQLiteStorage_InstrumentCache(t *testing.T) {
	db := newStorage(t)
	ctx := context.Background()

	list, err := db.LoadInstruments(ctx, "NSE", time.Hour)
	require.NoError(t, err)
	assert.Nil(t, list, "empty cache")

	in := []domain.Instrument{
		{Symbol: "TCS", Name: "TATA CONSULTANCY", Token: 2953217, LotSize: 1, TickSize: decimal.RequireFromString("0.05")},
		{Symbol: "INFY", Name: "INFOSYS", Token: 408065, LotSize: 1, TickSize: decimal.RequireFromString("0.05")},
	}
	require.NoError(t, db.SaveInstruments(ctx, "NSE", in))

	list, err = db.LoadInstruments(ctx, "NSE", time.Hour)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "INFY", list[0].Symbol)
	assert.Equal(t, "NSE", list[0].Exchange)
	assert.Equal(t, int64(408065), list[0].Token)
	assert.Equal(t, "0.05", list[0].TickSize.String())

	list, err = db.LoadInstruments(ctx, "BSE", time.Hour)
	require.NoError(t, err)
	assert.Nil(t, list, "other exchange not cached")

	// Reemplazo completo, no acumulación
	require.NoError(t, db.SaveInstruments(ctx, "NSE", in[:1]))
	list, err = db.LoadInstruments(ctx, "NSE", time.Hour)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLiteStorage_InstrumentCacheStale(t *testing.T) {
	db := newStorage(t)
	ctx := context.Background()

	require.NoError(t, db.SaveInstruments(ctx, "NSE", []domain.Instrument{{Symbol: "INFY", LotSize: 1}}))
	time.Sleep(5 * time.Millisecond)

	list, err := db.LoadInstruments(ctx, "NSE", time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, list)
}
