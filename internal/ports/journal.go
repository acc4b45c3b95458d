package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/kitebatch/internal/domain"
)

// Journal persists dispatch batches as they run, so a long batch can be
// inspected while in progress and audited afterwards.
type Journal interface {
	BeginBatch(ctx context.Context, batch domain.Batch) error
	SaveOutcome(ctx context.Context, batchID string, seq int, outcome domain.OrderOutcome) error
	FinishBatch(ctx context.Context, batch domain.Batch) error
}

// BatchHistory reads back journaled batches.
type BatchHistory interface {
	GetBatches(ctx context.Context, limit int) ([]domain.Batch, error)
	GetOutcomes(ctx context.Context, batchID string) ([]domain.OrderOutcome, error)
}

// InstrumentCache keeps the exchange instrument dump between runs.
type InstrumentCache interface {
	SaveInstruments(ctx context.Context, exchange string, list []domain.Instrument) error
	// LoadInstruments returns nil when the cache is older than maxAge.
	LoadInstruments(ctx context.Context, exchange string, maxAge time.Duration) ([]domain.Instrument, error)
}
