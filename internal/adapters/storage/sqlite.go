package storage

// sqlite.go: diario de batches y caché de instrumentos.
//
// Estrategia:
//   - `batches`: una fila por ejecución, creada al empezar y cerrada al terminar.
//     Un batch sin finished_at es uno que se interrumpió.
//   - `outcomes`: una fila por símbolo, escrita en cuanto se procesa.
//   - `instruments` + `instrument_dumps`: el dump del exchange (varios MB) se
//     reutiliza mientras sea más reciente que el TTL del llamador.
//   - Importes como TEXT (decimal exacto, NULL si desconocido).
//   - Prune automático al arrancar: batches > 90d.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/kitebatch/internal/domain"
	"github.com/alejandrodnm/kitebatch/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS batches (
    id          TEXT PRIMARY KEY,
    mode        TEXT    NOT NULL,
    kind        TEXT    NOT NULL,
    started_at  TEXT    NOT NULL,
    finished_at TEXT,
    total       INTEGER NOT NULL DEFAULT 0,
    succeeded   INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS outcomes (
    batch_id      TEXT    NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
    seq           INTEGER NOT NULL,
    symbol        TEXT    NOT NULL,
    quantity      INTEGER NOT NULL,
    order_id      TEXT    NOT NULL,
    status        TEXT    NOT NULL,
    reason        TEXT    NOT NULL DEFAULT '',
    price         TEXT,
    est_cost      TEXT,
    price_source  TEXT    NOT NULL DEFAULT 'unresolved',
    kind          TEXT    NOT NULL,
    trigger_price TEXT,
    limit_price   TEXT,
    processed_at  TEXT    NOT NULL,
    PRIMARY KEY (batch_id, seq)
);

CREATE TABLE IF NOT EXISTS instrument_dumps (
    exchange   TEXT PRIMARY KEY,
    fetched_at TEXT    NOT NULL,
    count      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS instruments (
    exchange  TEXT    NOT NULL,
    symbol    TEXT    NOT NULL,
    name      TEXT    NOT NULL DEFAULT '',
    token     INTEGER NOT NULL DEFAULT 0,
    lot_size  INTEGER NOT NULL DEFAULT 1,
    tick_size TEXT    NOT NULL DEFAULT '0',
    PRIMARY KEY (exchange, symbol)
);

CREATE INDEX IF NOT EXISTS idx_batches_started ON batches(started_at DESC);
`

const (
	retentionBatches = 90 * 24 * time.Hour
	timeLayout       = "2006-01-02T15:04:05.000000000Z07:00" // ancho fijo: ordena como texto
)

var (
	_ ports.Journal         = (*SQLiteStorage)(nil)
	_ ports.BatchHistory    = (*SQLiteStorage)(nil)
	_ ports.InstrumentCache = (*SQLiteStorage)(nil)
)

// SQLiteStorage implementa el diario de batches y la caché de instrumentos
// usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia batches antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// BeginBatch registra un batch nuevo, todavía sin terminar.
func (s *SQLiteStorage) BeginBatch(ctx context.Context, b domain.Batch) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (id, mode, kind, started_at, total) VALUES (?, ?, ?, ?, ?)`,
		b.ID, string(b.Mode), string(b.Kind), formatTime(b.StartedAt), b.Total,
	); err != nil {
		return fmt.Errorf("storage.BeginBatch: %w", err)
	}
	return nil
}

// SaveOutcome persiste el resultado de una fila en cuanto se produce.
func (s *SQLiteStorage) SaveOutcome(ctx context.Context, batchID string, seq int, o domain.OrderOutcome) error {
	var trig, lim decimal.NullDecimal
	if o.Trigger != nil {
		trig = decimal.NewNullDecimal(o.Trigger.TriggerPrice)
		lim = decimal.NewNullDecimal(o.Trigger.LimitPrice)
	}
	processed := o.ProcessedAt
	if processed.IsZero() {
		processed = time.Now()
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes
			(batch_id, seq, symbol, quantity, order_id, status, reason, price, est_cost,
			 price_source, kind, trigger_price, limit_price, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(batch_id, seq) DO UPDATE SET
			order_id     = excluded.order_id,
			status       = excluded.status,
			reason       = excluded.reason,
			price        = excluded.price,
			est_cost     = excluded.est_cost,
			price_source = excluded.price_source,
			processed_at = excluded.processed_at`,
		batchID, seq, o.Symbol, o.Quantity, o.OrderID, string(o.Status), o.Reason,
		o.ResolvedPrice, o.EstimatedCost, o.PriceSource.String(), string(o.Kind),
		trig, lim, formatTime(processed),
	); err != nil {
		return fmt.Errorf("storage.SaveOutcome %s #%d: %w", batchID, seq, err)
	}
	return nil
}

// FinishBatch cierra el batch con sus totales.
func (s *SQLiteStorage) FinishBatch(ctx context.Context, b domain.Batch) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET finished_at = ?, total = ?, succeeded = ?, failed = ? WHERE id = ?`,
		formatTime(b.FinishedAt), b.Total, b.Succeeded, b.Failed, b.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.FinishBatch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.FinishBatch: batch %s not found", b.ID)
	}
	return nil
}

// GetBatches devuelve los últimos batches, más recientes primero, sin outcomes.
func (s *SQLiteStorage) GetBatches(ctx context.Context, limit int) ([]domain.Batch, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, kind, started_at, finished_at, total, succeeded, failed
		FROM batches
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetBatches: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Batch
	for rows.Next() {
		var (
			b                 domain.Batch
			mode, kind, start string
			finished          sql.NullString
		)
		if err := rows.Scan(&b.ID, &mode, &kind, &start, &finished, &b.Total, &b.Succeeded, &b.Failed); err != nil {
			return nil, fmt.Errorf("storage.GetBatches: scan row: %w", err)
		}
		b.Mode = domain.BatchMode(mode)
		b.Kind = domain.OrderKind(kind)
		b.StartedAt = parseTime(start)
		if finished.Valid {
			b.FinishedAt = parseTime(finished.String)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetOutcomes devuelve las filas de un batch en orden de procesamiento.
func (s *SQLiteStorage) GetOutcomes(ctx context.Context, batchID string) ([]domain.OrderOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, quantity, order_id, status, reason, price, est_cost,
		       price_source, kind, trigger_price, limit_price, processed_at
		FROM outcomes
		WHERE batch_id = ?
		ORDER BY seq`, batchID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetOutcomes: query: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderOutcome
	for rows.Next() {
		var (
			o                          domain.OrderOutcome
			status, source, kind, when string
			trig, lim                  decimal.NullDecimal
		)
		if err := rows.Scan(&o.Symbol, &o.Quantity, &o.OrderID, &status, &o.Reason,
			&o.ResolvedPrice, &o.EstimatedCost, &source, &kind, &trig, &lim, &when); err != nil {
			return nil, fmt.Errorf("storage.GetOutcomes: scan row: %w", err)
		}
		o.Status = domain.OrderStatus(status)
		o.PriceSource = domain.ParsePriceSource(source)
		o.Kind = domain.OrderKind(kind)
		o.ProcessedAt = parseTime(when)
		if trig.Valid || lim.Valid {
			o.Trigger = &domain.TriggerParams{TriggerPrice: trig.Decimal, LimitPrice: lim.Decimal}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SaveInstruments reemplaza el dump cacheado de un exchange.
func (s *SQLiteStorage) SaveInstruments(ctx context.Context, exchange string, list []domain.Instrument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveInstruments: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM instruments WHERE exchange = ?`, exchange); err != nil {
		return fmt.Errorf("storage.SaveInstruments: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO instruments (exchange, symbol, name, token, lot_size, tick_size)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(exchange, symbol) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("storage.SaveInstruments: prepare: %w", err)
	}
	defer stmt.Close()

	for _, in := range list {
		if _, err := stmt.ExecContext(ctx, exchange, in.Symbol, in.Name, in.Token, in.LotSize, in.TickSize.String()); err != nil {
			return fmt.Errorf("storage.SaveInstruments: insert %s: %w", in.Symbol, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO instrument_dumps (exchange, fetched_at, count) VALUES (?, ?, ?)
		ON CONFLICT(exchange) DO UPDATE SET fetched_at = excluded.fetched_at, count = excluded.count`,
		exchange, formatTime(time.Now()), len(list),
	); err != nil {
		return fmt.Errorf("storage.SaveInstruments: stamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveInstruments: commit: %w", err)
	}
	return nil
}

// LoadInstruments devuelve el dump cacheado si tiene menos de maxAge; si no, nil.
func (s *SQLiteStorage) LoadInstruments(ctx context.Context, exchange string, maxAge time.Duration) ([]domain.Instrument, error) {
	var fetched string
	err := s.db.QueryRowContext(ctx,
		`SELECT fetched_at FROM instrument_dumps WHERE exchange = ?`, exchange,
	).Scan(&fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.LoadInstruments: stamp: %w", err)
	}
	if time.Since(parseTime(fetched)) > maxAge {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, name, token, lot_size, tick_size
		FROM instruments
		WHERE exchange = ?
		ORDER BY symbol`, exchange)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadInstruments: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Instrument
	for rows.Next() {
		in := domain.Instrument{Exchange: exchange}
		var tick string
		if err := rows.Scan(&in.Symbol, &in.Name, &in.Token, &in.LotSize, &tick); err != nil {
			return nil, fmt.Errorf("storage.LoadInstruments: scan row: %w", err)
		}
		in.TickSize, _ = decimal.NewFromString(tick)
		out = append(out, in)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// pruneOld elimina batches antiguos (y sus outcomes por cascada).
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := formatTime(time.Now().Add(-retentionBatches))
	s.db.ExecContext(ctx, `DELETE FROM batches WHERE started_at < ?`, cutoff)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
