package kite

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/kitebatch/internal/domain"
)

// normalizeMargins es el único punto donde se interpreta la forma de
// /user/margins. Segmentos o campos ausentes quedan como NullDecimal inválido.
func normalizeMargins(m marginsResponse, now time.Time) domain.Balance {
	b := domain.Balance{FetchedAt: now.UTC()}
	eq := m.Equity
	if eq == nil {
		return b
	}
	if eq.Available != nil {
		b.AvailableCash = eq.Available.Cash
	}
	used := eq.Utilised
	if used == nil {
		used = eq.Utilized
	}
	if used != nil {
		b.UsedMargin = used.Debits
	}
	return b
}

// quoteKey es la clave "EXCHANGE:SYMBOL" que usa /quote.
func quoteKey(exchange, symbol string) string {
	return strings.ToUpper(exchange) + ":" + domain.NormalizeSymbol(symbol)
}

// mapQuote convierte un quoteEntry DTO a domain.Quote.
func mapQuote(symbol string, q quoteEntry) domain.Quote {
	return domain.Quote{
		Symbol:    domain.NormalizeSymbol(symbol),
		LastPrice: q.LastPrice,
		Change:    q.NetChange,
		Volume:    q.Volume,
		OHLC: domain.OHLC{
			Open:  q.OHLC.Open,
			High:  q.OHLC.High,
			Low:   q.OHLC.Low,
			Close: q.OHLC.Close,
		},
	}
}

// parseInstruments lee el dump CSV de GET /instruments/{exchange}.
// Las columnas se localizan por nombre de cabecera; filas malformadas se saltan.
func parseInstruments(r io.Reader) ([]domain.Instrument, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	symCol, ok := cols["tradingsymbol"]
	if !ok {
		return nil, fmt.Errorf("%w: tradingsymbol", domain.ErrMissingColumn)
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []domain.Instrument
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if symCol >= len(rec) || strings.TrimSpace(rec[symCol]) == "" {
			continue
		}

		in := domain.Instrument{
			Symbol:   domain.NormalizeSymbol(rec[symCol]),
			Name:     field(rec, "name"),
			Exchange: field(rec, "exchange"),
			LotSize:  1,
		}
		if tok, err := strconv.ParseInt(field(rec, "instrument_token"), 10, 64); err == nil {
			in.Token = tok
		}
		if lot, err := strconv.Atoi(field(rec, "lot_size")); err == nil && lot > 0 {
			in.LotSize = lot
		}
		if tick, err := decimal.NewFromString(field(rec, "tick_size")); err == nil {
			in.TickSize = tick
		}
		out = append(out, in)
	}
	return out, nil
}

// priceNumber formatea un precio para los campos JSON de GTT.
func priceNumber(d decimal.Decimal) string {
	return d.StringFixed(2)
}
