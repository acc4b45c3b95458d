package tabular

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"

	"github.com/alejandrodnm/kitebatch/internal/domain"
)

// Triggers maps a normalized symbol to its conditional-order prices.
type Triggers struct {
	Params   map[string]domain.TriggerParams
	Warnings error
}

// ReadTriggers parses Symbol, TriggerPrice and LimitPrice columns. Values are
// kept as given: an unparseable price becomes zero so the dispatcher rejects
// that row, and only that row.
func ReadTriggers(r io.Reader) (Triggers, error) {
	out := Triggers{Params: make(map[string]domain.TriggerParams)}

	t, err := newTable(r)
	if err != nil {
		return out, fmt.Errorf("tabular.ReadTriggers: %w", err)
	}
	symCol, ok := t.col("symbol")
	if !ok {
		return out, fmt.Errorf("tabular.ReadTriggers: %w: Symbol", domain.ErrMissingColumn)
	}
	trigCol, ok := t.col("triggerprice", "trigger")
	if !ok {
		return out, fmt.Errorf("tabular.ReadTriggers: %w: TriggerPrice", domain.ErrMissingColumn)
	}
	limCol, ok := t.col("limitprice", "limit")
	if !ok {
		return out, fmt.Errorf("tabular.ReadTriggers: %w: LimitPrice", domain.ErrMissingColumn)
	}

	for {
		rec, line, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("tabular.ReadTriggers: %w", err)
		}

		symbol := domain.NormalizeSymbol(cell(rec, symCol))
		if symbol == "" {
			continue
		}

		var tp domain.TriggerParams
		if raw := cell(rec, trigCol); raw != "" {
			if p, err := parsePrice(raw); err == nil {
				tp.TriggerPrice = p
			} else {
				multierr.AppendInto(&out.Warnings, fmt.Errorf("line %d %s: trigger price %q invalid", line, symbol, raw))
			}
		}
		if raw := cell(rec, limCol); raw != "" {
			if p, err := parsePrice(raw); err == nil {
				tp.LimitPrice = p
			} else {
				multierr.AppendInto(&out.Warnings, fmt.Errorf("line %d %s: limit price %q invalid", line, symbol, raw))
			}
		}
		if _, dup := out.Params[symbol]; dup {
			multierr.AppendInto(&out.Warnings, fmt.Errorf("line %d %s: duplicate symbol, last row wins", line, symbol))
		}
		out.Params[symbol] = tp
	}
	return out, nil
}
