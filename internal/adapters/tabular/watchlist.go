// Package tabular reads watch-lists and trigger tables from CSV and exports
// dispatch results.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/alejandrodnm/kitebatch/internal/domain"
)

// Watchlist is a parsed watch-list file.
type Watchlist struct {
	Items []domain.WatchItem
	// Warnings aggregates per-row problems that were repaired with defaults.
	// Use multierr.Errors to list them.
	Warnings error
}

// ReadWatchlist parses a CSV watch-list. Only the Symbol column is required;
// Quantity defaults to 1, Price to absent and Selected to true. A missing
// Symbol column is a structural error reported before any row is read.
func ReadWatchlist(r io.Reader) (Watchlist, error) {
	var wl Watchlist

	t, err := newTable(r)
	if err != nil {
		return wl, fmt.Errorf("tabular.ReadWatchlist: %w", err)
	}
	symCol, ok := t.col("symbol")
	if !ok {
		return wl, fmt.Errorf("tabular.ReadWatchlist: %w: Symbol", domain.ErrMissingColumn)
	}
	qtyCol, hasQty := t.col("quantity", "qty")
	priceCol, hasPrice := t.col("price")
	selCol, hasSel := t.col("selected", "select")

	for {
		rec, line, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return wl, fmt.Errorf("tabular.ReadWatchlist: %w", err)
		}

		symbol := domain.NormalizeSymbol(cell(rec, symCol))
		if symbol == "" {
			continue
		}
		item := domain.WatchItem{Symbol: symbol, Quantity: 1, Selected: true}

		if hasQty {
			if raw := cell(rec, qtyCol); raw != "" {
				q, err := strconv.Atoi(strings.ReplaceAll(raw, ",", ""))
				if err != nil {
					multierr.AppendInto(&wl.Warnings, fmt.Errorf("line %d %s: quantity %q is not a number, using 1", line, symbol, raw))
				} else {
					item.Quantity = q
				}
			}
		}
		if hasPrice {
			if raw := cell(rec, priceCol); raw != "" {
				p, err := parsePrice(raw)
				if err != nil {
					multierr.AppendInto(&wl.Warnings, fmt.Errorf("line %d %s: price %q ignored", line, symbol, raw))
				} else {
					item.Price = decimal.NewNullDecimal(p)
				}
			}
		}
		if hasSel {
			if raw := cell(rec, selCol); raw != "" {
				sel, ok := parseBool(raw)
				if !ok {
					multierr.AppendInto(&wl.Warnings, fmt.Errorf("line %d %s: selected %q not understood, keeping row selected", line, symbol, raw))
				} else {
					item.Selected = sel
				}
			}
		}

		item.Normalize()
		wl.Items = append(wl.Items, item)
	}
	return wl, nil
}

// parsePrice acepta "1,412.95", "₹ 1412.95" y similares.
func parsePrice(raw string) (decimal.Decimal, error) {
	s := strings.NewReplacer(",", "", "₹", "", " ", "").Replace(raw)
	return decimal.NewFromString(s)
}

func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "t", "yes", "y", "1", "x":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	}
	return false, false
}

// table es un lector CSV con columnas indexadas por nombre normalizado.
type table struct {
	cr   *csv.Reader
	cols map[string]int
	line int
}

func newTable(r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", domain.ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		key := headerKey(h)
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	return &table{cr: cr, cols: cols, line: 1}, nil
}

// col devuelve el índice de la primera columna que coincida con algún alias.
func (t *table) col(aliases ...string) (int, bool) {
	for _, a := range aliases {
		if i, ok := t.cols[headerKey(a)]; ok {
			return i, true
		}
	}
	return 0, false
}

func (t *table) next() ([]string, int, error) {
	rec, err := t.cr.Read()
	if err != nil {
		return nil, 0, err
	}
	t.line++
	return rec, t.line, nil
}

// headerKey normaliza "Trigger Price", "trigger_price" y "TriggerPrice" a lo mismo.
func headerKey(h string) string {
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(h)))
}

func cell(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
