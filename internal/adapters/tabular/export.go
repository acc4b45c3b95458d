package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/kitebatch/internal/domain"
)

// OutcomeHeader is the column order of an exported results file.
var OutcomeHeader = []string{"Symbol", "Quantity", "OrderID", "Status", "Price", "EstimatedCost", "OrderKind"}

// WriteOutcomes writes one CSV row per outcome, in dispatch order. Unknown
// prices and costs are left blank.
func WriteOutcomes(w io.Writer, outcomes []domain.OrderOutcome) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(OutcomeHeader); err != nil {
		return fmt.Errorf("tabular.WriteOutcomes: header: %w", err)
	}
	for _, o := range outcomes {
		row := []string{
			o.Symbol,
			strconv.Itoa(o.Quantity),
			o.OrderID,
			o.StatusLabel(),
			money(o.ResolvedPrice),
			money(o.EstimatedCost),
			o.KindLabel(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("tabular.WriteOutcomes: %s: %w", o.Symbol, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("tabular.WriteOutcomes: flush: %w", err)
	}
	return nil
}

// ExportFileName returns the timestamped default name of a results file.
func ExportFileName(t time.Time) string {
	return "kite_orders_" + t.Format("20060102_150405") + ".csv"
}

func money(n decimal.NullDecimal) string {
	if !n.Valid {
		return ""
	}
	return n.Decimal.StringFixed(2)
}
