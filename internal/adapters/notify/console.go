package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/kitebatch/internal/domain"
)

const maxReasonWidth = 48

// Console escribe balance, watch-list, progreso y resultados en texto plano.
type Console struct {
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador sobre w (tests, ficheros).
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// PrintBalance muestra el efectivo disponible y el margen usado.
func (c *Console) PrintBalance(b domain.Balance) {
	fmt.Fprintf(c.out, "\n  Available cash: %s | Used margin: %s\n",
		rupees(b.AvailableCash), rupees(b.UsedMargin))
}

// PrintWatchlist imprime la watch-list con el coste estimado de la selección.
func (c *Console) PrintWatchlist(items []domain.WatchItem) {
	if len(items) == 0 {
		fmt.Fprintln(c.out, "  Watch-list is empty.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Sel", "Symbol", "Qty", "Price", "Source", "Est. Cost")
	for i, it := range items {
		sel := " "
		if it.Selected {
			sel = "x"
		}
		price, source, cost := "-", domain.SourceUnresolved.String(), "-"
		if p, src, ok := it.ResolvedPrice(); ok {
			price = "₹" + p.StringFixed(2)
			source = src.String()
		}
		if v, ok := it.EstimatedCost(); ok {
			cost = "₹" + v.StringFixed(2)
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			sel,
			it.Symbol,
			fmt.Sprintf("%d", it.Quantity),
			price,
			source,
			cost,
		)
	}
	table.Render()

	total, unpriced := domain.EstimatedTotal(items)
	fmt.Fprintf(c.out, "  Estimated total (selected): ₹%s", total.StringFixed(2))
	if unpriced > 0 {
		fmt.Fprintf(c.out, " (+%d without price)", unpriced)
	}
	fmt.Fprintln(c.out)
}

// PrintAllocation muestra el mensaje del optimizador.
func (c *Console) PrintAllocation(message string, applied bool) {
	if applied {
		fmt.Fprintf(c.out, "  Allocation: %s\n", message)
		return
	}
	fmt.Fprintf(c.out, "  ⚠ Allocation not applied: %s\n", message)
}

// Progress imprime una línea por fila procesada. Tiene la firma de
// dispatch.ProgressFunc.
func (c *Console) Progress(index, total int, o domain.OrderOutcome) {
	mark := "✓"
	if !o.Succeeded() {
		mark = "✗"
	}
	fmt.Fprintf(c.out, "  [%d/%d] %s %-12s x%-5d %s %s\n",
		index, total, mark, o.Symbol, o.Quantity, o.OrderID, truncate(o.StatusLabel(), maxReasonWidth))
}

// PrintResults imprime la tabla de resultados y el resumen de un batch.
func (c *Console) PrintResults(b domain.Batch) {
	mode := "LIVE"
	if b.Mode == domain.ModeDryRun {
		mode = "DRY RUN"
	}
	when := b.FinishedAt
	if when.IsZero() {
		when = b.StartedAt
	}

	fmt.Fprintf(c.out, "\n=== %s RESULTS | %s ===\n", mode, when.Local().Format("2006-01-02 15:04:05"))

	if len(b.Outcomes) == 0 {
		fmt.Fprintln(c.out, "  No orders were processed.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Symbol", "Qty", "Order ID", "Status", "Price", "Est. Cost", "Kind")
	for i, o := range b.Outcomes {
		table.Append(
			fmt.Sprintf("%d", i+1),
			o.Symbol,
			fmt.Sprintf("%d", o.Quantity),
			o.OrderID,
			truncate(o.StatusLabel(), maxReasonWidth),
			rupees(o.ResolvedPrice),
			rupees(o.EstimatedCost),
			o.KindLabel(),
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "  %d succeeded | %d failed | %d total | est. cost ₹%s\n",
		b.Succeeded, b.Failed, len(b.Outcomes), b.TotalEstimatedCost().StringFixed(2))
	if b.Mode == domain.ModeDryRun {
		fmt.Fprintln(c.out, "  Dry run: no orders were sent to the broker.")
	}
	fmt.Fprintln(c.out)
}

// PrintHistory lista los últimos batches del diario.
func (c *Console) PrintHistory(batches []domain.Batch) {
	if len(batches) == 0 {
		fmt.Fprintln(c.out, "\n  No batches recorded yet.")
		return
	}

	fmt.Fprintf(c.out, "\n=== BATCH HISTORY (last %d) ===\n", len(batches))
	table := tablewriter.NewWriter(c.out)
	table.Header("Started", "Batch", "Mode", "Kind", "Total", "OK", "Failed", "Duration")
	for _, b := range batches {
		dur := "unfinished"
		if !b.FinishedAt.IsZero() {
			dur = b.FinishedAt.Sub(b.StartedAt).Truncate(time.Millisecond).String()
		}
		table.Append(
			b.StartedAt.Local().Format("2006-01-02 15:04"),
			shortID(b.ID),
			string(b.Mode),
			string(b.Kind),
			fmt.Sprintf("%d", b.Total),
			fmt.Sprintf("%d", b.Succeeded),
			fmt.Sprintf("%d", b.Failed),
			dur,
		)
	}
	table.Render()
	fmt.Fprintln(c.out)
}

// PrintWarnings lista avisos no fatales (filas reparadas, precios sin resolver).
func (c *Console) PrintWarnings(title string, warnings []error) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(c.out, "  %s (%d):\n", title, len(warnings))
	for _, w := range warnings {
		fmt.Fprintf(c.out, "    >> %s\n", w)
	}
}

// --- helpers ---

func rupees(n decimal.NullDecimal) string {
	if !n.Valid {
		return "-"
	}
	return "₹" + n.Decimal.StringFixed(2)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate corta s a max runas añadiendo "...".
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
