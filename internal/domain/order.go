package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderKind selects how an item is sent to the broker.
type OrderKind string

const (
	KindImmediate   OrderKind = "MARKET"
	KindConditional OrderKind = "GTT"
)

// ParseOrderKind accepts the config/flag spellings of an order kind.
func ParseOrderKind(s string) (OrderKind, bool) {
	switch NormalizeSymbol(s) {
	case "", "MARKET", "IMMEDIATE":
		return KindImmediate, true
	case "GTT", "CONDITIONAL", "TRIGGER":
		return KindConditional, true
	}
	return "", false
}

// OrderStatus is the terminal state of one dispatched row.
type OrderStatus string

const (
	StatusSimulated OrderStatus = "Simulated"
	StatusSubmitted OrderStatus = "Submitted"
	StatusFailed    OrderStatus = "Failed"
)

// FailedOrderID is the OrderID placeholder for rows that never got an id.
const FailedOrderID = "Failed"

// TriggerParams holds the prices of a single-leg conditional order.
type TriggerParams struct {
	TriggerPrice decimal.Decimal
	LimitPrice   decimal.Decimal
}

// Valid reports whether both prices are strictly positive.
func (t TriggerParams) Valid() bool {
	return t.TriggerPrice.IsPositive() && t.LimitPrice.IsPositive()
}

// OrderOutcome is one immutable row of dispatch results.
type OrderOutcome struct {
	Symbol        string
	Quantity      int
	OrderID       string
	Status        OrderStatus
	Reason        string // only for StatusFailed
	ResolvedPrice decimal.NullDecimal
	EstimatedCost decimal.NullDecimal
	PriceSource   PriceSource
	Kind          OrderKind
	Trigger       *TriggerParams // only for KindConditional
	ProcessedAt   time.Time
}

// Succeeded reports whether the row counts as a success in the batch totals.
func (o OrderOutcome) Succeeded() bool {
	return o.Status == StatusSimulated || o.Status == StatusSubmitted
}

// StatusLabel renders the status the way the results table shows it,
// e.g. "Failed(insufficient funds)".
func (o OrderOutcome) StatusLabel() string {
	if o.Status == StatusFailed && o.Reason != "" {
		return string(StatusFailed) + "(" + o.Reason + ")"
	}
	return string(o.Status)
}

// KindLabel renders the order kind, including trigger/limit for GTT rows.
func (o OrderOutcome) KindLabel() string {
	if o.Kind == KindConditional && o.Trigger != nil {
		return "Conditional{trigger=" + o.Trigger.TriggerPrice.StringFixed(2) +
			", limit=" + o.Trigger.LimitPrice.StringFixed(2) + "}"
	}
	if o.Kind == KindConditional {
		return "Conditional"
	}
	return "Immediate"
}

// MarketOrderRequest is a plain market BUY for the full quantity.
type MarketOrderRequest struct {
	Symbol   string
	Exchange string
	Product  string
	Quantity int
}

// ConditionalOrderRequest is a single-trigger GTT that places a LIMIT BUY at
// LimitPrice once TriggerPrice is reached. LastPrice may be zero, in which
// case the broker adapter looks it up.
type ConditionalOrderRequest struct {
	Symbol       string
	Exchange     string
	Product      string
	Quantity     int
	TriggerPrice decimal.Decimal
	LimitPrice   decimal.Decimal
	LastPrice    decimal.Decimal
}

// BatchMode distinguishes dry runs from real submissions.
type BatchMode string

const (
	ModeDryRun BatchMode = "DRY_RUN"
	ModeLive   BatchMode = "LIVE"
)

// Batch is one dispatch run and its ordered outcomes.
type Batch struct {
	ID         string
	Mode       BatchMode
	Kind       OrderKind
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Succeeded  int
	Failed     int
	Outcomes   []OrderOutcome
}

// TotalEstimatedCost sums the estimated cost of successful rows.
func (b Batch) TotalEstimatedCost() decimal.Decimal {
	total := decimal.Zero
	for _, o := range b.Outcomes {
		if o.Succeeded() && o.EstimatedCost.Valid {
			total = total.Add(o.EstimatedCost.Decimal)
		}
	}
	return total
}
