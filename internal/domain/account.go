package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the normalized equity margin snapshot of the account.
type Balance struct {
	AvailableCash decimal.NullDecimal
	UsedMargin    decimal.NullDecimal
	FetchedAt     time.Time
}

// Budget returns the cash available for a batch, zero when unknown or negative.
func (b Balance) Budget() decimal.Decimal {
	if !b.AvailableCash.Valid || b.AvailableCash.Decimal.IsNegative() {
		return decimal.Zero
	}
	return b.AvailableCash.Decimal
}

// Instrument is one tradeable symbol on an exchange.
type Instrument struct {
	Symbol   string
	Name     string
	ISIN     string
	Exchange string
	Token    int64
	LotSize  int
	TickSize decimal.Decimal
}

// InstrumentIndex is a read-only symbol → instrument snapshot.
type InstrumentIndex map[string]Instrument

// NewInstrumentIndex indexes instruments by normalized symbol.
func NewInstrumentIndex(list []Instrument) InstrumentIndex {
	idx := make(InstrumentIndex, len(list))
	for _, in := range list {
		idx[NormalizeSymbol(in.Symbol)] = in
	}
	return idx
}

// Contains reports whether the symbol is listed. A nil index knows nothing,
// so callers must check Len before treating false as "not found".
func (idx InstrumentIndex) Contains(symbol string) bool {
	_, ok := idx[NormalizeSymbol(symbol)]
	return ok
}

// Len returns the number of indexed instruments.
func (idx InstrumentIndex) Len() int { return len(idx) }

// OHLC is the day's open/high/low/close.
type OHLC struct {
	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal
}

// Quote is a typed market quote for one symbol.
type Quote struct {
	Symbol    string
	LastPrice decimal.Decimal
	Change    decimal.Decimal
	Volume    int64
	OHLC      OHLC
}
