package ports

import (
	"context"

	"github.com/alejandrodnm/kitebatch/internal/domain"
)

// QuoteProvider looks up the latest market quote for a symbol.
type QuoteProvider interface {
	// GetQuote returns domain.ErrSymbolNotFound when the exchange does not know
	// the symbol; any other error means the quote is unavailable.
	GetQuote(ctx context.Context, symbol string) (domain.Quote, error)
}

// OrderSubmitter places real orders. Every call is a single attempt.
type OrderSubmitter interface {
	// SubmitMarketOrder places a market BUY and returns the broker order ID.
	SubmitMarketOrder(ctx context.Context, req domain.MarketOrderRequest) (string, error)

	// SubmitConditionalOrder registers a single-trigger GTT and returns its ID.
	SubmitConditionalOrder(ctx context.Context, req domain.ConditionalOrderRequest) (string, error)
}

// AccountProvider reads the account's cash snapshot.
type AccountProvider interface {
	GetBalance(ctx context.Context) (domain.Balance, error)
}

// InstrumentProvider lists the tradeable instruments of an exchange.
type InstrumentProvider interface {
	GetInstruments(ctx context.Context, exchange string) ([]domain.Instrument, error)
}

// Broker is everything a trading session needs from the brokerage.
type Broker interface {
	QuoteProvider
	OrderSubmitter
	AccountProvider
	InstrumentProvider
}
