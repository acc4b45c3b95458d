package kite

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// DTOs raw de la API de Kite Connect. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// envelope es el wrapper común de todas las respuestas JSON.
type envelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
}

// --- Session ---

// sessionResponse es el data de POST /session/token.
type sessionResponse struct {
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	AccessToken string `json:"access_token"`
}

// --- Margins ---

// marginsResponse es el data de GET /user/margins. Cualquier segmento puede
// faltar (cuentas sin commodity, por ejemplo).
type marginsResponse struct {
	Equity    *segmentMargins `json:"equity"`
	Commodity *segmentMargins `json:"commodity"`
}

type segmentMargins struct {
	Enabled   bool                `json:"enabled"`
	Net       decimal.NullDecimal `json:"net"`
	Available *availableMargins   `json:"available"`
	Utilised  *utilisedMargins    `json:"utilised"`
	// Algunas respuestas usan la grafía americana.
	Utilized *utilisedMargins `json:"utilized"`
}

type availableMargins struct {
	Cash        decimal.NullDecimal `json:"cash"`
	LiveBalance decimal.NullDecimal `json:"live_balance"`
	Collateral  decimal.NullDecimal `json:"collateral"`
}

type utilisedMargins struct {
	Debits decimal.NullDecimal `json:"debits"`
}

// --- Quotes ---

// quoteResponse es el data de GET /quote, indexado por "EXCHANGE:SYMBOL".
type quoteResponse map[string]quoteEntry

type quoteEntry struct {
	InstrumentToken int64           `json:"instrument_token"`
	LastPrice       decimal.Decimal `json:"last_price"`
	NetChange       decimal.Decimal `json:"net_change"`
	Volume          int64           `json:"volume"`
	OHLC            quoteOHLC       `json:"ohlc"`
}

type quoteOHLC struct {
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

// --- Orders ---

// orderResponse es el data de POST /orders/{variety}.
type orderResponse struct {
	OrderID string `json:"order_id"`
}

// gttResponse es el data de POST /gtt/triggers.
type gttResponse struct {
	TriggerID int64 `json:"trigger_id"`
}

// gttCondition se envía como JSON en el campo de formulario "condition".
// Los precios van como json.Number: Kite rechaza números entre comillas.
type gttCondition struct {
	Exchange      string        `json:"exchange"`
	TradingSymbol string        `json:"tradingsymbol"`
	TriggerValues []json.Number `json:"trigger_values"`
	LastPrice     json.Number   `json:"last_price"`
}

// gttOrder es un elemento del campo de formulario "orders".
type gttOrder struct {
	Exchange        string      `json:"exchange"`
	TradingSymbol   string      `json:"tradingsymbol"`
	TransactionType string      `json:"transaction_type"`
	Quantity        int         `json:"quantity"`
	OrderType       string      `json:"order_type"`
	Product         string      `json:"product"`
	Price           json.Number `json:"price"`
}
