package kite

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/alejandrodnm/kitebatch/internal/domain"
	"github.com/alejandrodnm/kitebatch/internal/ports"
)

const (
	transactionBuy = "BUY"
	orderMarket    = "MARKET"
	orderLimit     = "LIMIT"
	validityDay    = "DAY"
	gttSingle      = "single"
	productCNC     = "CNC"
)

var _ ports.Broker = (*Client)(nil)

// SubmitMarketOrder coloca una orden MARKET de compra por la cantidad completa.
// Un único intento: si falla, el llamador decide.
func (c *Client) SubmitMarketOrder(ctx context.Context, req domain.MarketOrderRequest) (string, error) {
	if req.Quantity < 1 {
		return "", fmt.Errorf("kite.SubmitMarketOrder: %w: quantity %d", domain.ErrInvalidInput, req.Quantity)
	}
	form := url.Values{
		"tradingsymbol":    {domain.NormalizeSymbol(req.Symbol)},
		"exchange":         {c.orExchange(req.Exchange)},
		"transaction_type": {transactionBuy},
		"order_type":       {orderMarket},
		"quantity":         {strconv.Itoa(req.Quantity)},
		"product":          {orProduct(req.Product)},
		"validity":         {validityDay},
	}

	var raw orderResponse
	if err := c.postForm(ctx, c.orderLimiter, "/orders/regular", form, &raw); err != nil {
		return "", fmt.Errorf("kite.SubmitMarketOrder %s: %w", req.Symbol, err)
	}
	if raw.OrderID == "" {
		return "", fmt.Errorf("kite.SubmitMarketOrder %s: response has no order id", req.Symbol)
	}

	slog.Debug("kite: market order placed", "symbol", req.Symbol, "quantity", req.Quantity, "order_id", raw.OrderID)
	return raw.OrderID, nil
}

// SubmitConditionalOrder registra un GTT single-leg que coloca un LIMIT BUY a
// LimitPrice cuando se toca TriggerPrice. Kite exige el last_price actual en
// la condición; si no viene en la request se consulta.
func (c *Client) SubmitConditionalOrder(ctx context.Context, req domain.ConditionalOrderRequest) (string, error) {
	if req.Quantity < 1 {
		return "", fmt.Errorf("kite.SubmitConditionalOrder: %w: quantity %d", domain.ErrInvalidInput, req.Quantity)
	}
	if !req.TriggerPrice.IsPositive() || !req.LimitPrice.IsPositive() {
		return "", fmt.Errorf("kite.SubmitConditionalOrder: %w: trigger and limit must be positive", domain.ErrInvalidInput)
	}

	symbol := domain.NormalizeSymbol(req.Symbol)
	exchange := c.orExchange(req.Exchange)

	last := req.LastPrice
	if !last.IsPositive() {
		q, err := c.GetQuote(ctx, symbol)
		if err != nil {
			return "", fmt.Errorf("kite.SubmitConditionalOrder: last price: %w", err)
		}
		last = q.LastPrice
	}

	condition, err := json.Marshal(gttCondition{
		Exchange:      exchange,
		TradingSymbol: symbol,
		TriggerValues: []json.Number{json.Number(priceNumber(req.TriggerPrice))},
		LastPrice:     json.Number(priceNumber(last)),
	})
	if err != nil {
		return "", fmt.Errorf("kite.SubmitConditionalOrder: marshal condition: %w", err)
	}
	orders, err := json.Marshal([]gttOrder{{
		Exchange:        exchange,
		TradingSymbol:   symbol,
		TransactionType: transactionBuy,
		Quantity:        req.Quantity,
		OrderType:       orderLimit,
		Product:         orProduct(req.Product),
		Price:           json.Number(priceNumber(req.LimitPrice)),
	}})
	if err != nil {
		return "", fmt.Errorf("kite.SubmitConditionalOrder: marshal orders: %w", err)
	}

	form := url.Values{
		"type":      {gttSingle},
		"condition": {string(condition)},
		"orders":    {string(orders)},
	}

	var raw gttResponse
	if err := c.postForm(ctx, c.orderLimiter, "/gtt/triggers", form, &raw); err != nil {
		return "", fmt.Errorf("kite.SubmitConditionalOrder %s: %w", symbol, err)
	}
	if raw.TriggerID == 0 {
		return "", fmt.Errorf("kite.SubmitConditionalOrder %s: response has no trigger id", symbol)
	}

	id := strconv.FormatInt(raw.TriggerID, 10)
	slog.Debug("kite: gtt registered", "symbol", symbol, "quantity", req.Quantity,
		"trigger", req.TriggerPrice.StringFixed(2), "limit", req.LimitPrice.StringFixed(2), "trigger_id", id)
	return id, nil
}

func (c *Client) orExchange(exchange string) string {
	if exchange == "" {
		return c.exchange
	}
	return exchange
}

func orProduct(product string) string {
	if product == "" {
		return productCNC
	}
	return product
}
