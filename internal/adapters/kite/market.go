package kite

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alejandrodnm/kitebatch/internal/domain"
)

// GetBalance devuelve el snapshot de márgenes del segmento equity.
func (c *Client) GetBalance(ctx context.Context) (domain.Balance, error) {
	var raw marginsResponse
	if err := c.getJSON(ctx, c.generalLimiter, "/user/margins", nil, &raw); err != nil {
		return domain.Balance{}, fmt.Errorf("kite.GetBalance: %w", err)
	}
	return normalizeMargins(raw, time.Now()), nil
}

// GetQuote devuelve la cotización de symbol en el exchange del cliente.
// Si Kite no devuelve la clave pedida el símbolo no existe.
func (c *Client) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	key := quoteKey(c.exchange, symbol)

	var raw quoteResponse
	if err := c.getJSON(ctx, c.quoteLimiter, "/quote", url.Values{"i": {key}}, &raw); err != nil {
		return domain.Quote{}, fmt.Errorf("kite.GetQuote %s: %w", key, err)
	}

	entry, ok := raw[key]
	if !ok {
		return domain.Quote{}, fmt.Errorf("kite.GetQuote %s: %w", key, domain.ErrSymbolNotFound)
	}
	return mapQuote(symbol, entry), nil
}

// GetInstruments descarga el dump CSV de instrumentos de un exchange.
func (c *Client) GetInstruments(ctx context.Context, exchange string) ([]domain.Instrument, error) {
	if exchange == "" {
		exchange = c.exchange
	}
	exchange = strings.ToUpper(exchange)

	var list []domain.Instrument
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/instruments/" + url.PathEscape(exchange),
		limiter:  c.generalLimiter,
		attempts: maxRetries + 1,
	}, func(r io.Reader) error {
		parsed, err := parseInstruments(r)
		if err != nil {
			return err
		}
		list = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kite.GetInstruments %s: %w", exchange, err)
	}
	return list, nil
}
