package kite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/kitebatch/internal/domain"
)

const (
	DefaultBaseURL  = "https://api.kite.trade"
	DefaultExchange = "NSE"
	apiVersion      = "3"

	// Rate limits al ~80% de los documentados por Kite Connect.
	// /quote: 1 req/s (no hay margen, se respeta tal cual)
	quoteRatePerSec = 1
	// /orders y /gtt: 10 req/s → 8/s
	orderRatePerSec = 8
	// resto de endpoints: 10 req/s → 8/s
	generalRatePerSec = 8

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client es el HTTP client de Kite Connect con rate limiting y retries.
// Implementa ports.Broker.
type Client struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	apiSecret string
	exchange  string

	mu          sync.RWMutex
	accessToken string

	quoteLimiter   *rate.Limiter
	orderLimiter   *rate.Limiter
	generalLimiter *rate.Limiter
}

// NewClient crea un Client. Si baseURL está vacío usa el endpoint de producción.
// accessToken puede estar vacío si se va a llamar a GenerateSession.
func NewClient(baseURL, apiKey, apiSecret, accessToken string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:           &http.Client{Timeout: 15 * time.Second},
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		apiSecret:      apiSecret,
		exchange:       DefaultExchange,
		accessToken:    accessToken,
		quoteLimiter:   rate.NewLimiter(quoteRatePerSec, 1),
		orderLimiter:   rate.NewLimiter(orderRatePerSec, 2),
		generalLimiter: rate.NewLimiter(generalRatePerSec, 4),
	}
}

// WithExchange sets the exchange used for quote lookups.
func (c *Client) WithExchange(exchange string) *Client {
	if exchange != "" {
		c.exchange = strings.ToUpper(exchange)
	}
	return c
}

// SetAccessToken replaces the session token used on authenticated calls.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// request describes one API call.
type request struct {
	method   string
	path     string
	query    url.Values
	form     url.Values
	limiter  *rate.Limiter
	attempts int  // 1 = sin retries (órdenes)
	noAuth   bool // /session/token
}

// getJSON hace un GET con retries y decodifica el campo data del envelope.
func (c *Client) getJSON(ctx context.Context, limiter *rate.Limiter, path string, query url.Values, out any) error {
	return c.do(ctx, request{
		method: http.MethodGet, path: path, query: query,
		limiter: limiter, attempts: maxRetries + 1,
	}, envelopeDecoder(out))
}

// postForm hace un POST form-encoded en un solo intento: una orden nunca se reenvía.
func (c *Client) postForm(ctx context.Context, limiter *rate.Limiter, path string, form url.Values, out any) error {
	return c.do(ctx, request{
		method: http.MethodPost, path: path, form: form,
		limiter: limiter, attempts: 1,
	}, envelopeDecoder(out))
}

// do ejecuta la request con backoff exponencial en errores de red, 429 y 5xx.
func (c *Client) do(ctx context.Context, req request, decode func(io.Reader) error) error {
	if req.attempts < 1 {
		req.attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < req.attempts; attempt++ {
		if attempt > 0 {
			c.sleep(ctx, attempt-1)
		}
		if err := req.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := c.send(ctx, req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", domain.ErrBrokerUnavailable, err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = readAPIError(resp)
			resp.Body.Close()
			slog.Warn("kite: retryable response", "path", req.path, "status", resp.StatusCode, "attempt", attempt+1)
			continue
		}

		if resp.StatusCode >= 400 {
			err := readAPIError(resp)
			resp.Body.Close()
			return err
		}

		err = decode(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	if req.attempts > 1 {
		return fmt.Errorf("request failed after %d attempts: %w", req.attempts, lastErr)
	}
	return lastErr
}

func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.form != nil {
		body = strings.NewReader(req.form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("X-Kite-Version", apiVersion)
	if req.form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if !req.noAuth {
		httpReq.Header.Set("Authorization", "token "+c.apiKey+":"+c.token())
	}
	return c.http.Do(httpReq)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// envelopeDecoder desempaqueta {"status":"success","data":...} en out.
func envelopeDecoder(out any) func(io.Reader) error {
	return func(r io.Reader) error {
		var env envelope
		if err := json.NewDecoder(r).Decode(&env); err != nil {
			return err
		}
		if env.Status != "" && env.Status != "success" {
			return &APIError{ErrorType: env.ErrorType, Message: env.Message}
		}
		if out == nil || len(env.Data) == 0 {
			return nil
		}
		return json.Unmarshal(env.Data, out)
	}
}

// APIError is a non-success Kite response.
type APIError struct {
	StatusCode int
	ErrorType  string
	Message    string
}

func (e *APIError) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("kite %d %s: %s", e.StatusCode, e.ErrorType, e.Message)
	}
	return fmt.Sprintf("kite %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the Kite exception type onto the domain error taxonomy.
func (e *APIError) Unwrap() error {
	switch e.ErrorType {
	case "PermissionException":
		return domain.ErrPermissionDenied
	case "TokenException":
		return domain.ErrTokenExpired
	case "InputException", "OrderException", "MarginException":
		return domain.ErrInvalidInput
	case "NetworkException", "DataException":
		return domain.ErrBrokerUnavailable
	}
	switch {
	case e.StatusCode == http.StatusForbidden:
		return domain.ErrPermissionDenied
	case e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500:
		return domain.ErrBrokerUnavailable
	case e.StatusCode >= 400:
		return domain.ErrInvalidInput
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && (env.Message != "" || env.ErrorType != "") {
		apiErr.ErrorType = env.ErrorType
		apiErr.Message = env.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// IsAPIError reports whether err carries a Kite API error and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
