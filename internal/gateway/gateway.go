package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"exchlink/internal/model"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

var (
	// ErrUnknownExchange is returned when an ExchangeID has no configured endpoint.
	ErrUnknownExchange = model.ErrUnknownExchange
	// ErrHTTPRequest is returned when the request could not complete or the exchange rejected it.
	ErrHTTPRequest = errors.New("exchange request failed")
	// ErrDecodeResponse is returned when the response body is not a JSON object.
	ErrDecodeResponse = errors.New("decode exchange response")
	// ErrInvalidOrder is returned for an order that cannot be sent.
	ErrInvalidOrder = errors.New("invalid order")
)

// StatusError is returned for a non-2xx response. It matches ErrHTTPRequest.
// Response holds the decoded body when the exchange answered with a JSON object.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
	Response   model.Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, string(e.Body))
}

func (e *StatusError) Unwrap() error { return ErrHTTPRequest }

// Gateway sends order requests to the exchange picked by an ExchangeID.
// It keeps no state between calls and is safe for concurrent use.
type Gateway struct {
	logger    *slog.Logger
	endpoints map[model.ExchangeID]*endpoint
	now       func() time.Time
}

// PlaceOrder posts req to <baseURL>/order/place and returns the decoded response.
// A non-2xx answer with a JSON body is returned decoded together with a *StatusError.
func (g *Gateway) PlaceOrder(ctx context.Context, exchange model.ExchangeID, req model.OrderRequest) (model.Response, error) {
	ep, err := g.resolve(exchange)
	if err != nil {
		return nil, err
	}
	if err := validateOrder(req); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("symbol", req.Symbol)
	form.Set("side", string(req.Side))
	form.Set("quantity", req.Quantity.String())
	form.Set("price", req.Price.String())

	resp, err := g.do(ctx, ep, http.MethodPost, "/order/place", form)
	if err != nil {
		return resp, err
	}
	g.logger.Info("gateway: order placed",
		"exchange", exchange.Key(),
		"symbol", req.Symbol,
		"side", req.Side,
		"quantity", req.Quantity.String(),
		"price", req.Price.String(),
	)
	return resp, nil
}

// CancelOrder deletes <baseURL>/order/<orderID>/cancel and returns the decoded response.
func (g *Gateway) CancelOrder(ctx context.Context, exchange model.ExchangeID, orderID string) (model.Response, error) {
	ep, err := g.resolve(exchange)
	if err != nil {
		return nil, err
	}
	if orderID == "" {
		return nil, fmt.Errorf("%w: empty order id", ErrInvalidOrder)
	}

	resp, err := g.do(ctx, ep, http.MethodDelete, "/order/"+url.PathEscape(orderID)+"/cancel", url.Values{})
	if err != nil {
		return resp, err
	}
	g.logger.Info("gateway: order cancelled", "exchange", exchange.Key(), "orderID", orderID)
	return resp, nil
}

func (g *Gateway) resolve(exchange model.ExchangeID) (*endpoint, error) {
	ep, ok := g.endpoints[exchange]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExchange, exchange)
	}
	return ep, nil
}

func (g *Gateway) do(ctx context.Context, ep *endpoint, method, path string, form url.Values) (model.Response, error) {
	target := ep.cred.BaseURL + path

	if ep.limiter != nil {
		if err := ep.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s %s: rate limit wait: %w", ErrHTTPRequest, method, target, err)
		}
	}

	ep.authenticate(form, g.now())

	resp, err := ep.client.R().
		SetContext(ctx).
		SetFormDataFromValues(form).
		Execute(method, target)
	if err != nil {
		g.logger.Error("gateway: request failed", "exchange", ep.cred.Exchange.Key(), "method", method, "url", target, "error", err)
		return nil, fmt.Errorf("%w: %s %s: %w", ErrHTTPRequest, method, target, err)
	}

	if resp.IsError() {
		g.logger.Warn("gateway: exchange returned error status",
			"exchange", ep.cred.Exchange.Key(),
			"method", method,
			"url", target,
			"status", resp.StatusCode(),
		)
		statusErr := &StatusError{Method: method, URL: target, StatusCode: resp.StatusCode(), Body: resp.Body()}
		if decoded, err := decodeResponse(resp.Body()); err == nil {
			statusErr.Response = decoded
		}
		return statusErr.Response, statusErr
	}

	return decodeResponse(resp.Body())
}

func decodeResponse(body []byte) (model.Response, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var out model.Response
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %w [raw_body: %s]", ErrDecodeResponse, err, string(body))
	}
	if out == nil {
		return nil, fmt.Errorf("%w: body is not a JSON object [raw_body: %s]", ErrDecodeResponse, string(body))
	}
	return out, nil
}

func validateOrder(req model.OrderRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidOrder)
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return fmt.Errorf("%w: %w: %q", ErrInvalidOrder, model.ErrInvalidSide, req.Side)
	}
	if !req.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalidOrder, req.Quantity)
	}
	if !req.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive, got %s", ErrInvalidOrder, req.Price)
	}
	return nil
}

// rateLimiter returns nil when perSecond is zero.
func rateLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func newRestyClient(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
}
