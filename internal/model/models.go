package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownExchange is returned when a routing key or ExchangeID matches no configured exchange.
	ErrUnknownExchange = errors.New("unknown exchange")
	// ErrInvalidSide is returned for an order side other than buy or sell.
	ErrInvalidSide = errors.New("invalid order side")
)

// TickerUpdate is the last traded price of one symbol, as received from the feed.
// LastPrice is kept as the exchange sent it.
type TickerUpdate struct {
	Symbol    string
	LastPrice string
}

// ExchangeID identifies an exchange the order gateway can route to.
type ExchangeID int

const (
	ExchangeA ExchangeID = iota + 1
	ExchangeB
)

var exchangeKeys = map[ExchangeID]string{
	ExchangeA: "exchange_a",
	ExchangeB: "exchange_b",
}

// Exchanges lists every known exchange in routing key order.
func Exchanges() []ExchangeID {
	return []ExchangeID{ExchangeA, ExchangeB}
}

// Key returns the routing key, e.g. "exchange_a".
func (id ExchangeID) Key() string {
	if key, ok := exchangeKeys[id]; ok {
		return key
	}
	return fmt.Sprintf("exchange(%d)", int(id))
}

func (id ExchangeID) String() string {
	return id.Key()
}

// Valid reports whether id is one of the known exchanges.
func (id ExchangeID) Valid() bool {
	_, ok := exchangeKeys[id]
	return ok
}

// ParseExchangeID maps a routing key to its ExchangeID. Keys match exactly.
func ParseExchangeID(key string) (ExchangeID, error) {
	for id, name := range exchangeKeys {
		if name == key {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownExchange, key)
}

// Credential holds the endpoint and keys of one exchange.
type Credential struct {
	Exchange  ExchangeID
	BaseURL   string
	APIKey    string
	SecretKey string
}

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide accepts "buy" or "sell" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSide, s)
	}
}

// OrderRequest is a limit order to be placed on an exchange.
type OrderRequest struct {
	Symbol   string
	Side     Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// Response is a decoded JSON object returned by an exchange. No schema is imposed on it.
type Response map[string]any
