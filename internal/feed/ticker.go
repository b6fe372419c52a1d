package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"exchlink/internal/model"
)

// SubscribeRequest is the control frame sent right after the connection opens.
type SubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// Sink consumes decoded ticker updates.
type Sink interface {
	Ticker(update model.TickerUpdate)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(update model.TickerUpdate)

func (f SinkFunc) Ticker(update model.TickerUpdate) { f(update) }

// TickerHandler subscribes to an all-market ticker channel and forwards
// every record of every frame to a Sink.
type TickerHandler struct {
	logger  *slog.Logger
	channel string
	id      int
	sink    Sink
}

// NewTickerHandler creates a handler subscribing to channel with request id.
func NewTickerHandler(logger *slog.Logger, channel string, id int, sink Sink) *TickerHandler {
	return &TickerHandler{logger: logger, channel: channel, id: id, sink: sink}
}

func (t *TickerHandler) OnOpen(s Sender) error {
	req := SubscribeRequest{Method: "SUBSCRIBE", Params: []string{t.channel}, ID: t.id}
	if err := s.WriteJSON(req); err != nil {
		return fmt.Errorf("send subscription: %w", err)
	}
	t.logger.Info("feed: subscription sent", "channel", t.channel, "id", t.id)
	return nil
}

func (t *TickerHandler) OnMessage(raw []byte) error {
	updates, err := ParseTickers(raw)
	if err != nil {
		return err
	}
	for _, u := range updates {
		t.sink.Ticker(u)
	}
	return nil
}

func (t *TickerHandler) OnError(err error) {
	t.logger.Error("feed: stream error", "channel", t.channel, "error", err)
}

func (t *TickerHandler) OnClose(code int, text string) {
	t.logger.Info("feed: stream closed", "channel", t.channel, "code", code, "text", text)
}

type tickerRecord struct {
	Symbol    *string `json:"s"`
	LastPrice *string `json:"c"`
}

type controlReply struct {
	ID     *int            `json:"id"`
	Result json.RawMessage `json:"result"`
	Code   *int            `json:"code"`
	Msg    string          `json:"msg"`
}

// ParseTickers decodes one ticker frame. A JSON array yields one update per
// element in order. A subscription reply yields no updates. Anything else,
// including an element without "s" or "c", rejects the whole frame.
func ParseTickers(raw []byte) ([]model.TickerUpdate, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty frame")
	}

	if trimmed[0] == '{' {
		var reply controlReply
		if err := json.Unmarshal(trimmed, &reply); err != nil {
			return nil, fmt.Errorf("decode control frame: %w", err)
		}
		if reply.Code != nil {
			return nil, fmt.Errorf("exchange error %d: %s", *reply.Code, reply.Msg)
		}
		if reply.ID != nil {
			return nil, nil
		}
		return nil, errors.New("unexpected object frame")
	}

	var records []tickerRecord
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("decode ticker frame: %w", err)
	}
	updates := make([]model.TickerUpdate, 0, len(records))
	for i, r := range records {
		if r.Symbol == nil || r.LastPrice == nil {
			return nil, fmt.Errorf("ticker record %d: missing \"s\" or \"c\"", i)
		}
		updates = append(updates, model.TickerUpdate{Symbol: *r.Symbol, LastPrice: *r.LastPrice})
	}
	return updates, nil
}
