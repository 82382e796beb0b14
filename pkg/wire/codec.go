// Package wire maps the gateway's JSON frames onto the event and request
// model. The mapping is value preserving and side-effect free; everything
// about when frames arrive or where they go belongs to the session layer.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/govalues/decimal"

	"github.com/rnovak/ibwire/pkg/gateway"
)

type eventFrame struct {
	Type      string                     `json:"type"`
	RequestID *int64                     `json:"requestId,omitempty"`
	OrderID   *int64                     `json:"orderId,omitempty"`
	TickerID  *int64                     `json:"tickerId,omitempty"`
	Code      *int64                     `json:"code,omitempty"`
	Message   string                     `json:"message,omitempty"`
	Exception string                     `json:"exception,omitempty"`
	Time      int64                      `json:"time,omitempty"` // unix millis
	Fields    map[string]json.RawMessage `json:"fields,omitempty"`
}

type requestFrame struct {
	Type      string            `json:"type"`
	RequestID *int64            `json:"requestId,omitempty"`
	OrderID   *int64            `json:"orderId,omitempty"`
	TickerID  *int64            `json:"tickerId,omitempty"`
	Contract  *contractFrame    `json:"contract,omitempty"`
	Order     *orderFrame       `json:"order,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
}

type contractFrame struct {
	Symbol       string `json:"symbol"`
	SecurityType string `json:"securityType,omitempty"`
	Exchange     string `json:"exchange,omitempty"`
	Currency     string `json:"currency,omitempty"`
	Expiry       string `json:"expiry,omitempty"`
}

type orderFrame struct {
	Side       string `json:"side"`
	Kind       string `json:"kind"`
	Quantity   string `json:"quantity"`
	LimitPrice string `json:"limitPrice,omitempty"`
}

// DecodeEvent translates one inbound frame into a tagged event.
func DecodeEvent(data []byte) (gateway.Event, error) {
	var frame eventFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return gateway.Event{}, fmt.Errorf("unable to decode event frame: %w", err)
	}
	if frame.Type == "" {
		return gateway.Event{}, errors.New("event frame carries no type")
	}

	typ := gateway.EventTypeFromName(frame.Type)
	if typ == gateway.EventUnknown {
		return gateway.Event{}, fmt.Errorf("unknown event type %q", frame.Type)
	}

	ev := gateway.NewEvent(typ)
	if frame.RequestID != nil {
		ev.RequestID = *frame.RequestID
	}
	if frame.OrderID != nil {
		ev.OrderID = *frame.OrderID
	}
	if frame.TickerID != nil {
		ev.TickerID = *frame.TickerID
	}
	if frame.Code != nil {
		ev.Code = *frame.Code
	}
	ev.Message = frame.Message
	if frame.Exception != "" {
		ev.Err = errors.New(frame.Exception)
	}
	if frame.Time != 0 {
		ev.Time = time.UnixMilli(frame.Time).UTC()
	}

	for name, raw := range frame.Fields {
		ev = ev.WithField(name, decodeField(raw))
	}
	return ev, nil
}

// decodeField keeps strings and booleans as they are and parses anything
// numeric as a decimal, so price fields survive the trip without float
// rounding. Quoted numbers are treated as strings; the gateway does not
// quote numerics.
func decodeField(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return b
		}
	case 'n':
		return nil
	default:
		if d, err := decimal.Parse(string(raw)); err == nil {
			return d
		}
	}
	return string(raw)
}

// EncodeRequest translates one outbound request into a frame.
func EncodeRequest(req gateway.Request) ([]byte, error) {
	frame := requestFrame{
		Type:   req.Type.String(),
		Params: req.Params,
	}
	if req.RequestID != gateway.NoID {
		frame.RequestID = &req.RequestID
	}
	if req.OrderID != gateway.NoID {
		frame.OrderID = &req.OrderID
	}
	if req.TickerID != gateway.NoID {
		frame.TickerID = &req.TickerID
	}
	if req.Contract != nil {
		frame.Contract = &contractFrame{
			Symbol:       req.Contract.Symbol,
			SecurityType: req.Contract.SecurityType,
			Exchange:     req.Contract.Exchange,
			Currency:     req.Contract.Currency,
			Expiry:       req.Contract.Expiry,
		}
	}
	if req.Order != nil {
		frame.Order = &orderFrame{
			Side:     req.Order.Side.String(),
			Kind:     req.Order.Kind.String(),
			Quantity: req.Order.Quantity.String(),
		}
		if !req.Order.LimitPrice.IsZero() {
			frame.Order.LimitPrice = req.Order.LimitPrice.String()
		}
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("unable to encode request frame: %w", err)
	}
	return data, nil
}
