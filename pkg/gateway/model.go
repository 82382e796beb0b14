package gateway

import (
	"time"

	"github.com/govalues/decimal"
)

// Contract identifies a tradable instrument. Only the fields the gateway
// needs to resolve an instrument are carried; the full contract schema is
// the translation layer's concern.
type Contract struct {
	Symbol       string
	SecurityType string
	Exchange     string
	Currency     string
	Expiry       string
}

type OrderSide uint8

const (
	OrderSideBuy OrderSide = iota
	OrderSideSell
)

func (s OrderSide) String() string {
	if s == OrderSideSell {
		return "sell"
	}
	return "buy"
}

type OrderKind uint8

const (
	OrderKindMarket OrderKind = iota
	OrderKindLimit
)

func (k OrderKind) String() string {
	if k == OrderKindLimit {
		return "limit"
	}
	return "market"
}

// OrderSpec describes an order to be placed.
type OrderSpec struct {
	Side       OrderSide
	Kind       OrderKind
	Quantity   decimal.Decimal
	LimitPrice decimal.Decimal
}

// Order status values reported by order-status events.
const (
	StatusPendingSubmit = "pending-submit"
	StatusPreSubmitted  = "pre-submitted"
	StatusSubmitted     = "submitted"
	StatusFilled        = "filled"
	StatusCancelled     = "cancelled"
	StatusInactive      = "inactive"
)

// Well-known event field names.
const (
	FieldStatus = "status"
	FieldField  = "field"
	FieldValue  = "value"
	FieldBid    = "bid"
	FieldAsk    = "ask"
	FieldOpen   = "open"
	FieldHigh   = "high"
	FieldLow    = "low"
	FieldClose  = "close"
	FieldVolume = "volume"
)

// Bar is one historical price bar.
type Bar struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// BarFromEvent extracts a Bar from a price-bar event.
func BarFromEvent(ev Event) Bar {
	bar := Bar{Time: ev.Time}
	bar.Open, _ = ev.Decimal(FieldOpen)
	bar.High, _ = ev.Decimal(FieldHigh)
	bar.Low, _ = ev.Decimal(FieldLow)
	bar.Close, _ = ev.Decimal(FieldClose)
	bar.Volume, _ = ev.Decimal(FieldVolume)
	return bar
}
