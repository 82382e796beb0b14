package gateway

import (
	"time"

	"github.com/govalues/decimal"
)

// EventType identifies the kind of a decoded gateway event. The vocabulary
// is fixed by the protocol; the translation layer maps native callbacks onto
// it one to one.
type EventType uint8

const (
	EventUnknown EventType = iota
	EventCurrentTime
	EventError
	EventConnectionClosed
	EventTick
	EventTickSnapshotEnd
	EventOrderStatus
	EventOpenOrder
	EventOpenOrderEnd
	EventContractDetails
	EventContractDetailsEnd
	EventExecutionDetails
	EventExecutionDetailsEnd
	EventAccountValue
	EventPortfolioUpdate
	EventAccountDownloadEnd
	EventPriceBar
	EventPriceBarComplete
	EventScanData
	EventScanEnd
	EventNextValidID
	EventManagedAccounts
)

var eventTypeNames = map[EventType]string{
	EventUnknown:             "unknown",
	EventCurrentTime:         "current-time",
	EventError:               "error",
	EventConnectionClosed:    "connection-closed",
	EventTick:                "tick",
	EventTickSnapshotEnd:     "tick-snapshot-end",
	EventOrderStatus:         "order-status",
	EventOpenOrder:           "open-order",
	EventOpenOrderEnd:        "open-order-end",
	EventContractDetails:     "contract-details",
	EventContractDetailsEnd:  "contract-details-end",
	EventExecutionDetails:    "execution-details",
	EventExecutionDetailsEnd: "execution-details-end",
	EventAccountValue:        "account-value",
	EventPortfolioUpdate:     "portfolio-update",
	EventAccountDownloadEnd:  "account-download-end",
	EventPriceBar:            "price-bar",
	EventPriceBarComplete:    "price-bar-complete",
	EventScanData:            "scan-data",
	EventScanEnd:             "scan-end",
	EventNextValidID:         "next-valid-id",
	EventManagedAccounts:     "managed-accounts",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// EventTypeFromName is the inverse of EventType.String. Unrecognized names
// map to EventUnknown.
func EventTypeFromName(name string) EventType {
	for t, n := range eventTypeNames {
		if n == name {
			return t
		}
	}
	return EventUnknown
}

const (
	// NoID marks an absent correlation id. Gateway ids are non-negative.
	NoID int64 = -1
	// NoCode marks an absent numeric error code.
	NoCode int64 = -1
)

// Event is one decoded unit of information pushed from the transport.
// Correlation is done by matching id fields at the listener, never by the
// bus; an event carries no reference back to any subscriber.
type Event struct {
	Type      EventType
	RequestID int64
	OrderID   int64
	TickerID  int64
	Code      int64
	Message   string
	Err       error
	Time      time.Time
	Fields    map[string]any
}

// NewEvent returns an event of the given type with all correlation ids and
// the error code marked absent. Always build events through it, the zero
// value of Event claims id 0 on every namespace.
func NewEvent(t EventType) Event {
	return Event{
		Type:      t,
		RequestID: NoID,
		OrderID:   NoID,
		TickerID:  NoID,
		Code:      NoCode,
	}
}

// CorrelationID returns whichever id namespace the event carries, preferring
// request over order over ticker, or NoID when none is present.
func (e Event) CorrelationID() int64 {
	if e.RequestID != NoID {
		return e.RequestID
	}
	if e.OrderID != NoID {
		return e.OrderID
	}
	if e.TickerID != NoID {
		return e.TickerID
	}
	return NoID
}

func (e Event) WithRequestID(id int64) Event {
	e.RequestID = id
	return e
}

func (e Event) WithOrderID(id int64) Event {
	e.OrderID = id
	return e
}

func (e Event) WithTickerID(id int64) Event {
	e.TickerID = id
	return e
}

func (e Event) WithCode(code int64) Event {
	e.Code = code
	return e
}

func (e Event) WithMessage(msg string) Event {
	e.Message = msg
	return e
}

func (e Event) WithError(err error) Event {
	e.Err = err
	return e
}

func (e Event) WithTime(t time.Time) Event {
	e.Time = t
	return e
}

// WithField copies the field map before inserting, published events are
// shared between subscribers and must stay immutable.
func (e Event) WithField(name string, value any) Event {
	fields := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields[name] = value
	e.Fields = fields
	return e
}

// Field returns a raw field value.
func (e Event) Field(name string) (any, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// Str returns a string field, or "" if absent or differently typed.
func (e Event) Str(name string) (string, bool) {
	v, ok := e.Fields[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Decimal returns a decimal field, or zero if absent or differently typed.
func (e Event) Decimal(name string) (decimal.Decimal, bool) {
	v, ok := e.Fields[name]
	if !ok {
		return decimal.Decimal{}, false
	}
	d, ok := v.(decimal.Decimal)
	return d, ok
}
