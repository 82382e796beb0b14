package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/govalues/decimal"
	"go.uber.org/zap"
)

// Client exposes the gateway's multiplexed callback protocol as blocking
// calls. One physical session carries any number of unrelated request flows
// at once; each operation here subscribes to the shared event stream,
// issues its request, and waits for its own termination, so many of them
// may be in flight concurrently.
type Client struct {
	bus    *Bus
	bridge *Bridge
	ids    *Allocator
	sender Sender
	logger *zap.Logger
}

func NewClient(sender Sender, logger *zap.Logger) *Client {
	bus := NewBus()
	return &Client{
		bus:    bus,
		bridge: NewBridge(bus, logger),
		ids:    NewAllocator(),
		sender: sender,
		logger: logger,
	}
}

// Publish is the transport's entry point, called once per decoded
// callback. Next-valid-id notices seed the order id counter before fan-out
// so no allocation racing the notice can collide with a server-assigned id.
func (c *Client) Publish(ev Event) {
	if ev.Type == EventNextValidID && ev.OrderID != NoID {
		c.ids.SyncOrderID(ev.OrderID)
	}
	c.bus.Publish(ev)
}

// Subscribe attaches a raw handler to the event stream, for callers
// building custom waits.
func (c *Client) Subscribe(handler Handler) *Subscription {
	return c.bus.Subscribe(handler)
}

func (c *Client) Bus() *Bus {
	return c.bus
}

func (c *Client) NextTickerID() int64  { return c.ids.NextTickerID() }
func (c *Client) NextOrderID() int64   { return c.ids.NextOrderID() }
func (c *Client) NextRequestID() int64 { return c.ids.NextRequestID() }

// RunSync runs one scoped synchronous operation: subscribe, send req,
// accumulate events passing match, resolve on end, unsubscribe. Callers
// compose custom operations from it together with the IsEnd family.
func (c *Client) RunSync(ctx context.Context, req Request, match MatchFunc, end EndFunc) (Result, error) {
	return c.bridge.Run(ctx, func() error { return c.sender.Send(req) }, match, end)
}

// CurrentTime asks the gateway for its wall clock. The first current-time
// event resolves the wait.
func (c *Client) CurrentTime(ctx context.Context) (time.Time, error) {
	res, err := c.RunSync(ctx, NewRequest(RequestCurrentTime),
		func(ev Event) bool {
			return ev.Type == EventCurrentTime
		},
		func(ev Event) bool {
			return ev.Type == EventCurrentTime || IsErrorEnd(NoID, ev)
		})
	if err != nil {
		return time.Time{}, err
	}
	if err := res.Err(); err != nil {
		return time.Time{}, err
	}
	if len(res.Events) == 0 {
		return time.Time{}, errors.New("wait ended without a current-time event")
	}
	return res.Events[0].Time, nil
}

// ContractDetails resolves a contract description to the full definitions
// the gateway knows for it, in arrival order.
func (c *Client) ContractDetails(ctx context.Context, contract Contract) ([]Event, error) {
	reqID := c.ids.NextRequestID()

	req := NewRequest(RequestContractDetails)
	req.RequestID = reqID
	req.Contract = &contract

	res, err := c.RunSync(ctx, req,
		func(ev Event) bool {
			return ev.Type == EventContractDetails && ev.RequestID == reqID
		},
		func(ev Event) bool {
			return IsEnd(reqID, ev)
		})
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return res.Events, nil
}

// Snapshot requests a one-shot market data snapshot and folds the tick
// stream into a field-name keyed quote.
func (c *Client) Snapshot(ctx context.Context, contract Contract) (map[string]decimal.Decimal, error) {
	tickerID := c.ids.NextTickerID()

	req := NewRequest(RequestMarketDataSnapshot)
	req.TickerID = tickerID
	req.Contract = &contract

	res, err := c.RunSync(ctx, req,
		func(ev Event) bool {
			return ev.Type == EventTick && ev.TickerID == tickerID
		},
		func(ev Event) bool {
			return IsEnd(tickerID, ev)
		})
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}

	quote := make(map[string]decimal.Decimal, len(res.Events))
	for _, ev := range res.Events {
		name, ok := ev.Str(FieldField)
		if !ok {
			continue
		}
		value, ok := ev.Decimal(FieldValue)
		if !ok {
			continue
		}
		quote[name] = value
	}
	return quote, nil
}

// OrderResult carries everything observed while an order worked: every
// status and open-order event for the order id in arrival order, the
// terminal event, and whether the order was parked because the market is
// closed.
type OrderResult struct {
	OrderID      int64
	Events       []Event
	Terminal     Event
	MarketClosed bool
}

// PlaceOrder submits an order and waits for it to reach a terminal state.
// Error 399 means the order was accepted but the market is closed; a
// pre-submitted status after that is the best attainable state before
// reopening and resolves the wait.
func (c *Client) PlaceOrder(ctx context.Context, contract Contract, order OrderSpec) (OrderResult, error) {
	orderID := c.ids.NextOrderID()

	req := NewRequest(RequestPlaceOrder)
	req.OrderID = orderID
	req.Contract = &contract
	req.Order = &order

	var marketClosed atomic.Bool

	res, err := c.bridge.Run(ctx,
		func() error { return c.sender.Send(req) },
		func(ev Event) bool {
			switch ev.Type {
			case EventOrderStatus, EventOpenOrder, EventError:
				return ev.OrderID == orderID
			}
			return false
		},
		func(ev Event) bool {
			if ev.Type == EventError && ev.OrderID == orderID && ev.Code == CodeMarketClosed {
				marketClosed.Store(true)
				return false
			}
			if ev.Type == EventOrderStatus && ev.OrderID == orderID {
				status, _ := ev.Str(FieldStatus)
				switch status {
				case StatusFilled, StatusCancelled, StatusInactive:
					return true
				case StatusPreSubmitted:
					return marketClosed.Load()
				}
			}
			return IsErrorEnd(orderID, ev)
		})
	if err != nil {
		return OrderResult{}, err
	}

	out := OrderResult{
		OrderID:      orderID,
		Events:       res.Events,
		Terminal:     res.Terminal,
		MarketClosed: marketClosed.Load(),
	}
	return out, res.Err()
}

// HistoricalData fetches price bars for a contract. Params are passed to
// the gateway untouched (duration, bar size, what to show).
func (c *Client) HistoricalData(ctx context.Context, contract Contract, params map[string]string) ([]Bar, error) {
	reqID := c.ids.NextRequestID()

	req := NewRequest(RequestHistoricalData)
	req.RequestID = reqID
	req.Contract = &contract
	req.Params = params

	res, err := c.RunSync(ctx, req,
		func(ev Event) bool {
			return ev.Type == EventPriceBar && ev.RequestID == reqID
		},
		func(ev Event) bool {
			return IsEnd(reqID, ev)
		})
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}

	bars := make([]Bar, 0, len(res.Events))
	for _, ev := range res.Events {
		bars = append(bars, BarFromEvent(ev))
	}
	return bars, nil
}

// OpenOrders requests every open order on the session. The wait is
// unscoped, so it must not run concurrently with another open-order
// download; the end marker carries no id to tell them apart.
func (c *Client) OpenOrders(ctx context.Context) ([]Event, error) {
	res, err := c.RunSync(ctx, NewRequest(RequestOpenOrders),
		func(ev Event) bool {
			return ev.Type == EventOpenOrder || ev.Type == EventOrderStatus
		},
		func(ev Event) bool {
			return ev.Type == EventOpenOrderEnd || IsErrorEnd(NoID, ev)
		})
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return res.Events, nil
}

// Executions fetches execution reports matching the gateway-side filter
// params.
func (c *Client) Executions(ctx context.Context, params map[string]string) ([]Event, error) {
	reqID := c.ids.NextRequestID()

	req := NewRequest(RequestExecutions)
	req.RequestID = reqID
	req.Params = params

	res, err := c.RunSync(ctx, req,
		func(ev Event) bool {
			return ev.Type == EventExecutionDetails && ev.RequestID == reqID
		},
		func(ev Event) bool {
			return IsEnd(reqID, ev)
		})
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return res.Events, nil
}

// AccountSnapshot subscribes to account updates and collects one full
// download, resolving on the account-download-end marker. Unscoped for the
// same reason as OpenOrders.
func (c *Client) AccountSnapshot(ctx context.Context, account string) ([]Event, error) {
	req := NewRequest(RequestAccountUpdates)
	if account != "" {
		req.Params = map[string]string{"account": account}
	}

	res, err := c.RunSync(ctx, req,
		func(ev Event) bool {
			return ev.Type == EventAccountValue || ev.Type == EventPortfolioUpdate
		},
		func(ev Event) bool {
			return ev.Type == EventAccountDownloadEnd || IsErrorEnd(NoID, ev)
		})
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return res.Events, nil
}
