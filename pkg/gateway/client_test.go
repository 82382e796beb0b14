package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/govalues/decimal"
)

// scriptSender plays the gateway side: every request is answered by the
// scripted events, published asynchronously the way a live transport would.
type scriptSender struct {
	mu     sync.Mutex
	client *Client
	script func(Request) []Event
	sent   []Request
}

func (s *scriptSender) Send(req Request) error {
	s.mu.Lock()
	s.sent = append(s.sent, req)
	s.mu.Unlock()

	events := s.script(req)
	go func() {
		for _, ev := range events {
			s.client.Publish(ev)
		}
	}()
	return nil
}

func (s *scriptSender) lastRequest() Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

func newScriptedClient(script func(Request) []Event) (*Client, *scriptSender) {
	sender := &scriptSender{script: script}
	client := NewClient(sender, nil)
	sender.client = client
	return client, sender
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.Parse(s)
	if err != nil {
		t.Fatalf("Parse %q failed: %v", s, err)
	}
	return d
}

func TestClient_CurrentTime(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	client, _ := newScriptedClient(func(req Request) []Event {
		return []Event{NewEvent(EventCurrentTime).WithTime(now)}
	})

	got, err := client.CurrentTime(context.Background())
	if err != nil {
		t.Fatalf("CurrentTime failed: %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("Expected %v, got %v", now, got)
	}
}

func TestClient_Snapshot(t *testing.T) {
	client, sender := newScriptedClient(func(req Request) []Event {
		id := req.TickerID
		return []Event{
			NewEvent(EventTick).WithTickerID(id).
				WithField(FieldField, "last").WithField(FieldValue, decimal.MustParse("101.5")),
			NewEvent(EventTick).WithTickerID(id).
				WithField(FieldField, "bid").WithField(FieldValue, decimal.MustParse("101.4")),
			NewEvent(EventTickSnapshotEnd).WithRequestID(id),
		}
	})

	quote, err := client.Snapshot(context.Background(), Contract{Symbol: "AAPL", SecurityType: "STK"})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if len(quote) != 2 {
		t.Fatalf("Expected 2 quote fields, got %d", len(quote))
	}
	if quote["last"].Cmp(mustDecimal(t, "101.5")) != 0 {
		t.Errorf("Expected last 101.5, got %s", quote["last"])
	}
	if quote["bid"].Cmp(mustDecimal(t, "101.4")) != 0 {
		t.Errorf("Expected bid 101.4, got %s", quote["bid"])
	}

	if req := sender.lastRequest(); req.Type != RequestMarketDataSnapshot || req.Contract.Symbol != "AAPL" {
		t.Errorf("Unexpected outbound request: %+v", req)
	}
}

func TestClient_ContractDetails(t *testing.T) {
	client, _ := newScriptedClient(func(req Request) []Event {
		id := req.RequestID
		return []Event{
			NewEvent(EventContractDetails).WithRequestID(id).WithField("value", "A"),
			NewEvent(EventContractDetails).WithRequestID(id).WithField("value", "B"),
			NewEvent(EventContractDetailsEnd).WithRequestID(id),
		}
	})

	details, err := client.ContractDetails(context.Background(), Contract{Symbol: "ES"})
	if err != nil {
		t.Fatalf("ContractDetails failed: %v", err)
	}
	if len(details) != 2 {
		t.Fatalf("Expected 2 detail events, got %d", len(details))
	}
	a, _ := details[0].Str("value")
	b, _ := details[1].Str("value")
	if a != "A" || b != "B" {
		t.Errorf("Expected ordered [A B], got [%s %s]", a, b)
	}
}

func TestClient_ContractDetails_NoSecurityDefinition(t *testing.T) {
	client, _ := newScriptedClient(func(req Request) []Event {
		return []Event{
			NewEvent(EventError).WithRequestID(req.RequestID).
				WithCode(200).WithMessage("No security definition has been found"),
		}
	})

	_, err := client.ContractDetails(context.Background(), Contract{Symbol: "NOPE"})
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("Expected *GatewayError, got %v", err)
	}
	if gwErr.Code != 200 || gwErr.ConnLevel() {
		t.Errorf("Expected request-level error 200, got %+v", gwErr)
	}
}

func TestClient_PlaceOrder_Filled(t *testing.T) {
	client, _ := newScriptedClient(func(req Request) []Event {
		id := req.OrderID
		return []Event{
			NewEvent(EventOpenOrder).WithOrderID(id),
			NewEvent(EventOrderStatus).WithOrderID(id).WithField(FieldStatus, StatusSubmitted),
			NewEvent(EventOrderStatus).WithOrderID(id).WithField(FieldStatus, StatusFilled),
		}
	})

	qty, _ := decimal.New(100, 0)
	res, err := client.PlaceOrder(context.Background(),
		Contract{Symbol: "AAPL"},
		OrderSpec{Side: OrderSideBuy, Kind: OrderKindMarket, Quantity: qty})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	if res.MarketClosed {
		t.Error("Unexpected market-closed flag")
	}
	if status, _ := res.Terminal.Str(FieldStatus); status != StatusFilled {
		t.Errorf("Expected filled terminal, got %s", status)
	}
	if len(res.Events) != 3 {
		t.Errorf("Expected 3 accumulated events, got %d", len(res.Events))
	}
}

func TestClient_PlaceOrder_MarketClosed(t *testing.T) {
	client, _ := newScriptedClient(func(req Request) []Event {
		id := req.OrderID
		return []Event{
			NewEvent(EventError).WithOrderID(id).WithCode(CodeMarketClosed).
				WithMessage("Order will be processed when the market reopens"),
			NewEvent(EventOrderStatus).WithOrderID(id).WithField(FieldStatus, StatusPreSubmitted),
		}
	})

	qty, _ := decimal.New(1, 0)
	res, err := client.PlaceOrder(context.Background(),
		Contract{Symbol: "ES"},
		OrderSpec{Side: OrderSideSell, Kind: OrderKindMarket, Quantity: qty})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	if !res.MarketClosed {
		t.Error("Expected market-closed acceptance")
	}
	if len(res.Events) != 2 {
		t.Fatalf("Expected both events in the result, got %d", len(res.Events))
	}
	if res.Events[0].Code != CodeMarketClosed {
		t.Errorf("Expected error 399 first, got code %d", res.Events[0].Code)
	}
	if status, _ := res.Terminal.Str(FieldStatus); status != StatusPreSubmitted {
		t.Errorf("Expected pre-submitted terminal, got %s", status)
	}
}

func TestClient_PlaceOrder_PreSubmittedAloneDoesNotResolve(t *testing.T) {
	client, _ := newScriptedClient(func(req Request) []Event {
		return []Event{
			NewEvent(EventOrderStatus).WithOrderID(req.OrderID).WithField(FieldStatus, StatusPreSubmitted),
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	qty, _ := decimal.New(1, 0)
	_, err := client.PlaceOrder(ctx, Contract{Symbol: "ES"}, OrderSpec{Quantity: qty})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if n := client.Bus().Subscribers(); n != 0 {
		t.Errorf("Subscription leaked after timeout: %d", n)
	}
}

func TestClient_HistoricalData(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	client, _ := newScriptedClient(func(req Request) []Event {
		id := req.RequestID
		bar := func(d int, close string) Event {
			return NewEvent(EventPriceBar).WithRequestID(id).WithTime(day.AddDate(0, 0, d)).
				WithField(FieldOpen, decimal.MustParse("10")).
				WithField(FieldHigh, decimal.MustParse("12")).
				WithField(FieldLow, decimal.MustParse("9")).
				WithField(FieldClose, decimal.MustParse(close)).
				WithField(FieldVolume, decimal.MustParse("1000"))
		}
		return []Event{
			bar(0, "11"),
			bar(1, "11.5"),
			NewEvent(EventPriceBarComplete).WithRequestID(id),
		}
	})

	bars, err := client.HistoricalData(context.Background(), Contract{Symbol: "AAPL"},
		map[string]string{"duration": "2 D", "bar-size": "1 day"})
	if err != nil {
		t.Fatalf("HistoricalData failed: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("Expected 2 bars, got %d", len(bars))
	}
	if !bars[0].Time.Equal(day) || bars[0].Close.Cmp(mustDecimal(t, "11")) != 0 {
		t.Errorf("Unexpected first bar: %+v", bars[0])
	}
}

func TestClient_OpenOrders(t *testing.T) {
	client, _ := newScriptedClient(func(req Request) []Event {
		return []Event{
			NewEvent(EventOpenOrder).WithOrderID(3),
			NewEvent(EventOrderStatus).WithOrderID(3).WithField(FieldStatus, StatusSubmitted),
			NewEvent(EventOpenOrder).WithOrderID(4),
			NewEvent(EventOpenOrderEnd),
		}
	})

	orders, err := client.OpenOrders(context.Background())
	if err != nil {
		t.Fatalf("OpenOrders failed: %v", err)
	}
	if len(orders) != 3 {
		t.Errorf("Expected 3 accumulated events, got %d", len(orders))
	}
}

func TestClient_AccountSnapshot(t *testing.T) {
	client, _ := newScriptedClient(func(req Request) []Event {
		return []Event{
			NewEvent(EventAccountValue).WithField("key", "NetLiquidation").
				WithField(FieldValue, decimal.MustParse("250000")),
			NewEvent(EventPortfolioUpdate).WithField("symbol", "AAPL"),
			NewEvent(EventAccountDownloadEnd),
		}
	})

	values, err := client.AccountSnapshot(context.Background(), "DU12345")
	if err != nil {
		t.Fatalf("AccountSnapshot failed: %v", err)
	}
	if len(values) != 2 {
		t.Errorf("Expected 2 accumulated events, got %d", len(values))
	}
}

func TestClient_NextValidIDSeedsOrderCounter(t *testing.T) {
	client, _ := newScriptedClient(func(Request) []Event { return nil })

	client.Publish(NewEvent(EventNextValidID).WithOrderID(500))

	if id := client.NextOrderID(); id != 501 {
		t.Errorf("Expected order id 501 after server seed, got %d", id)
	}
}

func TestClient_ConcurrentOperationsIsolated(t *testing.T) {
	client, _ := newScriptedClient(func(req Request) []Event {
		switch req.Type {
		case RequestContractDetails:
			return []Event{
				NewEvent(EventContractDetails).WithRequestID(req.RequestID).WithField("value", "X"),
				NewEvent(EventContractDetailsEnd).WithRequestID(req.RequestID),
			}
		case RequestMarketDataSnapshot:
			return []Event{
				NewEvent(EventTick).WithTickerID(req.TickerID).
					WithField(FieldField, "last").WithField(FieldValue, decimal.MustParse("5")),
				NewEvent(EventTickSnapshotEnd).WithRequestID(req.TickerID),
			}
		}
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			details, err := client.ContractDetails(context.Background(), Contract{Symbol: "ES"})
			if err != nil || len(details) != 1 {
				t.Errorf("ContractDetails: err=%v events=%d", err, len(details))
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			quote, err := client.Snapshot(context.Background(), Contract{Symbol: "ES"})
			if err != nil || len(quote) != 1 {
				t.Errorf("Snapshot: err=%v fields=%d", err, len(quote))
			}
		}()
	}
	wg.Wait()

	if n := client.Bus().Subscribers(); n != 0 {
		t.Errorf("Subscriptions leaked: %d", n)
	}
}
