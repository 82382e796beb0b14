package gateway

// RequestType identifies an outbound request.
type RequestType uint8

const (
	RequestCurrentTime RequestType = iota
	RequestMarketDataSnapshot
	RequestCancelMarketData
	RequestContractDetails
	RequestPlaceOrder
	RequestCancelOrder
	RequestHistoricalData
	RequestOpenOrders
	RequestExecutions
	RequestAccountUpdates
)

var requestTypeNames = map[RequestType]string{
	RequestCurrentTime:        "current-time",
	RequestMarketDataSnapshot: "market-data-snapshot",
	RequestCancelMarketData:   "cancel-market-data",
	RequestContractDetails:    "contract-details",
	RequestPlaceOrder:         "place-order",
	RequestCancelOrder:        "cancel-order",
	RequestHistoricalData:     "historical-data",
	RequestOpenOrders:         "open-orders",
	RequestExecutions:         "executions",
	RequestAccountUpdates:     "account-updates",
}

func (t RequestType) String() string {
	if name, ok := requestTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Request is one outbound message to the gateway. Which correlation id
// field is meaningful depends on the type; absent ids are NoID.
type Request struct {
	Type      RequestType
	RequestID int64
	OrderID   int64
	TickerID  int64
	Contract  *Contract
	Order     *OrderSpec
	Params    map[string]string
}

// NewRequest returns a request of the given type with all correlation ids
// marked absent.
func NewRequest(t RequestType) Request {
	return Request{
		Type:      t,
		RequestID: NoID,
		OrderID:   NoID,
		TickerID:  NoID,
	}
}

// Sender issues encoded requests to the gateway. Implemented by the session
// transport; replaced by a scripted fake in tests.
type Sender interface {
	Send(Request) error
}

// SenderFunc adapts a plain function to the Sender interface.
type SenderFunc func(Request) error

func (f SenderFunc) Send(req Request) error {
	return f(req)
}
