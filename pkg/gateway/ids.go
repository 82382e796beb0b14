package gateway

import "sync/atomic"

// Allocator hands out correlation ids from three disjoint namespaces.
// Each namespace is its own monotonic counter, safe under concurrent
// callers. Ids are never reused while a logical request is in flight;
// callers must not recycle one until its wait has terminated.
type Allocator struct {
	ticker  atomic.Int64
	order   atomic.Int64
	request atomic.Int64
}

func NewAllocator() *Allocator {
	return &Allocator{}
}

// NextTickerID allocates a market data ticker id.
func (a *Allocator) NextTickerID() int64 {
	return a.ticker.Add(1)
}

// NextRequestID allocates a general request id.
func (a *Allocator) NextRequestID() int64 {
	return a.request.Add(1)
}

// NextOrderID allocates an order id. The order namespace is additionally
// seeded by the server, see SyncOrderID.
func (a *Allocator) NextOrderID() int64 {
	return a.order.Add(1)
}

// SyncOrderID lifts the order counter so that the next allocation is
// strictly greater than the server-supplied next valid id. The counter
// never moves backwards, and an allocation racing the sync cannot hand out
// a value the server could also assign.
func (a *Allocator) SyncOrderID(serverNext int64) {
	for {
		cur := a.order.Load()
		if cur >= serverNext {
			return
		}
		if a.order.CompareAndSwap(cur, serverNext) {
			return
		}
	}
}
