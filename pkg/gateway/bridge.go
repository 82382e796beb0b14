package gateway

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// MatchFunc decides whether an event belongs to an operation's partial
// result set.
type MatchFunc func(Event) bool

// EndFunc decides whether an event terminates an operation's wait.
type EndFunc func(Event) bool

// Result is what a synchronous wait resolves to. Events holds the matched
// partial results in arrival order; Terminal is the event that ended the
// wait and may itself be an error.
type Result struct {
	Events   []Event
	Terminal Event
}

// Err maps an error-typed terminal event to a *GatewayError. A successful
// series-end marker yields nil. Warnings never end a wait, so a terminal
// error event here is always a real failure.
func (r Result) Err() error {
	if r.Terminal.Type != EventError || !IsError(r.Terminal) {
		return nil
	}
	return &GatewayError{
		Code:    r.Terminal.Code,
		Message: r.Terminal.Message,
		Err:     r.Terminal.Err,
	}
}

// GatewayError is a protocol-level failure reported by the gateway, either
// a coded error or a transported exception.
type GatewayError struct {
	Code    int64
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway error: %v", e.Err)
	}
	if e.Code != NoCode {
		return fmt.Sprintf("gateway error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("gateway error: %s", e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ConnLevel reports whether the failure invalidated the whole session.
func (e *GatewayError) ConnLevel() bool {
	return IsConnErrorCode(e.Code)
}

// Bridge turns the asynchronous event stream into blocking calls. Every
// synchronous operation is the same scoped pattern: subscribe, issue the
// request, accumulate matching events, resolve once on termination,
// unsubscribe on every exit path.
type Bridge struct {
	bus    *Bus
	logger *zap.Logger
}

func NewBridge(bus *Bus, logger *zap.Logger) *Bridge {
	return &Bridge{
		bus:    bus,
		logger: logger,
	}
}

// Run subscribes, calls send, then blocks until end fires or ctx expires.
// The subscription is attached before send so a fast reply cannot slip past
// the handler. Protocol errors do not surface here; the terminating event
// lands in Result.Terminal and Run returns nil. The only errors Run itself
// returns are a failed send and ctx expiry. Unresolved waits are not
// self-terminating, the caller's ctx is the sole timeout.
func (b *Bridge) Run(ctx context.Context, send func() error, match MatchFunc, end EndFunc) (Result, error) {
	var (
		mu       sync.Mutex
		resolved bool
		acc      []Event
		terminal Event
	)
	done := make(chan struct{})

	sub := b.bus.Subscribe(func(ev Event) {
		mu.Lock()
		if resolved {
			mu.Unlock()
			return
		}
		if match != nil && match(ev) {
			acc = append(acc, ev)
		}
		if end(ev) {
			terminal = ev
			resolved = true
			mu.Unlock()
			close(done)
			return
		}
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	if send != nil {
		if err := send(); err != nil {
			return Result{}, fmt.Errorf("unable to issue request: %w", err)
		}
	}

	select {
	case <-done:
		mu.Lock()
		res := Result{Events: acc, Terminal: terminal}
		mu.Unlock()
		if b.logger != nil {
			b.logger.Debug("wait resolved",
				zap.String("terminal", res.Terminal.Type.String()),
				zap.Int("accumulated", len(res.Events)))
		}
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
