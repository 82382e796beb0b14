// Package session maintains the persistent socket session with the trading
// gateway: one goroutine reads and decodes inbound frames into the event
// stream, one drains the outbound request queue. Reconnection is left to
// the caller; when the socket dies, every outstanding synchronous wait is
// terminated through the event stream itself.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rnovak/ibwire/pkg/gateway"
	"github.com/rnovak/ibwire/pkg/wire"
)

const (
	writeQueueCapacity = 100
	keepAliveInterval  = 30 * time.Second
	dialTimeout        = 5 * time.Second
)

// codeConnectivityLost is published before connection-closed when the read
// loop fails, so that id-scoped waits terminate too.
const codeConnectivityLost = 1100

var ErrClosed = errors.New("session closed")

// Publisher receives every decoded inbound event. Satisfied by
// *gateway.Client and by *gateway.Bus.
type Publisher interface {
	Publish(gateway.Event)
}

type Session struct {
	conn     *websocket.Conn
	pub      Publisher
	logger   *zap.Logger
	requests chan gateway.Request

	ctx       context.Context
	ctxCancel context.CancelFunc
}

// Dial opens the websocket session and starts the read and write loops.
// Events begin flowing into pub before Dial returns.
func Dial(url string, pub Publisher, logger *zap.Logger) (*Session, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		conn:      conn,
		pub:       pub,
		logger:    logger,
		requests:  make(chan gateway.Request, writeQueueCapacity),
		ctx:       ctx,
		ctxCancel: cancel,
	}

	go s.read()
	go s.write()

	return s, nil
}

// Send queues one outbound request. Implements gateway.Sender.
func (s *Session) Send(req gateway.Request) error {
	select {
	case s.requests <- req:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	}
}

// Close tears the session down. Idempotent.
func (s *Session) Close() {
	s.ctxCancel()
	_ = s.conn.Close()
}

// Done is closed once the session is no longer usable.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) read() {
	defer s.ctxCancel()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			_, message, err := s.conn.ReadMessage()
			if err != nil {
				if s.ctx.Err() == nil {
					s.logger.Warn("cannot read from gateway", zap.Error(err))
					s.publishDisconnect(err)
				}
				return
			}

			ev, err := wire.DecodeEvent(message)
			if err != nil {
				s.logger.Warn("dropping undecodable frame",
					zap.ByteString("raw", message),
					zap.Error(err))
				continue
			}

			s.logger.Debug("read", zap.String("type", ev.Type.String()))
			s.pub.Publish(ev)
		}
	}
}

// publishDisconnect terminates every outstanding wait: first a
// connection-level error, which the classifier treats as the end of all
// requests, then the connection-closed notice for plain stream listeners.
func (s *Session) publishDisconnect(err error) {
	s.pub.Publish(gateway.NewEvent(gateway.EventError).
		WithCode(codeConnectivityLost).
		WithMessage("connectivity with the gateway lost").
		WithError(err))
	s.pub.Publish(gateway.NewEvent(gateway.EventConnectionClosed))
}

func (s *Session) write() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(dialTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Warn("keepalive failed", zap.Error(err))
			}
		case req := <-s.requests:
			data, err := wire.EncodeRequest(req)
			if err != nil {
				s.logger.Warn("failed to encode request",
					zap.String("type", req.Type.String()),
					zap.Error(err))
				continue
			}

			s.logger.Debug("write", zap.String("type", req.Type.String()))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("failed to write to gateway", zap.Error(err))
				continue
			}
		}
	}
}
