package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"evcentral/internal/ocpp"
)

const maxMessageSize = 1024 * 1024

var errSendBufferFull = errors.New("ws: send buffer full")

// MessageProcessor handles raw OCPP frames of one charger.
type MessageProcessor interface {
	Process(ctx context.Context, chargerID string, raw []byte, resolver ocpp.Resolver) ([]byte, error)
}

// Timings configures liveness of a connection.
type Timings struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadTimeout  time.Duration
}

// Connection represents an active charger WebSocket session.
type Connection struct {
	chargerID  string
	ws         *websocket.Conn
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	logger     *zap.Logger
	processor  MessageProcessor
	correlator *ocpp.Correlator
	timings    Timings
	onClose    func(c *Connection, reason error)
}

// NewConnection builds connection wrapper. observer may be nil.
func NewConnection(chargerID string, ws *websocket.Conn, processor MessageProcessor, observer ocpp.CallObserver, timings Timings, logger *zap.Logger, onClose func(*Connection, error)) *Connection {
	c := &Connection{
		chargerID: chargerID,
		ws:        ws,
		send:      make(chan []byte, 16),
		done:      make(chan struct{}),
		logger:    logger,
		processor: processor,
		timings:   timings,
		onClose:   onClose,
	}
	c.correlator = ocpp.NewCorrelator(chargerID, c.Send, observer, logger)
	return c
}

// ChargerID returns identifier.
func (c *Connection) ChargerID() string {
	return c.chargerID
}

// Start launches write pump and blocks in the read pump.
func (c *Connection) Start(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
}

// Call issues a server-initiated request and waits for the charger's answer.
func (c *Connection) Call(ctx context.Context, action string, payload interface{}, timeout time.Duration) (json.RawMessage, error) {
	return c.correlator.Issue(ctx, action, payload, timeout)
}

// Close tears the session down. Pending calls resolve with reason.
func (c *Connection) Close(reason error) {
	c.shutdown(reason)
}

// Done is closed once the session is torn down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) readPump(ctx context.Context) {
	defer c.shutdown(ocpp.ErrConnectionClosed)

	c.ws.SetReadLimit(maxMessageSize)
	c.refreshDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.refreshDeadline()
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Info("connection read closed", zap.String("charger_id", c.chargerID), zap.Error(err))
			return
		}
		c.refreshDeadline()

		// one frame is handled to completion before the next is read
		response, err := c.processor.Process(ctx, c.chargerID, message, c.correlator)
		if err != nil {
			c.logger.Warn("failed to process message", zap.String("charger_id", c.chargerID), zap.Error(err))
			continue
		}
		if response != nil {
			if err := c.Send(response); err != nil {
				c.logger.Warn("failed to queue response", zap.String("charger_id", c.chargerID), zap.Error(err))
			}
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.timings.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.logger.Info("connection write failed", zap.String("charger_id", c.chargerID), zap.Error(err))
				c.shutdown(ocpp.ErrConnectionClosed)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, []byte("ping")); err != nil {
				c.shutdown(ocpp.ErrConnectionClosed)
				return
			}
		}
	}
}

// Send enqueues a frame for writing.
func (c *Connection) Send(msg []byte) error {
	select {
	case <-c.done:
		return ocpp.ErrConnectionClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn("dropping outgoing message, buffer full", zap.String("charger_id", c.chargerID))
		return errSendBufferFull
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.timings.WriteTimeout))
	return c.ws.WriteMessage(messageType, data)
}

func (c *Connection) refreshDeadline() {
	_ = c.ws.SetReadDeadline(time.Now().Add(c.timings.ReadTimeout))
}

func (c *Connection) shutdown(reason error) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.correlator.Close(reason)

		code, text := websocket.CloseNormalClosure, ""
		if errors.Is(reason, ocpp.ErrSuperseded) {
			code, text = websocket.ClosePolicyViolation, "superseded by a newer connection"
		}
		deadline := time.Now().Add(c.timings.WriteTimeout)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
		_ = c.ws.Close()

		if c.onClose != nil {
			c.onClose(c, reason)
		}
	})
}
