package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/coldchain/trucksim/pkg/streaming"
)

const (
	sendChSize = 1024
	ackChSize  = 16
	inboxSize  = 64
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
	writeWait  = 10 * time.Second
)

// connection manages a WebSocket connection with a single write goroutine.
type connection struct {
	mu        sync.Mutex
	conn      *ws.Conn
	sendCh    chan []byte
	ackCh     chan streaming.AckMessage
	inbox     chan streaming.Envelope
	done      chan struct{} // closed on shutdown
	closed    bool
	redialing bool

	wsURL    string
	deviceID string

	// Last reported_properties message, replayed after a reconnect.
	cachedReported []byte

	backoff time.Duration
	logger  *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		sendCh:  make(chan []byte, sendChSize),
		ackCh:   make(chan streaming.AckMessage, ackChSize),
		inbox:   make(chan streaming.Envelope, inboxSize),
		done:    make(chan struct{}),
		backoff: minBackoff,
		logger:  logger,
	}
}

// dial connects to the hub and starts read/write loops. When the hub is
// unreachable the error is returned and redialing continues in the
// background with the usual backoff.
func (c *connection) dial(rawURL, deviceID string) error {
	if _, err := url.Parse(rawURL); err != nil {
		return fmt.Errorf("invalid hub URL: %w", err)
	}
	c.wsURL = rawURL
	c.deviceID = deviceID

	conn, err := c.dialOnce()
	if err != nil {
		go c.reconnect(nil)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.writeLoop(conn)
	go c.readLoop(conn)

	return nil
}

// dialOnce performs a single WebSocket dial with the deviceId query param.
func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid hub URL: %w", err)
	}
	q := u.Query()
	q.Set("deviceId", c.deviceID)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("hub dial failed: %w", err)
	}
	return conn, nil
}

func (c *connection) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// writeLoop drains sendCh onto conn. It returns on error or shutdown.
func (c *connection) writeLoop(conn *ws.Conn) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("Hub SetWriteDeadline error", "error", err)
				go c.reconnect(conn)
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("Hub write error", "error", err)
				go c.reconnect(conn)
				return
			}
		}
	}
}

// readLoop routes acks to ackCh and everything else to the inbox.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("Hub read error", "error", err)
			go c.reconnect(conn)
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Debug("Malformed hub message", "raw", string(message))
			continue
		}

		if env.Type == streaming.TypeAck {
			var ack streaming.AckMessage
			if err := json.Unmarshal(message, &ack); err != nil {
				continue
			}
			select {
			case c.ackCh <- ack:
			default:
				c.logger.Debug("Ack channel full, dropping", "for", ack.For)
			}
			continue
		}

		select {
		case c.inbox <- env:
		case <-c.done:
			return
		}
	}
}

// reconnect replaces a failed connection, or establishes the first one when
// failed is nil and no link exists yet. It retries with exponential backoff
// until it succeeds or the connection is closed. On success it replays the
// cached reported properties and restarts the read/write loops.
func (c *connection) reconnect(failed *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.redialing || c.conn != failed {
		c.mu.Unlock()
		return
	}
	c.redialing = true
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.redialing = false
		c.mu.Unlock()
	}()

	backoff := c.backoff
	for attempt := 1; ; attempt++ {
		c.logger.Info("Reconnecting to hub", "attempt", attempt, "backoff", backoff)
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		cached := c.cachedReported
		c.mu.Unlock()

		if cached != nil {
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err == nil {
				if err := conn.WriteMessage(ws.TextMessage, cached); err != nil {
					c.logger.Warn("Failed to replay reported properties after reconnect", "error", err)
				}
			}
		}

		c.logger.Info("Hub reconnected", "attempt", attempt)
		go c.writeLoop(conn)
		go c.readLoop(conn)
		return
	}
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (c *connection) send(data []byte) error {
	select {
	case c.sendCh <- data:
		return nil
	default:
		return fmt.Errorf("hub send channel full")
	}
}

// sendAndWait sends data and blocks until the hub acknowledges with a
// matching ack message or the timeout expires.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	if err := c.send(data); err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == ackFor {
				return nil
			}
			// Not our ack, keep waiting.
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

func (c *connection) cacheReported(data []byte) {
	c.mu.Lock()
	c.cachedReported = data
	c.mu.Unlock()
}

// close sends a WebSocket close frame and shuts down all goroutines.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		)
		return conn.Close()
	}
	return nil
}
