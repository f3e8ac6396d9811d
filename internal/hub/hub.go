// Package hub connects the truck to the device hub over a WebSocket. The hub
// delivers direct methods and desired properties; the truck sends telemetry,
// method responses and reported properties back.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coldchain/trucksim/internal/dispatcher"
	"github.com/coldchain/trucksim/internal/telemetry"
	"github.com/coldchain/trucksim/internal/twin"
	"github.com/coldchain/trucksim/pkg/core"
	"github.com/coldchain/trucksim/pkg/streaming"
)

// DefaultAckTimeout bounds how long ReportProperties waits for the hub.
const DefaultAckTimeout = 10 * time.Second

// ErrNotConnected is returned when sending while the link is down.
var ErrNotConnected = errors.New("hub not connected")

// Config holds hub client configuration.
type Config struct {
	URL        string
	DeviceID   string
	AckTimeout time.Duration
}

// Client is the truck's side of the hub link. It is a telemetry.Sink and a
// twin.Reporter.
type Client struct {
	conn   *connection
	cfg    Config
	disp   *dispatcher.Dispatcher
	logger *slog.Logger

	handleOnce sync.Once
}

// New creates a hub client. Inbound commands are routed through disp.
func New(cfg Config, disp *dispatcher.Dispatcher, logger *slog.Logger) *Client {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "hub")
	return &Client{
		conn:   newConnection(logger),
		cfg:    cfg,
		disp:   disp,
		logger: logger,
	}
}

// Connect dials the hub and starts handling inbound messages. A failed
// first dial is returned, but the client keeps redialing until Close.
func (c *Client) Connect() error {
	c.handleOnce.Do(func() { go c.handleLoop() })
	if err := c.conn.dial(c.cfg.URL, c.cfg.DeviceID); err != nil {
		return err
	}
	c.logger.Info("Connected to hub", "url", c.cfg.URL, "deviceId", c.cfg.DeviceID)
	return nil
}

// Close disconnects from the hub.
func (c *Client) Close() error {
	return c.conn.close()
}

// Send queues one telemetry record for the hub.
func (c *Client) Send(_ context.Context, rec core.TelemetryRecord) error {
	if !c.conn.connected() {
		return telemetry.NewTransportError("hub", ErrNotConnected)
	}
	data, err := streaming.Marshal(streaming.TypeTelemetry, streaming.TelemetryPayload{
		DeviceID: c.cfg.DeviceID,
		Record:   rec,
	})
	if err != nil {
		return telemetry.NewTransportError("hub", fmt.Errorf("marshal telemetry: %w", err))
	}
	return telemetry.NewTransportError("hub", c.conn.send(data))
}

// ReportProperties pushes the full reported set and waits for the hub's
// ack. The set is replayed after every reconnect.
func (c *Client) ReportProperties(ctx context.Context, props core.Properties) error {
	data, err := streaming.Marshal(streaming.TypeReportedProperties, streaming.PropertiesPayload{
		DeviceID:   c.cfg.DeviceID,
		Properties: props,
	})
	if err != nil {
		return fmt.Errorf("marshal reported properties: %w", err)
	}
	c.conn.cacheReported(data)

	if !c.conn.connected() {
		return ErrNotConnected
	}

	timeout := c.cfg.AckTimeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	return c.conn.sendAndWait(data, streaming.TypeReportedProperties, timeout)
}

// handleLoop processes inbound messages one at a time, in arrival order.
func (c *Client) handleLoop() {
	for {
		select {
		case <-c.conn.done:
			return
		case env := <-c.conn.inbox:
			c.handle(env)
		}
	}
}

func (c *Client) handle(env streaming.Envelope) {
	switch env.Type {
	case streaming.TypeMethodRequest:
		var req streaming.MethodRequestPayload
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			c.logger.Warn("Malformed method request", "error", err)
			return
		}
		resp := c.invoke(req)
		data, err := streaming.Marshal(streaming.TypeMethodResponse, streaming.MethodResponsePayload{
			RequestID: req.RequestID,
			Status:    resp.Status,
			Payload:   resp.Payload,
		})
		if err != nil {
			c.logger.Error("Failed to marshal method response", "method", req.Method, "error", err)
			return
		}
		if err := c.conn.send(data); err != nil {
			c.logger.Warn("Failed to send method response", "method", req.Method, "error", err)
		}

	case streaming.TypeDesiredProperties:
		var p streaming.PropertiesPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.logger.Warn("Malformed desired properties", "error", err)
			return
		}
		doc, err := json.Marshal(p.Properties)
		if err != nil {
			return
		}
		if _, err := c.disp.Dispatch(dispatcher.Event{
			Command: twin.CommandDesiredProperties,
			Payload: string(doc),
			Source:  "hub",
		}); err != nil {
			c.logger.Warn("Desired properties not applied", "error", err)
		}

	default:
		c.logger.Debug("Ignoring hub message", "type", env.Type)
	}
}

// invoke runs a direct method through the dispatcher.
func (c *Client) invoke(req streaming.MethodRequestPayload) core.MethodResponse {
	unknown := core.MethodResponse{Status: http.StatusNotFound, Payload: core.ResultBody("Unknown method: " + req.Method)}
	if req.Method == twin.CommandDesiredProperties {
		return unknown
	}
	result, err := c.disp.Dispatch(dispatcher.Event{
		Command: req.Method,
		Payload: string(req.Payload),
		Source:  "hub",
	})
	if errors.Is(err, dispatcher.ErrUnknownCommand) {
		return unknown
	}
	if resp, ok := result.(core.MethodResponse); ok {
		return resp
	}
	if err != nil {
		return core.MethodResponse{Status: http.StatusInternalServerError, Payload: core.ResultBody(err.Error())}
	}
	return core.MethodResponse{Status: http.StatusOK, Payload: core.ResultBody("Executed direct method: " + req.Method)}
}
