// Package control serves the local HTTP API: direct methods, desired
// properties, the latest telemetry record and Prometheus metrics.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/coldchain/trucksim/internal/dispatcher"
	"github.com/coldchain/trucksim/internal/twin"
	"github.com/coldchain/trucksim/pkg/core"
)

const jsonContentType = "application/json; charset=utf-8"

// Source is the engine view the API reads.
type Source interface {
	Latest() (core.TelemetryRecord, bool)
	Customers() []core.Customer
}

// Handler holds the route handlers.
type Handler struct {
	Dispatcher *dispatcher.Dispatcher
	Source     Source
	Metrics    http.Handler
	Logger     *slog.Logger
}

// RegisterRoutes mounts the API on s.
func (h Handler) RegisterRoutes(s *server.Hertz) {
	v1 := s.Group("/api/v1")
	v1.POST("/methods/:name", h.invoke)
	v1.PATCH("/properties/desired", h.desired)
	v1.GET("/telemetry/latest", h.latest)
	v1.GET("/customers", h.customers)

	s.GET("/healthz", h.health)
	if h.Metrics != nil {
		s.GET("/metrics", adaptor.HertzHandler(h.Metrics))
	}
}

func (h Handler) invoke(_ context.Context, ctx *app.RequestContext) {
	name := ctx.Param("name")
	if name == twin.CommandDesiredProperties {
		// Desired properties have their own route.
		ctx.Data(consts.StatusNotFound, jsonContentType, core.ResultBody("Unknown method: "+name))
		return
	}
	result, err := h.Dispatcher.Dispatch(dispatcher.Event{
		Command: name,
		Payload: string(ctx.Request.Body()),
		Source:  "http",
	})
	if errors.Is(err, dispatcher.ErrUnknownCommand) {
		ctx.Data(consts.StatusNotFound, jsonContentType, core.ResultBody("Unknown method: "+name))
		return
	}
	if resp, ok := result.(core.MethodResponse); ok {
		ctx.Data(resp.Status, jsonContentType, resp.Payload)
		return
	}
	if err != nil {
		h.logger().Error("Direct method failed", "method", name, "error", err)
		ctx.Data(consts.StatusInternalServerError, jsonContentType, core.ResultBody(err.Error()))
		return
	}
	ctx.Data(consts.StatusOK, jsonContentType, core.ResultBody("Executed direct method: "+name))
}

func (h Handler) desired(_ context.Context, ctx *app.RequestContext) {
	result, err := h.Dispatcher.Dispatch(dispatcher.Event{
		Command: twin.CommandDesiredProperties,
		Payload: string(ctx.Request.Body()),
		Source:  "http",
	})
	switch {
	case errors.Is(err, dispatcher.ErrQueueFull), errors.Is(err, dispatcher.ErrClosed):
		writeError(ctx, consts.StatusServiceUnavailable, err)
	case errors.Is(err, twin.ErrInvalidProperty):
		ctx.JSON(consts.StatusBadRequest, map[string]any{
			"error":    err.Error(),
			"reported": result,
		})
	case err != nil:
		writeError(ctx, consts.StatusInternalServerError, err)
	default:
		if props, ok := result.(core.Properties); ok {
			ctx.JSON(consts.StatusOK, map[string]any{"reported": props})
			return
		}
		// Buffered handler: applied asynchronously.
		ctx.JSON(consts.StatusAccepted, map[string]any{"result": result})
	}
}

func (h Handler) latest(_ context.Context, ctx *app.RequestContext) {
	rec, ok := h.Source.Latest()
	if !ok {
		writeError(ctx, consts.StatusNotFound, fmt.Errorf("no telemetry emitted yet"))
		return
	}
	ctx.JSON(consts.StatusOK, rec)
}

func (h Handler) customers(_ context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, h.Source.Customers())
}

func (h Handler) health(_ context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]string{"status": "ok"})
}

func (h Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func writeError(ctx *app.RequestContext, status int, err error) {
	ctx.JSON(status, map[string]string{"error": err.Error()})
}

// Server runs the control API until its context is cancelled.
type Server struct {
	h      *server.Hertz
	logger *slog.Logger
}

// NewServer creates a server listening on addr.
func NewServer(addr string, handler Handler) *Server {
	h := server.New(
		server.WithHostPorts(addr),
		server.WithExitWaitTime(2*time.Second),
		server.WithDisablePrintRoute(true),
	)
	handler.RegisterRoutes(h)
	return &Server{h: h, logger: handler.logger()}
}

// Run serves until ctx is done, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.h.Run()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("control server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.h.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Control server shutdown", "error", err)
	}
	return nil
}
