package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/creastat/infra/telemetry"
	"github.com/creastat/multicast/core"
	"github.com/creastat/multicast/protocol"
	"github.com/gorilla/websocket"
)

// closeTimeout bounds how long Stop waits to send the close frame
const closeTimeout = time.Second

// WebSocketSinkConfig holds WebSocket sink configuration
type WebSocketSinkConfig struct {
	Conn   *websocket.Conn
	Name   string // Defaults to "websocket_sink"
	Logger telemetry.Logger
}

// WebSocketSink sends every branch copy it receives to a WebSocket connection
// as a multicast.branch JSON frame
type WebSocketSink struct {
	config WebSocketSinkConfig
	mu     sync.Mutex // gorilla connections allow one concurrent writer
	closed bool
}

// NewWebSocketSink creates a new WebSocket sink processor
func NewWebSocketSink(config WebSocketSinkConfig) *WebSocketSink {
	if config.Name == "" {
		config.Name = "websocket_sink"
	}
	config.Logger = withDefaultLogger(config.Logger)
	return &WebSocketSink{
		config: config,
	}
}

// Name returns the processor name
func (ws *WebSocketSink) Name() string {
	return ws.config.Name
}

// Process implements core.Processor.
// A failed write fails the branch.
func (ws *WebSocketSink) Process(ctx context.Context, msg *core.Message) error {
	logger := ws.config.Logger.WithModule(ws.Name())

	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(protocol.MessageToOutput(msg, protocol.OutputBranch))
	if err != nil {
		logger.Error("Failed to marshal message", telemetry.Err(err), telemetry.String("message_id", msg.ID))
		return fmt.Errorf("marshal message: %w", err)
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.closed {
		return fmt.Errorf("websocket sink %s is stopped", ws.Name())
	}

	if err := ws.config.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logger.Error("Failed to send message to WebSocket", telemetry.Err(err), telemetry.String("message_id", msg.ID))
		return fmt.Errorf("write websocket message: %w", err)
	}

	logger.Debug("Sent message to WebSocket", telemetry.String("message_id", msg.ID), telemetry.Int("size", len(data)))
	return nil
}

// Start implements core.Service
func (ws *WebSocketSink) Start(ctx context.Context) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.config.Conn == nil {
		return fmt.Errorf("websocket sink %s has no connection", ws.Name())
	}
	ws.closed = false
	return nil
}

// Stop implements core.Service.
// It sends a normal-closure frame; the connection itself stays owned by the caller.
func (ws *WebSocketSink) Stop(ctx context.Context) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.closed || ws.config.Conn == nil {
		return nil
	}
	ws.closed = true

	deadline := time.Now().Add(closeTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "multicast stopped")
	if err := ws.config.Conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		return fmt.Errorf("send close frame: %w", err)
	}
	return nil
}
