package bashapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/haasonsaas/nexus/pkg/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 45 * time.Second
	pingInterval   = 15 * time.Second
	maxMessageSize = 1 << 20
)

// WSHandler serves /sockets/bash-events and /bash_events/socket: a
// passive subscription to every BashCommand/BashOutput, plus an inbound
// request/response protocol that executes a command and streams its
// BashCommand then terminal BashOutput back over the same connection.
type WSHandler struct {
	svc      *Service
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler builds a WSHandler.
func NewWSHandler(svc *Service, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		svc:    svc,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeGin is the gin.HandlerFunc for the bash events socket.
func (h *WSHandler) ServeGin(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("bash websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	writeCh := make(chan events.Event, 256)
	subID := h.svc.Subscribe(func(e events.Event) {
		select {
		case writeCh <- e:
		default:
			h.logger.Warn("bash websocket subscriber dropped event, slow reader")
		}
	})
	defer h.svc.Unsubscribe(subID)

	done := make(chan struct{})
	go h.readLoop(conn, done)
	h.writeLoop(conn, writeCh, done)
}

// readLoop handles the request/response protocol: each inbound frame
// {command, timeout, cwd} triggers an execution whose BashCommand/
// BashOutput are then delivered through the normal subscription fan-out,
// per spec.md §6.3's "stream of BashCommand and BashOutput frames
// terminating when BashOutput carries an exit_code".
func (h *WSHandler) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			Command        string `json:"command"`
			TimeoutSeconds int    `json:"timeout"`
			Cwd            string `json:"cwd"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			h.logger.Warn("bash websocket received malformed frame", "error", err)
			continue
		}
		if _, err := h.svc.Execute(context.Background(), ExecuteRequest{
			Command:        req.Command,
			TimeoutSeconds: req.TimeoutSeconds,
			Cwd:            req.Cwd,
		}); err != nil {
			h.logger.Warn("bash websocket execute failed", "error", err)
		}
	}
}

func (h *WSHandler) writeLoop(conn *websocket.Conn, writeCh <-chan events.Event, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case e := <-writeCh:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
