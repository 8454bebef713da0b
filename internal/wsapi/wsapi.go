// Package wsapi implements the WebSocket handler for
// /sockets/events/{conversation_id}, per spec.md §6.2: on connect, it
// optionally resends existing events by pagination, then subscribes and
// streams new events as JSON; inbound frames are parsed as a message and
// sent with run=true.
package wsapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/haasonsaas/nexus/internal/authmw"
	"github.com/haasonsaas/nexus/internal/convservice"
	"github.com/haasonsaas/nexus/internal/eventlog"
	"github.com/haasonsaas/nexus/internal/eventservice"
	"github.com/haasonsaas/nexus/pkg/events"
)

const (
	// closeAuthFailed and closeNotFound are the application-level WS close
	// codes spec.md §7 assigns to AuthError and NotFoundError respectively.
	closeAuthFailed = 4001
	closeNotFound   = 4004

	writeWait      = 10 * time.Second
	pongWait       = 45 * time.Second
	pingInterval   = 15 * time.Second
	maxMessageSize = 1 << 20
)

// Handler serves the per-conversation events WebSocket.
type Handler struct {
	conversations *convservice.Service
	checker       *authmw.Checker
	logger        *slog.Logger
	upgrader      websocket.Upgrader
}

// New builds a Handler.
func New(conversations *convservice.Service, checker *authmw.Checker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		conversations: conversations,
		checker:       checker,
		logger:        logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeGin is the gin.HandlerFunc registered at /sockets/events/:conversation_id.
func (h *Handler) ServeGin(c *gin.Context) {
	conversationID := c.Param("conversation_id")

	if h.checker.Enabled() && !h.checker.Valid(c.Query(authmw.SessionKeyQueryParam)) {
		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		closeWithCode(conn, closeAuthFailed, "auth failed")
		return
	}

	svc, err := h.conversations.Get(conversationID)
	if err != nil {
		conn, upErr := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if upErr != nil {
			return
		}
		closeWithCode(conn, closeNotFound, "conversation not found")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "conversation_id", conversationID, "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	writeCh := make(chan events.Event, 256)
	resendAll := c.Query("resend_all") == "true" || c.Query("resend_all") == "1"

	if resendAll {
		if err := drainExisting(svc, writeCh); err != nil {
			h.logger.Warn("failed to resend existing events", "conversation_id", conversationID, "error", err)
		}
	}

	subID := svc.SubscribeToEvents(func(e events.Event) {
		select {
		case writeCh <- e:
		default:
			h.logger.Warn("websocket subscriber dropped event, slow reader", "conversation_id", conversationID)
		}
	})
	defer svc.UnsubscribeFromEvents(subID)

	done := make(chan struct{})
	go h.readLoop(conn, svc, conversationID, done)
	h.writeLoop(conn, writeCh, done)
}

// drainExisting pages through every persisted event in ascending order and
// enqueues it onto writeCh before live subscription begins, per spec.md
// §6.2's resend-then-subscribe ordering guarantee.
func drainExisting(svc *eventservice.EventService, writeCh chan<- events.Event) error {
	cursor := ""
	for {
		page, err := svc.SearchEvents(cursor, 100, nil, eventlog.SortTimestampAsc)
		if err != nil {
			return err
		}
		for _, e := range page.Items {
			writeCh <- e
		}
		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

func (h *Handler) readLoop(conn *websocket.Conn, svc *eventservice.EventService, conversationID string, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Content []events.ContentBlock `json:"content"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("websocket received malformed frame", "conversation_id", conversationID, "error", err)
			continue
		}
		if _, err := svc.SendMessage(context.Background(), msg.Content, true); err != nil {
			h.logger.Warn("websocket send_message failed", "conversation_id", conversationID, "error", err)
		}
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, writeCh <-chan events.Event, done <-chan struct{}) {
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

func closeWithCode(conn *websocket.Conn, code int, text string) {
	defer conn.Close()
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
}
