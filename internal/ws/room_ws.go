package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"roomchat-service/internal/bus"
	"roomchat-service/internal/cache"
	"roomchat-service/internal/middleware"
	"roomchat-service/internal/observability"
	"roomchat-service/internal/repositories"
)

// inboundFrame is what clients send: the room id travels as a string and is
// parsed server-side; a non-numeric value ends the connection.
type inboundFrame struct {
	RoomID      string `json:"room_id"`
	ChatMessage string `json:"chat_message"`
}

// outboundFrame is what subscribers receive.
type outboundFrame struct {
	ChatMessage string `json:"chat_message"`
}

// RoomWebSocketHandler upgrades authenticated requests into streaming chat
// connections: one goroutine reads and persists inbound frames, a paired
// goroutine forwards bus envelopes back to the socket.
type RoomWebSocketHandler struct {
	bus      *bus.Bus
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	history  cache.HistoryCache
}

// NewRoomWebSocketHandler constructs a RoomWebSocketHandler.
func NewRoomWebSocketHandler(b *bus.Bus, rooms repositories.RoomRepository, messages repositories.MessageRepository, history cache.HistoryCache) *RoomWebSocketHandler {
	return &RoomWebSocketHandler{bus: b, rooms: rooms, messages: messages, history: history}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle serves GET /ws/rooms/:room_id. The session gate has already
// attached the user; the room must exist before the upgrade happens.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	ctx, span := otel.Tracer("roomchat-service/ws").Start(c.Request.Context(), "ws.handshake",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	if _, err := h.rooms.GetRoom(ctx, roomID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "room not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      user.ID,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	sub := h.bus.Subscribe(roomID)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	publishLifecycleEvent(roomID, info, "ws_connect", "")

	go h.writeLoop(conn, sub)
	go h.readLoop(conn, sub, roomID, user.ID, info)
}

// writeLoop forwards subscription envelopes to the socket until the
// subscription closes or a write fails.
func (h *RoomWebSocketHandler) writeLoop(conn *websocket.Conn, sub *bus.Subscription) {
	for env := range sub.C() {
		if err := conn.WriteJSON(outboundFrame{ChatMessage: env.Body}); err != nil {
			log.Printf("websocket write error: %v", err)
			sub.Close()
			conn.Close()
			return
		}
	}
}

// readLoop processes inbound frames: persist first, publish second. Any
// protocol error tears the connection down; teardown always releases the
// subscription so the writer exits too.
func (h *RoomWebSocketHandler) readLoop(conn *websocket.Conn, sub *bus.Subscription, roomID, userID int64, info ConnInfo) {
	// The request context dies with the HTTP handler; persistence outlives it.
	ctx := context.Background()

	var closeReason string
	defer func() {
		sub.Close()
		conn.Close()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		publishLifecycleEvent(roomID, info, "ws_disconnect", closeReason)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				publishLifecycleEvent(roomID, info, "ws_error", closeReason)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			closeReason = "malformed frame"
			observability.IncWSEvent("ws_protocol_error")
			return
		}

		targetRoom, err := strconv.ParseInt(frame.RoomID, 10, 64)
		if err != nil {
			closeReason = "non-numeric room id"
			observability.IncWSEvent("ws_protocol_error")
			return
		}

		msg, err := h.messages.AppendMessage(ctx, targetRoom, userID, frame.ChatMessage)
		if err != nil {
			// Never publish what was not stored.
			log.Printf("message append failed: %v", err)
			observability.IncWSEvent("persist_error")
			continue
		}

		if err := h.history.Invalidate(ctx, targetRoom); err != nil {
			log.Printf("history cache invalidate failed: %v", err)
		}

		h.bus.Publish(bus.Envelope{
			RoomID:    msg.RoomID,
			MessageID: msg.ID,
			SenderID:  userID,
			Body:      msg.Body,
			CreatedAt: msg.CreatedAt,
		})
	}
}

func publishLifecycleEvent(roomID int64, info ConnInfo, event, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"room_id":     roomID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id": info.UserID,
			"ip":      info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.rooms", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}
