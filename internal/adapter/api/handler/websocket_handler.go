package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"restyle/internal/domain/entity"
	"restyle/internal/infrastructure/firebase"
	ws "restyle/internal/infrastructure/websocket"
	"restyle/internal/usecase"
	"restyle/pkg/errors"
	"restyle/pkg/logger"
)

// Inbound frame types accepted from clients.
const (
	wsTypePing                = "ping"
	wsTypeJoinRoom            = "join_room"
	wsTypeLeaveRoom           = "leave_room"
	wsTypeTyping              = "typing"
	wsTypeMarkRead            = "mark_read"
	wsTypeSubscribeMessages   = "subscribe_messages"
	wsTypeUnsubscribeMessages = "unsubscribe_messages"
	wsTypeSubscribeUnread     = "subscribe_unread_total"
	wsTypeSubscribeNotifs     = "subscribe_notifications"
)

type wsFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	IsTyping       bool   `json:"is_typing,omitempty"`
}

type WebSocketHandler struct {
	wsManager           *ws.Manager
	firebaseAuth        *firebase.FirebaseAuthClient
	chatUseCase         *usecase.ChatUseCase
	notificationUseCase *usecase.NotificationUseCase

	mu            sync.Mutex
	subscriptions map[*ws.Client][]func()
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func NewWebSocketHandler(wsManager *ws.Manager, firebaseAuth *firebase.FirebaseAuthClient, chatUseCase *usecase.ChatUseCase, notificationUseCase *usecase.NotificationUseCase) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:           wsManager,
		firebaseAuth:        firebaseAuth,
		chatUseCase:         chatUseCase,
		notificationUseCase: notificationUseCase,
		subscriptions:       make(map[*ws.Client][]func()),
	}
}

// HandleWebSocket authenticates the token query parameter, upgrades the
// connection and runs the read/write pumps.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return errors.Unauthorized("Authentication token is required", nil)
	}

	userID, err := h.firebaseAuth.VerifyToken(c.Request().Context(), token)
	if err != nil {
		return errors.Unauthorized("Invalid or expired token", err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Internal("Failed to upgrade connection", err)
	}

	client := &ws.Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}

	h.wsManager.Register <- client

	go client.WritePump()
	go func() {
		client.ReadPump(h.wsManager, h.handleFrame)
		h.dropSubscriptions(client)
	}()

	return nil
}

func (h *WebSocketHandler) handleFrame(client *ws.Client, raw []byte) {
	var frame wsFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.sendError(client, "Invalid message format")
		return
	}

	ctx := context.Background()

	switch frame.Type {
	case wsTypePing:
		h.send(client, map[string]interface{}{"type": "pong", "timestamp": time.Now().Format(time.RFC3339)})

	case wsTypeJoinRoom:
		// Membership is checked before the client can join the room.
		if _, err := h.chatUseCase.GetConversationByID(ctx, client.UserID, frame.ConversationID); err != nil {
			h.sendError(client, "Cannot join conversation")
			return
		}
		h.wsManager.JoinRoom(frame.ConversationID, client)
		h.send(client, map[string]interface{}{"type": "room_joined", "conversation_id": frame.ConversationID})

	case wsTypeLeaveRoom:
		h.wsManager.LeaveRoom(frame.ConversationID, client)

	case wsTypeTyping:
		if err := h.chatUseCase.UpdateTypingStatus(ctx, client.UserID, frame.ConversationID, frame.IsTyping); err != nil {
			logger.Debug("WebSocket typing update failed for %s: %v", client.UserID, err)
		}

	case wsTypeMarkRead:
		if err := h.chatUseCase.MarkMessagesAsRead(ctx, client.UserID, frame.ConversationID); err != nil {
			h.sendError(client, "Failed to mark messages as read")
		}

	case wsTypeSubscribeMessages:
		stop, err := h.chatUseCase.StreamMessages(ctx, client.UserID, frame.ConversationID, func(messages []*entity.Message, err error) {
			if err != nil {
				h.sendError(client, "Message stream failed")
				return
			}
			h.send(client, map[string]interface{}{
				"type":            "messages_snapshot",
				"conversation_id": frame.ConversationID,
				"messages":        messages,
			})
		})
		if err != nil {
			h.sendError(client, "Cannot subscribe to conversation")
			return
		}
		h.trackSubscription(client, stop)

	case wsTypeUnsubscribeMessages:
		// Dropping all of the client's streams is the coarse but safe option;
		// clients resubscribe to what they still want.
		h.dropSubscriptions(client)

	case wsTypeSubscribeUnread:
		stop, err := h.chatUseCase.WatchUnreadTotal(ctx, client.UserID, func(total int, err error) {
			if err != nil {
				return
			}
			h.send(client, map[string]interface{}{"type": "unread_total", "total": total})
		})
		if err != nil {
			h.sendError(client, "Cannot subscribe to unread total")
			return
		}
		h.trackSubscription(client, stop)

	case wsTypeSubscribeNotifs:
		stop, err := h.notificationUseCase.WatchNotifications(ctx, client.UserID, func(notifications []*entity.Notification, err error) {
			if err != nil {
				return
			}
			h.send(client, map[string]interface{}{"type": "notifications_snapshot", "notifications": notifications})
		})
		if err != nil {
			h.sendError(client, "Cannot subscribe to notifications")
			return
		}
		h.trackSubscription(client, stop)

	default:
		h.sendError(client, "Unknown message type")
	}
}

func (h *WebSocketHandler) trackSubscription(client *ws.Client, stop func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscriptions[client] = append(h.subscriptions[client], stop)
}

func (h *WebSocketHandler) dropSubscriptions(client *ws.Client) {
	h.mu.Lock()
	stops := h.subscriptions[client]
	delete(h.subscriptions, client)
	h.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}

func (h *WebSocketHandler) send(client *ws.Client, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.wsManager.SendToUser(client.UserID, data)
}

func (h *WebSocketHandler) sendError(client *ws.Client, message string) {
	h.send(client, map[string]interface{}{"type": "error", "message": message})
}
