package websocket

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"restyle/pkg/logger"
)

// Client represents one authenticated WebSocket connection.
type Client struct {
	UserID     string
	Conn       *websocket.Conn
	Send       chan []byte
	ActiveRoom string
}

// Manager tracks connected clients and per-conversation rooms.
type Manager struct {
	clients    map[string]*Client
	rooms      map[string]map[string]*Client
	Register   chan *Client
	Unregister chan *Client
	mutex      sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Start runs the registration loop until the context is cancelled.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				m.clients[client.UserID] = client
				m.mutex.Unlock()
				logger.Info("WebSocket client registered: %s", client.UserID)

			case client := <-m.Unregister:
				m.removeClient(client)
				logger.Info("WebSocket client unregistered: %s", client.UserID)

			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Manager) removeClient(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if existing, ok := m.clients[client.UserID]; ok && existing == client {
		delete(m.clients, client.UserID)
		close(client.Send)
	}
	for roomID, members := range m.rooms {
		if members[client.UserID] == client {
			delete(members, client.UserID)
			if len(members) == 0 {
				delete(m.rooms, roomID)
			}
		}
	}
}

// SendToUser delivers a message to one user if connected. Slow consumers are
// dropped rather than blocking the sender.
//
// The non-blocking send happens while the read lock is held: removeClient is
// the only place Send is closed, and it closes under the write lock, so a
// send can never race the close.
func (m *Manager) SendToUser(userID string, message []byte) {
	m.mutex.RLock()
	client, ok := m.clients[userID]
	full := false
	if ok {
		select {
		case client.Send <- message:
		default:
			full = true
		}
	}
	m.mutex.RUnlock()

	if full {
		logger.Warn("WebSocket client %s send buffer full, disconnecting", userID)
		m.removeClient(client)
	}
}

// IsOnline reports whether the user has a registered connection.
func (m *Manager) IsOnline(userID string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.clients[userID]
	return ok
}

// SendToRoom broadcasts to every member of a conversation room except
// excludeUserID (pass "" to include everyone). Sends happen under the read
// lock for the same reason as SendToUser.
func (m *Manager) SendToRoom(roomID string, message []byte, excludeUserID string) {
	m.mutex.RLock()
	var full []*Client
	for userID, client := range m.rooms[roomID] {
		if userID == excludeUserID {
			continue
		}
		select {
		case client.Send <- message:
		default:
			full = append(full, client)
		}
	}
	m.mutex.RUnlock()

	for _, client := range full {
		logger.Warn("WebSocket client %s send buffer full, disconnecting", client.UserID)
		m.removeClient(client)
	}
}

func (m *Manager) JoinRoom(roomID string, client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.rooms[roomID] == nil {
		m.rooms[roomID] = make(map[string]*Client)
	}
	m.rooms[roomID][client.UserID] = client
	client.ActiveRoom = roomID
}

func (m *Manager) LeaveRoom(roomID string, client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if members, ok := m.rooms[roomID]; ok {
		delete(members, client.UserID)
		if len(members) == 0 {
			delete(m.rooms, roomID)
		}
	}
	if client.ActiveRoom == roomID {
		client.ActiveRoom = ""
	}
}

// RoomMembers reports the user IDs currently joined to a room.
func (m *Manager) RoomMembers(roomID string) []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	members := make([]string, 0, len(m.rooms[roomID]))
	for userID := range m.rooms[roomID] {
		members = append(members, userID)
	}
	return members
}

// ReadPump reads client frames and hands them to handle until the
// connection drops.
func (c *Client) ReadPump(m *Manager, handle func(*Client, []byte)) {
	defer func() {
		m.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error for %s: %v", c.UserID, err)
			}
			break
		}
		handle(c, message)
	}
}

// WritePump drains the send channel onto the connection.
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for {
		message, ok := <-c.Send
		if !ok {
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logger.Warn("WebSocket write error for %s: %v", c.UserID, err)
			return
		}
	}
}
