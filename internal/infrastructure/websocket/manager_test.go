package websocket

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestClient(userID string) *Client {
	return &Client{
		UserID: userID,
		Send:   make(chan []byte, 4),
	}
}

func TestSendToUser(t *testing.T) {
	m := NewManager()
	alice := newTestClient("alice")

	m.mutex.Lock()
	m.clients["alice"] = alice
	m.mutex.Unlock()

	m.SendToUser("alice", []byte("hello"))
	assert.Equal(t, []byte("hello"), <-alice.Send)

	// Unknown users are a no-op.
	m.SendToUser("nobody", []byte("hello"))
}

func TestSendToRoomExcludesSender(t *testing.T) {
	m := NewManager()
	alice := newTestClient("alice")
	bob := newTestClient("bob")

	m.JoinRoom("conv-1", alice)
	m.JoinRoom("conv-1", bob)

	m.SendToRoom("conv-1", []byte("new message"), "alice")

	assert.Equal(t, []byte("new message"), <-bob.Send)
	assert.Empty(t, alice.Send)
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	m := NewManager()
	bob := newTestClient("bob")

	m.JoinRoom("conv-1", bob)
	assert.Equal(t, []string{"bob"}, m.RoomMembers("conv-1"))

	m.LeaveRoom("conv-1", bob)
	assert.Empty(t, m.RoomMembers("conv-1"))
	assert.Equal(t, "", bob.ActiveRoom)

	m.SendToRoom("conv-1", []byte("late"), "")
	assert.Empty(t, bob.Send)
}

func TestSendDuringDisconnectDoesNotPanic(t *testing.T) {
	m := NewManager()

	// Broadcasts racing a disconnect must never land on a closed channel.
	for i := 0; i < 500; i++ {
		bob := newTestClient("bob")
		m.mutex.Lock()
		m.clients["bob"] = bob
		m.mutex.Unlock()
		m.JoinRoom("conv-1", bob)

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			m.SendToUser("bob", []byte("hi"))
		}()
		go func() {
			defer wg.Done()
			m.SendToRoom("conv-1", []byte("hi"), "")
		}()
		go func() {
			defer wg.Done()
			m.removeClient(bob)
		}()
		wg.Wait()
	}
}

func TestRemoveClientClearsRooms(t *testing.T) {
	m := NewManager()
	bob := newTestClient("bob")

	m.mutex.Lock()
	m.clients["bob"] = bob
	m.mutex.Unlock()
	m.JoinRoom("conv-1", bob)

	m.removeClient(bob)

	assert.Empty(t, m.RoomMembers("conv-1"))
	m.mutex.RLock()
	_, ok := m.clients["bob"]
	m.mutex.RUnlock()
	assert.False(t, ok)
}
