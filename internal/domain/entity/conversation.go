package entity

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// TypingExpiry is how long a typing flag stays visible to readers. Writes are
// never cleaned up server-side; every reader filters by elapsed time instead.
const TypingExpiry = 5 * time.Second

type Conversation struct {
	ID           string               `json:"id" firestore:"id"`
	Participants []string             `json:"participants" firestore:"participants"`
	LastMessage  *LastMessage         `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	UnreadCount  map[string]int       `json:"unread_count" firestore:"unreadCount"`
	Typing       map[string]time.Time `json:"typing,omitempty" firestore:"typing,omitempty"`
	ProductID    string               `json:"product_id,omitempty" firestore:"productId,omitempty"`
	AuctionID    string               `json:"auction_id,omitempty" firestore:"auctionId,omitempty"`
	OrderID      string               `json:"order_id,omitempty" firestore:"orderId,omitempty"`
	CreatedAt    time.Time            `json:"created_at" firestore:"createdAt"`
	UpdatedAt    time.Time            `json:"updated_at" firestore:"updatedAt"`
}

// LastMessage is a denormalized copy of the newest message, kept on the
// conversation so list views never need to touch the messages subcollection.
type LastMessage struct {
	Content   string    `json:"content" firestore:"content"`
	SenderID  string    `json:"sender_id" firestore:"senderId"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
}

// ConversationKey derives the document ID for a participant pair. The key is
// order-independent, so both participants resolve to the same document and a
// conditional insert on it makes duplicate conversations impossible.
func ConversationKey(userA, userB string) string {
	lo, hi := userA, userB
	if lo > hi {
		lo, hi = hi, lo
	}
	sum := sha1.Sum([]byte(lo + ":" + hi))
	return hex.EncodeToString(sum[:])
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

func (c *Conversation) UnreadFor(userID string) int {
	if c.UnreadCount == nil {
		return 0
	}
	return c.UnreadCount[userID]
}

// ActiveTypers returns the participants whose typing flag is within the
// expiry window at the given instant. Stale flags from crashed clients are
// excluded here rather than ever being cleared in the store.
func (c *Conversation) ActiveTypers(now time.Time) []string {
	var typers []string
	for userID, at := range c.Typing {
		if now.Sub(at) < TypingExpiry {
			typers = append(typers, userID)
		}
	}
	return typers
}
