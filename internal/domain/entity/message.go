package entity

import "time"

// SystemSenderID marks automated messages created by order and auction flows.
const SystemSenderID = "system"

// DeletedPlaceholder replaces the content of a deleted message. Messages are
// never physically removed outside of full conversation deletion.
const DeletedPlaceholder = "This message has been deleted"

type Message struct {
	ID             string    `json:"id" firestore:"id"`
	ConversationID string    `json:"conversation_id" firestore:"conversationId"`
	SenderID       string    `json:"sender_id" firestore:"senderId"`
	ReceiverID     string    `json:"receiver_id" firestore:"receiverId"`
	Content        string    `json:"content" firestore:"content"`
	ImageURL       string    `json:"image_url,omitempty" firestore:"imageUrl,omitempty"`
	Emoji          string    `json:"emoji,omitempty" firestore:"emoji,omitempty"`
	Read           bool      `json:"read" firestore:"read"`
	Deleted        bool      `json:"deleted" firestore:"deleted"`
	Timestamp      time.Time `json:"timestamp" firestore:"timestamp"`
}

func (m *Message) IsSystem() bool {
	return m.SenderID == SystemSenderID
}
