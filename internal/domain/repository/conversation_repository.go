package repository

import (
	"context"

	"restyle/internal/domain/entity"
)

// ConversationRepository persists conversations and their message
// subcollection. Listen* methods register live subscriptions that re-deliver
// the complete current result set on every underlying change; the returned
// func stops further callbacks but does not abort writes already in flight.
type ConversationRepository interface {
	// GetOrCreate inserts the conversation if no document exists under its
	// canonical pair key, inside a transaction. The bool reports creation.
	GetOrCreate(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error)
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error)
	Delete(ctx context.Context, id string) error

	CreateMessage(ctx context.Context, message *entity.Message) error
	GetMessageByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error)
	GetMessagesByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error)
	ListUnreadMessages(ctx context.Context, conversationID, receiverID string) ([]*entity.Message, error)
	MarkMessageRead(ctx context.Context, conversationID, messageID string) error
	TombstoneMessage(ctx context.Context, conversationID, messageID string) error
	DeleteMessages(ctx context.Context, conversationID string) error

	// ApplyMessage folds a freshly appended message into the conversation
	// document in one update: clears the sender's typing flag, atomically
	// increments the receiver's unread counter and overwrites lastMessage.
	ApplyMessage(ctx context.Context, conversationID string, message *entity.Message) error
	ZeroUnread(ctx context.Context, conversationID, userID string) error
	SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error

	ListenMessages(ctx context.Context, conversationID string, fn func([]*entity.Message, error)) (func(), error)
	ListenUserConversations(ctx context.Context, userID string, fn func([]*entity.Conversation, error)) (func(), error)
}
