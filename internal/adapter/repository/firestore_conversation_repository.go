package repository

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"restyle/internal/domain/entity"
	"restyle/internal/domain/repository"
	"restyle/pkg/errors"
	"restyle/pkg/logger"
)

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) conversations() *firestore.CollectionRef {
	return r.client.Collection("conversations")
}

func (r *firestoreConversationRepository) messages(conversationID string) *firestore.CollectionRef {
	return r.conversations().Doc(conversationID).Collection("messages")
}

// GetOrCreate runs a transaction against the canonical pair-key document:
// both participants resolve to the same ID, and the existence re-check plus
// conditional create make duplicate conversations impossible even under
// concurrent first contact from both sides.
func (r *firestoreConversationRepository) GetOrCreate(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error) {
	if conv.ID == "" && len(conv.Participants) == 2 {
		conv.ID = entity.ConversationKey(conv.Participants[0], conv.Participants[1])
	}

	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	if conv.UnreadCount == nil {
		conv.UnreadCount = make(map[string]int)
		for _, p := range conv.Participants {
			conv.UnreadCount[p] = 0
		}
	}

	ref := r.conversations().Doc(conv.ID)

	var existing *entity.Conversation
	created := false

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing = nil
		created = false

		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			created = true
			return tx.Create(ref, conv)
		}

		var found entity.Conversation
		if err := doc.DataTo(&found); err != nil {
			return err
		}
		existing = &found
		return nil
	})
	if err != nil {
		return nil, false, errors.Internal("Failed to get or create conversation", err)
	}

	if existing != nil {
		return existing, false, nil
	}
	return conv, created, nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.conversations().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}

	var conv entity.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}

	return &conv, nil
}

func (r *firestoreConversationRepository) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error) {
	query := r.conversations().Where("participants", "array-contains", userID).OrderBy("updatedAt", firestore.Desc)

	allDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		logger.Error("Firestore error while fetching conversations for user %s: %v", userID, err)
		return nil, 0, errors.Internal("Failed to fetch conversations", err)
	}

	total := int64(len(allDocs))

	start := offset
	end := len(allDocs)
	if limit > 0 {
		end = start + limit
		if end > len(allDocs) {
			end = len(allDocs)
		}
	}
	if start > len(allDocs) {
		start = len(allDocs)
	}

	var conversations []*entity.Conversation
	for i := start; i < end; i++ {
		var conv entity.Conversation
		if err := allDocs[i].DataTo(&conv); err != nil {
			logger.Warn("Skipping malformed conversation document for user %s: %v", userID, err)
			continue
		}
		conversations = append(conversations, &conv)
	}

	return conversations, total, nil
}

func (r *firestoreConversationRepository) Delete(ctx context.Context, id string) error {
	_, err := r.conversations().Doc(id).Delete(ctx)
	if err != nil {
		return errors.Internal("Failed to delete conversation", err)
	}
	return nil
}

func (r *firestoreConversationRepository) CreateMessage(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	_, err := r.messages(message.ConversationID).Doc(message.ID).Set(ctx, message)
	if err != nil {
		return errors.Internal("Failed to create message", err)
	}
	return nil
}

func (r *firestoreConversationRepository) GetMessageByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error) {
	doc, err := r.messages(conversationID).Doc(messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Message", err)
		}
		return nil, errors.Internal("Failed to get message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	return &message, nil
}

func (r *firestoreConversationRepository) GetMessagesByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error) {
	query := r.messages(conversationID).OrderBy("timestamp", firestore.Asc)

	countDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		logger.Error("Firestore error while counting messages for conversation %s: %v", conversationID, err)
		return nil, 0, errors.Internal("Failed to count messages", err)
	}
	total := int64(len(countDocs))

	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	var messages []*entity.Message

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Error("Firestore error while iterating messages for conversation %s: %v", conversationID, err)
			return nil, 0, errors.Internal("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			logger.Error("Error parsing message data for conversation %s: %v", conversationID, err)
			return nil, 0, errors.Internal("Failed to parse message data", err)
		}

		messages = append(messages, &message)
	}

	return messages, total, nil
}

func (r *firestoreConversationRepository) ListUnreadMessages(ctx context.Context, conversationID, receiverID string) ([]*entity.Message, error) {
	query := r.messages(conversationID).
		Where("receiverId", "==", receiverID).
		Where("read", "==", false)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to query unread messages", err)
	}

	var messages []*entity.Message
	for _, doc := range docs {
		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			continue
		}
		messages = append(messages, &message)
	}
	return messages, nil
}

func (r *firestoreConversationRepository) MarkMessageRead(ctx context.Context, conversationID, messageID string) error {
	_, err := r.messages(conversationID).Doc(messageID).Update(ctx, []firestore.Update{
		{Path: "read", Value: true},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			// Message deleted between listing and flipping; nothing to do.
			return nil
		}
		return errors.Internal("Failed to update message read status", err)
	}
	return nil
}

// TombstoneMessage overwrites the content with the fixed placeholder and
// flags the record deleted. The conversation's lastMessage preview and
// unread counters are left untouched on purpose.
func (r *firestoreConversationRepository) TombstoneMessage(ctx context.Context, conversationID, messageID string) error {
	_, err := r.messages(conversationID).Doc(messageID).Update(ctx, []firestore.Update{
		{Path: "content", Value: entity.DeletedPlaceholder},
		{Path: "deleted", Value: true},
		{Path: "imageUrl", Value: firestore.Delete},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Message", err)
		}
		return errors.Internal("Failed to delete message", err)
	}
	return nil
}

// DeleteMessages removes every message document one by one. This is not a
// transaction; a crash mid-way leaves the remaining messages for the caller
// to retry.
func (r *firestoreConversationRepository) DeleteMessages(ctx context.Context, conversationID string) error {
	iter := r.messages(conversationID).Documents(ctx)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return errors.Internal("Failed to iterate messages for deletion", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return errors.Internal("Failed to delete message", err)
		}
	}
	return nil
}

func (r *firestoreConversationRepository) ApplyMessage(ctx context.Context, conversationID string, message *entity.Message) error {
	updates := []firestore.Update{
		{FieldPath: firestore.FieldPath{"typing", message.SenderID}, Value: firestore.Delete},
		{FieldPath: firestore.FieldPath{"unreadCount", message.ReceiverID}, Value: firestore.Increment(1)},
		{Path: "lastMessage", Value: &entity.LastMessage{
			Content:   message.Content,
			SenderID:  message.SenderID,
			Timestamp: message.Timestamp,
		}},
		{Path: "updatedAt", Value: message.Timestamp},
	}

	_, err := r.conversations().Doc(conversationID).Update(ctx, updates)
	if err != nil {
		return errors.Internal("Failed to update conversation with message", err)
	}
	return nil
}

func (r *firestoreConversationRepository) ZeroUnread(ctx context.Context, conversationID, userID string) error {
	_, err := r.conversations().Doc(conversationID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"unreadCount", userID}, Value: 0},
	})
	if err != nil {
		return errors.Internal("Failed to reset unread count", err)
	}
	return nil
}

func (r *firestoreConversationRepository) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	var value interface{} = firestore.Delete
	if isTyping {
		value = time.Now()
	}

	_, err := r.conversations().Doc(conversationID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"typing", userID}, Value: value},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		return errors.Internal("Failed to update typing status", err)
	}
	return nil
}

func (r *firestoreConversationRepository) ListenMessages(ctx context.Context, conversationID string, fn func([]*entity.Message, error)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	query := r.messages(conversationID).OrderBy("timestamp", firestore.Asc)
	snapshots := query.Snapshots(ctx)

	go func() {
		defer snapshots.Stop()
		for {
			snap, err := snapshots.Next()
			if err != nil {
				if status.Code(err) == codes.Canceled {
					return
				}
				logger.Error("Message subscription failed for conversation %s: %v", conversationID, err)
				fn(nil, errors.Internal("Message subscription failed", err))
				return
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				fn(nil, errors.Internal("Failed to read message snapshot", err))
				return
			}

			messages := make([]*entity.Message, 0, len(docs))
			for _, doc := range docs {
				var message entity.Message
				if err := doc.DataTo(&message); err != nil {
					logger.Warn("Skipping malformed message document in conversation %s: %v", conversationID, err)
					continue
				}
				messages = append(messages, &message)
			}

			fn(messages, nil)
		}
	}()

	return cancel, nil
}

func (r *firestoreConversationRepository) ListenUserConversations(ctx context.Context, userID string, fn func([]*entity.Conversation, error)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	query := r.conversations().Where("participants", "array-contains", userID)
	snapshots := query.Snapshots(ctx)

	go func() {
		defer snapshots.Stop()
		for {
			snap, err := snapshots.Next()
			if err != nil {
				if status.Code(err) == codes.Canceled {
					return
				}
				logger.Error("Conversation subscription failed for user %s: %v", userID, err)
				fn(nil, errors.Internal("Conversation subscription failed", err))
				return
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				fn(nil, errors.Internal("Failed to read conversation snapshot", err))
				return
			}

			conversations := make([]*entity.Conversation, 0, len(docs))
			for _, doc := range docs {
				var conv entity.Conversation
				if err := doc.DataTo(&conv); err != nil {
					logger.Warn("Skipping malformed conversation document for user %s: %v", userID, err)
					continue
				}
				conversations = append(conversations, &conv)
			}

			sort.Slice(conversations, func(i, j int) bool {
				return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
			})

			fn(conversations, nil)
		}
	}()

	return cancel, nil
}
