package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"restyle/internal/domain/entity"
	"restyle/internal/domain/repository"
	"restyle/internal/infrastructure/ratelimit"
	ws "restyle/internal/infrastructure/websocket"
	"restyle/pkg/errors"
	"restyle/pkg/logger"
)

type ChatUseCase struct {
	conversationRepo repository.ConversationRepository
	userRepo         repository.UserRepository
	notifications    *NotificationUseCase
	wsManager        *ws.Manager
	rateLimiter      *ratelimit.RateLimiter
}

func NewChatUseCase(
	conversationRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	notifications *NotificationUseCase,
	wsManager *ws.Manager,
) *ChatUseCase {
	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine()

	return &ChatUseCase{
		conversationRepo: conversationRepo,
		userRepo:         userRepo,
		notifications:    notifications,
		wsManager:        wsManager,
		rateLimiter:      rateLimiter,
	}
}

type CreateConversationInput struct {
	RecipientID string
	ProductID   string
	AuctionID   string
	OrderID     string
}

type SendMessageInput struct {
	ConversationID string
	ReceiverID     string
	Content        string
	ImageURL       string
	Emoji          string
}

type ConversationResponse struct {
	*entity.Conversation
	OtherUser *entity.User `json:"other_user,omitempty"`
}

type MessageResponse struct {
	*entity.Message
	Sender *entity.User `json:"sender,omitempty"`
}

// GetOrCreateConversation resolves the single conversation for a participant
// pair, creating it when absent. The repository keys the document by the
// canonical sorted pair, so concurrent first contact from both sides cannot
// produce duplicates.
func (uc *ChatUseCase) GetOrCreateConversation(ctx context.Context, userID string, input CreateConversationInput) (*ConversationResponse, error) {
	if userID == "" || input.RecipientID == "" {
		return nil, errors.BadRequest("Both participant IDs are required", nil)
	}
	if userID == input.RecipientID {
		return nil, errors.BadRequest("You cannot start a conversation with yourself", nil)
	}

	allowed, waitTime := uc.rateLimiter.Allow(userID, "create_conversation")
	if !allowed {
		logger.Warn("GetOrCreateConversation Rate Limited: User %s must wait %v", userID, waitTime)
		return nil, errors.TooManyRequests("Too many new conversations", waitTime)
	}

	if err := uc.ensureNotAdmin(ctx, userID); err != nil {
		return nil, err
	}
	recipient, err := uc.userRepo.GetByID(ctx, input.RecipientID)
	if err != nil {
		logger.Error("GetOrCreateConversation Error: Recipient %s not found: %v", input.RecipientID, err)
		return nil, err
	}
	if recipient.IsAdmin() {
		return nil, errors.Forbidden("Admin accounts cannot participate in chat", nil)
	}

	conv := &entity.Conversation{
		Participants: []string{userID, input.RecipientID},
		ProductID:    input.ProductID,
		AuctionID:    input.AuctionID,
		OrderID:      input.OrderID,
	}

	result, created, err := uc.conversationRepo.GetOrCreate(ctx, conv)
	if err != nil {
		logger.Error("GetOrCreateConversation Error: Failed for users %s/%s: %v", userID, input.RecipientID, err)
		return nil, err
	}
	if created {
		logger.Info("Created conversation %s for users %s and %s", result.ID, userID, input.RecipientID)
	}

	return &ConversationResponse{
		Conversation: result,
		OtherUser:    recipient,
	}, nil
}

// SendMessage appends a message and folds it into the conversation document:
// the sender's typing flag is cleared, the receiver's unread counter is
// atomically incremented and the lastMessage preview overwritten, all in a
// single update.
func (uc *ChatUseCase) SendMessage(ctx context.Context, senderID string, input SendMessageInput) (*MessageResponse, error) {
	if input.ConversationID == "" || senderID == "" || input.ReceiverID == "" {
		return nil, errors.BadRequest("Conversation, sender and receiver IDs are required", nil)
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, errors.BadRequest("Message content cannot be empty", nil)
	}

	allowed, waitTime := uc.rateLimiter.Allow(senderID, "send_message")
	if !allowed {
		logger.Warn("SendMessage Rate Limited: User %s must wait %v", senderID, waitTime)
		return nil, errors.TooManyRequests("Too many messages", waitTime)
	}

	sender, err := uc.userRepo.GetByID(ctx, senderID)
	if err != nil {
		logger.Error("SendMessage Error: Sender %s not found: %v", senderID, err)
		return nil, err
	}
	if sender.IsAdmin() {
		return nil, errors.Forbidden("Admin accounts cannot participate in chat", nil)
	}

	conv, err := uc.conversationRepo.GetByID(ctx, input.ConversationID)
	if err != nil {
		logger.Error("SendMessage Error: Conversation %s not found: %v", input.ConversationID, err)
		return nil, err
	}
	if !conv.HasParticipant(senderID) || !conv.HasParticipant(input.ReceiverID) {
		return nil, errors.Forbidden("User is not a participant in this conversation", nil)
	}

	message := &entity.Message{
		ConversationID: input.ConversationID,
		SenderID:       senderID,
		ReceiverID:     input.ReceiverID,
		Content:        input.Content,
		ImageURL:       input.ImageURL,
		Emoji:          input.Emoji,
		Timestamp:      time.Now(),
	}

	if err := uc.conversationRepo.CreateMessage(ctx, message); err != nil {
		logger.Error("SendMessage Error: Failed to create message in conversation %s: %v", input.ConversationID, err)
		return nil, err
	}

	if err := uc.conversationRepo.ApplyMessage(ctx, input.ConversationID, message); err != nil {
		logger.Error("SendMessage Error: Failed to update conversation %s: %v", input.ConversationID, err)
		return nil, err
	}

	uc.pushNewMessage(conv, message, sender)

	return &MessageResponse{
		Message: message,
		Sender:  sender,
	}, nil
}

// SendAutomatedPurchaseMessage drops a system message into the buyer/seller
// conversation after checkout and notifies the seller. Returns the
// conversation ID.
func (uc *ChatUseCase) SendAutomatedPurchaseMessage(ctx context.Context, buyerID, sellerID, orderID, itemTitle string) (string, error) {
	content := fmt.Sprintf("Order placed for %q. The seller will prepare your shipment.", itemTitle)

	convID, err := uc.sendSystemMessage(ctx, buyerID, sellerID, sellerID, content, entity.Conversation{OrderID: orderID})
	if err != nil {
		return "", err
	}

	if _, err := uc.notifications.CreateOrderNotification(ctx, sellerID, orderID, itemTitle); err != nil {
		logger.Warn("SendAutomatedPurchaseMessage: Failed to notify seller %s: %v", sellerID, err)
	}

	return convID, nil
}

// SendAutomatedAuctionMessage connects the auction winner with the seller
// once the auction ends. Returns the conversation ID.
func (uc *ChatUseCase) SendAutomatedAuctionMessage(ctx context.Context, winnerID, sellerID, auctionID, itemTitle string) (string, error) {
	content := fmt.Sprintf("Congratulations! The auction for %q has ended. Please arrange payment and delivery here.", itemTitle)

	convID, err := uc.sendSystemMessage(ctx, winnerID, sellerID, winnerID, content, entity.Conversation{AuctionID: auctionID})
	if err != nil {
		return "", err
	}

	if _, err := uc.notifications.CreateAuctionWonNotification(ctx, winnerID, auctionID, itemTitle); err != nil {
		logger.Warn("SendAutomatedAuctionMessage: Failed to notify winner %s: %v", winnerID, err)
	}

	return convID, nil
}

// InitializeOrderChat opens (or finds) the buyer/seller conversation for an
// order and seeds it with a system message. Returns the conversation ID.
func (uc *ChatUseCase) InitializeOrderChat(ctx context.Context, buyerID, sellerID, orderID string) (string, error) {
	content := "You can discuss your order here."
	return uc.sendSystemMessage(ctx, buyerID, sellerID, sellerID, content, entity.Conversation{OrderID: orderID})
}

func (uc *ChatUseCase) sendSystemMessage(ctx context.Context, userA, userB, receiverID, content string, tags entity.Conversation) (string, error) {
	if userA == "" || userB == "" {
		return "", errors.BadRequest("Both participant IDs are required", nil)
	}
	if err := uc.ensureNotAdmin(ctx, userA); err != nil {
		return "", err
	}
	if err := uc.ensureNotAdmin(ctx, userB); err != nil {
		return "", err
	}

	conv := &entity.Conversation{
		Participants: []string{userA, userB},
		ProductID:    tags.ProductID,
		AuctionID:    tags.AuctionID,
		OrderID:      tags.OrderID,
	}

	result, _, err := uc.conversationRepo.GetOrCreate(ctx, conv)
	if err != nil {
		return "", err
	}

	message := &entity.Message{
		ConversationID: result.ID,
		SenderID:       entity.SystemSenderID,
		ReceiverID:     receiverID,
		Content:        content,
		Timestamp:      time.Now(),
	}

	if err := uc.conversationRepo.CreateMessage(ctx, message); err != nil {
		logger.Error("sendSystemMessage Error: Failed to create system message in conversation %s: %v", result.ID, err)
		return "", err
	}
	if err := uc.conversationRepo.ApplyMessage(ctx, result.ID, message); err != nil {
		logger.Error("sendSystemMessage Error: Failed to update conversation %s: %v", result.ID, err)
		return "", err
	}

	uc.pushNewMessage(result, message, nil)

	return result.ID, nil
}

func (uc *ChatUseCase) GetConversationByID(ctx context.Context, userID, conversationID string) (*ConversationResponse, error) {
	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errors.Forbidden("User is not a participant in this conversation", nil)
	}

	resp := &ConversationResponse{Conversation: conv}
	for _, participantID := range conv.Participants {
		if participantID != userID {
			otherUser, err := uc.userRepo.GetByID(ctx, participantID)
			if err == nil {
				resp.OtherUser = otherUser
			} else {
				logger.Warn("GetConversationByID Warning: Other user %s not found for conversation %s: %v", participantID, conversationID, err)
			}
			break
		}
	}

	return resp, nil
}

func (uc *ChatUseCase) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*ConversationResponse, int64, error) {
	conversations, total, err := uc.conversationRepo.ListByUserID(ctx, userID, limit, offset)
	if err != nil {
		logger.Error("ListConversations Error: Failed to list conversations for user %s: %v", userID, err)
		return nil, 0, err
	}

	var responses []*ConversationResponse
	for _, conv := range conversations {
		resp := &ConversationResponse{Conversation: conv}
		for _, participantID := range conv.Participants {
			if participantID != userID {
				otherUser, err := uc.userRepo.GetByID(ctx, participantID)
				if err == nil {
					resp.OtherUser = otherUser
				} else {
					logger.Warn("ListConversations Warning: Other user %s not found for conversation %s: %v", participantID, conv.ID, err)
				}
				break
			}
		}
		responses = append(responses, resp)
	}

	return responses, total, nil
}

func (uc *ChatUseCase) GetMessages(ctx context.Context, userID, conversationID string, limit, offset int) ([]*entity.Message, int64, error) {
	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, 0, err
	}
	if !conv.HasParticipant(userID) {
		return nil, 0, errors.Forbidden("User is not a participant in this conversation", nil)
	}

	return uc.conversationRepo.GetMessagesByConversation(ctx, conversationID, limit, offset)
}

// StreamMessages registers a live subscription that re-delivers the full
// ordered message list on every change. The returned func cancels the
// subscription; writes already in flight are not aborted.
func (uc *ChatUseCase) StreamMessages(ctx context.Context, userID, conversationID string, fn func([]*entity.Message, error)) (func(), error) {
	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errors.Forbidden("User is not a participant in this conversation", nil)
	}

	return uc.conversationRepo.ListenMessages(ctx, conversationID, fn)
}

// DeleteMessage tombstones the content in place. The message stays
// enumerable, and the conversation's lastMessage preview and unread counters
// are deliberately left alone, so a deleted message can linger as the
// conversation preview.
func (uc *ChatUseCase) DeleteMessage(ctx context.Context, userID, conversationID, messageID string) error {
	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return errors.Forbidden("User is not a participant in this conversation", nil)
	}

	message, err := uc.conversationRepo.GetMessageByID(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	if message.SenderID != userID {
		return errors.Forbidden("Only the sender can delete a message", nil)
	}

	if err := uc.conversationRepo.TombstoneMessage(ctx, conversationID, messageID); err != nil {
		return err
	}

	uc.pushToRoom(conversationID, map[string]interface{}{
		"type":            "message_deleted",
		"conversation_id": conversationID,
		"message_id":      messageID,
	}, "")

	return nil
}

// DeleteConversation removes every message and then the conversation
// document. The two steps are not transactional; a crash in between leaves
// partial state, matching the store's lack of cross-document atomicity here.
func (uc *ChatUseCase) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return errors.Forbidden("User is not a participant in this conversation", nil)
	}

	if err := uc.conversationRepo.DeleteMessages(ctx, conversationID); err != nil {
		logger.Error("DeleteConversation Error: Failed to delete messages for conversation %s: %v", conversationID, err)
		return err
	}
	if err := uc.conversationRepo.Delete(ctx, conversationID); err != nil {
		logger.Error("DeleteConversation Error: Failed to delete conversation %s: %v", conversationID, err)
		return err
	}

	uc.pushToRoom(conversationID, map[string]interface{}{
		"type":            "conversation_deleted",
		"conversation_id": conversationID,
	}, "")

	return nil
}

// MarkMessagesAsRead zeroes the caller's unread counter, then flips every
// unread message addressed to them concurrently and waits for the batch. The
// counter reset and the flag flips are two separate steps; a message landing
// in between is visible as a transient mismatch until the next snapshot.
func (uc *ChatUseCase) MarkMessagesAsRead(ctx context.Context, userID, conversationID string) error {
	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return errors.Forbidden("User is not a participant in this conversation", nil)
	}

	if err := uc.conversationRepo.ZeroUnread(ctx, conversationID, userID); err != nil {
		logger.Error("MarkMessagesAsRead Error: Failed to reset unread count for user %s in conversation %s: %v", userID, conversationID, err)
		return err
	}

	unread, err := uc.conversationRepo.ListUnreadMessages(ctx, conversationID, userID)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, message := range unread {
		id := message.ID
		g.Go(func() error {
			return uc.conversationRepo.MarkMessageRead(gctx, conversationID, id)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	uc.pushToRoom(conversationID, map[string]interface{}{
		"type":            "messages_read",
		"conversation_id": conversationID,
		"reader_id":       userID,
	}, userID)

	return nil
}

// WatchUnreadTotal streams the sum of the user's unread counters across all
// their conversations, recomputed in full on every snapshot.
func (uc *ChatUseCase) WatchUnreadTotal(ctx context.Context, userID string, fn func(int, error)) (func(), error) {
	if userID == "" {
		return nil, errors.BadRequest("User ID is required", nil)
	}

	return uc.conversationRepo.ListenUserConversations(ctx, userID, func(conversations []*entity.Conversation, err error) {
		if err != nil {
			fn(0, err)
			return
		}
		total := 0
		for _, conv := range conversations {
			total += conv.UnreadFor(userID)
		}
		fn(total, nil)
	})
}

// UpdateTypingStatus stamps or clears the caller's typing flag. Readers
// expire flags older than entity.TypingExpiry themselves; nothing clears a
// stale flag server-side.
func (uc *ChatUseCase) UpdateTypingStatus(ctx context.Context, userID, conversationID string, isTyping bool) error {
	allowed, _ := uc.rateLimiter.Allow(userID, "typing")
	if !allowed {
		// Excess typing updates are dropped silently.
		return nil
	}

	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return errors.Forbidden("User is not a participant in this conversation", nil)
	}

	if err := uc.conversationRepo.SetTyping(ctx, conversationID, userID, isTyping); err != nil {
		logger.Error("UpdateTypingStatus Error: Failed for user %s in conversation %s: %v", userID, conversationID, err)
		return err
	}

	uc.pushToRoom(conversationID, map[string]interface{}{
		"type":            "typing_indicator",
		"conversation_id": conversationID,
		"user_id":         userID,
		"is_typing":       isTyping,
		"expires_at":      time.Now().Add(entity.TypingExpiry).Format(time.RFC3339),
	}, userID)

	return nil
}

// ActiveTypers reports which other participants are typing right now.
func (uc *ChatUseCase) ActiveTypers(ctx context.Context, userID, conversationID string) ([]string, error) {
	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errors.Forbidden("User is not a participant in this conversation", nil)
	}

	var typers []string
	for _, typer := range conv.ActiveTypers(time.Now()) {
		if typer != userID {
			typers = append(typers, typer)
		}
	}
	return typers, nil
}

func (uc *ChatUseCase) ensureNotAdmin(ctx context.Context, userID string) error {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsAdmin() {
		return errors.Forbidden("Admin accounts cannot participate in chat", nil)
	}
	return nil
}

func (uc *ChatUseCase) pushNewMessage(conv *entity.Conversation, message *entity.Message, sender *entity.User) {
	event := map[string]interface{}{
		"type":            "new_message",
		"conversation_id": message.ConversationID,
		"message":         message,
	}
	if sender != nil {
		event["sender"] = sender
	}

	uc.pushToRoom(message.ConversationID, event, message.SenderID)

	// Participants on the conversation list rather than in the room still
	// get a preview update.
	update, err := json.Marshal(map[string]interface{}{
		"type":            "conversation_update",
		"conversation_id": message.ConversationID,
		"last_message":    message.Content,
		"sender_id":       message.SenderID,
		"timestamp":       message.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	for _, participantID := range conv.Participants {
		if participantID != message.SenderID {
			uc.wsManager.SendToUser(participantID, update)
		}
	}

	if sender != nil && !message.IsSystem() && !uc.wsManager.IsOnline(message.ReceiverID) {
		if _, err := uc.notifications.CreateMessageNotification(context.Background(), message.ReceiverID, message.ConversationID, sender.Username); err != nil {
			logger.Warn("pushNewMessage: Failed to create message notification for %s: %v", message.ReceiverID, err)
		}
	}
}

func (uc *ChatUseCase) pushToRoom(conversationID string, event map[string]interface{}, excludeUserID string) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	uc.wsManager.SendToRoom(conversationID, payload, excludeUserID)
}
