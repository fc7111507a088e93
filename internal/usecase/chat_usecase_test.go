package usecase

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restyle/internal/domain/entity"
	ws "restyle/internal/infrastructure/websocket"
	"restyle/pkg/errors"
)

// memConversationRepo is an in-memory ConversationRepository that mirrors the
// Firestore adapter's semantics: canonical pair keys, atomic counter updates
// under a mutex, and listener callbacks that re-deliver full result sets.
type memConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]*entity.Conversation
	messages      map[string][]*entity.Message
	convListeners map[string][]func([]*entity.Conversation, error)
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{
		conversations: make(map[string]*entity.Conversation),
		messages:      make(map[string][]*entity.Message),
		convListeners: make(map[string][]func([]*entity.Conversation, error)),
	}
}

func (r *memConversationRepo) GetOrCreate(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := entity.ConversationKey(conv.Participants[0], conv.Participants[1])
	if existing, ok := r.conversations[key]; ok {
		return existing, false, nil
	}

	now := time.Now()
	stored := &entity.Conversation{
		ID:           key,
		Participants: append([]string(nil), conv.Participants...),
		UnreadCount:  make(map[string]int),
		ProductID:    conv.ProductID,
		AuctionID:    conv.AuctionID,
		OrderID:      conv.OrderID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.conversations[key] = stored
	return stored, true, nil
}

func (r *memConversationRepo) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return conv, nil
}

func (r *memConversationRepo) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*entity.Conversation
	for _, conv := range r.conversations {
		if conv.HasParticipant(userID) {
			result = append(result, conv)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, int64(len(result)), nil
}

func (r *memConversationRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[id]; !ok {
		return errors.NotFound("Conversation", nil)
	}
	delete(r.conversations, id)
	return nil
}

func (r *memConversationRepo) CreateMessage(ctx context.Context, message *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	r.messages[message.ConversationID] = append(r.messages[message.ConversationID], message)
	return nil
}

func (r *memConversationRepo) GetMessageByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages[conversationID] {
		if m.ID == messageID {
			return m, nil
		}
	}
	return nil, errors.NotFound("Message", nil)
}

func (r *memConversationRepo) GetMessagesByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.messages[conversationID]
	return append([]*entity.Message(nil), all...), int64(len(all)), nil
}

func (r *memConversationRepo) ListUnreadMessages(ctx context.Context, conversationID, receiverID string) ([]*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var unread []*entity.Message
	for _, m := range r.messages[conversationID] {
		if m.ReceiverID == receiverID && !m.Read {
			unread = append(unread, m)
		}
	}
	return unread, nil
}

func (r *memConversationRepo) MarkMessageRead(ctx context.Context, conversationID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages[conversationID] {
		if m.ID == messageID {
			m.Read = true
			return nil
		}
	}
	return errors.NotFound("Message", nil)
}

func (r *memConversationRepo) TombstoneMessage(ctx context.Context, conversationID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages[conversationID] {
		if m.ID == messageID {
			m.Content = entity.DeletedPlaceholder
			m.Deleted = true
			m.ImageURL = ""
			return nil
		}
	}
	return errors.NotFound("Message", nil)
}

func (r *memConversationRepo) DeleteMessages(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.messages, conversationID)
	return nil
}

func (r *memConversationRepo) ApplyMessage(ctx context.Context, conversationID string, message *entity.Message) error {
	r.mu.Lock()

	conv, ok := r.conversations[conversationID]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("Conversation", nil)
	}
	delete(conv.Typing, message.SenderID)
	if conv.UnreadCount == nil {
		conv.UnreadCount = make(map[string]int)
	}
	conv.UnreadCount[message.ReceiverID]++
	conv.LastMessage = &entity.LastMessage{
		Content:   message.Content,
		SenderID:  message.SenderID,
		Timestamp: message.Timestamp,
	}
	conv.UpdatedAt = message.Timestamp
	r.mu.Unlock()

	r.notifyConvListeners()
	return nil
}

func (r *memConversationRepo) ZeroUnread(ctx context.Context, conversationID, userID string) error {
	r.mu.Lock()

	conv, ok := r.conversations[conversationID]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("Conversation", nil)
	}
	if conv.UnreadCount != nil {
		conv.UnreadCount[userID] = 0
	}
	r.mu.Unlock()

	r.notifyConvListeners()
	return nil
}

func (r *memConversationRepo) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[conversationID]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	if isTyping {
		if conv.Typing == nil {
			conv.Typing = make(map[string]time.Time)
		}
		conv.Typing[userID] = time.Now()
	} else {
		delete(conv.Typing, userID)
	}
	return nil
}

func (r *memConversationRepo) ListenMessages(ctx context.Context, conversationID string, fn func([]*entity.Message, error)) (func(), error) {
	messages, _, _ := r.GetMessagesByConversation(ctx, conversationID, 0, 0)
	fn(messages, nil)
	return func() {}, nil
}

func (r *memConversationRepo) ListenUserConversations(ctx context.Context, userID string, fn func([]*entity.Conversation, error)) (func(), error) {
	r.mu.Lock()
	r.convListeners[userID] = append(r.convListeners[userID], fn)
	r.mu.Unlock()

	conversations, _, _ := r.ListByUserID(ctx, userID, 0, 0)
	fn(conversations, nil)
	return func() {}, nil
}

func (r *memConversationRepo) notifyConvListeners() {
	r.mu.Lock()
	listeners := make(map[string][]func([]*entity.Conversation, error), len(r.convListeners))
	for userID, fns := range r.convListeners {
		listeners[userID] = append(([]func([]*entity.Conversation, error))(nil), fns...)
	}
	r.mu.Unlock()

	for userID, fns := range listeners {
		conversations, _, _ := r.ListByUserID(context.Background(), userID, 0, 0)
		for _, fn := range fns {
			fn(conversations, nil)
		}
	}
}

type memUserRepo struct {
	users map[string]*entity.User
}

func newMemUserRepo(users ...*entity.User) *memUserRepo {
	r := &memUserRepo{users: make(map[string]*entity.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	return user, nil
}

type memNotificationRepo struct {
	mu            sync.Mutex
	notifications map[string]*entity.Notification
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{notifications: make(map[string]*entity.Notification)}
}

func (r *memNotificationRepo) Create(ctx context.Context, notification *entity.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if notification.ID == "" {
		notification.ID = uuid.New().String()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now()
	}
	r.notifications[notification.ID] = notification
	return nil
}

func (r *memNotificationRepo) GetByID(ctx context.Context, id string) (*entity.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	notification, ok := r.notifications[id]
	if !ok {
		return nil, errors.NotFound("Notification", nil)
	}
	return notification, nil
}

func (r *memNotificationRepo) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Notification, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*entity.Notification
	for _, n := range r.notifications {
		if n.UserID == userID {
			result = append(result, n)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, int64(len(result)), nil
}

func (r *memNotificationRepo) ListUnreadByUserID(ctx context.Context, userID string) ([]*entity.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*entity.Notification
	for _, n := range r.notifications {
		if n.UserID == userID && !n.Read {
			result = append(result, n)
		}
	}
	return result, nil
}

func (r *memNotificationRepo) MarkRead(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	notification, ok := r.notifications[id]
	if !ok {
		return errors.NotFound("Notification", nil)
	}
	notification.Read = true
	return nil
}

func (r *memNotificationRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.notifications[id]; !ok {
		return errors.NotFound("Notification", nil)
	}
	delete(r.notifications, id)
	return nil
}

func (r *memNotificationRepo) ListenByUserID(ctx context.Context, userID string, fn func([]*entity.Notification, error)) (func(), error) {
	notifications, _, _ := r.ListByUserID(ctx, userID, 0, 0)
	fn(notifications, nil)
	return func() {}, nil
}

func newTestChatUseCase(t *testing.T) (*ChatUseCase, *memConversationRepo, *memNotificationRepo) {
	t.Helper()

	convRepo := newMemConversationRepo()
	notifRepo := newMemNotificationRepo()
	userRepo := newMemUserRepo(
		&entity.User{ID: "alice", Username: "alice", Email: "alice@example.com"},
		&entity.User{ID: "bob", Username: "bob", Email: "bob@example.com"},
		&entity.User{ID: "root", Username: "root", Email: "root@example.com", Role: entity.RoleAdmin},
	)
	manager := ws.NewManager()
	notifications := NewNotificationUseCase(notifRepo, manager)

	return NewChatUseCase(convRepo, userRepo, notifications, manager), convRepo, notifRepo
}

func TestGetOrCreateConversationIsIdempotent(t *testing.T) {
	uc, _, _ := newTestChatUseCase(t)
	ctx := context.Background()

	first, err := uc.GetOrCreateConversation(ctx, "alice", CreateConversationInput{RecipientID: "bob"})
	require.NoError(t, err)

	// Same pair from the other side resolves to the same conversation.
	second, err := uc.GetOrCreateConversation(ctx, "bob", CreateConversationInput{RecipientID: "alice"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, entity.ConversationKey("alice", "bob"), first.ID)
	assert.Equal(t, "bob", first.OtherUser.ID)
	assert.Equal(t, "alice", second.OtherUser.ID)
}

func TestGetOrCreateConversationConcurrentFirstContact(t *testing.T) {
	uc, convRepo, _ := newTestChatUseCase(t)
	ctx := context.Background()

	// Both participants open the conversation at the same time; exactly one
	// document may result.
	var wg sync.WaitGroup
	ids := make([]string, 2)
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		resp, err := uc.GetOrCreateConversation(ctx, "alice", CreateConversationInput{RecipientID: "bob"})
		if err == nil {
			ids[0] = resp.ID
		}
		errs[0] = err
	}()
	go func() {
		defer wg.Done()
		resp, err := uc.GetOrCreateConversation(ctx, "bob", CreateConversationInput{RecipientID: "alice"})
		if err == nil {
			ids[1] = resp.ID
		}
		errs[1] = err
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, ids[0], ids[1])

	conversations, total, err := convRepo.ListByUserID(ctx, "alice", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, conversations, 1)
	assert.Equal(t, ids[0], conversations[0].ID)
}

func TestGetOrCreateConversationRejectsSelfAndBlank(t *testing.T) {
	uc, _, _ := newTestChatUseCase(t)
	ctx := context.Background()

	_, err := uc.GetOrCreateConversation(ctx, "alice", CreateConversationInput{RecipientID: "alice"})
	require.Error(t, err)
	assert.Equal(t, "BAD_REQUEST", err.(*errors.AppError).Code)

	_, err = uc.GetOrCreateConversation(ctx, "alice", CreateConversationInput{})
	require.Error(t, err)
	assert.Equal(t, "BAD_REQUEST", err.(*errors.AppError).Code)
}

func TestGetOrCreateConversationRejectsAdmins(t *testing.T) {
	uc, _, _ := newTestChatUseCase(t)
	ctx := context.Background()

	_, err := uc.GetOrCreateConversation(ctx, "alice", CreateConversationInput{RecipientID: "root"})
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", err.(*errors.AppError).Code)

	_, err = uc.GetOrCreateConversation(ctx, "root", CreateConversationInput{RecipientID: "alice"})
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", err.(*errors.AppError).Code)
}

func TestSendMessageUpdatesConversationState(t *testing.T) {
	uc, convRepo, _ := newTestChatUseCase(t)
	ctx := context.Background()

	conv, err := uc.GetOrCreateConversation(ctx, "alice", CreateConversationInput{RecipientID: "bob"})
	require.NoError(t, err)

	require.NoError(t, uc.UpdateTypingStatus(ctx, "alice", conv.ID, true))

	msg, err := uc.SendMessage(ctx, "alice", SendMessageInput{
		ConversationID: conv.ID,
		ReceiverID:     "bob",
		Content:        "is this still available?",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "alice", msg.Sender.ID)

	stored, err := convRepo.GetByID(ctx, conv.ID)
	require.NoError(t, err)

	// One send: receiver's counter incremented, sender's untouched, typing
	// flag cleared, preview overwritten.
	assert.Equal(t, 1, stored.UnreadFor("bob"))
	assert.Equal(t, 0, stored.UnreadFor("alice"))
	assert.NotContains(t, stored.Typing, "alice")
	require.NotNil(t, stored.LastMessage)
	assert.Equal(t, "is this still available?", stored.LastMessage.Content)
	assert.Equal(t, "alice", stored.LastMessage.SenderID)
}

func TestSendMessageValidatesBeforePersisting(t *testing.T) {
	uc, convRepo, _ := newTestChatUseCase(t)
	ctx := context.Background()

	conv, err := uc.GetOrCreateConversation(ctx, "alice", CreateConversationInput{RecipientID: "bob"})
	require.NoError(t, err)

	for _, content := range []string{"", "   ", "\n\t"} {
		_, err := uc.SendMessage(ctx, "alice", SendMessageInput{
			ConversationID: conv.ID,
			ReceiverID:     "bob",
			Content:        content,
		})
		require.Error(t, err)
		assert.Equal(t, "BAD_REQUEST", err.(*errors.AppError).Code)
	}

	messages, total, err := convRepo.GetMessagesByConversation(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.Zero(t, total)
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	uc, _, _ := newTestChatUseCase(t)
	ctx := context.Background()

	conv, err := uc.GetOrCreateConversation(ctx, "alice", CreateConversationInput{RecipientID: "bob"})
	require.NoError(t, err)

	_, err = uc.SendMessage(ctx, "alice", SendMessageInput{
		ConversationID: conv.ID,
		ReceiverID:     "root",
		Content:        "hi",
	})
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", err.(*errors.AppError).Code)
}

func TestMarkMessagesAsReadZeroesCounterAndFlipsFlags(t *testing.T) {
	uc, convRepo, _ := newTestChatUseCase(t)
	ctx := context.Background()

	conv, err := uc.GetOrCreateConversation(ctx, "alice", CreateConversationInput{RecipientID: "bob"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := uc.SendMessage(ctx, "alice", SendMessageInput{
			ConversationID: conv.ID,
			ReceiverID:     "bob",
			Content:        "ping",
		})
		require.NoError(t, err)
	}

	stored, _ := convRepo.GetByID(ctx, conv.ID)
	require.Equal(t, 3, stored.UnreadFor("bob"))

	require.NoError(t, uc.MarkMessagesAsRead(ctx, "bob", conv.ID))

	stored, _ = convRepo.GetByID(ctx, conv.ID)
	assert.Equal(t, 0, stored.UnreadFor("bob"))

	unread, err := convRepo.ListUnreadMessages(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.Empty(t, unread)

	messages, _, err := convRepo.GetMessagesByConversation(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	for _, m := range messages {
		assert.True(t, m.Read)
	}
}

func TestDeleteMessageTombstones(t *testing.T) {
	uc, convRepo, _ := newTestChatUseCase(t)
	ctx := context.Background()

	conv, err := uc.GetOrCreateConversation(ctx, "alice", CreateConversationInput{RecipientID: "bob"})
	require.NoError(t, err)

	msg, err := uc.SendMessage(ctx, "alice", SendMessageInput{
		ConversationID: conv.ID,
		ReceiverID:     "bob",
		Content:        "sent by mistake",
		ImageURL:       "https://img.example.com/x.jpg",
	})
	require.NoError(t, err)

	// Only the sender may delete.
	err = uc.DeleteMessage(ctx, "bob", conv.ID, msg.ID)
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", err.(*errors.AppError).Code)

	require.NoError(t, uc.DeleteMessage(ctx, "alice", conv.ID, msg.ID))

	messages, total, err := convRepo.GetMessagesByConversation(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, entity.DeletedPlaceholder, messages[0].Content)
	assert.True(t, messages[0].Deleted)
	assert.Empty(t, messages[0].ImageURL)

	// The conversation preview is deliberately left stale.
	stored, _ := convRepo.GetByID(ctx, conv.ID)
	require.NotNil(t, stored.LastMessage)
	assert.Equal(t, "sent by mistake", stored.LastMessage.Content)
}

func TestDeleteConversationRemovesMessagesAndDocument(t *testing.T) {
	uc, convRepo, _ := newTestChatUseCase(t)
	ctx := context.Background()

	conv, err := uc.GetOrCreateConversation(ctx, "alice", CreateConversationInput{RecipientID: "bob"})
	require.NoError(t, err)

	_, err = uc.SendMessage(ctx, "alice", SendMessageInput{
		ConversationID: conv.ID,
		ReceiverID:     "bob",
		Content:        "hello",
	})
	require.NoError(t, err)

	err = uc.DeleteConversation(ctx, "root", conv.ID)
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", err.(*errors.AppError).Code)

	require.NoError(t, uc.DeleteConversation(ctx, "bob", conv.ID))

	_, err = convRepo.GetByID(ctx, conv.ID)
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", err.(*errors.AppError).Code)

	messages, _, err := convRepo.GetMessagesByConversation(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)

	// Re-contacting the same pair starts from a clean slate.
	fresh, err := uc.GetOrCreateConversation(ctx, "alice", CreateConversationInput{RecipientID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, conv.ID, fresh.ID)
	assert.Nil(t, fresh.LastMessage)
	assert.Equal(t, 0, fresh.UnreadFor("alice"))
	assert.Equal(t, 0, fresh.UnreadFor("bob"))
}

func TestWatchUnreadTotalSumsAcrossConversations(t *testing.T) {
	uc, _, _ := newTestChatUseCase(t)
	ctx := context.Background()

	convAB, err := uc.GetOrCreateConversation(ctx, "alice", CreateConversationInput{RecipientID: "bob"})
	require.NoError(t, err)

	var mu sync.Mutex
	var totals []int
	stop, err := uc.WatchUnreadTotal(ctx, "bob", func(total int, err error) {
		require.NoError(t, err)
		mu.Lock()
		totals = append(totals, total)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer stop()

	for i := 0; i < 2; i++ {
		_, err := uc.SendMessage(ctx, "alice", SendMessageInput{
			ConversationID: convAB.ID,
			ReceiverID:     "bob",
			Content:        "ping",
		})
		require.NoError(t, err)
	}
	require.NoError(t, uc.MarkMessagesAsRead(ctx, "bob", convAB.ID))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, totals)
	assert.Equal(t, 0, totals[0])
	assert.Equal(t, 0, totals[len(totals)-1])
	assert.Contains(t, totals, 2)
}

func TestTypingIndicatorExpiry(t *testing.T) {
	uc, convRepo, _ := newTestChatUseCase(t)
	ctx := context.Background()

	conv, err := uc.GetOrCreateConversation(ctx, "alice", CreateConversationInput{RecipientID: "bob"})
	require.NoError(t, err)

	require.NoError(t, uc.UpdateTypingStatus(ctx, "alice", conv.ID, true))

	typers, err := uc.ActiveTypers(ctx, "bob", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, typers)

	// The caller never sees their own flag.
	typers, err = uc.ActiveTypers(ctx, "alice", conv.ID)
	require.NoError(t, err)
	assert.Empty(t, typers)

	// Backdate the flag past the expiry window; readers filter it out even
	// though it was never cleared.
	stored, _ := convRepo.GetByID(ctx, conv.ID)
	stored.Typing["alice"] = time.Now().Add(-entity.TypingExpiry - time.Second)

	typers, err = uc.ActiveTypers(ctx, "bob", conv.ID)
	require.NoError(t, err)
	assert.Empty(t, typers)

	require.NoError(t, uc.UpdateTypingStatus(ctx, "alice", conv.ID, false))
	stored, _ = convRepo.GetByID(ctx, conv.ID)
	assert.NotContains(t, stored.Typing, "alice")
}

func TestStreamMessagesRequiresParticipant(t *testing.T) {
	uc, _, _ := newTestChatUseCase(t)
	ctx := context.Background()

	conv, err := uc.GetOrCreateConversation(ctx, "alice", CreateConversationInput{RecipientID: "bob"})
	require.NoError(t, err)

	_, err = uc.StreamMessages(ctx, "root", conv.ID, func([]*entity.Message, error) {})
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", err.(*errors.AppError).Code)

	var got []*entity.Message
	stop, err := uc.StreamMessages(ctx, "bob", conv.ID, func(messages []*entity.Message, err error) {
		require.NoError(t, err)
		got = messages
	})
	require.NoError(t, err)
	defer stop()
	assert.Empty(t, got)
}

func TestSendAutomatedPurchaseMessage(t *testing.T) {
	uc, convRepo, notifRepo := newTestChatUseCase(t)
	ctx := context.Background()

	convID, err := uc.SendAutomatedPurchaseMessage(ctx, "alice", "bob", "order-1", "Vintage denim jacket")
	require.NoError(t, err)
	assert.Equal(t, entity.ConversationKey("alice", "bob"), convID)

	messages, _, err := convRepo.GetMessagesByConversation(ctx, convID, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, entity.SystemSenderID, messages[0].SenderID)
	assert.True(t, messages[0].IsSystem())
	assert.Contains(t, messages[0].Content, "Vintage denim jacket")

	// Seller gets the unread and the order notification.
	stored, _ := convRepo.GetByID(ctx, convID)
	assert.Equal(t, 1, stored.UnreadFor("bob"))

	notifications, _, err := notifRepo.ListByUserID(ctx, "bob", 0, 0)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, entity.NotificationTypeOrder, notifications[0].Type)
	assert.Equal(t, "/orders/order-1", notifications[0].Link)
}

func TestSendAutomatedAuctionMessage(t *testing.T) {
	uc, convRepo, notifRepo := newTestChatUseCase(t)
	ctx := context.Background()

	convID, err := uc.SendAutomatedAuctionMessage(ctx, "alice", "bob", "auction-9", "Silk scarf")
	require.NoError(t, err)

	stored, _ := convRepo.GetByID(ctx, convID)
	assert.Equal(t, "auction-9", stored.AuctionID)
	// The winner receives the system message.
	assert.Equal(t, 1, stored.UnreadFor("alice"))

	notifications, _, err := notifRepo.ListByUserID(ctx, "alice", 0, 0)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, "/auctions/auction-9", notifications[0].Link)
}

func TestInitializeOrderChatReusesConversation(t *testing.T) {
	uc, convRepo, _ := newTestChatUseCase(t)
	ctx := context.Background()

	first, err := uc.InitializeOrderChat(ctx, "alice", "bob", "order-1")
	require.NoError(t, err)
	second, err := uc.InitializeOrderChat(ctx, "bob", "alice", "order-2")
	require.NoError(t, err)

	assert.Equal(t, first, second)

	messages, _, err := convRepo.GetMessagesByConversation(ctx, first, 0, 0)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestListConversationsEmbedsOtherUser(t *testing.T) {
	uc, _, _ := newTestChatUseCase(t)
	ctx := context.Background()

	conv, err := uc.GetOrCreateConversation(ctx, "alice", CreateConversationInput{RecipientID: "bob"})
	require.NoError(t, err)
	_, err = uc.SendMessage(ctx, "alice", SendMessageInput{
		ConversationID: conv.ID,
		ReceiverID:     "bob",
		Content:        "hi",
	})
	require.NoError(t, err)

	list, total, err := uc.ListConversations(ctx, "bob", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].OtherUser)
	assert.Equal(t, "alice", list[0].OtherUser.ID)
}
