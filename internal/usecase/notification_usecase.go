package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"restyle/internal/domain/entity"
	"restyle/internal/domain/repository"
	ws "restyle/internal/infrastructure/websocket"
	"restyle/pkg/errors"
	"restyle/pkg/logger"
)

type NotificationUseCase struct {
	notificationRepo repository.NotificationRepository
	wsManager        *ws.Manager
}

func NewNotificationUseCase(
	notificationRepo repository.NotificationRepository,
	wsManager *ws.Manager,
) *NotificationUseCase {
	return &NotificationUseCase{
		notificationRepo: notificationRepo,
		wsManager:        wsManager,
	}
}

type CreateNotificationInput struct {
	UserID  string
	Title   string
	Message string
	Type    string
	Link    string
}

func (uc *NotificationUseCase) CreateNotification(ctx context.Context, input CreateNotificationInput) (*entity.Notification, error) {
	if input.UserID == "" {
		return nil, errors.BadRequest("User ID is required", nil)
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, errors.BadRequest("Notification title is required", nil)
	}
	if input.Type == "" {
		input.Type = entity.NotificationTypeSystem
	}

	notification := &entity.Notification{
		UserID:  input.UserID,
		Title:   input.Title,
		Message: input.Message,
		Type:    input.Type,
		Link:    input.Link,
	}

	if err := uc.notificationRepo.Create(ctx, notification); err != nil {
		logger.Error("CreateNotification Error: Failed to create notification for user %s: %v", input.UserID, err)
		return nil, err
	}

	uc.pushNotification(notification)

	return notification, nil
}

func (uc *NotificationUseCase) CreateOrderNotification(ctx context.Context, userID, orderID, itemTitle string) (*entity.Notification, error) {
	return uc.CreateNotification(ctx, CreateNotificationInput{
		UserID:  userID,
		Title:   "Order placed",
		Message: fmt.Sprintf("Your item %q has been ordered", itemTitle),
		Type:    entity.NotificationTypeOrder,
		Link:    "/orders/" + orderID,
	})
}

func (uc *NotificationUseCase) CreatePaymentNotification(ctx context.Context, userID, orderID string) (*entity.Notification, error) {
	return uc.CreateNotification(ctx, CreateNotificationInput{
		UserID:  userID,
		Title:   "Payment received",
		Message: "The payment for your order has been completed",
		Type:    entity.NotificationTypePayment,
		Link:    "/orders/" + orderID,
	})
}

func (uc *NotificationUseCase) CreateAuctionWonNotification(ctx context.Context, userID, auctionID, itemTitle string) (*entity.Notification, error) {
	return uc.CreateNotification(ctx, CreateNotificationInput{
		UserID:  userID,
		Title:   "Auction won",
		Message: fmt.Sprintf("You won the auction for %q", itemTitle),
		Type:    entity.NotificationTypeOrder,
		Link:    "/auctions/" + auctionID,
	})
}

func (uc *NotificationUseCase) CreateMessageNotification(ctx context.Context, userID, conversationID, senderName string) (*entity.Notification, error) {
	return uc.CreateNotification(ctx, CreateNotificationInput{
		UserID:  userID,
		Title:   "New message",
		Message: fmt.Sprintf("%s sent you a message", senderName),
		Type:    entity.NotificationTypeMessage,
		Link:    "/chat/" + conversationID,
	})
}

func (uc *NotificationUseCase) ListNotifications(ctx context.Context, userID string, limit, offset int) ([]*entity.Notification, int64, error) {
	if userID == "" {
		return nil, 0, errors.BadRequest("User ID is required", nil)
	}
	return uc.notificationRepo.ListByUserID(ctx, userID, limit, offset)
}

// WatchNotifications re-delivers the user's full notification list, newest
// first, on every change. The returned func stops the subscription.
func (uc *NotificationUseCase) WatchNotifications(ctx context.Context, userID string, fn func([]*entity.Notification, error)) (func(), error) {
	if userID == "" {
		return nil, errors.BadRequest("User ID is required", nil)
	}
	return uc.notificationRepo.ListenByUserID(ctx, userID, fn)
}

func (uc *NotificationUseCase) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	notification, err := uc.notificationRepo.GetByID(ctx, notificationID)
	if err != nil {
		return err
	}
	if notification.UserID != userID {
		return errors.Forbidden("Notification belongs to another user", nil)
	}

	return uc.notificationRepo.MarkRead(ctx, notificationID)
}

// MarkAllNotificationsRead flips every unread notification concurrently and
// waits for the whole batch.
func (uc *NotificationUseCase) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.BadRequest("User ID is required", nil)
	}

	unread, err := uc.notificationRepo.ListUnreadByUserID(ctx, userID)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, notification := range unread {
		id := notification.ID
		g.Go(func() error {
			return uc.notificationRepo.MarkRead(ctx, id)
		})
	}
	return g.Wait()
}

func (uc *NotificationUseCase) DeleteNotification(ctx context.Context, userID, notificationID string) error {
	notification, err := uc.notificationRepo.GetByID(ctx, notificationID)
	if err != nil {
		return err
	}
	if notification.UserID != userID {
		return errors.Forbidden("Notification belongs to another user", nil)
	}

	return uc.notificationRepo.Delete(ctx, notificationID)
}

func (uc *NotificationUseCase) pushNotification(notification *entity.Notification) {
	payload, err := json.Marshal(map[string]interface{}{
		"type":         "notification",
		"notification": notification,
	})
	if err != nil {
		return
	}
	uc.wsManager.SendToUser(notification.UserID, payload)
}
