package handler

import (
	"github.com/labstack/echo/v4"

	"restyle/internal/usecase"
	"restyle/pkg/response"
)

// AdminHandler exposes the hooks that order and auction services call when
// they complete: seeding buyer/seller chats with system messages and fanning
// out notifications.
type AdminHandler struct {
	chatUseCase         *usecase.ChatUseCase
	notificationUseCase *usecase.NotificationUseCase
}

func NewAdminHandler(chatUseCase *usecase.ChatUseCase, notificationUseCase *usecase.NotificationUseCase) *AdminHandler {
	return &AdminHandler{
		chatUseCase:         chatUseCase,
		notificationUseCase: notificationUseCase,
	}
}

type orderChatRequest struct {
	BuyerID   string `json:"buyer_id" validate:"required"`
	SellerID  string `json:"seller_id" validate:"required"`
	OrderID   string `json:"order_id" validate:"required"`
	ItemTitle string `json:"item_title"`
}

type auctionChatRequest struct {
	WinnerID  string `json:"winner_id" validate:"required"`
	SellerID  string `json:"seller_id" validate:"required"`
	AuctionID string `json:"auction_id" validate:"required"`
	ItemTitle string `json:"item_title" validate:"required"`
}

type createNotificationRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Title   string `json:"title" validate:"required"`
	Message string `json:"message"`
	Type    string `json:"type" validate:"omitempty,oneof=order message payment system"`
	Link    string `json:"link"`
}

// InitializeOrderChat opens the buyer/seller conversation for a fresh order.
func (h *AdminHandler) InitializeOrderChat(c echo.Context) error {
	var req orderChatRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	convID, err := h.chatUseCase.InitializeOrderChat(c.Request().Context(), req.BuyerID, req.SellerID, req.OrderID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]string{"conversation_id": convID})
}

// SendPurchaseMessage posts the order-placed system message and notifies the
// seller.
func (h *AdminHandler) SendPurchaseMessage(c echo.Context) error {
	var req orderChatRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	convID, err := h.chatUseCase.SendAutomatedPurchaseMessage(c.Request().Context(), req.BuyerID, req.SellerID, req.OrderID, req.ItemTitle)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]string{"conversation_id": convID})
}

// SendAuctionWonMessage connects the auction winner with the seller.
func (h *AdminHandler) SendAuctionWonMessage(c echo.Context) error {
	var req auctionChatRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	convID, err := h.chatUseCase.SendAutomatedAuctionMessage(c.Request().Context(), req.WinnerID, req.SellerID, req.AuctionID, req.ItemTitle)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]string{"conversation_id": convID})
}

// CreateNotification pushes an arbitrary notification to a user.
func (h *AdminHandler) CreateNotification(c echo.Context) error {
	var req createNotificationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	notification, err := h.notificationUseCase.CreateNotification(c.Request().Context(), usecase.CreateNotificationInput{
		UserID:  req.UserID,
		Title:   req.Title,
		Message: req.Message,
		Type:    req.Type,
		Link:    req.Link,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, notification)
}
