package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"restyle/internal/usecase"
	"restyle/pkg/response"
)

type ConversationHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewConversationHandler(chatUseCase *usecase.ChatUseCase) *ConversationHandler {
	return &ConversationHandler{
		chatUseCase: chatUseCase,
	}
}

type createConversationRequest struct {
	RecipientID string `json:"recipient_id" validate:"required"`
	ProductID   string `json:"product_id"`
	AuctionID   string `json:"auction_id"`
	OrderID     string `json:"order_id"`
}

type sendMessageRequest struct {
	ReceiverID string `json:"receiver_id" validate:"required"`
	Content    string `json:"content" validate:"required"`
	ImageURL   string `json:"image_url,omitempty" validate:"omitempty,url"`
	Emoji      string `json:"emoji,omitempty"`
}

type typingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// CreateConversation gets or creates the conversation with the recipient.
func (h *ConversationHandler) CreateConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	conv, err := h.chatUseCase.GetOrCreateConversation(c.Request().Context(), userID, usecase.CreateConversationInput{
		RecipientID: req.RecipientID,
		ProductID:   req.ProductID,
		AuctionID:   req.AuctionID,
		OrderID:     req.OrderID,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, conv)
}

// ListConversations returns the authenticated user's conversations.
func (h *ConversationHandler) ListConversations(c echo.Context) error {
	userID := c.Get("uid").(string)
	limit, offset := pagination(c)

	conversations, total, err := h.chatUseCase.ListConversations(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.SuccessPaginated(c, conversations, total, limit, offset)
}

// GetConversation returns one conversation the user participates in.
func (h *ConversationHandler) GetConversation(c echo.Context) error {
	userID := c.Get("uid").(string)

	conv, err := h.chatUseCase.GetConversationByID(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conv)
}

// DeleteConversation removes the conversation and all of its messages.
func (h *ConversationHandler) DeleteConversation(c echo.Context) error {
	userID := c.Get("uid").(string)

	if err := h.chatUseCase.DeleteConversation(c.Request().Context(), userID, c.Param("id")); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "deleted"})
}

// SendMessage appends a message to the conversation.
func (h *ConversationHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	message, err := h.chatUseCase.SendMessage(c.Request().Context(), userID, usecase.SendMessageInput{
		ConversationID: c.Param("id"),
		ReceiverID:     req.ReceiverID,
		Content:        req.Content,
		ImageURL:       req.ImageURL,
		Emoji:          req.Emoji,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// GetMessages returns the conversation's messages, oldest first.
func (h *ConversationHandler) GetMessages(c echo.Context) error {
	userID := c.Get("uid").(string)
	limit, offset := pagination(c)

	messages, total, err := h.chatUseCase.GetMessages(c.Request().Context(), userID, c.Param("id"), limit, offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.SuccessPaginated(c, messages, total, limit, offset)
}

// DeleteMessage tombstones one of the caller's own messages.
func (h *ConversationHandler) DeleteMessage(c echo.Context) error {
	userID := c.Get("uid").(string)

	if err := h.chatUseCase.DeleteMessage(c.Request().Context(), userID, c.Param("id"), c.Param("messageId")); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "deleted"})
}

// MarkAsRead resets the caller's unread counter and flips message flags.
func (h *ConversationHandler) MarkAsRead(c echo.Context) error {
	userID := c.Get("uid").(string)

	if err := h.chatUseCase.MarkMessagesAsRead(c.Request().Context(), userID, c.Param("id")); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "read"})
}

// UpdateTyping stamps or clears the caller's typing flag.
func (h *ConversationHandler) UpdateTyping(c echo.Context) error {
	var req typingRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	if err := h.chatUseCase.UpdateTypingStatus(c.Request().Context(), userID, c.Param("id"), req.IsTyping); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "ok"})
}

// GetTyping reports which other participants are typing right now.
func (h *ConversationHandler) GetTyping(c echo.Context) error {
	userID := c.Get("uid").(string)

	typers, err := h.chatUseCase.ActiveTypers(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{"typing": typers})
}

func pagination(c echo.Context) (int, int) {
	limit := 20
	offset := 0

	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	if offsetStr := c.QueryParam("offset"); offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset >= 0 {
			offset = parsedOffset
		}
	}

	return limit, offset
}
