package router

import (
	"github.com/labstack/echo/v4"

	"restyle/internal/adapter/api/handler"
	"restyle/internal/adapter/api/middleware"
)

// SetupConversationRouter wires all conversation and message routes.
func SetupConversationRouter(e *echo.Echo, conversationHandler *handler.ConversationHandler, authMiddleware *middleware.AuthMiddleware) {
	group := e.Group("/v1/conversations")
	group.Use(authMiddleware.Authenticate)

	group.POST("", conversationHandler.CreateConversation)
	group.GET("", conversationHandler.ListConversations)
	group.GET("/:id", conversationHandler.GetConversation)
	group.DELETE("/:id", conversationHandler.DeleteConversation)

	group.POST("/:id/messages", conversationHandler.SendMessage)
	group.GET("/:id/messages", conversationHandler.GetMessages)
	group.DELETE("/:id/messages/:messageId", conversationHandler.DeleteMessage)

	group.PUT("/:id/read", conversationHandler.MarkAsRead)
	group.PUT("/:id/typing", conversationHandler.UpdateTyping)
	group.GET("/:id/typing", conversationHandler.GetTyping)
}
