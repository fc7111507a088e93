package router

import (
	"github.com/labstack/echo/v4"

	"restyle/internal/adapter/api/handler"
	"restyle/internal/adapter/api/middleware"
)

func Setup(
	e *echo.Echo,
	authMiddleware *middleware.AuthMiddleware,
	adminMiddleware *middleware.AdminMiddleware,
	conversationHandler *handler.ConversationHandler,
	notificationHandler *handler.NotificationHandler,
	adminHandler *handler.AdminHandler,
	healthHandler *handler.HealthHandler,
	wsHandler *handler.WebSocketHandler,
) {
	SetupConversationRouter(e, conversationHandler, authMiddleware)
	SetupNotificationRouter(e, notificationHandler, authMiddleware)
	SetupAdminRouter(e, adminHandler, authMiddleware, adminMiddleware)
	SetupHealthRouter(e, healthHandler)
	SetupWebSocketRouter(e, wsHandler)
}
