package router

import (
	"github.com/labstack/echo/v4"

	"restyle/internal/adapter/api/handler"
	"restyle/internal/adapter/api/middleware"
)

func SetupNotificationRouter(e *echo.Echo, notificationHandler *handler.NotificationHandler, authMiddleware *middleware.AuthMiddleware) {
	group := e.Group("/v1/notifications")
	group.Use(authMiddleware.Authenticate)

	group.GET("", notificationHandler.ListNotifications)
	group.PUT("/read", notificationHandler.MarkAllAsRead)
	group.PUT("/:id/read", notificationHandler.MarkAsRead)
	group.DELETE("/:id", notificationHandler.DeleteNotification)
}
