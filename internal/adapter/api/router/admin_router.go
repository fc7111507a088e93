package router

import (
	"github.com/labstack/echo/v4"

	"restyle/internal/adapter/api/handler"
	"restyle/internal/adapter/api/middleware"
)

// SetupAdminRouter wires the service-to-service hooks behind admin auth.
func SetupAdminRouter(e *echo.Echo, adminHandler *handler.AdminHandler, authMiddleware *middleware.AuthMiddleware, adminMiddleware *middleware.AdminMiddleware) {
	group := e.Group("/v1/admin")
	group.Use(authMiddleware.Authenticate)
	group.Use(adminMiddleware.AdminOnly)

	group.POST("/orders/chat", adminHandler.InitializeOrderChat)
	group.POST("/orders/purchase-message", adminHandler.SendPurchaseMessage)
	group.POST("/auctions/won-message", adminHandler.SendAuctionWonMessage)
	group.POST("/notifications", adminHandler.CreateNotification)
}
