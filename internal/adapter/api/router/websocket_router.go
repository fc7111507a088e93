package router

import (
	"github.com/labstack/echo/v4"

	"restyle/internal/adapter/api/handler"
)

// SetupWebSocketRouter registers the realtime endpoint. Authentication
// happens inside the handler via the token query parameter, so no middleware
// is attached here.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	e.GET("/ws/chat", wsHandler.HandleWebSocket)
}
