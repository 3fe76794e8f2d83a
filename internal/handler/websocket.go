package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"social_platform/internal/realtime"
	"social_platform/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler attaches an authenticated user's socket to the gateway.
type WebSocketHandler struct {
	gateway    *realtime.Gateway
	sendBuffer int
	log        logger.Logger
}

func NewWebSocketHandler(gateway *realtime.Gateway, sendBuffer int, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		gateway:    gateway,
		sendBuffer: sendBuffer,
		log:        log,
	}
}

func (h *WebSocketHandler) HandleEvents(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	conn := realtime.NewConnection(ws, h.sendBuffer)
	release := h.gateway.Register(userID, conn)
	defer release()

	h.log.Info("Client connected", "user_id", userID, "conn_id", conn.ID())
	conn.Serve()
	h.log.Info("Client disconnected", "user_id", userID, "conn_id", conn.ID())
}
