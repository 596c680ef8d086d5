package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/tradecore/internal/service"
	"github.com/tradecore/internal/stream"
	"github.com/tradecore/pkg/response"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler upgrades clients onto the live event stream
type WSHandler struct {
	authService *service.AuthService
	hub         *stream.Hub
}

// NewWSHandler creates a new WSHandler
func NewWSHandler(authService *service.AuthService, hub *stream.Hub) *WSHandler {
	return &WSHandler{authService: authService, hub: hub}
}

// Stream handles a websocket session. Browsers cannot set headers on
// websocket dials, so the JWT arrives as a query parameter.
// GET /api/v1/stream?token=...
func (h *WSHandler) Stream(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Unauthorized(c, "missing token")
		return
	}
	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		response.Unauthorized(c, "invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed for user %d: %v", claims.UserID, err)
		return
	}

	events, unsubscribe := h.hub.Subscribe(claims.UserID, 64)
	defer unsubscribe()
	defer conn.Close()

	// Reader drains control frames and signals close
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// RegisterRoutes registers the stream route
func (h *WSHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stream", h.Stream)
}
