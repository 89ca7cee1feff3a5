package handler

import (
	"log"
	"roomchat/backend/internal/chathub"
	"strings"

	"github.com/gin-gonic/gin"
)

// ServeWebSocket upgrades the connection and hands it to the coordinator.
// A connection with a bad token is upgraded, told why in one auth-error
// frame and closed; it never gets a session.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	token := bearerToken(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WARNING: Failed to upgrade connection from %s: %v", c.ClientIP(), err)
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn)
	sess, err := h.Hub.Connect(c.Request.Context(), client, token)
	if err != nil {
		client.Reject(h.Hub.AuthErrorMessage(err))
		return
	}

	client.Session = sess
	client.Run()
}

// bearerToken reads the token from the query string (browsers cannot set
// headers on websocket requests) or from the Authorization header.
func bearerToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
