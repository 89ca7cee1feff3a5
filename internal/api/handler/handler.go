package handler

import (
	"net/http"
	"roomchat/backend/internal/auth"
	"roomchat/backend/internal/chathub"
	"roomchat/backend/internal/localization"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler serves the HTTP surface: account endpoints, the websocket
// upgrade and static assets.
type Handler struct {
	Hub       *chathub.ManagerService
	Auth      *auth.Service
	Localizer *localization.Localizer
	Lang      string

	upgrader websocket.Upgrader
}

// NewHandler wires the handler. allowedOrigins may contain "*".
func NewHandler(hub *chathub.ManagerService, authSvc *auth.Service, loc *localization.Localizer, lang string, allowedOrigins []string) *Handler {
	policy := newOriginPolicy(allowedOrigins)
	return &Handler{
		Hub:       hub,
		Auth:      authSvc,
		Localizer: loc,
		Lang:      lang,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.check,
		},
	}
}

// Router builds the gin engine. An empty publicDir serves no static files.
func (h *Handler) Router(publicDir string) *gin.Engine {
	r := gin.Default()

	api := r.Group("/api")
	api.POST("/register", h.Register)
	api.POST("/login", h.Login)

	r.GET("/ws", h.ServeWebSocket)
	r.GET("/healthz", h.Health)

	if publicDir != "" {
		r.NoRoute(gin.WrapH(http.FileServer(http.Dir(publicDir))))
	}
	return r
}

// Health reports liveness, the number of joined connections and the number
// of authenticated connections.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"online":    h.Hub.OnlineCount(),
		"connected": h.Hub.ConnectedCount(),
	})
}

func (h *Handler) text(key string) string {
	return h.Localizer.GetString(h.Lang, key)
}

func (h *Handler) fail(c *gin.Context, status int, key string) {
	c.AbortWithStatusJSON(status, gin.H{"error": h.text(key)})
}
