package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wevn/wevn/notify"
)

// WSController upgrades change-notification connections and hands them
// to the hub.
type WSController struct {
	hub      *notify.Hub
	token    string
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger
}

func NewWSController(hub *notify.Hub, token string, logger *zap.SugaredLogger) *WSController {
	return &WSController{
		hub:   hub,
		token: token,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers cannot set headers on websocket requests, so
			// auth is a query token and any origin is accepted.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (ctrl *WSController) Connect(c *gin.Context) {
	if c.Query("token") != ctrl.token {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	conn, err := ctrl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ctrl.logger.Warnw("ws: upgrade failed", "error", err)
		return
	}
	ctrl.hub.Serve(conn)
}
