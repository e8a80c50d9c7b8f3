package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yoockh/rehearse/internal/realtime"
)

type WSHandler struct {
	hub *realtime.Hub
}

func NewWSHandler(hub *realtime.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Connect upgrades to the realtime channel for the authenticated user.
func (h *WSHandler) Connect(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	h.hub.Serve(c.Writer, c.Request, userID)
}
