package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/rehearse/internal/realtime"
)

type AdminHandler struct {
	rooms *realtime.RoomRegistry
}

func NewAdminHandler(rooms *realtime.RoomRegistry) *AdminHandler {
	return &AdminHandler{rooms: rooms}
}

// Rooms lists live rooms with their member counts.
func (h *AdminHandler) Rooms(c *gin.Context) {
	snap := h.rooms.Snapshot()
	c.JSON(http.StatusOK, gin.H{"count": len(snap), "rooms": snap})
}
