package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/rehearse/internal/services"
)

type ProfileHandler struct {
	svc services.ProfileService
}

func NewProfileHandler(svc services.ProfileService) *ProfileHandler {
	return &ProfileHandler{svc: svc}
}

// Me returns the dashboard view. The metrics vector is never exposed.
func (h *ProfileHandler) Me(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	v, err := h.svc.GetView(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, v)
}
