package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/rehearse/internal/services"
	"github.com/yoockh/rehearse/internal/utils"
)

type FeedbackHandler struct {
	svc services.FeedbackService
}

func NewFeedbackHandler(svc services.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{svc: svc}
}

// Get answers 202 with a retry hint while the analysis is running.
func (h *FeedbackHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	res, err := h.svc.GetFeedback(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !res.Ready() {
		c.Header("Retry-After", strconv.Itoa(res.RetryAfterSeconds))
		c.JSON(http.StatusAccepted, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *FeedbackHandler) Trends(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	days := 0
	if s := c.Query("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(c, utils.E(utils.CodeInvalidArgument, "FeedbackHandler.Trends", "days must be a positive integer", err))
			return
		}
		days = n
	}
	points, err := h.svc.Trends(c.Request.Context(), userID, days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points})
}
