package handlers

import (
	"encoding/base64"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/rehearse/internal/models"
	"github.com/yoockh/rehearse/internal/realtime"
	"github.com/yoockh/rehearse/internal/services"
	"github.com/yoockh/rehearse/internal/utils"
)

// maxUploadBytes bounds one uploaded recording.
const maxUploadBytes = 16 << 20

type SessionHandler struct {
	svc services.SessionService
}

func NewSessionHandler(svc services.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

type StartSessionRequest struct {
	Mode       models.InteractionMode `json:"mode"`     // text|live
	Scenario   string                 `json:"scenario"` // see scenarios.yaml
	SkillFocus []string               `json:"skill_focus"`
	Language   string                 `json:"language"`
}

func (h *SessionHandler) Start(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req StartSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Start", "invalid request body", err))
			return
		}
	}

	sess, err := h.svc.Start(c.Request.Context(), userID, services.StartInput{
		Mode:       req.Mode,
		Scenario:   req.Scenario,
		SkillFocus: req.SkillFocus,
		Language:   req.Language,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	limit := queryInt(c, "limit", 20, 100)
	out, err := h.svc.List(c.Request.Context(), userID, int64(limit))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (h *SessionHandler) Stats(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	st, err := h.svc.Stats(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	sess, err := h.svc.Get(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type SendMessageRequest struct {
	Text       string `json:"text"`
	Synthesize bool   `json:"synthesize"`
}

func (h *SessionHandler) SendMessage(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.SendMessage", "invalid request body", err))
		return
	}
	res, err := h.svc.SendText(c.Request.Context(), userID, c.Param("session_id"), req.Text, req.Synthesize)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type AudioTurnRequest struct {
	AudioBase64 string `json:"audio_base64"`
	MimeType    string `json:"mime_type"`
}

// SendAudio accepts a multipart "audio" file or a JSON body and runs one
// audio turn synchronously.
func (h *SessionHandler) SendAudio(c *gin.Context) {
	const op = "SessionHandler.SendAudio"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req AudioTurnRequest
	if fh, err := c.FormFile("audio"); err == nil {
		if fh.Size > maxUploadBytes {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "audio is too large", nil))
			return
		}
		f, err := fh.Open()
		if err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "unreadable upload", err))
			return
		}
		defer f.Close()
		raw, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
		if err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "unreadable upload", err))
			return
		}
		req.AudioBase64 = base64.StdEncoding.EncodeToString(raw)
		req.MimeType = fh.Header.Get("Content-Type")
	} else if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "expected multipart audio or JSON body", err))
		return
	}

	synthesize := true
	if v := c.Query("synthesize"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "synthesize must be a boolean", err))
			return
		}
		synthesize = b
	}

	res, err := h.svc.ProcessAudioTurn(c.Request.Context(), realtime.TurnRequest{
		RequestID:   c.GetString("request_id"),
		UserID:      userID,
		SessionID:   c.Param("session_id"),
		AudioBase64: req.AudioBase64,
		MimeType:    req.MimeType,
		Synthesize:  synthesize,
	}, realtime.Discard)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type EndSessionRequest struct {
	VideoMetrics *models.VideoMetrics `json:"video_metrics"`
}

func (h *SessionHandler) End(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req EndSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.End", "invalid request body", err))
			return
		}
	}
	sess, err := h.svc.End(c.Request.Context(), userID, c.Param("session_id"), req.VideoMetrics)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"session_id":          sess.SessionID,
		"status":              sess.Status,
		"duration_seconds":    sess.DurationSeconds,
		"retry_after_seconds": services.RetryAfterSeconds,
	})
}

func (h *SessionHandler) Cancel(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	sess, err := h.svc.Cancel(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sess.SessionID, "status": sess.Status})
}
