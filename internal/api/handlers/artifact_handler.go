package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/rehearse/internal/services"
	"github.com/yoockh/rehearse/internal/storage"
	"github.com/yoockh/rehearse/internal/utils"
)

// ArtifactHandler serves stored audio with byte-range support. Only the
// session owner may fetch its artifacts.
type ArtifactHandler struct {
	sessions services.SessionService
	store    storage.ArtifactStore
}

func NewArtifactHandler(sessions services.SessionService, store storage.ArtifactStore) *ArtifactHandler {
	return &ArtifactHandler{sessions: sessions, store: store}
}

func (h *ArtifactHandler) Speech(c *gin.Context)    { h.serve(c, storage.SpeechRoot) }
func (h *ArtifactHandler) Recording(c *gin.Context) { h.serve(c, storage.RecordingRoot) }

func (h *ArtifactHandler) serve(c *gin.Context, root string) {
	const op = "ArtifactHandler.Serve"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	sessionID, file := c.Param("session_id"), c.Param("file")

	key, err := storage.Key(root, sessionID, file)
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid artifact path", err))
		return
	}
	if _, err := h.sessions.Get(c.Request.Context(), userID, sessionID); err != nil {
		writeError(c, err)
		return
	}

	obj, err := h.store.Open(c.Request.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(c, utils.E(utils.CodeNotFound, op, "artifact not found", err))
		return
	}
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to open artifact", err))
		return
	}
	defer obj.Close()

	c.Header("Content-Type", obj.ContentType)
	c.Header("Cache-Control", "private, max-age=3600")
	http.ServeContent(c.Writer, c.Request, file, obj.ModTime, obj.Reader)
}
