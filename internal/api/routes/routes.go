package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/rehearse/config"
	"github.com/yoockh/rehearse/internal/api/handlers"
	"github.com/yoockh/rehearse/internal/api/middleware"
)

type Deps struct {
	Auth config.Auth

	Session      *handlers.SessionHandler
	Feedback     *handlers.FeedbackHandler
	Profile      *handlers.ProfileHandler
	Conversation *handlers.ConversationHandler
	Artifact     *handlers.ArtifactHandler
	WS           *handlers.WSHandler
	Admin        *handlers.AdminHandler

	// Metrics is the scrape handler; nil disables /metrics.
	Metrics http.Handler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.Auth))

	auth.POST("/sessions", d.Session.Start)
	auth.GET("/sessions", d.Session.List)
	auth.GET("/sessions/stats", d.Session.Stats)
	auth.GET("/sessions/:session_id", d.Session.Get)
	auth.POST("/sessions/:session_id/messages", d.Session.SendMessage)
	auth.POST("/sessions/:session_id/audio", d.Session.SendAudio)
	auth.POST("/sessions/:session_id/end", d.Session.End)
	auth.POST("/sessions/:session_id/cancel", d.Session.Cancel)
	auth.GET("/sessions/:session_id/feedback", d.Feedback.Get)

	auth.GET("/feedback/trends", d.Feedback.Trends)
	auth.GET("/profile/me", d.Profile.Me)
	auth.GET("/conversation/:session_id", d.Conversation.ListBySession)

	auth.GET("/audio/speech/:session_id/:file", d.Artifact.Speech)
	auth.GET("/audio/recordings/:session_id/:file", d.Artifact.Recording)

	// WebSocket
	auth.GET("/ws", d.WS.Connect)

	admin := auth.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/rooms", d.Admin.Rooms)
}
