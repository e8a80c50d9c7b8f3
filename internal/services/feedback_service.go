package services

import (
	"context"
	"time"

	"github.com/yoockh/rehearse/internal/models"
	mongorepo "github.com/yoockh/rehearse/internal/repositories/mongo"
	"github.com/yoockh/rehearse/internal/utils"
)

const (
	// RetryAfterSeconds is the polling hint while analysis is running.
	RetryAfterSeconds = 3

	defaultTrendDays = 30
	maxTrendDays     = 365
)

// FeedbackResult is either the finished analysis or a pending marker.
type FeedbackResult struct {
	SessionID         string               `json:"session_id"`
	Status            models.SessionStatus `json:"status"`
	Scores            *models.ScoreVector  `json:"scores,omitempty"`
	Feedback          *models.Feedback     `json:"feedback,omitempty"`
	Source            string               `json:"analysis_source,omitempty"`
	RetryAfterSeconds int                  `json:"retry_after_seconds,omitempty"`
}

func (r *FeedbackResult) Ready() bool { return r.Status == models.StatusCompleted }

type FeedbackService interface {
	GetFeedback(ctx context.Context, userID, sessionID string) (*FeedbackResult, error)
	Trends(ctx context.Context, userID string, days int) ([]models.TrendPoint, error)
}

type feedbackService struct {
	sessions mongorepo.SessionRepository
	now      func() time.Time
}

func NewFeedbackService(sessions mongorepo.SessionRepository) FeedbackService {
	return &feedbackService{sessions: sessions, now: time.Now}
}

func (s *feedbackService) GetFeedback(ctx context.Context, userID, sessionID string) (*FeedbackResult, error) {
	const op = "FeedbackService.GetFeedback"

	sess, err := ownedSession(ctx, s.sessions, op, userID, sessionID)
	if err != nil {
		return nil, err
	}
	out := &FeedbackResult{SessionID: sess.SessionID, Status: sess.Status}
	switch sess.Status {
	case models.StatusAnalyzing:
		out.RetryAfterSeconds = RetryAfterSeconds
		return out, nil
	case models.StatusCompleted:
		out.Scores = sess.Scores
		out.Feedback = sess.Feedback
		out.Source = sess.AnalysisSource
		return out, nil
	case models.StatusCancelled:
		return nil, utils.E(utils.CodeConflict, op, "session was cancelled", nil)
	default:
		return nil, utils.E(utils.CodeConflict, op, "session has not ended", nil)
	}
}

func (s *feedbackService) Trends(ctx context.Context, userID string, days int) ([]models.TrendPoint, error) {
	const op = "FeedbackService.Trends"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	if days <= 0 {
		days = defaultTrendDays
	}
	if days > maxTrendDays {
		return nil, utils.E(utils.CodeInvalidArgument, op, "days must be at most 365", nil)
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	out, err := s.sessions.Trends(ctx, userID, since)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load trends", err)
	}
	return out, nil
}
