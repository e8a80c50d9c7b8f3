package services

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/rehearse/internal/cache"
	"github.com/yoockh/rehearse/internal/models"
	"github.com/yoockh/rehearse/internal/observe"
	"github.com/yoockh/rehearse/internal/realtime"
	mongorepo "github.com/yoockh/rehearse/internal/repositories/mongo"
	"github.com/yoockh/rehearse/internal/utils"
)

const (
	OnboardingScenario = "onboarding"

	statsTTL        = time.Minute
	completionWrite = 30 * time.Second
	maxTextLen      = 4000
)

type StartInput struct {
	Mode       models.InteractionMode `json:"mode"`
	Scenario   string                 `json:"scenario"`
	SkillFocus []string               `json:"skill_focus"`
	Language   string                 `json:"language"`
}

// TurnResult is one completed exchange.
type TurnResult struct {
	SessionID     string                 `json:"session_id"`
	UserEntry     models.TranscriptEntry `json:"user_entry"`
	Reply         models.TranscriptEntry `json:"reply"`
	Source        string                 `json:"source"`
	Transcription *Transcript            `json:"transcription,omitempty"`
	Speech        *SpeechRef             `json:"speech,omitempty"`
	RecordingKey  string                 `json:"recording_key,omitempty"`
}

type SessionService interface {
	Start(ctx context.Context, userID string, in StartInput) (*models.Session, error)
	Get(ctx context.Context, userID, sessionID string) (*models.Session, error)
	List(ctx context.Context, userID string, limit int64) ([]models.Session, error)
	Stats(ctx context.Context, userID string) (*models.SessionStats, error)

	SendText(ctx context.Context, userID, sessionID, text string, synthesize bool) (*TurnResult, error)
	// ProcessAudioTurn runs transcription, continuation and optional
	// synthesis, emitting one event per stage. Without a transcript the turn
	// continues from a placeholder user line.
	ProcessAudioTurn(ctx context.Context, req realtime.TurnRequest, emit realtime.Emitter) (*TurnResult, error)

	// End moves the session to analyzing and scores it in the background.
	End(ctx context.Context, userID, sessionID string, video *models.VideoMetrics) (*models.Session, error)
	Cancel(ctx context.Context, userID, sessionID string) (*models.Session, error)
}

// SessionDeps wires the session service. Conversations, Buffers and Cache
// are optional.
type SessionDeps struct {
	Sessions      mongorepo.SessionRepository
	Turns         TurnService
	Audio         AudioService
	Scoring       ScoringService
	Profiles      ProfileService
	Conversations ConversationService
	Buffers       BufferService
	Cache         cache.Cache
	Log           logrus.FieldLogger
	Metrics       *observe.Metrics

	// Spawn runs the background analysis; defaults to a goroutine.
	Spawn func(func())
	Now   func() time.Time
}

type sessionService struct {
	SessionDeps
}

func NewSessionService(d SessionDeps) SessionService {
	if d.Spawn == nil {
		d.Spawn = func(f func()) { go f() }
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Metrics == nil {
		d.Metrics = observe.Noop()
	}
	return &sessionService{SessionDeps: d}
}

func (s *sessionService) Start(ctx context.Context, userID string, in StartInput) (*models.Session, error) {
	const op = "SessionService.Start"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	switch in.Mode {
	case "":
		in.Mode = models.ModeText
	case models.ModeText, models.ModeLive:
	default:
		return nil, utils.E(utils.CodeInvalidArgument, op, "mode must be text or live", nil)
	}
	if in.Scenario == "" {
		in.Scenario = DefaultScenario
	}
	if in.Language == "" {
		in.Language = "en-US"
	}

	onboarding := in.Scenario == OnboardingScenario
	var hints []string
	if !onboarding {
		has, err := s.Profiles.HasBaseline(ctx, userID)
		if err != nil {
			s.Log.WithError(err).WithField("user_id", userID).Warn("baseline lookup failed")
		} else {
			onboarding = !has
		}
		if has {
			if hints, err = s.Profiles.AdaptationHints(ctx, userID); err != nil {
				s.Log.WithError(err).WithField("user_id", userID).Warn("adaptation hints unavailable")
			}
		}
	}

	now := s.Now().UTC()
	opening := models.TranscriptEntry{
		Role:      models.RoleAssistant,
		Text:      s.Turns.Opening(in.Scenario),
		Timestamp: now,
	}
	sess := &models.Session{
		SessionID:    uuid.NewString(),
		UserID:       userID,
		Mode:         in.Mode,
		Scenario:     in.Scenario,
		SkillFocus:   in.SkillFocus,
		Language:     in.Language,
		IsOnboarding: onboarding,
		Status:       models.StatusActive,
		SystemPrompt: s.Turns.BuildSystemPrompt(in.Scenario, in.SkillFocus, hints),
		Transcript:   []models.TranscriptEntry{opening},
		CreatedAt:    now,
	}
	if err := s.Sessions.Create(ctx, sess); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create session", err)
	}
	s.mirror(ctx, sess, opening)
	s.dropStats(ctx, userID)

	s.Log.WithFields(logrus.Fields{
		"session_id": sess.SessionID,
		"user_id":    userID,
		"scenario":   sess.Scenario,
		"mode":       sess.Mode,
		"onboarding": onboarding,
	}).Info("session started")
	return sess, nil
}

func (s *sessionService) Get(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	return ownedSession(ctx, s.Sessions, "SessionService.Get", userID, sessionID)
}

// ownedSession loads a session and checks it belongs to userID.
func ownedSession(ctx context.Context, repo mongorepo.SessionRepository, op, userID, sessionID string) (*models.Session, error) {
	if userID == "" || sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and session_id are required", nil)
	}
	sess, err := repo.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	if sess.UserID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "forbidden", nil)
	}
	return sess, nil
}

func (s *sessionService) activeSession(ctx context.Context, op, userID, sessionID string) (*models.Session, error) {
	sess, err := ownedSession(ctx, s.Sessions, op, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusActive {
		return nil, utils.E(utils.CodeConflict, op, "session is "+string(sess.Status), nil)
	}
	return sess, nil
}

func (s *sessionService) List(ctx context.Context, userID string, limit int64) ([]models.Session, error) {
	const op = "SessionService.List"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	out, err := s.Sessions.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list sessions", err)
	}
	return out, nil
}

func (s *sessionService) Stats(ctx context.Context, userID string) (*models.SessionStats, error) {
	const op = "SessionService.Stats"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	key := cache.StatsKey(userID)
	if s.Cache != nil {
		var st models.SessionStats
		if hit, err := s.Cache.GetJSON(ctx, key, &st); err == nil && hit {
			return &st, nil
		}
	}
	st, err := s.Sessions.Stats(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to compute stats", err)
	}
	if s.Cache != nil {
		if err := s.Cache.SetJSON(ctx, key, st, statsTTL); err != nil {
			s.Log.WithError(err).WithField("user_id", userID).Warn("failed to cache stats")
		}
	}
	return st, nil
}

func (s *sessionService) SendText(ctx context.Context, userID, sessionID, text string, synthesize bool) (*TurnResult, error) {
	const op = "SessionService.SendText"

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "text is required", nil)
	}
	if len(text) > maxTextLen {
		return nil, utils.E(utils.CodeInvalidArgument, op, "text is too long", nil)
	}
	sess, err := s.activeSession(ctx, op, userID, sessionID)
	if err != nil {
		return nil, err
	}

	res, err := s.exchange(ctx, op, sess, s.entry(models.RoleUser, text, 0))
	if err != nil {
		return nil, err
	}
	if synthesize {
		res.Speech = s.Audio.Synthesize(ctx, res.Reply.Text, sess.SessionID)
	}
	return res, nil
}

func (s *sessionService) ProcessAudioTurn(ctx context.Context, req realtime.TurnRequest, emit realtime.Emitter) (*TurnResult, error) {
	const op = "SessionService.ProcessAudioTurn"

	if emit == nil {
		emit = realtime.Discard
	}
	log := s.Log.WithFields(logrus.Fields{"session_id": req.SessionID, "request_id": req.RequestID})
	fail := func(stage string, err error) (*TurnResult, error) {
		msg := err.Error()
		var ae *utils.AppError
		if errors.As(err, &ae) {
			msg = ae.Message
		}
		_ = emit.Emit(realtime.EventTurnError, realtime.TurnError{
			RequestID: req.RequestID,
			SessionID: req.SessionID,
			Stage:     stage,
			Code:      string(utils.CodeOf(err)),
			Message:   msg,
		})
		return nil, err
	}

	raw, err := DecodeAudio(req.AudioBase64)
	if err != nil {
		return fail("input", utils.E(utils.CodeInvalidArgument, op, "audio is not valid base64", err))
	}
	if len(raw) == 0 {
		return fail("input", utils.E(utils.CodeInvalidArgument, op, "audio is required", nil))
	}
	sess, err := s.activeSession(ctx, op, req.UserID, req.SessionID)
	if err != nil {
		return fail("session", err)
	}

	recKey, err := s.Audio.SaveRecording(ctx, sess.SessionID, raw, req.MimeType)
	if err != nil {
		log.WithError(err).Warn("recording not stored")
	}

	user := s.entry(models.RoleUser, models.AudioPlaceholder, 0)
	ready := realtime.TranscriptionReady{RequestID: req.RequestID, SessionID: sess.SessionID}
	tr := s.Audio.Transcribe(ctx, raw, req.MimeType, sess.Language)
	if tr != nil {
		user = s.entry(models.RoleUser, tr.Text, tr.DurationSeconds)
		ready.Available = true
		ready.Text, ready.Language, ready.DurationSeconds = tr.Text, tr.Language, tr.DurationSeconds
	} else {
		log.WithField("stage", "transcription").Warn("transcription unavailable, continuing without text")
	}
	_ = emit.Emit(realtime.EventTranscriptionReady, ready)

	res, err := s.exchange(ctx, op, sess, user)
	if err != nil {
		return fail("continue", err)
	}
	res.Transcription = tr
	res.RecordingKey = recKey
	_ = emit.Emit(realtime.EventTextResponseReady, realtime.TextResponseReady{
		RequestID: req.RequestID,
		SessionID: sess.SessionID,
		Text:      res.Reply.Text,
		Source:    res.Source,
	})

	if req.Synthesize {
		res.Speech = s.Audio.Synthesize(ctx, res.Reply.Text, sess.SessionID)
		ev := realtime.AudioResponseReady{RequestID: req.RequestID, SessionID: sess.SessionID}
		if res.Speech != nil {
			ev.Available = true
			ev.AudioURL = res.Speech.URL
			ev.DurationSeconds = res.Speech.DurationSeconds
		}
		_ = emit.Emit(realtime.EventAudioResponseReady, ev)
	}
	return res, nil
}

// exchange appends the user line, asks for the reply and appends it, in
// that order.
func (s *sessionService) exchange(ctx context.Context, op string, sess *models.Session, user models.TranscriptEntry) (*TurnResult, error) {
	ok, err := s.Sessions.AppendTranscript(ctx, sess.SessionID, user)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to append transcript", err)
	}
	if !ok {
		return nil, utils.E(utils.CodeConflict, op, "session is no longer active", nil)
	}
	sess.Transcript = append(sess.Transcript, user)

	text, source := s.Turns.Continue(ctx, sess.SystemPrompt, sess.Transcript)
	reply := s.entry(models.RoleAssistant, text, 0)
	if ok, err = s.Sessions.AppendTranscript(ctx, sess.SessionID, reply); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to append transcript", err)
	}
	if !ok {
		return nil, utils.E(utils.CodeConflict, op, "session ended during the turn", nil)
	}
	sess.Transcript = append(sess.Transcript, reply)
	s.mirror(ctx, sess, user, reply)

	return &TurnResult{SessionID: sess.SessionID, UserEntry: user, Reply: reply, Source: source}, nil
}

func (s *sessionService) entry(role models.Role, text string, duration float64) models.TranscriptEntry {
	e := models.TranscriptEntry{Role: role, Text: text, Timestamp: s.Now().UTC()}
	if duration > 0 {
		e.DurationSeconds = &duration
	}
	return e
}

func (s *sessionService) mirror(ctx context.Context, sess *models.Session, entries ...models.TranscriptEntry) {
	if s.Conversations == nil {
		return
	}
	if err := s.Conversations.Append(ctx, sess.UserID, sess.SessionID, entries...); err != nil {
		s.Log.WithError(err).WithField("session_id", sess.SessionID).Warn("conversation log mirror failed")
	}
}

func (s *sessionService) End(ctx context.Context, userID, sessionID string, video *models.VideoMetrics) (*models.Session, error) {
	const op = "SessionService.End"

	sess, err := ownedSession(ctx, s.Sessions, op, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusActive && sess.Status != models.StatusPending {
		return nil, utils.E(utils.CodeConflict, op, "session already ended", nil)
	}

	now := s.Now().UTC()
	dur := int64(now.Sub(sess.CreatedAt).Seconds())
	if dur < 0 {
		dur = 0
	}
	if video != nil {
		v := video.Sanitized()
		video = &v
	}
	ok, err := s.Sessions.MarkAnalyzing(ctx, sessionID, now, dur, video)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to end session", err)
	}
	if !ok {
		return nil, utils.E(utils.CodeConflict, op, "session already ended", nil)
	}

	// the stored transcript may have grown since the first read
	if fresh, err := s.Sessions.GetBySessionID(ctx, sessionID); err == nil {
		sess = fresh
	}
	sess.Status = models.StatusAnalyzing
	sess.EndedAt = &now
	sess.DurationSeconds = dur
	sess.VideoMetrics = video

	snapshot := *sess
	s.Spawn(func() { s.finalize(&snapshot) })

	s.Log.WithFields(logrus.Fields{"session_id": sessionID, "user_id": userID, "duration_seconds": dur}).Info("session ended, analysis scheduled")
	return sess, nil
}

// finalize scores the session and writes the result. The scoring service
// always returns an analysis, so the session always leaves analyzing
// unless the final write itself fails.
func (s *sessionService) finalize(sess *models.Session) {
	ctx := context.Background()
	log := s.Log.WithFields(logrus.Fields{"session_id": sess.SessionID, "user_id": sess.UserID})

	texts, durations := sess.UserResponses()
	analysis := s.Scoring.Analyze(ctx, ScoringInput{
		UserResponses:        texts,
		ResponseDurations:    durations,
		InterviewerQuestions: sess.InterviewerQuestions(),
		Video:                sess.VideoMetrics,
	})
	s.Metrics.RecordAnalysis(ctx, analysis.Source)

	wctx, cancel := context.WithTimeout(ctx, completionWrite)
	defer cancel()

	err := s.Sessions.Complete(wctx, sess.SessionID, mongorepo.Completion{
		Scores:      analysis.Scores,
		Feedback:    analysis.Feedback,
		Source:      analysis.Source,
		CompletedAt: s.Now().UTC(),
	})
	if err != nil {
		log.WithError(err).Error("failed to store analysis")
		return
	}
	s.dropStats(wctx, sess.UserID)
	log.WithFields(logrus.Fields{"source": analysis.Source, "overall": analysis.Scores.Overall}).Info("session analysis completed")

	if s.Buffers != nil {
		if _, err := s.Buffers.Discard(wctx, sess.SessionID); err != nil {
			log.WithError(err).Warn("failed to discard audio chunks")
		}
	}
	if _, err := s.Profiles.UpdateProfile(wctx, sess.UserID, analysis, sess.IsOnboarding); err != nil {
		log.WithError(err).Error("behavioral profile update failed")
	}
}

func (s *sessionService) Cancel(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	const op = "SessionService.Cancel"

	sess, err := ownedSession(ctx, s.Sessions, op, userID, sessionID)
	if err != nil {
		return nil, err
	}
	now := s.Now().UTC()
	ok, err := s.Sessions.Cancel(ctx, sessionID, now)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to cancel session", err)
	}
	if !ok {
		return nil, utils.E(utils.CodeConflict, op, "session already ended", nil)
	}
	sess.Status = models.StatusCancelled
	sess.EndedAt = &now
	s.dropStats(ctx, userID)
	return sess, nil
}

func (s *sessionService) dropStats(ctx context.Context, userID string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Del(ctx, cache.StatsKey(userID)); err != nil {
		s.Log.WithError(err).WithField("user_id", userID).Warn("failed to invalidate stats")
	}
}

// DecodeAudio accepts plain base64 or a data URL.
func DecodeAudio(b64 string) ([]byte, error) {
	if i := strings.Index(b64, ";base64,"); i >= 0 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
}
