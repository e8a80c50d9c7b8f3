package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/yoockh/rehearse/internal/models"
	"github.com/yoockh/rehearse/internal/providers/llm"
	"github.com/yoockh/rehearse/internal/providers/mlclient"
	mongorepo "github.com/yoockh/rehearse/internal/repositories/mongo"
	"github.com/yoockh/rehearse/internal/utils"
)

// memSessions is an in-memory SessionRepository with the same status
// guards as the Mongo one.
type memSessions struct {
	mu   sync.Mutex
	byID map[string]*models.Session
}

func newMemSessions() *memSessions { return &memSessions{byID: map[string]*models.Session{}} }

func clone(s *models.Session) *models.Session {
	c := *s
	c.Transcript = append([]models.TranscriptEntry(nil), s.Transcript...)
	return &c
}

func open(s *models.Session) bool {
	return s.Status == models.StatusPending || s.Status == models.StatusActive
}

func (m *memSessions) Create(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.SessionID] = clone(s)
	return nil
}

func (m *memSessions) GetBySessionID(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return clone(s), nil
}

func (m *memSessions) ListByUser(_ context.Context, userID string, _ int64) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, s := range m.byID {
		if s.UserID == userID {
			out = append(out, *clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memSessions) AppendTranscript(_ context.Context, id string, entries ...models.TranscriptEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok || !open(s) {
		return false, nil
	}
	s.Transcript = append(s.Transcript, entries...)
	return true, nil
}

func (m *memSessions) MarkAnalyzing(_ context.Context, id string, endedAt time.Time, dur int64, video *models.VideoMetrics) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok || !open(s) {
		return false, nil
	}
	s.Status = models.StatusAnalyzing
	s.EndedAt = &endedAt
	s.DurationSeconds = dur
	s.VideoMetrics = video
	return true, nil
}

func (m *memSessions) Complete(_ context.Context, id string, c mongorepo.Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok || s.Status != models.StatusAnalyzing {
		return utils.ErrNotFound
	}
	s.Status = models.StatusCompleted
	s.Scores = &c.Scores
	s.Feedback = &c.Feedback
	s.AnalysisSource = c.Source
	s.CompletedAt = &c.CompletedAt
	return nil
}

func (m *memSessions) Cancel(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok || !open(s) {
		return false, nil
	}
	s.Status = models.StatusCancelled
	s.EndedAt = &at
	return true, nil
}

func (m *memSessions) Stats(_ context.Context, userID string) (*models.SessionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &models.SessionStats{}
	for _, s := range m.byID {
		if s.UserID != userID {
			continue
		}
		st.TotalSessions++
		if s.Status == models.StatusCompleted {
			st.CompletedSessions++
		}
	}
	return st, nil
}

func (m *memSessions) Trends(context.Context, string, time.Time) ([]models.TrendPoint, error) {
	return []models.TrendPoint{}, nil
}

type memProfiles struct {
	mu      sync.Mutex
	byUser  map[string]models.BehavioralProfile
	upserts int
}

func newMemProfiles() *memProfiles { return &memProfiles{byUser: map[string]models.BehavioralProfile{}} }

func (m *memProfiles) GetByUserID(_ context.Context, userID string) (*models.BehavioralProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byUser[userID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return &p, nil
}

func (m *memProfiles) Upsert(_ context.Context, p *models.BehavioralProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byUser[p.UserID] = *p
	m.upserts++
	return nil
}

type memConversations struct {
	mu   sync.Mutex
	rows []models.ConversationLog
}

func (m *memConversations) InsertMany(_ context.Context, rows []models.ConversationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *memConversations) ListBySession(_ context.Context, userID, sessionID string, _ int) ([]models.ConversationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ConversationLog
	for _, r := range m.rows {
		if r.UserID == userID && r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

// stubLLM returns reply or err and records what it was asked.
type stubLLM struct {
	name    string
	reply   string
	err     error
	history []llm.Message
}

func (p *stubLLM) Name() string { return p.name }
func (p *stubLLM) Close() error { return nil }

func (p *stubLLM) Reply(_ context.Context, _ string, history []llm.Message) (string, error) {
	p.history = history
	return p.reply, p.err
}

// stubAudio is an AudioService with canned results.
type stubAudio struct {
	mu          sync.Mutex
	transcript  *Transcript
	speech      *SpeechRef
	transcribed int
	recordings  int
}

func (a *stubAudio) Transcribe(context.Context, []byte, string, string) *Transcript {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transcribed++
	return a.transcript
}

func (a *stubAudio) Synthesize(context.Context, string, string) *SpeechRef { return a.speech }

func (a *stubAudio) SaveRecording(context.Context, string, []byte, string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordings++
	return "recordings/x/y.webm", nil
}

type stubFeatures struct {
	healthy bool
	out     *mlclient.TextAnalysis
	err     error
	calls   int
}

func (f *stubFeatures) Healthy(context.Context) bool { return f.healthy }

func (f *stubFeatures) AnalyzeText(context.Context, mlclient.TextRequest) (*mlclient.TextAnalysis, error) {
	f.calls++
	return f.out, f.err
}

type stubScorer struct {
	healthy bool
	out     *mlclient.ScoreReply
	err     error
	block   bool
	got     mlclient.ScoreRequest
}

func (s *stubScorer) Healthy(context.Context) bool { return s.healthy }

func (s *stubScorer) Score(ctx context.Context, req mlclient.ScoreRequest) (*mlclient.ScoreReply, error) {
	s.got = req
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.out, s.err
}

var errDown = errors.New("provider down")
