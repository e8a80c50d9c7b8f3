package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusActive    SessionStatus = "active"
	StatusAnalyzing SessionStatus = "analyzing"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type InteractionMode string

const (
	ModeText InteractionMode = "text"
	ModeLive InteractionMode = "live"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// AudioPlaceholder stands in for the user line of an audio turn that could
// not be transcribed.
const AudioPlaceholder = "[audio message]"

type TranscriptEntry struct {
	Role            Role      `bson:"role" json:"role"`
	Text            string    `bson:"text" json:"text"`
	DurationSeconds *float64  `bson:"duration_seconds,omitempty" json:"duration_seconds,omitempty"`
	Timestamp       time.Time `bson:"timestamp" json:"timestamp"`
}

type Session struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"` // uuid v4
	UserID    string             `bson:"user_id" json:"user_id"`       // "sub" of the bearer token

	Mode         InteractionMode `bson:"mode" json:"mode"`
	Scenario     string          `bson:"scenario" json:"scenario"`
	SkillFocus   []string        `bson:"skill_focus,omitempty" json:"skill_focus,omitempty"`
	Language     string          `bson:"language" json:"language"`
	IsOnboarding bool            `bson:"is_onboarding" json:"is_onboarding"`
	Status       SessionStatus   `bson:"status" json:"status"`

	// assembled once at start; never sent to clients
	SystemPrompt string `bson:"system_prompt" json:"-"`

	Transcript []TranscriptEntry `bson:"transcript" json:"transcript"`

	VideoMetrics   *VideoMetrics `bson:"video_metrics,omitempty" json:"video_metrics,omitempty"`
	Scores         *ScoreVector  `bson:"scores,omitempty" json:"scores,omitempty"`
	Feedback       *Feedback     `bson:"feedback,omitempty" json:"feedback,omitempty"`
	AnalysisSource string        `bson:"analysis_source,omitempty" json:"analysis_source,omitempty"`

	CreatedAt       time.Time  `bson:"created_at" json:"created_at"`
	EndedAt         *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
	CompletedAt     *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	DurationSeconds int64      `bson:"duration_seconds" json:"duration_seconds"`
}

// AssistantTurns counts assistant lines, the opening question included.
func (s *Session) AssistantTurns() int {
	n := 0
	for _, e := range s.Transcript {
		if e.Role == RoleAssistant {
			n++
		}
	}
	return n
}

// UserResponses returns the user lines with their recorded durations
// (0 when unknown), in transcript order.
func (s *Session) UserResponses() (texts []string, durations []float64) {
	for _, e := range s.Transcript {
		if e.Role != RoleUser {
			continue
		}
		texts = append(texts, e.Text)
		d := 0.0
		if e.DurationSeconds != nil {
			d = *e.DurationSeconds
		}
		durations = append(durations, d)
	}
	return texts, durations
}

// InterviewerQuestions returns the assistant lines in transcript order.
func (s *Session) InterviewerQuestions() []string {
	var out []string
	for _, e := range s.Transcript {
		if e.Role == RoleAssistant {
			out = append(out, e.Text)
		}
	}
	return out
}
