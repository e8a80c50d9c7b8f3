// Package livesession is the client side of a live practice session: the
// turn state machine, media capture and the realtime transport. Turn
// state, perception and playback are tracked independently so a failure
// in one never blocks the others.
package livesession

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/rehearse/internal/models"
	"github.com/yoockh/rehearse/internal/perception"
)

type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateSending      State = "sending"
	StateSpeaking     State = "speaking"
)

var (
	ErrAlreadySending  = errors.New("livesession: a turn is already in flight")
	ErrNotRecording    = errors.New("livesession: not recording")
	ErrAlreadyRunning  = errors.New("livesession: already recording")
	ErrEmptyRecording  = errors.New("livesession: recording is empty")
	ErrNoCamera        = errors.New("livesession: no camera configured")
	ErrVideoNotRunning = errors.New("livesession: video analysis not running")
)

// AudioTransport runs one server-side audio turn.
type AudioTransport interface {
	AudioTurn(ctx context.Context, sessionID string, audio []byte, mimeType string, synthesize bool, on func(TurnEvent)) error
}

// ChunkSink receives recording chunks as they are produced.
type ChunkSink interface {
	SendChunk(sessionID string, index int64, chunk []byte, mimeType string) error
}

// TextTransport sends a typed message and returns the reply.
type TextTransport interface {
	SendText(ctx context.Context, sessionID, text string) (string, error)
}

// Player plays a reply recording and blocks until playback ends.
type Player interface {
	Play(ctx context.Context, url string) error
}

// Line is one client-side transcript entry.
type Line struct {
	Role models.Role
	Text string
	At   time.Time
}

// Outcome is a finished turn.
type Outcome struct {
	UserText  string
	ReplyText string
	Source    string
	AudioURL  string
}

type Config struct {
	SessionID  string
	Microphone Microphone
	Camera     Camera
	Audio      AudioTransport
	Text       TextTransport
	Chunks     ChunkSink
	Player     Player
	Perception *perception.Extractor
	Synthesize bool
	Log        logrus.FieldLogger
	Now        func() time.Time
}

// Machine models Idle -> Recording -> Transcribing -> Sending -> Idle with
// Speaking reported while a reply plays between turns. One turn may be in
// flight at a time.
type Machine struct {
	cfg Config

	mu         sync.Mutex
	state      State
	inFlight   bool
	rec        *recorder
	transcript []Line
	speaking   bool
	video      VideoStream
	analyzing  bool
}

func New(cfg Config) *Machine {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Machine{cfg: cfg, state: StateIdle}
}

// State is the turn state. A reply that is still playing shows as
// Speaking only while no other turn activity is under way.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateIdle && m.speaking {
		return StateSpeaking
	}
	return m.state
}

func (m *Machine) Speaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaking
}

func (m *Machine) Analyzing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analyzing
}

// Transcript returns a copy of the lines seen so far. It only grows.
func (m *Machine) Transcript() []Line {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Line(nil), m.transcript...)
}

func (m *Machine) appendLine(role models.Role, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcript = append(m.transcript, Line{Role: role, Text: text, At: m.cfg.Now()})
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// StartMic acquires a fresh microphone stream and begins recording.
func (m *Machine) StartMic(ctx context.Context) error {
	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		return ErrAlreadySending
	}
	if m.rec != nil || m.state == StateRecording {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.state = StateRecording
	m.mu.Unlock()

	rec, err := startRecorder(ctx, m.cfg.Microphone, m.forwardChunk)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateIdle
		return err
	}
	m.rec = rec
	return nil
}

func (m *Machine) forwardChunk(index int64, chunk []byte, mimeType string) {
	if m.cfg.Chunks == nil {
		return
	}
	if err := m.cfg.Chunks.SendChunk(m.cfg.SessionID, index, chunk, mimeType); err != nil {
		m.cfg.Log.WithError(err).WithField("index", index).Warn("chunk not sent")
	}
}

// StopMic finalizes the recording and runs the turn. An empty recording is
// dropped without a network call.
func (m *Machine) StopMic(ctx context.Context) (*Outcome, error) {
	m.mu.Lock()
	rec := m.rec
	if rec == nil {
		m.mu.Unlock()
		return nil, ErrNotRecording
	}
	m.rec = nil
	m.inFlight = true
	m.state = StateSending
	m.mu.Unlock()

	art, err := rec.stop()
	if err != nil {
		m.cfg.Log.WithError(err).Warn("microphone close failed")
	}
	if art.Empty() {
		m.finish()
		return nil, ErrEmptyRecording
	}
	return m.runAudioTurn(ctx, art)
}

func (m *Machine) finish() {
	m.mu.Lock()
	m.inFlight = false
	m.state = StateIdle
	m.mu.Unlock()
}

func (m *Machine) runAudioTurn(ctx context.Context, art Artifact) (*Outcome, error) {
	defer m.finish()

	m.setState(StateTranscribing)
	out := &Outcome{}
	err := m.cfg.Audio.AudioTurn(ctx, m.cfg.SessionID, art.Data, art.MimeType, m.cfg.Synthesize, func(ev TurnEvent) {
		switch {
		case ev.Transcription != nil:
			out.UserText = ev.Transcription.Text
			if !ev.Transcription.Available {
				out.UserText = models.AudioPlaceholder
			}
			m.appendLine(models.RoleUser, out.UserText)
			m.setState(StateSending)
		case ev.Reply != nil:
			out.ReplyText, out.Source = ev.Reply.Text, ev.Reply.Source
			m.appendLine(models.RoleAssistant, ev.Reply.Text)
		case ev.Audio != nil && ev.Audio.Available:
			out.AudioURL = ev.Audio.AudioURL
		}
	})
	if err != nil {
		return nil, err
	}
	if out.AudioURL != "" {
		m.play(out.AudioURL)
	}
	return out, nil
}

// SendText appends the user line immediately then waits for the reply. A
// failed send keeps the user line.
func (m *Machine) SendText(ctx context.Context, text string) (*Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("livesession: text is required")
	}
	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		return nil, ErrAlreadySending
	}
	if m.rec != nil || m.state == StateRecording {
		m.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	m.inFlight = true
	m.state = StateSending
	m.mu.Unlock()
	defer m.finish()

	m.appendLine(models.RoleUser, text)
	reply, err := m.cfg.Text.SendText(ctx, m.cfg.SessionID, text)
	if err != nil {
		return nil, err
	}
	m.appendLine(models.RoleAssistant, reply)
	return &Outcome{UserText: text, ReplyText: reply}, nil
}

func (m *Machine) play(url string) {
	if m.cfg.Player == nil {
		return
	}
	m.mu.Lock()
	m.speaking = true
	m.mu.Unlock()
	go func() {
		defer func() {
			m.mu.Lock()
			m.speaking = false
			m.mu.Unlock()
		}()
		if err := m.cfg.Player.Play(context.Background(), url); err != nil {
			m.cfg.Log.WithError(err).Warn("reply playback failed")
		}
	}()
}

// StartVideo opens the camera and starts perception sampling. It does not
// touch turn state.
func (m *Machine) StartVideo(ctx context.Context) error {
	if m.cfg.Camera == nil || m.cfg.Perception == nil {
		return ErrNoCamera
	}
	m.mu.Lock()
	running := m.analyzing
	m.mu.Unlock()
	if running {
		return perception.ErrRunning
	}

	stream, err := m.cfg.Camera.Open(ctx)
	if err != nil {
		return err
	}
	if err := m.cfg.Perception.Initialize(); err != nil {
		_ = stream.Close()
		return err
	}
	if err := m.cfg.Perception.StartAnalysis(stream); err != nil {
		_ = stream.Close()
		return err
	}
	m.mu.Lock()
	m.video, m.analyzing = stream, true
	m.mu.Unlock()
	return nil
}

// StopVideo halts sampling and returns the final aggregate.
func (m *Machine) StopVideo() (models.VideoMetrics, error) {
	m.mu.Lock()
	stream, running := m.video, m.analyzing
	m.video, m.analyzing = nil, false
	m.mu.Unlock()
	if !running {
		return models.VideoMetrics{}, ErrVideoNotRunning
	}
	vm := m.cfg.Perception.StopAnalysis()
	if err := stream.Close(); err != nil {
		m.cfg.Log.WithError(err).Warn("camera close failed")
	}
	return vm, nil
}

// VideoMetrics is the running aggregate, or nil when no video was analyzed.
func (m *Machine) VideoMetrics() *models.VideoMetrics {
	if m.cfg.Perception == nil {
		return nil
	}
	vm := m.cfg.Perception.Metrics()
	if vm.TotalFrames == 0 {
		return nil
	}
	return &vm
}
