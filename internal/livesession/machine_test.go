package livesession

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/yoockh/rehearse/internal/logger"
	"github.com/yoockh/rehearse/internal/models"
	"github.com/yoockh/rehearse/internal/perception"
	"github.com/yoockh/rehearse/internal/realtime"
)

type fakeStream struct {
	ch   chan []byte
	once sync.Once
}

func newFakeStream(chunks ...[]byte) *fakeStream {
	s := &fakeStream{ch: make(chan []byte, len(chunks)+1)}
	for _, c := range chunks {
		s.ch <- c
	}
	return s
}

func (s *fakeStream) Chunks() <-chan []byte { return s.ch }
func (s *fakeStream) MimeType() string      { return "audio/webm" }
func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

type fakeMic struct {
	err    error
	chunks [][]byte
	opened int
}

func (m *fakeMic) Open(context.Context) (AudioStream, error) {
	m.opened++
	if m.err != nil {
		return nil, m.err
	}
	return newFakeStream(m.chunks...), nil
}

// fakeAudio replays a scripted turn. release, when set, holds the turn
// open until closed.
type fakeAudio struct {
	mu      sync.Mutex
	calls   int
	got     []byte
	fail    error
	audio   string
	release chan struct{}
	started chan struct{}

	noTranscript bool
}

func (a *fakeAudio) AudioTurn(ctx context.Context, sessionID string, audio []byte, mime string, synth bool, on func(TurnEvent)) error {
	a.mu.Lock()
	a.calls++
	a.got = audio
	a.mu.Unlock()
	if a.started != nil {
		close(a.started)
	}
	if a.release != nil {
		<-a.release
	}
	ready := &realtime.TranscriptionReady{SessionID: sessionID}
	if !a.noTranscript {
		ready.Available, ready.Text = true, "my answer"
	}
	on(TurnEvent{Transcription: ready})
	if a.fail != nil {
		return a.fail
	}
	on(TurnEvent{Reply: &realtime.TextResponseReady{SessionID: sessionID, Text: "Why?", Source: "openai"}})
	if synth {
		on(TurnEvent{Audio: &realtime.AudioResponseReady{SessionID: sessionID, Available: a.audio != "", AudioURL: a.audio}})
	}
	return nil
}

type fakeText struct {
	reply string
	err   error
}

func (f *fakeText) SendText(context.Context, string, string) (string, error) { return f.reply, f.err }

type fakePlayer struct {
	release chan struct{}
	played  chan string
}

func (p *fakePlayer) Play(_ context.Context, url string) error {
	p.played <- url
	<-p.release
	return nil
}

func newMachine(cfg Config) *Machine {
	cfg.SessionID = "sess-1"
	cfg.Log = logger.Discard()
	return New(cfg)
}

func TestAudioTurnHappyPath(t *testing.T) {
	audio := &fakeAudio{}
	m := newMachine(Config{Microphone: &fakeMic{chunks: [][]byte{[]byte("ab"), []byte("cd")}}, Audio: audio})
	ctx := context.Background()

	if err := m.StartMic(ctx); err != nil {
		t.Fatalf("StartMic: %v", err)
	}
	if m.State() != StateRecording {
		t.Fatalf("state = %s", m.State())
	}
	out, err := m.StopMic(ctx)
	if err != nil {
		t.Fatalf("StopMic: %v", err)
	}
	if string(audio.got) != "abcd" {
		t.Fatalf("sent %q", audio.got)
	}
	if out.UserText != "my answer" || out.ReplyText != "Why?" || out.Source != "openai" {
		t.Fatalf("outcome = %#v", out)
	}
	lines := m.Transcript()
	if len(lines) != 2 || lines[0].Role != models.RoleUser || lines[1].Role != models.RoleAssistant {
		t.Fatalf("transcript = %#v", lines)
	}
	if m.State() != StateIdle {
		t.Fatalf("state = %s", m.State())
	}
}

func TestEmptyRecordingIsDropped(t *testing.T) {
	audio := &fakeAudio{}
	m := newMachine(Config{Microphone: &fakeMic{}, Audio: audio})
	ctx := context.Background()
	if err := m.StartMic(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := m.StopMic(ctx); !errors.Is(err, ErrEmptyRecording) {
		t.Fatalf("err = %v", err)
	}
	if audio.calls != 0 {
		t.Fatal("empty recording reached the transport")
	}
	if m.State() != StateIdle {
		t.Fatalf("state = %s", m.State())
	}
}

func TestConcurrentSendRejected(t *testing.T) {
	audio := &fakeAudio{release: make(chan struct{}), started: make(chan struct{})}
	m := newMachine(Config{
		Microphone: &fakeMic{chunks: [][]byte{[]byte("x")}},
		Audio:      audio,
		Text:       &fakeText{reply: "ok?"},
	})
	ctx := context.Background()
	if err := m.StartMic(ctx); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := m.StopMic(ctx)
		done <- err
	}()
	<-audio.started

	if err := m.StartMic(ctx); !errors.Is(err, ErrAlreadySending) {
		t.Fatalf("StartMic during turn = %v", err)
	}
	if _, err := m.SendText(ctx, "hello"); !errors.Is(err, ErrAlreadySending) {
		t.Fatalf("SendText during turn = %v", err)
	}

	close(audio.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if audio.calls != 1 {
		t.Fatalf("calls = %d", audio.calls)
	}
}

func TestFailedTurnKeepsUserLine(t *testing.T) {
	fail := &TurnError{Stage: "continue", Code: "INTERNAL", Message: "boom"}
	m := newMachine(Config{Microphone: &fakeMic{chunks: [][]byte{[]byte("x")}}, Audio: &fakeAudio{fail: fail}})
	ctx := context.Background()
	_ = m.StartMic(ctx)
	_, err := m.StopMic(ctx)
	var te *TurnError
	if !errors.As(err, &te) || te.Stage != "continue" {
		t.Fatalf("err = %v", err)
	}
	lines := m.Transcript()
	if len(lines) != 1 || lines[0].Role != models.RoleUser {
		t.Fatalf("transcript = %#v", lines)
	}
	if m.State() != StateIdle {
		t.Fatalf("state = %s", m.State())
	}
}

func TestSendTextOptimisticAppend(t *testing.T) {
	m := newMachine(Config{Text: &fakeText{err: errors.New("offline")}})
	if _, err := m.SendText(context.Background(), "  hello  "); err == nil {
		t.Fatal("expected error")
	}
	lines := m.Transcript()
	if len(lines) != 1 || lines[0].Text != "hello" {
		t.Fatalf("transcript = %#v", lines)
	}
}

func TestPermissionDeniedSurfaces(t *testing.T) {
	mic := &fakeMic{err: ErrPermissionDenied}
	m := newMachine(Config{Microphone: mic})
	if err := m.StartMic(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v", err)
	}
	if mic.opened != 1 || m.State() != StateIdle {
		t.Fatalf("opened=%d state=%s", mic.opened, m.State())
	}
}

func TestSecondStartMicRejected(t *testing.T) {
	mic := &fakeMic{chunks: [][]byte{[]byte("ab")}}
	m := newMachine(Config{Microphone: mic, Audio: &fakeAudio{}})
	ctx := context.Background()

	if err := m.StartMic(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.StartMic(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("err = %v", err)
	}
	if mic.opened != 1 || m.State() != StateRecording {
		t.Fatalf("opened=%d state=%s", mic.opened, m.State())
	}
}

// flushStream emits one last chunk when closed, the way a browser recorder
// delivers its final dataavailable event.
type flushStream struct {
	ch   chan []byte
	once sync.Once
}

func (s *flushStream) Chunks() <-chan []byte { return s.ch }
func (s *flushStream) MimeType() string      { return "audio/ogg" }
func (s *flushStream) Close() error {
	s.once.Do(func() {
		s.ch <- []byte("final")
		close(s.ch)
	})
	return nil
}

type flushMic struct{}

func (flushMic) Open(context.Context) (AudioStream, error) {
	return &flushStream{ch: make(chan []byte, 1)}, nil
}

type chunkLog struct {
	mu    sync.Mutex
	mimes []string
}

func (c *chunkLog) SendChunk(_ string, _ int64, _ []byte, mimeType string) error {
	c.mu.Lock()
	c.mimes = append(c.mimes, mimeType)
	c.mu.Unlock()
	return nil
}

func TestChunkFlushedOnStopKeepsMimeType(t *testing.T) {
	chunks := &chunkLog{}
	m := newMachine(Config{Microphone: flushMic{}, Audio: &fakeAudio{}, Chunks: chunks})
	ctx := context.Background()

	if err := m.StartMic(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := m.StopMic(ctx); err != nil {
		t.Fatalf("StopMic: %v", err)
	}
	chunks.mu.Lock()
	defer chunks.mu.Unlock()
	if len(chunks.mimes) != 1 || chunks.mimes[0] != "audio/ogg" {
		t.Fatalf("mimes = %q", chunks.mimes)
	}
}

func TestUntranscribedTurnUsesPlaceholder(t *testing.T) {
	audio := &fakeAudio{noTranscript: true}
	m := newMachine(Config{Microphone: &fakeMic{chunks: [][]byte{[]byte("ab")}}, Audio: audio})
	ctx := context.Background()

	if err := m.StartMic(ctx); err != nil {
		t.Fatal(err)
	}
	out, err := m.StopMic(ctx)
	if err != nil {
		t.Fatalf("StopMic: %v", err)
	}
	if out.UserText != models.AudioPlaceholder || out.ReplyText != "Why?" {
		t.Fatalf("outcome = %#v", out)
	}
	lines := m.Transcript()
	if len(lines) != 2 || lines[0].Text != models.AudioPlaceholder {
		t.Fatalf("transcript = %#v", lines)
	}
}

func TestSpeakingIsIndependentOfTurns(t *testing.T) {
	player := &fakePlayer{release: make(chan struct{}), played: make(chan string, 1)}
	m := newMachine(Config{
		Microphone: &fakeMic{chunks: [][]byte{[]byte("x")}},
		Audio:      &fakeAudio{audio: "/audio/speech/sess-1/a.mp3"},
		Player:     player,
		Synthesize: true,
	})
	ctx := context.Background()
	_ = m.StartMic(ctx)
	out, err := m.StopMic(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := <-player.played; got != out.AudioURL {
		t.Fatalf("played %q", got)
	}
	if !m.Speaking() || m.State() != StateSpeaking {
		t.Fatalf("speaking=%v state=%s", m.Speaking(), m.State())
	}
	// the next turn may start while the reply still plays
	if err := m.StartMic(ctx); err != nil {
		t.Fatalf("StartMic while speaking: %v", err)
	}
	if m.State() != StateRecording || len(m.Transcript()) != 2 {
		t.Fatalf("state=%s lines=%d", m.State(), len(m.Transcript()))
	}
	close(player.release)
	deadline := time.Now().Add(time.Second)
	for m.Speaking() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.Speaking() {
		t.Fatal("speaking flag not cleared")
	}
}

type fakeCamera struct {
	err error
}

type frameStream struct{ img image.Image }

func (f frameStream) Frame() (image.Image, error) { return f.img, nil }
func (f frameStream) Close() error                { return nil }

func (c *fakeCamera) Open(context.Context) (VideoStream, error) {
	if c.err != nil {
		return nil, c.err
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 140, B: 110, A: 255})
		}
	}
	return frameStream{img: img}, nil
}

func TestVideoAnalysisIndependentOfTurns(t *testing.T) {
	ext := perception.NewExtractor(perception.WithInterval(5*time.Millisecond), perception.WithLogger(logger.Discard()))
	m := newMachine(Config{
		Microphone: &fakeMic{},
		Camera:     &fakeCamera{},
		Perception: ext,
	})
	ctx := context.Background()

	if err := m.StartVideo(ctx); err != nil {
		t.Fatalf("StartVideo: %v", err)
	}
	if !m.Analyzing() {
		t.Fatal("not analyzing")
	}
	if err := m.StartMic(ctx); err != nil {
		t.Fatal(err)
	}
	_, _ = m.StopMic(ctx)
	if !m.Analyzing() {
		t.Fatal("turn changed perception state")
	}

	deadline := time.Now().Add(time.Second)
	for ext.Metrics().TotalFrames < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	vm, err := m.StopVideo()
	if err != nil {
		t.Fatal(err)
	}
	if vm.TotalFrames == 0 || vm.FacePresenceRatio == 0 {
		t.Fatalf("metrics = %#v", vm)
	}
	if m.Analyzing() {
		t.Fatal("still analyzing")
	}
	if _, err := m.StopVideo(); !errors.Is(err, ErrVideoNotRunning) {
		t.Fatalf("second StopVideo = %v", err)
	}
}

func TestCameraDeniedLeavesTurnsAlone(t *testing.T) {
	m := newMachine(Config{
		Microphone: &fakeMic{chunks: [][]byte{[]byte("x")}},
		Audio:      &fakeAudio{},
		Camera:     &fakeCamera{err: ErrPermissionDenied},
		Perception: perception.NewExtractor(),
	})
	ctx := context.Background()
	if err := m.StartVideo(ctx); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v", err)
	}
	if err := m.StartMic(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := m.StopMic(ctx); err != nil {
		t.Fatal(err)
	}
}
