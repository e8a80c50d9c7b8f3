package services

import (
	"bytes"
	"context"
	"errors"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/rehearse/internal/audio"
	"github.com/yoockh/rehearse/internal/fallback"
	"github.com/yoockh/rehearse/internal/observe"
	"github.com/yoockh/rehearse/internal/providers/stt"
	"github.com/yoockh/rehearse/internal/providers/tts"
	"github.com/yoockh/rehearse/internal/storage"
	"github.com/yoockh/rehearse/internal/utils"
)

// Transcript is one transcribed user recording.
type Transcript struct {
	Text            string  `json:"text"`
	Language        string  `json:"language,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// SpeechRef points at a stored reply recording. DurationSeconds is
// estimated from the word count, not measured.
type SpeechRef struct {
	Key             string  `json:"key"`
	URL             string  `json:"url"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// AudioService turns recordings into text and replies into audio. Transcribe
// and Synthesize return nil when the feature is unavailable for this turn.
type AudioService interface {
	Transcribe(ctx context.Context, audio []byte, mimeType, language string) *Transcript
	Synthesize(ctx context.Context, text, sessionID string) *SpeechRef
	SaveRecording(ctx context.Context, sessionID string, audio []byte, mimeType string) (string, error)
}

type transcribeInput struct {
	audio    []byte
	mimeType string
	language string
}

type audioService struct {
	converter  *audio.Converter
	transcribe *fallback.Chain[transcribeInput, *stt.Result]
	voice      tts.Provider
	store      storage.ArtifactStore
	log        logrus.FieldLogger
	met        *observe.Metrics
}

func NewAudioService(converter *audio.Converter, recognizers []stt.Provider, voice tts.Provider, store storage.ArtifactStore, log logrus.FieldLogger, met *observe.Metrics) AudioService {
	if met == nil {
		met = observe.Noop()
	}
	var strategies []fallback.Strategy[transcribeInput, *stt.Result]
	for _, p := range recognizers {
		if p == nil {
			continue
		}
		strategies = append(strategies, fallback.Strategy[transcribeInput, *stt.Result]{
			Name: p.Name(),
			Run: func(ctx context.Context, in transcribeInput) (*stt.Result, error) {
				return p.Transcribe(ctx, in.audio, in.mimeType, in.language)
			},
		})
	}
	return &audioService{
		converter:  converter,
		transcribe: fallback.New("transcribe", log, strategies...).Observe(met.RecordStrategy),
		voice:      voice,
		store:      store,
		log:        log,
		met:        met,
	}
}

func (s *audioService) Transcribe(ctx context.Context, raw []byte, mimeType, language string) *Transcript {
	if len(raw) == 0 {
		return nil
	}
	start := time.Now()
	defer s.met.RecordStage(ctx, "transcribe", start)

	in := transcribeInput{audio: raw, mimeType: mimeType, language: language}
	if s.converter.Available() {
		wav, err := s.converter.Convert(ctx, raw, mimeType)
		switch {
		case err == nil:
			in.audio, in.mimeType = wav, audio.CanonicalMIME
		case !errors.Is(err, audio.ErrNoConverter):
			s.log.WithField("stage", "transcribe").WithError(err).Warn("re-encode failed, sending original audio")
		}
	}

	res, strategy, err := s.transcribe.Run(ctx, in)
	if err != nil {
		s.log.WithField("stage", "transcribe").WithError(err).Warn("transcription unavailable")
		return nil
	}
	if res == nil || res.Text == "" {
		s.log.WithFields(logrus.Fields{"stage": "transcribe", "strategy": strategy}).Warn("empty transcription")
		return nil
	}
	return &Transcript{Text: res.Text, Language: res.Language, DurationSeconds: res.DurationSeconds}
}

func (s *audioService) Synthesize(ctx context.Context, text, sessionID string) *SpeechRef {
	if s.voice == nil || s.store == nil || text == "" {
		return nil
	}
	start := time.Now()
	defer s.met.RecordStage(ctx, "synthesize", start)
	log := s.log.WithFields(logrus.Fields{"stage": "synthesize", "strategy": s.voice.Name(), "session_id": sessionID})

	sp, err := s.voice.Synthesize(ctx, text)
	if err != nil || sp == nil || len(sp.Audio) == 0 {
		log.WithError(err).Warn("speech synthesis unavailable")
		return nil
	}
	key, err := storage.Key(storage.SpeechRoot, sessionID, uuid.NewString()+sp.Extension)
	if err != nil {
		log.WithError(err).Warn("invalid speech key")
		return nil
	}
	key, err = s.store.Put(ctx, key, sp.ContentType, bytes.NewReader(sp.Audio))
	if err != nil {
		log.WithError(err).Warn("failed to store speech")
		return nil
	}
	return &SpeechRef{Key: key, URL: ArtifactURL(key), DurationSeconds: audio.EstimateDuration(text)}
}

func (s *audioService) SaveRecording(ctx context.Context, sessionID string, raw []byte, mimeType string) (string, error) {
	const op = "AudioService.SaveRecording"

	if len(raw) == 0 {
		return "", utils.E(utils.CodeInvalidArgument, op, "audio is empty", nil)
	}
	if s.store == nil {
		return "", utils.E(utils.CodeUnavailable, op, "artifact store not configured", nil)
	}
	key, err := storage.Key(storage.RecordingRoot, sessionID, uuid.NewString()+stt.Extension(mimeType))
	if err != nil {
		return "", utils.E(utils.CodeInvalidArgument, op, "invalid session id", err)
	}
	key, err = s.store.Put(ctx, key, stt.BaseMIME(mimeType), bytes.NewReader(raw))
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to store recording", err)
	}
	return key, nil
}

// ArtifactURL is the playback path served by the artifact handler.
func ArtifactURL(key string) string {
	return path.Join("/audio", key)
}
