package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// maxSpeechBytes bounds one synthesized reply.
const maxSpeechBytes = 20 << 20

type OpenAISpeech struct {
	client oai.Client
	model  string
	voice  string
}

func NewOpenAISpeech(apiKey, model, voice, baseURL string, timeout time.Duration) (*OpenAISpeech, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is empty")
	}
	if model == "" {
		model = string(oai.SpeechModelTTS1)
	}
	if voice == "" {
		voice = string(oai.AudioSpeechNewParamsVoiceAlloy)
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return &OpenAISpeech{client: oai.NewClient(opts...), model: model, voice: voice}, nil
}

func (s *OpenAISpeech) Name() string { return "openai" }

func (s *OpenAISpeech) Close() error { return nil }

func (s *OpenAISpeech) Synthesize(ctx context.Context, text string) (*Speech, error) {
	resp, err := s.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(s.model),
		Voice:          oai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai speech: status %d", resp.StatusCode)
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxSpeechBytes))
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, errors.New("openai speech: empty audio")
	}
	return &Speech{Audio: audio, ContentType: "audio/mpeg", Extension: ".mp3"}, nil
}
