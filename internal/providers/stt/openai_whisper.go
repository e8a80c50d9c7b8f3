package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type OpenAIWhisper struct {
	client oai.Client
	model  string
}

func NewOpenAIWhisper(apiKey, model, baseURL string, timeout time.Duration) (*OpenAIWhisper, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is empty")
	}
	if model == "" {
		model = string(oai.AudioModelWhisper1)
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return &OpenAIWhisper{client: oai.NewClient(opts...), model: model}, nil
}

func (w *OpenAIWhisper) Name() string { return "openai" }

func (w *OpenAIWhisper) Close() error { return nil }

// verbose_json carries language and duration next to the text.
type verboseTranscript struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

func (w *OpenAIWhisper) Transcribe(ctx context.Context, audio []byte, mimeType, language string) (*Result, error) {
	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(audio), "audio"+Extension(mimeType), BaseMIME(mimeType)),
		Model:          oai.AudioModel(w.model),
		ResponseFormat: oai.AudioResponseFormatVerboseJSON,
	}
	if language != "" {
		// whisper wants ISO-639-1, ex: "en" rather than "en-US"
		params.Language = oai.String(strings.SplitN(language, "-", 2)[0])
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, err
	}

	out := Result{Text: strings.TrimSpace(resp.Text)}
	var v verboseTranscript
	if raw := resp.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &v) == nil {
		out.Language = v.Language
		out.DurationSeconds = v.Duration
		if out.Text == "" {
			out.Text = strings.TrimSpace(v.Text)
		}
	}
	if out.Text == "" {
		return nil, errors.New("openai: empty transcript")
	}
	return &out, nil
}
