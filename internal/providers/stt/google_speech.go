package stt

import (
	"context"
	"fmt"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

type GoogleSpeech struct {
	c *speech.Client

	SampleRateHz int32
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{c: c, SampleRateHz: 16000}, nil
}

func (g *GoogleSpeech) Name() string { return "google" }

func (g *GoogleSpeech) Close() error { return g.c.Close() }

func encodingFor(mimeType string) (speechpb.RecognitionConfig_AudioEncoding, bool) {
	switch BaseMIME(mimeType) {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/l16":
		return speechpb.RecognitionConfig_LINEAR16, true
	case "audio/webm":
		return speechpb.RecognitionConfig_WEBM_OPUS, true
	case "audio/ogg":
		return speechpb.RecognitionConfig_OGG_OPUS, true
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, false
	}
}

// language example: "en-US", "id-ID"
func (g *GoogleSpeech) Transcribe(ctx context.Context, audio []byte, mimeType, language string) (*Result, error) {
	if language == "" {
		language = "en-US"
	}
	enc, ok := encodingFor(mimeType)
	if !ok {
		return nil, fmt.Errorf("google speech: unsupported audio type %q", mimeType)
	}

	cfg := &speechpb.RecognitionConfig{
		Encoding:                   enc,
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
	}
	if enc == speechpb.RecognitionConfig_LINEAR16 {
		cfg.SampleRateHertz = g.SampleRateHz
	} else {
		cfg.SampleRateHertz = 48000
	}

	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return nil, err
	}

	var out Result
	for _, r := range resp.Results {
		for _, alt := range r.Alternatives {
			if alt.Transcript != "" && float64(alt.Confidence) >= out.Confidence {
				out.Text = alt.Transcript
				out.Confidence = float64(alt.Confidence)
			}
		}
		if r.LanguageCode != "" {
			out.Language = r.LanguageCode
		}
		if d := r.ResultEndTime; d != nil {
			out.DurationSeconds = d.AsDuration().Seconds()
		}
	}
	if out.Text == "" {
		return nil, fmt.Errorf("google speech: no transcript")
	}
	if out.Language == "" {
		out.Language = language
	}
	return &out, nil
}
