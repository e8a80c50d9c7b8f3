package stt

import (
	"context"
	"strings"
)

// Result is one transcription. Language and DurationSeconds are zero when
// the provider does not report them.
type Result struct {
	Text            string
	Language        string
	DurationSeconds float64
	Confidence      float64
}

type Provider interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, mimeType, language string) (*Result, error)
	Close() error
}

// BaseMIME strips parameters, ex: "audio/webm;codecs=opus" -> "audio/webm".
func BaseMIME(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// Extension maps a mime type to a file extension providers recognise.
func Extension(mimeType string) string {
	switch BaseMIME(mimeType) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	default:
		return ".webm"
	}
}
