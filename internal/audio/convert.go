// Package audio re-encodes user recordings for transcription and estimates
// spoken durations.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"sync"
)

// CanonicalMIME is what Convert produces: 16 kHz mono signed 16-bit WAV.
const CanonicalMIME = "audio/wav"

// ErrNoConverter means the conversion tool is not installed.
var ErrNoConverter = errors.New("audio: converter not available")

// Converter shells out to ffmpeg. A missing binary is not an error at
// construction time; Available reports it and Convert returns
// ErrNoConverter so callers can fall back to the original bytes.
type Converter struct {
	bin string

	once sync.Once
	path string
}

func NewConverter(bin string) *Converter {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Converter{bin: bin}
}

func (c *Converter) resolve() string {
	c.once.Do(func() {
		if p, err := exec.LookPath(c.bin); err == nil {
			c.path = p
		}
	})
	return c.path
}

func (c *Converter) Available() bool { return c != nil && c.resolve() != "" }

// Convert pipes in through ffmpeg and returns canonical WAV bytes.
func (c *Converter) Convert(ctx context.Context, in []byte, mimeType string) ([]byte, error) {
	if !c.Available() {
		return nil, ErrNoConverter
	}
	if len(in) == 0 {
		return nil, errors.New("audio: empty input")
	}

	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.resolve(),
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-ac", "1", "-ar", "16000", "-sample_fmt", "s16",
		"-f", "wav", "pipe:1",
	)
	cmd.Stdin = bytes.NewReader(in)
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("audio: ffmpeg (%s): %w: %s", mimeType, err, strings.TrimSpace(stderr.String()))
	}
	if out.Len() == 0 {
		return nil, errors.New("audio: ffmpeg produced no output")
	}
	return out.Bytes(), nil
}

// WordsPerMinute is the assumed speaking rate for synthesized speech.
const WordsPerMinute = 150

// EstimateDuration approximates how long text takes to speak. It is not
// measured from audio.
func EstimateDuration(text string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return math.Round(float64(words)/WordsPerMinute*60*10) / 10
}
