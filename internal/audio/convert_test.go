package audio

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestEstimateDuration(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"", 0},
		{"   ", 0},
		{strings.Repeat("word ", 150), 60},
		{strings.Repeat("word ", 15), 6},
		{"Tell me about a time you led a team.", 3.6},
	}
	for _, c := range cases {
		if got := EstimateDuration(c.text); got != c.want {
			t.Fatalf("EstimateDuration(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestConverterMissingBinary(t *testing.T) {
	c := NewConverter("definitely-not-a-real-ffmpeg-binary")
	if c.Available() {
		t.Fatal("Available() = true for missing binary")
	}
	if _, err := c.Convert(context.Background(), []byte{1, 2, 3}, "audio/webm"); !errors.Is(err, ErrNoConverter) {
		t.Fatalf("Convert() error = %v, want ErrNoConverter", err)
	}
}
