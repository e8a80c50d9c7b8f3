package tts

import "context"

// Speech is synthesized audio in ContentType encoding.
type Speech struct {
	Audio       []byte
	ContentType string
	Extension   string
}

type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text string) (*Speech, error)
	Close() error
}
