package livesession

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yoockh/rehearse/internal/perception"
)

// ErrPermissionDenied is returned by devices when the user refused access.
// It is surfaced as is and never retried.
var ErrPermissionDenied = errors.New("livesession: media permission denied")

// AudioStream is one microphone acquisition. Chunks is closed after Close
// once every buffered chunk has been delivered.
type AudioStream interface {
	Chunks() <-chan []byte
	MimeType() string
	Close() error
}

type Microphone interface {
	Open(ctx context.Context) (AudioStream, error)
}

// VideoStream is a camera acquisition the perception extractor can sample.
type VideoStream interface {
	perception.FrameSource
	Close() error
}

type Camera interface {
	Open(ctx context.Context) (VideoStream, error)
}

// Artifact is a finalized recording.
type Artifact struct {
	Data     []byte
	MimeType string
}

func (a Artifact) Empty() bool { return len(a.Data) == 0 }

// recorder drains one AudioStream into memory and hands each chunk to
// onChunk with its index and the stream's mime type.
type recorder struct {
	stream  AudioStream
	onChunk func(index int64, chunk []byte, mimeType string)

	mu   sync.Mutex
	buf  bytes.Buffer
	done chan struct{}
}

func startRecorder(ctx context.Context, mic Microphone, onChunk func(int64, []byte, string)) (*recorder, error) {
	stream, err := mic.Open(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return nil, err
		}
		return nil, fmt.Errorf("open microphone: %w", err)
	}
	r := &recorder{stream: stream, onChunk: onChunk, done: make(chan struct{})}
	go r.drain()
	return r, nil
}

func (r *recorder) drain() {
	defer close(r.done)
	mime := r.stream.MimeType()
	var index int64
	for chunk := range r.stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		r.mu.Lock()
		r.buf.Write(chunk)
		r.mu.Unlock()
		if r.onChunk != nil {
			r.onChunk(index, chunk, mime)
		}
		index++
	}
}

// stop releases the device and returns everything recorded.
func (r *recorder) stop() (Artifact, error) {
	err := r.stream.Close()
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return Artifact{Data: append([]byte(nil), r.buf.Bytes()...), MimeType: r.stream.MimeType()}, err
}
