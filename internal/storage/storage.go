// Package storage persists audio artifacts under per-session prefixes:
// speech/<session_id>/<file> for synthesized replies and
// recordings/<session_id>/<file> for raw user audio.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"regexp"
	"strings"
	"time"
)

const (
	SpeechRoot    = "speech"
	RecordingRoot = "recordings"
)

var (
	ErrNotFound   = errors.New("storage: object not found")
	ErrInvalidKey = errors.New("storage: invalid object key")
)

// Object is an opened artifact. Reader supports seeking so handlers can
// serve byte ranges.
type Object struct {
	Reader      io.ReadSeeker
	Size        int64
	ModTime     time.Time
	ContentType string
	closer      io.Closer
}

func (o *Object) Close() error {
	if o.closer != nil {
		return o.closer.Close()
	}
	return nil
}

type ArtifactStore interface {
	// Put stores r under key and returns the key it was stored at.
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	Open(ctx context.Context, key string) (*Object, error)
	Close() error
}

var segment = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Key joins a root, a session id and a file name, rejecting anything that
// could escape the session prefix.
func Key(root, sessionID, file string) (string, error) {
	if root != SpeechRoot && root != RecordingRoot {
		return "", ErrInvalidKey
	}
	for _, s := range []string{sessionID, file} {
		if !segment.MatchString(s) || strings.Contains(s, "..") {
			return "", ErrInvalidKey
		}
	}
	return path.Join(root, sessionID, file), nil
}

// ContentTypeFor guesses the content type from the file extension.
func ContentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	case ".webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
