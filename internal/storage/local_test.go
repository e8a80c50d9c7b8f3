package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestKey(t *testing.T) {
	k, err := Key(SpeechRoot, "sess-1", "reply_ab12.mp3")
	if err != nil || k != "speech/sess-1/reply_ab12.mp3" {
		t.Fatalf("Key() = %q, %v", k, err)
	}

	bad := []struct{ root, session, file string }{
		{"tmp", "sess-1", "a.mp3"},
		{SpeechRoot, "../etc", "passwd"},
		{SpeechRoot, "sess-1", "../../x"},
		{RecordingRoot, "sess-1", ".hidden"},
		{RecordingRoot, "", "a.webm"},
		{RecordingRoot, "sess/1", "a.webm"},
	}
	for _, b := range bad {
		if _, err := Key(b.root, b.session, b.file); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Key(%q,%q,%q) error = %v, want ErrInvalidKey", b.root, b.session, b.file, err)
		}
	}
}

func TestLocalStorePutOpen(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	key, _ := Key(RecordingRoot, "sess-1", "turn_1.webm")
	if _, err := s.Put(ctx, key, "audio/webm", strings.NewReader("hello audio")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	obj, err := s.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer obj.Close()
	if obj.Size != int64(len("hello audio")) || obj.ContentType != "audio/webm" {
		t.Fatalf("object = %#v", obj)
	}
	if _, err := obj.Reader.Seek(6, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	rest, _ := io.ReadAll(obj.Reader)
	if string(rest) != "audio" {
		t.Fatalf("seeked read = %q", rest)
	}

	if _, err := s.Open(ctx, "recordings/sess-1/missing.webm"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open(missing) error = %v", err)
	}
	if _, err := s.Open(ctx, "../outside"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Open(traversal) error = %v", err)
	}
}
