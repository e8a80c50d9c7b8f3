package workers

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yoockh/rehearse/internal/logger"
	"github.com/yoockh/rehearse/internal/realtime"
)

type captured struct {
	mu     sync.Mutex
	events []string
	data   []json.RawMessage
}

func (c *captured) Emit(event string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	raw, _ := json.Marshal(data)
	c.data = append(c.data, raw)
	return nil
}

func TestStreamValuesRequestRoundTrip(t *testing.T) {
	req := realtime.TurnRequest{RequestID: "r1", UserID: "u1", SessionID: "s1", AudioBase64: "AAEC", MimeType: "audio/webm", Synthesize: true}
	values, err := StreamValues(req)
	if err != nil {
		t.Fatal(err)
	}
	if values["session_id"] != "s1" || values["request_id"] != "r1" {
		t.Fatalf("values = %v", values)
	}
	got, err := RequestFromValues(values)
	if err != nil {
		t.Fatal(err)
	}
	if got != req {
		t.Fatalf("got %#v, want %#v", got, req)
	}
}

func TestRequestFromValuesRejectsIncomplete(t *testing.T) {
	cases := []map[string]any{
		{},
		{"payload": "not json"},
		{"payload": `{"request_id":"r1","session_id":"s1"}`},
	}
	for i, v := range cases {
		if _, err := RequestFromValues(v); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestForward(t *testing.T) {
	emit := &captured{}
	log := logger.Discard()

	frame, _ := realtime.Encode(realtime.EventTextResponseReady, realtime.TextResponseReady{RequestID: "r1", Text: "Why?"})
	if Forward(string(frame), emit, log) {
		t.Fatal("reply frame ended the turn")
	}
	if Forward("{broken", emit, log) {
		t.Fatal("malformed frame ended the turn")
	}
	done, _ := realtime.Encode(EventTurnDone, nil)
	if !Forward(string(done), emit, log) {
		t.Fatal("turn-done did not end the turn")
	}

	if len(emit.events) != 1 || emit.events[0] != realtime.EventTextResponseReady {
		t.Fatalf("events = %v", emit.events)
	}
	var got realtime.TextResponseReady
	if err := json.Unmarshal(emit.data[0], &got); err != nil || got.Text != "Why?" {
		t.Fatalf("data = %s, %v", emit.data[0], err)
	}
}

// TestStreamRoundTrip needs a Redis server; set REDIS_ADDR to run it.
func TestStreamRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stream := "test:turn:" + time.Now().Format("150405.000000")
	t.Cleanup(func() { rdb.Del(context.Background(), stream) })

	pool := &TurnWorkerPool{
		Redis:      rdb,
		Stream:     stream,
		NumWorkers: 1,
		Logger:     logger.Discard(),
		Process: func(_ context.Context, req realtime.TurnRequest, emit realtime.Emitter) error {
			return emit.Emit(realtime.EventTranscriptionReady, realtime.TranscriptionReady{RequestID: req.RequestID, SessionID: req.SessionID, Available: true, Text: "hi"})
		},
	}
	go func() { _ = pool.Run(ctx) }()

	emit := &captured{}
	d := &StreamDispatcher{Redis: rdb, Stream: stream, Timeout: 5 * time.Second, Log: logger.Discard()}
	err := d.Dispatch(ctx, realtime.TurnRequest{RequestID: "r1", UserID: "u1", SessionID: "s1", AudioBase64: "AA=="}, emit)
	if err != nil {
		t.Fatal(err)
	}
	if len(emit.events) != 1 || emit.events[0] != realtime.EventTranscriptionReady {
		t.Fatalf("events = %v", emit.events)
	}
}
