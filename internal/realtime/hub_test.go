package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yoockh/rehearse/internal/logger"
)

type memChunks struct {
	mu     sync.Mutex
	saved  []int64
	reject bool
}

func (m *memChunks) SaveChunk(_ context.Context, _, _ string, index int64, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reject {
		return errors.New("write failed")
	}
	m.saved = append(m.saved, index)
	return nil
}

func newTestHub(t *testing.T, process ProcessFunc) (*Hub, string) {
	t.Helper()
	if process == nil {
		process = func(context.Context, TurnRequest, Emitter) error { return nil }
	}
	hub := NewHub(NewRoomRegistry(), &memChunks{}, InlineDispatcher{Process: process}, logger.Discard(), nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, user string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url+"?user="+user, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := Encode(event, data)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func expect(t *testing.T, c *websocket.Conn, event string, dst any) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatal(err)
		}
		if env.Event != event {
			continue
		}
		if dst != nil {
			if err := json.Unmarshal(env.Data, dst); err != nil {
				t.Fatal(err)
			}
		}
		return
	}
}

func TestHubJoinAndRelayOffer(t *testing.T) {
	hub, url := newTestHub(t, nil)
	a := dial(t, url, "u1")
	b := dial(t, url, "u2")

	var joinedA RoomJoined
	send(t, a, EventJoinRoom, JoinRoom{RoomID: "s1", Mode: "live"})
	expect(t, a, EventRoomJoined, &joinedA)

	var joinedB RoomJoined
	send(t, b, EventJoinRoom, JoinRoom{RoomID: "s1"})
	expect(t, b, EventRoomJoined, &joinedB)
	if len(joinedB.Participants) != 1 || joinedB.Participants[0].UserID != "u1" {
		t.Fatalf("participants = %#v", joinedB.Participants)
	}

	var joined MemberEvent
	expect(t, a, EventUserJoined, &joined)
	if joined.Participant.UserID != "u2" {
		t.Fatalf("user-joined = %#v", joined)
	}

	send(t, b, EventOffer, Signal{RoomID: "s1", Target: joinedA.ParticipantID, Payload: json.RawMessage(`{"sdp":"v=0"}`)})
	var offer Signal
	expect(t, a, EventOffer, &offer)
	if offer.From != joinedB.ParticipantID || string(offer.Payload) != `{"sdp":"v=0"}` {
		t.Fatalf("relayed offer = %#v", offer)
	}
	if hub.Rooms().Count() != 1 {
		t.Fatalf("rooms = %d", hub.Rooms().Count())
	}
}

func TestHubRelayRequiresMembership(t *testing.T) {
	_, url := newTestHub(t, nil)
	a := dial(t, url, "u1")
	send(t, a, EventICECandidate, Signal{RoomID: "nope"})

	var e ErrorEvent
	expect(t, a, EventError, &e)
	if e.Code != "FORBIDDEN" {
		t.Fatalf("error = %#v", e)
	}
}

func TestHubAcksAudioChunks(t *testing.T) {
	_, url := newTestHub(t, nil)
	a := dial(t, url, "u1")
	send(t, a, EventAudioChunk, AudioChunk{SessionID: "s1", Chunk: "AAAA", Index: 4})

	var ack ChunkAck
	expect(t, a, EventChunkReceived, &ack)
	if ack.Index != 4 || ack.SessionID != "s1" {
		t.Fatalf("ack = %#v", ack)
	}
}

func TestHubDispatchesAudioTurn(t *testing.T) {
	got := make(chan TurnRequest, 1)
	process := func(_ context.Context, req TurnRequest, emit Emitter) error {
		got <- req
		return emit.Emit(EventTextResponseReady, TextResponseReady{RequestID: req.RequestID, SessionID: req.SessionID, Text: "Why?"})
	}
	hub, url := newTestHub(t, process)
	a := dial(t, url, "u1")

	no := false
	send(t, a, EventAudioMessage, AudioMessage{SessionID: "s1", AudioBase64: "AAAA", MimeType: "audio/webm", Synthesize: &no, RequestID: "r1"})

	var reply TextResponseReady
	expect(t, a, EventTextResponseReady, &reply)
	if reply.Text != "Why?" || reply.RequestID != "r1" {
		t.Fatalf("reply = %#v", reply)
	}
	req := <-got
	if req.UserID != "u1" || req.Synthesize {
		t.Fatalf("request = %#v", req)
	}
	hub.Wait()
}

func TestHubDisconnectLeavesRooms(t *testing.T) {
	hub, url := newTestHub(t, nil)
	a := dial(t, url, "u1")
	b := dial(t, url, "u2")
	send(t, a, EventJoinRoom, JoinRoom{RoomID: "s1"})
	expect(t, a, EventRoomJoined, nil)
	send(t, b, EventJoinRoom, JoinRoom{RoomID: "s1"})
	expect(t, b, EventRoomJoined, nil)

	_ = a.Close()
	var left MemberEvent
	expect(t, b, EventUserLeft, &left)
	if left.Participant.UserID != "u1" {
		t.Fatalf("user-left = %#v", left)
	}
	if m := hub.Rooms().Members("s1"); len(m) != 1 {
		t.Fatalf("members after disconnect = %#v", m)
	}
}

func TestHubRejectsUnknownEvent(t *testing.T) {
	_, url := newTestHub(t, nil)
	a := dial(t, url, "u1")
	if err := a.WriteMessage(websocket.TextMessage, []byte(`{"event":"bogus"}`)); err != nil {
		t.Fatal(err)
	}
	var e ErrorEvent
	expect(t, a, EventError, &e)
	if e.Code != "INVALID_ARGUMENT" {
		t.Fatalf("error = %#v", e)
	}
}
