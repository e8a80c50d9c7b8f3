package livesession

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/rehearse/internal/realtime"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

var ErrClosed = errors.New("livesession: connection closed")

// TurnError is a turn-error event reported by the server.
type TurnError struct {
	Stage   string
	Code    string
	Message string
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn failed at %s: %s (%s)", e.Stage, e.Message, e.Code)
}

// TurnEvent is one server emission for an audio turn. Exactly one of the
// pointers is set.
type TurnEvent struct {
	Transcription *realtime.TranscriptionReady
	Reply         *realtime.TextResponseReady
	Audio         *realtime.AudioResponseReady
}

// Client speaks the realtime protocol over one websocket. Turn events are
// routed to the AudioTurn call that issued them; everything else goes to
// Events.
type Client struct {
	conn *websocket.Conn
	log  logrus.FieldLogger

	events chan realtime.Envelope
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	mu      sync.Mutex
	waiters map[string]chan realtime.Envelope

	errMu sync.Mutex
	err   error
}

// Dial connects to the realtime endpoint. header usually carries the
// bearer token.
func Dial(ctx context.Context, url string, header http.Header, log logrus.FieldLogger) (*Client, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dialTimeout)
		defer cancel()
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	c := &Client{
		conn:    conn,
		log:     log,
		events:  make(chan realtime.Envelope, 64),
		done:    make(chan struct{}),
		waiters: map[string]chan realtime.Envelope{},
	}
	go c.readLoop()
	return c, nil
}

// Events yields room, signaling and error events.
func (c *Client) Events() <-chan realtime.Envelope { return c.events }

func (c *Client) send(event string, data any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	frame, err := realtime.Encode(event, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) Join(roomID, userID, mode string) error {
	return c.send(realtime.EventJoinRoom, realtime.JoinRoom{RoomID: roomID, UserID: userID, Mode: mode})
}

func (c *Client) Leave(roomID string) error {
	return c.send(realtime.EventLeaveRoom, realtime.LeaveRoom{RoomID: roomID})
}

// Signal relays an opaque payload. An empty target broadcasts to the room.
func (c *Client) Signal(event, roomID, target string, payload json.RawMessage) error {
	return c.send(event, realtime.Signal{RoomID: roomID, Target: target, Payload: payload})
}

// SendChunk persists one recording chunk. The ack arrives on Events.
func (c *Client) SendChunk(sessionID string, index int64, chunk []byte, mimeType string) error {
	return c.send(realtime.EventAudioChunk, realtime.AudioChunk{
		SessionID: sessionID,
		Chunk:     base64.StdEncoding.EncodeToString(chunk),
		Index:     index,
		MimeType:  mimeType,
	})
}

// AudioTurn sends one recording and blocks until the turn finishes. on is
// called for each stage as it arrives. The turn finishes with
// audio-response-ready, or text-response-ready when synthesize is false.
func (c *Client) AudioTurn(ctx context.Context, sessionID string, audio []byte, mimeType string, synthesize bool, on func(TurnEvent)) error {
	reqID := uuid.NewString()
	ch := make(chan realtime.Envelope, 4)
	c.mu.Lock()
	c.waiters[reqID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiters, reqID)
		c.mu.Unlock()
	}()

	err := c.send(realtime.EventAudioMessage, realtime.AudioMessage{
		SessionID:   sessionID,
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
		MimeType:    mimeType,
		Synthesize:  &synthesize,
		RequestID:   reqID,
	})
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrClosed
		case env := <-ch:
			finished, err := deliver(env, synthesize, on)
			if err != nil || finished {
				return err
			}
		}
	}
}

func deliver(env realtime.Envelope, synthesize bool, on func(TurnEvent)) (bool, error) {
	if on == nil {
		on = func(TurnEvent) {}
	}
	switch env.Event {
	case realtime.EventTranscriptionReady:
		var p realtime.TranscriptionReady
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return false, err
		}
		on(TurnEvent{Transcription: &p})
	case realtime.EventTextResponseReady:
		var p realtime.TextResponseReady
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return false, err
		}
		on(TurnEvent{Reply: &p})
		return !synthesize, nil
	case realtime.EventAudioResponseReady:
		var p realtime.AudioResponseReady
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return false, err
		}
		on(TurnEvent{Audio: &p})
		return true, nil
	case realtime.EventTurnError:
		var p realtime.TurnError
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return false, err
		}
		return true, &TurnError{Stage: p.Stage, Code: p.Code, Message: p.Message}
	}
	return false, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !c.closed.Load() {
				c.setErr(err)
			}
			return
		}
		var env realtime.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.WithError(err).Warn("dropping malformed frame")
			continue
		}
		if ch := c.waiterFor(env); ch != nil {
			select {
			case ch <- env:
			default:
			}
			continue
		}
		select {
		case c.events <- env:
		default:
			c.log.WithField("event", env.Event).Warn("event buffer full, dropping")
		}
	}
}

func (c *Client) waiterFor(env realtime.Envelope) chan realtime.Envelope {
	switch env.Event {
	case realtime.EventTranscriptionReady, realtime.EventTextResponseReady,
		realtime.EventAudioResponseReady, realtime.EventTurnError:
	default:
		return nil
	}
	var ref struct {
		RequestID string `json:"requestId"`
	}
	if json.Unmarshal(env.Data, &ref) != nil || ref.RequestID == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiters[ref.RequestID]
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	<-c.done
	return nil
}

// Err returns the error that ended the read loop, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}
