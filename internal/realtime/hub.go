package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/rehearse/internal/observe"
	"github.com/yoockh/rehearse/internal/utils"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
	maxFrameBytes = 16 << 20

	defaultTurnTimeout = 90 * time.Second
)

var errConnClosed = errors.New("realtime: connection closed")

type Hub struct {
	rooms  *RoomRegistry
	chunks ChunkStore
	turns  TurnDispatcher
	log    logrus.FieldLogger
	met    *observe.Metrics

	upgrader    websocket.Upgrader
	turnTimeout time.Duration

	inflight sync.WaitGroup
}

type HubOption func(*Hub)

// WithAllowedOrigins restricts the upgrade to the listed origins. With no
// origins every origin is accepted.
func WithAllowedOrigins(origins ...string) HubOption {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return slices.Contains(origins, r.Header.Get("Origin"))
		}
	}
}

func WithTurnTimeout(d time.Duration) HubOption {
	return func(h *Hub) { h.turnTimeout = d }
}

func NewHub(rooms *RoomRegistry, chunks ChunkStore, turns TurnDispatcher, log logrus.FieldLogger, met *observe.Metrics, opts ...HubOption) *Hub {
	if met == nil {
		met = observe.Noop()
	}
	h := &Hub{
		rooms:       rooms,
		chunks:      chunks,
		turns:       turns,
		log:         log,
		met:         met,
		turnTimeout: defaultTurnTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Hub) Rooms() *RoomRegistry { return h.rooms }

// Wait blocks until dispatched turns have finished.
func (h *Hub) Wait() { h.inflight.Wait() }

// conn is one upgraded websocket. Writes are serialized by mu.
type conn struct {
	id     string
	userID string
	ws     *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (c *conn) ID() string     { return c.id }
func (c *conn) UserID() string { return c.userID }

func (c *conn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *conn) Emit(event string, data any) error {
	frame, err := Encode(event, data)
	if err != nil {
		return err
	}
	return c.Send(frame)
}

func (c *conn) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	_ = c.ws.Close()
}

// Serve upgrades the request and runs the connection until it closes.
// userID comes from the caller's authentication.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrade already wrote the response
		return
	}
	c := &conn{id: uuid.NewString(), userID: userID, ws: ws}
	log := h.log.WithFields(logrus.Fields{"conn_id": c.id, "user_id": userID})

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	h.met.ActiveConnections.Add(ctx, 1)
	defer func() {
		cancel()
		for _, room := range h.rooms.LeaveAll(c.id) {
			h.announce(room, c, EventUserLeft, "")
		}
		c.close()
		h.met.ActiveConnections.Add(context.Background(), -1)
		log.Debug("realtime connection closed")
	}()

	go h.keepalive(ctx, c)

	ws.SetReadLimit(maxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	log.Debug("realtime connection open")
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Info("realtime connection dropped")
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			h.fail(c, utils.CodeInvalidArgument, "invalid envelope")
			continue
		}
		h.handle(ctx, log, c, env)
	}
}

func (h *Hub) keepalive(ctx context.Context, c *conn) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handle(ctx context.Context, log logrus.FieldLogger, c *conn, env Envelope) {
	switch env.Event {
	case EventJoinRoom:
		var msg JoinRoom
		if !h.decode(c, env, &msg) {
			return
		}
		others, err := h.rooms.Join(msg.RoomID, c, msg.Mode)
		if err != nil {
			h.fail(c, utils.CodeInvalidArgument, err.Error())
			return
		}
		_ = c.Emit(EventRoomJoined, RoomJoined{RoomID: msg.RoomID, ParticipantID: c.id, Participants: others})
		h.announce(msg.RoomID, c, EventUserJoined, msg.Mode)

	case EventLeaveRoom:
		var msg LeaveRoom
		if !h.decode(c, env, &msg) {
			return
		}
		if h.rooms.Leave(msg.RoomID, c.id) {
			h.announce(msg.RoomID, c, EventUserLeft, "")
		}

	case EventOffer, EventAnswer, EventICECandidate,
		EventRecordingStarted, EventRecordingStopped, EventMediaState,
		EventTypingStart, EventTypingStop:
		var msg Signal
		if !h.decode(c, env, &msg) {
			return
		}
		h.relay(c, env.Event, msg)

	case EventAudioChunk:
		var msg AudioChunk
		if !h.decode(c, env, &msg) {
			return
		}
		if err := h.chunks.SaveChunk(ctx, c.userID, msg.SessionID, msg.Index, msg.Chunk, msg.MimeType); err != nil {
			log.WithError(err).WithField("session_id", msg.SessionID).Warn("audio chunk rejected")
			h.fail(c, utils.CodeOf(err), "audio chunk rejected")
			return
		}
		_ = c.Emit(EventChunkReceived, ChunkAck{SessionID: msg.SessionID, Index: msg.Index})

	case EventAudioMessage:
		var msg AudioMessage
		if !h.decode(c, env, &msg) {
			return
		}
		h.dispatch(ctx, log, c, msg)

	default:
		h.fail(c, utils.CodeInvalidArgument, "unknown event "+env.Event)
	}
}

// relay forwards a signaling or presence event inside a room, stamped with
// the sender.
func (h *Hub) relay(c *conn, event string, msg Signal) {
	if !h.rooms.IsMember(msg.RoomID, c.id) {
		h.fail(c, utils.CodeForbidden, ErrNotMember.Error())
		return
	}
	target := msg.Target
	msg.From = c.id
	msg.Target = ""
	frame, err := Encode(event, msg)
	if err != nil {
		return
	}
	if target != "" {
		if err := h.rooms.Unicast(msg.RoomID, target, frame); err != nil {
			h.fail(c, utils.CodeNotFound, err.Error())
		}
		return
	}
	h.rooms.Broadcast(msg.RoomID, c.id, frame)
}

func (h *Hub) dispatch(ctx context.Context, log logrus.FieldLogger, c *conn, msg AudioMessage) {
	req := TurnRequest{
		RequestID:   msg.RequestID,
		UserID:      c.userID,
		SessionID:   msg.SessionID,
		AudioBase64: msg.AudioBase64,
		MimeType:    msg.MimeType,
		Synthesize:  msg.Synthesize == nil || *msg.Synthesize,
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	// a turn outlives the socket so the transcript is still persisted when
	// the client drops mid-turn
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.turnTimeout)
		defer cancel()
		if err := h.turns.Dispatch(tctx, req, c); err != nil {
			log.WithError(err).WithField("request_id", req.RequestID).Error("turn dispatch failed")
			_ = c.Emit(EventTurnError, TurnError{
				RequestID: req.RequestID,
				SessionID: req.SessionID,
				Stage:     "dispatch",
				Code:      string(utils.CodeUnavailable),
				Message:   "turn could not be scheduled",
			})
		}
	}()
}

func (h *Hub) announce(room string, c *conn, event, mode string) {
	frame, err := Encode(event, MemberEvent{
		RoomID:      room,
		Participant: Participant{ID: c.id, UserID: c.userID, Mode: mode},
	})
	if err != nil {
		return
	}
	h.rooms.Broadcast(room, c.id, frame)
}

func (h *Hub) decode(c *conn, env Envelope, dst any) bool {
	if len(env.Data) == 0 {
		h.fail(c, utils.CodeInvalidArgument, env.Event+": missing data")
		return false
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		h.fail(c, utils.CodeInvalidArgument, env.Event+": invalid data")
		return false
	}
	return true
}

func (h *Hub) fail(c *conn, code utils.Code, msg string) {
	_ = c.Emit(EventError, ErrorEvent{Code: string(code), Message: msg})
}
