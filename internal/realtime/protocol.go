// Package realtime is the persistent bidirectional channel: room
// membership, signaling relay, incremental audio chunks and end-to-end
// audio turns. Every frame is a JSON envelope {"event": ..., "data": ...}.
package realtime

import (
	"context"
	"encoding/json"
)

// Client events.
const (
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventOffer            = "offer"
	EventAnswer           = "answer"
	EventICECandidate     = "ice-candidate"
	EventAudioChunk       = "audio-chunk"
	EventAudioMessage     = "audio-message"
	EventRecordingStarted = "recording-started"
	EventRecordingStopped = "recording-stopped"
	EventMediaState       = "media-state-change"
	EventTypingStart      = "typing-start"
	EventTypingStop       = "typing-stop"
)

// Server events.
const (
	EventRoomJoined         = "room-joined"
	EventUserJoined         = "user-joined"
	EventUserLeft           = "user-left"
	EventChunkReceived      = "audio-chunk-received"
	EventTranscriptionReady = "transcription-ready"
	EventTextResponseReady  = "text-response-ready"
	EventAudioResponseReady = "audio-response-ready"
	EventTurnError          = "turn-error"
	EventError              = "error"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds one wire frame.
func Encode(event string, data any) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

type JoinRoom struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId,omitempty"`
	Mode   string `json:"mode,omitempty"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

// Signal carries an opaque payload (SDP, ICE candidate, media state). With
// Target set it is delivered to that participant only.
type Signal struct {
	RoomID  string          `json:"roomId"`
	Target  string          `json:"target,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type AudioChunk struct {
	SessionID string `json:"sessionId"`
	Chunk     string `json:"chunk"` // base64
	Index     int64  `json:"index"`
	MimeType  string `json:"mimeType,omitempty"`
}

type ChunkAck struct {
	SessionID string `json:"sessionId"`
	Index     int64  `json:"index"`
}

type AudioMessage struct {
	SessionID   string `json:"sessionId"`
	AudioBase64 string `json:"audioBase64"`
	MimeType    string `json:"mimeType"`
	Synthesize  *bool  `json:"synthesize,omitempty"`
	RequestID   string `json:"requestId,omitempty"`
}

type Participant struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Mode   string `json:"mode,omitempty"`
}

type RoomJoined struct {
	RoomID        string        `json:"roomId"`
	ParticipantID string        `json:"participantId"`
	Participants  []Participant `json:"participants"`
}

type MemberEvent struct {
	RoomID      string      `json:"roomId"`
	Participant Participant `json:"participant"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Turn result payloads.

// TranscriptionReady with Available false means no transcriber could serve
// the turn; the turn continues with a placeholder user line.
type TranscriptionReady struct {
	RequestID       string  `json:"requestId,omitempty"`
	SessionID       string  `json:"sessionId"`
	Available       bool    `json:"available"`
	Text            string  `json:"text"`
	Language        string  `json:"language,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

type TextResponseReady struct {
	RequestID string `json:"requestId,omitempty"`
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	Source    string `json:"source"`
}

type AudioResponseReady struct {
	RequestID       string  `json:"requestId,omitempty"`
	SessionID       string  `json:"sessionId"`
	Available       bool    `json:"available"`
	AudioURL        string  `json:"audioUrl,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

type TurnError struct {
	RequestID string `json:"requestId,omitempty"`
	SessionID string `json:"sessionId"`
	Stage     string `json:"stage"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// TurnRequest is one audio turn handed to a dispatcher.
type TurnRequest struct {
	RequestID   string `json:"request_id"`
	UserID      string `json:"user_id"`
	SessionID   string `json:"session_id"`
	AudioBase64 string `json:"audio_base64"`
	MimeType    string `json:"mime_type"`
	Synthesize  bool   `json:"synthesize"`
}

// Emitter delivers server events back to whoever asked for a turn.
type Emitter interface {
	Emit(event string, data any) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(event string, data any) error

func (f EmitterFunc) Emit(event string, data any) error { return f(event, data) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(string, any) error { return nil })

// ChunkStore persists incremental recording chunks.
type ChunkStore interface {
	SaveChunk(ctx context.Context, userID, sessionID string, index int64, chunkBase64, mimeType string) error
}
