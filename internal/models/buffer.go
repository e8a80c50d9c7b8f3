package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AudioChunk is one incremental recording chunk persisted while the
// microphone is open. Chunks expire through a TTL index.
type AudioChunk struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID  string             `bson:"session_id" json:"session_id"`
	UserID     string             `bson:"user_id" json:"user_id"`
	ChunkIndex int64              `bson:"chunk_index" json:"chunk_index"`

	AudioBase64 string `bson:"audio_base64" json:"-"`
	MimeType    string `bson:"mime_type,omitempty" json:"mime_type,omitempty"`
	SizeBytes   int    `bson:"size_bytes" json:"size_bytes"`

	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}
