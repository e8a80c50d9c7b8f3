package services

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/yoockh/rehearse/internal/models"
	mongorepo "github.com/yoockh/rehearse/internal/repositories/mongo"
	"github.com/yoockh/rehearse/internal/utils"
)

// maxChunkBytes bounds one decoded recording chunk.
const maxChunkBytes = 2 << 20

// BufferService persists incremental recording chunks sent over the
// realtime channel. It satisfies realtime.ChunkStore.
type BufferService interface {
	SaveChunk(ctx context.Context, userID, sessionID string, index int64, chunkBase64, mimeType string) error
	ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.AudioChunk, error)
	Discard(ctx context.Context, sessionID string) (int64, error)
}

type bufferService struct {
	chunks mongorepo.ChunkRepository
	ttl    time.Duration
}

func NewBufferService(chunks mongorepo.ChunkRepository, ttl time.Duration) BufferService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &bufferService{chunks: chunks, ttl: ttl}
}

func (s *bufferService) SaveChunk(ctx context.Context, userID, sessionID string, index int64, chunkBase64, mimeType string) error {
	const op = "BufferService.SaveChunk"

	if userID == "" || sessionID == "" || index < 0 {
		return utils.E(utils.CodeInvalidArgument, op, "user_id, session_id and a non-negative index are required", nil)
	}
	raw, err := base64.StdEncoding.DecodeString(chunkBase64)
	if err != nil {
		return utils.E(utils.CodeInvalidArgument, op, "chunk is not valid base64", err)
	}
	if len(raw) == 0 {
		return utils.E(utils.CodeInvalidArgument, op, "chunk is empty", nil)
	}
	if len(raw) > maxChunkBytes {
		return utils.E(utils.CodeInvalidArgument, op, "chunk too large", nil)
	}

	now := time.Now().UTC()
	doc := &models.AudioChunk{
		SessionID:   sessionID,
		UserID:      userID,
		ChunkIndex:  index,
		AudioBase64: chunkBase64,
		MimeType:    mimeType,
		SizeBytes:   len(raw),
		Timestamp:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.chunks.UpsertChunk(ctx, doc); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to store audio chunk", err)
	}
	return nil
}

func (s *bufferService) ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.AudioChunk, error) {
	const op = "BufferService.ListBySession"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	out, err := s.chunks.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list audio chunks", err)
	}
	return out, nil
}

// Discard drops the chunks of a finished session.
func (s *bufferService) Discard(ctx context.Context, sessionID string) (int64, error) {
	const op = "BufferService.Discard"

	n, err := s.chunks.DeleteBySession(ctx, sessionID)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to delete audio chunks", err)
	}
	return n, nil
}
