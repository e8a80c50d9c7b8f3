package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yoockh/rehearse/internal/models"
	pgrepo "github.com/yoockh/rehearse/internal/repositories/postgres"
	"github.com/yoockh/rehearse/internal/utils"
)

// ConversationService mirrors transcript entries into the conversation log.
type ConversationService interface {
	Append(ctx context.Context, userID, sessionID string, entries ...models.TranscriptEntry) error
	ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.ConversationLog, error)
}

type conversationService struct {
	convos pgrepo.ConversationRepo
}

func NewConversationService(convos pgrepo.ConversationRepo) ConversationService {
	return &conversationService{convos: convos}
}

type entryMetadata struct {
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}

func (s *conversationService) Append(ctx context.Context, userID, sessionID string, entries ...models.TranscriptEntry) error {
	const op = "ConversationService.Append"

	if userID == "" || sessionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "user_id and session_id are required", nil)
	}

	rows := make([]models.ConversationLog, 0, len(entries))
	for _, e := range entries {
		if e.Text == "" {
			continue
		}
		md, _ := json.Marshal(entryMetadata{DurationSeconds: e.DurationSeconds})
		rows = append(rows, models.ConversationLog{
			ID:        uuid.NewString(),
			UserID:    userID,
			SessionID: sessionID,
			Role:      string(e.Role),
			Content:   e.Text,
			Timestamp: e.Timestamp,
			Metadata:  datatypes.JSON(md),
		})
	}
	if err := s.convos.InsertMany(ctx, rows); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to insert conversation log", err)
	}
	return nil
}

func (s *conversationService) ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.ConversationLog, error) {
	const op = "ConversationService.ListBySession"

	if userID == "" || sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and session_id are required", nil)
	}

	rows, err := s.convos.ListBySession(ctx, userID, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list conversations", err)
	}
	return rows, nil
}
