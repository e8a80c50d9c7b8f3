package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/yoockh/rehearse/internal/models"
)

type ConversationRepo interface {
	InsertMany(ctx context.Context, rows []models.ConversationLog) error
	ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.ConversationLog, error)
}

type conversationRepo struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) InsertMany(ctx context.Context, rows []models.ConversationLog) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// ListBySession returns the log oldest first, matching transcript order.
func (r *conversationRepo) ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.ConversationLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}

	rows := []models.ConversationLog{}
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("timestamp ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
