package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yoockh/rehearse/internal/models"
	"github.com/yoockh/rehearse/internal/utils"
)

type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.BehavioralProfile, error)
	Upsert(ctx context.Context, p *models.BehavioralProfile) error
}

type profileRepo struct {
	db *gorm.DB
}

func NewProfileRepo(db *gorm.DB) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) GetByUserID(ctx context.Context, userID string) (*models.BehavioralProfile, error) {
	var p models.BehavioralProfile
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepo) Upsert(ctx context.Context, p *models.BehavioralProfile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"metrics", "disposition", "style", "reflection",
				"focus_area", "focus_rationale", "micro_experiment", "adaptation_hints",
				"session_count", "has_baseline", "last_analysis", "updated_at",
			}),
		}).
		Create(p).Error
}
