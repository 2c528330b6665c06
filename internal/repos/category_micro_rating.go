package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skillrank/skillrank-backend/internal/logger"
	"github.com/skillrank/skillrank-backend/internal/types"
)

type CategoryMicroRatingRepo interface {
	GetByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) ([]*types.CategoryMicroRating, error)
	GetForLearnerCategory(ctx context.Context, tx *gorm.DB, learnerID, categoryID uuid.UUID) (*types.CategoryMicroRating, error)
	// Upsert writes the full mutable state of one micro rating, keyed on
	// (learner_id, category_id).
	Upsert(ctx context.Context, tx *gorm.DB, row *types.CategoryMicroRating) error
}

type categoryMicroRatingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCategoryMicroRatingRepo(db *gorm.DB, baseLog *logger.Logger) CategoryMicroRatingRepo {
	return &categoryMicroRatingRepo{db: db, log: baseLog.With("repo", "CategoryMicroRatingRepo")}
}

func (r *categoryMicroRatingRepo) GetByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) ([]*types.CategoryMicroRating, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CategoryMicroRating
	if learnerID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("learner_id = ?", learnerID).
		Order("category_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *categoryMicroRatingRepo) GetForLearnerCategory(ctx context.Context, tx *gorm.DB, learnerID, categoryID uuid.UUID) (*types.CategoryMicroRating, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.CategoryMicroRating
	err := transaction.WithContext(ctx).
		Where("learner_id = ? AND category_id = ?", learnerID, categoryID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *categoryMicroRatingRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.CategoryMicroRating) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "learner_id"}, {Name: "category_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"rating", "attempts", "correct_attempts", "success_rate",
				"recent_accuracy", "recent_outcomes", "trend", "mastered_count",
				"priority_score", "last_attempt_at", "updated_at",
			}),
		}).
		Create(row).Error
}
