package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillrank/skillrank-backend/internal/logger"
	"github.com/skillrank/skillrank-backend/internal/types"
)

type QuestionRepo interface {
	GetByIDs(ctx context.Context, tx *gorm.DB, questionIDs []uuid.UUID) ([]*types.Question, error)
	// CountActiveByCategories returns the active-question inventory per
	// category; categories with no active questions are absent from the map.
	CountActiveByCategories(ctx context.Context, tx *gorm.DB, categoryIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

type questionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionRepo(db *gorm.DB, baseLog *logger.Logger) QuestionRepo {
	return &questionRepo{db: db, log: baseLog.With("repo", "QuestionRepo")}
}

func (r *questionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, questionIDs []uuid.UUID) ([]*types.Question, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Question
	if len(questionIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", questionIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *questionRepo) CountActiveByCategories(ctx context.Context, tx *gorm.DB, categoryIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	out := map[uuid.UUID]int64{}
	if len(categoryIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		CategoryID uuid.UUID `gorm:"column:category_id"`
		Cnt        int64     `gorm:"column:cnt"`
	}
	if err := transaction.WithContext(ctx).
		Model(&types.Question{}).
		Select("category_id, COUNT(*) AS cnt").
		Where("category_id IN ? AND active = ?", categoryIDs, true).
		Group("category_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.CategoryID] = row.Cnt
	}
	return out, nil
}
