package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillrank/skillrank-backend/internal/logger"
	"github.com/skillrank/skillrank-backend/internal/types"
)

type CategoryRepo interface {
	GetByIDs(ctx context.Context, tx *gorm.DB, categoryIDs []uuid.UUID) ([]*types.Category, error)
}

type categoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCategoryRepo(db *gorm.DB, baseLog *logger.Logger) CategoryRepo {
	return &categoryRepo{db: db, log: baseLog.With("repo", "CategoryRepo")}
}

func (r *categoryRepo) GetByIDs(ctx context.Context, tx *gorm.DB, categoryIDs []uuid.UUID) ([]*types.Category, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Category
	if len(categoryIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", categoryIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
