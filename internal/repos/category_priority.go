package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skillrank/skillrank-backend/internal/logger"
	"github.com/skillrank/skillrank-backend/internal/types"
)

type CategoryPriorityRepo interface {
	// UpsertAll replaces the learner's priority cache rows, keyed on
	// (learner_id, category_id).
	UpsertAll(ctx context.Context, tx *gorm.DB, rows []*types.CategoryPracticePriority) error
	// TopByLearner returns the n highest-weight rows; ties break on
	// category id ascending so repeated calls order identically.
	TopByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, n int) ([]*types.CategoryPracticePriority, error)
	GetByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) ([]*types.CategoryPracticePriority, error)
}

type categoryPriorityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCategoryPriorityRepo(db *gorm.DB, baseLog *logger.Logger) CategoryPriorityRepo {
	return &categoryPriorityRepo{db: db, log: baseLog.With("repo", "CategoryPriorityRepo")}
}

func (r *categoryPriorityRepo) UpsertAll(ctx context.Context, tx *gorm.DB, rows []*types.CategoryPracticePriority) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "learner_id"}, {Name: "category_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"selection_weight", "questions_needed", "rating_deficit",
				"accuracy_deficit", "next_practice_at", "last_calculated_at",
				"updated_at",
			}),
		}).
		Create(&rows).Error
}

func (r *categoryPriorityRepo) TopByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, n int) ([]*types.CategoryPracticePriority, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CategoryPracticePriority
	if learnerID == uuid.Nil || n <= 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("learner_id = ?", learnerID).
		Order("selection_weight DESC, category_id ASC").
		Limit(n).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *categoryPriorityRepo) GetByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) ([]*types.CategoryPracticePriority, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CategoryPracticePriority
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
