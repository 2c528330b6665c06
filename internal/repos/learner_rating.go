package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skillrank/skillrank-backend/internal/logger"
	"github.com/skillrank/skillrank-backend/internal/types"
)

type LearnerRatingRepo interface {
	Get(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) (*types.LearnerRating, error)
	// Ensure inserts a baseline row for the learner if none exists yet.
	Ensure(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, baseline float64) error
	// GetForUpdate takes a row lock on the learner's rating. Settlements for
	// the same learner serialize on this lock.
	GetForUpdate(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) (*types.LearnerRating, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, updates map[string]interface{}) error
}

type learnerRatingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLearnerRatingRepo(db *gorm.DB, baseLog *logger.Logger) LearnerRatingRepo {
	return &learnerRatingRepo{db: db, log: baseLog.With("repo", "LearnerRatingRepo")}
}

func (r *learnerRatingRepo) Get(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) (*types.LearnerRating, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if learnerID == uuid.Nil {
		return nil, nil
	}
	var row types.LearnerRating
	err := transaction.WithContext(ctx).
		Where("learner_id = ?", learnerID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *learnerRatingRepo) Ensure(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, baseline float64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if learnerID == uuid.Nil {
		return nil
	}
	row := &types.LearnerRating{
		ID:         uuid.New(),
		LearnerID:  learnerID,
		Rating:     baseline,
		BestRating: baseline,
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "learner_id"}},
			DoNothing: true,
		}).
		Create(row).Error
}

func (r *learnerRatingRepo) GetForUpdate(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) (*types.LearnerRating, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.LearnerRating
	err := transaction.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("learner_id = ?", learnerID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *learnerRatingRepo) UpdateFields(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if learnerID == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.LearnerRating{}).
		Where("learner_id = ?", learnerID).
		Updates(updates).Error
}
