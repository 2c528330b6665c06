package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillrank/skillrank-backend/internal/logger"
	"github.com/skillrank/skillrank-backend/internal/types"
)

type QuizSessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, session *types.QuizSession) (*types.QuizSession, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.QuizSession, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	// RecentSessionIDs returns ids of the learner's latest n sessions,
	// newest first.
	RecentSessionIDs(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, n int) ([]uuid.UUID, error)
}

type quizSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuizSessionRepo(db *gorm.DB, baseLog *logger.Logger) QuizSessionRepo {
	return &quizSessionRepo{db: db, log: baseLog.With("repo", "QuizSessionRepo")}
}

func (r *quizSessionRepo) Create(ctx context.Context, tx *gorm.DB, session *types.QuizSession) (*types.QuizSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if session == nil {
		return nil, nil
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

func (r *quizSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.QuizSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.QuizSession
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *quizSessionRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.QuizSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *quizSessionRepo) RecentSessionIDs(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, n int) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	if learnerID == uuid.Nil || n <= 0 {
		return ids, nil
	}
	if err := transaction.WithContext(ctx).
		Model(&types.QuizSession{}).
		Where("learner_id = ?", learnerID).
		Order("started_at DESC").
		Limit(n).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
