package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillrank/skillrank-backend/internal/logger"
	"github.com/skillrank/skillrank-backend/internal/types"
)

type SessionQuestionRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, rows []*types.SessionQuestion) error
	// GetBySessionID returns the session's assignments in presentation order.
	GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.SessionQuestion, error)
	QuestionIDsBySessionIDs(ctx context.Context, tx *gorm.DB, sessionIDs []uuid.UUID) ([]uuid.UUID, error)
}

type sessionQuestionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionQuestionRepo(db *gorm.DB, baseLog *logger.Logger) SessionQuestionRepo {
	return &sessionQuestionRepo{db: db, log: baseLog.With("repo", "SessionQuestionRepo")}
}

func (r *sessionQuestionRepo) CreateBatch(ctx context.Context, tx *gorm.DB, rows []*types.SessionQuestion) error {
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
	return transaction.WithContext(ctx).Create(&rows).Error
}

func (r *sessionQuestionRepo) GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.SessionQuestion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.SessionQuestion
	if sessionID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionQuestionRepo) QuestionIDsBySessionIDs(ctx context.Context, tx *gorm.DB, sessionIDs []uuid.UUID) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	if len(sessionIDs) == 0 {
		return ids, nil
	}
	if err := transaction.WithContext(ctx).
		Model(&types.SessionQuestion{}).
		Distinct("question_id").
		Where("session_id IN ?", sessionIDs).
		Pluck("question_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
