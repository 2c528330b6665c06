package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skillrank/skillrank-backend/internal/logger"
	"github.com/skillrank/skillrank-backend/internal/types"
)

type QuestionHistoryRepo interface {
	GetByLearnerAndQuestionIDs(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, questionIDs []uuid.UUID) ([]*types.QuestionHistory, error)
	// GetQueued returns the learner's history rows carrying a positive queue
	// priority: previously missed questions owed a re-showing.
	GetQueued(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) ([]*types.QuestionHistory, error)
	RetiredQuestionIDs(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) ([]uuid.UUID, error)
	// MarkSeen upserts one history row per question: times_seen increments
	// and last_session_id moves; retirement and queue priority are left to
	// settlement.
	MarkSeen(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, questionIDs []uuid.UUID, sessionID uuid.UUID) error
	Upsert(ctx context.Context, tx *gorm.DB, row *types.QuestionHistory) error
	CountMasteredByCategory(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) (map[uuid.UUID]int64, error)
}

type questionHistoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionHistoryRepo(db *gorm.DB, baseLog *logger.Logger) QuestionHistoryRepo {
	return &questionHistoryRepo{db: db, log: baseLog.With("repo", "QuestionHistoryRepo")}
}

func (r *questionHistoryRepo) GetByLearnerAndQuestionIDs(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, questionIDs []uuid.UUID) ([]*types.QuestionHistory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.QuestionHistory
	if learnerID == uuid.Nil || len(questionIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("learner_id = ? AND question_id IN ?", learnerID, questionIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *questionHistoryRepo) GetQueued(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) ([]*types.QuestionHistory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.QuestionHistory
	if learnerID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("learner_id = ? AND queue_priority > 0", learnerID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *questionHistoryRepo) RetiredQuestionIDs(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	if learnerID == uuid.Nil {
		return ids, nil
	}
	if err := transaction.WithContext(ctx).
		Model(&types.QuestionHistory{}).
		Where("learner_id = ? AND retired = ?", learnerID, true).
		Pluck("question_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *questionHistoryRepo) MarkSeen(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, questionIDs []uuid.UUID, sessionID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if learnerID == uuid.Nil || len(questionIDs) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]*types.QuestionHistory, 0, len(questionIDs))
	for _, qid := range questionIDs {
		rows = append(rows, &types.QuestionHistory{
			ID:            uuid.New(),
			LearnerID:     learnerID,
			QuestionID:    qid,
			TimesSeen:     1,
			LastSessionID: &sessionID,
		})
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "learner_id"}, {Name: "question_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"times_seen":      gorm.Expr("question_history.times_seen + 1"),
				"last_session_id": sessionID,
				"updated_at":      now,
			}),
		}).
		Create(&rows).Error
}

func (r *questionHistoryRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.QuestionHistory) error {
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
			Columns: []clause.Column{{Name: "learner_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"times_seen", "times_correct", "times_incorrect", "retired",
				"retired_at", "queue_priority", "last_session_id", "updated_at",
			}),
		}).
		Create(row).Error
}

func (r *questionHistoryRepo) CountMasteredByCategory(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) (map[uuid.UUID]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	out := map[uuid.UUID]int64{}
	if learnerID == uuid.Nil {
		return out, nil
	}
	var rows []struct {
		CategoryID uuid.UUID `gorm:"column:category_id"`
		Cnt        int64     `gorm:"column:cnt"`
	}
	if err := transaction.WithContext(ctx).
		Model(&types.QuestionHistory{}).
		Select("question.category_id AS category_id, COUNT(*) AS cnt").
		Joins("JOIN question ON question.id = question_history.question_id").
		Where("question_history.learner_id = ? AND question_history.retired = ?", learnerID, true).
		Group("question.category_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.CategoryID] = row.Cnt
	}
	return out, nil
}
